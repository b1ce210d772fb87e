package board

import "slices"

// Document is the whole battle plan. Writes always replace it wholesale.
type Document struct {
	Buildings  []Building `json:"buildings"`
	LegionData []Legion   `json:"legion_data"`
	Meta       Meta       `json:"meta"`
}

type Meta struct {
	Version   int    `json:"version"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type Building struct {
	ID         string   `json:"id"`
	NameAr     string   `json:"name_ar,omitempty"`
	PNGPath    string   `json:"png_path,omitempty"`
	GridX      *float64 `json:"gridX,omitempty"`
	GridY      *float64 `json:"gridY,omitempty"`
	CoordsX    *float64 `json:"coords_x,omitempty"` // legacy, percent of play area width
	CoordsY    *float64 `json:"coords_y,omitempty"` // legacy, percent of play area height
	ImgScale   float64  `json:"img_scale,omitempty"`
	ImgOffsetY float64  `json:"img_offset_y,omitempty"`

	PointsFirstAlliance *float64 `json:"points_first_alliance,omitempty"`
	PointsOccAlliance   *float64 `json:"points_occ_alliance,omitempty"`
	PointsFirstPersonal *float64 `json:"points_first_personal,omitempty"`
	PointsOccPersonal   *float64 `json:"points_occ_personal,omitempty"`
	BonusAr             string   `json:"bonus_ar,omitempty"`
	Note                string   `json:"note,omitempty"`
}

// HasGrid reports whether the building is placed by grid cell rather than
// legacy percentages.
func (b Building) HasGrid() bool { return b.GridX != nil && b.GridY != nil }

// Scale returns img_scale, treating missing or non-positive values as 1.
func (b Building) Scale() float64 {
	if b.ImgScale <= 0 {
		return 1
	}
	return b.ImgScale
}

type Legion struct {
	LegionID   string   `json:"legion_id"`
	AllPlayers []string `json:"all_players"`
	Stages     []Stage  `json:"stages"`
}

type Stage struct {
	StageNumber int          `json:"stage_number"`
	TimeStart   string       `json:"time_start,omitempty"`
	Notes       string       `json:"notes,omitempty"`
	Assignments []Assignment `json:"assignments"`
}

// Assignment holds the players on one building for one stage. PlayerNames is
// a set kept in insertion order.
type Assignment struct {
	BuildingID  string   `json:"building_id"`
	PlayerNames []string `json:"player_names"`
}

// Empty returns a document with no buildings or legions.
func Empty() *Document {
	return &Document{Buildings: []Building{}, LegionData: []Legion{}}
}

func (d *Document) Building(id string) (*Building, bool) {
	for i := range d.Buildings {
		if d.Buildings[i].ID == id {
			return &d.Buildings[i], true
		}
	}
	return nil, false
}

func (d *Document) Legion(id string) (*Legion, bool) {
	for i := range d.LegionData {
		if d.LegionData[i].LegionID == id {
			return &d.LegionData[i], true
		}
	}
	return nil, false
}

func (l *Legion) Stage(n int) (*Stage, bool) {
	for i := range l.Stages {
		if l.Stages[i].StageNumber == n {
			return &l.Stages[i], true
		}
	}
	return nil, false
}

func (l *Legion) HasPlayer(name string) bool { return slices.Contains(l.AllPlayers, name) }

func (s *Stage) Assignment(buildingID string) (*Assignment, bool) {
	for i := range s.Assignments {
		if s.Assignments[i].BuildingID == buildingID {
			return &s.Assignments[i], true
		}
	}
	return nil, false
}

func (a *Assignment) Has(player string) bool { return slices.Contains(a.PlayerNames, player) }

// Clone returns a deep copy so callers can mutate without aliasing.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{Meta: d.Meta}
	out.Buildings = make([]Building, len(d.Buildings))
	for i, b := range d.Buildings {
		b.GridX = clonePtr(b.GridX)
		b.GridY = clonePtr(b.GridY)
		b.CoordsX = clonePtr(b.CoordsX)
		b.CoordsY = clonePtr(b.CoordsY)
		b.PointsFirstAlliance = clonePtr(b.PointsFirstAlliance)
		b.PointsOccAlliance = clonePtr(b.PointsOccAlliance)
		b.PointsFirstPersonal = clonePtr(b.PointsFirstPersonal)
		b.PointsOccPersonal = clonePtr(b.PointsOccPersonal)
		out.Buildings[i] = b
	}
	out.LegionData = make([]Legion, len(d.LegionData))
	for i, l := range d.LegionData {
		nl := Legion{LegionID: l.LegionID, AllPlayers: slices.Clone(l.AllPlayers)}
		if nl.AllPlayers == nil {
			nl.AllPlayers = []string{}
		}
		nl.Stages = make([]Stage, len(l.Stages))
		for j, s := range l.Stages {
			ns := s
			ns.Assignments = make([]Assignment, len(s.Assignments))
			for k, a := range s.Assignments {
				names := slices.Clone(a.PlayerNames)
				if names == nil {
					names = []string{}
				}
				ns.Assignments[k] = Assignment{BuildingID: a.BuildingID, PlayerNames: names}
			}
			nl.Stages[j] = ns
		}
		out.LegionData[i] = nl
	}
	return out
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Float is a small helper for building literals.
func Float(v float64) *float64 { return &v }
