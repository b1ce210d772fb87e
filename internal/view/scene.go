package view

import (
	"math"

	"github.com/DoyleJ11/foundry-planner/internal/board"
	"github.com/DoyleJ11/foundry-planner/internal/geometry"
	"github.com/DoyleJ11/foundry-planner/internal/overlay"
	"github.com/DoyleJ11/foundry-planner/internal/viewport"
)

const (
	panelGap   = 16.0
	panelWidth = 180.0
)

// Config is the board geometry a view lays out with.
type Config struct {
	GridSize int
	TileW    float64
	TileH    float64
	// Wrapper size; zero means the play area.
	WrapperW, WrapperH float64
}

func DefaultConfig() Config {
	return Config{GridSize: geometry.DefaultGridSize, TileW: geometry.DefaultTileWidth, TileH: geometry.DefaultTileHeight}
}

type BuildingView struct {
	Building  board.Building
	Center    geometry.Point
	Footprint geometry.Rect
	Color     overlay.RGB
	Assigned  []string
}

// Scene is everything drawn for one document and session.
type Scene struct {
	Session   Session
	Version   int
	Layout    geometry.Layout
	Cells     []geometry.Cell
	Buildings []BuildingView
	Panel     overlay.Panel
	Rows      []overlay.Row
	Overlay   overlay.Overlay
	Index     overlay.Index
	TimeStart string
	StageNote string
	Width     float64
	Height    float64
}

// Build runs the rebuild cascade: layout, building placement, roster rows
// and overlay.
func Build(d *board.Document, sess Session, cfg Config) Scene {
	if d == nil {
		d = board.Empty()
	}
	if cfg.GridSize <= 0 {
		cfg = DefaultConfig()
	}
	sess = sess.Normalized(d)
	lay := geometry.NewLayout(cfg.GridSize, cfg.TileW, cfg.TileH, cfg.WrapperW, cfg.WrapperH)
	legion, stage := sess.Resolve(d)

	sc := Scene{
		Session: sess,
		Version: d.Meta.Version,
		Layout:  lay,
		Index:   overlay.BuildIndex(stage),
	}
	if sess.Grid {
		sc.Cells = lay.Clip.Cells()
	}
	if stage != nil {
		sc.TimeStart = stage.TimeStart
		sc.StageNote = stage.Notes
	}

	centers := make(map[string]geometry.Point, len(d.Buildings))
	for _, b := range d.Buildings {
		bv := BuildingView{
			Building:  b,
			Center:    lay.Place(b),
			Footprint: lay.Footprint(b),
			Color:     overlay.ColorFor(b.ID),
		}
		if stage != nil {
			if a, ok := stage.Assignment(b.ID); ok {
				bv.Assigned = a.PlayerNames
			}
		}
		centers[b.ID] = bv.Center
		sc.Buildings = append(sc.Buildings, bv)
	}

	sc.Panel = overlay.Panel{X: lay.WrapperW + panelGap, Y: lay.PlayTop, Width: panelWidth}
	var roster []string
	if legion != nil {
		roster = overlay.VisiblePlayers(legion.AllPlayers, stage, sess.Filter)
	}
	sc.Rows = sc.Panel.Rows(roster)
	sc.Overlay = overlay.Build(overlay.Input{
		Rows:       sc.Rows,
		Index:      sc.Index,
		Centers:    centers,
		PanelRight: overlay.PanelIsRight(sc.Panel.Bounds(len(roster)), lay.PlayArea()),
	})

	sc.Width = lay.WrapperW + panelGap + panelWidth
	sc.Height = math.Max(lay.WrapperH, sc.Panel.Bounds(len(roster)).H+lay.PlayTop)
	return sc
}

// BuildingsOf lists the buildings player holds in the scene's stage.
func (s Scene) BuildingsOf(player string) []string { return s.Index.Buildings(player) }

// PickResult is a coordinate-picking answer: the snapped cell and the exact
// fractional grid position.
type PickResult struct {
	Cell   geometry.Cell
	GX, GY float64
	Inside bool
}

// Pick resolves a surface point to grid coordinates.
func (s Scene) Pick(p geometry.Point) PickResult {
	gx, gy := s.Layout.GridFromScreen(p.X, p.Y)
	c, inside := s.Layout.Pick(p.X, p.Y)
	return PickResult{Cell: c, GX: gx, GY: gy, Inside: inside}
}

// Content bounds every building footprint, or the play area when there are
// no buildings. Feed it to viewport FitToBounds.
func (s Scene) Content() geometry.Rect {
	rects := make([]geometry.Rect, 0, len(s.Buildings))
	for _, b := range s.Buildings {
		rects = append(rects, b.Footprint)
	}
	if r, ok := viewport.Bounds(rects); ok {
		return r
	}
	return s.Layout.PlayArea()
}
