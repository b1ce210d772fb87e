package overlay

import (
	"math"

	"github.com/DoyleJ11/foundry-planner/internal/geometry"
)

const (
	RowPadX       = 6.0
	RowPadY       = 4.0
	RowRadius     = 6.0
	StrokeWidth   = 2.2
	EndDotRadius  = 4.0
	AnchorRadius  = 2.5
	maxSpread     = 14.0
	minSpread     = 6.0
	maxSmoothness = 0.5
	smoothDist    = 500.0
	offsetWeight  = 0.4
)

// Row is one roster entry as laid out in the panel.
type Row struct {
	Player string
	Name   geometry.Rect
}

type Highlight struct {
	Player string
	Rect   geometry.Rect
}

// Connector is a cubic curve from a roster row to a building center.
type Connector struct {
	Player     string
	BuildingID string
	Start      geometry.Point
	C1, C2     geometry.Point
	End        geometry.Point
	Color      RGB
}

type Overlay struct {
	Highlights []Highlight
	Connectors []Connector
}

type Input struct {
	Rows  []Row
	Index Index
	// Centers holds building screen centers; buildings not drawn are absent.
	Centers map[string]geometry.Point
	// PanelRight anchors connectors on the row's left edge.
	PanelRight bool
}

// PanelIsRight reports whether the roster panel sits right of the map's
// horizontal center.
func PanelIsRight(panel, mapArea geometry.Rect) bool {
	return panel.X > mapArea.X+mapArea.W/2
}

// Build lays out highlights and connectors for every row holding at least
// one building.
func Build(in Input) Overlay {
	var out Overlay
	for _, row := range in.Rows {
		held := in.Index[row.Player]
		if len(held) == 0 {
			continue
		}
		rect := geometry.Rect{
			X: row.Name.X - RowPadX,
			Y: row.Name.Y - RowPadY,
			W: row.Name.W + RowPadX*2,
			H: row.Name.H + RowPadY*2,
		}
		out.Highlights = append(out.Highlights, Highlight{Player: row.Player, Rect: rect})

		start := geometry.Point{X: rect.X + rect.W, Y: rect.Y + rect.H/2}
		if in.PanelRight {
			start.X = rect.X
		}

		total := len(held)
		spread := math.Min(maxSpread, minSpread+math.Floor(float64(total)/3))
		idx := 0
		for _, id := range held {
			end, ok := in.Centers[id]
			if !ok {
				continue
			}
			offset := (float64(idx) - float64(total-1)/2) * spread
			idx++
			out.Connectors = append(out.Connectors, curve(row.Player, id, start, end, offset))
		}
	}
	return out
}

func curve(player, id string, s, e geometry.Point, offset float64) Connector {
	dx, dy := e.X-s.X, e.Y-s.Y
	smooth := math.Min(maxSmoothness, math.Hypot(dx, dy)/smoothDist)
	return Connector{
		Player:     player,
		BuildingID: id,
		Start:      s,
		C1:         geometry.Point{X: s.X + dx*smooth, Y: s.Y + offset*offsetWeight},
		C2:         geometry.Point{X: e.X - dx*smooth, Y: e.Y + offset*offsetWeight},
		End:        e,
		Color:      ColorFor(id),
	}
}
