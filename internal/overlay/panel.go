package overlay

import (
	"unicode/utf8"

	"github.com/DoyleJ11/foundry-planner/internal/geometry"
)

const (
	DefaultRowHeight = 29.0
	DefaultFontSize  = 13.0
	defaultCharWidth = 7.0
)

// Panel positions the roster list. Measure returns a name's rendered width;
// nil uses a fixed advance per rune.
type Panel struct {
	X, Y      float64
	Width     float64
	RowHeight float64
	FontSize  float64
	Measure   func(string) float64
}

func (p Panel) rowHeight() float64 {
	if p.RowHeight > 0 {
		return p.RowHeight
	}
	return DefaultRowHeight
}

func (p Panel) fontSize() float64 {
	if p.FontSize > 0 {
		return p.FontSize
	}
	return DefaultFontSize
}

func (p Panel) measure(s string) float64 {
	if p.Measure != nil {
		return p.Measure(s)
	}
	return float64(utf8.RuneCountInString(s)) * defaultCharWidth
}

// Rows lays out one row per player, top to bottom.
func (p Panel) Rows(players []string) []Row {
	rh, fs := p.rowHeight(), p.fontSize()
	rows := make([]Row, 0, len(players))
	for i, name := range players {
		w := p.measure(name)
		if p.Width > 0 {
			w = min(w, p.Width-2*RowPadX)
		}
		rows = append(rows, Row{
			Player: name,
			Name: geometry.Rect{
				X: p.X + RowPadX,
				Y: p.Y + float64(i)*rh + (rh-fs)/2,
				W: w,
				H: fs,
			},
		})
	}
	return rows
}

func (p Panel) Bounds(n int) geometry.Rect {
	return geometry.Rect{X: p.X, Y: p.Y, W: p.Width, H: float64(n) * p.rowHeight()}
}
