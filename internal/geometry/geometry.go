// Package geometry maps between isometric grid cells and pixel positions on
// a diamond-clipped board.
package geometry

import (
	"math"

	"github.com/DoyleJ11/foundry-planner/internal/board"
)

const (
	DefaultGridSize   = 12
	DefaultTileWidth  = 120
	DefaultTileHeight = 100
)

// Clip bounds the visible cells. S bounds gx+gy, which cuts the square down to
// a diamond.
type Clip struct {
	MinX, MaxX int
	MinY, MaxY int
	MinS, MaxS int
}

// ComputeClip returns bounds covering exactly n cells per axis. Even sizes put
// the extra cell on the positive side so the center cell stays at (0,0).
func ComputeClip(n int) Clip {
	n = max(1, n)
	halfLow := (n - 1) / 2
	lo := -halfLow
	hi := lo + n - 1
	return Clip{MinX: lo, MaxX: hi, MinY: lo, MaxY: hi, MinS: lo, MaxS: hi}
}

func (c Clip) Contains(gx, gy int) bool {
	s := gx + gy
	return gx >= c.MinX && gx <= c.MaxX &&
		gy >= c.MinY && gy <= c.MaxY &&
		s >= c.MinS && s <= c.MaxS
}

// Cell is one integer grid position.
type Cell struct{ X, Y int }

// Cells lists the visible cells row by row.
func (c Clip) Cells() []Cell {
	var out []Cell
	for x := c.MinX; x <= c.MaxX; x++ {
		for y := c.MinY; y <= c.MaxY; y++ {
			if c.Contains(x, y) {
				out = append(out, Cell{x, y})
			}
		}
	}
	return out
}

type Point struct{ X, Y float64 }

type Rect struct{ X, Y, W, H float64 }

func (r Rect) Center() Point { return Point{r.X + r.W/2, r.Y + r.H/2} }

func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// Layout is the board placed inside a wrapper of a given size.
type Layout struct {
	GridSize int
	TileW    float64
	TileH    float64
	Clip     Clip

	WrapperW, WrapperH float64
	PlayW, PlayH       float64
	PlayLeft, PlayTop  float64
	CenterX, CenterY   float64
}

// NewLayout centers an n×n play area inside the wrapper. A zero wrapper size
// means the wrapper is exactly the play area.
func NewLayout(gridSize int, tileW, tileH, wrapperW, wrapperH float64) Layout {
	gridSize = max(1, gridSize)
	l := Layout{
		GridSize: gridSize,
		TileW:    tileW,
		TileH:    tileH,
		Clip:     ComputeClip(gridSize),
		PlayW:    float64(gridSize) * tileW,
		PlayH:    float64(gridSize) * tileH,
	}
	l.WrapperW, l.WrapperH = wrapperW, wrapperH
	if l.WrapperW <= 0 {
		l.WrapperW = l.PlayW
	}
	if l.WrapperH <= 0 {
		l.WrapperH = l.PlayH
	}
	l.PlayLeft = (l.WrapperW - l.PlayW) / 2
	l.PlayTop = (l.WrapperH - l.PlayH) / 2
	l.CenterX = l.PlayLeft + l.PlayW/2
	l.CenterY = l.PlayTop + l.PlayH/2
	return l
}

func (l Layout) PlayArea() Rect { return Rect{l.PlayLeft, l.PlayTop, l.PlayW, l.PlayH} }

// ScreenFromGrid projects a (possibly fractional) cell onto the surface.
func (l Layout) ScreenFromGrid(gx, gy float64) Point {
	return Point{
		X: l.CenterX + (gx-gy)*(l.TileW/2),
		Y: l.CenterY + (gx+gy)*(l.TileH/2),
	}
}

// GridFromScreen is the exact inverse of ScreenFromGrid. It does not round.
func (l Layout) GridFromScreen(sx, sy float64) (gx, gy float64) {
	relX := sx - l.CenterX
	relY := sy - l.CenterY
	a := l.TileW / 2
	b := l.TileH / 2
	gx = 0.5 * (relX/a + relY/b)
	gy = 0.5 * (relY/b - relX/a)
	return gx, gy
}

// Pick returns the nearest cell under a surface point and whether it lies
// inside the visible diamond.
func (l Layout) Pick(sx, sy float64) (Cell, bool) {
	gx, gy := l.GridFromScreen(sx, sy)
	c := Cell{int(math.Round(gx)), int(math.Round(gy))}
	return c, l.Clip.Contains(c.X, c.Y)
}

// Place resolves where a building's center sits. Grid coordinates win; older
// documents carry percentages of the play area instead. With neither the
// building sits at the board center.
func (l Layout) Place(b board.Building) Point {
	switch {
	case b.HasGrid():
		return l.ScreenFromGrid(*b.GridX, *b.GridY)
	case b.CoordsX != nil && b.CoordsY != nil:
		return Point{
			X: l.PlayLeft + *b.CoordsX/100*l.PlayW,
			Y: l.PlayTop + *b.CoordsY/100*l.PlayH,
		}
	default:
		return Point{l.CenterX, l.CenterY}
	}
}

// Footprint is the rectangle a building image covers, scaled by img_scale and
// shifted by img_offset_y.
func (l Layout) Footprint(b board.Building) Rect {
	c := l.Place(b)
	w := l.TileW * b.Scale()
	h := l.TileH * b.Scale()
	return Rect{X: c.X - w/2, Y: c.Y - h/2 + b.ImgOffsetY, W: w, H: h}
}

// TileCorners returns the four diamond corners of a cell, clockwise from top.
func (l Layout) TileCorners(c Cell) [4]Point {
	p := l.ScreenFromGrid(float64(c.X), float64(c.Y))
	hw, hh := l.TileW/2, l.TileH/2
	return [4]Point{
		{p.X, p.Y - hh},
		{p.X + hw, p.Y},
		{p.X, p.Y + hh},
		{p.X - hw, p.Y},
	}
}
