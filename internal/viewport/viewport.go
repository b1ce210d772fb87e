// Package viewport maintains the pan/zoom transform of a constrained-size
// board presentation. Pointer positions are in container coordinates; the
// surface is drawn at translate(TX, TY) scale(Scale) with origin 0,0.
//
// A Controller is not safe for concurrent use. Feed it events from one
// goroutine.
package viewport

import (
	"math"
	"slices"

	"github.com/DoyleJ11/foundry-planner/internal/geometry"
)

const (
	MinScale       = 0.6
	MaxScale       = 3.0
	WheelIn        = 1.08
	WheelOut       = 0.92
	DefaultPadding = 24.0
)

type Transform struct {
	TX, TY float64
	Scale  float64
}

func Identity() Transform { return Transform{Scale: 1} }

// ToScreen maps a surface-local point to container coordinates.
func (t Transform) ToScreen(p geometry.Point) geometry.Point {
	return geometry.Point{X: t.TX + p.X*t.Scale, Y: t.TY + p.Y*t.Scale}
}

// ToLocal is the inverse of ToScreen.
func (t Transform) ToLocal(p geometry.Point) geometry.Point {
	return geometry.Point{X: (p.X - t.TX) / t.Scale, Y: (p.Y - t.TY) / t.Scale}
}

func Clamp(s float64) float64 { return math.Max(MinScale, math.Min(MaxScale, s)) }

type pinch struct {
	dist  float64
	scale float64
	local geometry.Point // pivot in surface coordinates
}

type Controller struct {
	t        Transform
	pointers map[int]geometry.Point
	order    []int
	lastPan  *geometry.Point
	pinch    *pinch
	onChange func(Transform)
}

type Option func(*Controller)

// WithOnChange is called after every transform change, typically to
// request an overlay redraw.
func WithOnChange(fn func(Transform)) Option { return func(c *Controller) { c.onChange = fn } }

func New(opts ...Option) *Controller {
	c := &Controller{t: Identity(), pointers: map[int]geometry.Point{}}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Controller) Transform() Transform { return c.t }

func (c *Controller) SetTransform(t Transform) {
	t.Scale = Clamp(t.Scale)
	c.set(t)
}

func (c *Controller) set(t Transform) {
	c.t = t
	if c.onChange != nil {
		c.onChange(t)
	}
}

func (c *Controller) PointerDown(id int, p geometry.Point) {
	if _, ok := c.pointers[id]; !ok {
		c.order = append(c.order, id)
	}
	c.pointers[id] = p
	switch len(c.pointers) {
	case 1:
		c.lastPan = &p
	case 2:
		c.lastPan = nil
		c.startPinch()
	}
}

func (c *Controller) PointerMove(id int, p geometry.Point) {
	if _, ok := c.pointers[id]; !ok {
		return
	}
	c.pointers[id] = p
	switch len(c.pointers) {
	case 1:
		if c.lastPan == nil {
			c.lastPan = &p
			return
		}
		dx, dy := p.X-c.lastPan.X, p.Y-c.lastPan.Y
		c.lastPan = &p
		c.set(Transform{TX: c.t.TX + dx, TY: c.t.TY + dy, Scale: c.t.Scale})
	case 2:
		if c.pinch == nil {
			c.startPinch()
			return
		}
		a, b := c.pair()
		dist := math.Hypot(b.X-a.X, b.Y-a.Y)
		if c.pinch.dist == 0 {
			return
		}
		s := Clamp(c.pinch.scale * dist / c.pinch.dist)
		// keep the pivot where it is on screen
		pivot := c.t.ToScreen(c.pinch.local)
		c.set(Transform{
			TX:    pivot.X - c.pinch.local.X*s,
			TY:    pivot.Y - c.pinch.local.Y*s,
			Scale: s,
		})
	}
}

func (c *Controller) PointerUp(id int) {
	if _, ok := c.pointers[id]; !ok {
		return
	}
	delete(c.pointers, id)
	c.order = slices.DeleteFunc(c.order, func(v int) bool { return v == id })
	c.pinch = nil
	switch len(c.pointers) {
	case 0:
		c.lastPan = nil
	case 1:
		// continue as a pan from where the remaining finger is now
		p := c.pointers[c.order[0]]
		c.lastPan = &p
	}
}

// Wheel zooms by a fixed step around the surface origin. Tiny deltas
// without ctrl (trackpad noise) are ignored.
func (c *Controller) Wheel(deltaY float64, ctrl bool) bool {
	if math.Abs(deltaY) < 1 && !ctrl {
		return false
	}
	f := WheelOut
	if deltaY < 0 {
		f = WheelIn
	}
	c.set(Transform{TX: c.t.TX, TY: c.t.TY, Scale: Clamp(c.t.Scale * f)})
	return true
}

// FitToBounds scales and centers content (surface coordinates) inside a
// view of size w×h with padding on every side. It never zooms in past 1.
func (c *Controller) FitToBounds(content geometry.Rect, w, h, padding float64) bool {
	vw, vh := w-padding*2, h-padding*2
	if vw <= 0 || vh <= 0 {
		return false
	}
	cw, ch := content.W, content.H
	if cw <= 0 {
		cw = 1
	}
	if ch <= 0 {
		ch = 1
	}
	s := Clamp(math.Min(math.Min(vw/cw, vh/ch), 1))
	c.set(Transform{
		TX:    math.Round((w-cw*s)/2 - content.X*s),
		TY:    math.Round((h-ch*s)/2 - content.Y*s),
		Scale: s,
	})
	return true
}

// Bounds is the smallest rect holding every rect, false when there are none.
func Bounds(rects []geometry.Rect) (geometry.Rect, bool) {
	if len(rects) == 0 {
		return geometry.Rect{}, false
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, r := range rects {
		minX = math.Min(minX, r.X)
		minY = math.Min(minY, r.Y)
		maxX = math.Max(maxX, r.X+r.W)
		maxY = math.Max(maxY, r.Y+r.H)
	}
	return geometry.Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}, true
}

func (c *Controller) pair() (geometry.Point, geometry.Point) {
	return c.pointers[c.order[0]], c.pointers[c.order[1]]
}

func (c *Controller) startPinch() {
	a, b := c.pair()
	mid := geometry.Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
	c.pinch = &pinch{
		dist:  math.Hypot(b.X-a.X, b.Y-a.Y),
		scale: c.t.Scale,
		local: c.t.ToLocal(mid),
	}
}
