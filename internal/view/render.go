package view

import (
	"fmt"
	"io"
	"math"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/DoyleJ11/foundry-planner/internal/geometry"
	"github.com/DoyleJ11/foundry-planner/internal/overlay"
)

type Format string

const (
	FormatSVG Format = "svg"
	FormatPNG Format = "png"
)

var (
	background = drawing.Color{R: 250, G: 248, B: 242, A: 255}
	gridLine   = drawing.Color{R: 0, G: 0, B: 0, A: 30}
	rowStroke  = drawing.Color{R: 153, G: 153, B: 153, A: 102}
	rowFill    = drawing.Color{R: 255, G: 255, B: 255, A: 5}
	textColor  = drawing.Color{R: 34, G: 34, B: 34, A: 255}
)

// curveSteps is how many segments approximate one connector.
const curveSteps = 24

// Render draws the scene as SVG or PNG.
func Render(w io.Writer, sc Scene, f Format) error {
	var provider chart.RendererProvider
	switch f {
	case FormatSVG:
		provider = chart.SVG
	case FormatPNG:
		provider = chart.PNG
	default:
		return fmt.Errorf("unsupported format %q", f)
	}
	r, err := provider(int(math.Ceil(sc.Width)), int(math.Ceil(sc.Height)))
	if err != nil {
		return err
	}
	font, err := chart.GetDefaultFont()
	if err != nil {
		return err
	}
	r.SetFont(font)

	fillRect(r, geometry.Rect{W: sc.Width, H: sc.Height}, background)
	drawGrid(r, sc)
	drawBuildings(r, sc)
	drawRoster(r, sc)
	drawConnectors(r, sc.Overlay)
	drawCaption(r, sc)
	return r.Save(w)
}

func px(v float64) int { return int(math.Round(v)) }

func rgba(c overlay.RGB, a uint8) drawing.Color {
	return drawing.Color{R: c.R, G: c.G, B: c.B, A: a}
}

func fillRect(r chart.Renderer, rect geometry.Rect, c drawing.Color) {
	r.ResetStyle()
	r.SetFillColor(c)
	r.SetStrokeColor(c)
	r.SetStrokeWidth(0)
	r.MoveTo(px(rect.X), px(rect.Y))
	r.LineTo(px(rect.X+rect.W), px(rect.Y))
	r.LineTo(px(rect.X+rect.W), px(rect.Y+rect.H))
	r.LineTo(px(rect.X), px(rect.Y+rect.H))
	r.Close()
	r.Fill()
}

func dot(r chart.Renderer, p geometry.Point, radius float64, c drawing.Color) {
	r.ResetStyle()
	r.SetFillColor(c)
	r.SetStrokeColor(c)
	r.SetStrokeWidth(0)
	r.MoveTo(px(p.X+radius), px(p.Y))
	r.ArcTo(px(p.X), px(p.Y), radius, radius, 0, 2*math.Pi)
	r.Close()
	r.Fill()
}

func drawGrid(r chart.Renderer, sc Scene) {
	for _, c := range sc.Cells {
		pts := sc.Layout.TileCorners(c)
		r.ResetStyle()
		r.SetStrokeColor(gridLine)
		r.SetStrokeWidth(1)
		r.MoveTo(px(pts[0].X), px(pts[0].Y))
		for _, p := range pts[1:] {
			r.LineTo(px(p.X), px(p.Y))
		}
		r.Close()
		r.Stroke()
	}
}

func drawBuildings(r chart.Renderer, sc Scene) {
	for _, b := range sc.Buildings {
		fp := b.Footprint
		alpha := uint8(70)
		if len(b.Assigned) > 0 {
			alpha = 150
		}
		r.ResetStyle()
		r.SetFillColor(rgba(b.Color, alpha))
		r.SetStrokeColor(rgba(b.Color, 255))
		r.SetStrokeWidth(1.5)
		// diamond inscribed in the footprint
		r.MoveTo(px(fp.X+fp.W/2), px(fp.Y))
		r.LineTo(px(fp.X+fp.W), px(fp.Y+fp.H/2))
		r.LineTo(px(fp.X+fp.W/2), px(fp.Y+fp.H))
		r.LineTo(px(fp.X), px(fp.Y+fp.H/2))
		r.Close()
		r.FillStroke()

		r.SetFontColor(textColor)
		r.SetFontSize(10)
		box := r.MeasureText(b.Building.ID)
		r.Text(b.Building.ID, px(b.Center.X)-box.Width()/2, px(b.Center.Y)+box.Height()/2)
	}
}

func drawRoster(r chart.Renderer, sc Scene) {
	for _, h := range sc.Overlay.Highlights {
		r.ResetStyle()
		r.SetFillColor(rowFill)
		r.SetStrokeColor(rowStroke)
		r.SetStrokeWidth(1.2)
		rect := h.Rect
		r.MoveTo(px(rect.X), px(rect.Y))
		r.LineTo(px(rect.X+rect.W), px(rect.Y))
		r.LineTo(px(rect.X+rect.W), px(rect.Y+rect.H))
		r.LineTo(px(rect.X), px(rect.Y+rect.H))
		r.Close()
		r.FillStroke()
	}
	for _, row := range sc.Rows {
		r.SetFontColor(textColor)
		r.SetFontSize(overlay.DefaultFontSize)
		r.Text(row.Player, px(row.Name.X), px(row.Name.Y+row.Name.H))
	}
}

func drawConnectors(r chart.Renderer, o overlay.Overlay) {
	for _, c := range o.Connectors {
		r.ResetStyle()
		r.SetStrokeColor(rgba(c.Color, 153))
		r.SetStrokeWidth(overlay.StrokeWidth)
		r.MoveTo(px(c.Start.X), px(c.Start.Y))
		for i := 1; i <= curveSteps; i++ {
			p := bezier(c, float64(i)/curveSteps)
			r.LineTo(px(p.X), px(p.Y))
		}
		r.Stroke()
		dot(r, c.End, overlay.EndDotRadius, rgba(c.Color, 204))
		dot(r, c.Start, overlay.AnchorRadius, rgba(c.Color, 178))
	}
}

func drawCaption(r chart.Renderer, sc Scene) {
	caption := fmt.Sprintf("%s stage %d", sc.Session.LegionID, sc.Session.Stage)
	if sc.TimeStart != "" {
		caption += " @ " + sc.TimeStart
	}
	if sc.StageNote != "" {
		caption += " - " + sc.StageNote
	}
	r.SetFontColor(textColor)
	r.SetFontSize(12)
	r.Text(caption, 8, 16)
}

// bezier evaluates the connector's cubic curve at t in [0,1].
func bezier(c overlay.Connector, t float64) geometry.Point {
	u := 1 - t
	a, b, cc, d := u*u*u, 3*u*u*t, 3*u*t*t, t*t*t
	return geometry.Point{
		X: a*c.Start.X + b*c.C1.X + cc*c.C2.X + d*c.End.X,
		Y: a*c.Start.Y + b*c.C1.Y + cc*c.C2.Y + d*c.End.Y,
	}
}
