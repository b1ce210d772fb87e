package overlay

import (
	"fmt"
	"math"
	"unicode/utf16"
)

type RGB struct{ R, G, B uint8 }

func (c RGB) Hex() string { return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B) }

// Hue hashes an identifier to [0, 360). The hash runs over UTF-16 code
// units with 32-bit wraparound so every view agrees on it.
func Hue(id string) int {
	if id == "" {
		id = "b"
	}
	var h int32
	for _, u := range utf16.Encode([]rune(id)) {
		h = (h << 5) - h + int32(u)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return int(v % 360)
}

// ColorFor is the connector color of a building.
func ColorFor(buildingID string) RGB {
	return HSL(float64(Hue(buildingID)), 0.78, 0.45)
}

// HSL converts CSS-style hue degrees, saturation and lightness in [0,1].
func HSL(h, s, l float64) RGB {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := l - c/2

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return RGB{to8(r + m), to8(g + m), to8(b + m)}
}

func to8(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}
