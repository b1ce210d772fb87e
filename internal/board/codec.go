package board

import (
	"bytes"
	"encoding/json"
	"math"
)

// Encode produces the canonical serialization used both for persisting and
// for change detection. Equal documents always encode to equal bytes.
func Encode(d *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// EncodeIndent is Encode with indentation, for files people read.
func EncodeIndent(d *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Equal compares two documents by canonical encoding.
func Equal(a, b *Document) bool {
	if a == nil || b == nil {
		return a == b
	}
	ea, errA := Encode(a)
	eb, errB := Encode(b)
	return errA == nil && errB == nil && bytes.Equal(ea, eb)
}

// SameContent is Equal ignoring meta, so a save that only moved the version
// and timestamp does not count as a change.
func SameContent(a, b *Document) bool {
	if a == nil || b == nil {
		return a == b
	}
	ca, cb := *a, *b
	ca.Meta, cb.Meta = Meta{}, Meta{}
	return Equal(&ca, &cb)
}

// RoundCoords rounds gridX, gridY and img_scale to two decimals, the
// precision the store keeps.
func RoundCoords(d *Document) {
	for i := range d.Buildings {
		b := &d.Buildings[i]
		if b.GridX != nil {
			*b.GridX = round2(*b.GridX)
		}
		if b.GridY != nil {
			*b.GridY = round2(*b.GridY)
		}
		b.ImgScale = round2(b.ImgScale)
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
