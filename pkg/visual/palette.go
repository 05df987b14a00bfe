package visual

import (
	"fmt"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/vanderheijden86/photocluster/pkg/highlight"
)

// Palette holds one border colour per emphasis level. Index 0 is the
// neutral colour of unhighlighted nodes.
type Palette [highlight.MaxLevel + 1]color.RGBA

// DefaultPaletteHex is the default palette in hex notation.
var DefaultPaletteHex = []string{"#ffffff", "#4fc3f7", "#aed581", "#ffb74d", "#e57373"}

// DefaultPalette returns the parsed default palette.
func DefaultPalette() Palette {
	p, err := ParsePalette(DefaultPaletteHex)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePalette parses exactly MaxLevel+1 hex colours.
func ParsePalette(hex []string) (Palette, error) {
	var p Palette
	if len(hex) != len(p) {
		return p, fmt.Errorf("palette needs %d colours, got %d", len(p), len(hex))
	}
	for i, h := range hex {
		c, err := colorful.Hex(h)
		if err != nil {
			return p, fmt.Errorf("palette[%d]: %w", i, err)
		}
		r, g, b := c.RGB255()
		p[i] = color.RGBA{R: r, G: g, B: b, A: 0xff}
	}
	return p, nil
}

// Color returns the colour for level, clamped to the palette.
func (p Palette) Color(level int) color.RGBA {
	if level < 0 {
		level = 0
	}
	if level >= len(p) {
		level = len(p) - 1
	}
	return p[level]
}

// Hex returns the palette in #rrggbb notation.
func (p Palette) Hex() []string {
	out := make([]string, len(p))
	for i, c := range p {
		out[i] = colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}.Hex()
	}
	return out
}
