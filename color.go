package pattern

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// RGBA is a color with straight (non-premultiplied) components in [0, 1].
type RGBA struct {
	R, G, B, A float64
}

// RGB returns an opaque color.
func RGB(r, g, b float64) RGBA {
	return RGBA{R: r, G: g, B: b, A: 1}
}

// Gray returns an opaque gray level.
func Gray(g float64) RGBA {
	return RGBA{R: g, G: g, B: g, A: 1}
}

// White and Black are the opaque extremes.
var (
	White = RGBA{R: 1, G: 1, B: 1, A: 1}
	Black = RGBA{A: 1}
)

// FromColor converts a standard library color.
func FromColor(c color.Color) RGBA {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return RGBA{
		R: float64(n.R) / 255,
		G: float64(n.G) / 255,
		B: float64(n.B) / 255,
		A: float64(n.A) / 255,
	}
}

// Color converts c to color.NRGBA.
func (c RGBA) Color() color.Color {
	r, g, b, a := c.Bytes()
	return color.NRGBA{R: r, G: g, B: b, A: a}
}

// Bytes returns the components scaled to 0-255 and clamped.
func (c RGBA) Bytes() (r, g, b, a byte) {
	return unitByte(c.R), unitByte(c.G), unitByte(c.B), unitByte(c.A)
}

// Luminance returns the Rec. 601 luma of c.
func (c RGBA) Luminance() float64 {
	return 0.299*c.R + 0.587*c.G + 0.114*c.B
}

// ParseHex parses "#RGB", "#RRGGBB" or "#RRGGBBAA" (the leading '#' is
// optional).
func ParseHex(s string) (RGBA, error) {
	h := strings.TrimPrefix(s, "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) == 6 {
		h += "ff"
	}
	if len(h) != 8 {
		return RGBA{}, fmt.Errorf("pattern: bad hex color %q: %w", s, ErrRangeCheck)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return RGBA{}, fmt.Errorf("pattern: bad hex color %q: %w", s, ErrRangeCheck)
	}
	return RGBA{
		R: float64(v>>24&0xff) / 255,
		G: float64(v>>16&0xff) / 255,
		B: float64(v>>8&0xff) / 255,
		A: float64(v&0xff) / 255,
	}, nil
}

func unitByte(v float64) byte {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return byte(v*255 + 0.5)
}

// ColorIndex is a device pixel value in the device's native encoding.
type ColorIndex uint64

// NoColor means "leave the pixel alone". CopyMono uses it for the
// transparent side of a stencil.
const NoColor ColorIndex = ^ColorIndex(0)
