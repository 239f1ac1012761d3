package pattern

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Polarity tells whether component values add light or ink.
type Polarity uint8

const (
	// PolarityAdditive devices treat 0 as black (RGB, gray).
	PolarityAdditive Polarity = iota
	// PolaritySubtractive devices treat 0 as white (CMYK, ink gray).
	PolaritySubtractive
)

// ColorInfo describes how a device encodes pixels.
//
// Multi-component formats store one byte per component. A subtractive
// four-component device stores C, M, Y, K in the byte slots of its
// Format (RGBA8Unorm storage carries CMYK).
type ColorInfo struct {
	// Format is the storage format. It is TextureFormatUndefined for
	// 1-bit devices.
	Format        gputypes.TextureFormat
	Depth         int
	NumComponents int
	Polarity      Polarity
}

// Common encodings.
var (
	MonoColorInfo = ColorInfo{Depth: 1, NumComponents: 1}
	GrayColorInfo = ColorInfo{Format: gputypes.TextureFormatR8Unorm, Depth: 8, NumComponents: 1}
	RGBAColorInfo = ColorInfo{Format: gputypes.TextureFormatRGBA8Unorm, Depth: 32, NumComponents: 4}
	BGRAColorInfo = ColorInfo{Format: gputypes.TextureFormatBGRA8Unorm, Depth: 32, NumComponents: 4}
	CMYKColorInfo = ColorInfo{Format: gputypes.TextureFormatRGBA8Unorm, Depth: 32, NumComponents: 4, Polarity: PolaritySubtractive}
)

// NewColorInfo returns the encoding for a storage format and polarity.
// Supported formats are R8Unorm, RGBA8Unorm and BGRA8Unorm.
func NewColorInfo(format gputypes.TextureFormat, pol Polarity) (ColorInfo, error) {
	var ci ColorInfo
	switch format {
	case gputypes.TextureFormatR8Unorm:
		ci = GrayColorInfo
	case gputypes.TextureFormatRGBA8Unorm:
		ci = RGBAColorInfo
	case gputypes.TextureFormatBGRA8Unorm:
		ci = BGRAColorInfo
	default:
		return ColorInfo{}, fmt.Errorf("pattern: unsupported pixel format %v: %w", format, ErrRangeCheck)
	}
	ci.Polarity = pol
	return ci, nil
}

// BytesPerPixel returns depth/8, or 0 for sub-byte depths.
func (ci ColorInfo) BytesPerPixel() int {
	return ci.Depth / 8
}

// Raster returns the bytes per row for width pixels at ci.Depth.
func (ci ColorInfo) Raster(width int) int {
	return (width*ci.Depth + 7) / 8
}

// White returns the index that paints white.
func (ci ColorInfo) White() ColorIndex {
	return ci.Encode(White)
}

// Encode maps c to the device encoding. Alpha is carried only by
// additive four-component formats.
func (ci ColorInfo) Encode(c RGBA) ColorIndex {
	if ci.Depth == 1 {
		on := c.Luminance() >= 0.5
		if ci.Polarity == PolaritySubtractive {
			on = !on
		}
		if on {
			return 1
		}
		return 0
	}
	r, g, b, a := c.Bytes()
	if ci.NumComponents == 1 {
		v := unitByte(c.Luminance())
		if ci.Polarity == PolaritySubtractive {
			v = 255 - v
		}
		return ColorIndex(v)
	}
	if ci.Polarity == PolaritySubtractive {
		k := min(255-r, 255-g, 255-b)
		return pack4(255-r-k, 255-g-k, 255-b-k, k)
	}
	if ci.Format == gputypes.TextureFormatBGRA8Unorm {
		return pack4(b, g, r, a)
	}
	return pack4(r, g, b, a)
}

// Decode maps a device index back to a color.
func (ci ColorInfo) Decode(ix ColorIndex) RGBA {
	if ci.Depth == 1 {
		on := ix&1 != 0
		if ci.Polarity == PolaritySubtractive {
			on = !on
		}
		if on {
			return White
		}
		return Black
	}
	if ci.NumComponents == 1 {
		v := byte(ix)
		if ci.Polarity == PolaritySubtractive {
			v = 255 - v
		}
		return Gray(float64(v) / 255)
	}
	c0, c1, c2, c3 := unpack4(ix)
	switch {
	case ci.Polarity == PolaritySubtractive:
		return RGB(
			float64(255-min(255, int(c0)+int(c3)))/255,
			float64(255-min(255, int(c1)+int(c3)))/255,
			float64(255-min(255, int(c2)+int(c3)))/255,
		)
	case ci.Format == gputypes.TextureFormatBGRA8Unorm:
		c0, c2 = c2, c0
	}
	return RGBA{R: float64(c0) / 255, G: float64(c1) / 255, B: float64(c2) / 255, A: float64(c3) / 255}
}

func pack4(a, b, c, d byte) ColorIndex {
	return ColorIndex(a)<<24 | ColorIndex(b)<<16 | ColorIndex(c)<<8 | ColorIndex(d)
}

func unpack4(ix ColorIndex) (a, b, c, d byte) {
	return byte(ix >> 24), byte(ix >> 16), byte(ix >> 8), byte(ix)
}
