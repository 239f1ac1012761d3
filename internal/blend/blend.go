// Package blend implements the separable PDF blend modes on premultiplied
// 8-bit RGBA pixels.
//
// All values are premultiplied alpha in the range 0-255. The general
// formula for a separable mode B is
//
//	Cr = (1 - Sa)*Cb + (1 - Ba)*Cs + Sa*Ba*B(Cs/Sa, Cb/Ba)
//
// References:
//   - W3C Compositing and Blending Level 1: https://www.w3.org/TR/compositing-1/
//   - ISO 32000-1:2008, 11.3.5 Blend Mode
package blend

import "math"

// Mode is a separable blend mode. The order matches the pattern
// package's BlendMode.
type Mode uint8

const (
	Normal Mode = iota
	Multiply
	Screen
	Overlay
	Darken
	Lighten
	ColorDodge
	ColorBurn
	HardLight
	SoftLight
	Difference
	Exclusion
)

var modeNames = [...]string{
	Normal:     "Normal",
	Multiply:   "Multiply",
	Screen:     "Screen",
	Overlay:    "Overlay",
	Darken:     "Darken",
	Lighten:    "Lighten",
	ColorDodge: "ColorDodge",
	ColorBurn:  "ColorBurn",
	HardLight:  "HardLight",
	SoftLight:  "SoftLight",
	Difference: "Difference",
	Exclusion:  "Exclusion",
}

// String returns the PDF name of the mode.
func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "Unknown"
}

// ParseMode returns the mode with the given PDF name.
func ParseMode(name string) (Mode, bool) {
	for i, n := range modeNames {
		if n == name {
			return Mode(i), true
		}
	}
	return Normal, false
}

// Func composites one premultiplied source pixel onto a premultiplied
// backdrop pixel.
type Func func(sr, sg, sb, sa, dr, dg, db, da byte) (r, g, b, a byte)

// Lookup returns the compositing function for m. Unknown modes composite
// as Normal.
func Lookup(m Mode) Func {
	switch m {
	case Multiply:
		return separable(mulDiv255)
	case Screen:
		return separable(screen)
	case Overlay:
		return separable(func(s, d byte) byte { return hardLight(d, s) })
	case Darken:
		return separable(func(s, d byte) byte { return min(s, d) })
	case Lighten:
		return separable(func(s, d byte) byte { return max(s, d) })
	case ColorDodge:
		return separable(colorDodge)
	case ColorBurn:
		return separable(colorBurn)
	case HardLight:
		return separable(hardLight)
	case SoftLight:
		return separable(softLight)
	case Difference:
		return separable(func(s, d byte) byte {
			if s > d {
				return s - d
			}
			return d - s
		})
	case Exclusion:
		return separable(func(s, d byte) byte {
			return byte(int(s) + int(d) - 2*int(mulDiv255(s, d)))
		})
	default:
		return sourceOver
	}
}

// sourceOver is Normal: S + D*(1 - Sa).
func sourceOver(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	inv := 255 - sa
	return addClamp(sr, mulDiv255(dr, inv)),
		addClamp(sg, mulDiv255(dg, inv)),
		addClamp(sb, mulDiv255(db, inv)),
		addClamp(sa, mulDiv255(da, inv))
}

// separable lifts a per-channel function on unmultiplied values to a
// premultiplied compositing function.
func separable(fn func(s, d byte) byte) Func {
	return func(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
		if sa == 0 {
			return dr, dg, db, da
		}
		if da == 0 {
			return sr, sg, sb, sa
		}
		invSa, invDa := 255-sa, 255-da
		saDa := mulDiv255(sa, da)
		ch := func(s, d byte) byte {
			mixed := fn(unmultiply(s, sa), unmultiply(d, da))
			return addClamp(addClamp(mulDiv255(d, invSa), mulDiv255(s, invDa)), mulDiv255(saDa, mixed))
		}
		return ch(sr, dr), ch(sg, dg), ch(sb, db), addClamp(sa, mulDiv255(da, invSa))
	}
}

func screen(s, d byte) byte {
	return 255 - mulDiv255(255-s, 255-d)
}

func hardLight(s, d byte) byte {
	if s <= 127 {
		return byte(min(255, 2*int(mulDiv255(s, d))))
	}
	return screen(byte(min(255, 2*int(s)-255)), d)
}

func colorDodge(s, d byte) byte {
	if d == 0 {
		return 0
	}
	if s == 255 {
		return 255
	}
	return byte(min(255, int(d)*255/int(255-s)))
}

func colorBurn(s, d byte) byte {
	if d == 255 {
		return 255
	}
	if s == 0 {
		return 0
	}
	return 255 - byte(min(255, int(255-d)*255/int(s)))
}

func softLight(s, d byte) byte {
	sf, df := float64(s)/255, float64(d)/255
	var r float64
	if sf <= 0.5 {
		r = df - (1-2*sf)*df*(1-df)
	} else {
		var dx float64
		if df <= 0.25 {
			dx = ((16*df-12)*df + 4) * df
		} else {
			dx = math.Sqrt(df)
		}
		r = df + (2*sf-1)*(dx-df)
	}
	return byte(math.Round(math.Max(0, math.Min(1, r)) * 255))
}

// Opacity scales a premultiplied pixel by an 8-bit opacity.
func Opacity(r, g, b, a, op byte) (byte, byte, byte, byte) {
	if op == 255 {
		return r, g, b, a
	}
	return mulDiv255(r, op), mulDiv255(g, op), mulDiv255(b, op), mulDiv255(a, op)
}

// Premultiply converts straight 8-bit components.
func Premultiply(r, g, b, a byte) (byte, byte, byte, byte) {
	return mulDiv255(r, a), mulDiv255(g, a), mulDiv255(b, a), a
}

// Unpremultiply converts premultiplied 8-bit components back to straight.
func Unpremultiply(r, g, b, a byte) (byte, byte, byte, byte) {
	return unmultiply(r, a), unmultiply(g, a), unmultiply(b, a), a
}
