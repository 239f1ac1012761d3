package pattern

import (
	"fmt"
	"image"
	"image/draw"

	"golang.org/x/image/vector"
)

// coverageThreshold is the antialiased coverage at which a pixel counts
// as inside the path.
const coverageThreshold = 128

// FillPathDefault fills p, transformed by ctm, with dc on dev using the
// nonzero winding rule. Pixels are inside when at least half covered.
// Pattern colors replay the tile installed in dc.
func FillPathDefault(dev Device, p *Path, ctm Matrix, dc *DeviceColor) error {
	switch dc.Type {
	case ColorNullPattern:
		return nil
	case ColorUnset:
		return fmt.Errorf("pattern: fill with unset color: %w", ErrRangeCheck)
	}
	info := dev.Info()
	cov, origin := rasterizePath(p, ctm, info.Bounds())
	if cov == nil {
		return nil
	}
	return FillCoverage(dev, cov, origin.X, origin.Y, dc)
}

// rasterizePath returns the 1-bit coverage of p within clip and the
// device position of its top-left pixel. It returns nil when nothing is
// covered.
func rasterizePath(p *Path, ctm Matrix, clip image.Rectangle) (*StripBitmap, image.Point) {
	if p.Empty() {
		return nil, image.Point{}
	}
	dp := p.Transform(ctm)
	bounds := dp.Bounds().Pixels().Intersect(clip)
	if bounds.Empty() {
		return nil, image.Point{}
	}
	w, h := bounds.Dx(), bounds.Dy()
	ox, oy := float32(bounds.Min.X), float32(bounds.Min.Y)

	r := vector.NewRasterizer(w, h)
	r.DrawOp = draw.Src
	open := false
	for _, el := range dp.Elements() {
		switch e := el.(type) {
		case MoveTo:
			if open {
				r.ClosePath()
			}
			r.MoveTo(float32(e.Point.X)-ox, float32(e.Point.Y)-oy)
			open = true
		case LineTo:
			r.LineTo(float32(e.Point.X)-ox, float32(e.Point.Y)-oy)
		case QuadTo:
			r.QuadTo(
				float32(e.Control.X)-ox, float32(e.Control.Y)-oy,
				float32(e.Point.X)-ox, float32(e.Point.Y)-oy)
		case CubeTo:
			r.CubeTo(
				float32(e.Control1.X)-ox, float32(e.Control1.Y)-oy,
				float32(e.Control2.X)-ox, float32(e.Control2.Y)-oy,
				float32(e.Point.X)-ox, float32(e.Point.Y)-oy)
		case ClosePath:
			r.ClosePath()
			open = false
		}
	}
	if open {
		r.ClosePath()
	}
	alpha := image.NewAlpha(image.Rect(0, 0, w, h))
	r.Draw(alpha, alpha.Bounds(), image.Opaque, image.Point{})

	cov := &StripBitmap{
		Raster:    MonoColorInfo.Raster(w),
		Size:      image.Pt(w, h),
		NumPlanes: 1,
		Depth:     1,
	}
	cov.Data = make([]byte, cov.Raster*h)
	hit := false
	for y := range h {
		row := alpha.Pix[y*alpha.Stride:]
		out := cov.Data[y*cov.Raster:]
		for x := range w {
			if row[x] >= coverageThreshold {
				setMonoBit(out, x, true)
				hit = true
			}
		}
	}
	if !hit {
		return nil, image.Point{}
	}
	return cov, bounds.Min
}

// FillCoverage paints dc wherever cov is set; bit (0, 0) of cov is device
// pixel (x, y).
func FillCoverage(dev Device, cov *StripBitmap, x, y int, dc *DeviceColor) error {
	switch dc.Type {
	case ColorNullPattern:
		return nil
	case ColorPure:
		return dev.CopyMono(cov.Data, 0, cov.Raster, x, y, cov.Size.X, cov.Size.Y, NoColor, dc.Pure)
	case ColorPattern, ColorMaskedPure:
		return replayTile(dev, cov, x, y, dc)
	}
	return fmt.Errorf("pattern: fill with unset color: %w", ErrRangeCheck)
}
