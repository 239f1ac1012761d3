package pattern

import (
	"image"
	"testing"
)

// openDevice returns an open memory device closed at the end of the test.
func openDevice(t *testing.T, w, h int, ci ColorInfo, alloc Allocator) *MemDevice {
	t.Helper()
	d := NewMemDevice(w, h, ci, false, alloc)
	if err := d.Open(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

// cellInstance returns an instance of a size by size cell repeating every
// step pixels, made by hand so tests control every field.
func cellInstance(pt PaintType, trans bool, size, step int) *Instance {
	return &Instance{
		ID: NextID(),
		Template: Template{
			PaintType:        pt,
			TilingType:       TilingConstant,
			BBox:             Rect{Max: Pt(float64(size), float64(size))},
			XStep:            float64(step),
			YStep:            float64(step),
			UsesTransparency: trans,
		},
		StepMatrix: Matrix{A: float64(step), E: float64(step)},
		Size:       image.Pt(size, size),
		IsSimple:   true,
		UsesMask:   !trans,
	}
}

// counter counts paint procedure calls.
type counter struct{ n int }

// fillCell returns a paint procedure filling rectangle (x, y, w, h) of
// the cell with c.
func (c *counter) fillCell(col RGBA, x, y, w, h float64) PaintProc {
	return func(_ *PatternColor, gs *GState) error {
		c.n++
		gs.SetColor(col)
		return gs.FillRect(x, y, w, h)
	}
}

// nativeDevice paints patterns itself.
type nativeDevice struct {
	*MemDevice
	accept  bool
	streams []ID
}

func (d *nativeDevice) SupportsPatternStream(*Instance) bool { return d.accept }

func (d *nativeDevice) FillPatternStream(inst *Instance, x, y int, mask *StripBitmap) error {
	d.streams = append(d.streams, inst.ID)
	return nil
}

var _ NativePatternDevice = (*nativeDevice)(nil)

// pixelsOf returns the pixels of row y of dev from x0 to x1.
func pixelsOf(dev *MemDevice, y, x0, x1 int) []ColorIndex {
	out := make([]ColorIndex, 0, x1-x0)
	for x := x0; x < x1; x++ {
		out = append(out, dev.Pixel(x, y))
	}
	return out
}
