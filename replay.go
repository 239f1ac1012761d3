package pattern

import (
	"errors"
	"fmt"
	"math"
)

// replayTile paints the tile installed in dc wherever cov is set.
func replayTile(dev Device, cov *StripBitmap, x, y int, dc *DeviceColor) error {
	t := dc.Tile
	if !dc.tileValid() {
		return fmt.Errorf("pattern: fill with evicted tile %d: %w", dc.TileID, ErrRangeCheck)
	}
	switch {
	case t.IsDummy:
		np, ok := dev.(NativePatternDevice)
		if !ok || dc.Pattern == nil {
			return fmt.Errorf("pattern: %s device cannot paint pattern natively: %w", dev.Info().Name, ErrUnsupported)
		}
		return np.FillPatternStream(dc.Pattern.Pattern, x, y, cov)
	case t.Commands != nil:
		return replayCommands(dev, cov, x, y, dc)
	}
	r := newTileReplayer(dev, t, dc)
	return r.fill(cov, x, y)
}

// replayCommands renders a command-list tile into a temporary raster
// tile and replays that.
func replayCommands(dev Device, cov *StripBitmap, x, y int, dc *DeviceColor) error {
	t := dc.Tile
	if dc.Pattern == nil || dc.Pattern.Pattern == nil {
		return fmt.Errorf("pattern: command-list tile %d without pattern: %w", t.ID, ErrFatal)
	}
	target := NewDeviceRef(dev, false)
	alloc := HeapAllocator{}
	acc := NewRasterAccumulator(dc.Pattern.Pattern, target, alloc)
	if err := target.Release(); err != nil {
		return err
	}
	if err := acc.Open(); err != nil {
		return errors.Join(err, acc.Close())
	}
	if err := acc.erase(); err != nil {
		return errors.Join(err, acc.Close())
	}
	if err := t.Commands.Playback(acc); err != nil {
		return errors.Join(err, acc.Close())
	}
	p, err := acc.capture()
	if err != nil {
		return errors.Join(err, acc.Close())
	}
	defer p.free(alloc)
	if err := acc.Close(); err != nil {
		return err
	}
	mat := *t
	mat.Commands = nil
	mat.Bits, mat.Mask, mat.Trans = p.Bits, p.Mask, p.Trans
	r := newTileReplayer(dev, &mat, dc)
	return r.fill(cov, x, y)
}

// tileReplayer maps device pixels onto tile pixels and paints runs of
// consecutive tile pixels.
type tileReplayer struct {
	dev    Device
	t      *Tile
	masked bool
	pure   ColorIndex

	fast   bool
	sx, sy int
	inv    Matrix
	// Range of cell offsets, in step units, a tile covers.
	iLo, iHi, jLo, jHi float64

	run struct {
		px, py, tx, ty, n int
	}
}

func newTileReplayer(dev Device, t *Tile, dc *DeviceColor) *tileReplayer {
	r := &tileReplayer{dev: dev, t: t, masked: dc.Type == ColorMaskedPure, pure: dc.Pure}
	sm := t.StepMatrix
	w, h := float64(t.Size.X), float64(t.Size.Y)
	if t.IsSimple && math.Abs(sm.A) >= w && math.Abs(sm.E) >= h {
		r.fast = true
		r.sx, r.sy = int(math.Abs(sm.A)), int(math.Abs(sm.E))
		return r
	}
	r.inv, _ = Matrix{A: sm.A, B: sm.B, D: sm.D, E: sm.E}.Invert()
	r.iLo, r.jLo = math.Inf(1), math.Inf(1)
	r.iHi, r.jHi = math.Inf(-1), math.Inf(-1)
	for _, c := range [4]Point{{0, 0}, {w, 0}, {0, h}, {w, h}} {
		u := r.inv.TransformVector(c)
		r.iLo, r.iHi = math.Min(r.iLo, u.X), math.Max(r.iHi, u.X)
		r.jLo, r.jHi = math.Min(r.jLo, u.Y), math.Max(r.jHi, u.Y)
	}
	return r
}

// covered reports whether tile pixel (tx, ty) is painted.
func (r *tileReplayer) covered(tx, ty int) bool {
	t := r.t
	if tx < 0 || ty < 0 || tx >= t.Size.X || ty >= t.Size.Y {
		return false
	}
	switch {
	case t.Mask != nil:
		return t.Mask.Bit(tx, ty)
	case t.Trans != nil:
		_, _, _, a := t.Trans.At(tx, ty)
		if r.masked {
			return a >= coverageThreshold
		}
		return a != 0
	}
	return true
}

// locate returns the tile pixel that device pixel (px, py) shows. Where
// tiles overlap, the one with the highest cell indices wins.
func (r *tileReplayer) locate(px, py int) (tx, ty int, ok bool) {
	sm := r.t.StepMatrix
	if r.fast {
		tx = floorMod(px-int(sm.C), r.sx)
		ty = floorMod(py-int(sm.F), r.sy)
		return tx, ty, r.covered(tx, ty)
	}
	c := Pt(float64(px)+0.5, float64(py)+0.5)
	u := r.inv.TransformVector(c.Sub(Pt(sm.C, sm.F)))
	for i := math.Floor(u.X - r.iLo); i >= math.Ceil(u.X-r.iHi)-1; i-- {
		for j := math.Floor(u.Y - r.jLo); j >= math.Ceil(u.Y-r.jHi)-1; j-- {
			origin := Pt(sm.A*i+sm.B*j+sm.C, sm.D*i+sm.E*j+sm.F)
			local := c.Sub(origin)
			tx, ty = int(math.Floor(local.X)), int(math.Floor(local.Y))
			if r.covered(tx, ty) {
				return tx, ty, true
			}
		}
	}
	return 0, 0, false
}

func (r *tileReplayer) fill(cov *StripBitmap, x0, y0 int) error {
	info := r.dev.Info()
	for j := range cov.Size.Y {
		py := y0 + j
		if py < 0 || py >= info.Height {
			continue
		}
		for i := range cov.Size.X {
			px := x0 + i
			if px < 0 || px >= info.Width || !cov.Bit(i, j) {
				continue
			}
			tx, ty, ok := r.locate(px, py)
			if !ok {
				continue
			}
			if err := r.extend(px, py, tx, ty); err != nil {
				return err
			}
		}
		if err := r.flush(); err != nil {
			return err
		}
	}
	return nil
}

// extend adds a pixel to the current run, flushing it first when the
// pixel does not continue it.
func (r *tileReplayer) extend(px, py, tx, ty int) error {
	run := &r.run
	if run.n > 0 && px == run.px+run.n && py == run.py && tx == run.tx+run.n && ty == run.ty {
		run.n++
		return nil
	}
	if err := r.flush(); err != nil {
		return err
	}
	run.px, run.py, run.tx, run.ty, run.n = px, py, tx, ty, 1
	return nil
}

func (r *tileReplayer) flush() error {
	run := r.run
	r.run.n = 0
	if run.n == 0 {
		return nil
	}
	t := r.t
	switch {
	case r.masked:
		return r.dev.FillRectangle(run.px, run.py, run.n, 1, r.pure)
	case t.Trans != nil:
		return compositeRow(r.dev, t.Trans, t.BlendMode, run.px-run.tx, run.ty, run.py, run.tx, run.tx+run.n)
	case t.Bits != nil:
		b := t.Bits
		row := b.Data[run.ty*b.Raster:]
		if b.NumPlanes > 1 {
			return r.dev.CopyPlanes(row, run.tx, b.Raster, run.px, run.py, run.n, 1, b.Size.Y)
		}
		return r.dev.CopyColor(row, run.tx, b.Raster, run.px, run.py, run.n, 1)
	}
	return nil
}

func floorMod(a, m int) int {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}
