package pattern

import (
	"errors"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/math/fixed"
)

// Strategy is how a pattern cell is accumulated.
type Strategy uint8

const (
	// StrategyRaster renders the cell into memory bitmaps.
	StrategyRaster Strategy = iota
	// StrategyDeferred records the cell as a command list.
	StrategyDeferred
	// StrategyDummy stores nothing: the device paints the pattern itself.
	StrategyDummy
)

func (s Strategy) String() string {
	switch s {
	case StrategyRaster:
		return "raster"
	case StrategyDeferred:
		return "deferred"
	case StrategyDummy:
		return "dummy"
	}
	return fmt.Sprintf("Strategy(%d)", uint8(s))
}

// SizeEstimate returns the bytes a raster tile of inst would take on a
// device described by info. Uncolored patterns count one bit per pixel.
// Transparency adds an alpha byte per pixel, and a tag byte on devices
// that encode tags.
func SizeEstimate(inst *Instance, info *DeviceInfo) int {
	w, h := inst.Size.X, inst.Size.Y
	if w <= 0 || h <= 0 {
		return 0
	}
	depth := info.Color.Depth
	if inst.Template.PaintType == PaintUncolored {
		depth = 1
	}
	var raster int64
	if inst.Template.UsesTransparency {
		tag := int64(0)
		if info.EncodesTags {
			tag = 1
		}
		raster = int64(w) * (int64(depth/8) + 1 + tag)
	} else {
		raster = (int64(w)*int64(depth) + 7) / 8
	}
	if raster > 0 && int64(h) > int64(maxEstimate)/raster {
		return maxEstimate
	}
	return int(min(raster*int64(h), int64(maxEstimate)))
}

// SelectStrategy picks the accumulation strategy for inst on target,
// given the size estimate. A device that paints the pattern natively
// wins; otherwise the tile is rasterized when forced, when it fits the
// device's limit and no command list was requested, or when the pattern
// is uncolored.
func SelectStrategy(inst *Instance, target Device, estimate int, forceRaster bool) Strategy {
	if np, ok := target.(NativePatternDevice); ok && np.SupportsPatternStream(inst) {
		return StrategyDummy
	}
	info := target.Info()
	if forceRaster ||
		(estimate < info.PatternBitmapLimit() && !inst.requestsDeferred) ||
		inst.Template.PaintType != PaintColored {
		return StrategyRaster
	}
	return StrategyDeferred
}

// accumulator is a device a pattern cell is painted into.
type accumulator interface {
	Device
	capture() (*Payload, error)
	abort() error
}

// RasterAccumulator renders a pattern cell into memory. Every drawing
// operation goes to the color buffer, when there is one, and marks the
// covered pixels in the mask, when there is one.
//
// Colored patterns get a color buffer in the target's encoding.
// Uncolored patterns only get the mask. Transparency patterns get
// neither: the compositor in front of the accumulator holds the result.
type RasterAccumulator struct {
	inst   *Instance
	info   DeviceInfo
	target *DeviceRef
	alloc  Allocator

	mask  *MemDevice
	bits  *MemDevice
	trans *TransBuffer

	maskOff bool
	closed  bool
}

// NewRasterAccumulator returns an unopened accumulator for inst that
// keeps a reference to target until Close.
func NewRasterAccumulator(inst *Instance, target *DeviceRef, alloc Allocator) *RasterAccumulator {
	if alloc == nil {
		alloc = HeapAllocator{}
	}
	info := target.Device().Info()
	info.Name = "pattern accumulator"
	info.Width, info.Height = inst.Size.X, inst.Size.Y
	return &RasterAccumulator{inst: inst, info: info, target: target.Retain(), alloc: alloc}
}

// Info implements Device.
func (a *RasterAccumulator) Info() DeviceInfo { return a.info }

// Mask returns the coverage mask device, nil if the pattern has none.
func (a *RasterAccumulator) Mask() *MemDevice { return a.mask }

// Bits returns the color buffer device, nil if the pattern has none.
func (a *RasterAccumulator) Bits() *MemDevice { return a.bits }

// Open implements Device. On failure everything allocated so far is
// freed again.
func (a *RasterAccumulator) Open() error {
	if a.mask != nil || a.bits != nil {
		return nil
	}
	tmpl := &a.inst.Template
	w, h := a.info.Width, a.info.Height
	if a.inst.UsesMask && !tmpl.UsesTransparency {
		m := NewMonoDevice(w, h, a.alloc)
		if err := m.Open(); err != nil {
			return err
		}
		a.mask = m
	}
	if tmpl.UsesTransparency || tmpl.PaintType == PaintUncolored {
		return nil
	}
	b := NewMemDevice(w, h, a.info.Color, a.info.Planar, a.alloc)
	if err := b.Open(); err != nil {
		if a.mask != nil {
			a.mask.Close()
			a.mask = nil
		}
		return err
	}
	a.bits = b
	return nil
}

// Close implements Device. It releases the target and frees whatever
// capture did not take.
func (a *RasterAccumulator) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	if a.mask != nil {
		a.mask.Close()
		a.mask = nil
	}
	if a.bits != nil {
		a.bits.Close()
		a.bits = nil
	}
	if a.trans != nil {
		a.alloc.Free(a.trans.Data, "tile trans")
		a.trans = nil
	}
	return a.target.Release()
}

// markRect records coverage of a rectangle.
func (a *RasterAccumulator) markRect(x, y, w, h int) error {
	if a.mask == nil || a.maskOff {
		return nil
	}
	return a.mask.FillRectangle(x, y, w, h, 1)
}

// FillRectangle implements Device.
func (a *RasterAccumulator) FillRectangle(x, y, w, h int, c ColorIndex) error {
	if c == NoColor {
		return nil
	}
	if a.bits != nil {
		if err := a.bits.FillRectangle(x, y, w, h, c); err != nil {
			return err
		}
	}
	return a.markRect(x, y, w, h)
}

// CopyMono implements Device. Only pixels painted with a real color are
// marked covered.
func (a *RasterAccumulator) CopyMono(data []byte, dataX, raster, x, y, w, h int, c0, c1 ColorIndex) error {
	if c0 == NoColor && c1 == NoColor {
		return nil
	}
	if a.bits != nil {
		if err := a.bits.CopyMono(data, dataX, raster, x, y, w, h, c0, c1); err != nil {
			return err
		}
	}
	if a.mask == nil || a.maskOff {
		return nil
	}
	m0, m1 := ColorIndex(NoColor), ColorIndex(NoColor)
	if c0 != NoColor {
		m0 = 1
	}
	if c1 != NoColor {
		m1 = 1
	}
	return a.mask.CopyMono(data, dataX, raster, x, y, w, h, m0, m1)
}

// CopyColor implements Device.
func (a *RasterAccumulator) CopyColor(data []byte, dataX, raster, x, y, w, h int) error {
	if a.bits != nil {
		if err := a.bits.CopyColor(data, dataX, raster, x, y, w, h); err != nil {
			return err
		}
	}
	return a.markRect(x, y, w, h)
}

// CopyPlanes implements Device.
func (a *RasterAccumulator) CopyPlanes(data []byte, dataX, raster, x, y, w, h, planeHeight int) error {
	if a.bits != nil {
		if err := a.bits.CopyPlanes(data, dataX, raster, x, y, w, h, planeHeight); err != nil {
			return err
		}
	}
	return a.markRect(x, y, w, h)
}

// FillRectangleHL implements Device.
func (a *RasterAccumulator) FillRectangleHL(r fixed.Rectangle26_6, c ColorIndex) error {
	return FillRectangleHLDefault(a, r, c)
}

// GetBitsRectangle implements Device. Pixels the mask marks uncovered
// read back blank: 0xff for additive encodings, 0 for subtractive ones.
func (a *RasterAccumulator) GetBitsRectangle(r image.Rectangle, p *GetBitsParams) error {
	if a.bits == nil {
		return fmt.Errorf("pattern: get bits from accumulator without color buffer: %w", ErrFatal)
	}
	if err := a.bits.GetBitsRectangle(r, p); err != nil {
		return err
	}
	if a.mask != nil {
		a.blankUnmasked(r, p)
	}
	return nil
}

func (a *RasterAccumulator) blankUnmasked(r image.Rectangle, p *GetBitsParams) {
	ci := a.info.Color
	blank := byte(0xff)
	if ci.Polarity == PolaritySubtractive {
		blank = 0
	}
	mraster := a.mask.Raster()
	mbits := a.mask.Bits()
	for j := range r.Dy() {
		mrow := mbits[(r.Min.Y+j)*mraster:]
		for i := range r.Dx() {
			if monoBit(mrow, r.Min.X+i) {
				continue
			}
			if p.Planar {
				for _, plane := range p.Data {
					plane[j*p.Raster+i] = blank
				}
				continue
			}
			if ci.Depth == 1 {
				writeChunky(p.Data[0], p.Raster, 1, i, j, ColorIndex(blank&1))
				continue
			}
			n := ci.Depth / 8
			row := p.Data[0][j*p.Raster:]
			for k := range n {
				row[i*n+k] = blank
			}
		}
	}
}

// ReceiveTransBuffer implements TransBufferReceiver: a transparency
// result replayed from a command list becomes the accumulator's. The
// data is copied; tb stays with the caller.
func (a *RasterAccumulator) ReceiveTransBuffer(tb *TransBuffer) error {
	b, err := a.alloc.Alloc(len(tb.Data), "tile trans")
	if err != nil {
		return err
	}
	copy(b, tb.Data)
	a.setTrans(&TransBuffer{
		Data:        b,
		Width:       tb.Width,
		Height:      tb.Height,
		RowStride:   tb.RowStride,
		PlaneStride: tb.PlaneStride,
		NumChannels: tb.NumChannels,
	})
	return nil
}

// setTrans takes ownership of tb, whose data must come from the
// accumulator's allocator.
func (a *RasterAccumulator) setTrans(tb *TransBuffer) {
	if a.trans != nil {
		a.alloc.Free(a.trans.Data, "tile trans")
	}
	a.trans = tb
}

// erase paints the color buffer white without marking coverage.
func (a *RasterAccumulator) erase() error {
	if a.bits == nil {
		return nil
	}
	a.maskOff = true
	defer func() { a.maskOff = false }()
	return a.FillRectangle(0, 0, a.info.Width, a.info.Height, a.info.Color.White())
}

// capture hands the accumulated buffers over to a payload. A mask that
// covers a tile with no gaps between repetitions is dropped.
func (a *RasterAccumulator) capture() (*Payload, error) {
	p := &Payload{Instance: a.inst, Depth: a.info.Color.Depth}
	if a.inst.Template.PaintType == PaintUncolored {
		p.Depth = 1
	}
	if a.mask != nil {
		m := &StripBitmap{
			Raster:    a.mask.Raster(),
			Size:      a.inst.Size,
			NumPlanes: 1,
			Depth:     1,
		}
		m.Data = a.mask.DetachBits()
		if a.maskRedundant(m) {
			a.alloc.Free(m.Data, "mem mono bits")
		} else {
			p.Mask = m
		}
		a.mask.Close()
		a.mask = nil
	}
	if a.bits != nil {
		b := &StripBitmap{
			Raster:    a.bits.Raster(),
			Size:      a.inst.Size,
			NumPlanes: a.bits.NumPlanes(),
			Depth:     a.info.Color.Depth,
		}
		b.Data = a.bits.DetachBits()
		p.Bits = b
		a.bits.Close()
		a.bits = nil
	}
	p.Trans, a.trans = a.trans, nil
	p.BitsUsed = payloadSize(p)
	return p, nil
}

func (a *RasterAccumulator) maskRedundant(m *StripBitmap) bool {
	if a.inst.Template.PaintType != PaintColored || !m.full() {
		return false
	}
	sm := a.inst.StepMatrix
	if !sm.IsOrthogonal() {
		return false
	}
	tx, ty := sm.A+sm.B, sm.D+sm.E
	return math.Abs(tx) <= float64(m.Size.X) && math.Abs(ty) <= float64(m.Size.Y)
}

func (a *RasterAccumulator) abort() error { return nil }

// newAccumulator builds the accumulator for strategy s.
func newAccumulator(s Strategy, inst *Instance, gs *GState, target *DeviceRef) (accumulator, error) {
	switch s {
	case StrategyRaster:
		return NewRasterAccumulator(inst, target, gs.Allocator()), nil
	case StrategyDeferred:
		return newDeferredAccumulator(inst, target, gs.Allocator(), gs.chain.cfg.deferredWriter), nil
	}
	return nil, errors.New("pattern: no accumulator for strategy " + s.String())
}

var (
	_ accumulator         = (*RasterAccumulator)(nil)
	_ accumulator         = (*deferredAccumulator)(nil)
	_ TransBufferReceiver = (*RasterAccumulator)(nil)
)
