package clist

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/math/fixed"

	"github.com/gogpu/pattern"
)

// Name is the deferred writer name the package registers.
const Name = pattern.DefaultDeferredWriter

func init() {
	pattern.RegisterDeferredWriter(Name, func(target pattern.Device, scratch []byte, band pattern.BandParams) (pattern.DeferredWriter, error) {
		return NewWriter(target, scratch, band)
	})
}

// Writer is a device that records operations into a command list.
// Commands are encoded into the scratch buffer first and spill into
// buffers from band.Alloc once it is full. A refused spill fails the
// operation with pattern.ErrOutOfMemory.
//
// Writer is not safe for concurrent use.
type Writer struct {
	pattern.DeviceBase

	band    pattern.BandParams
	alloc   pattern.Allocator
	buf     []byte
	scratch int
	spilled bool
	bands   []int
	ncmds   int
	open    bool
	err     error
	list    *List
}

// Upper bounds of the fixed part of a record.
const (
	maxRectLen   = 4 * binary.MaxVarintLen64
	maxHeaderLen = 1 + maxRectLen + 3*binary.MaxVarintLen64
)

// NewWriter returns an unopened writer recording an area of band.Width
// by band.Height pixels in target's color encoding.
func NewWriter(target pattern.Device, scratch []byte, band pattern.BandParams) (*Writer, error) {
	if band.Width < 0 || band.Height < 0 {
		return nil, fmt.Errorf("clist: band %dx%d: %w", band.Width, band.Height, pattern.ErrRangeCheck)
	}
	info := target.Info()
	info.Name = "clist"
	info.Width, info.Height = band.Width, band.Height
	info.Planar = false
	if band.BandHeight <= 0 || band.BandHeight > band.Height {
		band.BandHeight = max(band.Height, 1)
	}
	nbands := (band.Height + band.BandHeight - 1) / band.BandHeight
	alloc := band.Alloc
	if alloc == nil {
		alloc = pattern.HeapAllocator{}
	}
	return &Writer{
		DeviceBase: pattern.DeviceBase{DeviceInfo: info},
		band:       band,
		alloc:      alloc,
		buf:        scratch[:0],
		scratch:    cap(scratch),
		bands:      make([]int, nbands),
	}, nil
}

// Open implements pattern.Device.
func (w *Writer) Open() error {
	w.open = true
	return nil
}

// Close implements pattern.Device. It frees the spill buffer. A finished
// list handed out by Commands is not affected.
func (w *Writer) Close() error {
	w.open = false
	w.freeSpill()
	w.buf = nil
	return nil
}

// Spilled reports whether the commands outgrew the scratch buffer.
func (w *Writer) Spilled() bool { return len(w.buf) > w.scratch }

func (w *Writer) freeSpill() {
	if w.spilled {
		w.alloc.Free(w.buf, "clist spill")
		w.spilled = false
	}
}

// reserve makes room for n more bytes, moving the commands into a larger
// buffer from the allocator when needed. A failure sticks: later
// operations and Finalize report it.
func (w *Writer) reserve(n int) error {
	if w.err != nil {
		return w.err
	}
	if len(w.buf)+n <= cap(w.buf) {
		return nil
	}
	size := max(2*cap(w.buf), len(w.buf)+n)
	b, err := w.alloc.Alloc(size, "clist spill")
	if err != nil {
		w.err = fmt.Errorf("clist: grow to %d bytes: %w", size, err)
		return w.err
	}
	b = b[:copy(b, w.buf)]
	w.freeSpill()
	w.buf, w.spilled = b, true
	return nil
}

// Len returns the bytes recorded so far.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) check() error {
	if !w.open {
		return fmt.Errorf("clist: write to closed writer: %w", pattern.ErrRangeCheck)
	}
	return w.err
}

// clip intersects a rectangle with the recorded area.
func (w *Writer) clip(x, y, width, height int) (image.Rectangle, image.Point) {
	r := image.Rect(x, y, x+width, y+height)
	c := r.Intersect(w.DeviceInfo.Bounds())
	return c, c.Min.Sub(r.Min)
}

func (w *Writer) op(op Op) {
	w.buf = append(w.buf, byte(op))
	w.ncmds++
}

func (w *Writer) rect(r image.Rectangle) {
	w.buf = binary.AppendVarint(w.buf, int64(r.Min.X))
	w.buf = binary.AppendVarint(w.buf, int64(r.Min.Y))
	w.buf = binary.AppendUvarint(w.buf, uint64(r.Dx()))
	w.buf = binary.AppendUvarint(w.buf, uint64(r.Dy()))
	bh := w.band.BandHeight
	for b := r.Min.Y / bh; b <= (r.Max.Y-1)/bh && b < len(w.bands); b++ {
		w.bands[b]++
	}
}

func (w *Writer) uvarint(v uint64) {
	w.buf = binary.AppendUvarint(w.buf, v)
}

func (w *Writer) blend(alpha float64, mode pattern.BlendMode) {
	w.uvarint(math.Float64bits(alpha))
	w.buf = append(w.buf, byte(mode))
}

// FillRectangle implements pattern.Device.
func (w *Writer) FillRectangle(x, y, width, height int, c pattern.ColorIndex) error {
	if err := w.check(); err != nil {
		return err
	}
	r, _ := w.clip(x, y, width, height)
	if r.Empty() || c == pattern.NoColor {
		return nil
	}
	if err := w.reserve(maxHeaderLen); err != nil {
		return err
	}
	w.op(OpFillRect)
	w.rect(r)
	w.uvarint(uint64(c))
	return nil
}

// CopyMono implements pattern.Device.
func (w *Writer) CopyMono(data []byte, dataX, raster, x, y, width, height int, c0, c1 pattern.ColorIndex) error {
	if err := w.check(); err != nil {
		return err
	}
	if c0 == pattern.NoColor && c1 == pattern.NoColor {
		return nil
	}
	r, d := w.clip(x, y, width, height)
	if r.Empty() {
		return nil
	}
	if err := w.reserve(maxHeaderLen + (r.Dx()+7)/8*r.Dy()); err != nil {
		return err
	}
	w.op(OpCopyMono)
	w.rect(r)
	w.uvarint(uint64(c0))
	w.uvarint(uint64(c1))
	w.rowsBits(data, dataX+d.X, raster, d.Y, r.Dx(), r.Dy())
	return nil
}

// CopyColor implements pattern.Device.
func (w *Writer) CopyColor(data []byte, dataX, raster, x, y, width, height int) error {
	if err := w.check(); err != nil {
		return err
	}
	r, d := w.clip(x, y, width, height)
	if r.Empty() {
		return nil
	}
	depth := w.DeviceInfo.Color.Depth
	if err := w.reserve(maxHeaderLen + (r.Dx()*depth+7)/8*r.Dy()); err != nil {
		return err
	}
	w.op(OpCopyColor)
	w.rect(r)
	if depth == 1 {
		w.rowsBits(data, dataX+d.X, raster, d.Y, r.Dx(), r.Dy())
		return nil
	}
	n := depth / 8
	w.uvarint(uint64(r.Dx() * n))
	for j := range r.Dy() {
		row := data[(d.Y+j)*raster:]
		x0 := (dataX + d.X) * n
		w.buf = append(w.buf, row[x0:x0+r.Dx()*n]...)
	}
	return nil
}

// CopyPlanes implements pattern.Device. Planes are recorded 8 bits per
// component.
func (w *Writer) CopyPlanes(data []byte, dataX, raster, x, y, width, height, planeHeight int) error {
	if err := w.check(); err != nil {
		return err
	}
	n := w.DeviceInfo.Color.NumComponents
	if n == 1 {
		return w.CopyColor(data, dataX, raster, x, y, width, height)
	}
	r, d := w.clip(x, y, width, height)
	if r.Empty() {
		return nil
	}
	if err := w.reserve(maxHeaderLen + n*r.Dx()*r.Dy()); err != nil {
		return err
	}
	w.op(OpCopyPlanes)
	w.rect(r)
	w.uvarint(uint64(n))
	ps := planeHeight * raster
	for p := range n {
		for j := range r.Dy() {
			off := p*ps + (d.Y+j)*raster + dataX + d.X
			w.buf = append(w.buf, data[off:off+r.Dx()]...)
		}
	}
	return nil
}

// rowsBits appends a 1-bit rectangle repacked to start at bit 0.
func (w *Writer) rowsBits(data []byte, bitX, raster, y0, width, height int) {
	out := (width + 7) / 8
	w.uvarint(uint64(out))
	for j := range height {
		row := data[(y0+j)*raster:]
		start := len(w.buf)
		w.buf = append(w.buf, make([]byte, out)...)
		dst := w.buf[start:]
		for i := range width {
			sx := bitX + i
			if row[sx>>3]&(0x80>>(sx&7)) != 0 {
				dst[i>>3] |= 0x80 >> (i & 7)
			}
		}
	}
}

// FillRectangleHL implements pattern.Device.
func (w *Writer) FillRectangleHL(r fixed.Rectangle26_6, c pattern.ColorIndex) error {
	return pattern.FillRectangleHLDefault(w, r, c)
}

// SetBlendState implements pattern.BlendStateSetter.
func (w *Writer) SetBlendState(alpha float64, mode pattern.BlendMode) {
	if !w.open || w.reserve(maxHeaderLen) != nil {
		return
	}
	w.op(OpBlendState)
	w.blend(alpha, mode)
}

// PushCompositor implements pattern.CompositorSink.
func (w *Writer) PushCompositor() error {
	if err := w.check(); err != nil {
		return err
	}
	if err := w.reserve(1); err != nil {
		return err
	}
	w.op(OpPushCompositor)
	return nil
}

// PopCompositor implements pattern.CompositorSink.
func (w *Writer) PopCompositor() error {
	if err := w.check(); err != nil {
		return err
	}
	if err := w.reserve(1); err != nil {
		return err
	}
	w.op(OpPopCompositor)
	return nil
}

// BeginGroup implements pattern.GroupDevice.
func (w *Writer) BeginGroup(alpha float64, mode pattern.BlendMode) error {
	if err := w.check(); err != nil {
		return err
	}
	if err := w.reserve(maxHeaderLen); err != nil {
		return err
	}
	w.op(OpBeginGroup)
	w.blend(alpha, mode)
	return nil
}

// EndGroup implements pattern.GroupDevice.
func (w *Writer) EndGroup() error {
	if err := w.check(); err != nil {
		return err
	}
	if err := w.reserve(1); err != nil {
		return err
	}
	w.op(OpEndGroup)
	return nil
}

// Finalize copies the recorded commands into a finished List and returns
// its size. Further writes go to a fresh list.
func (w *Writer) Finalize() (int, error) {
	if err := w.check(); err != nil {
		return 0, err
	}
	data := make([]byte, len(w.buf))
	copy(data, w.buf)
	w.list = &List{
		data:   data,
		width:  w.band.Width,
		height: w.band.Height,
		procs:  w.band.BufProcs,
		bands:  w.bands,
		ncmds:  w.ncmds,
	}
	pattern.Logger().Debug("clist: finalize",
		"commands", w.ncmds, "bytes", len(data), "spilled", w.Spilled(), "bands", len(w.bands))
	w.buf = w.buf[:0]
	w.bands = make([]int, len(w.bands))
	w.ncmds = 0
	return len(data), nil
}

// Commands returns the list made by the last Finalize and hands it to
// the caller. It returns nil before Finalize.
func (w *Writer) Commands() pattern.DeferredCommands {
	if w.list == nil {
		return nil
	}
	l := w.list
	w.list = nil
	return l
}

// List returns the list made by the last Finalize, like Commands, as a
// *List.
func (w *Writer) List() *List {
	l := w.list
	w.list = nil
	return l
}

// Discard drops everything recorded, including a finished list not yet
// taken, and clears a failed growth.
func (w *Writer) Discard() error {
	w.buf = w.buf[:0]
	w.err = nil
	clear(w.bands)
	w.ncmds = 0
	w.list = nil
	return nil
}

var (
	_ pattern.DeferredWriter = (*Writer)(nil)
)
