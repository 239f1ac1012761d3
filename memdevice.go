// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pattern

import (
	"fmt"
	"image"

	"golang.org/x/image/math/fixed"
)

// MemDevice is an in-memory raster device. It stores pixels chunky (all
// components of a pixel together) or planar (one 8-bit plane per
// component) and supports depths 1, 8 and 32.
//
// The pixel buffer is drawn from an Allocator at Open and returned at
// Close, unless DetachBits handed it to someone else first.
//
// MemDevice is not safe for concurrent use.
type MemDevice struct {
	info   DeviceInfo
	alloc  Allocator
	planes int
	raster int
	base   []byte
}

// NewMemDevice returns an unopened memory device. A nil alloc uses the Go
// heap. Planar layout requires a multi-component 8-bit-per-component
// encoding; Open reports ErrRangeCheck otherwise.
func NewMemDevice(width, height int, ci ColorInfo, planar bool, alloc Allocator) *MemDevice {
	if alloc == nil {
		alloc = HeapAllocator{}
	}
	d := &MemDevice{
		info: DeviceInfo{
			Name:   "mem",
			Width:  width,
			Height: height,
			Color:  ci,
			Planar: planar,
		},
		alloc:  alloc,
		planes: 1,
	}
	if planar {
		d.planes = ci.NumComponents
		d.raster = width
	} else {
		d.raster = ci.Raster(width)
	}
	return d
}

// NewMonoDevice returns an unopened 1-bit device, as used for coverage
// masks.
func NewMonoDevice(width, height int, alloc Allocator) *MemDevice {
	d := NewMemDevice(width, height, MonoColorInfo, false, alloc)
	d.info.Name = "mem mono"
	return d
}

// SetMaxPatternBitmap sets the device's raster tile limit.
func (d *MemDevice) SetMaxPatternBitmap(n int) { d.info.MaxPatternBitmap = n }

// Info implements Device.
func (d *MemDevice) Info() DeviceInfo { return d.info }

// BitmapSize returns the number of bytes Open allocates.
func (d *MemDevice) BitmapSize() int {
	return d.raster * d.info.Height * d.planes
}

// Raster returns the bytes per row of one plane.
func (d *MemDevice) Raster() int { return d.raster }

// NumPlanes returns 1 for chunky devices and the component count for
// planar ones.
func (d *MemDevice) NumPlanes() int { return d.planes }

// Bits returns the pixel buffer, nil when closed or detached.
func (d *MemDevice) Bits() []byte { return d.base }

// IsOpen reports whether the device holds a pixel buffer.
func (d *MemDevice) IsOpen() bool { return d.base != nil }

// Open implements Device.
func (d *MemDevice) Open() error {
	if d.base != nil {
		return nil
	}
	ci := d.info.Color
	if d.info.Planar && (ci.NumComponents < 2 || ci.Depth != 8*ci.NumComponents) {
		return fmt.Errorf("pattern: planar %d-bit device: %w", ci.Depth, ErrRangeCheck)
	}
	if d.info.Width < 0 || d.info.Height < 0 {
		return fmt.Errorf("pattern: mem device %dx%d: %w", d.info.Width, d.info.Height, ErrRangeCheck)
	}
	b, err := d.alloc.Alloc(d.BitmapSize(), d.info.Name+" bits")
	if err != nil {
		return err
	}
	d.base = b
	return nil
}

// Close implements Device. It frees the pixel buffer unless it was
// detached.
func (d *MemDevice) Close() error {
	if d.base != nil {
		d.alloc.Free(d.base, d.info.Name+" bits")
		d.base = nil
	}
	return nil
}

// DetachBits transfers ownership of the pixel buffer to the caller. The
// device is left closed and Close will not free the buffer.
func (d *MemDevice) DetachBits() []byte {
	b := d.base
	d.base = nil
	return b
}

// Pixel returns the pixel at (x, y). It returns NoColor outside the
// device or when the device is closed.
func (d *MemDevice) Pixel(x, y int) ColorIndex {
	if d.base == nil || x < 0 || y < 0 || x >= d.info.Width || y >= d.info.Height {
		return NoColor
	}
	return d.pixel(x, y)
}

func (d *MemDevice) pixel(x, y int) ColorIndex {
	if d.planes == 1 {
		return readChunky(d.base, d.raster, d.info.Color.Depth, x, y)
	}
	var c ColorIndex
	ps := d.raster * d.info.Height
	for p := range d.planes {
		c = c<<8 | ColorIndex(d.base[p*ps+y*d.raster+x])
	}
	return c
}

func (d *MemDevice) setPixel(x, y int, c ColorIndex) {
	if d.planes == 1 {
		writeChunky(d.base, d.raster, d.info.Color.Depth, x, y, c)
		return
	}
	ps := d.raster * d.info.Height
	for p := range d.planes {
		shift := 8 * (d.planes - 1 - p)
		d.base[p*ps+y*d.raster+x] = byte(c >> shift)
	}
}

func (d *MemDevice) checkOpen() error {
	if d.base == nil && d.BitmapSize() > 0 {
		return fmt.Errorf("pattern: %s: device not open: %w", d.info.Name, ErrRangeCheck)
	}
	return nil
}

// FillRectangle implements Device.
func (d *MemDevice) FillRectangle(x, y, w, h int, c ColorIndex) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if c == NoColor {
		return nil
	}
	x, y, w, h, _, _ = clipRect(x, y, w, h, d.info.Width, d.info.Height)
	for j := y; j < y+h; j++ {
		for i := x; i < x+w; i++ {
			d.setPixel(i, j, c)
		}
	}
	return nil
}

// CopyMono implements Device.
func (d *MemDevice) CopyMono(data []byte, dataX, raster, x, y, w, h int, c0, c1 ColorIndex) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if c0 == NoColor && c1 == NoColor {
		return nil
	}
	x, y, w, h, dx, dy := clipRect(x, y, w, h, d.info.Width, d.info.Height)
	for j := range h {
		row := data[(dy+j)*raster:]
		for i := range w {
			c := c0
			if monoBit(row, dataX+dx+i) {
				c = c1
			}
			if c != NoColor {
				d.setPixel(x+i, y+j, c)
			}
		}
	}
	return nil
}

// CopyColor implements Device.
func (d *MemDevice) CopyColor(data []byte, dataX, raster, x, y, w, h int) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	depth := d.info.Color.Depth
	x, y, w, h, dx, dy := clipRect(x, y, w, h, d.info.Width, d.info.Height)
	for j := range h {
		for i := range w {
			d.setPixel(x+i, y+j, readChunky(data, raster, depth, dataX+dx+i, dy+j))
		}
	}
	return nil
}

// CopyPlanes implements Device. A chunky device combines the planes into
// pixels; a one-plane source is a chunky source.
func (d *MemDevice) CopyPlanes(data []byte, dataX, raster, x, y, w, h, planeHeight int) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	n := d.info.Color.NumComponents
	if n == 1 {
		return d.CopyColor(data, dataX, raster, x, y, w, h)
	}
	ps := planeHeight * raster
	x, y, w, h, dx, dy := clipRect(x, y, w, h, d.info.Width, d.info.Height)
	for j := range h {
		for i := range w {
			var c ColorIndex
			off := (dy+j)*raster + dataX + dx + i
			for p := range n {
				c = c<<8 | ColorIndex(data[p*ps+off])
			}
			d.setPixel(x+i, y+j, c)
		}
	}
	return nil
}

// FillRectangleHL implements Device.
func (d *MemDevice) FillRectangleHL(r fixed.Rectangle26_6, c ColorIndex) error {
	return FillRectangleHLDefault(d, r, c)
}

// GetBitsRectangle implements Device. Planar requests need an
// 8-bit-per-component encoding.
func (d *MemDevice) GetBitsRectangle(r image.Rectangle, p *GetBitsParams) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if !r.In(d.info.Bounds()) {
		return fmt.Errorf("pattern: get bits %v outside %v: %w", r, d.info.Bounds(), ErrRangeCheck)
	}
	ci := d.info.Color
	w, h := r.Dx(), r.Dy()
	if p.Planar {
		n := ci.NumComponents
		if n < 2 || ci.Depth != 8*n {
			return fmt.Errorf("pattern: planar read of %d-bit device: %w", ci.Depth, ErrUnsupported)
		}
		p.Raster = w
		p.Data = make([][]byte, n)
		for pl := range n {
			p.Data[pl] = make([]byte, w*h)
		}
		for j := range h {
			for i := range w {
				c := d.pixel(r.Min.X+i, r.Min.Y+j)
				for pl := range n {
					p.Data[pl][j*w+i] = byte(c >> (8 * (n - 1 - pl)))
				}
			}
		}
		return nil
	}
	p.Raster = ci.Raster(w)
	out := make([]byte, p.Raster*h)
	for j := range h {
		for i := range w {
			writeChunky(out, p.Raster, ci.Depth, i, j, d.pixel(r.Min.X+i, r.Min.Y+j))
		}
	}
	p.Data = [][]byte{out}
	return nil
}

// ToImage converts the device contents to an image.
func (d *MemDevice) ToImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, d.info.Width, d.info.Height))
	if d.base == nil {
		return img
	}
	for y := range d.info.Height {
		for x := range d.info.Width {
			c := d.info.Color.Decode(d.pixel(x, y))
			if d.info.Color.NumComponents < 4 || d.info.Color.Polarity == PolaritySubtractive {
				c.A = 1
			}
			r, g, b, a := c.Bytes()
			o := img.PixOffset(x, y)
			img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = r, g, b, a
		}
	}
	return img
}

var _ Device = (*MemDevice)(nil)

// monoBit reports bit x of a 1-bit row, most significant bit first.
func monoBit(row []byte, x int) bool {
	return row[x>>3]&(0x80>>(x&7)) != 0
}

func setMonoBit(row []byte, x int, on bool) {
	if on {
		row[x>>3] |= 0x80 >> (x & 7)
	} else {
		row[x>>3] &^= 0x80 >> (x & 7)
	}
}

// readChunky reads pixel (x, y) of a chunky buffer at the given depth.
func readChunky(data []byte, raster, depth, x, y int) ColorIndex {
	row := data[y*raster:]
	switch depth {
	case 1:
		if monoBit(row, x) {
			return 1
		}
		return 0
	case 8:
		return ColorIndex(row[x])
	default:
		n := depth / 8
		var c ColorIndex
		for _, b := range row[x*n : x*n+n] {
			c = c<<8 | ColorIndex(b)
		}
		return c
	}
}

// writeChunky stores pixel (x, y) of a chunky buffer at the given depth.
func writeChunky(data []byte, raster, depth, x, y int, c ColorIndex) {
	row := data[y*raster:]
	switch depth {
	case 1:
		setMonoBit(row, x, c&1 != 0)
	case 8:
		row[x] = byte(c)
	default:
		n := depth / 8
		for k := range n {
			row[x*n+k] = byte(c >> (8 * (n - 1 - k)))
		}
	}
}
