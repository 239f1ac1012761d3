package pattern

import (
	"fmt"
	"image"

	"golang.org/x/image/math/fixed"
)

// DefaultMaxPatternBitmap is the raster size limit used when a device
// reports MaxPatternBitmap as 0. Larger tiles are accumulated as
// command lists.
const DefaultMaxPatternBitmap = 8 << 20

// DeviceInfo describes the characteristics of a device that matter for
// pattern accumulation.
type DeviceInfo struct {
	Name          string
	Width, Height int
	Color         ColorInfo
	// Planar devices store each component in its own plane.
	Planar bool
	// MaxPatternBitmap bounds raster tiles; 0 selects the default.
	MaxPatternBitmap int
	// EncodesTags is set by devices that carry an object-type tag byte
	// per pixel alongside transparency data.
	EncodesTags bool
}

// PatternBitmapLimit returns MaxPatternBitmap or the default.
func (di DeviceInfo) PatternBitmapLimit() int {
	if di.MaxPatternBitmap > 0 {
		return di.MaxPatternBitmap
	}
	return DefaultMaxPatternBitmap
}

// Bounds returns the device rectangle.
func (di DeviceInfo) Bounds() image.Rectangle {
	return image.Rect(0, 0, di.Width, di.Height)
}

// Device is the set of low-level drawing operations every output target
// implements. Coordinates are device pixels; operations clip to the
// device bounds.
//
// Source bitmaps are given as (data, dataX, raster): row r of the source
// starts at data[r*raster] and the first pixel used is at bit or pixel
// offset dataX within that row.
type Device interface {
	Info() DeviceInfo
	Open() error
	Close() error

	// FillRectangle paints a solid rectangle.
	FillRectangle(x, y, w, h int, c ColorIndex) error
	// CopyMono paints a 1-bit source: 0 bits with c0, 1 bits with c1.
	// Either color may be NoColor to leave those pixels alone.
	CopyMono(data []byte, dataX, raster, x, y, w, h int, c0, c1 ColorIndex) error
	// CopyColor paints a chunky source in the device's own encoding.
	CopyColor(data []byte, dataX, raster, x, y, w, h int) error
	// CopyPlanes paints a planar source; plane p starts at
	// data[p*planeHeight*raster].
	CopyPlanes(data []byte, dataX, raster, x, y, w, h, planeHeight int) error
	// FillRectangleHL paints a rectangle given in 26.6 fixed point.
	FillRectangleHL(r fixed.Rectangle26_6, c ColorIndex) error
	// GetBitsRectangle reads back a rectangle of pixels.
	GetBitsRectangle(r image.Rectangle, p *GetBitsParams) error
}

// GetBitsParams selects the layout for GetBitsRectangle and receives the
// result. The returned slices are copies owned by the caller.
type GetBitsParams struct {
	// Planar requests one slice per component plane.
	Planar bool
	// Data receives the rows: a single slice when chunky, one slice per
	// plane when planar.
	Data [][]byte
	// Raster receives the bytes per row of each slice.
	Raster int
}

// NativePatternDevice is implemented by devices that replay a pattern's
// paint procedure themselves at fill time, so no tile is rendered.
type NativePatternDevice interface {
	Device
	// SupportsPatternStream reports whether inst can be handed over as
	// is. It is asked once per cache miss.
	SupportsPatternStream(inst *Instance) bool
	// FillPatternStream paints inst wherever the 1-bit coverage bitmap
	// is set; bit (0, 0) of mask is device pixel (x, y).
	FillPatternStream(inst *Instance, x, y int, mask *StripBitmap) error
}

// PathFiller is implemented by devices with their own path filling.
// Devices without it get FillPathDefault.
type PathFiller interface {
	FillPath(p *Path, ctm Matrix, dc *DeviceColor) error
}

// ImageDevice is implemented by devices that take image data directly.
// Devices without it get BeginImageDefault.
type ImageDevice interface {
	BeginImage(info ImageInfo) (ImageEnum, error)
}

// GroupDevice is implemented by devices that composite transparency
// groups.
type GroupDevice interface {
	BeginGroup(alpha float64, mode BlendMode) error
	EndGroup() error
}

// BlendStateSetter is implemented by devices that blend incoming
// operations: the layer compositor and command-list writers.
type BlendStateSetter interface {
	SetBlendState(alpha float64, mode BlendMode)
}

// DeviceBase supplies the optional parts of Device. Embed it and
// implement the drawing operations; the embedded methods report
// ErrUnsupported for read-back and planar copies and treat Open and
// Close as no-ops.
type DeviceBase struct {
	DeviceInfo DeviceInfo
}

// Info implements Device.
func (b *DeviceBase) Info() DeviceInfo { return b.DeviceInfo }

// Open implements Device.
func (b *DeviceBase) Open() error { return nil }

// Close implements Device.
func (b *DeviceBase) Close() error { return nil }

// CopyPlanes implements Device.
func (b *DeviceBase) CopyPlanes([]byte, int, int, int, int, int, int, int) error {
	return fmt.Errorf("pattern: %s: copy planes: %w", b.DeviceInfo.Name, ErrUnsupported)
}

// GetBitsRectangle implements Device.
func (b *DeviceBase) GetBitsRectangle(image.Rectangle, *GetBitsParams) error {
	return fmt.Errorf("pattern: %s: get bits: %w", b.DeviceInfo.Name, ErrUnsupported)
}

// FillRectangleHLDefault fills the pixels whose centers lie inside r,
// through dev.FillRectangle.
func FillRectangleHLDefault(dev Device, r fixed.Rectangle26_6, c ColorIndex) error {
	// Pixel i is covered when min <= i+0.5 < max.
	const half = fixed.Int26_6(32)
	x0 := (r.Min.X - half).Ceil()
	y0 := (r.Min.Y - half).Ceil()
	x1 := (r.Max.X - half).Ceil()
	y1 := (r.Max.Y - half).Ceil()
	if x1 <= x0 || y1 <= y0 {
		return nil
	}
	return dev.FillRectangle(x0, y0, x1-x0, y1-y0, c)
}

// clipRect intersects the rectangle (x, y, w, h) with the device bounds
// and returns the adjusted rectangle and the offset that was cut from
// the left and top.
func clipRect(x, y, w, h, width, height int) (cx, cy, cw, ch, dx, dy int) {
	cx, cy, cw, ch = x, y, w, h
	if cx < 0 {
		dx = -cx
		cw += cx
		cx = 0
	}
	if cy < 0 {
		dy = -cy
		ch += cy
		cy = 0
	}
	if cx+cw > width {
		cw = width - cx
	}
	if cy+ch > height {
		ch = height - cy
	}
	return cx, cy, cw, ch, dx, dy
}
