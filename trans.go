package pattern

import (
	"fmt"
	"image"

	"golang.org/x/image/math/fixed"

	"github.com/gogpu/pattern/internal/blend"
)

// BlendMode is a separable PDF blend mode.
type BlendMode uint8

const (
	BlendNormal BlendMode = iota
	BlendMultiply
	BlendScreen
	BlendOverlay
	BlendDarken
	BlendLighten
	BlendColorDodge
	BlendColorBurn
	BlendHardLight
	BlendSoftLight
	BlendDifference
	BlendExclusion
)

// String returns the PDF name of the mode.
func (m BlendMode) String() string { return blend.Mode(m).String() }

// ParseBlendMode returns the mode with the given PDF name.
func ParseBlendMode(name string) (BlendMode, error) {
	m, ok := blend.ParseMode(name)
	if !ok {
		return BlendNormal, fmt.Errorf("pattern: unknown blend mode %q: %w", name, ErrRangeCheck)
	}
	return BlendMode(m), nil
}

// transChannels is the channel count of every transparency buffer:
// premultiplied R, G, B and alpha planes.
const transChannels = 4

// TransBuffer is the composited result of a transparency pattern: planar
// premultiplied RGBA, one plane after another.
type TransBuffer struct {
	Data        []byte
	Width       int
	Height      int
	RowStride   int
	PlaneStride int
	NumChannels int
}

// Size returns the bytes charged for the buffer.
func (tb *TransBuffer) Size() int {
	return tb.PlaneStride * tb.NumChannels
}

// At returns the premultiplied pixel at (x, y).
func (tb *TransBuffer) At(x, y int) (r, g, b, a byte) {
	o := y*tb.RowStride + x
	ps := tb.PlaneStride
	return tb.Data[o], tb.Data[ps+o], tb.Data[2*ps+o], tb.Data[3*ps+o]
}

// Compositor pushes and pops transparency compositing devices in front of
// a graphics state's device.
type Compositor interface {
	PushCompositor(gs *GState) error
	PopCompositor(gs *GState) error
	// RetrieveCompositedBuffer moves the composited result of dev into
	// out. The buffer belongs to alloc afterwards.
	RetrieveCompositedBuffer(dev Device, out *TransBuffer, alloc Allocator) error
}

// CompositorSink is implemented by devices that record compositor pushes
// instead of compositing, such as command-list writers.
type CompositorSink interface {
	PushCompositor() error
	PopCompositor() error
}

// TransBufferReceiver is implemented by devices that accept a finished
// transparency buffer when a recorded compositor is popped during
// playback.
type TransBufferReceiver interface {
	ReceiveTransBuffer(tb *TransBuffer) error
}

// LayerCompositor is the default Compositor. It puts a LayerDevice in
// front of the current device, or records the push when the device is a
// CompositorSink.
type LayerCompositor struct{}

// PushCompositor implements Compositor.
func (LayerCompositor) PushCompositor(gs *GState) error {
	target := gs.Device()
	if sink, ok := target.(CompositorSink); ok {
		return sink.PushCompositor()
	}
	ld := NewLayerDevice(target, gs.Allocator())
	if err := ld.Open(); err != nil {
		return err
	}
	ld.targetRef = gs.deviceRef().Retain()
	return gs.setDevice(NewDeviceRef(ld, true))
}

// PopCompositor implements Compositor. A layer that was not retrieved is
// composited onto the device below it first.
func (LayerCompositor) PopCompositor(gs *GState) error {
	switch dev := gs.Device().(type) {
	case CompositorSink:
		return dev.PopCompositor()
	case *LayerDevice:
		var err error
		if dev.retrievable() {
			err = dev.CompositeOnto(dev.target)
		}
		ref := dev.targetRef
		dev.targetRef = nil
		if ref == nil {
			ref = NewDeviceRef(dev.target, false)
		}
		if serr := gs.setDevice(ref); err == nil {
			err = serr
		}
		return err
	default:
		return fmt.Errorf("pattern: pop compositor on %s device: %w", gs.Device().Info().Name, ErrRangeCheck)
	}
}

// RetrieveCompositedBuffer implements Compositor.
func (LayerCompositor) RetrieveCompositedBuffer(dev Device, out *TransBuffer, alloc Allocator) error {
	ld, ok := dev.(*LayerDevice)
	if !ok {
		return fmt.Errorf("pattern: retrieve from %s device: %w", dev.Info().Name, ErrUnsupported)
	}
	return ld.Retrieve(out, alloc)
}

// layer is one level of a LayerDevice group stack.
type layer struct {
	data  []byte
	alpha float64
	mode  BlendMode
}

// LayerDevice composites drawing operations into premultiplied RGBA
// planes the size of its target. Incoming colors are decoded with the
// target's encoding and blended with the current alpha and blend mode.
// Groups stack further layers on top.
type LayerDevice struct {
	target    Device
	targetRef *DeviceRef
	info      DeviceInfo
	alloc     Allocator
	stack     []layer
	alpha     float64
	mode      BlendMode
}

// NewLayerDevice returns an unopened layer device in front of target.
func NewLayerDevice(target Device, alloc Allocator) *LayerDevice {
	if alloc == nil {
		alloc = HeapAllocator{}
	}
	info := target.Info()
	info.Name = "layer"
	info.Planar = false
	return &LayerDevice{target: target, info: info, alloc: alloc, alpha: 1}
}

// Target returns the device the layer composites onto.
func (d *LayerDevice) Target() Device { return d.target }

// Info implements Device.
func (d *LayerDevice) Info() DeviceInfo { return d.info }

func (d *LayerDevice) planeStride() int { return d.info.Width * d.info.Height }

// Open implements Device. It allocates the base layer.
func (d *LayerDevice) Open() error {
	if len(d.stack) > 0 {
		return nil
	}
	b, err := d.alloc.Alloc(d.planeStride()*transChannels, "layer buffer")
	if err != nil {
		return err
	}
	d.stack = append(d.stack, layer{data: b, alpha: 1})
	return nil
}

// Close implements Device. Layers not retrieved are freed.
func (d *LayerDevice) Close() error {
	for _, l := range d.stack {
		if l.data != nil {
			d.alloc.Free(l.data, "layer buffer")
		}
	}
	d.stack = nil
	if d.targetRef != nil {
		ref := d.targetRef
		d.targetRef = nil
		return ref.Release()
	}
	return nil
}

// SetBlendState implements BlendStateSetter.
func (d *LayerDevice) SetBlendState(alpha float64, mode BlendMode) {
	d.alpha, d.mode = alpha, mode
}

// BeginGroup implements GroupDevice.
func (d *LayerDevice) BeginGroup(alpha float64, mode BlendMode) error {
	if len(d.stack) == 0 {
		return fmt.Errorf("pattern: begin group on closed layer device: %w", ErrRangeCheck)
	}
	b, err := d.alloc.Alloc(d.planeStride()*transChannels, "group buffer")
	if err != nil {
		return err
	}
	d.stack = append(d.stack, layer{data: b, alpha: alpha, mode: mode})
	return nil
}

// EndGroup implements GroupDevice.
func (d *LayerDevice) EndGroup() error {
	if len(d.stack) < 2 {
		return fmt.Errorf("pattern: end group without begin: %w", ErrRangeCheck)
	}
	top := d.stack[len(d.stack)-1]
	d.stack = d.stack[:len(d.stack)-1]
	dst := d.stack[len(d.stack)-1].data
	fn := blend.Lookup(blend.Mode(top.mode))
	op := unitByte(top.alpha)
	ps := d.planeStride()
	for o := range ps {
		r, g, b, a := blend.Opacity(top.data[o], top.data[ps+o], top.data[2*ps+o], top.data[3*ps+o], op)
		if a == 0 {
			continue
		}
		dst[o], dst[ps+o], dst[2*ps+o], dst[3*ps+o] = fn(r, g, b, a, dst[o], dst[ps+o], dst[2*ps+o], dst[3*ps+o])
	}
	d.alloc.Free(top.data, "group buffer")
	return nil
}

func (d *LayerDevice) retrievable() bool {
	return len(d.stack) > 0 && d.stack[0].data != nil
}

// paint composites a straight color onto pixel (x, y) of the top layer.
func (d *LayerDevice) paint(x, y int, c RGBA) {
	top := d.stack[len(d.stack)-1].data
	ps := d.planeStride()
	o := y*d.info.Width + x
	r, g, b, a := c.Bytes()
	r, g, b, a = blend.Premultiply(r, g, b, a)
	r, g, b, a = blend.Opacity(r, g, b, a, unitByte(d.alpha))
	top[o], top[ps+o], top[2*ps+o], top[3*ps+o] = blend.Lookup(blend.Mode(d.mode))(
		r, g, b, a, top[o], top[ps+o], top[2*ps+o], top[3*ps+o])
}

func (d *LayerDevice) checkOpen() error {
	if len(d.stack) == 0 {
		return fmt.Errorf("pattern: layer device not open: %w", ErrRangeCheck)
	}
	return nil
}

// decode maps a device index to a color, forcing opacity: device
// encodings carry no coverage, alpha comes from the blend state.
func (d *LayerDevice) decode(c ColorIndex) RGBA {
	rgba := d.info.Color.Decode(c)
	rgba.A = 1
	return rgba
}

// FillRectangle implements Device.
func (d *LayerDevice) FillRectangle(x, y, w, h int, c ColorIndex) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if c == NoColor {
		return nil
	}
	rgba := d.decode(c)
	x, y, w, h, _, _ = clipRect(x, y, w, h, d.info.Width, d.info.Height)
	for j := y; j < y+h; j++ {
		for i := x; i < x+w; i++ {
			d.paint(i, j, rgba)
		}
	}
	return nil
}

// CopyMono implements Device.
func (d *LayerDevice) CopyMono(data []byte, dataX, raster, x, y, w, h int, c0, c1 ColorIndex) error {
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
				d.paint(x+i, y+j, d.decode(c))
			}
		}
	}
	return nil
}

// CopyColor implements Device.
func (d *LayerDevice) CopyColor(data []byte, dataX, raster, x, y, w, h int) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	depth := d.info.Color.Depth
	x, y, w, h, dx, dy := clipRect(x, y, w, h, d.info.Width, d.info.Height)
	for j := range h {
		for i := range w {
			d.paint(x+i, y+j, d.decode(readChunky(data, raster, depth, dataX+dx+i, dy+j)))
		}
	}
	return nil
}

// CopyPlanes implements Device.
func (d *LayerDevice) CopyPlanes(data []byte, dataX, raster, x, y, w, h, planeHeight int) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	n := d.info.Color.NumComponents
	ps := planeHeight * raster
	x, y, w, h, dx, dy := clipRect(x, y, w, h, d.info.Width, d.info.Height)
	for j := range h {
		for i := range w {
			var c ColorIndex
			off := (dy+j)*raster + dataX + dx + i
			for p := range n {
				c = c<<8 | ColorIndex(data[p*ps+off])
			}
			d.paint(x+i, y+j, d.decode(c))
		}
	}
	return nil
}

// FillRectangleHL implements Device.
func (d *LayerDevice) FillRectangleHL(r fixed.Rectangle26_6, c ColorIndex) error {
	return FillRectangleHLDefault(d, r, c)
}

// GetBitsRectangle implements Device. The top layer is returned flattened
// over white in the target encoding.
func (d *LayerDevice) GetBitsRectangle(r image.Rectangle, p *GetBitsParams) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if !r.In(d.info.Bounds()) || p.Planar {
		return fmt.Errorf("pattern: layer get bits %v: %w", r, ErrUnsupported)
	}
	top := d.stack[len(d.stack)-1].data
	ps := d.planeStride()
	ci := d.info.Color
	p.Raster = ci.Raster(r.Dx())
	out := make([]byte, p.Raster*r.Dy())
	for j := range r.Dy() {
		for i := range r.Dx() {
			o := (r.Min.Y+j)*d.info.Width + r.Min.X + i
			c := flattenOverWhite(top[o], top[ps+o], top[2*ps+o], top[3*ps+o])
			writeChunky(out, p.Raster, ci.Depth, i, j, ci.Encode(c))
		}
	}
	p.Data = [][]byte{out}
	return nil
}

// Retrieve moves the base layer into out, copying it into alloc's memory
// when alloc is not the layer's own allocator.
func (d *LayerDevice) Retrieve(out *TransBuffer, alloc Allocator) error {
	if len(d.stack) != 1 || d.stack[0].data == nil {
		return fmt.Errorf("pattern: retrieve with %d open layers: %w", len(d.stack), ErrRangeCheck)
	}
	data := d.stack[0].data
	if alloc != nil && alloc != d.alloc {
		b, err := alloc.Alloc(len(data), "trans buffer")
		if err != nil {
			return err
		}
		copy(b, data)
		d.alloc.Free(data, "layer buffer")
		data = b
	}
	d.stack[0].data = nil
	*out = TransBuffer{
		Data:        data,
		Width:       d.info.Width,
		Height:      d.info.Height,
		RowStride:   d.info.Width,
		PlaneStride: d.planeStride(),
		NumChannels: transChannels,
	}
	return nil
}

// CompositeOnto composites the base layer onto dev with Normal blending,
// reading dev back where needed. The layer is consumed.
func (d *LayerDevice) CompositeOnto(dev Device) error {
	var tb TransBuffer
	if err := d.Retrieve(&tb, d.alloc); err != nil {
		return err
	}
	defer d.alloc.Free(tb.Data, "layer buffer")
	for y := range tb.Height {
		if err := compositeRow(dev, &tb, BlendNormal, 0, y, y, 0, tb.Width); err != nil {
			return err
		}
	}
	return nil
}

// compositeRow composites pixels [x0, x1) of row ty of tb onto device row
// y starting at device column x0+dx. Pixels with zero alpha are skipped.
func compositeRow(dev Device, tb *TransBuffer, mode BlendMode, dx, ty, y, x0, x1 int) error {
	info := dev.Info()
	lo, hi := max(x0+dx, 0), min(x1+dx, info.Width)
	if lo >= hi || y < 0 || y >= info.Height {
		return nil
	}
	var p GetBitsParams
	if err := dev.GetBitsRectangle(image.Rect(lo, y, hi, y+1), &p); err != nil {
		return err
	}
	row := p.Data[0]
	ci := info.Color
	fn := blend.Lookup(blend.Mode(mode))
	for x := lo; x < hi; x++ {
		sr, sg, sb, sa := tb.At(x-dx, ty)
		if sa == 0 {
			continue
		}
		bc := ci.Decode(readChunky(row, p.Raster, ci.Depth, x-lo, 0))
		br, bg, bb, _ := bc.Bytes()
		r, g, b, a := fn(sr, sg, sb, sa, br, bg, bb, 255)
		r, g, b, a = blend.Unpremultiply(r, g, b, a)
		out := RGBA{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255, A: float64(a) / 255}
		writeChunky(row, p.Raster, ci.Depth, x-lo, 0, ci.Encode(out))
	}
	return dev.CopyColor(row, 0, p.Raster, lo, y, hi-lo, 1)
}

func flattenOverWhite(r, g, b, a byte) RGBA {
	inv := 255 - int(a)
	return RGB(
		float64(int(r)+inv)/255,
		float64(int(g)+inv)/255,
		float64(int(b)+inv)/255,
	)
}

var (
	_ Compositor       = LayerCompositor{}
	_ Device           = (*LayerDevice)(nil)
	_ GroupDevice      = (*LayerDevice)(nil)
	_ BlendStateSetter = (*LayerDevice)(nil)
)
