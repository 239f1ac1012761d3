package pattern

import (
	"context"
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/math/fixed"
)

// chain is the state shared by a root GState, its saves and its copies.
type chain struct {
	cfg   config
	cache *Cache
}

// gsave is one entry of the save stack.
type gsave struct {
	dev    *DeviceRef
	ctm    Matrix
	rgb    RGBA
	pcolor *PatternColor
	color  DeviceColor
	alpha  float64
	blend  BlendMode
}

// GState is a graphics state: a device, a transformation, a current color
// and the pattern cache of its chain.
//
// A GState is not safe for concurrent use. Independent chains can be used
// from different goroutines.
type GState struct {
	chain *chain
	owner bool
	freed bool

	dev    *DeviceRef
	ctm    Matrix
	rgb    RGBA
	pcolor *PatternColor
	color  DeviceColor
	alpha  float64
	blend  BlendMode

	stack []gsave
}

// NewGState returns the root state of a new chain drawing on dev. The
// chain's pattern cache is created on first use and released by
// FreeChain. dev is not closed by the chain.
func NewGState(dev Device, opts ...Option) *GState {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	gs := &GState{
		chain: &chain{cfg: cfg},
		owner: true,
		ctm:   Identity(),
		rgb:   Black,
		alpha: 1,
	}
	if dev != nil {
		gs.dev = NewDeviceRef(dev, false)
	}
	return gs
}

// Context returns the chain's context.
func (gs *GState) Context() context.Context { return gs.chain.cfg.ctx }

// Allocator returns the chain's allocator.
func (gs *GState) Allocator() Allocator { return gs.chain.cfg.alloc }

// Compositor returns the chain's transparency compositor.
func (gs *GState) Compositor() Compositor { return gs.chain.cfg.compositor }

// PatternCache returns the chain's pattern cache, creating it on first
// use.
func (gs *GState) PatternCache() (*Cache, error) {
	if gs.chain.cache == nil {
		cfg := &gs.chain.cfg
		c, err := NewCache(cfg.numTiles, cfg.maxBits, WithCacheAllocator(cfg.alloc))
		if err != nil {
			return nil, err
		}
		gs.chain.cache = c
	}
	return gs.chain.cache, nil
}

// SetPatternCache replaces the chain's cache. The previous cache, if any,
// is released.
func (gs *GState) SetPatternCache(c *Cache) {
	if gs.chain.cache != nil && gs.chain.cache != c {
		gs.chain.cache.Release()
	}
	gs.chain.cache = c
}

// Device returns the current device, nil if none.
func (gs *GState) Device() Device {
	if gs.dev == nil {
		return nil
	}
	return gs.dev.Device()
}

func (gs *GState) deviceRef() *DeviceRef { return gs.dev }

// SetDevice makes dev the current device without taking ownership.
func (gs *GState) SetDevice(dev Device) error {
	return gs.setDevice(NewDeviceRef(dev, false))
}

// SetDeviceRef makes the referenced device current, retaining it.
func (gs *GState) SetDeviceRef(ref *DeviceRef) error {
	return gs.setDevice(ref.Retain())
}

// setDevice installs ref, whose reference the state now holds, and
// releases the previous device.
func (gs *GState) setDevice(ref *DeviceRef) error {
	old := gs.dev
	gs.dev = ref
	gs.color = DeviceColor{}
	gs.pushBlendState()
	if old != nil {
		return old.Release()
	}
	return nil
}

// dropDevice releases the device and leaves the state without one.
func (gs *GState) dropDevice() {
	if gs.dev != nil {
		if err := gs.dev.Release(); err != nil {
			Logger().Warn("pattern: release device", "err", err)
		}
		gs.dev = nil
	}
}

func (gs *GState) pushBlendState() {
	if bs, ok := gs.Device().(BlendStateSetter); ok {
		bs.SetBlendState(gs.alpha, gs.blend)
	}
}

// Copy returns an independent state with the same device, transformation
// and colors, sharing the chain's cache. The copy has an empty save stack
// and must be freed with FreeChain.
func (gs *GState) Copy() *GState {
	c := &GState{
		chain:  gs.chain,
		ctm:    gs.ctm,
		rgb:    gs.rgb,
		pcolor: gs.pcolor,
		color:  gs.color,
		alpha:  gs.alpha,
		blend:  gs.blend,
	}
	if gs.dev != nil {
		c.dev = gs.dev.Retain()
	}
	return c
}

// copyForChain returns a copy of gs that uses the cache and configuration
// of other's chain.
func (gs *GState) copyForChain(other *GState) *GState {
	c := gs.Copy()
	c.chain = other.chain
	return c
}

// Save pushes the current state.
func (gs *GState) Save() {
	s := gsave{
		dev:    gs.dev,
		ctm:    gs.ctm,
		rgb:    gs.rgb,
		pcolor: gs.pcolor,
		color:  gs.color,
		alpha:  gs.alpha,
		blend:  gs.blend,
	}
	if gs.dev != nil {
		gs.dev.Retain()
	}
	gs.stack = append(gs.stack, s)
}

// Restore pops the last saved state. Restoring an empty stack is a no-op.
func (gs *GState) Restore() error {
	if len(gs.stack) == 0 {
		return nil
	}
	s := gs.stack[len(gs.stack)-1]
	gs.stack = gs.stack[:len(gs.stack)-1]
	old := gs.dev
	gs.dev = s.dev
	gs.ctm, gs.rgb, gs.pcolor, gs.color = s.ctm, s.rgb, s.pcolor, s.color
	gs.alpha, gs.blend = s.alpha, s.blend
	gs.pushBlendState()
	if old != nil {
		return old.Release()
	}
	return nil
}

// SaveDepth returns the number of saved states.
func (gs *GState) SaveDepth() int { return len(gs.stack) }

// FreeChain unwinds all saves and releases the device. For the root
// state of a chain it also releases the pattern cache. Calling it again
// is a no-op.
func (gs *GState) FreeChain() error {
	if gs.freed {
		return nil
	}
	gs.freed = true
	var errs []error
	for len(gs.stack) > 0 {
		errs = append(errs, gs.Restore())
	}
	if gs.dev != nil {
		errs = append(errs, gs.dev.Release())
		gs.dev = nil
	}
	if gs.owner && gs.chain.cache != nil {
		gs.chain.cache.Release()
		gs.chain.cache = nil
	}
	return errors.Join(errs...)
}

// CTM returns the current transformation matrix.
func (gs *GState) CTM() Matrix { return gs.ctm }

// SetCTM replaces the current transformation matrix.
func (gs *GState) SetCTM(m Matrix) { gs.ctm = m }

// Concat prepends m to the current transformation.
func (gs *GState) Concat(m Matrix) { gs.ctm = gs.ctm.Multiply(m) }

// Translate moves the user space origin.
func (gs *GState) Translate(x, y float64) { gs.Concat(Translate(x, y)) }

// Scale scales user space.
func (gs *GState) Scale(x, y float64) { gs.Concat(Scale(x, y)) }

// Rotate rotates user space by angle radians.
func (gs *GState) Rotate(angle float64) { gs.Concat(Rotate(angle)) }

// SetColor sets a plain fill color.
func (gs *GState) SetColor(c RGBA) {
	gs.rgb = c
	gs.pcolor = nil
	gs.color = DeviceColor{}
}

// SetRGB sets an opaque plain fill color.
func (gs *GState) SetRGB(r, g, b float64) { gs.SetColor(RGB(r, g, b)) }

// SetGray sets an opaque gray fill color.
func (gs *GState) SetGray(g float64) { gs.SetColor(Gray(g)) }

// SetPattern makes inst the fill color and loads its tile. base is the
// paint for uncolored patterns; nil means the color space has none.
// A nil inst selects the null pattern, which paints nothing.
func (gs *GState) SetPattern(inst *Instance, base *RGBA) error {
	pc := &PatternColor{Pattern: inst, Base: base}
	gs.pcolor = pc
	gs.color = DeviceColor{}
	if gs.Device() == nil {
		return fmt.Errorf("pattern: set pattern without device: %w", ErrRangeCheck)
	}
	dc, err := RemapPattern(pc, gs, gs.Device())
	if err != nil {
		return err
	}
	gs.color = *dc
	return nil
}

// PatternColor returns the current pattern color, nil for plain colors.
func (gs *GState) PatternColor() *PatternColor { return gs.pcolor }

// SetAlpha sets the constant opacity applied by compositing devices.
func (gs *GState) SetAlpha(a float64) {
	gs.alpha = min(1, max(0, a))
	gs.pushBlendState()
}

// Alpha returns the constant opacity.
func (gs *GState) Alpha() float64 { return gs.alpha }

// SetBlendMode sets the blend mode applied by compositing devices.
func (gs *GState) SetBlendMode(m BlendMode) {
	gs.blend = m
	gs.pushBlendState()
}

// BlendMode returns the blend mode.
func (gs *GState) BlendMode() BlendMode { return gs.blend }

// BeginGroup starts a transparency group on the current device.
func (gs *GState) BeginGroup(alpha float64, mode BlendMode) error {
	g, ok := gs.Device().(GroupDevice)
	if !ok {
		return fmt.Errorf("pattern: transparency group on %s device: %w", gs.Device().Info().Name, ErrUnsupported)
	}
	return g.BeginGroup(alpha, mode)
}

// EndGroup composites the innermost group.
func (gs *GState) EndGroup() error {
	g, ok := gs.Device().(GroupDevice)
	if !ok {
		return fmt.Errorf("pattern: transparency group on %s device: %w", gs.Device().Info().Name, ErrUnsupported)
	}
	return g.EndGroup()
}

// currentColor resolves the fill color against the current device,
// reloading a pattern tile that was evicted since it was installed.
func (gs *GState) currentColor() (*DeviceColor, error) {
	dev := gs.Device()
	if dev == nil {
		return nil, fmt.Errorf("pattern: no current device: %w", ErrRangeCheck)
	}
	if gs.pcolor == nil {
		if gs.color.Type != ColorPure {
			gs.color = PureColor(dev.Info().Color.Encode(gs.rgb))
		}
		return &gs.color, nil
	}
	if gs.color.Type == ColorNullPattern {
		return &gs.color, nil
	}
	if gs.color.IsPattern() && gs.color.tileValid() {
		return &gs.color, nil
	}
	if gs.color.IsPattern() {
		gs.color.Tile = nil
		if err := LoadPattern(&gs.color, gs, dev); err != nil {
			return nil, err
		}
		return &gs.color, nil
	}
	dc, err := RemapPattern(gs.pcolor, gs, dev)
	if err != nil {
		return nil, err
	}
	gs.color = *dc
	return &gs.color, nil
}

// Fill paints the interior of p, given in user space.
func (gs *GState) Fill(p *Path) error {
	dc, err := gs.currentColor()
	if err != nil {
		return err
	}
	dev := gs.Device()
	if pf, ok := dev.(PathFiller); ok {
		return pf.FillPath(p, gs.ctm, dc)
	}
	return FillPathDefault(dev, p, gs.ctm, dc)
}

// FillRect paints a rectangle given in user space. Pure colors under an
// axis-aligned transformation go straight to FillRectangleHL.
func (gs *GState) FillRect(x, y, w, h float64) error {
	dc, err := gs.currentColor()
	if err != nil {
		return err
	}
	m := gs.ctm
	if dc.Type == ColorPure && m.B == 0 && m.D == 0 {
		r := Rect{Min: Pt(x, y), Max: Pt(x+w, y+h)}.Transform(m)
		return gs.Device().FillRectangleHL(fixed.Rectangle26_6{
			Min: fixed.Point26_6{X: toFixed(r.Min.X), Y: toFixed(r.Min.Y)},
			Max: fixed.Point26_6{X: toFixed(r.Max.X), Y: toFixed(r.Max.Y)},
		}, dc.Pure)
	}
	p := NewPath()
	p.Rectangle(x, y, w, h)
	return gs.Fill(p)
}

// DrawImage paints img with its top-left corner at user point (x, y).
// Image pixels map one to one onto device pixels.
func (gs *GState) DrawImage(img image.Image, x, y float64) error {
	dev := gs.Device()
	if dev == nil {
		return fmt.Errorf("pattern: no current device: %w", ErrRangeCheck)
	}
	at := gs.ctm.TransformPoint(Pt(x, y))
	info := ImageInfo{
		Origin: image.Pt(int(at.X+0.5), int(at.Y+0.5)),
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	}
	var enum ImageEnum
	var err error
	if id, ok := dev.(ImageDevice); ok {
		enum, err = id.BeginImage(info)
	} else {
		enum, err = BeginImageDefault(dev, info)
	}
	if err != nil {
		return err
	}
	return DrawImageRows(enum, img)
}

func toFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(v*64 + 0.5)
}
