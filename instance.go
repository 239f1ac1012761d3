package pattern

import (
	"fmt"
	"image"
	"math"
	"sync/atomic"
)

// PaintType distinguishes colored from uncolored patterns.
type PaintType int

const (
	// PaintColored patterns carry their own colors.
	PaintColored PaintType = 1
	// PaintUncolored patterns are stencils; the color comes from the fill.
	PaintUncolored PaintType = 2
)

// TilingType selects how tile spacing is adjusted to the device grid.
type TilingType int

const (
	// TilingConstant keeps spacing constant, rounding steps to whole
	// device pixels.
	TilingConstant TilingType = 1
	// TilingNoDistortion keeps the cell undistorted; spacing may vary.
	TilingNoDistortion TilingType = 2
	// TilingConstantFast is TilingConstant with extra distortion allowed.
	TilingConstantFast TilingType = 3
)

// ID identifies a pattern instance. It is the cache key.
type ID uint64

// NoID is never assigned to an instance. A DeviceColor with TileID NoID
// refers to no tile.
const NoID ID = 0

var lastID atomic.Uint64

// NextID returns a fresh identifier.
func NextID() ID { return ID(lastID.Add(1)) }

// UID is an optional higher-level identity of a pattern, stable across
// instances made from the same definition.
type UID struct {
	ID    int64
	Valid bool
}

// PaintProc draws one pattern cell into gs, whose CTM maps pattern space
// onto the tile. It may fill with other patterns. Returning ErrHandled
// means the cell is legitimately empty.
type PaintProc func(pc *PatternColor, gs *GState) error

// Template is a pattern definition.
type Template struct {
	PaintType  PaintType
	TilingType TilingType
	// BBox is the cell in pattern space.
	BBox Rect
	// XStep and YStep are the spacing between cells in pattern space.
	XStep, YStep     float64
	UsesTransparency bool
	PaintProc        PaintProc
	UID              UID
}

// Instance is a template bound to a pattern matrix and a device
// resolution. Its ID keys the cache.
type Instance struct {
	Template Template
	ID       ID

	// StepMatrix maps cell indices (i, j) to the device position of the
	// tile's top-left pixel: tiles sit at StepMatrix(i, j).
	StepMatrix Matrix
	// Size is the tile size in device pixels.
	Size image.Point

	IsSimple   bool
	HasOverlap bool
	UsesMask   bool

	// requestsDeferred asks for command-list accumulation even when the
	// tile would fit the raster limit.
	requestsDeferred bool

	saved *GState
}

// Saved returns the graphics state captured when the instance was made.
func (inst *Instance) Saved() *GState { return inst.saved }

// RequestDeferred asks that the tile be accumulated as a command list.
// Uncolored patterns always rasterize.
func (inst *Instance) RequestDeferred(on bool) { inst.requestsDeferred = on }

// MakePattern binds tmpl to the pattern matrix m and the current
// transformation of gs. The instance keeps a copy of gs, without its
// device, for painting later.
func MakePattern(tmpl *Template, m Matrix, gs *GState) (*Instance, error) {
	if err := validateTemplate(tmpl); err != nil {
		return nil, err
	}
	full := gs.CTM().Multiply(m)
	if _, ok := full.Invert(); !ok {
		return nil, fmt.Errorf("pattern: singular pattern matrix: %w", ErrRangeCheck)
	}

	inst := &Instance{
		Template: *tmpl,
		ID:       NextID(),
		UsesMask: !tmpl.UsesTransparency,
	}

	dbox := tmpl.BBox.Transform(full)
	px := dbox.Pixels()
	if tmpl.BBox.Width() > 0 && tmpl.BBox.Height() > 0 {
		inst.Size = px.Size()
	}

	xstep := full.TransformVector(Pt(tmpl.XStep, 0))
	ystep := full.TransformVector(Pt(0, tmpl.YStep))
	if tmpl.TilingType != TilingNoDistortion && full.B == 0 && full.D == 0 {
		xstep.X = roundStep(xstep.X)
		ystep.Y = roundStep(ystep.Y)
	}
	inst.StepMatrix = Matrix{
		A: xstep.X, B: ystep.X, C: float64(px.Min.X),
		D: xstep.Y, E: ystep.Y, F: float64(px.Min.Y),
	}
	sm := inst.StepMatrix
	inst.IsSimple = sm.B == 0 && sm.D == 0 && sm.A == math.Trunc(sm.A) && sm.E == math.Trunc(sm.E)
	inst.HasOverlap = tmpl.BBox.Width() > math.Abs(tmpl.XStep) || tmpl.BBox.Height() > math.Abs(tmpl.YStep)

	saved := gs.Copy()
	saved.dropDevice()
	saved.ctm = Translate(-float64(px.Min.X), -float64(px.Min.Y)).Multiply(full)
	saved.pcolor = nil
	saved.rgb = Black
	inst.saved = saved
	return inst, nil
}

func validateTemplate(t *Template) error {
	switch {
	case t.PaintType != PaintColored && t.PaintType != PaintUncolored:
		return fmt.Errorf("pattern: paint type %d: %w", t.PaintType, ErrRangeCheck)
	case t.TilingType < TilingConstant || t.TilingType > TilingConstantFast:
		return fmt.Errorf("pattern: tiling type %d: %w", t.TilingType, ErrRangeCheck)
	case t.XStep == 0 || t.YStep == 0 || math.IsNaN(t.XStep) || math.IsNaN(t.YStep):
		return fmt.Errorf("pattern: step %gx%g: %w", t.XStep, t.YStep, ErrRangeCheck)
	case t.BBox.Width() < 0 || t.BBox.Height() < 0:
		return fmt.Errorf("pattern: inverted bbox: %w", ErrRangeCheck)
	case t.PaintProc == nil:
		return fmt.Errorf("pattern: no paint procedure: %w", ErrRangeCheck)
	}
	return nil
}

// roundStep rounds a device step to a whole, non-zero pixel count.
func roundStep(v float64) float64 {
	r := math.Round(v)
	if r == 0 {
		return math.Copysign(1, v)
	}
	return r
}

// PatternColor is a fill color that refers to a pattern.
type PatternColor struct {
	Pattern *Instance
	// Base is the paint for uncolored patterns. It is nil when the
	// pattern color space has no underlying space.
	Base *RGBA
}

// DeviceColorType tells what a DeviceColor paints with.
type DeviceColorType uint8

const (
	// ColorUnset is the zero DeviceColor.
	ColorUnset DeviceColorType = iota
	// ColorPure paints a single device color.
	ColorPure
	// ColorNullPattern paints nothing.
	ColorNullPattern
	// ColorPattern paints a colored tile.
	ColorPattern
	// ColorMaskedPure paints a pure color through an uncolored tile's mask.
	ColorMaskedPure
)

// DeviceColor is a color resolved against a device: either a pixel value
// or a reference to a cached tile.
type DeviceColor struct {
	Type DeviceColorType
	Pure ColorIndex
	Tile *Tile
	// TileID is the ID the tile had when it was installed. A mismatch
	// means the slot was evicted or reused since.
	TileID  ID
	Pattern *PatternColor
}

// PureColor returns a device color painting c.
func PureColor(c ColorIndex) DeviceColor {
	return DeviceColor{Type: ColorPure, Pure: c}
}

// IsPattern reports whether dc refers to a tile.
func (dc *DeviceColor) IsPattern() bool {
	return dc.Type == ColorPattern || dc.Type == ColorMaskedPure
}

// tileValid reports whether the installed tile still holds the pattern.
func (dc *DeviceColor) tileValid() bool {
	return dc.Tile != nil && dc.Tile.ID == dc.TileID && dc.TileID != NoID
}

// install points dc at tile.
func (dc *DeviceColor) install(t *Tile) {
	dc.Tile = t
	dc.TileID = t.ID
	if dc.Type != ColorMaskedPure {
		dc.Type = ColorPattern
	}
}
