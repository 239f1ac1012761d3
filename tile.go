package pattern

import (
	"image"
	"math"
)

// StripBitmap is a packed pixel buffer: chunky at Depth bits per pixel,
// or NumPlanes 8-bit planes stored one after another.
type StripBitmap struct {
	Data      []byte
	Raster    int
	Size      image.Point
	NumPlanes int
	Depth     int
}

// Bit reports whether pixel (x, y) of a 1-bit bitmap is set.
func (b *StripBitmap) Bit(x, y int) bool {
	return monoBit(b.Data[y*b.Raster:], x)
}

// Pixel returns pixel (x, y).
func (b *StripBitmap) Pixel(x, y int) ColorIndex {
	if b.NumPlanes <= 1 {
		return readChunky(b.Data, b.Raster, b.Depth, x, y)
	}
	var c ColorIndex
	ps := b.Raster * b.Size.Y
	for p := range b.NumPlanes {
		c = c<<8 | ColorIndex(b.Data[p*ps+y*b.Raster+x])
	}
	return c
}

// full reports whether every pixel of a 1-bit bitmap is set.
func (b *StripBitmap) full() bool {
	whole := b.Size.X / 8
	for y := range b.Size.Y {
		row := b.Data[y*b.Raster:]
		for _, v := range row[:whole] {
			if v != 0xff {
				return false
			}
		}
		for x := whole * 8; x < b.Size.X; x++ {
			if !monoBit(row, x) {
				return false
			}
		}
	}
	return true
}

// Tile is one slot of a Cache: a rendered pattern cell and the geometry
// to repeat it. A free slot holds no tile; any ID, 0 included, may be
// live.
//
// A tile holds either raster data (Bits, Mask, Trans) or Commands, never
// both. Dummy tiles hold neither.
type Tile struct {
	ID         ID
	UID        UID
	TilingType TilingType
	StepMatrix Matrix
	// BBox is the cell in pattern space.
	BBox       Rect
	Size       image.Point
	IsSimple   bool
	HasOverlap bool
	IsDummy    bool
	Depth      int
	BlendMode  BlendMode
	IsPlanar   bool

	Bits     *StripBitmap
	Mask     *StripBitmap
	Trans    *TransBuffer
	Commands DeferredCommands

	// BitsUsed is the amount charged against the cache budget.
	BitsUsed int

	live bool
}

// Free reports whether the slot is empty.
func (t *Tile) Free() bool { return !t.live }

// release returns the payload to alloc and empties the slot.
func (t *Tile) release(alloc Allocator) {
	if t.Bits != nil {
		alloc.Free(t.Bits.Data, "tile bits")
	}
	if t.Mask != nil {
		alloc.Free(t.Mask.Data, "tile mask")
	}
	if t.Trans != nil {
		alloc.Free(t.Trans.Data, "tile trans")
	}
	if t.Commands != nil {
		if err := t.Commands.Close(); err != nil {
			Logger().Warn("pattern: close tile commands", "id", uint64(t.ID), "err", err)
		}
	}
	*t = Tile{}
}

// Payload is what an accumulator hands to the cache. AddEntry takes
// ownership of its buffers.
type Payload struct {
	Instance  *Instance
	Bits      *StripBitmap
	Mask      *StripBitmap
	Trans     *TransBuffer
	Commands  DeferredCommands
	IsDummy   bool
	Depth     int
	BlendMode BlendMode
	BitsUsed  int
}

// free returns the payload's buffers to alloc. It is used when a payload
// never reaches the cache.
func (p *Payload) free(alloc Allocator) {
	t := Tile{Bits: p.Bits, Mask: p.Mask, Trans: p.Trans, Commands: p.Commands}
	t.release(alloc)
	*p = Payload{}
}

// payloadSize returns the bytes held by the raster parts of p.
func payloadSize(p *Payload) int {
	n := 0
	if p.Bits != nil {
		n += len(p.Bits.Data)
	}
	if p.Mask != nil {
		n += len(p.Mask.Data)
	}
	if p.Trans != nil {
		n += p.Trans.Size()
	}
	return n
}

// maxEstimate caps size estimates well below the int range.
const maxEstimate = math.MaxInt &^ 0xFFFF
