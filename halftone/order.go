// Package halftone builds threshold orders for binary halftone cells and
// renders cell tiles at any gray level.
//
// An Order lists the bits of a cell in the order they turn on as the
// level rises. Rendering level n sets exactly the first n bits, so moving
// between two levels only flips the bits between them.
package halftone

import (
	"errors"
	"fmt"
	"image"
	"math/bits"
	"slices"
)

// ErrOrder reports an order that cannot be built as requested.
var ErrOrder = errors.New("halftone: invalid order")

// Rep selects how an Order stores its bit positions.
type Rep uint8

const (
	// RepBits stores a word offset and a single-bit mask per bit.
	RepBits Rep = iota
	// RepShort stores a 16-bit bit index per bit.
	RepShort
	// RepUint stores a 32-bit bit index per bit.
	RepUint
)

// String returns the name of the representation.
func (r Rep) String() string {
	switch r {
	case RepBits:
		return "bits"
	case RepShort:
		return "short"
	case RepUint:
		return "uint"
	}
	return fmt.Sprintf("Rep(%d)", uint8(r))
}

// Bit locates one bit of a cell: the byte offset of the big-endian 32-bit
// word holding it, and the bit's mask within that word.
type Bit struct {
	Offset uint32
	Mask   uint32
}

// Order is a threshold order for a Width by Height cell. Levels maps a
// gray value to the number of bits set at that value.
//
// Orders returned by Predefined, or matched to one by Construct, share
// their arrays and must not be modified.
type Order struct {
	Width, Height int
	// Raster is the row stride of rendered tiles, a multiple of 4 bytes.
	Raster    int
	NumLevels int
	NumBits   int
	Levels    []uint32
	Rep       Rep

	bits   []Bit
	shorts []uint16
	uints  []uint32
	shared bool
}

// bitmapRaster returns the stride of a width-bit row padded to 32 bits.
func bitmapRaster(width int) int {
	return (width + 31) / 32 * 4
}

// NewOrder returns an empty order for a width by height cell with
// numLevels gray values, stored in representation rep.
func NewOrder(width, height, numLevels int, rep Rep) (*Order, error) {
	if width <= 0 || height <= 0 || numLevels < 2 {
		return nil, fmt.Errorf("%w: %dx%d with %d levels", ErrOrder, width, height, numLevels)
	}
	o := &Order{
		Width:     width,
		Height:    height,
		Raster:    bitmapRaster(width),
		NumLevels: numLevels,
		NumBits:   width * height,
		Levels:    make([]uint32, numLevels),
		Rep:       rep,
	}
	// Bit indexes cover the padded rows, not just the cell.
	maxIndex := o.Raster*8*height - 1
	switch rep {
	case RepBits:
		o.bits = make([]Bit, o.NumBits)
	case RepShort:
		if maxIndex > 0xffff {
			return nil, fmt.Errorf("%w: %dx%d cell does not fit a 16-bit index", ErrOrder, width, height)
		}
		o.shorts = make([]uint16, o.NumBits)
	case RepUint:
		if uint64(maxIndex) > 0xffffffff {
			return nil, fmt.Errorf("%w: %dx%d cell does not fit a 32-bit index", ErrOrder, width, height)
		}
		o.uints = make([]uint32, o.NumBits)
	default:
		return nil, fmt.Errorf("%w: representation %s", ErrOrder, rep)
	}
	return o, nil
}

// Construct fills the order from one threshold per cell pixel, row by
// row. A pixel turns on once the level reaches its threshold; thresholds
// of 0 count as 1, and thresholds past the last level as the last level.
// Pixels with equal thresholds keep their row-major order.
func (o *Order) Construct(thresholds []byte) error {
	if len(thresholds) != o.NumBits {
		return fmt.Errorf("%w: %d thresholds for %d bits", ErrOrder, len(thresholds), o.NumBits)
	}
	if o.shared {
		return fmt.Errorf("%w: predefined order is read-only", ErrOrder)
	}
	o.construct(thresholds)
	o.adoptPredefined()
	return nil
}

func (o *Order) construct(thresholds []byte) {
	value := func(t byte) int {
		return min(max(1, int(t)), o.NumLevels-1)
	}
	levels := o.Levels
	clear(levels)
	for _, t := range thresholds {
		if v := value(t); v+1 < o.NumLevels {
			levels[v+1]++
		}
	}
	for i := 2; i < o.NumLevels; i++ {
		levels[i] += levels[i-1]
	}
	padding := o.Raster*8 - o.Width
	for i, t := range thresholds {
		v := value(t)
		o.set(int(levels[v]), i+i/o.Width*padding)
		levels[v]++
	}
}

// set stores bit index idx at position n of the order.
func (o *Order) set(n, idx int) {
	switch o.Rep {
	case RepBits:
		o.bits[n] = Bit{Offset: uint32(idx>>5) * 4, Mask: 0x80000000 >> uint(idx&31)}
	case RepShort:
		o.shorts[n] = uint16(idx)
	case RepUint:
		o.uints[n] = uint32(idx)
	}
}

// index returns the padded bit index at position n of the order.
func (o *Order) index(n int) int {
	switch o.Rep {
	case RepBits:
		b := o.bits[n]
		return int(b.Offset)*8 + bits.LeadingZeros32(b.Mask)
	case RepShort:
		return int(o.shorts[n])
	default:
		return int(o.uints[n])
	}
}

// BitIndex returns the cell position of the n'th bit to turn on.
func (o *Order) BitIndex(n int) image.Point {
	if o.Rep == RepBits {
		b := o.bits[n]
		off := int(b.Offset)
		return image.Pt(off%o.Raster*8+bits.LeadingZeros32(b.Mask), off/o.Raster)
	}
	idx := o.index(n)
	br := o.Raster * 8
	return image.Pt(idx%br, idx/br)
}

// Level returns the number of bits set at gray value gray, clamped to
// the order's range.
func (o *Order) Level(gray int) int {
	gray = min(max(gray, 0), o.NumLevels-1)
	return int(o.Levels[gray])
}

// Delta returns the padded bit indexes that change between a tile with
// from bits set and one with to bits set, in order position order. Both
// counts are clamped to [0, NumBits].
func (o *Order) Delta(from, to int) []int {
	from = min(max(from, 0), o.NumBits)
	to = min(max(to, 0), o.NumBits)
	lo, hi := min(from, to), max(from, to)
	out := make([]int, 0, hi-lo)
	for n := lo; n < hi; n++ {
		out = append(out, o.index(n))
	}
	return out
}

// equal reports whether o and p hold the same order in the same
// representation.
func (o *Order) equal(p *Order) bool {
	if o.Width != p.Width || o.Height != p.Height || o.Rep != p.Rep || o.NumLevels != p.NumLevels {
		return false
	}
	if !slices.Equal(o.Levels, p.Levels) {
		return false
	}
	switch o.Rep {
	case RepBits:
		return slices.Equal(o.bits, p.bits)
	case RepShort:
		return slices.Equal(o.shorts, p.shorts)
	default:
		return slices.Equal(o.uints, p.uints)
	}
}

// adoptPredefined replaces o's arrays with a built-in order's when they
// match.
func (o *Order) adoptPredefined() {
	for _, name := range predefinedNames {
		p := predefined(name)
		if !o.equal(p) {
			continue
		}
		o.Levels, o.bits, o.shorts, o.uints = p.Levels, p.bits, p.shorts, p.uints
		o.shared = true
		return
	}
}

// Shared reports whether o uses the arrays of a built-in order.
func (o *Order) Shared() bool { return o.shared }
