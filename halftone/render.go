package halftone

import (
	"image"

	"github.com/gogpu/pattern"
)

// Tile is a rendered halftone cell: 1-bit rows of Raster bytes with the
// first Level bits of its order set.
type Tile struct {
	Level         int
	Width, Height int
	Raster        int
	Data          []byte
}

// NewTile returns the blank level 0 tile for o.
func (o *Order) NewTile() *Tile {
	return &Tile{
		Width:  o.Width,
		Height: o.Height,
		Raster: o.Raster,
		Data:   make([]byte, o.Raster*o.Height),
	}
}

// fits reports whether t has o's geometry.
func (o *Order) fits(t *Tile) bool {
	return t != nil && t.Width == o.Width && t.Height == o.Height &&
		t.Raster == o.Raster && len(t.Data) == o.Raster*o.Height
}

// Render returns a tile with level bits set, flipping only the bits
// between t's level and level. t is never modified; a nil t, or one with
// another geometry, renders from blank.
func (o *Order) Render(t *Tile, level int) *Tile {
	level = min(max(level, 0), o.NumBits)
	out := o.NewTile()
	from := 0
	if o.fits(t) {
		copy(out.Data, t.Data)
		from = t.Level
	}
	for _, idx := range o.Delta(from, level) {
		out.Data[idx>>3] ^= 0x80 >> uint(idx&7)
	}
	out.Level = level
	return out
}

// Bit reports whether pixel (x, y) of the cell is set.
func (t *Tile) Bit(x, y int) bool {
	return t.Data[y*t.Raster+x>>3]&(0x80>>uint(x&7)) != 0
}

// Count returns the number of set pixels.
func (t *Tile) Count() int {
	n := 0
	for y := range t.Height {
		for x := range t.Width {
			if t.Bit(x, y) {
				n++
			}
		}
	}
	return n
}

// Bitmap returns the tile as a 1-bit strip bitmap sharing t's data.
func (t *Tile) Bitmap() *pattern.StripBitmap {
	return &pattern.StripBitmap{
		Data:      t.Data,
		Raster:    t.Raster,
		Size:      image.Pt(t.Width, t.Height),
		NumPlanes: 1,
		Depth:     1,
	}
}

// Paint copies the tile repeatedly over w by h pixels of dev at (x, y),
// set bits in c1 and clear bits in c0. Either color may be
// pattern.NoColor.
func (t *Tile) Paint(dev pattern.Device, x, y, w, h int, c0, c1 pattern.ColorIndex) error {
	for ty := 0; ty < h; ty += t.Height {
		ch := min(t.Height, h-ty)
		for tx := 0; tx < w; tx += t.Width {
			cw := min(t.Width, w-tx)
			if err := dev.CopyMono(t.Data, 0, t.Raster, x+tx, y+ty, cw, ch, c0, c1); err != nil {
				return err
			}
		}
	}
	return nil
}
