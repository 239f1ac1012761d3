package halftone

import (
	"sync"

	"github.com/gogpu/pattern"
)

// DefaultCacheSize is the number of tiles a TileCache holds when none is
// given.
const DefaultCacheSize = 8

// CacheStats is a snapshot of TileCache counters.
type CacheStats struct {
	Slots  int
	Hits   int64
	Misses int64
	// Flipped counts bits flipped while rendering misses.
	Flipped int64
}

// TileCache holds rendered tiles of one order, one per slot, the slot
// chosen by level. A miss renders from whichever cached tile has the
// nearest level, so sweeping levels flips few bits per step.
//
// TileCache is safe for concurrent use. Returned tiles are shared and
// must not be modified.
type TileCache struct {
	mu    sync.Mutex
	order *Order
	tiles []*Tile
	stats CacheStats
}

// NewTileCache returns a cache of size slots for o. A size below 1 uses
// DefaultCacheSize.
func NewTileCache(o *Order, size int) *TileCache {
	if size < 1 {
		size = DefaultCacheSize
	}
	return &TileCache{
		order: o,
		tiles: make([]*Tile, size),
		stats: CacheStats{Slots: size},
	}
}

// Order returns the cache's order.
func (c *TileCache) Order() *Order { return c.order }

// Tile returns the tile with level bits set.
func (c *TileCache) Tile(level int) *Tile {
	level = min(max(level, 0), c.order.NumBits)
	c.mu.Lock()
	defer c.mu.Unlock()

	slot := level % len(c.tiles)
	if t := c.tiles[slot]; t != nil && t.Level == level {
		c.stats.Hits++
		return t
	}
	c.stats.Misses++
	var base *Tile
	dist := level
	for _, t := range c.tiles {
		if t == nil {
			continue
		}
		if d := abs(t.Level - level); d < dist {
			base, dist = t, d
		}
	}
	t := c.order.Render(base, level)
	c.stats.Flipped += int64(dist)
	c.tiles[slot] = t
	pattern.Logger().Debug("halftone: render tile",
		"level", level, "slot", slot, "flipped", dist)
	return t
}

// Gray returns the tile for gray value gray.
func (c *TileCache) Gray(gray int) *Tile {
	return c.Tile(c.order.Level(gray))
}

// Stats returns a snapshot of the cache counters.
func (c *TileCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Reset drops every cached tile. Counters are kept.
func (c *TileCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.tiles)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
