package pattern

import (
	"fmt"
	"unsafe"
)

// Cache sizes.
const (
	// DefaultMaxTiles and DefaultMaxBits size the cache of a normal chain.
	DefaultMaxTiles = 50
	DefaultMaxBits  = 100000

	// SmallMaxTiles and SmallMaxBits size the cache for memory-starved
	// configurations.
	SmallMaxTiles = 5
	SmallMaxBits  = 1000

	// MinMaxBits is the smallest budget NewCache accepts. A budget near
	// zero would admit every tile through the oversized-entry rule.
	MinMaxBits = 64
)

// tileRecordSize is the memory charged per slot.
const tileRecordSize = int(unsafe.Sizeof(Tile{}))

// CacheStats is a snapshot of a Cache.
type CacheStats struct {
	Slots     int
	TilesUsed int
	BitsUsed  int
	MaxBits   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// CacheOption configures NewCache.
type CacheOption func(*Cache)

// WithCacheAllocator sets the allocator tile payloads are returned to
// on eviction. Slot memory is charged to it when it is a Reserver.
func WithCacheAllocator(a Allocator) CacheOption {
	return func(c *Cache) {
		if a != nil {
			c.alloc = a
		}
	}
}

// Cache is a fixed-size, direct-mapped cache of pattern tiles under a
// byte budget. Pattern ID id lives in slot id mod Slots; inserting a
// pattern evicts whatever held its slot. EnsureSpace evicts round robin
// until a new entry fits the budget.
//
// A single entry larger than the budget is admitted when the cache is
// otherwise empty, and is evicted by the next EnsureSpace.
//
// Cache is not safe for concurrent use. Each graphics-state chain owns
// one.
type Cache struct {
	tiles     []Tile
	alloc     Allocator
	reserved  int
	maxBits   int
	bitsUsed  int
	tilesUsed int
	next      int

	hits, misses, evictions uint64
}

// NewCache returns an empty cache of numSlots slots and a budget of
// maxBits bytes.
func NewCache(numSlots, maxBits int, opts ...CacheOption) (*Cache, error) {
	if numSlots <= 0 {
		return nil, fmt.Errorf("pattern: cache with %d slots: %w", numSlots, ErrRangeCheck)
	}
	if maxBits < MinMaxBits {
		return nil, fmt.Errorf("pattern: cache budget %d below %d: %w", maxBits, MinMaxBits, ErrRangeCheck)
	}
	c := &Cache{alloc: HeapAllocator{}, maxBits: maxBits}
	for _, o := range opts {
		o(c)
	}
	if r, ok := c.alloc.(Reserver); ok {
		size := numSlots * tileRecordSize
		if err := r.Reserve(size, "pattern cache"); err != nil {
			return nil, err
		}
		c.reserved = size
	}
	c.tiles = make([]Tile, numSlots)
	return c, nil
}

// Slots returns the number of slots.
func (c *Cache) Slots() int { return len(c.tiles) }

// BitsUsed returns the bytes charged by live tiles.
func (c *Cache) BitsUsed() int { return c.bitsUsed }

// MaxBits returns the budget.
func (c *Cache) MaxBits() int { return c.maxBits }

// TilesUsed returns the number of live tiles.
func (c *Cache) TilesUsed() int { return c.tilesUsed }

// Entry returns the tile in slot i.
func (c *Cache) Entry(i int) *Tile { return &c.tiles[i] }

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Slots:     len(c.tiles),
		TilesUsed: c.tilesUsed,
		BitsUsed:  c.bitsUsed,
		MaxBits:   c.maxBits,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// SlotOf returns the slot that id maps to.
func (c *Cache) SlotOf(id ID) int {
	return int(uint64(id) % uint64(len(c.tiles)))
}

// peek returns the live tile for id without touching the counters.
func (c *Cache) peek(id ID) (*Tile, bool) {
	if len(c.tiles) == 0 {
		return nil, false
	}
	t := &c.tiles[c.SlotOf(id)]
	if !t.live || t.ID != id {
		return nil, false
	}
	return t, true
}

// Lookup returns the tile cached for id. A slot holding another pattern
// is a miss.
func (c *Cache) Lookup(id ID) (*Tile, bool) {
	t, ok := c.peek(id)
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	return t, true
}

// lookupBlend is Lookup for a fill under blend mode mode: a transparency
// tile composited for another mode is a miss.
func (c *Cache) lookupBlend(id ID, mode BlendMode) (*Tile, bool) {
	t, ok := c.peek(id)
	if ok && t.Trans != nil && t.BlendMode != mode {
		ok = false
	}
	if !ok {
		c.misses++
		Logger().Debug("pattern: cache miss", "id", uint64(id))
		return nil, false
	}
	c.hits++
	return t, true
}

// EnsureSpace evicts live tiles, starting at the eviction cursor, until
// needed more bytes fit the budget or the cache is empty. The cursor
// skips free slots.
func (c *Cache) EnsureSpace(needed int) {
	n := len(c.tiles)
	for c.bitsUsed+needed > c.maxBits && c.bitsUsed != 0 {
		i := 0
		for ; i < n && !c.tiles[c.next].live; i++ {
			c.next = (c.next + 1) % n
		}
		if i == n {
			Logger().Error("pattern: cache accounting drift",
				"bits", c.bitsUsed, "tiles", c.tilesUsed)
			c.bitsUsed, c.tilesUsed = 0, 0
			return
		}
		c.Evict(c.next)
		c.next = (c.next + 1) % n
	}
}

// GetEntry claims the slot for id, evicting its occupant, and returns it
// marked live with no payload. A released cache has no slots and returns
// nil.
func (c *Cache) GetEntry(id ID) *Tile {
	if len(c.tiles) == 0 {
		return nil
	}
	slot := c.SlotOf(id)
	c.Evict(slot)
	t := &c.tiles[slot]
	t.ID, t.live = id, true
	c.tilesUsed++
	return t
}

// AddEntry stores p under its instance's ID and charges p.BitsUsed.
// Whatever held the slot is evicted. The cache owns p's buffers
// afterwards. A released cache takes nothing and returns nil.
func (c *Cache) AddEntry(p *Payload) *Tile {
	inst := p.Instance
	t := c.GetEntry(inst.ID)
	if t == nil {
		return nil
	}
	*t = Tile{
		ID:         inst.ID,
		UID:        inst.Template.UID,
		TilingType: inst.Template.TilingType,
		StepMatrix: inst.StepMatrix,
		BBox:       inst.Template.BBox,
		Size:       inst.Size,
		IsSimple:   inst.IsSimple,
		HasOverlap: inst.HasOverlap,
		IsDummy:    p.IsDummy,
		Depth:      p.Depth,
		BlendMode:  p.BlendMode,
		Bits:       p.Bits,
		Mask:       p.Mask,
		Trans:      p.Trans,
		Commands:   p.Commands,
		BitsUsed:   p.BitsUsed,
		live:       true,
	}
	t.IsPlanar = p.Bits != nil && p.Bits.NumPlanes > 1
	c.bitsUsed += p.BitsUsed
	Logger().Debug("pattern: cache add",
		"id", uint64(inst.ID), "slot", c.SlotOf(inst.ID), "bits", p.BitsUsed, "total", c.bitsUsed)
	return t
}

// AddDummyEntry stores a placeholder for a pattern the device paints
// itself. It is charged nothing.
func (c *Cache) AddDummyEntry(inst *Instance, depth int) *Tile {
	return c.AddEntry(&Payload{Instance: inst, IsDummy: true, Depth: depth})
}

// Evict frees slot's payload and uncharges it. Evicting a free slot, or
// a slot outside the cache, does nothing.
func (c *Cache) Evict(slot int) {
	if slot < 0 || slot >= len(c.tiles) {
		return
	}
	t := &c.tiles[slot]
	if !t.live {
		return
	}
	Logger().Debug("pattern: cache evict", "id", uint64(t.ID), "slot", slot, "bits", t.BitsUsed)
	c.bitsUsed -= t.BitsUsed
	c.tilesUsed--
	c.evictions++
	t.release(c.alloc)
}

// Winnow evicts every live tile for which pred returns true and reports
// how many it evicted.
func (c *Cache) Winnow(pred func(*Tile) bool) int {
	n := 0
	for i := range c.tiles {
		t := &c.tiles[i]
		if !t.live || !pred(t) {
			continue
		}
		c.Evict(i)
		n++
	}
	return n
}

// Release evicts everything and frees the slot array. The cache is
// unusable afterwards.
func (c *Cache) Release() {
	c.Winnow(func(*Tile) bool { return true })
	if r, ok := c.alloc.(Reserver); ok && c.reserved > 0 {
		r.Unreserve(c.reserved, "pattern cache")
	}
	c.reserved = 0
	c.tiles = nil
	c.next = 0
}
