package pattern

import (
	"errors"
	"image"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func testInstance(id ID) *Instance {
	return &Instance{
		ID:       id,
		Template: Template{PaintType: PaintColored, TilingType: TilingConstant, XStep: 1, YStep: 1},
		Size:     image.Pt(1, 1),
	}
}

// testPayload returns a payload for id holding size bytes drawn from a.
func testPayload(t *testing.T, a Allocator, id ID, size int) *Payload {
	t.Helper()
	b, err := a.Alloc(size, "test bits")
	if err != nil {
		t.Fatal(err)
	}
	return &Payload{
		Instance: testInstance(id),
		Bits:     &StripBitmap{Data: b, Raster: size, Size: image.Pt(size, 1), NumPlanes: 1, Depth: 8},
		Depth:    8,
		BitsUsed: size,
	}
}

// checkBound verifies the budget invariant and that the running total
// matches the live slots.
func checkBound(t *testing.T, c *Cache) {
	t.Helper()
	sum, live := 0, 0
	for i := range c.Slots() {
		e := c.Entry(i)
		if e.Free() {
			if e.BitsUsed != 0 || e.Bits != nil {
				t.Fatalf("free slot %d holds a payload", i)
			}
			continue
		}
		live++
		sum += e.BitsUsed
	}
	if sum != c.BitsUsed() {
		t.Fatalf("BitsUsed() = %d, live slots hold %d", c.BitsUsed(), sum)
	}
	if live != c.TilesUsed() {
		t.Fatalf("TilesUsed() = %d, %d live slots", c.TilesUsed(), live)
	}
	if c.BitsUsed() > c.MaxBits() && live != 1 {
		t.Fatalf("over budget (%d > %d) with %d live tiles", c.BitsUsed(), c.MaxBits(), live)
	}
}

func TestNewCacheErrors(t *testing.T) {
	tests := []struct {
		name    string
		slots   int
		maxBits int
		alloc   Allocator
		want    error
	}{
		{"no slots", 0, 1000, nil, ErrRangeCheck},
		{"negative slots", -3, 1000, nil, ErrRangeCheck},
		{"tiny budget", 4, MinMaxBits - 1, nil, ErrRangeCheck},
		{"slot memory refused", 4, 1000, NewAccountingAllocator(8), ErrOutOfMemory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCache(tt.slots, tt.maxBits, WithCacheAllocator(tt.alloc))
			if !errors.Is(err, tt.want) {
				t.Fatalf("NewCache() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCacheLookup(t *testing.T) {
	c, err := NewCache(4, 1000)
	if err != nil {
		t.Fatal(err)
	}
	a := HeapAllocator{}
	added := c.AddEntry(testPayload(t, a, 5, 10))

	if got, ok := c.Lookup(5); !ok || got != added {
		t.Errorf("Lookup(5) = %p, %v; want %p, true", got, ok, added)
	}
	// 9 maps to the same slot as 5.
	if _, ok := c.Lookup(9); ok {
		t.Error("Lookup(9) hit the tile of 5")
	}
	if _, ok := c.Lookup(NoID); ok {
		t.Error("Lookup(NoID) hit")
	}
	want := CacheStats{Slots: 4, TilesUsed: 1, BitsUsed: 10, MaxBits: 1000, Hits: 1, Misses: 2}
	if diff := cmp.Diff(want, c.Stats()); diff != "" {
		t.Errorf("Stats() mismatch (-want +got):\n%s", diff)
	}
}

func TestCacheLookupBlend(t *testing.T) {
	c, _ := NewCache(4, 1000)
	p := testPayload(t, HeapAllocator{}, 3, 16)
	p.Trans = &TransBuffer{Data: make([]byte, 16), Width: 1, Height: 1, RowStride: 1, PlaneStride: 4, NumChannels: 4}
	p.Bits = nil
	p.BlendMode = BlendMultiply
	c.AddEntry(p)

	if _, ok := c.lookupBlend(3, BlendMultiply); !ok {
		t.Error("lookupBlend with the tile's mode missed")
	}
	if _, ok := c.lookupBlend(3, BlendScreen); ok {
		t.Error("lookupBlend with another mode hit a transparency tile")
	}

	q := testPayload(t, HeapAllocator{}, 6, 4)
	q.BlendMode = BlendMultiply
	c.AddEntry(q)
	if _, ok := c.lookupBlend(6, BlendScreen); !ok {
		t.Error("opaque tile missed under another blend mode")
	}
}

func TestCacheEvictIdempotent(t *testing.T) {
	a := NewAccountingAllocator(0)
	c, _ := NewCache(4, 1000, WithCacheAllocator(a))
	c.AddEntry(testPayload(t, a, 2, 100))
	slot := c.SlotOf(2)

	c.Evict(slot)
	c.Evict(slot)
	c.Evict(-1)
	c.Evict(c.Slots())
	checkBound(t, c)

	if c.BitsUsed() != 0 || c.TilesUsed() != 0 {
		t.Errorf("after eviction BitsUsed = %d, TilesUsed = %d", c.BitsUsed(), c.TilesUsed())
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
	st := a.Stats()
	if st.DoubleFrees != 0 || st.Live != 0 {
		t.Errorf("allocator: %d double frees, %d live", st.DoubleFrees, st.Live)
	}
}

func TestCacheSlotCollisionEvicts(t *testing.T) {
	a := NewAccountingAllocator(0)
	c, _ := NewCache(4, 1000, WithCacheAllocator(a))
	for id := ID(0); id < 4; id++ {
		c.AddEntry(testPayload(t, a, id, 300))
	}
	checkBound(t, c)
	if c.BitsUsed() != 1200 || c.TilesUsed() != 4 {
		t.Fatalf("BitsUsed() = %d, TilesUsed() = %d; want 1200, 4", c.BitsUsed(), c.TilesUsed())
	}
	if _, ok := c.Lookup(0); !ok {
		t.Error("pattern 0 not found")
	}

	c.AddEntry(testPayload(t, a, 4, 120))
	checkBound(t, c)
	if _, ok := c.Lookup(0); ok {
		t.Error("pattern 0 survived a collision in its slot")
	}
	if got, want := c.BitsUsed(), 300*3+120; got != want {
		t.Errorf("BitsUsed() = %d, want %d", got, want)
	}
	if got := a.Stats().Live; got != 4 {
		t.Errorf("%d live buffers, want 4", got)
	}

	c.EnsureSpace(800)
	checkBound(t, c)
	if c.BitsUsed()+800 > c.MaxBits() {
		t.Errorf("EnsureSpace(800) left BitsUsed() = %d", c.BitsUsed())
	}
}

func TestCacheEnsureSpaceWithoutLiveTiles(t *testing.T) {
	c, _ := NewCache(4, 1000)
	c.bitsUsed = 300
	done := make(chan struct{})
	go func() {
		c.EnsureSpace(800)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("EnsureSpace did not return with no live tiles")
	}
	if c.BitsUsed() != 0 || c.TilesUsed() != 0 {
		t.Errorf("BitsUsed() = %d, TilesUsed() = %d after reset", c.BitsUsed(), c.TilesUsed())
	}
}

func TestCacheOversizedEntry(t *testing.T) {
	a := NewAccountingAllocator(0)
	c, _ := NewCache(4, 1000, WithCacheAllocator(a))

	c.EnsureSpace(5000)
	big := c.AddEntry(testPayload(t, a, 1, 5000))
	checkBound(t, c)
	if c.BitsUsed() != 5000 {
		t.Fatalf("BitsUsed() = %d, want 5000", c.BitsUsed())
	}

	c.EnsureSpace(1)
	if !big.Free() || c.BitsUsed() != 0 {
		t.Errorf("oversized entry survived EnsureSpace: BitsUsed = %d", c.BitsUsed())
	}
	c.AddEntry(testPayload(t, a, 2, 10))
	checkBound(t, c)
}

func TestCacheEnsureSpaceSkipsFreeSlots(t *testing.T) {
	c, _ := NewCache(4, 1000)
	a := HeapAllocator{}
	c.AddEntry(testPayload(t, a, 5, 400)) // slot 1
	c.AddEntry(testPayload(t, a, 6, 400)) // slot 2

	c.EnsureSpace(400)
	if !c.Entry(1).Free() || c.Entry(2).Free() {
		t.Errorf("EnsureSpace evicted the wrong slot: slot1 free=%v slot2 free=%v",
			c.Entry(1).Free(), c.Entry(2).Free())
	}
	if c.next != 2 {
		t.Errorf("cursor = %d, want 2", c.next)
	}

	c.EnsureSpace(0)
	if c.TilesUsed() != 1 {
		t.Errorf("EnsureSpace(0) evicted with room to spare")
	}
}

func TestCacheWinnow(t *testing.T) {
	a := NewAccountingAllocator(0)
	c, _ := NewCache(8, 10000, WithCacheAllocator(a))
	for id := ID(1); id <= 6; id++ {
		c.AddEntry(testPayload(t, a, id, int(id)*10))
	}
	n := c.Winnow(func(t *Tile) bool { return t.ID%2 == 0 })
	if n != 3 {
		t.Errorf("Winnow() = %d, want 3", n)
	}
	checkBound(t, c)
	if got := c.BitsUsed(); got != 10+30+50 {
		t.Errorf("BitsUsed() = %d, want 90", got)
	}
	if n := c.Winnow(func(*Tile) bool { return false }); n != 0 {
		t.Errorf("Winnow(false) = %d", n)
	}
}

func TestCacheRelease(t *testing.T) {
	a := NewAccountingAllocator(0)
	c, err := NewCache(DefaultMaxTiles, DefaultMaxBits, WithCacheAllocator(a))
	if err != nil {
		t.Fatal(err)
	}
	if a.Stats().InUse != DefaultMaxTiles*tileRecordSize {
		t.Errorf("slot memory not charged: InUse = %d", a.Stats().InUse)
	}
	c.AddEntry(testPayload(t, a, 7, 64))
	c.Release()
	st := a.Stats()
	if st.InUse != 0 || st.Live != 0 {
		t.Errorf("after Release: InUse = %d, Live = %d", st.InUse, st.Live)
	}
}

func TestCacheGetEntry(t *testing.T) {
	a := NewAccountingAllocator(0)
	c, _ := NewCache(4, 1000, WithCacheAllocator(a))
	c.AddEntry(testPayload(t, a, 6, 100))

	e := c.GetEntry(10)
	if e == nil || e.Free() || e.ID != 10 || e.Bits != nil || e.BitsUsed != 0 {
		t.Fatalf("GetEntry(10) = %+v", e)
	}
	if got, ok := c.Lookup(10); !ok || got != e {
		t.Error("claimed slot not found")
	}
	if _, ok := c.Lookup(6); ok {
		t.Error("GetEntry kept the slot's occupant")
	}
	checkBound(t, c)
	if st := a.Stats(); st.Live != 0 {
		t.Errorf("%d live buffers after the occupant was evicted", st.Live)
	}

	c.Release()
	if e := c.GetEntry(1); e != nil {
		t.Errorf("GetEntry on a released cache = %+v", e)
	}
	p := testPayload(t, a, 1, 10)
	if tile := c.AddEntry(p); tile != nil {
		t.Errorf("AddEntry on a released cache = %+v", tile)
	}
	a.Free(p.Bits.Data, "test bits")
}

func TestCacheDummyEntry(t *testing.T) {
	c, _ := NewCache(4, 100)
	d := c.AddDummyEntry(testInstance(3), 32)
	if !d.IsDummy || d.BitsUsed != 0 || d.Bits != nil || d.Commands != nil {
		t.Errorf("dummy tile = %+v", d)
	}
	if _, ok := c.Lookup(3); !ok {
		t.Error("dummy tile not found")
	}
}

// TestCacheRandomOps interleaves insertions, evictions and winnows and
// checks that the running total always equals what the live tiles were
// charged at insertion.
func TestCacheRandomOps(t *testing.T) {
	for _, seed := range []uint64{1, 2, 3, 42} {
		rng := rand.New(rand.NewPCG(seed, seed*7919))
		a := NewAccountingAllocator(0)
		c, err := NewCache(7, 1500, WithCacheAllocator(a))
		if err != nil {
			t.Fatal(err)
		}
		charged := make(map[ID]int)
		for step := range 2000 {
			switch rng.IntN(10) {
			case 0, 1:
				c.Evict(rng.IntN(c.Slots()+2) - 1)
			case 2:
				mod := ID(rng.IntN(3) + 2)
				c.Winnow(func(t *Tile) bool { return t.ID%mod == 0 })
			default:
				id := ID(rng.IntN(30))
				size := rng.IntN(700) + 1
				if rng.IntN(50) == 0 {
					size = 4000
				}
				c.EnsureSpace(size)
				c.AddEntry(testPayload(t, a, id, size))
				charged[id] = size
			}
			checkBound(t, c)
			for i := range c.Slots() {
				e := c.Entry(i)
				if !e.Free() && e.BitsUsed != charged[e.ID] {
					t.Fatalf("seed %d step %d: slot %d charged %d, inserted with %d",
						seed, step, i, e.BitsUsed, charged[e.ID])
				}
			}
			if got := a.Stats().Live; got != c.TilesUsed() {
				t.Fatalf("seed %d step %d: %d live buffers for %d tiles", seed, step, got, c.TilesUsed())
			}
		}
		c.Release()
		if st := a.Stats(); st.Live != 0 || st.DoubleFrees != 0 || st.InUse != 0 {
			t.Errorf("seed %d: allocator after Release = %+v", seed, st)
		}
	}
}
