package pattern

import (
	"fmt"
	"sync"
)

// Allocator provides the byte buffers for tile payloads and accumulator
// storage. Buffers handed to a tile are freed through the same allocator
// when the tile is evicted.
type Allocator interface {
	// Alloc returns a zeroed buffer of size bytes. cname names the client
	// for diagnostics.
	Alloc(size int, cname string) ([]byte, error)
	// Free returns a buffer obtained from Alloc.
	Free(b []byte, cname string)
}

// Reserver is implemented by allocators that account for memory they do
// not hand out as byte slices, such as the cache's slot array.
type Reserver interface {
	Reserve(size int, cname string) error
	Unreserve(size int, cname string)
}

// HeapAllocator allocates from the Go heap and leaves freeing to the
// garbage collector.
type HeapAllocator struct{}

// Alloc implements Allocator.
func (HeapAllocator) Alloc(size int, cname string) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("pattern: %s: negative allocation: %w", cname, ErrRangeCheck)
	}
	return make([]byte, size), nil
}

// Free implements Allocator.
func (HeapAllocator) Free([]byte, string) {}

// AllocStats is a snapshot of an AccountingAllocator.
type AllocStats struct {
	InUse       int
	Peak        int
	Allocs      int
	Frees       int
	Live        int
	DoubleFrees int
	Refused     int
}

// AccountingAllocator tracks every live buffer against an optional limit.
// It refuses allocations that would exceed the limit with ErrOutOfMemory
// and counts frees of buffers it does not know about, which makes it
// useful for checking unwinding paths.
//
// AccountingAllocator is safe for concurrent use.
type AccountingAllocator struct {
	mu    sync.Mutex
	limit int
	live  map[*byte]int
	stats AllocStats
}

// NewAccountingAllocator returns an allocator that refuses to hold more
// than limit bytes at once. A limit of 0 means unlimited.
func NewAccountingAllocator(limit int) *AccountingAllocator {
	return &AccountingAllocator{
		limit: limit,
		live:  make(map[*byte]int),
	}
}

// Alloc implements Allocator.
func (a *AccountingAllocator) Alloc(size int, cname string) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("pattern: %s: negative allocation: %w", cname, ErrRangeCheck)
	}
	if err := a.charge(size, cname); err != nil {
		return nil, err
	}
	// Zero-length buffers are not tracked: there is no address to key on.
	b := make([]byte, size)
	a.mu.Lock()
	a.stats.Allocs++
	if size > 0 {
		a.live[&b[0]] = size
	}
	a.mu.Unlock()
	return b, nil
}

// Free implements Allocator.
func (a *AccountingAllocator) Free(b []byte, cname string) {
	if cap(b) == 0 {
		return
	}
	key := &b[:1][0]
	a.mu.Lock()
	defer a.mu.Unlock()
	size, ok := a.live[key]
	if !ok {
		a.stats.DoubleFrees++
		Logger().Warn("pattern: free of unknown buffer", "client", cname)
		return
	}
	delete(a.live, key)
	a.stats.Frees++
	a.stats.InUse -= size
}

// Reserve implements Reserver.
func (a *AccountingAllocator) Reserve(size int, cname string) error {
	return a.charge(size, cname)
}

// Unreserve implements Reserver.
func (a *AccountingAllocator) Unreserve(size int, _ string) {
	a.mu.Lock()
	a.stats.InUse -= size
	a.mu.Unlock()
}

func (a *AccountingAllocator) charge(size int, cname string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.limit > 0 && a.stats.InUse+size > a.limit {
		a.stats.Refused++
		return fmt.Errorf("pattern: %s: %d bytes: %w", cname, size, ErrOutOfMemory)
	}
	a.stats.InUse += size
	a.stats.Peak = max(a.stats.Peak, a.stats.InUse)
	return nil
}

// Stats returns a snapshot of the allocator counters.
func (a *AccountingAllocator) Stats() AllocStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.stats
	s.Live = len(a.live)
	return s
}

// SetLimit changes the limit. Buffers already handed out are unaffected.
func (a *AccountingAllocator) SetLimit(limit int) {
	a.mu.Lock()
	a.limit = limit
	a.mu.Unlock()
}

var (
	_ Allocator = HeapAllocator{}
	_ Allocator = (*AccountingAllocator)(nil)
	_ Reserver  = (*AccountingAllocator)(nil)
)
