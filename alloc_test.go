package pattern

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAccountingAllocator(t *testing.T) {
	a := NewAccountingAllocator(100)
	b1, err := a.Alloc(60, "one")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Alloc(50, "two"); !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("Alloc over limit = %v, want ErrOutOfMemory", err)
	}
	if err := a.Reserve(40, "slots"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Alloc(-1, "neg"); !errors.Is(err, ErrRangeCheck) {
		t.Errorf("negative Alloc = %v, want ErrRangeCheck", err)
	}
	empty, err := a.Alloc(0, "empty")
	if err != nil {
		t.Fatal(err)
	}
	a.Free(empty, "empty")
	a.Free(b1, "one")
	a.Free(b1, "one")
	a.Unreserve(40, "slots")

	want := AllocStats{Peak: 100, Allocs: 2, Frees: 1, DoubleFrees: 1, Refused: 1}
	if diff := cmp.Diff(want, a.Stats()); diff != "" {
		t.Errorf("Stats() mismatch (-want +got):\n%s", diff)
	}

	a.SetLimit(0)
	if _, err := a.Alloc(1<<20, "big"); err != nil {
		t.Errorf("unlimited Alloc = %v", err)
	}
}

func TestAccountingAllocatorConcurrent(t *testing.T) {
	a := NewAccountingAllocator(0)
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 100 {
				b, err := a.Alloc(16, "worker")
				if err != nil {
					t.Error(err)
					return
				}
				a.Free(b, "worker")
			}
		})
	}
	wg.Wait()
	if st := a.Stats(); st.Live != 0 || st.InUse != 0 || st.Allocs != 800 {
		t.Errorf("Stats() = %+v", st)
	}
}

// closeCounter counts Close calls.
type closeCounter struct {
	*MemDevice
	closes int
}

func (d *closeCounter) Close() error {
	d.closes++
	return d.MemDevice.Close()
}

func TestDeviceRef(t *testing.T) {
	dev := &closeCounter{MemDevice: NewMemDevice(2, 2, GrayColorInfo, false, nil)}
	ref := NewDeviceRef(dev, true)
	ref.Retain()
	end := ref.KeepAlive()
	if ref.Refs() != 3 {
		t.Fatalf("Refs() = %d, want 3", ref.Refs())
	}
	if err := end(); err != nil {
		t.Fatal(err)
	}
	if err := end(); err != nil {
		t.Fatal(err)
	}
	if ref.Refs() != 2 {
		t.Errorf("Refs() after double end = %d, want 2", ref.Refs())
	}
	ref.Release()
	if dev.closes != 0 {
		t.Error("device closed while referenced")
	}
	ref.Release()
	if dev.closes != 1 {
		t.Errorf("device closed %d times on last release, want 1", dev.closes)
	}
	if err := ref.Release(); !errors.Is(err, ErrFatal) {
		t.Errorf("release past zero = %v, want ErrFatal", err)
	}
}

func TestDeviceRefBorrowed(t *testing.T) {
	dev := &closeCounter{MemDevice: NewMemDevice(2, 2, GrayColorInfo, false, nil)}
	ref := NewDeviceRef(dev, false)
	if err := ref.Release(); err != nil {
		t.Fatal(err)
	}
	if dev.closes != 0 {
		t.Error("borrowed device was closed")
	}
}
