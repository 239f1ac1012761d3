package pattern

import (
	"errors"
	"testing"
)

func TestGStateSaveRestore(t *testing.T) {
	dev := openDevice(t, 4, 4, RGBAColorInfo, nil)
	other := openDevice(t, 4, 4, RGBAColorInfo, nil)
	gs := NewGState(dev)
	root := gs.deviceRef()

	gs.Save()
	gs.Translate(2, 0)
	gs.SetColor(red)
	gs.SetAlpha(1.5)
	if err := gs.SetDevice(other); err != nil {
		t.Fatal(err)
	}
	if gs.Alpha() != 1 {
		t.Errorf("Alpha() = %g, want clamped to 1", gs.Alpha())
	}
	if root.Refs() != 1 {
		t.Errorf("saved device refs = %d, want 1", root.Refs())
	}

	if err := gs.Restore(); err != nil {
		t.Fatal(err)
	}
	if gs.Device() != dev || !gs.CTM().IsIdentity() || gs.SaveDepth() != 0 {
		t.Errorf("Restore did not bring back the saved state")
	}
	if err := gs.Restore(); err != nil {
		t.Errorf("Restore on empty stack = %v", err)
	}
	if root.Refs() != 1 {
		t.Errorf("device refs after restore = %d, want 1", root.Refs())
	}

	gs.Save()
	gs.Save()
	if err := gs.FreeChain(); err != nil {
		t.Fatal(err)
	}
	if root.Refs() != 0 {
		t.Errorf("device refs after FreeChain = %d, want 0", root.Refs())
	}
	if err := gs.FreeChain(); err != nil {
		t.Errorf("second FreeChain = %v", err)
	}
}

func TestGStateCopySharesCache(t *testing.T) {
	a := NewAccountingAllocator(0)
	dev := openDevice(t, 4, 4, RGBAColorInfo, nil)
	gs := NewGState(dev, WithAllocator(a), WithCacheSize(3, 500))
	c1, err := gs.PatternCache()
	if err != nil {
		t.Fatal(err)
	}
	if c1.Slots() != 3 || c1.MaxBits() != 500 {
		t.Errorf("cache = %d slots, %d bytes", c1.Slots(), c1.MaxBits())
	}
	cp := gs.Copy()
	c2, _ := cp.PatternCache()
	if c1 != c2 {
		t.Error("copy has its own cache")
	}
	if err := cp.FreeChain(); err != nil {
		t.Fatal(err)
	}
	if c, _ := gs.PatternCache(); c != c1 {
		t.Error("freeing a copy released the chain's cache")
	}

	replacement, err := NewCache(2, 100, WithCacheAllocator(a))
	if err != nil {
		t.Fatal(err)
	}
	gs.SetPatternCache(replacement)
	if err := gs.FreeChain(); err != nil {
		t.Fatal(err)
	}
	if st := a.Stats(); st.InUse != 0 {
		t.Errorf("%d bytes reserved after FreeChain", st.InUse)
	}
}

func TestGStateCacheErrors(t *testing.T) {
	gs := NewGState(nil, WithCacheSize(0, 100))
	if _, err := gs.PatternCache(); !errors.Is(err, ErrRangeCheck) {
		t.Errorf("PatternCache() = %v, want ErrRangeCheck", err)
	}
	if err := gs.FillRect(0, 0, 1, 1); !errors.Is(err, ErrRangeCheck) {
		t.Errorf("FillRect without device = %v, want ErrRangeCheck", err)
	}
	if err := gs.SetPattern(nil, nil); !errors.Is(err, ErrRangeCheck) {
		t.Errorf("SetPattern without device = %v, want ErrRangeCheck", err)
	}
}

func TestGStateNullPattern(t *testing.T) {
	gs, dev := newTestState(t, 4, 4, HeapAllocator{})
	if err := gs.SetPattern(nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := gs.FillRect(0, 0, 4, 4); err != nil {
		t.Fatal(err)
	}
	if dev.Pixel(2, 2) != RGBAColorInfo.Encode(blue) {
		t.Error("null pattern painted")
	}
}

func TestGStateGroupsNeedCompositingDevice(t *testing.T) {
	gs, _ := newTestState(t, 4, 4, HeapAllocator{})
	if err := gs.BeginGroup(0.5, BlendNormal); !errors.Is(err, ErrUnsupported) {
		t.Errorf("BeginGroup on memory device = %v, want ErrUnsupported", err)
	}
	if err := gs.EndGroup(); !errors.Is(err, ErrUnsupported) {
		t.Errorf("EndGroup on memory device = %v, want ErrUnsupported", err)
	}
}

func TestMakePatternErrors(t *testing.T) {
	gs, _ := newTestState(t, 4, 4, HeapAllocator{})
	proc := func(*PatternColor, *GState) error { return nil }
	tests := []struct {
		name string
		tmpl Template
		m    Matrix
	}{
		{"paint type", Template{PaintType: 7, TilingType: TilingConstant, XStep: 1, YStep: 1, PaintProc: proc}, Identity()},
		{"tiling type", Template{PaintType: PaintColored, TilingType: 9, XStep: 1, YStep: 1, PaintProc: proc}, Identity()},
		{"zero step", Template{PaintType: PaintColored, TilingType: TilingConstant, XStep: 0, YStep: 1, PaintProc: proc}, Identity()},
		{"no procedure", Template{PaintType: PaintColored, TilingType: TilingConstant, XStep: 1, YStep: 1}, Identity()},
		{"inverted bbox", Template{PaintType: PaintColored, TilingType: TilingConstant, BBox: Rect{Min: Pt(2, 0)}, XStep: 1, YStep: 1, PaintProc: proc}, Identity()},
		{"singular matrix", Template{PaintType: PaintColored, TilingType: TilingConstant, XStep: 1, YStep: 1, PaintProc: proc}, Scale(0, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := MakePattern(&tt.tmpl, tt.m, gs); !errors.Is(err, ErrRangeCheck) {
				t.Errorf("MakePattern() = %v, want ErrRangeCheck", err)
			}
		})
	}
}

func TestMakePatternGeometry(t *testing.T) {
	gs, _ := newTestState(t, 32, 32, HeapAllocator{})
	gs.Translate(3, 5)
	proc := func(*PatternColor, *GState) error { return nil }
	tests := []struct {
		name    string
		bbox    Rect
		step    float64
		m       Matrix
		size    [2]int
		sm      Matrix
		simple  bool
		overlap bool
	}{
		{"unit", Rect{Max: Pt(4, 4)}, 4, Identity(), [2]int{4, 4}, Matrix{A: 4, C: 3, E: 4, F: 5}, true, false},
		{"scaled", Rect{Max: Pt(4, 4)}, 4, Scale(1.5, 1.5), [2]int{6, 6}, Matrix{A: 6, C: 3, E: 6, F: 5}, true, false},
		{"overlapping", Rect{Max: Pt(6, 6)}, 4, Identity(), [2]int{6, 6}, Matrix{A: 4, C: 3, E: 4, F: 5}, true, true},
		{"rounded step", Rect{Max: Pt(3, 3)}, 3, Scale(1.1, 1.1), [2]int{4, 4}, Matrix{A: 3, C: 3, E: 3, F: 5}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := MakePattern(&Template{
				PaintType:  PaintColored,
				TilingType: TilingConstant,
				BBox:       tt.bbox,
				XStep:      tt.step,
				YStep:      tt.step,
				PaintProc:  proc,
			}, tt.m, gs)
			if err != nil {
				t.Fatal(err)
			}
			if inst.Size.X != tt.size[0] || inst.Size.Y != tt.size[1] {
				t.Errorf("Size = %v, want %v", inst.Size, tt.size)
			}
			if inst.StepMatrix != tt.sm {
				t.Errorf("StepMatrix = %+v, want %+v", inst.StepMatrix, tt.sm)
			}
			if inst.IsSimple != tt.simple || inst.HasOverlap != tt.overlap {
				t.Errorf("IsSimple = %v, HasOverlap = %v", inst.IsSimple, inst.HasOverlap)
			}
			if inst.Saved().Device() != nil {
				t.Error("saved state kept the device")
			}
			if inst.Saved().PatternColor() != nil {
				t.Error("saved state kept a pattern color")
			}
		})
	}
}
