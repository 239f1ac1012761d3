// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pattern

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/image/math/fixed"
)

func TestMemDeviceOpenClose(t *testing.T) {
	a := NewAccountingAllocator(0)
	d := NewMemDevice(10, 3, RGBAColorInfo, false, a)
	if err := d.FillRectangle(0, 0, 1, 1, 0); !errors.Is(err, ErrRangeCheck) {
		t.Errorf("drawing before Open = %v, want ErrRangeCheck", err)
	}
	if err := d.Open(); err != nil {
		t.Fatal(err)
	}
	if got, want := a.Stats().InUse, 10*4*3; got != want {
		t.Errorf("InUse = %d, want %d", got, want)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if st := a.Stats(); st.Live != 0 || st.InUse != 0 {
		t.Errorf("after Close: %+v", st)
	}

	planar := NewMemDevice(4, 4, GrayColorInfo, true, a)
	if err := planar.Open(); !errors.Is(err, ErrRangeCheck) {
		t.Errorf("planar gray Open = %v, want ErrRangeCheck", err)
	}
}

func TestMemDeviceDetachBits(t *testing.T) {
	a := NewAccountingAllocator(0)
	d := NewMemDevice(8, 2, MonoColorInfo, false, a)
	if err := d.Open(); err != nil {
		t.Fatal(err)
	}
	d.FillRectangle(0, 0, 8, 2, 1)
	bits := d.DetachBits()
	if diff := cmp.Diff([]byte{0xff, 0xff}, bits); diff != "" {
		t.Errorf("detached bits mismatch (-want +got):\n%s", diff)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if a.Stats().Live != 1 {
		t.Error("Close freed detached bits")
	}
	a.Free(bits, "test")
	if st := a.Stats(); st.Live != 0 || st.DoubleFrees != 0 {
		t.Errorf("allocator = %+v", st)
	}
}

func TestMemDeviceClipping(t *testing.T) {
	d := openDevice(t, 4, 4, GrayColorInfo, nil)
	d.FillRectangle(-2, -2, 4, 4, 9)
	d.FillRectangle(3, 3, 10, 10, 7)
	d.CopyMono([]byte{0xc0, 0xc0}, 0, 1, -1, 2, 2, 2, NoColor, 5)
	want := [][]ColorIndex{
		{9, 9, 0, 0},
		{9, 9, 0, 0},
		{5, 0, 0, 0},
		{5, 0, 0, 7},
	}
	for y, row := range want {
		if diff := cmp.Diff(row, pixelsOf(d, y, 0, 4)); diff != "" {
			t.Errorf("row %d mismatch (-want +got):\n%s", y, diff)
		}
	}
}

func TestMemDevicePlanarCopy(t *testing.T) {
	chunky := openDevice(t, 3, 2, CMYKColorInfo, nil)
	planar := NewMemDevice(3, 2, CMYKColorInfo, true, nil)
	if err := planar.Open(); err != nil {
		t.Fatal(err)
	}
	defer planar.Close()

	for _, d := range []*MemDevice{chunky, planar} {
		d.FillRectangle(0, 0, 3, 2, 0x11223344)
		d.FillRectangle(1, 1, 1, 1, 0xa0b0c0d0)
	}
	for y := range 2 {
		if diff := cmp.Diff(pixelsOf(chunky, y, 0, 3), pixelsOf(planar, y, 0, 3)); diff != "" {
			t.Errorf("row %d differs (-chunky +planar):\n%s", y, diff)
		}
	}

	var p GetBitsParams
	p.Planar = true
	if err := chunky.GetBitsRectangle(image.Rect(0, 0, 3, 2), &p); err != nil {
		t.Fatal(err)
	}
	out := openDevice(t, 3, 2, CMYKColorInfo, nil)
	if err := out.CopyPlanes(concatPlanes(p.Data), 0, p.Raster, 0, 0, 3, 2, 2); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(chunky.Bits(), out.Bits()); diff != "" {
		t.Errorf("planar read back and copy mismatch (-want +got):\n%s", diff)
	}
}

func concatPlanes(planes [][]byte) []byte {
	var out []byte
	for _, p := range planes {
		out = append(out, p...)
	}
	return out
}

func TestMemDeviceGetBitsOutside(t *testing.T) {
	d := openDevice(t, 4, 4, RGBAColorInfo, nil)
	var p GetBitsParams
	if err := d.GetBitsRectangle(image.Rect(2, 2, 6, 6), &p); !errors.Is(err, ErrRangeCheck) {
		t.Errorf("GetBitsRectangle outside = %v, want ErrRangeCheck", err)
	}
	p.Planar = true
	mono := openDevice(t, 4, 4, MonoColorInfo, nil)
	if err := mono.GetBitsRectangle(image.Rect(0, 0, 1, 1), &p); !errors.Is(err, ErrUnsupported) {
		t.Errorf("planar mono read = %v, want ErrUnsupported", err)
	}
}

func TestFillRectangleHLPixelCenters(t *testing.T) {
	tests := []struct {
		name string
		r    [4]float64
		want []ColorIndex
	}{
		{"whole pixels", [4]float64{1, 0, 3, 1}, []ColorIndex{0, 1, 1, 0, 0}},
		{"covers centers", [4]float64{0.4, 0, 2.6, 1}, []ColorIndex{1, 1, 1, 0, 0}},
		{"misses centers", [4]float64{0.6, 0, 1.4, 1}, []ColorIndex{0, 0, 0, 0, 0}},
		{"half open", [4]float64{0.5, 0, 1.5, 1}, []ColorIndex{1, 0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := openDevice(t, 5, 1, GrayColorInfo, nil)
			r := fixed.Rectangle26_6{
				Min: fixed.Point26_6{X: toFixed(tt.r[0]), Y: toFixed(tt.r[1])},
				Max: fixed.Point26_6{X: toFixed(tt.r[2]), Y: toFixed(tt.r[3])},
			}
			if err := d.FillRectangleHL(r, 1); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, pixelsOf(d, 0, 0, 5)); diff != "" {
				t.Errorf("row mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMemDeviceToImage(t *testing.T) {
	d := openDevice(t, 2, 1, CMYKColorInfo, nil)
	d.FillRectangle(0, 0, 1, 1, CMYKColorInfo.Encode(RGB(1, 0, 0)))
	img := d.ToImage()
	if got := img.NRGBAAt(0, 0); got != (color.NRGBA{R: 255, A: 255}) {
		t.Errorf("pixel 0 = %v, want opaque red", got)
	}
	if got := img.NRGBAAt(1, 0); got != (color.NRGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Errorf("pixel 1 = %v, want opaque white", got)
	}
}

func TestDrawImage(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	src.SetNRGBA(1, 0, color.NRGBA{G: 255, A: 100})
	src.SetNRGBA(2, 0, color.NRGBA{B: 255, A: 200})

	dev := openDevice(t, 5, 2, RGBAColorInfo, nil)
	gs := NewGState(dev)
	defer gs.FreeChain()
	gs.Translate(1, 1)
	if err := gs.DrawImage(src, 0, 0); err != nil {
		t.Fatal(err)
	}
	enc := RGBAColorInfo.Encode
	want := []ColorIndex{0, enc(RGB(1, 0, 0)), 0, enc(RGB(0, 0, 1)), 0}
	if diff := cmp.Diff(want, pixelsOf(dev, 1, 0, 5)); diff != "" {
		t.Errorf("row 1 mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(make([]ColorIndex, 5), pixelsOf(dev, 0, 0, 5)); diff != "" {
		t.Errorf("row 0 painted (-want +got):\n%s", diff)
	}
}

func TestImageEnumAfterEnd(t *testing.T) {
	dev := openDevice(t, 2, 2, GrayColorInfo, nil)
	enum, err := BeginImageDefault(dev, ImageInfo{Width: 2, Height: 2})
	if err != nil {
		t.Fatal(err)
	}
	if err := enum.End(); err != nil {
		t.Fatal(err)
	}
	if err := enum.WriteRows(make([]byte, 8), 8, 0, 1); err == nil {
		t.Error("WriteRows after End succeeded")
	}
	if _, err := BeginImageDefault(dev, ImageInfo{Width: -1}); !errors.Is(err, ErrRangeCheck) {
		t.Errorf("negative image = %v, want ErrRangeCheck", err)
	}
}
