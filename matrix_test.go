package pattern

import (
	"image"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var approx = cmpApprox(1e-9)

// cmpApprox compares floats within margin.
func cmpApprox(margin float64) cmp.Option { return cmpopts.EquateApprox(0, margin) }

func TestMatrixMultiplyOrder(t *testing.T) {
	// Scale first, then translate.
	m := Translate(10, 20).Multiply(Scale(2, 3))
	got := m.TransformPoint(Pt(1, 1))
	if diff := cmp.Diff(Pt(12, 23), got, approx); diff != "" {
		t.Errorf("TransformPoint mismatch (-want +got):\n%s", diff)
	}
	if v := m.TransformVector(Pt(1, 1)); v != Pt(2, 3) {
		t.Errorf("TransformVector(1, 1) = %v, want (2, 3)", v)
	}
}

func TestMatrixInvert(t *testing.T) {
	tests := []struct {
		name string
		m    Matrix
		ok   bool
	}{
		{"identity", Identity(), true},
		{"translate", Translate(-4, 7), true},
		{"scale", Scale(0.5, 8), true},
		{"rotate", Rotate(math.Pi / 3), true},
		{"mixed", Translate(3, 1).Multiply(Rotate(1)).Multiply(Scale(2, -1)), true},
		{"zero", Matrix{}, false},
		{"collapsed", Scale(1, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, ok := tt.m.Invert()
			if ok != tt.ok {
				t.Fatalf("Invert() ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if diff := cmp.Diff(Identity(), tt.m.Multiply(inv), approx); diff != "" {
				t.Errorf("m * inv mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMatrixIsOrthogonal(t *testing.T) {
	tests := []struct {
		name string
		m    Matrix
		want bool
	}{
		{"identity", Identity(), true},
		{"scale + translate", Translate(1, 2).Multiply(Scale(3, -4)), true},
		{"swap axes", Matrix{B: 1, D: -1}, true},
		{"rotate 30deg", Rotate(math.Pi / 6), false},
		{"shear", Matrix{A: 1, B: 0.5, E: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.IsOrthogonal(); got != tt.want {
				t.Errorf("Matrix%+v.IsOrthogonal() = %v, want %v", tt.m, got, tt.want)
			}
		})
	}
}

func TestRectTransformAndPixels(t *testing.T) {
	tests := []struct {
		name string
		r    Rect
		m    Matrix
		want image.Rectangle
	}{
		{"identity", Rect{Max: Pt(4, 4)}, Identity(), image.Rect(0, 0, 4, 4)},
		{"fractional", Rect{Min: Pt(0.2, 0.5), Max: Pt(3.1, 2)}, Identity(), image.Rect(0, 0, 4, 2)},
		{"negative scale", Rect{Max: Pt(2, 3)}, Scale(-2, 1), image.Rect(-4, 0, 0, 3)},
		{"half scale", Rect{Max: Pt(3, 3)}, Scale(0.5, 0.5), image.Rect(0, 0, 2, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.r.Transform(tt.m).Pixels()
			if got != tt.want {
				t.Errorf("Pixels() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPathBounds(t *testing.T) {
	p := NewPath()
	if !p.Empty() {
		t.Fatal("new path is not empty")
	}
	p.Rectangle(1, 2, 3, 4)
	p.Circle(10, 10, 2)
	b := p.Bounds()
	want := Rect{Min: Pt(1, 2), Max: Pt(12, 12)}
	if diff := cmp.Diff(want, b, approx); diff != "" {
		t.Errorf("Bounds() mismatch (-want +got):\n%s", diff)
	}
	moved := p.Transform(Translate(5, 0)).Bounds()
	if diff := cmp.Diff(Rect{Min: Pt(6, 2), Max: Pt(17, 12)}, moved, approx); diff != "" {
		t.Errorf("translated Bounds() mismatch (-want +got):\n%s", diff)
	}
}
