package blend

import "testing"

func TestMulDiv255(t *testing.T) {
	for a := range 256 {
		for b := range 256 {
			want := (a*b + 127) / 255
			got := int(mulDiv255(byte(a), byte(b)))
			if d := got - want; d < -1 || d > 1 {
				t.Fatalf("mulDiv255(%d, %d) = %d, want %d", a, b, got, want)
			}
		}
	}
	if got := mulDiv255(255, 255); got != 255 {
		t.Errorf("mulDiv255(255, 255) = %d, want 255", got)
	}
	if got := mulDiv255(0, 200); got != 0 {
		t.Errorf("mulDiv255(0, 200) = %d, want 0", got)
	}
}

func TestUnmultiply(t *testing.T) {
	tests := []struct {
		c, a, want byte
	}{
		{0, 0, 0},
		{128, 255, 128},
		{64, 128, 128},
		{200, 100, 255},
	}
	for _, tt := range tests {
		if got := unmultiply(tt.c, tt.a); got != tt.want {
			t.Errorf("unmultiply(%d, %d) = %d, want %d", tt.c, tt.a, got, tt.want)
		}
	}
}

func TestLookup(t *testing.T) {
	type px struct{ r, g, b, a byte }
	tests := []struct {
		name     string
		mode     Mode
		src, dst px
		want     px
	}{
		{"normal opaque", Normal, px{255, 0, 0, 255}, px{0, 0, 255, 255}, px{255, 0, 0, 255}},
		{"normal transparent source", Normal, px{0, 0, 0, 0}, px{10, 20, 30, 255}, px{10, 20, 30, 255}},
		{"normal half", Normal, px{128, 0, 0, 128}, px{0, 0, 255, 255}, px{128, 0, 127, 255}},
		{"multiply white", Multiply, px{255, 255, 255, 255}, px{40, 80, 120, 255}, px{40, 80, 120, 255}},
		{"multiply black", Multiply, px{0, 0, 0, 255}, px{40, 80, 120, 255}, px{0, 0, 0, 255}},
		{"screen black", Screen, px{0, 0, 0, 255}, px{40, 80, 120, 255}, px{40, 80, 120, 255}},
		{"darken", Darken, px{100, 200, 50, 255}, px{150, 100, 50, 255}, px{100, 100, 50, 255}},
		{"lighten", Lighten, px{100, 200, 50, 255}, px{150, 100, 50, 255}, px{150, 200, 50, 255}},
		{"difference", Difference, px{100, 200, 50, 255}, px{150, 100, 50, 255}, px{50, 100, 0, 255}},
		{"empty backdrop", Multiply, px{10, 20, 30, 255}, px{0, 0, 0, 0}, px{10, 20, 30, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, g, b, a := Lookup(tt.mode)(tt.src.r, tt.src.g, tt.src.b, tt.src.a, tt.dst.r, tt.dst.g, tt.dst.b, tt.dst.a)
			got := px{r, g, b, a}
			if got != tt.want {
				t.Errorf("%v = %v, want %v", tt.mode, got, tt.want)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	for m := Normal; m <= Exclusion; m++ {
		got, ok := ParseMode(m.String())
		if !ok || got != m {
			t.Errorf("ParseMode(%q) = %v, %v; want %v, true", m.String(), got, ok, m)
		}
	}
	if _, ok := ParseMode("Hue"); ok {
		t.Error("ParseMode(Hue) succeeded, want failure")
	}
}

func TestPremultiplyRoundTrip(t *testing.T) {
	r, g, b, a := Premultiply(200, 100, 50, 255)
	if r != 200 || g != 100 || b != 50 || a != 255 {
		t.Errorf("Premultiply opaque = %d %d %d %d", r, g, b, a)
	}
	r, g, b, a = Premultiply(200, 100, 50, 0)
	if r != 0 || g != 0 || b != 0 || a != 0 {
		t.Errorf("Premultiply transparent = %d %d %d %d", r, g, b, a)
	}
	r, g, b, _ = Unpremultiply(Premultiply(200, 100, 50, 128))
	if d := int(r) - 200; d < -2 || d > 2 {
		t.Errorf("round trip red = %d, want about 200", r)
	}
	_, _ = g, b
}
