package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/pattern"
	"github.com/gogpu/pattern/halftone"
)

// Scene is a YAML scene file: named patterns and the pages that fill
// with them.
type Scene struct {
	Width    int                     `yaml:"width"`
	Height   int                     `yaml:"height"`
	Patterns map[string]*PatternSpec `yaml:"patterns"`
	Pages    []*Page                 `yaml:"pages"`
}

// PatternSpec describes one pattern cell.
type PatternSpec struct {
	// Kind is checker, stripes, dots or halftone.
	Kind   string    `yaml:"kind"`
	Cell   float64   `yaml:"cell"`
	Step   []float64 `yaml:"step"`
	Colors []string  `yaml:"colors"`
	// Uncolored patterns are stencils painted in the fill's color.
	Uncolored   bool    `yaml:"uncolored"`
	Transparent bool    `yaml:"transparent"`
	Deferred    bool    `yaml:"deferred"`
	Scale       float64 `yaml:"scale"`
	Rotate      float64 `yaml:"rotate"`
	// Order and Gray select the halftone cell.
	Order string `yaml:"order"`
	Gray  int    `yaml:"gray"`

	colors []pattern.RGBA
}

// Page is one output image.
type Page struct {
	Name       string  `yaml:"name"`
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	Background string  `yaml:"background"`
	Fills      []*Fill `yaml:"fills"`

	background pattern.RGBA
}

// Fill paints a rectangle or circle with a pattern or a plain color.
type Fill struct {
	Pattern string    `yaml:"pattern"`
	Color   string    `yaml:"color"`
	Rect    []float64 `yaml:"rect"`
	Circle  []float64 `yaml:"circle"`
	Blend   string    `yaml:"blend"`
	Alpha   *float64  `yaml:"alpha"`

	color pattern.RGBA
	blend pattern.BlendMode
}

var errScene = errors.New("pattile: invalid scene")

// LoadScene reads and validates a scene file.
func LoadScene(path string) (*Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseScene(f)
}

// ParseScene decodes a scene and fills in defaults. Unknown keys are
// errors.
func ParseScene(r io.Reader) (*Scene, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var s Scene
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", errScene)
		}
		return nil, fmt.Errorf("pattile: parse scene: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scene) validate() error {
	if s.Width <= 0 {
		s.Width = 256
	}
	if s.Height <= 0 {
		s.Height = 256
	}
	for name, p := range s.Patterns {
		if err := p.validate(); err != nil {
			return fmt.Errorf("%w: pattern %q: %v", errScene, name, err)
		}
	}
	if len(s.Pages) == 0 {
		return fmt.Errorf("%w: no pages", errScene)
	}
	names := make(map[string]bool)
	for i, pg := range s.Pages {
		if pg.Name == "" {
			pg.Name = fmt.Sprintf("page%d", i+1)
		}
		if names[pg.Name] {
			return fmt.Errorf("%w: duplicate page %q", errScene, pg.Name)
		}
		names[pg.Name] = true
		if pg.Width <= 0 {
			pg.Width = s.Width
		}
		if pg.Height <= 0 {
			pg.Height = s.Height
		}
		var err error
		if pg.background, err = parseColor(pg.Background, pattern.White); err != nil {
			return fmt.Errorf("%w: page %q: %v", errScene, pg.Name, err)
		}
		for j, f := range pg.Fills {
			if err := f.validate(s.Patterns); err != nil {
				return fmt.Errorf("%w: page %q fill %d: %v", errScene, pg.Name, j+1, err)
			}
		}
	}
	return nil
}

func (p *PatternSpec) validate() error {
	switch p.Kind {
	case "checker", "stripes", "dots":
	case "halftone":
		if p.Order == "" {
			p.Order = "bayer8"
		}
		o, ok := halftone.Predefined(p.Order)
		if !ok {
			return fmt.Errorf("unknown halftone order %q", p.Order)
		}
		p.Cell = float64(o.Width)
	default:
		return fmt.Errorf("unknown kind %q", p.Kind)
	}
	if p.Cell <= 0 {
		p.Cell = 16
	}
	switch len(p.Step) {
	case 0:
		p.Step = []float64{p.Cell, p.Cell}
	case 1:
		p.Step = []float64{p.Step[0], p.Step[0]}
	case 2:
	default:
		return fmt.Errorf("step has %d values", len(p.Step))
	}
	if p.Step[0] == 0 || p.Step[1] == 0 {
		return errors.New("zero step")
	}
	if p.Scale == 0 {
		p.Scale = 1
	}
	if len(p.Colors) == 0 {
		p.Colors = []string{"#000000", "#ffffff"}
	}
	for _, c := range p.Colors {
		rgba, err := pattern.ParseHex(c)
		if err != nil {
			return err
		}
		p.colors = append(p.colors, rgba)
	}
	return nil
}

func (f *Fill) validate(patterns map[string]*PatternSpec) error {
	if f.Pattern != "" {
		if _, ok := patterns[f.Pattern]; !ok {
			return fmt.Errorf("unknown pattern %q", f.Pattern)
		}
	}
	switch {
	case len(f.Rect) == 4 && f.Circle == nil:
	case len(f.Circle) == 3 && f.Rect == nil:
	default:
		return errors.New("need rect [x, y, w, h] or circle [cx, cy, r]")
	}
	var err error
	if f.color, err = parseColor(f.Color, pattern.Black); err != nil {
		return err
	}
	if f.Blend != "" {
		if f.blend, err = pattern.ParseBlendMode(f.Blend); err != nil {
			return err
		}
	}
	if f.Alpha != nil && (*f.Alpha < 0 || *f.Alpha > 1) {
		return fmt.Errorf("alpha %g out of range", *f.Alpha)
	}
	return nil
}

func parseColor(s string, def pattern.RGBA) (pattern.RGBA, error) {
	if s == "" {
		return def, nil
	}
	return pattern.ParseHex(s)
}
