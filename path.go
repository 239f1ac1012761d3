package pattern

import "math"

// PathElement is one segment of a Path.
type PathElement interface {
	isPathElement()
}

// MoveTo starts a new subpath.
type MoveTo struct {
	Point Point
}

// LineTo draws a straight segment.
type LineTo struct {
	Point Point
}

// QuadTo draws a quadratic Bézier segment.
type QuadTo struct {
	Control Point
	Point   Point
}

// CubeTo draws a cubic Bézier segment.
type CubeTo struct {
	Control1 Point
	Control2 Point
	Point    Point
}

// ClosePath closes the current subpath.
type ClosePath struct{}

func (MoveTo) isPathElement()    {}
func (LineTo) isPathElement()    {}
func (QuadTo) isPathElement()    {}
func (CubeTo) isPathElement()    {}
func (ClosePath) isPathElement() {}

// Path is a vector outline in user space.
type Path struct {
	elements []PathElement
	start    Point
	current  Point
}

// NewPath returns an empty path.
func NewPath() *Path {
	return &Path{elements: make([]PathElement, 0, 8)}
}

// MoveTo starts a subpath at (x, y).
func (p *Path) MoveTo(x, y float64) {
	pt := Pt(x, y)
	p.elements = append(p.elements, MoveTo{Point: pt})
	p.start, p.current = pt, pt
}

// LineTo adds a line to (x, y).
func (p *Path) LineTo(x, y float64) {
	pt := Pt(x, y)
	p.elements = append(p.elements, LineTo{Point: pt})
	p.current = pt
}

// QuadTo adds a quadratic curve through control (cx, cy) to (x, y).
func (p *Path) QuadTo(cx, cy, x, y float64) {
	pt := Pt(x, y)
	p.elements = append(p.elements, QuadTo{Control: Pt(cx, cy), Point: pt})
	p.current = pt
}

// CubeTo adds a cubic curve to (x, y).
func (p *Path) CubeTo(c1x, c1y, c2x, c2y, x, y float64) {
	pt := Pt(x, y)
	p.elements = append(p.elements, CubeTo{Control1: Pt(c1x, c1y), Control2: Pt(c2x, c2y), Point: pt})
	p.current = pt
}

// Close closes the current subpath.
func (p *Path) Close() {
	p.elements = append(p.elements, ClosePath{})
	p.current = p.start
}

// Elements returns the path segments.
func (p *Path) Elements() []PathElement {
	return p.elements
}

// Empty reports whether the path has no segments.
func (p *Path) Empty() bool {
	return len(p.elements) == 0
}

// Rectangle adds a closed rectangle.
func (p *Path) Rectangle(x, y, w, h float64) {
	p.MoveTo(x, y)
	p.LineTo(x+w, y)
	p.LineTo(x+w, y+h)
	p.LineTo(x, y+h)
	p.Close()
}

// Circle adds a closed circle made of four cubic arcs.
func (p *Path) Circle(cx, cy, r float64) {
	k := 4 * (math.Sqrt2 - 1) / 3 * r
	p.MoveTo(cx+r, cy)
	p.CubeTo(cx+r, cy+k, cx+k, cy+r, cx, cy+r)
	p.CubeTo(cx-k, cy+r, cx-r, cy+k, cx-r, cy)
	p.CubeTo(cx-r, cy-k, cx-k, cy-r, cx, cy-r)
	p.CubeTo(cx+k, cy-r, cx+r, cy-k, cx+r, cy)
	p.Close()
}

// Transform returns a copy of p mapped through m.
func (p *Path) Transform(m Matrix) *Path {
	out := &Path{elements: make([]PathElement, 0, len(p.elements))}
	for _, el := range p.elements {
		switch e := el.(type) {
		case MoveTo:
			pt := m.TransformPoint(e.Point)
			out.MoveTo(pt.X, pt.Y)
		case LineTo:
			pt := m.TransformPoint(e.Point)
			out.LineTo(pt.X, pt.Y)
		case QuadTo:
			c, pt := m.TransformPoint(e.Control), m.TransformPoint(e.Point)
			out.QuadTo(c.X, c.Y, pt.X, pt.Y)
		case CubeTo:
			c1, c2, pt := m.TransformPoint(e.Control1), m.TransformPoint(e.Control2), m.TransformPoint(e.Point)
			out.CubeTo(c1.X, c1.Y, c2.X, c2.Y, pt.X, pt.Y)
		case ClosePath:
			out.Close()
		}
	}
	return out
}

// Bounds returns the bounding box of all points, control points included.
func (p *Path) Bounds() Rect {
	var r Rect
	first := true
	add := func(pt Point) {
		if first {
			r = Rect{Min: pt, Max: pt}
			first = false
			return
		}
		r = r.Union(Rect{Min: pt, Max: pt})
	}
	for _, el := range p.elements {
		switch e := el.(type) {
		case MoveTo:
			add(e.Point)
		case LineTo:
			add(e.Point)
		case QuadTo:
			add(e.Control)
			add(e.Point)
		case CubeTo:
			add(e.Control1)
			add(e.Control2)
			add(e.Point)
		}
	}
	return r
}
