package pattern

import (
	"image"
	"math"
)

// Point is a 2D point or vector in user or device space.
type Point struct {
	X, Y float64
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns p+q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p-q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Rect is an axis-aligned rectangle with floating point coordinates.
// Min is inclusive, Max exclusive, as with image.Rectangle.
type Rect struct {
	Min, Max Point
}

// Width returns the horizontal extent of r.
func (r Rect) Width() float64 { return r.Max.X - r.Min.X }

// Height returns the vertical extent of r.
func (r Rect) Height() float64 { return r.Max.Y - r.Min.Y }

// Empty reports whether r contains no area.
func (r Rect) Empty() bool {
	return r.Min.X >= r.Max.X || r.Min.Y >= r.Max.Y
}

// Union returns the smallest rectangle containing r and s.
func (r Rect) Union(s Rect) Rect {
	return Rect{
		Min: Point{X: math.Min(r.Min.X, s.Min.X), Y: math.Min(r.Min.Y, s.Min.Y)},
		Max: Point{X: math.Max(r.Max.X, s.Max.X), Y: math.Max(r.Max.Y, s.Max.Y)},
	}
}

// Transform returns the bounding box of r mapped through m.
func (r Rect) Transform(m Matrix) Rect {
	corners := [4]Point{
		m.TransformPoint(r.Min),
		m.TransformPoint(Point{X: r.Max.X, Y: r.Min.Y}),
		m.TransformPoint(r.Max),
		m.TransformPoint(Point{X: r.Min.X, Y: r.Max.Y}),
	}
	out := Rect{Min: corners[0], Max: corners[0]}
	for _, c := range corners[1:] {
		out = out.Union(Rect{Min: c, Max: c})
	}
	return out
}

// Pixels returns the integer rectangle covering r: Min is floored and
// Max is ceiled.
func (r Rect) Pixels() image.Rectangle {
	return image.Rect(
		int(math.Floor(r.Min.X)), int(math.Floor(r.Min.Y)),
		int(math.Ceil(r.Max.X)), int(math.Ceil(r.Max.Y)),
	)
}
