// Package images - Frame and box geometry shared across the pipeline.
package images

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Point is a 2D point in pixel units.
type Point struct {
	X float32
	Y float32
}

// Distance returns the euclidean distance to another point.
func (p Point) Distance(o Point) float32 {
	dx := p.X - o.X
	dy := p.Y - o.Y
	return math32.Sqrt(dx*dx + dy*dy)
}

// Rect is a bounding box: top-left corner plus size, in pixel units.
// Width and Height are never negative for boxes produced by this module.
type Rect struct {
	X      float32 `json:"x"`
	Y      float32 `json:"y"`
	Width  float32 `json:"width"`
	Height float32 `json:"height"`
}

// NewRect constructs a Rect from a top-left corner and size.
func NewRect(x, y, width, height float32) Rect {
	return Rect{X: x, Y: y, Width: width, Height: height}
}

// RectFromCenter constructs a Rect from a center point and size.
func RectFromCenter(cx, cy, width, height float32) Rect {
	return Rect{X: cx - width/2, Y: cy - height/2, Width: width, Height: height}
}

// X2 returns the exclusive right edge.
func (r Rect) X2() float32 { return r.X + r.Width }

// Y2 returns the exclusive bottom edge.
func (r Rect) Y2() float32 { return r.Y + r.Height }

// Area returns Width * Height.
func (r Rect) Area() float32 {
	return r.Width * r.Height
}

// Center returns the midpoint of the box.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Intersection returns the area of the axis-aligned overlap between r and o.
// The result is 0 whenever the overlap width or height is non-positive.
func (r Rect) Intersection(o Rect) float32 {
	ix1 := max(r.X, o.X)
	iy1 := max(r.Y, o.Y)
	ix2 := min(r.X2(), o.X2())
	iy2 := min(r.Y2(), o.Y2())

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0
	}
	return interW * interH
}

// Union returns the combined area of r and o, counting the overlap once.
func (r Rect) Union(o Rect) float32 {
	return r.Area() + o.Area() - r.Intersection(o)
}

// IOU returns the Intersection-over-Union score between r and o.
//
// The score is Intersection / (Area(r) + Area(o) - Intersection), a value in
// [0, 1]: identical boxes with positive area score 1, disjoint boxes score 0.
func (r Rect) IOU(o Rect) float32 {
	inter := r.Intersection(o)
	if inter <= 0 {
		return 0
	}
	return inter / (r.Area() + o.Area() - inter)
}

func (r Rect) String() string {
	return fmt.Sprintf("(%.1f, %.1f) %.1fx%.1f", r.X, r.Y, r.Width, r.Height)
}
