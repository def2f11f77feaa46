package logisim

import "math"

// Vec2 is a 2D point or vector in float32, matching the vertex layout.
type Vec2 struct {
	X, Y float32
}

// V2 is shorthand for Vec2{X: x, Y: y}.
func V2(x, y float32) Vec2 { return Vec2{X: x, Y: y} }

// Add returns v + o.
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }

// Sub returns v - o.
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }

// Scale returns v * s.
func (v Vec2) Scale(s float32) Vec2 { return Vec2{v.X * s, v.Y * s} }

// Perp returns v rotated by 90 degrees counter-clockwise.
func (v Vec2) Perp() Vec2 { return Vec2{-v.Y, v.X} }

// Len returns the Euclidean length.
func (v Vec2) Len() float32 {
	return float32(math.Hypot(float64(v.X), float64(v.Y)))
}

// Normalize returns v scaled to unit length. The zero vector is returned as is.
func (v Vec2) Normalize() Vec2 {
	l := v.Len()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// Lerp interpolates between v and o.
func (v Vec2) Lerp(o Vec2, t float32) Vec2 {
	return Vec2{v.X + (o.X-v.X)*t, v.Y + (o.Y-v.Y)*t}
}

// Rect is an axis-aligned rectangle in screen orientation (Y grows down).
type Rect struct {
	Min, Max Vec2
}

// RectFromMinSize builds a rectangle from its top-left corner and size.
func RectFromMinSize(origin, size Vec2) Rect {
	return Rect{Min: origin, Max: origin.Add(size)}
}

// RectFromCenterSize builds a rectangle centered at c.
func RectFromCenterSize(c, size Vec2) Rect {
	half := size.Scale(0.5)
	return Rect{Min: c.Sub(half), Max: c.Add(half)}
}

// RectFromCircle returns the bounding box of a circle.
func RectFromCircle(c Vec2, r float32) Rect {
	return Rect{Min: Vec2{c.X - r, c.Y - r}, Max: Vec2{c.X + r, c.Y + r}}
}

// Expand grows the rectangle by d on every side.
func (r Rect) Expand(d Vec2) Rect { return Rect{Min: r.Min.Sub(d), Max: r.Max.Add(d)} }

// Shrink shrinks the rectangle by d on every side.
func (r Rect) Shrink(d Vec2) Rect { return r.Expand(d.Scale(-1)) }

// TL returns the top-left corner.
func (r Rect) TL() Vec2 { return r.Min }

// TR returns the top-right corner.
func (r Rect) TR() Vec2 { return Vec2{r.Max.X, r.Min.Y} }

// BR returns the bottom-right corner.
func (r Rect) BR() Vec2 { return r.Max }

// BL returns the bottom-left corner.
func (r Rect) BL() Vec2 { return Vec2{r.Min.X, r.Max.Y} }

// Corners returns the corners clockwise from the top-left.
func (r Rect) Corners() [4]Vec2 { return [4]Vec2{r.TL(), r.TR(), r.BR(), r.BL()} }

// Size returns the width and height.
func (r Rect) Size() Vec2 { return r.Max.Sub(r.Min) }

// Center returns the center point.
func (r Rect) Center() Vec2 { return r.Min.Lerp(r.Max, 0.5) }

// Contains reports whether p lies inside the rectangle, edges included.
func (r Rect) Contains(p Vec2) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.Max.X <= r.Min.X || r.Max.Y <= r.Min.Y }

// ExpandToContain returns the smallest rectangle holding r and p.
// An empty rectangle becomes the degenerate rectangle at p.
func (r Rect) ExpandToContain(p Vec2) Rect {
	if r == (Rect{}) {
		return Rect{Min: p, Max: p}
	}
	return Rect{
		Min: Vec2{min(r.Min.X, p.X), min(r.Min.Y, p.Y)},
		Max: Vec2{max(r.Max.X, p.X), max(r.Max.Y, p.Y)},
	}
}

// Translate moves the rectangle by d.
func (r Rect) Translate(d Vec2) Rect { return Rect{Min: r.Min.Add(d), Max: r.Max.Add(d)} }
