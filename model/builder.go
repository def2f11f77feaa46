// Package model builds circuit meshes for the logisim renderer.
//
// A Builder accumulates triangles in world space. Every geometry call takes
// a logisim.ColorSource: a literal color draws a fixed shape, a node color
// draws a shape that follows the logic level of that node on every frame,
// which is how wires and indicator lights come alive without rebuilding the
// mesh.
//
// Solid geometry samples the atlas white region; textured quads and text
// sample any atlas region.
package model

import (
	"math"

	"github.com/gogpu/logisim"
	"github.com/gogpu/logisim/atlas"
)

// Builder accumulates an indexed triangle mesh.
//
// Builder is not safe for concurrent use.
type Builder struct {
	// Transform is applied to every point as it is added.
	Transform logisim.Transform

	// White is the atlas region used by solid geometry.
	White atlas.Region

	vertices  []logisim.Vertex
	indices   []uint32
	bounds    logisim.Rect
	hasBounds bool

	shapers map[*atlas.Atlas]*shaper
}

// NewBuilder returns an empty builder with the identity transform that
// fills solid geometry from white.
func NewBuilder(white atlas.Region) *Builder {
	return &Builder{Transform: logisim.IdentityTransform(), White: white}
}

// Clear drops all geometry and resets the transform. Allocations are kept.
func (b *Builder) Clear() {
	b.vertices = b.vertices[:0]
	b.indices = b.indices[:0]
	b.bounds = logisim.Rect{}
	b.hasBounds = false
	b.Transform = logisim.IdentityTransform()
}

// Bounds returns the world-space bounding box of everything added so far.
func (b *Builder) Bounds() logisim.Rect { return b.bounds }

// Len returns the number of vertices.
func (b *Builder) Len() int { return len(b.vertices) }

// Mesh returns the accumulated mesh. The slices alias the builder's storage
// until the next Clear.
func (b *Builder) Mesh() *logisim.Mesh {
	return &logisim.Mesh{Vertices: b.vertices, Indices: b.indices}
}

func (b *Builder) push(pos logisim.Vec2, uv [2]uint32, src logisim.ColorSource) {
	p := b.Transform.Apply(pos)
	if b.hasBounds {
		b.bounds = b.bounds.ExpandToContain(p)
	} else {
		b.bounds = logisim.Rect{Min: p, Max: p}
		b.hasBounds = true
	}
	b.vertices = append(b.vertices, logisim.NewVertex(p, uv, src))
}

// Tri adds a triangle textured with the first three corners of tex.
func (b *Builder) Tri(points [3]logisim.Vec2, tex atlas.Region, src logisim.ColorSource) {
	uv := tex.UVCoords()
	i := uint32(len(b.vertices))
	for k, p := range points {
		b.push(p, uv[k], src)
	}
	b.indices = append(b.indices, i, i+1, i+2)
}

// Quad adds a quad given in top-left, top-right, bottom-right, bottom-left
// order, textured with tex.
func (b *Builder) Quad(points [4]logisim.Vec2, tex atlas.Region, src logisim.ColorSource) {
	uv := tex.UVCoords()
	i := uint32(len(b.vertices))
	for k, p := range points {
		b.push(p, uv[k], src)
	}
	b.indices = append(b.indices, i, i+1, i+2, i, i+2, i+3)
}

// Line adds a segment of width w as a quad. Degenerate segments add nothing.
func (b *Builder) Line(points [2]logisim.Vec2, w float32, tex atlas.Region, src logisim.ColorSource) {
	a, c := points[0], points[1]
	if a == c {
		return
	}
	p := c.Sub(a).Perp().Normalize().Scale(w * 0.5)
	b.Quad([4]logisim.Vec2{c.Sub(p), c.Add(p), a.Add(p), a.Sub(p)}, tex, src)
}

// Curve adds a quadratic Bézier stroke approximated by detail segments.
func (b *Builder) Curve(points [3]logisim.Vec2, detail uint32, w float32, src logisim.ColorSource) {
	prev := points[0]
	for step := uint32(1); step <= detail; step++ {
		t := float32(step) / float32(detail)
		p := lerpQuad(points[0], points[1], points[2], t)
		b.Line([2]logisim.Vec2{prev, p}, w, b.White, src)
		prev = p
	}
}

// CubicCurve adds a cubic Bézier stroke approximated by detail segments.
func (b *Builder) CubicCurve(points [4]logisim.Vec2, detail uint32, w float32, src logisim.ColorSource) {
	prev := points[0]
	for step := uint32(1); step <= detail; step++ {
		t := float32(step) / float32(detail)
		p := lerpCube(points[0], points[1], points[2], points[3], t)
		b.Line([2]logisim.Vec2{prev, p}, w, b.White, src)
		prev = p
	}
}

// Circle adds a filled circle as a fan of detail triangles.
func (b *Builder) Circle(center logisim.Vec2, r float32, detail uint32, src logisim.ColorSource) {
	b.CircleSection(center, r, detail, [2]float32{0, 1}, src)
}

// CircleOutline adds a ring of width w made of detail segments.
func (b *Builder) CircleOutline(center logisim.Vec2, r, w float32, detail uint32, src logisim.ColorSource) {
	b.CircleOutlineSection(center, r, w, detail, [2]float32{0, 1}, src)
}

// CircleSection adds a filled pie slice. The range is in turns, where 0 points
// down (+Y) and 0.25 points right (+X).
func (b *Builder) CircleSection(center logisim.Vec2, r float32, detail uint32, rng [2]float32, src logisim.ColorSource) {
	prev := arcPoint(center, r, rng[0])
	for step := uint32(1); step <= detail; step++ {
		p := arcPoint(center, r, rng[0]+(rng[1]-rng[0])*float32(step)/float32(detail))
		b.Tri([3]logisim.Vec2{prev, p, center}, b.White, src)
		prev = p
	}
}

// CircleOutlineSection adds an arc stroke over rng turns.
func (b *Builder) CircleOutlineSection(center logisim.Vec2, r, w float32, detail uint32, rng [2]float32, src logisim.ColorSource) {
	prev := arcPoint(center, r, rng[0])
	for step := uint32(1); step <= detail; step++ {
		p := arcPoint(center, r, rng[0]+(rng[1]-rng[0])*float32(step)/float32(detail))
		b.Line([2]logisim.Vec2{prev, p}, w, b.White, src)
		prev = p
	}
}

// Rect adds an axis-aligned rectangle textured with tex.
func (b *Builder) Rect(r logisim.Rect, tex atlas.Region, src logisim.ColorSource) {
	b.Quad(r.Corners(), tex, src)
}

// RectOutline strokes the four edges of r with width w.
func (b *Builder) RectOutline(r logisim.Rect, w float32, src logisim.ColorSource) {
	b.Line([2]logisim.Vec2{r.TL(), r.TR()}, w, b.White, src)
	b.Line([2]logisim.Vec2{r.TR(), r.BR()}, w, b.White, src)
	b.Line([2]logisim.Vec2{r.BL(), r.BR()}, w, b.White, src)
	b.Line([2]logisim.Vec2{r.TL(), r.BL()}, w, b.White, src)
}

// RoundedRect adds a filled rectangle with corners of radius rad. The center
// and edge strips are textured with tex, the corners with White.
func (b *Builder) RoundedRect(r logisim.Rect, rad float32, detail uint32, tex atlas.Region, src logisim.ColorSource) {
	d := logisim.V2(rad, rad)
	inner := r.Shrink(d)
	b.Rect(inner, tex, src)

	b.Rect(logisim.Rect{Min: inner.TL().Sub(logisim.V2(rad, 0)), Max: inner.BL()}, tex, src)
	b.Rect(logisim.Rect{Min: inner.TL().Sub(logisim.V2(0, rad)), Max: inner.TR()}, tex, src)
	b.Rect(logisim.Rect{Min: inner.TR(), Max: inner.BR().Add(logisim.V2(rad, 0))}, tex, src)
	b.Rect(logisim.Rect{Min: inner.BL(), Max: inner.BR().Add(logisim.V2(0, rad))}, tex, src)

	b.CircleSection(inner.TL(), rad, detail, [2]float32{0.50, 0.75}, src)
	b.CircleSection(inner.TR(), rad, detail, [2]float32{0.25, 0.50}, src)
	b.CircleSection(inner.BR(), rad, detail, [2]float32{0.00, 0.25}, src)
	b.CircleSection(inner.BL(), rad, detail, [2]float32{0.75, 1.00}, src)
}

// RoundedRectOutline strokes a rounded rectangle with width w.
func (b *Builder) RoundedRectOutline(r logisim.Rect, w, rad float32, detail uint32, src logisim.ColorSource) {
	inner := r.Shrink(logisim.V2(rad, rad))
	b.CircleOutlineSection(inner.TL(), rad, w, detail, [2]float32{0.50, 0.75}, src)
	b.CircleOutlineSection(inner.TR(), rad, w, detail, [2]float32{0.25, 0.50}, src)
	b.CircleOutlineSection(inner.BR(), rad, w, detail, [2]float32{0.00, 0.25}, src)
	b.CircleOutlineSection(inner.BL(), rad, w, detail, [2]float32{0.75, 1.00}, src)

	x, y := logisim.V2(rad, 0), logisim.V2(0, rad)
	b.Line([2]logisim.Vec2{r.TL().Add(x), r.TR().Sub(x)}, w, b.White, src)
	b.Line([2]logisim.Vec2{r.TR().Add(y), r.BR().Sub(y)}, w, b.White, src)
	b.Line([2]logisim.Vec2{r.BL().Add(x), r.BR().Sub(x)}, w, b.White, src)
	b.Line([2]logisim.Vec2{r.TL().Add(y), r.BL().Sub(y)}, w, b.White, src)
}

func arcPoint(center logisim.Vec2, r, turns float32) logisim.Vec2 {
	s, c := math.Sincos(float64(turns) * 2 * math.Pi)
	return center.Add(logisim.V2(float32(s), float32(c)).Scale(r))
}

func lerpQuad(p0, p1, p2 logisim.Vec2, t float32) logisim.Vec2 {
	return p0.Lerp(p1, t).Lerp(p1.Lerp(p2, t), t)
}

func lerpCube(p0, p1, p2, p3 logisim.Vec2, t float32) logisim.Vec2 {
	return lerpQuad(p0, p1, p2, t).Lerp(lerpQuad(p1, p2, p3, t), t)
}
