package logisim

import (
	"image"
	"math"

	"github.com/gogpu/logisim/internal/parallel"
)

// bandHeight is the number of target rows per rasterizer task.
const bandHeight = 32

// rasterTri is a triangle in pixel space with per-vertex attributes.
type rasterTri struct {
	p     [3][2]float32
	uv    [3][2]float32
	color [3][4]float32

	// topLeft marks edges that own the pixels lying exactly on them.
	topLeft [3]bool

	area       float32
	minY, maxY int
	minX, maxX int
}

// rasterizer draws resolved triangles into an RGBA target. It mirrors the
// GPU pipeline: pixel centers sample at +0.5, attributes interpolate
// linearly, the atlas is sampled bilinearly with clamp-to-edge and the
// result is blended with (src.a, 1-src.a) on color and (1, 1-src.a) on alpha.
type rasterizer struct {
	target *image.RGBA
	atlas  *image.RGBA
	tris   []rasterTri
}

func newRasterizer(target, atlas *image.RGBA) *rasterizer {
	return &rasterizer{target: target, atlas: atlas}
}

// prepare resolves every vertex once and sets up the triangle list.
func (r *rasterizer) prepare(m *Mesh, l *Locals, current []Node) {
	w := float32(r.target.Rect.Dx())
	h := float32(r.target.Rect.Dy())
	screen := Vec2{w, h}

	resolved := make([]ResolvedVertex, len(m.Vertices))
	for i, v := range m.Vertices {
		resolved[i] = ResolveVertex(v, l, current)
	}

	r.tris = r.tris[:0]
	for i := 0; i+2 < len(m.Indices); i += 3 {
		var t rasterTri
		for k := range 3 {
			rv := resolved[m.Indices[i+k]]
			p := ClipToScreen(rv.Clip, screen)
			t.p[k] = [2]float32{p.X, p.Y}
			t.uv[k] = rv.UV
			t.color[k] = rv.Color
		}
		if !t.setup(int(w), int(h)) {
			continue
		}
		r.tris = append(r.tris, t)
	}
}

// setup computes the signed area, bounds and fill-rule edge owners. It returns
// false for degenerate or fully off-screen triangles.
func (t *rasterTri) setup(w, h int) bool {
	a, b, c := t.p[0], t.p[1], t.p[2]
	t.area = edge(a, b, c)
	if t.area == 0 || math.IsNaN(float64(t.area)) {
		return false
	}
	if t.area < 0 {
		// Reorder to positive winding so every edge function is >= 0 inside.
		t.p[1], t.p[2] = t.p[2], t.p[1]
		t.uv[1], t.uv[2] = t.uv[2], t.uv[1]
		t.color[1], t.color[2] = t.color[2], t.color[1]
		t.area = -t.area
	}
	for k := range 3 {
		p0, p1 := t.p[(k+1)%3], t.p[(k+2)%3]
		t.topLeft[k] = isTopLeft(p0, p1)
	}

	minX := min(t.p[0][0], t.p[1][0], t.p[2][0])
	maxX := max(t.p[0][0], t.p[1][0], t.p[2][0])
	minY := min(t.p[0][1], t.p[1][1], t.p[2][1])
	maxY := max(t.p[0][1], t.p[1][1], t.p[2][1])
	t.minX = max(int(math.Floor(float64(minX))), 0)
	t.maxX = min(int(math.Ceil(float64(maxX))), w-1)
	t.minY = max(int(math.Floor(float64(minY))), 0)
	t.maxY = min(int(math.Ceil(float64(maxY))), h-1)
	return t.minX <= t.maxX && t.minY <= t.maxY
}

// edge is the doubled signed area of (a, b, p). It is positive when p lies
// to the right of a->b in Y-down screen space.
func edge(a, b, p [2]float32) float32 {
	return (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
}

// isTopLeft reports whether the edge a->b of a positively wound triangle
// is a top or left edge in Y-down space.
func isTopLeft(a, b [2]float32) bool {
	dy := b[1] - a[1]
	dx := b[0] - a[0]
	return (dy == 0 && dx > 0) || dy < 0
}

// run rasterizes all triangles, one band of rows per pool task.
func (r *rasterizer) run(pool *parallel.WorkerPool) {
	h := r.target.Rect.Dy()
	bands := (h + bandHeight - 1) / bandHeight
	if pool == nil || bands <= 1 {
		r.band(0, h)
		return
	}
	work := make([]func(), 0, bands)
	for y0 := 0; y0 < h; y0 += bandHeight {
		y1 := min(y0+bandHeight, h)
		work = append(work, func() { r.band(y0, y1) })
	}
	pool.ExecuteAll(work)
}

// band draws every triangle clipped to rows [y0, y1).
func (r *rasterizer) band(y0, y1 int) {
	for i := range r.tris {
		t := &r.tris[i]
		lo := max(t.minY, y0)
		hi := min(t.maxY, y1-1)
		for y := lo; y <= hi; y++ {
			py := float32(y) + 0.5
			for x := t.minX; x <= t.maxX; x++ {
				p := [2]float32{float32(x) + 0.5, py}
				w0 := edge(t.p[1], t.p[2], p)
				w1 := edge(t.p[2], t.p[0], p)
				w2 := edge(t.p[0], t.p[1], p)
				if w0 < 0 || w1 < 0 || w2 < 0 {
					continue
				}
				if (w0 == 0 && !t.topLeft[0]) || (w1 == 0 && !t.topLeft[1]) || (w2 == 0 && !t.topLeft[2]) {
					continue
				}
				b0, b1, b2 := w0/t.area, w1/t.area, w2/t.area
				u := b0*t.uv[0][0] + b1*t.uv[1][0] + b2*t.uv[2][0]
				v := b0*t.uv[0][1] + b1*t.uv[1][1] + b2*t.uv[2][1]
				tex := r.sample(u, v)
				var c [4]float32
				for k := range 4 {
					c[k] = (b0*t.color[0][k] + b1*t.color[1][k] + b2*t.color[2][k]) * tex[k]
				}
				blendPixel(r.target, r.target.Rect.Min.X+x, r.target.Rect.Min.Y+y, c)
			}
		}
	}
}

// sample reads the atlas bilinearly at normalized (u, v) with clamp-to-edge
// addressing. Without an atlas every sample is opaque white.
func (r *rasterizer) sample(u, v float32) [4]float32 {
	img := r.atlas
	if img == nil {
		return [4]float32{1, 1, 1, 1}
	}
	size := img.Rect.Dx()
	fx := u*float32(size) - 0.5
	fy := v*float32(size) - 0.5
	x0 := int(math.Floor(float64(fx)))
	y0 := int(math.Floor(float64(fy)))
	tx := fx - float32(x0)
	ty := fy - float32(y0)

	var out [4]float32
	for _, s := range [4]struct {
		x, y int
		w    float32
	}{
		{x0, y0, (1 - tx) * (1 - ty)},
		{x0 + 1, y0, tx * (1 - ty)},
		{x0, y0 + 1, (1 - tx) * ty},
		{x0 + 1, y0 + 1, tx * ty},
	} {
		cx := min(max(s.x, 0), size-1)
		cy := min(max(s.y, 0), size-1)
		i := img.PixOffset(img.Rect.Min.X+cx, img.Rect.Min.Y+cy)
		for k := range 4 {
			out[k] += float32(img.Pix[i+k]) / 255 * s.w
		}
	}
	return out
}

// blendPixel applies source-over with the blend factors of the GPU
// pipeline: color = src*src.a + dst*(1-src.a), alpha = src.a + dst.a*(1-src.a).
func blendPixel(img *image.RGBA, x, y int, src [4]float32) {
	i := img.PixOffset(x, y)
	px := img.Pix[i : i+4 : i+4]
	a := min(max(src[3], 0), 1)
	inv := 1 - a
	for k := range 3 {
		dst := float32(px[k]) / 255
		px[k] = unitToByte(src[k]*a + dst*inv)
	}
	px[3] = unitToByte(a + float32(px[3])/255*inv)
}

// fillRGBA stores c in every pixel of img, byte for byte.
func fillRGBA(img *image.RGBA, c Color) {
	w := img.Rect.Dx()
	if w == 0 {
		return
	}
	p := [4]uint8{c.R(), c.G(), c.B(), c.A()}
	for y := range img.Rect.Dy() {
		row := img.Pix[img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y):]
		for x := range w {
			copy(row[x*4:x*4+4], p[:])
		}
	}
}
