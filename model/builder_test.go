package model

import (
	"math"
	"testing"

	"github.com/gogpu/logisim"
	"github.com/gogpu/logisim/atlas"
)

var white = atlas.Region{Min: [2]uint32{1, 1}, Max: [2]uint32{3, 3}}

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-3
}

func TestQuadAndTri(t *testing.T) {
	b := NewBuilder(white)
	red := logisim.LiteralColor(logisim.Red)

	b.Quad(logisim.RectFromMinSize(logisim.V2(0, 0), logisim.V2(4, 2)).Corners(), white, red)
	b.Tri([3]logisim.Vec2{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}}, white, red)

	m := b.Mesh()
	if len(m.Vertices) != 7 || len(m.Indices) != 9 {
		t.Fatalf("got %d vertices, %d indices; want 7, 9", len(m.Vertices), len(m.Indices))
	}
	wantIdx := []uint32{0, 1, 2, 0, 2, 3, 4, 5, 6}
	for i, idx := range wantIdx {
		if m.Indices[i] != idx {
			t.Fatalf("Indices = %v, want %v", m.Indices, wantIdx)
		}
	}
	if m.Vertices[2].UV != [2]uint32{3, 3} {
		t.Errorf("bottom-right UV = %v, want [3 3]", m.Vertices[2].UV)
	}
	if err := m.Validate(0, 4); err != nil {
		t.Errorf("Validate error: %v", err)
	}
	if got := b.Bounds(); got.Min != logisim.V2(0, 0) || got.Max != logisim.V2(4, 2) {
		t.Errorf("Bounds() = %+v", got)
	}
}

func TestTransformApplied(t *testing.T) {
	b := NewBuilder(white)
	b.Transform = logisim.Transform{Offset: logisim.V2(10, 20), Scale: 2}
	b.Rect(logisim.RectFromMinSize(logisim.V2(1, 1), logisim.V2(1, 1)), white, logisim.LiteralColor(logisim.White))

	got := b.Bounds()
	if got.Min != logisim.V2(12, 22) || got.Max != logisim.V2(14, 24) {
		t.Errorf("Bounds() = %+v, want (12,22)-(14,24)", got)
	}
}

func TestLineWidth(t *testing.T) {
	b := NewBuilder(white)
	b.Line([2]logisim.Vec2{logisim.V2(0, 0), logisim.V2(10, 0)}, 2, white, logisim.NodeColor(5))

	got := b.Bounds()
	if !near(got.Min.Y, -1) || !near(got.Max.Y, 1) || !near(got.Min.X, 0) || !near(got.Max.X, 10) {
		t.Errorf("Bounds() = %+v, want (0,-1)-(10,1)", got)
	}
	for i, v := range b.Mesh().Vertices {
		if v.IsNodeAddr != 1 || v.ColorOrNode != 5 {
			t.Errorf("vertex %d does not follow node 5: %+v", i, v)
		}
	}

	b.Line([2]logisim.Vec2{logisim.V2(3, 3), logisim.V2(3, 3)}, 2, white, logisim.NodeColor(5))
	if b.Len() != 4 {
		t.Errorf("degenerate line added vertices: Len() = %d", b.Len())
	}
}

func TestCurves(t *testing.T) {
	b := NewBuilder(white)
	src := logisim.LiteralColor(logisim.Black)
	b.Curve([3]logisim.Vec2{logisim.V2(0, 0), logisim.V2(5, 10), logisim.V2(10, 0)}, 4, 1, src)
	if b.Len() != 16 {
		t.Errorf("Curve detail 4: Len() = %d, want 16", b.Len())
	}
	// The apex of the quadratic is at half the control height.
	if got := b.Bounds().Max.Y; got < 4.5 || got > 5.6 {
		t.Errorf("Curve max y = %g, want about 5", got)
	}

	b.Clear()
	b.CubicCurve([4]logisim.Vec2{logisim.V2(0, 0), logisim.V2(0, 10), logisim.V2(10, 10), logisim.V2(10, 0)}, 8, 1, src)
	if b.Len() != 32 {
		t.Errorf("CubicCurve detail 8: Len() = %d, want 32", b.Len())
	}
}

func TestCircles(t *testing.T) {
	b := NewBuilder(white)
	src := logisim.NodeColor(1)
	c := logisim.V2(50, 50)

	b.Circle(c, 10, 16, src)
	if b.Len() != 48 || len(b.Mesh().Indices) != 48 {
		t.Errorf("Circle detail 16: %d vertices, %d indices", b.Len(), len(b.Mesh().Indices))
	}
	got := b.Bounds()
	if !near(got.Min.X, 40) || !near(got.Max.X, 60) || !near(got.Min.Y, 40) || !near(got.Max.Y, 60) {
		t.Errorf("Circle bounds = %+v", got)
	}

	b.Clear()
	// A quarter from 0 (down) to 0.25 (right) stays in the bottom-right quadrant.
	b.CircleSection(c, 10, 4, [2]float32{0, 0.25}, src)
	got = b.Bounds()
	if got.Min.X < 50-1e-3 || got.Min.Y < 50-1e-3 {
		t.Errorf("CircleSection bounds = %+v, want bottom-right quadrant", got)
	}

	b.Clear()
	b.CircleOutline(c, 10, 2, 12, src)
	if b.Len() != 48 {
		t.Errorf("CircleOutline detail 12: Len() = %d, want 48", b.Len())
	}
	if got := b.Bounds(); got.Max.X < 60.9 {
		t.Errorf("CircleOutline should extend past the radius: %+v", got)
	}
}

func TestRectangles(t *testing.T) {
	b := NewBuilder(white)
	src := logisim.LiteralColor(logisim.Gray)
	r := logisim.RectFromMinSize(logisim.V2(0, 0), logisim.V2(20, 10))

	b.RectOutline(r, 1, src)
	if b.Len() != 16 {
		t.Errorf("RectOutline: Len() = %d, want 16", b.Len())
	}

	b.Clear()
	b.RoundedRect(r, 2, 3, white, src)
	// Five strips plus four corner fans of three triangles.
	if want := 5*4 + 4*3*3; b.Len() != want {
		t.Errorf("RoundedRect: Len() = %d, want %d", b.Len(), want)
	}
	got := b.Bounds()
	if !near(got.Min.X, 0) || !near(got.Min.Y, 0) || !near(got.Max.X, 20) || !near(got.Max.Y, 10) {
		t.Errorf("RoundedRect bounds = %+v, want %+v", got, r)
	}

	b.Clear()
	b.RoundedRectOutline(r, 1, 2, 3, src)
	if want := 4*3*4 + 4*4; b.Len() != want {
		t.Errorf("RoundedRectOutline: Len() = %d, want %d", b.Len(), want)
	}
}

func TestClear(t *testing.T) {
	b := NewBuilder(white)
	b.Transform.Scale = 3
	b.Rect(logisim.RectFromMinSize(logisim.V2(0, 0), logisim.V2(1, 1)), white, logisim.LiteralColor(0))
	b.Clear()
	if !b.Mesh().Empty() || b.Len() != 0 {
		t.Error("Clear should drop geometry")
	}
	if b.Transform != logisim.IdentityTransform() {
		t.Errorf("Clear should reset Transform, got %+v", b.Transform)
	}
	if b.Bounds() != (logisim.Rect{}) {
		t.Errorf("Clear should reset Bounds, got %+v", b.Bounds())
	}
}
