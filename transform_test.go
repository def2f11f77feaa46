package logisim

import (
	"math"
	"testing"
)

func approx(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-4
}

func approxVec(a, b Vec2) bool {
	return approx(a.X, b.X) && approx(a.Y, b.Y)
}

// The screen corners and center map to the clip corners and origin.
func TestScreenToClipCorners(t *testing.T) {
	screen := V2(800, 600)
	tests := []struct {
		p, want Vec2
	}{
		{V2(0, 0), V2(-1, 1)},
		{V2(800, 0), V2(1, 1)},
		{V2(800, 600), V2(1, -1)},
		{V2(0, 600), V2(-1, -1)},
		{V2(400, 300), V2(0, 0)},
	}
	for _, tt := range tests {
		got := ScreenToClip(tt.p, screen)
		if !approxVec(got, tt.want) {
			t.Errorf("ScreenToClip(%v) = %v, want %v", tt.p, got, tt.want)
		}
		if back := ClipToScreen(got, screen); !approxVec(back, tt.p) {
			t.Errorf("ClipToScreen(%v) = %v, want %v", got, back, tt.p)
		}
	}
}

func TestTransformApplyInverse(t *testing.T) {
	tr := Transform{Offset: V2(10, -5), Scale: 2.5}
	p := V2(3, 4)
	q := tr.Apply(p)
	if !approxVec(q, V2(17.5, 5)) {
		t.Errorf("Apply(%v) = %v, want (17.5, 5)", p, q)
	}
	if back := tr.Inverse().Apply(q); !approxVec(back, p) {
		t.Errorf("Inverse().Apply(%v) = %v, want %v", q, back, p)
	}
	if id := tr.Then(tr.Inverse()); !approx(id.Scale, 1) || !approxVec(id.Offset, Vec2{}) {
		t.Errorf("Then(Inverse()) = %+v, want identity", id)
	}
}

func TestTransformZoomKeepsPoint(t *testing.T) {
	tr := Transform{Offset: V2(30, 40), Scale: 1}
	pos := V2(200, 100)
	world := tr.Inverse().Apply(pos)

	tr.Zoom(pos, 0.5, 0.1, 10)
	if !approx(tr.Scale, 1.5) {
		t.Errorf("Scale = %v, want 1.5", tr.Scale)
	}
	if got := tr.Apply(world); !approxVec(got, pos) {
		t.Errorf("zoom moved anchor: %v, want %v", got, pos)
	}

	tr.Zoom(pos, 100, 0.1, 10)
	if tr.Scale != 10 {
		t.Errorf("Scale = %v, want clamp to 10", tr.Scale)
	}

	before := tr
	tr.Zoom(pos, 0, 0.1, 10)
	if tr != before {
		t.Error("Zoom with zero delta changed the transform")
	}
}

func TestTransformApplyRect(t *testing.T) {
	tr := Transform{Offset: V2(1, 1), Scale: 2}
	r := tr.ApplyRect(RectFromMinSize(V2(0, 0), V2(2, 3)))
	if r.Min != V2(1, 1) || r.Max != V2(5, 7) {
		t.Errorf("ApplyRect = %+v", r)
	}
	tr.Translate(V2(1, 0))
	if tr.Offset != V2(2, 1) {
		t.Errorf("Translate: Offset = %v", tr.Offset)
	}
}

func TestRect(t *testing.T) {
	r := RectFromCenterSize(V2(5, 5), V2(4, 2))
	if r.Min != V2(3, 4) || r.Max != V2(7, 6) {
		t.Errorf("RectFromCenterSize = %+v", r)
	}
	if r.Center() != V2(5, 5) || r.Size() != V2(4, 2) {
		t.Errorf("Center/Size = %v %v", r.Center(), r.Size())
	}
	c := r.Corners()
	if c[0] != r.TL() || c[1] != V2(7, 4) || c[2] != r.BR() || c[3] != V2(3, 6) {
		t.Errorf("Corners() = %v", c)
	}
	if !r.Contains(V2(3, 4)) || r.Contains(V2(8, 5)) {
		t.Error("Contains wrong")
	}
	if s := r.Shrink(V2(2, 1)); !s.Empty() {
		t.Errorf("Shrink to zero = %+v, want empty", s)
	}
	var acc Rect
	acc = acc.ExpandToContain(V2(2, 3))
	acc = acc.ExpandToContain(V2(-1, 5))
	if acc.Min != V2(-1, 3) || acc.Max != V2(2, 5) {
		t.Errorf("ExpandToContain = %+v", acc)
	}
	if c := RectFromCircle(V2(0, 0), 2); c.Size() != V2(4, 4) {
		t.Errorf("RectFromCircle size = %v", c.Size())
	}
}
