package logisim

// Transform is a uniform scale followed by a translation:
// Apply(v) = v*Scale + Offset. It is the world-to-screen mapping the
// renderer applies through Locals.GlobalScale and Locals.GlobalOffset.
type Transform struct {
	Offset Vec2
	Scale  float32
}

// IdentityTransform returns the transform that leaves points unchanged.
func IdentityTransform() Transform {
	return Transform{Scale: 1}
}

// TranslateBy returns a pure translation.
func TranslateBy(offset Vec2) Transform {
	return Transform{Offset: offset, Scale: 1}
}

// Apply maps a point.
func (t Transform) Apply(v Vec2) Vec2 {
	return Vec2{v.X*t.Scale + t.Offset.X, v.Y*t.Scale + t.Offset.Y}
}

// ApplyRect maps both corners of a rectangle.
func (t Transform) ApplyRect(r Rect) Rect {
	return Rect{Min: t.Apply(r.Min), Max: t.Apply(r.Max)}
}

// Inverse returns the transform undoing t. Scale must be non-zero.
func (t Transform) Inverse() Transform {
	return Transform{
		Offset: Vec2{-t.Offset.X / t.Scale, -t.Offset.Y / t.Scale},
		Scale:  1 / t.Scale,
	}
}

// Then returns the transform applying t first and then o.
func (t Transform) Then(o Transform) Transform {
	return Transform{Offset: o.Apply(t.Offset), Scale: t.Scale * o.Scale}
}

// Translate moves the transform's output by d.
func (t *Transform) Translate(d Vec2) {
	t.Offset = t.Offset.Add(d)
}

// Zoom changes the scale by delta, clamped to [lo, hi], keeping the
// screen point pos fixed. A zero delta is a no-op.
func (t *Transform) Zoom(pos Vec2, delta, lo, hi float32) {
	if delta == 0 {
		return
	}
	world := Vec2{(pos.X - t.Offset.X) / t.Scale, (pos.Y - t.Offset.Y) / t.Scale}
	t.Scale = min(max(t.Scale+delta, lo), hi)
	t.Offset = Vec2{pos.X - world.X*t.Scale, pos.Y - world.Y*t.Scale}
}

// ScreenToClip maps a screen pixel position (origin top-left, Y down) to
// normalized device coordinates: x' = 2x/W - 1, y' = 1 - 2y/H.
func ScreenToClip(p, screen Vec2) Vec2 {
	return Vec2{2*p.X/screen.X - 1, 1 - 2*p.Y/screen.Y}
}

// ClipToScreen is the inverse of ScreenToClip.
func ClipToScreen(c, screen Vec2) Vec2 {
	return Vec2{(c.X + 1) * screen.X / 2, (1 - c.Y) * screen.Y / 2}
}
