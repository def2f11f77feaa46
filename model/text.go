package model

import (
	"bytes"
	"fmt"
	"math"

	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"github.com/gogpu/logisim"
	"github.com/gogpu/logisim/atlas"
	"github.com/gogpu/logisim/internal/cache"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/unicode/bidi"
)

// layoutCacheSize bounds the shaped labels kept per atlas.
const layoutCacheSize = 512

// shaper holds the parsed face for one atlas and the labels shaped with it.
// font.Face and HarfbuzzShaper are not safe for concurrent use; neither is
// Builder.
type shaper struct {
	face    *font.Face
	hb      shaping.HarfbuzzShaper
	layouts *cache.LRU[string, layout]
}

// placedGlyph is a glyph at a pen offset, in atlas pixels.
type placedGlyph struct {
	gid  uint16
	x, y float32
}

// layout is a shaped label. Y grows downward from the baseline.
type layout struct {
	glyphs  []placedGlyph
	advance float32
}

func (b *Builder) shaper(a *atlas.Atlas) (*shaper, error) {
	if s, ok := b.shapers[a]; ok {
		return s, nil
	}
	face, err := font.ParseTTF(bytes.NewReader(a.FontData()))
	if err != nil {
		return nil, fmt.Errorf("model: parse atlas font: %w", err)
	}
	if b.shapers == nil {
		b.shapers = make(map[*atlas.Atlas]*shaper)
	}
	s := &shaper{face: face, layouts: cache.New[string, layout](layoutCacheSize)}
	b.shapers[a] = s
	return s, nil
}

// shape lays out label at the atlas pixel size, one bidi run after another
// in visual order.
func (s *shaper) shape(label string, pixelSize float64) layout {
	if l, ok := s.layouts.Get(label); ok {
		return l
	}
	runes := []rune(label)
	ppem := fixed.Int26_6(math.Round(pixelSize * 64))

	var l layout
	for _, run := range bidiRuns(label, len(runes)) {
		dir := di.DirectionLTR
		if run.RTL {
			dir = di.DirectionRTL
		}
		out := s.hb.Shape(shaping.Input{
			Text:      runes,
			RunStart:  run.Start,
			RunEnd:    run.End,
			Direction: dir,
			Face:      s.face,
			Size:      ppem,
			Script:    language.LookupScript(runes[run.Start]),
			Language:  language.NewLanguage("en"),
		})
		for _, g := range out.Glyphs {
			l.glyphs = append(l.glyphs, placedGlyph{
				gid: uint16(g.GlyphID),
				x:   l.advance + fixedToFloat(g.XOffset),
				y:   -fixedToFloat(g.YOffset),
			})
			l.advance += fixedToFloat(g.Advance)
		}
	}
	s.layouts.Put(label, l)
	return l
}

// textRun is a directional run of runes, End exclusive.
type textRun struct {
	Start, End int
	RTL        bool
}

// bidiRuns splits text into directional runs in visual order. Text with no
// strong right-to-left characters is a single left-to-right run.
func bidiRuns(text string, n int) []textRun {
	if n == 0 {
		return nil
	}
	var p bidi.Paragraph
	if _, err := p.SetString(text, bidi.DefaultDirection(bidi.LeftToRight)); err != nil {
		return []textRun{{Start: 0, End: n}}
	}
	ordering, err := p.Order()
	if err != nil || ordering.NumRuns() == 0 {
		return []textRun{{Start: 0, End: n}}
	}
	runs := make([]textRun, 0, ordering.NumRuns())
	for i := range ordering.NumRuns() {
		run := ordering.Run(i)
		start, end := run.Pos()
		runs = append(runs, textRun{
			Start: start,
			End:   min(end+1, n),
			RTL:   run.Direction() == bidi.RightToLeft,
		})
	}
	return runs
}

// Text lays out label with its top-left corner at pos and a line height of
// size world units, adding one quad per visible glyph. Glyphs the atlas does
// not hold advance the pen but draw nothing. It returns the layout box.
func (b *Builder) Text(a *atlas.Atlas, label string, pos logisim.Vec2, size float32, src logisim.ColorSource) (logisim.Rect, error) {
	box := logisim.Rect{Min: pos, Max: logisim.V2(pos.X, pos.Y+size)}
	if label == "" {
		return box, nil
	}
	s, err := b.shaper(a)
	if err != nil {
		return box, err
	}

	scale := size / float32(a.PixelSize())
	baseline := pos.Y + a.Ascent()*scale
	l := s.shape(label, a.PixelSize())
	for _, g := range l.glyphs {
		reg, ok := a.Glyph(g.gid)
		if !ok || reg.Empty() {
			continue
		}
		sz := reg.Size()
		tl := logisim.V2(
			pos.X+(g.x+float32(reg.Origin[0]))*scale,
			baseline+(g.y+float32(reg.Origin[1]))*scale,
		)
		b.Rect(logisim.RectFromMinSize(tl, logisim.V2(float32(sz[0])*scale, float32(sz[1])*scale)), reg, src)
	}
	box.Max.X = pos.X + l.advance*scale
	return box, nil
}

// MeasureText returns the advance width of label at size without adding
// geometry.
func (b *Builder) MeasureText(a *atlas.Atlas, label string, size float32) (float32, error) {
	if label == "" {
		return 0, nil
	}
	s, err := b.shaper(a)
	if err != nil {
		return 0, err
	}
	return s.shape(label, a.PixelSize()).advance * size / float32(a.PixelSize()), nil
}

func fixedToFloat(v fixed.Int26_6) float32 {
	return float32(v) / 64
}
