// Package atlas builds the texture atlas sampled by the circuit renderer.
//
// An atlas is a square RGBA image holding a small opaque white block, used
// for untextured geometry, and one coverage bitmap per glyph of a charset.
// Texels are stored as straight (non-premultiplied) white with the glyph
// coverage in alpha, so the renderer can tint them with any vertex color.
//
// Glyph outlines come from an OpenType font (Go Regular by default) and are
// rasterized with golang.org/x/image/vector.
package atlas

import (
	"errors"
	"fmt"
	"image"
	"math"
	"slices"

	"github.com/gogpu/logisim"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// Defaults used by Build for zero Options fields.
const (
	DefaultPixelSize = 32
	DefaultPadding   = 1
	DefaultWhiteSize = 4

	// DefaultCharset is printable ASCII.
	DefaultCharset = " !\"#$%&'()*+,-./0123456789:;<=>?@ABCDEFGHIJKLMNOPQRSTUVWXYZ[\\]^_`abcdefghijklmnopqrstuvwxyz{|}~"

	minSize = 64
	maxSize = 4096
)

// ErrNoGlyphs is returned when none of the charset runes map to a glyph.
var ErrNoGlyphs = errors.New("atlas: charset has no glyphs in font")

// Options configures Build.
type Options struct {
	// Font is an OpenType or TrueType font file. Nil selects Go Regular.
	Font []byte

	// PixelSize is the em size glyphs are rasterized at.
	PixelSize float64

	// Charset lists the runes to rasterize. Runes missing from the font
	// are skipped.
	Charset string

	// Padding is the number of empty texels around each bitmap.
	Padding int

	// WhiteSize is the edge length of the white block. Its border texels
	// are excluded from Atlas.White so bilinear sampling stays opaque.
	WhiteSize int
}

func (o Options) withDefaults() Options {
	if o.Font == nil {
		o.Font = goregular.TTF
	}
	if o.PixelSize <= 0 {
		o.PixelSize = DefaultPixelSize
	}
	if o.Charset == "" {
		o.Charset = DefaultCharset
	}
	if o.Padding <= 0 {
		o.Padding = DefaultPadding
	}
	if o.WhiteSize < 3 {
		o.WhiteSize = DefaultWhiteSize
	}
	return o
}

// Region is a rectangle of atlas texels plus glyph placement metrics.
type Region struct {
	// Min and Max are the texel bounds, Max exclusive.
	Min, Max [2]uint32

	// Origin is the offset from the pen position on the baseline to the
	// top-left corner of the bitmap, in pixels at the atlas pixel size.
	Origin [2]int32

	// Advance is the horizontal pen advance in pixels.
	Advance float32
}

// Size returns the width and height in texels.
func (r Region) Size() [2]uint32 {
	return [2]uint32{r.Max[0] - r.Min[0], r.Max[1] - r.Min[1]}
}

// Empty reports whether the region covers no texels.
func (r Region) Empty() bool {
	return r.Max[0] <= r.Min[0] || r.Max[1] <= r.Min[1]
}

// UVCoords returns the texel corners in quad order: top-left, top-right,
// bottom-right, bottom-left.
func (r Region) UVCoords() [4][2]uint32 {
	return [4][2]uint32{
		{r.Min[0], r.Min[1]},
		{r.Max[0], r.Min[1]},
		{r.Max[0], r.Max[1]},
		{r.Min[0], r.Max[1]},
	}
}

// Atlas is a packed glyph atlas.
type Atlas struct {
	// Image is Size x Size texels.
	Image *image.RGBA
	Size  uint32

	// White is an opaque white area for solid fills.
	White Region

	glyphs    map[sfnt.GlyphIndex]Region
	runes     map[rune]sfnt.GlyphIndex
	fontData  []byte
	pixelSize float64
	ascent    float32
	descent   float32
}

type bitmap struct {
	gid    sfnt.GlyphIndex
	mask   *image.Alpha
	origin [2]int32
	adv    float32
}

// Build rasterizes the charset and packs it with the white block into the
// smallest power-of-two square that fits.
func Build(opts Options) (*Atlas, error) {
	opts = opts.withDefaults()

	f, err := opentype.Parse(opts.Font)
	if err != nil {
		return nil, fmt.Errorf("atlas: parse font: %w", err)
	}
	ppem := fixed.Int26_6(math.Round(opts.PixelSize * 64))

	var buf sfnt.Buffer
	m, err := f.Metrics(&buf, ppem, font.HintingNone)
	if err != nil {
		return nil, fmt.Errorf("atlas: font metrics: %w", err)
	}

	a := &Atlas{
		glyphs:    make(map[sfnt.GlyphIndex]Region),
		runes:     make(map[rune]sfnt.GlyphIndex),
		fontData:  opts.Font,
		pixelSize: opts.PixelSize,
		ascent:    fixedToFloat(m.Ascent),
		descent:   fixedToFloat(m.Descent),
	}

	var bitmaps []bitmap
	seen := make(map[sfnt.GlyphIndex]bool)
	for _, r := range opts.Charset {
		gid, err := f.GlyphIndex(&buf, r)
		if err != nil || gid == 0 {
			continue
		}
		a.runes[r] = gid
		if seen[gid] {
			continue
		}
		seen[gid] = true
		bm, err := rasterizeGlyph(f, &buf, gid, ppem)
		if err != nil {
			return nil, fmt.Errorf("atlas: glyph %d (%q): %w", gid, r, err)
		}
		bitmaps = append(bitmaps, bm)
	}
	if len(bitmaps) == 0 {
		return nil, ErrNoGlyphs
	}

	// Tallest first keeps shelves tight.
	slices.SortStableFunc(bitmaps, func(x, y bitmap) int {
		return maskHeight(y) - maskHeight(x)
	})

	for size := minSize; size <= maxSize; size *= 2 {
		places, ok := pack(bitmaps, size, opts.Padding, opts.WhiteSize)
		if !ok {
			continue
		}
		a.compose(bitmaps, places, size, opts.WhiteSize)
		return a, nil
	}
	return nil, fmt.Errorf("atlas: %d glyphs at %gpx exceed %d texels: %w",
		len(bitmaps), opts.PixelSize, maxSize, logisim.ErrAtlasOverflow)
}

// rasterizeGlyph renders the outline of gid into a coverage mask sized to
// the glyph's pixel bounds.
func rasterizeGlyph(f *sfnt.Font, buf *sfnt.Buffer, gid sfnt.GlyphIndex, ppem fixed.Int26_6) (bitmap, error) {
	bounds, adv, err := f.GlyphBounds(buf, gid, ppem, font.HintingNone)
	if err != nil {
		return bitmap{}, err
	}
	bm := bitmap{gid: gid, adv: fixedToFloat(adv)}

	x0, y0 := bounds.Min.X.Floor(), bounds.Min.Y.Floor()
	x1, y1 := bounds.Max.X.Ceil(), bounds.Max.Y.Ceil()
	w, h := x1-x0, y1-y0
	if w <= 0 || h <= 0 {
		return bm, nil
	}

	segments, err := f.LoadGlyph(buf, gid, ppem, nil)
	if err != nil {
		return bitmap{}, err
	}

	dx, dy := float32(-x0), float32(-y0)
	pt := func(p fixed.Point26_6) (float32, float32) {
		return fixedToFloat(p.X) + dx, fixedToFloat(p.Y) + dy
	}

	z := vector.NewRasterizer(w, h)
	for _, seg := range segments {
		switch seg.Op {
		case sfnt.SegmentOpMoveTo:
			z.MoveTo(pt(seg.Args[0]))
		case sfnt.SegmentOpLineTo:
			z.LineTo(pt(seg.Args[0]))
		case sfnt.SegmentOpQuadTo:
			bx, by := pt(seg.Args[0])
			cx, cy := pt(seg.Args[1])
			z.QuadTo(bx, by, cx, cy)
		case sfnt.SegmentOpCubeTo:
			bx, by := pt(seg.Args[0])
			cx, cy := pt(seg.Args[1])
			ex, ey := pt(seg.Args[2])
			z.CubeTo(bx, by, cx, cy, ex, ey)
		}
	}
	z.ClosePath()

	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})

	bm.mask = mask
	bm.origin = [2]int32{int32(x0), int32(y0)}
	return bm, nil
}

func maskHeight(b bitmap) int {
	if b.mask == nil {
		return 0
	}
	return b.mask.Rect.Dy()
}

// pack places bitmaps on shelves below the white block. It returns the
// top-left texel of every bitmap, or false when they do not fit.
func pack(bitmaps []bitmap, size, padding, white int) ([]image.Point, bool) {
	places := make([]image.Point, len(bitmaps))
	x, y := white+padding, 0
	shelf := white
	for i, b := range bitmaps {
		if b.mask == nil {
			continue
		}
		w, h := b.mask.Rect.Dx(), b.mask.Rect.Dy()
		if x+w+padding > size {
			x, y = padding, y+shelf+padding
			shelf = 0
		}
		if x+w+padding > size || y+h+padding > size {
			return nil, false
		}
		places[i] = image.Pt(x, y+padding)
		x += w + padding
		shelf = max(shelf, h+padding)
	}
	return places, true
}

// compose allocates the atlas image and copies every mask into place.
func (a *Atlas) compose(bitmaps []bitmap, places []image.Point, size, white int) {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, image.Rect(0, 0, white, white), image.White, image.Point{}, draw.Src)

	a.Image = img
	a.Size = uint32(size)
	a.White = Region{
		Min: [2]uint32{1, 1},
		Max: [2]uint32{uint32(white - 1), uint32(white - 1)},
	}

	for i, b := range bitmaps {
		reg := Region{Advance: b.adv}
		if b.mask != nil {
			p := places[i]
			copyCoverage(img, p, b.mask)
			reg.Min = [2]uint32{uint32(p.X), uint32(p.Y)}
			reg.Max = [2]uint32{uint32(p.X + b.mask.Rect.Dx()), uint32(p.Y + b.mask.Rect.Dy())}
			reg.Origin = b.origin
		}
		a.glyphs[b.gid] = reg
	}
}

// copyCoverage writes mask as straight white texels with alpha = coverage.
func copyCoverage(dst *image.RGBA, at image.Point, mask *image.Alpha) {
	w, h := mask.Rect.Dx(), mask.Rect.Dy()
	for y := range h {
		src := mask.Pix[y*mask.Stride : y*mask.Stride+w]
		off := dst.PixOffset(at.X, at.Y+y)
		row := dst.Pix[off : off+4*w]
		for x, c := range src {
			if c == 0 {
				continue
			}
			px := row[4*x : 4*x+4 : 4*x+4]
			px[0], px[1], px[2], px[3] = 0xff, 0xff, 0xff, c
		}
	}
}

// Glyph returns the region of a glyph by font glyph index.
func (a *Atlas) Glyph(gid uint16) (Region, bool) {
	r, ok := a.glyphs[sfnt.GlyphIndex(gid)]
	return r, ok
}

// GlyphForRune returns the region of the glyph the font maps r to.
func (a *Atlas) GlyphForRune(r rune) (Region, bool) {
	gid, ok := a.runes[r]
	if !ok {
		return Region{}, false
	}
	return a.Glyph(uint16(gid))
}

// Len returns the number of distinct glyphs in the atlas.
func (a *Atlas) Len() int { return len(a.glyphs) }

// FontData returns the font file the atlas was built from.
func (a *Atlas) FontData() []byte { return a.fontData }

// PixelSize returns the em size glyphs were rasterized at.
func (a *Atlas) PixelSize() float64 { return a.pixelSize }

// Ascent returns the font ascent in pixels at PixelSize.
func (a *Atlas) Ascent() float32 { return a.ascent }

// Descent returns the font descent in pixels at PixelSize.
func (a *Atlas) Descent() float32 { return a.descent }

// Preview returns the atlas scaled to size x size with nearest-neighbor
// sampling, for inspection.
func (a *Atlas) Preview(size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), a.Image, a.Image.Bounds(), draw.Src, nil)
	return dst
}

func fixedToFloat(v fixed.Int26_6) float32 {
	return float32(v) / 64
}
