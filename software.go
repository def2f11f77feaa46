package logisim

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/logisim/internal/parallel"
)

// SoftwareBackend runs the update kernel and the renderer on the CPU.
//
// Node updates are split into the same 8x8 tiles the GPU dispatches and
// spread over a work-stealing pool. Drawing splits the target into row
// bands, one pool task per band, so each pixel is written by exactly one
// goroutine and triangles blend in submission order.
type SoftwareBackend struct {
	workers int
	pool    *parallel.WorkerPool
	store   *NodeStore
	rule    Rule
	atlas   *image.RGBA
	closed  bool
	log     atomic.Pointer[slog.Logger]
}

// NewSoftwareBackend creates a software backend with the given worker count.
// Zero or negative means GOMAXPROCS. Init must be called before use.
func NewSoftwareBackend(workers int) *SoftwareBackend {
	b := &SoftwareBackend{workers: workers}
	b.log.Store(Logger())
	return b
}

// Name implements Backend.
func (b *SoftwareBackend) Name() string { return "software" }

// SetLogger sets the logger used by this backend.
func (b *SoftwareBackend) SetLogger(l *slog.Logger) {
	if l != nil {
		b.log.Store(l)
	}
}

// Init implements Backend.
func (b *SoftwareBackend) Init() error {
	if b.closed {
		return ErrBackendClosed
	}
	if b.pool == nil {
		b.pool = parallel.NewWorkerPool(b.workers)
		b.log.Load().Debug("software: worker pool started", "workers", b.pool.Workers())
	}
	return nil
}

// Close implements Backend.
func (b *SoftwareBackend) Close() {
	if b.closed {
		return
	}
	b.closed = true
	if b.pool != nil {
		b.pool.Close()
	}
	b.store = nil
	b.atlas = nil
}

// Workers returns the number of pool workers, or 0 before Init.
func (b *SoftwareBackend) Workers() int {
	if b.pool == nil {
		return 0
	}
	return b.pool.Workers()
}

// Load implements Backend. Every rule is supported.
func (b *SoftwareBackend) Load(nodes []Node, grid Grid, rule Rule) error {
	if b.closed {
		return ErrBackendClosed
	}
	if err := grid.Validate(len(nodes)); err != nil {
		return err
	}
	if b.store == nil {
		b.store = &NodeStore{}
	}
	if err := b.store.ResizeGrid(nodes, grid); err != nil {
		return err
	}
	b.rule = rule
	b.log.Load().Debug("software: nodes loaded", "nodes", len(nodes), "grid", grid.String(), "rule", rule.Name())
	return nil
}

// Step implements Backend.
func (b *SoftwareBackend) Step(ctx context.Context, src int) error {
	if err := b.ready(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	current, next := b.store.Pair(src)
	return Step(b.rule, b.store.Grid(), current, next, b.pool)
}

// ReadNodes implements Backend.
func (b *SoftwareBackend) ReadNodes(slot, offset int, dst []Node) error {
	if err := b.ready(); err != nil {
		return err
	}
	arr := b.store.Slot(slot)
	if offset < 0 || offset+len(dst) > len(arr) {
		return fmt.Errorf("read nodes [%d,%d) of %d: %w", offset, offset+len(dst), len(arr), ErrNodeOutOfRange)
	}
	copy(dst, arr[offset:])
	return nil
}

// WriteNodes implements Backend.
func (b *SoftwareBackend) WriteNodes(slot, offset int, nodes []Node) error {
	if err := b.ready(); err != nil {
		return err
	}
	arr := b.store.Slot(slot)
	if offset < 0 || offset+len(nodes) > len(arr) {
		return fmt.Errorf("write nodes [%d,%d) of %d: %w", offset, offset+len(nodes), len(arr), ErrNodeOutOfRange)
	}
	copy(arr[offset:], nodes)
	return nil
}

// SetAtlas implements Backend. The image is copied.
func (b *SoftwareBackend) SetAtlas(img *image.RGBA) error {
	if b.closed {
		return ErrBackendClosed
	}
	if err := checkAtlas(img); err != nil {
		return err
	}
	cp := image.NewRGBA(image.Rect(0, 0, img.Rect.Dx(), img.Rect.Dy()))
	for y := range cp.Rect.Dy() {
		src := img.Pix[img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y):]
		copy(cp.Pix[y*cp.Stride:(y+1)*cp.Stride], src)
	}
	b.atlas = cp
	return nil
}

// Draw implements Backend.
func (b *SoftwareBackend) Draw(ctx context.Context, target *image.RGBA, mesh *Mesh, locals Locals, slot int, clear *Color) error {
	if err := b.ready(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if clear != nil {
		fillRGBA(target, *clear)
	}
	if mesh.Empty() {
		return nil
	}
	r := newRasterizer(target, b.atlas)
	r.prepare(mesh, &locals, b.store.Slot(slot))
	r.run(b.pool)
	return nil
}

func (b *SoftwareBackend) ready() error {
	if b.closed {
		return ErrBackendClosed
	}
	if b.store == nil {
		return ErrNotLoaded
	}
	return nil
}

// checkAtlas validates an atlas image: square and non-empty.
func checkAtlas(img *image.RGBA) error {
	if img == nil {
		return fmt.Errorf("nil atlas: %w", ErrAtlasOverflow)
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w == 0 || w != h {
		return fmt.Errorf("atlas %dx%d is not square: %w", w, h, ErrAtlasOverflow)
	}
	return nil
}
