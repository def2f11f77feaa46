//go:build !nogpu

package gpu

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/logisim"
)

// readbackTimeout bounds node readback, which has no caller context.
const readbackTimeout = 5 * time.Second

// Backend runs logisim on a WebGPU device. It implements logisim.Backend.
//
// The identity rule and netlist rules are supported; any other rule makes
// Load fail with logisim.ErrUnsupportedRule. All queue work is serialized
// by an internal mutex, so a Draw issued while a Step is in flight waits
// for the step to finish.
type Backend struct {
	mu sync.Mutex

	ctx      *Context
	nodes    *NodeBuffers
	kernel   *TickKernel
	renderer *NodeRenderer

	// atlas is kept until a renderer exists to take it.
	atlas  *image.RGBA
	closed bool
}

var (
	_ logisim.Backend             = (*Backend)(nil)
	_ logisim.DeviceProviderAware = (*Backend)(nil)
)

// New returns an uninitialized backend. Init opens a device unless
// SetDeviceProvider supplied one first.
func New() *Backend {
	return &Backend{}
}

// NewWithContext returns a backend on an existing context.
func NewWithContext(c *Context) *Backend {
	return &Backend{ctx: c}
}

// Name implements logisim.Backend.
func (b *Backend) Name() string { return "wgpu" }

// SetLogger sets the logger for GPU operations.
func (b *Backend) SetLogger(l *slog.Logger) { setLogger(l) }

// Init implements logisim.Backend.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return logisim.ErrBackendClosed
	}
	if b.ctx != nil {
		return nil
	}
	c, err := OpenContext()
	if err != nil {
		return fmt.Errorf("gpu: init: %w", err)
	}
	b.ctx = c
	return nil
}

// SetDeviceProvider switches the backend to a device shared by a host
// application. Loaded node arrays are released; call Load again afterwards.
func (b *Backend) SetDeviceProvider(provider any) error {
	c, err := ContextFromProvider(provider)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return logisim.ErrBackendClosed
	}
	b.releaseLocked()
	if b.ctx != nil {
		b.ctx.Destroy()
	}
	b.ctx = c
	slogger().Info("gpu: switched to shared GPU device")
	return nil
}

// Context returns the device context, nil before Init.
func (b *Backend) Context() *Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctx
}

// Close implements logisim.Backend.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.releaseLocked()
	if b.ctx != nil {
		b.ctx.Destroy()
		b.ctx = nil
	}
	b.atlas = nil
}

func (b *Backend) releaseLocked() {
	if b.renderer != nil {
		b.renderer.Destroy()
		b.renderer = nil
	}
	if b.kernel != nil {
		b.kernel.Destroy()
		b.kernel = nil
	}
	if b.nodes != nil {
		b.nodes.Destroy()
		b.nodes = nil
	}
}

// Load implements logisim.Backend.
func (b *Backend) Load(nodes []logisim.Node, grid logisim.Grid, rule logisim.Rule) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return logisim.ErrBackendClosed
	}
	if b.ctx == nil {
		return fmt.Errorf("gpu: load before init: %w", logisim.ErrNotLoaded)
	}
	if err := grid.Validate(len(nodes)); err != nil {
		return err
	}
	if _, err := lowerRule(rule); err != nil {
		return err
	}

	// The loaded set stays live until the replacement is complete.
	nb, err := NewNodeBuffers(b.ctx, nodes)
	if err != nil {
		return err
	}
	kernel, err := NewTickKernel(b.ctx, nb, grid, rule)
	if err != nil {
		nb.Destroy()
		return err
	}
	renderer, err := NewNodeRenderer(b.ctx, nb)
	if err != nil {
		kernel.Destroy()
		nb.Destroy()
		return err
	}
	if b.atlas != nil {
		if err := renderer.SetAtlas(b.atlas); err != nil {
			renderer.Destroy()
			kernel.Destroy()
			nb.Destroy()
			return err
		}
	}
	b.releaseLocked()
	b.nodes, b.kernel, b.renderer = nb, kernel, renderer
	slogger().Debug("gpu: nodes loaded", "nodes", len(nodes), "grid", grid.String(), "rule", rule.Name())
	return nil
}

func (b *Backend) readyLocked() error {
	if b.closed {
		return logisim.ErrBackendClosed
	}
	if b.nodes == nil {
		return logisim.ErrNotLoaded
	}
	return nil
}

// Step implements logisim.Backend.
func (b *Backend) Step(ctx context.Context, src int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.readyLocked(); err != nil {
		return err
	}
	return b.kernel.Step(ctx, src)
}

// ReadNodes implements logisim.Backend.
func (b *Backend) ReadNodes(slot, offset int, dst []logisim.Node) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.readyLocked(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), readbackTimeout)
	defer cancel()
	return b.nodes.Read(ctx, slot, offset, dst)
}

// WriteNodes implements logisim.Backend.
func (b *Backend) WriteNodes(slot, offset int, nodes []logisim.Node) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.readyLocked(); err != nil {
		return err
	}
	return b.nodes.Write(slot, offset, nodes)
}

// SetAtlas implements logisim.Backend. Before Load the image is kept and
// uploaded with the renderer.
func (b *Backend) SetAtlas(img *image.RGBA) error {
	if img == nil {
		return fmt.Errorf("nil atlas: %w", logisim.ErrAtlasOverflow)
	}
	if w, h := img.Rect.Dx(), img.Rect.Dy(); w == 0 || w != h {
		return fmt.Errorf("atlas %dx%d is not square: %w", w, h, logisim.ErrAtlasOverflow)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return logisim.ErrBackendClosed
	}
	if b.renderer != nil {
		if err := b.renderer.SetAtlas(img); err != nil {
			return err
		}
	}
	size := img.Rect.Dx()
	b.atlas = &image.RGBA{Pix: append([]byte(nil), tightPixels(img)...), Stride: size * 4, Rect: image.Rect(0, 0, size, size)}
	return nil
}

// Draw implements logisim.Backend.
func (b *Backend) Draw(ctx context.Context, target *image.RGBA, mesh *logisim.Mesh, locals logisim.Locals, slot int, clear *logisim.Color) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.readyLocked(); err != nil {
		return err
	}
	return b.renderer.Draw(ctx, target, mesh, locals, slot, clear)
}
