package logisim

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"sync"

	"github.com/gogpu/gpucontext"
)

// Backend executes the update kernel and the renderer over a pair of node
// arrays it owns.
//
// The arrays are addressed by slot, 0 or 1. A backend never decides which
// slot is current: the simulator passes the source slot of every step and
// the slot to draw from. The simulator serializes Load, Step, WriteNodes,
// SetAtlas and Close. Draw and ReadNodes of the current slot may run
// concurrently with a Step that writes the other slot.
//
// Implementations are provided by this package ([SoftwareBackend]) and by
// GPU backend packages. Users opt in to GPU execution via blank import:
//
//	import _ "github.com/gogpu/logisim/gpu"
type Backend interface {
	// Name returns the backend name (e.g., "wgpu", "software").
	Name() string

	// Init acquires the resources the backend needs. Called once by NewBackend.
	Init() error

	// Close releases all resources. The backend is unusable afterwards.
	Close()

	// Load allocates both node arrays with grid.Capacity() nodes and seeds
	// both with nodes. len(nodes) must equal grid.Capacity(). It returns
	// ErrUnsupportedRule if the backend cannot run rule.
	Load(nodes []Node, grid Grid, rule Rule) error

	// Step runs the rule once, reading slot src and writing slot src^1, and
	// returns only after the written array is fully visible to later reads.
	// On error the written array is unspecified and must not be made current.
	Step(ctx context.Context, src int) error

	// ReadNodes copies len(dst) nodes of slot starting at offset into dst.
	ReadNodes(slot, offset int, dst []Node) error

	// WriteNodes overwrites nodes of slot starting at offset.
	WriteNodes(slot, offset int, nodes []Node) error

	// SetAtlas uploads the RGBA8 atlas image. The image must be square.
	SetAtlas(img *image.RGBA) error

	// Draw renders mesh into target, coloring node-addressed vertices from
	// the array in slot. With a non-nil clear the target is cleared first;
	// otherwise the mesh is blended over the existing pixels.
	Draw(ctx context.Context, target *image.RGBA, mesh *Mesh, locals Locals, slot int, clear *Color) error
}

// DeviceProviderAware is an optional interface for backends that can share
// a GPU device with a host application instead of opening their own.
type DeviceProviderAware interface {
	SetDeviceProvider(provider any) error
}

// backends is the factory registry. The GPU backend wins when present.
var backends = gpucontext.NewRegistry[Backend](gpucontext.WithPriority("wgpu", "software"))

var (
	liveMu sync.Mutex
	live   = map[Backend]struct{}{}
)

func init() {
	RegisterBackend("software", func() Backend { return NewSoftwareBackend(0) })
}

// RegisterBackend registers a backend factory under name, replacing any
// previous factory with the same name.
//
// Typical usage via blank import in GPU backend packages:
//
//	func init() {
//	    logisim.RegisterBackend("wgpu", func() logisim.Backend { return gpu.New() })
//	}
func RegisterBackend(name string, factory func() Backend) {
	backends.Register(name, factory)
}

// Backends returns the registered backend names in sorted order.
func Backends() []string {
	names := backends.Available()
	slices.Sort(names)
	return names
}

// DefaultBackend returns the name of the preferred registered backend.
func DefaultBackend() string {
	return backends.BestName()
}

// NewBackend creates and initializes the named backend. An empty name picks
// DefaultBackend.
func NewBackend(name string) (Backend, error) {
	if name == "" {
		name = DefaultBackend()
	}
	if !backends.Has(name) {
		return nil, fmt.Errorf("backend %q: %w", name, ErrNoBackend)
	}
	b := backends.Get(name)
	if b == nil {
		return nil, fmt.Errorf("backend %q: factory returned nil: %w", name, ErrNoBackend)
	}
	propagateLogger(b, Logger())
	if err := b.Init(); err != nil {
		return nil, fmt.Errorf("init backend %q: %w", name, err)
	}
	track(b)
	return b, nil
}

func track(b Backend) {
	liveMu.Lock()
	live[b] = struct{}{}
	liveMu.Unlock()
}

func untrack(b Backend) {
	liveMu.Lock()
	delete(live, b)
	liveMu.Unlock()
}

func liveBackends() []Backend {
	liveMu.Lock()
	defer liveMu.Unlock()
	out := make([]Backend, 0, len(live))
	for b := range live {
		out = append(out, b)
	}
	return out
}

// loggerSetter is implemented by backends that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes the logger to a backend if it implements
// the loggerSetter interface.
func propagateLogger(b Backend, l *slog.Logger) {
	if ls, ok := b.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
