package logisim

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"
)

// Simulator owns a backend's double-buffered node arrays and schedules ticks
// and frames over them.
//
// One call to Tick is one step: the rule runs over the current array into
// the next one, the simulator waits until the result is visible and then
// flips which array is current. A failed tick never flips, so a partially
// written next array is never observed.
//
// Thread safety: all methods are safe for concurrent use. Ticks and writes to
// node state are serialized. Render and Snapshot may run concurrently with a
// tick in progress; they see the array that was current when they started and
// hold off the flip until they finish.
type Simulator struct {
	// tickMu serializes ticks, node writes and configuration changes.
	tickMu sync.Mutex

	// flagMu guards parity. Readers of the current array hold it shared;
	// the flip and writes to the current array hold it exclusive.
	flagMu sync.RWMutex

	backend Backend
	rule    Rule
	grid    Grid
	logical int
	parity  int
	ticks   uint64
	closed  bool

	workers   int
	timeout   time.Duration
	atlasSize uint32
}

// New creates a simulator for nodes. The node array is padded with zero
// nodes to a whole dispatch grid; Len reports the unpadded length.
func New(nodes []Node, opts ...Option) (*Simulator, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger != nil {
		SetLogger(o.logger)
	}
	if v, ok := o.rule.(interface{ Validate([]Node) error }); ok {
		if err := v.Validate(nodes); err != nil {
			return nil, fmt.Errorf("validate rule %s: %w", o.rule.Name(), err)
		}
	}

	s := &Simulator{
		rule:    o.rule,
		workers: o.workers,
		timeout: o.tickTimeout,
	}
	grid, padded := padNodes(nodes)
	b, err := s.openBackend(&o, padded, grid)
	if err != nil {
		return nil, err
	}
	s.backend = b
	s.grid = grid
	s.logical = len(nodes)
	Logger().Info("logisim: simulator ready",
		"backend", b.Name(), "nodes", len(nodes), "grid", grid.String(), "rule", o.rule.Name())
	return s, nil
}

// NewFromCircuit creates a simulator running the circuit's netlist rule.
// Options may not override the rule.
func NewFromCircuit(c *Circuit, opts ...Option) (*Simulator, error) {
	opts = append(opts, WithRule(c.Rule()))
	return New(c.Nodes(), opts...)
}

func padNodes(nodes []Node) (Grid, []Node) {
	grid := PlanGrid(len(nodes))
	padded := make([]Node, grid.Capacity())
	copy(padded, nodes)
	return grid, padded
}

// openBackend creates and loads the configured backend, falling back to the
// software backend when a non-software choice cannot be used.
func (s *Simulator) openBackend(o *options, nodes []Node, grid Grid) (Backend, error) {
	if o.instance != nil {
		b := o.instance
		if err := b.Load(nodes, grid, o.rule); err != nil {
			if errors.Is(err, ErrUnsupportedRule) {
				Logger().Warn("logisim: backend cannot run rule, falling back to software",
					"backend", b.Name(), "rule", o.rule.Name())
				b.Close()
				return s.openSoftware(nodes, grid, o.rule)
			}
			return nil, fmt.Errorf("load %s backend: %w", b.Name(), err)
		}
		track(b)
		return b, nil
	}

	name := o.backend
	if name == "" {
		name = DefaultBackend()
	}
	if name == "software" {
		return s.openSoftware(nodes, grid, o.rule)
	}

	b, err := NewBackend(name)
	if err != nil {
		if errors.Is(err, ErrNoBackend) && o.backend != "" {
			return nil, err
		}
		Logger().Warn("logisim: backend unavailable, falling back to software", "backend", name, "err", err)
		return s.openSoftware(nodes, grid, o.rule)
	}
	if err := b.Load(nodes, grid, o.rule); err != nil {
		Logger().Warn("logisim: backend load failed, falling back to software", "backend", name, "err", err)
		untrack(b)
		b.Close()
		return s.openSoftware(nodes, grid, o.rule)
	}
	return b, nil
}

func (s *Simulator) openSoftware(nodes []Node, grid Grid, rule Rule) (Backend, error) {
	b := NewSoftwareBackend(s.workers)
	if err := b.Init(); err != nil {
		return nil, fmt.Errorf("init software backend: %w", err)
	}
	if err := b.Load(nodes, grid, rule); err != nil {
		b.Close()
		return nil, fmt.Errorf("load software backend: %w", err)
	}
	track(b)
	return b, nil
}

// Tick advances the simulation by one step.
//
// If the backend fails, or the context is done or the tick timeout expires
// before the step completes, the current array is left untouched and the
// parity does not change.
func (s *Simulator) Tick(ctx context.Context) error {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	if s.closed {
		return ErrBackendClosed
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	// parity only changes under tickMu, so it is stable here.
	src := s.parity
	if err := s.backend.Step(ctx, src); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTickTimeout) {
			err = fmt.Errorf("%w: %w", ErrTickTimeout, err)
		}
		return fmt.Errorf("tick %d on %s: %w", s.ticks+1, s.backend.Name(), err)
	}

	s.flagMu.Lock()
	s.parity ^= 1
	s.ticks++
	s.flagMu.Unlock()
	return nil
}

// Run performs n ticks, stopping at the first error.
func (s *Simulator) Run(ctx context.Context, n int) error {
	for range n {
		if err := s.Tick(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Ticks returns the number of completed ticks.
func (s *Simulator) Ticks() uint64 {
	s.flagMu.RLock()
	defer s.flagMu.RUnlock()
	return s.ticks
}

// Parity returns the slot (0 or 1) that is currently readable.
func (s *Simulator) Parity() int {
	s.flagMu.RLock()
	defer s.flagMu.RUnlock()
	return s.parity
}

// Len returns the number of logical nodes.
func (s *Simulator) Len() int {
	s.flagMu.RLock()
	defer s.flagMu.RUnlock()
	return s.logical
}

// Grid returns the dispatch grid.
func (s *Simulator) Grid() Grid {
	s.flagMu.RLock()
	defer s.flagMu.RUnlock()
	return s.grid
}

// Backend returns the backend in use.
func (s *Simulator) Backend() Backend { return s.backend }

// Snapshot returns a copy of the current node array without padding.
func (s *Simulator) Snapshot() ([]Node, error) {
	s.flagMu.RLock()
	defer s.flagMu.RUnlock()
	if s.closed {
		return nil, ErrBackendClosed
	}
	out := make([]Node, s.logical)
	if err := s.backend.ReadNodes(s.parity, 0, out); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return out, nil
}

// SetLevel sets the logic level of one node in the current array. It takes
// effect for the next tick and the next frame.
func (s *Simulator) SetLevel(addr NodeAddr, on bool) error {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	if s.closed {
		return ErrBackendClosed
	}
	if int(addr) >= s.logical {
		return fmt.Errorf("set level of node %d of %d: %w", addr, s.logical, ErrNodeOutOfRange)
	}

	var n [1]Node
	if err := s.backend.ReadNodes(s.parity, int(addr), n[:]); err != nil {
		return fmt.Errorf("set level: %w", err)
	}
	n[0] = n[0].WithLevel(on)

	s.flagMu.Lock()
	defer s.flagMu.Unlock()
	if err := s.backend.WriteNodes(s.parity, int(addr), n[:]); err != nil {
		return fmt.Errorf("set level: %w", err)
	}
	return nil
}

// Toggle inverts the logic level of one node in the current array.
func (s *Simulator) Toggle(addr NodeAddr) error {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	if s.closed {
		return ErrBackendClosed
	}
	if int(addr) >= s.logical {
		return fmt.Errorf("toggle node %d of %d: %w", addr, s.logical, ErrNodeOutOfRange)
	}

	var n [1]Node
	if err := s.backend.ReadNodes(s.parity, int(addr), n[:]); err != nil {
		return fmt.Errorf("toggle: %w", err)
	}
	n[0] = n[0].WithLevel(!n[0].Level())

	s.flagMu.Lock()
	defer s.flagMu.Unlock()
	if err := s.backend.WriteNodes(s.parity, int(addr), n[:]); err != nil {
		return fmt.Errorf("toggle: %w", err)
	}
	return nil
}

// SetNodes overwrites a run of nodes in the current array. Nodes the rule
// cannot evaluate are rejected and nothing is written.
func (s *Simulator) SetNodes(offset int, nodes []Node) error {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	if s.closed {
		return ErrBackendClosed
	}
	if offset < 0 || offset+len(nodes) > s.logical {
		return fmt.Errorf("set nodes [%d,%d) of %d: %w", offset, offset+len(nodes), s.logical, ErrNodeOutOfRange)
	}
	if v, ok := s.rule.(interface {
		ValidateRange(offset int, nodes []Node, n int) error
	}); ok {
		if err := v.ValidateRange(offset, nodes, s.logical); err != nil {
			return fmt.Errorf("validate rule %s: %w", s.rule.Name(), err)
		}
	}

	s.flagMu.Lock()
	defer s.flagMu.Unlock()
	return s.backend.WriteNodes(s.parity, offset, nodes)
}

// Resize replaces the node set. Both arrays are recreated, the current array
// becomes slot 0 and the tick counter is kept.
func (s *Simulator) Resize(nodes []Node) error {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	if s.closed {
		return ErrBackendClosed
	}
	if v, ok := s.rule.(interface{ Validate([]Node) error }); ok {
		if err := v.Validate(nodes); err != nil {
			return fmt.Errorf("validate rule %s: %w", s.rule.Name(), err)
		}
	}

	grid, padded := padNodes(nodes)

	s.flagMu.Lock()
	defer s.flagMu.Unlock()
	if err := s.backend.Load(padded, grid, s.rule); err != nil {
		return fmt.Errorf("resize to %d nodes: %w", len(nodes), err)
	}
	s.grid = grid
	s.logical = len(nodes)
	s.parity = 0
	Logger().Debug("logisim: resized", "nodes", len(nodes), "grid", grid.String())
	return nil
}

// SetAtlas uploads the atlas image used by Render.
func (s *Simulator) SetAtlas(img *image.RGBA) error {
	if err := checkAtlas(img); err != nil {
		return err
	}
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	if s.closed {
		return ErrBackendClosed
	}

	s.flagMu.Lock()
	defer s.flagMu.Unlock()
	if err := s.backend.SetAtlas(img); err != nil {
		return fmt.Errorf("set atlas: %w", err)
	}
	s.atlasSize = uint32(img.Rect.Dx()) //nolint:gosec // image sizes are non-negative
	return nil
}

// Render draws mesh into target from the current node array. Every vertex is
// checked before anything is submitted: node-addressed vertices must refer to
// an existing node and atlas coordinates must lie within locals.TextureSize.
// With a non-nil clear the target is cleared first.
func (s *Simulator) Render(ctx context.Context, target *image.RGBA, mesh *Mesh, locals Locals, clear *Color) error {
	s.flagMu.RLock()
	defer s.flagMu.RUnlock()
	if s.closed {
		return ErrBackendClosed
	}
	if mesh != nil {
		if err := mesh.Validate(s.logical, locals.TextureSize); err != nil {
			return fmt.Errorf("render: %w", err)
		}
	}
	if s.atlasSize != 0 && locals.TextureSize > s.atlasSize {
		return fmt.Errorf("render: texture size %d exceeds atlas %d: %w", locals.TextureSize, s.atlasSize, ErrAtlasOverflow)
	}
	return s.backend.Draw(ctx, target, mesh, locals, s.parity, clear)
}

// Close releases the backend. Further calls return ErrBackendClosed.
func (s *Simulator) Close() {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	s.flagMu.Lock()
	defer s.flagMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	untrack(s.backend)
	s.backend.Close()
}
