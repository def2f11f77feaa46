package logisim

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"
)

func newSoftwareSim(t *testing.T, nodes []Node, opts ...Option) *Simulator {
	t.Helper()
	opts = append([]Option{WithBackend("software"), WithWorkers(2)}, opts...)
	sim, err := New(nodes, opts...)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	t.Cleanup(sim.Close)
	return sim
}

// ============================================================================
// Tick scheduling
// ============================================================================

// Four black nodes stay black under identity; after one node is set high,
// a vertex addressing it resolves to white.
func TestFourNodeScenario(t *testing.T) {
	sim := newSoftwareSim(t, make([]Node, 4))
	ctx := context.Background()

	if err := sim.Tick(ctx); err != nil {
		t.Fatalf("Tick() = %v", err)
	}
	nodes, err := sim.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 4 {
		t.Fatalf("len(Snapshot()) = %d, want 4", len(nodes))
	}
	for i, n := range nodes {
		if n.State() != 0 {
			t.Errorf("node %d state = %d, want 0", i, n.State())
		}
	}

	if err := sim.SetLevel(2, true); err != nil {
		t.Fatalf("SetLevel() = %v", err)
	}
	nodes, _ = sim.Snapshot()

	locals := NewLocals(8, 8, IdentityTransform(), 1)
	v := NewVertex(V2(4, 4), [2]uint32{}, NodeColor(2))
	if got := ResolveVertex(v, &locals, nodes).Color; got != White.Floats() {
		t.Errorf("resolved color = %v, want white", got)
	}

	// The same through the backend: a full-screen quad colored by node 2.
	target := image.NewRGBA(image.Rect(0, 0, 8, 8))
	mesh := quadMesh(V2(0, 0), V2(8, 8), NodeColor(2))
	clear := Red
	if err := sim.Render(ctx, target, mesh, locals, &clear); err != nil {
		t.Fatalf("Render() = %v", err)
	}
	if got := pixel(target, 4, 4); got != White {
		t.Errorf("pixel = %v, want white", got)
	}
}

// After k ticks the readable slot is k mod 2 and the arrays never alias.
func TestDoubleBufferRoles(t *testing.T) {
	m := newMockBackend("roles")
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	var sources []int
	m.onStepped = func(src int) { sources = append(sources, src) }

	sim, err := New(make([]Node, 100), WithBackendInstance(m))
	if err != nil {
		t.Fatal(err)
	}
	defer sim.Close()

	for k := 1; k <= 7; k++ {
		if err := sim.Tick(context.Background()); err != nil {
			t.Fatal(err)
		}
		if got := sim.Parity(); got != k%2 {
			t.Errorf("after %d ticks Parity() = %d, want %d", k, got, k%2)
		}
		if got := sim.Ticks(); got != uint64(k) {
			t.Errorf("Ticks() = %d, want %d", got, k)
		}
	}
	for k, src := range sources {
		if src != k%2 {
			t.Errorf("tick %d read slot %d, want %d", k+1, src, k%2)
		}
	}
	if &m.store.Slot(0)[0] == &m.store.Slot(1)[0] {
		t.Error("slots alias")
	}
}

func TestFailedTickDoesNotFlip(t *testing.T) {
	m := newMockBackend("failing")
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	nodes := randomNodes(10, 3)
	sim, err := New(nodes, WithBackendInstance(m))
	if err != nil {
		t.Fatal(err)
	}
	defer sim.Close()

	m.failStep.Store(true)
	if err := sim.Tick(context.Background()); err == nil {
		t.Fatal("Tick() = nil, want error")
	}
	if sim.Parity() != 0 || sim.Ticks() != 0 {
		t.Errorf("Parity() = %d, Ticks() = %d after failure, want 0, 0", sim.Parity(), sim.Ticks())
	}
	got, _ := sim.Snapshot()
	for i := range nodes {
		if got[i] != nodes[i] {
			t.Fatalf("node %d = %v after failed tick, want %v", i, got[i], nodes[i])
		}
	}

	m.failStep.Store(false)
	if err := sim.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() after recovery = %v", err)
	}
	if sim.Parity() != 1 {
		t.Errorf("Parity() = %d, want 1", sim.Parity())
	}
}

type slowBackend struct {
	*mockBackend
}

func (s slowBackend) Step(ctx context.Context, src int) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestTickTimeout(t *testing.T) {
	m := newMockBackend("slow")
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	sim, err := New(make([]Node, 4), WithBackendInstance(slowBackend{m}), WithTickTimeout(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer sim.Close()

	err = sim.Tick(context.Background())
	if !errors.Is(err, ErrTickTimeout) {
		t.Errorf("Tick() = %v, want ErrTickTimeout", err)
	}
	if sim.Parity() != 0 {
		t.Errorf("Parity() = %d, want 0", sim.Parity())
	}
}

func TestUnsupportedRuleFallsBack(t *testing.T) {
	m := newMockBackend("picky")
	m.failLoad = ErrUnsupportedRule
	sim, err := New(make([]Node, 4), WithBackendInstance(m))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	defer sim.Close()
	if sim.Backend().Name() != "software" {
		t.Errorf("Backend().Name() = %q, want software", sim.Backend().Name())
	}
	if !m.closed.Load() {
		t.Error("rejected backend was not closed")
	}
}

func TestUnknownBackend(t *testing.T) {
	if _, err := New(make([]Node, 4), WithBackend("no-such-backend")); !errors.Is(err, ErrNoBackend) {
		t.Errorf("New(unknown backend) = %v, want ErrNoBackend", err)
	}
}

func TestNewRejectsInvalidCircuit(t *testing.T) {
	c := NewCircuit()
	r := c.Alloc(1)
	_ = c.SetSource(r.Map(0), CopyFrom(50))
	if _, err := NewFromCircuit(c, WithBackend("software")); !errors.Is(err, ErrNodeOutOfRange) {
		t.Errorf("NewFromCircuit() = %v, want ErrNodeOutOfRange", err)
	}
}

// A ring of three inverters started from all-low flips every tick.
func TestRingOscillator(t *testing.T) {
	c := NewCircuit()
	not := c.AddTable(NotTable())
	r := c.Alloc(3)
	for i := range 3 {
		in := r.Map(NodeAddr((i + 2) % 3))
		_ = c.SetSource(r.Map(NodeAddr(i)), TableSource{Inputs: in, Table: not}.Source())
	}
	sim, err := NewFromCircuit(c, WithBackend("software"))
	if err != nil {
		t.Fatal(err)
	}
	defer sim.Close()

	levels := func() [3]bool {
		nodes, _ := sim.Snapshot()
		var out [3]bool
		for i := range out {
			out[i] = nodes[r.Map(NodeAddr(i))].Level()
		}
		return out
	}
	start := levels()
	if err := sim.Run(context.Background(), 6); err != nil {
		t.Fatal(err)
	}
	if got := levels(); got != start {
		t.Errorf("after 6 ticks levels = %v, want %v", got, start)
	}
	if err := sim.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := levels(); got == start {
		t.Error("ring did not change after one more tick")
	}
}

// ============================================================================
// External writes
// ============================================================================

func TestSetNodesAndToggle(t *testing.T) {
	sim := newSoftwareSim(t, make([]Node, 10))
	if err := sim.SetNodes(3, []Node{NewNode(1, 5, 6), NewNode(0, 7, 8)}); err != nil {
		t.Fatal(err)
	}
	if err := sim.Toggle(4); err != nil {
		t.Fatal(err)
	}
	nodes, _ := sim.Snapshot()
	if nodes[3] != NewNode(1, 5, 6) {
		t.Errorf("node 3 = %v", nodes[3])
	}
	if !nodes[4].Level() || nodes[4].Payload() != 7 {
		t.Errorf("node 4 = %v, want level 1 payload 7", nodes[4])
	}

	if err := sim.SetNodes(9, make([]Node, 2)); !errors.Is(err, ErrNodeOutOfRange) {
		t.Errorf("SetNodes(past end) = %v, want ErrNodeOutOfRange", err)
	}
	if err := sim.SetLevel(10, true); !errors.Is(err, ErrNodeOutOfRange) {
		t.Errorf("SetLevel(10) = %v, want ErrNodeOutOfRange", err)
	}
}

func TestSetNodesRejectsBadSources(t *testing.T) {
	c := NewCircuit()
	r := c.Alloc(4)
	not := c.AddTable(NotTable())
	sim := newSoftwareSim(t, c.Nodes(), WithRule(c.Rule()), WithWorkers(4))
	before, _ := sim.Snapshot()

	tests := []struct {
		name string
		node Node
		want error
	}{
		{"unknown table", Node{}.WithSource(TableSource{Inputs: r.Map(0), Table: 7}.Source()), ErrUnknownTable},
		{"copy past end", Node{}.WithSource(CopyFrom(NodeAddr(len(before)))), ErrNodeOutOfRange},
		{"inputs past end", Node{}.WithSource(TableSource{Inputs: r.Map(3) + 1, Table: not}.Source()), ErrNodeOutOfRange},
		{"missing output", Node{}.WithSource(TableSource{Inputs: r.Map(0), Output: 1, Table: not}.Source()), ErrInvalidSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := sim.SetNodes(int(r.Map(1)), []Node{tt.node}); !errors.Is(err, tt.want) {
				t.Errorf("SetNodes() = %v, want %v", err, tt.want)
			}
		})
	}

	after, _ := sim.Snapshot()
	for i := range before {
		if after[i] != before[i] {
			t.Errorf("rejected SetNodes wrote node %d: %v, want %v", i, after[i], before[i])
		}
	}
	if err := sim.Tick(context.Background()); err != nil {
		t.Fatalf("Tick after rejected writes: %v", err)
	}

	good := Node{}.WithSource(TableSource{Inputs: r.Map(0), Table: not}.Source())
	if err := sim.SetNodes(int(r.Map(1)), []Node{good}); err != nil {
		t.Fatalf("SetNodes(valid source) = %v", err)
	}
	if err := sim.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	nodes, _ := sim.Snapshot()
	if !nodes[r.Map(1)].Level() {
		t.Errorf("node %d = %v, want NOT of low input to be high", r.Map(1), nodes[r.Map(1)])
	}
}

func TestResize(t *testing.T) {
	sim := newSoftwareSim(t, make([]Node, 10))
	_ = sim.Tick(context.Background())

	nodes := make([]Node, 200)
	nodes[150] = NewNode(1, 0, 0)
	if err := sim.Resize(nodes); err != nil {
		t.Fatalf("Resize() = %v", err)
	}
	if sim.Len() != 200 || sim.Grid() != PlanGrid(200) || sim.Parity() != 0 {
		t.Errorf("Len() = %d, Grid() = %v, Parity() = %d", sim.Len(), sim.Grid(), sim.Parity())
	}
	got, _ := sim.Snapshot()
	if !got[150].Level() {
		t.Error("resized contents lost")
	}
}

func TestClosedSimulator(t *testing.T) {
	sim, err := New(make([]Node, 4), WithBackend("software"))
	if err != nil {
		t.Fatal(err)
	}
	sim.Close()
	sim.Close()
	if err := sim.Tick(context.Background()); !errors.Is(err, ErrBackendClosed) {
		t.Errorf("Tick() after Close = %v, want ErrBackendClosed", err)
	}
	if _, err := sim.Snapshot(); !errors.Is(err, ErrBackendClosed) {
		t.Errorf("Snapshot() after Close = %v, want ErrBackendClosed", err)
	}
}

// ============================================================================
// Rendering
// ============================================================================

func TestRenderRejectsBadMesh(t *testing.T) {
	sim := newSoftwareSim(t, make([]Node, 4))
	target := image.NewRGBA(image.Rect(0, 0, 4, 4))
	locals := NewLocals(4, 4, IdentityTransform(), 16)

	bad := quadMesh(V2(0, 0), V2(4, 4), NodeColor(4))
	if err := sim.Render(context.Background(), target, bad, locals, nil); !errors.Is(err, ErrNodeOutOfRange) {
		t.Errorf("Render(node 4 of 4) = %v, want ErrNodeOutOfRange", err)
	}

	bad = quadMesh(V2(0, 0), V2(4, 4), LiteralColor(White))
	bad.Vertices[2].UV = [2]uint32{17, 0}
	if err := sim.Render(context.Background(), target, bad, locals, nil); !errors.Is(err, ErrAtlasOverflow) {
		t.Errorf("Render(uv 17) = %v, want ErrAtlasOverflow", err)
	}

	zero := locals
	zero.TextureSize = 0
	if err := sim.Render(context.Background(), target, quadMesh(V2(0, 0), V2(4, 4), LiteralColor(White)), zero, nil); !errors.Is(err, ErrAtlasOverflow) {
		t.Errorf("Render(texture size 0) = %v, want ErrAtlasOverflow", err)
	}

	if err := sim.SetAtlas(image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatal(err)
	}
	if err := sim.Render(context.Background(), target, nil, locals, nil); !errors.Is(err, ErrAtlasOverflow) {
		t.Errorf("Render(texture 16 > atlas 8) = %v, want ErrAtlasOverflow", err)
	}
}

// Frames rendered while ticks run always see a whole array: every node
// of a uniformly toggling circuit has the same level.
func TestRenderDuringTicks(t *testing.T) {
	c := NewCircuit()
	not := c.AddTable(NotTable())
	src := c.Alloc(1)
	_ = c.SetSource(src.Map(0), TableSource{Inputs: src.Map(0), Table: not}.Source())
	followers := c.Alloc(63)
	for i := range followers.Len() {
		_ = c.SetSource(followers.Map(NodeAddr(i)), TableSource{Inputs: src.Map(0), Table: not}.Source())
	}
	// Followers all read the same node, so within one array they always agree.
	_ = c.SetLevel(src.Map(0), false)
	for i := range followers.Len() {
		_ = c.SetLevel(followers.Map(NodeAddr(i)), true)
	}

	sim, err := NewFromCircuit(c, WithBackend("software"), WithWorkers(4))
	if err != nil {
		t.Fatal(err)
	}
	defer sim.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			if err := sim.Tick(ctx); err != nil && ctx.Err() == nil {
				t.Errorf("Tick() = %v", err)
				return
			}
		}
	}()

	for range 50 {
		nodes, err := sim.Snapshot()
		if err != nil {
			t.Fatal(err)
		}
		want := nodes[followers.Map(0)].Level()
		for i := range followers.Len() {
			if nodes[followers.Map(NodeAddr(i))].Level() != want {
				t.Fatalf("torn snapshot at follower %d", i)
			}
		}
	}
	cancel()
	wg.Wait()
}

// ============================================================================
// Helpers
// ============================================================================

func quadMesh(origin, size Vec2, src ColorSource) *Mesh {
	r := RectFromMinSize(origin, size)
	c := r.Corners()
	m := &Mesh{}
	for _, p := range c {
		m.Vertices = append(m.Vertices, NewVertex(p, [2]uint32{}, src))
	}
	m.Indices = []uint32{0, 1, 2, 0, 2, 3}
	return m
}

func pixel(img *image.RGBA, x, y int) Color {
	i := img.PixOffset(x, y)
	return RGBA(img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3])
}
