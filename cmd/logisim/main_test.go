package main

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gogpu/logisim"
	"github.com/gogpu/logisim/stream"
)

func newSoftwareSim(t *testing.T) (*logisim.Simulator, *demo) {
	t.Helper()
	d, err := buildDemo(ringStages, adderBits)
	if err != nil {
		t.Fatalf("buildDemo error: %v", err)
	}
	sim, err := logisim.NewFromCircuit(d.circuit, logisim.WithBackend("software"))
	if err != nil {
		t.Fatalf("NewFromCircuit error: %v", err)
	}
	t.Cleanup(sim.Close)
	return sim, d
}

func TestDemoAdderSettles(t *testing.T) {
	sim, d := newSoftwareSim(t)
	if err := sim.Run(context.Background(), d.settleTicks()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	nodes, err := sim.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := d.sum(nodes), d.a+d.b; got != want {
		t.Errorf("adder sum = %d, want %d", got, want)
	}
}

func TestDemoRingOscillates(t *testing.T) {
	sim, d := newSoftwareSim(t)
	prev, err := sim.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	for tick := range 4 {
		if err := sim.Tick(context.Background()); err != nil {
			t.Fatal(err)
		}
		cur, err := sim.Snapshot()
		if err != nil {
			t.Fatal(err)
		}
		changed := false
		for i := d.ring.Min; i < d.ring.Max; i++ {
			changed = changed || cur[i].Level() != prev[i].Level()
		}
		if !changed {
			t.Fatalf("ring did not change at tick %d", tick+1)
		}
		prev = cur
	}
}

func TestBuildDemoRejectsBadSize(t *testing.T) {
	if _, err := buildDemo(0, 4); err == nil {
		t.Error("zero stages should fail")
	}
	if _, err := buildDemo(3, 33); err == nil {
		t.Error("33 bits should fail")
	}
}

func TestStrip(t *testing.T) {
	nodes := []logisim.Node{
		logisim.NewNode(0, 0, 0),
		logisim.NewNode(0, 0, 0).WithLevel(true),
		logisim.NewNode(0, 0, 0),
		logisim.NewNode(0, 0, 0).WithLevel(true),
	}
	if got, want := strip(7, nodes, 80), "     7 █·█"; got != want {
		t.Errorf("strip = %q, want %q", got, want)
	}
	if got, want := strip(7, nodes, 9), "     7 █·"; got != want {
		t.Errorf("narrow strip = %q, want %q", got, want)
	}
	if got := strip(1, nil, 80); got != "     1 " {
		t.Errorf("empty strip = %q", got)
	}
}

func TestFitView(t *testing.T) {
	bounds := logisim.Rect{Min: logisim.V2(0, 0), Max: logisim.V2(100, 50)}
	v := fitView(bounds, 200, 200)
	if math.Abs(float64(v.Scale)-1.8) > 1e-5 {
		t.Errorf("Scale = %g, want 1.8", v.Scale)
	}
	c := v.Apply(bounds.Center())
	if math.Abs(float64(c.X)-100) > 1e-3 || math.Abs(float64(c.Y)-100) > 1e-3 {
		t.Errorf("center maps to %v, want (100,100)", c)
	}
	if v := fitView(logisim.Rect{}, 10, 10); v != logisim.IdentityTransform() {
		t.Errorf("empty bounds view = %+v, want identity", v)
	}
}

func TestRenderFrame(t *testing.T) {
	sim, d := newSoftwareSim(t)
	img, err := renderFrame(context.Background(), sim, d, 320, 200)
	if err != nil {
		t.Fatalf("renderFrame error: %v", err)
	}
	bg := background.NRGBA()
	var drawn int
	for y := range 200 {
		for x := range 320 {
			c := img.RGBAAt(x, y)
			if c.R != bg.R || c.G != bg.G || c.B != bg.B {
				drawn++
			}
		}
	}
	if drawn == 0 {
		t.Error("rendered frame is all background")
	}
	if _, err := renderFrame(context.Background(), sim, d, 0, 10); err == nil {
		t.Error("zero width should fail")
	}
}

func TestTickLoopPublishes(t *testing.T) {
	sim, _ := newSoftwareSim(t)
	hub := stream.NewHub(0)
	defer hub.Close()

	if err := tickLoop(context.Background(), sim, hub, time.Millisecond, 3); err != nil {
		t.Fatalf("tickLoop error: %v", err)
	}
	if sim.Ticks() != 3 {
		t.Errorf("Ticks() = %d, want 3", sim.Ticks())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tickLoop(ctx, sim, hub, time.Millisecond, 0); err != nil {
		t.Errorf("canceled tickLoop error: %v", err)
	}
}

func TestRunCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"run", "--backend", "software", "--ticks", "12"})
	if err := root.Execute(); err != nil {
		t.Fatalf("run error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 14 {
		t.Fatalf("got %d lines, want 13 strips and the adder result:\n%s", len(lines), out.String())
	}
	if want := "adder: 5 + 3 = 8"; lines[13] != want {
		t.Errorf("last line = %q, want %q", lines[13], want)
	}
}

func TestRenderCommand(t *testing.T) {
	out := filepath.Join(t.TempDir(), "frame.png")
	var buf bytes.Buffer
	root := newRootCmd()
	root.SetOut(&buf)
	root.SetArgs([]string{"render", "--backend", "software", "--ticks", "2", "--out", out, "--width", "64", "--height", "48"})
	if err := root.Execute(); err != nil {
		t.Fatalf("render error: %v", err)
	}
	if !strings.Contains(buf.String(), "64x48") {
		t.Errorf("output = %q", buf.String())
	}
}
