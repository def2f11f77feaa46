package logisim

import (
	"errors"
	"testing"
)

func TestSourceRoundTrip(t *testing.T) {
	sources := []Source{
		{},
		CopyFrom(12345),
		TableSource{Inputs: 0xFFFFFFFF, Output: 63, Table: 0xFFFF}.Source(),
		TableSource{Inputs: 7, Output: 1, Table: 3}.Source(),
	}
	for _, src := range sources {
		n := NewNode(0xA5, 0, 0).WithSource(src)
		if got := n.Source(); got != src {
			t.Errorf("Source() = %+v, want %+v", got, src)
		}
		if n.State() != 0xA5 {
			t.Errorf("WithSource changed state to %#x", n.State())
		}
	}
}

func TestTruthTables(t *testing.T) {
	tests := []struct {
		table TruthTable
		in    uint32
		want  uint64
	}{
		{AndTable(), 0b11, 1},
		{AndTable(), 0b01, 0},
		{OrTable(), 0b10, 1},
		{OrTable(), 0b00, 0},
		{XorTable(), 0b11, 0},
		{XorTable(), 0b10, 1},
		{NandTable(), 0b11, 0},
		{NandTable(), 0b00, 1},
		{NotTable(), 0, 1},
		{NotTable(), 1, 0},
		{FullAdderTable(), 0b111, 0b11},
		{FullAdderTable(), 0b011, 0b10},
		{FullAdderTable(), 0b100, 0b01},
		// high input bits are masked off
		{AndTable(), 0b111, 1},
	}
	for _, tt := range tests {
		if got := tt.table.Eval(tt.in); got != tt.want {
			t.Errorf("%s.Eval(%b) = %b, want %b", tt.table.Name, tt.in, got, tt.want)
		}
	}
	for _, tbl := range DefaultTables() {
		if err := tbl.Validate(); err != nil {
			t.Errorf("%s.Validate() = %v", tbl.Name, err)
		}
	}
}

func TestTruthTableValidate(t *testing.T) {
	tests := []struct {
		name  string
		table TruthTable
		want  error
	}{
		{"too wide", TruthTable{Inputs: 9, Outputs: 1, Rows: make([]uint64, 512)}, ErrTooManyInputs},
		{"no outputs", TruthTable{Inputs: 1, Outputs: 0, Rows: make([]uint64, 2)}, ErrInvalidSource},
		{"short rows", TruthTable{Inputs: 2, Outputs: 1, Rows: make([]uint64, 3)}, ErrInvalidSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.table.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRegion(t *testing.T) {
	c := NewCircuit()
	a := c.Alloc(3)
	b := c.Alloc(2)
	if a.Min != 1 || a.Max != 4 {
		t.Errorf("first region = %+v, want [1,4)", a)
	}
	if b.Len() != 2 || b.Map(1) != 5 {
		t.Errorf("second region = %+v, Map(1) = %d", b, b.Map(1))
	}
	if !b.Contains(4) || b.Contains(6) {
		t.Errorf("Contains wrong for %+v", b)
	}
	src := b.MapSource(CopyFrom(0))
	if src.Addr != 4 {
		t.Errorf("MapSource(copy 0).Addr = %d, want 4", src.Addr)
	}
	if none := b.MapSource(Source{}); none.Addr != 0 {
		t.Errorf("MapSource(none).Addr = %d, want 0", none.Addr)
	}
}

func TestCircuitValidate(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		c := NewCircuit()
		r := c.Alloc(3)
		and := c.AddTable(AndTable())
		if err := c.SetSource(r.Map(2), TableSource{Inputs: r.Map(0), Table: and}.Source()); err != nil {
			t.Fatal(err)
		}
		if err := c.Validate(); err != nil {
			t.Errorf("Validate() = %v", err)
		}
	})
	t.Run("copy out of range", func(t *testing.T) {
		c := NewCircuit()
		r := c.Alloc(1)
		_ = c.SetSource(r.Map(0), CopyFrom(99))
		if err := c.Validate(); !errors.Is(err, ErrNodeOutOfRange) {
			t.Errorf("Validate() = %v, want ErrNodeOutOfRange", err)
		}
	})
	t.Run("unknown table", func(t *testing.T) {
		c := NewCircuit()
		r := c.Alloc(3)
		_ = c.SetSource(r.Map(2), TableSource{Inputs: r.Map(0), Table: 4}.Source())
		if err := c.Validate(); !errors.Is(err, ErrUnknownTable) {
			t.Errorf("Validate() = %v, want ErrUnknownTable", err)
		}
	})
	t.Run("inputs past end", func(t *testing.T) {
		c := NewCircuit()
		r := c.Alloc(2)
		and := c.AddTable(AndTable())
		_ = c.SetSource(r.Map(0), TableSource{Inputs: r.Map(1), Table: and}.Source())
		if err := c.Validate(); !errors.Is(err, ErrNodeOutOfRange) {
			t.Errorf("Validate() = %v, want ErrNodeOutOfRange", err)
		}
	})
	t.Run("bad output bit", func(t *testing.T) {
		c := NewCircuit()
		r := c.Alloc(3)
		and := c.AddTable(AndTable())
		_ = c.SetSource(r.Map(2), TableSource{Inputs: r.Map(0), Output: 1, Table: and}.Source())
		if err := c.Validate(); !errors.Is(err, ErrInvalidSource) {
			t.Errorf("Validate() = %v, want ErrInvalidSource", err)
		}
	})
	t.Run("invalid kind", func(t *testing.T) {
		c := NewCircuit()
		c.Alloc(1)
		c.nodes[1].Word0 |= 3 << sourceKindShift
		if err := c.Validate(); !errors.Is(err, ErrInvalidSource) {
			t.Errorf("Validate() = %v, want ErrInvalidSource", err)
		}
	})
}

func TestCircuitSetters(t *testing.T) {
	c := NewCircuit()
	r := c.Alloc(2)
	if err := c.SetLevel(r.Map(0), true); err != nil {
		t.Fatal(err)
	}
	if err := c.SetState(r.Map(1), 0x80); err != nil {
		t.Fatal(err)
	}
	n0, _ := c.Node(r.Map(0))
	n1, _ := c.Node(r.Map(1))
	if !n0.Level() || n1.State() != 0x80 {
		t.Errorf("nodes = %v, %v", n0, n1)
	}
	if err := c.SetLevel(10, true); !errors.Is(err, ErrNodeOutOfRange) {
		t.Errorf("SetLevel(10) = %v, want ErrNodeOutOfRange", err)
	}
	if _, ok := c.Node(10); ok {
		t.Error("Node(10) ok = true, want false")
	}

	nodes := c.Nodes()
	nodes[1] = Node{}
	if n, _ := c.Node(1); !n.Level() {
		t.Error("Nodes() returned shared storage")
	}
}
