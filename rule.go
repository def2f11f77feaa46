package logisim

import (
	"fmt"

	"github.com/gogpu/logisim/internal/parallel"
)

// Rule is the per-node transition function of the update kernel.
//
// Apply returns the next value of node i. It may read any element of
// current but must not retain or modify it, and its result must depend only
// on current. The kernel calls Apply once per index with no ordering
// guarantee and writes the result to next[i] only.
type Rule interface {
	// Name identifies the rule in logs and errors.
	Name() string

	// Apply computes the next value of node i from the current array.
	Apply(current []Node, i int) Node
}

// IdentityRule carries every node forward unchanged, state and payload.
// It is the default rule.
type IdentityRule struct{}

// Name implements Rule.
func (IdentityRule) Name() string { return "identity" }

// Apply implements Rule.
func (IdentityRule) Apply(current []Node, i int) Node {
	old := current[i]
	return Node{
		Word0: old.Word0&stateMask | old.Word0&payloadMask,
		Word1: old.Word1,
	}
}

// NetlistRule evaluates node sources against a truth table library.
//
// SourceNone nodes keep their state. SourceCopy and SourceTable nodes get
// a state of 0 or 1 computed from the logic levels of the referenced nodes
// in the current array. Payload bits are always carried over.
type NetlistRule struct {
	Tables []TruthTable
}

// Name implements Rule.
func (r *NetlistRule) Name() string { return "netlist" }

// Apply implements Rule.
func (r *NetlistRule) Apply(current []Node, i int) Node {
	n := current[i]
	src := n.Source()
	switch src.Kind {
	case SourceCopy:
		return n.WithState(levelState(current[src.Addr].Level()))
	case SourceTable:
		t := &r.Tables[src.Table]
		var input uint32
		for k := range uint32(t.Inputs) {
			if current[uint32(src.Addr)+k].Level() {
				input |= 1 << k
			}
		}
		return n.WithState(uint8(t.Eval(input) >> src.Output & 1))
	default:
		return n
	}
}

func levelState(on bool) uint8 {
	if on {
		return 1
	}
	return 0
}

// Validate checks that every source in nodes can be evaluated without
// reading outside the array.
func (r *NetlistRule) Validate(nodes []Node) error {
	for i := range r.Tables {
		if err := r.Tables[i].Validate(); err != nil {
			return err
		}
	}
	return r.ValidateRange(0, nodes, len(nodes))
}

// ValidateRange checks the sources of nodes as if they were stored at
// offset in an array of size nodes.
func (r *NetlistRule) ValidateRange(offset int, nodes []Node, size int) error {
	n := uint64(size)
	for j, node := range nodes {
		i := offset + j
		src := node.Source()
		switch src.Kind {
		case SourceNone:
		case SourceCopy:
			if uint64(src.Addr) >= n {
				return fmt.Errorf("node %d copies node %d of %d: %w", i, src.Addr, n, ErrNodeOutOfRange)
			}
		case SourceTable:
			if int(src.Table) >= len(r.Tables) {
				return fmt.Errorf("node %d uses table %d of %d: %w", i, src.Table, len(r.Tables), ErrUnknownTable)
			}
			t := &r.Tables[src.Table]
			if uint64(src.Addr)+uint64(t.Inputs) > n {
				return fmt.Errorf("node %d reads inputs %d..%d of %d: %w",
					i, src.Addr, uint64(src.Addr)+uint64(t.Inputs), n, ErrNodeOutOfRange)
			}
			if src.Output >= t.Outputs {
				return fmt.Errorf("node %d selects output %d of table %q: %w", i, src.Output, t.Name, ErrInvalidSource)
			}
		default:
			return fmt.Errorf("node %d has source kind %v: %w", i, src.Kind, ErrInvalidSource)
		}
	}
	return nil
}

// Step runs one update of rule over current into next. Both arrays must be
// the same length and covered exactly by grid. With a non-nil pool the
// tiles of the grid are processed in parallel.
func Step(rule Rule, grid Grid, current, next []Node, pool *parallel.WorkerPool) error {
	if len(current) != len(next) {
		return fmt.Errorf("step %d -> %d nodes: %w", len(current), len(next), ErrLengthMismatch)
	}
	if err := grid.Validate(len(current)); err != nil {
		return err
	}
	tg := parallel.NewTileGrid(int(grid.GroupsX), int(grid.GroupsY))
	width := tg.RowWidth()
	parallel.ForEachTile(pool, tg, func(t parallel.Tile) {
		t.Indices(width, func(i int) {
			next[i] = rule.Apply(current, i)
		})
	})
	return nil
}
