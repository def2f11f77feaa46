package logisim

import "fmt"

// NodeStore holds the two node arrays of a double buffer in host memory.
//
// The arrays are addressed by slot (0 or 1). The store keeps its own parity
// flag for callers that drive it directly; backends are told the source
// slot explicitly by the simulator and ignore it. Both slots always have the
// same length, a multiple of TileNodes matching Grid(), and never share
// backing storage.
type NodeStore struct {
	slots   [2][]Node
	parity  int
	logical int
	grid    Grid
}

// NewNodeStore allocates both slots padded to the dispatch grid and seeds
// them with nodes. Padding nodes are zero.
func NewNodeStore(nodes []Node) *NodeStore {
	s := &NodeStore{}
	s.Resize(nodes)
	return s
}

// Resize recreates both slots for a new node set. It is a configuration
// change and must not run concurrently with a step.
func (s *NodeStore) Resize(nodes []Node) {
	s.reset(nodes, PlanGrid(len(nodes)))
}

// ResizeGrid is Resize with an explicit dispatch grid. The grid must cover at
// least len(nodes) nodes; the slots are padded to its capacity.
func (s *NodeStore) ResizeGrid(nodes []Node, g Grid) error {
	if err := g.Validate(g.Capacity()); err != nil {
		return err
	}
	if g.Capacity() < len(nodes) {
		return fmt.Errorf("grid %v holds %d nodes, want %d: %w", g, g.Capacity(), len(nodes), ErrGridCoverage)
	}
	s.reset(nodes, g)
	return nil
}

func (s *NodeStore) reset(nodes []Node, g Grid) {
	s.logical = len(nodes)
	s.parity = 0
	s.grid = g
	size := g.Capacity()
	for i := range s.slots {
		s.slots[i] = make([]Node, size)
		copy(s.slots[i], nodes)
	}
}

// Load replaces the contents of both slots. The arrays must be the same
// length and covered exactly by the store's grid.
func (s *NodeStore) Load(slot0, slot1 []Node) error {
	if len(slot0) != len(slot1) {
		return fmt.Errorf("load %d and %d nodes: %w", len(slot0), len(slot1), ErrLengthMismatch)
	}
	if err := s.grid.Validate(len(slot0)); err != nil {
		return err
	}
	copy(s.slots[0], slot0)
	copy(s.slots[1], slot1)
	return nil
}

// Len returns the padded length of each slot.
func (s *NodeStore) Len() int { return len(s.slots[0]) }

// Logical returns the number of nodes the store was created for.
func (s *NodeStore) Logical() int { return s.logical }

// Grid returns the dispatch grid covering the slots.
func (s *NodeStore) Grid() Grid { return s.grid }

// Slot returns the array in slot i (0 or 1).
func (s *NodeStore) Slot(i int) []Node { return s.slots[i&1] }

// Pair returns the arrays read and written by a step from slot src.
func (s *NodeStore) Pair(src int) (current, next []Node) {
	return s.slots[src&1], s.slots[(src+1)&1]
}

// Parity returns the slot that is currently readable.
func (s *NodeStore) Parity() int { return s.parity }

// Current returns the readable array.
func (s *NodeStore) Current() []Node { return s.slots[s.parity] }

// Next returns the array the next step writes.
func (s *NodeStore) Next() []Node { return s.slots[s.parity^1] }

// Flip swaps the roles of the two arrays.
func (s *NodeStore) Flip() { s.parity ^= 1 }
