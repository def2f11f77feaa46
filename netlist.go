package logisim

import (
	"fmt"
	"math/bits"
)

// MaxTableInputs is the widest truth table a node may reference.
// A table with k inputs has 1<<k rows.
const MaxTableInputs = 8

// Source payload layout inside a node:
//
//	Word0 [23:22] kind
//	Word0 [21:16] output bit of the table row
//	Word0 [15:0]  truth table id
//	Word1         copy source address, or first table input address
const (
	sourceKindShift   = 22
	sourceKindMask    = 0x3 << sourceKindShift
	sourceOutputShift = 16
	sourceOutputMask  = 0x3F << sourceOutputShift
	sourceTableMask   = 0xFFFF
)

// SourceKind selects how a node computes its next state.
type SourceKind uint8

const (
	// SourceNone keeps the node state unchanged. Input nodes use it.
	SourceNone SourceKind = iota

	// SourceCopy takes the logic level of another node.
	SourceCopy

	// SourceTable looks up a truth table row addressed by a run of
	// consecutive input nodes and takes one output bit of it.
	SourceTable

	sourceInvalid
)

func (k SourceKind) String() string {
	switch k {
	case SourceNone:
		return "none"
	case SourceCopy:
		return "copy"
	case SourceTable:
		return "table"
	default:
		return fmt.Sprintf("SourceKind(%d)", uint8(k))
	}
}

// TableID indexes a truth table in a circuit's table list.
type TableID uint16

// Source is the decoded transition input of a node.
type Source struct {
	Kind SourceKind

	// Addr is the copied node for SourceCopy and the first of the
	// consecutive input nodes for SourceTable.
	Addr NodeAddr

	// Output is the bit of the table row that becomes the new level.
	Output uint8

	// Table is the truth table for SourceTable.
	Table TableID
}

// CopyFrom returns a source that copies the logic level of addr.
func CopyFrom(addr NodeAddr) Source {
	return Source{Kind: SourceCopy, Addr: addr}
}

// TableSource describes a truth table lookup. The table's inputs are the
// nodes Inputs, Inputs+1, ... Inputs+k-1, with Inputs as the lowest bit.
type TableSource struct {
	Inputs NodeAddr
	Output uint8
	Table  TableID
}

// Source converts t into a node source.
func (t TableSource) Source() Source {
	return Source{Kind: SourceTable, Addr: t.Inputs, Output: t.Output, Table: t.Table}
}

// Source decodes the transition source stored in the node payload.
func (n Node) Source() Source {
	return Source{
		Kind:   SourceKind((n.Word0 & sourceKindMask) >> sourceKindShift),
		Addr:   NodeAddr(n.Word1),
		Output: uint8((n.Word0 & sourceOutputMask) >> sourceOutputShift),
		Table:  TableID(n.Word0 & sourceTableMask),
	}
}

// WithSource returns a copy of n with the payload replaced by src.
// The state byte is preserved. Output is truncated to 6 bits.
func (n Node) WithSource(src Source) Node {
	w0 := n.Word0 & stateMask
	w0 |= uint32(src.Kind) << sourceKindShift & sourceKindMask
	w0 |= uint32(src.Output) << sourceOutputShift & sourceOutputMask
	w0 |= uint32(src.Table)
	n.Word0 = w0
	n.Word1 = uint32(src.Addr)
	return n
}

// TruthTable maps an input bit pattern to a word of output bits.
// Rows[in] bit k is output k for input pattern in.
type TruthTable struct {
	Name    string
	Inputs  uint8
	Outputs uint8
	Rows    []uint64
}

// Eval returns the output word for the given input pattern.
func (t *TruthTable) Eval(input uint32) uint64 {
	return t.Rows[input&(1<<t.Inputs-1)]
}

// Validate checks the table shape.
func (t *TruthTable) Validate() error {
	if t.Inputs > MaxTableInputs {
		return fmt.Errorf("table %q: %d inputs: %w", t.Name, t.Inputs, ErrTooManyInputs)
	}
	if t.Outputs == 0 || t.Outputs > 64 {
		return fmt.Errorf("table %q: %d outputs: %w", t.Name, t.Outputs, ErrInvalidSource)
	}
	if want := 1 << t.Inputs; len(t.Rows) != want {
		return fmt.Errorf("table %q: %d rows, want %d: %w", t.Name, len(t.Rows), want, ErrInvalidSource)
	}
	return nil
}

// AndTable returns the two-input AND table.
func AndTable() TruthTable {
	return TruthTable{Name: "and", Inputs: 2, Outputs: 1, Rows: []uint64{0, 0, 0, 1}}
}

// OrTable returns the two-input OR table.
func OrTable() TruthTable {
	return TruthTable{Name: "or", Inputs: 2, Outputs: 1, Rows: []uint64{0, 1, 1, 1}}
}

// XorTable returns the two-input XOR table.
func XorTable() TruthTable {
	return TruthTable{Name: "xor", Inputs: 2, Outputs: 1, Rows: []uint64{0, 1, 1, 0}}
}

// NandTable returns the two-input NAND table.
func NandTable() TruthTable {
	return TruthTable{Name: "nand", Inputs: 2, Outputs: 1, Rows: []uint64{1, 1, 1, 0}}
}

// NotTable returns the inverter table.
func NotTable() TruthTable {
	return TruthTable{Name: "not", Inputs: 1, Outputs: 1, Rows: []uint64{1, 0}}
}

// FullAdderTable returns a three-input adder (a, b, carry in) with the sum on
// output 0 and the carry on output 1.
func FullAdderTable() TruthTable {
	rows := make([]uint64, 8)
	for in := range rows {
		ones := bits.OnesCount(uint(in))
		sum := uint64(ones & 1)
		carry := uint64(0)
		if ones >= 2 {
			carry = 1
		}
		rows[in] = sum | carry<<1
	}
	return TruthTable{Name: "full-adder", Inputs: 3, Outputs: 2, Rows: rows}
}

// DefaultTables returns the built-in gate library in a stable order.
func DefaultTables() []TruthTable {
	return []TruthTable{AndTable(), OrTable(), NotTable(), XorTable(), NandTable(), FullAdderTable()}
}

// Region is a contiguous block of nodes [Min, Max) handed out by Circuit.Alloc.
// Addresses inside a component are local and mapped through the region.
type Region struct {
	Min NodeAddr
	Max NodeAddr
}

// Len returns the number of nodes in the region.
func (r Region) Len() int { return int(r.Max - r.Min) }

// Map converts a region-local address to a global one.
func (r Region) Map(local NodeAddr) NodeAddr { return local + r.Min }

// Contains reports whether the global address lies in the region.
func (r Region) Contains(addr NodeAddr) bool { return addr >= r.Min && addr < r.Max }

// MapSource rewrites the addresses of a region-local source to global ones.
func (r Region) MapSource(src Source) Source {
	if src.Kind == SourceCopy || src.Kind == SourceTable {
		src.Addr = r.Map(src.Addr)
	}
	return src
}

// Circuit builds the node array and truth table list for a simulation.
// Node 0 is reserved and never allocated, so a zero NodeAddr can mean
// "unconnected" in higher layers.
type Circuit struct {
	nodes  []Node
	tables []TruthTable
}

// NewCircuit returns an empty circuit holding only the reserved node 0.
func NewCircuit() *Circuit {
	return &Circuit{nodes: make([]Node, 1)}
}

// Alloc appends size fresh nodes and returns their region.
func (c *Circuit) Alloc(size int) Region {
	lo := NodeAddr(len(c.nodes))
	c.nodes = append(c.nodes, make([]Node, size)...)
	return Region{Min: lo, Max: NodeAddr(len(c.nodes))}
}

// AddTable appends a truth table and returns its id.
func (c *Circuit) AddTable(t TruthTable) TableID {
	c.tables = append(c.tables, t)
	return TableID(len(c.tables) - 1)
}

// SetSource sets the transition source of a node.
func (c *Circuit) SetSource(addr NodeAddr, src Source) error {
	if int(addr) >= len(c.nodes) {
		return fmt.Errorf("set source of node %d: %w", addr, ErrNodeOutOfRange)
	}
	c.nodes[addr] = c.nodes[addr].WithSource(src)
	return nil
}

// SetLevel sets the initial logic level of a node.
func (c *Circuit) SetLevel(addr NodeAddr, on bool) error {
	if int(addr) >= len(c.nodes) {
		return fmt.Errorf("set level of node %d: %w", addr, ErrNodeOutOfRange)
	}
	c.nodes[addr] = c.nodes[addr].WithLevel(on)
	return nil
}

// SetState sets the full state byte of a node.
func (c *Circuit) SetState(addr NodeAddr, state uint8) error {
	if int(addr) >= len(c.nodes) {
		return fmt.Errorf("set state of node %d: %w", addr, ErrNodeOutOfRange)
	}
	c.nodes[addr] = c.nodes[addr].WithState(state)
	return nil
}

// Node returns the node at addr.
func (c *Circuit) Node(addr NodeAddr) (Node, bool) {
	if int(addr) >= len(c.nodes) {
		return Node{}, false
	}
	return c.nodes[addr], true
}

// Len returns the number of nodes including the reserved node 0.
func (c *Circuit) Len() int { return len(c.nodes) }

// Nodes returns a copy of the node array.
func (c *Circuit) Nodes() []Node {
	return append([]Node(nil), c.nodes...)
}

// Tables returns a copy of the truth table list.
func (c *Circuit) Tables() []TruthTable {
	return append([]TruthTable(nil), c.tables...)
}

// Rule returns a netlist rule over the circuit's tables.
func (c *Circuit) Rule() *NetlistRule {
	return &NetlistRule{Tables: c.Tables()}
}

// Validate checks every node source against the node count and table list.
func (c *Circuit) Validate() error {
	return c.Rule().Validate(c.nodes)
}
