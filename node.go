package logisim

import (
	"encoding/binary"
	"fmt"
)

// NodeSize is the size of one node in bytes: two 32-bit words.
const NodeSize = 8

// Bit layout of Word0.
const (
	stateShift   = 24
	stateMask    = 0xFF000000
	payloadMask  = 0x00FFFFFF
	levelBit     = 1 << stateShift
	levelBitMask = ^uint32(levelBit)
)

// NodeAddr is the index of a node in a node array.
type NodeAddr uint32

// Node is the unit of simulation.
//
// Word0 bits [31:24] hold the node state. The remaining bits of Word0 and all
// of Word1 are payload interpreted only by the active Rule. The renderer
// looks at the state byte and nothing else.
type Node struct {
	Word0 uint32
	Word1 uint32
}

// NewNode builds a node from a state byte, the low 24 payload bits of Word0
// and the secondary payload word. Bits of payload0 above bit 23 are dropped.
func NewNode(state uint8, payload0, word1 uint32) Node {
	return Node{
		Word0: uint32(state)<<stateShift | payload0&payloadMask,
		Word1: word1,
	}
}

// State returns the 8-bit state field.
func (n Node) State() uint8 {
	return uint8((n.Word0 & stateMask) >> stateShift)
}

// WithState returns a copy of n with the state byte replaced.
func (n Node) WithState(s uint8) Node {
	n.Word0 = uint32(s)<<stateShift | n.Word0&payloadMask
	return n
}

// Level reports the logic level: bit 24, the lowest bit of the state byte.
// This is the bit the renderer uses to pick a state color.
func (n Node) Level() bool {
	return n.Word0&levelBit != 0
}

// WithLevel returns a copy of n with only the logic level bit changed.
// The other state bits are preserved.
func (n Node) WithLevel(on bool) Node {
	n.Word0 &= levelBitMask
	if on {
		n.Word0 |= levelBit
	}
	return n
}

// Payload returns the 24 payload bits of Word0.
func (n Node) Payload() uint32 {
	return n.Word0 & payloadMask
}

func (n Node) String() string {
	return fmt.Sprintf("Node{state=%d payload=%#06x word1=%#08x}", n.State(), n.Payload(), n.Word1)
}

// EncodeNodes serializes nodes into their little-endian wire layout.
// dst is grown if needed and the encoded prefix is returned.
func EncodeNodes(dst []byte, nodes []Node) []byte {
	size := len(nodes) * NodeSize
	if cap(dst) < size {
		dst = make([]byte, size)
	}
	dst = dst[:size]
	for i, n := range nodes {
		binary.LittleEndian.PutUint32(dst[i*NodeSize:], n.Word0)
		binary.LittleEndian.PutUint32(dst[i*NodeSize+4:], n.Word1)
	}
	return dst
}

// DecodeNodes parses little-endian node words from src into dst.
// It decodes min(len(dst), len(src)/NodeSize) nodes and returns that count.
func DecodeNodes(dst []Node, src []byte) int {
	count := min(len(dst), len(src)/NodeSize)
	for i := range count {
		dst[i] = Node{
			Word0: binary.LittleEndian.Uint32(src[i*NodeSize:]),
			Word1: binary.LittleEndian.Uint32(src[i*NodeSize+4:]),
		}
	}
	return count
}
