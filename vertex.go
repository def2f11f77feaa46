package logisim

import (
	"encoding/binary"
	"fmt"
	"math"
)

// VertexStride is the size of one encoded vertex in bytes.
const VertexStride = 24

// Vertex is one vertex of the circuit mesh.
//
// Pos is in world space and is mapped to the screen by the global transform
// in Locals. UV addresses the atlas in texels. When IsNodeAddr is 1,
// ColorOrNode is a node index and the vertex takes the state color of that
// node; otherwise ColorOrNode is a literal packed RGBA color.
type Vertex struct {
	Pos         Vec2
	UV          [2]uint32
	ColorOrNode uint32
	IsNodeAddr  uint32
}

// ColorSource is the color input of a vertex: a literal color or a node
// whose logic level selects a state color.
type ColorSource struct {
	value  uint32
	isNode bool
}

// LiteralColor returns a fixed color source.
func LiteralColor(c Color) ColorSource {
	return ColorSource{value: uint32(c)}
}

// NodeColor returns a color source following the state of node addr.
func NodeColor(addr NodeAddr) ColorSource {
	return ColorSource{value: uint32(addr), isNode: true}
}

// IsNode reports whether the source reads a node.
func (s ColorSource) IsNode() bool { return s.isNode }

// Color returns the literal color. It is meaningless for node sources.
func (s ColorSource) Color() Color { return Color(s.value) }

// Node returns the node address. It is meaningless for literal sources.
func (s ColorSource) Node() NodeAddr { return NodeAddr(s.value) }

func (s ColorSource) String() string {
	if s.isNode {
		return fmt.Sprintf("node(%d)", s.value)
	}
	return Color(s.value).String()
}

// NewVertex builds a vertex.
func NewVertex(pos Vec2, uv [2]uint32, src ColorSource) Vertex {
	v := Vertex{Pos: pos, UV: uv, ColorOrNode: src.value}
	if src.isNode {
		v.IsNodeAddr = 1
	}
	return v
}

// EncodeVertices serializes vertices into their little-endian buffer layout.
// dst is grown if needed and the encoded prefix is returned.
func EncodeVertices(dst []byte, vs []Vertex) []byte {
	size := len(vs) * VertexStride
	if cap(dst) < size {
		dst = make([]byte, size)
	}
	dst = dst[:size]
	for i, v := range vs {
		b := dst[i*VertexStride:]
		binary.LittleEndian.PutUint32(b[0:], math.Float32bits(v.Pos.X))
		binary.LittleEndian.PutUint32(b[4:], math.Float32bits(v.Pos.Y))
		binary.LittleEndian.PutUint32(b[8:], v.UV[0])
		binary.LittleEndian.PutUint32(b[12:], v.UV[1])
		binary.LittleEndian.PutUint32(b[16:], v.ColorOrNode)
		binary.LittleEndian.PutUint32(b[20:], v.IsNodeAddr)
	}
	return dst
}

// ResolvedVertex is a vertex after the per-vertex stage of the renderer.
type ResolvedVertex struct {
	// Clip is the position in normalized device coordinates.
	Clip Vec2

	// UV is the normalized atlas coordinate.
	UV [2]float32

	// Color is the straight-alpha RGBA color in [0,1].
	Color [4]float32
}

// ResolveVertex applies the renderer's vertex stage on the CPU. current is
// the readable node array. The vertex must have been validated against it.
func ResolveVertex(v Vertex, l *Locals, current []Node) ResolvedVertex {
	screen := Vec2{
		v.Pos.X*l.GlobalScale + l.GlobalOffset.X,
		v.Pos.Y*l.GlobalScale + l.GlobalOffset.Y,
	}
	tex := float32(l.TextureSize)
	out := ResolvedVertex{
		Clip: ScreenToClip(screen, l.ScreenSize),
		UV:   [2]float32{float32(v.UV[0]) / tex, float32(v.UV[1]) / tex},
	}
	if v.IsNodeAddr != 0 {
		out.Color = l.StateColor[Selector(current[v.ColorOrNode])].Floats()
	} else {
		out.Color = Color(v.ColorOrNode).Floats()
	}
	return out
}

// ValidateVertices checks every vertex against a node array of length n and
// an atlas of textureSize texels square. A non-empty list needs a non-zero
// textureSize.
func ValidateVertices(vs []Vertex, n int, textureSize uint32) error {
	if len(vs) > 0 && textureSize == 0 {
		return fmt.Errorf("%d vertices with zero texture size: %w", len(vs), ErrAtlasOverflow)
	}
	for i, v := range vs {
		if v.IsNodeAddr > 1 {
			return fmt.Errorf("vertex %d: is_node_addr = %d: %w", i, v.IsNodeAddr, ErrInvalidMesh)
		}
		if v.IsNodeAddr == 1 && uint64(v.ColorOrNode) >= uint64(n) {
			return fmt.Errorf("vertex %d references node %d of %d: %w", i, v.ColorOrNode, n, ErrNodeOutOfRange)
		}
		if v.UV[0] > textureSize || v.UV[1] > textureSize {
			return fmt.Errorf("vertex %d uv (%d,%d) beyond %d: %w", i, v.UV[0], v.UV[1], textureSize, ErrAtlasOverflow)
		}
	}
	return nil
}
