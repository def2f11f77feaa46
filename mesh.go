package logisim

import "fmt"

// Mesh is an indexed triangle list.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// Empty reports whether the mesh draws nothing.
func (m *Mesh) Empty() bool {
	return m == nil || len(m.Indices) == 0
}

// Validate checks the mesh against a node array of length n and an atlas of
// textureSize texels. Indices must form whole triangles over the mesh's own
// vertices.
func (m *Mesh) Validate(n int, textureSize uint32) error {
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("%d indices is not a triangle list: %w", len(m.Indices), ErrInvalidMesh)
	}
	for i, idx := range m.Indices {
		if int(idx) >= len(m.Vertices) {
			return fmt.Errorf("index %d = %d of %d vertices: %w", i, idx, len(m.Vertices), ErrInvalidMesh)
		}
	}
	return ValidateVertices(m.Vertices, n, textureSize)
}
