package logisim

import (
	"fmt"

	"github.com/gogpu/logisim/internal/parallel"
)

// Dispatch grid constants. The update kernel runs in 8x8 workgroups; each
// invocation handles one node.
const (
	// TileSize is the workgroup edge length in invocations.
	TileSize = parallel.TileWidth

	// TileNodes is the number of nodes covered by one workgroup.
	TileNodes = parallel.TileNodes

	// MaxGroupsPerDim is the WebGPU default limit on workgroups per dimension.
	MaxGroupsPerDim = 65535
)

// Grid is a 2D dispatch of GroupsX x GroupsY workgroups of 8x8 invocations.
//
// Invocation (x, y) handles node y*Width()+x. A grid therefore covers exactly
// Capacity() nodes, and node arrays are padded to that length so the mapping
// is a bijection onto [0, len).
type Grid struct {
	GroupsX uint32
	GroupsY uint32
}

// PlanGrid returns the smallest grid covering n nodes. Workgroups are laid out
// along X first and wrap onto further rows only past MaxGroupsPerDim.
func PlanGrid(n int) Grid {
	tiles := (n + TileNodes - 1) / TileNodes
	if tiles == 0 {
		tiles = 1
	}
	gx := min(tiles, MaxGroupsPerDim)
	gy := (tiles + gx - 1) / gx
	return Grid{GroupsX: uint32(gx), GroupsY: uint32(gy)} //nolint:gosec // bounded by MaxGroupsPerDim
}

// PaddedLen returns the node array length for n logical nodes.
func PaddedLen(n int) int {
	return PlanGrid(n).Capacity()
}

// Width returns the number of invocations per grid row.
func (g Grid) Width() uint32 { return g.GroupsX * TileSize }

// Height returns the number of invocation rows.
func (g Grid) Height() uint32 { return g.GroupsY * TileSize }

// Capacity returns the number of nodes the grid covers.
func (g Grid) Capacity() int {
	return int(g.GroupsX) * int(g.GroupsY) * TileNodes
}

// Index maps an invocation coordinate to its node index.
func (g Grid) Index(x, y uint32) uint32 {
	return y*g.Width() + x
}

// Covers reports whether the grid addresses exactly n nodes.
func (g Grid) Covers(n int) bool {
	return g.Validate(n) == nil
}

// Validate reports whether the grid covers an array of length n exactly once.
func (g Grid) Validate(n int) error {
	if g.GroupsX == 0 || g.GroupsY == 0 {
		return fmt.Errorf("empty grid %dx%d: %w", g.GroupsX, g.GroupsY, ErrGridCoverage)
	}
	if g.GroupsX > MaxGroupsPerDim || g.GroupsY > MaxGroupsPerDim {
		return fmt.Errorf("grid %dx%d exceeds %d groups per dimension: %w",
			g.GroupsX, g.GroupsY, MaxGroupsPerDim, ErrGridCoverage)
	}
	if c := g.Capacity(); c != n {
		return fmt.Errorf("grid %dx%d covers %d nodes, array has %d: %w",
			g.GroupsX, g.GroupsY, c, n, ErrGridCoverage)
	}
	return nil
}

func (g Grid) String() string {
	return fmt.Sprintf("%dx%d groups (%d nodes)", g.GroupsX, g.GroupsY, g.Capacity())
}
