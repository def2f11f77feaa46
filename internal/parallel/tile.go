// Package parallel provides the CPU side of the tiled node update.
//
// The node array is viewed as a 2D grid of 8x8 tiles, the same shape the GPU
// update kernel dispatches as workgroups. Tiles are independent: every node
// belongs to exactly one tile, so tiles can be processed by any worker in any
// order. Key pieces:
//
//   - Tile and TileGrid describe the dispatch shape
//   - WorkerPool runs batches of tiles with work stealing
//   - ForEachTile splits a grid into batches and waits for all of them
//
// Thread safety: TileGrid is immutable. WorkerPool is safe for concurrent use.
package parallel

// Tile size constants. They match the @workgroup_size of the update kernel.
const (
	// TileWidth is the width of a tile in invocations.
	TileWidth = 8

	// TileHeight is the height of a tile in invocations.
	TileHeight = 8

	// TileNodes is the number of nodes in a tile.
	TileNodes = TileWidth * TileHeight
)

// Tile is one workgroup of the node grid.
type Tile struct {
	// X is the tile column index (0-based).
	X int

	// Y is the tile row index (0-based).
	Y int
}

// Bounds returns the invocation bounds of this tile in grid space.
// Returns (x, y, width, height) where x,y is the top-left corner.
func (t Tile) Bounds() (x, y, w, h int) {
	return t.X * TileWidth, t.Y * TileHeight, TileWidth, TileHeight
}

// Indices calls fn with the linear node index of every invocation in the
// tile, row by row. rowWidth is the number of invocations per grid row.
func (t Tile) Indices(rowWidth int, fn func(i int)) {
	x0, y0, w, h := t.Bounds()
	for y := y0; y < y0+h; y++ {
		base := y*rowWidth + x0
		for x := range w {
			fn(base + x)
		}
	}
}

// TileGrid is a grid of TilesX x TilesY tiles.
type TileGrid struct {
	tilesX int
	tilesY int
}

// NewTileGrid creates a grid with the given tile counts.
// Non-positive counts are clamped to 1.
func NewTileGrid(tilesX, tilesY int) TileGrid {
	return TileGrid{tilesX: max(tilesX, 1), tilesY: max(tilesY, 1)}
}

// TilesX returns the number of tile columns.
func (g TileGrid) TilesX() int { return g.tilesX }

// TilesY returns the number of tile rows.
func (g TileGrid) TilesY() int { return g.tilesY }

// TileCount returns the total number of tiles.
func (g TileGrid) TileCount() int { return g.tilesX * g.tilesY }

// RowWidth returns the number of invocations per grid row.
func (g TileGrid) RowWidth() int { return g.tilesX * TileWidth }

// NodeCount returns the number of nodes covered by the grid.
func (g TileGrid) NodeCount() int { return g.TileCount() * TileNodes }

// TileAt returns the tile with the given linear index (row-major).
func (g TileGrid) TileAt(i int) Tile {
	return Tile{X: i % g.tilesX, Y: i / g.tilesX}
}

// ForEach calls fn for every tile in row-major order on the calling goroutine.
func (g TileGrid) ForEach(fn func(Tile)) {
	for i := range g.TileCount() {
		fn(g.TileAt(i))
	}
}

// ForEachTile runs fn for every tile of the grid on the pool and waits for
// all tiles to finish. Tiles are grouped into contiguous batches, a few per
// worker, so that small grids do not pay per-tile scheduling cost.
// With a nil or closed pool the tiles run on the calling goroutine.
func ForEachTile(pool *WorkerPool, g TileGrid, fn func(Tile)) {
	if pool == nil || !pool.IsRunning() || pool.Workers() == 1 {
		g.ForEach(fn)
		return
	}

	total := g.TileCount()
	batches := min(total, pool.Workers()*4)
	per := (total + batches - 1) / batches

	work := make([]func(), 0, batches)
	for start := 0; start < total; start += per {
		end := min(start+per, total)
		work = append(work, func() {
			for i := start; i < end; i++ {
				fn(g.TileAt(i))
			}
		})
	}
	pool.ExecuteAll(work)
}
