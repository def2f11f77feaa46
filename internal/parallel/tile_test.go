package parallel

import (
	"sync"
	"testing"
)

func TestTile_Bounds(t *testing.T) {
	x, y, w, h := Tile{X: 2, Y: 3}.Bounds()
	if x != 16 || y != 24 || w != TileWidth || h != TileHeight {
		t.Errorf("Bounds() = (%d,%d,%d,%d), want (16,24,8,8)", x, y, w, h)
	}
}

func TestTile_Indices(t *testing.T) {
	var got []int
	Tile{X: 1, Y: 0}.Indices(16, func(i int) { got = append(got, i) })
	if len(got) != TileNodes {
		t.Fatalf("len = %d, want %d", len(got), TileNodes)
	}
	// First row of tile (1,0) in a 16-wide grid: 8..15, second row: 24..31.
	if got[0] != 8 || got[7] != 15 || got[8] != 24 || got[63] != 7*16+15 {
		t.Errorf("indices = %v", got)
	}
}

func TestTileGrid(t *testing.T) {
	g := NewTileGrid(3, 2)
	if g.TilesX() != 3 || g.TilesY() != 2 || g.TileCount() != 6 {
		t.Errorf("grid = %dx%d (%d)", g.TilesX(), g.TilesY(), g.TileCount())
	}
	if g.RowWidth() != 24 || g.NodeCount() != 6*TileNodes {
		t.Errorf("RowWidth() = %d, NodeCount() = %d", g.RowWidth(), g.NodeCount())
	}
	if tile := g.TileAt(4); tile != (Tile{X: 1, Y: 1}) {
		t.Errorf("TileAt(4) = %+v, want {1 1}", tile)
	}
	if z := NewTileGrid(0, -1); z.TileCount() != 1 {
		t.Errorf("NewTileGrid(0,-1).TileCount() = %d, want 1", z.TileCount())
	}
}

// Every node index is visited exactly once, with or without a pool.
func TestForEachTile_Coverage(t *testing.T) {
	grids := []TileGrid{NewTileGrid(1, 1), NewTileGrid(5, 1), NewTileGrid(3, 7)}
	for _, g := range grids {
		for _, workers := range []int{0, 1, 4} {
			var pool *WorkerPool
			if workers > 0 {
				pool = NewWorkerPool(workers)
			}

			var mu sync.Mutex
			seen := make([]int, g.NodeCount())
			ForEachTile(pool, g, func(tile Tile) {
				tile.Indices(g.RowWidth(), func(i int) {
					mu.Lock()
					seen[i]++
					mu.Unlock()
				})
			})
			for i, n := range seen {
				if n != 1 {
					t.Errorf("grid %dx%d workers %d: node %d visited %d times",
						g.TilesX(), g.TilesY(), workers, i, n)
					break
				}
			}

			if pool != nil {
				pool.Close()
			}
		}
	}
}

func TestForEachTile_ClosedPool(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()

	count := 0
	ForEachTile(pool, NewTileGrid(2, 2), func(Tile) { count++ })
	if count != 4 {
		t.Errorf("count = %d, want 4", count)
	}
}
