package logisim

import (
	"errors"
	"testing"
)

func TestPlanGrid(t *testing.T) {
	tests := []struct {
		n      int
		want   Grid
		padded int
	}{
		{0, Grid{1, 1}, 64},
		{1, Grid{1, 1}, 64},
		{64, Grid{1, 1}, 64},
		{65, Grid{2, 1}, 128},
		{1000, Grid{16, 1}, 1024},
		{MaxGroupsPerDim * TileNodes, Grid{MaxGroupsPerDim, 1}, MaxGroupsPerDim * TileNodes},
		{MaxGroupsPerDim*TileNodes + 1, Grid{MaxGroupsPerDim, 2}, 2 * MaxGroupsPerDim * TileNodes},
	}
	for _, tt := range tests {
		g := PlanGrid(tt.n)
		if g != tt.want {
			t.Errorf("PlanGrid(%d) = %v, want %v", tt.n, g, tt.want)
		}
		if got := PaddedLen(tt.n); got != tt.padded {
			t.Errorf("PaddedLen(%d) = %d, want %d", tt.n, got, tt.padded)
		}
		if got := g.Capacity(); got < tt.n {
			t.Errorf("PlanGrid(%d).Capacity() = %d, too small", tt.n, got)
		}
	}
}

func TestGridValidate(t *testing.T) {
	tests := []struct {
		name string
		grid Grid
		n    int
		ok   bool
	}{
		{"exact", Grid{2, 3}, 2 * 3 * 64, true},
		{"short array", Grid{2, 1}, 100, false},
		{"long array", Grid{1, 1}, 65, false},
		{"empty x", Grid{0, 1}, 0, false},
		{"empty y", Grid{1, 0}, 0, false},
		{"over limit", Grid{MaxGroupsPerDim + 1, 1}, (MaxGroupsPerDim + 1) * 64, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.grid.Validate(tt.n)
			if tt.ok {
				if err != nil {
					t.Errorf("Validate(%d) = %v, want nil", tt.n, err)
				}
				return
			}
			if !errors.Is(err, ErrGridCoverage) {
				t.Errorf("Validate(%d) = %v, want ErrGridCoverage", tt.n, err)
			}
			if tt.grid.Covers(tt.n) {
				t.Errorf("Covers(%d) = true, want false", tt.n)
			}
		})
	}
}

// Every index in [0, Capacity) is produced by exactly one invocation.
func TestGridIndexBijection(t *testing.T) {
	for _, g := range []Grid{{1, 1}, {3, 1}, {1, 3}, {4, 5}} {
		seen := make([]int, g.Capacity())
		for y := range g.Height() {
			for x := range g.Width() {
				i := g.Index(x, y)
				if int(i) >= len(seen) {
					t.Fatalf("%v: Index(%d,%d) = %d out of range", g, x, y, i)
				}
				seen[i]++
			}
		}
		for i, c := range seen {
			if c != 1 {
				t.Errorf("%v: index %d visited %d times", g, i, c)
			}
		}
	}
}
