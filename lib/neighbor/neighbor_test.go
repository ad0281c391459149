package neighbor

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/phil-mansfield/neighbors/lib/cells"
	"github.com/phil-mansfield/neighbors/lib/domain"
	"github.com/phil-mansfield/neighbors/lib/particles"
)

func randomTile(t *testing.T, n, nGhost int) (*particles.Tile, *cells.Index) {
	dom, err := domain.NewDomain(3, []int{8, 8, 8}, []bool{true, true, true},
		[]float64{0.5, 0.5, 0.5})
	require.NoError(t, err)
	box := domain.Box{Hi: [3]int{3, 3, 3}}
	idx, err := cells.New(dom, box.Grow(1, 3), 0.6)
	require.NoError(t, err)

	tile, err := particles.NewTile(0, particles.Schema{})
	require.NoError(t, err)
	gen := particles.NewRNG(11)
	for i := 0; i < n; i++ {
		x := [3]float64{2 * gen.Uniform(), 2 * gen.Uniform(), 2 * gen.Uniform()}
		tile.AddReal(x, uint64(i+1))
	}
	for i := 0; i < nGhost; i++ {
		// Ghosts fill the halo shell [-0.5, 2.5).
		x := [3]float64{}
		for k := range x {
			x[k] = 3*gen.Uniform() - 0.5
		}
		_, err := tile.AddGhost(x, uint64(n+i+1), particles.GhostRef{}, nil)
		require.NoError(t, err)
	}
	return tile, idx
}

func bruteForce(tile *particles.Tile, r float64) [][]int {
	out := make([][]int, tile.NReal())
	for i := range out {
		out[i] = []int{}
		for j := 0; j < tile.Len(); j++ {
			if i == j {
				continue
			}
			pi, pj := tile.Pos(i), tile.Pos(j)
			if floats.Distance(pi[:], pj[:], 2) <= r {
				out[i] = append(out[i], j)
			}
		}
	}
	return out
}

func TestBuildMatchesBruteForce(t *testing.T) {
	r := 0.6
	tile, idx := randomTile(t, 300, 200)
	l := Build(tile, idx, WithinDistance(r))
	require.Equal(t, tile.NReal(), l.Len())
	assert.Same(t, tile, l.Tile())

	exp := bruteForce(tile, r)
	pairs := 0
	for i := range exp {
		got := append([]int{}, l.Neighbors(i)...)
		sort.Ints(got)
		assert.Equal(t, exp[i], got, "particle %d", i)
		assert.NotContains(t, got, i)
		pairs += len(got)
	}
	assert.Equal(t, pairs, l.Pairs())
}

func TestBuildOrder(t *testing.T) {
	tile, idx := randomTile(t, 200, 100)
	l := Build(tile, idx, WithinDistance(0.6))

	// Neighbors appear in bin traversal order, then store order in a bin.
	for i := 0; i < l.Len(); i++ {
		prev := [4]int{-1, -1, -1, -1}
		for _, j := range l.Neighbors(i) {
			c := idx.Coords(tile.Pos(j))
			key := [4]int{c[2], c[1], c[0], j}
			assert.True(t, lessKey(prev, key), "particle %d", i)
			prev = key
		}
	}
}

func lessKey(a, b [4]int) bool {
	for k := range a {
		if a[k] != b[k] {
			return a[k] < b[k]
		}
	}
	return false
}

func TestBuildIdempotentAndSymmetric(t *testing.T) {
	tile, idx := randomTile(t, 200, 100)
	pred := WithinDistance(0.5)
	l1 := Build(tile, idx, pred)
	l2 := Build(tile, idx, pred)
	for i := 0; i < l1.Len(); i++ {
		assert.Equal(t, l1.Neighbors(i), l2.Neighbors(i))
	}

	for i := 0; i < l1.Len(); i++ {
		for _, j := range l1.Neighbors(i) {
			if tile.IsGhost(j) {
				continue
			}
			assert.Contains(t, l1.Neighbors(j), i, "%d -> %d", i, j)
		}
	}
}

func TestBuildCustomPredicate(t *testing.T) {
	tile, idx := randomTile(t, 50, 50)
	realOnly := func(p, q *View) bool {
		assert.False(t, p.Ghost)
		assert.Equal(t, tile.ID(p.Ref), p.ID)
		return !q.Ghost
	}
	l := Build(tile, idx, realOnly)
	for i := 0; i < l.Len(); i++ {
		for _, j := range l.Neighbors(i) {
			assert.False(t, tile.IsGhost(j))
		}
	}

	none := Build(tile, idx, func(p, q *View) bool { return false })
	assert.Equal(t, 0, none.Pairs())
}

func TestBuildEmpty(t *testing.T) {
	tile, idx := randomTile(t, 0, 10)
	l := Build(tile, idx, WithinDistance(1))
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, 0, l.Pairs())
}
