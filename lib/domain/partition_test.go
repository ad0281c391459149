package domain

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/neighbors/lib/errs"
)

func TestChopDomain(t *testing.T) {
	dom, err := NewDomain(3, []int{8, 4, 4}, []bool{true, true, true},
		[]float64{1, 1, 1})
	require.NoError(t, err)

	ps, err := ChopDomain(dom, [3]int{4, 4, 4})
	require.NoError(t, err)
	require.Equal(t, 2, ps.Len())
	assert.Equal(t, Box{[3]int{0, 0, 0}, [3]int{3, 3, 3}}, ps.Tile(0))
	assert.Equal(t, Box{[3]int{4, 0, 0}, [3]int{7, 3, 3}}, ps.Tile(1))

	ps, err = ChopDomain(dom, [3]int{3, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, 6, ps.Len())
	assert.Equal(t, Box{[3]int{3, 0, 0}, [3]int{5, 2, 3}}, ps.Tile(1))
	assert.Equal(t, Box{[3]int{6, 3, 0}, [3]int{7, 3, 3}}, ps.Tile(5))

	_, err = ChopDomain(dom, [3]int{4, 0, 4})
	assert.Error(t, err)

	assert.Equal(t, []int{0, 1, 3, 4},
		ps.Overlapping(Box{[3]int{-2, -2, 0}, [3]int{3, 3, 0}}))
	assert.Equal(t, []int{2, 5},
		ps.Overlapping(Box{[3]int{7, 0, 0}, [3]int{9, 9, 9}}))
	assert.Nil(t, ps.Overlapping(Box{[3]int{8, 0, 0}, [3]int{9, 1, 1}}))
}

func TestNewPartitionSet(t *testing.T) {
	dom, err := NewDomain(2, []int{4, 4}, []bool{true, true},
		[]float64{1, 1})
	require.NoError(t, err)

	tests := []struct {
		tiles []Box
		valid bool
	}{
		{[]Box{{[3]int{0, 0, 0}, [3]int{3, 3, 0}}}, true},
		{[]Box{{[3]int{0, 0, 0}, [3]int{1, 3, 0}},
			{[3]int{2, 0, 0}, [3]int{3, 3, 0}}}, true},
		{[]Box{{[3]int{0, 0, 0}, [3]int{0, 3, 0}},
			{[3]int{1, 0, 0}, [3]int{3, 0, 0}},
			{[3]int{1, 1, 0}, [3]int{3, 3, 0}}}, true},
		{[]Box{}, false},
		// Overlap.
		{[]Box{{[3]int{0, 0, 0}, [3]int{2, 3, 0}},
			{[3]int{2, 0, 0}, [3]int{3, 3, 0}}}, false},
		// Hole.
		{[]Box{{[3]int{0, 0, 0}, [3]int{1, 3, 0}},
			{[3]int{3, 0, 0}, [3]int{3, 3, 0}}}, false},
		// Outside.
		{[]Box{{[3]int{0, 0, 0}, [3]int{4, 3, 0}}}, false},
		// Overlap which keeps the total volume right.
		{[]Box{{[3]int{0, 0, 0}, [3]int{2, 3, 0}},
			{[3]int{2, 0, 0}, [3]int{2, 3, 0}}}, false},
	}

	for i := range tests {
		_, err := NewPartitionSet(dom, tests[i].tiles)
		if tests[i].valid {
			assert.NoError(t, err, "%d)", i)
		} else {
			assert.Error(t, err, "%d)", i)
		}
	}
}

func TestTileContaining(t *testing.T) {
	dom, err := NewDomain(3, []int{8, 4, 4}, []bool{true, false, true},
		[]float64{0.5, 0.5, 0.5})
	require.NoError(t, err)
	ps, err := ChopDomain(dom, [3]int{4, 4, 4})
	require.NoError(t, err)

	tests := []struct {
		pos  [3]float64
		tile int
		k    [3]int
		ood  bool
	}{
		{[3]float64{0.1, 0.1, 0.1}, 0, [3]int{}, false},
		{[3]float64{2.1, 0.1, 0.1}, 1, [3]int{}, false},
		{[3]float64{-0.1, 0.1, 0.1}, 1, [3]int{-1, 0, 0}, false},
		{[3]float64{4.1, 1.9, -0.1}, 0, [3]int{1, 0, -1}, false},
		{[3]float64{1, 2.0, 1}, -1, [3]int{}, true},
		{[3]float64{1, -0.01, 1}, -1, [3]int{}, true},
	}

	for i := range tests {
		tile, _, k, err := ps.TileContaining(tests[i].pos)
		if tests[i].ood {
			ood := &errs.OutOfDomainError{}
			assert.True(t, errors.As(err, &ood), "%d)", i)
			continue
		}
		require.NoError(t, err, "%d)", i)
		assert.Equal(t, tests[i].tile, tile, "%d)", i)
		assert.Equal(t, tests[i].k, k, "%d)", i)
	}

	assert.Equal(t, -1, ps.TileOfCell([3]int{8, 0, 0}))
	assert.Equal(t, 1, ps.TileOfCell([3]int{7, 3, 3}))
}

func TestTileContainingUpperEdge(t *testing.T) {
	// 17*0.1 rounds above 1.7, but 1.7/0.1 rounds to exactly 17.
	dom, err := NewDomain(2, []int{17, 4}, []bool{true, false},
		[]float64{0.1, 0.1})
	require.NoError(t, err)
	ps, err := ChopDomain(dom, [3]int{9, 4, 1})
	require.NoError(t, err)

	tests := []struct {
		pos  [3]float64
		tile int
		cell [3]int
	}{
		{[3]float64{1.7, 0.15}, 1, [3]int{16, 1, 0}},
		{[3]float64{-1.7, 0.15}, 0, [3]int{0, 1, 0}},
		{[3]float64{3.4, 0.15}, 1, [3]int{16, 1, 0}},
		{[3]float64{0.5, 0.3999999999999999}, 0, [3]int{5, 3, 0}},
	}

	for i := range tests {
		tile, wrapped, _, err := ps.TileContaining(tests[i].pos)
		require.NoError(t, err, "%d)", i)
		assert.Equal(t, tests[i].tile, tile, "%d)", i)
		assert.Equal(t, tests[i].cell, dom.Cell(wrapped), "%d)", i)
		assert.True(t, ps.Tile(tile).Contains(dom.Cell(wrapped)), "%d)", i)
	}
}

func TestHaloAndImages(t *testing.T) {
	dom, err := NewDomain(2, []int{8, 4}, []bool{true, false},
		[]float64{1, 1})
	require.NoError(t, err)
	ps, err := ChopDomain(dom, [3]int{4, 4, 1})
	require.NoError(t, err)

	halo := ps.Halo(1)
	require.Len(t, halo, 2)
	assert.Equal(t, Box{[3]int{-1, -1, 0}, [3]int{4, 4, 0}}, halo[0])
	assert.Equal(t, Box{[3]int{3, -1, 0}, [3]int{8, 4, 0}}, halo[1])
	assert.Same(t, &halo[0], &ps.Halo(1)[0])

	assert.Equal(t, [][3]int{{-1, 0, 0}, {0, 0, 0}, {1, 0, 0}}, ps.Images())
	assert.Equal(t, [3]int{-8, 0, 0}, ps.ImageShift([3]int{-1, 0, 0}))

	dom3, err := NewDomain(3, []int{4, 4, 4}, []bool{true, true, true},
		[]float64{1, 1, 1})
	require.NoError(t, err)
	ps3, err := ChopDomain(dom3, [3]int{4, 4, 4})
	require.NoError(t, err)
	images := ps3.Images()
	require.Len(t, images, 27)
	assert.Equal(t, [3]int{-1, -1, -1}, images[0])
	assert.Equal(t, [3]int{0, -1, -1}, images[1])
	assert.Equal(t, [3]int{0, 0, 0}, images[13])
}

func TestOwnership(t *testing.T) {
	own, err := RoundRobin(5, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, own.Units())
	assert.Equal(t, 5, own.Len())
	assert.Equal(t, []int{0, 2, 4}, own.TilesOwnedBy(0))
	assert.Equal(t, []int{1, 3}, own.TilesOwnedBy(1))
	assert.Equal(t, 1, own.OwnerOf(3))
	assert.Equal(t, -1, own.OwnerOf(5))
	assert.Nil(t, own.TilesOwnedBy(2))

	own, err = RoundRobin(2, 4)
	require.NoError(t, err)
	assert.Empty(t, own.TilesOwnedBy(3))

	_, err = RoundRobin(4, 0)
	assert.Error(t, err)
	_, err = NewOwnership([]int{0, 2}, 2)
	assert.Error(t, err)
}

func TestFromSequences(t *testing.T) {
	tests := []struct {
		seqs   []string
		nTiles int
		owner  []int
		valid  bool
	}{
		{[]string{"0..3", "4..7"}, 8, []int{0, 0, 0, 0, 1, 1, 1, 1}, true},
		{[]string{"0..7 - 3", "3"}, 8, []int{0, 0, 0, 1, 0, 0, 0, 0}, true},
		{[]string{"0..3", "", "4"}, 5, []int{0, 0, 0, 0, 2}, true},
		{[]string{"0..3", "3..4"}, 5, nil, false},
		{[]string{"0..2", "4"}, 5, nil, false},
		{[]string{"0..5"}, 5, nil, false},
	}

	for i := range tests {
		own, err := FromSequences(tests[i].seqs, tests[i].nTiles)
		if !tests[i].valid {
			assert.Error(t, err, "%d)", i)
			continue
		}
		require.NoError(t, err, "%d)", i)
		for tile, u := range tests[i].owner {
			assert.Equal(t, u, own.OwnerOf(tile), "%d) tile %d", i, tile)
		}
	}
}

func TestOwnershipYAML(t *testing.T) {
	text := []byte("assignment:\n  0: \"0..3\"\n  1: \"4..7 - 5\"\n  2: \"5\"\n")
	own, err := ParseOwnershipYAML(text, 8)
	require.NoError(t, err)
	assert.Equal(t, 3, own.Units())
	assert.Equal(t, []int{4, 6, 7}, own.TilesOwnedBy(1))

	text = []byte("units: 4\nassignment:\n  0: \"0..3\"\n")
	own, err = ParseOwnershipYAML(text, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, own.Units())
	assert.Empty(t, own.TilesOwnedBy(3))

	_, err = ParseOwnershipYAML([]byte("units: 1\nassignment:\n  1: \"0\"\n"), 1)
	assert.Error(t, err)
	_, err = ParseOwnershipYAML([]byte("assignment: [1, 2"), 1)
	assert.Error(t, err)

	fname := filepath.Join(t.TempDir(), "owners.yaml")
	require.NoError(t, os.WriteFile(fname,
		[]byte("assignment:\n  0: \"0\"\n  1: \"1\"\n"), 0644))
	own, err = ReadOwnershipYAML(fname, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, own.OwnerOf(1))

	_, err = ReadOwnershipYAML(filepath.Join(t.TempDir(), "missing"), 2)
	assert.Error(t, err)
}
