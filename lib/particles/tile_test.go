package particles

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/neighbors/lib/domain"
	"github.com/phil-mansfield/neighbors/lib/errs"
)

var testSchema = Schema{{"vel", "v64"}, {"test_id", "u64"}}

func TestTileRealAndGhost(t *testing.T) {
	tile, err := NewTile(3, testSchema)
	require.NoError(t, err)
	assert.Equal(t, 3, tile.Index())

	for i := 0; i < 3; i++ {
		assert.Equal(t, i, tile.AddReal([3]float64{float64(i), 0, 0},
			uint64(10+i)))
	}
	testID, _ := tile.Uint64("test_id")
	testID[1] = 11

	ref := GhostRef{SrcTile: 1, SrcIndex: 4, SrcID: 20, Shift: [3]int{8, 0, 0}}
	_, err = tile.AddGhost([3]float64{9, 0, 0}, 20, ref, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, tile.Len())
	assert.Equal(t, 3, tile.NReal())
	assert.Equal(t, 1, tile.NGhost())
	assert.False(t, tile.IsGhost(2))
	assert.True(t, tile.IsGhost(3))
	assert.Equal(t, ref, tile.Ref(3))
	assert.Equal(t, [3]float64{9, 0, 0}, tile.Pos(3))
	assert.Equal(t, uint64(20), tile.ID(3))

	ids := []uint64{}
	tile.ForEachAll(func(i int, x [3]float64, id uint64) {
		ids = append(ids, id)
	})
	assert.Equal(t, []uint64{10, 11, 12, 20}, ids)

	ids = ids[:0]
	tile.ForEachReal(func(i int, x [3]float64, id uint64) {
		ids = append(ids, id)
	})
	assert.Equal(t, []uint64{10, 11, 12}, ids)

	v, rv, gg := tile.Version(), tile.RealVersion(), tile.GhostGeneration()
	tile.RemoveGhosts()
	assert.Equal(t, 3, tile.Len())
	assert.NotEqual(t, v, tile.Version())
	assert.Equal(t, rv, tile.RealVersion())
	assert.NotEqual(t, gg, tile.GhostGeneration())
	testID, _ = tile.Uint64("test_id")
	assert.Len(t, testID, 3)
	assert.Equal(t, uint64(11), testID[1])

	v, gg = tile.Version(), tile.GhostGeneration()
	tile.SetPos(0, [3]float64{0.5, 0, 0})
	assert.NotEqual(t, v, tile.Version())
	assert.Equal(t, rv, tile.RealVersion())
	assert.Equal(t, gg, tile.GhostGeneration())

	tile.AddReal([3]float64{}, 13)
	assert.NotEqual(t, gg, tile.GhostGeneration())
}

func TestTileAddRealDropsGhosts(t *testing.T) {
	tile, err := NewTile(0, testSchema)
	require.NoError(t, err)
	tile.AddReal([3]float64{}, 1)
	_, err = tile.AddGhost([3]float64{}, 2, GhostRef{}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, tile.AddReal([3]float64{}, 3))
	assert.Equal(t, 0, tile.NGhost())
	vel, _ := tile.Vec64("vel")
	assert.Len(t, vel, 2)
}

func TestTileRemoveAndCompact(t *testing.T) {
	tile, err := NewTile(0, testSchema)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		tile.AddReal([3]float64{float64(i), 0, 0}, uint64(i+1))
		testID, _ := tile.Uint64("test_id")
		testID[i] = uint64(100 + i)
	}

	rv := tile.RealVersion()
	require.NoError(t, tile.Remove(1))
	assert.NotEqual(t, rv, tile.RealVersion())
	assert.Error(t, tile.Remove(4))
	assert.Error(t, tile.Remove(-1))

	require.NoError(t, tile.Compact([]bool{true, false, true, true}))
	assert.Equal(t, 3, tile.NReal())
	assert.Equal(t, uint64(1), tile.ID(0))
	assert.Equal(t, uint64(4), tile.ID(1))
	assert.Equal(t, uint64(5), tile.ID(2))
	assert.Equal(t, [3]float64{3, 0, 0}, tile.Pos(1))
	testID, _ := tile.Uint64("test_id")
	assert.Equal(t, []uint64{100, 103, 104}, testID)

	assert.Error(t, tile.Compact([]bool{true}))
	require.NoError(t, tile.Compact([]bool{true, true, true}))
	assert.Equal(t, 3, tile.NReal())
}

func TestTileFieldAccess(t *testing.T) {
	tile, err := NewTile(0, testSchema)
	require.NoError(t, err)
	assert.Nil(t, tile.Field("mass"))
	assert.NotNil(t, tile.Field("vel"))

	_, err = tile.Float64("vel")
	assert.Error(t, err)
	_, err = tile.Uint64("mass")
	assert.Error(t, err)
	_, err = tile.Vec64("test_id")
	assert.Error(t, err)
}

func TestStore(t *testing.T) {
	own, err := domain.RoundRobin(4, 2)
	require.NoError(t, err)
	s, err := NewStore(1, own, testSchema)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, s.Tiles())
	assert.Equal(t, 1, s.Unit())

	i, err := s.Insert(3, [3]float64{1, 2, 3}, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	_, err = s.Insert(2, [3]float64{1, 2, 3}, 8)
	inv := &errs.InvalidTileError{}
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, 0, inv.Owner)
	assert.Equal(t, 1, inv.Unit)

	_, err = s.Tile(9)
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, -1, inv.Owner)

	assert.Error(t, s.RemoveGhosts(0))
	assert.Error(t, s.Remove(0, 0))
	assert.Error(t, s.ForEachReal(0, func(int, [3]float64, uint64) {}))
	assert.Error(t, s.ForEachAll(0, func(int, [3]float64, uint64) {}))

	n := 0
	require.NoError(t, s.ForEachReal(3, func(int, [3]float64, uint64) { n++ }))
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, s.NumReal())
	assert.Equal(t, 0, s.NumGhost())

	require.NoError(t, s.RemoveGhosts(3))
	require.NoError(t, s.Remove(3, 0))
	assert.Equal(t, 0, s.NumReal())
}
