package container

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/neighbors/lib/comm"
	"github.com/phil-mansfield/neighbors/lib/domain"
	"github.com/phil-mansfield/neighbors/lib/errs"
	"github.com/phil-mansfield/neighbors/lib/exchange"
	"github.com/phil-mansfield/neighbors/lib/neighbor"
	"github.com/phil-mansfield/neighbors/lib/particles"
)

func chop(
	t *testing.T, dim int, extent []int, periodic []bool, maxSize [3]int,
) *domain.PartitionSet {
	cw := []float64{1, 1, 1}
	dom, err := domain.NewDomain(dim, extent, periodic, cw[:dim])
	require.NoError(t, err)
	ps, err := domain.ChopDomain(dom, maxSize)
	require.NoError(t, err)
	return ps
}

func runContainers(
	n int, ps *domain.PartitionSet, cfg exchange.Config,
	fn func(pc *Container) error,
) error {
	own, err := domain.RoundRobin(ps.Len(), n)
	if err != nil {
		return err
	}
	return comm.Run(n, func(c comm.Comm) error {
		pc, err := New(c, ps, own, Config{Exchange: cfg})
		if err != nil {
			return err
		}
		return fn(pc)
	})
}

// insertRandom adds n uniformly distributed particles to every tile. The
// positions only depend on the tile index.
func insertRandom(pc *Container, ps *domain.PartitionSet, n int) error {
	dom := ps.Domain()
	for _, t := range pc.Tiles() {
		box := ps.Tile(t)
		gen := particles.NewRNG(uint64(t) + 1)
		for i := 0; i < n; i++ {
			x := [3]float64{}
			for k := 0; k < dom.Dim; k++ {
				lo := float64(box.Lo[k]) * dom.CellWidth[k]
				w := float64(box.Width()[k]) * dom.CellWidth[k]
				x[k] = lo + w*gen.Uniform()
			}
			if _, err := pc.Insert(t, x, uint64(1000*t+i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// neighborIDs maps every Real particle's id to the ids of its neighbors, in
// list order.
func neighborIDs(pc *Container, out map[uint64][]uint64) error {
	for _, t := range pc.Tiles() {
		tile, _ := pc.Tile(t)
		for i := 0; i < tile.NReal(); i++ {
			refs, err := pc.Neighbors(t, i)
			if err != nil {
				return err
			}
			ids := []uint64{}
			for _, j := range refs {
				ids = append(ids, tile.ID(j))
			}
			out[tile.ID(i)] = ids
		}
	}
	return nil
}

func TestLatticeDistance(t *testing.T) {
	tests := []struct {
		dim    int
		npc    int
		radius float64
		units  int
		nNeigh float64
	}{
		{3, 1, 1, 1, 6},
		{3, 1, 1, 3, 6},
		{3, 2, 0.5, 2, 6},
		{2, 1, 1, 4, 4},
	}

	for i := range tests {
		test := tests[i]
		ps := chop(t, test.dim, []int{8, 8, 8}, []bool{true, true, true},
			[3]int{4, 4, 4})
		cfg := exchange.Config{GhostWidth: 1, Radius: test.radius}

		dists := make([][2]float64, 4)
		bad := make([]int64, 4)
		stats := make([]Stats, test.units)
		err := runContainers(test.units, ps, cfg, func(pc *Container) error {
			err := pc.InitParticles(particles.Lattice{
				PerCell:    [3]int{test.npc, test.npc, test.npc},
				ThermalStd: 1,
			})
			if err != nil {
				return err
			}
			if err := pc.FillNeighbors(); err != nil {
				return err
			}
			pc.BuildNeighborList(neighbor.WithinDistance(test.radius))
			if stats[pc.Rank()], err = pc.Stats(); err != nil {
				return err
			}

			for step := 0; step < 4; step++ {
				if step > 0 {
					pc.MoveParticles(0.1)
					if err := pc.UpdateNeighbors(); err != nil {
						return err
					}
				}
				lo, hi, err := pc.MinAndMaxDistance()
				if err != nil {
					return err
				}
				b, err := pc.CheckNeighbors()
				if err != nil {
					return err
				}
				if pc.Rank() == 0 {
					dists[step] = [2]float64{lo, hi}
					bad[step] = b
				}
			}
			return nil
		})
		require.NoError(t, err, "%d)", i)

		for step := range dists {
			assert.InDelta(t, test.radius, dists[step][0], 1e-9,
				"%d) step %d", i, step)
			assert.InDelta(t, test.radius, dists[step][1], 1e-9,
				"%d) step %d", i, step)
			assert.Zero(t, bad[step], "%d) step %d", i, step)
		}

		nCells := 8 * 8
		if test.dim == 3 {
			nCells *= 8
		}
		per := test.npc
		for k := 1; k < test.dim; k++ {
			per *= test.npc
		}
		s := stats[0]
		assert.Equal(t, int64(nCells*per), s.Real, "%d)", i)
		assert.Equal(t, int64(nCells*per)*int64(test.nNeigh), s.Pairs, "%d)", i)
		assert.InDelta(t, test.nNeigh, s.NeighborMean, 1e-9, "%d)", i)
		assert.InDelta(t, 0, s.NeighborStd, 1e-6, "%d)", i)
		for u := range stats {
			assert.Equal(t, s, stats[u], "%d) unit %d", i, u)
		}
	}
}

func TestTwoTilePeriodic(t *testing.T) {
	ps := chop(t, 2, []int{8, 4}, []bool{true, true}, [3]int{4, 4, 1})
	cfg := exchange.Config{GhostWidth: 1, Radius: 1}

	for _, n := range []int{1, 2} {
		perUnit := make([]map[uint64][]uint64, n)
		shifts := make([][3]int, 2)
		err := runContainers(n, ps, cfg, func(pc *Container) error {
			for _, t := range pc.Tiles() {
				x := [3]float64{0.5, 2.5, 0}
				if t == 1 {
					x[0] = 7.5
				}
				if _, err := pc.Insert(t, x, uint64(t+1)); err != nil {
					return err
				}
			}
			if err := pc.FillNeighbors(); err != nil {
				return err
			}
			pc.BuildNeighborList(neighbor.WithinDistance(1))

			local := map[uint64][]uint64{}
			if err := neighborIDs(pc, local); err != nil {
				return err
			}
			for _, t := range pc.Tiles() {
				tile, _ := pc.Tile(t)
				refs, _ := pc.Neighbors(t, 0)
				if len(refs) != 1 || !tile.IsGhost(refs[0]) {
					return fmt.Errorf("tile %d: neighbors = %v", t, refs)
				}
				shifts[t] = tile.Ref(refs[0]).Shift
			}

			lo, hi, err := pc.MinAndMaxDistance()
			if err != nil {
				return err
			} else if lo != 1 || hi != 1 {
				return fmt.Errorf("distances are (%g, %g)", lo, hi)
			}

			perUnit[pc.Rank()] = local
			return nil
		})
		require.NoError(t, err, "n = %d", n)

		ids := map[uint64][]uint64{}
		for _, m := range perUnit {
			for id, list := range m {
				ids[id] = list
			}
		}

		assert.Equal(t, map[uint64][]uint64{1: {2}, 2: {1}}, ids, "n = %d", n)
		assert.Equal(t, [][3]int{{-8, 0, 0}, {8, 0, 0}}, shifts, "n = %d", n)
	}
}

func TestDeterminismAndSymmetry(t *testing.T) {
	ps := chop(t, 3, []int{8, 6, 6}, []bool{true, true, false},
		[3]int{3, 3, 3})
	radius := 0.9
	cfg := exchange.Config{GhostWidth: 1, Radius: radius}

	var want map[uint64][]uint64
	for _, n := range []int{1, 2, 5} {
		// One map per unit, so units never share a map.
		perUnit := make([]map[uint64][]uint64, n)
		err := runContainers(n, ps, cfg, func(pc *Container) error {
			if err := insertRandom(pc, ps, 40); err != nil {
				return err
			}
			if err := pc.FillNeighbors(); err != nil {
				return err
			}
			pc.BuildNeighborList(neighbor.WithinDistance(radius))

			first := map[uint64][]uint64{}
			if err := neighborIDs(pc, first); err != nil {
				return err
			}
			pc.BuildNeighborList(neighbor.WithinDistance(radius))
			second := map[uint64][]uint64{}
			if err := neighborIDs(pc, second); err != nil {
				return err
			}
			if fmt.Sprint(first) != fmt.Sprint(second) {
				return fmt.Errorf("rebuilding changed the neighbor lists")
			}

			perUnit[pc.Rank()] = first
			return nil
		})
		require.NoError(t, err, "n = %d", n)

		all := map[uint64][]uint64{}
		for _, m := range perUnit {
			for id, list := range m {
				all[id] = list
			}
		}
		require.Len(t, all, ps.Len()*40, "n = %d", n)

		for id, list := range all {
			for _, j := range list {
				assert.Contains(t, all[j], id, "n = %d: %d -> %d", n, id, j)
			}
		}

		// Lists must match element for element, not just as sets.
		if want == nil {
			want = all
		} else {
			assert.Equal(t, want, all, "n = %d", n)
		}
	}
}

func TestRefresh(t *testing.T) {
	ps := chop(t, 3, []int{8, 8, 8}, []bool{true, true, true},
		[3]int{4, 4, 4})
	cfg := exchange.Config{GhostWidth: 1, Radius: 1, Debug: true}

	full := make([][]bool, 2)
	err := runContainers(2, ps, cfg, func(pc *Container) error {
		if err := pc.InitParticles(particles.Lattice{
			PerCell: [3]int{1, 1, 1},
		}); err != nil {
			return err
		}
		if err := pc.FillNeighbors(); err != nil {
			return err
		}

		for _, dx := range []float64{0.2, 0.6} {
			pc.MoveParticles(dx)
			f, err := pc.Refresh()
			if err != nil {
				return err
			}
			full[pc.Rank()] = append(full[pc.Rank()], f)
		}

		// Wrapping rounds positions, so some separations are just over 1.
		pc.BuildNeighborList(neighbor.WithinDistance(1 + 1e-9))
		lo, hi, err := pc.MinAndMaxDistance()
		if err != nil {
			return err
		} else if lo < 1-1e-9 || hi > 1+1e-9 {
			return fmt.Errorf("distances are (%g, %g)", lo, hi)
		}

		s, err := pc.Stats()
		if err != nil {
			return err
		} else if s.Real != 512 {
			return fmt.Errorf("%d Real particles after refreshing", s.Real)
		}
		bad, err := pc.CheckNeighbors()
		if err != nil {
			return err
		} else if bad != 0 {
			return fmt.Errorf("%d ghosts don't match their sources", bad)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][]bool{{false, true}, {false, true}}, full)
}

func TestTestID(t *testing.T) {
	ps := chop(t, 2, []int{8, 8}, []bool{true, true}, [3]int{4, 4, 1})
	cfg := exchange.Config{GhostWidth: 1, Radius: 1}

	err := runContainers(2, ps, cfg, func(pc *Container) error {
		if err := pc.InitParticles(particles.Lattice{
			PerCell: [3]int{1, 1, 1},
		}); err != nil {
			return err
		}
		if err := pc.FillNeighbors(); err != nil {
			return err
		}

		check := func(want int, when string) error {
			bad, err := pc.CheckTestID()
			if err != nil {
				return err
			} else if (bad == 0) != (want == 0) {
				return fmt.Errorf("%d mismatched test IDs %s", bad, when)
			}
			return nil
		}
		if err := check(0, "after fill"); err != nil {
			return err
		}

		for _, t := range pc.Tiles() {
			tile, _ := pc.Tile(t)
			testID, _ := tile.Uint64(TestIDField)
			for i := 0; i < tile.NReal(); i++ {
				testID[i] = 0
			}
		}
		if err := pc.UpdateNeighbors(); err != nil {
			return err
		}
		if err := check(0, "after update"); err != nil {
			return err
		}
		if err := pc.FillNeighbors(); err != nil {
			return err
		}
		if err := check(1, "after refill"); err != nil {
			return err
		}

		if err := pc.ResetTestID(); err != nil {
			return err
		}
		if err := pc.FillNeighbors(); err != nil {
			return err
		}
		return check(0, "after reset")
	})
	require.NoError(t, err)
}

func TestNeighborsErrors(t *testing.T) {
	ps := chop(t, 2, []int{8, 8}, []bool{true, true}, [3]int{4, 4, 1})
	cfg := exchange.Config{GhostWidth: 1, Radius: 1}

	err := runContainers(2, ps, cfg, func(pc *Container) error {
		if pc.Rank() != 0 {
			return nil
		}
		if _, err := pc.Neighbors(0, 0); err == nil {
			return fmt.Errorf("no error before building lists")
		}
		_, err := pc.Neighbors(1, 0)
		invalid := &errs.InvalidTileError{}
		if !errors.As(err, &invalid) || invalid.Owner != 1 {
			return fmt.Errorf("expected InvalidTileError, got %v", err)
		}
		return nil
	})
	require.NoError(t, err)

	own, err := domain.RoundRobin(ps.Len(), 1)
	require.NoError(t, err)
	err = comm.Run(1, func(c comm.Comm) error {
		_, err := New(c, ps, own, Config{})
		return err
	})
	assert.Error(t, err)
}

func TestInsertParticles(t *testing.T) {
	ps := chop(t, 2, []int{8, 8}, []bool{true, false}, [3]int{4, 4, 1})
	cfg := exchange.Config{GhostWidth: 1, Radius: 1}
	pos := [][3]float64{{1, 1}, {9, 1}, {5, 5}, {1, -1}, {-3, 7}}
	id := []uint64{0, 1, 2, 3, 4}

	err := runContainers(2, ps, cfg, func(pc *Container) error {
		inserted, outside, err := pc.InsertParticles(pos, id)
		if err != nil {
			return err
		} else if outside != 1 {
			return fmt.Errorf("%d particles outside, expected 1", outside)
		}

		n := []int64{int64(inserted)}
		if err := comm.AllreduceInt64(pc.c, n, comm.Sum); err != nil {
			return err
		} else if n[0] != 4 {
			return fmt.Errorf("%d particles inserted, expected 4", n[0])
		}

		for _, t := range pc.Tiles() {
			tile, _ := pc.Tile(t)
			for i := 0; i < tile.NReal(); i++ {
				if tile.ID(i) == 1 && tile.Pos(i) != [3]float64{1, 1} {
					return fmt.Errorf("particle 1 at %v", tile.Pos(i))
				}
			}
		}

		for _, t := range pc.Tiles() {
			tile, _ := pc.Tile(t)
			testID, err := tile.Uint64(TestIDField)
			if err != nil {
				return err
			}
			for i := 0; i < tile.NReal(); i++ {
				if testID[i] != tile.ID(i) {
					return fmt.Errorf("particle %d has test_id %d",
						tile.ID(i), testID[i])
				}
			}
		}
		if err := pc.FillNeighbors(); err != nil {
			return err
		}
		if bad, err := pc.CheckTestID(); err != nil {
			return err
		} else if bad != 0 {
			return fmt.Errorf("%d ghosts have the wrong test_id", bad)
		}

		if _, _, err := pc.InsertParticles(pos, id[:1]); err == nil {
			return fmt.Errorf("no error for mismatched lengths")
		}
		return nil
	})
	require.NoError(t, err)
}

func TestInsertParticlesUpperEdge(t *testing.T) {
	dom, err := domain.NewDomain(2, []int{17, 4}, []bool{true, false},
		[]float64{0.1, 0.1})
	require.NoError(t, err)
	ps, err := domain.ChopDomain(dom, [3]int{9, 4, 1})
	require.NoError(t, err)
	cfg := exchange.Config{GhostWidth: 1, Radius: 0.1}

	err = runContainers(2, ps, cfg, func(pc *Container) error {
		pos := [][3]float64{{1.7, 0.15}, {3.4, 0.25}}
		inserted, outside, err := pc.InsertParticles(pos, []uint64{1, 2})
		if err != nil {
			return err
		} else if outside != 0 {
			return fmt.Errorf("%d particles outside the domain", outside)
		}
		if want := map[int]int{0: 0, 1: 2}[pc.Rank()]; inserted != want {
			return fmt.Errorf("unit %d inserted %d particles, expected %d",
				pc.Rank(), inserted, want)
		}

		if _, err := pc.Redistribute(); err != nil {
			return err
		}
		return pc.FillNeighbors()
	})
	require.NoError(t, err)
}

func TestListsDiscardedByInsertAndRemove(t *testing.T) {
	ps := chop(t, 2, []int{8, 8}, []bool{true, true}, [3]int{4, 4, 1})
	cfg := exchange.Config{GhostWidth: 1, Radius: 1}

	err := runContainers(2, ps, cfg, func(pc *Container) error {
		if err := insertRandom(pc, ps, 10); err != nil {
			return err
		}
		tile := pc.Tiles()[0]

		edits := []struct {
			name string
			fn   func() error
		}{
			{"insert", func() error {
				tt, _ := pc.Tile(tile)
				_, err := pc.Insert(tile, tt.Pos(0), 999)
				return err
			}},
			{"remove", func() error { return pc.Remove(tile, 0) }},
		}

		for _, edit := range edits {
			if err := pc.FillNeighbors(); err != nil {
				return err
			}
			pc.BuildNeighborList(neighbor.WithinDistance(1))
			if _, err := pc.Neighbors(tile, 0); err != nil {
				return err
			}

			if err := edit.fn(); err != nil {
				return err
			}
			if _, err := pc.Neighbors(tile, 0); err == nil {
				return fmt.Errorf("%s: list of tile %d survived", edit.name, tile)
			}
			if _, err := pc.NeighborList(tile); err == nil {
				return fmt.Errorf("%s: list of tile %d survived", edit.name, tile)
			}
		}
		return nil
	})
	require.NoError(t, err)
}
