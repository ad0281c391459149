/*
package container ties the particle store, the ghost exchange, and neighbor
list construction together for one execution unit. A Container is what a
simulation step talks to: it inserts and moves particles, refreshes ghosts,
and builds and reads neighbor lists.

Methods which communicate are collective and are marked as such.
*/
package container

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/phil-mansfield/neighbors/lib/cells"
	"github.com/phil-mansfield/neighbors/lib/comm"
	"github.com/phil-mansfield/neighbors/lib/domain"
	"github.com/phil-mansfield/neighbors/lib/errs"
	"github.com/phil-mansfield/neighbors/lib/exchange"
	"github.com/phil-mansfield/neighbors/lib/neighbor"
	"github.com/phil-mansfield/neighbors/lib/particles"
)

// DefaultSchema is the field schema used when Config.Schema is empty.
var DefaultSchema = particles.Schema{
	{Name: VelField, Type: "v64"},
	{Name: TestIDField, Type: "u64"},
}

const (
	VelField    = "vel"
	TestIDField = "test_id"
)

// Config configures a Container.
type Config struct {
	Exchange exchange.Config
	Schema   particles.Schema
}

// Container holds one unit's particles and neighbor lists.
type Container struct {
	c     comm.Comm
	ps    *domain.PartitionSet
	store *particles.Store
	ex    *exchange.Exchanger
	cfg   Config
	log   *logrus.Entry

	indexes map[int]*cells.Index
	lists   map[int]*neighbor.List
}

// New creates an empty Container for the unit c, which owns the tiles that
// own assigns to it.
func New(
	c comm.Comm, ps *domain.PartitionSet, own *domain.Ownership, cfg Config,
) (*Container, error) {
	if len(cfg.Schema) == 0 {
		cfg.Schema = DefaultSchema
	}
	if !(cfg.Exchange.Radius > 0) {
		return nil, fmt.Errorf("Interaction radius is %g, but must be "+
			"positive.", cfg.Exchange.Radius)
	}

	store, err := particles.NewStore(c.Rank(), own, cfg.Schema)
	if err != nil {
		return nil, err
	}
	ex, err := exchange.New(c, ps, store, cfg.Exchange)
	if err != nil {
		return nil, err
	}

	pc := &Container{
		c: c, ps: ps, store: store, ex: ex, cfg: cfg,
		log:     logrus.WithField("unit", c.Rank()),
		indexes: map[int]*cells.Index{},
		lists:   map[int]*neighbor.List{},
	}

	halo := ps.Halo(cfg.Exchange.GhostWidth)
	for _, t := range store.Tiles() {
		pc.indexes[t], err = cells.New(ps.Domain(), halo[t],
			cfg.Exchange.Radius)
		if err != nil {
			return nil, err
		}
	}

	return pc, nil
}

// Rank returns the unit's rank.
func (pc *Container) Rank() int { return pc.c.Rank() }

// Store returns the underlying particle store.
func (pc *Container) Store() *particles.Store { return pc.store }

// Tiles returns the indices of the unit's tiles in increasing order.
func (pc *Container) Tiles() []int { return pc.store.Tiles() }

// Tile returns one of the unit's tiles.
func (pc *Container) Tile(tile int) (*particles.Tile, error) {
	return pc.store.Tile(tile)
}

// Insert adds a Real particle to a tile and returns its reference. The
// tile's Ghosts and neighbor list are discarded.
func (pc *Container) Insert(tile int, x [3]float64, id uint64) (int, error) {
	i, err := pc.store.Insert(tile, x, id)
	if err != nil {
		return i, err
	}
	delete(pc.lists, tile)
	return i, pc.setTestID(tile, i)
}

// Remove removes Real particle i from a tile. The tile's Ghosts and neighbor
// list are discarded.
func (pc *Container) Remove(tile, i int) error {
	if err := pc.store.Remove(tile, i); err != nil {
		return err
	}
	delete(pc.lists, tile)
	return nil
}

// setTestID sets the test_id of Real particle i to its id if the schema has
// a test_id field.
func (pc *Container) setTestID(tile, i int) error {
	if !pc.hasField(TestIDField, "u64") {
		return nil
	}
	t, err := pc.store.Tile(tile)
	if err != nil {
		return err
	}
	testID, err := t.Uint64(TestIDField)
	if err != nil {
		return err
	}
	testID[i] = t.ID(i)
	return nil
}

// InitParticles fills every tile with a lattice of particles. Velocities go
// to VelField and test IDs to TestIDField if the schema has them.
func (pc *Container) InitParticles(l particles.Lattice) error {
	if pc.hasField(VelField, "v64") && l.VelField == "" {
		l.VelField = VelField
	}
	if pc.hasField(TestIDField, "u64") && l.TestIDField == "" {
		l.TestIDField = TestIDField
	}
	pc.lists = map[int]*neighbor.List{}
	return particles.InitLattice(pc.store, pc.ps, l)
}

// InsertParticles inserts every particle in pos which falls in one of the
// unit's tiles, wrapping positions along periodic axes. Test IDs are set to
// IDs, as with Insert. It returns the number
// inserted and the number which were outside the domain. The other particles
// are expected to be inserted by the units which own them.
func (pc *Container) InsertParticles(
	pos [][3]float64, id []uint64,
) (inserted, outside int, err error) {
	if len(pos) != len(id) {
		return 0, 0, fmt.Errorf("Given %d positions, but %d IDs.",
			len(pos), len(id))
	}
	own := pc.store.Ownership()
	for i := range pos {
		t, x, _, err := pc.ps.TileContaining(pos[i])
		if err != nil {
			outside++
			continue
		} else if own.OwnerOf(t) != pc.Rank() {
			continue
		}
		if _, err := pc.Insert(t, x, id[i]); err != nil {
			return inserted, outside, err
		}
		inserted++
	}
	pc.log.WithFields(logrus.Fields{
		"inserted": inserted, "outside": outside,
	}).Debug("Inserted particles.")
	return inserted, outside, nil
}

func (pc *Container) hasField(name, typ string) bool {
	for _, f := range pc.cfg.Schema {
		if f.Name == name && f.Type == typ {
			return true
		}
	}
	return false
}

// FillNeighbors replaces every tile's Ghosts with fresh copies of nearby
// Real particles, fields included. Existing neighbor lists are discarded.
// Collective.
func (pc *Container) FillNeighbors() error {
	pc.lists = map[int]*neighbor.List{}
	return pc.ex.Fill()
}

// UpdateNeighbors refreshes Ghost positions along the plan of the last
// FillNeighbors. Neighbor lists are kept, so they continue to refer to the
// same particles. The error matches errs.ErrStalePlan if Real particles
// were added, removed or, in debug mode, left their tiles. Collective.
func (pc *Container) UpdateNeighbors() error {
	return pc.ex.Update()
}

// Redistribute moves Real particles into the tiles that contain them and
// discards Ghosts and neighbor lists. Collective.
func (pc *Container) Redistribute() (exchange.Migration, error) {
	pc.lists = map[int]*neighbor.List{}
	return pc.ex.Redistribute()
}

// CheckNeighbors returns the number of Ghosts in the world which no longer
// match their sources. Collective.
func (pc *Container) CheckNeighbors() (int64, error) {
	return pc.ex.Verify()
}

// BuildNeighborList builds the neighbor lists of every tile with pred. Lists
// are deterministic: rebuilding without changing the store gives identical
// lists.
func (pc *Container) BuildNeighborList(pred neighbor.Predicate) {
	for _, t := range pc.store.Tiles() {
		tile, _ := pc.store.Tile(t)
		pc.lists[t] = neighbor.Build(tile, pc.indexes[t], pred)
	}
	pc.log.WithField("pairs", pc.Pairs()).Debug("Built neighbor lists.")
}

// Pairs returns the number of (particle, neighbor) pairs in the unit's
// lists.
func (pc *Container) Pairs() int {
	n := 0
	for _, l := range pc.lists {
		n += l.Pairs()
	}
	return n
}

// NeighborList returns the neighbor list of a tile.
func (pc *Container) NeighborList(tile int) (*neighbor.List, error) {
	if _, err := pc.store.Tile(tile); err != nil {
		return nil, err
	}
	l, ok := pc.lists[tile]
	if !ok {
		return nil, fmt.Errorf("Neighbor list of tile %d hasn't been built "+
			"since the last exchange.", tile)
	}
	return l, nil
}

// Neighbors returns the references of the neighbors of Real particle i in a
// tile. References at or above the tile's NReal are Ghosts.
func (pc *Container) Neighbors(tile, i int) ([]int, error) {
	l, err := pc.NeighborList(tile)
	if err != nil {
		return nil, err
	} else if i < 0 || i >= l.Len() {
		return nil, fmt.Errorf("Tile %d has %d Real particles, but the "+
			"neighbors of particle %d were requested.", tile, l.Len(), i)
	}
	return l.Neighbors(i), nil
}

// MoveParticles translates every Real particle by dx along every axis.
// Ghosts only follow after UpdateNeighbors.
func (pc *Container) MoveParticles(dx float64) {
	dim := pc.ps.Domain().Dim
	for _, t := range pc.store.Tiles() {
		tile, _ := pc.store.Tile(t)
		for i := 0; i < tile.NReal(); i++ {
			x := tile.Pos(i)
			for k := 0; k < dim; k++ {
				x[k] += dx
			}
			tile.SetPos(i, x)
		}
	}
}

// ResetTestID sets the test_id field of every Real particle back to its id.
// Ghost copies keep their old values until the next FillNeighbors.
func (pc *Container) ResetTestID() error {
	for _, t := range pc.store.Tiles() {
		tile, _ := pc.store.Tile(t)
		testID, err := tile.Uint64(TestIDField)
		if err != nil {
			return err
		}
		for i := 0; i < tile.NReal(); i++ {
			testID[i] = tile.ID(i)
		}
	}
	return nil
}

// CheckTestID returns the number of Ghosts in the unit whose test_id field
// differs from their id.
func (pc *Container) CheckTestID() (int, error) {
	bad := 0
	for _, t := range pc.store.Tiles() {
		tile, _ := pc.store.Tile(t)
		testID, err := tile.Uint64(TestIDField)
		if err != nil {
			return 0, err
		}
		for i := tile.NReal(); i < tile.Len(); i++ {
			if testID[i] != tile.ID(i) {
				bad++
			}
		}
	}
	return bad, nil
}

// MinAndMaxDistance returns the smallest and largest separation between a
// Real particle and any of its neighbors, using current positions and the
// last neighbor lists, over the whole world. With no pairs, it returns
// (+Inf, -Inf). Collective.
func (pc *Container) MinAndMaxDistance() (min, max float64, err error) {
	lo, hi := []float64{math.Inf(+1)}, []float64{math.Inf(-1)}
	for _, t := range pc.store.Tiles() {
		l, ok := pc.lists[t]
		if !ok {
			continue
		}
		tile, _ := pc.store.Tile(t)
		for i := 0; i < l.Len(); i++ {
			p := tile.Pos(i)
			for _, j := range l.Neighbors(i) {
				q := tile.Pos(j)
				d := floats.Distance(p[:], q[:], 2)
				lo[0], hi[0] = math.Min(lo[0], d), math.Max(hi[0], d)
			}
		}
	}

	if err := comm.AllreduceFloat64(pc.c, lo, comm.Min); err != nil {
		return 0, 0, err
	}
	if err := comm.AllreduceFloat64(pc.c, hi, comm.Max); err != nil {
		return 0, 0, err
	}
	return lo[0], hi[0], nil
}

// Stats summarizes the particles and neighbor lists of the whole world.
type Stats struct {
	Real, Ghost, Pairs int64
	// NeighborMean and NeighborStd are the mean and standard deviation of
	// the number of neighbors per Real particle.
	NeighborMean, NeighborStd float64
}

// Stats returns world-wide particle and neighbor counts. Collective.
func (pc *Container) Stats() (Stats, error) {
	counts := []float64{}
	for _, t := range pc.store.Tiles() {
		if l, ok := pc.lists[t]; ok {
			for i := 0; i < l.Len(); i++ {
				counts = append(counts, float64(len(l.Neighbors(i))))
			}
		}
	}

	n := []int64{
		int64(pc.store.NumReal()), int64(pc.store.NumGhost()),
		int64(pc.Pairs()),
	}
	moments := []float64{
		float64(len(counts)), floats.Sum(counts), floats.Dot(counts, counts),
	}
	if err := comm.AllreduceInt64(pc.c, n, comm.Sum); err != nil {
		return Stats{}, err
	}
	if err := comm.AllreduceFloat64(pc.c, moments, comm.Sum); err != nil {
		return Stats{}, err
	}

	s := Stats{Real: n[0], Ghost: n[1], Pairs: n[2]}
	if moments[0] > 0 {
		s.NeighborMean = moments[1] / moments[0]
		s.NeighborStd = math.Sqrt(math.Max(0,
			moments[2]/moments[0]-s.NeighborMean*s.NeighborMean))
	}
	return s, nil
}

// Refresh brings Ghosts up to date. It tries UpdateNeighbors first and
// falls back to Redistribute and FillNeighbors if the plan is stale. full is
// true if the fallback was taken, in which case neighbor lists must be
// rebuilt. Collective.
func (pc *Container) Refresh() (full bool, err error) {
	err = pc.UpdateNeighbors()
	if err == nil {
		return false, nil
	} else if !errors.Is(err, errs.ErrStalePlan) {
		return false, err
	}

	pc.log.WithError(err).Debug("Falling back to a full exchange.")
	if _, err := pc.Redistribute(); err != nil {
		return true, err
	}
	return true, pc.FillNeighbors()
}
