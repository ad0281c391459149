/*
package exchange moves particles between tiles: it fills each tile's halo with
Ghost copies of nearby Real particles (including periodic images), refreshes
Ghost positions along the plan of the last fill, migrates Real particles which
left their tile, and checks that Ghosts still match their sources.

Every exported method of Exchanger is collective. All units in a world must
call the same methods in the same order.
*/
package exchange

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/phil-mansfield/neighbors/lib/comm"
	"github.com/phil-mansfield/neighbors/lib/compress"
	"github.com/phil-mansfield/neighbors/lib/domain"
	"github.com/phil-mansfield/neighbors/lib/errs"
	"github.com/phil-mansfield/neighbors/lib/particles"
)

// Config holds the exchange parameters. It is read-only once an Exchanger
// has been created.
type Config struct {
	// GhostWidth is the width of each tile's halo, in cells.
	GhostWidth int
	// Method is the compression applied to every message.
	Method compress.MethodFlag
	// Radius is the largest interaction radius neighbor lists will be built
	// with. It is only used to check GhostWidth.
	Radius float64
	// Debug turns on the expensive consistency checks: Reals must lie in
	// their tile before a Fill, and must neither leave their tile nor move
	// more than GhostWidth cells before an Update.
	Debug bool
}

// donation is one region of a tile whose Real particles are copied into the
// halo of another tile.
type donation struct {
	dest   int
	shift  [3]int
	region domain.Box
}

// Exchanger runs the exchange protocol for a single execution unit.
type Exchanger struct {
	c     comm.Comm
	ps    *domain.PartitionSet
	dom   *domain.Domain
	own   *domain.Ownership
	store *particles.Store
	cfg   Config
	log   *logrus.Entry

	donations map[int][]donation
	imageIdx  map[[3]int]int

	enc    []*compress.Encoder
	dec    *compress.Decoder
	fields []byte

	plan *plan
}

// New creates an Exchanger for the unit which owns store. The store's
// Ownership must describe the same world as c.
func New(
	c comm.Comm, ps *domain.PartitionSet, store *particles.Store, cfg Config,
) (*Exchanger, error) {
	own, dom := store.Ownership(), ps.Domain()
	if store.Unit() != c.Rank() {
		return nil, fmt.Errorf("Store belongs to unit %d, but is being "+
			"exchanged by unit %d.", store.Unit(), c.Rank())
	} else if own.Units() != c.Size() {
		return nil, fmt.Errorf("Ownership map has %d units, but the world "+
			"has %d.", own.Units(), c.Size())
	} else if own.Len() != ps.Len() {
		return nil, fmt.Errorf("Ownership map has %d tiles, but the "+
			"partition set has %d.", own.Len(), ps.Len())
	}

	if err := checkGhostWidth(dom, cfg); err != nil {
		return nil, err
	}

	ex := &Exchanger{
		c: c, ps: ps, dom: dom, own: own, store: store, cfg: cfg,
		log:       logrus.WithField("unit", c.Rank()),
		donations: map[int][]donation{},
		imageIdx:  map[[3]int]int{},
		dec:       compress.NewDecoder(store.Schema().Size()),
	}

	for i, k := range ps.Images() {
		ex.imageIdx[ps.ImageShift(k)] = i
	}
	for u := 0; u < c.Size(); u++ {
		enc, err := compress.NewEncoder(cfg.Method, store.Schema().Size())
		if err != nil {
			return nil, err
		}
		ex.enc = append(ex.enc, enc)
	}
	for _, t := range store.Tiles() {
		ex.donations[t] = ex.findDonations(t)
	}

	return ex, nil
}

func checkGhostWidth(dom *domain.Domain, cfg Config) error {
	if cfg.GhostWidth < 0 {
		return fmt.Errorf("GhostWidth = %d, but must be non-negative.",
			cfg.GhostWidth)
	}
	for i := 0; i < dom.Dim; i++ {
		if dom.Periodic[i] && cfg.GhostWidth > dom.Extent[i] {
			return fmt.Errorf("GhostWidth = %d, but the domain is only %d "+
				"cells wide along periodic axis %d.", cfg.GhostWidth,
				dom.Extent[i], i)
		}
		if w := float64(cfg.GhostWidth) * dom.CellWidth[i]; w < cfg.Radius {
			if cfg.Debug {
				return fmt.Errorf("Halo is %g wide along axis %d, but the "+
					"radius is %g: %w", w, i, cfg.Radius, errs.ErrGhostWidth)
			}
			logrus.WithFields(logrus.Fields{
				"axis": i, "halo": w, "radius": cfg.Radius,
			}).Warn("Ghost width is smaller than the interaction radius; " +
				"some neighbors will be missed.")
		}
	}
	return nil
}

// findDonations lists the regions of tile t which must be copied into other
// halos. A Ghost with shift s lands at cell c + s, so the region donated to
// t2 under s is box(t) ∩ (halo(t2) - s).
func (ex *Exchanger) findDonations(t int) []donation {
	box, halo := ex.ps.Tile(t), ex.ps.Halo(ex.cfg.GhostWidth)
	out := []donation{}

	for _, k := range ex.ps.Images() {
		s := ex.ps.ImageShift(k)
		search := box.Shift(s).Grow(ex.cfg.GhostWidth, ex.dom.Dim)
		for _, t2 := range ex.ps.Overlapping(search) {
			if t2 == t && s == [3]int{} {
				continue
			}
			neg := [3]int{-s[0], -s[1], -s[2]}
			region, ok := box.Intersect(halo[t2].Shift(neg))
			if ok {
				out = append(out, donation{t2, s, region})
			}
		}
	}

	return out
}

// Config returns the exchange parameters.
func (ex *Exchanger) Config() Config { return ex.cfg }

// HasPlan returns true if a Fill has happened since the last Redistribute,
// so that Update may be called.
func (ex *Exchanger) HasPlan() bool { return ex.plan != nil }

// Invalidate discards the plan of the last Fill. It is not collective.
func (ex *Exchanger) Invalidate() { ex.plan = nil }

// send encodes the messages for every unit and exchanges them.
func (ex *Exchanger) send() ([][]byte, int, error) {
	msgs := make([][]byte, len(ex.enc))
	bytes := 0
	for u, enc := range ex.enc {
		var err error
		msgs[u], err = enc.Message()
		if err != nil {
			return nil, 0, err
		}
		bytes += len(msgs[u])
		enc.Reset()
	}

	recv, err := ex.c.Alltoallv(msgs)
	return recv, bytes, err
}

func (ex *Exchanger) resetEncoders() {
	for _, enc := range ex.enc {
		enc.Reset()
	}
}

// checkOwner returns an *errs.StaleOwnershipError if this unit doesn't own
// the tile a record was addressed to.
func (ex *Exchanger) checkOwner(tile int) (*particles.Tile, error) {
	t, err := ex.store.Tile(tile)
	if err != nil {
		return nil, &errs.StaleOwnershipError{
			Tile: tile, Unit: ex.c.Rank(), Owner: ex.own.OwnerOf(tile),
		}
	}
	return t, nil
}
