package exchange

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/phil-mansfield/neighbors/lib/comm"
	"github.com/phil-mansfield/neighbors/lib/compress"
	"github.com/phil-mansfield/neighbors/lib/errs"
	"github.com/phil-mansfield/neighbors/lib/particles"
)

// plan records where every Ghost of the last Fill came from and went to, so
// that Update can resend positions without searching donation regions.
type plan struct {
	// sends[u] lists the Real particles sent to unit u, in message order.
	sends [][]sendRef
	// recvs[u] lists where each record received from unit u was stored.
	recvs [][]recvRef

	realVersion, ghostGen map[int]uint64
	// start holds Real positions at the time of the Fill. Only kept in
	// debug mode.
	start map[int][][3]float64
}

type sendRef struct {
	tile     *particles.Tile
	index    int
	destTile int
	shift    [3]int
}

type recvRef struct {
	tile *particles.Tile
	ref  int
}

// incoming is a Ghost or migrating particle waiting to be inserted.
type incoming struct {
	srcUnit, seq      int
	srcTile, srcIndex int
	image             int
	id                uint64
	shift             [3]int
	pos               [3]float64
	fields            []byte
}

func newIncoming(u, seq, image int, r *compress.Record) *incoming {
	in := &incoming{
		srcUnit: u, seq: seq, srcTile: r.SrcTile, srcIndex: r.SrcIndex,
		image: image, id: r.ID, shift: r.Shift, pos: r.Pos,
	}
	if r.Fields != nil {
		in.fields = append([]byte{}, r.Fields...)
	}
	return in
}

// Fill replaces the Ghosts of every owned tile with fresh copies of the Real
// particles in neighboring donation regions, including periodic images, and
// caches the plan used by Update. Ghosts are stored sorted by source tile,
// image and source index, so tile contents don't depend on how many units
// there are.
func (ex *Exchanger) Fill() error {
	if ex.cfg.Debug {
		if err := ex.agree(ex.checkContained(), "fill"); err != nil {
			ex.plan = nil
			return err
		}
	}

	ex.plan = nil
	ex.resetEncoders()
	p := &plan{
		sends:       make([][]sendRef, ex.c.Size()),
		recvs:       make([][]recvRef, ex.c.Size()),
		realVersion: map[int]uint64{},
		ghostGen:    map[int]uint64{},
	}

	rec := &compress.Record{Kind: compress.Ghost}
	for _, idx := range ex.store.Tiles() {
		t, _ := ex.store.Tile(idx)
		for i := 0; i < t.NReal(); i++ {
			cell := ex.dom.Cell(t.Pos(i))
			for _, d := range ex.donations[idx] {
				if !d.region.Contains(cell) {
					continue
				}
				u := ex.own.OwnerOf(d.dest)

				ex.fields = t.AppendFields(ex.fields[:0], i)
				rec.ID, rec.Pos, rec.Shift = t.ID(i), t.Pos(i), d.shift
				rec.SrcTile, rec.SrcIndex, rec.DestTile = idx, i, d.dest
				rec.Fields = ex.fields
				if err := ex.enc[u].Add(rec); err != nil {
					return err
				}
				p.sends[u] = append(p.sends[u], sendRef{t, i, d.dest, d.shift})
			}
		}
	}

	recv, bytes, err := ex.send()
	if err != nil {
		return err
	}

	byTile := map[int][]*incoming{}
	for u := range recv {
		seq := 0
		err := ex.dec.Decode(recv[u], func(r *compress.Record) error {
			if r.Kind != compress.Ghost {
				return fmt.Errorf("Unit %d sent a %s record during a ghost "+
					"fill.", u, r.Kind)
			}
			if _, err := ex.checkOwner(r.DestTile); err != nil {
				return err
			}
			image, ok := ex.imageIdx[r.Shift]
			if !ok {
				return fmt.Errorf("Unit %d sent a ghost with shift %v, which "+
					"isn't a periodic image of the domain.", u, r.Shift)
			}
			byTile[r.DestTile] = append(byTile[r.DestTile],
				newIncoming(u, seq, image, r))
			seq++
			return nil
		})
		if err != nil {
			return err
		}
		p.recvs[u] = make([]recvRef, seq)
	}

	nGhost := 0
	for _, idx := range ex.store.Tiles() {
		t, _ := ex.store.Tile(idx)
		t.RemoveGhosts()

		in := byTile[idx]
		sort.Slice(in, func(i, j int) bool {
			a, b := in[i], in[j]
			if a.srcTile != b.srcTile {
				return a.srcTile < b.srcTile
			} else if a.image != b.image {
				return a.image < b.image
			}
			return a.srcIndex < b.srcIndex
		})

		for _, g := range in {
			ref := particles.GhostRef{
				SrcTile: g.srcTile, SrcIndex: g.srcIndex, SrcID: g.id,
				Shift: g.shift,
			}
			x := ex.dom.Shifted(g.pos, g.shift)
			if _, err := t.AddGhost(x, g.id, ref, g.fields); err != nil {
				return err
			}
			p.recvs[g.srcUnit][g.seq] = recvRef{t, t.Len() - 1}
		}
		nGhost += len(in)

		p.realVersion[idx] = t.RealVersion()
		p.ghostGen[idx] = t.GhostGeneration()
		if ex.cfg.Debug {
			if p.start == nil {
				p.start = map[int][][3]float64{}
			}
			p.start[idx] = append([][3]float64{}, t.Positions()[:t.NReal()]...)
		}
	}

	ex.plan = p
	ex.log.WithFields(logrus.Fields{
		"ghosts": nGhost, "bytes": bytes,
	}).Debug("Filled ghosts.")
	return nil
}

// checkContained returns an *errs.BoundaryCrossingError for the first Real
// particle which is outside its tile.
func (ex *Exchanger) checkContained() error {
	for _, idx := range ex.store.Tiles() {
		t, _ := ex.store.Tile(idx)
		box := ex.ps.Tile(idx)
		for i := 0; i < t.NReal(); i++ {
			if !box.Contains(ex.dom.Cell(t.Pos(i))) {
				return &errs.BoundaryCrossingError{
					Tile: idx, Index: i, ID: t.ID(i),
				}
			}
		}
	}
	return nil
}

// Update resends the positions of every Ghost of the last Fill. Fields are
// not resent. Real particles must not have been inserted, removed or moved
// out of their tiles since that Fill.
//
// Inserting or removing Reals is always detected and reported as
// errs.ErrStalePlan. In debug mode, tile crossings and moves of more than
// GhostWidth cells are also detected and reported as an
// *errs.BoundaryCrossingError. Units agree on the outcome, so either every
// unit updates or every unit returns an error which matches ErrStalePlan.
// The plan is then discarded and a Redistribute and Fill are needed.
func (ex *Exchanger) Update() error {
	if err := ex.agree(ex.checkPlan(), "update"); err != nil {
		ex.plan = nil
		return err
	}

	p := ex.plan
	rec := &compress.Record{Kind: compress.Position}
	for u := range p.sends {
		for _, s := range p.sends[u] {
			rec.ID, rec.Pos = s.tile.ID(s.index), s.tile.Pos(s.index)
			rec.SrcTile, rec.SrcIndex = s.tile.Index(), s.index
			rec.DestTile, rec.Shift = s.destTile, s.shift
			if err := ex.enc[u].Add(rec); err != nil {
				return err
			}
		}
	}

	recv, bytes, err := ex.send()
	if err != nil {
		return err
	}

	for u := range recv {
		seq := 0
		err := ex.dec.Decode(recv[u], func(r *compress.Record) error {
			if seq >= len(p.recvs[u]) {
				return fmt.Errorf("Unit %d sent %d+ position updates, but "+
					"only %d ghosts came from it: %w", u, seq+1,
					len(p.recvs[u]), errs.ErrStalePlan)
			}
			dst := p.recvs[u][seq]
			if dst.ref < dst.tile.NReal() || dst.ref >= dst.tile.Len() {
				return fmt.Errorf("Ghost %d of tile %d no longer exists: %w",
					dst.ref, dst.tile.Index(), errs.ErrStalePlan)
			}
			ref := dst.tile.Ref(dst.ref)
			if r.Kind != compress.Position || ref.SrcTile != r.SrcTile ||
				ref.SrcIndex != r.SrcIndex || ref.Shift != r.Shift {
				return fmt.Errorf("Position update %d from unit %d doesn't "+
					"match ghost %d of tile %d: %w", seq, u, dst.ref,
					dst.tile.Index(), errs.ErrStalePlan)
			}
			dst.tile.SetPos(dst.ref, ex.dom.Shifted(r.Pos, r.Shift))
			seq++
			return nil
		})
		if err != nil {
			return err
		}
		if seq != len(p.recvs[u]) {
			return fmt.Errorf("Unit %d sent %d position updates, but %d "+
				"ghosts came from it: %w", u, seq, len(p.recvs[u]),
				errs.ErrStalePlan)
		}
	}

	ex.log.WithField("bytes", bytes).Debug("Updated ghosts.")
	return nil
}

// agree reports whether any unit has a non-nil localErr. Every unit returns
// an error if one does: its own if it has one and an error matching
// errs.ErrStalePlan otherwise.
func (ex *Exchanger) agree(localErr error, op string) error {
	flag := []int64{0}
	if localErr != nil {
		flag[0] = 1
	}
	if err := comm.AllreduceInt64(ex.c, flag, comm.Max); err != nil {
		return err
	}
	if flag[0] == 0 {
		return nil
	} else if localErr != nil {
		return localErr
	}
	return fmt.Errorf("Another unit cannot %s its ghosts: %w", op,
		errs.ErrStalePlan)
}

// checkPlan returns an error if the plan can't be used for an Update.
func (ex *Exchanger) checkPlan() error {
	p := ex.plan
	if p == nil {
		return fmt.Errorf("Unit %d has no ghost plan: %w", ex.c.Rank(),
			errs.ErrStalePlan)
	}

	for _, idx := range ex.store.Tiles() {
		t, _ := ex.store.Tile(idx)
		if t.RealVersion() != p.realVersion[idx] {
			return fmt.Errorf("Real particles were added to or removed from "+
				"tile %d since the last fill: %w", idx, errs.ErrStalePlan)
		} else if t.GhostGeneration() != p.ghostGen[idx] {
			return fmt.Errorf("The ghosts of tile %d were removed since the "+
				"last fill: %w", idx, errs.ErrStalePlan)
		}
		if !ex.cfg.Debug {
			continue
		}

		box, start := ex.ps.Tile(idx), p.start[idx]
		for i := 0; i < t.NReal(); i++ {
			x := t.Pos(i)
			disp := 0.0
			for k := 0; k < ex.dom.Dim; k++ {
				d := math.Abs(x[k]-start[i][k]) / ex.dom.CellWidth[k]
				disp = math.Max(disp, d)
			}

			if !box.Contains(ex.dom.Cell(x)) {
				return &errs.BoundaryCrossingError{
					Tile: idx, Index: i, ID: t.ID(i),
				}
			} else if disp > float64(ex.cfg.GhostWidth) {
				return &errs.BoundaryCrossingError{
					Tile: idx, Index: i, ID: t.ID(i), Displacement: disp,
				}
			}
		}
	}

	return nil
}
