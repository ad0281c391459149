package exchange

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/phil-mansfield/neighbors/lib/comm"
	"github.com/phil-mansfield/neighbors/lib/compress"
)

// Verify sends every Ghost back to the unit owning its source and checks
// that the source still exists, has the same id and, once shifted, the same
// position. It returns the number of mismatched Ghosts summed over all units.
func (ex *Exchanger) Verify() (int64, error) {
	ex.resetEncoders()

	rec := &compress.Record{Kind: compress.Check}
	for _, idx := range ex.store.Tiles() {
		t, _ := ex.store.Tile(idx)
		for i := t.NReal(); i < t.Len(); i++ {
			ref := t.Ref(i)
			u := ex.own.OwnerOf(ref.SrcTile)
			if u < 0 {
				return 0, fmt.Errorf("Ghost %d of tile %d comes from tile %d, "+
					"which does not exist.", i, idx, ref.SrcTile)
			}
			rec.ID, rec.Pos, rec.Shift = t.ID(i), t.Pos(i), ref.Shift
			rec.SrcTile, rec.SrcIndex, rec.DestTile = ref.SrcTile,
				ref.SrcIndex, idx
			if err := ex.enc[u].Add(rec); err != nil {
				return 0, err
			}
		}
	}

	recv, _, err := ex.send()
	if err != nil {
		return 0, err
	}

	bad := []int64{0}
	for u := range recv {
		err := ex.dec.Decode(recv[u], func(r *compress.Record) error {
			if r.Kind != compress.Check {
				return fmt.Errorf("Unit %d sent a %s record during a ghost "+
					"check.", u, r.Kind)
			}
			if !ex.matchesSource(r) {
				ex.log.WithFields(logrus.Fields{
					"tile": r.DestTile, "id": r.ID, "src_tile": r.SrcTile,
					"src_index": r.SrcIndex,
				}).Warn("Ghost doesn't match its source.")
				bad[0]++
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
	}

	if err := comm.AllreduceInt64(ex.c, bad, comm.Sum); err != nil {
		return 0, err
	}
	return bad[0], nil
}

func (ex *Exchanger) matchesSource(r *compress.Record) bool {
	t, err := ex.store.Tile(r.SrcTile)
	if err != nil || r.SrcIndex < 0 || r.SrcIndex >= t.NReal() {
		return false
	}
	return t.ID(r.SrcIndex) == r.ID &&
		ex.dom.Shifted(t.Pos(r.SrcIndex), r.Shift) == r.Pos
}
