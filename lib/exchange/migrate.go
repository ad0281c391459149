package exchange

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/phil-mansfield/neighbors/lib/compress"
	"github.com/phil-mansfield/neighbors/lib/errs"
)

// Migration counts the Real particles moved by a Redistribute on one unit.
type Migration struct {
	// Sent and Received count particles which changed tiles.
	Sent, Received int
	// Removed counts particles which left the domain along a non-periodic
	// axis and were discarded.
	Removed int
}

// Redistribute wraps every Real particle back into the domain along periodic
// axes and moves it to the tile containing it. Particles outside the domain
// along a non-periodic axis are removed. Ghosts are discarded and the plan of
// the last Fill is invalidated.
//
// Particles that stay in their tile keep their order. Arrivals are appended
// in order of source tile and source index.
func (ex *Exchanger) Redistribute() (Migration, error) {
	m := Migration{}
	ex.plan = nil
	ex.resetEncoders()

	rec := &compress.Record{Kind: compress.Migrate}
	for _, idx := range ex.store.Tiles() {
		t, _ := ex.store.Tile(idx)
		t.RemoveGhosts()

		keep := make([]bool, t.NReal())
		for i := range keep {
			dest, wrapped, _, err := ex.ps.TileContaining(t.Pos(i))
			ood := &errs.OutOfDomainError{}
			if errors.As(err, &ood) {
				ex.log.WithFields(logrus.Fields{
					"tile": idx, "id": t.ID(i), "pos": t.Pos(i),
				}).Debug("Removed particle outside the domain.")
				m.Removed++
				continue
			} else if err != nil {
				return m, err
			}

			if dest == idx {
				keep[i] = true
				if wrapped != t.Pos(i) {
					t.SetPos(i, wrapped)
				}
				continue
			}

			ex.fields = t.AppendFields(ex.fields[:0], i)
			rec.ID, rec.Pos, rec.Shift = t.ID(i), wrapped, [3]int{}
			rec.SrcTile, rec.SrcIndex, rec.DestTile = idx, i, dest
			rec.Fields = ex.fields
			if err := ex.enc[ex.own.OwnerOf(dest)].Add(rec); err != nil {
				return m, err
			}
			m.Sent++
		}

		if err := t.Compact(keep); err != nil {
			return m, err
		}
	}

	recv, bytes, err := ex.send()
	if err != nil {
		return m, err
	}

	byTile := map[int][]*incoming{}
	for u := range recv {
		err := ex.dec.Decode(recv[u], func(r *compress.Record) error {
			if r.Kind != compress.Migrate {
				return fmt.Errorf("Unit %d sent a %s record during a "+
					"redistribution.", u, r.Kind)
			}
			if _, err := ex.checkOwner(r.DestTile); err != nil {
				return err
			}
			byTile[r.DestTile] = append(byTile[r.DestTile],
				newIncoming(u, 0, 0, r))
			return nil
		})
		if err != nil {
			return m, err
		}
	}

	for _, idx := range ex.store.Tiles() {
		t, _ := ex.store.Tile(idx)
		in := byTile[idx]
		sort.Slice(in, func(i, j int) bool {
			if in[i].srcTile != in[j].srcTile {
				return in[i].srcTile < in[j].srcTile
			}
			return in[i].srcIndex < in[j].srcIndex
		})
		for _, p := range in {
			if _, err := t.AddRealEncoded(p.pos, p.id, p.fields); err != nil {
				return m, err
			}
		}
		m.Received += len(in)
	}

	ex.log.WithFields(logrus.Fields{
		"sent": m.Sent, "received": m.Received, "removed": m.Removed,
		"bytes": bytes,
	}).Debug("Redistributed particles.")
	return m, nil
}
