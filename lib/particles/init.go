package particles

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/phil-mansfield/neighbors/lib/domain"
)

// Lattice describes a regular initial particle layout: PerCell[i] particles
// along each axis of every cell, spaced evenly and offset by half a spacing
// from the cell edge. Velocities are drawn from a normal distribution.
type Lattice struct {
	PerCell                 [3]int
	ThermalMean, ThermalStd float64
	Seed                    uint64
	// VelField and TestIDField name the "v64" and "u64" fields which receive
	// velocities and test IDs. Either may be empty.
	VelField, TestIDField string
}

// InitLattice fills every tile in s with lattice particles. IDs follow a
// z-major ordering of the global lattice, and each particle's velocity only
// depends on the seed and its ID, so the result does not depend on how tiles
// are assigned to units.
func InitLattice(s *Store, ps *domain.PartitionSet, l Lattice) error {
	dom := ps.Domain()

	span := [3]int{1, 1, 1}
	npc := [3]int{1, 1, 1}
	for i := 0; i < dom.Dim; i++ {
		if l.PerCell[i] <= 0 {
			return fmt.Errorf("Lattice has %d particles per cell along "+
				"axis %d, but must have at least one.", l.PerCell[i], i)
		}
		npc[i] = l.PerCell[i]
		span[i] = dom.Extent[i] * npc[i]
	}
	order := NewZMajorLattice(span)

	for _, idx := range s.Tiles() {
		tile, _ := s.Tile(idx)
		box := ps.Tile(idx)
		w := box.Width()
		nCells := box.Volume()

		sub := npc[0] * npc[1] * npc[2]
		for ci := 0; ci < nCells; ci++ {
			cell := IndexToIndexVec(w, ci)
			for k := 0; k < 3; k++ {
				cell[k] += box.Lo[k]
			}

			for si := 0; si < sub; si++ {
				j := IndexToIndexVec(npc, si)
				lat, x := [3]int{}, [3]float64{}
				for k := 0; k < dom.Dim; k++ {
					lat[k] = cell[k]*npc[k] + j[k]
					x[k] = dom.Origin[k] + dom.CellWidth[k]*
						(float64(cell[k])+(float64(j[k])+0.5)/float64(npc[k]))
				}

				id := order.IndexToID(lat)
				i := tile.AddReal(x, id)
				if err := l.initFields(tile, i, id, dom.Dim); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func (l Lattice) initFields(t *Tile, i int, id uint64, dim int) error {
	if l.VelField != "" {
		vel, err := t.Vec64(l.VelField)
		if err != nil {
			return err
		}
		thermal := distuv.Normal{
			Mu: l.ThermalMean, Sigma: l.ThermalStd,
			Src: NewRNG(l.Seed ^ (id * 0x9E3779B97F4A7C15)),
		}
		for k := 0; k < dim; k++ {
			vel[i][k] = thermal.Rand()
		}
	}

	if l.TestIDField != "" {
		testID, err := t.Uint64(l.TestIDField)
		if err != nil {
			return err
		}
		testID[i] = id
	}

	return nil
}
