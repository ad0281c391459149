/*
package domain contains the index-space geometry of a spatially decomposed
simulation: the Domain itself, the tiles which partition it, and the map which
assigns those tiles to execution units.

All types in this package are immutable after construction and are safe to
share between execution units running in the same process.
*/
package domain

import (
	"fmt"
	"math"

	"github.com/phil-mansfield/neighbors/lib/errs"
)

// Domain is the global simulation index space. Only the first Dim axes are
// used. Unused axes have an extent of one cell and are never periodic.
type Domain struct {
	Dim      int
	Extent   [3]int
	Periodic [3]bool
	// Origin is the physical location of the low corner of cell (0, 0, 0)
	// and CellWidth is the physical width of a cell along each axis.
	Origin, CellWidth [3]float64
}

// NewDomain creates a Domain with the given dimension. The extent, periodic
// and cellWidth arrays must have at least dim elements. The origin is set to
// zero.
func NewDomain(
	dim int, extent []int, periodic []bool, cellWidth []float64,
) (*Domain, error) {
	if dim != 2 && dim != 3 {
		return nil, fmt.Errorf("Domain must be 2- or 3-dimensional, not %d.",
			dim)
	} else if len(extent) < dim {
		return nil, fmt.Errorf("%d-dimensional domain given %d extents.",
			dim, len(extent))
	} else if len(periodic) < dim {
		return nil, fmt.Errorf("%d-dimensional domain given %d periodic flags.",
			dim, len(periodic))
	} else if len(cellWidth) < dim {
		return nil, fmt.Errorf("%d-dimensional domain given %d cell widths.",
			dim, len(cellWidth))
	}

	d := &Domain{Dim: dim}
	for i := 0; i < 3; i++ {
		if i >= dim {
			d.Extent[i], d.CellWidth[i] = 1, 1
			continue
		}
		if extent[i] <= 0 {
			return nil, fmt.Errorf("Domain extent along axis %d is %d, but "+
				"must be positive.", i, extent[i])
		} else if cellWidth[i] <= 0 {
			return nil, fmt.Errorf("Cell width along axis %d is %g, but must "+
				"be positive.", i, cellWidth[i])
		}
		d.Extent[i] = extent[i]
		d.Periodic[i] = periodic[i]
		d.CellWidth[i] = cellWidth[i]
	}

	return d, nil
}

// Box returns the index-space box covering the whole domain.
func (d *Domain) Box() Box {
	return Box{Hi: [3]int{d.Extent[0] - 1, d.Extent[1] - 1, d.Extent[2] - 1}}
}

// Length returns the physical length of the domain along an axis.
func (d *Domain) Length(axis int) float64 {
	return float64(d.Extent[axis]) * d.CellWidth[axis]
}

// Cell discretizes a position into the index of the cell containing it. The
// position does not need to be inside the domain. Positions inside the domain
// always map to cells inside it, even when x/CellWidth rounds up to Extent.
func (d *Domain) Cell(pos [3]float64) [3]int {
	c := [3]int{}
	for i := 0; i < d.Dim; i++ {
		x := pos[i] - d.Origin[i]
		c[i] = int(math.Floor(x / d.CellWidth[i]))
		if c[i] == d.Extent[i] && x < d.Length(i) {
			c[i]--
		}
	}
	return c
}

// Shifted returns pos translated by shift, which is given in cells.
func (d *Domain) Shifted(pos [3]float64, shift [3]int) [3]float64 {
	for i := 0; i < d.Dim; i++ {
		pos[i] += float64(shift[i]) * d.CellWidth[i]
	}
	return pos
}

// Wrap reduces a position modulo the domain length along periodic axes. It
// returns the wrapped position and the number of domain lengths, k, that were
// removed along each axis, so that pos = wrapped + k*length. An
// *errs.OutOfDomainError is returned if the position lies outside the domain
// along a non-periodic axis.
func (d *Domain) Wrap(pos [3]float64) (wrapped [3]float64, k [3]int, err error) {
	wrapped = pos
	for i := 0; i < d.Dim; i++ {
		x := pos[i] - d.Origin[i]
		L := d.Length(i)

		if !d.Periodic[i] {
			if x < 0 || x >= L || math.IsNaN(x) {
				return pos, k, &errs.OutOfDomainError{Pos: pos, Axis: i}
			}
			continue
		}

		if math.IsNaN(x) || math.IsInf(x, 0) {
			return pos, k, &errs.OutOfDomainError{Pos: pos, Axis: i}
		}

		n := math.Floor(x / L)
		x -= n * L
		// Rounding can push a value that was just below zero up to L.
		if x >= L {
			x = 0
			n++
		}
		k[i] = int(n)
		wrapped[i] = x + d.Origin[i]
	}
	return wrapped, k, nil
}

// MinImage returns the separation vector q - p using the nearest periodic
// image of q.
func (d *Domain) MinImage(p, q [3]float64) [3]float64 {
	dx := [3]float64{}
	for i := 0; i < d.Dim; i++ {
		dx[i] = q[i] - p[i]
		if !d.Periodic[i] {
			continue
		}
		L := d.Length(i)
		if dx[i] > L/2 {
			dx[i] -= L
		} else if dx[i] < -L/2 {
			dx[i] += L
		}
	}
	return dx
}
