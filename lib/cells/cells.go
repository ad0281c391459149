/*
package cells contains the cell-linked-list index used to find candidate
neighbors. Each tile's halo-expanded box is split into uniform bins at least
as wide as the interaction radius, and every Real and Ghost particle is
binned by its position.
*/
package cells

import (
	"fmt"
	"math"

	"github.com/phil-mansfield/neighbors/lib/domain"
	"github.com/phil-mansfield/neighbors/lib/particles"
)

// Index bins the particles of a single tile.
type Index struct {
	dom      *domain.Domain
	box      domain.Box
	lo       [3]float64
	binWidth [3]int
	binLen   [3]float64
	nBins    [3]int

	// refs holds particle references sorted by bin, and the references in
	// bin i are refs[starts[i]:starts[i+1]].
	starts []int
	refs   []int
	bins   []int

	tile    *particles.Tile
	version uint64
}

// New creates an empty Index covering box, which is normally a tile's
// halo-expanded box. Bins are a whole number of mesh cells wide and are
// never narrower than radius.
func New(dom *domain.Domain, box domain.Box, radius float64) (*Index, error) {
	if !(radius > 0) {
		return nil, fmt.Errorf("Interaction radius is %g, but must be "+
			"positive.", radius)
	}

	idx := &Index{dom: dom, box: box}
	w := box.Width()
	for i := 0; i < 3; i++ {
		idx.binWidth[i] = 1
		if i < dom.Dim {
			idx.binWidth[i] = int(math.Ceil(radius / dom.CellWidth[i]))
			if idx.binWidth[i] < 1 {
				idx.binWidth[i] = 1
			}
		}
		idx.nBins[i] = (w[i] + idx.binWidth[i] - 1) / idx.binWidth[i]
		idx.binLen[i] = float64(idx.binWidth[i]) * dom.CellWidth[i]
		idx.lo[i] = dom.Origin[i] + float64(box.Lo[i])*dom.CellWidth[i]
	}
	idx.starts = make([]int, idx.Len()+1)

	return idx, nil
}

// Len returns the number of bins.
func (idx *Index) Len() int { return idx.nBins[0] * idx.nBins[1] * idx.nBins[2] }

// Span returns the number of bins along each axis.
func (idx *Index) Span() [3]int { return idx.nBins }

// BinWidth returns the width of a bin in mesh cells.
func (idx *Index) BinWidth() [3]int { return idx.binWidth }

// Box returns the box the index covers.
func (idx *Index) Box() domain.Box { return idx.box }

// Coords returns the bin coordinates of a position. Positions outside the
// box are clamped to the nearest edge bin, which keeps particles within one
// bin width of each other in the same or adjacent bins.
func (idx *Index) Coords(pos [3]float64) [3]int {
	c := [3]int{}
	for i := 0; i < idx.dom.Dim; i++ {
		x := math.Floor((pos[i] - idx.lo[i]) / idx.binLen[i])
		if x < 0 || math.IsNaN(x) {
			c[i] = 0
		} else if x >= float64(idx.nBins[i]) {
			c[i] = idx.nBins[i] - 1
		} else {
			c[i] = int(x)
		}
	}
	return c
}

// CellOf returns the id of the bin containing pos. It only depends on pos
// and the geometry of the index.
func (idx *Index) CellOf(pos [3]float64) int {
	return particles.IndexVecToIndex(idx.nBins, idx.Coords(pos))
}

// ParticlesInCell returns the references of the particles in a bin, in store
// order. The result must not be modified.
func (idx *Index) ParticlesInCell(id int) []int {
	return idx.refs[idx.starts[id]:idx.starts[id+1]]
}

// Build bins every particle in t with a counting sort. Within a bin,
// particles keep their store order, so Real particles come before Ghosts.
func (idx *Index) Build(t *particles.Tile) {
	n := t.Len()
	if cap(idx.bins) < n {
		idx.bins = make([]int, n)
		idx.refs = make([]int, n)
	}
	idx.bins, idx.refs = idx.bins[:n], idx.refs[:n]

	for i := range idx.starts {
		idx.starts[i] = 0
	}

	pos := t.Positions()
	for i := range pos {
		b := idx.CellOf(pos[i])
		idx.bins[i] = b
		idx.starts[b+1]++
	}
	for i := 1; i < len(idx.starts); i++ {
		idx.starts[i] += idx.starts[i-1]
	}

	// Use the start of each bin as a cursor and then shift back.
	for i, b := range idx.bins {
		idx.refs[idx.starts[b]] = i
		idx.starts[b]++
	}
	for b := len(idx.starts) - 1; b > 0; b-- {
		idx.starts[b] = idx.starts[b-1]
	}
	idx.starts[0] = 0

	idx.tile, idx.version = t, t.Version()
}

// Update rebuilds the index if t has changed since the last Build and
// returns true if it did.
func (idx *Index) Update(t *particles.Tile) bool {
	if idx.tile == t && idx.version == t.Version() {
		return false
	}
	idx.Build(t)
	return true
}
