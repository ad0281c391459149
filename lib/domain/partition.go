package domain

import (
	"fmt"
	"sort"
	"sync"

	"github.com/phil-mansfield/neighbors/lib/errs"
)

// PartitionSet is an ordered set of tiles which together cover the Domain
// without overlapping.
type PartitionSet struct {
	dom   *Domain
	tiles []Box

	// A coarse lookup grid which maps bins of cells to the tiles that
	// overlap them.
	binWidth, nBins [3]int
	bins            [][]int

	mtx   sync.Mutex
	halos map[int][]Box
}

// NewPartitionSet creates a PartitionSet from the given boxes and checks that
// they form a valid tiling of the domain.
func NewPartitionSet(dom *Domain, tiles []Box) (*PartitionSet, error) {
	if len(tiles) == 0 {
		return nil, fmt.Errorf("A PartitionSet needs at least one tile.")
	}

	full := dom.Box()
	vol := 0
	for i, b := range tiles {
		in, ok := b.Intersect(full)
		if !ok || in != b {
			return nil, fmt.Errorf("Tile %d, %s, is not contained in the "+
				"domain, %s.", i, b, full)
		}
		vol += b.Volume()
	}

	ps := &PartitionSet{
		dom: dom, tiles: append([]Box{}, tiles...), halos: map[int][]Box{},
	}
	ps.initBins()

	// Disjoint tiles whose volumes sum to the domain volume cover it.
	for i, b := range ps.tiles {
		for _, j := range ps.candidates(b) {
			if j <= i {
				continue
			}
			if _, ok := b.Intersect(ps.tiles[j]); ok {
				return nil, fmt.Errorf("Tiles %d, %s, and %d, %s, overlap.",
					i, b, j, ps.tiles[j])
			}
		}
	}
	if vol != full.Volume() {
		return nil, fmt.Errorf("Tiles cover %d cells, but the domain has %d.",
			vol, full.Volume())
	}

	return ps, nil
}

// ChopDomain splits the domain into tiles which are no wider than maxSize
// cells along each axis. Tiles are ordered with the x index varying fastest.
func ChopDomain(dom *Domain, maxSize [3]int) (*PartitionSet, error) {
	var edges [3][]int
	for i := 0; i < 3; i++ {
		if maxSize[i] <= 0 {
			return nil, fmt.Errorf("Maximum tile size along axis %d is %d, "+
				"but must be positive.", i, maxSize[i])
		}
		for lo := 0; lo < dom.Extent[i]; lo += maxSize[i] {
			edges[i] = append(edges[i], lo)
		}
		edges[i] = append(edges[i], dom.Extent[i])
	}

	tiles := []Box{}
	for k := 0; k+1 < len(edges[2]); k++ {
		for j := 0; j+1 < len(edges[1]); j++ {
			for i := 0; i+1 < len(edges[0]); i++ {
				tiles = append(tiles, Box{
					Lo: [3]int{edges[0][i], edges[1][j], edges[2][k]},
					Hi: [3]int{edges[0][i+1] - 1, edges[1][j+1] - 1,
						edges[2][k+1] - 1},
				})
			}
		}
	}

	return NewPartitionSet(dom, tiles)
}

func (ps *PartitionSet) initBins() {
	for i := 0; i < 3; i++ {
		ps.binWidth[i] = ps.dom.Extent[i]
		for _, b := range ps.tiles {
			if w := b.Width()[i]; w < ps.binWidth[i] {
				ps.binWidth[i] = w
			}
		}
		ps.nBins[i] = (ps.dom.Extent[i] + ps.binWidth[i] - 1) / ps.binWidth[i]
	}

	ps.bins = make([][]int, ps.nBins[0]*ps.nBins[1]*ps.nBins[2])
	for t, b := range ps.tiles {
		lo, hi := ps.binOf(b.Lo), ps.binOf(b.Hi)
		for z := lo[2]; z <= hi[2]; z++ {
			for y := lo[1]; y <= hi[1]; y++ {
				for x := lo[0]; x <= hi[0]; x++ {
					idx := ps.binIdx(x, y, z)
					ps.bins[idx] = append(ps.bins[idx], t)
				}
			}
		}
	}
}

func (ps *PartitionSet) binOf(c [3]int) [3]int {
	return [3]int{c[0] / ps.binWidth[0], c[1] / ps.binWidth[1],
		c[2] / ps.binWidth[2]}
}

func (ps *PartitionSet) binIdx(x, y, z int) int {
	return x + y*ps.nBins[0] + z*ps.nBins[0]*ps.nBins[1]
}

// candidates returns the sorted indices of tiles which might overlap a box
// inside the domain.
func (ps *PartitionSet) candidates(b Box) []int {
	lo, hi := ps.binOf(b.Lo), ps.binOf(b.Hi)
	seen := map[int]bool{}
	out := []int{}
	for z := lo[2]; z <= hi[2]; z++ {
		for y := lo[1]; y <= hi[1]; y++ {
			for x := lo[0]; x <= hi[0]; x++ {
				for _, t := range ps.bins[ps.binIdx(x, y, z)] {
					if !seen[t] {
						seen[t] = true
						out = append(out, t)
					}
				}
			}
		}
	}
	sort.Ints(out)
	return out
}

// Overlapping returns the sorted indices of the tiles which overlap b. Parts
// of b outside the domain are ignored.
func (ps *PartitionSet) Overlapping(b Box) []int {
	in, ok := b.Intersect(ps.dom.Box())
	if !ok {
		return nil
	}
	out := []int{}
	for _, t := range ps.candidates(in) {
		if _, ok := in.Intersect(ps.tiles[t]); ok {
			out = append(out, t)
		}
	}
	return out
}

// Domain returns the domain that the tiles cover.
func (ps *PartitionSet) Domain() *Domain { return ps.dom }

// Len returns the number of tiles.
func (ps *PartitionSet) Len() int { return len(ps.tiles) }

// Tile returns the box of tile i.
func (ps *PartitionSet) Tile(i int) Box { return ps.tiles[i] }

// TileOfCell returns the index of the tile containing a cell, or -1 if the
// cell is outside the domain.
func (ps *PartitionSet) TileOfCell(c [3]int) int {
	for i := 0; i < 3; i++ {
		if c[i] < 0 || c[i] >= ps.dom.Extent[i] {
			return -1
		}
	}
	bin := ps.binOf(c)
	for _, t := range ps.bins[ps.binIdx(bin[0], bin[1], bin[2])] {
		if ps.tiles[t].Contains(c) {
			return t
		}
	}
	return -1
}

// TileContaining returns the index of the tile which contains a position
// after periodic wraparound, along with the wrapped position and the number
// of domain lengths removed along each axis (see Domain.Wrap). An
// *errs.OutOfDomainError is returned if the position is outside a
// non-periodic axis.
func (ps *PartitionSet) TileContaining(
	pos [3]float64,
) (tile int, wrapped [3]float64, k [3]int, err error) {
	wrapped, k, err = ps.dom.Wrap(pos)
	if err != nil {
		return -1, pos, k, err
	}

	c := ps.dom.Cell(wrapped)
	if tile = ps.TileOfCell(c); tile < 0 {
		axis := 0
		for i := 0; i < ps.dom.Dim; i++ {
			if c[i] < 0 || c[i] >= ps.dom.Extent[i] {
				axis = i
				break
			}
		}
		return -1, pos, k, &errs.OutOfDomainError{Pos: pos, Axis: axis}
	}
	return tile, wrapped, k, nil
}

// Halo returns the halo-expanded boxes of every tile for the given ghost
// width. Boxes may extend past the edge of the domain. The result is cached
// and must not be modified.
func (ps *PartitionSet) Halo(ghostWidth int) []Box {
	ps.mtx.Lock()
	defer ps.mtx.Unlock()

	if halo, ok := ps.halos[ghostWidth]; ok {
		return halo
	}

	halo := make([]Box, len(ps.tiles))
	for i := range ps.tiles {
		halo[i] = ps.tiles[i].Grow(ghostWidth, ps.dom.Dim)
	}
	ps.halos[ghostWidth] = halo
	return halo
}

// Images returns the periodic image offsets of the domain, in units of domain
// lengths. Each component is -1, 0 or 1 along periodic axes and 0 otherwise.
// The zero offset is included. The order is fixed, with the x component
// varying fastest.
func (ps *PartitionSet) Images() [][3]int {
	var rng [3][]int
	for i := 0; i < 3; i++ {
		if i < ps.dom.Dim && ps.dom.Periodic[i] {
			rng[i] = []int{-1, 0, 1}
		} else {
			rng[i] = []int{0}
		}
	}

	out := [][3]int{}
	for _, z := range rng[2] {
		for _, y := range rng[1] {
			for _, x := range rng[0] {
				out = append(out, [3]int{x, y, z})
			}
		}
	}
	return out
}

// ImageShift converts an image offset into a shift in cells.
func (ps *PartitionSet) ImageShift(k [3]int) [3]int {
	return [3]int{k[0] * ps.dom.Extent[0], k[1] * ps.dom.Extent[1],
		k[2] * ps.dom.Extent[2]}
}
