/*
package neighbor builds per-particle neighbor lists from a cell index.
Only Real particles get lists, so Ghost-Ghost pairs are never evaluated.
*/
package neighbor

import (
	"gonum.org/v1/gonum/floats"

	"github.com/phil-mansfield/neighbors/lib/cells"
	"github.com/phil-mansfield/neighbors/lib/particles"
	"github.com/phil-mansfield/neighbors/lib/thread"
)

// View is a read-only look at one particle of a tile, passed to predicates.
type View struct {
	Tile *particles.Tile
	// Ref is the particle's reference within Tile.
	Ref   int
	Pos   [3]float64
	ID    uint64
	Ghost bool
}

func newView(t *particles.Tile, i int) View {
	return View{Tile: t, Ref: i, Pos: t.Pos(i), ID: t.ID(i), Ghost: t.IsGhost(i)}
}

// Predicate decides whether q is a neighbor of p. Predicates must be pure
// functions of their arguments and safe to call concurrently.
type Predicate func(p, q *View) bool

// WithinDistance returns a Predicate which accepts pairs whose separation is
// at most r.
func WithinDistance(r float64) Predicate {
	return func(p, q *View) bool {
		return floats.Distance(p.Pos[:], q.Pos[:], 2) <= r
	}
}

// List holds the neighbor lists of a tile's Real particles in compressed
// sparse row form.
type List struct {
	tile   *particles.Tile
	starts []int
	refs   []int
}

// Tile returns the tile the list was built for.
func (l *List) Tile() *particles.Tile { return l.tile }

// Len returns the number of Real particles with lists.
func (l *List) Len() int { return len(l.starts) - 1 }

// Neighbors returns the references of the neighbors of Real particle i. The
// result must not be modified.
func (l *List) Neighbors(i int) []int {
	return l.refs[l.starts[i]:l.starts[i+1]]
}

// Pairs returns the total number of (particle, neighbor) pairs.
func (l *List) Pairs() int { return len(l.refs) }

// Build creates the neighbor lists of every Real particle in t. idx is
// rebuilt first if t changed since it was last built. For each Real particle
// p, candidates are taken from p's bin and the adjacent bins in z-major
// order with x varying fastest, and in store order within each bin. p itself
// is skipped.
func Build(t *particles.Tile, idx *cells.Index, pred Predicate) *List {
	idx.Update(t)

	nReal := t.NReal()
	lists := make([][]int, nReal)
	span := idx.Span()

	thread.ParallelFor(nReal, func(i int) {
		p := newView(t, i)
		c := idx.Coords(p.Pos)

		var lo, hi [3]int
		for k := 0; k < 3; k++ {
			lo[k], hi[k] = c[k]-1, c[k]+1
			if lo[k] < 0 {
				lo[k] = 0
			}
			if hi[k] >= span[k] {
				hi[k] = span[k] - 1
			}
		}

		out := []int{}
		for z := lo[2]; z <= hi[2]; z++ {
			for y := lo[1]; y <= hi[1]; y++ {
				for x := lo[0]; x <= hi[0]; x++ {
					bin := particles.IndexVecToIndex(span, [3]int{x, y, z})
					for _, j := range idx.ParticlesInCell(bin) {
						if j == i {
							continue
						}
						q := newView(t, j)
						if pred(&p, &q) {
							out = append(out, j)
						}
					}
				}
			}
		}
		lists[i] = out
	})

	l := &List{tile: t, starts: make([]int, nReal+1)}
	for i := range lists {
		l.starts[i+1] = l.starts[i] + len(lists[i])
	}
	l.refs = make([]int, 0, l.starts[nReal])
	for i := range lists {
		l.refs = append(l.refs, lists[i]...)
	}
	return l
}
