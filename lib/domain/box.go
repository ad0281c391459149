package domain

import (
	"fmt"
)

// Box is a closed, axis-aligned box of cells, [Lo, Hi] along each axis.
type Box struct {
	Lo, Hi [3]int
}

// NewBox returns the box [lo, hi], or an error if lo > hi along any axis.
func NewBox(lo, hi [3]int) (Box, error) {
	for i := 0; i < 3; i++ {
		if lo[i] > hi[i] {
			return Box{}, fmt.Errorf("Box has lo = %d > hi = %d along axis %d.",
				lo[i], hi[i], i)
		}
	}
	return Box{lo, hi}, nil
}

func (b Box) String() string {
	return fmt.Sprintf("[%v, %v]", b.Lo, b.Hi)
}

// Width returns the number of cells along each axis.
func (b Box) Width() [3]int {
	return [3]int{b.Hi[0] - b.Lo[0] + 1, b.Hi[1] - b.Lo[1] + 1,
		b.Hi[2] - b.Lo[2] + 1}
}

// Volume returns the number of cells in the box.
func (b Box) Volume() int {
	w := b.Width()
	return w[0] * w[1] * w[2]
}

// Contains returns true if the cell is inside the box.
func (b Box) Contains(c [3]int) bool {
	return b.Lo[0] <= c[0] && c[0] <= b.Hi[0] &&
		b.Lo[1] <= c[1] && c[1] <= b.Hi[1] &&
		b.Lo[2] <= c[2] && c[2] <= b.Hi[2]
}

// Intersect returns the overlap of two boxes and true, or false if they don't
// overlap.
func (b Box) Intersect(b2 Box) (Box, bool) {
	out := Box{}
	for i := 0; i < 3; i++ {
		out.Lo[i], out.Hi[i] = b.Lo[i], b.Hi[i]
		if b2.Lo[i] > out.Lo[i] {
			out.Lo[i] = b2.Lo[i]
		}
		if b2.Hi[i] < out.Hi[i] {
			out.Hi[i] = b2.Hi[i]
		}
		if out.Lo[i] > out.Hi[i] {
			return Box{}, false
		}
	}
	return out, true
}

// Grow returns the box expanded by w cells in both directions along the
// first dim axes.
func (b Box) Grow(w, dim int) Box {
	for i := 0; i < dim; i++ {
		b.Lo[i] -= w
		b.Hi[i] += w
	}
	return b
}

// Shift returns the box translated by s cells.
func (b Box) Shift(s [3]int) Box {
	for i := 0; i < 3; i++ {
		b.Lo[i] += s[i]
		b.Hi[i] += s[i]
	}
	return b
}
