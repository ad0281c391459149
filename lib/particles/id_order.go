package particles

// ZMajorLattice assigns IDs to the points of a lattice in z-major order,
// where the z index varies fastest. IDs start at one so that zero is never a
// valid ID.
type ZMajorLattice struct {
	span [3]int
}

// NewZMajorLattice returns a z-major lattice with the given span.
func NewZMajorLattice(span [3]int) *ZMajorLattice {
	return &ZMajorLattice{span}
}

// IndexToID converts a 3-index in the lattice to its ID.
func (g *ZMajorLattice) IndexToID(i [3]int) uint64 {
	return 1 + uint64(i[2]+i[1]*g.span[2]+i[0]*g.span[1]*g.span[2])
}

// IndexVecToIndex converts a 3-index into a flat index within a grid with the
// given span. The x index varies fastest.
func IndexVecToIndex(span, vec [3]int) int {
	return vec[0] + vec[1]*span[0] + vec[2]*span[0]*span[1]
}

// IndexToIndexVec is the inverse of IndexVecToIndex.
func IndexToIndexVec(span [3]int, idx int) [3]int {
	return [3]int{
		idx % span[0],
		(idx / span[0]) % span[1],
		idx / (span[0] * span[1]),
	}
}
