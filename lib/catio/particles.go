package catio

import "fmt"

var axisNames = []string{"x", "y", "z"}

// ReadParticles reads the positions and IDs of a catalog. Only the first dim
// of the "x", "y" and "z" columns are read, and the remaining coordinates
// are zero. If the config has no "id" column, particles are numbered by line.
func (r *Reader) ReadParticles(dim int) (pos [][3]float64, id []uint64, err error) {
	if dim < 1 || dim > 3 {
		return nil, nil, fmt.Errorf("Catalogs can be read in 1 to 3 "+
			"dimensions, not %d.", dim)
	}

	x, err := r.ReadFloat64s(axisNames[:dim])
	if err != nil {
		return nil, nil, err
	}
	pos = make([][3]float64, r.Len())
	for k := 0; k < dim; k++ {
		for i := range pos {
			pos[i][k] = x[k][i]
		}
	}

	if _, ok := r.config.ColumnNames["id"]; !ok {
		id = make([]uint64, r.Len())
		for i := range id {
			id[i] = uint64(i)
		}
		return pos, id, nil
	}

	ids, err := r.ReadUint64s([]string{"id"})
	if err != nil {
		return nil, nil, err
	}
	return pos, ids[0], nil
}
