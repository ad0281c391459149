package particles

import (
	"fmt"
)

// GhostRef is the back-reference carried by a Ghost particle. SrcTile and
// SrcIndex locate the Real particle it was copied from, and Shift is the
// periodic image it represents in cells. The Ghost's position is the source
// position translated by Shift.
type GhostRef struct {
	SrcTile, SrcIndex int
	SrcID             uint64
	Shift             [3]int
}

// Tile holds the particles of a single tile. Real particles are stored first
// and Ghost particles after them, so a particle reference i is Real when
// i < NReal() and Ghost i - NReal() otherwise. Fields have one element per
// particle, Real and Ghost alike.
type Tile struct {
	index  int
	schema Schema

	pos    [][3]float64
	id     []uint64
	fields Particles
	refs   []GhostRef
	nReal  int

	version, realVersion, ghostGen uint64
}

// NewTile creates an empty tile with the given index and field schema.
func NewTile(index int, schema Schema) (*Tile, error) {
	if err := schema.Check(); err != nil {
		return nil, err
	}
	t := &Tile{index: index, schema: schema, fields: Particles{}}
	for _, spec := range schema {
		f, _ := NewField(spec, 0)
		t.fields[spec.Name] = f
	}
	return t, nil
}

// Index returns the tile's index in the PartitionSet.
func (t *Tile) Index() int { return t.index }

// Schema returns the tile's field schema.
func (t *Tile) Schema() Schema { return t.schema }

// Len returns the number of Real and Ghost particles.
func (t *Tile) Len() int { return len(t.pos) }

// NReal returns the number of Real particles.
func (t *Tile) NReal() int { return t.nReal }

// NGhost returns the number of Ghost particles.
func (t *Tile) NGhost() int { return len(t.pos) - t.nReal }

// IsGhost returns true if reference i is a Ghost particle.
func (t *Tile) IsGhost(i int) bool { return i >= t.nReal }

// Version changes every time the tile's particles are modified in any way,
// including position updates.
func (t *Tile) Version() uint64 { return t.version }

// RealVersion changes every time Real particles are added or removed.
func (t *Tile) RealVersion() uint64 { return t.realVersion }

// GhostGeneration changes every time the tile's Ghost particles are
// discarded or a Real particle is added.
func (t *Tile) GhostGeneration() uint64 { return t.ghostGen }

// Pos returns the position of particle i. Ghost positions are shifted into
// the frame of this tile.
func (t *Tile) Pos(i int) [3]float64 { return t.pos[i] }

// Positions returns the positions of all particles. The result must not be
// modified; use SetPos.
func (t *Tile) Positions() [][3]float64 { return t.pos }

// SetPos sets the position of particle i.
func (t *Tile) SetPos(i int, x [3]float64) {
	t.pos[i] = x
	t.version++
}

// ID returns the id of particle i.
func (t *Tile) ID(i int) uint64 { return t.id[i] }

// Ref returns the back-reference of Ghost particle i. i is a particle
// reference, not an index into the Ghost subset.
func (t *Tile) Ref(i int) GhostRef { return t.refs[i-t.nReal] }

// Field returns the named field, or nil if it doesn't exist.
func (t *Tile) Field(name string) Field { return t.fields[name] }

// Uint64 returns the data of a "u64" field. Elements may be written.
func (t *Tile) Uint64(name string) ([]uint64, error) {
	x, ok := t.fields[name].(*Uint64)
	if !ok {
		return nil, fieldTypeError(name, "u64", t.fields[name])
	}
	return x.data, nil
}

// Float64 returns the data of an "f64" field. Elements may be written.
func (t *Tile) Float64(name string) ([]float64, error) {
	x, ok := t.fields[name].(*Float64)
	if !ok {
		return nil, fieldTypeError(name, "f64", t.fields[name])
	}
	return x.data, nil
}

// Vec64 returns the data of a "v64" field. Elements may be written.
func (t *Tile) Vec64(name string) ([][3]float64, error) {
	x, ok := t.fields[name].(*Vec64)
	if !ok {
		return nil, fieldTypeError(name, "v64", t.fields[name])
	}
	return x.data, nil
}

func fieldTypeError(name, want string, f Field) error {
	if f == nil {
		return fmt.Errorf("Tile has no field named '%s'.", name)
	}
	return fmt.Errorf("Field '%s' has type '%s', not '%s'.",
		name, f.Type(), want)
}

// AddReal appends a Real particle with zeroed fields and returns its
// reference. Any Ghost particles are discarded first, since they belong to
// an exchange that no longer matches the tile's Real particles.
func (t *Tile) AddReal(x [3]float64, id uint64) int {
	if t.NGhost() > 0 {
		t.RemoveGhosts()
	}
	t.pos = append(t.pos, x)
	t.id = append(t.id, id)
	for _, f := range t.fields {
		f.Grow(1)
	}
	t.nReal++
	t.version++
	t.realVersion++
	t.ghostGen++
	return t.nReal - 1
}

// AddGhost appends a Ghost particle and returns its reference. x is the
// already-shifted position. Field values are decoded from the front of buf
// in schema order and the rest of buf is returned. A nil buf leaves the
// fields zeroed.
func (t *Tile) AddGhost(x [3]float64, id uint64, ref GhostRef,
	buf []byte) ([]byte, error) {
	t.pos = append(t.pos, x)
	t.id = append(t.id, id)
	t.refs = append(t.refs, ref)
	t.version++

	if buf == nil {
		for _, f := range t.fields {
			f.Grow(1)
		}
		return nil, nil
	}
	return t.decodeFields(buf)
}

// AddRealEncoded appends a Real particle whose fields are encoded at the
// front of buf and returns the rest of buf.
func (t *Tile) AddRealEncoded(x [3]float64, id uint64,
	buf []byte) ([]byte, error) {
	if t.NGhost() > 0 {
		t.RemoveGhosts()
	}
	t.pos = append(t.pos, x)
	t.id = append(t.id, id)
	t.nReal++
	t.version++
	t.realVersion++
	t.ghostGen++
	return t.decodeFields(buf)
}

func (t *Tile) decodeFields(buf []byte) ([]byte, error) {
	var err error
	for _, spec := range t.schema {
		buf, err = t.fields[spec.Name].DecodeAppend(buf)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// AppendFields appends the encoding of particle i's fields to buf in schema
// order.
func (t *Tile) AppendFields(buf []byte, i int) []byte {
	for _, spec := range t.schema {
		buf = t.fields[spec.Name].AppendBytes(buf, i)
	}
	return buf
}

// RemoveGhosts discards every Ghost particle.
func (t *Tile) RemoveGhosts() {
	t.pos = t.pos[:t.nReal]
	t.id = t.id[:t.nReal]
	t.refs = t.refs[:0]
	for _, f := range t.fields {
		f.Truncate(t.nReal)
	}
	t.version++
	t.ghostGen++
}

// Remove removes Real particle i, preserving the order of the remaining
// particles. Ghosts are discarded.
func (t *Tile) Remove(i int) error {
	if i < 0 || i >= t.nReal {
		return fmt.Errorf("Cannot remove particle %d from tile %d, which "+
			"has %d Real particles.", i, t.index, t.nReal)
	}
	t.RemoveGhosts()
	t.pos = append(t.pos[:i], t.pos[i+1:]...)
	t.id = append(t.id[:i], t.id[i+1:]...)
	for _, f := range t.fields {
		f.Remove(i)
	}
	t.nReal--
	t.version++
	t.realVersion++
	return nil
}

// Compact keeps only the Real particles for which keep[i] is true,
// preserving their order. Ghosts are discarded.
func (t *Tile) Compact(keep []bool) error {
	if len(keep) != t.nReal {
		return fmt.Errorf("Tile %d has %d Real particles, but %d keep flags "+
			"were given.", t.index, t.nReal, len(keep))
	}
	t.RemoveGhosts()

	from, to := []int{}, []int{}
	for i := range keep {
		if keep[i] {
			to = append(to, len(from))
			from = append(from, i)
		}
	}
	if len(from) == t.nReal {
		return nil
	}

	dest := Particles{}
	for _, f := range t.fields {
		f.CreateDestination(dest, len(from))
		if err := f.Transfer(dest, from, to); err != nil {
			return err
		}
	}
	t.fields = dest

	for j, i := range from {
		t.pos[j], t.id[j] = t.pos[i], t.id[i]
	}
	t.pos, t.id = t.pos[:len(from)], t.id[:len(from)]
	t.nReal = len(from)
	t.version++
	t.realVersion++
	return nil
}

// ForEachReal calls fn on every Real particle in insertion order.
func (t *Tile) ForEachReal(fn func(i int, x [3]float64, id uint64)) {
	for i := 0; i < t.nReal; i++ {
		fn(i, t.pos[i], t.id[i])
	}
}

// ForEachAll calls fn on every Real particle and then every Ghost particle,
// in insertion order.
func (t *Tile) ForEachAll(fn func(i int, x [3]float64, id uint64)) {
	for i := range t.pos {
		fn(i, t.pos[i], t.id[i])
	}
}
