package particles

import (
	"github.com/phil-mansfield/neighbors/lib/domain"
	"github.com/phil-mansfield/neighbors/lib/errs"
)

// Store holds the tiles owned by a single execution unit. A Store is only
// ever used by its own unit and is not safe for concurrent mutation.
type Store struct {
	unit   int
	own    *domain.Ownership
	schema Schema
	tiles  map[int]*Tile
	order  []int
}

// NewStore creates an empty Store for every tile owned by unit.
func NewStore(unit int, own *domain.Ownership, schema Schema) (*Store, error) {
	s := &Store{
		unit: unit, own: own, schema: schema, tiles: map[int]*Tile{},
		order: own.TilesOwnedBy(unit),
	}
	for _, idx := range s.order {
		t, err := NewTile(idx, schema)
		if err != nil {
			return nil, err
		}
		s.tiles[idx] = t
	}
	return s, nil
}

// Unit returns the execution unit which owns the Store.
func (s *Store) Unit() int { return s.unit }

// Ownership returns the Ownership the Store was created with.
func (s *Store) Ownership() *domain.Ownership { return s.own }

// Schema returns the field schema shared by all tiles.
func (s *Store) Schema() Schema { return s.schema }

// Tiles returns the indices of the unit's tiles in increasing order. The
// result must not be modified.
func (s *Store) Tiles() []int { return s.order }

// Tile returns the given tile, or an *errs.InvalidTileError if the unit
// doesn't own it.
func (s *Store) Tile(tile int) (*Tile, error) {
	t, ok := s.tiles[tile]
	if !ok {
		return nil, &errs.InvalidTileError{
			Tile: tile, Unit: s.unit, Owner: s.own.OwnerOf(tile),
		}
	}
	return t, nil
}

// Insert appends a Real particle to a tile and returns its reference. Its
// fields start zeroed. The tile's Ghost particles are discarded.
func (s *Store) Insert(tile int, x [3]float64, id uint64) (int, error) {
	t, err := s.Tile(tile)
	if err != nil {
		return -1, err
	}
	return t.AddReal(x, id), nil
}

// Remove removes Real particle i from a tile, preserving order.
func (s *Store) Remove(tile, i int) error {
	t, err := s.Tile(tile)
	if err != nil {
		return err
	}
	return t.Remove(i)
}

// RemoveGhosts discards all Ghost particles in a tile.
func (s *Store) RemoveGhosts(tile int) error {
	t, err := s.Tile(tile)
	if err != nil {
		return err
	}
	t.RemoveGhosts()
	return nil
}

// ForEachReal calls fn on every Real particle in a tile.
func (s *Store) ForEachReal(
	tile int, fn func(i int, x [3]float64, id uint64),
) error {
	t, err := s.Tile(tile)
	if err != nil {
		return err
	}
	t.ForEachReal(fn)
	return nil
}

// ForEachAll calls fn on every Real and then every Ghost particle in a tile.
func (s *Store) ForEachAll(
	tile int, fn func(i int, x [3]float64, id uint64),
) error {
	t, err := s.Tile(tile)
	if err != nil {
		return err
	}
	t.ForEachAll(fn)
	return nil
}

// NumReal returns the number of Real particles in all of the unit's tiles.
func (s *Store) NumReal() int {
	n := 0
	for _, t := range s.tiles {
		n += t.NReal()
	}
	return n
}

// NumGhost returns the number of Ghost particles in all of the unit's tiles.
func (s *Store) NumGhost() int {
	n := 0
	for _, t := range s.tiles {
		n += t.NGhost()
	}
	return n
}
