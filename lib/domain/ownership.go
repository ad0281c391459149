package domain

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/phil-mansfield/neighbors/lib/format"
)

// Ownership assigns every tile of a PartitionSet to exactly one execution
// unit. It is immutable after construction.
type Ownership struct {
	units int
	owner []int
	tiles [][]int
}

// NewOwnership creates an Ownership from an explicit assignment, where
// owner[t] is the unit which owns tile t.
func NewOwnership(owner []int, units int) (*Ownership, error) {
	if units <= 0 {
		return nil, fmt.Errorf("Ownership needs at least one unit, got %d.",
			units)
	}

	own := &Ownership{
		units: units,
		owner: append([]int{}, owner...),
		tiles: make([][]int, units),
	}
	for t, u := range owner {
		if u < 0 || u >= units {
			return nil, fmt.Errorf("Tile %d is assigned to unit %d, but "+
				"there are only %d units.", t, u, units)
		}
		own.tiles[u] = append(own.tiles[u], t)
	}
	return own, nil
}

// RoundRobin deals nTiles tiles out to units in order.
func RoundRobin(nTiles, units int) (*Ownership, error) {
	owner := make([]int, nTiles)
	for t := range owner {
		if units > 0 {
			owner[t] = t % units
		}
	}
	return NewOwnership(owner, units)
}

// FromSequences creates an Ownership from one sequence format string per unit
// (e.g. "0..3 + 6", see lib/format). Every tile must be listed exactly once.
func FromSequences(seqs []string, nTiles int) (*Ownership, error) {
	owner := make([]int, nTiles)
	for t := range owner {
		owner[t] = -1
	}

	for u, seq := range seqs {
		if seq == "" {
			continue
		}
		tiles, err := format.ExpandTileFormat(seq, nTiles)
		if err != nil {
			return nil, fmt.Errorf("Unit %d: %w", u, err)
		}
		for _, t := range tiles {
			if owner[t] != -1 {
				return nil, fmt.Errorf("Tile %d is assigned to both unit %d "+
					"and unit %d.", t, owner[t], u)
			}
			owner[t] = u
		}
	}

	for t := range owner {
		if owner[t] == -1 {
			return nil, fmt.Errorf("Tile %d is not assigned to any unit.", t)
		}
	}

	return NewOwnership(owner, len(seqs))
}

// ownershipFile is the layout of a YAML ownership file:
//
//	units: 2
//	assignment:
//	  0: "0..3"
//	  1: "4..7"
type ownershipFile struct {
	Units      int            `yaml:"units"`
	Assignment map[int]string `yaml:"assignment"`
}

// ParseOwnershipYAML reads an Ownership from the text of a YAML ownership
// file. If units is not given in the file, it is one more than the largest
// unit in the assignment.
func ParseOwnershipYAML(text []byte, nTiles int) (*Ownership, error) {
	f := ownershipFile{}
	if err := yaml.Unmarshal(text, &f); err != nil {
		return nil, fmt.Errorf("Could not parse ownership file: %w", err)
	}

	units := f.Units
	keys := make([]int, 0, len(f.Assignment))
	for u := range f.Assignment {
		if u < 0 {
			return nil, fmt.Errorf("Ownership file assigns tiles to unit %d.",
				u)
		}
		keys = append(keys, u)
		if f.Units == 0 && u+1 > units {
			units = u + 1
		}
	}
	sort.Ints(keys)
	if len(keys) > 0 && keys[len(keys)-1] >= units {
		return nil, fmt.Errorf("Ownership file assigns tiles to unit %d, "+
			"but only has %d units.", keys[len(keys)-1], units)
	}

	seqs := make([]string, units)
	for _, u := range keys {
		seqs[u] = f.Assignment[u]
	}
	return FromSequences(seqs, nTiles)
}

// ReadOwnershipYAML reads an Ownership from a YAML file.
func ReadOwnershipYAML(fname string, nTiles int) (*Ownership, error) {
	text, err := os.ReadFile(fname)
	if err != nil {
		return nil, err
	}
	return ParseOwnershipYAML(text, nTiles)
}

// Units returns the number of execution units.
func (own *Ownership) Units() int { return own.units }

// Len returns the number of tiles.
func (own *Ownership) Len() int { return len(own.owner) }

// OwnerOf returns the unit which owns a tile, or -1 if the tile doesn't exist.
func (own *Ownership) OwnerOf(tile int) int {
	if tile < 0 || tile >= len(own.owner) {
		return -1
	}
	return own.owner[tile]
}

// TilesOwnedBy returns the tiles owned by a unit in increasing order. The
// result must not be modified.
func (own *Ownership) TilesOwnedBy(unit int) []int {
	if unit < 0 || unit >= own.units {
		return nil
	}
	return own.tiles[unit]
}
