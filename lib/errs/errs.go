/*
package errs contains the error types reported by the neighbor-finding
library and simple functions for reporting fatal errors from the command line
tools.

Errors which a caller can reasonably inspect are typed, so they can be matched
with errors.As. Fatal conditions that abort a run are reported through External
and Internal.
*/
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrStalePlan is returned by incremental ghost updates when the set of
	// Real particles changed (insertion, removal, migration) since the last
	// full ghost exchange, or when no full exchange has happened yet.
	ErrStalePlan = errors.New(
		"ghost plan is stale: a full ghost exchange is required",
	)
	// ErrGhostWidth is returned in debug mode when the ghost width is smaller
	// than the interaction radius. Neighbor lists built from such a setup are
	// silently incomplete.
	ErrGhostWidth = errors.New("ghost width is smaller than interaction radius")
)

// OutOfDomainError is returned when a position maps to no tile after periodic
// normalization.
type OutOfDomainError struct {
	Pos  [3]float64
	Axis int
}

func (e *OutOfDomainError) Error() string {
	return fmt.Sprintf("position %v lies outside the domain along axis %d",
		e.Pos, e.Axis)
}

// InvalidTileError is returned when an operation addresses a tile which the
// calling execution unit does not own. Owner is -1 if the tile does not exist.
type InvalidTileError struct {
	Tile, Unit, Owner int
}

func (e *InvalidTileError) Error() string {
	if e.Owner < 0 {
		return fmt.Sprintf("unit %d addressed tile %d, which does not exist",
			e.Unit, e.Tile)
	}
	return fmt.Sprintf("unit %d addressed tile %d, which is owned by unit %d",
		e.Unit, e.Tile, e.Owner)
}

// StaleOwnershipError is returned when particle data is delivered to a unit
// that does not own the destination tile.
type StaleOwnershipError struct {
	Tile, Unit, Owner int
}

func (e *StaleOwnershipError) Error() string {
	return fmt.Sprintf("unit %d received particles for tile %d, but that "+
		"tile is owned by unit %d", e.Unit, e.Tile, e.Owner)
}

// BoundaryCrossingError is reported by the debug checks of incremental ghost
// updates when a Real particle left its tile or moved further than the ghost
// width since the last full exchange.
type BoundaryCrossingError struct {
	Tile, Index int
	ID          uint64
	// Displacement is the distance moved since the last full exchange in
	// units of cells. It is zero when the particle left its tile.
	Displacement float64
}

func (e *BoundaryCrossingError) Error() string {
	if e.Displacement > 0 {
		return fmt.Sprintf("particle %d (tile %d, index %d) moved %g cells "+
			"since the last full ghost exchange, more than the ghost width",
			e.ID, e.Tile, e.Index, e.Displacement)
	}
	return fmt.Sprintf("particle %d (tile %d, index %d) left its tile since "+
		"the last full ghost exchange", e.ID, e.Tile, e.Index)
}

// Unwrap returns ErrStalePlan: after a crossing, a full exchange is needed.
func (e *BoundaryCrossingError) Unwrap() error { return ErrStalePlan }
