/*
package comm is the communication layer used to move particle data between
execution units. Units are addressed by rank, and all operations are
collective: every unit in a world must call them in the same order.

World runs its units as goroutines in a single process, which is enough to
drive any number of units from tests and from the command line.
*/
package comm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrAborted is returned from collective operations once any unit in the
// world has failed. A failed collective is fatal for the whole world.
var ErrAborted = errors.New("comm: world was aborted by another unit")

// ErrPanic is wrapped by the error returned from Run when a unit panics.
var ErrPanic = errors.New("unit panicked")

// Op is a reduction operation.
type Op int

const (
	Sum Op = iota
	Min
	Max
)

// Comm is one execution unit's handle on its world.
type Comm interface {
	// Rank returns this unit's id, in [0, Size()).
	Rank() int
	// Size returns the number of units in the world.
	Size() int
	// Alltoallv sends send[u] to unit u and returns the messages received
	// from every unit, indexed by sender. len(send) must equal Size(). It
	// does not return until every unit has sent and received. Received
	// messages must not be modified.
	Alltoallv(send [][]byte) ([][]byte, error)
	// Barrier waits until every unit has reached it.
	Barrier() error
}

// AllreduceFloat64 reduces x elementwise across all units and overwrites it
// with the result. Values are combined in rank order, so every unit gets a
// bit-identical result.
func AllreduceFloat64(c Comm, x []float64, op Op) error {
	buf := make([]byte, 0, 8*len(x))
	for i := range x {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(x[i]))
	}

	recv, err := c.Alltoallv(repeat(buf, c.Size()))
	if err != nil {
		return err
	}

	for u := range recv {
		if len(recv[u]) != len(buf) {
			return fmt.Errorf("Unit %d reduced %d values, but unit %d "+
				"reduced %d.", u, len(recv[u])/8, c.Rank(), len(x))
		}
		for i := range x {
			y := math.Float64frombits(binary.LittleEndian.Uint64(recv[u][8*i:]))
			if u == 0 {
				x[i] = y
				continue
			}
			switch op {
			case Sum:
				x[i] += y
			case Min:
				x[i] = math.Min(x[i], y)
			case Max:
				x[i] = math.Max(x[i], y)
			}
		}
	}
	return nil
}

// AllreduceInt64 reduces x elementwise across all units and overwrites it
// with the result.
func AllreduceInt64(c Comm, x []int64, op Op) error {
	buf := make([]byte, 0, 8*len(x))
	for i := range x {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(x[i]))
	}

	recv, err := c.Alltoallv(repeat(buf, c.Size()))
	if err != nil {
		return err
	}

	for u := range recv {
		if len(recv[u]) != len(buf) {
			return fmt.Errorf("Unit %d reduced %d values, but unit %d "+
				"reduced %d.", u, len(recv[u])/8, c.Rank(), len(x))
		}
		for i := range x {
			y := int64(binary.LittleEndian.Uint64(recv[u][8*i:]))
			switch {
			case u == 0:
				x[i] = y
			case op == Sum:
				x[i] += y
			case op == Min && y < x[i]:
				x[i] = y
			case op == Max && y > x[i]:
				x[i] = y
			}
		}
	}
	return nil
}

func repeat(buf []byte, n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = buf
	}
	return out
}
