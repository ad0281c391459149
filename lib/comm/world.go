package comm

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"
)

// World is a set of execution units running as goroutines in one process.
type World struct {
	n int

	mtx     sync.Mutex
	cond    *sync.Cond
	arrived int
	gen     uint64
	aborted bool

	// slots[src][dst] holds the message from src to dst during an
	// Alltoallv.
	slots [][][]byte
}

// NewWorld creates a World with n units.
func NewWorld(n int) (*World, error) {
	if n <= 0 {
		return nil, fmt.Errorf("A World needs at least one unit, got %d.", n)
	}
	w := &World{n: n, slots: make([][][]byte, n)}
	w.cond = sync.NewCond(&w.mtx)
	return w, nil
}

// Size returns the number of units in the world.
func (w *World) Size() int { return w.n }

// Run calls fn once per unit, each in its own goroutine, and waits for all of
// them to return. If any unit returns an error or panics, the world is
// aborted and every unit blocked in a collective gets ErrAborted. Run
// returns the failing unit's error, preferring the lowest rank.
func (w *World) Run(fn func(c Comm) error) error {
	errs := make([]error, w.n)
	wg := sync.WaitGroup{}
	wg.Add(w.n)

	for rank := 0; rank < w.n; rank++ {
		go func(rank int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logrus.WithFields(logrus.Fields{
						"unit": rank, "stack": string(debug.Stack()),
					}).Errorf("Unit panicked: %v", r)
					errs[rank] = fmt.Errorf("%w: %v", ErrPanic, r)
					w.abort()
				}
			}()

			if err := fn(&unit{w, rank}); err != nil {
				errs[rank] = err
				w.abort()
			}
		}(rank)
	}
	wg.Wait()

	var aborted error
	for rank, err := range errs {
		if err == nil {
			continue
		} else if errors.Is(err, ErrAborted) {
			if aborted == nil {
				aborted = err
			}
			continue
		}
		return fmt.Errorf("unit %d: %w", rank, err)
	}
	return aborted
}

// Run creates a World with n units and runs fn on it.
func Run(n int, fn func(c Comm) error) error {
	w, err := NewWorld(n)
	if err != nil {
		return err
	}
	return w.Run(fn)
}

func (w *World) abort() {
	w.mtx.Lock()
	w.aborted = true
	w.cond.Broadcast()
	w.mtx.Unlock()
}

// wait blocks until all n units have called it.
func (w *World) wait() error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if w.aborted {
		return ErrAborted
	}

	gen := w.gen
	w.arrived++
	if w.arrived == w.n {
		w.arrived = 0
		w.gen++
		w.cond.Broadcast()
		return nil
	}

	for gen == w.gen && !w.aborted {
		w.cond.Wait()
	}
	if gen == w.gen {
		return ErrAborted
	}
	return nil
}

// unit implements Comm for one rank of a World.
type unit struct {
	w    *World
	rank int
}

func (u *unit) Rank() int { return u.rank }
func (u *unit) Size() int { return u.w.n }

func (u *unit) Barrier() error { return u.w.wait() }

func (u *unit) Alltoallv(send [][]byte) ([][]byte, error) {
	if len(send) != u.w.n {
		return nil, fmt.Errorf("Alltoallv given %d messages, but the world "+
			"has %d units.", len(send), u.w.n)
	}

	// Only this unit writes this row, and nobody reads it until everyone has
	// passed the first barrier.
	u.w.slots[u.rank] = send
	if err := u.w.wait(); err != nil {
		return nil, err
	}

	recv := make([][]byte, u.w.n)
	for src := range recv {
		recv[src] = u.w.slots[src][u.rank]
	}

	// Nobody may start the next exchange until everyone has read this one.
	if err := u.w.wait(); err != nil {
		return nil, err
	}
	return recv, nil
}
