// Package thread contains the parallel-for runtime used for per-tile and
// per-particle work within an execution unit.
package thread

import (
	"fmt"
	"runtime"

	"github.com/dgravesa/go-parallel/parallel"
)

var threads = runtime.GOMAXPROCS(0)

// SetThreads sets the number of goroutines used by ParallelFor. n = -1 uses
// every core.
func SetThreads(n int) error {
	if n == -1 {
		n = runtime.NumCPU()
	}
	if n <= 0 {
		return fmt.Errorf("%d threads requested, but at least one is "+
			"needed. Set Threads = -1 to use every core.", n)
	} else if n > runtime.NumCPU() {
		return fmt.Errorf("%d threads requested, but your system only has "+
			"%d cores. If you want to use the maximum number of threads, set "+
			"Threads = -1.", n, runtime.NumCPU())
	}

	runtime.GOMAXPROCS(n)
	threads = n
	return nil
}

// Threads returns the number of goroutines used by ParallelFor.
func Threads() int { return threads }

// ParallelFor calls body(i) for every i in [0, n). Calls may run
// concurrently and in any order, so body must only write to state owned by
// index i.
func ParallelFor(n int, body func(i int)) {
	if n <= 0 {
		return
	} else if threads == 1 || n == 1 {
		for i := 0; i < n; i++ {
			body(i)
		}
		return
	}
	parallel.WithNumGoroutines(threads).For(n, func(i, _ int) { body(i) })
}
