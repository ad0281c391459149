package cmd

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/phil-mansfield/neighbors/lib/catio"
	"github.com/phil-mansfield/neighbors/lib/comm"
	"github.com/phil-mansfield/neighbors/lib/config"
	"github.com/phil-mansfield/neighbors/lib/container"
	"github.com/phil-mansfield/neighbors/lib/domain"
	"github.com/phil-mansfield/neighbors/lib/neighbor"
	"github.com/phil-mansfield/neighbors/lib/thread"
)

// runCmd executes the exchange and neighbor list sequence
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fill ghosts, build neighbor lists, and move particles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		args, err := loadArgs(configFile, overrides(cmd))
		if err != nil {
			return err
		}
		if err := checkArgs(args, config.WarnOnError); err != nil {
			return err
		}

		rep, err := Run(args)
		if err != nil {
			return err
		}
		if args.ReportFile != "" {
			if err := rep.Write(args.ReportFile); err != nil {
				return err
			}
		}
		if bad := rep.Mismatched(); bad > 0 {
			return fmt.Errorf("%d ghost consistency check(s) failed. See "+
				"the log for details.", bad)
		}
		return nil
	},
}

// setup builds the tiles and tile assignment and reads the initial
// catalog, if there is one. pos and id are nil for lattice runs.
type setup struct {
	args *config.Args
	ps   *domain.PartitionSet
	pos  [][3]float64
	id   []uint64
}

func newSetup(args *config.Args) (*setup, error) {
	if err := thread.SetThreads(args.Threads); err != nil {
		return nil, err
	}
	ps, err := args.PartitionSet()
	if err != nil {
		return nil, err
	}

	s := &setup{args: args, ps: ps}
	if args.InputFile != "" {
		rd, err := catio.TextFile(args.InputFile)
		if err != nil {
			return nil, err
		}
		if s.pos, s.id, err = rd.ReadParticles(args.Dim); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// initParticles fills a unit's container and returns the number of catalog
// particles which were outside the domain.
func (s *setup) initParticles(pc *container.Container) (outside int, err error) {
	if s.pos == nil {
		return 0, pc.InitParticles(s.args.Lattice())
	}
	_, outside, err = pc.InsertParticles(s.pos, s.id)
	return outside, err
}

// Run runs the full sequence on args.Units units: initialize, fill ghosts,
// update them, build neighbor lists, and then alternate between moving
// particles and refreshing ghosts. Ghosts are checked against their sources
// after every exchange.
func Run(args *config.Args) (*Report, error) {
	s, err := newSetup(args)
	if err != nil {
		return nil, err
	}
	own, err := args.Ownership(s.ps.Len())
	if err != nil {
		return nil, err
	}

	rep := &Report{Units: args.Units, Tiles: s.ps.Len()}
	start := time.Now()
	err = comm.Run(args.Units, func(c comm.Comm) error {
		pc, err := container.New(c, s.ps, own, args.Container())
		if err != nil {
			return err
		}
		r := &unitRun{pc: pc, c: c, args: args}
		if c.Rank() == 0 {
			r.rep = rep
		}
		return r.run(s)
	})
	if err != nil {
		return nil, err
	}
	rep.Seconds = time.Since(start).Seconds()
	return rep, nil
}

// unitRun is one unit's part of Run. Only rank 0 has a report.
type unitRun struct {
	pc   *container.Container
	c    comm.Comm
	args *config.Args
	rep  *Report
}

func (r *unitRun) root() bool { return r.rep != nil }

func (r *unitRun) run(s *setup) error {
	outside, err := s.initParticles(r.pc)
	if err != nil {
		return err
	}
	if err := r.recordLoad(outside); err != nil {
		return err
	}

	if err := r.check("initial"); err != nil {
		return err
	}
	if err := r.pc.FillNeighbors(); err != nil {
		return err
	}
	if err := r.check("fill"); err != nil {
		return err
	}
	if err := r.pc.UpdateNeighbors(); err != nil {
		return err
	}
	if err := r.check("update"); err != nil {
		return err
	}

	if err := r.pc.ResetTestID(); err != nil {
		return err
	}
	if err := r.checkTestID(); err != nil {
		return err
	}
	if err := r.pc.UpdateNeighbors(); err != nil {
		return err
	}
	if err := r.check("second update"); err != nil {
		return err
	}

	pred := neighbor.WithinDistance(r.args.Radius)
	r.pc.BuildNeighborList(pred)
	if err := r.recordStep(0, false); err != nil {
		return err
	}

	for step := 1; step <= r.args.Steps; step++ {
		r.pc.MoveParticles(r.args.Dx)
		full, err := r.pc.Refresh()
		if err != nil {
			return err
		}
		if full {
			r.pc.BuildNeighborList(pred)
		}
		if err := r.check(fmt.Sprintf("step %d", step)); err != nil {
			return err
		}
		if err := r.recordStep(step, full); err != nil {
			return err
		}
	}
	return nil
}

// check counts Ghosts which don't match their sources. Collective.
func (r *unitRun) check(stage string) error {
	bad, err := r.pc.CheckNeighbors()
	if err != nil {
		return err
	}
	r.recordCheck(stage, bad)
	return nil
}

// checkTestID counts Ghosts whose test_id doesn't match their id.
// Collective.
func (r *unitRun) checkTestID() error {
	bad, err := r.pc.CheckTestID()
	if err != nil {
		return err
	}
	n := []int64{int64(bad)}
	if err := comm.AllreduceInt64(r.c, n, comm.Sum); err != nil {
		return err
	}
	r.recordCheck("test id", n[0])
	return nil
}

func (r *unitRun) recordCheck(stage string, bad int64) {
	if !r.root() {
		return
	}
	r.rep.Checks = append(r.rep.Checks, CheckReport{Stage: stage, Mismatched: bad})
	log := logrus.WithFields(logrus.Fields{"stage": stage, "mismatched": bad})
	if bad > 0 {
		log.Warn("Ghost check failed.")
	} else {
		log.Info("Ghost check passed.")
	}
}

// recordLoad records the number of Real particles on each unit. Collective.
func (r *unitRun) recordLoad(outside int) error {
	load := make([]int64, r.c.Size())
	load[r.c.Rank()] = int64(r.pc.Store().NumReal())
	if err := comm.AllreduceInt64(r.c, load, comm.Sum); err != nil {
		return err
	}
	if !r.root() {
		return nil
	}

	x := make([]float64, len(load))
	for i := range load {
		x[i] = float64(load[i])
		r.rep.Particles += load[i]
	}
	r.rep.Outside = int64(outside)
	if len(x) > 1 {
		r.rep.LoadMean, r.rep.LoadStd = stat.MeanStdDev(x, nil)
	} else {
		r.rep.LoadMean = x[0]
	}

	logrus.WithFields(logrus.Fields{
		"particles": r.rep.Particles, "outside": outside,
		"load_mean": r.rep.LoadMean, "load_std": r.rep.LoadStd,
	}).Info("Initialized particles.")
	return nil
}

// recordStep records distances and neighbor counts. Collective.
func (r *unitRun) recordStep(step int, full bool) error {
	min, max, err := r.pc.MinAndMaxDistance()
	if err != nil {
		return err
	}
	stats, err := r.pc.Stats()
	if err != nil {
		return err
	}
	if !r.root() {
		return nil
	}

	r.rep.Steps = append(r.rep.Steps, StepReport{
		Step: step, Min: min, Max: max, FullExchange: full,
		Ghosts: stats.Ghost, Pairs: stats.Pairs,
		NeighborMean: stats.NeighborMean, NeighborStd: stats.NeighborStd,
	})
	logrus.WithFields(logrus.Fields{
		"step": step, "full_exchange": full, "pairs": stats.Pairs,
		"ghosts": stats.Ghost,
	}).Infof("Min distance = %g, max distance = %g.", min, max)
	return nil
}
