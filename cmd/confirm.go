package cmd

import (
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"

	"github.com/phil-mansfield/neighbors/lib/comm"
	"github.com/phil-mansfield/neighbors/lib/config"
	"github.com/phil-mansfield/neighbors/lib/container"
	"github.com/phil-mansfield/neighbors/lib/domain"
	"github.com/phil-mansfield/neighbors/lib/neighbor"
	"github.com/phil-mansfield/neighbors/lib/thread"
)

// bruteSample is the largest number of particles whose neighbor lists are
// checked by brute force.
const bruteSample = 512

// confirmCmd compares distributed neighbor lists against a single unit and
// against brute force
var confirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Confirm that neighbor lists don't depend on the number of units",
	RunE: func(cmd *cobra.Command, _ []string) error {
		args, err := loadArgs(configFile, overrides(cmd))
		if err != nil {
			return err
		}
		if err := checkArgs(args, config.CrashOnError); err != nil {
			return err
		}

		conf, err := Confirm(args)
		if err != nil {
			return err
		}
		if conf.Mismatched > 0 || conf.BruteMismatched > 0 {
			return fmt.Errorf("%d of %d neighbor lists differ between %d "+
				"unit(s) and 1 unit, and %d of %d differ from brute force.",
				conf.Mismatched, conf.Particles, args.Units,
				conf.BruteMismatched, conf.BruteChecked)
		}
		fmt.Printf("All %d neighbor lists confirmed.\n", conf.Particles)
		return nil
	},
}

// Confirmation is the result of Confirm.
type Confirmation struct {
	Particles       int
	Mismatched      int
	BruteChecked    int
	BruteMismatched int
}

// snapshot holds every Real particle's position and sorted neighbor IDs.
type snapshot struct {
	pos       map[uint64][3]float64
	neighbors map[uint64][]uint64
}

// Confirm builds neighbor lists with args.Units units and with a single
// unit and compares them by particle ID. A sample of the single unit lists
// is also compared against a brute force search over nearest periodic
// images.
func Confirm(args *config.Args) (*Confirmation, error) {
	s, err := newSetup(args)
	if err != nil {
		return nil, err
	}
	dom := s.ps.Domain()
	for i := 0; i < dom.Dim; i++ {
		if dom.Periodic[i] && dom.Length(i) <= 2*args.Radius {
			return nil, fmt.Errorf("The domain is %g wide along periodic "+
				"axis %d, so particles can see multiple images of one "+
				"another within Radius = %g and lists can't be compared.",
				dom.Length(i), i, args.Radius)
		}
	}

	own, err := args.Ownership(s.ps.Len())
	if err != nil {
		return nil, err
	}
	many, err := s.snapshot(own)
	if err != nil {
		return nil, err
	}
	own1, err := domain.RoundRobin(s.ps.Len(), 1)
	if err != nil {
		return nil, err
	}
	one, err := s.snapshot(own1)
	if err != nil {
		return nil, err
	}

	conf := &Confirmation{Particles: len(one.neighbors)}
	ids := make([]uint64, 0, len(one.neighbors))
	for id := range one.neighbors {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		got, ok := many.neighbors[id]
		if !ok || !slices.Equal(got, one.neighbors[id]) {
			conf.Mismatched++
			logrus.WithField("id", id).Warnf("%d unit(s) found neighbors "+
				"%v, 1 unit found %v.", args.Units, got, one.neighbors[id])
		}
	}

	stride := 1 + len(ids)/bruteSample
	sample := []uint64{}
	for i := 0; i < len(ids); i += stride {
		sample = append(sample, ids[i])
	}
	brute := one.bruteForce(dom, sample, ids, args.Radius)
	conf.BruteChecked = len(sample)
	for i, id := range sample {
		if !slices.Equal(brute[i], one.neighbors[id]) {
			conf.BruteMismatched++
			logrus.WithField("id", id).Warnf("Brute force found neighbors "+
				"%v, 1 unit found %v.", brute[i], one.neighbors[id])
		}
	}

	logrus.WithFields(logrus.Fields{
		"particles": conf.Particles, "mismatched": conf.Mismatched,
		"brute_checked":    conf.BruteChecked,
		"brute_mismatched": conf.BruteMismatched,
	}).Info("Compared neighbor lists.")
	return conf, nil
}

// snapshot initializes particles on the units of own, fills ghosts, and
// builds neighbor lists.
func (s *setup) snapshot(own *domain.Ownership) (*snapshot, error) {
	parts := make([]*snapshot, own.Units())
	err := comm.Run(own.Units(), func(c comm.Comm) error {
		pc, err := container.New(c, s.ps, own, s.args.Container())
		if err != nil {
			return err
		}
		if _, err := s.initParticles(pc); err != nil {
			return err
		}
		if err := pc.FillNeighbors(); err != nil {
			return err
		}
		pc.BuildNeighborList(neighbor.WithinDistance(s.args.Radius))

		snap, err := unitSnapshot(pc)
		parts[c.Rank()] = snap
		return err
	})
	if err != nil {
		return nil, err
	}

	out := &snapshot{
		pos: map[uint64][3]float64{}, neighbors: map[uint64][]uint64{},
	}
	for _, p := range parts {
		for id, x := range p.pos {
			out.pos[id] = x
		}
		for id, n := range p.neighbors {
			out.neighbors[id] = n
		}
	}
	return out, nil
}

func unitSnapshot(pc *container.Container) (*snapshot, error) {
	snap := &snapshot{
		pos: map[uint64][3]float64{}, neighbors: map[uint64][]uint64{},
	}
	for _, t := range pc.Tiles() {
		tile, _ := pc.Tile(t)
		l, err := pc.NeighborList(t)
		if err != nil {
			return nil, err
		}
		for i := 0; i < l.Len(); i++ {
			ids := []uint64{}
			for _, j := range l.Neighbors(i) {
				ids = append(ids, tile.ID(j))
			}
			slices.Sort(ids)
			snap.pos[tile.ID(i)] = tile.Pos(i)
			snap.neighbors[tile.ID(i)] = ids
		}
	}
	return snap, nil
}

// bruteForce returns the sorted IDs of every particle within r of each
// particle in sample, using nearest periodic images.
func (snap *snapshot) bruteForce(
	dom *domain.Domain, sample, ids []uint64, r float64,
) [][]uint64 {
	out := make([][]uint64, len(sample))
	thread.ParallelFor(len(sample), func(i int) {
		p := snap.pos[sample[i]]
		found := []uint64{}
		for _, id := range ids {
			if id == sample[i] {
				continue
			}
			dx := dom.MinImage(p, snap.pos[id])
			if floats.Norm(dx[:], 2) <= r {
				found = append(found, id)
			}
		}
		out[i] = found
	})
	return out
}
