/*
package config reads and validates the configuration files used by the
command line tool. Config files use the ini-like gcfg syntax:

	[Domain]
	Dim = 3
	Size = 32, 32, 32
	Periodic = true, true, true
	MaxGridSize = 16
	GhostWidth = 1

	[Run]
	Units = 4
	ParticlesPerCell = 1
	Radius = 1.0

	[Unit "0"]
	Tiles = 0..3

If Run.InputFile is set, initial particles are read from that text catalog
(see package catio) instead of being placed on a lattice.

Values given on the command line overwrite values in the file. Raw values are
converted into an Args by RawArgs.Process.
*/
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/gcfg.v1"

	"github.com/phil-mansfield/neighbors/lib/compress"
	"github.com/phil-mansfield/neighbors/lib/container"
	"github.com/phil-mansfield/neighbors/lib/domain"
	"github.com/phil-mansfield/neighbors/lib/exchange"
	"github.com/phil-mansfield/neighbors/lib/particles"
)

// CheckStrictness indicates how Check should treat problems which don't
// make a run impossible, like a ghost width smaller than the radius.
type CheckStrictness int

const (
	CrashOnError CheckStrictness = iota
	WarnOnError
)

// RawArgs stores the unprocessed values which the user assigned to each
// config variable.
type RawArgs struct {
	Domain struct {
		Dim                       int
		Size, Periodic, CellWidth string
		MaxGridSize               string
		GhostWidth                int
	}
	Run struct {
		Units            int
		ParticlesPerCell int
		ThermalMean      float64
		ThermalStd       float64
		Seed             int64
		Radius           float64
		Steps            int
		Dx               float64
		Threads          int
		Compress         string
		Debug            bool
		LogLevel         string
		OwnershipFile    string
		InputFile        string
		ReportFile       string
	}
	Unit map[string]*UnitConfig
}

// UnitConfig is a [Unit "n"] section, which lists the tiles owned by unit n.
type UnitConfig struct {
	Tiles string
}

// DefaultRawArgs returns the values used for every variable which isn't set.
// They match the lattice test of the command line tool.
func DefaultRawArgs() *RawArgs {
	raw := &RawArgs{}
	raw.Domain.Dim = 3
	raw.Domain.Size = "32, 32, 32"
	raw.Domain.Periodic = "true"
	raw.Domain.CellWidth = "1"
	raw.Domain.MaxGridSize = "16"
	raw.Domain.GhostWidth = 1

	raw.Run.Units = 1
	raw.Run.ParticlesPerCell = 1
	raw.Run.ThermalStd = 1
	raw.Run.Radius = 1
	raw.Run.Steps = 3
	raw.Run.Dx = 0.1
	raw.Run.Threads = -1
	raw.Run.Compress = "none"
	raw.Run.LogLevel = "info"
	return raw
}

// ParseConfigFile parses arguments from a config file on top of the
// defaults.
func ParseConfigFile(fname string) (*RawArgs, error) {
	raw := DefaultRawArgs()
	if err := gcfg.ReadFileInto(raw, fname); err != nil {
		return nil, fmt.Errorf("Could not read config file '%s': %w",
			fname, err)
	}
	return raw, nil
}

// ParseConfigString parses arguments from the text of a config file on top
// of the defaults.
func ParseConfigString(text string) (*RawArgs, error) {
	raw := DefaultRawArgs()
	if err := gcfg.ReadStringInto(raw, text); err != nil {
		return nil, fmt.Errorf("Could not parse config: %w", err)
	}
	return raw, nil
}

// Overrides holds values set on the command line. Nil fields weren't set.
type Overrides struct {
	Units, Threads, Steps *int
	Compress, LogLevel    *string
	Debug                 *bool
}

// Overwrite overwrites arguments in raw which were set on the command line.
func (raw *RawArgs) Overwrite(o Overrides) {
	if o.Units != nil {
		raw.Run.Units = *o.Units
	}
	if o.Threads != nil {
		raw.Run.Threads = *o.Threads
	}
	if o.Steps != nil {
		raw.Run.Steps = *o.Steps
	}
	if o.Compress != nil {
		raw.Run.Compress = *o.Compress
	}
	if o.LogLevel != nil {
		raw.Run.LogLevel = *o.LogLevel
	}
	if o.Debug != nil {
		raw.Run.Debug = *o.Debug
	}
}

// Args stores configuration information. It is a post-processed version of
// RawArgs.
type Args struct {
	Dim         int
	Size        [3]int
	Periodic    [3]bool
	CellWidth   [3]float64
	MaxGridSize [3]int
	GhostWidth  int

	Units            int
	ParticlesPerCell int
	ThermalMean      float64
	ThermalStd       float64
	Seed             uint64
	Radius           float64
	Steps            int
	Dx               float64
	Threads          int
	Method           compress.MethodFlag
	Debug            bool
	LogLevel         logrus.Level
	OwnershipFile    string
	InputFile        string
	ReportFile       string

	// UnitTiles holds the Tiles sequence of every [Unit "n"] section,
	// indexed by unit. It is nil if there were no such sections.
	UnitTiles []string
}

// Process converts the raw user input to a format which is more useful for
// internal functions. Very simple validation is done here, but nothing which
// requires building the domain or reading other files.
func (raw *RawArgs) Process() (*Args, error) {
	args := &Args{
		Dim:              raw.Domain.Dim,
		GhostWidth:       raw.Domain.GhostWidth,
		Units:            raw.Run.Units,
		ParticlesPerCell: raw.Run.ParticlesPerCell,
		ThermalMean:      raw.Run.ThermalMean,
		ThermalStd:       raw.Run.ThermalStd,
		Seed:             uint64(raw.Run.Seed),
		Radius:           raw.Run.Radius,
		Steps:            raw.Run.Steps,
		Dx:               raw.Run.Dx,
		Threads:          raw.Run.Threads,
		Debug:            raw.Run.Debug,
		OwnershipFile:    raw.Run.OwnershipFile,
		InputFile:        raw.Run.InputFile,
		ReportFile:       raw.Run.ReportFile,
	}

	if args.Dim != 2 && args.Dim != 3 {
		return nil, fmt.Errorf("Dim = %d, but only 2 and 3 are supported.",
			args.Dim)
	}

	var err error
	if args.Size, err = parseInts("Size", raw.Domain.Size, args.Dim); err != nil {
		return nil, err
	}
	if args.MaxGridSize, err = parseInts("MaxGridSize",
		raw.Domain.MaxGridSize, args.Dim); err != nil {
		return nil, err
	}
	if args.Periodic, err = parseBools("Periodic", raw.Domain.Periodic,
		args.Dim); err != nil {
		return nil, err
	}
	if args.CellWidth, err = parseFloats("CellWidth", raw.Domain.CellWidth,
		args.Dim); err != nil {
		return nil, err
	}

	if args.Method, err = compress.ParseMethod(raw.Run.Compress); err != nil {
		return nil, err
	}
	if args.LogLevel, err = logrus.ParseLevel(raw.Run.LogLevel); err != nil {
		return nil, fmt.Errorf("LogLevel = '%s' is not a valid log level.",
			raw.Run.LogLevel)
	}

	if args.Units <= 0 {
		return nil, fmt.Errorf("Units = %d, but must be positive.", args.Units)
	} else if args.ParticlesPerCell <= 0 {
		return nil, fmt.Errorf("ParticlesPerCell = %d, but must be positive.",
			args.ParticlesPerCell)
	} else if !(args.Radius > 0) {
		return nil, fmt.Errorf("Radius = %g, but must be positive.",
			args.Radius)
	} else if args.Steps < 0 {
		return nil, fmt.Errorf("Steps = %d, but must be non-negative.",
			args.Steps)
	} else if args.ThermalStd < 0 {
		return nil, fmt.Errorf("ThermalStd = %g, but must be non-negative.",
			args.ThermalStd)
	}

	if len(raw.Unit) > 0 {
		if args.UnitTiles, err = unitTiles(raw, args.Units); err != nil {
			return nil, err
		}
	}

	return args, nil
}

func unitTiles(raw *RawArgs, units int) ([]string, error) {
	out := make([]string, units)
	for name, u := range raw.Unit {
		i, err := strconv.Atoi(name)
		if err != nil || i < 0 || i >= units {
			return nil, fmt.Errorf("Config has a [Unit \"%s\"] section, but "+
				"units must be named 0 through %d.", name, units-1)
		}
		out[i] = u.Tiles
	}
	return out, nil
}

func splitList(name, s string, dim int) ([]string, error) {
	tok := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(tok) == 1 {
		for len(tok) < dim {
			tok = append(tok, tok[0])
		}
	}
	if len(tok) != dim {
		return nil, fmt.Errorf("%s = '%s' should have either 1 or %d "+
			"elements, but it has %d.", name, s, dim, len(tok))
	}
	return tok, nil
}

func parseInts(name, s string, dim int) ([3]int, error) {
	out := [3]int{1, 1, 1}
	tok, err := splitList(name, s, dim)
	if err != nil {
		return out, err
	}
	for i := range tok {
		if out[i], err = strconv.Atoi(tok[i]); err != nil || out[i] <= 0 {
			return out, fmt.Errorf("Element %d of %s = '%s' is not a "+
				"positive integer.", i, name, s)
		}
	}
	return out, nil
}

func parseFloats(name, s string, dim int) ([3]float64, error) {
	out := [3]float64{1, 1, 1}
	tok, err := splitList(name, s, dim)
	if err != nil {
		return out, err
	}
	for i := range tok {
		if out[i], err = strconv.ParseFloat(tok[i], 64); err != nil ||
			!(out[i] > 0) {
			return out, fmt.Errorf("Element %d of %s = '%s' is not a "+
				"positive number.", i, name, s)
		}
	}
	return out, nil
}

func parseBools(name, s string, dim int) ([3]bool, error) {
	out := [3]bool{}
	tok, err := splitList(name, s, dim)
	if err != nil {
		return out, err
	}
	for i := range tok {
		if out[i], err = strconv.ParseBool(tok[i]); err != nil {
			return out, fmt.Errorf("Element %d of %s = '%s' is not a "+
				"boolean.", i, name, s)
		}
	}
	return out, nil
}

// Domain builds the Domain described by args.
func (args *Args) Domain() (*domain.Domain, error) {
	return domain.NewDomain(args.Dim, args.Size[:], args.Periodic[:],
		args.CellWidth[:])
}

// PartitionSet builds the tiles described by args.
func (args *Args) PartitionSet() (*domain.PartitionSet, error) {
	dom, err := args.Domain()
	if err != nil {
		return nil, err
	}
	return domain.ChopDomain(dom, args.MaxGridSize)
}

// Ownership builds the tile-to-unit map. [Unit] sections take priority over
// OwnershipFile, and tiles are dealt out round robin if neither is given.
func (args *Args) Ownership(nTiles int) (*domain.Ownership, error) {
	var (
		own *domain.Ownership
		err error
	)
	switch {
	case args.UnitTiles != nil:
		own, err = domain.FromSequences(args.UnitTiles, nTiles)
	case args.OwnershipFile != "":
		own, err = domain.ReadOwnershipYAML(args.OwnershipFile, nTiles)
	default:
		own, err = domain.RoundRobin(nTiles, args.Units)
	}
	if err != nil {
		return nil, err
	}

	if own.Units() != args.Units {
		return nil, fmt.Errorf("Units = %d, but the tile assignment uses %d "+
			"units.", args.Units, own.Units())
	}
	return own, nil
}

// Container returns the configuration of each unit's Container.
func (args *Args) Container() container.Config {
	return container.Config{
		Exchange: exchange.Config{
			GhostWidth: args.GhostWidth,
			Method:     args.Method,
			Radius:     args.Radius,
			Debug:      args.Debug,
		},
	}
}

// Lattice returns the initial particle layout.
func (args *Args) Lattice() particles.Lattice {
	n := args.ParticlesPerCell
	return particles.Lattice{
		PerCell:     [3]int{n, n, n},
		ThermalMean: args.ThermalMean,
		ThermalStd:  args.ThermalStd,
		Seed:        args.Seed,
	}
}

// Check tests args for errors which require building the domain, the tiles
// and the tile assignment. Problems which still allow a run are returned
// as warnings when strictness is WarnOnError. It returns every problem
// found.
func (args *Args) Check(
	strictness CheckStrictness,
) (problems, warnings []error) {
	ps, err := args.PartitionSet()
	if err != nil {
		return []error{err}, nil
	}
	if _, err := args.Ownership(ps.Len()); err != nil {
		problems = append(problems, err)
	}

	for i := 0; i < args.Dim; i++ {
		if args.Periodic[i] && args.GhostWidth > args.Size[i] {
			problems = append(problems, fmt.Errorf("GhostWidth = %d, but the domain "+
				"is only %d cells wide along periodic axis %d.",
				args.GhostWidth, args.Size[i], i))
		}
		if w := float64(args.GhostWidth) * args.CellWidth[i]; w < args.Radius {
			err := fmt.Errorf("The halo is %g wide along axis %d, but "+
				"Radius = %g. Neighbors will be missed.", w, i, args.Radius)
			if strictness == CrashOnError || args.Debug {
				problems = append(problems, err)
			} else {
				warnings = append(warnings, err)
			}
		}
	}

	if args.Threads == 0 || args.Threads < -1 {
		problems = append(problems, fmt.Errorf("Threads = %d, but must be "+
			"positive or -1 for every core.", args.Threads))
	}

	return problems, warnings
}
