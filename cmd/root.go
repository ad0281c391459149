package cmd

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/phil-mansfield/neighbors/lib/comm"
	"github.com/phil-mansfield/neighbors/lib/config"
	"github.com/phil-mansfield/neighbors/lib/errs"
)

var (
	// CLI flags. Each one overwrites the matching config variable, but only
	// if it was set explicitly.
	configFile   string // Config file, see package config
	units        int    // Number of execution units
	threads      int    // Goroutines per unit for per-particle work
	steps        int    // Number of move/update steps in run mode
	compressFlag string // Compression method for exchanged records
	logLevel     string // Log verbosity level
	debug        bool   // Extra consistency checks
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "neighbors",
	Short: "Builds neighbor lists for particles split across execution units",
	Long: "neighbors splits a particle domain into tiles, hands the tiles " +
		"to execution units, exchanges ghost particles between them, and " +
		"builds neighbor lists.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI root command
func Execute() {
	err := rootCmd.Execute()
	switch {
	case err == nil:
	case errors.Is(err, comm.ErrPanic):
		errs.Internal("%s", err.Error())
	default:
		errs.External("%s", err.Error())
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file. Defaults are used for anything it doesn't set.")
	pf.IntVar(&units, "units", 1, "Number of execution units")
	pf.IntVar(&threads, "threads", -1, "Goroutines per unit, -1 for every core")
	pf.IntVar(&steps, "steps", 3, "Number of move/update steps")
	pf.StringVar(&compressFlag, "compress", "none", "Compression of exchanged particles (none, zstd)")
	pf.StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	pf.BoolVar(&debug, "debug", false, "Check ghost consistency on every update")

	rootCmd.AddCommand(checkCmd, runCmd, confirmCmd)
}

// overrides collects the flags which were set on the command line.
func overrides(cmd *cobra.Command) config.Overrides {
	o := config.Overrides{}
	fs := cmd.Flags()
	if fs.Changed("units") {
		o.Units = &units
	}
	if fs.Changed("threads") {
		o.Threads = &threads
	}
	if fs.Changed("steps") {
		o.Steps = &steps
	}
	if fs.Changed("compress") {
		o.Compress = &compressFlag
	}
	if fs.Changed("log") {
		o.LogLevel = &logLevel
	}
	if fs.Changed("debug") {
		o.Debug = &debug
	}
	return o
}

// loadArgs reads the config file, applies command line overrides, and sets
// the log level.
func loadArgs(fname string, o config.Overrides) (*config.Args, error) {
	raw := config.DefaultRawArgs()
	if fname != "" {
		var err error
		if raw, err = config.ParseConfigFile(fname); err != nil {
			return nil, err
		}
	}
	raw.Overwrite(o)

	args, err := raw.Process()
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(args.LogLevel)
	return args, nil
}

// checkArgs logs every warning and returns an error listing every problem.
func checkArgs(args *config.Args, strictness config.CheckStrictness) error {
	problems, warnings := args.Check(strictness)
	for _, w := range warnings {
		logrus.Warn(w.Error())
	}
	if len(problems) == 0 {
		return nil
	}

	msg := fmt.Sprintf("Found %d problem(s) in the configuration:",
		len(problems))
	for i, p := range problems {
		msg += fmt.Sprintf("\n  %d) %s", i+1, p.Error())
	}
	return fmt.Errorf("%s", msg)
}

// checkCmd tests the configuration for errors without running anything
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the configuration for errors",
	RunE: func(cmd *cobra.Command, _ []string) error {
		args, err := loadArgs(configFile, overrides(cmd))
		if err != nil {
			return err
		}
		if err := checkArgs(args, config.WarnOnError); err != nil {
			return err
		}
		fmt.Println("No errors detected.")
		return nil
	},
}
