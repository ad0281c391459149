package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Report summarizes a run. It is written as YAML if Run.ReportFile is set.
type Report struct {
	Units     int   `yaml:"units"`
	Tiles     int   `yaml:"tiles"`
	Particles int64 `yaml:"particles"`
	// Outside counts catalog particles outside a non-periodic boundary.
	Outside  int64   `yaml:"outside,omitempty"`
	LoadMean float64 `yaml:"load_mean"`
	LoadStd  float64 `yaml:"load_std"`

	Checks  []CheckReport `yaml:"checks"`
	Steps   []StepReport  `yaml:"steps"`
	Seconds float64       `yaml:"seconds"`
}

// CheckReport is the result of one ghost consistency check.
type CheckReport struct {
	Stage      string `yaml:"stage"`
	Mismatched int64  `yaml:"mismatched"`
}

// StepReport describes the neighbor lists after a step. Step 0 is the
// first build.
type StepReport struct {
	Step         int     `yaml:"step"`
	Min          float64 `yaml:"min_distance"`
	Max          float64 `yaml:"max_distance"`
	FullExchange bool    `yaml:"full_exchange"`
	Ghosts       int64   `yaml:"ghosts"`
	Pairs        int64   `yaml:"pairs"`
	NeighborMean float64 `yaml:"neighbor_mean"`
	NeighborStd  float64 `yaml:"neighbor_std"`
}

// Mismatched returns the total number of failed ghost checks.
func (rep *Report) Mismatched() int64 {
	n := int64(0)
	for _, c := range rep.Checks {
		n += c.Mismatched
	}
	return n
}

// Write writes the report to fname as YAML.
func (rep *Report) Write(fname string) error {
	b, err := yaml.Marshal(rep)
	if err != nil {
		return err
	}
	if err := os.WriteFile(fname, b, 0644); err != nil {
		return fmt.Errorf("Could not write report to '%s': %w", fname, err)
	}
	return nil
}

// ReadReport reads a report written by Write.
func ReadReport(fname string) (*Report, error) {
	b, err := os.ReadFile(fname)
	if err != nil {
		return nil, err
	}
	rep := &Report{}
	if err := yaml.Unmarshal(b, rep); err != nil {
		return nil, fmt.Errorf("Could not parse report '%s': %w", fname, err)
	}
	return rep, nil
}
