/*
package catio reads particle catalogs stored as whitespace-separated text
columns, one particle per line:

	# x y z id
	0.5 0.5 0.5 0
	1.5 0.5 0.5 1

Catalogs are small compared to the particle store, so they are read into
memory in a single pass.
*/
package catio

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// TextConfig contains information neccessary for parsing particle catalogs.
type TextConfig struct {
	Separator   byte           // Character used to separated fields. ' ' matches any run of whitespace.
	Comment     byte           // Character used to start comments.
	SkipLines   int            // Number of lines to skip at the start of file.
	ColumnNames map[string]int // Map from column names to column indices.
	MaxLineSize int            // Largest possible line size.
}

// DefaultConfig reads catalogs with x, y, z and id in the first four
// columns.
var DefaultConfig = TextConfig{
	Separator: ' ',
	Comment:   '#',
	SkipLines: 0,
	ColumnNames: map[string]int{
		"x": 0, "y": 1, "z": 2, "id": 3,
	},
	MaxLineSize: 1 << 20,
}

// Reader gives access to the columns of a catalog.
type Reader struct {
	config TextConfig
	lines  [][]byte
}

// TextFile creates a Reader for a text catalog on disk.
func TextFile(fname string, config ...TextConfig) (*Reader, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("Could not open catalog '%s': %w", fname, err)
	}
	defer f.Close()

	r, err := NewReader(f, config...)
	if err != nil {
		return nil, fmt.Errorf("Could not read catalog '%s': %w", fname, err)
	}
	return r, nil
}

// Text creates a Reader for a block of text.
func Text(text []byte, config ...TextConfig) (*Reader, error) {
	return NewReader(bytes.NewReader(text), config...)
}

// NewReader reads the whole of rd and splits it into lines. An optional
// config can be provided, otherwise DefaultConfig is used.
func NewReader(rd io.Reader, config ...TextConfig) (*Reader, error) {
	r := &Reader{config: DefaultConfig}
	if len(config) > 0 {
		r.config = config[0]
	}

	lines, err := readLines(rd, r.config)
	if err != nil {
		return nil, err
	}
	r.lines = lines
	return r, nil
}

// Len returns the number of rows in the catalog.
func (r *Reader) Len() int { return len(r.lines) }
