package catio

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// readLines splits rd into uncommented, trimmed, non-empty lines.
func readLines(rd io.Reader, config TextConfig) ([][]byte, error) {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 4096), config.MaxLineSize)

	lines := [][]byte{}
	for n := 0; sc.Scan(); n++ {
		if n < config.SkipLines {
			continue
		}
		line := sc.Bytes()
		if i := bytes.IndexByte(line, config.Comment); i >= 0 {
			line = line[:i]
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		lines = append(lines, append([]byte{}, line...))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// fields splits a line into columns.
func (r *Reader) fields(line []byte) [][]byte {
	if r.config.Separator == ' ' {
		return bytes.Fields(line)
	}
	cols := bytes.Split(line, []byte{r.config.Separator})
	for i := range cols {
		cols[i] = bytes.TrimSpace(cols[i])
	}
	return cols
}

// columnIndices converts the generic columns variable into integer indices.
// If columns is []int, it returns them, if columns is []string, it looks up
// the corresponding ints.
func (r *Reader) columnIndices(columns interface{}) ([]int, error) {
	switch cols := columns.(type) {
	case []int:
		return cols, nil
	case []string:
		idxs := make([]int, len(cols))
		for i := range cols {
			idx, ok := r.config.ColumnNames[cols[i]]
			if !ok {
				return nil, fmt.Errorf("No column is named '%s'.", cols[i])
			}
			idxs[i] = idx
		}
		return idxs, nil
	}
	return nil, fmt.Errorf("Columns argument must be []int or []string, "+
		"not %T.", columns)
}

// parse calls fn on the text of every requested column of every line.
func (r *Reader) parse(idxs []int, fn func(col, row int, text string) error) error {
	for row, line := range r.lines {
		cols := r.fields(line)
		for i, idx := range idxs {
			if idx < 0 || idx >= len(cols) {
				return fmt.Errorf("Line %d of the catalog has %d columns, "+
					"but column %d was requested.", row, len(cols), idx)
			}
			if err := fn(i, row, string(cols[idx])); err != nil {
				return fmt.Errorf("Line %d, column %d of the catalog: %w",
					row, idx, err)
			}
		}
	}
	return nil
}

// ReadFloat64s reads the specified columns and interprets them as float64s.
func (r *Reader) ReadFloat64s(columns interface{}) ([][]float64, error) {
	idxs, err := r.columnIndices(columns)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(idxs))
	for i := range out {
		out[i] = make([]float64, len(r.lines))
	}

	err = r.parse(idxs, func(col, row int, text string) error {
		x, err := strconv.ParseFloat(text, 64)
		out[col][row] = x
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadUint64s reads the specified columns and interprets them as uint64s.
func (r *Reader) ReadUint64s(columns interface{}) ([][]uint64, error) {
	idxs, err := r.columnIndices(columns)
	if err != nil {
		return nil, err
	}
	out := make([][]uint64, len(idxs))
	for i := range out {
		out[i] = make([]uint64, len(r.lines))
	}

	err = r.parse(idxs, func(col, row int, text string) error {
		x, err := strconv.ParseUint(text, 10, 64)
		out[col][row] = x
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
