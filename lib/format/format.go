/*
package format handles the miniature formatting language used to list tiles
in configuration files, e.g:

	Tiles = 0..7 - 3 + 12

A sequence is a series of terms joined by "+" or "-". Each term is either a
single number or an inclusive range "lo..hi":

	100
	0..100
	0..10 + 100
	0..100 - 63 - 10..20

Added terms are collected first and removed terms are taken out afterwards,
so the order of terms doesn't matter. 1, 2, 3, 15, 16, 17 can be written as
1..17 - 4..14. This is useful for handing an execution unit a block of tiles
with a few holes in it. Whitespace between terms and operators is ignored.
*/
package format

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// BigNumber is the largest number of elements a sequence can expand to.
// Anything bigger is assumed to be a bug.
const BigNumber = 1 << 20

// Term is one piece of a sequence: the inclusive range Lo..Hi, which is
// either added to or removed from the sequence.
type Term struct {
	Lo, Hi int
	Remove bool
}

func (t Term) String() string {
	op := "+"
	if t.Remove {
		op = "-"
	}
	if t.Lo == t.Hi {
		return fmt.Sprintf("%s %d", op, t.Lo)
	}
	return fmt.Sprintf("%s %d..%d", op, t.Lo, t.Hi)
}

// Len returns the number of values in the term.
func (t Term) Len() int { return t.Hi - t.Lo + 1 }

// lex splits a format string into operator and term tokens.
func lex(format string) []string {
	tok := []string{}
	start := -1
	flush := func(end int) {
		if start >= 0 {
			tok = append(tok, format[start:end])
			start = -1
		}
	}

	for i := 0; i < len(format); i++ {
		switch c := format[i]; {
		case c == '+' || c == '-':
			flush(i)
			tok = append(tok, format[i:i+1])
		case c == ' ' || c == '\t' || c == '\n':
			flush(i)
		case start < 0:
			start = i
		}
	}
	flush(len(format))
	return tok
}

// parseRange parses a single term, "n" or "lo..hi".
func parseRange(tok string) (lo, hi int, err error) {
	loText, hiText, isRange := strings.Cut(tok, "..")
	if lo, err = strconv.Atoi(loText); err != nil {
		return 0, 0, fmt.Errorf("'%s' is not an integer", loText)
	}
	if !isRange {
		return lo, lo, nil
	}

	if strings.Contains(hiText, "..") {
		return 0, 0, fmt.Errorf("it has more than one '..'")
	} else if hi, err = strconv.Atoi(hiText); err != nil {
		return 0, 0, fmt.Errorf("'%s' is not an integer", hiText)
	} else if hi < lo {
		return 0, 0, fmt.Errorf("lower bound %d is larger than upper "+
			"bound %d", lo, hi)
	}
	return lo, hi, nil
}

// Parse splits a sequence format into its terms. A missing leading operator
// is treated as "+".
func Parse(format string) ([]Term, error) {
	tok := lex(format)
	if len(tok) == 0 {
		return nil, fmt.Errorf("The format string is empty.")
	}

	terms := []Term{}
	remove, needTerm := false, true
	for i, t := range tok {
		isOp := t == "+" || t == "-"
		switch {
		case isOp && needTerm && (i > 0 || len(terms) > 0):
			return nil, fmt.Errorf("Element number %d, '%s', should be a "+
				"number or range, but is an operator.", i+1, t)
		case isOp && needTerm:
			remove = t == "-"
		case isOp:
			remove, needTerm = t == "-", true
		case !needTerm:
			return nil, fmt.Errorf("Element number %d, '%s', should be a "+
				"'-' or '+', but isn't.", i+1, t)
		default:
			lo, hi, err := parseRange(t)
			if err != nil {
				return nil, fmt.Errorf("Element number %d, '%s', cannot be "+
					"parsed because %s.", i+1, t, err.Error())
			}
			terms = append(terms, Term{Lo: lo, Hi: hi, Remove: remove})
			needTerm = false
		}
	}

	if needTerm {
		return nil, fmt.Errorf("The format string ends in a trailing '%s'.",
			tok[len(tok)-1])
	}
	return terms, nil
}

// Expand converts terms into a sorted sequence of integers. A value which
// is added twice, or removed without having been added, is an error.
func Expand(terms []Term) ([]int, error) {
	added := 0
	for _, t := range terms {
		if t.Hi < t.Lo {
			return nil, fmt.Errorf("The term '%s' is empty.", t)
		} else if !t.Remove {
			added += t.Len()
		}
		if added > BigNumber {
			return nil, fmt.Errorf("This sequence would have more than %d "+
				"elements, which is almost certainly a bug.", BigNumber)
		}
	}

	in := make(map[int]bool, added)
	for _, t := range terms {
		if t.Remove {
			continue
		}
		for n := t.Lo; n <= t.Hi; n++ {
			if in[n] {
				return nil, fmt.Errorf("The number %d is added more than "+
					"once.", n)
			}
			in[n] = true
		}
	}
	for _, t := range terms {
		if !t.Remove {
			continue
		}
		for n := t.Lo; n <= t.Hi; n++ {
			if !in[n] {
				return nil, fmt.Errorf("The number %d is removed more times "+
					"than it was added.", n)
			}
			delete(in, n)
		}
	}

	out := make([]int, 0, len(in))
	for n := range in {
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

// ExpandSequenceFormat expands a sequence format string into a sorted
// sequence of integers.
func ExpandSequenceFormat(format string) ([]int, error) {
	terms, err := Parse(format)
	if err != nil {
		return nil, err
	}
	return Expand(terms)
}

// ExpandTileFormat expands a sequence format string listing tile indices and
// checks that every index is in the range [0, nTiles).
func ExpandTileFormat(format string, nTiles int) ([]int, error) {
	tiles, err := ExpandSequenceFormat(format)
	if err != nil {
		return nil, fmt.Errorf("The tile list '%s' is not valid: %s",
			format, err.Error())
	}

	for _, t := range tiles {
		if t < 0 || t >= nTiles {
			return nil, fmt.Errorf("The tile list '%s' contains tile %d, "+
				"but there are only %d tiles.", format, t, nTiles)
		}
	}
	return tiles, nil
}
