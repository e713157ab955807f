package ambsheet

import (
	"fmt"
	"iter"
	"strings"
)

// RangeAddress represents a rectangular block of cells, bounds inclusive
type RangeAddress struct {
	StartRow    int
	StartColumn int
	EndRow      int
	EndColumn   int
}

// ParseRangeAddress parses "A1:B3" (or a single "A1") into a RangeAddress.
// absolute markers are accepted and ignored.
func ParseRangeAddress(address string) (RangeAddress, error) {
	startName, endName, found := strings.Cut(strings.TrimSpace(address), ":")
	if !found {
		endName = startName
	}
	start, err := ParsePosition(startName)
	if err != nil {
		return RangeAddress{}, err
	}
	end, err := ParsePosition(endName)
	if err != nil {
		return RangeAddress{}, err
	}
	return RangeAddress{
		StartRow:    min(start.Row, end.Row),
		StartColumn: min(start.Col, end.Col),
		EndRow:      max(start.Row, end.Row),
		EndColumn:   max(start.Col, end.Col),
	}, nil
}

// Rows returns the number of rows in the range
func (r RangeAddress) Rows() int {
	return r.EndRow - r.StartRow + 1
}

// Cols returns the number of columns in the range
func (r RangeAddress) Cols() int {
	return r.EndColumn - r.StartColumn + 1
}

// Contains reports whether pos lies inside the range
func (r RangeAddress) Contains(pos Position) bool {
	return pos.Row >= r.StartRow && pos.Row <= r.EndRow &&
		pos.Col >= r.StartColumn && pos.Col <= r.EndColumn
}

// Positions iterates the cells of the range row-major
func (r RangeAddress) Positions() iter.Seq[Position] {
	return func(yield func(Position) bool) {
		for row := r.StartRow; row <= r.EndRow; row++ {
			for col := r.StartColumn; col <= r.EndColumn; col++ {
				if !yield(Position{Row: row, Col: col}) {
					return
				}
			}
		}
	}
}

// shape turns a flat row-major list of values into the range's 2-D layout
func (r RangeAddress) shape(flat []Primitive) [][]Primitive {
	cols := r.Cols()
	rows := make([][]Primitive, r.Rows())
	for i := range rows {
		rows[i] = flat[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return rows
}

func (r RangeAddress) String() string {
	start := Position{Row: r.StartRow, Col: r.StartColumn}
	end := Position{Row: r.EndRow, Col: r.EndColumn}
	if start == end {
		return start.String()
	}
	return fmt.Sprintf("%s:%s", start, end)
}
