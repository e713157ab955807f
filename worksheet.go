package ambsheet

import (
	"math"
	"strconv"
	"strings"
)

// CellType classifies the source text of a cell
type CellType uint8

const (
	CellTypeEmpty   CellType = 0
	CellTypeNumber  CellType = 1
	CellTypeString  CellType = 2
	CellTypeBoolean CellType = 3
	CellTypeFormula CellType = 4
)

func (t CellType) String() string {
	switch t {
	case CellTypeNumber:
		return "number"
	case CellTypeString:
		return "string"
	case CellTypeBoolean:
		return "boolean"
	case CellTypeFormula:
		return "formula"
	default:
		return "empty"
	}
}

// Worksheet is the rectangular grid of cell source text an evaluator reads.
// ragged input rows are padded with empty cells. a worksheet is never
// modified after construction.
type Worksheet struct {
	source      [][]string
	types       [][]CellType
	rows        int
	cols        int
	cellsByType [5]int // cells by type for diagnostic use
}

// NewWorksheet copies grid into a rectangular worksheet
func NewWorksheet(grid [][]string) *Worksheet {
	cols := 0
	for _, row := range grid {
		cols = max(cols, len(row))
	}

	w := &Worksheet{
		source: make([][]string, len(grid)),
		types:  make([][]CellType, len(grid)),
		rows:   len(grid),
		cols:   cols,
	}
	for r, row := range grid {
		w.source[r] = make([]string, cols)
		w.types[r] = make([]CellType, cols)
		copy(w.source[r], row)
		for c, text := range w.source[r] {
			t := classify(text)
			w.types[r][c] = t
			w.cellsByType[t]++
		}
	}
	return w
}

// classify decides how a cell's source text is evaluated
func classify(text string) CellType {
	trimmed := strings.TrimSpace(text)
	switch {
	case trimmed == "":
		return CellTypeEmpty
	case IsFormula(trimmed):
		return CellTypeFormula
	}
	if _, ok := parseNumber(trimmed); ok {
		return CellTypeNumber
	}
	if upper := strings.ToUpper(trimmed); upper == "TRUE" || upper == "FALSE" {
		return CellTypeBoolean
	}
	return CellTypeString
}

// parseNumber reads text as a finite number. strconv also accepts NaN and
// Inf spellings, which are plain text here.
func parseNumber(text string) (float64, bool) {
	num, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(num) || math.IsInf(num, 0) {
		return 0, false
	}
	return num, true
}

// Rows returns the number of rows
func (w *Worksheet) Rows() int {
	return w.rows
}

// Cols returns the number of columns
func (w *Worksheet) Cols() int {
	return w.cols
}

// Contains reports whether pos is inside the grid
func (w *Worksheet) Contains(pos Position) bool {
	return pos.Row >= 0 && pos.Row < w.rows && pos.Col >= 0 && pos.Col < w.cols
}

// Source returns the raw text of a cell, "" outside the grid
func (w *Worksheet) Source(pos Position) string {
	if !w.Contains(pos) {
		return ""
	}
	return w.source[pos.Row][pos.Col]
}

// Type returns the classification of a cell, CellTypeEmpty outside the grid
func (w *Worksheet) Type(pos Position) CellType {
	if !w.Contains(pos) {
		return CellTypeEmpty
	}
	return w.types[pos.Row][pos.Col]
}

// LiteralValue returns the value of a non-formula cell. formula and empty
// cells return nil.
func (w *Worksheet) LiteralValue(pos Position) Primitive {
	trimmed := strings.TrimSpace(w.Source(pos))
	switch w.Type(pos) {
	case CellTypeNumber:
		num, _ := parseNumber(trimmed)
		return num
	case CellTypeBoolean:
		return strings.EqualFold(trimmed, "TRUE")
	case CellTypeString:
		return trimmed
	default:
		return nil
	}
}

// GetCellTypeCount returns how many cells have the given type
func (w *Worksheet) GetCellTypeCount(cellType CellType) int {
	if int(cellType) >= len(w.cellsByType) {
		return 0
	}
	return w.cellsByType[cellType]
}
