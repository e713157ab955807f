package ambsheet

import (
	"fmt"
	"strings"
)

// Primitive represents a raw cell value.
// types:
//   - float64: numeric values
//   - string: text values
//   - bool: boolean values (TRUE/FALSE)
//   - [][]Primitive: a rectangular range of values
//   - nil: empty cells
//   - *SpreadsheetError: error values (#DIV/0!, #VALUE!, etc.)
type Primitive any

// ErrorCode represents standard spreadsheet error codes following
// Excel conventions, plus two codes specific to amb evaluation
type ErrorCode uint8

const (
	ErrorCodeNull   ErrorCode = 1  // #NULL! - no cells in common between ranges
	ErrorCodeDiv0   ErrorCode = 2  // #DIV/0! - division by zero
	ErrorCodeValue  ErrorCode = 3  // #VALUE! - wrong type of argument or operand
	ErrorCodeRef    ErrorCode = 4  // #REF! - invalid cell reference
	ErrorCodeName   ErrorCode = 5  // #NAME? - unrecognized function name
	ErrorCodeNum    ErrorCode = 6  // #NUM! - number too large or small to be represented
	ErrorCodeNA     ErrorCode = 7  // #N/A - wrong number of arguments for function
	ErrorCodeOther  ErrorCode = 8  // #ERROR! - all other errors
	ErrorCodeParse  ErrorCode = 9  // #PARSE! - formula text does not match the grammar
	ErrorCodeWorlds ErrorCode = 10 // #WORLDS! - too many worlds for one cell
)

// ErrorMapper maps error code numbers to their string representations
var ErrorMapper = map[ErrorCode]string{
	ErrorCodeNull:   "#NULL!",
	ErrorCodeDiv0:   "#DIV/0!",
	ErrorCodeValue:  "#VALUE!",
	ErrorCodeRef:    "#REF!",
	ErrorCodeName:   "#NAME?",
	ErrorCodeNum:    "#NUM!",
	ErrorCodeNA:     "#N/A",
	ErrorCodeOther:  "#ERROR!",
	ErrorCodeParse:  "#PARSE!",
	ErrorCodeWorlds: "#WORLDS!",
}

// SpreadsheetError preserves error code for display in cells. the code
// gives the short form, Message the long form.
type SpreadsheetError struct {
	ErrorCode ErrorCode
	Message   string
}

func (e *SpreadsheetError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return ErrorMapper[e.ErrorCode]
}

// Short returns the display code, e.g. "#DIV/0!"
func (e *SpreadsheetError) Short() string {
	return ErrorMapper[e.ErrorCode]
}

func NewSpreadsheetError(code ErrorCode, message string) *SpreadsheetError {
	if message == "" {
		message = ErrorMapper[code]
	}
	return &SpreadsheetError{
		ErrorCode: code,
		Message:   message,
	}
}

// Position identifies one grid cell, zero-based
type Position struct {
	Row int
	Col int
}

// String returns the A1-style name of the position, e.g. "B3"
func (p Position) String() string {
	return columnToLetters(p.Col) + fmt.Sprint(p.Row+1)
}

// ParsePosition parses an absolute A1-style name ("B3", "$B$3") into a Position
func ParsePosition(name string) (Position, error) {
	ref, ok := splitCellRef(strings.TrimSpace(name))
	if !ok {
		return Position{}, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid cell name: %q", name))
	}
	return Position{Row: ref.row, Col: ref.col}, nil
}

// columnToLetters converts a zero-based column index to letters (0 -> A,
// 25 -> Z, 26 -> AA)
func columnToLetters(col int) string {
	result := ""
	for col >= 0 {
		result = string(rune('A'+col%26)) + result
		col = col/26 - 1
	}
	return result
}

// Value is one concrete scalar together with the amb choices that produced it
type Value struct {
	Raw     Primitive
	Context AmbContext
}

// CellState describes where a cell is in its evaluation lifecycle
type CellState uint8

const (
	CellEmpty    CellState = 0 // no source text
	CellNotReady CellState = 1 // formula whose dependencies have not resolved
	CellResolved CellState = 2 // literal or formula with zero or more worlds
	CellFailed   CellState = 3 // formula that could not be parsed or evaluated
)

func (s CellState) String() string {
	switch s {
	case CellEmpty:
		return "empty"
	case CellNotReady:
		return "not-ready"
	case CellResolved:
		return "resolved"
	case CellFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CellResult is the evaluated content of one cell. Values is only meaningful
// for resolved cells, and may be empty when no world satisfies the formula.
type CellResult struct {
	State  CellState
	Values []Value
	Err    *SpreadsheetError
}
