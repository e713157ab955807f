package ambsheet

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SheetTestCase builds a grid by cell name, evaluates it and checks results
// in a fluent style
type SheetTestCase struct {
	t         *testing.T
	name      string
	cells     map[Position]string
	opts      []Option
	evaluator *Evaluator
	results   *Results
}

func NewSheetTestCase(t *testing.T, name string) *SheetTestCase {
	return &SheetTestCase{
		t:     t,
		name:  name,
		cells: make(map[Position]string),
	}
}

func (tc *SheetTestCase) Set(address string, text string) *SheetTestCase {
	tc.t.Helper()
	pos, err := ParsePosition(address)
	require.NoError(tc.t, err, "%s: bad address %s", tc.name, address)
	tc.cells[pos] = text
	return tc
}

func (tc *SheetTestCase) With(opts ...Option) *SheetTestCase {
	tc.opts = append(tc.opts, opts...)
	return tc
}

// Grid returns the rectangular source grid covering every cell set so far
func (tc *SheetTestCase) Grid() [][]string {
	rows, cols := 0, 0
	for pos := range tc.cells {
		rows = max(rows, pos.Row+1)
		cols = max(cols, pos.Col+1)
	}
	grid := make([][]string, rows)
	for r := range grid {
		grid[r] = make([]string, cols)
	}
	for pos, text := range tc.cells {
		grid[pos.Row][pos.Col] = text
	}
	return grid
}

func (tc *SheetTestCase) Run() *SheetTestCase {
	tc.evaluator = NewEvaluator(tc.Grid(), tc.opts...)
	tc.results = tc.evaluator.Eval()
	return tc
}

func (tc *SheetTestCase) cell(address string) CellResult {
	tc.t.Helper()
	require.NotNil(tc.t, tc.results, "%s: Run was not called", tc.name)
	result, err := tc.results.GetByName(address)
	require.NoError(tc.t, err, "%s: %s", tc.name, address)
	return result
}

// AssertValues checks the raw values of a resolved cell, in world order
func (tc *SheetTestCase) AssertValues(address string, expected ...Primitive) *SheetTestCase {
	tc.t.Helper()
	result := tc.cell(address)
	require.Equal(tc.t, CellResolved, result.State, "%s: %s state (err %v)", tc.name, address, result.Err)

	got := make([]Primitive, len(result.Values))
	for i, v := range result.Values {
		got[i] = v.Raw
	}
	assert.Equal(tc.t, expected, got, "%s: %s values", tc.name, address)
	return tc
}

// AssertNoWorlds checks a formula that resolved to zero worlds
func (tc *SheetTestCase) AssertNoWorlds(address string) *SheetTestCase {
	tc.t.Helper()
	result := tc.cell(address)
	assert.Equal(tc.t, CellResolved, result.State, "%s: %s state", tc.name, address)
	assert.Empty(tc.t, result.Values, "%s: %s values", tc.name, address)
	return tc
}

// AssertCellErr checks a cell that failed as a whole
func (tc *SheetTestCase) AssertCellErr(address string, code ErrorCode) *SheetTestCase {
	tc.t.Helper()
	result := tc.cell(address)
	require.Equal(tc.t, CellFailed, result.State, "%s: %s state", tc.name, address)
	require.NotNil(tc.t, result.Err)
	assert.Equal(tc.t, ErrorMapper[code], result.Err.Short(), "%s: %s error %q", tc.name, address, result.Err.Message)
	return tc
}

// AssertValueErr checks that one world of a resolved cell is an error value
func (tc *SheetTestCase) AssertValueErr(address string, index int, code ErrorCode) *SheetTestCase {
	tc.t.Helper()
	result := tc.cell(address)
	require.Equal(tc.t, CellResolved, result.State, "%s: %s state", tc.name, address)
	require.Greater(tc.t, len(result.Values), index, "%s: %s has too few worlds", tc.name, address)

	cellErr, ok := result.Values[index].Raw.(*SpreadsheetError)
	require.True(tc.t, ok, "%s: %s world %d is %v, not an error", tc.name, address, index, result.Values[index].Raw)
	assert.Equal(tc.t, code, cellErr.ErrorCode)
	return tc
}

func (tc *SheetTestCase) AssertNotReady(address string) *SheetTestCase {
	tc.t.Helper()
	assert.Equal(tc.t, CellNotReady, tc.cell(address).State, "%s: %s state", tc.name, address)
	return tc
}

func (tc *SheetTestCase) AssertCellEmpty(address string) *SheetTestCase {
	tc.t.Helper()
	assert.Equal(tc.t, CellEmpty, tc.cell(address).State, "%s: %s state", tc.name, address)
	return tc
}

// AssertResolvedContext checks the cell-name form of one world's context
func (tc *SheetTestCase) AssertResolvedContext(address string, index int, expected ResolvedContext) *SheetTestCase {
	tc.t.Helper()
	result := tc.cell(address)
	require.Greater(tc.t, len(result.Values), index)
	assert.Equal(tc.t, expected, tc.results.Resolve(result.Values[index].Context), "%s: %s world %d", tc.name, address, index)
	return tc
}

func (tc *SheetTestCase) End() {
}

func TestLiteralCells(t *testing.T) {
	NewSheetTestCase(t, "literals").
		Set("A1", "42").
		Set("A2", " 2.5 ").
		Set("A3", "TRUE").
		Set("A4", "false").
		Set("A5", "hello world").
		Set("A6", "   ").
		Set("B1", "").
		Run().
		AssertValues("A1", 42.0).
		AssertValues("A2", 2.5).
		AssertValues("A3", true).
		AssertValues("A4", false).
		AssertValues("A5", "hello world").
		AssertCellEmpty("A6").
		AssertCellEmpty("B1").
		End()
}

func TestBinaryOperators(t *testing.T) {
	NewSheetTestCase(t, "arithmetic").
		Set("A1", "=1+2").
		Set("A2", "=7-10").
		Set("A3", "=6*7").
		Set("A4", "=1/4").
		Set("A5", "=2^10").
		Set("A6", `="a"&1&TRUE`).
		Set("A7", "=-5+3").
		Set("A8", "=50%").
		Set("A9", `="2"+3`).
		Run().
		AssertValues("A1", 3.0).
		AssertValues("A2", -3.0).
		AssertValues("A3", 42.0).
		AssertValues("A4", 0.25).
		AssertValues("A5", 1024.0).
		AssertValues("A6", "a1TRUE").
		AssertValues("A7", -2.0).
		AssertValues("A8", 0.5).
		AssertValues("A9", 5.0).
		End()

	NewSheetTestCase(t, "comparisons yield 1 and 0").
		Set("A1", "=1<2").
		Set("A2", "=1>2").
		Set("A3", "=2=2").
		Set("A4", "=2<>2").
		Set("A5", "=3>=3").
		Set("A6", "=3<=2").
		Set("A7", `="abc"<"abd"`).
		Run().
		AssertValues("A1", 1.0).
		AssertValues("A2", 0.0).
		AssertValues("A3", 1.0).
		AssertValues("A5", 1.0).
		AssertValues("A6", 0.0).
		AssertValues("A7", 1.0).
		End()
}

func TestNonFiniteResults(t *testing.T) {
	NewSheetTestCase(t, "overflow and domain errors are #NUM!").
		Set("A1", "=1e308*10").
		Set("A2", "=1e308+1e308").
		Set("A3", "=-1e308-1e308").
		Set("A4", "=1e300/1e-300").
		Set("A5", "=(-1)^0.5").
		Set("A6", "=POWER(-1, 0.5)").
		Set("A7", "=ROUND(1, 400)").
		Run().
		AssertValueErr("A1", 0, ErrorCodeNum).
		AssertValueErr("A2", 0, ErrorCodeNum).
		AssertValueErr("A3", 0, ErrorCodeNum).
		AssertValueErr("A4", 0, ErrorCodeNum).
		AssertValueErr("A5", 0, ErrorCodeNum).
		AssertValueErr("A6", 0, ErrorCodeNum).
		AssertValueErr("A7", 0, ErrorCodeNum).
		End()

	NewSheetTestCase(t, "NaN and Inf spellings are text").
		Set("A1", "NaN").
		Set("B1", "Infinity").
		Set("C1", "inf").
		Set("D1", "=C1+1").
		Set("E1", `="nan"*1`).
		Run().
		AssertValues("A1", "NaN").
		AssertValues("B1", "Infinity").
		AssertValues("C1", "inf").
		AssertValueErr("D1", 0, ErrorCodeValue).
		AssertValueErr("E1", 0, ErrorCodeValue).
		End()
}

func TestLogicalOverRanges(t *testing.T) {
	NewSheetTestCase(t, "AND and OR read range contents").
		Set("A1", "0").
		Set("B1", "1").
		Set("A2", "0").
		Set("B2", "0").
		Set("C1", "=AND(A1:B1)").
		Set("C2", "=OR(A2:B2)").
		Set("C3", "=OR(A1:B1)").
		Set("C4", "=AND(B1, A3:B3)").
		Run().
		AssertValues("C1", false).
		AssertValues("C2", false).
		AssertValues("C3", true).
		AssertValues("C4", true).
		End()
}

func TestErrorPropagation(t *testing.T) {
	NewSheetTestCase(t, "errors flow through arithmetic").
		Set("A1", "=1/0").
		Set("A2", "=A1+1").
		Set("A3", "=-A1").
		Set("A4", "=SUM(A1, 2)").
		Set("A5", "=if(A1, 1, 2)").
		Set("A6", `="x"*2`).
		Set("A7", "=SQRT(-1)").
		Set("A8", "=MIN()").
		Run().
		AssertValueErr("A1", 0, ErrorCodeDiv0).
		AssertValueErr("A2", 0, ErrorCodeDiv0).
		AssertValueErr("A3", 0, ErrorCodeDiv0).
		AssertValueErr("A4", 0, ErrorCodeDiv0).
		AssertValueErr("A5", 0, ErrorCodeDiv0).
		AssertValueErr("A6", 0, ErrorCodeValue).
		AssertValueErr("A7", 0, ErrorCodeNum).
		AssertValueErr("A8", 0, ErrorCodeNum).
		End()
}

func TestCellFailures(t *testing.T) {
	NewSheetTestCase(t, "failed cells").
		Set("A1", "=1+").
		Set("A2", "=NOSUCH(1)").
		Set("A3", "=ABS(1, 2)").
		Set("A4", "=A2*2").
		Set("A5", "{1 to 5 by 0}").
		Run().
		AssertCellErr("A1", ErrorCodeParse).
		AssertCellErr("A2", ErrorCodeName).
		AssertCellErr("A3", ErrorCodeNA).
		AssertValueErr("A4", 0, ErrorCodeName).
		AssertCellErr("A5", ErrorCodeParse).
		End()
}

func TestCellReferences(t *testing.T) {
	NewSheetTestCase(t, "forward and backward references").
		Set("A1", "=C3*2").
		Set("B1", "=A1+1").
		Set("C3", "5").
		Set("C1", "=B1+A1").
		Run().
		AssertValues("A1", 10.0).
		AssertValues("B1", 11.0).
		AssertValues("C1", 21.0).
		End()

	NewSheetTestCase(t, "empty cell reads as one empty world").
		Set("A1", "=B1+1").
		Set("B1", "").
		Set("C1", "=B1").
		Set("D1", "=B1&\"x\"").
		Run().
		AssertValues("A1", 1.0).
		AssertValues("C1", nil).
		AssertValues("D1", "x").
		End()
}

func TestAbsoluteReferencesInSheet(t *testing.T) {
	NewSheetTestCase(t, "$A$1+B2 at F6").
		Set("A1", "100").
		Set("B2", "7").
		Set("F6", "=$A$1+B2").
		Run().
		AssertValues("F6", 107.0).
		End()
}

func TestRangeReferences(t *testing.T) {
	NewSheetTestCase(t, "aggregates over ranges").
		Set("A1", "1").
		Set("A2", "2").
		Set("A3", "3").
		Set("A4", "text").
		Set("B1", "=SUM(A1:A4)").
		Set("B2", "=AVERAGE(A1:A3)").
		Set("B3", "=COUNT(A1:A5)").
		Set("B4", "=COUNTA(A1:A5)").
		Set("B5", "=MAX(A1:A3)-MIN(A1:A3)").
		Set("A5", "").
		Run().
		AssertValues("B1", 6.0).
		AssertValues("B2", 2.0).
		AssertValues("B3", 3.0).
		AssertValues("B4", 4.0).
		AssertValues("B5", 2.0).
		End()

	NewSheetTestCase(t, "bare range is a 2-D value").
		Set("A1", "1").
		Set("B1", "2").
		Set("A2", "3").
		Set("C1", "=A1:B2").
		Run().
		AssertValues("C1", [][]Primitive{{1.0, 2.0}, {3.0, nil}}).
		End()

	NewSheetTestCase(t, "range arithmetic is a type error").
		Set("A1", "1").
		Set("B1", "=A1:A1+1").
		Run().
		AssertValueErr("B1", 0, ErrorCodeValue).
		End()
}

func TestFixpointIsIdempotent(t *testing.T) {
	grid := [][]string{
		{"{1,2,3}", "=A1*10", "=normal(0, 1, 4)"},
		{"=ambify(A1:B1)", "=B1+C1", "=if(A1>1, A2, {7 x 2})"},
		{"=A3", "=1/0", "=SUM(A1:C2)"},
	}
	evaluator := NewEvaluator(grid, WithSeed(42))

	first := evaluator.Eval()
	second := evaluator.Eval()

	if diff := cmp.Diff(first, second, cmp.AllowUnexported(Results{})); diff != "" {
		t.Errorf("second evaluation differs (-first +second):\n%s", diff)
	}

	// a fresh evaluator with the same seed draws the same samples
	third := NewEvaluator(grid, WithSeed(42)).Eval()
	if diff := cmp.Diff(first.Get(Position{Row: 0, Col: 2}), third.Get(Position{Row: 0, Col: 2})); diff != "" {
		t.Errorf("seeded samples differ (-first +third):\n%s", diff)
	}
}

func TestCycleContainment(t *testing.T) {
	tc := NewSheetTestCase(t, "two-cell cycle").
		Set("A1", "=B1").
		Set("B1", "=A1").
		Set("C1", "=A1+1").
		Set("D1", "=Z99").
		Set("E1", "=E1").
		Set("F1", "=2").
		Run().
		AssertNotReady("A1").
		AssertNotReady("B1").
		AssertNotReady("C1").
		AssertNotReady("D1").
		AssertNotReady("E1").
		AssertValues("F1", 2.0)

	stuck := tc.results.Stuck()
	want := []StuckCell{
		{Cell: Position{Row: 0, Col: 0}, Blocker: Position{Row: 0, Col: 1}, Reason: StuckCycle},
		{Cell: Position{Row: 0, Col: 1}, Blocker: Position{Row: 0, Col: 0}, Reason: StuckCycle},
		{Cell: Position{Row: 0, Col: 2}, Blocker: Position{Row: 0, Col: 0}, Reason: StuckBlocked},
		{Cell: Position{Row: 0, Col: 3}, Blocker: Position{Row: 98, Col: 25}, Reason: StuckMissing},
		{Cell: Position{Row: 0, Col: 4}, Blocker: Position{Row: 0, Col: 4}, Reason: StuckCycle},
	}
	if diff := cmp.Diff(want, stuck); diff != "" {
		t.Errorf("stuck cells mismatch (-want +got):\n%s", diff)
	}
}

func TestRangeIncludingItselfStaysNotReady(t *testing.T) {
	NewSheetTestCase(t, "self range").
		Set("A1", "1").
		Set("A2", "=SUM(A1:A3)").
		Set("A3", "2").
		Run().
		AssertNotReady("A2").
		End()
}

func TestEvaluatorLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	NewSheetTestCase(t, "logging").
		Set("A1", "={1,2}+{1,2}").
		Set("A2", "=A3").
		Set("A3", "=A2").
		With(WithLogger(logger), WithMaxWorlds(3)).
		Run().
		AssertCellErr("A1", ErrorCodeWorlds).
		End()

	out := buf.String()
	assert.Contains(t, out, "evaluation pass complete")
	assert.Contains(t, out, "cell fan-out exceeded")
	assert.Contains(t, out, "cells left unresolved")
	assert.Equal(t, 1, strings.Count(out, "cell fan-out exceeded"))
}

func TestMaxWorlds(t *testing.T) {
	grid := [][]string{{"={1 to 20}*{1 to 20}"}}

	unbounded := NewEvaluator(grid, WithMaxWorlds(0)).Eval().Get(Position{})
	require.Equal(t, CellResolved, unbounded.State)
	assert.Len(t, unbounded.Values, 400)

	exact := NewEvaluator(grid, WithMaxWorlds(400)).Eval().Get(Position{})
	assert.Equal(t, CellResolved, exact.State)

	over := NewEvaluator(grid, WithMaxWorlds(399)).Eval().Get(Position{})
	require.Equal(t, CellFailed, over.State)
	assert.Equal(t, ErrorCodeWorlds, over.Err.ErrorCode)
}

func TestResultsAccessors(t *testing.T) {
	results := NewEvaluator([][]string{
		{"1", "2", "3"},
		{"4"},
	}).Eval()

	assert.Equal(t, 2, results.Rows())
	assert.Equal(t, 3, results.Cols())
	assert.Equal(t, CellEmpty, results.Get(Position{Row: 1, Col: 2}).State, "ragged rows are padded")
	assert.Equal(t, CellEmpty, results.Get(Position{Row: 9, Col: 9}).State)

	_, err := results.GetByName("D1")
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, OutOfRange, appErr.Code)

	_, err = results.GetByName("not a cell")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, InvalidArgument, appErr.Code)
}

func TestEmptyGrid(t *testing.T) {
	results := NewEvaluator(nil).Eval()
	assert.Equal(t, 0, results.Rows())
	assert.Empty(t, results.Stuck())
}
