package ambsheet

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// AppErrorCode represents gRPC-style error codes for application-level errors.
// note that we are skipping error codes that don't make sense for our use-case,
// like unauthenticated, or permission denied.
type AppErrorCode int

const (
	// OK indicates the operation completed successfully.
	OK AppErrorCode = 0

	// Unknown error. Errors raised by APIs that do not return enough error
	// information may be converted to this error.
	Unknown AppErrorCode = 2

	// InvalidArgument indicates client specified an invalid argument.
	InvalidArgument AppErrorCode = 3

	// NotFound means some requested entity (e.g., a cell or a value index)
	// was not found.
	NotFound AppErrorCode = 5

	// FailedPrecondition indicates operation was rejected because the
	// system is not in a state required for the operation's execution.
	FailedPrecondition AppErrorCode = 9

	// OutOfRange means operation was attempted past the valid range.
	OutOfRange AppErrorCode = 11

	// Internal errors. Means some invariants expected by underlying
	// system has been broken.
	Internal AppErrorCode = 13
)

// AppError represents errors at the application level (not
// spreadsheet formula errors)
type AppError struct {
	Code    AppErrorCode
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

// NewApplicationError creates a new application error
func NewApplicationError(code AppErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// DefaultMaxWorlds bounds the worlds a single cell may produce
const DefaultMaxWorlds = 100000

// DefaultSeed seeds the normal sampler when no seed or generator is given
const DefaultSeed uint64 = 1

// Option configures an Evaluator
type Option func(*Evaluator)

// WithLogger sets the logger used for pass and fan-out diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMaxWorlds bounds the number of worlds per cell. zero or a negative
// value disables the bound.
func WithMaxWorlds(n int) Option {
	return func(e *Evaluator) {
		e.maxWorlds = n
	}
}

// WithSeed seeds the generator behind normal()
func WithSeed(seed uint64) Option {
	return func(e *Evaluator) {
		e.random = NewSeededRandom(seed)
	}
}

// WithRandom replaces the generator behind normal()
func WithRandom(random RandomGenerator) Option {
	return func(e *Evaluator) {
		if random != nil {
			e.random = random
		}
	}
}

// Evaluator evaluates one fixed grid of cell source text. formulas are parsed
// on first use and kept, so every call to Eval sees the same amb nodes.
type Evaluator struct {
	storage   *Storage
	functions *BuiltInFunctions
	random    RandomGenerator
	logger    *slog.Logger
	maxWorlds int
}

// NewEvaluator creates an evaluator for grid. the grid is copied; ragged
// rows are padded with empty cells.
func NewEvaluator(grid [][]string, opts ...Option) *Evaluator {
	e := &Evaluator{
		storage:   newStorage(grid),
		functions: NewDefaultBuiltInFunctions(),
		random:    NewSeededRandom(DefaultSeed),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxWorlds: DefaultMaxWorlds,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Worksheet returns the source grid
func (e *Evaluator) Worksheet() *Worksheet {
	return e.storage.worksheet
}

// Eval evaluates the whole grid from scratch. formula cells are retried in
// row-major passes until a pass resolves nothing; cells still pending at that
// point stay CellNotReady and are reported by Results.Stuck.
func (e *Evaluator) Eval() *Results {
	ws := e.storage.worksheet
	graph := e.storage.dependencyGraph
	graph.Clear()

	results := newResults(ws)
	var formulas []Position
	for pos := range results.bounds().Positions() {
		switch ws.Type(pos) {
		case CellTypeEmpty:
			results.set(pos, CellResult{State: CellEmpty})
		case CellTypeFormula:
			results.set(pos, CellResult{State: CellNotReady})
			formulas = append(formulas, pos)
		default:
			results.set(pos, CellResult{
				State:  CellResolved,
				Values: []Value{{Raw: ws.LiteralValue(pos), Context: EmptyContext}},
			})
		}
	}

	interp := NewInterpreter(results, e.functions, e.random)
	for pass := 1; ; pass++ {
		progress := 0
		for _, pos := range formulas {
			if results.cells[pos.Row][pos.Col].State != CellNotReady || e.stillBlocked(results, pos) {
				continue
			}
			if e.evaluateCell(interp, results, pos) {
				progress++
			}
		}
		e.logger.Debug("evaluation pass complete", "pass", pass, "resolved", progress)
		if progress == 0 {
			break
		}
	}

	results.owners = e.storage.formulas.snapshotOwners()
	results.stuck = classifyStuck(results, ws, graph)
	if len(results.stuck) > 0 {
		e.logger.Warn("cells left unresolved", "count", len(results.stuck))
	}
	return results
}

// stillBlocked reports whether the cell that blocked the last attempt at pos
// is still unavailable. retrying would hit the same cell again, because every
// read before it saw a resolved cell and resolved cells never change.
func (e *Evaluator) stillBlocked(results *Results, pos Position) bool {
	precedents := e.storage.dependencyGraph.GetDirectPrecedents(pos)
	if len(precedents) == 0 {
		return false
	}
	blocker, ok := results.Cell(precedents[0])
	return !ok || blocker.State == CellNotReady
}

// evaluateCell attempts one formula cell and reports whether it left the
// NotReady state
func (e *Evaluator) evaluateCell(interp *Interpreter, results *Results, pos Position) bool {
	graph := e.storage.dependencyGraph
	graph.ClearDependencies(pos)

	ast, parseErr := e.storage.formulas.GetAST(pos, e.storage.worksheet.Source(pos))
	if parseErr != nil {
		e.logger.Debug("formula failed to parse", "cell", pos.String(), "error", parseErr.Message)
		results.set(pos, CellResult{State: CellFailed, Err: parseErr})
		return true
	}

	values, err := interp.EvaluateCell(ast, pos, e.maxWorlds)
	if err == nil {
		results.set(pos, CellResult{State: CellResolved, Values: values})
		return true
	}

	var notReady *NotReadyError
	if errors.As(err, &notReady) {
		graph.AddCellDependency(pos, notReady.Cell)
		return false
	}

	var cellErr *SpreadsheetError
	if !errors.As(err, &cellErr) {
		cellErr = NewSpreadsheetError(ErrorCodeOther, err.Error())
	}
	if cellErr.ErrorCode == ErrorCodeWorlds {
		e.logger.Warn("cell fan-out exceeded", "cell", pos.String(), "max_worlds", e.maxWorlds)
	}
	results.set(pos, CellResult{State: CellFailed, Err: cellErr})
	return true
}

// Results is the evaluated grid. it is built by one Eval call and not
// modified afterwards.
type Results struct {
	rows   int
	cols   int
	cells  [][]CellResult
	owners map[AmbID]ambOwner
	stuck  []StuckCell
}

func newResults(ws *Worksheet) *Results {
	cells := make([][]CellResult, ws.Rows())
	for r := range cells {
		cells[r] = make([]CellResult, ws.Cols())
	}
	return &Results{
		rows:  ws.Rows(),
		cols:  ws.Cols(),
		cells: cells,
	}
}

func (r *Results) bounds() RangeAddress {
	return RangeAddress{StartRow: 0, StartColumn: 0, EndRow: r.rows - 1, EndColumn: r.cols - 1}
}

func (r *Results) set(pos Position, result CellResult) {
	r.cells[pos.Row][pos.Col] = result
}

func (r *Results) contains(pos Position) bool {
	return pos.Row >= 0 && pos.Row < r.rows && pos.Col >= 0 && pos.Col < r.cols
}

// Cell returns the result at pos; ok is false outside the grid
func (r *Results) Cell(pos Position) (CellResult, bool) {
	if !r.contains(pos) {
		return CellResult{}, false
	}
	return r.cells[pos.Row][pos.Col], true
}

// Get returns the result at pos, an empty result outside the grid
func (r *Results) Get(pos Position) CellResult {
	result, _ := r.Cell(pos)
	return result
}

// GetByName returns the result for an A1-style cell name
func (r *Results) GetByName(name string) (CellResult, error) {
	pos, err := ParsePosition(name)
	if err != nil {
		return CellResult{}, err
	}
	result, ok := r.Cell(pos)
	if !ok {
		return CellResult{}, NewApplicationError(OutOfRange, fmt.Sprintf("cell %s is outside the %dx%d grid", pos, r.rows, r.cols))
	}
	return result, nil
}

// Rows returns the number of rows in the grid
func (r *Results) Rows() int {
	return r.rows
}

// Cols returns the number of columns in the grid
func (r *Results) Cols() int {
	return r.cols
}

// Resolve converts a context into one keyed by cell name
func (r *Results) Resolve(ctx AmbContext) ResolvedContext {
	resolved := make(ResolvedContext, ctx.Len())
	for _, choice := range ctx.Choices() {
		owner, ok := r.owners[choice.Node]
		if !ok {
			resolved[fmt.Sprintf("#%d", choice.Node)] = choice.Index
			continue
		}
		resolved[owner.name()] = choice.Index
	}
	return resolved
}

// Select builds a selection from the contexts of some values of one cell,
// identified by their position in the cell's value list
func (r *Results) Select(pos Position, indices ...int) (Selection, error) {
	result, ok := r.Cell(pos)
	if !ok {
		return nil, NewApplicationError(OutOfRange, fmt.Sprintf("cell %s is outside the %dx%d grid", pos, r.rows, r.cols))
	}
	if result.State != CellResolved {
		return nil, NewApplicationError(FailedPrecondition, fmt.Sprintf("cell %s is %s, not resolved", pos, result.State))
	}

	selection := make(Selection, 0, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(result.Values) {
			return nil, NewApplicationError(NotFound, fmt.Sprintf("cell %s has no value %d", pos, i))
		}
		selection = append(selection, result.Values[i].Context)
	}
	return selection, nil
}

// Stuck returns the cells left unresolved, row-major
func (r *Results) Stuck() []StuckCell {
	return r.stuck
}

// StuckReason says why a cell never resolved
type StuckReason uint8

const (
	StuckCycle   StuckReason = 1 // the cell is on a dependency cycle
	StuckMissing StuckReason = 2 // the cell waits on a position outside the grid
	StuckBlocked StuckReason = 3 // the cell waits on another stuck cell
)

func (s StuckReason) String() string {
	switch s {
	case StuckCycle:
		return "cycle"
	case StuckMissing:
		return "missing"
	case StuckBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// StuckCell describes one unresolved cell and the cell it waits on
type StuckCell struct {
	Cell    Position
	Blocker Position
	Reason  StuckReason
}

// classifyStuck explains every cell still NotReady using the edges recorded
// by the failed attempts
func classifyStuck(results *Results, ws *Worksheet, graph *DependencyGraph) []StuckCell {
	var stuck []StuckCell
	for pos := range results.bounds().Positions() {
		if results.cells[pos.Row][pos.Col].State != CellNotReady {
			continue
		}
		cell := StuckCell{Cell: pos, Reason: StuckBlocked}
		if precedents := graph.GetDirectPrecedents(pos); len(precedents) > 0 {
			cell.Blocker = precedents[0]
		}
		switch {
		case !ws.Contains(cell.Blocker):
			cell.Reason = StuckMissing
		case graph.InCycle(pos):
			cell.Reason = StuckCycle
		}
		stuck = append(stuck, cell)
	}
	return stuck
}
