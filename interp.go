package ambsheet

import (
	"errors"
	"fmt"
	"math"
)

// ErrNotReady reports that a formula read a cell that has not resolved yet.
// it is a retry signal for the scheduler, not a fault.
var ErrNotReady = errors.New("dependency not ready")

// NotReadyError names the cell that blocked an evaluation
type NotReadyError struct {
	Cell Position
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("cell %s is not ready", e.Cell)
}

func (e *NotReadyError) Unwrap() error {
	return ErrNotReady
}

// Continuation receives one world: a value, the cell being evaluated and
// the choices that produced the value. it may be called any number of times
// per node. a non-nil return stops the whole evaluation.
type Continuation func(v Primitive, pos Position, ctx AmbContext) error

// CellReader gives the interpreter read access to the current results. ok
// is false for positions outside the grid.
type CellReader interface {
	Cell(pos Position) (result CellResult, ok bool)
}

// Interpreter walks formula ASTs in continuation-passing style
type Interpreter struct {
	cells     CellReader
	functions *BuiltInFunctions
	random    RandomGenerator
}

// NewInterpreter creates an interpreter reading cells from cells and drawing
// normal samples from random
func NewInterpreter(cells CellReader, functions *BuiltInFunctions, random RandomGenerator) *Interpreter {
	return &Interpreter{
		cells:     cells,
		functions: functions,
		random:    random,
	}
}

// EvaluateCell runs node from the root world and collects every world in
// continuation order. more than maxWorlds worlds (when positive) aborts the
// cell with #WORLDS!.
func (in *Interpreter) EvaluateCell(node ASTNode, pos Position, maxWorlds int) ([]Value, error) {
	values := []Value{}
	err := in.Interp(node, pos, EmptyContext, func(v Primitive, _ Position, ctx AmbContext) error {
		if maxWorlds > 0 && len(values) >= maxWorlds {
			return NewSpreadsheetError(ErrorCodeWorlds, fmt.Sprintf("%s produces more than %d worlds", pos, maxWorlds))
		}
		values = append(values, Value{Raw: v, Context: ctx})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// Interp interprets node for the cell at pos within world ctx, calling k
// once per world the node produces
func (in *Interpreter) Interp(node ASTNode, pos Position, ctx AmbContext, k Continuation) error {
	switch n := node.(type) {
	case *NumberNode:
		return k(n.Value, pos, ctx)

	case *StringNode:
		return k(n.Value, pos, ctx)

	case *BooleanNode:
		return k(n.Value, pos, ctx)

	case *CellRefNode:
		return in.interpRef(n.Target(pos), pos, ctx, k)

	case *RangeNode:
		bounds := n.Bounds(pos)
		cells, err := in.readyRange(bounds)
		if err != nil {
			return err
		}
		flat := make([]Primitive, 0, len(cells))
		return in.threadRange(cells, flat, ctx, func(flat []Primitive, rctx AmbContext) error {
			return k(bounds.shape(flat), pos, rctx)
		})

	case *BinaryOpNode:
		return in.Interp(n.Left, pos, ctx, func(left Primitive, _ Position, lctx AmbContext) error {
			return in.Interp(n.Right, pos, lctx, func(right Primitive, _ Position, rctx AmbContext) error {
				return k(applyBinary(n.Op, left, right), pos, rctx)
			})
		})

	case *UnaryOpNode:
		return in.Interp(n.Operand, pos, ctx, func(v Primitive, _ Position, uctx AmbContext) error {
			return k(applyUnary(n.Op, v), pos, uctx)
		})

	case *IfNode:
		return in.Interp(n.Cond, pos, ctx, func(cond Primitive, _ Position, cctx AmbContext) error {
			if err := checkForError(cond); err != nil {
				return k(err, pos, cctx)
			}
			if _, ok := cond.([][]Primitive); ok {
				return k(NewSpreadsheetError(ErrorCodeValue, "if condition must be a single value"), pos, cctx)
			}
			if isTruthy(cond) {
				return in.Interp(n.Then, pos, cctx, k)
			}
			return in.Interp(n.Else, pos, cctx, k)
		})

	case *FunctionCallNode:
		if !in.functions.Has(n.Name) {
			return NewSpreadsheetError(ErrorCodeName, fmt.Sprintf("Unknown function: %s", n.Name))
		}
		args := make([]Primitive, 0, len(n.Args))
		return in.threadArgs(n.Args, args, pos, ctx, func(args []Primitive, actx AmbContext) error {
			result, err := in.functions.Call(n.Name, args...)
			if err != nil {
				return err
			}
			return k(result, pos, actx)
		})

	case *AmbLiteralNode:
		return in.choose(n.ID, len(n.Values), ctx, func(i int, cctx AmbContext) error {
			return k(n.Values[i], pos, cctx)
		})

	case *AmbifyNode:
		return in.interpAmbify(n, pos, ctx, k)

	case *NormalNode:
		if n.samples == nil {
			n.samples = sampleNormal(in.random, n.Mean, n.Stdev, n.Count)
		}
		return in.choose(n.ID, len(n.samples), ctx, func(i int, cctx AmbContext) error {
			return k(n.samples[i], pos, cctx)
		})

	default:
		return NewSpreadsheetError(ErrorCodeOther, fmt.Sprintf("cannot interpret %T", node))
	}
}

// choose calls fn once per index of an amb node. a world that already chose
// from the node only sees its earlier choice.
func (in *Interpreter) choose(id AmbID, n int, ctx AmbContext, fn func(i int, ctx AmbContext) error) error {
	if i, ok := ctx.Lookup(id); ok {
		if i < n {
			return fn(i, ctx)
		}
		return nil
	}
	for i := 0; i < n; i++ {
		if err := fn(i, ctx.With(id, i)); err != nil {
			return err
		}
	}
	return nil
}

// interpRef yields every value of target that is compatible with ctx
func (in *Interpreter) interpRef(target, pos Position, ctx AmbContext, k Continuation) error {
	result, ok := in.cells.Cell(target)
	if !ok {
		return &NotReadyError{Cell: target}
	}

	switch result.State {
	case CellEmpty:
		return k(nil, pos, ctx)
	case CellNotReady:
		return &NotReadyError{Cell: target}
	case CellFailed:
		return k(result.Err, pos, ctx)
	}

	for _, v := range result.Values {
		merged, ok := Merge(ctx, v.Context)
		if !ok {
			continue
		}
		if err := k(v.Raw, pos, merged); err != nil {
			return err
		}
	}
	return nil
}

// readyRange returns the cells of a range row-major, or a NotReadyError for
// the first cell that is outside the grid or still pending
func (in *Interpreter) readyRange(bounds RangeAddress) ([]CellResult, error) {
	var cells []CellResult
	for p := range bounds.Positions() {
		result, ok := in.cells.Cell(p)
		if !ok || result.State == CellNotReady {
			return nil, &NotReadyError{Cell: p}
		}
		cells = append(cells, result)
	}
	return cells, nil
}

// threadRange picks one compatible value per cell, left to right, and calls
// fn with the flat row-major list for every combination
func (in *Interpreter) threadRange(cells []CellResult, acc []Primitive, ctx AmbContext, fn func([]Primitive, AmbContext) error) error {
	if len(cells) == 0 {
		out := make([]Primitive, len(acc))
		copy(out, acc)
		return fn(out, ctx)
	}

	cell, rest := cells[0], cells[1:]
	switch cell.State {
	case CellEmpty:
		return in.threadRange(rest, append(acc, nil), ctx, fn)
	case CellFailed:
		return in.threadRange(rest, append(acc, cell.Err), ctx, fn)
	}

	for _, v := range cell.Values {
		merged, ok := Merge(ctx, v.Context)
		if !ok {
			continue
		}
		if err := in.threadRange(rest, append(acc, v.Raw), merged, fn); err != nil {
			return err
		}
	}
	return nil
}

// threadArgs evaluates arguments left to right, each one inside every world
// of the previous ones
func (in *Interpreter) threadArgs(nodes []ASTNode, acc []Primitive, pos Position, ctx AmbContext, fn func([]Primitive, AmbContext) error) error {
	if len(nodes) == 0 {
		out := make([]Primitive, len(acc))
		copy(out, acc)
		return fn(out, ctx)
	}
	return in.Interp(nodes[0], pos, ctx, func(v Primitive, _ Position, actx AmbContext) error {
		return in.threadArgs(nodes[1:], append(acc, v), pos, actx, fn)
	})
}

// interpAmbify gives every cell of the range its own choice index, row-major.
// empty cells produce no world but still use up their index.
func (in *Interpreter) interpAmbify(n *AmbifyNode, pos Position, ctx AmbContext, k Continuation) error {
	cells, err := in.readyRange(n.Range.Bounds(pos))
	if err != nil {
		return err
	}

	return in.choose(n.ID, len(cells), ctx, func(i int, cctx AmbContext) error {
		cell := cells[i]
		switch cell.State {
		case CellEmpty:
			return nil
		case CellFailed:
			return k(cell.Err, pos, cctx)
		}
		for _, v := range cell.Values {
			merged, ok := Merge(cctx, v.Context)
			if !ok {
				continue
			}
			if err := k(v.Raw, pos, merged); err != nil {
				return err
			}
		}
		return nil
	})
}

// applyBinary applies a scalar operator to one pair of values. an error
// operand becomes the result.
func applyBinary(op BinaryOp, left, right Primitive) Primitive {
	if err := checkForError(left); err != nil {
		return err
	}
	if err := checkForError(right); err != nil {
		return err
	}
	_, leftRange := left.([][]Primitive)
	_, rightRange := right.([][]Primitive)
	if leftRange || rightRange {
		return NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("operator %s expects single values, got a range", op))
	}

	switch op {
	case BinOpConcat:
		return toString(left) + toString(right)
	case BinOpEqual:
		return boolNumber(comparePrimitives(left, right) == 0)
	case BinOpNotEqual:
		return boolNumber(comparePrimitives(left, right) != 0)
	case BinOpLess:
		return boolNumber(comparePrimitives(left, right) < 0)
	case BinOpLessEqual:
		return boolNumber(comparePrimitives(left, right) <= 0)
	case BinOpGreater:
		return boolNumber(comparePrimitives(left, right) > 0)
	case BinOpGreaterEqual:
		return boolNumber(comparePrimitives(left, right) >= 0)
	}

	leftNum, leftOk := toNumber(left)
	rightNum, rightOk := toNumber(right)
	if !leftOk || !rightOk {
		return NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("operator %s requires numeric values", op))
	}

	switch op {
	case BinOpAdd:
		return finite("Sum", leftNum+rightNum)
	case BinOpSubtract:
		return finite("Difference", leftNum-rightNum)
	case BinOpMultiply:
		return finite("Product", leftNum*rightNum)
	case BinOpDivide:
		if rightNum == 0 {
			return NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
		}
		return finite("Quotient", leftNum/rightNum)
	case BinOpPower:
		return finite("Power", math.Pow(leftNum, rightNum))
	default:
		return NewSpreadsheetError(ErrorCodeValue, "Unknown operator")
	}
}

// applyUnary applies a prefix or postfix operator to one value
func applyUnary(op UnaryOp, v Primitive) Primitive {
	if err := checkForError(v); err != nil {
		return err
	}
	num, ok := toNumber(v)
	if _, isRange := v.([][]Primitive); isRange || !ok {
		return NewSpreadsheetError(ErrorCodeValue, "Unary operator requires a numeric value")
	}

	switch op {
	case UnaryOpMinus:
		return -num
	case UnaryOpPercent:
		return num / 100.0
	default:
		return num
	}
}

func boolNumber(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// comparePrimitives compares two primitive values. returns -1 if left < right,
// 0 if equal, 1 if left > right
func comparePrimitives(left, right Primitive) int {
	// empty cells compare as 0 against numbers and as "" against text
	leftNum, leftIsNum := toNumber(left)
	rightNum, rightIsNum := toNumber(right)
	if leftIsNum && rightIsNum {
		switch {
		case leftNum < rightNum:
			return -1
		case leftNum > rightNum:
			return 1
		}
		return 0
	}

	// string comparison
	leftStr := toString(left)
	rightStr := toString(right)
	switch {
	case leftStr < rightStr:
		return -1
	case leftStr > rightStr:
		return 1
	}
	return 0
}
