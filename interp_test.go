package ambsheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contexts(values []Value) []AmbContext {
	out := make([]AmbContext, len(values))
	for i, v := range values {
		out[i] = v.Context
	}
	return out
}

func TestAmbLiteralWorlds(t *testing.T) {
	tc := NewSheetTestCase(t, "one world per value").
		Set("A1", "{1,2,3}").
		Set("A2", "{5 x 3}").
		Set("A3", "{1 to 3}").
		Run().
		AssertValues("A1", 1.0, 2.0, 3.0).
		AssertValues("A2", 5.0, 5.0, 5.0).
		AssertValues("A3", 1.0, 2.0, 3.0)

	for _, address := range []string{"A1", "A2", "A3"} {
		pos, err := ParsePosition(address)
		require.NoError(t, err)
		ids := tc.evaluator.storage.formulas.AmbNodesAt(pos)
		require.Len(t, ids, 1)

		got := contexts(tc.results.Get(pos).Values)
		require.Len(t, got, 3)
		for i, ctx := range got {
			assert.True(t, ctx.Equal(EmptyContext.With(ids[0], i)), "%s world %d has context %s", address, i, ctx)
		}
	}
}

func TestRepeatedValuesAreDistinctWorlds(t *testing.T) {
	NewSheetTestCase(t, "repeat keeps its worlds apart").
		Set("A1", "{5 x 2}").
		Set("B1", "=A1+A1").
		Set("C1", "=SUM(A1:B1)").
		Run().
		AssertValues("B1", 10.0, 10.0).
		AssertValues("C1", 15.0, 15.0).
		End()
}

func TestIndependentAmbsCombine(t *testing.T) {
	NewSheetTestCase(t, "cross product in evaluation order").
		Set("A1", "={1,2}+{10,20}").
		Run().
		AssertValues("A1", 11.0, 21.0, 12.0, 22.0).
		AssertResolvedContext("A1", 1, ResolvedContext{"A1": 0, "A1#2": 1}).
		End()
}

func TestSharedAmbStaysConsistent(t *testing.T) {
	NewSheetTestCase(t, "same choice on both sides").
		Set("A1", "{1,2}").
		Set("B1", "=A1*10").
		Set("C1", "=A1+B1").
		Set("D1", "=A1+A1").
		Set("E1", "=B1-A1").
		Run().
		AssertValues("B1", 10.0, 20.0).
		AssertValues("C1", 11.0, 22.0).
		AssertValues("D1", 2.0, 4.0).
		AssertValues("E1", 9.0, 18.0).
		AssertResolvedContext("C1", 1, ResolvedContext{"A1": 1}).
		End()
}

func TestZeroWorlds(t *testing.T) {
	NewSheetTestCase(t, "an amb with no values").
		Set("A1", "{1 x 0}").
		Set("B1", "=A1+1").
		Set("C1", "={1,2}+A1").
		Run().
		AssertNoWorlds("A1").
		AssertNoWorlds("B1").
		AssertNoWorlds("C1").
		End()
}

func TestRangeThreadsWorlds(t *testing.T) {
	NewSheetTestCase(t, "sum over a range holding an amb").
		Set("A1", "{1,2}").
		Set("A2", "10").
		Set("B1", "=SUM(A1:A2)").
		Set("B2", "=SUM(A1:A2)+A1").
		Set("B3", "=SUM(A1:A2, {0,100})").
		Run().
		AssertValues("B1", 11.0, 12.0).
		AssertValues("B2", 12.0, 14.0).
		AssertValues("B3", 11.0, 111.0, 12.0, 112.0).
		AssertResolvedContext("B1", 1, ResolvedContext{"A1": 1}).
		End()

	NewSheetTestCase(t, "range cells constrain each other").
		Set("A1", "{1,2}").
		Set("A2", "=A1*10").
		Set("B1", "=SUM(A1:A2)").
		Run().
		AssertValues("B1", 11.0, 22.0).
		End()
}

func TestAmbify(t *testing.T) {
	NewSheetTestCase(t, "every range cell is one choice").
		Set("A1", "1").
		Set("A2", "").
		Set("A3", "{3,4}").
		Set("B1", "=ambify(A1:A3)").
		Set("B2", "=B1*2").
		Run().
		AssertValues("B1", 1.0, 3.0, 4.0).
		AssertResolvedContext("B1", 0, ResolvedContext{"B1": 0}).
		AssertResolvedContext("B1", 1, ResolvedContext{"B1": 2, "A3": 0}).
		AssertResolvedContext("B1", 2, ResolvedContext{"B1": 2, "A3": 1}).
		AssertValues("B2", 2.0, 6.0, 8.0).
		End()

	NewSheetTestCase(t, "ambify of one cell").
		Set("A1", "7").
		Set("B1", "=AMBIFY($A$1)").
		Run().
		AssertValues("B1", 7.0).
		AssertResolvedContext("B1", 0, ResolvedContext{"B1": 0}).
		End()

	NewSheetTestCase(t, "ambify keeps failed cells").
		Set("A1", "=NOPE()").
		Set("A2", "2").
		Set("B1", "=ambify(A1:A2)").
		Run().
		AssertValueErr("B1", 0, ErrorCodeName).
		AssertValues("B1", NewSpreadsheetError(ErrorCodeName, "Unknown function: NOPE"), 2.0).
		End()
}

func TestIfOnlyExploresTakenBranch(t *testing.T) {
	NewSheetTestCase(t, "branching").
		Set("A1", "{0,1}").
		Set("B1", "=if(A1, {5,6}, 7)").
		Set("C1", `=IF(A1>0, "yes", "no")`).
		Run().
		AssertValues("B1", 7.0, 5.0, 6.0).
		AssertValues("C1", "no", "yes").
		AssertResolvedContext("B1", 0, ResolvedContext{"A1": 0}).
		AssertResolvedContext("B1", 2, ResolvedContext{"A1": 1, "B1": 1}).
		End()
}

func TestNormal(t *testing.T) {
	NewSheetTestCase(t, "zero deviation").
		Set("A1", "=normal(5, 0, 3)").
		Run().
		AssertValues("A1", 5.0, 5.0, 5.0).
		End()

	grid := [][]string{{"=normal(0, 1, 8)", "=A1*2"}}
	a := NewEvaluator(grid, WithSeed(7)).Eval()
	b := NewEvaluator(grid, WithSeed(7)).Eval()
	c := NewEvaluator(grid, WithSeed(8)).Eval()

	first := a.Get(Position{Row: 0, Col: 0}).Values
	require.Len(t, first, 8)
	assert.Equal(t, first, b.Get(Position{Row: 0, Col: 0}).Values, "same seed, same samples")
	assert.NotEqual(t, first, c.Get(Position{Row: 0, Col: 0}).Values, "different seed, different samples")

	doubled := a.Get(Position{Row: 0, Col: 1}).Values
	require.Len(t, doubled, 8)
	for i := range doubled {
		assert.Equal(t, first[i].Raw.(float64)*2, doubled[i].Raw)
		assert.True(t, first[i].Context.Equal(doubled[i].Context))
	}
}

func TestInterpreterNotReady(t *testing.T) {
	cells := NewEvaluator([][]string{{"1", "=A1"}}).Eval()
	interp := NewInterpreter(cells, NewDefaultBuiltInFunctions(), NewSeededRandom(DefaultSeed))

	node := mustParse(t, "=C5+1", Position{})
	_, err := interp.EvaluateCell(node, Position{}, 0)
	require.ErrorIs(t, err, ErrNotReady)

	var notReady *NotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Equal(t, Position{Row: 4, Col: 2}, notReady.Cell)

	values, err := interp.EvaluateCell(mustParse(t, "=B1+1", Position{}), Position{}, 0)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, 2.0, values[0].Raw)
}

func TestInterpreterContinuationStops(t *testing.T) {
	interp := NewInterpreter(NewEvaluator(nil).Eval(), NewDefaultBuiltInFunctions(), NewSeededRandom(DefaultSeed))
	node := mustParse(t, "{1,2,3}", Position{})

	var seen []Primitive
	stop := NewSpreadsheetError(ErrorCodeOther, "stop")
	err := interp.Interp(node, Position{}, EmptyContext, func(v Primitive, _ Position, _ AmbContext) error {
		seen = append(seen, v)
		if len(seen) == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []Primitive{1.0, 2.0}, seen)
}

func TestInterpreterHonorsExistingChoice(t *testing.T) {
	interp := NewInterpreter(NewEvaluator(nil).Eval(), NewDefaultBuiltInFunctions(), NewSeededRandom(DefaultSeed))
	node := mustParse(t, "{1,2,3}", Position{})
	id := node.(*AmbLiteralNode).ID

	var seen []Primitive
	err := interp.Interp(node, Position{}, EmptyContext.With(id, 2), func(v Primitive, _ Position, _ AmbContext) error {
		seen = append(seen, v)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []Primitive{3.0}, seen)
}

func TestComparePrimitives(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		left  Primitive
		right Primitive
		want  int
	}{
		{"numbers", 1.0, 2.0, -1},
		{"numeric strings", "10", 9.0, 1},
		{"empty as zero", nil, 0.0, 0},
		{"empty as blank text", nil, "", 0},
		{"text", "b", "a", 1},
		{"bool and number", true, 1.0, 0},
		{"number and text", 1.0, "a", -1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, comparePrimitives(tc.left, tc.right))
		})
	}
}
