package ambsheet

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorksheet_Classify(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		text string
		want CellType
	}{
		{"", CellTypeEmpty},
		{"   ", CellTypeEmpty},
		{"42", CellTypeNumber},
		{" -1.5e3 ", CellTypeNumber},
		{"TRUE", CellTypeBoolean},
		{"False", CellTypeBoolean},
		{"hello", CellTypeString},
		{"NaN", CellTypeString},
		{"Nan", CellTypeString},
		{"inf", CellTypeString},
		{"-Inf", CellTypeString},
		{"Infinity", CellTypeString},
		{"1e400", CellTypeString},
		{"=1+", CellTypeFormula},
		{"{1,2}", CellTypeFormula},
		{"{not closed", CellTypeString},
	}

	for _, tc := range testCases {
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, classify(tc.text))
		})
	}
}

func TestWorksheet_Grid(t *testing.T) {
	grid := [][]string{
		{"1", "x"},
		{"=A1", "TRUE", "{1,2}"},
	}
	ws := NewWorksheet(grid)

	assert.Equal(t, 2, ws.Rows())
	assert.Equal(t, 3, ws.Cols())
	assert.Equal(t, CellTypeEmpty, ws.Type(Position{Row: 0, Col: 2}), "ragged rows are padded")
	assert.Equal(t, "=A1", ws.Source(Position{Row: 1, Col: 0}))
	assert.Equal(t, "", ws.Source(Position{Row: 5, Col: 5}))

	assert.Equal(t, 1.0, ws.LiteralValue(Position{Row: 0, Col: 0}))
	assert.Equal(t, "x", ws.LiteralValue(Position{Row: 0, Col: 1}))
	assert.Equal(t, true, ws.LiteralValue(Position{Row: 1, Col: 1}))
	assert.Nil(t, ws.LiteralValue(Position{Row: 1, Col: 0}))

	assert.Equal(t, 2, ws.GetCellTypeCount(CellTypeFormula))
	assert.Equal(t, 1, ws.GetCellTypeCount(CellTypeEmpty))
	assert.Equal(t, 0, ws.GetCellTypeCount(CellType(42)))

	grid[0][0] = "changed"
	assert.Equal(t, "1", ws.Source(Position{Row: 0, Col: 0}), "the grid is copied")
}

func TestRangeAddress(t *testing.T) {
	r, err := ParseRangeAddress("C3:A1")
	require.NoError(t, err)
	assert.Equal(t, RangeAddress{StartRow: 0, StartColumn: 0, EndRow: 2, EndColumn: 2}, r)
	assert.Equal(t, 3, r.Rows())
	assert.Equal(t, 3, r.Cols())
	assert.Equal(t, "A1:C3", r.String())
	assert.True(t, r.Contains(Position{Row: 1, Col: 2}))
	assert.False(t, r.Contains(Position{Row: 3, Col: 0}))

	single, err := ParseRangeAddress("$B$2")
	require.NoError(t, err)
	assert.Equal(t, "B2", single.String())

	_, err = ParseRangeAddress("A1:nope")
	assert.Error(t, err)

	small, err := ParseRangeAddress("A1:B2")
	require.NoError(t, err)
	assert.Equal(t, []Position{{0, 0}, {0, 1}, {1, 0}, {1, 1}}, slices.Collect(small.Positions()))
	assert.Equal(t, [][]Primitive{{1.0, 2.0}, {3.0, 4.0}}, small.shape([]Primitive{1.0, 2.0, 3.0, 4.0}))
}
