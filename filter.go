package ambsheet

// Selection is a set of acceptable worlds picked in one cell. a context is
// admitted when it is compatible with at least one of them; an empty
// selection admits nothing.
type Selection []AmbContext

// Admits reports whether ctx is compatible with any context of the selection
func (s Selection) Admits(ctx AmbContext) bool {
	for _, picked := range s {
		if Compatible(picked, ctx) {
			return true
		}
	}
	return false
}

// Included reports whether ctx is admitted by every selection
func Included(ctx AmbContext, selections []Selection) bool {
	for _, selection := range selections {
		if !selection.Admits(ctx) {
			return false
		}
	}
	return true
}

// FilteredResults pairs a Results grid with an include flag for every value
type FilteredResults struct {
	results *Results
	include [][][]bool
}

// Filter flags every value of every cell: a value is included when its
// context is admitted by all selections. no selections include everything.
func Filter(results *Results, selections []Selection) *FilteredResults {
	include := make([][][]bool, results.Rows())
	for r := range include {
		include[r] = make([][]bool, results.Cols())
		for c := range include[r] {
			values := results.cells[r][c].Values
			flags := make([]bool, len(values))
			for i, v := range values {
				flags[i] = Included(v.Context, selections)
			}
			include[r][c] = flags
		}
	}
	return &FilteredResults{results: results, include: include}
}

// Results returns the unfiltered grid
func (f *FilteredResults) Results() *Results {
	return f.results
}

// Include returns the include flags of the values at pos, index-aligned
// with the cell's Values
func (f *FilteredResults) Include(pos Position) []bool {
	if !f.results.contains(pos) {
		return nil
	}
	return f.include[pos.Row][pos.Col]
}

// Values returns only the included values at pos
func (f *FilteredResults) Values(pos Position) []Value {
	flags := f.Include(pos)
	if flags == nil {
		return nil
	}
	var out []Value
	for i, v := range f.results.cells[pos.Row][pos.Col].Values {
		if flags[i] {
			out = append(out, v)
		}
	}
	return out
}
