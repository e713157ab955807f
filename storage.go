package ambsheet

// Storage holds references to the tables an evaluator keeps across
// evaluations of the same grid
type Storage struct {
	worksheet       *Worksheet
	formulas        *FormulaTable
	dependencyGraph *DependencyGraph
}

func newStorage(grid [][]string) *Storage {
	return &Storage{
		worksheet:       NewWorksheet(grid),
		formulas:        NewFormulaTable(),
		dependencyGraph: NewDependencyGraph(),
	}
}
