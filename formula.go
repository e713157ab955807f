package ambsheet

import (
	"errors"
)

// formulaEntry is the cached parse of one cell. a parse failure is cached
// too so a broken formula is reported identically on every evaluation.
type formulaEntry struct {
	ast      ASTNode
	err      *SpreadsheetError
	ambNodes []AmbID // amb nodes of this cell in source order
}

// FormulaTable parses formula cells lazily, once per cell, and remembers
// which cell owns every amb node so contexts can be reported by cell name.
// cached ASTs keep their amb IDs and normal samples, so repeated evaluations
// of the same grid see the same nodes.
type FormulaTable struct {
	entries map[Position]*formulaEntry // cell -> cached parse
	owners  map[AmbID]ambOwner         // amb node -> owning cell

	nextID AmbID
}

// NewFormulaTable creates a new formula table
func NewFormulaTable() *FormulaTable {
	return &FormulaTable{
		entries: make(map[Position]*formulaEntry),
		owners:  make(map[AmbID]ambOwner),
		nextID:  1, // start at 1, reserve 0 for no amb node
	}
}

func (ft *FormulaTable) allocID() AmbID {
	id := ft.nextID
	ft.nextID++
	return id
}

// GetAST returns the AST for the formula text at pos, parsing it on first
// use. the returned error is always a *SpreadsheetError with #PARSE!.
func (ft *FormulaTable) GetAST(pos Position, text string) (ASTNode, *SpreadsheetError) {
	if entry, ok := ft.entries[pos]; ok {
		return entry.ast, entry.err
	}

	entry := &formulaEntry{}
	ast, ambNodes, err := parseFormula(text, pos, ft.allocID)
	if err != nil {
		var parseErr *SpreadsheetError
		if !errors.As(err, &parseErr) {
			parseErr = NewSpreadsheetError(ErrorCodeParse, err.Error())
		}
		entry.err = parseErr
	} else {
		entry.ast = ast
		entry.ambNodes = ambNodes
		for ordinal, id := range ambNodes {
			ft.owners[id] = ambOwner{Cell: pos, Ordinal: ordinal}
		}
	}
	ft.entries[pos] = entry
	return entry.ast, entry.err
}

// AmbNodesAt returns the amb node IDs parsed from the cell at pos
func (ft *FormulaTable) AmbNodesAt(pos Position) []AmbID {
	entry, ok := ft.entries[pos]
	if !ok {
		return nil
	}
	return entry.ambNodes
}

// snapshotOwners copies the ownership map for a Results value
func (ft *FormulaTable) snapshotOwners() map[AmbID]ambOwner {
	owners := make(map[AmbID]ambOwner, len(ft.owners))
	for id, owner := range ft.owners {
		owners[id] = owner
	}
	return owners
}
