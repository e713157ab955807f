package ambsheet

import (
	"slices"
)

// DependencyNode represents a formula cell that was blocked at least once
type DependencyNode struct {
	Cell Position

	Precedents map[Position]struct{} // cells this cell is waiting on
}

// DependencyGraph records which cell blocked each formula evaluation. it is
// not computed up front: an edge appears when an attempt fails with a
// NotReadyError, and is cleared when the cell is attempted again.
type DependencyGraph struct {
	nodes map[Position]*DependencyNode
}

// NewDependencyGraph creates a new dependency graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes: make(map[Position]*DependencyNode),
	}
}

// GetOrCreateNode gets an existing node or creates a new one
func (dg *DependencyGraph) GetOrCreateNode(pos Position) *DependencyNode {
	if node, exists := dg.nodes[pos]; exists {
		return node
	}
	node := &DependencyNode{
		Cell:       pos,
		Precedents: make(map[Position]struct{}),
	}
	dg.nodes[pos] = node
	return node
}

// AddCellDependency records that from is waiting on to
func (dg *DependencyGraph) AddCellDependency(from, to Position) {
	dg.GetOrCreateNode(from).Precedents[to] = struct{}{}
}

// ClearDependencies removes every edge out of pos. a node without
// precedents is dropped.
func (dg *DependencyGraph) ClearDependencies(pos Position) {
	delete(dg.nodes, pos)
}

// GetDirectPrecedents returns the cells pos is waiting on, row-major
func (dg *DependencyGraph) GetDirectPrecedents(pos Position) []Position {
	node, exists := dg.nodes[pos]
	if !exists {
		return nil
	}
	return sortedPositions(node.Precedents)
}

// InCycle reports whether pos can reach itself by following precedents
func (dg *DependencyGraph) InCycle(pos Position) bool {
	visited := make(map[Position]struct{})
	stack := dg.GetDirectPrecedents(pos)
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current == pos {
			return true
		}
		if _, seen := visited[current]; seen {
			continue
		}
		visited[current] = struct{}{}
		stack = append(stack, dg.GetDirectPrecedents(current)...)
	}
	return false
}

// Clear removes every node and edge
func (dg *DependencyGraph) Clear() {
	dg.nodes = make(map[Position]*DependencyNode)
}

func sortedPositions(set map[Position]struct{}) []Position {
	out := make([]Position, 0, len(set))
	for pos := range set {
		out = append(out, pos)
	}
	slices.SortFunc(out, comparePositions)
	return out
}

// comparePositions orders positions row-major
func comparePositions(a, b Position) int {
	if a.Row != b.Row {
		return a.Row - b.Row
	}
	return a.Col - b.Col
}
