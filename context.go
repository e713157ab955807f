package ambsheet

import (
	"fmt"
	"sort"
	"strings"
)

// AmbID identifies one amb node. IDs are allocated at parse time and are
// never shared between two nodes, even if their formula text is identical.
type AmbID uint32

// Choice records that the value at Index was chosen from amb node Node
type Choice struct {
	Node  AmbID
	Index int
}

// AmbContext is the set of amb choices that identifies one world. it is
// immutable; With and Merge return new contexts. choices are kept sorted by
// node so that compatibility and merging are a single linear walk.
type AmbContext struct {
	choices []Choice
}

// EmptyContext is the root world, no choices made yet
var EmptyContext = AmbContext{}

// NewAmbContext builds a context from explicit choices. a node listed twice
// with different indices makes the choices contradictory and returns false.
func NewAmbContext(choices ...Choice) (AmbContext, bool) {
	ctx := EmptyContext
	for _, c := range choices {
		if idx, ok := ctx.Lookup(c.Node); ok {
			if idx != c.Index {
				return EmptyContext, false
			}
			continue
		}
		ctx = ctx.With(c.Node, c.Index)
	}
	return ctx, true
}

// Len returns the number of choices in the context
func (c AmbContext) Len() int {
	return len(c.choices)
}

// Choices returns a copy of the choices, ordered by node
func (c AmbContext) Choices() []Choice {
	out := make([]Choice, len(c.choices))
	copy(out, c.choices)
	return out
}

// Lookup returns the index chosen for node, if any
func (c AmbContext) Lookup(node AmbID) (int, bool) {
	i := sort.Search(len(c.choices), func(i int) bool { return c.choices[i].Node >= node })
	if i < len(c.choices) && c.choices[i].Node == node {
		return c.choices[i].Index, true
	}
	return 0, false
}

// With returns a copy of the context extended with node -> index. an
// existing choice for node is replaced.
func (c AmbContext) With(node AmbID, index int) AmbContext {
	i := sort.Search(len(c.choices), func(i int) bool { return c.choices[i].Node >= node })
	if i < len(c.choices) && c.choices[i].Node == node {
		out := c.Choices()
		out[i].Index = index
		return AmbContext{choices: out}
	}

	out := make([]Choice, 0, len(c.choices)+1)
	out = append(out, c.choices[:i]...)
	out = append(out, Choice{Node: node, Index: index})
	out = append(out, c.choices[i:]...)
	return AmbContext{choices: out}
}

// Compatible reports whether every node present in both contexts maps to
// the same index. nodes present in only one context are not compared.
func Compatible(a, b AmbContext) bool {
	i, j := 0, 0
	for i < len(a.choices) && j < len(b.choices) {
		ca, cb := a.choices[i], b.choices[j]
		switch {
		case ca.Node < cb.Node:
			i++
		case ca.Node > cb.Node:
			j++
		default:
			if ca.Index != cb.Index {
				return false
			}
			i++
			j++
		}
	}
	return true
}

// Merge combines two contexts. ok is false when they are not compatible,
// in which case the returned context must not be used.
func Merge(a, b AmbContext) (AmbContext, bool) {
	if len(a.choices) == 0 {
		return b, true
	}
	if len(b.choices) == 0 {
		return a, true
	}

	out := make([]Choice, 0, len(a.choices)+len(b.choices))
	i, j := 0, 0
	for i < len(a.choices) && j < len(b.choices) {
		ca, cb := a.choices[i], b.choices[j]
		switch {
		case ca.Node < cb.Node:
			out = append(out, ca)
			i++
		case ca.Node > cb.Node:
			out = append(out, cb)
			j++
		default:
			if ca.Index != cb.Index {
				return EmptyContext, false
			}
			out = append(out, ca)
			i++
			j++
		}
	}
	out = append(out, a.choices[i:]...)
	out = append(out, b.choices[j:]...)
	return AmbContext{choices: out}, true
}

// Equal reports whether both contexts hold exactly the same choices
func (c AmbContext) Equal(other AmbContext) bool {
	if len(c.choices) != len(other.choices) {
		return false
	}
	for i := range c.choices {
		if c.choices[i] != other.choices[i] {
			return false
		}
	}
	return true
}

func (c AmbContext) String() string {
	parts := make([]string, len(c.choices))
	for i, ch := range c.choices {
		parts[i] = fmt.Sprintf("%d:%d", ch.Node, ch.Index)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// ResolvedContext is an AmbContext keyed by the name of the cell that owns
// each amb node ("B3"), so callers never hold internal node IDs. a cell that
// owns more than one amb node names the later ones "B3#2", "B3#3", ...
type ResolvedContext map[string]int

// String renders the choices sorted by name, "{A1=0 B3#2=1}"
func (r ResolvedContext) String() string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, r[name])
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// ambOwner records which cell an amb node was parsed in and its ordinal
// among that cell's amb nodes
type ambOwner struct {
	Cell    Position
	Ordinal int
}

func (o ambOwner) name() string {
	if o.Ordinal == 0 {
		return o.Cell.String()
	}
	return fmt.Sprintf("%s#%d", o.Cell, o.Ordinal+1)
}
