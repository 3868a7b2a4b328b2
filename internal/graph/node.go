// Package graph implements the lazy operator graph and its materializer.
//
// Every deferred column transformation is one node in an append-only arena.
// Nodes hold indices of already-existing nodes as inputs, so the graph is a
// DAG by construction and shared subexpressions are plain index reuse.
// Nothing is evaluated until Materialize streams segments through the
// operator chain and seals the result through the segment writer protocol.
package graph

import (
	"sync"

	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/segment"
	"github.com/ajitpratap0/strata/pkg/value"
)

// NodeKind discriminates operator nodes.
type NodeKind uint8

const (
	// NodeSource reads one column of a realized store.
	NodeSource NodeKind = iota
	// NodeConst produces a constant-filled column.
	NodeConst
	// NodeSequence produces a half-open integer range.
	NodeSequence
	// NodeBinary applies an arithmetic operator elementwise.
	NodeBinary
	// NodeCompare applies a comparison elementwise, yielding 1/0 masks.
	NodeCompare
	// NodeLogical applies a truthiness operator elementwise.
	NodeLogical
	// NodeCast converts elements to a target kind.
	NodeCast
	// NodeMap applies a row function over one or more aligned inputs.
	NodeMap
	// NodeFilter keeps rows where an aligned mask is truthy.
	NodeFilter
	// NodeSlice restricts to a clamped half-open row range.
	NodeSlice
)

// BinOp selects an arithmetic operator for NodeBinary.
type BinOp uint8

// Arithmetic operators.
const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
)

// LogicalOp selects a truthiness operator for NodeLogical.
type LogicalOp uint8

// Logical operators.
const (
	OpAnd LogicalOp = iota
	OpOr
)

// MapFunc is a user transformation applied per row at materialization
// time. Errors it returns surface only when the node is evaluated.
type MapFunc func(row []value.Value) (value.Value, error)

// Node is one operator in the arena. Nodes are immutable after
// construction except for the memoized materialization result.
type Node struct {
	ID     int
	Kind   NodeKind
	Out    value.Kind
	Inputs []int

	// Payloads, by kind.
	Store    *segment.Store // NodeSource
	Col      int            // NodeSource
	Const    value.Value    // NodeConst
	Length   int            // NodeConst
	SeqStart int64          // NodeSequence
	SeqStop  int64          // NodeSequence
	Bin      BinOp          // NodeBinary
	Cmp      value.CmpOp    // NodeCompare
	Log      LogicalOp      // NodeLogical
	CastTo   value.Kind     // NodeCast
	Fn       MapFunc        // NodeMap

	// Slice bounds, already clamped to the input's length.
	SliceStart int
	SliceStop  int

	// cache memoizes the materialized result; guarded by the graph lock.
	cache *segment.Store
}

// Graph is an append-only arena of nodes. Safe for concurrent use.
type Graph struct {
	mu    sync.Mutex
	nodes []*Node
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{}
}

func (g *Graph) add(n *Node) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n.ID = len(g.nodes)
	g.nodes = append(g.nodes, n)
	return n.ID
}

// Node returns the node with the given id.
func (g *Graph) Node(id int) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nodes[id]
}

func (g *Graph) cached(id int) *segment.Store {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nodes[id].cache
}

func (g *Graph) setCache(id int, s *segment.Store) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[id].cache = s
}

// AddSource appends a node reading column col of a realized store.
func (g *Graph) AddSource(store *segment.Store, col int) int {
	return g.add(&Node{
		Kind:  NodeSource,
		Out:   store.Columns()[col].Kind,
		Store: store,
		Col:   col,
	})
}

// AddConst appends a constant-filled node of the given length.
func (g *Graph) AddConst(v value.Value, length int) int {
	return g.add(&Node{
		Kind:   NodeConst,
		Out:    v.Kind(),
		Const:  v,
		Length: length,
	})
}

// AddSequence appends a half-open integer sequence node.
func (g *Graph) AddSequence(start, stop int64) int {
	if stop < start {
		stop = start
	}
	return g.add(&Node{
		Kind:     NodeSequence,
		Out:      value.KindInt,
		SeqStart: start,
		SeqStop:  stop,
	})
}

// AddBinary appends an elementwise arithmetic node. The output kind is
// resolved from the operand kinds at construction time; incompatible
// kinds fail immediately.
func (g *Graph) AddBinary(op BinOp, a, b int) (int, error) {
	out, err := promoteBinary(op, g.Node(a).Out, g.Node(b).Out)
	if err != nil {
		return 0, err
	}
	return g.add(&Node{
		Kind:   NodeBinary,
		Out:    out,
		Inputs: []int{a, b},
		Bin:    op,
	}), nil
}

// AddCompare appends an elementwise comparison node.
func (g *Graph) AddCompare(op value.CmpOp, a, b int) (int, error) {
	if err := checkComparable(op, g.Node(a).Out, g.Node(b).Out); err != nil {
		return 0, err
	}
	return g.add(&Node{
		Kind:   NodeCompare,
		Out:    value.KindInt,
		Inputs: []int{a, b},
		Cmp:    op,
	}), nil
}

// AddLogical appends an elementwise truthiness node.
func (g *Graph) AddLogical(op LogicalOp, a, b int) int {
	return g.add(&Node{
		Kind:   NodeLogical,
		Out:    value.KindInt,
		Inputs: []int{a, b},
		Log:    op,
	})
}

// AddCast appends an elementwise cast node. Per-element conversion
// failures are deferred to materialization.
func (g *Graph) AddCast(in int, to value.Kind) int {
	return g.add(&Node{
		Kind:   NodeCast,
		Out:    to,
		Inputs: []int{in},
		CastTo: to,
	})
}

// AddMap appends a row-function node over one or more aligned inputs.
// The declared output kind is not verified against the function's actual
// returns until materialization.
func (g *Graph) AddMap(inputs []int, fn MapFunc, out value.Kind) int {
	return g.add(&Node{
		Kind:   NodeMap,
		Out:    out,
		Inputs: inputs,
		Fn:     fn,
	})
}

// AddFilter appends a mask-filter node. The mask must be row-aligned with
// the input; its truthiness selects surviving rows.
func (g *Graph) AddFilter(in, mask int) int {
	return g.add(&Node{
		Kind:   NodeFilter,
		Out:    g.Node(in).Out,
		Inputs: []int{in, mask},
	})
}

// AddSlice appends a row-range node. Bounds must already be clamped to
// the input's length.
func (g *Graph) AddSlice(in, start, stop int) int {
	if stop < start {
		stop = start
	}
	return g.add(&Node{
		Kind:       NodeSlice,
		Out:        g.Node(in).Out,
		Inputs:     []int{in},
		SliceStart: start,
		SliceStop:  stop,
	})
}

// Len returns the node's row count when it is statically known. A filter
// node's length is unknown until materialized.
func (g *Graph) Len(id int) (int, bool) {
	n := g.Node(id)
	if c := g.cached(id); c != nil {
		return c.Rows(), true
	}
	switch n.Kind {
	case NodeSource:
		return n.Store.Rows(), true
	case NodeConst:
		return n.Length, true
	case NodeSequence:
		return int(n.SeqStop - n.SeqStart), true
	case NodeFilter:
		return 0, false
	case NodeSlice:
		return n.SliceStop - n.SliceStart, true
	default:
		return g.Len(n.Inputs[0])
	}
}

// promoteBinary resolves the output kind of an arithmetic operator over
// two column kinds. Missing is compatible with every kind and adopts the
// other operand's kind.
func promoteBinary(op BinOp, a, b value.Kind) (value.Kind, error) {
	if a == value.KindMissing {
		a = b
	}
	if b == value.KindMissing {
		b = a
	}
	if a == value.KindMissing {
		return value.KindMissing, nil
	}

	numeric := func(k value.Kind) bool { return k == value.KindInt || k == value.KindFloat }

	switch {
	case numeric(a) && numeric(b):
		if op == OpDiv || a == value.KindFloat || b == value.KindFloat {
			return value.KindFloat, nil
		}
		return value.KindInt, nil
	case op == OpAdd && a == value.KindString && b == value.KindString:
		return value.KindString, nil
	case op == OpAdd && a == value.KindList && b == value.KindList:
		return value.KindList, nil
	default:
		return value.KindMissing, errors.Newf(errors.ErrorTypeMismatch,
			"arithmetic not defined for %s and %s", a, b)
	}
}

// checkComparable rejects ordering comparisons across incompatible
// column kinds at construction time. Equality is defined for every pair.
func checkComparable(op value.CmpOp, a, b value.Kind) error {
	if op == value.CmpEq || op == value.CmpNe {
		return nil
	}
	if a == value.KindMissing || b == value.KindMissing {
		return nil
	}
	numeric := func(k value.Kind) bool { return k == value.KindInt || k == value.KindFloat }
	if numeric(a) && numeric(b) {
		return nil
	}
	if a == b && (a == value.KindString || a == value.KindDateTime) {
		return nil
	}
	return errors.Newf(errors.ErrorTypeMismatch,
		"comparison not defined for %s and %s", a, b)
}
