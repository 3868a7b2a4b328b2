package frame

import (
	"context"

	"github.com/ajitpratap0/strata/internal/graph"
	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/segment"
	"github.com/ajitpratap0/strata/pkg/value"
)

// Array is an immutable, homogeneously typed column handle. It is either
// realized (backed by a sealed segment store) or lazy (a node of the
// operator graph). Copying the handle shares the underlying
// representation; stores are immutable, so no copy-on-write is needed.
type Array struct {
	eng  *Engine
	node int
	kind value.Kind
}

// Kind returns the column's element kind.
func (a *Array) Kind() value.Kind { return a.kind }

// KnownLen returns the row count when it is statically known. The length
// of an unmaterialized filter result is unknown until evaluated.
func (a *Array) KnownLen() (int, bool) {
	return a.eng.g.Len(a.node)
}

// Len returns the row count, returning -1 when the Array is an
// unmaterialized filter result. Use NumRows to force evaluation instead.
func (a *Array) Len() int {
	if n, ok := a.KnownLen(); ok {
		return n
	}
	return -1
}

// NumRows returns the row count, materializing the Array first when the
// count is not statically known.
func (a *Array) NumRows(ctx context.Context) (int, error) {
	return a.eng.mat.MaterializedLen(ctx, a.node)
}

// Materialize forces evaluation into a realized segment store. The
// result is memoized; re-materializing is a no-op. On failure the Array
// is left lazy and unchanged, so retrying is safe.
func (a *Array) Materialize(ctx context.Context) error {
	_, err := a.eng.materialize(ctx, a.node)
	return err
}

// Store materializes and returns the backing segment store.
func (a *Array) Store(ctx context.Context) (*segment.Store, error) {
	return a.eng.materialize(ctx, a.node)
}

// At returns the value at row i, forcing materialization. Negative
// indices count from the end.
func (a *Array) At(ctx context.Context, i int) (value.Value, error) {
	st, err := a.Store(ctx)
	if err != nil {
		return value.Missing(), err
	}
	if i < 0 {
		i += st.Rows()
	}
	if i < 0 || i >= st.Rows() {
		return value.Missing(), errors.Newf(errors.ErrorOutOfRange,
			"index %d out of range for %d rows", i, st.Rows())
	}
	row, err := st.Get(i)
	if err != nil {
		return value.Missing(), err
	}
	return row[a.colIndex()], nil
}

// Values materializes the Array and returns every element in row order.
func (a *Array) Values(ctx context.Context) ([]value.Value, error) {
	st, err := a.Store(ctx)
	if err != nil {
		return nil, err
	}
	col := a.colIndex()
	out := make([]value.Value, 0, st.Rows())
	err = st.Scan(func(_ int, rows [][]value.Value) error {
		for _, row := range rows {
			out = append(out, row[col])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// colIndex returns the column this Array reads from its backing store.
// Arrays produced by materialization are single-column; arrays wrapping
// one column of a frame store carry the source node's column.
func (a *Array) colIndex() int {
	n := a.eng.g.Node(a.node)
	if n.Kind == graph.NodeSource {
		return n.Col
	}
	return 0
}

// checkAligned rejects operand pairs with provably different lengths.
// Unknown lengths are deferred to materialization.
func (a *Array) checkAligned(b *Array) error {
	an, aok := a.KnownLen()
	bn, bok := b.KnownLen()
	if aok && bok && an != bn {
		return errors.Newf(errors.ErrorLengthMismatch,
			"arrays have %d and %d rows", an, bn)
	}
	return nil
}

func (a *Array) binary(op graph.BinOp, b *Array) (*Array, error) {
	if err := a.checkAligned(b); err != nil {
		return nil, err
	}
	id, err := a.eng.g.AddBinary(op, a.node, b.node)
	if err != nil {
		return nil, err
	}
	return a.eng.arrayFromNode(id, a.eng.g.Node(id).Out), nil
}

// Add appends an elementwise addition node: numeric addition, string or
// list concatenation.
func (a *Array) Add(b *Array) (*Array, error) { return a.binary(graph.OpAdd, b) }

// Sub appends an elementwise subtraction node.
func (a *Array) Sub(b *Array) (*Array, error) { return a.binary(graph.OpSub, b) }

// Mul appends an elementwise multiplication node.
func (a *Array) Mul(b *Array) (*Array, error) { return a.binary(graph.OpMul, b) }

// Div appends an elementwise division node. Division always promotes to
// Float.
func (a *Array) Div(b *Array) (*Array, error) { return a.binary(graph.OpDiv, b) }

func (a *Array) compare(op value.CmpOp, b *Array) (*Array, error) {
	if err := a.checkAligned(b); err != nil {
		return nil, err
	}
	id, err := a.eng.g.AddCompare(op, a.node, b.node)
	if err != nil {
		return nil, err
	}
	return a.eng.arrayFromNode(id, value.KindInt), nil
}

// Eq appends an elementwise equality node yielding a 1/0 mask.
func (a *Array) Eq(b *Array) (*Array, error) { return a.compare(value.CmpEq, b) }

// Ne appends an elementwise inequality node.
func (a *Array) Ne(b *Array) (*Array, error) { return a.compare(value.CmpNe, b) }

// Less appends an elementwise less-than node.
func (a *Array) Less(b *Array) (*Array, error) { return a.compare(value.CmpLt, b) }

// LessEq appends an elementwise less-or-equal node.
func (a *Array) LessEq(b *Array) (*Array, error) { return a.compare(value.CmpLe, b) }

// Greater appends an elementwise greater-than node.
func (a *Array) Greater(b *Array) (*Array, error) { return a.compare(value.CmpGt, b) }

// GreaterEq appends an elementwise greater-or-equal node.
func (a *Array) GreaterEq(b *Array) (*Array, error) { return a.compare(value.CmpGe, b) }

func (a *Array) logical(op graph.LogicalOp, b *Array) (*Array, error) {
	if err := a.checkAligned(b); err != nil {
		return nil, err
	}
	id := a.eng.g.AddLogical(op, a.node, b.node)
	return a.eng.arrayFromNode(id, value.KindInt), nil
}

// And appends an elementwise truthiness conjunction node.
func (a *Array) And(b *Array) (*Array, error) { return a.logical(graph.OpAnd, b) }

// Or appends an elementwise truthiness disjunction node.
func (a *Array) Or(b *Array) (*Array, error) { return a.logical(graph.OpOr, b) }

// Astype appends a cast node. Per-element conversion failures surface
// only at materialization.
func (a *Array) Astype(k value.Kind) *Array {
	if k == a.kind {
		return a
	}
	return a.eng.arrayFromNode(a.eng.g.AddCast(a.node, k), k)
}

// Apply appends a map node running fn per element at materialization
// time. The declared output kind is not verified against fn's actual
// returns until then; a mismatch fails the materialization.
func (a *Array) Apply(fn func(value.Value) (value.Value, error), out value.Kind) *Array {
	id := a.eng.g.AddMap([]int{a.node},
		func(row []value.Value) (value.Value, error) { return fn(row[0]) }, out)
	return a.eng.arrayFromNode(id, out)
}

// Filter appends a mask-filter node. The mask must be an equal-length
// array; rows where it is truthy survive in order.
func (a *Array) Filter(mask *Array) (*Array, error) {
	if err := a.checkAligned(mask); err != nil {
		return nil, err
	}
	id := a.eng.g.AddFilter(a.node, mask.node)
	return a.eng.arrayFromNode(id, a.kind), nil
}

// Slice appends a row-range node over [start, stop). Negative bounds
// count from the end; out-of-range bounds clamp rather than fail. When
// the Array's length is not statically known it is materialized first so
// the bounds can be resolved.
func (a *Array) Slice(ctx context.Context, start, stop int) (*Array, error) {
	n, err := a.NumRows(ctx)
	if err != nil {
		return nil, err
	}
	start, stop = clampRange(start, stop, n)
	id := a.eng.g.AddSlice(a.node, start, stop)
	return a.eng.arrayFromNode(id, a.kind), nil
}

// clampRange resolves possibly-negative bounds against n rows, clamping
// out-of-range bounds.
func clampRange(start, stop, n int) (int, int) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	if stop < start {
		stop = start
	}
	if stop > n {
		stop = n
	}
	return start, stop
}
