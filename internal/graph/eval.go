package graph

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/strata/pkg/compression"
	"github.com/ajitpratap0/strata/pkg/config"
	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/logger"
	"github.com/ajitpratap0/strata/pkg/segment"
	"github.com/ajitpratap0/strata/pkg/value"
)

// Materializer evaluates graph nodes into realized segment stores.
//
// Evaluation streams the operator chain segment by segment, fanning out
// across segments and writing each result chunk through its own writer
// slot, so a materialization never holds more than a few segments in
// memory per worker. Results are memoized on the node; re-materializing
// is a no-op.
type Materializer struct {
	g   *Graph
	cfg *config.Config
	log *zap.Logger
}

// NewMaterializer creates a materializer over g.
func NewMaterializer(g *Graph, cfg *config.Config) *Materializer {
	return &Materializer{
		g:   g,
		cfg: cfg,
		log: logger.With(zap.String("component", "materializer")),
	}
}

// Graph returns the underlying node arena.
func (m *Materializer) Graph() *Graph { return m.g }

// layout describes the per-segment row ranges evaluation is driven by.
type layout struct {
	counts   []int
	offsets  []int
	total    int
	concrete bool // derived from a realized store
}

func storeLayout(st *segment.Store) layout {
	lay := layout{concrete: true}
	off := 0
	for i := 0; i < st.SegmentCount(); i++ {
		n := st.SegmentRowCount(i)
		lay.counts = append(lay.counts, n)
		lay.offsets = append(lay.offsets, off)
		off += n
	}
	lay.total = off
	return lay
}

func (m *Materializer) synthLayout(total int) layout {
	per := m.cfg.Storage.SegmentRows
	lay := layout{}
	for off := 0; off < total; off += per {
		n := per
		if off+n > total {
			n = total - off
		}
		lay.counts = append(lay.counts, n)
		lay.offsets = append(lay.offsets, off)
	}
	if len(lay.counts) == 0 {
		lay.counts = []int{0}
		lay.offsets = []int{0}
	}
	lay.total = total
	return lay
}

func (m *Materializer) layoutFor(id int) layout {
	n := m.g.Node(id)
	if c := m.g.cached(id); c != nil {
		return storeLayout(c)
	}
	switch n.Kind {
	case NodeSource:
		return storeLayout(n.Store)
	case NodeConst:
		return m.synthLayout(n.Length)
	case NodeSequence:
		return m.synthLayout(int(n.SeqStop - n.SeqStart))
	case NodeSlice:
		return m.synthLayout(n.SliceStop - n.SliceStart)
	case NodeCast, NodeFilter:
		return m.layoutFor(n.Inputs[0])
	default:
		// Multi-input nodes share one row space; prefer a layout
		// derived from a realized store so source segments are read
		// whole.
		var first layout
		for i, in := range n.Inputs {
			lay := m.layoutFor(in)
			if i == 0 {
				first = lay
			}
			if lay.concrete {
				return lay
			}
		}
		return first
	}
}

// MaterializedLen returns the node's row count, materializing the node
// first when its length is not statically known (filters).
func (m *Materializer) MaterializedLen(ctx context.Context, id int) (int, error) {
	if n, ok := m.g.Len(id); ok {
		return n, nil
	}
	st, err := m.Materialize(ctx, id)
	if err != nil {
		return 0, err
	}
	return st.Rows(), nil
}

// prepare forces materialization of inputs whose length is unknown
// wherever the node's evaluation requires aligned, addressable inputs:
// every multi-input operator and every slice. Pure single-input chains
// over a filter stay streamable in one pass.
func (m *Materializer) prepare(ctx context.Context, id int) error {
	n := m.g.Node(id)
	if m.g.cached(id) != nil {
		return nil
	}
	for _, in := range n.Inputs {
		if err := m.prepare(ctx, in); err != nil {
			return err
		}
	}
	needsAligned := len(n.Inputs) > 1 || n.Kind == NodeSlice
	if !needsAligned {
		return nil
	}
	for _, in := range n.Inputs {
		if _, ok := m.g.Len(in); !ok {
			if _, err := m.Materialize(ctx, in); err != nil {
				return err
			}
		}
	}
	return nil
}

// Materialize evaluates node id into a realized store, memoizing the
// result. On failure no partial store is left behind and the node stays
// lazy, so retrying is safe.
func (m *Materializer) Materialize(ctx context.Context, id int) (*segment.Store, error) {
	if c := m.g.cached(id); c != nil {
		return c, nil
	}
	n := m.g.Node(id)

	// A source node is already realized: its store is the result,
	// whatever its column count. Column addressing stays with the node's
	// Col, so the store must be cached as-is rather than re-written to a
	// single-column copy.
	if n.Kind == NodeSource {
		m.g.setCache(id, n.Store)
		return n.Store, nil
	}

	if err := m.prepare(ctx, id); err != nil {
		return nil, err
	}

	lay := m.layoutFor(id)
	start := time.Now()

	w, err := segment.NewWriter(m.cfg.Storage.Dir,
		[]segment.ColumnMeta{{Name: "v", Kind: n.Out}},
		len(lay.counts),
		&compression.Config{
			Algorithm: compression.Algorithm(m.cfg.Storage.Compression),
			Level:     compression.Level(m.cfg.Storage.CompressionLevel),
		})
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Performance.Workers)
	for k := range lay.counts {
		k := k
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			chunk, err := m.evalChunk(n, lay.offsets[k], lay.offsets[k]+lay.counts[k])
			if err != nil {
				return err
			}
			for _, v := range chunk {
				if err := w.WriteValue(v, k); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = w.Abort()
		return nil, err
	}

	st, err := w.Close()
	if err != nil {
		return nil, err
	}
	m.g.setCache(id, st)

	m.log.Debug("materialized node",
		zap.Int("node", id),
		zap.Int("rows", st.Rows()),
		zap.Int("segments", st.SegmentCount()),
		zap.Duration("elapsed", time.Since(start)))
	return st, nil
}

// evalChunk evaluates node n over driver rows [lo, hi). A filter beneath
// the node may shrink the returned chunk.
func (m *Materializer) evalChunk(n *Node, lo, hi int) ([]value.Value, error) {
	if c := m.g.cached(n.ID); c != nil {
		// Source caches keep the original store shape; everything else
		// materializes to a single column.
		col := 0
		if n.Kind == NodeSource {
			col = n.Col
		}
		return rangeRead(c, col, lo, hi)
	}

	switch n.Kind {
	case NodeSource:
		return rangeRead(n.Store, n.Col, lo, hi)

	case NodeConst:
		out := make([]value.Value, hi-lo)
		for i := range out {
			out[i] = n.Const
		}
		return out, nil

	case NodeSequence:
		out := make([]value.Value, 0, hi-lo)
		for r := lo; r < hi; r++ {
			out = append(out, value.Int(n.SeqStart+int64(r)))
		}
		return out, nil

	case NodeBinary:
		return m.evalBinary(n, lo, hi)

	case NodeCompare:
		return m.evalCompare(n, lo, hi)

	case NodeLogical:
		return m.evalLogical(n, lo, hi)

	case NodeCast:
		in, err := m.evalChunk(m.g.Node(n.Inputs[0]), lo, hi)
		if err != nil {
			return nil, err
		}
		out := make([]value.Value, len(in))
		for i, v := range in {
			cv, err := value.Cast(v, n.CastTo)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorConversion,
					"cast failed").WithDetail("row", lo+i)
			}
			out[i] = cv
		}
		return out, nil

	case NodeMap:
		return m.evalMap(n, lo, hi)

	case NodeFilter:
		vals, err := m.evalChunk(m.g.Node(n.Inputs[0]), lo, hi)
		if err != nil {
			return nil, err
		}
		mask, err := m.evalChunk(m.g.Node(n.Inputs[1]), lo, hi)
		if err != nil {
			return nil, err
		}
		if len(vals) != len(mask) {
			return nil, errors.Newf(errors.ErrorLengthMismatch,
				"filter mask rows (%d) disagree with input rows (%d)", len(mask), len(vals))
		}
		out := vals[:0:0]
		for i, v := range vals {
			if mask[i].Truthy() {
				out = append(out, v)
			}
		}
		return out, nil

	case NodeSlice:
		return m.evalChunk(m.g.Node(n.Inputs[0]), lo+n.SliceStart, hi+n.SliceStart)

	default:
		return nil, errors.Newf(errors.ErrorTypeInternal, "unknown node kind %d", n.Kind)
	}
}

func (m *Materializer) evalBinary(n *Node, lo, hi int) ([]value.Value, error) {
	l, r, err := m.evalPair(n, lo, hi)
	if err != nil {
		return nil, err
	}
	out := make([]value.Value, len(l))
	for i := range l {
		var v value.Value
		var opErr error
		switch n.Bin {
		case OpAdd:
			v, opErr = value.Add(l[i], r[i])
		case OpSub:
			v, opErr = value.Sub(l[i], r[i])
		case OpMul:
			v, opErr = value.Mul(l[i], r[i])
		default:
			v, opErr = value.Div(l[i], r[i])
		}
		if opErr != nil {
			return nil, errors.Wrap(opErr, errors.ErrorTypeMismatch,
				"elementwise arithmetic").WithDetail("row", lo+i)
		}
		out[i] = v
	}
	return out, nil
}

func (m *Materializer) evalCompare(n *Node, lo, hi int) ([]value.Value, error) {
	l, r, err := m.evalPair(n, lo, hi)
	if err != nil {
		return nil, err
	}
	out := make([]value.Value, len(l))
	for i := range l {
		v, opErr := value.ApplyCmp(n.Cmp, l[i], r[i])
		if opErr != nil {
			return nil, errors.Wrap(opErr, errors.ErrorTypeMismatch,
				"elementwise comparison").WithDetail("row", lo+i)
		}
		out[i] = v
	}
	return out, nil
}

func (m *Materializer) evalLogical(n *Node, lo, hi int) ([]value.Value, error) {
	l, r, err := m.evalPair(n, lo, hi)
	if err != nil {
		return nil, err
	}
	out := make([]value.Value, len(l))
	for i := range l {
		if n.Log == OpAnd {
			out[i] = value.And(l[i], r[i])
		} else {
			out[i] = value.Or(l[i], r[i])
		}
	}
	return out, nil
}

func (m *Materializer) evalPair(n *Node, lo, hi int) (l, r []value.Value, err error) {
	l, err = m.evalChunk(m.g.Node(n.Inputs[0]), lo, hi)
	if err != nil {
		return nil, nil, err
	}
	r, err = m.evalChunk(m.g.Node(n.Inputs[1]), lo, hi)
	if err != nil {
		return nil, nil, err
	}
	if len(l) != len(r) {
		return nil, nil, errors.Newf(errors.ErrorLengthMismatch,
			"operand chunks disagree: %d vs %d rows", len(l), len(r))
	}
	return l, r, nil
}

func (m *Materializer) evalMap(n *Node, lo, hi int) ([]value.Value, error) {
	chunks := make([][]value.Value, len(n.Inputs))
	for i, in := range n.Inputs {
		chunk, err := m.evalChunk(m.g.Node(in), lo, hi)
		if err != nil {
			return nil, err
		}
		if i > 0 && len(chunk) != len(chunks[0]) {
			return nil, errors.Newf(errors.ErrorLengthMismatch,
				"apply input chunks disagree: %d vs %d rows", len(chunk), len(chunks[0]))
		}
		chunks[i] = chunk
	}
	rows := 0
	if len(chunks) > 0 {
		rows = len(chunks[0])
	}
	out := make([]value.Value, rows)
	row := make([]value.Value, len(n.Inputs))
	for i := 0; i < rows; i++ {
		for c := range chunks {
			row[c] = chunks[c][i]
		}
		v, err := n.Fn(row)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal,
				"apply function failed").WithDetail("row", lo+i)
		}
		if !v.IsMissing() && v.Kind() != n.Out {
			return nil, errors.Newf(errors.ErrorTypeMismatch,
				"apply declared %s but returned %s", n.Out, v.Kind()).
				WithDetail("row", lo+i)
		}
		out[i] = v
	}
	return out, nil
}

// rangeRead returns column col of store rows [lo, hi) in the driver's
// row space, which may not align with the store's own segmentation.
func rangeRead(st *segment.Store, col int, lo, hi int) ([]value.Value, error) {
	return st.ReadRange(col, lo, hi)
}
