// Package frame provides the public Array and Frame abstractions.
//
// An Array is an immutable, homogeneously typed, potentially disk-backed
// column: a handle onto either a realized segment store or an
// unmaterialized node of the lazy operator graph. A Frame is an ordered
// mapping from column name to Array with row-alignment invariants.
//
// All transforming operations construct graph nodes and return new
// handles without touching storage; materialization happens when a result
// is forced (explicit Materialize, single-row indexing, sort, join,
// group-by) and streams segments through the operator chain in parallel.
package frame

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/strata/internal/graph"
	"github.com/ajitpratap0/strata/pkg/compression"
	"github.com/ajitpratap0/strata/pkg/config"
	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/logger"
	"github.com/ajitpratap0/strata/pkg/segment"
	"github.com/ajitpratap0/strata/pkg/value"
)

// Engine owns the lazy graph, the materializer and the storage
// configuration. All Arrays and Frames are created through an Engine and
// share its graph, which is what makes common-subexpression reuse plain
// node-index sharing.
type Engine struct {
	cfg *config.Config
	g   *graph.Graph
	mat *graph.Materializer
	log *zap.Logger
}

// NewEngine creates an engine over the given configuration.
func NewEngine(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "engine config")
	}
	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Encoding:    cfg.Logging.Encoding,
	}); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "engine logger")
	}
	g := graph.New()
	return &Engine{
		cfg: cfg,
		g:   g,
		mat: graph.NewMaterializer(g, cfg),
		log: logger.With(zap.String("component", "engine")),
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

func (e *Engine) compConfig() *compression.Config {
	return &compression.Config{
		Algorithm: compression.Algorithm(e.cfg.Storage.Compression),
		Level:     compression.Level(e.cfg.Storage.CompressionLevel),
	}
}

// segmentsFor picks a segment count for n rows written by the engine
// itself.
func (e *Engine) segmentsFor(n int) int {
	per := e.cfg.Storage.SegmentRows
	segs := (n + per - 1) / per
	if segs < 1 {
		segs = 1
	}
	return segs
}

// ArrayFromValues constructs a realized Array from an in-memory ordered
// sequence. All non-missing elements must share one kind; a conflict
// fails with a heterogeneous_type error.
func (e *Engine) ArrayFromValues(vals []value.Value) (*Array, error) {
	kind := value.KindMissing
	for i, v := range vals {
		if v.IsMissing() {
			continue
		}
		if kind == value.KindMissing {
			kind = v.Kind()
			continue
		}
		if v.Kind() != kind {
			return nil, errors.Newf(errors.ErrorHeterogeneousType,
				"element %d is %s, previous elements are %s", i, v.Kind(), kind)
		}
	}

	segs := e.segmentsFor(len(vals))
	w, err := segment.NewWriter(e.cfg.Storage.Dir,
		[]segment.ColumnMeta{{Name: "v", Kind: kind}}, segs, e.compConfig())
	if err != nil {
		return nil, err
	}
	per := e.cfg.Storage.SegmentRows
	for i, v := range vals {
		if err := w.WriteValue(v, i/per); err != nil {
			_ = w.Abort()
			return nil, err
		}
	}
	st, err := w.Close()
	if err != nil {
		return nil, err
	}
	return e.arrayFromStore(st, 0), nil
}

// ArrayFromNative constructs a realized Array from native Go scalars,
// inferring kinds via value.Infer.
func (e *Engine) ArrayFromNative(raw []interface{}) (*Array, error) {
	vals := make([]value.Value, len(raw))
	for i, r := range raw {
		v, err := value.Infer(r)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return e.ArrayFromValues(vals)
}

// Constant constructs a lazy constant-filled Array of the given length.
func (e *Engine) Constant(v value.Value, length int) *Array {
	return e.arrayFromNode(e.g.AddConst(v, length), v.Kind())
}

// Sequence constructs a lazy integer Array covering [start, stop) with
// step 1.
func (e *Engine) Sequence(start, stop int64) *Array {
	return e.arrayFromNode(e.g.AddSequence(start, stop), value.KindInt)
}

// OpenArray reopens a persisted single-column store as a realized Array.
func (e *Engine) OpenArray(dir string) (*Array, error) {
	st, err := segment.Open(dir)
	if err != nil {
		return nil, err
	}
	if len(st.Columns()) != 1 {
		return nil, errors.Newf(errors.ErrorStorage,
			"store has %d columns, want 1", len(st.Columns()))
	}
	return e.arrayFromStore(st, 0), nil
}

// NewFrame creates an empty Frame.
func (e *Engine) NewFrame() *Frame {
	return &Frame{eng: e, cols: map[string]*Array{}, rows: -1}
}

// FromColumns builds a Frame from an ordered sequence of column
// name/values pairs. This is the host-binding boundary: any dataframe-like
// object converts by supplying its columns in order.
func (e *Engine) FromColumns(names []string, columns [][]value.Value) (*Frame, error) {
	if len(names) != len(columns) {
		return nil, errors.Newf(errors.ErrorLengthMismatch,
			"%d names for %d columns", len(names), len(columns))
	}
	f := e.NewFrame()
	for i, name := range names {
		a, err := e.ArrayFromValues(columns[i])
		if err != nil {
			return nil, err
		}
		// Arrays built from values are realized; Set never materializes
		// here.
		if err := f.Set(context.Background(), name, a); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// writeFrameRows persists in-memory rows as a multi-column store and
// wraps it as a realized Frame. Used by the eager operators (sort, join,
// group-by, reshape) for their outputs.
func (e *Engine) writeFrameRows(names []string, kinds []value.Kind, rows [][]value.Value) (*Frame, error) {
	cols := make([]segment.ColumnMeta, len(names))
	for i := range names {
		cols[i] = segment.ColumnMeta{Name: names[i], Kind: kinds[i]}
	}
	w, err := segment.NewWriter(e.cfg.Storage.Dir, cols, e.segmentsFor(len(rows)), e.compConfig())
	if err != nil {
		return nil, err
	}
	per := e.cfg.Storage.SegmentRows
	for i, row := range rows {
		if err := w.Write(row, i/per); err != nil {
			_ = w.Abort()
			return nil, err
		}
	}
	st, err := w.Close()
	if err != nil {
		return nil, err
	}
	return e.frameFromStore(st)
}

func (e *Engine) arrayFromStore(st *segment.Store, col int) *Array {
	id := e.g.AddSource(st, col)
	return &Array{eng: e, node: id, kind: st.Columns()[col].Kind}
}

func (e *Engine) arrayFromNode(id int, kind value.Kind) *Array {
	return &Array{eng: e, node: id, kind: kind}
}

// materialize evaluates a node, blocking until done.
func (e *Engine) materialize(ctx context.Context, id int) (*segment.Store, error) {
	return e.mat.Materialize(ctx, id)
}
