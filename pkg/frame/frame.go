package frame

import (
	"context"

	"github.com/ajitpratap0/strata/internal/graph"
	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/segment"
	"github.com/ajitpratap0/strata/pkg/value"
)

// Frame is an ordered mapping from column name to Array. Column order is
// insertion order and is significant for display and iteration, not for
// joins or group-by. Adding or removing a column mutates only the
// mapping; the referenced Arrays are immutable and freely shared with
// other Frames.
type Frame struct {
	eng   *Engine
	names []string
	cols  map[string]*Array
	rows  int // -1 until the first column fixes the row count
}

// Engine returns the engine this Frame was created by.
func (f *Frame) Engine() *Engine { return f.eng }

// Columns returns the column names in insertion order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Column returns the named Array.
func (f *Frame) Column(name string) (*Array, bool) {
	a, ok := f.cols[name]
	return a, ok
}

// Width returns the number of columns.
func (f *Frame) Width() int { return len(f.names) }

// Len returns the row count, or -1 when it is not yet known (a frame of
// unmaterialized filter results).
func (f *Frame) Len() int { return f.rows }

// NumRows returns the row count, materializing a column if needed.
func (f *Frame) NumRows(ctx context.Context) (int, error) {
	if f.rows >= 0 {
		return f.rows, nil
	}
	if len(f.names) == 0 {
		return 0, nil
	}
	n, err := f.cols[f.names[0]].NumRows(ctx)
	if err != nil {
		return 0, err
	}
	f.rows = n
	return n, nil
}

// Set assigns a column. Assigning to an empty Frame fixes its row count;
// afterwards every assigned Array must match it. An Array of unknown
// length is materialized under ctx to learn its length.
func (f *Frame) Set(ctx context.Context, name string, a *Array) error {
	n, ok := a.KnownLen()
	if !ok {
		var err error
		n, err = a.NumRows(ctx)
		if err != nil {
			return err
		}
	}
	if len(f.names) == 0 {
		f.rows = n
	} else {
		rows, err := f.NumRows(ctx)
		if err != nil {
			return err
		}
		if n != rows {
			return errors.Newf(errors.ErrorLengthMismatch,
				"column %q has %d rows, frame has %d", name, n, rows)
		}
	}
	if _, exists := f.cols[name]; !exists {
		f.names = append(f.names, name)
	}
	f.cols[name] = a
	return nil
}

// SetScalar broadcasts a scalar to a constant column of the Frame's
// current row count.
func (f *Frame) SetScalar(ctx context.Context, name string, v value.Value) error {
	if len(f.names) == 0 {
		return errors.New(errors.ErrorLengthMismatch,
			"cannot broadcast a scalar into an empty frame")
	}
	rows, err := f.NumRows(ctx)
	if err != nil {
		return err
	}
	return f.Set(ctx, name, f.eng.Constant(v, rows))
}

// Drop removes a column from the mapping. The underlying Array is
// unaffected.
func (f *Frame) Drop(name string) error {
	if _, ok := f.cols[name]; !ok {
		return errors.Newf(errors.ErrorOutOfRange, "no column %q", name)
	}
	delete(f.cols, name)
	for i, n := range f.names {
		if n == name {
			f.names = append(f.names[:i], f.names[i+1:]...)
			break
		}
	}
	if len(f.names) == 0 {
		f.rows = -1
	}
	return nil
}

// Select returns a new Frame sharing the named columns, in the given
// order.
func (f *Frame) Select(ctx context.Context, names ...string) (*Frame, error) {
	out := f.eng.NewFrame()
	for _, name := range names {
		a, ok := f.cols[name]
		if !ok {
			return nil, errors.Newf(errors.ErrorOutOfRange, "no column %q", name)
		}
		if err := out.Set(ctx, name, a); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Filter appends one mask-filter node per column, all sharing the mask
// node, and returns the lazy filtered Frame.
func (f *Frame) Filter(mask *Array) (*Frame, error) {
	out := &Frame{eng: f.eng, cols: map[string]*Array{}, rows: -1}
	for _, name := range f.names {
		fa, err := f.cols[name].Filter(mask)
		if err != nil {
			return nil, err
		}
		out.names = append(out.names, name)
		out.cols[name] = fa
	}
	return out, nil
}

// Slice restricts every column to the clamped row range [start, stop).
func (f *Frame) Slice(ctx context.Context, start, stop int) (*Frame, error) {
	out := f.eng.NewFrame()
	for _, name := range f.names {
		sa, err := f.cols[name].Slice(ctx, start, stop)
		if err != nil {
			return nil, err
		}
		if err := out.Set(ctx, name, sa); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Apply appends a map node over the tuple of all columns per row,
// producing a new Array. Column values arrive in insertion order.
func (f *Frame) Apply(fn func(row []value.Value) (value.Value, error), out value.Kind) *Array {
	inputs := make([]int, len(f.names))
	for i, name := range f.names {
		inputs[i] = f.cols[name].node
	}
	id := f.eng.g.AddMap(inputs, fn, out)
	return f.eng.arrayFromNode(id, out)
}

// Materialize forces every column.
func (f *Frame) Materialize(ctx context.Context) error {
	for _, name := range f.names {
		if err := f.cols[name].Materialize(ctx); err != nil {
			return err
		}
	}
	if f.rows < 0 && len(f.names) > 0 {
		if _, err := f.NumRows(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Rows materializes the Frame and returns every row as a tuple of tagged
// values in column insertion order. This is the outbound half of the
// host-binding boundary.
func (f *Frame) Rows(ctx context.Context) ([][]value.Value, error) {
	if err := f.Materialize(ctx); err != nil {
		return nil, err
	}
	n, err := f.NumRows(ctx)
	if err != nil {
		return nil, err
	}
	cols := make([][]value.Value, len(f.names))
	for i, name := range f.names {
		vals, err := f.cols[name].Values(ctx)
		if err != nil {
			return nil, err
		}
		cols[i] = vals
	}
	rows := make([][]value.Value, n)
	for r := 0; r < n; r++ {
		row := make([]value.Value, len(cols))
		for c := range cols {
			row[c] = cols[c][r]
		}
		rows[r] = row
	}
	return rows, nil
}

// Store materializes the Frame into one multi-column segment store.
// A frame whose columns already read consecutive columns of a single
// store (the result of an eager operation, or a reopened frame) returns
// that store without copying.
func (f *Frame) Store(ctx context.Context) (*segment.Store, error) {
	if len(f.names) == 0 {
		return nil, errors.New(errors.ErrorStorage, "cannot persist an empty frame")
	}
	if st := f.sharedStore(); st != nil {
		return st, nil
	}

	stores, cols, err := f.boundColumns(ctx, f.names)
	if err != nil {
		return nil, err
	}
	metas := make([]segment.ColumnMeta, len(f.names))
	for i, name := range f.names {
		metas[i] = segment.ColumnMeta{Name: name, Kind: f.cols[name].Kind()}
	}
	offsets, counts := storeOffsets(stores[0])
	w, err := segment.NewWriter(f.eng.cfg.Storage.Dir, metas, len(counts), f.eng.compConfig())
	if err != nil {
		return nil, err
	}
	row := make([]value.Value, len(f.names))
	for si := range counts {
		vals, err := readRanges(stores, cols, offsets[si], offsets[si]+counts[si])
		if err != nil {
			_ = w.Abort()
			return nil, err
		}
		for r := 0; r < counts[si]; r++ {
			for c := range vals {
				row[c] = vals[c][r]
			}
			if err := w.Write(row, si); err != nil {
				_ = w.Abort()
				return nil, err
			}
		}
	}
	return w.Close()
}

// sharedStore returns the common backing store when every column is an
// unmodified source over column i of the same store, nil otherwise.
func (f *Frame) sharedStore() *segment.Store {
	var st *segment.Store
	for i, name := range f.names {
		n := f.eng.g.Node(f.cols[name].node)
		if n.Kind != graph.NodeSource || n.Col != i {
			return nil
		}
		if st == nil {
			st = n.Store
		} else if n.Store != st {
			return nil
		}
	}
	if st != nil && len(st.Columns()) != len(f.names) {
		return nil
	}
	return st
}

// columnStores materializes every column and returns the backing stores
// in insertion order.
func (f *Frame) columnStores(ctx context.Context) ([]*segment.Store, error) {
	stores := make([]*segment.Store, len(f.names))
	for i, name := range f.names {
		st, err := f.cols[name].Store(ctx)
		if err != nil {
			return nil, err
		}
		stores[i] = st
	}
	return stores, nil
}

// frameFromStore wraps a multi-column store as a Frame of source-node
// Arrays.
func (e *Engine) frameFromStore(st *segment.Store) (*Frame, error) {
	f := e.NewFrame()
	for i, col := range st.Columns() {
		id := e.g.AddSource(st, i)
		// Source arrays have known lengths, so Set never materializes
		// here.
		if err := f.Set(context.Background(), col.Name, e.arrayFromNode(id, col.Kind)); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// OpenFrame reopens a persisted multi-column store as a realized Frame.
func (e *Engine) OpenFrame(dir string) (*Frame, error) {
	st, err := segment.Open(dir)
	if err != nil {
		return nil, err
	}
	return e.frameFromStore(st)
}

// inferColumnKind resolves the shared kind of a produced column,
// promoting mixed Integer/Float to Float. Incompatible kinds fail.
func inferColumnKind(vals []value.Value) (value.Kind, error) {
	kind := value.KindMissing
	for _, v := range vals {
		if v.IsMissing() {
			continue
		}
		switch {
		case kind == value.KindMissing:
			kind = v.Kind()
		case kind == v.Kind():
		case kind == value.KindInt && v.Kind() == value.KindFloat,
			kind == value.KindFloat && v.Kind() == value.KindInt:
			kind = value.KindFloat
		default:
			return value.KindMissing, errors.Newf(errors.ErrorTypeMismatch,
				"column mixes %s and %s values", kind, v.Kind())
		}
	}
	return kind, nil
}

// normalizeColumn casts integers to floats when the resolved column kind
// is Float, so emitted rows satisfy the store's declared kind.
func normalizeColumn(vals []value.Value, kind value.Kind) []value.Value {
	if kind != value.KindFloat {
		return vals
	}
	for i, v := range vals {
		if v.Kind() == value.KindInt {
			vals[i] = value.Float(v.Float64())
		}
	}
	return vals
}
