package frame

import (
	"context"
	"sort"

	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/segment"
	"github.com/ajitpratap0/strata/pkg/value"
)

// Sort returns a new realized Frame with rows reordered by the given key
// columns, compared left to right. The sort is stable, so rows with equal
// keys keep their original relative order. Missing keys sort before
// everything else regardless of direction.
//
// Only the key columns are held in memory; the remaining columns are
// gathered from their stores row by row while the result streams out.
func (f *Frame) Sort(ctx context.Context, by []string, ascending bool) (*Frame, error) {
	if len(by) == 0 {
		return nil, errors.New(errors.ErrorOutOfRange, "sort needs at least one key column")
	}
	for _, name := range by {
		a, ok := f.cols[name]
		if !ok {
			return nil, errors.Newf(errors.ErrorOutOfRange, "no column %q", name)
		}
		if !orderedKind(a.Kind()) {
			return nil, errors.Newf(errors.ErrorTypeMismatch,
				"column %q of kind %s is not orderable", name, a.Kind())
		}
	}

	n, err := f.NumRows(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([][]value.Value, len(by))
	for i, name := range by {
		vals, err := f.cols[name].Values(ctx)
		if err != nil {
			return nil, err
		}
		keys[i] = vals
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(x, y int) bool {
		a, b := idx[x], idx[y]
		for _, col := range keys {
			c := orderValues(col[a], col[b])
			if c == 0 {
				continue
			}
			if ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})

	stores, err := f.columnStores(ctx)
	if err != nil {
		return nil, err
	}
	colIdx := make([]int, len(f.names))
	for i, name := range f.names {
		colIdx[i] = f.cols[name].colIndex()
	}
	kinds := make([]value.Kind, len(f.names))
	for i, name := range f.names {
		kinds[i] = f.cols[name].Kind()
	}

	cols := make([]segment.ColumnMeta, len(f.names))
	for i, name := range f.names {
		cols[i] = segment.ColumnMeta{Name: name, Kind: kinds[i]}
	}
	w, err := segment.NewWriter(f.eng.cfg.Storage.Dir, cols, f.eng.segmentsFor(n), f.eng.compConfig())
	if err != nil {
		return nil, err
	}
	per := f.eng.cfg.Storage.SegmentRows
	row := make([]value.Value, len(f.names))
	for out, src := range idx {
		for c, st := range stores {
			full, err := st.Get(src)
			if err != nil {
				_ = w.Abort()
				return nil, err
			}
			row[c] = full[colIdx[c]]
		}
		if err := w.Write(row, out/per); err != nil {
			_ = w.Abort()
			return nil, err
		}
	}
	st, err := w.Close()
	if err != nil {
		return nil, err
	}
	return f.eng.frameFromStore(st)
}

func orderedKind(k value.Kind) bool {
	switch k {
	case value.KindMissing, value.KindInt, value.KindFloat, value.KindString, value.KindDateTime:
		return true
	}
	return false
}

// orderValues is the sort comparison: missing first, then Compare order.
func orderValues(a, b value.Value) int {
	switch {
	case a.IsMissing() && b.IsMissing():
		return 0
	case a.IsMissing():
		return -1
	case b.IsMissing():
		return 1
	}
	c, _, _ := value.Compare(a, b)
	return c
}
