package frame

import (
	"context"

	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/segment"
	"github.com/ajitpratap0/strata/pkg/value"
)

// Stack explodes a container column: each List element, Vector component
// or Dict entry value of a row becomes its own output row, with the
// remaining columns' values duplicated across the expansion. The exploded
// values land in a new column named newName and the container column is
// dropped. A Missing or empty container still produces exactly one
// output row, with Missing in the new column.
func (f *Frame) Stack(ctx context.Context, column, newName string) (*Frame, error) {
	src, ok := f.cols[column]
	if !ok {
		return nil, errors.Newf(errors.ErrorOutOfRange, "no column %q", column)
	}
	switch src.Kind() {
	case value.KindList, value.KindVector, value.KindDict, value.KindMissing:
	default:
		return nil, errors.Newf(errors.ErrorTypeMismatch,
			"column %q of kind %s is not a container", column, src.Kind())
	}
	if _, exists := f.cols[newName]; exists && newName != column {
		return nil, errors.Newf(errors.ErrorOutOfRange, "column %q already exists", newName)
	}

	var rest []string
	for _, name := range f.names {
		if name != column {
			rest = append(rest, name)
		}
	}

	srcStore, err := src.Store(ctx)
	if err != nil {
		return nil, err
	}
	srcCol := src.colIndex()
	restStores, restCols, err := f.boundColumns(ctx, rest)
	if err != nil {
		return nil, err
	}

	// The element kind is not knowable from the column kind, so one
	// cheap pass over the container column resolves it before the
	// writer's schema is fixed.
	offsets, counts := storeOffsets(srcStore)
	elemKind := value.KindMissing
	outRows := 0
	for si := range counts {
		vals, err := srcStore.ReadRange(srcCol, offsets[si], offsets[si]+counts[si])
		if err != nil {
			return nil, err
		}
		for _, v := range vals {
			elems := containerElems(v)
			if len(elems) == 0 {
				outRows++
				continue
			}
			outRows += len(elems)
			for _, e := range elems {
				k, err := mergeKinds(elemKind, e.Kind())
				if err != nil {
					return nil, errors.Wrap(err, errors.ErrorTypeMismatch,
						"stacked column "+column)
				}
				elemKind = k
			}
		}
	}

	names := append(append([]string(nil), rest...), newName)
	kinds := make([]value.Kind, len(names))
	for i, name := range rest {
		kinds[i] = f.cols[name].Kind()
	}
	kinds[len(rest)] = elemKind

	cols := make([]segment.ColumnMeta, len(names))
	for i := range names {
		cols[i] = segment.ColumnMeta{Name: names[i], Kind: kinds[i]}
	}
	w, err := segment.NewWriter(f.eng.cfg.Storage.Dir, cols, f.eng.segmentsFor(outRows), f.eng.compConfig())
	if err != nil {
		return nil, err
	}

	per := f.eng.cfg.Storage.SegmentRows
	written := 0
	for si := range counts {
		lo, hi := offsets[si], offsets[si]+counts[si]
		containers, err := srcStore.ReadRange(srcCol, lo, hi)
		if err != nil {
			_ = w.Abort()
			return nil, err
		}
		restVals, err := readRanges(restStores, restCols, lo, hi)
		if err != nil {
			_ = w.Abort()
			return nil, err
		}
		row := make([]value.Value, len(names))
		for r, v := range containers {
			for c := range restVals {
				row[c] = restVals[c][r]
			}
			elems := containerElems(v)
			if len(elems) == 0 {
				elems = []value.Value{value.Missing()}
			}
			for _, e := range elems {
				if elemKind == value.KindFloat && e.Kind() == value.KindInt {
					e = value.Float(e.Float64())
				}
				row[len(rest)] = e
				if err := w.Write(row, written/per); err != nil {
					_ = w.Abort()
					return nil, err
				}
				written++
			}
		}
	}
	st, err := w.Close()
	if err != nil {
		return nil, err
	}
	return f.eng.frameFromStore(st)
}

// Unstack is the inverse of Stack: rows sharing the same tuple of all
// columns except valueColumn collapse into one row, with the collapsed
// values collected into a List in first-encounter order.
func (f *Frame) Unstack(ctx context.Context, valueColumn string) (*Frame, error) {
	if _, ok := f.cols[valueColumn]; !ok {
		return nil, errors.Newf(errors.ErrorOutOfRange, "no column %q", valueColumn)
	}
	var keys []string
	for _, name := range f.names {
		if name != valueColumn {
			keys = append(keys, name)
		}
	}
	if len(keys) == 0 {
		return nil, errors.New(errors.ErrorOutOfRange,
			"unstack needs at least one column besides the value column")
	}

	keyStores, keyCols, err := f.boundColumns(ctx, keys)
	if err != nil {
		return nil, err
	}
	valStore, valCols, err := f.boundColumns(ctx, []string{valueColumn})
	if err != nil {
		return nil, err
	}

	type bucket struct {
		key  []value.Value
		vals []value.Value
	}
	buckets := map[uint64][]*bucket{}
	var order []*bucket

	offsets, counts := storeOffsets(keyStores[0])
	key := make([]value.Value, len(keys))
	for si := range counts {
		lo, hi := offsets[si], offsets[si]+counts[si]
		keyVals, err := readRanges(keyStores, keyCols, lo, hi)
		if err != nil {
			return nil, err
		}
		vals, err := valStore[0].ReadRange(valCols[0], lo, hi)
		if err != nil {
			return nil, err
		}
		for r := 0; r < hi-lo; r++ {
			for k := range keyVals {
				key[k] = keyVals[k][r]
			}
			h := hashTuple(key)
			var b *bucket
			for _, cand := range buckets[h] {
				if tupleEqual(cand.key, key) {
					b = cand
					break
				}
			}
			if b == nil {
				b = &bucket{key: append([]value.Value(nil), key...)}
				buckets[h] = append(buckets[h], b)
				order = append(order, b)
			}
			b.vals = append(b.vals, vals[r])
		}
	}

	names := append(append([]string(nil), keys...), valueColumn)
	kinds := make([]value.Kind, len(names))
	for i, name := range keys {
		kinds[i] = f.cols[name].Kind()
	}
	kinds[len(keys)] = value.KindList

	rows := make([][]value.Value, len(order))
	for i, b := range order {
		rows[i] = append(append([]value.Value(nil), b.key...), value.List(b.vals...))
	}
	return f.eng.writeFrameRows(names, kinds, rows)
}

// containerElems lists the per-row values Stack explodes: List elements,
// Vector components as Floats, Dict entry values. Missing yields nil.
func containerElems(v value.Value) []value.Value {
	switch v.Kind() {
	case value.KindList:
		return v.Elems()
	case value.KindVector:
		out := make([]value.Value, len(v.Floats()))
		for i, fv := range v.Floats() {
			out[i] = value.Float(fv)
		}
		return out
	case value.KindDict:
		out := make([]value.Value, len(v.Entries()))
		for i, e := range v.Entries() {
			out[i] = e.Val
		}
		return out
	}
	return nil
}

// mergeKinds resolves the kind of a produced column one element at a
// time, promoting mixed Integer/Float to Float.
func mergeKinds(have, next value.Kind) (value.Kind, error) {
	switch {
	case next == value.KindMissing:
		return have, nil
	case have == value.KindMissing:
		return next, nil
	case have == next:
		return have, nil
	case have == value.KindInt && next == value.KindFloat,
		have == value.KindFloat && next == value.KindInt:
		return value.KindFloat, nil
	}
	return value.KindMissing, errors.Newf(errors.ErrorHeterogeneousType,
		"cannot mix %s and %s elements", have, next)
}
