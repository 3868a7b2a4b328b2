package frame

import (
	"context"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/strata/pkg/aggregate"
	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/segment"
	"github.com/ajitpratap0/strata/pkg/value"
)

// group is one distinct key tuple with its per-spec accumulator states.
type group struct {
	key    []value.Value
	states []aggregate.Aggregator
}

// groupTable is a hash table over key tuples. Buckets resolve hash
// collisions by structural equality.
type groupTable struct {
	buckets map[uint64][]*group
	order   []*group
}

func newGroupTable() *groupTable {
	return &groupTable{buckets: map[uint64][]*group{}}
}

func (t *groupTable) find(h uint64, key []value.Value) *group {
	for _, g := range t.buckets[h] {
		if tupleEqual(g.key, key) {
			return g
		}
	}
	return nil
}

func (t *groupTable) insert(h uint64, g *group) {
	t.buckets[h] = append(t.buckets[h], g)
	t.order = append(t.order, g)
}

func hashTuple(vals []value.Value) uint64 {
	d := xxhash.New()
	for _, v := range vals {
		v.HashInto(d)
	}
	return d.Sum64()
}

func tupleEqual(a, b []value.Value) bool {
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// GroupBy partitions rows by the distinct tuples of the key columns and
// folds each partition through the given aggregator specs. The result has
// one row per distinct key, keys first in the requested order, then one
// column per spec. A Missing key is a distinct key like any other. Output
// rows appear in first-encounter order over the frame's rows.
//
// Work is segment-parallel: each segment builds its own partial states,
// which are then merged pairwise with Combine. That is why Combine must
// be commutative and associative.
func (f *Frame) GroupBy(ctx context.Context, keys []string, specs []aggregate.Spec) (*Frame, error) {
	if len(keys) == 0 {
		return nil, errors.New(errors.ErrorOutOfRange, "group-by needs at least one key column")
	}
	for _, name := range keys {
		if _, ok := f.cols[name]; !ok {
			return nil, errors.Newf(errors.ErrorOutOfRange, "no column %q", name)
		}
	}
	for _, sp := range specs {
		for i, colName := range sp.Columns {
			a, ok := f.cols[colName]
			if !ok {
				return nil, errors.Newf(errors.ErrorOutOfRange,
					"aggregate %q reads missing column %q", sp.Name, colName)
			}
			// Supports governs the primary input column; secondary
			// columns (payloads of arg-extremes) pass any kind.
			if i == 0 && !sp.Agg.Supports(a.Kind()) && a.Kind() != value.KindMissing {
				return nil, errors.Newf(errors.ErrorUnsupportedType,
					"aggregate %q does not accept %s column %q", sp.Name, a.Kind(), colName)
			}
		}
	}

	keyStores, keyCols, err := f.boundColumns(ctx, keys)
	if err != nil {
		return nil, err
	}
	inputStores := make([][]*segment.Store, len(specs))
	inputCols := make([][]int, len(specs))
	for i, sp := range specs {
		inputStores[i], inputCols[i], err = f.boundColumns(ctx, sp.Columns)
		if err != nil {
			return nil, err
		}
	}

	// The first key column's store drives segmentation. Other columns
	// are read by row range, so their own layouts need not match.
	driver := keyStores[0]
	offsets, counts := storeOffsets(driver)
	partials := make([]*groupTable, len(counts))

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(f.eng.cfg.Performance.Workers)
	for si := range counts {
		si := si
		grp.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			lo, hi := offsets[si], offsets[si]+counts[si]
			keyVals, err := readRanges(keyStores, keyCols, lo, hi)
			if err != nil {
				return err
			}
			inVals := make([][][]value.Value, len(specs))
			for i := range specs {
				inVals[i], err = readRanges(inputStores[i], inputCols[i], lo, hi)
				if err != nil {
					return err
				}
			}

			table := newGroupTable()
			key := make([]value.Value, len(keys))
			for r := 0; r < hi-lo; r++ {
				for k := range keyVals {
					key[k] = keyVals[k][r]
				}
				h := hashTuple(key)
				g := table.find(h, key)
				if g == nil {
					g = &group{
						key:    append([]value.Value(nil), key...),
						states: make([]aggregate.Aggregator, len(specs)),
					}
					for i, sp := range specs {
						g.states[i] = sp.Agg.NewInstance()
					}
					table.insert(h, g)
				}
				for i := range specs {
					row := make([]value.Value, len(inVals[i]))
					for c := range inVals[i] {
						row[c] = inVals[i][c][r]
					}
					if err := g.states[i].Add(row); err != nil {
						return errors.Wrap(err, errors.ErrorTypeInternal,
							"aggregate "+specs[i].Name).WithDetail("row", lo+r)
					}
				}
			}
			partials[si] = table
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	merged := newGroupTable()
	for _, part := range partials {
		for _, g := range part.order {
			h := hashTuple(g.key)
			into := merged.find(h, g.key)
			if into == nil {
				merged.insert(h, g)
				continue
			}
			for i := range specs {
				if err := into.states[i].Combine(g.states[i]); err != nil {
					return nil, errors.Wrap(err, errors.ErrorTypeInternal,
						"combine "+specs[i].Name)
				}
			}
		}
	}

	names := append([]string(nil), keys...)
	for _, sp := range specs {
		names = append(names, sp.Name)
	}
	rows := make([][]value.Value, len(merged.order))
	for r, g := range merged.order {
		row := make([]value.Value, 0, len(names))
		row = append(row, g.key...)
		for i := range specs {
			row = append(row, g.states[i].Emit())
		}
		rows[r] = row
	}

	kinds := make([]value.Kind, len(names))
	for i, name := range keys {
		kinds[i] = f.cols[name].Kind()
	}
	for i := range specs {
		c := len(keys) + i
		col := make([]value.Value, len(rows))
		for r := range rows {
			col[r] = rows[r][c]
		}
		k, err := inferColumnKind(col)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeMismatch,
				"aggregate "+specs[i].Name)
		}
		col = normalizeColumn(col, k)
		for r := range rows {
			rows[r][c] = col[r]
		}
		kinds[c] = k
	}
	return f.eng.writeFrameRows(names, kinds, rows)
}

// boundColumns materializes the named columns and returns their stores
// with the store-column index each Array reads.
func (f *Frame) boundColumns(ctx context.Context, names []string) ([]*segment.Store, []int, error) {
	stores := make([]*segment.Store, len(names))
	cols := make([]int, len(names))
	for i, name := range names {
		a, ok := f.cols[name]
		if !ok {
			return nil, nil, errors.Newf(errors.ErrorOutOfRange, "no column %q", name)
		}
		st, err := a.Store(ctx)
		if err != nil {
			return nil, nil, err
		}
		stores[i] = st
		cols[i] = a.colIndex()
	}
	return stores, cols, nil
}

// storeOffsets returns the starting row offset and row count of each
// segment in st.
func storeOffsets(st *segment.Store) (offsets, counts []int) {
	offsets = make([]int, st.SegmentCount())
	counts = make([]int, st.SegmentCount())
	off := 0
	for i := 0; i < st.SegmentCount(); i++ {
		offsets[i] = off
		counts[i] = st.SegmentRowCount(i)
		off += counts[i]
	}
	return offsets, counts
}

// readRanges reads rows [lo, hi) of each (store, column) pair.
func readRanges(stores []*segment.Store, cols []int, lo, hi int) ([][]value.Value, error) {
	out := make([][]value.Value, len(stores))
	for i := range stores {
		vals, err := stores[i].ReadRange(cols[i], lo, hi)
		if err != nil {
			return nil, err
		}
		out[i] = vals
	}
	return out, nil
}
