package frame

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/segment"
	"github.com/ajitpratap0/strata/pkg/value"
)

// JoinKind selects the join semantics.
type JoinKind string

const (
	JoinInner JoinKind = "inner"
	JoinLeft  JoinKind = "left"
	JoinRight JoinKind = "right"
	JoinOuter JoinKind = "outer"
)

// joinSide is the indexed (hash-table) side of a join.
type joinSide struct {
	rows    [][]value.Value // full rows, payload columns only
	keys    [][]value.Value
	buckets map[uint64][]int
	matched []atomic.Bool
}

func buildJoinSide(keys [][]value.Value, rows [][]value.Value) *joinSide {
	s := &joinSide{
		rows:    rows,
		keys:    keys,
		buckets: map[uint64][]int{},
		matched: make([]atomic.Bool, len(rows)),
	}
	key := make([]value.Value, len(keys))
	for r := range rows {
		for k := range keys {
			key[k] = keys[k][r]
		}
		h := hashTuple(key)
		s.buckets[h] = append(s.buckets[h], r)
	}
	return s
}

func (s *joinSide) lookup(key []value.Value) []int {
	h := hashTuple(key)
	var out []int
	for _, r := range s.buckets[h] {
		probe := make([]value.Value, len(key))
		for k := range s.keys {
			probe[k] = s.keys[k][r]
		}
		if tupleEqual(probe, key) {
			out = append(out, r)
		}
	}
	return out
}

// Join combines this Frame with other on equality of the named key
// columns. The output carries this Frame's columns followed by the other
// Frame's non-key columns; a name collision suffixes the right-hand
// column with "_right". Key columns appear once and take their value from
// whichever side has it.
//
// Inner and left joins stream this Frame's rows against a hash index of
// other; a right join streams other against an index of this Frame; an
// outer join is a left join whose unmatched right rows are appended after
// the streamed output, with Missing filling the columns the unmatched
// side lacks. Matched rows preserve the driving side's row order.
func (f *Frame) Join(ctx context.Context, other *Frame, on []string, how JoinKind) (*Frame, error) {
	switch how {
	case JoinInner, JoinLeft, JoinRight, JoinOuter:
	default:
		return nil, errors.Newf(errors.ErrorOutOfRange, "unknown join kind %q", how)
	}
	for _, name := range on {
		la, ok := f.cols[name]
		if !ok {
			return nil, errors.Newf(errors.ErrorOutOfRange, "left frame has no column %q", name)
		}
		ra, ok := other.cols[name]
		if !ok {
			return nil, errors.Newf(errors.ErrorOutOfRange, "right frame has no column %q", name)
		}
		if !kindsJoinable(la.Kind(), ra.Kind()) {
			return nil, errors.Newf(errors.ErrorTypeMismatch,
				"key column %q is %s on the left and %s on the right", name, la.Kind(), ra.Kind())
		}
	}

	// Output schema: left columns, then right non-key columns with
	// collisions renamed.
	onSet := map[string]bool{}
	for _, name := range on {
		onSet[name] = true
	}
	var rightPayload []string
	outNames := append([]string(nil), f.names...)
	outKinds := make([]value.Kind, 0, len(f.names))
	for _, name := range f.names {
		k := f.cols[name].Kind()
		if onSet[name] {
			k = joinKeyKind(k, other.cols[name].Kind())
		}
		outKinds = append(outKinds, k)
	}
	leftSet := map[string]bool{}
	for _, name := range f.names {
		leftSet[name] = true
	}
	for _, name := range other.names {
		if onSet[name] {
			continue
		}
		rightPayload = append(rightPayload, name)
		outName := name
		if leftSet[outName] {
			outName += "_right"
		}
		outNames = append(outNames, outName)
		outKinds = append(outKinds, other.cols[name].Kind())
	}

	drive, index := f, other
	if how == JoinRight {
		drive, index = other, f
	}
	drivePayload := f.names
	indexPayload := rightPayload
	if how == JoinRight {
		drivePayload = rightPayload
		indexPayload = f.names
	}

	indexKeys := make([][]value.Value, len(on))
	for i, name := range on {
		vals, err := index.cols[name].Values(ctx)
		if err != nil {
			return nil, err
		}
		indexKeys[i] = vals
	}
	indexRows, err := readColumnsByRow(ctx, index, indexPayload)
	if err != nil {
		return nil, err
	}
	side := buildJoinSide(indexKeys, indexRows)

	leftKeyPos := make([]int, len(on))
	for i, name := range on {
		for j, ln := range f.names {
			if ln == name {
				leftKeyPos[i] = j
			}
		}
	}

	// Key columns promoted to Float carry values from both sides; lift
	// the Int side on write so rows match the declared schema.
	normalizeKeys := func(row []value.Value) {
		for _, pos := range leftKeyPos {
			if outKinds[pos] == value.KindFloat && row[pos].Kind() == value.KindInt {
				row[pos] = value.Float(row[pos].Float64())
			}
		}
	}

	driveKeyStores, driveKeyCols, err := drive.boundColumns(ctx, on)
	if err != nil {
		return nil, err
	}
	drivePayloadStores, drivePayloadCols, err := drive.boundColumns(ctx, drivePayload)
	if err != nil {
		return nil, err
	}

	driver := driveKeyStores[0]
	offsets, counts := storeOffsets(driver)

	// One writer segment per driving segment, plus one appendix segment
	// for the unmatched indexed rows of an outer join. The appendix may
	// stay empty.
	segTotal := len(counts)
	if how == JoinOuter {
		segTotal++
	}
	cols := make([]segment.ColumnMeta, len(outNames))
	for i := range outNames {
		cols[i] = segment.ColumnMeta{Name: outNames[i], Kind: outKinds[i]}
	}
	w, err := segment.NewWriter(f.eng.cfg.Storage.Dir, cols, segTotal, f.eng.compConfig())
	if err != nil {
		return nil, err
	}

	emitMatched := how != JoinInner // unmatched driving rows still emit
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(f.eng.cfg.Performance.Workers)
	for si := range counts {
		si := si
		grp.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			lo, hi := offsets[si], offsets[si]+counts[si]
			keyVals, err := readRanges(driveKeyStores, driveKeyCols, lo, hi)
			if err != nil {
				return err
			}
			payVals, err := readRanges(drivePayloadStores, drivePayloadCols, lo, hi)
			if err != nil {
				return err
			}

			key := make([]value.Value, len(on))
			for r := 0; r < hi-lo; r++ {
				for k := range keyVals {
					key[k] = keyVals[k][r]
				}
				matches := side.lookup(key)
				if len(matches) == 0 {
					if !emitMatched {
						continue
					}
					row := joinRow(how, key, leftKeyPos, payVals, r, nil, len(indexPayload))
					normalizeKeys(row)
					if err := w.Write(row, si); err != nil {
						return err
					}
					continue
				}
				for _, m := range matches {
					side.matched[m].Store(true)
					row := joinRow(how, key, leftKeyPos, payVals, r, side.rows[m], len(indexPayload))
					normalizeKeys(row)
					if err := w.Write(row, si); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		_ = w.Abort()
		return nil, err
	}

	if how == JoinOuter {
		appendix := len(counts)
		key := make([]value.Value, len(on))
		for r := range side.rows {
			if side.matched[r].Load() {
				continue
			}
			for k := range side.keys {
				key[k] = side.keys[k][r]
			}
			row := outerUnmatchedRow(f.names, on, key, side.rows[r])
			normalizeKeys(row)
			if err := w.Write(row, appendix); err != nil {
				_ = w.Abort()
				return nil, err
			}
		}
	}

	st, err := w.Close()
	if err != nil {
		return nil, err
	}
	return f.eng.frameFromStore(st)
}

// joinRow assembles one output row in left-columns-then-right-payload
// order. For JoinRight the driving side is the right frame, so its
// payload goes after the indexed side's columns; an unmatched driving
// row fills the left key positions from the driving keys, since key
// columns take their value from whichever side has it.
func joinRow(how JoinKind, key []value.Value, leftKeyPos []int, drivePay [][]value.Value, r int, indexRow []value.Value, indexWidth int) []value.Value {
	drive := make([]value.Value, len(drivePay))
	for c := range drivePay {
		drive[c] = drivePay[c][r]
	}
	unmatched := indexRow == nil
	if unmatched {
		indexRow = make([]value.Value, indexWidth)
		for i := range indexRow {
			indexRow[i] = value.Missing()
		}
	}
	if how == JoinRight {
		// indexRow holds the left frame's full columns.
		out := append(append([]value.Value(nil), indexRow...), drive...)
		if unmatched {
			for i, pos := range leftKeyPos {
				out[pos] = key[i]
			}
		}
		return out
	}
	return append(drive, indexRow...)
}

// outerUnmatchedRow fills an appendix row for an unmatched right-side
// row: left columns are Missing except the keys, which take the right
// side's values; then the right payload.
func outerUnmatchedRow(leftNames []string, on []string, key []value.Value, rightPayload []value.Value) []value.Value {
	onPos := map[string]int{}
	for i, name := range on {
		onPos[name] = i
	}
	out := make([]value.Value, 0, len(leftNames)+len(rightPayload))
	for _, name := range leftNames {
		if i, ok := onPos[name]; ok {
			out = append(out, key[i])
		} else {
			out = append(out, value.Missing())
		}
	}
	return append(out, rightPayload...)
}

// readColumnsByRow materializes the named columns and pivots them into
// rows.
func readColumnsByRow(ctx context.Context, f *Frame, names []string) ([][]value.Value, error) {
	n, err := f.NumRows(ctx)
	if err != nil {
		return nil, err
	}
	cols := make([][]value.Value, len(names))
	for i, name := range names {
		a, ok := f.cols[name]
		if !ok {
			return nil, errors.Newf(errors.ErrorOutOfRange, "no column %q", name)
		}
		cols[i], err = a.Values(ctx)
		if err != nil {
			return nil, err
		}
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

// joinKeyKind resolves the declared kind of an output key column: a
// Missing side defers to the other, and mixed numeric keys promote to
// Float. Only combinations kindsJoinable admits reach here.
func joinKeyKind(l, r value.Kind) value.Kind {
	switch {
	case l == r:
		return l
	case l == value.KindMissing:
		return r
	case r == value.KindMissing:
		return l
	default:
		return value.KindFloat
	}
}

func kindsJoinable(a, b value.Kind) bool {
	if a == b || a == value.KindMissing || b == value.KindMissing {
		return true
	}
	num := func(k value.Kind) bool { return k == value.KindInt || k == value.KindFloat }
	return num(a) && num(b)
}
