package frame

import (
	"context"
	"strconv"

	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/value"
)

// Unpack spreads a container column into a Frame, one output column per
// container slot. The schema comes from the first non-missing element:
// a List of width w unpacks into columns "0".."w-1"; a Dict unpacks into
// one column per string key, in that element's entry order.
//
// A row that does not fit the schema (short List, Dict lacking a key)
// fails with an unpack error carrying the row index, unless fill is
// non-nil, in which case the absent slots take the fill value. A List
// longer than the schema always fails. Dict entries under keys outside
// the schema are ignored. A Missing container row yields an all-Missing
// output row.
func (a *Array) Unpack(ctx context.Context, fill *value.Value) (*Frame, error) {
	switch a.Kind() {
	case value.KindList, value.KindDict, value.KindMissing:
	default:
		return nil, errors.Newf(errors.ErrorTypeMismatch,
			"cannot unpack %s values", a.Kind())
	}
	vals, err := a.Values(ctx)
	if err != nil {
		return nil, err
	}

	var names []string
	isDict := false
	for _, v := range vals {
		if v.IsMissing() {
			continue
		}
		if v.Kind() == value.KindDict {
			isDict = true
			for _, e := range v.Entries() {
				if e.Key.Kind() != value.KindString {
					return nil, errors.Newf(errors.ErrorUnpack,
						"dict key of kind %s cannot name a column", e.Key.Kind())
				}
				names = append(names, e.Key.Text())
			}
		} else {
			for i := range v.Elems() {
				names = append(names, strconv.Itoa(i))
			}
		}
		break
	}
	if len(names) == 0 {
		// All rows missing, or the array is empty: nothing to infer a
		// schema from.
		return nil, errors.New(errors.ErrorUnpack,
			"no non-missing element to infer an unpack schema from")
	}

	rows := make([][]value.Value, len(vals))
	for r, v := range vals {
		row := make([]value.Value, len(names))
		switch {
		case v.IsMissing():
			for c := range row {
				row[c] = value.Missing()
			}
		case isDict:
			if v.Kind() != value.KindDict {
				return nil, errors.Newf(errors.ErrorUnpack,
					"row %d is %s, schema is dict", r, v.Kind()).WithDetail("row", r)
			}
			for c, name := range names {
				got, ok := v.DictGet(value.Str(name))
				switch {
				case ok:
					row[c] = got
				case fill != nil:
					row[c] = *fill
				default:
					return nil, errors.Newf(errors.ErrorUnpack,
						"row %d lacks key %q", r, name).WithDetail("row", r)
				}
			}
		default:
			if v.Kind() != value.KindList {
				return nil, errors.Newf(errors.ErrorUnpack,
					"row %d is %s, schema is list", r, v.Kind()).WithDetail("row", r)
			}
			elems := v.Elems()
			if len(elems) > len(names) {
				return nil, errors.Newf(errors.ErrorUnpack,
					"row %d has %d elements, schema has %d", r, len(elems), len(names)).
					WithDetail("row", r)
			}
			for c := range names {
				switch {
				case c < len(elems):
					row[c] = elems[c]
				case fill != nil:
					row[c] = *fill
				default:
					return nil, errors.Newf(errors.ErrorUnpack,
						"row %d has %d elements, schema has %d", r, len(elems), len(names)).
						WithDetail("row", r)
				}
			}
		}
		rows[r] = row
	}

	kinds := make([]value.Kind, len(names))
	for c := range names {
		col := make([]value.Value, len(rows))
		for r := range rows {
			col[r] = rows[r][c]
		}
		k, err := inferColumnKind(col)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorUnpack, "column "+names[c])
		}
		col = normalizeColumn(col, k)
		for r := range rows {
			rows[r][c] = col[r]
		}
		kinds[c] = k
	}
	return a.eng.writeFrameRows(names, kinds, rows)
}
