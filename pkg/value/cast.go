package value

import (
	"strconv"
	"time"

	"github.com/ajitpratap0/strata/pkg/errors"
)

// Cast converts v to the target kind. Missing casts to Missing for every
// target. A value that cannot be represented in the target kind fails with
// a conversion error naming the offending value.
func Cast(v Value, target Kind) (Value, error) {
	if v.kind == target || v.IsMissing() {
		return v, nil
	}
	switch target {
	case KindInt:
		return castInt(v)
	case KindFloat:
		return castFloat(v)
	case KindString:
		return castString(v)
	case KindVector:
		return castVector(v)
	case KindList:
		return castList(v)
	case KindDateTime:
		return castDateTime(v)
	default:
		return Missing(), errors.Newf(errors.ErrorConversion,
			"cannot cast %s to %s", v.kind, target)
	}
}

func castInt(v Value) (Value, error) {
	switch v.kind {
	case KindFloat:
		return Int(int64(v.f)), nil
	case KindString:
		n, err := strconv.ParseInt(v.s, 10, 64)
		if err != nil {
			return Missing(), errors.Newf(errors.ErrorConversion,
				"cannot parse %q as integer", v.s)
		}
		return Int(n), nil
	default:
		return Missing(), errors.Newf(errors.ErrorConversion,
			"cannot cast %s to integer", v.kind)
	}
}

func castFloat(v Value) (Value, error) {
	switch v.kind {
	case KindInt:
		return Float(float64(v.i)), nil
	case KindString:
		f, err := strconv.ParseFloat(v.s, 64)
		if err != nil {
			return Missing(), errors.Newf(errors.ErrorConversion,
				"cannot parse %q as float", v.s)
		}
		return Float(f), nil
	default:
		return Missing(), errors.Newf(errors.ErrorConversion,
			"cannot cast %s to float", v.kind)
	}
}

func castString(v Value) (Value, error) {
	switch v.kind {
	case KindInt:
		return Str(strconv.FormatInt(v.i, 10)), nil
	case KindFloat:
		return Str(strconv.FormatFloat(v.f, 'g', -1, 64)), nil
	case KindDateTime:
		return Str(v.t.Format(time.RFC3339Nano)), nil
	default:
		return Missing(), errors.Newf(errors.ErrorConversion,
			"cannot cast %s to string", v.kind)
	}
}

func castVector(v Value) (Value, error) {
	if v.kind != KindList {
		return Missing(), errors.Newf(errors.ErrorConversion,
			"cannot cast %s to vector", v.kind)
	}
	out := make([]float64, len(v.list))
	for i, e := range v.list {
		if !isNumeric(e.kind) {
			return Missing(), errors.Newf(errors.ErrorConversion,
				"list element %d is %s, not numeric", i, e.kind)
		}
		out[i] = e.Float64()
	}
	return Vector(out...), nil
}

func castList(v Value) (Value, error) {
	if v.kind != KindVector {
		return Missing(), errors.Newf(errors.ErrorConversion,
			"cannot cast %s to list", v.kind)
	}
	out := make([]Value, len(v.vec))
	for i, f := range v.vec {
		out[i] = Float(f)
	}
	return List(out...), nil
}

func castDateTime(v Value) (Value, error) {
	switch v.kind {
	case KindString:
		t, err := time.Parse(time.RFC3339Nano, v.s)
		if err != nil {
			t, err = time.Parse(time.RFC3339, v.s)
		}
		if err != nil {
			return Missing(), errors.Newf(errors.ErrorConversion,
				"cannot parse %q as datetime", v.s)
		}
		return DateTime(t), nil
	case KindInt:
		return DateTime(time.Unix(v.i, 0).UTC()), nil
	default:
		return Missing(), errors.Newf(errors.ErrorConversion,
			"cannot cast %s to datetime", v.kind)
	}
}
