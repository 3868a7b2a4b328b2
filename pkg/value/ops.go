package value

import (
	"github.com/ajitpratap0/strata/pkg/errors"
)

// Arithmetic and comparison are defined pairwise per kind with explicit
// promotion rules:
//
//   - Integer op Integer -> Integer, except division which promotes to Float
//   - any numeric op with one Float operand promotes both to Float
//   - Missing combined with anything yields Missing
//   - "+" additionally concatenates String+String and List+List
//
// Comparisons across incompatible kinds fail with a type_mismatch error.

// Add returns a + b.
func Add(a, b Value) (Value, error) {
	if a.IsMissing() || b.IsMissing() {
		return Missing(), nil
	}
	switch {
	case a.kind == KindInt && b.kind == KindInt:
		return Int(a.i + b.i), nil
	case isNumeric(a.kind) && isNumeric(b.kind):
		return Float(a.Float64() + b.Float64()), nil
	case a.kind == KindString && b.kind == KindString:
		return Str(a.s + b.s), nil
	case a.kind == KindList && b.kind == KindList:
		joined := make([]Value, 0, len(a.list)+len(b.list))
		joined = append(joined, a.list...)
		joined = append(joined, b.list...)
		return List(joined...), nil
	default:
		return Missing(), opMismatch("+", a, b)
	}
}

// Sub returns a - b.
func Sub(a, b Value) (Value, error) {
	if a.IsMissing() || b.IsMissing() {
		return Missing(), nil
	}
	switch {
	case a.kind == KindInt && b.kind == KindInt:
		return Int(a.i - b.i), nil
	case isNumeric(a.kind) && isNumeric(b.kind):
		return Float(a.Float64() - b.Float64()), nil
	default:
		return Missing(), opMismatch("-", a, b)
	}
}

// Mul returns a * b.
func Mul(a, b Value) (Value, error) {
	if a.IsMissing() || b.IsMissing() {
		return Missing(), nil
	}
	switch {
	case a.kind == KindInt && b.kind == KindInt:
		return Int(a.i * b.i), nil
	case isNumeric(a.kind) && isNumeric(b.kind):
		return Float(a.Float64() * b.Float64()), nil
	default:
		return Missing(), opMismatch("*", a, b)
	}
}

// Div returns a / b. Division always promotes to Float; dividing by zero
// yields Missing rather than an error, matching Missing's role as the
// engine-wide absence marker.
func Div(a, b Value) (Value, error) {
	if a.IsMissing() || b.IsMissing() {
		return Missing(), nil
	}
	if !isNumeric(a.kind) || !isNumeric(b.kind) {
		return Missing(), opMismatch("/", a, b)
	}
	if b.Float64() == 0 {
		return Missing(), nil
	}
	return Float(a.Float64() / b.Float64()), nil
}

// Compare returns -1, 0 or 1 for a < b, a == b, a > b. Either operand
// being Missing yields ok=false; incompatible kinds fail.
func Compare(a, b Value) (cmp int, ok bool, err error) {
	if a.IsMissing() || b.IsMissing() {
		return 0, false, nil
	}
	switch {
	case isNumeric(a.kind) && isNumeric(b.kind):
		af, bf := a.Float64(), b.Float64()
		return orderOf(af < bf, af > bf), true, nil
	case a.kind == KindString && b.kind == KindString:
		return orderOf(a.s < b.s, a.s > b.s), true, nil
	case a.kind == KindDateTime && b.kind == KindDateTime:
		return orderOf(a.t.Before(b.t), a.t.After(b.t)), true, nil
	default:
		return 0, false, opMismatch("compare", a, b)
	}
}

func orderOf(lt, gt bool) int {
	switch {
	case lt:
		return -1
	case gt:
		return 1
	default:
		return 0
	}
}

// CmpOp selects a comparison operator.
type CmpOp uint8

// Comparison operators.
const (
	CmpEq CmpOp = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

// ApplyCmp evaluates a comparison, yielding Integer 1/0. The tag set has
// no boolean kind; 1/0 are truthy/falsy and serve directly as filter
// masks. A Missing operand propagates to Missing.
func ApplyCmp(op CmpOp, a, b Value) (Value, error) {
	if a.IsMissing() || b.IsMissing() {
		return Missing(), nil
	}
	if op == CmpEq || op == CmpNe {
		// Equality is defined for every kind pair; mismatched kinds
		// are simply unequal.
		eq := a.Equal(b)
		if op == CmpNe {
			eq = !eq
		}
		return boolValue(eq), nil
	}
	cmp, ok, err := Compare(a, b)
	if err != nil {
		return Missing(), err
	}
	if !ok {
		return Missing(), nil
	}
	switch op {
	case CmpLt:
		return boolValue(cmp < 0), nil
	case CmpLe:
		return boolValue(cmp <= 0), nil
	case CmpGt:
		return boolValue(cmp > 0), nil
	default:
		return boolValue(cmp >= 0), nil
	}
}

// And returns the logical conjunction of a and b by truthiness, as
// Integer 1/0. Missing is falsy.
func And(a, b Value) Value { return boolValue(a.Truthy() && b.Truthy()) }

// Or returns the logical disjunction of a and b by truthiness.
func Or(a, b Value) Value { return boolValue(a.Truthy() || b.Truthy()) }

// Not returns the logical negation of a by truthiness.
func Not(a Value) Value { return boolValue(!a.Truthy()) }

func boolValue(b bool) Value {
	if b {
		return Int(1)
	}
	return Int(0)
}

func opMismatch(op string, a, b Value) error {
	return errors.Newf(errors.ErrorTypeMismatch,
		"operator %q not defined for %s and %s", op, a.kind, b.kind)
}
