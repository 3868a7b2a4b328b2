// Package value implements the runtime-typed scalar model underlying every
// column in the engine.
//
// A Value is a closed tagged union over nine kinds: Integer, Float, String,
// List, Dict, Vector, DateTime, Image and Missing. Missing is compatible
// with every declared column kind; it propagates through arithmetic and is
// falsy for logical operators. All arithmetic, comparison and cast logic is
// a pattern match over kind pairs.
package value

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/ajitpratap0/strata/pkg/errors"
)

// Kind is the type tag carried by every Value.
type Kind uint8

const (
	// KindMissing marks absence of data. Compatible with every column kind.
	KindMissing Kind = iota
	// KindInt is a 64-bit signed integer.
	KindInt
	// KindFloat is a 64-bit float.
	KindFloat
	// KindString is a UTF-8 string.
	KindString
	// KindList is an ordered sequence of Values.
	KindList
	// KindDict is an ordered mapping from Value to Value.
	KindDict
	// KindVector is an ordered sequence of float64.
	KindVector
	// KindDateTime is a point in time.
	KindDateTime
	// KindImage is an opaque binary payload plus metadata.
	KindImage
)

var kindNames = map[Kind]string{
	KindMissing:  "missing",
	KindInt:      "integer",
	KindFloat:    "float",
	KindString:   "string",
	KindList:     "list",
	KindDict:     "dict",
	KindVector:   "vector",
	KindDateTime: "datetime",
	KindImage:    "image",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Entry is one key/value pair of a Dict. Dicts preserve insertion order and
// compare keys by Equal rather than Go map identity, so any Value kind can
// serve as a key.
type Entry struct {
	Key Value
	Val Value
}

// ImageData is the payload of an image Value.
type ImageData struct {
	Data []byte            `json:"data"`
	Meta map[string]string `json:"meta,omitempty"`
}

// Value is one cell of data. The zero Value is Missing.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	list []Value
	dict []Entry
	vec  []float64
	t    time.Time
	img  *ImageData
}

// Missing returns the missing-value marker.
func Missing() Value { return Value{} }

// Int constructs an integer Value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float constructs a float Value.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// Str constructs a string Value.
func Str(v string) Value { return Value{kind: KindString, s: v} }

// List constructs a list Value from the given elements.
func List(elems ...Value) Value { return Value{kind: KindList, list: elems} }

// Dict constructs a dict Value from ordered entries.
func Dict(entries ...Entry) Value { return Value{kind: KindDict, dict: entries} }

// Vector constructs a vector Value.
func Vector(elems ...float64) Value { return Value{kind: KindVector, vec: elems} }

// DateTime constructs a date-time Value.
func DateTime(t time.Time) Value { return Value{kind: KindDateTime, t: t} }

// Image constructs an image Value.
func Image(data []byte, meta map[string]string) Value {
	return Value{kind: KindImage, img: &ImageData{Data: data, Meta: meta}}
}

// Infer constructs a Value from a native Go scalar or sequence, inferring
// the matching kind. nil maps to Missing.
func Infer(v interface{}) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Missing(), nil
	case Value:
		return x, nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case string:
		return Str(x), nil
	case bool:
		if x {
			return Int(1), nil
		}
		return Int(0), nil
	case []Value:
		return List(x...), nil
	case []float64:
		return Vector(x...), nil
	case time.Time:
		return DateTime(x), nil
	case []byte:
		return Image(x, nil), nil
	case []interface{}:
		elems := make([]Value, 0, len(x))
		for _, e := range x {
			ev, err := Infer(e)
			if err != nil {
				return Missing(), err
			}
			elems = append(elems, ev)
		}
		return List(elems...), nil
	default:
		return Missing(), errors.Newf(errors.ErrorTypeMismatch,
			"cannot infer value kind from %T", v)
	}
}

// Kind returns the type tag of v.
func (v Value) Kind() Kind { return v.kind }

// IsMissing reports whether v is the missing marker.
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// Int64 returns the integer payload. Only meaningful for KindInt.
func (v Value) Int64() int64 { return v.i }

// Float64 returns the float payload, widening an integer payload.
func (v Value) Float64() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

// Text returns the string payload. Only meaningful for KindString.
func (v Value) Text() string { return v.s }

// Elems returns the list payload. Only meaningful for KindList.
func (v Value) Elems() []Value { return v.list }

// Entries returns the dict payload. Only meaningful for KindDict.
func (v Value) Entries() []Entry { return v.dict }

// Floats returns the vector payload. Only meaningful for KindVector.
func (v Value) Floats() []float64 { return v.vec }

// Time returns the date-time payload. Only meaningful for KindDateTime.
func (v Value) Time() time.Time { return v.t }

// ImagePayload returns the image payload. Only meaningful for KindImage.
func (v Value) ImagePayload() *ImageData { return v.img }

// DictGet looks up key in a dict Value by Equal, returning Missing when the
// key is absent.
func (v Value) DictGet(key Value) (Value, bool) {
	for _, e := range v.dict {
		if e.Key.Equal(key) {
			return e.Val, true
		}
	}
	return Missing(), false
}

// Truthy reports the logical interpretation of v: Missing is falsy, numbers
// are truthy when non-zero, container types when non-empty.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindMissing:
		return false
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindString:
		return v.s != ""
	case KindList:
		return len(v.list) > 0
	case KindDict:
		return len(v.dict) > 0
	case KindVector:
		return len(v.vec) > 0
	case KindDateTime:
		return !v.t.IsZero()
	case KindImage:
		return v.img != nil && len(v.img.Data) > 0
	default:
		return false
	}
}

// Equal reports semantic equality. Values of different kinds are unequal
// except Integer/Float, which compare numerically. Missing equals only
// Missing; this is the equality used for group-by and join keys.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		if isNumeric(v.kind) && isNumeric(o.kind) {
			return v.Float64() == o.Float64()
		}
		return false
	}
	switch v.kind {
	case KindMissing:
		return true
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if len(v.dict) != len(o.dict) {
			return false
		}
		for _, e := range v.dict {
			ov, ok := o.DictGet(e.Key)
			if !ok || !ov.Equal(e.Val) {
				return false
			}
		}
		return true
	case KindVector:
		if len(v.vec) != len(o.vec) {
			return false
		}
		for i := range v.vec {
			if v.vec[i] != o.vec[i] {
				return false
			}
		}
		return true
	case KindDateTime:
		return v.t.Equal(o.t)
	case KindImage:
		if v.img == nil || o.img == nil {
			return v.img == o.img
		}
		if len(v.img.Data) != len(o.img.Data) {
			return false
		}
		for i := range v.img.Data {
			if v.img.Data[i] != o.img.Data[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// HashInto folds a stable encoding of v into d. Numeric values hash by
// their float64 representation so Integer(2) and Float(2.0) collide, which
// matches Equal. Missing hashes under its own tag and therefore forms a
// distinct key equal only to itself.
func (v Value) HashInto(d *xxhash.Digest) {
	var tag [1]byte
	k := v.kind
	if k == KindInt {
		k = KindFloat // numeric values hash uniformly
	}
	tag[0] = byte(k)
	_, _ = d.Write(tag[:])

	var buf [8]byte
	switch v.kind {
	case KindMissing:
	case KindInt, KindFloat:
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v.Float64()))
		_, _ = d.Write(buf[:])
	case KindString:
		_, _ = d.WriteString(v.s)
	case KindList:
		for _, e := range v.list {
			e.HashInto(d)
		}
	case KindDict:
		for _, e := range v.dict {
			e.Key.HashInto(d)
			e.Val.HashInto(d)
		}
	case KindVector:
		for _, f := range v.vec {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
			_, _ = d.Write(buf[:])
		}
	case KindDateTime:
		binary.LittleEndian.PutUint64(buf[:], uint64(v.t.UnixNano()))
		_, _ = d.Write(buf[:])
	case KindImage:
		if v.img != nil {
			_, _ = d.Write(v.img.Data)
		}
	}
}

// Hash returns a 64-bit hash of v consistent with Equal.
func (v Value) Hash() uint64 {
	d := xxhash.New()
	v.HashInto(d)
	return d.Sum64()
}

func isNumeric(k Kind) bool { return k == KindInt || k == KindFloat }
