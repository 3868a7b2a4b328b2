package value

import (
	"time"

	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/json"
)

// Wire format for persisted values. Each value serializes as a small
// envelope {"k": kind, "v": payload}; Missing serializes as the envelope
// with no payload. Dicts serialize as ordered [key, value] pairs since
// their keys are full Values, not JSON object keys.

type wireEnvelope struct {
	K Kind            `json:"k"`
	V json.RawMessage `json:"v,omitempty"`
}

type wireImage struct {
	Data []byte            `json:"data"`
	Meta map[string]string `json:"meta,omitempty"`
}

// MarshalJSON encodes v in the wire format.
func (v Value) MarshalJSON() ([]byte, error) {
	var payload interface{}
	switch v.kind {
	case KindMissing:
		return json.Marshal(wireEnvelope{K: KindMissing})
	case KindInt:
		payload = v.i
	case KindFloat:
		payload = v.f
	case KindString:
		payload = v.s
	case KindList:
		payload = v.list
	case KindDict:
		pairs := make([][2]Value, len(v.dict))
		for i, e := range v.dict {
			pairs[i] = [2]Value{e.Key, e.Val}
		}
		payload = pairs
	case KindVector:
		payload = v.vec
	case KindDateTime:
		payload = v.t.Format(time.RFC3339Nano)
	case KindImage:
		payload = wireImage{Data: v.img.Data, Meta: v.img.Meta}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEnvelope{K: v.kind, V: raw})
}

// UnmarshalJSON decodes the wire format.
func (v *Value) UnmarshalJSON(data []byte) error {
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return errors.Wrap(err, errors.ErrorStorage, "decode value envelope")
	}
	switch env.K {
	case KindMissing:
		*v = Missing()
		return nil
	case KindInt:
		var n int64
		if err := json.Unmarshal(env.V, &n); err != nil {
			return errors.Wrap(err, errors.ErrorStorage, "decode integer value")
		}
		*v = Int(n)
	case KindFloat:
		var f float64
		if err := json.Unmarshal(env.V, &f); err != nil {
			return errors.Wrap(err, errors.ErrorStorage, "decode float value")
		}
		*v = Float(f)
	case KindString:
		var s string
		if err := json.Unmarshal(env.V, &s); err != nil {
			return errors.Wrap(err, errors.ErrorStorage, "decode string value")
		}
		*v = Str(s)
	case KindList:
		var elems []Value
		if err := json.Unmarshal(env.V, &elems); err != nil {
			return errors.Wrap(err, errors.ErrorStorage, "decode list value")
		}
		*v = List(elems...)
	case KindDict:
		var pairs [][2]Value
		if err := json.Unmarshal(env.V, &pairs); err != nil {
			return errors.Wrap(err, errors.ErrorStorage, "decode dict value")
		}
		entries := make([]Entry, len(pairs))
		for i, p := range pairs {
			entries[i] = Entry{Key: p[0], Val: p[1]}
		}
		*v = Dict(entries...)
	case KindVector:
		var vec []float64
		if err := json.Unmarshal(env.V, &vec); err != nil {
			return errors.Wrap(err, errors.ErrorStorage, "decode vector value")
		}
		*v = Vector(vec...)
	case KindDateTime:
		var s string
		if err := json.Unmarshal(env.V, &s); err != nil {
			return errors.Wrap(err, errors.ErrorStorage, "decode datetime value")
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return errors.Wrap(err, errors.ErrorStorage, "parse datetime value")
		}
		*v = DateTime(t)
	case KindImage:
		var img wireImage
		if err := json.Unmarshal(env.V, &img); err != nil {
			return errors.Wrap(err, errors.ErrorStorage, "decode image value")
		}
		*v = Image(img.Data, img.Meta)
	default:
		return errors.Newf(errors.ErrorStorage, "unknown value kind %d", env.K)
	}
	return nil
}
