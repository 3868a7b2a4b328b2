// Package json is the engine's JSON codec, a thin front over
// goccy/go-json. Segment payloads, store metadata, and aggregator state
// all encode through it, so the underlying engine is swapped in one
// place.
package json

import (
	"bytes"
	"io"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/strata/pkg/pool"
)

// GetBuffer hands out a reset scratch buffer.
func GetBuffer() *bytes.Buffer {
	return pool.GetBuffer()
}

// PutBuffer returns a scratch buffer to the pool. Oversized buffers are
// dropped so one large encode does not pin memory.
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1<<20 {
		return
	}
	pool.PutBuffer(buf)
}

// RawMessage is a raw encoded JSON value, decoded lazily.
type RawMessage = gojson.RawMessage

// Marshal encodes v.
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// MarshalIndent encodes v with indentation, for metadata records meant
// to be human-inspectable.
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *gojson.Encoder {
	return gojson.NewEncoder(w)
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *gojson.Decoder {
	return gojson.NewDecoder(r)
}

// EncodeToBuffer encodes v into a pooled buffer. The caller owns the
// buffer and must return it with PutBuffer.
func EncodeToBuffer(v interface{}) (*bytes.Buffer, error) {
	buf := GetBuffer()
	if err := NewEncoder(buf).Encode(v); err != nil {
		PutBuffer(buf)
		return nil, err
	}
	return buf, nil
}
