// Package segment implements the durable, append-only storage layer.
//
// A Store is the physical representation of one realized column or frame:
// an ordered sequence of sealed segment files plus a small metadata
// record. Logical row order is segment 0's rows followed by segment 1's,
// and so on; for multi-column stores every column shares the same segment
// boundaries so row i resolves to the same segment/offset pair in every
// column.
//
// New stores are produced only through the Writer protocol. Distinct
// segments of one writer may be populated from independent concurrent
// workers with no coordination; the same segment must be written by a
// single logical writer at a time. Once sealed by Close, a store is
// immutable and freely shared across goroutines without locking.
package segment

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ajitpratap0/strata/pkg/compression"
	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/json"
	"github.com/ajitpratap0/strata/pkg/value"
)

const (
	metadataFile  = "meta.json"
	segmentFormat = "seg-%05d.bin"
)

// ColumnMeta describes one column of a store.
type ColumnMeta struct {
	Name string     `json:"name"`
	Kind value.Kind `json:"kind"`
}

// Metadata is the persisted store descriptor. It is sufficient to reopen
// a store without re-scanning segment data.
type Metadata struct {
	ID           string       `json:"id"`
	Columns      []ColumnMeta `json:"columns"`
	SegmentCount int          `json:"segment_count"`
	SegmentRows  []int        `json:"segment_rows"`
	Compression  string       `json:"compression"`
}

// Store is an immutable, sealed segment store.
type Store struct {
	dir  string
	meta Metadata
	comp compression.Compressor

	// Single-segment cache serving random access reads. Sequential
	// row lookups within one segment hit the cache.
	mu        sync.Mutex
	cachedIdx int
	cached    [][]value.Value
}

// Open reopens a persisted store from its metadata record.
func Open(dir string) (*Store, error) {
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorStorage, "read store metadata")
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrap(err, errors.ErrorStorage, "decode store metadata")
	}
	return newStore(dir, meta)
}

func newStore(dir string, meta Metadata) (*Store, error) {
	comp, err := compression.NewCompressor(&compression.Config{
		Algorithm: compression.Algorithm(meta.Compression),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorStorage, "store compressor")
	}
	return &Store{dir: dir, meta: meta, comp: comp, cachedIdx: -1}, nil
}

// ID returns the store identifier.
func (s *Store) ID() string { return s.meta.ID }

// Dir returns the directory the store lives in.
func (s *Store) Dir() string { return s.dir }

// Columns returns the column descriptors.
func (s *Store) Columns() []ColumnMeta { return s.meta.Columns }

// SegmentCount returns the number of sealed segments.
func (s *Store) SegmentCount() int { return s.meta.SegmentCount }

// SegmentRowCount returns the number of rows in segment i.
func (s *Store) SegmentRowCount(i int) int { return s.meta.SegmentRows[i] }

// Rows returns the total logical row count.
func (s *Store) Rows() int {
	total := 0
	for _, n := range s.meta.SegmentRows {
		total += n
	}
	return total
}

// ReadSegment loads segment i into memory and returns its rows. Sibling
// segments are not touched, so a scan holds at most one segment per
// concurrent reader.
func (s *Store) ReadSegment(i int) ([][]value.Value, error) {
	if i < 0 || i >= s.meta.SegmentCount {
		return nil, errors.Newf(errors.ErrorOutOfRange,
			"segment %d out of range [0,%d)", i, s.meta.SegmentCount)
	}
	raw, err := os.ReadFile(filepath.Join(s.dir, fmt.Sprintf(segmentFormat, i)))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorStorage, "read segment file")
	}
	decoded, err := s.comp.Decompress(raw)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorStorage, "decompress segment")
	}
	var rows [][]value.Value
	if err := json.Unmarshal(decoded, &rows); err != nil {
		return nil, errors.Wrap(err, errors.ErrorStorage, "decode segment rows")
	}
	return rows, nil
}

// Locate resolves a logical row index to its segment and in-segment
// offset.
func (s *Store) Locate(row int) (seg, offset int, err error) {
	if row < 0 {
		return 0, 0, errors.Newf(errors.ErrorOutOfRange, "row %d out of range", row)
	}
	for i, n := range s.meta.SegmentRows {
		if row < n {
			return i, row, nil
		}
		row -= n
	}
	return 0, 0, errors.Newf(errors.ErrorOutOfRange, "row beyond store end")
}

// Get returns one logical row by index, loading (and caching) the
// containing segment.
func (s *Store) Get(row int) ([]value.Value, error) {
	seg, offset, err := s.Locate(row)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cachedIdx != seg {
		rows, err := s.ReadSegment(seg)
		if err != nil {
			return nil, err
		}
		s.cachedIdx = seg
		s.cached = rows
	}
	return s.cached[offset], nil
}

// Scan streams every segment in order through fn. fn receives the segment
// index and its rows; returning an error stops the scan.
func (s *Store) Scan(fn func(seg int, rows [][]value.Value) error) error {
	for i := 0; i < s.meta.SegmentCount; i++ {
		rows, err := s.ReadSegment(i)
		if err != nil {
			return err
		}
		if err := fn(i, rows); err != nil {
			return err
		}
	}
	return nil
}

// ReadRange returns column col of rows [lo, hi), reading only the
// overlapping segments.
func (s *Store) ReadRange(col, lo, hi int) ([]value.Value, error) {
	if lo < 0 || hi > s.Rows() || hi < lo {
		return nil, errors.Newf(errors.ErrorOutOfRange,
			"range [%d,%d) invalid for %d rows", lo, hi, s.Rows())
	}
	out := make([]value.Value, 0, hi-lo)
	off := 0
	for i := 0; i < s.meta.SegmentCount && off < hi; i++ {
		n := s.meta.SegmentRows[i]
		segLo, segHi := off, off+n
		off = segHi
		if segHi <= lo || segLo >= hi {
			continue
		}
		rows, err := s.ReadSegment(i)
		if err != nil {
			return nil, err
		}
		from, to := 0, n
		if lo > segLo {
			from = lo - segLo
		}
		if hi < segHi {
			to = hi - segLo
		}
		for r := from; r < to; r++ {
			out = append(out, rows[r][col])
		}
	}
	return out, nil
}

// Remove deletes the store's on-disk footprint. The store must not be
// used afterwards.
func (s *Store) Remove() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return errors.Wrap(err, errors.ErrorStorage, "remove store")
	}
	return nil
}

func marshalMetadata(meta Metadata) ([]byte, error) {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorStorage, "encode store metadata")
	}
	return data, nil
}

func encodeSegment(comp compression.Compressor, rows [][]value.Value) ([]byte, error) {
	buf, err := json.EncodeToBuffer(rows)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorStorage, "encode segment rows")
	}
	defer json.PutBuffer(buf)
	out, err := comp.Compress(buf.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorStorage, "compress segment")
	}
	// The compressor may alias its input buffer; detach before the
	// scratch buffer returns to the pool.
	detached := make([]byte, len(out))
	copy(detached, out)
	return detached, nil
}
