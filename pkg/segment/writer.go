package segment

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/strata/pkg/compression"
	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/logger"
	"github.com/ajitpratap0/strata/pkg/value"
)

// Writer produces a new immutable Store through segment-parallel writes.
//
// Each segment slot owns an independent buffer; writes to distinct
// segments are safe from independent concurrent workers with no shared
// mutable state. The same segment must not receive concurrent writes —
// that is a caller contract, deliberately not enforced with a lock, so
// the common parallel-segment case stays coordination-free.
type Writer struct {
	id       string
	dir      string
	columns  []ColumnMeta
	segments [][][]value.Value
	comp     compression.Compressor
	algo     compression.Algorithm
	closed   atomic.Bool
	log      *zap.Logger
}

// NewWriter opens a writer bound to segmentCount independent segment
// slots, writing under baseDir. The declared column kinds are validated
// against every incoming row.
func NewWriter(baseDir string, columns []ColumnMeta, segmentCount int, comp *compression.Config) (*Writer, error) {
	if segmentCount <= 0 {
		return nil, errors.Newf(errors.ErrorOutOfRange,
			"segment count must be positive, got %d", segmentCount)
	}
	if len(columns) == 0 {
		return nil, errors.New(errors.ErrorStorage, "writer requires at least one column")
	}
	if comp == nil {
		comp = compression.DefaultConfig()
	}
	compressor, err := compression.NewCompressor(comp)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorStorage, "writer compressor")
	}

	id := uuid.NewString()
	dir := filepath.Join(baseDir, "store-"+id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorStorage, "create store directory")
	}

	return &Writer{
		id:       id,
		dir:      dir,
		columns:  columns,
		segments: make([][][]value.Value, segmentCount),
		comp:     compressor,
		algo:     comp.Algorithm,
		log:      logger.With(zap.String("store_id", id)),
	}, nil
}

// SegmentCount returns the number of segment slots.
func (w *Writer) SegmentCount() int { return len(w.segments) }

// Dir returns the directory the store is being written under.
func (w *Writer) Dir() string { return w.dir }

// Write appends one row to the named segment. Row width and per-column
// kinds must match the declared columns; Missing is accepted for every
// declared kind.
func (w *Writer) Write(row []value.Value, seg int) error {
	if w.closed.Load() {
		return errors.New(errors.ErrorClosedWriter, "write after close")
	}
	if seg < 0 || seg >= len(w.segments) {
		return errors.Newf(errors.ErrorOutOfRange,
			"segment %d out of range [0,%d)", seg, len(w.segments))
	}
	if len(row) != len(w.columns) {
		return errors.Newf(errors.ErrorLengthMismatch,
			"row has %d values, store has %d columns", len(row), len(w.columns))
	}
	for i, v := range row {
		if v.IsMissing() {
			continue
		}
		if v.Kind() != w.columns[i].Kind {
			return errors.Newf(errors.ErrorTypeMismatch,
				"column %q declared %s, got %s",
				w.columns[i].Name, w.columns[i].Kind, v.Kind())
		}
	}
	// Buffer a copy: callers are free to reuse their row slice across
	// writes.
	buffered := make([]value.Value, len(row))
	copy(buffered, row)
	w.segments[seg] = append(w.segments[seg], buffered)
	return nil
}

// WriteValue appends one value to the named segment of a single-column
// writer.
func (w *Writer) WriteValue(v value.Value, seg int) error {
	return w.Write([]value.Value{v}, seg)
}

// Close seals every segment, flushing buffered rows to disk, and returns
// the immutable Store. Logical row order is segment 0, 1, ...,
// segmentCount-1, each preserving write order. Writes after Close fail
// with a closed_writer error.
func (w *Writer) Close() (*Store, error) {
	if !w.closed.CompareAndSwap(false, true) {
		return nil, errors.New(errors.ErrorClosedWriter, "writer already closed")
	}

	var g errgroup.Group
	for i := range w.segments {
		i := i
		g.Go(func() error {
			data, err := encodeSegment(w.comp, w.segments[i])
			if err != nil {
				return err
			}
			path := filepath.Join(w.dir, fmt.Sprintf(segmentFormat, i))
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return errors.Wrap(err, errors.ErrorStorage, "write segment file")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// A failed flush must not surface a partial store.
		_ = os.RemoveAll(w.dir)
		return nil, err
	}

	meta := Metadata{
		ID:           w.id,
		Columns:      w.columns,
		SegmentCount: len(w.segments),
		SegmentRows:  make([]int, len(w.segments)),
		Compression:  string(w.algo),
	}
	for i, rows := range w.segments {
		meta.SegmentRows[i] = len(rows)
	}

	data, err := marshalMetadata(meta)
	if err != nil {
		_ = os.RemoveAll(w.dir)
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(w.dir, metadataFile), data, 0o644); err != nil {
		_ = os.RemoveAll(w.dir)
		return nil, errors.Wrap(err, errors.ErrorStorage, "write store metadata")
	}

	w.log.Debug("sealed store",
		zap.Int("segments", meta.SegmentCount),
		zap.Ints("segment_rows", meta.SegmentRows))

	w.segments = nil
	return newStore(w.dir, meta)
}

// Abort discards the writer and removes any partially written files. An
// aborted writer yields no externally visible store; Close after Abort
// fails with a closed_writer error.
func (w *Writer) Abort() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	w.segments = nil
	if err := os.RemoveAll(w.dir); err != nil {
		return errors.Wrap(err, errors.ErrorStorage, "abort writer")
	}
	return nil
}
