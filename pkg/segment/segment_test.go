package segment

import (
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/strata/pkg/compression"
	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/value"
)

func testComp() *compression.Config {
	return &compression.Config{Algorithm: compression.Zstd, Level: compression.Fastest}
}

func intRow(vals ...int64) []value.Value {
	row := make([]value.Value, len(vals))
	for i, v := range vals {
		row[i] = value.Int(v)
	}
	return row
}

func TestWriterRoundTrip(t *testing.T) {
	cols := []ColumnMeta{{Name: "v", Kind: value.KindInt}}
	w, err := NewWriter(t.TempDir(), cols, 2, testComp())
	require.NoError(t, err)

	// Two segments filled independently: three zeros into segment 0,
	// three ones into segment 1. The sealed store must read back as
	// [0,0,0,1,1,1] regardless of interleaving.
	for i := 0; i < 3; i++ {
		require.NoError(t, w.WriteValue(value.Int(1), 1))
		require.NoError(t, w.WriteValue(value.Int(0), 0))
	}
	st, err := w.Close()
	require.NoError(t, err)

	assert.Equal(t, 6, st.Rows())
	assert.Equal(t, 2, st.SegmentCount())
	vals, err := st.ReadRange(0, 0, 6)
	require.NoError(t, err)
	want := []int64{0, 0, 0, 1, 1, 1}
	for i, v := range vals {
		assert.Equal(t, want[i], v.Int64(), "row %d", i)
	}
}

func TestWriterParallelSegments(t *testing.T) {
	const segs = 8
	const perSeg = 100
	cols := []ColumnMeta{{Name: "v", Kind: value.KindInt}}
	w, err := NewWriter(t.TempDir(), cols, segs, testComp())
	require.NoError(t, err)

	// One goroutine per segment, no external locking: the writer
	// contract is that distinct segments never contend.
	var wg sync.WaitGroup
	for s := 0; s < segs; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := 0; i < perSeg; i++ {
				if err := w.WriteValue(value.Int(int64(s*perSeg+i)), s); err != nil {
					t.Error(err)
					return
				}
			}
		}(s)
	}
	wg.Wait()

	st, err := w.Close()
	require.NoError(t, err)
	require.Equal(t, segs*perSeg, st.Rows())
	vals, err := st.ReadRange(0, 0, st.Rows())
	require.NoError(t, err)
	for i, v := range vals {
		require.Equal(t, int64(i), v.Int64(), "row %d", i)
	}
}

func TestWriterValidation(t *testing.T) {
	cols := []ColumnMeta{
		{Name: "a", Kind: value.KindInt},
		{Name: "b", Kind: value.KindString},
	}
	w, err := NewWriter(t.TempDir(), cols, 1, testComp())
	require.NoError(t, err)

	// Wrong width.
	err = w.Write(intRow(1), 0)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorLengthMismatch))

	// Wrong kind.
	err = w.Write(intRow(1, 2), 0)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeMismatch))

	// Segment out of range.
	err = w.Write([]value.Value{value.Int(1), value.Str("x")}, 5)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorOutOfRange))

	// Missing is accepted in any column.
	require.NoError(t, w.Write([]value.Value{value.Missing(), value.Missing()}, 0))

	_, err = w.Close()
	require.NoError(t, err)

	// Writes after Close fail.
	err = w.Write([]value.Value{value.Int(1), value.Str("x")}, 0)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorClosedWriter))
}

func TestWriterAbort(t *testing.T) {
	base := t.TempDir()
	cols := []ColumnMeta{{Name: "v", Kind: value.KindInt}}
	w, err := NewWriter(base, cols, 1, testComp())
	require.NoError(t, err)
	require.NoError(t, w.WriteValue(value.Int(1), 0))

	dir := w.Dir()
	require.NoError(t, w.Abort())

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "abort must leave no store directory")

	// Abort after abort is a no-op; Close after abort fails.
	require.NoError(t, w.Abort())
	_, err = w.Close()
	assert.Error(t, err)
}

func TestOpenPersistedStore(t *testing.T) {
	base := t.TempDir()
	cols := []ColumnMeta{
		{Name: "id", Kind: value.KindInt},
		{Name: "name", Kind: value.KindString},
	}
	w, err := NewWriter(base, cols, 2, testComp())
	require.NoError(t, err)
	require.NoError(t, w.Write([]value.Value{value.Int(1), value.Str("one")}, 0))
	require.NoError(t, w.Write([]value.Value{value.Int(2), value.Str("two")}, 1))
	st, err := w.Close()
	require.NoError(t, err)

	reopened, err := Open(st.Dir())
	require.NoError(t, err)
	assert.Equal(t, st.Rows(), reopened.Rows())
	require.Len(t, reopened.Columns(), 2)
	assert.Equal(t, value.KindString, reopened.Columns()[1].Kind)

	row, err := reopened.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "two", row[1].Text())
}

func TestStoreGetCachesSegment(t *testing.T) {
	cols := []ColumnMeta{{Name: "v", Kind: value.KindInt}}
	w, err := NewWriter(t.TempDir(), cols, 3, testComp())
	require.NoError(t, err)
	for s := 0; s < 3; s++ {
		for i := 0; i < 4; i++ {
			require.NoError(t, w.WriteValue(value.Int(int64(s*4+i)), s))
		}
	}
	st, err := w.Close()
	require.NoError(t, err)

	// Sequential random access across segment boundaries.
	for i := 0; i < st.Rows(); i++ {
		row, err := st.Get(i)
		require.NoError(t, err)
		assert.Equal(t, int64(i), row[0].Int64())
	}
	_, err = st.Get(st.Rows())
	assert.Error(t, err)
}

func TestReadRangePartial(t *testing.T) {
	cols := []ColumnMeta{{Name: "v", Kind: value.KindInt}}
	w, err := NewWriter(t.TempDir(), cols, 2, testComp())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, w.WriteValue(value.Int(int64(i)), i/5))
	}
	st, err := w.Close()
	require.NoError(t, err)

	// Range straddling the segment boundary.
	vals, err := st.ReadRange(0, 3, 8)
	require.NoError(t, err)
	require.Len(t, vals, 5)
	for i, v := range vals {
		assert.Equal(t, int64(i+3), v.Int64())
	}

	vals, err = st.ReadRange(0, 4, 4)
	require.NoError(t, err)
	assert.Empty(t, vals)

	_, err = st.ReadRange(0, 0, 11)
	assert.Error(t, err)
}

func TestStoreRemove(t *testing.T) {
	cols := []ColumnMeta{{Name: "v", Kind: value.KindInt}}
	w, err := NewWriter(t.TempDir(), cols, 1, testComp())
	require.NoError(t, err)
	require.NoError(t, w.WriteValue(value.Int(1), 0))
	st, err := w.Close()
	require.NoError(t, err)

	dir := st.Dir()
	require.NoError(t, st.Remove())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestEmptySegmentsAllowed(t *testing.T) {
	cols := []ColumnMeta{{Name: "v", Kind: value.KindInt}}
	w, err := NewWriter(t.TempDir(), cols, 3, testComp())
	require.NoError(t, err)
	// Only the middle segment gets rows.
	require.NoError(t, w.WriteValue(value.Int(7), 1))
	st, err := w.Close()
	require.NoError(t, err)

	assert.Equal(t, 1, st.Rows())
	assert.Equal(t, 3, st.SegmentCount())
	row, err := st.Get(0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), row[0].Int64())
}

func TestWriterCopiesRow(t *testing.T) {
	cols := []ColumnMeta{
		{Name: "k", Kind: value.KindString},
		{Name: "n", Kind: value.KindInt},
	}
	w, err := NewWriter(t.TempDir(), cols, 1, testComp())
	require.NoError(t, err)

	// Callers may reuse one scratch slice across writes; each buffered
	// row must be independent of later mutations.
	scratch := make([]value.Value, 2)
	for i, k := range []string{"a", "b", "c"} {
		scratch[0] = value.Str(k)
		scratch[1] = value.Int(int64(i))
		require.NoError(t, w.Write(scratch, 0))
	}
	st, err := w.Close()
	require.NoError(t, err)

	keys, err := st.ReadRange(0, 0, st.Rows())
	require.NoError(t, err)
	require.Len(t, keys, 3)
	assert.Equal(t, "a", keys[0].Text())
	assert.Equal(t, "b", keys[1].Text())
	assert.Equal(t, "c", keys[2].Text())
}
