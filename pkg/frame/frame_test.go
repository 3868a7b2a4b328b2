package frame

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/value"
)

func testFrame(t *testing.T, eng *Engine, names []string, cols ...[]value.Value) *Frame {
	t.Helper()
	f, err := eng.FromColumns(names, cols)
	require.NoError(t, err)
	return f
}

func vInts(vals ...int64) []value.Value {
	out := make([]value.Value, len(vals))
	for i, v := range vals {
		out[i] = value.Int(v)
	}
	return out
}

func vStrs(vals ...string) []value.Value {
	out := make([]value.Value, len(vals))
	for i, v := range vals {
		out[i] = value.Str(v)
	}
	return out
}

func TestFrameSetAndOrder(t *testing.T) {
	eng := newTestEngine(t)
	f := eng.NewFrame()
	require.NoError(t, f.Set(context.Background(), "b", intArray(t, eng, 1, 2)))
	require.NoError(t, f.Set(context.Background(), "a", intArray(t, eng, 3, 4)))

	// Insertion order, not lexical.
	assert.Equal(t, []string{"b", "a"}, f.Columns())
	assert.Equal(t, 2, f.Len())

	// Re-assigning keeps the original position.
	require.NoError(t, f.Set(context.Background(), "b", intArray(t, eng, 9, 9)))
	assert.Equal(t, []string{"b", "a"}, f.Columns())
}

func TestFrameSetLengthMismatch(t *testing.T) {
	eng := newTestEngine(t)
	f := eng.NewFrame()
	require.NoError(t, f.Set(context.Background(), "a", intArray(t, eng, 1, 2, 3)))

	err := f.Set(context.Background(), "b", intArray(t, eng, 1, 2))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorLengthMismatch))
}

func TestFrameSetScalar(t *testing.T) {
	eng := newTestEngine(t)
	f := eng.NewFrame()

	// Broadcasting into an empty frame has no length to adopt.
	require.Error(t, f.SetScalar(context.Background(), "x", value.Int(1)))

	require.NoError(t, f.Set(context.Background(), "a", intArray(t, eng, 1, 2, 3)))
	require.NoError(t, f.SetScalar(context.Background(), "x", value.Str("c")))

	col, ok := f.Column("x")
	require.True(t, ok)
	vals, err := col.Values(context.Background())
	require.NoError(t, err)
	require.Len(t, vals, 3)
	for _, v := range vals {
		assert.Equal(t, "c", v.Text())
	}
}

func TestFrameDropAndSelect(t *testing.T) {
	eng := newTestEngine(t)
	f := testFrame(t, eng, []string{"a", "b", "c"},
		vInts(1, 2), vInts(3, 4), vInts(5, 6))

	require.NoError(t, f.Drop("b"))
	assert.Equal(t, []string{"a", "c"}, f.Columns())
	require.Error(t, f.Drop("b"))

	sel, err := f.Select(context.Background(), "c", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, sel.Columns())

	// Selection shares arrays; the source frame is untouched.
	assert.Equal(t, []string{"a", "c"}, f.Columns())

	_, err = f.Select(context.Background(), "nope")
	require.Error(t, err)
}

func TestFrameFilterKeepsAlignment(t *testing.T) {
	eng := newTestEngine(t)
	f := testFrame(t, eng, []string{"a", "b"},
		vInts(1, 2, 3, 4), vStrs("w", "x", "y", "z"))

	a, _ := f.Column("a")
	mask, err := a.Greater(eng.Constant(value.Int(2), 4))
	require.NoError(t, err)

	kept, err := f.Filter(mask)
	require.NoError(t, err)
	assert.Equal(t, -1, kept.Len())

	rows, err := kept.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(3), rows[0][0].Int64())
	assert.Equal(t, "y", rows[0][1].Text())
	assert.Equal(t, int64(4), rows[1][0].Int64())
	assert.Equal(t, "z", rows[1][1].Text())
}

func TestFrameSlice(t *testing.T) {
	eng := newTestEngine(t)
	f := testFrame(t, eng, []string{"a", "b"},
		vInts(0, 1, 2, 3, 4), vStrs("p", "q", "r", "s", "t"))

	s, err := f.Slice(context.Background(), 1, -1)
	require.NoError(t, err)
	rows, err := s.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "q", rows[0][1].Text())
	assert.Equal(t, "s", rows[2][1].Text())
}

func TestFrameApply(t *testing.T) {
	eng := newTestEngine(t)
	f := testFrame(t, eng, []string{"a", "b"}, vInts(1, 2, 3), vInts(10, 20, 30))

	total := f.Apply(func(row []value.Value) (value.Value, error) {
		return value.Add(row[0], row[1])
	}, value.KindInt)
	assertInts(t, total, 11, 22, 33)
}

func TestFrameRowsRoundTrip(t *testing.T) {
	eng := newTestEngine(t)
	names := []string{"id", "name"}
	f := testFrame(t, eng, names, vInts(1, 2), vStrs("one", "two"))

	rows, err := f.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[1][0].Int64())
	assert.Equal(t, "two", rows[1][1].Text())
}

func TestOpenFrame(t *testing.T) {
	eng := newTestEngine(t)
	f := testFrame(t, eng, []string{"a", "b"}, vInts(1, 2, 3), vStrs("x", "y", "z"))

	st, err := f.Store(context.Background())
	require.NoError(t, err)
	dir := st.Dir()

	other := newTestEngine(t)
	reopened, err := other.OpenFrame(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, reopened.Columns())
	rows, err := reopened.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "z", rows[2][1].Text())
}

func TestFromColumnsMismatch(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.FromColumns([]string{"a"}, [][]value.Value{vInts(1), vInts(2)})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorLengthMismatch))
}

// Setting an unknown-length column materializes it under the caller's
// context; a canceled context aborts the assignment.
func TestSetUnknownLengthHonorsContext(t *testing.T) {
	eng := newTestEngine(t)
	f := testFrame(t, eng, []string{"a"}, vInts(1, 2, 3, 4))

	a, _ := f.Column("a")
	mask, err := a.Greater(eng.Constant(value.Int(2), 4))
	require.NoError(t, err)
	kept, err := a.Filter(mask)
	require.NoError(t, err)
	_, known := kept.KnownLen()
	require.False(t, known)

	out := eng.NewFrame()
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, out.Set(canceled, "kept", kept))
	assert.Empty(t, out.Columns())

	require.NoError(t, out.Set(context.Background(), "kept", kept))
	assert.Equal(t, 2, out.Len())
}
