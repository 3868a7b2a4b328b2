package frame

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/strata/pkg/value"
)

func TestStackLists(t *testing.T) {
	eng := newTestEngine(t)
	f := eng.NewFrame()
	lists, err := eng.ArrayFromValues([]value.Value{
		value.List(value.Int(1), value.Int(2)),
		value.List(value.Int(3)),
	})
	require.NoError(t, err)
	require.NoError(t, f.Set(context.Background(), "id", intArray(t, eng, 10, 20)))
	require.NoError(t, f.Set(context.Background(), "vals", lists))

	out, err := f.Stack(context.Background(), "vals", "v")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "v"}, out.Columns())

	rows, err := out.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(10), rows[0][0].Int64())
	assert.Equal(t, int64(1), rows[0][1].Int64())
	assert.Equal(t, int64(10), rows[1][0].Int64())
	assert.Equal(t, int64(2), rows[1][1].Int64())
	assert.Equal(t, int64(20), rows[2][0].Int64())
	assert.Equal(t, int64(3), rows[2][1].Int64())
}

// Missing or empty containers still produce one row, with Missing in the
// new column.
func TestStackMissingAndEmpty(t *testing.T) {
	eng := newTestEngine(t)
	f := eng.NewFrame()
	lists, err := eng.ArrayFromValues([]value.Value{
		value.Missing(),
		value.List(),
		value.List(value.Int(7)),
	})
	require.NoError(t, err)
	require.NoError(t, f.Set(context.Background(), "id", intArray(t, eng, 1, 2, 3)))
	require.NoError(t, f.Set(context.Background(), "vals", lists))

	out, err := f.Stack(context.Background(), "vals", "v")
	require.NoError(t, err)
	rows, err := out.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.True(t, rows[0][1].IsMissing())
	assert.True(t, rows[1][1].IsMissing())
	assert.Equal(t, int64(7), rows[2][1].Int64())
}

func TestStackVector(t *testing.T) {
	eng := newTestEngine(t)
	f := eng.NewFrame()
	vecs, err := eng.ArrayFromValues([]value.Value{value.Vector(1.5, 2.5)})
	require.NoError(t, err)
	require.NoError(t, f.Set(context.Background(), "v", vecs))

	out, err := f.Stack(context.Background(), "v", "x")
	require.NoError(t, err)
	col, _ := out.Column("x")
	assert.Equal(t, value.KindFloat, col.Kind())
	vals, err := col.Values(context.Background())
	require.NoError(t, err)
	require.Len(t, vals, 2)
	assert.Equal(t, 1.5, vals[0].Float64())
}

func TestStackRejectsScalarColumn(t *testing.T) {
	eng := newTestEngine(t)
	f := testFrame(t, eng, []string{"a"}, vInts(1, 2))
	_, err := f.Stack(context.Background(), "a", "x")
	require.Error(t, err)
}

func TestUnstackCollectsInEncounterOrder(t *testing.T) {
	eng := newTestEngine(t)
	f := testFrame(t, eng, []string{"g", "v"},
		vStrs("a", "b", "a", "a"), vInts(1, 2, 3, 4))

	out, err := f.Unstack(context.Background(), "v")
	require.NoError(t, err)
	assert.Equal(t, []string{"g", "v"}, out.Columns())

	rows, err := out.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "a", rows[0][0].Text())
	elems := rows[0][1].Elems()
	require.Len(t, elems, 3)
	assert.Equal(t, int64(1), elems[0].Int64())
	assert.Equal(t, int64(3), elems[1].Int64())
	assert.Equal(t, int64(4), elems[2].Int64())

	assert.Equal(t, "b", rows[1][0].Text())
	require.Len(t, rows[1][1].Elems(), 1)
}

// Stack then Unstack recovers the original multiset per group.
func TestStackUnstackRoundTrip(t *testing.T) {
	eng := newTestEngine(t)
	f := eng.NewFrame()
	lists, err := eng.ArrayFromValues([]value.Value{
		value.List(value.Int(1), value.Int(2)),
		value.List(value.Int(3), value.Int(4), value.Int(5)),
	})
	require.NoError(t, err)
	require.NoError(t, f.Set(context.Background(), "id", intArray(t, eng, 1, 2)))
	require.NoError(t, f.Set(context.Background(), "vals", lists))

	stacked, err := f.Stack(context.Background(), "vals", "v")
	require.NoError(t, err)
	back, err := stacked.Unstack(context.Background(), "v")
	require.NoError(t, err)

	rows, err := back.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Len(t, rows[0][1].Elems(), 2)
	require.Len(t, rows[1][1].Elems(), 3)
	assert.Equal(t, int64(5), rows[1][1].Elems()[2].Int64())
}

func TestUnstackNeedsKeyColumns(t *testing.T) {
	eng := newTestEngine(t)
	f := testFrame(t, eng, []string{"v"}, vInts(1, 2))
	_, err := f.Unstack(context.Background(), "v")
	require.Error(t, err)
}
