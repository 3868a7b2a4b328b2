package frame

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/strata/pkg/aggregate"
	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/value"
)

func TestGroupBySum(t *testing.T) {
	eng := newTestEngine(t)
	f := testFrame(t, eng, []string{"g", "v"},
		vStrs("a", "a", "b"), vInts(1, 1, 2))

	out, err := f.GroupBy(context.Background(), []string{"g"},
		[]aggregate.Spec{aggregate.NewSpec("total", aggregate.NewSum(), "v")})
	require.NoError(t, err)
	assert.Equal(t, []string{"g", "total"}, out.Columns())

	rows, err := out.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// First-encounter order over the input rows.
	assert.Equal(t, "a", rows[0][0].Text())
	assert.Equal(t, int64(2), rows[0][1].Int64())
	assert.Equal(t, "b", rows[1][0].Text())
	assert.Equal(t, int64(2), rows[1][1].Int64())
}

func TestGroupByMultipleAggregates(t *testing.T) {
	eng := newTestEngine(t)
	f := testFrame(t, eng, []string{"g", "v", "name"},
		vStrs("x", "y", "x", "y", "x"),
		vInts(5, 1, 3, 7, 4),
		vStrs("e", "a", "c", "b", "d"))

	out, err := f.GroupBy(context.Background(), []string{"g"}, []aggregate.Spec{
		aggregate.NewSpec("n", aggregate.NewCount(), "v"),
		aggregate.NewSpec("avg", aggregate.NewMean(), "v"),
		aggregate.NewSpec("best", aggregate.NewArgMax(), "v", "name"),
	})
	require.NoError(t, err)

	rows, err := out.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Group "x": values 5,3,4 with names e,c,d.
	assert.Equal(t, "x", rows[0][0].Text())
	assert.Equal(t, int64(3), rows[0][1].Int64())
	assert.Equal(t, 4.0, rows[0][2].Float64())
	assert.Equal(t, "e", rows[0][3].Text())

	// Group "y": values 1,7 with names a,b.
	assert.Equal(t, "y", rows[1][0].Text())
	assert.Equal(t, int64(2), rows[1][1].Int64())
	assert.Equal(t, 4.0, rows[1][2].Float64())
	assert.Equal(t, "b", rows[1][3].Text())
}

// Missing forms its own group rather than being dropped.
func TestGroupByMissingKey(t *testing.T) {
	eng := newTestEngine(t)
	f := eng.NewFrame()
	keys, err := eng.ArrayFromValues([]value.Value{
		value.Str("a"), value.Missing(), value.Str("a"), value.Missing()})
	require.NoError(t, err)
	require.NoError(t, f.Set(context.Background(), "g", keys))
	require.NoError(t, f.Set(context.Background(), "v", intArray(t, eng, 1, 10, 2, 20)))

	out, err := f.GroupBy(context.Background(), []string{"g"},
		[]aggregate.Spec{aggregate.NewSpec("total", aggregate.NewSum(), "v")})
	require.NoError(t, err)
	rows, err := out.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0][0].Text())
	assert.Equal(t, int64(3), rows[0][1].Int64())
	assert.True(t, rows[1][0].IsMissing())
	assert.Equal(t, int64(30), rows[1][1].Int64())
}

// Integer and Float keys that compare equal group together.
func TestGroupByMixedNumericKeys(t *testing.T) {
	eng := newTestEngine(t)
	f := eng.NewFrame()
	keys, err := eng.ArrayFromValues([]value.Value{
		value.Float(1), value.Float(2), value.Float(1)})
	require.NoError(t, err)
	require.NoError(t, f.Set(context.Background(), "g", keys))
	require.NoError(t, f.Set(context.Background(), "v", intArray(t, eng, 1, 1, 1)))

	out, err := f.GroupBy(context.Background(), []string{"g"},
		[]aggregate.Spec{aggregate.NewSpec("n", aggregate.NewCount(), "v")})
	require.NoError(t, err)
	n, err := out.NumRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestGroupByUnsupportedColumnKind(t *testing.T) {
	eng := newTestEngine(t)
	f := testFrame(t, eng, []string{"g", "v"},
		vStrs("a"), vStrs("not a number"))

	// Sum over a string column is rejected before any row is processed.
	_, err := f.GroupBy(context.Background(), []string{"g"},
		[]aggregate.Spec{aggregate.NewSpec("total", aggregate.NewSum(), "v")})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorUnsupportedType))
}

func TestGroupByMultiKey(t *testing.T) {
	eng := newTestEngine(t)
	f := testFrame(t, eng, []string{"a", "b", "v"},
		vStrs("x", "x", "x", "y"),
		vInts(1, 2, 1, 1),
		vInts(10, 20, 30, 40))

	out, err := f.GroupBy(context.Background(), []string{"a", "b"},
		[]aggregate.Spec{aggregate.NewSpec("total", aggregate.NewSum(), "v")})
	require.NoError(t, err)
	rows, err := out.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(40), rows[0][2].Int64()) // ("x",1)
	assert.Equal(t, int64(20), rows[1][2].Int64()) // ("x",2)
	assert.Equal(t, int64(40), rows[2][2].Int64()) // ("y",1)
}

// Group-by over many segments exercises the partial-state merge path.
func TestGroupByManySegments(t *testing.T) {
	eng := newTestEngine(t)
	n := 60 // 20 segments at 3 rows each
	keys := make([]value.Value, n)
	vals := make([]value.Value, n)
	for i := 0; i < n; i++ {
		keys[i] = value.Int(int64(i % 5))
		vals[i] = value.Int(1)
	}
	f := testFrame(t, eng, []string{"g", "v"}, keys, vals)

	out, err := f.GroupBy(context.Background(), []string{"g"},
		[]aggregate.Spec{aggregate.NewSpec("n", aggregate.NewCount(), "v")})
	require.NoError(t, err)
	rows, err := out.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 5)
	for _, row := range rows {
		assert.Equal(t, int64(12), row[1].Int64())
	}
}
