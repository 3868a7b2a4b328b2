package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/strata/pkg/value"
)

func addAll(t *testing.T, a Aggregator, vals ...value.Value) {
	t.Helper()
	for _, v := range vals {
		require.NoError(t, a.Add([]value.Value{v}))
	}
}

func TestCount(t *testing.T) {
	c := NewCount().NewInstance()
	addAll(t, c, value.Int(1), value.Missing(), value.Str("x"), value.Missing())
	assert.Equal(t, int64(2), c.Emit().Int64())
}

func TestSumKeepsIntegerForIntegerInput(t *testing.T) {
	s := NewSum().NewInstance()
	addAll(t, s, value.Int(1), value.Int(2), value.Missing(), value.Int(3))
	got := s.Emit()
	assert.Equal(t, value.KindInt, got.Kind())
	assert.Equal(t, int64(6), got.Int64())

	s = NewSum().NewInstance()
	addAll(t, s, value.Int(1), value.Float(0.5))
	got = s.Emit()
	assert.Equal(t, value.KindFloat, got.Kind())
	assert.Equal(t, 1.5, got.Float64())

	// No non-missing input emits Missing.
	s = NewSum().NewInstance()
	addAll(t, s, value.Missing())
	assert.True(t, s.Emit().IsMissing())
}

func TestMean(t *testing.T) {
	m := NewMean().NewInstance()
	addAll(t, m, value.Int(1), value.Int(2), value.Missing(), value.Int(6))
	assert.Equal(t, 3.0, m.Emit().Float64())
}

func TestStdWelford(t *testing.T) {
	s := NewStd().NewInstance()
	addAll(t, s, value.Float(2), value.Float(4), value.Float(4), value.Float(4),
		value.Float(5), value.Float(5), value.Float(7), value.Float(9))
	// Classic population-stddev example: sigma = 2.
	assert.InDelta(t, 2.0, s.Emit().Float64(), 1e-9)
}

// Splitting the rows across partial states and merging must agree with
// folding them through a single state, whichever way the split goes.
func TestCombineMatchesSequential(t *testing.T) {
	vals := []value.Value{
		value.Float(3), value.Float(1), value.Float(4), value.Float(1),
		value.Float(5), value.Float(9), value.Float(2), value.Float(6),
	}
	protos := map[string]Aggregator{
		"count": NewCount(),
		"sum":   NewSum(),
		"mean":  NewMean(),
		"std":   NewStd(),
		"min":   NewMin(),
		"max":   NewMax(),
	}
	for name, proto := range protos {
		t.Run(name, func(t *testing.T) {
			whole := proto.NewInstance()
			addAll(t, whole, vals...)

			for split := 1; split < len(vals); split++ {
				left, right := proto.NewInstance(), proto.NewInstance()
				addAll(t, left, vals[:split]...)
				addAll(t, right, vals[split:]...)
				require.NoError(t, left.Combine(right))

				a, b := whole.Emit(), left.Emit()
				if a.Kind() == value.KindFloat {
					assert.InDelta(t, a.Float64(), b.Float64(), 1e-9, "split %d", split)
				} else {
					assert.True(t, a.Equal(b), "split %d: %v vs %v", split, a, b)
				}
			}
		})
	}
}

func TestCombineRejectsForeignState(t *testing.T) {
	s := NewSum().NewInstance()
	assert.Error(t, s.Combine(NewCount().NewInstance()))
}

func TestExtremes(t *testing.T) {
	mn := NewMin().NewInstance()
	mx := NewMax().NewInstance()
	for _, v := range []value.Value{value.Int(3), value.Missing(), value.Int(-1), value.Int(7)} {
		require.NoError(t, mn.Add([]value.Value{v}))
		require.NoError(t, mx.Add([]value.Value{v}))
	}
	assert.Equal(t, int64(-1), mn.Emit().Int64())
	assert.Equal(t, int64(7), mx.Emit().Int64())

	// Strings order lexicographically.
	sm := NewMin().NewInstance()
	addAll(t, sm, value.Str("pear"), value.Str("apple"), value.Str("fig"))
	assert.Equal(t, "apple", sm.Emit().Text())
}

func TestQuantile(t *testing.T) {
	q := NewQuantile(0.5).NewInstance()
	for i := 1; i <= 100; i++ {
		require.NoError(t, q.Add([]value.Value{value.Int(int64(i))}))
	}
	got := q.Emit()
	assert.Equal(t, value.KindFloat, got.Kind())
	assert.InDelta(t, 50.0, got.Float64(), 1.0)

	// Several targets emit a vector in target order.
	q = NewQuantile(0, 0.5, 1).NewInstance()
	for i := 1; i <= 100; i++ {
		require.NoError(t, q.Add([]value.Value{value.Int(int64(i))}))
	}
	got = q.Emit()
	require.Equal(t, value.KindVector, got.Kind())
	vec := got.Floats()
	require.Len(t, vec, 3)
	assert.Equal(t, 1.0, vec[0])
	assert.InDelta(t, 50.0, vec[1], 1.0)
	assert.Equal(t, 100.0, vec[2])
}

func TestQuantileSampleBounded(t *testing.T) {
	q := NewQuantile(0.5).NewInstance().(*Quantile)
	for i := 0; i < 3*quantileSampleCap; i++ {
		require.NoError(t, q.Add([]value.Value{value.Int(int64(i))}))
	}
	assert.LessOrEqual(t, len(q.Sample), 2*quantileSampleCap)
	assert.Equal(t, int64(3*quantileSampleCap), q.Total)
	// The subsampled estimate stays within the observed range.
	got := q.Emit().Float64()
	assert.GreaterOrEqual(t, got, 0.0)
	assert.LessOrEqual(t, got, float64(3*quantileSampleCap))
}

func TestArgExtreme(t *testing.T) {
	am := NewArgMax().NewInstance()
	rows := [][]value.Value{
		{value.Int(3), value.Str("three")},
		{value.Int(9), value.Str("nine")},
		{value.Missing(), value.Str("ignored")},
		{value.Int(5), value.Str("five")},
	}
	for _, r := range rows {
		require.NoError(t, am.Add(r))
	}
	assert.Equal(t, "nine", am.Emit().Text())

	// Single-column input is a binding error.
	bad := NewArgMin().NewInstance()
	assert.Error(t, bad.Add([]value.Value{value.Int(1)}))
}

func TestStateSerialization(t *testing.T) {
	protos := []Aggregator{NewCount(), NewSum(), NewMean(), NewStd(), NewMax(), NewQuantile(0.9)}
	vals := []value.Value{value.Float(1), value.Float(2), value.Float(3)}
	for _, proto := range protos {
		a := proto.NewInstance()
		addAll(t, a, vals...)
		data, err := a.MarshalState()
		require.NoError(t, err)

		b := proto.NewInstance()
		require.NoError(t, b.UnmarshalState(data))
		assert.True(t, a.Emit().Equal(b.Emit()), "%T state did not round-trip", proto)
	}
}

func TestEmptyStateEmitsMissing(t *testing.T) {
	for _, proto := range []Aggregator{NewSum(), NewMean(), NewStd(), NewMin(), NewQuantile(0.5), NewArgMax()} {
		assert.True(t, proto.NewInstance().Emit().IsMissing(), "%T", proto)
	}
	// Count of nothing is zero, not Missing.
	assert.Equal(t, int64(0), NewCount().NewInstance().Emit().Int64())
}
