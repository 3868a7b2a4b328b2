package value

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfer(t *testing.T) {
	cases := []struct {
		in   interface{}
		want Kind
	}{
		{nil, KindMissing},
		{int(7), KindInt},
		{int64(7), KindInt},
		{3.5, KindFloat},
		{"abc", KindString},
		{true, KindInt},
		{[]float64{1, 2}, KindVector},
		{time.Now(), KindDateTime},
	}
	for _, c := range cases {
		v, err := Infer(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, v.Kind(), "input %v", c.in)
	}

	_, err := Infer(struct{}{})
	require.Error(t, err)
}

func TestTruthy(t *testing.T) {
	assert.False(t, Missing().Truthy())
	assert.False(t, Int(0).Truthy())
	assert.True(t, Int(-1).Truthy())
	assert.False(t, Float(0).Truthy())
	assert.True(t, Float(0.5).Truthy())
	assert.False(t, Str("").Truthy())
	assert.True(t, Str("x").Truthy())
	assert.False(t, List().Truthy())
	assert.True(t, List(Int(1)).Truthy())
	assert.False(t, Vector().Truthy())
	assert.True(t, Vector(0).Truthy())
}

func TestEqualCrossNumeric(t *testing.T) {
	assert.True(t, Int(3).Equal(Float(3.0)))
	assert.False(t, Int(3).Equal(Float(3.5)))
	assert.True(t, Missing().Equal(Missing()))
	assert.False(t, Missing().Equal(Int(0)))
	assert.True(t, List(Int(1), Str("a")).Equal(List(Int(1), Str("a"))))
	assert.False(t, List(Int(1)).Equal(List(Int(2))))
	assert.True(t,
		Dict(Entry{Key: Str("k"), Val: Int(1)}).Equal(Dict(Entry{Key: Str("k"), Val: Int(1)})))
}

// Int and Float values that compare equal must hash equal, otherwise
// group-by would split a mixed-numeric key column.
func TestHashNumericUniform(t *testing.T) {
	assert.Equal(t, Int(42).Hash(), Float(42.0).Hash())
	assert.NotEqual(t, Int(42).Hash(), Int(43).Hash())
	assert.NotEqual(t, Str("42").Hash(), Int(42).Hash())
}

func TestDictGet(t *testing.T) {
	d := Dict(
		Entry{Key: Str("a"), Val: Int(1)},
		Entry{Key: Int(2), Val: Str("two")},
	)
	v, ok := d.DictGet(Str("a"))
	require.True(t, ok)
	assert.Equal(t, int64(1), v.Int64())

	v, ok = d.DictGet(Int(2))
	require.True(t, ok)
	assert.Equal(t, "two", v.Text())

	_, ok = d.DictGet(Str("missing"))
	assert.False(t, ok)
}
