package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndIsType(t *testing.T) {
	err := Newf(ErrorConversion, "cannot parse %q", "abc")
	assert.Contains(t, err.Error(), "conversion")
	assert.Contains(t, err.Error(), `"abc"`)
	assert.True(t, IsType(err, ErrorConversion))
	assert.False(t, IsType(err, ErrorTypeMismatch))
	assert.False(t, IsType(nil, ErrorConversion))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk on fire")
	err := Wrap(cause, ErrorStorage, "write segment")
	assert.True(t, IsType(err, ErrorStorage))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk on fire")
}

// Wrapping an *Error again must not hide the inner type from IsType.
func TestIsTypeThroughWrapping(t *testing.T) {
	inner := New(ErrorConversion, "bad cell")
	outer := Wrap(inner, ErrorTypeInternal, "evaluate column")
	assert.True(t, IsType(outer, ErrorTypeInternal))
	assert.True(t, IsType(outer, ErrorConversion))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorOutOfRange, "index out of range").
		WithDetail("row", 17).
		WithDetail("column", "price")
	require.NotNil(t, err.Details)
	assert.Equal(t, 17, err.Details["row"])
	assert.Equal(t, "price", err.Details["column"])
}

func TestStackCaptured(t *testing.T) {
	err := New(ErrorTypeInternal, "boom")
	assert.NotEmpty(t, err.Stack)
}

func TestUnwrapNil(t *testing.T) {
	err := New(ErrorStorage, "no cause")
	assert.Nil(t, errors.Unwrap(err))
}
