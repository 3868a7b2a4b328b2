// Package errors provides structured error handling for the engine
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal engine faults
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeMismatch represents incompatible operand tags in an
	// operator or cast
	ErrorTypeMismatch ErrorType = "type_mismatch"
	// ErrorLengthMismatch represents operand/array length disagreement
	ErrorLengthMismatch ErrorType = "length_mismatch"
	// ErrorHeterogeneousType represents a construction-time
	// type-inference conflict
	ErrorHeterogeneousType ErrorType = "heterogeneous_type"
	// ErrorConversion represents a cast/parse failure on a specific element
	ErrorConversion ErrorType = "conversion"
	// ErrorUnpack represents a structurally inconsistent container
	// encountered during unpack
	ErrorUnpack ErrorType = "unpack"
	// ErrorClosedWriter represents a write issued after close
	ErrorClosedWriter ErrorType = "closed_writer"
	// ErrorUnsupportedType represents an aggregator given a column type
	// it does not support
	ErrorUnsupportedType ErrorType = "unsupported_type"
	// ErrorOutOfRange represents an index outside the operation's
	// documented bounds
	ErrorOutOfRange ErrorType = "out_of_range"
	// ErrorStorage represents segment store I/O errors
	ErrorStorage ErrorType = "storage"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType checks if the error, or any error it wraps, is of the given
// type.
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Type == errType {
			return true
		}
		err = e.Cause
	}
	return false
}

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
