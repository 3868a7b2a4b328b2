// Package aggregate provides the pluggable accumulator framework consumed
// by group-by.
//
// An Aggregator follows a map/combine/emit contract: fresh zero-state per
// group, Add folds one row's relevant column values into local state,
// Combine merges two partial states, Emit produces the final value.
// Combine must be commutative and associative — that is the correctness
// contract that makes segment-parallel aggregation safe; the engine cannot
// detect an order-dependent implementation.
//
// Partial states are serializable so they can cross worker boundaries.
package aggregate

import (
	"github.com/ajitpratap0/strata/pkg/value"
)

// Aggregator is the capability interface every accumulator implements.
// Implementations are not safe for concurrent use; the group-by engine
// keeps one instance per group per segment and merges with Combine.
type Aggregator interface {
	// NewInstance returns a fresh zero-state accumulator of the same
	// implementation.
	NewInstance() Aggregator

	// Supports declares which element kinds the accumulator accepts for
	// its primary input column. The group-by engine validates input
	// column kinds before any row is processed.
	Supports(k value.Kind) bool

	// Add folds one row's input values into local state. The slice
	// holds one value per bound input column.
	Add(row []value.Value) error

	// Combine merges another partial state of the same implementation
	// into this one. Must be commutative and associative.
	Combine(other Aggregator) error

	// Emit produces the final value from accumulated state.
	Emit() value.Value

	// MarshalState serializes the partial state.
	MarshalState() ([]byte, error)

	// UnmarshalState restores a partial state produced by MarshalState.
	UnmarshalState(data []byte) error
}

// Spec binds an aggregator implementation to its input columns for one
// group-by output.
type Spec struct {
	// Name is the output column name.
	Name string
	// Agg is the prototype accumulator; fresh instances are created per
	// group via NewInstance.
	Agg Aggregator
	// Columns are the input column names, in the order Add receives
	// their values.
	Columns []string
}

// NewSpec builds a group-by output binding.
func NewSpec(name string, agg Aggregator, columns ...string) Spec {
	return Spec{Name: name, Agg: agg, Columns: columns}
}
