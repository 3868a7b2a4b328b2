// Package strata provides an out-of-core columnar data engine built around
// two abstractions: an immutable typed column (Array) and a mutable ordered
// collection of aligned columns (Frame).
//
// Strata lets callers manipulate datasets far larger than available memory
// with array/dataframe-style ergonomics. Columns are persisted as segmented,
// compressed stores on disk; transformations (arithmetic, filters, apply,
// joins, group-by, stack/unstack) are deferred through a lazy operator graph
// and evaluated segment-parallel only when a result is actually needed.
//
// # Architecture
//
// The engine is layered bottom-up:
//
// 1. Typed values (pkg/value): a closed tagged union over integer, float,
// string, list, dict, vector, date-time, image and a missing-value marker,
// with pairwise promotion rules for arithmetic, comparison and casting.
//
// 2. Segment stores (pkg/segment): each realized column or frame is an
// ordered sequence of sealed, independently readable segment files plus a
// small metadata record. The only way new stores are produced is the
// segment-parallel writer protocol.
//
// 3. Lazy graph (internal/graph): an append-only arena of operator nodes.
// Materialization streams segments through the operator chain and writes the
// result through the writer protocol, fanning out across segments.
//
// 4. Facades (pkg/frame): Array and Frame, plus sort, hash join, stack,
// unstack, and a pluggable group-by built on the map/combine/emit
// aggregator contract in pkg/aggregate.
//
// # Quick Start
//
//	import (
//	    "github.com/ajitpratap0/strata/pkg/config"
//	    "github.com/ajitpratap0/strata/pkg/frame"
//	    "github.com/ajitpratap0/strata/pkg/value"
//	)
//
//	cfg := config.DefaultConfig()
//	cfg.Storage.Dir = "/tmp/strata"
//	eng, err := frame.NewEngine(cfg)
//
//	a, _ := eng.ArrayFromValues([]value.Value{
//	    value.Int(1), value.Int(2), value.Int(3),
//	})
//	mask, _ := a.Greater(eng.Constant(value.Int(1), a.Len()))
//	filtered, _ := a.Filter(mask)
//	rows, _ := filtered.Values(ctx) // forces materialization
//
// Graph construction never blocks; Materialize (and every operation that
// forces it, such as sort, join, group-by or single-row indexing) blocks the
// caller while work fans out across segments.
package strata
