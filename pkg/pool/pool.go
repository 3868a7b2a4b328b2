// Package pool provides typed object pooling for the engine's hot paths.
//
// Segment flushes and materialization reuse encode buffers and row-batch
// slices heavily; pooling them keeps garbage collection pressure flat even
// when a materialization fans out across many segments.
//
// Example usage:
//
//	buf := pool.GetBuffer()
//	defer pool.PutBuffer(buf)
//	buf.Write(payload)
package pool

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// Pool represents a generic object pool with type safety. It wraps
// sync.Pool with statistics tracking and automatic reset. The pool is
// safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	new   func() T
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
	}
}

// New creates a new typed pool with custom allocation and reset functions.
// The reset function, if non-nil, is called before returning an object to
// the pool.
func New[T any](new func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{
		new:   new,
		reset: reset,
	}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return new()
	}
	return p
}

// Get retrieves an object from the pool, creating one when the pool is
// empty.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	return p.pool.Get().(T)
}

// Put returns an object to the pool for reuse.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats returns the total number of objects the pool has allocated and
// the number currently checked out.
func (p *Pool[T]) Stats() (allocated, inUse int64) {
	return atomic.LoadInt64(&p.stats.allocated), atomic.LoadInt64(&p.stats.inUse)
}

// bufferPool recycles encode/decode scratch buffers used by segment
// writers and readers.
var bufferPool = New(
	func() *bytes.Buffer {
		return bytes.NewBuffer(make([]byte, 0, 64*1024))
	},
	func(b *bytes.Buffer) {
		b.Reset()
	},
)

// GetBuffer retrieves a scratch buffer from the global buffer pool.
func GetBuffer() *bytes.Buffer {
	return bufferPool.Get()
}

// PutBuffer returns a scratch buffer to the global buffer pool.
func PutBuffer(b *bytes.Buffer) {
	bufferPool.Put(b)
}
