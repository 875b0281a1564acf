// Package recycler pools handler buffers handed out by the time event accumulator.
package recycler

import (
	"sync"
	"sync/atomic"
	"time"
)

// RecyclerImpl provides the concrete implementation backed by a sync.Pool.
type RecyclerImpl struct { //nolint:revive
	pool         *sync.Pool
	metrics      *RecyclerMetrics
	maxRetained  int
	debugEnabled atomic.Bool
	putTracker   sync.Map
}

// Option configures a RecyclerImpl.
type Option func(*RecyclerImpl)

// WithMaxRetainedCapacity drops buffers whose capacity exceeds limit instead of pooling them.
// A limit <= 0 retains every buffer.
func WithMaxRetainedCapacity(limit int) Option {
	return func(r *RecyclerImpl) {
		r.maxRetained = limit
	}
}

// NewRecycler constructs a RecyclerImpl. A nil pool gets a default buffer factory and nil
// metrics get unregistered instruments.
func NewRecycler(pool *sync.Pool, metrics *RecyclerMetrics, opts ...Option) *RecyclerImpl {
	if pool == nil {
		pool = &sync.Pool{New: func() any { return NewBuffer(defaultBufferCapacity) }}
	}
	if metrics == nil {
		metrics = NewRecyclerMetrics(nil)
	}
	r := &RecyclerImpl{ //nolint:exhaustruct
		pool:    pool,
		metrics: metrics,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Checkout leases an empty buffer from the pool.
func (r *RecyclerImpl) Checkout() *Buffer {
	buf, ok := r.pool.Get().(*Buffer)
	if !ok || buf == nil {
		buf = NewBuffer(defaultBufferCapacity)
	}
	if r.debugEnabled.Load() {
		r.releasePointer(buf)
	}
	buf.Reset()
	r.metrics.incCheckout()
	return buf
}

// Recycle resets a buffer, applies optional debug instrumentation, and returns it to the pool.
func (r *RecyclerImpl) Recycle(buf *Buffer) {
	if buf == nil {
		return
	}
	debugMode := r.debugEnabled.Load()
	if debugMode {
		r.guardDoublePut(buf)
	}
	started := time.Now()
	retained := r.maxRetained <= 0 || cap(buf.Handlers) <= r.maxRetained
	buf.Reset()
	if debugMode {
		poisonBuffer(buf)
	}
	if retained {
		r.pool.Put(buf)
	}
	r.metrics.observeRecycle(retained, started)
}

// EnableDebugMode activates poisoning and double-put tracking.
func (r *RecyclerImpl) EnableDebugMode() {
	r.debugEnabled.Store(true)
}

// DisableDebugMode deactivates poisoning and clears the tracking map.
func (r *RecyclerImpl) DisableDebugMode() {
	r.debugEnabled.Store(false)
	r.putTracker.Clear()
}
