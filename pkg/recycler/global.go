package recycler

import (
	"sync"
	"sync/atomic"
)

var (
	globalInstance atomic.Pointer[RecyclerImpl]
	initOnce       sync.Once
)

// InitGlobal initializes the singleton recycler instance. Subsequent calls are no-ops.
func InitGlobal(pool *sync.Pool, metrics *RecyclerMetrics, opts ...Option) {
	initOnce.Do(func() {
		globalInstance.Store(NewRecycler(pool, metrics, opts...))
	})
}

// Global returns the singleton recycler, initializing a default instance on first use.
func Global() *RecyclerImpl {
	if instance := globalInstance.Load(); instance != nil {
		return instance
	}
	InitGlobal(nil, nil)
	return globalInstance.Load()
}
