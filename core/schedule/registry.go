package schedule

import "sync"

// registry is a concurrency-safe map of scheduler instances keyed by
// (device, type). Reads take the shared lock only; construction is
// coalesced by the monitor's singleflight group, not a global lock.
type registry[T any] struct {
	mu   sync.RWMutex
	data map[string]T
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{data: make(map[string]T)}
}

func (r *registry[T]) get(key string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.data[key]
	return v, ok
}

func (r *registry[T]) put(key string, v T) {
	r.mu.Lock()
	r.data[key] = v
	r.mu.Unlock()
}

func (r *registry[T]) drop(key string) {
	r.mu.Lock()
	delete(r.data, key)
	r.mu.Unlock()
}
