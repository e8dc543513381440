package kvstore

import (
	"context"
	"sync"
	"time"

	"github.com/flexhaus/bems/core/store"
)

type entry struct {
	value   []byte
	expires time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// MemoryStore is an in-process store.KV with per-key TTLs. Expired entries
// are dropped lazily on access and by a background sweep.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]entry
	now  func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]entry{}, now: time.Now}
}

// Get returns the value for key or store.ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if !ok || e.expired(s.now()) {
		delete(s.data, key)
		return nil, store.ErrNotFound
	}
	val := make([]byte, len(e.value))
	copy(val, e.value)
	return val, nil
}

// Set stores the value under key. A non-positive ttl means no expiry.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = s.newEntry(value, ttl)
	return nil
}

// SetIfAbsent writes the value only when the key is absent or expired and
// reports whether the write happened. The check and write run under one lock.
func (s *MemoryStore) SetIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.data[key]; ok && !e.expired(s.now()) {
		return false, nil
	}
	s.data[key] = s.newEntry(value, ttl)
	return true, nil
}

// Delete removes the key if present.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemoryStore) newEntry(value []byte, ttl time.Duration) entry {
	val := make([]byte, len(value))
	copy(val, value)
	e := entry{value: val}
	if ttl > 0 {
		e.expires = s.now().Add(ttl)
	}
	return e
}

// Sweep removes all expired entries. Run it periodically when the store is
// long-lived; Get and SetIfAbsent stay correct without it.
func (s *MemoryStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, e := range s.data {
		if e.expired(now) {
			delete(s.data, k)
		}
	}
}
