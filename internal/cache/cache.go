package cache

import (
	"sync"
	"time"
)

// Absent marks a confirmed not-found result. Caching it suppresses repeated
// upstream lookups for resources known to be missing.
var Absent = absentMarker{}

type absentMarker struct{}

type entry struct {
	value    any
	storedAt time.Time
}

// Store is an in-memory cache keyed by string. Freshness is decided per read:
// the TTL is supplied by the caller, not stored with the entry, so the same
// entry can serve callers with different freshness needs.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewStore allocates an empty cache.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached value if it was stored less than ttl ago.
// A confirmed-absent entry returns (Absent, true).
func (s *Store) Get(key string, ttl time.Duration) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if s.now().Sub(e.storedAt) >= ttl {
		delete(s.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores a value with the current timestamp.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{value: value, storedAt: s.now()}
}

// SetAbsent records that the keyed resource is confirmed missing upstream.
func (s *Store) SetAbsent(key string) {
	s.Set(key, Absent)
}

// Invalidate drops a key.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Clear drops every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]entry)
}

// Len returns the number of stored entries, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
