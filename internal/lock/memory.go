package lock

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

// MemoryStore is an in-process Store for single-node deployments and
// tests.  Expired entries are reclaimed lazily on the next access to
// their key.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]memoryEntry{}, now: time.Now}
}

// SetNow overrides the clock; intended for tests.
func (s *MemoryStore) SetNow(now func() time.Time) { s.now = now }

// SetIfAbsent stores token under key unless a live entry exists.
func (s *MemoryStore) SetIfAbsent(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && e.expiresAt.After(s.now()) {
		return false, nil
	}
	s.entries[key] = memoryEntry{token: token, expiresAt: s.now().Add(ttl)}
	return true, nil
}

// DeleteIfOwner removes key when the live entry carries token.
func (s *MemoryStore) DeleteIfOwner(_ context.Context, key, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	if !e.expiresAt.After(s.now()) {
		delete(s.entries, key)
		return false, nil
	}
	if e.token != token {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}
