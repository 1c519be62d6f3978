package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryStore is an in-process Store bounded by entry count. Eviction is
// least-recently-used; every read promotes recency. Use for single-instance
// deployments and tests.
type MemoryStore struct {
	entries *lru.Cache[string, []byte]
}

// NewMemoryStore creates a bounded in-memory store.
func NewMemoryStore(maxEntries int) (*MemoryStore, error) {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	entries, err := lru.New[string, []byte](maxEntries)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{entries: entries}, nil
}

// Get retrieves a value by key and promotes it.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, ok := s.entries.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}

	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

// Set stores a value, evicting the least-recently-used entry if full.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	s.entries.Add(key, valueCopy)
	return nil
}

// Delete removes a value by key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.entries.Remove(key)
	return nil
}

// Clear removes all entries.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.entries.Purge()
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	return s.entries.Len()
}

var _ Store = (*MemoryStore)(nil)
