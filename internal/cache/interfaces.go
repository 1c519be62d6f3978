package cache

import "context"

// Store is the byte-level storage behind the member cache. This abstraction
// allows swapping between the in-process store (single instance) and Redis
// (multi-instance) without changing the read-through logic.
//
// Stores hold entries for their physical retention period regardless of the
// entries' logical TTL: the read-through layer serves logically expired
// entries as fallbacks when the remote system is down.
type Store interface {
	// Get retrieves a value by key. Returns ErrCacheMiss if not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a value by key.
	Delete(ctx context.Context, key string) error

	// Clear removes all entries.
	Clear(ctx context.Context) error
}

// Common cache errors
type CacheError string

func (e CacheError) Error() string { return string(e) }

const (
	// ErrCacheMiss indicates the key was not found in the store.
	ErrCacheMiss CacheError = "cache miss"
)
