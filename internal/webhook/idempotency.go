package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore remembers processed event keys for a retention window.
// A key that is marked processed blocks reprocessing until it is pruned.
type IdempotencyStore interface {
	// Seen reports whether the key was already processed.
	Seen(ctx context.Context, key string) (bool, error)

	// MarkProcessed records the key.
	MarkProcessed(ctx context.Context, key string) error
}

// MemoryIdempotencyStore is an in-process IdempotencyStore with periodic
// pruning. Restarts lose its history; prefer the Redis store in production.
type MemoryIdempotencyStore struct {
	mu        sync.RWMutex
	processed map[string]time.Time
	retention time.Duration

	pruneTicker *time.Ticker
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewMemoryIdempotencyStore creates an in-memory store that prunes keys
// older than retention on the given interval.
func NewMemoryIdempotencyStore(retention, pruneInterval time.Duration) *MemoryIdempotencyStore {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	if pruneInterval <= 0 {
		pruneInterval = time.Hour
	}

	s := &MemoryIdempotencyStore{
		processed:   make(map[string]time.Time),
		retention:   retention,
		pruneTicker: time.NewTicker(pruneInterval),
		stopCh:      make(chan struct{}),
	}

	go s.prune()

	return s
}

// Seen reports whether the key was processed within the retention window.
func (s *MemoryIdempotencyStore) Seen(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	at, ok := s.processed[key]
	if !ok {
		return false, nil
	}
	return time.Since(at) < s.retention, nil
}

// MarkProcessed records the key.
func (s *MemoryIdempotencyStore) MarkProcessed(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processed[key] = time.Now()
	return nil
}

func (s *MemoryIdempotencyStore) prune() {
	for {
		select {
		case <-s.pruneTicker.C:
			s.removeExpired()
		case <-s.stopCh:
			return
		}
	}
}

func (s *MemoryIdempotencyStore) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.retention)
	for key, at := range s.processed {
		if at.Before(cutoff) {
			delete(s.processed, key)
		}
	}
}

// Close stops the background pruning goroutine.
func (s *MemoryIdempotencyStore) Close() error {
	s.stopOnce.Do(func() {
		s.pruneTicker.Stop()
		close(s.stopCh)
	})
	return nil
}

var _ IdempotencyStore = (*MemoryIdempotencyStore)(nil)

// RedisIdempotencyStore is a Redis-backed IdempotencyStore. Keys expire via
// Redis TTL, and every instance behind a load balancer observes the same
// history.
type RedisIdempotencyStore struct {
	client    *redis.Client
	keyPrefix string
	retention time.Duration
}

// NewRedisIdempotencyStore creates a Redis-backed store on an existing client.
func NewRedisIdempotencyStore(client *redis.Client, retention time.Duration) *RedisIdempotencyStore {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RedisIdempotencyStore{
		client:    client,
		keyPrefix: "membersync:webhook:",
		retention: retention,
	}
}

// Seen reports whether the key was already processed.
func (s *RedisIdempotencyStore) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.keyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkProcessed records the key with the retention TTL.
func (s *RedisIdempotencyStore) MarkProcessed(ctx context.Context, key string) error {
	return s.client.Set(ctx, s.keyPrefix+key, "1", s.retention).Err()
}

var _ IdempotencyStore = (*RedisIdempotencyStore)(nil)
