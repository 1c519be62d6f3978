package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-backed Store for multi-instance deployments; all
// instances observe the same entries. Keys carry a physical retention TTL
// so fallback reads survive well past logical expiry without the keyspace
// growing forever.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	retention time.Duration
}

// RedisStoreConfig holds configuration for the Redis store.
type RedisStoreConfig struct {
	KeyPrefix string
	Retention time.Duration
}

// NewRedisStore creates a Redis-backed store on an existing client.
func NewRedisStore(client *redis.Client, cfg RedisStoreConfig) *RedisStore {
	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "membersync:cache:"
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		retention: retention,
	}
}

// Get retrieves a value by key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Set stores a value with the retention TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, s.keyPrefix+key, value, s.retention).Err()
}

// Delete removes a value by key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.keyPrefix+key).Err()
}

// Clear removes all entries under the store's prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

var _ Store = (*RedisStore)(nil)
