package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"membersync/internal/model"
	"membersync/internal/remote"
)

// Fetcher is the slice of the remote client the member cache needs.
type Fetcher interface {
	GetMember(ctx context.Context, id int64, opts ...remote.CallOption) (*model.Member, error)
}

// batchConcurrency bounds the fan-out of a batch lookup so one big batch
// cannot monopolize the rate budget.
const batchConcurrency = 8

// memberEntry is what actually sits in the store. Logical expiry lives in
// the entry, not the store, so expired entries remain available as
// fallbacks.
type memberEntry struct {
	Member    model.Member `json:"member"`
	CachedAt  time.Time    `json:"cached_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// MemberCacheConfig holds read-through cache settings.
type MemberCacheConfig struct {
	TTL time.Duration
}

// MemberCache serves member lookups read-through: hits within TTL come from
// the store, misses and expiries trigger a remote fetch that repopulates
// the store, and remote failures fall back to whatever entry still exists.
type MemberCache struct {
	store  Store
	remote Fetcher
	cfg    MemberCacheConfig
	log    zerolog.Logger

	now func() time.Time
}

// NewMemberCache creates a read-through member cache.
func NewMemberCache(store Store, fetcher Fetcher, cfg MemberCacheConfig, log zerolog.Logger) *MemberCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	return &MemberCache{
		store:  store,
		remote: fetcher,
		cfg:    cfg,
		log:    log.With().Str("component", "member_cache").Logger(),
		now:    time.Now,
	}
}

func memberKey(id int64) string {
	return fmt.Sprintf("member:%d", id)
}

// Get returns the member tagged with its provenance. forceRefresh skips the
// cache check but still falls back to the cached entry if the fetch fails.
func (c *MemberCache) Get(ctx context.Context, id int64, forceRefresh bool, opts ...remote.CallOption) (*model.CachedMember, error) {
	now := c.now()

	entry := c.lookup(ctx, id)
	if !forceRefresh && entry != nil && now.Before(entry.ExpiresAt) {
		return &model.CachedMember{
			Member:   entry.Member,
			Source:   model.SourceCached,
			CachedAt: entry.CachedAt,
			Age:      now.Sub(entry.CachedAt),
		}, nil
	}

	member, err := c.remote.GetMember(ctx, id, opts...)
	if err != nil {
		if entry != nil {
			c.log.Warn().Err(err).Int64("member_id", id).Msg("serving fallback after remote failure")
			return &model.CachedMember{
				Member:   entry.Member,
				Source:   model.SourceFallback,
				CachedAt: entry.CachedAt,
				Age:      now.Sub(entry.CachedAt),
			}, nil
		}
		return nil, err
	}

	c.Put(ctx, *member)
	return &model.CachedMember{
		Member:   *member,
		Source:   model.SourceLive,
		CachedAt: now,
	}, nil
}

// GetBatch fetches many members concurrently. Individual failures do not
// fail the batch; they are reported per-id.
func (c *MemberCache) GetBatch(ctx context.Context, ids []int64, opts ...remote.CallOption) (map[int64]*model.CachedMember, map[int64]error) {
	results := make(map[int64]*model.CachedMember, len(ids))
	failures := make(map[int64]error)
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			res, err := c.Get(ctx, id, false, opts...)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[id] = err
			} else {
				results[id] = res
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, failures
}

// Put overwrites the cache entry for a member. Used by read-through fetches
// and by the incremental sync loop.
func (c *MemberCache) Put(ctx context.Context, member model.Member) {
	now := c.now()
	entry := memberEntry{
		Member:    member,
		CachedAt:  now,
		ExpiresAt: now.Add(c.cfg.TTL),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		c.log.Error().Err(err).Int64("member_id", member.ID).Msg("failed to encode cache entry")
		return
	}
	if err := c.store.Set(ctx, memberKey(member.ID), data); err != nil {
		c.log.Error().Err(err).Int64("member_id", member.ID).Msg("failed to write cache entry")
	}
}

// Invalidate drops the entry for one member. Called after local writes and
// inbound change notifications.
func (c *MemberCache) Invalidate(ctx context.Context, id int64) {
	if err := c.store.Delete(ctx, memberKey(id)); err != nil {
		c.log.Error().Err(err).Int64("member_id", id).Msg("failed to invalidate cache entry")
	}
}

// InvalidateAll drops every entry.
func (c *MemberCache) InvalidateAll(ctx context.Context) {
	if err := c.store.Clear(ctx); err != nil {
		c.log.Error().Err(err).Msg("failed to clear cache")
	}
}

func (c *MemberCache) lookup(ctx context.Context, id int64) *memberEntry {
	data, err := c.store.Get(ctx, memberKey(id))
	if err != nil {
		if err != ErrCacheMiss {
			c.log.Error().Err(err).Int64("member_id", id).Msg("cache store read failed")
		}
		return nil
	}

	var entry memberEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.log.Error().Err(err).Int64("member_id", id).Msg("corrupt cache entry dropped")
		_ = c.store.Delete(ctx, memberKey(id))
		return nil
	}
	return &entry
}
