package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"membersync/internal/model"
	"membersync/internal/remote"
)

// Lister is the slice of the remote client the syncer needs.
type Lister interface {
	ListAllMembers(ctx context.Context, updatedSince time.Time, opts ...remote.CallOption) ([]model.Member, error)
}

// SyncerConfig holds configuration for the incremental sync loop.
type SyncerConfig struct {
	// Interval is how often changed-since records are pulled.
	Interval time.Duration

	// RunTimeout bounds one sync run.
	RunTimeout time.Duration
}

// Syncer periodically asks the remote system for members changed since the
// last run and repopulates the cache without serving a live request. A tick
// that arrives while a run is in progress is a no-op.
type Syncer struct {
	remote Lister
	cache  *MemberCache
	cfg    SyncerConfig
	log    zerolog.Logger

	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex

	lastSync time.Time
}

// NewSyncer creates an incremental member syncer.
func NewSyncer(lister Lister, cache *MemberCache, cfg SyncerConfig, log zerolog.Logger) *Syncer {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 5 * time.Minute
	}
	return &Syncer{
		remote: lister,
		cache:  cache,
		cfg:    cfg,
		log:    log.With().Str("component", "member_sync").Logger(),
		stopCh: make(chan struct{}),
	}
}

// Start begins the sync loop.
func (s *Syncer) Start() {
	s.ticker = time.NewTicker(s.cfg.Interval)
	s.log.Info().Dur("interval", s.cfg.Interval).Msg("incremental sync started")
	go s.run()
}

func (s *Syncer) run() {
	for {
		select {
		case <-s.ticker.C:
			s.RunOnce()
		case <-s.stopCh:
			s.log.Info().Msg("incremental sync stopped")
			return
		}
	}
}

// RunOnce performs one sync pass. Returns the number of refreshed entries;
// zero with no error means either no changes or a run already in progress.
func (s *Syncer) RunOnce() int {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return 0
	}
	s.isRunning = true
	since := s.lastSync
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunTimeout)
	defer cancel()

	start := time.Now()
	members, err := s.remote.ListAllMembers(ctx, since,
		remote.WithSource(model.AuditSourceBackgroundSync))
	if err != nil {
		s.log.Warn().Err(err).Msg("incremental sync failed")
		return 0
	}

	for _, m := range members {
		s.cache.Put(ctx, m)
	}

	s.mu.Lock()
	s.lastSync = start
	s.mu.Unlock()

	if len(members) > 0 {
		s.log.Info().Int("refreshed", len(members)).Msg("incremental sync complete")
	}
	return len(members)
}

// Stop halts the sync loop.
func (s *Syncer) Stop() {
	s.stopOnce.Do(func() {
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
	})
}
