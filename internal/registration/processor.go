package registration

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"membersync/internal/model"
	"membersync/internal/remote"
)

// ProcessorConfig holds background replay settings.
type ProcessorConfig struct {
	// Interval is how often the pending queue is scanned.
	Interval time.Duration

	// MaxAttempts is the total delivery budget per write, counting the
	// inline attempt that queued it.
	MaxAttempts int

	// MaxAge is how long a write may keep retrying before it is failed.
	MaxAge time.Duration

	// RunTimeout bounds one processing pass.
	RunTimeout time.Duration
}

// Processor replays pending writes on an interval. A tick that arrives
// while a pass is in progress is a no-op; attempts on a single write are
// strictly sequential.
type Processor struct {
	queue  Queue
	remote RemoteAPI
	cache  CacheInvalidator
	cfg    ProcessorConfig
	log    zerolog.Logger

	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
}

// NewProcessor creates a pending-write processor.
func NewProcessor(queue Queue, api RemoteAPI, cache CacheInvalidator, cfg ProcessorConfig, log zerolog.Logger) *Processor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 5 * time.Minute
	}
	return &Processor{
		queue:  queue,
		remote: api,
		cache:  cache,
		cfg:    cfg,
		log:    log.With().Str("component", "pending_processor").Logger(),
		stopCh: make(chan struct{}),
	}
}

// Start begins the processing loop.
func (p *Processor) Start() {
	p.ticker = time.NewTicker(p.cfg.Interval)
	p.log.Info().Dur("interval", p.cfg.Interval).
		Int("max_attempts", p.cfg.MaxAttempts).Msg("pending-write processor started")
	go p.run()
}

func (p *Processor) run() {
	for {
		select {
		case <-p.ticker.C:
			p.RunOnce()
		case <-p.stopCh:
			p.log.Info().Msg("pending-write processor stopped")
			return
		}
	}
}

// RunOnce scans the pending queue and replays each entry once. Safe to call
// directly; overlapping invocations are no-ops.
func (p *Processor) RunOnce() {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.isRunning = false
		p.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.RunTimeout)
	defer cancel()

	p.recoverInterrupted(ctx)

	pending, err := p.queue.ListByStatus(ctx, model.PendingStatusPending)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to list pending writes")
		return
	}

	for _, pw := range pending {
		p.process(ctx, pw)
	}
}

// recoverInterrupted returns writes stuck in retrying to pending. Passes are
// serialized, so any retrying row seen here was left behind by a crash
// between the status update and the post-replay update; without recovery a
// durable queue would strand it forever.
func (p *Processor) recoverInterrupted(ctx context.Context) {
	orphaned, err := p.queue.ListByStatus(ctx, model.PendingStatusRetrying)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to list interrupted writes")
		return
	}

	for _, pw := range orphaned {
		pw.Status = model.PendingStatusPending
		if err := p.queue.Update(ctx, pw); err != nil {
			p.log.Error().Err(err).Str("pending_id", pw.ID).Msg("failed to recover interrupted write")
			continue
		}
		p.log.Warn().Str("pending_id", pw.ID).Int("attempts", pw.Attempts).
			Msg("recovered interrupted delivery")
	}
}

func (p *Processor) process(ctx context.Context, pw *model.PendingWrite) {
	now := time.Now().UTC()

	// Budget checks come before any network I/O.
	if pw.Attempts >= p.cfg.MaxAttempts || pw.Age(now) > p.cfg.MaxAge {
		pw.Status = model.PendingStatusFailed
		if pw.Attempts >= p.cfg.MaxAttempts {
			pw.LastError = "maximum delivery attempts reached"
		} else {
			pw.LastError = "maximum retry window exceeded"
		}
		if err := p.queue.Update(ctx, pw); err != nil {
			p.log.Error().Err(err).Str("pending_id", pw.ID).Msg("failed to mark write failed")
		}
		p.log.Warn().Str("pending_id", pw.ID).Int("attempts", pw.Attempts).
			Msg("pending write failed terminally; manual intervention required")
		return
	}

	pw.Status = model.PendingStatusRetrying
	if err := p.queue.Update(ctx, pw); err != nil {
		p.log.Error().Err(err).Str("pending_id", pw.ID).Msg("failed to mark write retrying")
		return
	}

	err := p.replay(ctx, pw)
	if err == nil {
		syncedAt := time.Now().UTC()
		pw.Status = model.PendingStatusSynced
		pw.SyncedAt = &syncedAt
		pw.LastError = ""
		if err := p.queue.Update(ctx, pw); err != nil {
			p.log.Error().Err(err).Str("pending_id", pw.ID).Msg("failed to mark write synced")
		}
		if err := p.queue.Remove(ctx, pw.ID); err != nil {
			p.log.Error().Err(err).Str("pending_id", pw.ID).Msg("failed to remove synced write")
		}
		p.log.Info().Str("pending_id", pw.ID).Int("attempts", pw.Attempts).
			Msg("pending write delivered")
		return
	}

	pw.Attempts++
	pw.LastError = err.Error()

	var rerr *remote.Error
	if errors.As(err, &rerr) && !rerr.Retryable() {
		pw.Status = model.PendingStatusFailed
	} else {
		pw.Status = model.PendingStatusPending
	}
	if err := p.queue.Update(ctx, pw); err != nil {
		p.log.Error().Err(err).Str("pending_id", pw.ID).Msg("failed to update write after replay")
	}
}

// replay re-issues the queued operation against the remote system.
func (p *Processor) replay(ctx context.Context, pw *model.PendingWrite) error {
	switch pw.Operation {
	case model.PendingOpCreate:
		var req model.RegistrationRequest
		if err := json.Unmarshal(pw.Payload, &req); err != nil {
			return remote.WrapError(remote.ErrValidation, "corrupt pending payload", err)
		}
		_, err := p.remote.CreateRegistration(ctx, req,
			remote.WithActor(pw.Actor), remote.WithSource(model.AuditSourceRetry))
		if err == nil {
			p.cache.Invalidate(ctx, req.MemberID)
		}
		return err

	case model.PendingOpDelete:
		var req model.CancellationRequest
		if err := json.Unmarshal(pw.Payload, &req); err != nil {
			return remote.WrapError(remote.ErrValidation, "corrupt pending payload", err)
		}
		err := p.remote.DeleteRegistration(ctx, req.RegistrationID,
			remote.WithActor(pw.Actor), remote.WithSource(model.AuditSourceRetry))
		if err == nil {
			p.cache.Invalidate(ctx, req.MemberID)
		}
		return err

	default:
		return remote.NewError(remote.ErrValidation, "unknown pending operation "+pw.Operation)
	}
}

// Stop halts the processing loop.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() {
		if p.ticker != nil {
			p.ticker.Stop()
		}
		close(p.stopCh)
	})
}
