package registration

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"membersync/internal/model"
	"membersync/internal/remote"
	"membersync/pkg/uid"
)

// RemoteAPI is the slice of the remote client the service needs.
type RemoteAPI interface {
	CreateRegistration(ctx context.Context, req model.RegistrationRequest, opts ...remote.CallOption) (*model.Registration, error)
	DeleteRegistration(ctx context.Context, registrationID int64, opts ...remote.CallOption) error
}

// CacheInvalidator drops a member's cache entry after their registration
// set changes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, memberID int64)
}

// ServiceConfig holds write-through settings. The inline budget is smaller
// than the executor's own retry budget; anything that survives it goes to
// the pending queue instead of blocking the caller.
type ServiceConfig struct {
	InlineRetries int
	InlineBackoff time.Duration
}

// Service performs registration writes through to the remote system. Writes
// confirm synchronously when the remote is healthy; retryable failures are
// queued for background delivery and reported as "queued", not errors.
type Service struct {
	remote RemoteAPI
	cache  CacheInvalidator
	queue  Queue
	cfg    ServiceConfig
	log    zerolog.Logger
}

// NewService creates a write-through registration service.
func NewService(api RemoteAPI, cache CacheInvalidator, queue Queue, cfg ServiceConfig, log zerolog.Logger) *Service {
	if cfg.InlineRetries < 0 {
		cfg.InlineRetries = 0
	}
	if cfg.InlineBackoff <= 0 {
		cfg.InlineBackoff = time.Second
	}
	return &Service{
		remote: api,
		cache:  cache,
		queue:  queue,
		cfg:    cfg,
		log:    log.With().Str("component", "registration").Logger(),
	}
}

// Create registers a member for an event.
func (s *Service) Create(ctx context.Context, req model.RegistrationRequest) (*model.WriteResult, error) {
	var reg *model.Registration
	err := s.withInlineRetries(ctx, func(ctx context.Context) error {
		var err error
		reg, err = s.remote.CreateRegistration(ctx, req, remote.WithActor(req.Actor))
		return err
	})
	if err == nil {
		s.cache.Invalidate(ctx, req.MemberID)
		return &model.WriteResult{
			Status:       model.WriteConfirmed,
			Registration: reg,
		}, nil
	}

	return s.handleFailure(ctx, model.PendingOpCreate, req, req.Actor, err)
}

// Cancel cancels an existing registration.
func (s *Service) Cancel(ctx context.Context, req model.CancellationRequest) (*model.WriteResult, error) {
	err := s.withInlineRetries(ctx, func(ctx context.Context) error {
		return s.remote.DeleteRegistration(ctx, req.RegistrationID, remote.WithActor(req.Actor))
	})
	if err == nil {
		s.cache.Invalidate(ctx, req.MemberID)
		return &model.WriteResult{
			Status:  model.WriteConfirmed,
			Message: "registration cancelled",
		}, nil
	}

	return s.handleFailure(ctx, model.PendingOpDelete, req, req.Actor, err)
}

// withInlineRetries runs op with the service's own small retry budget and
// backoff schedule. Non-retryable errors stop immediately.
func (s *Service) withInlineRetries(ctx context.Context, op func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.InlineRetries; attempt++ {
		if attempt > 0 {
			delay := s.cfg.InlineBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return remote.WrapError(remote.ErrNetwork, "cancelled while retrying", ctx.Err())
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		var rerr *remote.Error
		if errors.As(lastErr, &rerr) && !rerr.Retryable() {
			return lastErr
		}
	}
	return lastErr
}

// handleFailure turns a post-retry failure into either a definitive error
// result or a queued pending write. A queued write is success-shaped so the
// caller's UI reads "processing", not "error".
func (s *Service) handleFailure(ctx context.Context, op string, payload interface{}, actor string, cause error) (*model.WriteResult, error) {
	var rerr *remote.Error
	if !errors.As(cause, &rerr) {
		rerr = remote.WrapError(remote.ErrUnknown, cause.Error(), cause)
	}

	if !rerr.Retryable() {
		sanitized := remote.Sanitize(rerr)
		return &model.WriteResult{
			Status:  model.WriteFailed,
			Message: sanitized.Message,
		}, sanitized
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, remote.WrapError(remote.ErrUnknown, "failed to encode pending write", err)
	}

	now := time.Now().UTC()
	pw := &model.PendingWrite{
		ID:         uid.New(),
		EntityType: "registration",
		Operation:  op,
		Payload:    encoded,
		Attempts:   1, // inline delivery already failed once
		LastError:  rerr.Error(),
		Status:     model.PendingStatusPending,
		Actor:      actor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.queue.Enqueue(ctx, pw); err != nil {
		s.log.Error().Err(err).Str("operation", op).Msg("failed to queue pending write")
		return nil, remote.Sanitize(rerr)
	}

	s.log.Info().Str("pending_id", pw.ID).Str("operation", op).
		Msg("write queued for background delivery")

	return &model.WriteResult{
		Status:    model.WriteQueued,
		PendingID: pw.ID,
		Message:   "the registration change is being processed",
	}, nil
}
