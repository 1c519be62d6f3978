package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Rejection reasons reported to the remote system. Rejections complete
// normally: redelivery of a bad or duplicate event must not look like an
// outage on our side.
const (
	ReasonBadSignature = "invalid signature"
	ReasonMalformed    = "malformed payload"
	ReasonTooOld       = "event too old"
	ReasonDuplicate    = "duplicate event"
)

// Result is the outcome of ingesting one webhook delivery.
type Result struct {
	Accepted   bool   `json:"accepted"`
	Reason     string `json:"reason,omitempty"`
	Dispatched int    `json:"dispatched,omitempty"`
}

// ValidatorConfig holds webhook validation settings.
type ValidatorConfig struct {
	// Secret is the shared HMAC secret; signature checks are skipped when
	// empty.
	Secret string

	// MaxEventAge rejects events older than this (replay protection).
	MaxEventAge time.Duration
}

// Validator validates, deduplicates and dispatches inbound change
// notifications.
type Validator struct {
	cfg        ValidatorConfig
	idem       IdempotencyStore
	dispatcher *Dispatcher
	log        zerolog.Logger

	now func() time.Time
}

// NewValidator creates a webhook validator.
func NewValidator(cfg ValidatorConfig, idem IdempotencyStore, dispatcher *Dispatcher, log zerolog.Logger) *Validator {
	if cfg.MaxEventAge <= 0 {
		cfg.MaxEventAge = 5 * time.Minute
	}
	return &Validator{
		cfg:        cfg,
		idem:       idem,
		dispatcher: dispatcher,
		log:        log.With().Str("component", "webhook").Logger(),
		now:        time.Now,
	}
}

// Process validates one delivery and, if accepted, dispatches it and marks
// its idempotency key processed. A non-nil error means infrastructure
// failure (idempotency store down), not a bad event.
func (v *Validator) Process(ctx context.Context, body []byte, signature string) (*Result, error) {
	if v.cfg.Secret != "" {
		if !v.verifySignature(body, signature) {
			v.log.Warn().Msg("webhook rejected: signature mismatch")
			return &Result{Accepted: false, Reason: ReasonBadSignature}, nil
		}
	}

	event, err := parseEvent(body)
	if err != nil {
		v.log.Warn().Err(err).Msg("webhook rejected: malformed")
		return &Result{Accepted: false, Reason: ReasonMalformed}, nil
	}

	// Replay protection comes before the idempotency check: an attacker
	// replaying an old capture never reaches the store.
	if v.now().Sub(event.Timestamp) > v.cfg.MaxEventAge {
		v.log.Warn().Str("event_type", event.Type).
			Time("timestamp", event.Timestamp).Msg("webhook rejected: too old")
		return &Result{Accepted: false, Reason: ReasonTooOld}, nil
	}

	key := event.IdempotencyKey()
	seen, err := v.idem.Seen(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup failed: %w", err)
	}
	if seen {
		v.log.Debug().Str("event_type", event.Type).Str("key", key).
			Msg("webhook rejected: duplicate")
		return &Result{Accepted: false, Reason: ReasonDuplicate}, nil
	}

	dispatched := v.dispatcher.Dispatch(ctx, event)

	if err := v.idem.MarkProcessed(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to mark event processed: %w", err)
	}

	v.log.Info().Str("event_type", event.Type).Str("account_id", event.AccountID).
		Int("handlers", dispatched).Msg("webhook processed")

	return &Result{Accepted: true, Dispatched: dispatched}, nil
}

// verifySignature checks the HMAC-SHA256 signature in constant time. The
// header value may carry a "sha256=" prefix.
func (v *Validator) verifySignature(body []byte, signature string) bool {
	signature = strings.TrimPrefix(signature, "sha256=")
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(v.cfg.Secret))
	mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}
