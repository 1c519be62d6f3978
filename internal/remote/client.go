package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"membersync/internal/audit"
	"membersync/internal/model"
)

// BreakerName identifies the remote membership system as an external
// dependency; all calls share one isolation boundary under this name.
const BreakerName = "remote-membership-api"

// ClientConfig holds executor settings.
type ClientConfig struct {
	BaseURL string
	// Identity keys the rate-limit buckets; defaults to the account ID.
	Identity         string
	Timeout          time.Duration
	MaxRetries       int
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	MaxBodyBytes     int64
	BreakerThreshold uint32
	BreakerReset     time.Duration
	PageSize         int
	MaxPages         int
}

// Client executes authenticated calls against the remote membership system
// with rate limiting, retry/backoff, failure classification and circuit
// isolation. Every component that talks to the remote goes through it.
type Client struct {
	cfg      ClientConfig
	http     *http.Client
	sessions *SessionManager
	limiter  *Limiter
	audit    audit.Sink
	breaker  *gobreaker.CircuitBreaker
	log      zerolog.Logger
}

// NewClient creates a request executor.
func NewClient(cfg ClientConfig, sessions *SessionManager, limiter *Limiter, sink audit.Sink, log zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 8 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerReset <= 0 {
		cfg.BreakerReset = 30 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    BreakerName,
		Timeout: cfg.BreakerReset,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
	})

	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		sessions: sessions,
		limiter:  limiter,
		audit:    sink,
		breaker:  breaker,
		log:      log.With().Str("component", "remote_client").Logger(),
	}
}

// CallOption annotates a call for auditing.
type CallOption func(*callInfo)

type callInfo struct {
	actor      string
	source     model.AuditSource
	entityType string
	entityID   string
}

// WithActor records who triggered the call.
func WithActor(actor string) CallOption {
	return func(ci *callInfo) { ci.actor = actor }
}

// WithSource overrides the default user-action source classification.
func WithSource(source model.AuditSource) CallOption {
	return func(ci *callInfo) { ci.source = source }
}

// WithEntity records the entity the call addresses.
func WithEntity(entityType, entityID string) CallOption {
	return func(ci *callInfo) { ci.entityType = entityType; ci.entityID = entityID }
}

// Execute performs one authenticated call and decodes the JSON response
// into out (ignored when out is nil). Retryable failures are retried with
// exponential backoff up to the configured maximum; the error raised after
// exhaustion is sanitized.
func (c *Client) Execute(ctx context.Context, method, endpoint string, body interface{}, out interface{}, opts ...CallOption) error {
	ci := callInfo{source: model.AuditSourceUser}
	for _, opt := range opts {
		opt(&ci)
	}

	class := classForMethod(method)

	// Fail fast before spending a token refresh or a breaker slot.
	dec := c.limiter.Check(c.cfg.Identity, class)
	if !dec.Allowed {
		err := &Error{
			Type:       ErrRateLimit,
			Message:    "local rate budget exhausted",
			RetryAfter: dec.RetryAfter,
		}
		c.record(ctx, method, endpoint, &ci, 0, 0, err)
		return Sanitize(err)
	}

	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			verr := NewError(ErrValidation, "request body is not serializable")
			c.record(ctx, method, endpoint, &ci, 0, 0, verr)
			return verr
		}
		if int64(len(encoded)) > c.cfg.MaxBodyBytes {
			err := NewError(ErrValidation, "request body exceeds maximum size")
			c.record(ctx, method, endpoint, &ci, 0, 0, err)
			return err
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.BackoffBase
	bo.MaxInterval = c.cfg.BackoffCap
	bo.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		start := time.Now()
		status, err := c.attempt(ctx, method, endpoint, encoded, out)
		c.record(ctx, method, endpoint, &ci, status, time.Since(start), err)
		if err == nil {
			return nil
		}

		var rerr *Error
		if errors.As(err, &rerr) && !rerr.Retryable() {
			return backoff.Permanent(err)
		}
		c.log.Debug().Err(err).Int("attempt", attempt).
			Str("endpoint", endpoint).Msg("retrying remote call")
		return err
	}

	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.MaxRetries)), ctx))
	if err == nil {
		return nil
	}

	var rerr *Error
	if errors.As(err, &rerr) {
		return Sanitize(rerr)
	}
	return Sanitize(WrapError(ErrUnknown, err.Error(), err))
}

// attempt performs a single HTTP call inside the circuit breaker.
func (c *Client) attempt(ctx context.Context, method, endpoint string, body []byte, out interface{}) (int, error) {
	token, err := c.sessions.AccessToken(ctx)
	if err != nil {
		return 0, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, method, endpoint, token, body, out)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, WrapError(ErrNetwork, "remote system circuit open", err)
		}
		var rerr *Error
		if errors.As(err, &rerr) {
			return rerr.StatusCode, err
		}
		return 0, err
	}
	return result.(int), nil
}

func (c *Client) do(ctx context.Context, method, endpoint, token string, body []byte, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+endpoint, reader)
	if err != nil {
		return 0, WrapError(ErrValidation, "failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, WrapError(ErrNetwork, "remote request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rerr := &Error{
			Type:       ClassifyStatus(resp.StatusCode),
			Message:    readErrorMessage(resp.Body),
			StatusCode: resp.StatusCode,
		}
		if rerr.Type == ErrUnauthorized {
			// The cached token may have been revoked early; the next
			// operation will refresh.
			c.sessions.Invalidate()
		}
		if rerr.Type == ErrRateLimit {
			rerr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
		return resp.StatusCode, rerr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return resp.StatusCode, WrapError(ErrUnknown, "failed to decode remote response", err)
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) record(ctx context.Context, method, endpoint string, ci *callInfo, status int, dur time.Duration, err error) {
	entry := &model.AuditEntry{
		Operation:  operationForMethod(method),
		Endpoint:   endpoint,
		Method:     method,
		EntityType: ci.entityType,
		EntityID:   ci.entityID,
		Actor:      ci.actor,
		Source:     ci.source,
		DurationMS: dur.Milliseconds(),
		StatusCode: status,
		Success:    err == nil,
		CreatedAt:  time.Now().UTC(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	c.audit.Record(ctx, entry)
}

func classForMethod(method string) OpClass {
	if method == http.MethodGet || method == http.MethodHead {
		return OpRead
	}
	return OpWrite
}

func operationForMethod(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return "READ"
	case http.MethodDelete:
		return "DELETE"
	default:
		return "WRITE"
	}
}

// readErrorMessage extracts a short message from an error response body.
// Bodies are bounded; anything unparseable falls back to a generic note.
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return "remote system returned an error"
	}

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return "remote system returned an error"
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
