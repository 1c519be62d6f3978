package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"membersync/internal/audit"
	"membersync/internal/model"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// session is a cached remote access credential.
type session struct {
	accessToken  string
	refreshToken string
	accountID    string
	// expiresAt already has the safety buffer subtracted.
	expiresAt time.Time
}

func (s *session) valid(now time.Time) bool {
	return s != nil && s.accessToken != "" && now.Before(s.expiresAt)
}

// SessionConfig holds credentials for the remote token endpoint.
type SessionConfig struct {
	TokenURL  string
	AccountID string
	APIKey    string
	APISecret string
	// Buffer is subtracted from the reported expiry so a token is refreshed
	// before the remote considers it dead.
	Buffer  time.Duration
	Timeout time.Duration
}

// SessionManager holds the current access credential and refreshes it on
// demand. Concurrent callers needing a refresh share one in-flight token
// request; a refresh storm under load would burn the auth rate budget.
type SessionManager struct {
	cfg     SessionConfig
	http    *http.Client
	limiter *Limiter
	audit   audit.Sink
	log     zerolog.Logger

	mu      sync.RWMutex
	current *session

	group singleflight.Group
}

// NewSessionManager creates a session manager. Refreshes consume the auth
// budget of the given limiter.
func NewSessionManager(cfg SessionConfig, limiter *Limiter, sink audit.Sink, log zerolog.Logger) *SessionManager {
	if cfg.Buffer <= 0 {
		cfg.Buffer = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SessionManager{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		audit:   sink,
		log:     log.With().Str("component", "session").Logger(),
	}
}

// AccessToken returns a valid access token, refreshing if needed. A cached
// unexpired session is returned without any network call.
func (m *SessionManager) AccessToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	cur := m.current
	m.mu.RUnlock()

	if cur.valid(NowTimeFunc()) {
		return cur.accessToken, nil
	}

	// All concurrent callers attach to the same refresh; the handle clears
	// only after it resolves.
	v, err, _ := m.group.Do("refresh", func() (interface{}, error) {
		// A racing caller may have refreshed while we waited for the lock.
		m.mu.RLock()
		cur := m.current
		m.mu.RUnlock()
		if cur.valid(NowTimeFunc()) {
			return cur.accessToken, nil
		}

		sess, err := m.refresh(ctx)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.current = sess
		m.mu.Unlock()
		return sess.accessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached session so the next caller refreshes. Used
// when the remote rejects a token before its reported expiry.
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
}

type tokenRequest struct {
	AccountID string `json:"account_id"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	GrantType string `json:"grant_type"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// refresh exchanges account credentials for a new token. Every attempt,
// success or failure, is audited as an AUTH entry. An exhausted auth budget
// denies the refresh before any network call.
func (m *SessionManager) refresh(ctx context.Context) (*session, error) {
	start := NowTimeFunc()

	var sess *session
	var status int
	var err error

	if dec := m.limiter.Check(m.cfg.AccountID, OpAuth); !dec.Allowed {
		err = &Error{
			Type:       ErrRateLimit,
			Message:    "auth rate budget exhausted",
			RetryAfter: dec.RetryAfter,
		}
	} else {
		sess, status, err = m.requestToken(ctx)
	}

	entry := &model.AuditEntry{
		Operation:  "AUTH",
		Endpoint:   m.cfg.TokenURL,
		Method:     http.MethodPost,
		Source:     model.AuditSourceBackgroundSync,
		DurationMS: NowTimeFunc().Sub(start).Milliseconds(),
		StatusCode: status,
		Success:    err == nil,
		Metadata:   map[string]string{"account_id": m.cfg.AccountID},
		CreatedAt:  NowTimeFunc().UTC(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	m.audit.Record(ctx, entry)

	if err != nil {
		m.log.Warn().Err(err).Msg("token refresh failed")
		return nil, err
	}

	m.log.Debug().Time("expires_at", sess.expiresAt).Msg("session refreshed")
	return sess, nil
}

func (m *SessionManager) requestToken(ctx context.Context) (*session, int, error) {
	body, err := json.Marshal(tokenRequest{
		AccountID: m.cfg.AccountID,
		APIKey:    m.cfg.APIKey,
		APISecret: m.cfg.APISecret,
		GrantType: "client_credentials",
	})
	if err != nil {
		return nil, 0, WrapError(ErrUnknown, "failed to encode token request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, 0, WrapError(ErrUnknown, "failed to build token request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, 0, WrapError(ErrNetwork, "token endpoint unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Read and discard the body; its contents stay out of the error.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resp.StatusCode, &Error{
			Type:       ClassifyStatus(resp.StatusCode),
			Message:    fmt.Sprintf("token endpoint returned %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, resp.StatusCode, WrapError(ErrUnknown, "failed to decode token response", err)
	}
	if tr.AccessToken == "" || tr.ExpiresIn <= 0 {
		return nil, resp.StatusCode, NewError(ErrUnknown, "token response missing access token or expiry")
	}

	return &session{
		accessToken:  tr.AccessToken,
		refreshToken: tr.RefreshToken,
		accountID:    m.cfg.AccountID,
		expiresAt:    NowTimeFunc().Add(time.Duration(tr.ExpiresIn)*time.Second - m.cfg.Buffer),
	}, resp.StatusCode, nil
}
