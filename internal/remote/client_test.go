package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"membersync/internal/audit"
	"membersync/internal/model"
)

// recordingSink captures audit entries for assertions.
type recordingSink struct {
	mu      sync.Mutex
	entries []*model.AuditEntry
}

func (s *recordingSink) Record(ctx context.Context, entry *model.AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

func (s *recordingSink) all() []*model.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.AuditEntry(nil), s.entries...)
}

type clientFixture struct {
	client     *Client
	audits     *recordingSink
	tokenCalls *atomic.Int64
	closers    []func()
}

func (f *clientFixture) Close() {
	for _, c := range f.closers {
		c()
	}
}

func newClientFixture(t *testing.T, cfg ClientConfig, limiterCfg LimiterConfig, api http.HandlerFunc) *clientFixture {
	t.Helper()

	var tokenCalls atomic.Int64
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "test-token", ExpiresIn: 3600})
	}))

	apiSrv := httptest.NewServer(api)

	limiter := NewLimiter(limiterCfg)
	sessions := NewSessionManager(SessionConfig{
		TokenURL:  tokenSrv.URL,
		AccountID: "acct-1",
		APIKey:    "key",
		APISecret: "secret",
	}, limiter, audit.NopSink{}, zerolog.Nop())

	cfg.BaseURL = apiSrv.URL
	if cfg.Identity == "" {
		cfg.Identity = "acct-1"
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = time.Millisecond
	}
	if cfg.BackoffCap == 0 {
		cfg.BackoffCap = 5 * time.Millisecond
	}

	audits := &recordingSink{}
	client := NewClient(cfg, sessions, limiter, audits, zerolog.Nop())

	return &clientFixture{
		client:     client,
		audits:     audits,
		tokenCalls: &tokenCalls,
		closers:    []func(){tokenSrv.Close, apiSrv.Close},
	}
}

func generousLimits() LimiterConfig {
	return LimiterConfig{Window: time.Minute, ReadLimit: 1000, WriteLimit: 1000, AuthLimit: 1000}
}

func TestExecuteDecodesResponse(t *testing.T) {
	var gotAuth string
	f := newClientFixture(t, ClientConfig{}, generousLimits(), func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{"id": 42, "email": "jo@example.com"})
	})
	defer f.Close()

	var out struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
	}
	err := f.client.Execute(context.Background(), http.MethodGet, "/members/42", nil, &out)
	require.NoError(t, err)
	require.Equal(t, int64(42), out.ID)
	require.Equal(t, "jo@example.com", out.Email)
	require.Equal(t, "Bearer test-token", gotAuth)
}

func TestExecuteRetriesServerErrors(t *testing.T) {
	var hits atomic.Int64
	f := newClientFixture(t, ClientConfig{MaxRetries: 3}, generousLimits(), func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			http.Error(w, `{"error":"upstream hiccup"}`, http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})
	defer f.Close()

	err := f.client.Execute(context.Background(), http.MethodGet, "/members/1", nil, nil)
	require.NoError(t, err)
	require.Equal(t, int64(3), hits.Load())
}

func TestExecuteDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int64
	f := newClientFixture(t, ClientConfig{MaxRetries: 3}, generousLimits(), func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, `{"message":"no such member"}`, http.StatusNotFound)
	})
	defer f.Close()

	err := f.client.Execute(context.Background(), http.MethodGet, "/members/404", nil, nil)
	require.Error(t, err)
	require.Equal(t, int64(1), hits.Load(), "4xx must not be retried")

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, ErrNotFound, rerr.Type)
	require.NotContains(t, rerr.Message, "no such member", "error must be sanitized")
}

func TestExecuteExhaustsRetriesAndSanitizes(t *testing.T) {
	var hits atomic.Int64
	f := newClientFixture(t, ClientConfig{MaxRetries: 2}, generousLimits(), func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, `{"error":"db exploded at 10.0.0.3"}`, http.StatusInternalServerError)
	})
	defer f.Close()

	err := f.client.Execute(context.Background(), http.MethodGet, "/members/1", nil, nil)
	require.Error(t, err)
	require.Equal(t, int64(3), hits.Load(), "initial attempt plus two retries")

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, ErrServer, rerr.Type)
	require.NotContains(t, rerr.Message, "10.0.0.3")
}

func TestExecuteFailsFastOnLocalRateLimit(t *testing.T) {
	var hits atomic.Int64
	f := newClientFixture(t, ClientConfig{},
		LimiterConfig{Window: time.Minute, ReadLimit: 1, WriteLimit: 1, AuthLimit: 1},
		func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			json.NewEncoder(w).Encode(map[string]any{"ok": true})
		})
	defer f.Close()

	require.NoError(t, f.client.Execute(context.Background(), http.MethodGet, "/members/1", nil, nil))

	err := f.client.Execute(context.Background(), http.MethodGet, "/members/2", nil, nil)
	require.Error(t, err)

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, ErrRateLimit, rerr.Type)
	require.Greater(t, rerr.RetryAfter, time.Duration(0))
	require.Equal(t, int64(1), hits.Load(), "a denied call must not reach the network")
}

func TestExecuteParsesRetryAfter(t *testing.T) {
	f := newClientFixture(t, ClientConfig{MaxRetries: 1}, generousLimits(), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		http.Error(w, "", http.StatusTooManyRequests)
	})
	defer f.Close()

	err := f.client.Execute(context.Background(), http.MethodGet, "/members/1", nil, nil)
	require.Error(t, err)

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, ErrRateLimit, rerr.Type)
	require.Equal(t, 7*time.Second, rerr.RetryAfter)
}

func TestExecuteInvalidatesSessionOnUnauthorized(t *testing.T) {
	f := newClientFixture(t, ClientConfig{}, generousLimits(), func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "", http.StatusUnauthorized)
	})
	defer f.Close()

	require.Error(t, f.client.Execute(context.Background(), http.MethodGet, "/members/1", nil, nil))
	require.Error(t, f.client.Execute(context.Background(), http.MethodGet, "/members/1", nil, nil))

	require.Equal(t, int64(2), f.tokenCalls.Load(),
		"a 401 must drop the cached token so the next call re-authenticates")
}

func TestExecuteOpensBreakerAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int64
	f := newClientFixture(t, ClientConfig{MaxRetries: 5, BreakerThreshold: 2}, generousLimits(),
		func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			http.Error(w, "", http.StatusInternalServerError)
		})
	defer f.Close()

	err := f.client.Execute(context.Background(), http.MethodGet, "/members/1", nil, nil)
	require.Error(t, err)
	require.Equal(t, int64(2), hits.Load(), "an open breaker must stop hitting the remote")

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, ErrNetwork, rerr.Type)
}

func TestExecuteAuditsUnserializableBody(t *testing.T) {
	var hits atomic.Int64
	f := newClientFixture(t, ClientConfig{}, generousLimits(), func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})
	defer f.Close()

	err := f.client.Execute(context.Background(), http.MethodPost, "/registrations", make(chan int), nil)
	require.Error(t, err)
	require.Zero(t, hits.Load())

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, ErrValidation, rerr.Type)

	entries := f.audits.all()
	require.Len(t, entries, 1, "every failure path leaves an audit record")
	require.False(t, entries[0].Success)
	require.Equal(t, "WRITE", entries[0].Operation)
	require.Equal(t, "/registrations", entries[0].Endpoint)
}

func TestExecuteRejectsOversizedBody(t *testing.T) {
	var hits atomic.Int64
	f := newClientFixture(t, ClientConfig{MaxBodyBytes: 16}, generousLimits(), func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})
	defer f.Close()

	body := map[string]string{"padding": "this payload is well past sixteen bytes"}
	err := f.client.Execute(context.Background(), http.MethodPost, "/registrations", body, nil)
	require.Error(t, err)
	require.Zero(t, hits.Load())

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, ErrValidation, rerr.Type)
}
