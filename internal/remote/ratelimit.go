package remote

import (
	"fmt"
	"sync"
	"time"
)

// OpClass groups operations that share a rate budget.
type OpClass string

const (
	OpRead  OpClass = "read"
	OpWrite OpClass = "write"
	OpAuth  OpClass = "auth"
)

// LimiterConfig holds the per-class fixed-window budgets.
type LimiterConfig struct {
	Window     time.Duration
	ReadLimit  int
	WriteLimit int
	AuthLimit  int
}

// DefaultLimiterConfig returns the budgets the remote system is known to
// tolerate with headroom.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		Window:     time.Minute,
		ReadLimit:  100,
		WriteLimit: 30,
		AuthLimit:  10,
	}
}

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type bucket struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window counter per (identity, operation class).
// Windows are not sliding; bursts at window boundaries are a known
// imprecision.
type Limiter struct {
	mu      sync.Mutex
	cfg     LimiterConfig
	buckets map[string]*bucket

	now func() time.Time
}

// NewLimiter creates a limiter with the given budgets.
func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (l *Limiter) limit(class OpClass) int {
	switch class {
	case OpWrite:
		return l.cfg.WriteLimit
	case OpAuth:
		return l.cfg.AuthLimit
	default:
		return l.cfg.ReadLimit
	}
}

// Check consumes one request from the (identity, class) budget if any
// remains. Buckets are created lazily and reset when their window elapses.
func (l *Limiter) Check(identity string, class OpClass) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := fmt.Sprintf("%s:%s", identity, class)
	limit := l.limit(class)

	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{resetAt: now.Add(l.cfg.Window)}
		l.buckets[key] = b
	}

	if b.count >= limit {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    b.resetAt,
			RetryAfter: b.resetAt.Sub(now),
		}
	}

	b.count++
	return Decision{
		Allowed:   true,
		Remaining: limit - b.count,
		ResetAt:   b.resetAt,
	}
}
