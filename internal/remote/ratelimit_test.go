package remote

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterExhaustsBudget(t *testing.T) {
	l := NewLimiter(LimiterConfig{Window: time.Minute, ReadLimit: 3, WriteLimit: 1, AuthLimit: 1})

	for i := 0; i < 3; i++ {
		dec := l.Check("acct-1", OpRead)
		require.True(t, dec.Allowed, "call %d should pass", i+1)
		require.Equal(t, 2-i, dec.Remaining)
	}

	dec := l.Check("acct-1", OpRead)
	require.False(t, dec.Allowed)
	require.Zero(t, dec.Remaining)
	require.Greater(t, dec.RetryAfter, time.Duration(0))
	require.LessOrEqual(t, dec.RetryAfter, time.Minute)
}

func TestLimiterClassesAreIndependent(t *testing.T) {
	l := NewLimiter(LimiterConfig{Window: time.Minute, ReadLimit: 1, WriteLimit: 1, AuthLimit: 1})

	require.True(t, l.Check("acct-1", OpRead).Allowed)
	require.False(t, l.Check("acct-1", OpRead).Allowed)

	// A drained read budget must not touch writes or auth.
	require.True(t, l.Check("acct-1", OpWrite).Allowed)
	require.True(t, l.Check("acct-1", OpAuth).Allowed)
}

func TestLimiterIdentitiesAreIndependent(t *testing.T) {
	l := NewLimiter(LimiterConfig{Window: time.Minute, ReadLimit: 1})

	require.True(t, l.Check("acct-1", OpRead).Allowed)
	require.False(t, l.Check("acct-1", OpRead).Allowed)
	require.True(t, l.Check("acct-2", OpRead).Allowed)
}

func TestLimiterWindowReset(t *testing.T) {
	l := NewLimiter(LimiterConfig{Window: time.Minute, ReadLimit: 1})

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	require.True(t, l.Check("acct-1", OpRead).Allowed)
	require.False(t, l.Check("acct-1", OpRead).Allowed)

	// Still inside the window.
	now = now.Add(59 * time.Second)
	require.False(t, l.Check("acct-1", OpRead).Allowed)

	// Window elapsed; the bucket resets with a full budget.
	now = now.Add(2 * time.Second)
	dec := l.Check("acct-1", OpRead)
	require.True(t, dec.Allowed)
	require.Equal(t, now.Add(time.Minute), dec.ResetAt)
}
