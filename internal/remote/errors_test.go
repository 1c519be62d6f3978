package remote

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		want   ErrorType
	}{
		{http.StatusBadRequest, ErrValidation},
		{http.StatusUnprocessableEntity, ErrValidation},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusConflict, ErrConflict},
		{http.StatusTooManyRequests, ErrRateLimit},
		{http.StatusInternalServerError, ErrServer},
		{http.StatusBadGateway, ErrServer},
		{http.StatusServiceUnavailable, ErrServer},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ClassifyStatus(tc.status), "status %d", tc.status)
	}
}

func TestRetryable(t *testing.T) {
	for _, typ := range []ErrorType{ErrValidation, ErrUnauthorized, ErrNotFound, ErrConflict} {
		require.False(t, NewError(typ, "x").Retryable(), "%s should be final", typ)
	}
	for _, typ := range []ErrorType{ErrRateLimit, ErrNetwork, ErrServer, ErrUnknown} {
		require.True(t, NewError(typ, "x").Retryable(), "%s should be retryable", typ)
	}
}

func TestSanitizeStripsInternalDetail(t *testing.T) {
	raw := &Error{
		Type:       ErrServer,
		Message:    "POST /internal/v2/members failed: pq: connection refused at 10.0.3.7",
		StatusCode: http.StatusBadGateway,
		RetryAfter: 3 * time.Second,
	}

	clean := Sanitize(raw)
	require.NotContains(t, clean.Message, "10.0.3.7")
	require.NotContains(t, clean.Message, "/internal")
	require.Equal(t, ErrServer, clean.Type)
	require.Equal(t, http.StatusBadGateway, clean.StatusCode)
	require.Equal(t, 3*time.Second, clean.RetryAfter)
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapError(ErrNetwork, "remote request failed", cause)

	require.ErrorIs(t, err, cause)

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, ErrNetwork, rerr.Type)
}
