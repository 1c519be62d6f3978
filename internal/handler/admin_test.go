package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"membersync/internal/model"
	"membersync/internal/registration"
	"membersync/pkg/uid"
)

type recordingCacheAdmin struct {
	invalidated []int64
	clearedAll  bool
}

func (c *recordingCacheAdmin) Invalidate(ctx context.Context, memberID int64) {
	c.invalidated = append(c.invalidated, memberID)
}

func (c *recordingCacheAdmin) InvalidateAll(ctx context.Context) {
	c.clearedAll = true
}

func newAdminFixture(t *testing.T) (*AdminHandler, *registration.MemoryQueue, *recordingCacheAdmin) {
	t.Helper()
	queue := registration.NewMemoryQueue()
	cacheAdmin := &recordingCacheAdmin{}
	return NewAdminHandler(queue, nil, cacheAdmin), queue, cacheAdmin
}

func TestAdminPendingWrites(t *testing.T) {
	h, queue, _ := newAdminFixture(t)

	pw := &model.PendingWrite{
		ID:        uid.New(),
		Operation: model.PendingOpCreate,
		Payload:   []byte(`{}`),
		Status:    model.PendingStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, queue.Enqueue(context.Background(), pw))

	req := httptest.NewRequest(http.MethodGet, "/admin/pending", nil)
	rec := httptest.NewRecorder()
	h.PendingWrites(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var writes []*model.PendingWrite
	decodeData(t, rec, &writes)
	require.Len(t, writes, 1)
	require.Equal(t, pw.ID, writes[0].ID)
}

func TestAdminPendingWritesByStatus(t *testing.T) {
	h, queue, _ := newAdminFixture(t)

	pw := &model.PendingWrite{
		ID:        uid.New(),
		Operation: model.PendingOpCreate,
		Payload:   []byte(`{}`),
		Status:    model.PendingStatusFailed,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, queue.Enqueue(context.Background(), pw))

	req := httptest.NewRequest(http.MethodGet, "/admin/pending?status=failed", nil)
	rec := httptest.NewRecorder()
	h.PendingWrites(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var writes []*model.PendingWrite
	decodeData(t, rec, &writes)
	require.Len(t, writes, 1)
}

func TestAdminPendingWritesUnknownStatus(t *testing.T) {
	h, _, _ := newAdminFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/pending?status=bogus", nil)
	rec := httptest.NewRecorder()
	h.PendingWrites(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminAuditLogUnconfigured(t *testing.T) {
	h, _, _ := newAdminFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/audit", nil)
	rec := httptest.NewRecorder()
	h.AuditLog(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminInvalidateOneMember(t *testing.T) {
	h, _, cacheAdmin := newAdminFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/cache/invalidate?member_id=12", nil)
	rec := httptest.NewRecorder()
	h.InvalidateCache(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []int64{12}, cacheAdmin.invalidated)
	require.False(t, cacheAdmin.clearedAll)
}

func TestAdminInvalidateAll(t *testing.T) {
	h, _, cacheAdmin := newAdminFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/cache/invalidate", nil)
	rec := httptest.NewRecorder()
	h.InvalidateCache(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, cacheAdmin.clearedAll)
	require.Empty(t, cacheAdmin.invalidated)
}
