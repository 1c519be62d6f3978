package handler

import (
	"context"
	"net/http"
	"strconv"

	"membersync/internal/model"
	"membersync/internal/registration"
	"membersync/pkg/apierror"
	"membersync/pkg/response"
)

// AuditReader lists recorded audit entries.
type AuditReader interface {
	List(ctx context.Context, limit, offset int) ([]model.AuditEntry, int64, error)
}

// CacheAdmin exposes the cache operations the admin surface needs.
type CacheAdmin interface {
	Invalidate(ctx context.Context, memberID int64)
	InvalidateAll(ctx context.Context)
}

// AdminHandler exposes the pending queue and audit log for operators.
type AdminHandler struct {
	queue registration.Queue
	audit AuditReader
	cache CacheAdmin
}

// NewAdminHandler creates an admin handler. audit may be nil when the
// durable sink is not configured.
func NewAdminHandler(queue registration.Queue, audit AuditReader, cache CacheAdmin) *AdminHandler {
	return &AdminHandler{queue: queue, audit: audit, cache: cache}
}

// PendingWrites handles GET /api/v1/admin/pending?status=pending.
func (h *AdminHandler) PendingWrites(w http.ResponseWriter, r *http.Request) {
	status := model.PendingStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = model.PendingStatusPending
	}
	switch status {
	case model.PendingStatusPending, model.PendingStatusRetrying,
		model.PendingStatusSynced, model.PendingStatusFailed:
	default:
		response.Error(w, apierror.BadRequest("unknown status"))
		return
	}

	writes, err := h.queue.ListByStatus(r.Context(), status)
	if err != nil {
		response.Error(w, apierror.InternalError("failed to list pending writes"))
		return
	}
	if writes == nil {
		writes = []*model.PendingWrite{}
	}

	response.OK(w, writes)
}

// AuditLog handles GET /api/v1/admin/audit?limit=50&offset=0.
func (h *AdminHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		response.Error(w, apierror.ServiceUnavailable("audit log not configured"))
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	entries, total, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		response.Error(w, apierror.InternalError("failed to list audit entries"))
		return
	}

	response.JSONWithMeta(w, http.StatusOK, entries, limit, offset, total)
}

// InvalidateCache handles POST /api/v1/admin/cache/invalidate. A member_id
// query parameter drops one entry; omitting it drops everything.
func (h *AdminHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	memberID := queryInt64(r, "member_id")
	if memberID > 0 {
		h.cache.Invalidate(r.Context(), memberID)
	} else {
		h.cache.InvalidateAll(r.Context())
	}
	response.OK(w, map[string]string{"status": "invalidated"})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryInt64(r *http.Request, key string) int64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
