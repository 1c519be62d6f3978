package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"membersync/internal/cache"
	"membersync/internal/model"
	"membersync/internal/remote"
	"membersync/pkg/apierror"
	"membersync/pkg/response"
)

// MemberHandler serves member lookups through the read-through cache.
type MemberHandler struct {
	cache       *cache.MemberCache
	freshWindow time.Duration
	staleAfter  time.Duration
}

// NewMemberHandler creates a member handler.
func NewMemberHandler(c *cache.MemberCache, freshWindow, staleAfter time.Duration) *MemberHandler {
	return &MemberHandler{
		cache:       c,
		freshWindow: freshWindow,
		staleAfter:  staleAfter,
	}
}

// MemberResponse carries a member plus the freshness data the UI renders.
type MemberResponse struct {
	Member     model.Member    `json:"member"`
	Source     model.Source    `json:"source"`
	Staleness  model.Staleness `json:"staleness"`
	AgeSeconds int64           `json:"age_seconds"`
	CachedAt   time.Time       `json:"cached_at"`
}

func (h *MemberHandler) toResponse(res *model.CachedMember) MemberResponse {
	return MemberResponse{
		Member:     res.Member,
		Source:     res.Source,
		Staleness:  res.Staleness(h.freshWindow, h.staleAfter),
		AgeSeconds: int64(res.Age.Seconds()),
		CachedAt:   res.CachedAt,
	}
}

// Get handles GET /api/v1/members/{id}. `?refresh=1` forces a live fetch.
func (h *MemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(w, apierror.BadRequest("invalid member id"))
		return
	}

	forceRefresh := r.URL.Query().Get("refresh") == "1"
	actor := r.Header.Get("X-Actor")

	res, err := h.cache.Get(r.Context(), id, forceRefresh, remote.WithActor(actor))
	if err != nil {
		response.Error(w, mapRemoteError(err))
		return
	}

	response.OK(w, h.toResponse(res))
}

// BatchRequest asks for several members at once.
type BatchRequest struct {
	IDs []int64 `json:"ids"`
}

// BatchResponse carries per-id results; failed ids appear in Errors.
type BatchResponse struct {
	Members map[int64]MemberResponse `json:"members"`
	Errors  map[int64]string         `json:"errors,omitempty"`
}

// maxBatchSize bounds one batch request.
const maxBatchSize = 100

// Batch handles POST /api/v1/members/batch.
func (h *MemberHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	if len(req.IDs) == 0 {
		response.Error(w, apierror.BadRequest("ids is required"))
		return
	}
	if len(req.IDs) > maxBatchSize {
		response.Error(w, apierror.BadRequest("too many ids in one batch"))
		return
	}

	actor := r.Header.Get("X-Actor")
	results, failures := h.cache.GetBatch(r.Context(), req.IDs, remote.WithActor(actor))

	resp := BatchResponse{Members: make(map[int64]MemberResponse, len(results))}
	for id, res := range results {
		resp.Members[id] = h.toResponse(res)
	}
	if len(failures) > 0 {
		resp.Errors = make(map[int64]string, len(failures))
		for id, err := range failures {
			resp.Errors[id] = mapRemoteError(err).Message
		}
	}

	response.OK(w, resp)
}
