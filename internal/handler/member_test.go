package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"membersync/internal/cache"
	"membersync/internal/model"
	"membersync/internal/remote"
)

type stubFetcher struct {
	members map[int64]model.Member
	err     *remote.Error
}

func (f *stubFetcher) GetMember(ctx context.Context, id int64, opts ...remote.CallOption) (*model.Member, error) {
	if f.err != nil {
		return nil, remote.Sanitize(f.err)
	}
	m, ok := f.members[id]
	if !ok {
		return nil, remote.Sanitize(remote.NewError(remote.ErrNotFound, "missing"))
	}
	return &m, nil
}

func newMemberRouter(t *testing.T, fetcher *stubFetcher) chi.Router {
	t.Helper()
	store, err := cache.NewMemoryStore(100)
	require.NoError(t, err)
	c := cache.NewMemberCache(store, fetcher, cache.MemberCacheConfig{TTL: 5 * time.Minute}, zerolog.Nop())

	h := NewMemberHandler(c, 30*time.Second, 30*time.Minute)
	r := chi.NewRouter()
	r.Get("/members/{id}", h.Get)
	r.Post("/members/batch", h.Batch)
	return r
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.True(t, envelope.Success)
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func TestMemberGet(t *testing.T) {
	r := newMemberRouter(t, &stubFetcher{members: map[int64]model.Member{
		12: {ID: 12, FirstName: "Ada", Email: "ada@example.com"},
	}})

	req := httptest.NewRequest(http.MethodGet, "/members/12", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body MemberResponse
	decodeData(t, rec, &body)
	require.Equal(t, int64(12), body.Member.ID)
	require.Equal(t, model.SourceLive, body.Source)
	require.Equal(t, model.StalenessFresh, body.Staleness)
}

func TestMemberGetInvalidID(t *testing.T) {
	r := newMemberRouter(t, &stubFetcher{})

	for _, path := range []string{"/members/abc", "/members/0", "/members/-3"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestMemberGetNotFound(t *testing.T) {
	r := newMemberRouter(t, &stubFetcher{})

	req := httptest.NewRequest(http.MethodGet, "/members/99", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMemberGetRemoteDown(t *testing.T) {
	r := newMemberRouter(t, &stubFetcher{err: remote.NewError(remote.ErrNetwork, "down")})

	req := httptest.NewRequest(http.MethodGet, "/members/12", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMemberBatch(t *testing.T) {
	r := newMemberRouter(t, &stubFetcher{members: map[int64]model.Member{
		1: {ID: 1},
		2: {ID: 2},
	}})

	payload, _ := json.Marshal(BatchRequest{IDs: []int64{1, 2, 3}})
	req := httptest.NewRequest(http.MethodPost, "/members/batch", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body BatchResponse
	decodeData(t, rec, &body)
	require.Len(t, body.Members, 2)
	require.Len(t, body.Errors, 1)
	require.Contains(t, body.Errors, int64(3))
}

func TestMemberBatchValidation(t *testing.T) {
	r := newMemberRouter(t, &stubFetcher{})

	cases := map[string]string{
		"empty ids": `{"ids":[]}`,
		"not json":  `{oops`,
	}
	for name, payload := range cases {
		req := httptest.NewRequest(http.MethodPost, "/members/batch", bytes.NewReader([]byte(payload)))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, name)
	}

	big := BatchRequest{IDs: make([]int64, 101)}
	payload, _ := json.Marshal(big)
	req := httptest.NewRequest(http.MethodPost, "/members/batch", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code, "oversized batch")
}
