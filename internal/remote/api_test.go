package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"membersync/internal/model"
)

// pagedMembersHandler serves /members with offset/limit paging over a fixed
// population.
func pagedMembersHandler(total int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		var members []model.Member
		for i := offset; i < total && len(members) < limit; i++ {
			members = append(members, model.Member{
				ID:    int64(i + 1),
				Email: fmt.Sprintf("member%d@example.com", i+1),
			})
		}
		json.NewEncoder(w).Encode(map[string]any{"members": members})
	}
}

func TestListMembersSetsCursorOnFullPage(t *testing.T) {
	f := newClientFixture(t, ClientConfig{PageSize: 10}, generousLimits(), pagedMembersHandler(25))
	defer f.Close()

	page, err := f.client.ListMembers(context.Background(), ListOptions{})
	require.NoError(t, err)
	require.Len(t, page.Members, 10)
	require.NotEmpty(t, page.NextCursor)
	require.Equal(t, int64(1), page.Members[0].ID)

	page, err = f.client.ListMembers(context.Background(), ListOptions{Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Members, 10)
	require.Equal(t, int64(11), page.Members[0].ID)

	// Short page: listing exhausted.
	page, err = f.client.ListMembers(context.Background(), ListOptions{Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Members, 5)
	require.Empty(t, page.NextCursor)
}

func TestListMembersRejectsMalformedCursor(t *testing.T) {
	f := newClientFixture(t, ClientConfig{}, generousLimits(), pagedMembersHandler(5))
	defer f.Close()

	_, err := f.client.ListMembers(context.Background(), ListOptions{Cursor: "garbage!"})
	require.Error(t, err)

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, ErrValidation, rerr.Type)
}

func TestListAllMembersWalksEveryPage(t *testing.T) {
	f := newClientFixture(t, ClientConfig{PageSize: 10}, generousLimits(), pagedMembersHandler(25))
	defer f.Close()

	members, err := f.client.ListAllMembers(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, members, 25)
	require.Equal(t, int64(1), members[0].ID)
	require.Equal(t, int64(25), members[24].ID)
}

func TestListAllMembersBoundsPageWalk(t *testing.T) {
	// Every page comes back full, so the walk can never finish naturally.
	full := func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		members := make([]model.Member, limit)
		for i := range members {
			members[i] = model.Member{ID: int64(i + 1)}
		}
		json.NewEncoder(w).Encode(map[string]any{"members": members})
	}

	f := newClientFixture(t, ClientConfig{PageSize: 5, MaxPages: 3}, generousLimits(), full)
	defer f.Close()

	_, err := f.client.ListAllMembers(context.Background(), time.Time{})
	require.Error(t, err)
}

func TestGetMemberNotFound(t *testing.T) {
	f := newClientFixture(t, ClientConfig{}, generousLimits(), func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"gone"}`, http.StatusNotFound)
	})
	defer f.Close()

	_, err := f.client.GetMember(context.Background(), 99)
	require.Error(t, err)

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, ErrNotFound, rerr.Type)
}

func TestCreateRegistrationReturnsCanonicalRecord(t *testing.T) {
	f := newClientFixture(t, ClientConfig{}, generousLimits(), func(w http.ResponseWriter, r *http.Request) {
		var req model.RegistrationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(model.Registration{
			ID:       777,
			EventID:  req.EventID,
			MemberID: req.MemberID,
			Status:   "confirmed",
		})
	})
	defer f.Close()

	reg, err := f.client.CreateRegistration(context.Background(), model.RegistrationRequest{
		EventID:  5,
		MemberID: 12,
	})
	require.NoError(t, err)
	require.Equal(t, int64(777), reg.ID)
	require.Equal(t, int64(5), reg.EventID)
	require.Equal(t, int64(12), reg.MemberID)
}
