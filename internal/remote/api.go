package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"membersync/internal/model"
)

// MembersPage is one page of a member listing.
type MembersPage struct {
	Members    []model.Member
	NextCursor string
}

// ListOptions narrow a member listing.
type ListOptions struct {
	Cursor       string
	Limit        int
	UpdatedSince time.Time
}

type listResponse struct {
	Members []model.Member `json:"members"`
}

// GetMember fetches one member by its remote-assigned ID.
func (c *Client) GetMember(ctx context.Context, id int64, opts ...CallOption) (*model.Member, error) {
	opts = append(opts, WithEntity("member", fmt.Sprintf("%d", id)))

	var m model.Member
	err := c.Execute(ctx, http.MethodGet, fmt.Sprintf("/members/%d", id), nil, &m, opts...)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMembers fetches one page of members. The returned cursor is empty once
// the listing is exhausted.
func (c *Client) ListMembers(ctx context.Context, opts ListOptions, callOpts ...CallOption) (*MembersPage, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = c.cfg.PageSize
	}

	offset, err := DecodeCursor(opts.Cursor)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("offset", fmt.Sprintf("%d", offset))
	q.Set("limit", fmt.Sprintf("%d", limit))
	if !opts.UpdatedSince.IsZero() {
		q.Set("updated_since", opts.UpdatedSince.UTC().Format(time.RFC3339))
	}

	var resp listResponse
	if err := c.Execute(ctx, http.MethodGet, "/members?"+q.Encode(), nil, &resp, callOpts...); err != nil {
		return nil, err
	}

	page := &MembersPage{Members: resp.Members}
	if len(resp.Members) == limit {
		page.NextCursor = EncodeCursor(offset + limit)
	}
	return page, nil
}

// ListAllMembers walks the full listing, requesting pages until one returns
// fewer items than requested. A hard page ceiling bounds the walk against a
// remote that keeps returning full pages.
func (c *Client) ListAllMembers(ctx context.Context, updatedSince time.Time, callOpts ...CallOption) ([]model.Member, error) {
	var all []model.Member
	cursor := ""
	maxPages := c.cfg.MaxPages

	for page := 0; page < maxPages; page++ {
		p, err := c.ListMembers(ctx, ListOptions{Cursor: cursor, UpdatedSince: updatedSince}, callOpts...)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Members...)
		if p.NextCursor == "" {
			return all, nil
		}
		cursor = p.NextCursor
	}

	return nil, NewError(ErrUnknown, fmt.Sprintf("listing exceeded %d pages", maxPages))
}

// CreateRegistration registers a member for an event and returns the remote
// system's canonical record.
func (c *Client) CreateRegistration(ctx context.Context, req model.RegistrationRequest, opts ...CallOption) (*model.Registration, error) {
	opts = append(opts, WithEntity("registration", fmt.Sprintf("event:%d member:%d", req.EventID, req.MemberID)))

	var reg model.Registration
	err := c.Execute(ctx, http.MethodPost, "/registrations", req, &reg, opts...)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// DeleteRegistration cancels an existing registration.
func (c *Client) DeleteRegistration(ctx context.Context, registrationID int64, opts ...CallOption) error {
	opts = append(opts, WithEntity("registration", fmt.Sprintf("%d", registrationID)))
	return c.Execute(ctx, http.MethodDelete, fmt.Sprintf("/registrations/%d", registrationID), nil, nil, opts...)
}
