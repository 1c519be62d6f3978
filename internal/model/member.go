package model

import "time"

// Member is a member profile as held by the remote membership system,
// which stays the system of record during the migration.
type Member struct {
	ID              int64     `json:"id"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Email           string    `json:"email"`
	MembershipLevel string    `json:"membership_level"`
	Status          string    `json:"status"`
	JoinedAt        time.Time `json:"joined_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Source tags where a cached member lookup was served from.
type Source string

const (
	// SourceLive means the value was just fetched from the remote system.
	SourceLive Source = "live"
	// SourceCached means the value was served from cache within its TTL.
	SourceCached Source = "cached"
	// SourceFallback means the remote system was unreachable and an old
	// cache entry was served instead. Always treated as stale.
	SourceFallback Source = "fallback"
)

// Staleness is the presentation-facing freshness tier.
type Staleness string

const (
	StalenessFresh  Staleness = "fresh"
	StalenessCached Staleness = "cached"
	StalenessStale  Staleness = "stale"
)

// CachedMember is a member lookup result plus its provenance.
type CachedMember struct {
	Member   Member    `json:"member"`
	Source   Source    `json:"source"`
	CachedAt time.Time `json:"cached_at"`
	Age      time.Duration `json:"-"`
}

// Staleness classifies the result by source and age. Pure function of the
// two; a fallback result is stale no matter how young.
func (m *CachedMember) Staleness(freshWindow, staleAfter time.Duration) Staleness {
	switch {
	case m.Source == SourceFallback:
		return StalenessStale
	case m.Source == SourceLive && m.Age < freshWindow:
		return StalenessFresh
	case m.Age >= staleAfter:
		return StalenessStale
	default:
		return StalenessCached
	}
}
