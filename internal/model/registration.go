package model

import "time"

// Registration is an event registration record as confirmed by the remote
// system. IDs are remote-assigned.
type Registration struct {
	ID           int64     `json:"id"`
	EventID      int64     `json:"event_id"`
	MemberID     int64     `json:"member_id"`
	Status       string    `json:"status"`
	RegisteredAt time.Time `json:"registered_at"`
}

// RegistrationRequest asks the remote system to register a member for an event.
type RegistrationRequest struct {
	EventID  int64  `json:"event_id"`
	MemberID int64  `json:"member_id"`
	Actor    string `json:"-"`
}

// CancellationRequest asks the remote system to cancel an existing registration.
type CancellationRequest struct {
	RegistrationID int64  `json:"registration_id"`
	EventID        int64  `json:"event_id"`
	MemberID       int64  `json:"member_id"`
	Actor          string `json:"-"`
}

// WriteStatus is the outcome class of a write-through operation.
type WriteStatus string

const (
	// WriteConfirmed means the remote system accepted the write.
	WriteConfirmed WriteStatus = "confirmed"
	// WriteQueued means immediate delivery failed on a retryable error and
	// the write was handed to the pending queue. Not a failure.
	WriteQueued WriteStatus = "queued"
	// WriteFailed means the write was rejected with a non-retryable error.
	WriteFailed WriteStatus = "failed"
)

// WriteResult is what the registration service hands back to callers. On
// confirmed writes Registration carries the remote system's canonical record;
// on queued writes PendingID identifies the queue entry.
type WriteResult struct {
	Status       WriteStatus   `json:"status"`
	Registration *Registration `json:"registration,omitempty"`
	PendingID    string        `json:"pending_id,omitempty"`
	Message      string        `json:"message,omitempty"`
}
