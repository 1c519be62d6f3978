package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Well-known event types sent by the remote membership system.
const (
	EventMemberUpdated         = "member.updated"
	EventMemberDeleted         = "member.deleted"
	EventRegistrationCreated   = "registration.created"
	EventRegistrationCancelled = "registration.cancelled"
)

// Event is a validated inbound change notification.
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	AccountID string                 `json:"account_id"`
	Params    map[string]interface{} `json:"params"`
}

// EntityID extracts the entity identifier from the event parameters. The
// remote sends member_id for member events and registration_id for
// registration events; either may be absent for bulk notifications.
func (e *Event) EntityID() string {
	for _, key := range []string{"member_id", "registration_id", "id"} {
		if v, ok := e.Params[key]; ok {
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

// MemberID returns the affected member ID, or 0 if the event carries none.
func (e *Event) MemberID() int64 {
	v, ok := e.Params["member_id"]
	if !ok {
		return 0
	}
	// JSON numbers decode as float64.
	if f, ok := v.(float64); ok {
		return int64(f)
	}
	return 0
}

// IdempotencyKey derives a stable fingerprint of the event. Two deliveries
// of the same notification always produce the same key.
func (e *Event) IdempotencyKey() string {
	raw := fmt.Sprintf("%s|%s|%d|%s",
		e.AccountID, e.Type, e.Timestamp.UTC().UnixNano(), e.EntityID())
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// parseEvent decodes and structurally checks a raw webhook body.
func parseEvent(body []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("malformed payload: %w", err)
	}
	if e.Type == "" {
		return nil, fmt.Errorf("missing event type")
	}
	if e.Timestamp.IsZero() {
		return nil, fmt.Errorf("missing event timestamp")
	}
	if e.AccountID == "" {
		return nil, fmt.Errorf("missing account identifier")
	}
	return &e, nil
}
