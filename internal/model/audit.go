package model

import "time"

// AuditSource classifies what triggered a remote-system operation.
type AuditSource string

const (
	AuditSourceUser           AuditSource = "user_action"
	AuditSourceBackgroundSync AuditSource = "background_sync"
	AuditSourceReconciliation AuditSource = "reconciliation"
	AuditSourceRetry          AuditSource = "retry"
)

// AuditEntry records one remote-system operation. Write-once, append-only.
type AuditEntry struct {
	ID         int64             `json:"id"`
	Operation  string            `json:"operation"` // AUTH, READ, WRITE, DELETE
	Endpoint   string            `json:"endpoint"`
	Method     string            `json:"method"`
	EntityType string            `json:"entity_type,omitempty"`
	EntityID   string            `json:"entity_id,omitempty"`
	Actor      string            `json:"actor,omitempty"`
	Source     AuditSource       `json:"source"`
	DurationMS int64             `json:"duration_ms"`
	StatusCode int               `json:"status_code,omitempty"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
