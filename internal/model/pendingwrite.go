package model

import (
	"encoding/json"
	"time"
)

// PendingStatus is the lifecycle state of a queued write.
//
// Transitions: pending -> retrying -> (synced | pending with incremented
// attempts | failed). failed and synced are terminal.
type PendingStatus string

const (
	PendingStatusPending  PendingStatus = "pending"
	PendingStatusRetrying PendingStatus = "retrying"
	PendingStatusSynced   PendingStatus = "synced"
	PendingStatusFailed   PendingStatus = "failed"
)

// Pending write operations.
const (
	PendingOpCreate = "create"
	PendingOpDelete = "delete"
)

// PendingWrite is a write that exhausted its inline retries and was queued
// for background delivery.
type PendingWrite struct {
	ID         string          `json:"id"`
	EntityType string          `json:"entity_type"`
	Operation  string          `json:"operation"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	LastError  string          `json:"last_error,omitempty"`
	Status     PendingStatus   `json:"status"`
	Actor      string          `json:"actor,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	SyncedAt   *time.Time      `json:"synced_at,omitempty"`
}

// Age returns how long the write has been waiting since it was first queued.
func (p *PendingWrite) Age(now time.Time) time.Duration {
	return now.Sub(p.CreatedAt)
}
