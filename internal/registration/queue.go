package registration

import (
	"context"

	"membersync/internal/model"
)

// Queue stores pending writes awaiting background delivery. Durable
// implementations survive a process restart; the in-memory one is for
// tests.
type Queue interface {
	// Enqueue adds a pending write.
	Enqueue(ctx context.Context, pw *model.PendingWrite) error

	// ListByStatus returns writes in the given status, oldest first.
	ListByStatus(ctx context.Context, status model.PendingStatus) ([]*model.PendingWrite, error)

	// Update persists the write's status, attempts, error and timestamps.
	Update(ctx context.Context, pw *model.PendingWrite) error

	// Remove deletes a write by ID.
	Remove(ctx context.Context, id string) error

	// Close releases the queue's resources.
	Close() error
}
