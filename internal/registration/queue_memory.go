package registration

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"membersync/internal/model"
)

// MemoryQueue is an in-process Queue. A restart loses its contents, so it
// is only suitable for tests and development.
type MemoryQueue struct {
	mu      sync.RWMutex
	entries map[string]*model.PendingWrite
}

// NewMemoryQueue creates an in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{entries: make(map[string]*model.PendingWrite)}
}

// Enqueue adds a pending write.
func (q *MemoryQueue) Enqueue(ctx context.Context, pw *model.PendingWrite) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.entries[pw.ID]; exists {
		return fmt.Errorf("pending write %s already queued", pw.ID)
	}
	cp := *pw
	q.entries[pw.ID] = &cp
	return nil
}

// ListByStatus returns writes in the given status, oldest first.
func (q *MemoryQueue) ListByStatus(ctx context.Context, status model.PendingStatus) ([]*model.PendingWrite, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []*model.PendingWrite
	for _, pw := range q.entries {
		if pw.Status == status {
			cp := *pw
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Update persists changes to a queued write.
func (q *MemoryQueue) Update(ctx context.Context, pw *model.PendingWrite) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.entries[pw.ID]; !exists {
		return fmt.Errorf("pending write %s not found", pw.ID)
	}
	cp := *pw
	q.entries[pw.ID] = &cp
	return nil
}

// Remove deletes a write by ID.
func (q *MemoryQueue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.entries, id)
	return nil
}

// Close is a no-op.
func (q *MemoryQueue) Close() error {
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
