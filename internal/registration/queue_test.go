package registration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"membersync/internal/model"
	"membersync/pkg/uid"
)

// queueBackends returns every backend a test should hold to the same
// contract. MySQL needs a running server, so it is exercised elsewhere.
func queueBackends(t *testing.T) map[string]Queue {
	t.Helper()

	sqliteQueue, err := NewSQLiteQueue(filepath.Join(t.TempDir(), "pending.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteQueue.Close() })

	return map[string]Queue{
		"memory": NewMemoryQueue(),
		"sqlite": sqliteQueue,
	}
}

func newPendingWrite(status model.PendingStatus, createdAt time.Time) *model.PendingWrite {
	return &model.PendingWrite{
		ID:         uid.New(),
		EntityType: "registration",
		Operation:  model.PendingOpCreate,
		Payload:    []byte(`{"event_id":5,"member_id":12}`),
		Attempts:   1,
		Status:     status,
		Actor:      "staff@example.com",
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}

func TestQueueEnqueueAndList(t *testing.T) {
	for name, q := range queueBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC().Truncate(time.Second)

			older := newPendingWrite(model.PendingStatusPending, now.Add(-time.Minute))
			newer := newPendingWrite(model.PendingStatusPending, now)
			failed := newPendingWrite(model.PendingStatusFailed, now)

			require.NoError(t, q.Enqueue(ctx, newer))
			require.NoError(t, q.Enqueue(ctx, older))
			require.NoError(t, q.Enqueue(ctx, failed))

			pending, err := q.ListByStatus(ctx, model.PendingStatusPending)
			require.NoError(t, err)
			require.Len(t, pending, 2)
			require.Equal(t, older.ID, pending[0].ID, "oldest first")
			require.Equal(t, newer.ID, pending[1].ID)
			require.Equal(t, "staff@example.com", pending[0].Actor)
			require.JSONEq(t, `{"event_id":5,"member_id":12}`, string(pending[0].Payload))
		})
	}
}

func TestQueueUpdate(t *testing.T) {
	for name, q := range queueBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			pw := newPendingWrite(model.PendingStatusPending, time.Now().UTC().Truncate(time.Second))
			require.NoError(t, q.Enqueue(ctx, pw))

			pw.Attempts = 3
			pw.LastError = "still failing"
			pw.Status = model.PendingStatusRetrying
			require.NoError(t, q.Update(ctx, pw))

			retrying, err := q.ListByStatus(ctx, model.PendingStatusRetrying)
			require.NoError(t, err)
			require.Len(t, retrying, 1)
			require.Equal(t, 3, retrying[0].Attempts)
			require.Equal(t, "still failing", retrying[0].LastError)
		})
	}
}

func TestQueueUpdateUnknownID(t *testing.T) {
	for name, q := range queueBackends(t) {
		t.Run(name, func(t *testing.T) {
			pw := newPendingWrite(model.PendingStatusPending, time.Now().UTC())
			require.Error(t, q.Update(context.Background(), pw))
		})
	}
}

func TestQueueRemove(t *testing.T) {
	for name, q := range queueBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			pw := newPendingWrite(model.PendingStatusPending, time.Now().UTC().Truncate(time.Second))
			require.NoError(t, q.Enqueue(ctx, pw))
			require.NoError(t, q.Remove(ctx, pw.ID))

			pending, err := q.ListByStatus(ctx, model.PendingStatusPending)
			require.NoError(t, err)
			require.Empty(t, pending)
		})
	}
}

func TestQueueRejectsDuplicateID(t *testing.T) {
	for name, q := range queueBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			pw := newPendingWrite(model.PendingStatusPending, time.Now().UTC())
			require.NoError(t, q.Enqueue(ctx, pw))
			require.Error(t, q.Enqueue(ctx, pw))
		})
	}
}
