package registration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"membersync/internal/model"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteQueue implements Queue using SQLite. The default durable backend:
// pending writes survive a process restart.
type SQLiteQueue struct {
	db *sql.DB
}

// NewSQLiteQueue creates a SQLite-backed queue at dbPath.
func NewSQLiteQueue(dbPath string) (*SQLiteQueue, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createQueueTableSQLite(db); err != nil {
		return nil, fmt.Errorf("failed to create pending_writes table: %w", err)
	}

	return &SQLiteQueue{db: db}, nil
}

func createQueueTableSQLite(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS pending_writes (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		operation TEXT NOT NULL,
		payload TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		actor TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		synced_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_pending_status ON pending_writes(status, created_at);
	`
	_, err := db.Exec(query)
	return err
}

// Enqueue adds a pending write.
func (q *SQLiteQueue) Enqueue(ctx context.Context, pw *model.PendingWrite) error {
	query := `
		INSERT INTO pending_writes
			(id, entity_type, operation, payload, attempts, last_error, status, actor, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := q.db.ExecContext(ctx, query,
		pw.ID, pw.EntityType, pw.Operation, string(pw.Payload),
		pw.Attempts, pw.LastError, string(pw.Status), pw.Actor,
		pw.CreatedAt, pw.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue pending write: %w", err)
	}
	return nil
}

// ListByStatus returns writes in the given status, oldest first.
func (q *SQLiteQueue) ListByStatus(ctx context.Context, status model.PendingStatus) ([]*model.PendingWrite, error) {
	query := `
		SELECT id, entity_type, operation, payload, attempts, last_error, status, actor,
		       created_at, updated_at, synced_at
		FROM pending_writes
		WHERE status = ?
		ORDER BY created_at ASC`

	rows, err := q.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending writes: %w", err)
	}
	defer rows.Close()

	return scanPendingWrites(rows)
}

// Update persists changes to a queued write.
func (q *SQLiteQueue) Update(ctx context.Context, pw *model.PendingWrite) error {
	pw.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE pending_writes
		SET attempts = ?, last_error = ?, status = ?, updated_at = ?, synced_at = ?
		WHERE id = ?`

	res, err := q.db.ExecContext(ctx, query,
		pw.Attempts, pw.LastError, string(pw.Status), pw.UpdatedAt, pw.SyncedAt, pw.ID)
	if err != nil {
		return fmt.Errorf("failed to update pending write: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("pending write %s not found", pw.ID)
	}
	return nil
}

// Remove deletes a write by ID.
func (q *SQLiteQueue) Remove(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM pending_writes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove pending write: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (q *SQLiteQueue) Close() error {
	return q.db.Close()
}

func scanPendingWrites(rows *sql.Rows) ([]*model.PendingWrite, error) {
	var out []*model.PendingWrite
	for rows.Next() {
		var pw model.PendingWrite
		var payload, status string
		var syncedAt sql.NullTime
		if err := rows.Scan(&pw.ID, &pw.EntityType, &pw.Operation, &payload,
			&pw.Attempts, &pw.LastError, &status, &pw.Actor,
			&pw.CreatedAt, &pw.UpdatedAt, &syncedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending write: %w", err)
		}
		pw.Payload = []byte(payload)
		pw.Status = model.PendingStatus(status)
		if syncedAt.Valid {
			pw.SyncedAt = &syncedAt.Time
		}
		out = append(out, &pw)
	}
	return out, rows.Err()
}

var _ Queue = (*SQLiteQueue)(nil)
