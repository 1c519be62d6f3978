package registration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"membersync/internal/model"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLQueue implements Queue using MySQL, for deployments that already run
// one and want the pending writes visible to several instances.
type MySQLQueue struct {
	db *sql.DB
}

// NewMySQLQueue creates a MySQL-backed queue.
func NewMySQLQueue(dsn string) (*MySQLQueue, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	if err := createQueueTableMySQL(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create pending_writes table: %w", err)
	}

	return &MySQLQueue{db: db}, nil
}

func createQueueTableMySQL(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS pending_writes (
		id VARCHAR(36) PRIMARY KEY,
		entity_type VARCHAR(64) NOT NULL,
		operation VARCHAR(16) NOT NULL,
		payload TEXT NOT NULL,
		attempts INT NOT NULL DEFAULT 0,
		last_error TEXT,
		status VARCHAR(16) NOT NULL,
		actor VARCHAR(128) NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		synced_at DATETIME NULL,
		INDEX idx_pending_status (status, created_at)
	)`
	_, err := db.Exec(query)
	return err
}

// Enqueue adds a pending write.
func (q *MySQLQueue) Enqueue(ctx context.Context, pw *model.PendingWrite) error {
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
func (q *MySQLQueue) ListByStatus(ctx context.Context, status model.PendingStatus) ([]*model.PendingWrite, error) {
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
func (q *MySQLQueue) Update(ctx context.Context, pw *model.PendingWrite) error {
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
func (q *MySQLQueue) Remove(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM pending_writes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove pending write: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (q *MySQLQueue) Close() error {
	return q.db.Close()
}

var _ Queue = (*MySQLQueue)(nil)
