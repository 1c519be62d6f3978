package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"membersync/internal/model"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteSink persists audit entries to an append-only SQLite table.
// Thread-safe with WAL mode for high-concurrency reads.
type SQLiteSink struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSQLiteSink opens (or creates) the audit database at dbPath.
func NewSQLiteSink(dbPath string, log zerolog.Logger) (*SQLiteSink, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createAuditTable(db); err != nil {
		return nil, fmt.Errorf("failed to create audit table: %w", err)
	}

	return &SQLiteSink{
		db:  db,
		log: log.With().Str("component", "audit_sqlite").Logger(),
	}, nil
}

func createAuditTable(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		operation TEXT NOT NULL,
		endpoint TEXT NOT NULL,
		method TEXT NOT NULL,
		entity_type TEXT NOT NULL DEFAULT '',
		entity_id TEXT NOT NULL DEFAULT '',
		actor TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		status_code INTEGER NOT NULL DEFAULT 0,
		success INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_entries(created_at);
	CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_entries(entity_type, entity_id);
	`
	_, err := db.Exec(query)
	return err
}

// Record appends the entry. Audit writes must never fail a remote
// operation, so errors are logged and swallowed.
func (s *SQLiteSink) Record(ctx context.Context, entry *model.AuditEntry) {
	metadata, err := json.Marshal(Redact(entry.Metadata))
	if err != nil {
		metadata = []byte("{}")
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_entries
			(operation, endpoint, method, entity_type, entity_id, actor, source,
			 duration_ms, status_code, success, error, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		entry.Operation, entry.Endpoint, entry.Method,
		entry.EntityType, entry.EntityID, entry.Actor, string(entry.Source),
		entry.DurationMS, entry.StatusCode, entry.Success, entry.Error,
		string(metadata), createdAt,
	)
	if err != nil {
		s.log.Error().Err(err).Str("endpoint", entry.Endpoint).Msg("failed to record audit entry")
	}
}

// List returns audit entries newest-first with pagination.
func (s *SQLiteSink) List(ctx context.Context, limit, offset int) ([]model.AuditEntry, int64, error) {
	query := `
		SELECT id, operation, endpoint, method, entity_type, entity_id, actor,
		       source, duration_ms, status_code, success, error, metadata, created_at
		FROM audit_entries
		ORDER BY id DESC
		LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []model.AuditEntry{}
	for rows.Next() {
		var e model.AuditEntry
		var source, metadata string
		if err := rows.Scan(&e.ID, &e.Operation, &e.Endpoint, &e.Method,
			&e.EntityType, &e.EntityID, &e.Actor, &source, &e.DurationMS,
			&e.StatusCode, &e.Success, &e.Error, &metadata, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Source = model.AuditSource(source)
		if metadata != "" && metadata != "{}" {
			_ = json.Unmarshal([]byte(metadata), &e.Metadata)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_entries").Scan(&total); err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// Close closes the database connection.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

var _ Sink = (*SQLiteSink)(nil)
