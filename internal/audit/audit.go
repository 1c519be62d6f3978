// Package audit records every remote-system operation for forensic
// visibility. Entries are write-once; failures are recorded whether or not
// they were surfaced to a user.
package audit

import (
	"context"

	"github.com/rs/zerolog"

	"membersync/internal/model"
)

// Sink receives audit entries. Implementations must not mutate entries
// after recording them.
type Sink interface {
	Record(ctx context.Context, entry *model.AuditEntry)
}

// LogSink writes audit entries to the structured log. Used on its own in
// development and alongside the durable sink everywhere else.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a log-backed sink.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "audit").Logger()}
}

// Record logs the entry. Metadata is redacted before logging.
func (s *LogSink) Record(ctx context.Context, entry *model.AuditEntry) {
	evt := s.log.Info()
	if !entry.Success {
		evt = s.log.Warn()
	}
	evt.Str("operation", entry.Operation).
		Str("method", entry.Method).
		Str("endpoint", entry.Endpoint).
		Str("source", string(entry.Source)).
		Int64("duration_ms", entry.DurationMS).
		Int("status", entry.StatusCode).
		Bool("success", entry.Success)
	if entry.EntityType != "" {
		evt = evt.Str("entity_type", entry.EntityType).Str("entity_id", entry.EntityID)
	}
	if entry.Actor != "" {
		evt = evt.Str("actor", entry.Actor)
	}
	if entry.Error != "" {
		evt = evt.Str("error", entry.Error)
	}
	if len(entry.Metadata) > 0 {
		evt = evt.Interface("metadata", Redact(entry.Metadata))
	}
	evt.Msg("remote operation")
}

// MultiSink fans entries out to several sinks.
type MultiSink []Sink

// Record forwards the entry to every sink.
func (m MultiSink) Record(ctx context.Context, entry *model.AuditEntry) {
	for _, s := range m {
		s.Record(ctx, entry)
	}
}

// NopSink discards entries. For tests.
type NopSink struct{}

// Record discards the entry.
func (NopSink) Record(ctx context.Context, entry *model.AuditEntry) {}
