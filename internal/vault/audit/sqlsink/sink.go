// Package sqlsink persists audit events to the audit_events table so the
// access log survives restarts.
package sqlsink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"receiptvault/internal/platform/database"
	"receiptvault/internal/sentinel"
	"receiptvault/internal/vault/models"
)

// Sink writes events with their log-assigned seq as primary key. Replaying
// an event that is already stored is a no-op.
type Sink struct {
	db      *sql.DB
	dialect database.Dialect
}

func New(db *sql.DB, dialect database.Dialect) *Sink {
	return &Sink{db: db, dialect: dialect}
}

func (s *Sink) Append(ctx context.Context, event models.Event) error {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}
	query := s.dialect.Rebind(`
		INSERT INTO audit_events
			(seq, id, event_type, artifact_id, user_id, accessor, event_time, metadata, prev_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (seq) DO NOTHING
	`)
	_, err = s.db.ExecContext(ctx, query,
		event.Seq,
		event.ID,
		string(event.Type),
		event.ArtifactID,
		event.UserID,
		event.Accessor,
		models.FormatTime(event.Timestamp),
		string(meta),
		event.PrevHash,
		event.Hash,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// LoadAll returns every persisted event ordered by seq.
func (s *Sink) LoadAll(ctx context.Context) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, event_type, artifact_id, user_id, accessor, event_time, metadata, prev_hash, hash
		FROM audit_events
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("load audit events: %w", err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var (
			e         models.Event
			eventType string
			eventTime string
			meta      string
		)
		if err := rows.Scan(&e.Seq, &e.ID, &eventType, &e.ArtifactID, &e.UserID, &e.Accessor,
			&eventTime, &meta, &e.PrevHash, &e.Hash); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Type = models.EventType(eventType)
		if e.Timestamp, err = models.ParseTime(eventTime); err != nil {
			return nil, fmt.Errorf("audit event %d: %w: %w", e.Seq, sentinel.ErrCorrupt, err)
		}
		if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
			return nil, fmt.Errorf("audit event %d metadata: %w: %w", e.Seq, sentinel.ErrCorrupt, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}
