package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"receiptvault/internal/platform/database"
	"receiptvault/internal/sentinel"
	"receiptvault/internal/vault/models"
)

const artifactColumns = `id, artifact_type, content, owner, event_time, created_at,
	context, tags, retention_class, accessed_count, last_accessed`

// SQLStore persists artifacts in PostgreSQL or SQLite. Queries are written
// once with '?' placeholders and rebound for the dialect.
type SQLStore struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSQL constructs a SQL-backed artifact store. The artifacts table must
// already exist (see database.Migrate).
func NewSQL(db *sql.DB, dialect database.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) Get(ctx context.Context, id string) (*models.Artifact, error) {
	query := s.dialect.Rebind(`SELECT ` + artifactColumns + ` FROM artifacts WHERE id = ?`)
	a, err := scanArtifact(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find artifact by id: %w", err)
	}
	return a, nil
}

func (s *SQLStore) Put(ctx context.Context, artifact *models.Artifact) error {
	if artifact == nil {
		return fmt.Errorf("artifact is required")
	}
	contextJSON, err := json.Marshal(artifact.Context)
	if err != nil {
		return fmt.Errorf("encode artifact context: %w", err)
	}
	tags := artifact.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode artifact tags: %w", err)
	}
	var lastAccessed sql.NullString
	if artifact.LastAccessed != nil {
		lastAccessed = sql.NullString{String: models.FormatTime(*artifact.LastAccessed), Valid: true}
	}

	query := s.dialect.Rebind(`
		INSERT INTO artifacts (` + artifactColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			artifact_type = excluded.artifact_type,
			content = excluded.content,
			owner = excluded.owner,
			event_time = excluded.event_time,
			created_at = excluded.created_at,
			context = excluded.context,
			tags = excluded.tags,
			retention_class = excluded.retention_class,
			accessed_count = excluded.accessed_count,
			last_accessed = excluded.last_accessed
	`)
	_, err = s.db.ExecContext(ctx, query,
		artifact.ID,
		string(artifact.Type),
		artifact.Content,
		artifact.Owner,
		models.FormatTime(artifact.EventTime),
		models.FormatTime(artifact.CreatedAt),
		string(contextJSON),
		string(tagsJSON),
		string(artifact.RetentionClass),
		artifact.AccessedCount,
		lastAccessed,
	)
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	query := s.dialect.Rebind(`DELETE FROM artifacts WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context) ([]*models.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+artifactColumns+` FROM artifacts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []*models.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return out, nil
}

type artifactRow interface {
	Scan(dest ...any) error
}

func scanArtifact(row artifactRow) (*models.Artifact, error) {
	var (
		r            record
		contextJSON  string
		tagsJSON     string
		lastAccessed sql.NullString
	)
	if err := row.Scan(
		&r.ID, &r.Type, &r.Content, &r.Owner, &r.EventTime, &r.CreatedAt,
		&contextJSON, &tagsJSON, &r.RetentionClass, &r.AccessedCount, &lastAccessed,
	); err != nil {
		return nil, err
	}

	ctxMap, err := models.ParseMap([]byte(contextJSON))
	if err != nil {
		return nil, fmt.Errorf("artifact %s context: %w: %w", r.ID, sentinel.ErrCorrupt, err)
	}
	r.Context = ctxMap
	if err := json.Unmarshal([]byte(tagsJSON), &r.Tags); err != nil {
		return nil, fmt.Errorf("artifact %s tags: %w: %w", r.ID, sentinel.ErrCorrupt, err)
	}
	if lastAccessed.Valid {
		r.LastAccessed = lastAccessed.String
	}
	return r.toArtifact()
}
