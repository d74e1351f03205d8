package store

import (
	"encoding/json"
	"fmt"

	"receiptvault/internal/sentinel"
	"receiptvault/internal/vault/models"
)

// record is the self-describing wire form shared by the redis and s3
// backends. Timestamps use models.TimeLayout so a decoded artifact equals the
// one that was encoded.
type record struct {
	ID             string     `json:"artifact_id"`
	Type           string     `json:"artifact_type"`
	Content        string     `json:"content"`
	Owner          string     `json:"user_id,omitempty"`
	EventTime      string     `json:"timestamp"`
	CreatedAt      string     `json:"created_at"`
	Context        models.Map `json:"context"`
	Tags           []string   `json:"tags"`
	RetentionClass string     `json:"retention_class"`
	AccessedCount  int64      `json:"accessed_count"`
	LastAccessed   string     `json:"last_accessed,omitempty"`
}

// Encode serialises an artifact.
func Encode(a *models.Artifact) ([]byte, error) {
	r := record{
		ID:             a.ID,
		Type:           string(a.Type),
		Content:        a.Content,
		Owner:          a.Owner,
		EventTime:      models.FormatTime(a.EventTime),
		CreatedAt:      models.FormatTime(a.CreatedAt),
		Context:        a.Context,
		Tags:           a.Tags,
		RetentionClass: string(a.RetentionClass),
		AccessedCount:  a.AccessedCount,
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	if a.LastAccessed != nil {
		r.LastAccessed = models.FormatTime(*a.LastAccessed)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode artifact %s: %w", a.ID, err)
	}
	return data, nil
}

// Decode parses data written by Encode.
func Decode(data []byte) (*models.Artifact, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode artifact: %w: %w", sentinel.ErrCorrupt, err)
	}
	return r.toArtifact()
}

func (r record) toArtifact() (*models.Artifact, error) {
	a := &models.Artifact{
		ID:             r.ID,
		Type:           models.ArtifactType(r.Type),
		Content:        r.Content,
		Owner:          r.Owner,
		Context:        r.Context,
		Tags:           r.Tags,
		RetentionClass: models.RetentionClass(r.RetentionClass),
		AccessedCount:  r.AccessedCount,
	}
	if a.ID == "" || !a.Type.IsValid() || !a.RetentionClass.IsValid() {
		return nil, fmt.Errorf("decode artifact %q: %w", r.ID, sentinel.ErrCorrupt)
	}

	var err error
	if a.EventTime, err = models.ParseTime(r.EventTime); err != nil {
		return nil, fmt.Errorf("decode artifact %s timestamp: %w: %w", r.ID, sentinel.ErrCorrupt, err)
	}
	if a.CreatedAt, err = models.ParseTime(r.CreatedAt); err != nil {
		return nil, fmt.Errorf("decode artifact %s created_at: %w: %w", r.ID, sentinel.ErrCorrupt, err)
	}
	if r.LastAccessed != "" {
		t, err := models.ParseTime(r.LastAccessed)
		if err != nil {
			return nil, fmt.Errorf("decode artifact %s last_accessed: %w: %w", r.ID, sentinel.ErrCorrupt, err)
		}
		a.LastAccessed = &t
	}
	return a, nil
}
