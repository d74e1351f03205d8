package models

import (
	"fmt"
	"strings"
	"time"

	dErrors "receiptvault/pkg/domain-errors"
	s "receiptvault/pkg/string"
	"receiptvault/pkg/validation"
)

// StoreRequest is what an external producer hands the vault.
// ID is optional; when empty the vault derives it from content, owner and
// event time.
type StoreRequest struct {
	ID             string         `json:"artifact_id,omitempty" validate:"omitempty,max=128,printascii"`
	Type           ArtifactType   `json:"artifact_type" validate:"required"`
	Content        string         `json:"content" validate:"required"`
	Owner          string         `json:"user_id,omitempty"`
	EventTime      time.Time      `json:"timestamp"`
	Context        Map            `json:"context,omitempty"`
	Tags           []string       `json:"tags,omitempty" validate:"max=64,dive,notblank,trimmed,max=128"`
	RetentionClass RetentionClass `json:"retention_class" validate:"required"`
}

// Normalize trims the id and drops exact duplicate tags. Tags are otherwise
// kept as given; Validate rejects padded ones.
func (r *StoreRequest) Normalize() {
	r.ID = strings.TrimSpace(r.ID)
	r.Tags = s.Dedupe(r.Tags)
}

// Validate rejects malformed requests before anything is persisted.
func (r *StoreRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	if err := validation.Validate(r); err != nil {
		return err
	}
	if !r.Type.IsValid() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("artifact_type %q is not a known type", r.Type))
	}
	if !r.RetentionClass.IsValid() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("retention_class %q is not a known class", r.RetentionClass))
	}
	if _, ok := r.Context[LegalHoldContextKey]; ok {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("context key %q is reserved for legal holds", LegalHoldContextKey))
	}
	return nil
}

// ToArtifact builds the artifact to persist under id.
func (r *StoreRequest) ToArtifact(id string, createdAt time.Time) *Artifact {
	return &Artifact{
		ID:             id,
		Type:           r.Type,
		Content:        r.Content,
		Owner:          r.Owner,
		EventTime:      r.EventTime,
		CreatedAt:      createdAt,
		Context:        r.Context.Clone(),
		Tags:           s.Dedupe(r.Tags),
		RetentionClass: r.RetentionClass,
	}
}
