package testutil

import (
	"fmt"
	"time"

	"receiptvault/internal/vault/models"
)

// FixedTime is a deterministic instant for tests that need a stable clock.
var FixedTime = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

// StoreRequestBuilder provides a fluent interface for building store requests.
type StoreRequestBuilder struct {
	req *models.StoreRequest
}

// NewStoreRequest creates a StoreRequestBuilder with sensible defaults.
func NewStoreRequest() *StoreRequestBuilder {
	return &StoreRequestBuilder{
		req: &models.StoreRequest{
			Type:           models.TypeUnsentMessage,
			Content:        "I meant to say it sooner.",
			Owner:          "user-1",
			EventTime:      FixedTime,
			Context:        models.Map{},
			Tags:           []string{},
			RetentionClass: models.RetentionStandard,
		},
	}
}

func (b *StoreRequestBuilder) WithID(id string) *StoreRequestBuilder {
	b.req.ID = id
	return b
}

func (b *StoreRequestBuilder) WithType(t models.ArtifactType) *StoreRequestBuilder {
	b.req.Type = t
	return b
}

func (b *StoreRequestBuilder) WithContent(content string) *StoreRequestBuilder {
	b.req.Content = content
	return b
}

func (b *StoreRequestBuilder) WithOwner(owner string) *StoreRequestBuilder {
	b.req.Owner = owner
	return b
}

func (b *StoreRequestBuilder) WithEventTime(t time.Time) *StoreRequestBuilder {
	b.req.EventTime = t
	return b
}

func (b *StoreRequestBuilder) WithContext(key string, v models.Value) *StoreRequestBuilder {
	b.req.Context[key] = v
	return b
}

func (b *StoreRequestBuilder) WithTags(tags ...string) *StoreRequestBuilder {
	b.req.Tags = tags
	return b
}

func (b *StoreRequestBuilder) WithRetention(c models.RetentionClass) *StoreRequestBuilder {
	b.req.RetentionClass = c
	return b
}

func (b *StoreRequestBuilder) Build() *models.StoreRequest {
	return b.req
}

// NewTestArtifact returns a stored-shaped artifact with a synthetic id.
func NewTestArtifact(n int, class models.RetentionClass, createdAt time.Time) *models.Artifact {
	return &models.Artifact{
		ID:             fmt.Sprintf("artifact_%016x", n),
		Type:           models.TypeDeletedDraft,
		Content:        fmt.Sprintf("draft %d", n),
		Owner:          "user-1",
		EventTime:      createdAt,
		CreatedAt:      createdAt,
		Context:        models.Map{},
		Tags:           []string{},
		RetentionClass: class,
	}
}
