// Package store persists artifacts behind a single Backend interface.
//
// Error Contract:
// All backends follow this error pattern:
//   - Get returns sentinel.ErrNotFound when the id is absent
//   - Delete of an absent id is not an error
//   - Put overwrites any existing record under the same id
//   - records that cannot be decoded surface as sentinel.ErrCorrupt
//   - infrastructure failures are returned wrapped with context
//
// Backends never hand out references to their internal state: every artifact
// returned is owned by the caller, and Put copies what it stores.
package store

import (
	"context"

	"receiptvault/internal/vault/models"
)

// Backend is a durable, id-keyed artifact store.
type Backend interface {
	Get(ctx context.Context, id string) (*models.Artifact, error)
	Put(ctx context.Context, artifact *models.Artifact) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.Artifact, error)
}
