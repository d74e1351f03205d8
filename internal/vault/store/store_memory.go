package store

import (
	"context"
	"sync"

	"receiptvault/internal/sentinel"
	"receiptvault/internal/vault/models"
)

// InMemoryStore keeps artifacts in a map. It is the default for tests and
// for single-process use where durability is not required.
type InMemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]*models.Artifact
}

// NewInMemory constructs an empty in-memory store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{artifacts: make(map[string]*models.Artifact)}
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*models.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *InMemoryStore) Put(_ context.Context, artifact *models.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[artifact.ID] = artifact.Clone()
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.artifacts, id)
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*models.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Artifact, 0, len(s.artifacts))
	for _, a := range s.artifacts {
		out = append(out, a.Clone())
	}
	return out, nil
}

// Len reports how many artifacts are stored.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.artifacts)
}
