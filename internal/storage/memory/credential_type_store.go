package memory

import (
	"context"
	"sync"

	"nftcred/internal/domain"
	"nftcred/internal/storage"
)

// CredentialTypeStore is an in-memory implementation of storage.CredentialTypeStore.
type CredentialTypeStore struct {
	mu   sync.RWMutex
	byID map[string]*domain.CredentialType
}

// NewCredentialTypeStore creates a new in-memory credential type store.
func NewCredentialTypeStore() *CredentialTypeStore {
	return &CredentialTypeStore{
		byID: make(map[string]*domain.CredentialType),
	}
}

// Compile-time interface check.
var _ storage.CredentialTypeStore = (*CredentialTypeStore)(nil)

// Insert adds a new credential type. Returns ErrDuplicateKey if the id exists.
func (s *CredentialTypeStore) Insert(_ context.Context, t *domain.CredentialType) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[t.ID]; exists {
		return storage.ErrDuplicateKey
	}

	typeCopy := *t
	s.byID[t.ID] = &typeCopy
	return nil
}

// GetByID retrieves a credential type. Returns ErrNotFound if not exists.
func (s *CredentialTypeStore) GetByID(_ context.Context, id string) (*domain.CredentialType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.byID[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	typeCopy := *t
	return &typeCopy, nil
}
