package memory

import (
	"context"
	"sort"
	"sync"

	"nftcred/internal/domain"
	"nftcred/internal/storage"
)

// CredentialStore is an in-memory implementation of storage.CredentialStore.
type CredentialStore struct {
	mu   sync.RWMutex
	byID map[string]*domain.Credential
}

// NewCredentialStore creates a new in-memory credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		byID: make(map[string]*domain.Credential),
	}
}

// Compile-time interface check.
var _ storage.CredentialStore = (*CredentialStore)(nil)

// Insert adds a new credential. Returns ErrDuplicateKey if the id exists.
func (s *CredentialStore) Insert(_ context.Context, c *domain.Credential) error {
	if c == nil || c.ID == "" {
		return storage.ErrInvalidInput
	}
	if !domain.ValidVerificationStatus(c.Verification) {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[c.ID]; exists {
		return storage.ErrDuplicateKey
	}

	credCopy := *c
	credCopy.ContractAddress = domain.NormalizeAddress(c.ContractAddress)
	s.byID[c.ID] = &credCopy
	return nil
}

// GetByID retrieves a credential by id. Returns ErrNotFound if not exists.
func (s *CredentialStore) GetByID(_ context.Context, id string) (*domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.byID[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	credCopy := *c
	return &credCopy, nil
}

// ListByUser retrieves all credentials belonging to a user.
func (s *CredentialStore) ListByUser(_ context.Context, userID string) ([]*domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var credentials []*domain.Credential
	for _, c := range s.byID {
		if c.UserID == userID {
			credCopy := *c
			credentials = append(credentials, &credCopy)
		}
	}

	sort.Slice(credentials, func(i, j int) bool {
		if !credentials[i].CreatedAt.Equal(credentials[j].CreatedAt) {
			return credentials[i].CreatedAt.Before(credentials[j].CreatedAt)
		}
		return credentials[i].ID < credentials[j].ID
	})

	return credentials, nil
}

// UpdateVerification sets the verification status of a credential.
func (s *CredentialStore) UpdateVerification(_ context.Context, id string, status domain.VerificationStatus) error {
	if !domain.ValidVerificationStatus(status) {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.byID[id]
	if !exists {
		return storage.ErrNotFound
	}

	c.Verification = status
	return nil
}
