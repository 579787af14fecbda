package memory

import (
	"context"
	"sync"

	"nftcred/internal/domain"
	"nftcred/internal/storage"
)

// PlatformConfigStore is an in-memory implementation of storage.PlatformConfigStore.
type PlatformConfigStore struct {
	mu  sync.RWMutex
	cfg *domain.PlatformConfig
}

// NewPlatformConfigStore creates a new in-memory platform config store.
func NewPlatformConfigStore() *PlatformConfigStore {
	return &PlatformConfigStore{}
}

// Compile-time interface check.
var _ storage.PlatformConfigStore = (*PlatformConfigStore)(nil)

// Get retrieves the platform config. Returns ErrNotFound when unset.
func (s *PlatformConfigStore) Get(_ context.Context) (*domain.PlatformConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cfg == nil {
		return nil, storage.ErrNotFound
	}

	cfgCopy := *s.cfg
	return &cfgCopy, nil
}

// Set creates or replaces the platform config.
func (s *PlatformConfigStore) Set(_ context.Context, cfg *domain.PlatformConfig) error {
	if cfg == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfgCopy := *cfg
	s.cfg = &cfgCopy
	return nil
}
