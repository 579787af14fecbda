package memory

import (
	"context"
	"sort"
	"sync"

	"nftcred/internal/domain"
	"nftcred/internal/storage"
)

// CollectionStore is an in-memory implementation of storage.CollectionStore.
type CollectionStore struct {
	mu        sync.RWMutex
	byAddress map[string]*domain.RegisteredCollection
}

// NewCollectionStore creates a new in-memory collection store.
func NewCollectionStore() *CollectionStore {
	return &CollectionStore{
		byAddress: make(map[string]*domain.RegisteredCollection),
	}
}

// Compile-time interface check.
var _ storage.CollectionStore = (*CollectionStore)(nil)

// Insert adds a new collection. Returns ErrDuplicateKey if the contract
// address is already registered.
func (s *CollectionStore) Insert(_ context.Context, c *domain.RegisteredCollection) error {
	if c == nil || c.ContractAddress == "" {
		return storage.ErrInvalidInput
	}

	addr := domain.NormalizeAddress(c.ContractAddress)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byAddress[addr]; exists {
		return storage.ErrDuplicateKey
	}

	collCopy := *c
	collCopy.ContractAddress = addr
	s.byAddress[addr] = &collCopy
	return nil
}

// GetByAddress retrieves a collection by contract address.
func (s *CollectionStore) GetByAddress(_ context.Context, contractAddress string) (*domain.RegisteredCollection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.byAddress[domain.NormalizeAddress(contractAddress)]
	if !exists {
		return nil, storage.ErrNotFound
	}

	collCopy := *c
	return &collCopy, nil
}

// List retrieves all registered collections ordered by creation time.
func (s *CollectionStore) List(_ context.Context) ([]*domain.RegisteredCollection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	collections := make([]*domain.RegisteredCollection, 0, len(s.byAddress))
	for _, c := range s.byAddress {
		collCopy := *c
		collections = append(collections, &collCopy)
	}

	sort.Slice(collections, func(i, j int) bool {
		if !collections[i].CreatedAt.Equal(collections[j].CreatedAt) {
			return collections[i].CreatedAt.Before(collections[j].CreatedAt)
		}
		return collections[i].ContractAddress < collections[j].ContractAddress
	})

	return collections, nil
}
