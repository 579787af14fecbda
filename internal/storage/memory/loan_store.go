package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"nftcred/internal/domain"
	"nftcred/internal/storage"
)

// LoanStore is an in-memory implementation of storage.LoanStore.
type LoanStore struct {
	mu   sync.RWMutex
	byID map[string]*domain.Loan
}

// NewLoanStore creates a new in-memory loan store.
func NewLoanStore() *LoanStore {
	return &LoanStore{
		byID: make(map[string]*domain.Loan),
	}
}

// Compile-time interface check.
var _ storage.LoanStore = (*LoanStore)(nil)

// Insert adds a new loan. Returns ErrDuplicateKey if the id exists.
func (s *LoanStore) Insert(_ context.Context, l *domain.Loan) error {
	if l == nil || l.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[l.ID]; exists {
		return storage.ErrDuplicateKey
	}

	loanCopy := *l
	loanCopy.Borrower = domain.NormalizeAddress(l.Borrower)
	loanCopy.ContractAddress = domain.NormalizeAddress(l.ContractAddress)
	s.byID[l.ID] = &loanCopy
	return nil
}

// GetByID retrieves a loan by id. Returns ErrNotFound if not exists.
func (s *LoanStore) GetByID(_ context.Context, id string) (*domain.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, exists := s.byID[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	loanCopy := *l
	return &loanCopy, nil
}

// List retrieves all loans ordered by creation time descending.
func (s *LoanStore) List(_ context.Context) ([]*domain.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loans := make([]*domain.Loan, 0, len(s.byID))
	for _, l := range s.byID {
		loanCopy := *l
		loans = append(loans, &loanCopy)
	}

	sort.Slice(loans, func(i, j int) bool {
		if !loans[i].CreatedAt.Equal(loans[j].CreatedAt) {
			return loans[i].CreatedAt.After(loans[j].CreatedAt)
		}
		return loans[i].ID < loans[j].ID
	})

	return loans, nil
}

// UpdateStatus transitions a loan to the given status.
func (s *LoanStore) UpdateStatus(_ context.Context, id string, status domain.LoanStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, exists := s.byID[id]
	if !exists {
		return storage.ErrNotFound
	}

	l.Status = status
	l.UpdatedAt = time.Now()
	return nil
}
