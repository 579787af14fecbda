package memory

import (
	"context"
	"sort"
	"sync"

	"nftcred/internal/domain"
	"nftcred/internal/storage"
)

// PoolSnapshotStore is an in-memory implementation of storage.PoolSnapshotStore.
type PoolSnapshotStore struct {
	mu     sync.RWMutex
	points []*domain.PoolSnapshot
}

// NewPoolSnapshotStore creates a new in-memory pool snapshot store.
func NewPoolSnapshotStore() *PoolSnapshotStore {
	return &PoolSnapshotStore{}
}

// Compile-time interface check.
var _ storage.PoolSnapshotStore = (*PoolSnapshotStore)(nil)

// InsertBulk appends snapshot points.
func (s *PoolSnapshotStore) InsertBulk(_ context.Context, points []*domain.PoolSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		pointCopy := *p
		s.points = append(s.points, &pointCopy)
	}
	return nil
}

// GetByTimeRange retrieves snapshots within [start, end] ms, ascending.
func (s *PoolSnapshotStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.PoolSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.PoolSnapshot
	for _, p := range s.points {
		if p.TimestampMs >= start && p.TimestampMs <= end {
			pointCopy := *p
			out = append(out, &pointCopy)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].TimestampMs < out[j].TimestampMs })
	return out, nil
}

// LoanEventStore is an in-memory implementation of storage.LoanEventStore.
type LoanEventStore struct {
	mu     sync.RWMutex
	events []*domain.LoanEvent
}

// NewLoanEventStore creates a new in-memory loan event store.
func NewLoanEventStore() *LoanEventStore {
	return &LoanEventStore{}
}

// Compile-time interface check.
var _ storage.LoanEventStore = (*LoanEventStore)(nil)

// Insert appends a loan event.
func (s *LoanEventStore) Insert(_ context.Context, e *domain.LoanEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	eventCopy := *e
	s.events = append(s.events, &eventCopy)
	return nil
}

// GetByLoanID retrieves events for a loan ordered by timestamp ascending.
func (s *LoanEventStore) GetByLoanID(_ context.Context, loanID string) ([]*domain.LoanEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.LoanEvent
	for _, e := range s.events {
		if e.LoanID == loanID {
			eventCopy := *e
			out = append(out, &eventCopy)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].TimestampMs < out[j].TimestampMs })
	return out, nil
}
