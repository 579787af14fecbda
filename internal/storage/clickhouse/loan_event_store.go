package clickhouse

import (
	"context"
	"fmt"

	"nftcred/internal/domain"
	"nftcred/internal/storage"
)

// LoanEventStore implements storage.LoanEventStore using ClickHouse.
type LoanEventStore struct {
	conn *Conn
}

// NewLoanEventStore creates a new LoanEventStore.
func NewLoanEventStore(conn *Conn) *LoanEventStore {
	return &LoanEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.LoanEventStore = (*LoanEventStore)(nil)

// Insert appends a loan event.
func (s *LoanEventStore) Insert(ctx context.Context, e *domain.LoanEvent) error {
	err := s.conn.Exec(ctx, `
		INSERT INTO loan_events (loan_id, event, borrower, amount, timestamp_ms)
		VALUES (?, ?, ?, ?, ?)
	`, e.LoanID, e.Event, e.Borrower, e.Amount, uint64(e.TimestampMs))
	if err != nil {
		return fmt.Errorf("insert loan event: %w", err)
	}
	return nil
}

// GetByLoanID retrieves events for a loan ordered by timestamp ascending.
func (s *LoanEventStore) GetByLoanID(ctx context.Context, loanID string) ([]*domain.LoanEvent, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT loan_id, event, borrower, amount, timestamp_ms
		FROM loan_events
		WHERE loan_id = ?
		ORDER BY timestamp_ms ASC
	`, loanID)
	if err != nil {
		return nil, fmt.Errorf("query loan events: %w", err)
	}
	defer rows.Close()

	var events []*domain.LoanEvent
	for rows.Next() {
		var e domain.LoanEvent
		var ts uint64
		if err := rows.Scan(&e.LoanID, &e.Event, &e.Borrower, &e.Amount, &ts); err != nil {
			return nil, fmt.Errorf("scan loan event: %w", err)
		}
		e.TimestampMs = int64(ts)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate loan events: %w", err)
	}

	return events, nil
}
