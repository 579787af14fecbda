package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"nftcred/internal/domain"
	"nftcred/internal/storage"
)

// LoanStore implements storage.LoanStore using PostgreSQL.
type LoanStore struct {
	pool *Pool
}

// NewLoanStore creates a new LoanStore.
func NewLoanStore(pool *Pool) *LoanStore {
	return &LoanStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LoanStore = (*LoanStore)(nil)

// Insert adds a new loan. Returns ErrDuplicateKey if the id exists.
func (s *LoanStore) Insert(ctx context.Context, l *domain.Loan) error {
	if l == nil || l.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO loans (
			id, borrower, contract_address, token_id, amount, duration, ltv, status, tx_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		l.ID,
		domain.NormalizeAddress(l.Borrower),
		domain.NormalizeAddress(l.ContractAddress),
		l.TokenID,
		l.Amount.String(),
		l.Duration,
		l.LTV,
		string(l.Status),
		l.TxHash,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert loan: %w", err)
	}
	return nil
}

// GetByID retrieves a loan by id. Returns ErrNotFound if not exists.
func (s *LoanStore) GetByID(ctx context.Context, id string) (*domain.Loan, error) {
	query := selectLoan + ` WHERE id = $1`

	l, err := scanLoan(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get loan by id: %w", err)
	}
	return l, nil
}

// List retrieves all loans ordered by creation time descending.
func (s *LoanStore) List(ctx context.Context) ([]*domain.Loan, error) {
	query := selectLoan + ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	defer rows.Close()

	var loans []*domain.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		loans = append(loans, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate loans: %w", err)
	}

	return loans, nil
}

// UpdateStatus transitions a loan to the given status.
func (s *LoanStore) UpdateStatus(ctx context.Context, id string, status domain.LoanStatus) error {
	query := `UPDATE loans SET status = $2, updated_at = now() WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("update loan status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

const selectLoan = `
	SELECT id, borrower, contract_address, token_id, amount, duration, ltv,
	       status, tx_hash, created_at, updated_at
	FROM loans`

func scanLoan(row rowScanner) (*domain.Loan, error) {
	var l domain.Loan
	var amount, status string

	err := row.Scan(&l.ID, &l.Borrower, &l.ContractAddress, &l.TokenID, &amount,
		&l.Duration, &l.LTV, &status, &l.TxHash, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}

	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse loan amount %q: %w", amount, err)
	}
	l.Amount = amt
	l.Status = domain.LoanStatus(status)

	return &l, nil
}
