package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"nftcred/internal/domain"
	"nftcred/internal/storage"
)

// CredentialTypeStore implements storage.CredentialTypeStore using PostgreSQL.
type CredentialTypeStore struct {
	pool *Pool
}

// NewCredentialTypeStore creates a new CredentialTypeStore.
func NewCredentialTypeStore(pool *Pool) *CredentialTypeStore {
	return &CredentialTypeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CredentialTypeStore = (*CredentialTypeStore)(nil)

// Insert adds a new credential type. Returns ErrDuplicateKey if the id exists.
func (s *CredentialTypeStore) Insert(ctx context.Context, t *domain.CredentialType) error {
	query := `
		INSERT INTO credential_types (id, name, base_price, ltv, chain_code)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query, t.ID, t.Name, t.BasePrice.String(), t.LTV, t.ChainCode)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert credential type: %w", err)
	}
	return nil
}

// GetByID retrieves a credential type. Returns ErrNotFound if not exists.
func (s *CredentialTypeStore) GetByID(ctx context.Context, id string) (*domain.CredentialType, error) {
	query := `
		SELECT id, name, base_price, ltv, chain_code
		FROM credential_types
		WHERE id = $1
	`

	row := s.pool.QueryRow(ctx, query, id)

	var t domain.CredentialType
	var basePrice string
	if err := row.Scan(&t.ID, &t.Name, &basePrice, &t.LTV, &t.ChainCode); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get credential type: %w", err)
	}

	price, err := decimal.NewFromString(basePrice)
	if err != nil {
		return nil, fmt.Errorf("parse base price %q: %w", basePrice, err)
	}
	t.BasePrice = price

	return &t, nil
}
