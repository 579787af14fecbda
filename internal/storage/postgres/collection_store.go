package postgres

import (
	"context"
	"fmt"

	"nftcred/internal/domain"
	"nftcred/internal/storage"
)

// CollectionStore implements storage.CollectionStore using PostgreSQL.
type CollectionStore struct {
	pool *Pool
}

// NewCollectionStore creates a new CollectionStore.
func NewCollectionStore(pool *Pool) *CollectionStore {
	return &CollectionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CollectionStore = (*CollectionStore)(nil)

// Insert adds a new collection. Returns ErrDuplicateKey if the contract
// address is already registered.
func (s *CollectionStore) Insert(ctx context.Context, c *domain.RegisteredCollection) error {
	query := `
		INSERT INTO registered_collections (
			id, contract_address, token_name, ticker_symbol, display_image, credential_type_id
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		c.ID,
		domain.NormalizeAddress(c.ContractAddress),
		c.TokenName,
		c.TickerSymbol,
		c.DisplayImage,
		c.CredentialTypeID,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert collection: %w", err)
	}
	return nil
}

// GetByAddress retrieves a collection by contract address.
// Returns ErrNotFound if not registered.
func (s *CollectionStore) GetByAddress(ctx context.Context, contractAddress string) (*domain.RegisteredCollection, error) {
	query := `
		SELECT id, contract_address, token_name, ticker_symbol, display_image, credential_type_id, created_at
		FROM registered_collections
		WHERE contract_address = $1
	`

	row := s.pool.QueryRow(ctx, query, domain.NormalizeAddress(contractAddress))

	var c domain.RegisteredCollection
	err := row.Scan(&c.ID, &c.ContractAddress, &c.TokenName, &c.TickerSymbol,
		&c.DisplayImage, &c.CredentialTypeID, &c.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get collection by address: %w", err)
	}
	return &c, nil
}

// List retrieves all registered collections ordered by creation time.
func (s *CollectionStore) List(ctx context.Context) ([]*domain.RegisteredCollection, error) {
	query := `
		SELECT id, contract_address, token_name, ticker_symbol, display_image, credential_type_id, created_at
		FROM registered_collections
		ORDER BY created_at ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var collections []*domain.RegisteredCollection
	for rows.Next() {
		var c domain.RegisteredCollection
		err := rows.Scan(&c.ID, &c.ContractAddress, &c.TokenName, &c.TickerSymbol,
			&c.DisplayImage, &c.CredentialTypeID, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		collections = append(collections, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collections: %w", err)
	}

	return collections, nil
}
