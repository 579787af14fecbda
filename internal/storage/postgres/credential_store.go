package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"nftcred/internal/domain"
	"nftcred/internal/storage"
)

// CredentialStore implements storage.CredentialStore using PostgreSQL.
// Metadata blobs are stored as JSONB.
type CredentialStore struct {
	pool *Pool
}

// NewCredentialStore creates a new CredentialStore.
func NewCredentialStore(pool *Pool) *CredentialStore {
	return &CredentialStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CredentialStore = (*CredentialStore)(nil)

// Insert adds a new credential. Returns ErrDuplicateKey if the id exists.
func (s *CredentialStore) Insert(ctx context.Context, c *domain.Credential) error {
	if c == nil || c.ID == "" {
		return storage.ErrInvalidInput
	}
	if !domain.ValidVerificationStatus(c.Verification) {
		return storage.ErrInvalidInput
	}

	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("marshal credential metadata: %w", err)
	}

	query := `
		INSERT INTO credentials (
			id, user_id, credential_type_id, contract_address, token_id,
			institution, verification, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.pool.Exec(ctx, query,
		c.ID,
		c.UserID,
		c.CredentialTypeID,
		domain.NormalizeAddress(c.ContractAddress),
		c.TokenID,
		c.Institution,
		string(c.Verification),
		meta,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

// GetByID retrieves a credential by id. Returns ErrNotFound if not exists.
func (s *CredentialStore) GetByID(ctx context.Context, id string) (*domain.Credential, error) {
	query := `
		SELECT id, user_id, credential_type_id, contract_address, token_id,
		       institution, verification, metadata, created_at
		FROM credentials
		WHERE id = $1
	`

	c, err := scanCredential(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get credential by id: %w", err)
	}
	return c, nil
}

// ListByUser retrieves all credentials belonging to a user.
func (s *CredentialStore) ListByUser(ctx context.Context, userID string) ([]*domain.Credential, error) {
	query := `
		SELECT id, user_id, credential_type_id, contract_address, token_id,
		       institution, verification, metadata, created_at
		FROM credentials
		WHERE user_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var credentials []*domain.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		credentials = append(credentials, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return credentials, nil
}

// UpdateVerification sets the verification status of a credential.
func (s *CredentialStore) UpdateVerification(ctx context.Context, id string, status domain.VerificationStatus) error {
	if !domain.ValidVerificationStatus(status) {
		return storage.ErrInvalidInput
	}

	query := `UPDATE credentials SET verification = $2 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("update credential verification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// rowScanner abstracts pgx.Row and pgx.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*domain.Credential, error) {
	var c domain.Credential
	var verification string
	var meta []byte

	err := row.Scan(&c.ID, &c.UserID, &c.CredentialTypeID, &c.ContractAddress,
		&c.TokenID, &c.Institution, &verification, &meta, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	c.Verification = domain.VerificationStatus(verification)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal credential metadata: %w", err)
		}
	}

	return &c, nil
}
