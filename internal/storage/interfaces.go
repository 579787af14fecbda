package storage

import (
	"context"

	"nftcred/internal/domain"
)

// CollectionStore provides access to registered_collections storage.
type CollectionStore interface {
	// Insert adds a new collection. Returns ErrDuplicateKey if the
	// contract address is already registered.
	Insert(ctx context.Context, c *domain.RegisteredCollection) error

	// GetByAddress retrieves a collection by (normalized) contract
	// address. Returns ErrNotFound if not registered.
	GetByAddress(ctx context.Context, contractAddress string) (*domain.RegisteredCollection, error)

	// List retrieves all registered collections ordered by creation time.
	List(ctx context.Context) ([]*domain.RegisteredCollection, error)
}

// CredentialTypeStore provides access to credential_types reference data.
type CredentialTypeStore interface {
	// Insert adds a new credential type. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, t *domain.CredentialType) error

	// GetByID retrieves a credential type. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.CredentialType, error)
}

// PlatformConfigStore provides access to the single platform_config row.
type PlatformConfigStore interface {
	// Get retrieves the platform config. Returns ErrNotFound when unset;
	// callers fall back to domain defaults.
	Get(ctx context.Context) (*domain.PlatformConfig, error)

	// Set creates or replaces the platform config.
	Set(ctx context.Context, cfg *domain.PlatformConfig) error
}

// CredentialStore provides access to credentials storage.
type CredentialStore interface {
	// Insert adds a new credential. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, c *domain.Credential) error

	// GetByID retrieves a credential by id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Credential, error)

	// ListByUser retrieves all credentials belonging to a user.
	ListByUser(ctx context.Context, userID string) ([]*domain.Credential, error)

	// UpdateVerification sets the verification status of a credential.
	// Returns ErrNotFound if the credential does not exist.
	UpdateVerification(ctx context.Context, id string, status domain.VerificationStatus) error
}

// LoanStore provides access to loans storage.
type LoanStore interface {
	// Insert adds a new loan. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, l *domain.Loan) error

	// GetByID retrieves a loan by id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Loan, error)

	// List retrieves all loans ordered by creation time descending.
	List(ctx context.Context) ([]*domain.Loan, error)

	// UpdateStatus transitions a loan to the given status.
	// Returns ErrNotFound if the loan does not exist.
	UpdateStatus(ctx context.Context, id string, status domain.LoanStatus) error
}

// PoolSnapshotStore records collateral-pool balance readings over time.
type PoolSnapshotStore interface {
	// InsertBulk appends snapshot points.
	InsertBulk(ctx context.Context, points []*domain.PoolSnapshot) error

	// GetByTimeRange retrieves snapshots within [start, end] ms, ascending.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.PoolSnapshot, error)
}

// LoanEventStore records loan lifecycle events for analytics.
type LoanEventStore interface {
	// Insert appends a loan event.
	Insert(ctx context.Context, e *domain.LoanEvent) error

	// GetByLoanID retrieves events for a loan ordered by timestamp ascending.
	GetByLoanID(ctx context.Context, loanID string) ([]*domain.LoanEvent, error)
}
