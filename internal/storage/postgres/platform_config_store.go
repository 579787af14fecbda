package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"nftcred/internal/domain"
	"nftcred/internal/storage"
)

// PlatformConfigStore implements storage.PlatformConfigStore using PostgreSQL.
// The table holds at most one row.
type PlatformConfigStore struct {
	pool *Pool
}

// NewPlatformConfigStore creates a new PlatformConfigStore.
func NewPlatformConfigStore(pool *Pool) *PlatformConfigStore {
	return &PlatformConfigStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PlatformConfigStore = (*PlatformConfigStore)(nil)

// Get retrieves the platform config. Returns ErrNotFound when unset.
func (s *PlatformConfigStore) Get(ctx context.Context) (*domain.PlatformConfig, error) {
	query := `SELECT interest_rate FROM platform_config LIMIT 1`

	var rate string
	if err := s.pool.QueryRow(ctx, query).Scan(&rate); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get platform config: %w", err)
	}

	r, err := decimal.NewFromString(rate)
	if err != nil {
		return nil, fmt.Errorf("parse interest rate %q: %w", rate, err)
	}

	return &domain.PlatformConfig{InterestRate: r}, nil
}

// Set creates or replaces the platform config.
func (s *PlatformConfigStore) Set(ctx context.Context, cfg *domain.PlatformConfig) error {
	query := `
		INSERT INTO platform_config (id, interest_rate)
		VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET interest_rate = EXCLUDED.interest_rate
	`

	if _, err := s.pool.Exec(ctx, query, cfg.InterestRate.String()); err != nil {
		return fmt.Errorf("set platform config: %w", err)
	}
	return nil
}
