package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NormalizeAddress lowercases a hex address so it can be used as a lookup key.
// Addresses are compared case-insensitively everywhere in the system.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// RegisteredCollection is an NFT contract registered as acceptable collateral.
// Corresponds to registered_collections table in PostgreSQL.
// Immutable once created; registration itself is an admin action.
type RegisteredCollection struct {
	ID               string
	ContractAddress  string // unique, lowercase hex
	TokenName        string
	TickerSymbol     string
	DisplayImage     string
	CredentialTypeID string // FK to credential_types
	CreatedAt        time.Time
}

// CredentialType is read-only reference data consumed by the loan estimator.
type CredentialType struct {
	ID        string
	Name      string
	BasePrice decimal.Decimal // stablecoin units
	LTV       int             // percent, 0-100
	ChainCode int             // value of the loan contract's CredentialType enum
}

// PlatformConfig holds platform-wide settings.
type PlatformConfig struct {
	InterestRate decimal.Decimal // percent per loan
}

// DefaultInterestRate applies when no platform config row exists.
var DefaultInterestRate = decimal.NewFromFloat(0.01)
