package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanEstimate is a deterministic loan quote. Derived, never persisted;
// recomputed whenever duration or collection changes.
//
// Invariants (all rounded to 4 fractional digits):
//
//	LoanAmount = BasePrice * LTV / 100
//	Interest   = LoanAmount * InterestRate / 100
//	TotalLoan  = LoanAmount + Interest
type LoanEstimate struct {
	CredentialType string
	BasePrice      decimal.Decimal
	LTV            int
	LoanAmount     decimal.Decimal
	InterestRate   decimal.Decimal
	Interest       decimal.Decimal
	TotalLoan      decimal.Decimal
	Duration       int // days; echoed back, does not enter the formula
}

// LoanStatus is the lifecycle state of a persisted loan record.
type LoanStatus string

const (
	LoanStatusPending LoanStatus = "PENDING"
	LoanStatusActive  LoanStatus = "ACTIVE"
	LoanStatusRepaid  LoanStatus = "REPAID"
	LoanStatusDefault LoanStatus = "DEFAULTED"
)

// Loan is the off-chain record of an on-chain loan.
// Corresponds to loans table in PostgreSQL.
type Loan struct {
	ID              string
	Borrower        string // wallet address, lowercase hex
	ContractAddress string // collateral NFT contract
	TokenID         string
	Amount          decimal.Decimal // stablecoin units (decimal form)
	Duration        int             // days
	LTV             int
	Status          LoanStatus
	TxHash          string // createLoan transaction
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PoolSnapshot is a point-in-time reading of the collateral pool balance.
// Analytics data, stored in ClickHouse.
type PoolSnapshot struct {
	TimestampMs int64
	Balance     float64 // stablecoin units
	BlockNumber uint64
}

// LoanEvent records a loan lifecycle transition for analytics.
type LoanEvent struct {
	LoanID      string
	Event       string // e.g. "created", "status:ACTIVE"
	Borrower    string
	Amount      float64
	TimestampMs int64
}
