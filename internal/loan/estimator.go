package loan

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"nftcred/internal/domain"
	"nftcred/internal/ethereum"
	"nftcred/internal/storage"
)

// moneyPlaces is the rounding precision of all quoted amounts.
const moneyPlaces = 4

// ErrAmountExceedsEstimate is returned when a requested amount is above
// the quoted loan amount.
var ErrAmountExceedsEstimate = errors.New("requested amount exceeds estimate")

// ErrAmountExceedsPool is returned when a requested amount is above the
// current pool balance.
var ErrAmountExceedsPool = errors.New("requested amount exceeds pool balance")

// Estimator produces loan quotes from credential-type reference data
// and the platform interest rate.
type Estimator struct {
	collections     storage.CollectionStore
	credentialTypes storage.CredentialTypeStore
	platformConfig  storage.PlatformConfigStore
	erc20           *ethereum.ERC20
	usdcContract    string
	loanContract    string
}

// EstimatorOptions configures an Estimator.
type EstimatorOptions struct {
	Collections     storage.CollectionStore
	CredentialTypes storage.CredentialTypeStore
	PlatformConfig  storage.PlatformConfigStore
	Client          ethereum.RPCClient
	// USDCContract is the stablecoin token contract.
	USDCContract string
	// LoanContract is the lending pool holding the stablecoin.
	LoanContract string
}

// NewEstimator creates a loan estimator.
func NewEstimator(opts EstimatorOptions) *Estimator {
	return &Estimator{
		collections:     opts.Collections,
		credentialTypes: opts.CredentialTypes,
		platformConfig:  opts.PlatformConfig,
		erc20:           ethereum.NewERC20(opts.Client),
		usdcContract:    domain.NormalizeAddress(opts.USDCContract),
		loanContract:    domain.NormalizeAddress(opts.LoanContract),
	}
}

// EstimateForCollection resolves the registered collection behind a
// contract address and quotes its credential type. Unregistered
// contracts surface storage.ErrNotFound.
func (e *Estimator) EstimateForCollection(ctx context.Context, contractAddress string, duration int) (*domain.LoanEstimate, error) {
	coll, err := e.collections.GetByAddress(ctx, domain.NormalizeAddress(contractAddress))
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", contractAddress, err)
	}
	return e.Estimate(ctx, coll.CredentialTypeID, duration)
}

// Estimate computes the quote for one credential type. Duration is
// echoed into the estimate but does not enter the formula.
func (e *Estimator) Estimate(ctx context.Context, credentialTypeID string, duration int) (*domain.LoanEstimate, error) {
	ct, err := e.credentialTypes.GetByID(ctx, credentialTypeID)
	if err != nil {
		return nil, fmt.Errorf("credential type %s: %w", credentialTypeID, err)
	}

	rate := domain.DefaultInterestRate
	if cfg, err := e.platformConfig.Get(ctx); err == nil {
		rate = cfg.InterestRate
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("platform config: %w", err)
	}

	return Quote(ct, rate, duration), nil
}

// Quote computes an estimate from already-loaded reference data.
func Quote(ct *domain.CredentialType, rate decimal.Decimal, duration int) *domain.LoanEstimate {
	hundred := decimal.NewFromInt(100)
	loanAmount := ct.BasePrice.Mul(decimal.NewFromInt(int64(ct.LTV))).Div(hundred).Round(moneyPlaces)
	interest := loanAmount.Mul(rate).Div(hundred).Round(moneyPlaces)

	return &domain.LoanEstimate{
		CredentialType: ct.Name,
		BasePrice:      ct.BasePrice,
		LTV:            ct.LTV,
		LoanAmount:     loanAmount,
		InterestRate:   rate,
		Interest:       interest,
		TotalLoan:      loanAmount.Add(interest).Round(moneyPlaces),
		Duration:       duration,
	}
}

// PoolBalance reads the lending pool's stablecoin balance.
func (e *Estimator) PoolBalance(ctx context.Context) (decimal.Decimal, error) {
	units, err := e.erc20.BalanceOf(ctx, e.usdcContract, e.loanContract)
	if err != nil {
		return decimal.Zero, err
	}
	return FromUnits(units, USDCDecimals), nil
}

// ClampToPool limits a quoted loan amount to what the pool can fund.
func ClampToPool(loanAmount, poolBalance decimal.Decimal) decimal.Decimal {
	if poolBalance.LessThan(loanAmount) {
		return poolBalance
	}
	return loanAmount
}

// ValidateRequested checks a client-requested amount against the
// server-side quote and the current pool balance. Client numbers are
// never trusted as-is.
func ValidateRequested(requested decimal.Decimal, estimate *domain.LoanEstimate, poolBalance decimal.Decimal) error {
	if requested.Sign() <= 0 {
		return fmt.Errorf("requested amount %s is not positive", requested)
	}
	if requested.GreaterThan(estimate.LoanAmount) {
		return fmt.Errorf("%w: %s > %s", ErrAmountExceedsEstimate, requested, estimate.LoanAmount)
	}
	if requested.GreaterThan(poolBalance) {
		return fmt.Errorf("%w: %s > %s", ErrAmountExceedsPool, requested, poolBalance)
	}
	return nil
}
