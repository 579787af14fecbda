package loan

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"nftcred/internal/domain"
	"nftcred/internal/ethereum"
	"nftcred/internal/observability"
)

// Depositor funds the lending pool with stablecoin: an ERC-20 approve
// followed by depositUSDC on the loan contract, each confirmed before
// the next step.
type Depositor struct {
	signer       ethereum.Signer
	confirmer    *ethereum.Confirmer
	usdcContract string
	loanContract string
	logger       *zap.Logger
}

// DepositorOptions configures a Depositor.
type DepositorOptions struct {
	Signer       ethereum.Signer
	Confirmer    *ethereum.Confirmer
	USDCContract string
	LoanContract string
	Logger       *zap.Logger
}

// NewDepositor creates a pool depositor.
func NewDepositor(opts DepositorOptions) *Depositor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Depositor{
		signer:       opts.Signer,
		confirmer:    opts.Confirmer,
		usdcContract: domain.NormalizeAddress(opts.USDCContract),
		loanContract: domain.NormalizeAddress(opts.LoanContract),
		logger:       logger,
	}
}

// Deposit moves amount into the pool. Returns the depositUSDC tx hash.
func (d *Depositor) Deposit(ctx context.Context, amount decimal.Decimal) (string, error) {
	units, err := ToUnits(amount, USDCDecimals)
	if err != nil {
		return "", err
	}

	approveData, err := ethereum.ERC20ApproveData(d.loanContract, units)
	if err != nil {
		return "", fmt.Errorf("encode approve: %w", err)
	}
	approveHash, err := d.signer.Send(ctx, d.usdcContract, approveData, nil)
	if err != nil {
		return "", fmt.Errorf("approve: %w", err)
	}
	observability.RecordTx("usdc_approve")
	d.logger.Info("deposit approve submitted",
		zap.String("tx_hash", approveHash),
		zap.String("amount", amount.String()))
	if _, err := d.confirmer.WaitMined(ctx, approveHash); err != nil {
		return "", fmt.Errorf("approve confirmation: %w", err)
	}

	depositData, err := ethereum.EncodeCall("depositUSDC(uint256)", units)
	if err != nil {
		return "", fmt.Errorf("encode deposit: %w", err)
	}
	depositHash, err := d.signer.Send(ctx, d.loanContract, depositData, nil)
	if err != nil {
		return "", fmt.Errorf("deposit: %w", err)
	}
	observability.RecordTx("deposit_usdc")
	d.logger.Info("deposit submitted",
		zap.String("tx_hash", depositHash),
		zap.String("amount", amount.String()))
	if _, err := d.confirmer.WaitMined(ctx, depositHash); err != nil {
		return "", fmt.Errorf("deposit confirmation: %w", err)
	}

	return depositHash, nil
}
