package api

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"nftcred/internal/domain"
	"nftcred/internal/ethereum"
	"nftcred/internal/observability"
)

var errInvalidTokenID = errors.New("invalid token id")

// Locker submits lockNFT transactions through the server-side signer
// and waits for the receipt.
type Locker struct {
	signer       ethereum.Signer
	confirmer    *ethereum.Confirmer
	loanContract string
	logger       *zap.Logger
}

// NewLocker creates a collateral locker.
func NewLocker(signer ethereum.Signer, confirmer *ethereum.Confirmer, loanContract string, logger *zap.Logger) *Locker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locker{
		signer:       signer,
		confirmer:    confirmer,
		loanContract: domain.NormalizeAddress(loanContract),
		logger:       logger,
	}
}

// Lock submits lockNFT(collection, tokenId) and returns the tx hash
// once mined.
func (l *Locker) Lock(ctx context.Context, contractAddress, tokenID string) (string, error) {
	id, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return "", fmt.Errorf("%w: %q", errInvalidTokenID, tokenID)
	}

	data, err := ethereum.EncodeCall("lockNFT(address,uint256)",
		domain.NormalizeAddress(contractAddress), id)
	if err != nil {
		return "", fmt.Errorf("encode lockNFT: %w", err)
	}
	hash, err := l.signer.Send(ctx, l.loanContract, data, nil)
	if err != nil {
		return "", fmt.Errorf("lockNFT: %w", err)
	}
	observability.RecordTx("lock_nft")
	l.logger.Info("lock submitted",
		zap.String("tx_hash", hash),
		zap.String("contract", contractAddress),
		zap.String("token_id", tokenID))
	if _, err := l.confirmer.WaitMined(ctx, hash); err != nil {
		return "", fmt.Errorf("lockNFT confirmation: %w", err)
	}
	return hash, nil
}
