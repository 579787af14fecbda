package ethereum

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTxReverted reports an on-chain revert of a mined transaction.
var ErrTxReverted = errors.New("transaction reverted")

// DefaultPollInterval is the receipt polling cadence without a head
// subscription.
const DefaultPollInterval = 2 * time.Second

// Confirmer waits for transactions to be mined. When a WSClient is
// set it checks the receipt on each new head; otherwise it polls on a
// fixed interval.
type Confirmer struct {
	client       RPCClient
	ws           *WSClient
	pollInterval time.Duration
}

// NewConfirmer creates a poll-based confirmer.
func NewConfirmer(client RPCClient) *Confirmer {
	return &Confirmer{client: client, pollInterval: DefaultPollInterval}
}

// WithHeads switches the confirmer to head-driven receipt checks.
func (c *Confirmer) WithHeads(ws *WSClient) *Confirmer {
	c.ws = ws
	return c
}

// WithPollInterval overrides the polling cadence.
func (c *Confirmer) WithPollInterval(d time.Duration) *Confirmer {
	c.pollInterval = d
	return c
}

// WaitMined blocks until the transaction is mined or ctx expires. A
// mined-but-reverted transaction returns ErrTxReverted alongside the
// receipt.
func (c *Confirmer) WaitMined(ctx context.Context, txHash string) (*Receipt, error) {
	if c.ws != nil {
		return c.waitOnHeads(ctx, txHash)
	}
	return c.waitPolling(ctx, txHash)
}

func (c *Confirmer) waitPolling(ctx context.Context, txHash string) (*Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.check(ctx, txHash)
		if err != nil || receipt != nil {
			return receipt, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Confirmer) waitOnHeads(ctx context.Context, txHash string) (*Receipt, error) {
	heads, err := c.ws.SubscribeNewHeads(ctx)
	if err != nil {
		// Head stream unavailable, degrade to polling
		return c.waitPolling(ctx, txHash)
	}
	defer c.ws.Unsubscribe(heads)

	// Check once up front; the tx may already be mined.
	receipt, err := c.check(ctx, txHash)
	if err != nil || receipt != nil {
		return receipt, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case _, ok := <-heads:
			if !ok {
				return c.waitPolling(ctx, txHash)
			}
			receipt, err := c.check(ctx, txHash)
			if err != nil || receipt != nil {
				return receipt, err
			}
		}
	}
}

// check fetches the receipt once. (nil, nil) means still pending.
func (c *Confirmer) check(ctx context.Context, txHash string) (*Receipt, error) {
	receipt, err := c.client.TransactionReceipt(ctx, txHash)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Transient RPC failure, keep waiting
		return nil, nil
	}
	if receipt == nil {
		return nil, nil
	}
	if receipt.Reverted() {
		return receipt, fmt.Errorf("%w: %s", ErrTxReverted, txHash)
	}
	return receipt, nil
}
