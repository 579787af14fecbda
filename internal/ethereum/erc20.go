package ethereum

import (
	"context"
	"math/big"
)

const (
	sigERC20BalanceOf = "balanceOf(address)"
	sigERC20Approve   = "approve(address,uint256)"
	sigERC20Transfer  = "transfer(address,uint256)"
)

// ERC20 reads ERC-20 contracts through an RPCClient. The lending pool
// balance check and the USDC deposit flow go through here.
type ERC20 struct {
	client RPCClient
}

// NewERC20 creates a new ERC-20 reader.
func NewERC20(client RPCClient) *ERC20 {
	return &ERC20{client: client}
}

// BalanceOf returns the raw token balance of holder in base units.
func (c *ERC20) BalanceOf(ctx context.Context, contract, holder string) (*big.Int, error) {
	data, err := EncodeCall(sigERC20BalanceOf, holder)
	if err != nil {
		return nil, readErr("balanceOf", contract, err)
	}
	out, err := c.client.CallContract(ctx, contract, data)
	if err != nil {
		return nil, readErr("balanceOf", contract, err)
	}
	v, err := DecodeUint256(out)
	if err != nil {
		return nil, readErr("balanceOf", contract, err)
	}
	return v, nil
}

// ERC20ApproveData builds calldata for approve(spender, amount).
func ERC20ApproveData(spender string, amount *big.Int) ([]byte, error) {
	return EncodeCall(sigERC20Approve, spender, amount)
}

// ERC20TransferData builds calldata for transfer(to, amount).
func ERC20TransferData(to string, amount *big.Int) ([]byte, error) {
	return EncodeCall(sigERC20Transfer, to, amount)
}
