package ethereum

import (
	"context"
	"fmt"
	"math/big"
)

// Signer submits transactions on behalf of an account. The node holds
// the key material; this process never sees a private key.
type Signer interface {
	// Address returns the account the signer submits from.
	Address() string
	// Send submits a transaction and returns its hash.
	Send(ctx context.Context, to string, data []byte, value *big.Int) (string, error)
}

// NodeSigner submits transactions through eth_sendTransaction against
// a node that manages the account.
type NodeSigner struct {
	client RPCClient
	from   string
}

// NewNodeSigner creates a signer for the given unlocked node account.
func NewNodeSigner(client RPCClient, from string) *NodeSigner {
	return &NodeSigner{client: client, from: from}
}

var _ Signer = (*NodeSigner)(nil)

func (s *NodeSigner) Address() string {
	return s.from
}

func (s *NodeSigner) Send(ctx context.Context, to string, data []byte, value *big.Int) (string, error) {
	hash, err := s.client.SendTransaction(ctx, TxArgs{
		From:  s.from,
		To:    to,
		Data:  data,
		Value: value,
	})
	if err != nil {
		return "", fmt.Errorf("send transaction to %s: %w", to, err)
	}
	return hash, nil
}
