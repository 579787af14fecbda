package ethereum

import (
	"context"
	"math/big"
)

// RPCClient defines the Ethereum JSON-RPC interface the application uses.
// All methods are chain reads except SendTransaction, which submits a
// transaction signed by a node-managed account.
type RPCClient interface {
	// CallContract executes a read-only contract call (eth_call) at the
	// latest block and returns the raw return data.
	CallContract(ctx context.Context, to string, data []byte) ([]byte, error)

	// GetLogs retrieves event logs matching the filter (eth_getLogs).
	GetLogs(ctx context.Context, filter LogFilter) ([]Log, error)

	// BlockNumber retrieves the latest block number (eth_blockNumber).
	BlockNumber(ctx context.Context) (uint64, error)

	// SendTransaction submits a transaction from a node-managed account
	// (eth_sendTransaction) and returns the transaction hash.
	SendTransaction(ctx context.Context, tx TxArgs) (string, error)

	// TransactionReceipt retrieves the receipt for a mined transaction
	// (eth_getTransactionReceipt). Returns nil if still pending.
	TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error)
}

// LogFilter selects event logs by contract address and topics.
// FromBlock/ToBlock accept hex quantities or the tags "earliest"/"latest".
type LogFilter struct {
	Address   string
	Topics    []string // positional; empty string matches any
	FromBlock string
	ToBlock   string
}

// Log is a single emitted event log.
type Log struct {
	Address     string
	Topics      []string
	Data        string // hex
	BlockNumber uint64
	TxHash      string
}

// TxArgs are the arguments for eth_sendTransaction.
type TxArgs struct {
	From  string
	To    string
	Data  []byte
	Value *big.Int // nil means zero
}

// Receipt is a mined transaction receipt. Status 1 means success,
// 0 means the transaction reverted.
type Receipt struct {
	TxHash      string
	Status      uint64
	BlockNumber uint64
	GasUsed     uint64
}

// Reverted reports whether the transaction was mined but reverted.
func (r *Receipt) Reverted() bool {
	return r != nil && r.Status == 0
}
