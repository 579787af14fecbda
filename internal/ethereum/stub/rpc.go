package stub

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"nftcred/internal/ethereum"
)

// ErrNoResponse is returned when no call response has been scripted.
var ErrNoResponse = errors.New("no scripted response")

// RPCClient implements ethereum.RPCClient for testing. Call responses
// are keyed by (contract, calldata); transactions return scripted
// hashes or errors in submission order.
type RPCClient struct {
	mu sync.Mutex

	calls    map[string][]byte
	callErrs map[string]error
	logs     map[string][]ethereum.Log
	receipts map[string]*ethereum.Receipt
	block    uint64

	// SentTxs records every SendTransaction call in order.
	SentTxs []ethereum.TxArgs
	// sendResults are consumed one per SendTransaction call.
	sendResults []sendResult
}

type sendResult struct {
	hash string
	err  error
}

// NewRPCClient creates an empty stub.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		calls:    make(map[string][]byte),
		callErrs: make(map[string]error),
		logs:     make(map[string][]ethereum.Log),
		receipts: make(map[string]*ethereum.Receipt),
	}
}

var _ ethereum.RPCClient = (*RPCClient)(nil)

func callKey(to string, data []byte) string {
	return strings.ToLower(to) + "/" + ethereum.BytesToHex(data)
}

// StubCall scripts the return data of an eth_call.
func (c *RPCClient) StubCall(to string, data []byte, result []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[callKey(to, data)] = result
}

// StubCallError scripts an eth_call failure.
func (c *RPCClient) StubCallError(to string, data []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callErrs[callKey(to, data)] = err
}

// StubLogs scripts the logs returned for an address filter.
func (c *RPCClient) StubLogs(address string, logs []ethereum.Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs[strings.ToLower(address)] = logs
}

// StubReceipt scripts the receipt of a transaction hash.
func (c *RPCClient) StubReceipt(txHash string, receipt *ethereum.Receipt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receipts[txHash] = receipt
}

// StubSend queues the next SendTransaction result.
func (c *RPCClient) StubSend(hash string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendResults = append(c.sendResults, sendResult{hash: hash, err: err})
}

// SetBlockNumber sets the current head number.
func (c *RPCClient) SetBlockNumber(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.block = n
}

func (c *RPCClient) CallContract(_ context.Context, to string, data []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := callKey(to, data)
	if err, ok := c.callErrs[key]; ok {
		return nil, err
	}
	if result, ok := c.calls[key]; ok {
		return result, nil
	}
	return nil, fmt.Errorf("%w for %s", ErrNoResponse, key)
}

func (c *RPCClient) GetLogs(_ context.Context, filter ethereum.LogFilter) ([]ethereum.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logs[strings.ToLower(filter.Address)], nil
}

func (c *RPCClient) BlockNumber(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block, nil
}

func (c *RPCClient) SendTransaction(_ context.Context, args ethereum.TxArgs) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.SentTxs = append(c.SentTxs, args)
	if len(c.sendResults) == 0 {
		return "", fmt.Errorf("%w for transaction to %s", ErrNoResponse, args.To)
	}
	r := c.sendResults[0]
	c.sendResults = c.sendResults[1:]
	return r.hash, r.err
}

func (c *RPCClient) TransactionReceipt(_ context.Context, txHash string) (*ethereum.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receipts[txHash], nil
}

// StubUint scripts a call returning a single uint256.
func (c *RPCClient) StubUint(to string, data []byte, v *big.Int) {
	word := make([]byte, 32)
	v.FillBytes(word)
	c.StubCall(to, data, word)
}

// StubBool scripts a call returning a single bool.
func (c *RPCClient) StubBool(to string, data []byte, v bool) {
	word := make([]byte, 32)
	if v {
		word[31] = 1
	}
	c.StubCall(to, data, word)
}

// StubString scripts a call returning a single dynamic string.
func (c *RPCClient) StubString(to string, data []byte, s string) {
	payload := []byte(s)
	out := make([]byte, 64+len(payload)+padTo32(len(payload)))
	out[31] = 0x20
	big.NewInt(int64(len(payload))).FillBytes(out[32:64])
	copy(out[64:], payload)
	c.StubCall(to, data, out)
}

func padTo32(n int) int {
	if n%32 == 0 {
		return 0
	}
	return 32 - n%32
}
