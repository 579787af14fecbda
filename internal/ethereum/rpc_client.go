package ethereum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"nftcred/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements RPCClient using HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts for transport failures.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new Ethereum JSON-RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ RPCClient = (*HTTPClient)(nil)

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
// RPC-level errors (including reverts) are returned without retry;
// only transport failures and rate limits are retried.
func (c *HTTPClient) call(ctx context.Context, method string, params []any, result any) error {
	start := time.Now()
	defer func() {
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
	}()

	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors (revert, bad params) are not retried
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// CallContract executes eth_call against the latest block.
func (c *HTTPClient) CallContract(ctx context.Context, to string, data []byte) ([]byte, error) {
	params := []any{
		map[string]any{
			"to":   to,
			"data": BytesToHex(data),
		},
		"latest",
	}

	var result string
	if err := c.call(ctx, "eth_call", params, &result); err != nil {
		return nil, err
	}

	out, err := HexToBytes(result)
	if err != nil {
		return nil, fmt.Errorf("decode call result: %w", err)
	}
	return out, nil
}

// GetLogs executes eth_getLogs with the given filter.
func (c *HTTPClient) GetLogs(ctx context.Context, filter LogFilter) ([]Log, error) {
	f := map[string]any{
		"address": filter.Address,
	}
	if filter.FromBlock != "" {
		f["fromBlock"] = filter.FromBlock
	}
	if filter.ToBlock != "" {
		f["toBlock"] = filter.ToBlock
	}
	if len(filter.Topics) > 0 {
		topics := make([]any, len(filter.Topics))
		for i, t := range filter.Topics {
			if t == "" {
				topics[i] = nil
			} else {
				topics[i] = t
			}
		}
		f["topics"] = topics
	}

	var result []getLogsResult
	if err := c.call(ctx, "eth_getLogs", []any{f}, &result); err != nil {
		return nil, err
	}

	logs := make([]Log, 0, len(result))
	for _, r := range result {
		blockNumber, err := HexToUint64(r.BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("decode log block number: %w", err)
		}
		logs = append(logs, Log{
			Address:     r.Address,
			Topics:      r.Topics,
			Data:        r.Data,
			BlockNumber: blockNumber,
			TxHash:      r.TransactionHash,
		})
	}

	return logs, nil
}

// getLogsResult is the raw RPC response item for eth_getLogs.
type getLogsResult struct {
	Address         string   `json:"address"`
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	BlockNumber     string   `json:"blockNumber"`
	TransactionHash string   `json:"transactionHash"`
}

// BlockNumber retrieves the latest block number.
func (c *HTTPClient) BlockNumber(ctx context.Context) (uint64, error) {
	var result string
	if err := c.call(ctx, "eth_blockNumber", nil, &result); err != nil {
		return 0, err
	}
	return HexToUint64(result)
}

// SendTransaction submits a transaction from a node-managed account.
func (c *HTTPClient) SendTransaction(ctx context.Context, tx TxArgs) (string, error) {
	arg := map[string]any{
		"from": tx.From,
		"to":   tx.To,
	}
	if len(tx.Data) > 0 {
		arg["data"] = BytesToHex(tx.Data)
	}
	if tx.Value != nil && tx.Value.Sign() > 0 {
		arg["value"] = "0x" + tx.Value.Text(16)
	}

	var hash string
	if err := c.call(ctx, "eth_sendTransaction", []any{arg}, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

// TransactionReceipt retrieves a mined transaction's receipt.
// Returns nil if the transaction is still pending.
func (c *HTTPClient) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	var result *receiptResult
	if err := c.call(ctx, "eth_getTransactionReceipt", []any{txHash}, &result); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	status, err := HexToUint64(result.Status)
	if err != nil {
		return nil, fmt.Errorf("decode receipt status: %w", err)
	}
	blockNumber, err := HexToUint64(result.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("decode receipt block number: %w", err)
	}
	gasUsed, err := HexToUint64(result.GasUsed)
	if err != nil {
		return nil, fmt.Errorf("decode receipt gas used: %w", err)
	}

	return &Receipt{
		TxHash:      result.TransactionHash,
		Status:      status,
		BlockNumber: blockNumber,
		GasUsed:     gasUsed,
	}, nil
}

// receiptResult is the raw RPC response for eth_getTransactionReceipt.
type receiptResult struct {
	TransactionHash string `json:"transactionHash"`
	Status          string `json:"status"`
	BlockNumber     string `json:"blockNumber"`
	GasUsed         string `json:"gasUsed"`
}
