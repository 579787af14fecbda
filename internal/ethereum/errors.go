package ethereum

import "fmt"

// ChainReadError wraps a failed chain read with the operation and target
// contract. Callers decide whether to retry; the reader itself only retries
// transport-level failures inside HTTPClient.
type ChainReadError struct {
	Op      string // e.g. "balanceOf"
	Address string // contract address
	Err     error
}

func (e *ChainReadError) Error() string {
	return fmt.Sprintf("chain read %s on %s: %v", e.Op, e.Address, e.Err)
}

func (e *ChainReadError) Unwrap() error {
	return e.Err
}

func readErr(op, address string, err error) error {
	return &ChainReadError{Op: op, Address: address, Err: err}
}
