package borrow

import (
	"fmt"
	"strings"

	"nftcred/internal/observability"
)

// TxErrorKind buckets transaction failures for the client. The wire
// formats of wallet and node errors vary, so classification is by
// message substring.
type TxErrorKind string

const (
	TxErrorRejected     TxErrorKind = "USER_REJECTED"
	TxErrorInsufficient TxErrorKind = "INSUFFICIENT_FUNDS"
	TxErrorOther        TxErrorKind = "TRANSACTION_FAILED"
)

// TxError is a transaction failure tagged with the state the flow was
// in when it failed.
type TxError struct {
	Kind  TxErrorKind
	State State
	Err   error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("%s in state %s: %v", e.Kind, e.State, e.Err)
}

func (e *TxError) Unwrap() error {
	return e.Err
}

// ClassifyTxError wraps a transaction error with its failure kind.
func ClassifyTxError(state State, err error) *TxError {
	msg := strings.ToLower(err.Error())
	kind := TxErrorOther
	switch {
	case strings.Contains(msg, "user rejected"),
		strings.Contains(msg, "user denied"),
		strings.Contains(msg, "rejected by user"):
		kind = TxErrorRejected
	case strings.Contains(msg, "insufficient funds"),
		strings.Contains(msg, "insufficient balance"):
		kind = TxErrorInsufficient
	}
	observability.RecordTxFailure(string(kind))
	return &TxError{Kind: kind, State: state, Err: err}
}
