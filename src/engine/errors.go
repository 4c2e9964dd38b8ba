package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadySettled is returned to settlement callers that lost the claim. Callers treat it as a no-op.
	ErrAlreadySettled         = errors.New("order already settled or being settled")
	ErrWalletResolutionFailed = errors.New("holding wallet resolution failed")
	ErrLedgerSubmissionFailed = errors.New("ledger submission failed")
	// ErrNotSubmitted means a queued ledger job ended before it ran, so nothing reached the ledger.
	ErrNotSubmitted           = errors.New("ledger job not submitted")

	ErrOrderNotFound       = errors.New("order not found")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// LedgerSubmissionError carries the ledger's structured reason for a rejected submission.
type LedgerSubmissionError struct {
	OrderID string
	Reason  string
	Err     error
}

func (e *LedgerSubmissionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("ledger submission for order %s failed: %v", e.OrderID, e.Err)
	}
	return fmt.Sprintf("ledger submission for order %s failed (%s): %v", e.OrderID, e.Reason, e.Err)
}

func (e *LedgerSubmissionError) Is(target error) bool {
	return target == ErrLedgerSubmissionFailed
}

func (e *LedgerSubmissionError) Unwrap() error {
	return e.Err
}
