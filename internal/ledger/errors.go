package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientFunds means the authority declined a debit.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	// ErrLedgerTimeout means the authority did not confirm within the configured bound.
	ErrLedgerTimeout = errors.New("ledger: timed out waiting for authority")
	// ErrAlreadyCredited is returned when a credit key has already been issued.
	ErrAlreadyCredited = errors.New("ledger: credit already issued")
	// ErrInvalidAmount is returned for non-positive debit or credit amounts.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
	// ErrCreditRejected means the authority answered a credit with a refusal.
	ErrCreditRejected = errors.New("ledger: credit rejected by authority")
)

// PayoutLostError reports a credit that could not be confirmed after every retry.
// A lost payout is a correctness violation, never a user error.
type PayoutLostError struct {
	Tx       Transaction
	Attempts int
	Err      error
}

func (e *PayoutLostError) Error() string {
	return fmt.Sprintf("ledger: payout lost: account=%s amount=%d key=%s attempts=%d: %v",
		e.Tx.Account, e.Tx.Delta, e.Tx.Key, e.Attempts, e.Err)
}

func (e *PayoutLostError) Unwrap() error { return e.Err }
