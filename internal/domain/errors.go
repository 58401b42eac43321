package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Error taxonomy shared by the saga components. Callers match with errors.Is.
var (
	// ErrValidation is returned for malformed input. No side effects occurred.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientFunds is returned when the ledger balance cannot cover a debit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientChainFunds is returned when the custody wallet cannot cover a transfer.
	ErrInsufficientChainFunds = errors.New("insufficient chain funds")

	// ErrExternalCall is returned when a swap, price or aggregator call fails or times out.
	ErrExternalCall = errors.New("external call failed")

	// ErrChain is returned when an on-chain transaction fails or is not confirmed in time.
	ErrChain = errors.New("chain transaction failed")

	// ErrReconciliationRequired marks an inconsistency between chain and ledger
	// that must be repaired by an operator.
	ErrReconciliationRequired = errors.New("reconciliation required")

	// ErrKey is returned when custody key material cannot be decrypted or used.
	ErrKey = errors.New("custody key error")
)

// Validationf returns an error wrapping ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ReconciliationError carries what an operator needs to repair a chain/ledger mismatch.
type ReconciliationError struct {
	Op           string    // operation that left the inconsistency ("buy", "withdrawal", ...)
	TxSignatures []string  // on-chain effects that already happened
	ReferenceID  uuid.UUID // investment / attempt / transaction id
	Err          error     // underlying cause
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("%s requires reconciliation (ref=%s, signatures=[%s]): %v",
		e.Op, e.ReferenceID, strings.Join(e.TxSignatures, ","), e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *ReconciliationError) Unwrap() []error {
	return []error{ErrReconciliationRequired, e.Err}
}

// PurchaseFailedError reports a buy that was aborted and refunded.
type PurchaseFailedError struct {
	FailedIndex int          // constituent position that failed
	Completed   []SwapResult // swaps that succeeded before the failure
	Refunded    bool
	Err         error
}

func (e *PurchaseFailedError) Error() string {
	return fmt.Sprintf("purchase failed at constituent %d after %d completed swaps (refunded=%t): %v",
		e.FailedIndex, len(e.Completed), e.Refunded, e.Err)
}

func (e *PurchaseFailedError) Unwrap() error {
	return e.Err
}
