package investment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"memeetf/internal/domain"
	"memeetf/internal/storage"
)

// Reserver debits a purchase amount from the ledger before any chain work.
type Reserver struct {
	ledger storage.LedgerStore
}

// NewReserver creates a Reserver over ledger.
func NewReserver(ledger storage.LedgerStore) *Reserver {
	return &Reserver{ledger: ledger}
}

// Reserve performs the conditional debit and returns the new balance.
// Concurrent reservations against one wallet never drive it negative: the
// store applies the debit only while balance >= amount. The debit waits for
// an in-flight withdrawal of the same wallet to settle.
func (r *Reserver) Reserve(ctx context.Context, wallet string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, domain.Validationf("amount must be positive, got %s", amount)
	}

	unlock, err := r.ledger.LockWallet(ctx, wallet)
	if err != nil {
		return decimal.Zero, fmt.Errorf("lock wallet %s: %w", wallet, err)
	}
	balance, err := r.ledger.Debit(ctx, wallet, amount)
	unlock()
	switch {
	case err == nil:
		return balance, nil
	case errors.Is(err, storage.ErrNotFound):
		return decimal.Zero, domain.Validationf("unknown user %s", wallet)
	case errors.Is(err, storage.ErrInsufficientFunds):
		return decimal.Zero, fmt.Errorf("reserve %s for %s: %w", amount, wallet, domain.ErrInsufficientFunds)
	default:
		return decimal.Zero, fmt.Errorf("reserve %s for %s: %w", amount, wallet, err)
	}
}
