package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TxKind is the ledger entry kind.
type TxKind string

const (
	TxKindDeposit    TxKind = "deposit"
	TxKindWithdrawal TxKind = "withdrawal"
	TxKindBuy        TxKind = "buy"
	TxKindSell       TxKind = "sell"
	TxKindRefund     TxKind = "refund"
	TxKindTokenSwap  TxKind = "token_swap"
	TxKindFeeClaim   TxKind = "fee_claim"
)

// IsValid checks if the kind is a known ledger entry kind.
func (k TxKind) IsValid() bool {
	switch k {
	case TxKindDeposit, TxKindWithdrawal, TxKindBuy, TxKindSell,
		TxKindRefund, TxKindTokenSwap, TxKindFeeClaim:
		return true
	}
	return false
}

// TxStatus is the ledger entry status.
type TxStatus string

const (
	TxStatusPending               TxStatus = "pending"
	TxStatusCompleted             TxStatus = "completed"
	TxStatusFailed                TxStatus = "failed"
	TxStatusPendingReconciliation TxStatus = "pending_reconciliation"
)

// IsValid checks if the status is a known ledger entry status.
func (s TxStatus) IsValid() bool {
	switch s {
	case TxStatusPending, TxStatusCompleted, TxStatusFailed, TxStatusPendingReconciliation:
		return true
	}
	return false
}

// Transaction is an append-only ledger entry.
// Corresponds to transactions table in PostgreSQL. Only Status, ResolvedAt and
// ResolutionNote change after insert.
type Transaction struct {
	ID             uuid.UUID
	UserWallet     string
	Kind           TxKind
	Amount         decimal.Decimal
	Fee            decimal.Decimal
	Status         TxStatus
	TxSignature    string    // empty when the entry has no single chain signature
	ReferenceID    uuid.UUID // uuid.Nil when unset
	Metadata       map[string]any
	FromAddress    string
	ToAddress      string
	Network        Network
	ResolvedAt     *time.Time
	ResolutionNote string
	CreatedAt      time.Time
}
