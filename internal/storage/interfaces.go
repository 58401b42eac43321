package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"memeetf/internal/domain"
)

// LedgerStore provides the balance primitives: atomic conditional debit and additive credit.
type LedgerStore interface {
	// CreateUser adds a user with the given balance. Returns ErrDuplicateKey if the wallet exists.
	CreateUser(ctx context.Context, u *domain.User) error

	// GetUser retrieves a user by wallet. Returns ErrNotFound if not exists.
	GetUser(ctx context.Context, wallet string) (*domain.User, error)

	// Debit subtracts amount iff balance >= amount and returns the new balance.
	// Returns ErrNotFound for an unknown wallet and ErrInsufficientFunds otherwise.
	Debit(ctx context.Context, wallet string, amount decimal.Decimal) (decimal.Decimal, error)

	// Refund credits r.Amount, appends the refund entry and the swap records of the
	// completed swaps in one transaction. Returns the new balance.
	Refund(ctx context.Context, r *domain.Refund, entry *domain.Transaction, swaps []*domain.SwapRecord) (decimal.Decimal, error)

	// CreditDeposit credits entry.Amount and appends the deposit entry in one transaction.
	// Returns ErrDuplicateKey if a deposit with the same signature was already credited.
	CreditDeposit(ctx context.Context, entry *domain.Transaction) (decimal.Decimal, error)

	// CommitWithdrawal debits entry.Amount (conditional) and appends the withdrawal entry
	// in one transaction.
	CommitWithdrawal(ctx context.Context, entry *domain.Transaction) (decimal.Decimal, error)

	// LockWallet blocks until the caller holds the wallet's exclusive balance lock or
	// ctx ends. Holders may span chain calls; unlock must be called exactly once.
	LockWallet(ctx context.Context, wallet string) (unlock func(), err error)
}

// TransactionStore provides access to the transactions ledger/audit table.
type TransactionStore interface {
	// Insert appends an entry. Returns ErrDuplicateKey if (kind, tx_signature) exists.
	Insert(ctx context.Context, t *domain.Transaction) error

	// GetByID retrieves an entry. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)

	// GetBySignature retrieves the entry of a kind for a chain signature. Returns ErrNotFound if not exists.
	GetBySignature(ctx context.Context, kind domain.TxKind, signature string) (*domain.Transaction, error)

	// ListByStatus retrieves entries with status, ordered by created_at ASC.
	ListByStatus(ctx context.Context, status domain.TxStatus) ([]*domain.Transaction, error)

	// ListByWallet retrieves a user's entries, newest first.
	ListByWallet(ctx context.Context, wallet string) ([]*domain.Transaction, error)

	// Resolve moves a pending_reconciliation entry to status with an operator note.
	// Returns ErrNotFound if no unresolved entry has the id.
	Resolve(ctx context.Context, id uuid.UUID, status domain.TxStatus, note string) error
}

// ETFStore provides access to etfs storage.
type ETFStore interface {
	// Insert adds a new ETF. Returns ErrDuplicateKey if (network, contract_address) exists.
	Insert(ctx context.Context, e *domain.ETF) error

	// GetByID retrieves an ETF. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ETF, error)

	// GetByContractAddress retrieves an ETF by its PDA on network. Returns ErrNotFound if not exists.
	GetByContractAddress(ctx context.Context, network domain.Network, address string) (*domain.ETF, error)

	// ListByCreator retrieves the ETFs listed by a wallet on network, ordered by created_at ASC.
	ListByCreator(ctx context.Context, network domain.Network, creator string) ([]*domain.ETF, error)
}

// InvestmentStore provides access to investments and their swap records.
type InvestmentStore interface {
	// Settle writes investment, swap records, ETF stats, fee record and buy entry atomically.
	Settle(ctx context.Context, s *domain.Settlement) error

	// GetByID retrieves an investment with its swap records. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Investment, error)

	// GetSwapsByAttempt retrieves swap records of an attempt ordered by position.
	GetSwapsByAttempt(ctx context.Context, attemptID uuid.UUID) ([]*domain.SwapRecord, error)

	// ListByWallet retrieves a user's investments, newest first (without swaps).
	ListByWallet(ctx context.Context, wallet string) ([]*domain.Investment, error)

	// MarkSold flips sold false -> true. Returns ErrConflict if already sold, ErrNotFound if missing.
	MarkSold(ctx context.Context, id uuid.UUID) error

	// RecordSale credits proceeds and writes the sell entry, swap records, fee record and
	// realized P&L atomically. Returns the new balance.
	RecordSale(ctx context.Context, s *domain.Sale) (decimal.Decimal, error)
}

// FeeStore provides access to fee_records storage.
// A payout is reserved under a claim id before the chain transfer; paid_out only
// flips when the transfer is stamped.
type FeeStore interface {
	// ReserveUnpaid tags every unpaid, unreserved fee record of the lister on network
	// with claimID and returns them.
	ReserveUnpaid(ctx context.Context, network domain.Network, lister string, claimID uuid.UUID) ([]*domain.FeeRecord, error)

	// Release clears the reservation of claimID after a failed payout.
	Release(ctx context.Context, claimID uuid.UUID) error

	// StampClaim marks the records of claimID paid_out with claimTx and appends the
	// fee_claim entry in one transaction.
	StampClaim(ctx context.Context, claimID uuid.UUID, claimTx string, entry *domain.Transaction) error

	// ListByETF retrieves fee records of an ETF ordered by created_at ASC.
	ListByETF(ctx context.Context, etfID uuid.UUID) ([]*domain.FeeRecord, error)
}

// SwapFillSink receives settled swap fills for analytics. Writes are best-effort.
type SwapFillSink interface {
	// InsertBulk adds fills. Fails entire batch on any duplicate signature.
	InsertBulk(ctx context.Context, fills []*domain.SwapFill) error

	// GetByETF retrieves fills of an ETF ordered by filled_at ASC.
	GetByETF(ctx context.Context, etfID uuid.UUID) ([]*domain.SwapFill, error)
}
