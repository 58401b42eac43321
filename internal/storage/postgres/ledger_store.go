package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"memeetf/internal/domain"
	"memeetf/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL.
// The conditional UPDATE in debit guards every balance decrement; LockWallet
// adds a session advisory lock for flows that must hold a wallet across chain calls.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

// CreateUser adds a user. Returns ErrDuplicateKey if the wallet exists.
func (s *LedgerStore) CreateUser(ctx context.Context, u *domain.User) error {
	if u == nil || u.WalletAddress == "" {
		return storage.ErrInvalidInput
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (wallet_address, balance, x_handle) VALUES ($1, $2::numeric, $3)
	`, u.WalletAddress, u.Balance.String(), u.XHandle)
	if err != nil {
		return mapError("insert user", err)
	}
	return nil
}

// GetUser retrieves a user. Returns ErrNotFound if not exists.
func (s *LedgerStore) GetUser(ctx context.Context, wallet string) (*domain.User, error) {
	var u domain.User
	var balance string
	err := s.pool.QueryRow(ctx, `
		SELECT wallet_address, balance::text, x_handle, created_at, updated_at
		FROM users WHERE wallet_address = $1
	`, wallet).Scan(&u.WalletAddress, &balance, &u.XHandle, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u.Balance, err = parseDecimal("balance", balance); err != nil {
		return nil, err
	}
	return &u, nil
}

// Debit subtracts amount iff balance >= amount.
func (s *LedgerStore) Debit(ctx context.Context, wallet string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, storage.ErrInvalidInput
	}
	return debit(ctx, s.pool, wallet, amount)
}

func debit(ctx context.Context, q dbtx, wallet string, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance string
	err := q.QueryRow(ctx, `
		UPDATE users SET balance = balance - $2::numeric, updated_at = now()
		WHERE wallet_address = $1 AND balance >= $2::numeric
		RETURNING balance::text
	`, wallet, amount.String()).Scan(&balance)
	if err == nil {
		return parseDecimal("balance", balance)
	}
	if !isNotFoundError(err) {
		return decimal.Zero, fmt.Errorf("debit: %w", err)
	}

	// Zero rows: unknown wallet or insufficient balance
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE wallet_address = $1)`, wallet).Scan(&exists); err != nil {
		return decimal.Zero, fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return decimal.Zero, storage.ErrNotFound
	}
	return decimal.Zero, storage.ErrInsufficientFunds
}

func credit(ctx context.Context, q dbtx, wallet string, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance string
	err := q.QueryRow(ctx, `
		UPDATE users SET balance = balance + $2::numeric, updated_at = now()
		WHERE wallet_address = $1
		RETURNING balance::text
	`, wallet, amount.String()).Scan(&balance)
	if err != nil {
		if isNotFoundError(err) {
			return decimal.Zero, storage.ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("credit: %w", err)
	}
	return parseDecimal("balance", balance)
}

// Refund credits the reserved amount back and records the aborted attempt.
func (s *LedgerStore) Refund(ctx context.Context, r *domain.Refund, entry *domain.Transaction, swaps []*domain.SwapRecord) (decimal.Decimal, error) {
	if r == nil || entry == nil || !r.Amount.IsPositive() {
		return decimal.Zero, storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	balance, err := credit(ctx, tx, r.Wallet, r.Amount)
	if err != nil {
		return decimal.Zero, err
	}
	if err := insertTransaction(ctx, tx, entry); err != nil {
		return decimal.Zero, err
	}
	if err := insertSwapRecords(ctx, tx, swaps); err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("commit refund: %w", err)
	}
	return balance, nil
}

// CreditDeposit credits a confirmed deposit once per signature.
// The entry is inserted first so a duplicate signature aborts before the credit.
func (s *LedgerStore) CreditDeposit(ctx context.Context, entry *domain.Transaction) (decimal.Decimal, error) {
	if entry == nil || entry.Kind != domain.TxKindDeposit || entry.TxSignature == "" || !entry.Amount.IsPositive() {
		return decimal.Zero, storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertTransaction(ctx, tx, entry); err != nil {
		return decimal.Zero, err
	}
	balance, err := credit(ctx, tx, entry.UserWallet, entry.Amount)
	if err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("commit deposit: %w", err)
	}
	return balance, nil
}

// CommitWithdrawal debits a confirmed withdrawal and appends its entry.
func (s *LedgerStore) CommitWithdrawal(ctx context.Context, entry *domain.Transaction) (decimal.Decimal, error) {
	if entry == nil || entry.Kind != domain.TxKindWithdrawal || !entry.Amount.IsPositive() {
		return decimal.Zero, storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	balance, err := debit(ctx, tx, entry.UserWallet, entry.Amount)
	if err != nil {
		return decimal.Zero, err
	}
	if err := insertTransaction(ctx, tx, entry); err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("commit withdrawal: %w", err)
	}
	return balance, nil
}

// LockWallet takes a session-level advisory lock keyed by the wallet on a
// dedicated connection, held until unlock.
func (s *LedgerStore) LockWallet(ctx context.Context, wallet string) (func(), error) {
	if wallet == "" {
		return nil, storage.ErrInvalidInput
	}
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	key := "wallet:" + wallet
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtextextended($1, 0))`, key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("lock wallet: %w", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			unlockCtx := context.WithoutCancel(ctx)
			if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key); err != nil {
				// closing the session drops every advisory lock it holds
				_ = conn.Conn().Close(unlockCtx)
			}
			conn.Release()
		})
	}, nil
}
