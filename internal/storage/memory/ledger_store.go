package memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"memeetf/internal/domain"
	"memeetf/internal/storage"
)

// LedgerStore is an in-memory implementation of storage.LedgerStore.
type LedgerStore struct {
	db *DB
}

// NewLedgerStore creates a ledger store over db.
func NewLedgerStore(db *DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

// CreateUser adds a user. Returns ErrDuplicateKey if the wallet exists.
func (s *LedgerStore) CreateUser(_ context.Context, u *domain.User) error {
	if u == nil || u.WalletAddress == "" || u.Balance.IsNegative() {
		return storage.ErrInvalidInput
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, exists := s.db.users[u.WalletAddress]; exists {
		return storage.ErrDuplicateKey
	}

	c := *u
	now := s.db.now()
	c.CreatedAt, c.UpdatedAt = now, now
	s.db.users[c.WalletAddress] = &c
	return nil
}

// GetUser retrieves a user. Returns ErrNotFound if not exists.
func (s *LedgerStore) GetUser(_ context.Context, wallet string) (*domain.User, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	u, ok := s.db.users[wallet]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *u
	return &c, nil
}

// Debit subtracts amount iff balance >= amount.
func (s *LedgerStore) Debit(_ context.Context, wallet string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, storage.ErrInvalidInput
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	return s.debitLocked(wallet, amount)
}

func (s *LedgerStore) debitLocked(wallet string, amount decimal.Decimal) (decimal.Decimal, error) {
	u, ok := s.db.users[wallet]
	if !ok {
		return decimal.Zero, storage.ErrNotFound
	}
	if u.Balance.LessThan(amount) {
		return decimal.Zero, storage.ErrInsufficientFunds
	}
	u.Balance = u.Balance.Sub(amount)
	u.UpdatedAt = s.db.now()
	return u.Balance, nil
}

func (s *LedgerStore) creditLocked(wallet string, amount decimal.Decimal) (decimal.Decimal, error) {
	u, ok := s.db.users[wallet]
	if !ok {
		return decimal.Zero, storage.ErrNotFound
	}
	u.Balance = u.Balance.Add(amount)
	u.UpdatedAt = s.db.now()
	return u.Balance, nil
}

// Refund credits the reserved amount back and records the aborted attempt.
func (s *LedgerStore) Refund(_ context.Context, r *domain.Refund, entry *domain.Transaction, swaps []*domain.SwapRecord) (decimal.Decimal, error) {
	if r == nil || entry == nil || !r.Amount.IsPositive() {
		return decimal.Zero, storage.ErrInvalidInput
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.users[r.Wallet]; !ok {
		return decimal.Zero, storage.ErrNotFound
	}
	if err := s.db.checkTxLocked(entry); err != nil {
		return decimal.Zero, err
	}
	if err := s.db.checkSwapsLocked(swaps); err != nil {
		return decimal.Zero, err
	}

	balance, err := s.creditLocked(r.Wallet, r.Amount)
	if err != nil {
		return decimal.Zero, err
	}
	s.db.putTxLocked(entry)
	s.db.putSwapsLocked(swaps)
	return balance, nil
}

// CreditDeposit credits a confirmed deposit once per signature.
func (s *LedgerStore) CreditDeposit(_ context.Context, entry *domain.Transaction) (decimal.Decimal, error) {
	if entry == nil || entry.Kind != domain.TxKindDeposit || entry.TxSignature == "" || !entry.Amount.IsPositive() {
		return decimal.Zero, storage.ErrInvalidInput
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.users[entry.UserWallet]; !ok {
		return decimal.Zero, storage.ErrNotFound
	}
	if err := s.db.checkTxLocked(entry); err != nil {
		return decimal.Zero, err
	}

	balance, err := s.creditLocked(entry.UserWallet, entry.Amount)
	if err != nil {
		return decimal.Zero, err
	}
	s.db.putTxLocked(entry)
	return balance, nil
}

// CommitWithdrawal debits a confirmed withdrawal and appends its entry.
func (s *LedgerStore) CommitWithdrawal(_ context.Context, entry *domain.Transaction) (decimal.Decimal, error) {
	if entry == nil || entry.Kind != domain.TxKindWithdrawal || !entry.Amount.IsPositive() {
		return decimal.Zero, storage.ErrInvalidInput
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if err := s.db.checkTxLocked(entry); err != nil {
		return decimal.Zero, err
	}

	balance, err := s.debitLocked(entry.UserWallet, entry.Amount)
	if err != nil {
		return decimal.Zero, err
	}
	s.db.putTxLocked(entry)
	return balance, nil
}

// LockWallet acquires the wallet's balance lock. Lock slots are never freed;
// the memory store only backs development and tests.
func (s *LedgerStore) LockWallet(ctx context.Context, wallet string) (func(), error) {
	s.db.lockMu.Lock()
	slot, ok := s.db.walletLocks[wallet]
	if !ok {
		slot = make(chan struct{}, 1)
		s.db.walletLocks[wallet] = slot
	}
	s.db.lockMu.Unlock()

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() { once.Do(func() { <-slot }) }, nil
}
