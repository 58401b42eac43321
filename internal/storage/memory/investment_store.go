package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"memeetf/internal/domain"
	"memeetf/internal/storage"
)

// InvestmentStore is an in-memory implementation of storage.InvestmentStore.
type InvestmentStore struct {
	db *DB
}

// NewInvestmentStore creates an investment store over db.
func NewInvestmentStore(db *DB) *InvestmentStore {
	return &InvestmentStore{db: db}
}

// Compile-time interface check.
var _ storage.InvestmentStore = (*InvestmentStore)(nil)

// Settle writes the whole settlement or nothing.
func (s *InvestmentStore) Settle(_ context.Context, st *domain.Settlement) error {
	if st == nil || st.Investment == nil || st.Fee == nil || st.Entry == nil ||
		st.Investment.ID == uuid.Nil {
		return storage.ErrInvalidInput
	}
	inv := st.Investment

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	etf, ok := s.db.etfs[inv.ETFID]
	if !ok {
		return storage.ErrInvalidInput
	}
	if _, ok := s.db.users[inv.UserWallet]; !ok {
		return storage.ErrInvalidInput
	}
	if _, exists := s.db.investments[inv.ID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.db.fees[st.Fee.ID]; exists {
		return storage.ErrDuplicateKey
	}
	if err := s.db.checkSwapsLocked(st.Swaps); err != nil {
		return err
	}
	if err := s.db.checkTxLocked(st.Entry); err != nil {
		return err
	}

	firstInvestment := true
	for _, other := range s.db.investments {
		if other.ETFID == inv.ETFID && other.UserWallet == inv.UserWallet {
			firstInvestment = false
			break
		}
	}

	now := s.db.now()
	c := copyInvestment(inv)
	c.CreatedAt = now
	s.db.investments[c.ID] = c

	s.db.putSwapsLocked(st.Swaps)

	etf.TotalVolume = etf.TotalVolume.Add(inv.SOLAmount)
	if firstInvestment {
		etf.InvestorCount++
	}

	s.putFeeLocked(st.Fee)
	s.db.putTxLocked(st.Entry)
	return nil
}

func (s *InvestmentStore) putFeeLocked(f *domain.FeeRecord) {
	c := copyFee(f)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.db.now()
	}
	s.db.fees[c.ID] = c
	s.db.feeOrder = append(s.db.feeOrder, c.ID)
}

// GetByID retrieves an investment with its swap records.
func (s *InvestmentStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Investment, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	inv, ok := s.db.investments[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := copyInvestment(inv)
	c.Swaps = s.swapsLocked(id)
	return c, nil
}

// GetSwapsByAttempt retrieves swap records of an attempt ordered by position.
func (s *InvestmentStore) GetSwapsByAttempt(_ context.Context, attemptID uuid.UUID) ([]*domain.SwapRecord, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	return s.swapsLocked(attemptID), nil
}

func (s *InvestmentStore) swapsLocked(attemptID uuid.UUID) []*domain.SwapRecord {
	var result []*domain.SwapRecord
	for _, r := range s.db.swaps {
		if r.AttemptID == attemptID {
			c := *r
			result = append(result, &c)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Position < result[j].Position
	})
	return result
}

// ListByWallet retrieves a user's investments, newest first.
func (s *InvestmentStore) ListByWallet(_ context.Context, wallet string) ([]*domain.Investment, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var result []*domain.Investment
	for _, inv := range s.db.investments {
		if inv.UserWallet == wallet {
			result = append(result, copyInvestment(inv))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// MarkSold flips sold false -> true once.
func (s *InvestmentStore) MarkSold(_ context.Context, id uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	inv, ok := s.db.investments[id]
	if !ok {
		return storage.ErrNotFound
	}
	if inv.Sold {
		return storage.ErrConflict
	}
	now := s.db.now()
	inv.Sold = true
	inv.SoldAt = &now
	return nil
}

// RecordSale credits proceeds and records the sale atomically.
func (s *InvestmentStore) RecordSale(_ context.Context, sale *domain.Sale) (decimal.Decimal, error) {
	if sale == nil || sale.Entry == nil || sale.Fee == nil || sale.Proceeds.IsNegative() {
		return decimal.Zero, storage.ErrInvalidInput
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	inv, ok := s.db.investments[sale.InvestmentID]
	if !ok {
		return decimal.Zero, storage.ErrNotFound
	}
	if !inv.Sold || inv.SellProceeds.Valid {
		return decimal.Zero, storage.ErrConflict
	}
	user, ok := s.db.users[sale.UserWallet]
	if !ok {
		return decimal.Zero, storage.ErrNotFound
	}
	if _, exists := s.db.fees[sale.Fee.ID]; exists {
		return decimal.Zero, storage.ErrDuplicateKey
	}
	if err := s.db.checkSwapsLocked(sale.Swaps); err != nil {
		return decimal.Zero, err
	}
	if err := s.db.checkTxLocked(sale.Entry); err != nil {
		return decimal.Zero, err
	}

	user.Balance = user.Balance.Add(sale.Proceeds)
	user.UpdatedAt = s.db.now()
	inv.SellProceeds = decimal.NewNullDecimal(sale.Proceeds)
	inv.RealizedPnL = decimal.NewNullDecimal(sale.RealizedPnL)

	s.db.putSwapsLocked(sale.Swaps)
	s.putFeeLocked(sale.Fee)
	s.db.putTxLocked(sale.Entry)
	return user.Balance, nil
}
