package memory

import (
	"context"

	"github.com/google/uuid"

	"memeetf/internal/domain"
	"memeetf/internal/storage"
)

// FeeStore is an in-memory implementation of storage.FeeStore.
type FeeStore struct {
	db *DB
}

// NewFeeStore creates a fee store over db.
func NewFeeStore(db *DB) *FeeStore {
	return &FeeStore{db: db}
}

// Compile-time interface check.
var _ storage.FeeStore = (*FeeStore)(nil)

// ReserveUnpaid tags the lister's unpaid, unreserved records on network with claimID.
func (s *FeeStore) ReserveUnpaid(_ context.Context, network domain.Network, lister string, claimID uuid.UUID) ([]*domain.FeeRecord, error) {
	if network == "" || lister == "" || claimID == uuid.Nil {
		return nil, storage.ErrInvalidInput
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var reserved []*domain.FeeRecord
	for _, id := range s.db.feeOrder {
		f := s.db.fees[id]
		if f.Network != network || f.ListerWallet != lister || f.PaidOut || f.ClaimID != uuid.Nil {
			continue
		}
		f.ClaimID = claimID
		reserved = append(reserved, copyFee(f))
	}
	return reserved, nil
}

// Release clears the reservation of claimID on records not yet paid out.
func (s *FeeStore) Release(_ context.Context, claimID uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, f := range s.db.fees {
		if f.ClaimID == claimID && !f.PaidOut {
			f.ClaimID = uuid.Nil
		}
	}
	return nil
}

// StampClaim marks the reserved records paid out and appends the fee_claim entry.
func (s *FeeStore) StampClaim(_ context.Context, claimID uuid.UUID, claimTx string, entry *domain.Transaction) error {
	if claimID == uuid.Nil || claimTx == "" || entry == nil {
		return storage.ErrInvalidInput
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var reserved []*domain.FeeRecord
	for _, f := range s.db.fees {
		if f.ClaimID == claimID && !f.PaidOut {
			reserved = append(reserved, f)
		}
	}
	if len(reserved) == 0 {
		return storage.ErrNotFound
	}
	if err := s.db.checkTxLocked(entry); err != nil {
		return err
	}

	now := s.db.now()
	for _, f := range reserved {
		f.PaidOut = true
		f.PaidOutAt = &now
		f.ClaimTx = claimTx
	}
	s.db.putTxLocked(entry)
	return nil
}

// ListByETF retrieves fee records of an ETF in insertion order.
func (s *FeeStore) ListByETF(_ context.Context, etfID uuid.UUID) ([]*domain.FeeRecord, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var result []*domain.FeeRecord
	for _, id := range s.db.feeOrder {
		if f := s.db.fees[id]; f.ETFID == etfID {
			result = append(result, copyFee(f))
		}
	}
	return result, nil
}
