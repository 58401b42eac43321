package memory

import (
	"context"

	"github.com/google/uuid"

	"memeetf/internal/domain"
	"memeetf/internal/storage"
)

// TransactionStore is an in-memory implementation of storage.TransactionStore.
type TransactionStore struct {
	db *DB
}

// NewTransactionStore creates a transaction store over db.
func NewTransactionStore(db *DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// Compile-time interface check.
var _ storage.TransactionStore = (*TransactionStore)(nil)

// Insert appends an entry. Returns ErrDuplicateKey if (kind, tx_signature) exists.
func (s *TransactionStore) Insert(_ context.Context, t *domain.Transaction) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if err := s.db.checkTxLocked(t); err != nil {
		return err
	}
	s.db.putTxLocked(t)
	return nil
}

// GetByID retrieves an entry. Returns ErrNotFound if not exists.
func (s *TransactionStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	t, ok := s.db.txs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyTransaction(t), nil
}

// GetBySignature retrieves the entry of kind for a chain signature.
func (s *TransactionStore) GetBySignature(_ context.Context, kind domain.TxKind, signature string) (*domain.Transaction, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	id, ok := s.db.txBySig[txSigKey(kind, signature)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyTransaction(s.db.txs[id]), nil
}

// ListByStatus retrieves entries with status in insertion order.
func (s *TransactionStore) ListByStatus(_ context.Context, status domain.TxStatus) ([]*domain.Transaction, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var result []*domain.Transaction
	for _, id := range s.db.txOrder {
		if t := s.db.txs[id]; t.Status == status {
			result = append(result, copyTransaction(t))
		}
	}
	return result, nil
}

// ListByWallet retrieves a user's entries, newest first.
func (s *TransactionStore) ListByWallet(_ context.Context, wallet string) ([]*domain.Transaction, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var result []*domain.Transaction
	for _, id := range s.db.txOrder {
		if t := s.db.txs[id]; t.UserWallet == wallet {
			result = append(result, copyTransaction(t))
		}
	}
	// txOrder is insertion order
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}

// Resolve moves a pending_reconciliation entry to status.
func (s *TransactionStore) Resolve(_ context.Context, id uuid.UUID, status domain.TxStatus, note string) error {
	if status != domain.TxStatusCompleted && status != domain.TxStatusFailed {
		return storage.ErrInvalidInput
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	t, ok := s.db.txs[id]
	if !ok || t.Status != domain.TxStatusPendingReconciliation {
		return storage.ErrNotFound
	}
	now := s.db.now()
	t.Status = status
	t.ResolutionNote = note
	t.ResolvedAt = &now
	return nil
}
