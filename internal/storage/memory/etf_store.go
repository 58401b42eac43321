package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"memeetf/internal/domain"
	"memeetf/internal/storage"
)

// ETFStore is an in-memory implementation of storage.ETFStore.
type ETFStore struct {
	db *DB
}

// NewETFStore creates an ETF store over db.
func NewETFStore(db *DB) *ETFStore {
	return &ETFStore{db: db}
}

// Compile-time interface check.
var _ storage.ETFStore = (*ETFStore)(nil)

// Insert adds a new ETF. Returns ErrDuplicateKey if id or (network, contract address) exists.
func (s *ETFStore) Insert(_ context.Context, e *domain.ETF) error {
	if e == nil || e.ID == uuid.Nil || e.ContractAddress == "" || len(e.Constituents) == 0 {
		return storage.ErrInvalidInput
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, exists := s.db.etfs[e.ID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.db.etfByAddress[etfAddressKey(e.Network, e.ContractAddress)]; exists {
		return storage.ErrDuplicateKey
	}

	c := copyETF(e)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.db.now()
	}
	s.db.etfs[c.ID] = c
	s.db.etfByAddress[etfAddressKey(c.Network, c.ContractAddress)] = c.ID
	return nil
}

// GetByID retrieves an ETF. Returns ErrNotFound if not exists.
func (s *ETFStore) GetByID(_ context.Context, id uuid.UUID) (*domain.ETF, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	e, ok := s.db.etfs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyETF(e), nil
}

// GetByContractAddress retrieves an ETF by its PDA on network. Returns ErrNotFound if not exists.
func (s *ETFStore) GetByContractAddress(_ context.Context, network domain.Network, address string) (*domain.ETF, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	id, ok := s.db.etfByAddress[etfAddressKey(network, address)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyETF(s.db.etfs[id]), nil
}

// ListByCreator retrieves a creator's ETFs on network ordered by created_at ASC.
func (s *ETFStore) ListByCreator(_ context.Context, network domain.Network, creator string) ([]*domain.ETF, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var result []*domain.ETF
	for _, e := range s.db.etfs {
		if e.Network == network && e.Creator == creator {
			result = append(result, copyETF(e))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func etfAddressKey(network domain.Network, address string) string {
	return string(network) + "|" + address
}
