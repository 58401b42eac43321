package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"memeetf/internal/domain"
	"memeetf/internal/storage"
)

// SwapFillStore is an in-memory implementation of storage.SwapFillSink.
type SwapFillStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SwapFill // keyed by tx signature
}

// NewSwapFillStore creates a new in-memory swap fill store.
func NewSwapFillStore() *SwapFillStore {
	return &SwapFillStore{
		data: make(map[string]*domain.SwapFill),
	}
}

// Compile-time interface check.
var _ storage.SwapFillSink = (*SwapFillStore)(nil)

// InsertBulk adds fills atomically. Fails entire batch on any duplicate.
func (s *SwapFillStore) InsertBulk(_ context.Context, fills []*domain.SwapFill) error {
	if len(fills) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[string]struct{}, len(fills))
	for _, f := range fills {
		if f == nil || f.TxSignature == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[f.TxSignature]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batch[f.TxSignature]; exists {
			return storage.ErrDuplicateKey
		}
		batch[f.TxSignature] = struct{}{}
	}

	for _, f := range fills {
		c := *f
		s.data[c.TxSignature] = &c
	}
	return nil
}

// GetByETF retrieves fills of an ETF ordered by filled_at ASC.
func (s *SwapFillStore) GetByETF(_ context.Context, etfID uuid.UUID) ([]*domain.SwapFill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SwapFill
	for _, f := range s.data {
		if f.ETFID == etfID {
			c := *f
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].FilledAt.Equal(result[j].FilledAt) {
			return result[i].TxSignature < result[j].TxSignature
		}
		return result[i].FilledAt.Before(result[j].FilledAt)
	})
	return result, nil
}
