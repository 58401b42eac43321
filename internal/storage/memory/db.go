package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"memeetf/internal/domain"
	"memeetf/internal/storage"
)

// DB is the shared in-memory state behind the memory stores.
// A single mutex covers every table so multi-table writes behave like one
// Postgres transaction: validated first, then applied, never half-applied.
type DB struct {
	mu sync.RWMutex

	users        map[string]*domain.User
	etfs         map[uuid.UUID]*domain.ETF
	etfByAddress map[string]uuid.UUID
	investments  map[uuid.UUID]*domain.Investment
	swaps        []*domain.SwapRecord
	swapBySig    map[string]struct{}
	nextSwapID   int64
	fees         map[uuid.UUID]*domain.FeeRecord
	feeOrder     []uuid.UUID
	txs          map[uuid.UUID]*domain.Transaction
	txOrder      []uuid.UUID
	txBySig      map[string]uuid.UUID // kind|signature

	now func() time.Time

	// walletLocks holds one single-slot semaphore per wallet; guarded by lockMu.
	lockMu      sync.Mutex
	walletLocks map[string]chan struct{}
}

// NewDB creates empty in-memory state.
func NewDB() *DB {
	return &DB{
		users:        make(map[string]*domain.User),
		etfs:         make(map[uuid.UUID]*domain.ETF),
		etfByAddress: make(map[string]uuid.UUID),
		investments:  make(map[uuid.UUID]*domain.Investment),
		swapBySig:    make(map[string]struct{}),
		fees:         make(map[uuid.UUID]*domain.FeeRecord),
		txs:          make(map[uuid.UUID]*domain.Transaction),
		txBySig:      make(map[string]uuid.UUID),
		walletLocks:  make(map[string]chan struct{}),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func txSigKey(kind domain.TxKind, sig string) string {
	return string(kind) + "|" + sig
}

// checkTxLocked validates a ledger entry against existing rows. Caller holds mu.
func (db *DB) checkTxLocked(t *domain.Transaction) error {
	if t == nil || t.ID == uuid.Nil || t.UserWallet == "" || !t.Kind.IsValid() || !t.Status.IsValid() {
		return storage.ErrInvalidInput
	}
	if _, exists := db.txs[t.ID]; exists {
		return storage.ErrDuplicateKey
	}
	if t.TxSignature != "" {
		if _, exists := db.txBySig[txSigKey(t.Kind, t.TxSignature)]; exists {
			return storage.ErrDuplicateKey
		}
	}
	return nil
}

// putTxLocked stores a checked entry. Caller holds mu.
func (db *DB) putTxLocked(t *domain.Transaction) {
	c := copyTransaction(t)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = db.now()
	}
	db.txs[c.ID] = c
	db.txOrder = append(db.txOrder, c.ID)
	if c.TxSignature != "" {
		db.txBySig[txSigKey(c.Kind, c.TxSignature)] = c.ID
	}
}

// checkSwapsLocked rejects duplicate signatures (existing + intra-batch). Caller holds mu.
func (db *DB) checkSwapsLocked(records []*domain.SwapRecord) error {
	batch := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r == nil || r.TxSignature == "" || r.AttemptID == uuid.Nil {
			return storage.ErrInvalidInput
		}
		if _, exists := db.swapBySig[r.TxSignature]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batch[r.TxSignature]; exists {
			return storage.ErrDuplicateKey
		}
		batch[r.TxSignature] = struct{}{}
	}
	return nil
}

// putSwapsLocked stores checked swap records, assigning ids. Caller holds mu.
func (db *DB) putSwapsLocked(records []*domain.SwapRecord) {
	for _, r := range records {
		db.nextSwapID++
		c := *r
		c.ID = db.nextSwapID
		if c.CreatedAt.IsZero() {
			c.CreatedAt = db.now()
		}
		db.swaps = append(db.swaps, &c)
		db.swapBySig[c.TxSignature] = struct{}{}
	}
}

func copyTransaction(t *domain.Transaction) *domain.Transaction {
	c := *t
	if t.Metadata != nil {
		c.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	if t.ResolvedAt != nil {
		at := *t.ResolvedAt
		c.ResolvedAt = &at
	}
	return &c
}

func copyETF(e *domain.ETF) *domain.ETF {
	c := *e
	c.Constituents = append([]domain.Constituent(nil), e.Constituents...)
	return &c
}

func copyInvestment(inv *domain.Investment) *domain.Investment {
	c := *inv
	c.Swaps = nil
	if inv.SoldAt != nil {
		at := *inv.SoldAt
		c.SoldAt = &at
	}
	return &c
}

func copyFee(f *domain.FeeRecord) *domain.FeeRecord {
	c := *f
	if f.PaidOutAt != nil {
		at := *f.PaidOutAt
		c.PaidOutAt = &at
	}
	return &c
}
