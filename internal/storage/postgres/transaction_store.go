package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"memeetf/internal/domain"
	"memeetf/internal/storage"
)

// TransactionStore implements storage.TransactionStore using PostgreSQL.
type TransactionStore struct {
	pool *Pool
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(pool *Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TransactionStore = (*TransactionStore)(nil)

const transactionColumns = `
	id, user_wallet, kind, amount::text, fee::text, status, tx_signature, reference_id,
	metadata, from_address, to_address, network, resolved_at, resolution_note, created_at`

// insertTransaction appends a ledger entry on q.
func insertTransaction(ctx context.Context, q dbtx, t *domain.Transaction) error {
	if t == nil || t.ID == uuid.Nil || !t.Kind.IsValid() || !t.Status.IsValid() {
		return storage.ErrInvalidInput
	}
	metadata := t.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	_, err := q.Exec(ctx, `
		INSERT INTO transactions (
			id, user_wallet, kind, amount, fee, status, tx_signature, reference_id,
			metadata, from_address, to_address, network
		) VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8, $9, $10, $11, $12)
	`,
		t.ID,
		t.UserWallet,
		string(t.Kind),
		t.Amount.String(),
		t.Fee.String(),
		string(t.Status),
		nullString(t.TxSignature),
		nullUUID(t.ReferenceID),
		metadata,
		t.FromAddress,
		t.ToAddress,
		string(t.Network),
	)
	if err != nil {
		return mapError("insert transaction", err)
	}
	return nil
}

// Insert appends an entry. Returns ErrDuplicateKey if (kind, tx_signature) exists.
func (s *TransactionStore) Insert(ctx context.Context, t *domain.Transaction) error {
	return insertTransaction(ctx, s.pool, t)
}

// GetByID retrieves an entry. Returns ErrNotFound if not exists.
func (s *TransactionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// GetBySignature retrieves the entry of kind for a chain signature.
func (s *TransactionStore) GetBySignature(ctx context.Context, kind domain.TxKind, signature string) (*domain.Transaction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE kind = $1 AND tx_signature = $2`,
		string(kind), signature)
	t, err := scanTransaction(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get transaction by signature: %w", err)
	}
	return t, nil
}

// ListByStatus retrieves entries with status, ordered by created_at ASC.
func (s *TransactionStore) ListByStatus(ctx context.Context, status domain.TxStatus) ([]*domain.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE status = $1 ORDER BY created_at ASC, id ASC`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("query transactions by status: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListByWallet retrieves a user's entries, newest first.
func (s *TransactionStore) ListByWallet(ctx context.Context, wallet string) ([]*domain.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_wallet = $1 ORDER BY created_at DESC, id DESC`,
		wallet)
	if err != nil {
		return nil, fmt.Errorf("query transactions by wallet: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// Resolve moves a pending_reconciliation entry to status with an operator note.
func (s *TransactionStore) Resolve(ctx context.Context, id uuid.UUID, status domain.TxStatus, note string) error {
	if status != domain.TxStatusCompleted && status != domain.TxStatusFailed {
		return storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE transactions
		SET status = $2, resolution_note = $3, resolved_at = now()
		WHERE id = $1 AND status = 'pending_reconciliation'
	`, id, string(status), note)
	if err != nil {
		return fmt.Errorf("resolve transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	var kind, status, network, amount, fee string
	var sig *string
	var ref *uuid.UUID
	var resolvedAt *time.Time

	err := row.Scan(
		&t.ID, &t.UserWallet, &kind, &amount, &fee, &status, &sig, &ref,
		&t.Metadata, &t.FromAddress, &t.ToAddress, &network, &resolvedAt, &t.ResolutionNote, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if t.Amount, err = parseDecimal("amount", amount); err != nil {
		return nil, err
	}
	if t.Fee, err = parseDecimal("fee", fee); err != nil {
		return nil, err
	}
	t.Kind = domain.TxKind(kind)
	t.Status = domain.TxStatus(status)
	t.Network = domain.Network(network)
	t.TxSignature = derefString(sig)
	t.ReferenceID = derefUUID(ref)
	t.ResolvedAt = resolvedAt
	return &t, nil
}

func scanTransactions(rows pgx.Rows) ([]*domain.Transaction, error) {
	var result []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return result, nil
}
