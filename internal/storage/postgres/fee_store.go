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

// FeeStore implements storage.FeeStore using PostgreSQL.
type FeeStore struct {
	pool *Pool
}

// NewFeeStore creates a new FeeStore.
func NewFeeStore(pool *Pool) *FeeStore {
	return &FeeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FeeStore = (*FeeStore)(nil)

const feeColumns = `
	id, etf_id, investment_id, lister_wallet, network, lister_fee::text, platform_fee::text,
	paid_out, paid_out_at, claim_id, claim_tx, created_at`

// ReserveUnpaid tags the lister's unpaid, unreserved records on network with claimID.
func (s *FeeStore) ReserveUnpaid(ctx context.Context, network domain.Network, lister string, claimID uuid.UUID) ([]*domain.FeeRecord, error) {
	if network == "" || lister == "" || claimID == uuid.Nil {
		return nil, storage.ErrInvalidInput
	}

	rows, err := s.pool.Query(ctx, `
		UPDATE fee_records SET claim_id = $3
		WHERE network = $1 AND lister_wallet = $2 AND NOT paid_out AND claim_id IS NULL
		RETURNING `+feeColumns, string(network), lister, claimID)
	if err != nil {
		return nil, fmt.Errorf("reserve fee records: %w", err)
	}
	defer rows.Close()

	return scanFeeRecords(rows)
}

// Release clears the reservation of claimID on records not yet paid out.
func (s *FeeStore) Release(ctx context.Context, claimID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE fee_records SET claim_id = NULL WHERE claim_id = $1 AND NOT paid_out
	`, claimID)
	if err != nil {
		return fmt.Errorf("release fee records: %w", err)
	}
	return nil
}

// StampClaim marks the reserved records paid out and appends the fee_claim entry.
func (s *FeeStore) StampClaim(ctx context.Context, claimID uuid.UUID, claimTx string, entry *domain.Transaction) error {
	if claimID == uuid.Nil || claimTx == "" || entry == nil {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE fee_records SET paid_out = true, paid_out_at = now(), claim_tx = $2
		WHERE claim_id = $1 AND NOT paid_out
	`, claimID, claimTx)
	if err != nil {
		return fmt.Errorf("stamp fee records: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	if err := insertTransaction(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit fee claim: %w", err)
	}
	return nil
}

// ListByETF retrieves fee records of an ETF ordered by created_at ASC.
func (s *FeeStore) ListByETF(ctx context.Context, etfID uuid.UUID) ([]*domain.FeeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+feeColumns+` FROM fee_records WHERE etf_id = $1 ORDER BY created_at ASC, id ASC`, etfID)
	if err != nil {
		return nil, fmt.Errorf("query fee records: %w", err)
	}
	defer rows.Close()

	return scanFeeRecords(rows)
}

func scanFeeRecords(rows pgx.Rows) ([]*domain.FeeRecord, error) {
	var result []*domain.FeeRecord
	for rows.Next() {
		var f domain.FeeRecord
		var network, listerFee, platformFee string
		var paidOutAt *time.Time
		var claimID *uuid.UUID

		err := rows.Scan(
			&f.ID, &f.ETFID, &f.InvestmentID, &f.ListerWallet, &network, &listerFee, &platformFee,
			&f.PaidOut, &paidOutAt, &claimID, &f.ClaimTx, &f.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan fee record: %w", err)
		}
		if f.ListerFee, err = parseDecimal("lister_fee", listerFee); err != nil {
			return nil, err
		}
		if f.PlatformFee, err = parseDecimal("platform_fee", platformFee); err != nil {
			return nil, err
		}
		f.Network = domain.Network(network)
		f.PaidOutAt = paidOutAt
		f.ClaimID = derefUUID(claimID)
		result = append(result, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fee records: %w", err)
	}
	return result, nil
}
