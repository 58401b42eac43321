package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"memeetf/internal/domain"
	"memeetf/internal/storage"
)

// InvestmentStore implements storage.InvestmentStore using PostgreSQL.
type InvestmentStore struct {
	pool *Pool
}

// NewInvestmentStore creates a new InvestmentStore.
func NewInvestmentStore(pool *Pool) *InvestmentStore {
	return &InvestmentStore{pool: pool}
}

// Compile-time interface check.
var _ storage.InvestmentStore = (*InvestmentStore)(nil)

const investmentColumns = `
	id, user_wallet, etf_id, network, sol_amount::text, sol_after_fees::text, entry_market_cap::text,
	sold, sold_at, sell_proceeds::text, realized_pnl::text, created_at`

// insertSwapRecords appends swap records on q. Fails on any duplicate signature.
func insertSwapRecords(ctx context.Context, q dbtx, records []*domain.SwapRecord) error {
	for _, r := range records {
		if r == nil || r.TxSignature == "" || r.AttemptID == uuid.Nil {
			return storage.ErrInvalidInput
		}
		_, err := q.Exec(ctx, `
			INSERT INTO investment_swaps (
				attempt_id, position, requested_mint, output_mint, substituted, weight,
				input_lamports, output_amount, tx_signature, success
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10)
		`,
			r.AttemptID,
			r.Position,
			r.RequestedMint,
			r.OutputMint,
			r.Substituted,
			r.Weight,
			int64(r.InputLamports),
			r.OutputAmount.String(),
			r.TxSignature,
			r.Success,
		)
		if err != nil {
			return mapError("insert swap record", err)
		}
	}
	return nil
}

func insertFeeRecord(ctx context.Context, q dbtx, f *domain.FeeRecord) error {
	_, err := q.Exec(ctx, `
		INSERT INTO fee_records (id, etf_id, investment_id, lister_wallet, network, lister_fee, platform_fee)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric)
	`, f.ID, f.ETFID, f.InvestmentID, f.ListerWallet, string(f.Network), f.ListerFee.String(), f.PlatformFee.String())
	if err != nil {
		return mapError("insert fee record", err)
	}
	return nil
}

// Settle writes investment, swap records, ETF stats, fee record and buy entry in one transaction.
func (s *InvestmentStore) Settle(ctx context.Context, st *domain.Settlement) error {
	if st == nil || st.Investment == nil || st.Fee == nil || st.Entry == nil || st.Investment.ID == uuid.Nil {
		return storage.ErrInvalidInput
	}
	inv := st.Investment

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serializes concurrent first investments of one user in one ETF.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`,
		inv.ETFID.String()+":"+inv.UserWallet); err != nil {
		return fmt.Errorf("lock investor: %w", err)
	}

	// Evaluated before the insert below so the new row is not counted.
	var firstInvestment bool
	err = tx.QueryRow(ctx, `
		SELECT NOT EXISTS (SELECT 1 FROM investments WHERE etf_id = $1 AND user_wallet = $2)
	`, inv.ETFID, inv.UserWallet).Scan(&firstInvestment)
	if err != nil {
		return fmt.Errorf("check prior investment: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO investments (
			id, user_wallet, etf_id, network, sol_amount, sol_after_fees, entry_market_cap
		) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric)
	`,
		inv.ID,
		inv.UserWallet,
		inv.ETFID,
		string(inv.Network),
		inv.SOLAmount.String(),
		inv.SOLAfterFees.String(),
		inv.EntryMarketCap.String(),
	)
	if err != nil {
		return mapError("insert investment", err)
	}

	if err := insertSwapRecords(ctx, tx, st.Swaps); err != nil {
		return err
	}

	increment := 0
	if firstInvestment {
		increment = 1
	}
	tag, err := tx.Exec(ctx, `
		UPDATE etfs SET total_volume = total_volume + $2::numeric, investor_count = investor_count + $3
		WHERE id = $1
	`, inv.ETFID, inv.SOLAmount.String(), increment)
	if err != nil {
		return fmt.Errorf("update etf stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrInvalidInput
	}

	if err := insertFeeRecord(ctx, tx, st.Fee); err != nil {
		return err
	}
	if err := insertTransaction(ctx, tx, st.Entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit settlement: %w", err)
	}
	return nil
}

// GetByID retrieves an investment with its swap records.
func (s *InvestmentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Investment, error) {
	inv, err := scanInvestment(s.pool.QueryRow(ctx, `SELECT `+investmentColumns+` FROM investments WHERE id = $1`, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get investment: %w", err)
	}

	inv.Swaps, err = s.GetSwapsByAttempt(ctx, id)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// GetSwapsByAttempt retrieves swap records of an attempt ordered by position.
func (s *InvestmentStore) GetSwapsByAttempt(ctx context.Context, attemptID uuid.UUID) ([]*domain.SwapRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, attempt_id, position, requested_mint, output_mint, substituted, weight,
			input_lamports, output_amount::text, tx_signature, success, created_at
		FROM investment_swaps
		WHERE attempt_id = $1
		ORDER BY position ASC, id ASC
	`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("query swap records: %w", err)
	}
	defer rows.Close()

	var result []*domain.SwapRecord
	for rows.Next() {
		var r domain.SwapRecord
		var lamports int64
		var output string
		err := rows.Scan(
			&r.ID, &r.AttemptID, &r.Position, &r.RequestedMint, &r.OutputMint, &r.Substituted, &r.Weight,
			&lamports, &output, &r.TxSignature, &r.Success, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan swap record: %w", err)
		}
		r.InputLamports = uint64(lamports)
		if r.OutputAmount, err = parseDecimal("output_amount", output); err != nil {
			return nil, err
		}
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swap records: %w", err)
	}
	return result, nil
}

// ListByWallet retrieves a user's investments, newest first.
func (s *InvestmentStore) ListByWallet(ctx context.Context, wallet string) ([]*domain.Investment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+investmentColumns+` FROM investments WHERE user_wallet = $1 ORDER BY created_at DESC, id DESC`, wallet)
	if err != nil {
		return nil, fmt.Errorf("query investments by wallet: %w", err)
	}
	defer rows.Close()

	var result []*domain.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan investment: %w", err)
		}
		result = append(result, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate investments: %w", err)
	}
	return result, nil
}

// MarkSold flips sold false -> true once.
func (s *InvestmentStore) MarkSold(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE investments SET sold = true, sold_at = now() WHERE id = $1 AND sold = false
	`, id)
	if err != nil {
		return fmt.Errorf("mark sold: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM investments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check investment: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrConflict
}

// RecordSale credits proceeds and records the sale in one transaction.
func (s *InvestmentStore) RecordSale(ctx context.Context, sale *domain.Sale) (decimal.Decimal, error) {
	if sale == nil || sale.Entry == nil || sale.Fee == nil || sale.Proceeds.IsNegative() {
		return decimal.Zero, storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE investments SET sell_proceeds = $2::numeric, realized_pnl = $3::numeric
		WHERE id = $1 AND sold = true AND sell_proceeds IS NULL
	`, sale.InvestmentID, sale.Proceeds.String(), sale.RealizedPnL.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("record sale proceeds: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return decimal.Zero, storage.ErrConflict
	}

	balance, err := credit(ctx, tx, sale.UserWallet, sale.Proceeds)
	if err != nil {
		return decimal.Zero, err
	}
	if err := insertSwapRecords(ctx, tx, sale.Swaps); err != nil {
		return decimal.Zero, err
	}
	if err := insertFeeRecord(ctx, tx, sale.Fee); err != nil {
		return decimal.Zero, err
	}
	if err := insertTransaction(ctx, tx, sale.Entry); err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("commit sale: %w", err)
	}
	return balance, nil
}

func scanInvestment(row pgx.Row) (*domain.Investment, error) {
	var inv domain.Investment
	var network, amount, afterFees, mcap string
	var proceeds, pnl *string
	var soldAt *time.Time

	err := row.Scan(
		&inv.ID, &inv.UserWallet, &inv.ETFID, &network, &amount, &afterFees, &mcap,
		&inv.Sold, &soldAt, &proceeds, &pnl, &inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.Network = domain.Network(network)
	inv.SoldAt = soldAt
	if inv.SOLAmount, err = parseDecimal("sol_amount", amount); err != nil {
		return nil, err
	}
	if inv.SOLAfterFees, err = parseDecimal("sol_after_fees", afterFees); err != nil {
		return nil, err
	}
	if inv.EntryMarketCap, err = parseDecimal("entry_market_cap", mcap); err != nil {
		return nil, err
	}
	if inv.SellProceeds, err = parseNullDecimal("sell_proceeds", proceeds); err != nil {
		return nil, err
	}
	if inv.RealizedPnL, err = parseNullDecimal("realized_pnl", pnl); err != nil {
		return nil, err
	}
	return &inv, nil
}
