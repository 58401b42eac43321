package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"memeetf/internal/domain"
	"memeetf/internal/storage"
)

// SwapFillStore implements storage.SwapFillSink using ClickHouse.
type SwapFillStore struct {
	conn *Conn
}

// NewSwapFillStore creates a new SwapFillStore.
func NewSwapFillStore(conn *Conn) *SwapFillStore {
	return &SwapFillStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SwapFillSink = (*SwapFillStore)(nil)

// InsertBulk adds multiple fills. Fails entire batch on duplicate signature.
func (s *SwapFillStore) InsertBulk(ctx context.Context, fills []*domain.SwapFill) error {
	if len(fills) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{}, len(fills))
	for _, f := range fills {
		if _, exists := seen[f.TxSignature]; exists {
			return storage.ErrDuplicateKey
		}
		seen[f.TxSignature] = struct{}{}
	}

	// MergeTree does not enforce uniqueness
	for _, f := range fills {
		exists, err := s.exists(ctx, f.TxSignature)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO swap_fills (
			tx_signature, etf_id, investment_id, user_wallet, side,
			input_mint, output_mint, input_amount, output_amount, substituted,
			network, filled_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, f := range fills {
		var substituted uint8
		if f.Substituted {
			substituted = 1
		}
		err = batch.Append(
			f.TxSignature, f.ETFID.String(), f.InvestmentID.String(), f.UserWallet, f.Side,
			f.InputMint, f.OutputMint, f.InputAmount, f.OutputAmount, substituted,
			string(f.Network), f.FilledAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByETF retrieves all fills of an ETF, ordered by filled_at ASC.
func (s *SwapFillStore) GetByETF(ctx context.Context, etfID uuid.UUID) ([]*domain.SwapFill, error) {
	query := `
		SELECT tx_signature, etf_id, investment_id, user_wallet, side,
			input_mint, output_mint, input_amount, output_amount, substituted,
			network, filled_at
		FROM swap_fills
		WHERE etf_id = ?
		ORDER BY filled_at ASC, tx_signature ASC
	`

	rows, err := s.conn.Query(ctx, query, etfID.String())
	if err != nil {
		return nil, fmt.Errorf("query by etf id: %w", err)
	}
	defer rows.Close()

	return scanSwapFills(rows)
}

func (s *SwapFillStore) exists(ctx context.Context, signature string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM swap_fills WHERE tx_signature = ?`, signature).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanSwapFills(rows chRows) ([]*domain.SwapFill, error) {
	var fills []*domain.SwapFill

	for rows.Next() {
		var f domain.SwapFill
		var etfID, investmentID, network string
		var substituted uint8
		var filledAt time.Time

		err := rows.Scan(
			&f.TxSignature, &etfID, &investmentID, &f.UserWallet, &f.Side,
			&f.InputMint, &f.OutputMint, &f.InputAmount, &f.OutputAmount, &substituted,
			&network, &filledAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan swap fill row: %w", err)
		}

		if f.ETFID, err = uuid.Parse(etfID); err != nil {
			return nil, fmt.Errorf("parse etf id %q: %w", etfID, err)
		}
		if f.InvestmentID, err = uuid.Parse(investmentID); err != nil {
			return nil, fmt.Errorf("parse investment id %q: %w", investmentID, err)
		}
		f.Substituted = substituted == 1
		f.Network = domain.Network(network)
		f.FilledAt = filledAt.UTC()
		fills = append(fills, &f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swap fill rows: %w", err)
	}

	return fills, nil
}
