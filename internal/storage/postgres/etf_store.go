package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"memeetf/internal/domain"
	"memeetf/internal/storage"
)

// ETFStore implements storage.ETFStore using PostgreSQL.
type ETFStore struct {
	pool *Pool
}

// NewETFStore creates a new ETFStore.
func NewETFStore(pool *Pool) *ETFStore {
	return &ETFStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ETFStore = (*ETFStore)(nil)

const etfColumns = `
	id, creator, name, contract_address, creation_tx, network, constituents,
	market_cap_at_listing::text, total_volume::text, investor_count, created_at`

// Insert adds a new ETF. Returns ErrDuplicateKey if (network, contract_address) exists.
func (s *ETFStore) Insert(ctx context.Context, e *domain.ETF) error {
	if e == nil || e.ID == uuid.Nil || e.ContractAddress == "" || len(e.Constituents) == 0 {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO etfs (
			id, creator, name, contract_address, creation_tx, network, constituents,
			market_cap_at_listing
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric)
	`,
		e.ID,
		e.Creator,
		e.Name,
		e.ContractAddress,
		e.CreationTx,
		string(e.Network),
		e.Constituents,
		e.MarketCapAtListing.String(),
	)
	if err != nil {
		return mapError("insert etf", err)
	}
	return nil
}

// GetByID retrieves an ETF. Returns ErrNotFound if not exists.
func (s *ETFStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ETF, error) {
	e, err := scanETF(s.pool.QueryRow(ctx, `SELECT `+etfColumns+` FROM etfs WHERE id = $1`, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get etf: %w", err)
	}
	return e, nil
}

// GetByContractAddress retrieves an ETF by its PDA on network. Returns ErrNotFound if not exists.
func (s *ETFStore) GetByContractAddress(ctx context.Context, network domain.Network, address string) (*domain.ETF, error) {
	e, err := scanETF(s.pool.QueryRow(ctx,
		`SELECT `+etfColumns+` FROM etfs WHERE network = $1 AND contract_address = $2`, string(network), address))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get etf by contract address: %w", err)
	}
	return e, nil
}

// ListByCreator retrieves a creator's ETFs on network ordered by created_at ASC.
func (s *ETFStore) ListByCreator(ctx context.Context, network domain.Network, creator string) ([]*domain.ETF, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+etfColumns+` FROM etfs WHERE network = $1 AND creator = $2 ORDER BY created_at ASC, id ASC`,
		string(network), creator)
	if err != nil {
		return nil, fmt.Errorf("query etfs by creator: %w", err)
	}
	defer rows.Close()

	var result []*domain.ETF
	for rows.Next() {
		e, err := scanETF(rows)
		if err != nil {
			return nil, fmt.Errorf("scan etf: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate etfs: %w", err)
	}
	return result, nil
}

func scanETF(row pgx.Row) (*domain.ETF, error) {
	var e domain.ETF
	var network, mcap, volume string

	err := row.Scan(
		&e.ID, &e.Creator, &e.Name, &e.ContractAddress, &e.CreationTx, &network, &e.Constituents,
		&mcap, &volume, &e.InvestorCount, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Network = domain.Network(network)
	if e.MarketCapAtListing, err = parseDecimal("market_cap_at_listing", mcap); err != nil {
		return nil, err
	}
	if e.TotalVolume, err = parseDecimal("total_volume", volume); err != nil {
		return nil, err
	}
	return &e, nil
}
