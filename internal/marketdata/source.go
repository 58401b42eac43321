// Package marketdata looks up token market caps used for listing and entry
// snapshots.
package marketdata

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"memeetf/internal/domain"
)

// Source returns the USD market cap of a token mint.
type Source interface {
	MarketCap(ctx context.Context, mint string) (decimal.Decimal, error)
}

// BasketMarketCap is the weight-averaged market cap of the constituents.
// A failed lookup contributes zero; snapshots never block a purchase.
func BasketMarketCap(ctx context.Context, src Source, constituents []domain.Constituent, log *zap.SugaredLogger) decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	total := decimal.Zero

	for _, c := range constituents {
		mcap, err := src.MarketCap(ctx, c.Mint)
		if err != nil {
			if log != nil {
				log.Warnw("market cap lookup failed", "mint", c.Mint, "error", err)
			}
			continue
		}
		weight := decimal.NewFromFloat(c.Weight).Div(hundred)
		total = total.Add(mcap.Mul(weight))
	}

	return total.Round(2)
}

// Static is a fixed mint -> market cap table. Unknown mints yield zero.
type Static map[string]decimal.Decimal

// MarketCap implements Source.
func (s Static) MarketCap(_ context.Context, mint string) (decimal.Decimal, error) {
	return s[mint], nil
}
