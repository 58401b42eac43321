package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultDexScreenerURL is the public DexScreener API.
const DefaultDexScreenerURL = "https://api.dexscreener.com"

// DexScreener reads market caps from the DexScreener token endpoint.
type DexScreener struct {
	baseURL string
	client  *http.Client
}

// NewDexScreener creates a client. An empty baseURL selects the public API.
func NewDexScreener(baseURL string, timeout time.Duration) *DexScreener {
	if baseURL == "" {
		baseURL = DefaultDexScreenerURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DexScreener{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

type dexTokenResponse struct {
	Pairs []struct {
		MarketCap *float64 `json:"marketCap"`
		FDV       *float64 `json:"fdv"`
		Liquidity *struct {
			USD float64 `json:"usd"`
		} `json:"liquidity"`
	} `json:"pairs"`
}

// MarketCap returns the market cap of the most liquid pair for mint, falling
// back to FDV when the pair has no market cap.
func (d *DexScreener) MarketCap(ctx context.Context, mint string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/latest/dex/tokens/%s", d.baseURL, url.PathEscape(mint))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("dexscreener request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("dexscreener status %d: %s", resp.StatusCode, string(body))
	}

	var parsed dexTokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return decimal.Zero, fmt.Errorf("unmarshal response: %w", err)
	}

	best := -1.0
	var value *float64
	for _, p := range parsed.Pairs {
		liq := 0.0
		if p.Liquidity != nil {
			liq = p.Liquidity.USD
		}
		if liq <= best {
			continue
		}
		v := p.MarketCap
		if v == nil {
			v = p.FDV
		}
		if v == nil {
			continue
		}
		best = liq
		value = v
	}

	if value == nil {
		return decimal.Zero, fmt.Errorf("no priced pairs for %s", mint)
	}
	return decimal.NewFromFloat(*value), nil
}
