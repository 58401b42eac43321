package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WeightTolerance is the allowed deviation of a basket's weight sum from 100.
const WeightTolerance = 0.01

// MaxConstituents is the token limit of the on-chain ETF account.
const MaxConstituents = 10

// Constituent is one token of a basket with its percentage weight.
type Constituent struct {
	Mint   string  `json:"mint"`
	Symbol string  `json:"symbol,omitempty"`
	Weight float64 `json:"weight"` // percentage, 0 < w <= 100
}

// ETF is a named basket of tokens listed by a creator.
// Corresponds to etfs table in PostgreSQL.
type ETF struct {
	ID                 uuid.UUID
	Creator            string // lister wallet, receives the lister fee
	Name               string
	ContractAddress    string // ETF PDA, immutable once recorded
	CreationTx         string
	Network            Network
	Constituents       []Constituent // ordered
	MarketCapAtListing decimal.Decimal
	TotalVolume        decimal.Decimal
	InvestorCount      int
	CreatedAt          time.Time
}

// WeightSum returns the sum of constituent weights.
func WeightSum(cs []Constituent) float64 {
	var sum float64
	for _, c := range cs {
		sum += c.Weight
	}
	return sum
}

// WeightsBalanced reports whether weights sum to 100 within WeightTolerance.
func WeightsBalanced(cs []Constituent) bool {
	return math.Abs(WeightSum(cs)-100) <= WeightTolerance+1e-9
}
