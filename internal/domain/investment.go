package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Investment is a settled custodial basket purchase.
// Corresponds to investments table in PostgreSQL.
type Investment struct {
	ID             uuid.UUID // equals the purchase attempt id
	UserWallet     string
	ETFID          uuid.UUID
	Network        Network
	SOLAmount      decimal.Decimal // submitted amount, before fees
	SOLAfterFees   decimal.Decimal
	EntryMarketCap decimal.Decimal
	Sold           bool
	SoldAt         *time.Time
	SellProceeds   decimal.NullDecimal
	RealizedPnL    decimal.NullDecimal
	CreatedAt      time.Time

	Swaps []*SwapRecord // loaded by GetByID
}

// SwapRecord is the durable trace of one successful external swap.
// Corresponds to investment_swaps table in PostgreSQL.
type SwapRecord struct {
	ID            int64     // BIGSERIAL primary key
	AttemptID     uuid.UUID // investment id, refund reference of an aborted attempt, or sell entry id
	Position      int       // constituent index
	RequestedMint string    // sold token on sell records
	OutputMint    string    // differs from RequestedMint on devnet substitution
	Substituted   bool
	Weight        float64
	InputLamports uint64
	OutputAmount  decimal.Decimal // raw token base units
	TxSignature   string          // unique
	Success       bool
	CreatedAt     time.Time
}

// Settlement is everything written atomically when a purchase completes.
type Settlement struct {
	Investment *Investment
	Swaps      []*SwapRecord
	Fee        *FeeRecord
	Entry      *Transaction // buy ledger entry
}

// Refund is everything written atomically when a purchase is compensated.
type Refund struct {
	AttemptID   uuid.UUID
	Wallet      string
	Amount      decimal.Decimal
	FailedIndex int
	Cause       error
	Completed   []SwapResult
	Network     Network
}

// Sale is everything written atomically when a custodial sell settles.
type Sale struct {
	InvestmentID uuid.UUID
	UserWallet   string
	Proceeds     decimal.Decimal // credited to the user, after fees
	RealizedPnL  decimal.Decimal
	Swaps        []*SwapRecord
	Fee          *FeeRecord
	Entry        *Transaction // sell ledger entry
}

// SwapRecordsFromResults converts executor results into swap records for an attempt.
func SwapRecordsFromResults(attemptID uuid.UUID, results []SwapResult) []*SwapRecord {
	records := make([]*SwapRecord, 0, len(results))
	for _, r := range results {
		records = append(records, &SwapRecord{
			AttemptID:     attemptID,
			Position:      r.Position,
			RequestedMint: r.RequestedMint,
			OutputMint:    r.OutputMint,
			Substituted:   r.Substituted,
			Weight:        r.Weight,
			InputLamports: r.InputAmount,
			OutputAmount:  decimal.NewFromUint64(r.OutputAmount),
			TxSignature:   r.TxSignature,
			Success:       true,
		})
	}
	return records
}

// Signatures returns the transaction signatures of the given results.
func Signatures(results []SwapResult) []string {
	sigs := make([]string, 0, len(results))
	for _, r := range results {
		sigs = append(sigs, r.TxSignature)
	}
	return sigs
}
