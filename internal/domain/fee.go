package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FeeRecord is the fee accrued by one buy or sell.
// Corresponds to fee_records table in PostgreSQL.
type FeeRecord struct {
	ID           uuid.UUID
	ETFID        uuid.UUID
	InvestmentID uuid.UUID
	ListerWallet string
	Network      Network
	ListerFee    decimal.Decimal
	PlatformFee  decimal.Decimal
	PaidOut      bool // flips false -> true once
	PaidOutAt    *time.Time
	ClaimID      uuid.UUID // payout reservation, uuid.Nil when unreserved
	ClaimTx      string
	CreatedAt    time.Time
}

// NewFeeRecord builds the fee record of a trade of amount on etf.
func NewFeeRecord(etf *ETF, investmentID uuid.UUID, amount Fees) *FeeRecord {
	return &FeeRecord{
		ID:           uuid.New(),
		ETFID:        etf.ID,
		InvestmentID: investmentID,
		ListerWallet: etf.Creator,
		Network:      etf.Network,
		ListerFee:    amount.Lister,
		PlatformFee:  amount.Platform,
	}
}
