package domain

import (
	"time"

	"github.com/google/uuid"
)

// SwapFill is the analytics view of one settled swap.
type SwapFill struct {
	TxSignature  string
	ETFID        uuid.UUID
	InvestmentID uuid.UUID
	UserWallet   string
	Side         string // "buy" | "sell"
	InputMint    string
	OutputMint   string
	InputAmount  uint64
	OutputAmount uint64
	Substituted  bool
	Network      Network
	FilledAt     time.Time
}

// Fill side constants
const (
	FillSideBuy  = "buy"
	FillSideSell = "sell"
)
