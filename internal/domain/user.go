package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a custodial account keyed by the owner's wallet address.
// Corresponds to users table in PostgreSQL.
type User struct {
	WalletAddress string          // base58 public key, primary key
	Balance       decimal.Decimal // SOL, never negative
	XHandle       *string         // optional social handle
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
