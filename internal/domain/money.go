package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// SOLDecimals is the ledger precision (lamport resolution).
const SOLDecimals = 9

// WSOLMint is the wrapped SOL mint used as swap input and output.
const WSOLMint = "So11111111111111111111111111111111111111112"

// Fee parameters mirrored from the mtf-etf program: 1% total, half of it to the lister.
const (
	TotalFeeBps        = 100
	ListerFeeDivisor   = 200
	basisPointsDenom   = 10_000
	percentDenominator = 100
)

var lamportsPerSOL = decimal.NewFromInt(LamportsPerSOL)

// SOLToLamports converts a SOL amount to lamports, truncating sub-lamport dust.
// Negative amounts are rejected.
func SOLToLamports(sol decimal.Decimal) (uint64, error) {
	if sol.IsNegative() {
		return 0, fmt.Errorf("%w: negative amount %s", ErrValidation, sol)
	}
	l := sol.Mul(lamportsPerSOL).Truncate(0)
	if !l.BigInt().IsUint64() {
		return 0, fmt.Errorf("%w: amount %s overflows lamports", ErrValidation, sol)
	}
	return l.BigInt().Uint64(), nil
}

// LamportsToSOL converts lamports to a SOL decimal.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Div(lamportsPerSOL)
}

// ShareLamports returns floor(total * weight / 100) lamports for a constituent weight percentage.
func ShareLamports(total decimal.Decimal, weight float64) (uint64, error) {
	share := total.Mul(decimal.NewFromFloat(weight)).Div(decimal.NewFromInt(percentDenominator))
	return SOLToLamports(share)
}

// Fees is the fee split of a submitted amount.
type Fees struct {
	Lister    decimal.Decimal // 0.5% (amount / 200)
	Platform  decimal.Decimal // remainder of the 1%
	Total     decimal.Decimal
	AfterFees decimal.Decimal // amount - Total
}

// ComputeFees splits the 1% fee on amount between lister and platform.
// All values are truncated to lamport precision.
func ComputeFees(amount decimal.Decimal) Fees {
	total := amount.Mul(decimal.NewFromInt(TotalFeeBps)).
		Div(decimal.NewFromInt(basisPointsDenom)).Truncate(SOLDecimals)
	lister := amount.Div(decimal.NewFromInt(ListerFeeDivisor)).Truncate(SOLDecimals)
	if lister.GreaterThan(total) {
		lister = total
	}
	return Fees{
		Lister:    lister,
		Platform:  total.Sub(lister),
		Total:     total,
		AfterFees: amount.Sub(total),
	}
}

// ComputeFeeLamports is ComputeFees on lamport amounts, matching the program's integer math.
func ComputeFeeLamports(amount uint64) (lister, platform uint64) {
	total := amount * TotalFeeBps / basisPointsDenom
	lister = amount / ListerFeeDivisor
	if lister > total {
		lister = total
	}
	return lister, total - lister
}
