package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BundleID computes a deterministic id for an unsigned transaction bundle.
// Formula: SHA256(etf_id|buyer|amount|blockhash)
// The amount is normalized to 9 decimals so "1" and "1.0" hash alike.
// Returns hex-encoded hash (64 characters).
func BundleID(etfID uuid.UUID, buyer string, amount decimal.Decimal, blockhash string) string {
	data := fmt.Sprintf("%s|%s|%s|%s",
		etfID.String(),
		buyer,
		amount.StringFixed(9),
		blockhash,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// MemoTag is the short prefix of a bundle id carried in transaction memos.
func MemoTag(bundleID string) string {
	if len(bundleID) <= 16 {
		return bundleID
	}
	return bundleID[:16]
}
