package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Well-known program addresses.
const (
	SystemProgramID = "11111111111111111111111111111111"
	MemoProgramID   = "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr"
)

const (
	pubkeyLength  = 32
	maxSeedLength = 32
	maxSeeds      = 16
	pdaMarker     = "ProgramDerivedAddress"
)

// ErrInvalidAddress is returned for strings that are not base58 32-byte keys.
var ErrInvalidAddress = errors.New("invalid solana address")

// ErrNoViableBump is returned when no bump seed yields an off-curve address.
var ErrNoViableBump = errors.New("unable to find a viable program address bump seed")

// DecodeAddress decodes a base58 public key.
func DecodeAddress(address string) ([]byte, error) {
	if address == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	b, err := base58.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAddress, address, err)
	}
	if len(b) != pubkeyLength {
		return nil, fmt.Errorf("%w: %s: decoded to %d bytes", ErrInvalidAddress, address, len(b))
	}
	return b, nil
}

// IsValidAddress reports whether address is a base58 encoded 32-byte key.
func IsValidAddress(address string) bool {
	_, err := DecodeAddress(address)
	return err == nil
}

// FindProgramAddress derives a program derived address, searching bump seeds
// from 255 downwards for the first hash that is not a valid ed25519 point.
func FindProgramAddress(seeds [][]byte, programID string) (string, uint8, error) {
	programBytes, err := DecodeAddress(programID)
	if err != nil {
		return "", 0, fmt.Errorf("program id: %w", err)
	}
	if len(seeds) > maxSeeds-1 {
		return "", 0, fmt.Errorf("too many seeds: %d", len(seeds))
	}
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return "", 0, fmt.Errorf("seed exceeds %d bytes", maxSeedLength)
		}
	}

	for bump := 255; bump >= 0; bump-- {
		data := make([]byte, 0, 128)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, byte(bump))
		data = append(data, programBytes...)
		data = append(data, pdaMarker...)

		hash := sha256.Sum256(data)

		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:]), uint8(bump), nil
		}
	}

	return "", 0, ErrNoViableBump
}

func isOnCurve(point []byte) bool {
	if len(point) != pubkeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
