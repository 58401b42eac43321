// Package program encodes instructions for the mtf-etf Anchor program and
// decodes its ETF account.
package program

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"

	"memeetf/internal/solana"
)

// DefaultProgramID is the deployed mtf-etf program.
const DefaultProgramID = "6ZuD488g1DR652G2zmBsr7emXuQXQ26ZbkFZPyRyr627"

// MaxTokens is the capacity of token_addresses allocated by initialize_etf.
const MaxTokens = 10

// ETFSeed is the first PDA seed of an ETF account.
const ETFSeed = "etf"

// Instruction names.
const (
	InstructionInitializeETF = "initialize_etf"
	InstructionBuyETF        = "buy_etf"
	InstructionSellETF       = "sell_etf"
	InstructionClaimFees     = "claim_fees"
)

// ErrInvalidAccount is returned when account data does not decode as an ETF.
var ErrInvalidAccount = errors.New("invalid etf account data")

// InstructionDiscriminator returns the Anchor discriminator for an instruction.
func InstructionDiscriminator(name string) [8]byte {
	hash := sha256.Sum256([]byte("global:" + name))
	var out [8]byte
	copy(out[:], hash[:8])
	return out
}

// AccountDiscriminator returns the Anchor discriminator for an account type.
func AccountDiscriminator(name string) [8]byte {
	hash := sha256.Sum256([]byte("account:" + name))
	var out [8]byte
	copy(out[:], hash[:8])
	return out
}

// ETFAddress derives the ETF PDA for lister.
func ETFAddress(lister, programID string) (string, uint8, error) {
	listerBytes, err := solana.DecodeAddress(lister)
	if err != nil {
		return "", 0, fmt.Errorf("lister: %w", err)
	}
	return solana.FindProgramAddress([][]byte{[]byte(ETFSeed), listerBytes}, programID)
}

// ETFAccount is the on-chain ETF state.
type ETFAccount struct {
	Lister         solanago.PublicKey
	TokenAddresses []solanago.PublicKey
	TotalSupply    uint64
	Bump           uint8
}

// DecodeETFAccount decodes raw account data, discriminator included.
// Layout: disc(8) | lister(32) | vec<pubkey>(4+32n) | total_supply u64 | bump u8.
func DecodeETFAccount(data []byte) (*ETFAccount, error) {
	disc := AccountDiscriminator("ETF")
	if len(data) < 8+32+4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidAccount, len(data))
	}
	if [8]byte(data[:8]) != disc {
		return nil, fmt.Errorf("%w: discriminator mismatch", ErrInvalidAccount)
	}

	off := 8
	acc := &ETFAccount{Lister: solanago.PublicKeyFromBytes(data[off : off+32])}
	off += 32

	n := int(binary.LittleEndian.Uint32(data[off : off+4]))
	off += 4
	if n > MaxTokens || len(data) < off+32*n+8+1 {
		return nil, fmt.Errorf("%w: token vector of %d", ErrInvalidAccount, n)
	}
	acc.TokenAddresses = make([]solanago.PublicKey, n)
	for i := 0; i < n; i++ {
		acc.TokenAddresses[i] = solanago.PublicKeyFromBytes(data[off : off+32])
		off += 32
	}

	acc.TotalSupply = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	acc.Bump = data[off]

	return acc, nil
}

// EncodeETFAccount is the inverse of DecodeETFAccount.
func EncodeETFAccount(acc *ETFAccount) []byte {
	disc := AccountDiscriminator("ETF")
	out := make([]byte, 0, 8+32+4+32*len(acc.TokenAddresses)+9)
	out = append(out, disc[:]...)
	out = append(out, acc.Lister[:]...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(acc.TokenAddresses)))
	for _, t := range acc.TokenAddresses {
		out = append(out, t[:]...)
	}
	out = binary.LittleEndian.AppendUint64(out, acc.TotalSupply)
	return append(out, acc.Bump)
}
