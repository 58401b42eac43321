package program

import (
	"encoding/binary"
	"errors"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testLister = "So11111111111111111111111111111111111111112"
	testMintA  = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	testMintB  = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

func TestInstructionDiscriminator(t *testing.T) {
	assert.Equal(t, [8]byte{243, 110, 32, 193, 56, 91, 105, 249}, InstructionDiscriminator(InstructionBuyETF))
	assert.Equal(t, [8]byte{123, 32, 97, 226, 112, 102, 12, 181}, InstructionDiscriminator(InstructionInitializeETF))
	assert.Equal(t, [8]byte{144, 207, 151, 113, 181, 176, 56, 54}, AccountDiscriminator("ETF"))
}

func TestETFAddress_Deterministic(t *testing.T) {
	a, bumpA, err := ETFAddress(testLister, DefaultProgramID)
	require.NoError(t, err)
	b, bumpB, err := ETFAddress(testLister, DefaultProgramID)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, bumpA, bumpB)

	other, _, err := ETFAddress(testMintA, DefaultProgramID)
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
}

func TestETFAddress_InvalidLister(t *testing.T) {
	_, _, err := ETFAddress("not-a-key", DefaultProgramID)
	require.Error(t, err)
}

func TestDecodeETFAccount(t *testing.T) {
	acc := &ETFAccount{
		Lister: solanago.MustPublicKeyFromBase58(testLister),
		TokenAddresses: []solanago.PublicKey{
			solanago.MustPublicKeyFromBase58(testMintA),
			solanago.MustPublicKeyFromBase58(testMintB),
		},
		TotalSupply: 42_000_000,
		Bump:        254,
	}

	// Anchor allocates the full 10-token capacity; trailing bytes are zero.
	data := EncodeETFAccount(acc)
	data = append(data, make([]byte, 32*(MaxTokens-2))...)

	got, err := DecodeETFAccount(data)
	require.NoError(t, err)
	assert.Equal(t, acc.Lister, got.Lister)
	assert.Equal(t, acc.TokenAddresses, got.TokenAddresses)
	assert.Equal(t, uint64(42_000_000), got.TotalSupply)
	assert.Equal(t, uint8(254), got.Bump)
}

func TestDecodeETFAccount_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", make([]byte, 20)},
		{"wrong discriminator", make([]byte, 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeETFAccount(tt.data)
			assert.True(t, errors.Is(err, ErrInvalidAccount), "got %v", err)
		})
	}

	t.Run("oversized vector", func(t *testing.T) {
		disc := AccountDiscriminator("ETF")
		data := append([]byte{}, disc[:]...)
		data = append(data, make([]byte, 32)...)
		data = binary.LittleEndian.AppendUint32(data, 11)
		_, err := DecodeETFAccount(data)
		assert.ErrorIs(t, err, ErrInvalidAccount)
	})
}

func TestNewBuyETFInstruction(t *testing.T) {
	programID := solanago.MustPublicKeyFromBase58(DefaultProgramID)
	etf := solanago.MustPublicKeyFromBase58(testMintA)
	investor := solanago.MustPublicKeyFromBase58(testMintB)
	lister := solanago.MustPublicKeyFromBase58(testLister)

	ix := NewBuyETFInstruction(programID, etf, investor, lister, 5_000_000)

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 16)
	disc := InstructionDiscriminator(InstructionBuyETF)
	assert.Equal(t, disc[:], data[:8])
	assert.Equal(t, uint64(5_000_000), binary.LittleEndian.Uint64(data[8:]))

	accounts := ix.Accounts()
	require.Len(t, accounts, 4)
	assert.True(t, accounts[1].IsSigner)
	assert.True(t, accounts[0].IsWritable)
	assert.Equal(t, solanago.SystemProgramID, accounts[3].PublicKey)
	assert.Equal(t, programID, ix.ProgramID())
}

func TestNewInitializeETFInstruction(t *testing.T) {
	programID := solanago.MustPublicKeyFromBase58(DefaultProgramID)
	etf := solanago.MustPublicKeyFromBase58(testMintA)
	lister := solanago.MustPublicKeyFromBase58(testLister)
	tokens := []solanago.PublicKey{solanago.MustPublicKeyFromBase58(testMintB)}

	ix, err := NewInitializeETFInstruction(programID, etf, lister, tokens)
	require.NoError(t, err)

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 8+4+32)
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[8:12]))

	_, err = NewInitializeETFInstruction(programID, etf, lister, make([]solanago.PublicKey, MaxTokens+1))
	assert.Error(t, err)

	_, err = NewInitializeETFInstruction(programID, etf, lister, nil)
	assert.Error(t, err)
}

func TestUnsignedTransaction_RoundTrip(t *testing.T) {
	programID := solanago.MustPublicKeyFromBase58(DefaultProgramID)
	etf := solanago.MustPublicKeyFromBase58(testMintA)
	investor := solanago.MustPublicKeyFromBase58(testMintB)
	lister := solanago.MustPublicKeyFromBase58(testLister)

	tx, err := NewUnsignedTransaction(
		[]solanago.Instruction{NewBuyETFInstruction(programID, etf, investor, lister, 1000)},
		"EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N",
		investor,
	)
	require.NoError(t, err)
	require.Len(t, tx.Signatures, 1)
	assert.True(t, tx.Signatures[0].IsZero())

	b64, err := EncodeBase64Tx(tx)
	require.NoError(t, err)

	decoded, err := DecodeBase64Tx(b64)
	require.NoError(t, err)
	assert.Equal(t, investor, decoded.Message.AccountKeys[0])
	assert.Equal(t, tx.Message.RecentBlockhash, decoded.Message.RecentBlockhash)
}

func TestNewUnsignedTransaction_BadBlockhash(t *testing.T) {
	payer := solanago.MustPublicKeyFromBase58(testLister)
	_, err := NewUnsignedTransaction(nil, "###", payer)
	require.Error(t, err)
}
