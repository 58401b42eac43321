package solana

import (
	"errors"
	"testing"

	"github.com/mr-tron/base58"
)

func TestIsValidAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    bool
	}{
		{"system program", SystemProgramID, true},
		{"wsol mint", "So11111111111111111111111111111111111111112", true},
		{"empty", "", false},
		{"not base58", "0OIl+/", false},
		{"too short", "abc", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidAddress(tt.address); got != tt.want {
				t.Errorf("IsValidAddress(%q) = %v, want %v", tt.address, got, tt.want)
			}
		})
	}
}

func TestDecodeAddress_WrapsSentinel(t *testing.T) {
	_, err := DecodeAddress("abc")
	if !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestFindProgramAddress_Deterministic(t *testing.T) {
	programID := "6ZuD488g1DR652G2zmBsr7emXuQXQ26ZbkFZPyRyr627"
	lister, _ := DecodeAddress("So11111111111111111111111111111111111111112")
	seeds := [][]byte{[]byte("etf"), lister}

	addr1, bump1, err := FindProgramAddress(seeds, programID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	addr2, bump2, err := FindProgramAddress(seeds, programID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}

	if addr1 != addr2 || bump1 != bump2 {
		t.Errorf("derivation not deterministic: %s/%d vs %s/%d", addr1, bump1, addr2, bump2)
	}

	raw, err := base58.Decode(addr1)
	if err != nil || len(raw) != 32 {
		t.Fatalf("derived address is not a 32-byte key: %s", addr1)
	}
	if isOnCurve(raw) {
		t.Errorf("derived address %s lies on the ed25519 curve", addr1)
	}
}

func TestFindProgramAddress_DifferentSeeds(t *testing.T) {
	programID := "6ZuD488g1DR652G2zmBsr7emXuQXQ26ZbkFZPyRyr627"

	a, _, err := FindProgramAddress([][]byte{[]byte("etf"), []byte("a")}, programID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	b, _, err := FindProgramAddress([][]byte{[]byte("etf"), []byte("b")}, programID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	if a == b {
		t.Error("expected distinct addresses for distinct seeds")
	}
}

func TestFindProgramAddress_SeedTooLong(t *testing.T) {
	_, _, err := FindProgramAddress([][]byte{make([]byte, 33)}, SystemProgramID)
	if err == nil {
		t.Fatal("expected error for oversized seed")
	}
}

func TestFindProgramAddress_BadProgramID(t *testing.T) {
	_, _, err := FindProgramAddress([][]byte{[]byte("etf")}, "bad")
	if !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestTransaction_BalanceChange(t *testing.T) {
	tx := &Transaction{
		Meta: &TransactionMeta{
			PreBalances:  []uint64{5_000_000_000, 1_000_000_000},
			PostBalances: []uint64{3_999_995_000, 2_000_000_000},
		},
		Message: &TransactionMessage{
			AccountKeys:           []string{"payer", "custody"},
			NumRequiredSignatures: 1,
		},
	}

	delta, ok := tx.BalanceChange("custody")
	if !ok || delta != 1_000_000_000 {
		t.Errorf("custody delta = %d, %v; want 1000000000, true", delta, ok)
	}

	if _, ok := tx.BalanceChange("stranger"); ok {
		t.Error("expected ok=false for account not in transaction")
	}

	signers := tx.Message.Signers()
	if len(signers) != 1 || signers[0] != "payer" {
		t.Errorf("unexpected signers %v", signers)
	}
}

func TestTransaction_TokenBalanceChange(t *testing.T) {
	tx := &Transaction{
		Meta: &TransactionMeta{
			PreTokenBalances: []TokenBalance{
				{AccountIndex: 2, Mint: "wsol", Owner: "custody", Amount: 900},
			},
			PostTokenBalances: []TokenBalance{
				{AccountIndex: 2, Mint: "wsol", Owner: "custody", Amount: 0},
				{AccountIndex: 3, Mint: "meme", Owner: "custody", Amount: 4_200},
			},
		},
	}

	delta, ok := tx.TokenBalanceChange("custody", "meme")
	if !ok || delta != 4_200 {
		t.Errorf("meme delta = %d, %v; want 4200, true (account created in tx)", delta, ok)
	}

	delta, ok = tx.TokenBalanceChange("custody", "wsol")
	if !ok || delta != -900 {
		t.Errorf("wsol delta = %d, %v; want -900, true", delta, ok)
	}

	if _, ok := tx.TokenBalanceChange("stranger", "meme"); ok {
		t.Error("expected ok=false for owner without a token account")
	}
}
