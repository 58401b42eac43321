// Package custody holds the platform custody key: decryption, signing and
// submission of platform-paid transactions.
package custody

import (
	"context"
	"errors"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"
	"go.uber.org/zap"

	"memeetf/internal/domain"
	"memeetf/internal/program"
	"memeetf/internal/solana"
)

// transferComputeUnits covers a system transfer plus memo.
const transferComputeUnits = 50_000

// TransferFeeReserve is kept on the custody wallet on top of each transfer
// to pay the network fee.
const TransferFeeReserve = 10_000

// Signer signs with the custody key. The private key never leaves the struct.
type Signer struct {
	key solanago.PrivateKey
	rpc solana.RPCClient
	log *zap.SugaredLogger
}

// NewSigner wraps an already decrypted key.
func NewSigner(key solanago.PrivateKey, rpc solana.RPCClient, log *zap.SugaredLogger) (*Signer, error) {
	if len(key) != 64 {
		return nil, fmt.Errorf("%w: private key must be 64 bytes, got %d", domain.ErrKey, len(key))
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Signer{key: key, rpc: rpc, log: log.With("component", "custody")}, nil
}

// LoadSigner decrypts an encrypted key and returns a Signer. The plaintext may be
// a raw 64-byte keypair or its base58 encoding.
func LoadSigner(encrypted, passphrase string, rpc solana.RPCClient, log *zap.SugaredLogger) (*Signer, error) {
	plain, err := Decrypt(encrypted, passphrase)
	if err != nil {
		return nil, err
	}

	var key solanago.PrivateKey
	if len(plain) == 64 {
		key = solanago.PrivateKey(plain)
	} else {
		key, err = solanago.PrivateKeyFromBase58(string(plain))
		if err != nil {
			return nil, fmt.Errorf("%w: parse private key: %v", domain.ErrKey, err)
		}
	}
	return NewSigner(key, rpc, log)
}

// PublicKey returns the custody wallet key.
func (s *Signer) PublicKey() solanago.PublicKey {
	return s.key.PublicKey()
}

// Address returns the custody wallet address in base58.
func (s *Signer) Address() string {
	return s.key.PublicKey().String()
}

// Sign adds the custody signature to tx. The custody wallet must be the only
// required signer.
func (s *Signer) Sign(tx *solanago.Transaction) error {
	pub := s.key.PublicKey()
	_, err := tx.Sign(func(pk solanago.PublicKey) *solanago.PrivateKey {
		if pk.Equals(pub) {
			return &s.key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: sign: %v", domain.ErrKey, err)
	}
	return nil
}

// SignAndSubmit signs tx and sends it. Returns the transaction signature.
// Submission failures wrap domain.ErrChain. When the node did not explicitly
// reject the transaction it may still have been broadcast, so the signature
// is returned alongside the error and callers must treat it as in flight.
func (s *Signer) SignAndSubmit(ctx context.Context, tx *solanago.Transaction) (string, error) {
	if err := s.Sign(tx); err != nil {
		return "", err
	}

	b64, err := program.EncodeBase64Tx(tx)
	if err != nil {
		return "", err
	}

	sig, err := s.rpc.SendTransaction(ctx, b64)
	if err != nil {
		if errors.Is(err, solana.ErrRPCRejected) || len(tx.Signatures) == 0 {
			return "", fmt.Errorf("%w: send transaction: %v", domain.ErrChain, err)
		}
		sig = tx.Signatures[0].String()
		s.log.Warnw("send outcome unknown", "signature", sig, "error", err)
		return sig, fmt.Errorf("%w: send transaction %s: %v", domain.ErrChain, sig, err)
	}
	return sig, nil
}

// Transfer sends lamports from the custody wallet to destination with an
// optional memo.
func (s *Signer) Transfer(ctx context.Context, destination string, lamports uint64, memo string) (string, error) {
	to, err := solanago.PublicKeyFromBase58(destination)
	if err != nil {
		return "", domain.Validationf("destination address %q: %v", destination, err)
	}
	if lamports == 0 {
		return "", domain.Validationf("transfer amount must be positive")
	}

	instructions, err := s.transferInstructions(to, lamports, memo)
	if err != nil {
		return "", err
	}

	tx, err := s.NewTransaction(ctx, instructions)
	if err != nil {
		return "", err
	}

	sig, err := s.SignAndSubmit(ctx, tx)
	if err != nil {
		return sig, err
	}

	s.log.Infow("transfer submitted",
		"to", destination,
		"lamports", lamports,
		"signature", sig,
	)
	return sig, nil
}

// NewTransaction builds an unsigned custody-paid transaction on a fresh blockhash.
func (s *Signer) NewTransaction(ctx context.Context, instructions []solanago.Instruction) (*solanago.Transaction, error) {
	bh, err := s.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: get latest blockhash: %v", domain.ErrChain, err)
	}
	return program.NewUnsignedTransaction(instructions, bh.Hash, s.key.PublicKey())
}

func (s *Signer) transferInstructions(to solanago.PublicKey, lamports uint64, memo string) ([]solanago.Instruction, error) {
	cuLimit, err := computebudget.NewSetComputeUnitLimitInstruction(transferComputeUnits).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("build compute unit limit: %w", err)
	}

	transfer, err := system.NewTransferInstruction(lamports, s.key.PublicKey(), to).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("build transfer: %w", err)
	}

	instructions := []solanago.Instruction{cuLimit, transfer}
	if memo != "" {
		instructions = append(instructions, MemoInstruction(memo))
	}
	return instructions, nil
}

// MemoInstruction builds a signer-less memo program instruction.
func MemoInstruction(text string) solanago.Instruction {
	return solanago.NewInstruction(
		solanago.MustPublicKeyFromBase58(solana.MemoProgramID),
		solanago.AccountMetaSlice{},
		[]byte(text),
	)
}
