// Package bundle prepares ordered unsigned transactions for client-side
// signing. Nothing here touches the ledger or keeps server state.
package bundle

import (
	"context"
	"errors"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"go.uber.org/zap"

	"memeetf/internal/custody"
	"memeetf/internal/domain"
	"memeetf/internal/jupiter"
	"memeetf/internal/program"
	"memeetf/internal/solana"
)

// Transaction kinds.
const (
	KindFee    = "fee"
	KindSwap   = "swap"
	KindCreate = "create"
)

// ChainReader is the RPC surface the builder needs.
type ChainReader interface {
	GetAccountInfo(ctx context.Context, pubkey string) (*solana.AccountInfo, error)
	GetLatestBlockhash(ctx context.Context) (*solana.Blockhash, error)
}

// Quoter builds aggregator swap transactions for a user wallet.
type Quoter interface {
	Quote(ctx context.Context, req jupiter.QuoteRequest) (*jupiter.Quote, error)
	SwapTransaction(ctx context.Context, quote *jupiter.Quote, userPublicKey string) (string, error)
}

// Tx is one unsigned transaction of a bundle.
type Tx struct {
	Index     int    `json:"index"`
	Kind      string `json:"kind"`
	Mint      string `json:"mint,omitempty"`
	Lamports  uint64 `json:"lamports"`
	Base64    string `json:"transaction"`
	Simulated bool   `json:"simulated,omitempty"` // devnet memo standing in for a swap
}

// Bundle is an ordered set of unsigned transactions. Clients sign and submit
// them in Index order.
type Bundle struct {
	ID              string         `json:"bundleId"`
	Network         domain.Network `json:"network"`
	Blockhash       string         `json:"blockhash"`
	ContractAddress string         `json:"contractAddress,omitempty"`
	Transactions    []Tx           `json:"transactions"`
}

// Builder assembles bundles.
type Builder struct {
	chain          ChainReader
	quoter         Quoter
	programID      solanago.PublicKey
	platformWallet solanago.PublicKey
	network        domain.Network
	slippageBps    int
	log            *zap.SugaredLogger
}

// Options for creating Builder.
type Options struct {
	Chain          ChainReader
	Quoter         Quoter // required on mainnet
	ProgramID      string // default program.DefaultProgramID
	PlatformWallet string
	Network        domain.Network
	SlippageBps    int
	Logger         *zap.SugaredLogger
}

// NewBuilder creates a Builder.
func NewBuilder(opts Options) (*Builder, error) {
	if opts.Chain == nil {
		return nil, errors.New("bundle: chain reader is required")
	}
	if !opts.Network.IsValid() {
		return nil, fmt.Errorf("bundle: invalid network %q", opts.Network)
	}
	if opts.Network == domain.NetworkMainnet && opts.Quoter == nil {
		return nil, errors.New("bundle: quoter is required on mainnet")
	}

	programID := opts.ProgramID
	if programID == "" {
		programID = program.DefaultProgramID
	}
	pid, err := solanago.PublicKeyFromBase58(programID)
	if err != nil {
		return nil, fmt.Errorf("bundle: program id: %w", err)
	}
	platform, err := solanago.PublicKeyFromBase58(opts.PlatformWallet)
	if err != nil {
		return nil, fmt.Errorf("bundle: platform wallet: %w", err)
	}

	b := &Builder{
		chain:          opts.Chain,
		quoter:         opts.Quoter,
		programID:      pid,
		platformWallet: platform,
		network:        opts.Network,
		slippageBps:    opts.SlippageBps,
		log:            opts.Logger,
	}
	if b.slippageBps <= 0 {
		b.slippageBps = 100
	}
	if b.log == nil {
		b.log = zap.NewNop().Sugar()
	}
	b.log = b.log.With("component", "bundle")
	return b, nil
}

// blockhash fetches one recent blockhash shared by every transaction of a bundle.
func (b *Builder) blockhash(ctx context.Context) (string, error) {
	bh, err := b.chain.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: latest blockhash: %v", domain.ErrChain, err)
	}
	return bh.Hash, nil
}

// etfInitialized reports whether the creator's ETF account exists and is
// owned by the program.
func (b *Builder) etfInitialized(ctx context.Context, creator string) (solanago.PublicKey, bool, error) {
	addr, _, err := program.ETFAddress(creator, b.programID.String())
	if err != nil {
		return solanago.PublicKey{}, false, fmt.Errorf("derive etf address: %w", err)
	}
	pda := solanago.MustPublicKeyFromBase58(addr)

	info, err := b.chain.GetAccountInfo(ctx, addr)
	if err != nil {
		return pda, false, fmt.Errorf("%w: get etf account: %v", domain.ErrChain, err)
	}
	return pda, info != nil && info.Owner == b.programID.String(), nil
}

// encode builds and serializes an unsigned transaction paid by payer.
func (b *Builder) encode(instructions []solanago.Instruction, blockhash string, payer solanago.PublicKey) (string, error) {
	tx, err := program.NewUnsignedTransaction(instructions, blockhash, payer)
	if err != nil {
		return "", err
	}
	return program.EncodeBase64Tx(tx)
}

// feeTransfers returns system transfers of the lister and platform fee.
func (b *Builder) feeTransfers(from, lister solanago.PublicKey, listerFee, platformFee uint64) ([]solanago.Instruction, error) {
	var out []solanago.Instruction
	for _, leg := range []struct {
		to       solanago.PublicKey
		lamports uint64
	}{{lister, listerFee}, {b.platformWallet, platformFee}} {
		if leg.lamports == 0 {
			continue
		}
		ix, err := system.NewTransferInstruction(leg.lamports, from, leg.to).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("build fee transfer: %w", err)
		}
		out = append(out, ix)
	}
	return out, nil
}

// swapTx returns one swap transaction for owner. On devnet, which has no
// aggregator, a memo transaction stands in and is flagged simulated.
func (b *Builder) swapTx(ctx context.Context, owner solanago.PublicKey, inputMint, outputMint string, amount uint64, blockhash string) (string, uint64, bool, error) {
	if b.network == domain.NetworkDevnet {
		memo := fmt.Sprintf("swap:%s:%d", outputMint, amount)
		if outputMint == domain.WSOLMint {
			memo = fmt.Sprintf("swap:%s:%d", inputMint, amount)
		}
		b64, err := b.encode([]solanago.Instruction{custody.MemoInstruction(memo)}, blockhash, owner)
		return b64, amount, true, err
	}

	quote, err := b.quoter.Quote(ctx, jupiter.QuoteRequest{
		InputMint:   inputMint,
		OutputMint:  outputMint,
		Amount:      amount,
		SlippageBps: b.slippageBps,
	})
	if err != nil {
		return "", 0, false, fmt.Errorf("%w: quote %s -> %s: %v", domain.ErrExternalCall, inputMint, outputMint, err)
	}
	b64, err := b.quoter.SwapTransaction(ctx, quote, owner.String())
	if err != nil {
		return "", 0, false, fmt.Errorf("%w: swap transaction %s -> %s: %v", domain.ErrExternalCall, inputMint, outputMint, err)
	}
	return b64, quote.OutAmount, false, nil
}
