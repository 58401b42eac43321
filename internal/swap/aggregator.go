package swap

import (
	"context"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"memeetf/internal/confirm"
	"memeetf/internal/domain"
	"memeetf/internal/jupiter"
	"memeetf/internal/program"
	"memeetf/internal/solana"
)

// Quoter is the aggregator surface used by AggregatorExecutor.
type Quoter interface {
	Quote(ctx context.Context, req jupiter.QuoteRequest) (*jupiter.Quote, error)
	SwapTransaction(ctx context.Context, quote *jupiter.Quote, userPublicKey string) (string, error)
}

// Signer signs and submits custody-paid transactions.
type Signer interface {
	Address() string
	SignAndSubmit(ctx context.Context, tx *solanago.Transaction) (string, error)
}

// Confirmer waits for a signature to land.
type Confirmer interface {
	Wait(ctx context.Context, signature string) (confirm.Status, error)
}

// TransactionReader fetches a landed transaction.
type TransactionReader interface {
	GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error)
}

// AggregatorExecutor swaps from the custody wallet through the aggregator and
// waits for confirmation. The recorded output is the custody balance change
// of the landed transaction. Every failure wraps domain.ErrExternalCall.
type AggregatorExecutor struct {
	quoter    Quoter
	signer    Signer
	confirmer Confirmer
	chain     TransactionReader
	log       *zap.SugaredLogger
}

var _ Executor = (*AggregatorExecutor)(nil)

// NewAggregatorExecutor creates a mainnet executor.
func NewAggregatorExecutor(quoter Quoter, signer Signer, confirmer Confirmer, chain TransactionReader, log *zap.SugaredLogger) *AggregatorExecutor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &AggregatorExecutor{
		quoter:    quoter,
		signer:    signer,
		confirmer: confirmer,
		chain:     chain,
		log:       log.With("component", "swap"),
	}
}

// Swap implements Executor.
func (e *AggregatorExecutor) Swap(ctx context.Context, req domain.SwapRequest) (*domain.SwapResult, error) {
	quote, err := e.quoter.Quote(ctx, jupiter.QuoteRequest{
		InputMint:   req.InputMint,
		OutputMint:  req.OutputMint,
		Amount:      req.InputAmount,
		SlippageBps: req.SlippageBps,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExternalCall, err)
	}

	b64, err := e.quoter.SwapTransaction(ctx, quote, e.signer.Address())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExternalCall, err)
	}

	tx, err := program.DecodeBase64Tx(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExternalCall, err)
	}

	sig, err := e.signer.SignAndSubmit(ctx, tx)
	if err != nil {
		if sig == "" {
			return nil, fmt.Errorf("%w: submit swap: %v", domain.ErrExternalCall, err)
		}
		// possibly broadcast; its confirmation decides the outcome
		e.log.Warnw("swap submission ambiguous", "signature", sig, "error", err)
	}

	if _, err := e.confirmer.Wait(ctx, sig); err != nil {
		return nil, fmt.Errorf("%w: swap %s: %v", domain.ErrExternalCall, sig, err)
	}

	out, err := e.landedOutput(ctx, sig, req.OutputMint)
	if err != nil {
		// The swap landed, so slippage protection guarantees at least MinOutAmount.
		out = quote.MinOutAmount
		e.log.Errorw("swap output unreadable, recording minimum",
			"signature", sig,
			"output_mint", req.OutputMint,
			"quoted", quote.OutAmount,
			"recorded", out,
			"error", err,
			"reconciliation", true,
		)
	}

	e.log.Infow("swap confirmed",
		"input_mint", req.InputMint,
		"output_mint", req.OutputMint,
		"input_amount", req.InputAmount,
		"quoted_amount", quote.OutAmount,
		"output_amount", out,
		"signature", sig,
	)

	return &domain.SwapResult{
		RequestedMint: req.OutputMint,
		OutputMint:    req.OutputMint,
		InputAmount:   req.InputAmount,
		OutputAmount:  out,
		TxSignature:   sig,
	}, nil
}

// landedOutput reads how much of mint the custody wallet gained in the
// confirmed transaction sig. Native SOL output is unwrapped by the aggregator,
// so it is measured on the lamport balance with the network fee added back.
func (e *AggregatorExecutor) landedOutput(ctx context.Context, sig, mint string) (uint64, error) {
	tx, err := e.chain.GetTransaction(context.WithoutCancel(ctx), sig)
	if err != nil {
		return 0, fmt.Errorf("get transaction: %w", err)
	}
	if tx == nil || tx.Meta == nil {
		return 0, fmt.Errorf("transaction %s not available", sig)
	}

	owner := e.signer.Address()
	if delta, ok := tx.TokenBalanceChange(owner, mint); ok && delta > 0 {
		return uint64(delta), nil
	}
	if mint == domain.WSOLMint {
		if delta, ok := tx.BalanceChange(owner); ok {
			delta += int64(tx.Meta.Fee)
			if delta > 0 {
				return uint64(delta), nil
			}
		}
	}
	return 0, fmt.Errorf("no %s balance increase for %s", mint, owner)
}
