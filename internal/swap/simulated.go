package swap

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"memeetf/internal/domain"
)

// SimulatedExecutor stands in for the aggregator on devnet, where most
// mainnet mints do not exist. Mints outside Available are replaced by
// Substitute and reported as substituted. Output equals input.
type SimulatedExecutor struct {
	substitute string
	available  map[string]bool
	log        *zap.SugaredLogger
}

var _ Executor = (*SimulatedExecutor)(nil)

// NewSimulatedExecutor creates a devnet executor. An empty substitute leaves
// requested mints untouched.
func NewSimulatedExecutor(substitute string, available []string, log *zap.SugaredLogger) *SimulatedExecutor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	set := make(map[string]bool, len(available))
	for _, m := range available {
		set[m] = true
	}
	return &SimulatedExecutor{
		substitute: substitute,
		available:  set,
		log:        log.With("component", "swap-sim"),
	}
}

// Swap implements Executor.
func (e *SimulatedExecutor) Swap(ctx context.Context, req domain.SwapRequest) (*domain.SwapResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExternalCall, err)
	}
	if req.InputAmount == 0 {
		return nil, fmt.Errorf("%w: zero input amount", domain.ErrExternalCall)
	}

	out := req.OutputMint
	substituted := false
	if e.substitute != "" && !e.available[out] && out != e.substitute && out != domain.WSOLMint {
		out = e.substitute
		substituted = true
	}

	sig, err := randomSignature()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExternalCall, err)
	}

	e.log.Infow("simulated swap",
		"requested_mint", req.OutputMint,
		"output_mint", out,
		"substituted", substituted,
		"amount", req.InputAmount,
		"signature", sig,
	)

	return &domain.SwapResult{
		RequestedMint: req.OutputMint,
		OutputMint:    out,
		Substituted:   substituted,
		InputAmount:   req.InputAmount,
		OutputAmount:  req.InputAmount,
		TxSignature:   sig,
	}, nil
}

// randomSignature returns a base58 string shaped like a transaction signature.
func randomSignature() (string, error) {
	b := make([]byte, 64)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base58.Encode(b), nil
}
