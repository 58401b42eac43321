package investment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"memeetf/internal/domain"
	"memeetf/internal/observability"
	"memeetf/internal/swap"
)

// Orchestrator defaults.
const (
	DefaultSwapTimeout = 45 * time.Second
	DefaultSlippageBps = 100
)

// PlannedSwap is one step of a swap sequence.
type PlannedSwap struct {
	Position   int
	Weight     float64
	InputMint  string
	OutputMint string
	Amount     uint64 // input base units
}

// OrchestrationResult reports how far a swap sequence got.
type OrchestrationResult struct {
	Completed   []domain.SwapResult
	FailedIndex int // -1 when every step succeeded
}

// Plan splits total SOL across constituents by weight into WSOL -> token swaps.
// A constituent whose share floors to zero lamports is rejected before any call.
func Plan(total decimal.Decimal, constituents []domain.Constituent) ([]PlannedSwap, error) {
	if len(constituents) == 0 {
		return nil, domain.Validationf("basket has no constituents")
	}

	plan := make([]PlannedSwap, 0, len(constituents))
	for i, c := range constituents {
		lamports, err := domain.ShareLamports(total, c.Weight)
		if err != nil {
			return nil, err
		}
		if lamports == 0 {
			return nil, domain.Validationf("constituent %d (%s) receives zero lamports", i, c.Mint)
		}
		plan = append(plan, PlannedSwap{
			Position:   i,
			Weight:     c.Weight,
			InputMint:  domain.WSOLMint,
			OutputMint: c.Mint,
			Amount:     lamports,
		})
	}
	return plan, nil
}

// Orchestrator drives a swap sequence strictly in order and stops at the
// first failure. It holds no state between runs.
type Orchestrator struct {
	executor    swap.Executor
	timeout     time.Duration
	slippageBps int
	metrics     *observability.Metrics
	log         *zap.SugaredLogger
}

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	Executor    swap.Executor
	SwapTimeout time.Duration // per call, default 45s
	SlippageBps int
	Metrics     *observability.Metrics
	Logger      *zap.SugaredLogger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	o := &Orchestrator{
		executor:    opts.Executor,
		timeout:     opts.SwapTimeout,
		slippageBps: opts.SlippageBps,
		metrics:     opts.Metrics,
		log:         opts.Logger,
	}
	if o.timeout <= 0 {
		o.timeout = DefaultSwapTimeout
	}
	if o.slippageBps <= 0 {
		o.slippageBps = DefaultSlippageBps
	}
	if o.log == nil {
		o.log = zap.NewNop().Sugar()
	}
	o.log = o.log.With("component", "orchestrator")
	return o
}

// Run plans and executes the WSOL -> constituent swaps of a reserved amount.
func (o *Orchestrator) Run(ctx context.Context, reserved decimal.Decimal, constituents []domain.Constituent) (*OrchestrationResult, error) {
	plan, err := Plan(reserved, constituents)
	if err != nil {
		return nil, err
	}
	return o.Execute(ctx, plan)
}

// Execute runs the planned swaps in order. On failure the returned result
// holds the swaps completed so far and the error wraps domain.ErrExternalCall.
func (o *Orchestrator) Execute(ctx context.Context, plan []PlannedSwap) (*OrchestrationResult, error) {
	result := &OrchestrationResult{
		Completed:   make([]domain.SwapResult, 0, len(plan)),
		FailedIndex: -1,
	}

	for i, step := range plan {
		res, err := o.swap(ctx, step)
		if err != nil {
			result.FailedIndex = i
			o.log.Warnw("swap sequence aborted",
				"position", step.Position,
				"input_mint", step.InputMint,
				"output_mint", step.OutputMint,
				"amount", step.Amount,
				"completed", len(result.Completed),
				"error", err,
			)
			return result, fmt.Errorf("swap %d of %d (%s -> %s): %w",
				i+1, len(plan), step.InputMint, step.OutputMint, asExternal(err))
		}
		result.Completed = append(result.Completed, *res)
	}

	return result, nil
}

func (o *Orchestrator) swap(ctx context.Context, step PlannedSwap) (*domain.SwapResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	res, err := o.executor.Swap(callCtx, domain.SwapRequest{
		InputMint:   step.InputMint,
		OutputMint:  step.OutputMint,
		InputAmount: step.Amount,
		SlippageBps: o.slippageBps,
	})
	if err == nil && res == nil {
		err = errors.New("executor returned no result")
	}
	o.metrics.RecordSwap(err, time.Since(start))
	if err != nil {
		return nil, err
	}

	out := *res
	out.Position = step.Position
	out.Weight = step.Weight
	return &out, nil
}

func asExternal(err error) error {
	if errors.Is(err, domain.ErrExternalCall) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrExternalCall, err)
}
