// Package investment runs the custodial buy and sell sagas: reserve funds,
// drive the swap sequence, then settle or compensate on the ledger.
package investment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/validation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"memeetf/internal/domain"
	"memeetf/internal/marketdata"
	"memeetf/internal/observability"
	"memeetf/internal/storage"
)

// Service is the custodial investment saga.
type Service struct {
	etfs         storage.ETFStore
	investments  storage.InvestmentStore
	reserver     *Reserver
	orchestrator *Orchestrator
	compensator  *Compensator
	recorder     *Recorder
	market       marketdata.Source
	network      domain.Network
	metrics      *observability.Metrics
	log          *zap.SugaredLogger
}

// Options for creating Service.
type Options struct {
	// Required
	Ledger       storage.LedgerStore
	Transactions storage.TransactionStore
	ETFs         storage.ETFStore
	Investments  storage.InvestmentStore
	Orchestrator *Orchestrator
	Network      domain.Network

	// Optional
	Fills       storage.SwapFillSink
	Compensator *Compensator // default built from Ledger and Transactions
	MarketData  marketdata.Source
	Metrics     *observability.Metrics
	Logger      *zap.SugaredLogger
}

// NewService creates a Service.
func NewService(opts Options) (*Service, error) {
	if opts.Ledger == nil || opts.Transactions == nil || opts.ETFs == nil ||
		opts.Investments == nil || opts.Orchestrator == nil {
		return nil, errors.New("investment: ledger, transaction, etf and investment stores and an orchestrator are required")
	}
	if !opts.Network.IsValid() {
		return nil, fmt.Errorf("investment: invalid network %q", opts.Network)
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	comp := opts.Compensator
	if comp == nil {
		comp = NewCompensator(CompensatorOptions{
			Ledger:       opts.Ledger,
			Transactions: opts.Transactions,
			Metrics:      opts.Metrics,
			Logger:       log,
		})
	}
	market := opts.MarketData
	if market == nil {
		market = marketdata.Static{}
	}

	return &Service{
		etfs:         opts.ETFs,
		investments:  opts.Investments,
		reserver:     NewReserver(opts.Ledger),
		orchestrator: opts.Orchestrator,
		compensator:  comp,
		recorder: NewRecorder(RecorderOptions{
			Investments:  opts.Investments,
			Transactions: opts.Transactions,
			Fills:        opts.Fills,
			Metrics:      opts.Metrics,
			Logger:       log,
		}),
		market:  market,
		network: opts.Network,
		metrics: opts.Metrics,
		log:     log.With("component", "investment"),
	}, nil
}

// BuyRequest is a ledger-backed basket purchase.
type BuyRequest struct {
	Wallet string
	ETFID  uuid.UUID
	Amount decimal.Decimal // SOL, before fees
}

// Validate implements validation.Validatable.
func (r BuyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Wallet, validation.Required, domain.Address),
		validation.Field(&r.ETFID, domain.RequiredID),
		validation.Field(&r.Amount, domain.PositiveAmount),
	)
}

// BuyResult is a settled purchase.
type BuyResult struct {
	Investment *domain.Investment
	Balance    decimal.Decimal // after the reservation
	Swaps      []domain.SwapResult
}

// Buy reserves req.Amount, swaps the after-fee amount into the basket and
// settles. On a swap failure the reservation is refunded and the error is a
// *domain.PurchaseFailedError; if the refund or the settlement cannot be
// written the error is a *domain.ReconciliationError.
func (s *Service) Buy(ctx context.Context, req BuyRequest) (*BuyResult, error) {
	start := time.Now()
	res, err := s.buy(ctx, req)
	s.metrics.RecordSaga("buy", outcome(err), time.Since(start))
	return res, err
}

func (s *Service) buy(ctx context.Context, req BuyRequest) (*BuyResult, error) {
	if err := domain.Validate(req); err != nil {
		return nil, err
	}

	etf, err := s.loadETF(ctx, req.ETFID)
	if err != nil {
		return nil, err
	}

	fees := domain.ComputeFees(req.Amount)
	plan, err := Plan(fees.AfterFees, etf.Constituents)
	if err != nil {
		return nil, err
	}

	entryMcap := marketdata.BasketMarketCap(ctx, s.market, etf.Constituents, s.log)

	balance, err := s.reserver.Reserve(ctx, req.Wallet, req.Amount)
	if err != nil {
		return nil, err
	}

	attemptID := uuid.New()
	log := s.log.With("attempt_id", attemptID, "wallet", req.Wallet, "etf_id", etf.ID)
	log.Infow("purchase reserved", "amount", req.Amount, "after_fees", fees.AfterFees, "balance", balance)

	result, swapErr := s.orchestrator.Execute(ctx, plan)
	if swapErr != nil {
		restored, err := s.compensator.Refund(ctx, &domain.Refund{
			AttemptID:   attemptID,
			Wallet:      req.Wallet,
			Amount:      req.Amount,
			FailedIndex: result.FailedIndex,
			Cause:       swapErr,
			Completed:   result.Completed,
			Network:     s.network,
		})
		if err != nil {
			return nil, err
		}
		log.Warnw("purchase failed and refunded",
			"failed_index", result.FailedIndex,
			"completed", len(result.Completed),
			"balance", restored,
			"error", swapErr,
		)
		return nil, &domain.PurchaseFailedError{
			FailedIndex: result.FailedIndex,
			Completed:   result.Completed,
			Refunded:    true,
			Err:         swapErr,
		}
	}

	inv := &domain.Investment{
		ID:             attemptID,
		UserWallet:     req.Wallet,
		ETFID:          etf.ID,
		Network:        s.network,
		SOLAmount:      req.Amount,
		SOLAfterFees:   fees.AfterFees,
		EntryMarketCap: entryMcap,
	}
	swaps := domain.SwapRecordsFromResults(attemptID, result.Completed)
	settlement := &domain.Settlement{
		Investment: inv,
		Swaps:      swaps,
		Fee:        domain.NewFeeRecord(etf, attemptID, fees),
		Entry: &domain.Transaction{
			ID:          uuid.New(),
			UserWallet:  req.Wallet,
			Kind:        domain.TxKindBuy,
			Amount:      req.Amount,
			Fee:         fees.Total,
			Status:      domain.TxStatusCompleted,
			ReferenceID: attemptID,
			Metadata: map[string]any{
				"etf_id":     etf.ID.String(),
				"signatures": domain.Signatures(result.Completed),
			},
			Network: s.network,
		},
	}
	if err := s.recorder.Record(ctx, settlement); err != nil {
		return nil, err
	}

	log.Infow("purchase settled", "swaps", len(swaps), "entry_market_cap", entryMcap)
	inv.Swaps = swaps
	return &BuyResult{
		Investment: inv,
		Balance:    balance,
		Swaps:      result.Completed,
	}, nil
}

// SellResult is a recorded custodial sale.
type SellResult struct {
	InvestmentID uuid.UUID
	Proceeds     decimal.Decimal // credited, after fees
	RealizedPnL  decimal.Decimal
	Balance      decimal.Decimal
	Swaps        []domain.SwapResult
	// Unsold lists constituent positions still held in custody after a
	// partial failure; the sale entry is then pending_reconciliation.
	Unsold                 []int
	RequiresReconciliation bool
}

// Sell swaps every held constituent of an investment back to SOL and credits
// the proceeds after fees. The sold flag is claimed first, so a second call
// fails validation without touching the chain.
func (s *Service) Sell(ctx context.Context, wallet string, investmentID uuid.UUID) (*SellResult, error) {
	start := time.Now()
	res, err := s.sell(ctx, wallet, investmentID)
	o := outcome(err)
	if err == nil && res.RequiresReconciliation {
		o = observability.OutcomeReconciliation
	}
	s.metrics.RecordSaga("sell", o, time.Since(start))
	return res, err
}

func (s *Service) sell(ctx context.Context, wallet string, investmentID uuid.UUID) (*SellResult, error) {
	inv, err := s.investments.GetByID(ctx, investmentID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.Validationf("unknown investment %s", investmentID)
	}
	if err != nil {
		return nil, fmt.Errorf("load investment: %w", err)
	}
	if inv.UserWallet != wallet {
		return nil, domain.Validationf("investment %s does not belong to %s", investmentID, wallet)
	}
	if inv.Sold {
		return nil, domain.Validationf("investment %s already sold", investmentID)
	}

	etf, err := s.loadETF(ctx, inv.ETFID)
	if err != nil {
		return nil, err
	}

	plan, costs, err := sellPlan(inv.Swaps)
	if err != nil {
		return nil, err
	}

	if err := s.investments.MarkSold(ctx, investmentID); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, domain.Validationf("investment %s already sold", investmentID)
		}
		return nil, fmt.Errorf("mark sold: %w", err)
	}

	log := s.log.With("investment_id", investmentID, "wallet", wallet)
	result, swapErr := s.orchestrator.Execute(ctx, plan)

	var unsold []int
	if swapErr != nil {
		for _, step := range plan[result.FailedIndex:] {
			unsold = append(unsold, step.Position)
		}
	}

	var gross uint64
	costBasis := decimal.Zero
	for i, res := range result.Completed {
		gross += res.OutputAmount
		costBasis = costBasis.Add(domain.LamportsToSOL(costs[i]))
	}
	if swapErr == nil {
		costBasis = inv.SOLAfterFees
	}
	fees := domain.ComputeFees(domain.LamportsToSOL(gross))
	proceeds := fees.AfterFees
	pnl := proceeds.Sub(costBasis)

	entryID := uuid.New()
	records := domain.SwapRecordsFromResults(entryID, result.Completed)
	for i, rec := range records {
		rec.RequestedMint = plan[i].InputMint
	}

	status := domain.TxStatusCompleted
	meta := map[string]any{
		"etf_id":         etf.ID.String(),
		"gross_lamports": gross,
		"signatures":     domain.Signatures(result.Completed),
	}
	if swapErr != nil {
		status = domain.TxStatusPendingReconciliation
		meta["unsold_positions"] = unsold
		meta["error"] = swapErr.Error()
	}

	balance, err := s.recorder.RecordSale(ctx, &domain.Sale{
		InvestmentID: investmentID,
		UserWallet:   wallet,
		Proceeds:     proceeds,
		RealizedPnL:  pnl,
		Swaps:        records,
		Fee:          domain.NewFeeRecord(etf, investmentID, fees),
		Entry: &domain.Transaction{
			ID:          entryID,
			UserWallet:  wallet,
			Kind:        domain.TxKindSell,
			Amount:      proceeds,
			Fee:         fees.Total,
			Status:      status,
			ReferenceID: investmentID,
			Metadata:    meta,
			Network:     s.network,
		},
	}, etf.ID, s.network)
	if err != nil {
		return nil, err
	}

	res := &SellResult{
		InvestmentID:           investmentID,
		Proceeds:               proceeds,
		RealizedPnL:            pnl,
		Balance:                balance,
		Swaps:                  result.Completed,
		Unsold:                 unsold,
		RequiresReconciliation: swapErr != nil,
	}
	if swapErr != nil {
		s.metrics.RecordReconciliation("sell")
		log.Errorw("partial sale, tokens left in custody",
			"reconciliation", true,
			"unsold_positions", unsold,
			"proceeds", proceeds,
			"error", swapErr,
		)
		return res, nil
	}

	log.Infow("investment sold", "proceeds", proceeds, "realized_pnl", pnl, "balance", balance)
	return res, nil
}

// sellPlan turns held swap outputs into token -> WSOL swaps. costs[i] is the
// lamports originally spent on plan[i].
func sellPlan(records []*domain.SwapRecord) (plan []PlannedSwap, costs []uint64, err error) {
	for _, rec := range records {
		if !rec.Success || !rec.OutputAmount.IsPositive() {
			continue
		}
		amount := rec.OutputAmount.BigInt()
		if !amount.IsUint64() {
			return nil, nil, domain.Validationf("swap %s output %s out of range", rec.TxSignature, rec.OutputAmount)
		}
		plan = append(plan, PlannedSwap{
			Position:   rec.Position,
			Weight:     rec.Weight,
			InputMint:  rec.OutputMint,
			OutputMint: domain.WSOLMint,
			Amount:     amount.Uint64(),
		})
		costs = append(costs, rec.InputLamports)
	}
	return plan, costs, nil
}

func (s *Service) loadETF(ctx context.Context, id uuid.UUID) (*domain.ETF, error) {
	etf, err := s.etfs.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.Validationf("unknown etf %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load etf: %w", err)
	}
	if etf.Network != s.network {
		return nil, domain.Validationf("etf %s is on %s, service runs on %s", id, etf.Network, s.network)
	}
	return etf, nil
}

func outcome(err error) string {
	var pf *domain.PurchaseFailedError
	switch {
	case err == nil:
		return observability.OutcomeSuccess
	case errors.Is(err, domain.ErrReconciliationRequired):
		return observability.OutcomeReconciliation
	case errors.As(err, &pf):
		return observability.OutcomeRefunded
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInsufficientFunds):
		return observability.OutcomeRejected
	default:
		return observability.OutcomeFailed
	}
}
