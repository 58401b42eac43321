package investment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"memeetf/internal/domain"
	"memeetf/internal/observability"
	"memeetf/internal/storage"
)

// DefaultAnalyticsTimeout bounds the best-effort swap-fill export.
const DefaultAnalyticsTimeout = 5 * time.Second

// Recorder writes completed purchases and sales to the ledger in one
// transaction each and exports their swap fills for analytics.
type Recorder struct {
	investments storage.InvestmentStore
	txs         storage.TransactionStore
	fills       storage.SwapFillSink // optional
	metrics     *observability.Metrics
	log         *zap.SugaredLogger
	now         func() time.Time
}

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	Investments  storage.InvestmentStore
	Transactions storage.TransactionStore
	Fills        storage.SwapFillSink
	Metrics      *observability.Metrics
	Logger       *zap.SugaredLogger
}

// NewRecorder creates a Recorder.
func NewRecorder(opts RecorderOptions) *Recorder {
	r := &Recorder{
		investments: opts.Investments,
		txs:         opts.Transactions,
		fills:       opts.Fills,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if r.log == nil {
		r.log = zap.NewNop().Sugar()
	}
	r.log = r.log.With("component", "settlement")
	return r
}

// Record settles a purchase whose swaps all succeeded. A write failure here is
// never reported as a failed purchase: the swaps already happened, so the
// error is a *domain.ReconciliationError carrying the investment id and the
// swap signatures.
func (r *Recorder) Record(ctx context.Context, s *domain.Settlement) error {
	inv := s.Investment
	if err := r.investments.Settle(ctx, s); err != nil {
		sigs := swapSignatures(s.Swaps)
		r.escalate(ctx, "buy", inv.UserWallet, inv.ID, inv.SOLAmount, inv.Network, sigs, err)
		return &domain.ReconciliationError{
			Op:           "buy",
			TxSignatures: sigs,
			ReferenceID:  inv.ID,
			Err:          fmt.Errorf("settle investment: %w", err),
		}
	}

	fills := make([]*domain.SwapFill, 0, len(s.Swaps))
	for _, sw := range s.Swaps {
		fills = append(fills, r.fill(sw, inv.ETFID, inv.ID, inv.UserWallet, domain.FillSideBuy, domain.WSOLMint, inv.Network))
	}
	r.export(ctx, fills)
	return nil
}

// RecordSale credits a sale. Returns the new balance.
// Sell swap records carry the sold token in RequestedMint.
func (r *Recorder) RecordSale(ctx context.Context, sale *domain.Sale, etfID uuid.UUID, network domain.Network) (decimal.Decimal, error) {
	balance, err := r.investments.RecordSale(ctx, sale)
	if err != nil {
		sigs := swapSignatures(sale.Swaps)
		r.escalate(ctx, "sell", sale.UserWallet, sale.InvestmentID, sale.Proceeds, network, sigs, err)
		return decimal.Zero, &domain.ReconciliationError{
			Op:           "sell",
			TxSignatures: sigs,
			ReferenceID:  sale.InvestmentID,
			Err:          fmt.Errorf("record sale: %w", err),
		}
	}

	fills := make([]*domain.SwapFill, 0, len(sale.Swaps))
	for _, sw := range sale.Swaps {
		fills = append(fills, r.fill(sw, etfID, sale.InvestmentID, sale.UserWallet, domain.FillSideSell, sw.RequestedMint, network))
	}
	r.export(ctx, fills)
	return balance, nil
}

// escalate logs a settlement failure and leaves a pending_reconciliation row
// outside the failed transaction.
func (r *Recorder) escalate(ctx context.Context, op, wallet string, ref uuid.UUID, amount decimal.Decimal, network domain.Network, sigs []string, cause error) {
	r.metrics.RecordReconciliation(op)
	r.log.Errorw("settlement write failed after swaps",
		"reconciliation", true,
		"operation", op,
		"reference_id", ref,
		"wallet", wallet,
		"amount", amount,
		"signatures", sigs,
		"error", cause,
	)

	kind := domain.TxKindBuy
	if op == "sell" {
		kind = domain.TxKindSell
	}
	audit := &domain.Transaction{
		ID:          uuid.New(),
		UserWallet:  wallet,
		Kind:        kind,
		Amount:      amount,
		Fee:         decimal.Zero,
		Status:      domain.TxStatusPendingReconciliation,
		ReferenceID: ref,
		Metadata: map[string]any{
			"signatures": sigs,
			"error":      cause.Error(),
		},
		Network: network,
	}
	if err := r.txs.Insert(context.WithoutCancel(ctx), audit); err != nil {
		r.log.Errorw("reconciliation audit row not written",
			"reconciliation", true,
			"reference_id", ref,
			"error", err,
		)
	}
}

func (r *Recorder) fill(sw *domain.SwapRecord, etfID, investmentID uuid.UUID, wallet, side, inputMint string, network domain.Network) *domain.SwapFill {
	out := uint64(0)
	if b := sw.OutputAmount.BigInt(); b.IsUint64() {
		out = b.Uint64()
	}
	return &domain.SwapFill{
		TxSignature:  sw.TxSignature,
		ETFID:        etfID,
		InvestmentID: investmentID,
		UserWallet:   wallet,
		Side:         side,
		InputMint:    inputMint,
		OutputMint:   sw.OutputMint,
		InputAmount:  sw.InputLamports,
		OutputAmount: out,
		Substituted:  sw.Substituted,
		Network:      network,
		FilledAt:     r.now(),
	}
}

// export pushes fills to the analytics sink. Failures are logged and counted only.
func (r *Recorder) export(ctx context.Context, fills []*domain.SwapFill) {
	if r.fills == nil || len(fills) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultAnalyticsTimeout)
	defer cancel()

	if err := r.fills.InsertBulk(ctx, fills); err != nil {
		r.metrics.RecordAnalyticsError()
		r.log.Warnw("swap fill export failed", "fills", len(fills), "error", err)
	}
}

func swapSignatures(records []*domain.SwapRecord) []string {
	sigs := make([]string, 0, len(records))
	for _, sw := range records {
		sigs = append(sigs, sw.TxSignature)
	}
	return sigs
}
