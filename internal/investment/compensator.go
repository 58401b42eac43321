package investment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"memeetf/internal/domain"
	"memeetf/internal/observability"
	"memeetf/internal/storage"
)

// Compensator defaults.
const (
	DefaultRefundAttempts   = 3
	DefaultRefundBackoff    = 200 * time.Millisecond
	DefaultRefundMaxBackoff = 2 * time.Second
)

// Compensator restores a reserved amount after an aborted purchase.
type Compensator struct {
	ledger     storage.LedgerStore
	txs        storage.TransactionStore
	attempts   int
	backoff    time.Duration
	maxBackoff time.Duration
	metrics    *observability.Metrics
	log        *zap.SugaredLogger
	sleep      func(time.Duration)
}

// CompensatorOptions configures a Compensator.
type CompensatorOptions struct {
	Ledger       storage.LedgerStore
	Transactions storage.TransactionStore
	Attempts     int
	Backoff      time.Duration
	MaxBackoff   time.Duration
	Metrics      *observability.Metrics
	Logger       *zap.SugaredLogger
}

// NewCompensator creates a Compensator.
func NewCompensator(opts CompensatorOptions) *Compensator {
	c := &Compensator{
		ledger:     opts.Ledger,
		txs:        opts.Transactions,
		attempts:   opts.Attempts,
		backoff:    opts.Backoff,
		maxBackoff: opts.MaxBackoff,
		metrics:    opts.Metrics,
		log:        opts.Logger,
		sleep:      time.Sleep,
	}
	if c.attempts <= 0 {
		c.attempts = DefaultRefundAttempts
	}
	if c.backoff <= 0 {
		c.backoff = DefaultRefundBackoff
	}
	if c.maxBackoff <= 0 {
		c.maxBackoff = DefaultRefundMaxBackoff
	}
	if c.log == nil {
		c.log = zap.NewNop().Sugar()
	}
	c.log = c.log.With("component", "compensator")
	return c
}

// Refund credits r.Amount back, appends the refund entry and records the swaps
// that completed before the failure. Returns the restored balance.
//
// The refund survives cancellation of ctx. When every attempt fails the error
// is a *domain.ReconciliationError and a pending_reconciliation row is left
// behind on a best-effort basis.
func (c *Compensator) Refund(ctx context.Context, r *domain.Refund) (decimal.Decimal, error) {
	if r == nil || !r.Amount.IsPositive() {
		return decimal.Zero, domain.Validationf("refund amount must be positive")
	}
	ctx = context.WithoutCancel(ctx)

	entry := &domain.Transaction{
		ID:          uuid.New(),
		UserWallet:  r.Wallet,
		Kind:        domain.TxKindRefund,
		Amount:      r.Amount,
		Fee:         decimal.Zero,
		Status:      domain.TxStatusCompleted,
		ReferenceID: r.AttemptID,
		Metadata:    refundMetadata(r),
		Network:     r.Network,
	}
	swaps := domain.SwapRecordsFromResults(r.AttemptID, r.Completed)

	var lastErr error
	delay := c.backoff
	for attempt := 1; attempt <= c.attempts; attempt++ {
		balance, err := c.ledger.Refund(ctx, r, entry, swaps)
		if err == nil {
			c.log.Infow("purchase refunded",
				"attempt_id", r.AttemptID,
				"wallet", r.Wallet,
				"amount", r.Amount,
				"failed_index", r.FailedIndex,
				"completed_swaps", len(r.Completed),
			)
			return balance, nil
		}
		if attempt > 1 && errors.Is(err, storage.ErrDuplicateKey) {
			// an earlier attempt committed but its acknowledgement was lost
			if balance, ok := c.alreadyRefunded(ctx, entry.ID, r.Wallet); ok {
				return balance, nil
			}
		}
		lastErr = err

		c.log.Warnw("refund attempt failed",
			"attempt_id", r.AttemptID,
			"attempt", attempt,
			"of", c.attempts,
			"error", err,
		)
		if attempt < c.attempts {
			c.sleep(delay)
			delay *= 2
			if delay > c.maxBackoff {
				delay = c.maxBackoff
			}
		}
	}

	return decimal.Zero, c.escalate(ctx, r, lastErr)
}

func (c *Compensator) alreadyRefunded(ctx context.Context, entryID uuid.UUID, wallet string) (decimal.Decimal, bool) {
	if _, err := c.txs.GetByID(ctx, entryID); err != nil {
		return decimal.Zero, false
	}
	u, err := c.ledger.GetUser(ctx, wallet)
	if err != nil {
		return decimal.Zero, false
	}
	return u.Balance, true
}

func (c *Compensator) escalate(ctx context.Context, r *domain.Refund, cause error) error {
	sigs := domain.Signatures(r.Completed)

	c.metrics.RecordRefundFailure()
	c.log.Errorw("refund exhausted retries",
		"reconciliation", true,
		"attempt_id", r.AttemptID,
		"wallet", r.Wallet,
		"amount", r.Amount,
		"failed_index", r.FailedIndex,
		"cause", errString(r.Cause),
		"completed_signatures", sigs,
		"error", cause,
	)

	meta := refundMetadata(r)
	meta["refund_error"] = cause.Error()
	audit := &domain.Transaction{
		ID:          uuid.New(),
		UserWallet:  r.Wallet,
		Kind:        domain.TxKindRefund,
		Amount:      r.Amount,
		Fee:         decimal.Zero,
		Status:      domain.TxStatusPendingReconciliation,
		ReferenceID: r.AttemptID,
		Metadata:    meta,
		Network:     r.Network,
	}
	if err := c.txs.Insert(ctx, audit); err != nil {
		c.log.Errorw("reconciliation audit row not written",
			"reconciliation", true,
			"attempt_id", r.AttemptID,
			"error", err,
		)
	}

	return &domain.ReconciliationError{
		Op:           "refund",
		TxSignatures: sigs,
		ReferenceID:  r.AttemptID,
		Err:          fmt.Errorf("refund of %s to %s: %w", r.Amount, r.Wallet, cause),
	}
}

func refundMetadata(r *domain.Refund) map[string]any {
	return map[string]any{
		"failed_index":         r.FailedIndex,
		"error":                errString(r.Cause),
		"completed_signatures": domain.Signatures(r.Completed),
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
