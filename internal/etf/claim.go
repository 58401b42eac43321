package etf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"memeetf/internal/confirm"
	"memeetf/internal/domain"
	"memeetf/internal/observability"
)

// ClaimResult is a completed lister fee payout.
type ClaimResult struct {
	ClaimID     uuid.UUID
	Amount      decimal.Decimal
	Records     int
	TxSignature string
}

// ClaimFees pays the lister every unpaid fee of their ETFs.
//
// Records are reserved under a fresh claim id before the transfer so a
// concurrent claim cannot pay them twice. A transfer that fails on chain
// releases the reservation. If the transfer outcome is unknown, or the payout
// cannot be stamped after it landed, the records stay reserved and the error
// is a *domain.ReconciliationError.
func (s *Service) ClaimFees(ctx context.Context, lister string) (*ClaimResult, error) {
	start := time.Now()
	res, err := s.claimFees(ctx, lister)
	s.metrics.RecordSaga("fee_claim", claimOutcome(err), time.Since(start))
	return res, err
}

func (s *Service) claimFees(ctx context.Context, lister string) (*ClaimResult, error) {
	if s.custody == nil {
		return nil, errors.New("fee claims are disabled: no custody signer configured")
	}
	if err := domain.Address.Validate(lister); err != nil || lister == "" {
		return nil, domain.Validationf("lister address %q is invalid", lister)
	}

	claimID := uuid.New()
	records, err := s.fees.ReserveUnpaid(ctx, s.network, lister, claimID)
	if err != nil {
		return nil, fmt.Errorf("reserve fees: %w", err)
	}
	if len(records) == 0 {
		return nil, domain.Validationf("no unpaid fees for %s", lister)
	}

	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.ListerFee)
	}
	log := s.log.With("claim_id", claimID, "lister", lister, "amount", total, "records", len(records))

	lamports, err := domain.SOLToLamports(total)
	if err == nil && lamports == 0 {
		err = domain.Validationf("unpaid fees of %s are below one lamport", lister)
	}
	if err != nil {
		s.release(ctx, claimID)
		return nil, err
	}

	sig, err := s.custody.Transfer(ctx, lister, lamports, "fee_claim:"+claimID.String())
	if err != nil && sig == "" {
		log.Warnw("fee payout not submitted", "error", err)
		s.release(ctx, claimID)
		return nil, err
	}
	log = log.With("signature", sig)
	if err != nil {
		// possibly broadcast, keep the reservation until confirmation decides
		log.Warnw("fee payout submission ambiguous", "error", err)
	}

	entry := &domain.Transaction{
		ID:          uuid.New(),
		UserWallet:  lister,
		Kind:        domain.TxKindFeeClaim,
		Amount:      total,
		Fee:         decimal.Zero,
		Status:      domain.TxStatusCompleted,
		TxSignature: sig,
		ReferenceID: claimID,
		Metadata:    map[string]any{"records": len(records)},
		FromAddress: s.custody.Address(),
		ToAddress:   lister,
		Network:     s.network,
	}

	status, err := s.verifier.Wait(ctx, sig)
	if err != nil {
		if status.State == confirm.StateFailed {
			log.Warnw("fee payout failed on chain", "reason", status.Reason)
			s.release(ctx, claimID)
			return nil, err
		}
		return nil, s.escalate(ctx, entry, "payout unconfirmed", err)
	}

	if err := s.fees.StampClaim(ctx, claimID, sig, entry); err != nil {
		return nil, s.escalate(ctx, entry, "payout landed but stamp failed", err)
	}

	log.Infow("fees claimed")
	return &ClaimResult{
		ClaimID:     claimID,
		Amount:      total,
		Records:     len(records),
		TxSignature: sig,
	}, nil
}

// release returns reserved records to the unpaid pool.
func (s *Service) release(ctx context.Context, claimID uuid.UUID) {
	if err := s.fees.Release(context.WithoutCancel(ctx), claimID); err != nil {
		s.log.Errorw("fee reservation not released",
			"reconciliation", true,
			"claim_id", claimID,
			"error", err,
		)
	}
}

func (s *Service) escalate(ctx context.Context, entry *domain.Transaction, msg string, cause error) error {
	s.metrics.RecordReconciliation("fee_claim")
	s.log.Errorw(msg,
		"reconciliation", true,
		"claim_id", entry.ReferenceID,
		"lister", entry.UserWallet,
		"amount", entry.Amount,
		"signature", entry.TxSignature,
		"error", cause,
	)

	row := *entry
	row.ID = uuid.New()
	row.Status = domain.TxStatusPendingReconciliation
	row.Metadata = map[string]any{"records": entry.Metadata["records"], "error": cause.Error()}
	if err := s.txs.Insert(context.WithoutCancel(ctx), &row); err != nil {
		s.log.Errorw("fee claim audit row not written",
			"reconciliation", true,
			"claim_id", entry.ReferenceID,
			"error", err,
		)
	}

	return &domain.ReconciliationError{
		Op:           "fee_claim",
		TxSignatures: []string{entry.TxSignature},
		ReferenceID:  entry.ReferenceID,
		Err:          fmt.Errorf("%s: %w", msg, cause),
	}
}

func claimOutcome(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeSuccess
	case errors.Is(err, domain.ErrReconciliationRequired):
		return observability.OutcomeReconciliation
	case errors.Is(err, domain.ErrValidation):
		return observability.OutcomeRejected
	default:
		return observability.OutcomeFailed
	}
}
