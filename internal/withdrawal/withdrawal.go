// Package withdrawal moves SOL from the custody wallet to a user's address.
// The chain transfer is confirmed before the ledger is touched.
package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/validation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"memeetf/internal/confirm"
	"memeetf/internal/custody"
	"memeetf/internal/domain"
	"memeetf/internal/observability"
	"memeetf/internal/storage"
)

// State of a withdrawal.
type State string

const (
	StateRequested              State = "requested"
	StateChainSubmitted         State = "chain_submitted"
	StateConfirmed              State = "confirmed"
	StateChainFailed            State = "chain_failed"
	StateReconciliationRequired State = "reconciliation_required"
)

// Transferer sends lamports from the custody wallet.
type Transferer interface {
	Address() string
	Transfer(ctx context.Context, destination string, lamports uint64, memo string) (string, error)
}

// BalanceReader reads on-chain balances.
type BalanceReader interface {
	GetBalance(ctx context.Context, pubkey string) (uint64, error)
}

// Confirmer waits for a signature to land.
type Confirmer interface {
	Wait(ctx context.Context, signature string) (confirm.Status, error)
}

// Request is a withdrawal of Amount SOL to Destination.
type Request struct {
	Wallet      string
	Destination string
	Amount      decimal.Decimal
	Network     domain.Network
}

// Validate implements validation.Validatable.
func (r Request) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Wallet, validation.Required, domain.Address),
		validation.Field(&r.Destination, validation.Required, domain.Address),
		validation.Field(&r.Amount, domain.PositiveAmount),
		validation.Field(&r.Network, validation.Required,
			validation.In(domain.NetworkDevnet, domain.NetworkMainnet)),
	)
}

// Result is a completed withdrawal.
type Result struct {
	ID          uuid.UUID
	State       State
	TxSignature string
	Balance     decimal.Decimal
}

// Service runs withdrawals.
type Service struct {
	ledger     storage.LedgerStore
	txs        storage.TransactionStore
	custody    Transferer
	chain      BalanceReader
	confirmer  Confirmer
	network    domain.Network
	feeReserve uint64
	metrics    *observability.Metrics
	log        *zap.SugaredLogger
}

// Options for creating Service.
type Options struct {
	Ledger       storage.LedgerStore
	Transactions storage.TransactionStore
	Custody      Transferer
	Chain        BalanceReader
	Confirmer    Confirmer
	Network      domain.Network
	FeeReserve   uint64 // lamports kept back for the network fee, default custody.TransferFeeReserve
	Metrics      *observability.Metrics
	Logger       *zap.SugaredLogger
}

// NewService creates a Service.
func NewService(opts Options) (*Service, error) {
	if opts.Ledger == nil || opts.Transactions == nil || opts.Custody == nil ||
		opts.Chain == nil || opts.Confirmer == nil {
		return nil, errors.New("withdrawal: ledger, transaction store, custody, chain and confirmer are required")
	}
	s := &Service{
		ledger:     opts.Ledger,
		txs:        opts.Transactions,
		custody:    opts.Custody,
		chain:      opts.Chain,
		confirmer:  opts.Confirmer,
		network:    opts.Network,
		feeReserve: opts.FeeReserve,
		metrics:    opts.Metrics,
		log:        opts.Logger,
	}
	if s.feeReserve == 0 {
		s.feeReserve = custody.TransferFeeReserve
	}
	if s.log == nil {
		s.log = zap.NewNop().Sugar()
	}
	s.log = s.log.With("component", "withdrawal")
	return s, nil
}

// Withdraw transfers req.Amount to req.Destination and then debits the ledger.
//
// Errors before submission leave no trace. A failed or unconfirmed transfer
// returns an error wrapping domain.ErrChain with the balance untouched. A send
// whose outcome is unknown is followed like a submitted one. If the
// debit cannot be written after a confirmed transfer, the error is a
// *domain.ReconciliationError carrying the signature and the user's balance
// is still unchanged.
func (s *Service) Withdraw(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := s.withdraw(ctx, req)
	s.metrics.RecordSaga("withdrawal", outcome(err), time.Since(start))
	return res, err
}

func (s *Service) withdraw(ctx context.Context, req Request) (*Result, error) {
	// requested
	if err := domain.Validate(req); err != nil {
		return nil, err
	}
	if req.Network != s.network {
		return nil, domain.Validationf("network %s does not match %s", req.Network, s.network)
	}
	lamports, err := domain.SOLToLamports(req.Amount)
	if err != nil {
		return nil, err
	}
	if lamports == 0 {
		return nil, domain.Validationf("amount %s is below one lamport", req.Amount)
	}

	// held across the chain transfer so concurrent withdrawals cannot both
	// pass the balance check
	unlock, err := s.ledger.LockWallet(ctx, req.Wallet)
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	defer unlock()

	user, err := s.ledger.GetUser(ctx, req.Wallet)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.Validationf("unknown user %s", req.Wallet)
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.Balance.LessThan(req.Amount) {
		return nil, fmt.Errorf("withdraw %s with balance %s: %w", req.Amount, user.Balance, domain.ErrInsufficientFunds)
	}

	from := s.custody.Address()
	available, err := s.chain.GetBalance(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("%w: custody balance: %v", domain.ErrChain, err)
	}
	if available < lamports+s.feeReserve {
		return nil, fmt.Errorf("custody holds %d lamports, need %d: %w",
			available, lamports+s.feeReserve, domain.ErrInsufficientChainFunds)
	}

	id := uuid.New()
	log := s.log.With("withdrawal_id", id, "wallet", req.Wallet, "destination", req.Destination)

	sig, err := s.custody.Transfer(ctx, req.Destination, lamports, "withdrawal:"+id.String())
	if err != nil && sig == "" {
		log.Warnw("withdrawal transfer not submitted", "state", StateChainFailed, "error", err)
		return nil, err
	}
	log = log.With("signature", sig)
	if err != nil {
		// possibly broadcast; confirmation decides, an unseen transfer is audited
		log.Warnw("withdrawal submission ambiguous", "state", StateChainSubmitted, "error", err)
	} else {
		log.Infow("withdrawal submitted", "state", StateChainSubmitted, "lamports", lamports)
	}

	entry := &domain.Transaction{
		ID:          id,
		UserWallet:  req.Wallet,
		Kind:        domain.TxKindWithdrawal,
		Amount:      req.Amount,
		Fee:         decimal.Zero,
		TxSignature: sig,
		FromAddress: from,
		ToAddress:   req.Destination,
		Network:     s.network,
	}

	status, err := s.confirmer.Wait(ctx, sig)
	if err != nil {
		if status.State == confirm.StateFailed {
			log.Warnw("withdrawal failed on chain", "state", StateChainFailed, "reason", status.Reason)
			s.audit(ctx, entry, domain.TxStatusFailed, err)
		} else {
			// not observed in time, the transfer may still land
			log.Errorw("withdrawal unconfirmed", "reconciliation", true, "state", StateChainFailed, "error", err)
			s.metrics.RecordReconciliation("withdrawal")
			s.audit(ctx, entry, domain.TxStatusPendingReconciliation, err)
		}
		return nil, err
	}

	entry.Status = domain.TxStatusCompleted
	balance, err := s.ledger.CommitWithdrawal(ctx, entry)
	if err != nil {
		s.metrics.RecordReconciliation("withdrawal")
		log.Errorw("withdrawal confirmed but ledger debit failed",
			"reconciliation", true,
			"state", StateReconciliationRequired,
			"amount", req.Amount,
			"error", err,
		)
		s.audit(ctx, entry, domain.TxStatusPendingReconciliation, err)
		return nil, &domain.ReconciliationError{
			Op:           "withdrawal",
			TxSignatures: []string{sig},
			ReferenceID:  id,
			Err:          fmt.Errorf("commit withdrawal: %w", err),
		}
	}

	log.Infow("withdrawal confirmed", "state", StateConfirmed, "balance", balance)
	return &Result{
		ID:          id,
		State:       StateConfirmed,
		TxSignature: sig,
		Balance:     balance,
	}, nil
}

// audit writes a non-debiting withdrawal row outside any failed transaction.
func (s *Service) audit(ctx context.Context, entry *domain.Transaction, status domain.TxStatus, cause error) {
	row := *entry
	row.ID = uuid.New()
	row.Status = status
	row.ReferenceID = entry.ID
	row.Metadata = map[string]any{"error": cause.Error()}

	if err := s.txs.Insert(context.WithoutCancel(ctx), &row); err != nil {
		s.log.Errorw("withdrawal audit row not written",
			"reconciliation", status == domain.TxStatusPendingReconciliation,
			"withdrawal_id", entry.ID,
			"signature", entry.TxSignature,
			"error", err,
		)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeSuccess
	case errors.Is(err, domain.ErrReconciliationRequired):
		return observability.OutcomeReconciliation
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInsufficientChainFunds):
		return observability.OutcomeRejected
	default:
		return observability.OutcomeFailed
	}
}
