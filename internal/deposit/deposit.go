// Package deposit credits the ledger for confirmed transfers into the custody
// wallet.
package deposit

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/validation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"memeetf/internal/confirm"
	"memeetf/internal/domain"
	"memeetf/internal/observability"
	"memeetf/internal/solana"
	"memeetf/internal/storage"
)

// TransactionReader fetches confirmed transactions.
type TransactionReader interface {
	GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error)
}

// Confirmer waits for a signature to land.
type Confirmer interface {
	Wait(ctx context.Context, signature string) (confirm.Status, error)
}

// Request asks to credit the deposit made by Wallet in Signature.
type Request struct {
	Wallet    string
	Signature string
}

// Validate implements validation.Validatable.
func (r Request) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Wallet, validation.Required, domain.Address),
		validation.Field(&r.Signature, validation.Required, validation.Length(32, 128)),
	)
}

// Result is a credited deposit.
type Result struct {
	Entry           *domain.Transaction
	Balance         decimal.Decimal
	AlreadyCredited bool
}

// Service credits deposits.
type Service struct {
	ledger  storage.LedgerStore
	txs     storage.TransactionStore
	chain   TransactionReader
	confirm Confirmer
	custody string
	network domain.Network
	metrics *observability.Metrics
	log     *zap.SugaredLogger
}

// Options for creating Service.
type Options struct {
	Ledger         storage.LedgerStore
	Transactions   storage.TransactionStore
	Chain          TransactionReader
	Confirmer      Confirmer
	CustodyAddress string
	Network        domain.Network
	Metrics        *observability.Metrics
	Logger         *zap.SugaredLogger
}

// NewService creates a Service.
func NewService(opts Options) (*Service, error) {
	if opts.Ledger == nil || opts.Transactions == nil || opts.Chain == nil || opts.Confirmer == nil {
		return nil, errors.New("deposit: ledger, transaction store, chain and confirmer are required")
	}
	if opts.CustodyAddress == "" {
		return nil, errors.New("deposit: custody address is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{
		ledger:  opts.Ledger,
		txs:     opts.Transactions,
		chain:   opts.Chain,
		confirm: opts.Confirmer,
		custody: opts.CustodyAddress,
		network: opts.Network,
		metrics: opts.Metrics,
		log:     log.With("component", "deposit"),
	}, nil
}

// Confirm credits the custody-wallet inflow of req.Signature to req.Wallet.
// A signature is credited at most once; repeated calls return the original entry.
func (s *Service) Confirm(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := s.confirmDeposit(ctx, req)
	outcome := observability.OutcomeSuccess
	switch {
	case errors.Is(err, domain.ErrValidation):
		outcome = observability.OutcomeRejected
	case err != nil:
		outcome = observability.OutcomeFailed
	}
	s.metrics.RecordSaga("deposit", outcome, time.Since(start))
	return res, err
}

func (s *Service) confirmDeposit(ctx context.Context, req Request) (*Result, error) {
	if err := domain.Validate(req); err != nil {
		return nil, err
	}

	if res, err := s.existing(ctx, req); res != nil || err != nil {
		return res, err
	}

	if _, err := s.confirm.Wait(ctx, req.Signature); err != nil {
		return nil, err
	}

	tx, err := s.chain.GetTransaction(ctx, req.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: get transaction %s: %v", domain.ErrChain, req.Signature, err)
	}
	if tx == nil || tx.Meta == nil || tx.Message == nil {
		return nil, fmt.Errorf("%w: transaction %s not available", domain.ErrChain, req.Signature)
	}
	if tx.Meta.Err != nil {
		return nil, fmt.Errorf("%w: transaction %s failed: %v", domain.ErrChain, req.Signature, tx.Meta.Err)
	}
	if !slices.Contains(tx.Message.Signers(), req.Wallet) {
		return nil, domain.Validationf("transaction %s was not signed by %s", req.Signature, req.Wallet)
	}
	delta, ok := tx.BalanceChange(s.custody)
	if !ok || delta <= 0 {
		return nil, domain.Validationf("transaction %s does not pay the custody wallet", req.Signature)
	}

	if err := s.ledger.CreateUser(ctx, &domain.User{WalletAddress: req.Wallet}); err != nil &&
		!errors.Is(err, storage.ErrDuplicateKey) {
		return nil, fmt.Errorf("create user: %w", err)
	}

	entry := &domain.Transaction{
		ID:          uuid.New(),
		UserWallet:  req.Wallet,
		Kind:        domain.TxKindDeposit,
		Amount:      domain.LamportsToSOL(uint64(delta)),
		Status:      domain.TxStatusCompleted,
		TxSignature: req.Signature,
		Metadata:    map[string]any{"slot": tx.Slot, "chain_fee_lamports": tx.Meta.Fee},
		FromAddress: req.Wallet,
		ToAddress:   s.custody,
		Network:     s.network,
	}
	balance, err := s.ledger.CreditDeposit(ctx, entry)
	if errors.Is(err, storage.ErrDuplicateKey) {
		// credited concurrently
		return s.existing(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("credit deposit: %w", err)
	}

	s.log.Infow("deposit credited",
		"wallet", req.Wallet,
		"signature", req.Signature,
		"amount", entry.Amount,
		"balance", balance,
	)
	return &Result{Entry: entry, Balance: balance}, nil
}

// existing returns the already-credited entry of req.Signature, or nil.
func (s *Service) existing(ctx context.Context, req Request) (*Result, error) {
	entry, err := s.txs.GetBySignature(ctx, domain.TxKindDeposit, req.Signature)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup deposit: %w", err)
	}
	if entry.UserWallet != req.Wallet {
		return nil, domain.Validationf("deposit %s belongs to another wallet", req.Signature)
	}

	u, err := s.ledger.GetUser(ctx, req.Wallet)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &Result{Entry: entry, Balance: u.Balance, AlreadyCredited: true}, nil
}
