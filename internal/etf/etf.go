// Package etf records confirmed basket listings and pays out lister fees.
package etf

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jellydator/validation"
	"go.uber.org/zap"

	"memeetf/internal/confirm"
	"memeetf/internal/domain"
	"memeetf/internal/marketdata"
	"memeetf/internal/observability"
	"memeetf/internal/program"
	"memeetf/internal/solana"
	"memeetf/internal/storage"
)

// Verifier confirms listing transactions and the accounts they create.
type Verifier interface {
	Wait(ctx context.Context, signature string) (confirm.Status, error)
	VerifyAccount(ctx context.Context, address, owner string) (*solana.AccountInfo, error)
}

// Transferer pays lamports out of the custody wallet.
type Transferer interface {
	Address() string
	Transfer(ctx context.Context, destination string, lamports uint64, memo string) (string, error)
}

// Service confirms listings and runs fee claims.
type Service struct {
	ledger    storage.LedgerStore
	etfs      storage.ETFStore
	fees      storage.FeeStore
	txs       storage.TransactionStore
	verifier  Verifier
	custody   Transferer
	market    marketdata.Source
	programID string
	network   domain.Network
	metrics   *observability.Metrics
	log       *zap.SugaredLogger
}

// Options for creating Service.
type Options struct {
	Ledger       storage.LedgerStore
	ETFs         storage.ETFStore
	Fees         storage.FeeStore
	Transactions storage.TransactionStore
	Verifier     Verifier
	Custody      Transferer // required for fee claims
	MarketData   marketdata.Source
	ProgramID    string
	Network      domain.Network
	Metrics      *observability.Metrics
	Logger       *zap.SugaredLogger
}

// NewService creates a Service.
func NewService(opts Options) (*Service, error) {
	if opts.Ledger == nil || opts.ETFs == nil || opts.Fees == nil || opts.Transactions == nil || opts.Verifier == nil {
		return nil, errors.New("etf: ledger, etf, fee and transaction stores and a verifier are required")
	}
	if !opts.Network.IsValid() {
		return nil, fmt.Errorf("etf: invalid network %q", opts.Network)
	}
	s := &Service{
		ledger:    opts.Ledger,
		etfs:      opts.ETFs,
		fees:      opts.Fees,
		txs:       opts.Transactions,
		verifier:  opts.Verifier,
		custody:   opts.Custody,
		market:    opts.MarketData,
		programID: opts.ProgramID,
		network:   opts.Network,
		metrics:   opts.Metrics,
		log:       opts.Logger,
	}
	if s.programID == "" {
		s.programID = program.DefaultProgramID
	}
	if s.market == nil {
		s.market = marketdata.Static{}
	}
	if s.log == nil {
		s.log = zap.NewNop().Sugar()
	}
	s.log = s.log.With("component", "etf")
	return s, nil
}

// ConfirmRequest records a listing after its initialize_etf transaction.
type ConfirmRequest struct {
	Creator         string
	Name            string
	ContractAddress string
	TxSignature     string
	Constituents    []domain.Constituent
}

// Validate implements validation.Validatable.
func (r ConfirmRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Creator, validation.Required, domain.Address),
		validation.Field(&r.Name, validation.Required, validation.Length(1, 64)),
		validation.Field(&r.ContractAddress, validation.Required, domain.Address),
		validation.Field(&r.TxSignature, validation.Required),
		validation.Field(&r.Constituents, validation.Required, domain.BalancedWeights),
	)
}

// Confirm returns the ETF recorded at req.ContractAddress, creating it once the
// listing transaction is confirmed and the account is owned by the program.
// Repeated and concurrent calls return the same ETF.
func (s *Service) Confirm(ctx context.Context, req ConfirmRequest) (*domain.ETF, error) {
	existing, err := s.etfs.GetByContractAddress(ctx, s.network, req.ContractAddress)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("lookup etf: %w", err)
	}

	if err := domain.Validate(req); err != nil {
		return nil, err
	}
	expected, _, err := program.ETFAddress(req.Creator, s.programID)
	if err != nil {
		return nil, domain.Validationf("derive etf address: %v", err)
	}
	if expected != req.ContractAddress {
		return nil, domain.Validationf("contract address %s is not the etf account of %s", req.ContractAddress, req.Creator)
	}

	if _, err := s.verifier.Wait(ctx, req.TxSignature); err != nil {
		return nil, err
	}
	info, err := s.verifier.VerifyAccount(ctx, req.ContractAddress, s.programID)
	if err != nil {
		return nil, err
	}
	if err := checkAccount(info, req); err != nil {
		return nil, err
	}

	if err := s.ledger.CreateUser(ctx, &domain.User{WalletAddress: req.Creator}); err != nil &&
		!errors.Is(err, storage.ErrDuplicateKey) {
		return nil, fmt.Errorf("create lister: %w", err)
	}

	etf := &domain.ETF{
		ID:                 uuid.New(),
		Creator:            req.Creator,
		Name:               req.Name,
		ContractAddress:    req.ContractAddress,
		CreationTx:         req.TxSignature,
		Network:            s.network,
		Constituents:       req.Constituents,
		MarketCapAtListing: marketdata.BasketMarketCap(ctx, s.market, req.Constituents, s.log),
	}
	if err := s.etfs.Insert(ctx, etf); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return s.etfs.GetByContractAddress(ctx, s.network, req.ContractAddress)
		}
		return nil, fmt.Errorf("insert etf: %w", err)
	}

	s.log.Infow("etf listed",
		"etf_id", etf.ID,
		"creator", etf.Creator,
		"contract_address", etf.ContractAddress,
		"constituents", len(etf.Constituents),
	)
	return etf, nil
}

// checkAccount compares the on-chain ETF account with the listing request.
// Accounts without data are accepted as-is.
func checkAccount(info *solana.AccountInfo, req ConfirmRequest) error {
	if info == nil || info.Data == "" {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return fmt.Errorf("%w: decode etf account: %v", domain.ErrChain, err)
	}
	acc, err := program.DecodeETFAccount(data)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrChain, err)
	}

	if acc.Lister.String() != req.Creator {
		return domain.Validationf("etf account lister %s does not match creator %s", acc.Lister, req.Creator)
	}
	if len(acc.TokenAddresses) != len(req.Constituents) {
		return domain.Validationf("etf account holds %d tokens, request lists %d", len(acc.TokenAddresses), len(req.Constituents))
	}
	for i, t := range acc.TokenAddresses {
		if t.String() != req.Constituents[i].Mint {
			return domain.Validationf("etf account token %d is %s, request lists %s", i, t, req.Constituents[i].Mint)
		}
	}
	return nil
}
