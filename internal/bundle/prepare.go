package bundle

import (
	"context"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jellydator/validation"
	"github.com/shopspring/decimal"

	"memeetf/internal/custody"
	"memeetf/internal/domain"
	"memeetf/internal/idhash"
	"memeetf/internal/program"
)

// PrepareRequest describes a non-custodial basket purchase.
type PrepareRequest struct {
	ETFID        uuid.UUID
	Amount       decimal.Decimal // SOL, before fees
	Buyer        string
	Creator      string
	Constituents []domain.Constituent
}

// Validate implements validation.Validatable.
func (r PrepareRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Amount, domain.PositiveAmount),
		validation.Field(&r.Buyer, validation.Required, domain.Address),
		validation.Field(&r.Creator, validation.Required, domain.Address),
		validation.Field(&r.Constituents, validation.Required, domain.BalancedWeights),
	)
}

// PrepareBuy builds the fee transaction followed by one swap transaction per
// constituent, in constituent order.
func (b *Builder) PrepareBuy(ctx context.Context, req PrepareRequest) (*Bundle, error) {
	if err := domain.Validate(req); err != nil {
		return nil, err
	}
	amount, err := domain.SOLToLamports(req.Amount)
	if err != nil {
		return nil, err
	}
	listerFee, platformFee := domain.ComputeFeeLamports(amount)
	fee := listerFee + platformFee
	budget := domain.LamportsToSOL(amount - fee)

	shares := make([]uint64, len(req.Constituents))
	for i, c := range req.Constituents {
		shares[i], err = domain.ShareLamports(budget, c.Weight)
		if err != nil {
			return nil, err
		}
		if shares[i] == 0 {
			return nil, domain.Validationf("constituent %d (%s) receives zero lamports", i, c.Mint)
		}
	}

	buyer := solanago.MustPublicKeyFromBase58(req.Buyer)
	creator := solanago.MustPublicKeyFromBase58(req.Creator)

	pda, initialized, err := b.etfInitialized(ctx, req.Creator)
	if err != nil {
		return nil, err
	}
	blockhash, err := b.blockhash(ctx)
	if err != nil {
		return nil, err
	}

	id := idhash.BundleID(req.ETFID, req.Buyer, req.Amount, blockhash)
	bundle := &Bundle{
		ID:              id,
		Network:         b.network,
		Blockhash:       blockhash,
		ContractAddress: pda.String(),
	}

	var feeIxs []solanago.Instruction
	switch {
	case fee == 0:
	case initialized:
		feeIxs = append(feeIxs, program.NewBuyETFInstruction(b.programID, pda, buyer, creator, fee))
	default:
		feeIxs, err = b.feeTransfers(buyer, creator, listerFee, platformFee)
		if err != nil {
			return nil, err
		}
	}
	feeIxs = append(feeIxs, custody.MemoInstruction("bundle:"+idhash.MemoTag(id)))

	feeTx, err := b.encode(feeIxs, blockhash, buyer)
	if err != nil {
		return nil, err
	}
	bundle.Transactions = append(bundle.Transactions, Tx{Index: 0, Kind: KindFee, Lamports: fee, Base64: feeTx})

	for i, c := range req.Constituents {
		b64, _, simulated, err := b.swapTx(ctx, buyer, domain.WSOLMint, c.Mint, shares[i], blockhash)
		if err != nil {
			return nil, fmt.Errorf("constituent %d: %w", i, err)
		}
		bundle.Transactions = append(bundle.Transactions, Tx{
			Index:     i + 1,
			Kind:      KindSwap,
			Mint:      c.Mint,
			Lamports:  shares[i],
			Base64:    b64,
			Simulated: simulated,
		})
	}

	b.log.Infow("buy bundle prepared",
		"bundle_id", id,
		"etf_id", req.ETFID,
		"buyer", req.Buyer,
		"transactions", len(bundle.Transactions),
		"program_fee", initialized,
	)
	return bundle, nil
}

// Holding is a token balance to sell.
type Holding struct {
	Mint   string
	Amount uint64 // raw base units
}

// Validate implements validation.Validatable.
func (h Holding) Validate() error {
	return validation.ValidateStruct(&h,
		validation.Field(&h.Mint, validation.Required, domain.Address),
	)
}

// PrepareSellRequest describes a non-custodial basket sale.
type PrepareSellRequest struct {
	ETFID    uuid.UUID
	Seller   string
	Creator  string
	Holdings []Holding
}

// Validate implements validation.Validatable.
func (r PrepareSellRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Seller, validation.Required, domain.Address),
		validation.Field(&r.Creator, validation.Required, domain.Address),
		validation.Field(&r.Holdings, validation.Required, validation.Length(1, domain.MaxConstituents)),
	)
}

// PrepareSell builds token -> WSOL swap transactions for every non-zero
// holding, then the fee transfer on the quoted proceeds.
func (b *Builder) PrepareSell(ctx context.Context, req PrepareSellRequest) (*Bundle, error) {
	if err := domain.Validate(req); err != nil {
		return nil, err
	}

	seller := solanago.MustPublicKeyFromBase58(req.Seller)
	creator := solanago.MustPublicKeyFromBase58(req.Creator)

	blockhash, err := b.blockhash(ctx)
	if err != nil {
		return nil, err
	}

	var units uint64
	for _, h := range req.Holdings {
		units += h.Amount
	}
	id := idhash.BundleID(req.ETFID, req.Seller, decimal.NewFromUint64(units), blockhash)
	bundle := &Bundle{ID: id, Network: b.network, Blockhash: blockhash}

	var proceeds uint64
	for _, h := range req.Holdings {
		if h.Amount == 0 {
			continue
		}
		b64, out, simulated, err := b.swapTx(ctx, seller, h.Mint, domain.WSOLMint, h.Amount, blockhash)
		if err != nil {
			return nil, fmt.Errorf("holding %s: %w", h.Mint, err)
		}
		proceeds += out
		bundle.Transactions = append(bundle.Transactions, Tx{
			Index:     len(bundle.Transactions),
			Kind:      KindSwap,
			Mint:      h.Mint,
			Lamports:  out,
			Base64:    b64,
			Simulated: simulated,
		})
	}
	if len(bundle.Transactions) == 0 {
		return nil, domain.Validationf("no holdings to sell")
	}

	listerFee, platformFee := domain.ComputeFeeLamports(proceeds)
	feeIxs, err := b.feeTransfers(seller, creator, listerFee, platformFee)
	if err != nil {
		return nil, err
	}
	feeIxs = append(feeIxs, custody.MemoInstruction("bundle:"+idhash.MemoTag(id)))
	feeTx, err := b.encode(feeIxs, blockhash, seller)
	if err != nil {
		return nil, err
	}
	bundle.Transactions = append(bundle.Transactions, Tx{
		Index:    len(bundle.Transactions),
		Kind:     KindFee,
		Lamports: listerFee + platformFee,
		Base64:   feeTx,
	})

	b.log.Infow("sell bundle prepared",
		"bundle_id", id,
		"seller", req.Seller,
		"quoted_proceeds", proceeds,
		"transactions", len(bundle.Transactions),
	)
	return bundle, nil
}

// PrepareCreateRequest describes a new ETF listing.
type PrepareCreateRequest struct {
	Creator      string
	Constituents []domain.Constituent
}

// Validate implements validation.Validatable.
func (r PrepareCreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Creator, validation.Required, domain.Address),
		validation.Field(&r.Constituents, validation.Required, domain.BalancedWeights),
	)
}

// PrepareCreate builds the unsigned initialize_etf transaction for the creator.
// The bundle's ContractAddress is the ETF account the transaction creates.
func (b *Builder) PrepareCreate(ctx context.Context, req PrepareCreateRequest) (*Bundle, error) {
	if err := domain.Validate(req); err != nil {
		return nil, err
	}

	creator := solanago.MustPublicKeyFromBase58(req.Creator)
	tokens := make([]solanago.PublicKey, len(req.Constituents))
	for i, c := range req.Constituents {
		tokens[i] = solanago.MustPublicKeyFromBase58(c.Mint)
	}

	pda, initialized, err := b.etfInitialized(ctx, req.Creator)
	if err != nil {
		return nil, err
	}
	if initialized {
		return nil, domain.Validationf("creator %s already has an etf at %s", req.Creator, pda)
	}

	blockhash, err := b.blockhash(ctx)
	if err != nil {
		return nil, err
	}

	ix, err := program.NewInitializeETFInstruction(b.programID, pda, creator, tokens)
	if err != nil {
		return nil, domain.Validationf("%v", err)
	}
	b64, err := b.encode([]solanago.Instruction{ix}, blockhash, creator)
	if err != nil {
		return nil, err
	}

	id := idhash.BundleID(uuid.Nil, req.Creator, decimal.Zero, blockhash)
	b.log.Infow("create bundle prepared", "bundle_id", id, "creator", req.Creator, "etf_address", pda)
	return &Bundle{
		ID:              id,
		Network:         b.network,
		Blockhash:       blockhash,
		ContractAddress: pda.String(),
		Transactions:    []Tx{{Index: 0, Kind: KindCreate, Base64: b64}},
	}, nil
}
