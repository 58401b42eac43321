package bundle

import (
	"context"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memeetf/internal/domain"
	"memeetf/internal/jupiter"
	"memeetf/internal/program"
	"memeetf/internal/solana"
	"memeetf/internal/solana/stub"
)

const (
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	wifMint  = "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"
)

type fakeQuoter struct {
	users []string
}

func (q *fakeQuoter) Quote(_ context.Context, req jupiter.QuoteRequest) (*jupiter.Quote, error) {
	return &jupiter.Quote{
		InputMint:  req.InputMint,
		OutputMint: req.OutputMint,
		InAmount:   req.Amount,
		OutAmount:  req.Amount / 2,
	}, nil
}

func (q *fakeQuoter) SwapTransaction(_ context.Context, quote *jupiter.Quote, user string) (string, error) {
	q.users = append(q.users, user)
	return "swap:" + quote.OutputMint, nil
}

func newBuilder(t *testing.T, network domain.Network, rpc *stub.RPCClient, quoter Quoter) *Builder {
	t.Helper()
	b, err := NewBuilder(Options{
		Chain:          rpc,
		Quoter:         quoter,
		PlatformWallet: solanago.NewWallet().PublicKey().String(),
		Network:        network,
	})
	require.NoError(t, err)
	return b
}

func buyRequest() PrepareRequest {
	return PrepareRequest{
		ETFID:   uuid.New(),
		Amount:  decimal.RequireFromString("1"),
		Buyer:   solanago.NewWallet().PublicKey().String(),
		Creator: solanago.NewWallet().PublicKey().String(),
		Constituents: []domain.Constituent{
			{Mint: usdcMint, Weight: 40},
			{Mint: bonkMint, Weight: 40},
			{Mint: wifMint, Weight: 20},
		},
	}
}

func decode(t *testing.T, b64 string) *solanago.Transaction {
	t.Helper()
	tx, err := program.DecodeBase64Tx(b64)
	require.NoError(t, err)
	return tx
}

func TestPrepareBuy_Devnet(t *testing.T) {
	rpc := stub.NewRPCClient()
	b := newBuilder(t, domain.NetworkDevnet, rpc, nil)
	req := buyRequest()

	bundle, err := b.PrepareBuy(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, bundle.Transactions, 4)
	assert.Equal(t, rpc.Blockhash, bundle.Blockhash)
	assert.Len(t, bundle.ID, 64)

	fee := bundle.Transactions[0]
	assert.Equal(t, KindFee, fee.Kind)
	assert.Equal(t, uint64(10_000_000), fee.Lamports)

	feeTx := decode(t, fee.Base64)
	require.Len(t, feeTx.Message.Instructions, 3, "lister transfer, platform transfer, memo")
	assert.True(t, feeTx.Message.AccountKeys[0].Equals(solanago.MustPublicKeyFromBase58(req.Buyer)), "buyer pays")
	assert.Equal(t, uint8(1), feeTx.Message.Header.NumRequiredSignatures)

	// 0.99 SOL after fees split 40/40/20
	want := []uint64{396_000_000, 396_000_000, 198_000_000}
	for i, tx := range bundle.Transactions[1:] {
		assert.Equal(t, i+1, tx.Index)
		assert.Equal(t, KindSwap, tx.Kind)
		assert.Equal(t, req.Constituents[i].Mint, tx.Mint)
		assert.Equal(t, want[i], tx.Lamports)
		assert.True(t, tx.Simulated)
		decode(t, tx.Base64)
	}
}

func TestPrepareBuy_DeterministicID(t *testing.T) {
	b := newBuilder(t, domain.NetworkDevnet, stub.NewRPCClient(), nil)
	req := buyRequest()

	first, err := b.PrepareBuy(context.Background(), req)
	require.NoError(t, err)
	second, err := b.PrepareBuy(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Transactions[0].Base64, second.Transactions[0].Base64)
}

func TestPrepareBuy_InitializedETFUsesProgram(t *testing.T) {
	rpc := stub.NewRPCClient()
	b := newBuilder(t, domain.NetworkDevnet, rpc, nil)
	req := buyRequest()

	pda, _, err := program.ETFAddress(req.Creator, program.DefaultProgramID)
	require.NoError(t, err)
	rpc.Accounts[pda] = &solana.AccountInfo{Owner: program.DefaultProgramID, Lamports: 1}

	bundle, err := b.PrepareBuy(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, pda, bundle.ContractAddress)

	feeTx := decode(t, bundle.Transactions[0].Base64)
	require.Len(t, feeTx.Message.Instructions, 2, "buy_etf, memo")

	ix := feeTx.Message.Instructions[0]
	programKey, err := feeTx.Message.Program(ix.ProgramIDIndex)
	require.NoError(t, err)
	assert.Equal(t, program.DefaultProgramID, programKey.String())

	disc := program.InstructionDiscriminator(program.InstructionBuyETF)
	assert.Equal(t, disc[:], []byte(ix.Data[:8]))
}

func TestPrepareBuy_MainnetUsesAggregator(t *testing.T) {
	q := &fakeQuoter{}
	b := newBuilder(t, domain.NetworkMainnet, stub.NewRPCClient(), q)
	req := buyRequest()

	bundle, err := b.PrepareBuy(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, bundle.Transactions, 4)
	assert.Equal(t, "swap:"+bonkMint, bundle.Transactions[2].Base64)
	assert.False(t, bundle.Transactions[2].Simulated)
	assert.Equal(t, []string{req.Buyer, req.Buyer, req.Buyer}, q.users)
}

func TestPrepareBuy_Validation(t *testing.T) {
	b := newBuilder(t, domain.NetworkDevnet, stub.NewRPCClient(), nil)

	tests := []struct {
		name   string
		modify func(r *PrepareRequest)
	}{
		{"weights 40/40/19", func(r *PrepareRequest) { r.Constituents[2].Weight = 19 }},
		{"bad mint", func(r *PrepareRequest) { r.Constituents[0].Mint = "xyz" }},
		{"bad buyer", func(r *PrepareRequest) { r.Buyer = "0x1234" }},
		{"zero amount", func(r *PrepareRequest) { r.Amount = decimal.Zero }},
		{"no constituents", func(r *PrepareRequest) { r.Constituents = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := buyRequest()
			tt.modify(&req)
			_, err := b.PrepareBuy(context.Background(), req)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestPrepareSell(t *testing.T) {
	q := &fakeQuoter{}
	b := newBuilder(t, domain.NetworkMainnet, stub.NewRPCClient(), q)

	bundle, err := b.PrepareSell(context.Background(), PrepareSellRequest{
		ETFID:   uuid.New(),
		Seller:  solanago.NewWallet().PublicKey().String(),
		Creator: solanago.NewWallet().PublicKey().String(),
		Holdings: []Holding{
			{Mint: usdcMint, Amount: 2_000_000_000},
			{Mint: bonkMint, Amount: 0},
			{Mint: wifMint, Amount: 1_000_000_000},
		},
	})
	require.NoError(t, err)
	require.Len(t, bundle.Transactions, 3, "two swaps then the fee")

	assert.Equal(t, KindSwap, bundle.Transactions[0].Kind)
	assert.Equal(t, KindSwap, bundle.Transactions[1].Kind)
	fee := bundle.Transactions[2]
	assert.Equal(t, KindFee, fee.Kind)
	assert.Equal(t, 2, fee.Index)
	// quoted proceeds 1.5 SOL, 1% fee
	assert.Equal(t, uint64(15_000_000), fee.Lamports)
}

func TestPrepareCreate(t *testing.T) {
	rpc := stub.NewRPCClient()
	b := newBuilder(t, domain.NetworkDevnet, rpc, nil)
	creator := solanago.NewWallet().PublicKey().String()
	constituents := []domain.Constituent{{Mint: usdcMint, Weight: 50}, {Mint: bonkMint, Weight: 50}}

	bundle, err := b.PrepareCreate(context.Background(), PrepareCreateRequest{Creator: creator, Constituents: constituents})
	require.NoError(t, err)
	require.Len(t, bundle.Transactions, 1)

	pda, _, err := program.ETFAddress(creator, program.DefaultProgramID)
	require.NoError(t, err)
	assert.Equal(t, pda, bundle.ContractAddress)

	tx := decode(t, bundle.Transactions[0].Base64)
	require.Len(t, tx.Message.Instructions, 1)
	disc := program.InstructionDiscriminator(program.InstructionInitializeETF)
	data := []byte(tx.Message.Instructions[0].Data)
	assert.Equal(t, disc[:], data[:8])
	assert.Len(t, data, 8+4+2*32)

	// an existing account is not re-created
	rpc.Accounts[pda] = &solana.AccountInfo{Owner: program.DefaultProgramID}
	_, err = b.PrepareCreate(context.Background(), PrepareCreateRequest{Creator: creator, Constituents: constituents})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPrepareCreate_TooManyTokens(t *testing.T) {
	b := newBuilder(t, domain.NetworkDevnet, stub.NewRPCClient(), nil)

	constituents := make([]domain.Constituent, 11)
	for i := range constituents {
		constituents[i] = domain.Constituent{Mint: solanago.NewWallet().PublicKey().String(), Weight: 100.0 / 11}
	}
	_, err := b.PrepareCreate(context.Background(), PrepareCreateRequest{
		Creator:      solanago.NewWallet().PublicKey().String(),
		Constituents: constituents,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
