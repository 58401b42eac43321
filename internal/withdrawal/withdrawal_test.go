package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memeetf/internal/confirm"
	"memeetf/internal/custody"
	"memeetf/internal/domain"
	"memeetf/internal/program"
	"memeetf/internal/solana"
	"memeetf/internal/solana/stub"
	"memeetf/internal/storage"
	"memeetf/internal/storage/memory"
)

type failingLedger struct {
	storage.LedgerStore
}

func (failingLedger) CommitWithdrawal(context.Context, *domain.Transaction) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("connection reset by peer")
}

type fixture struct {
	rpc    *stub.RPCClient
	ledger storage.LedgerStore
	txs    *memory.TransactionStore
	signer *custody.Signer
	svc    *Service
	wallet string
}

func newFixture(t *testing.T, balance string, ledgerWrap func(storage.LedgerStore) storage.LedgerStore) *fixture {
	t.Helper()

	db := memory.NewDB()
	f := &fixture{
		rpc:    stub.NewRPCClient(),
		ledger: memory.NewLedgerStore(db),
		txs:    memory.NewTransactionStore(db),
		wallet: solanago.NewWallet().PublicKey().String(),
	}
	require.NoError(t, f.ledger.CreateUser(context.Background(), &domain.User{
		WalletAddress: f.wallet,
		Balance:       decimal.RequireFromString(balance),
	}))

	signer, err := custody.NewSigner(solanago.NewWallet().PrivateKey, f.rpc, nil)
	require.NoError(t, err)
	f.signer = signer
	f.rpc.Balances[signer.Address()] = 100 * domain.LamportsPerSOL
	f.rpc.SendStatus = stub.Confirmed()

	ledger := f.ledger
	if ledgerWrap != nil {
		ledger = ledgerWrap(ledger)
	}

	svc, err := NewService(Options{
		Ledger:       ledger,
		Transactions: f.txs,
		Custody:      signer,
		Chain:        f.rpc,
		Confirmer: confirm.NewVerifier(f.rpc,
			confirm.WithPollInterval(time.Millisecond),
			confirm.WithTimeout(50*time.Millisecond)),
		Network: domain.NetworkDevnet,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) request(amount string) Request {
	return Request{
		Wallet:      f.wallet,
		Destination: f.wallet,
		Amount:      decimal.RequireFromString(amount),
		Network:     domain.NetworkDevnet,
	}
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	u, err := f.ledger.GetUser(context.Background(), f.wallet)
	require.NoError(t, err)
	return u.Balance
}

func TestWithdraw_Success(t *testing.T) {
	f := newFixture(t, "5", nil)
	ctx := context.Background()

	res, err := f.svc.Withdraw(ctx, f.request("1.5"))
	require.NoError(t, err)

	assert.Equal(t, StateConfirmed, res.State)
	assert.True(t, res.Balance.Equal(decimal.RequireFromString("3.5")))
	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("3.5")))
	assert.Equal(t, 1, f.rpc.SentCount())

	entry, err := f.txs.GetBySignature(ctx, domain.TxKindWithdrawal, res.TxSignature)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusCompleted, entry.Status)
	assert.Equal(t, f.signer.Address(), entry.FromAddress)
	assert.Equal(t, f.wallet, entry.ToAddress)
	assert.Equal(t, domain.NetworkDevnet, entry.Network)

	tx, err := program.DecodeBase64Tx(f.rpc.Sent[0])
	require.NoError(t, err)
	assert.True(t, tx.Message.AccountKeys[0].Equals(f.signer.PublicKey()), "custody pays")
}

func TestWithdraw_ConcurrentSameWallet(t *testing.T) {
	f := newFixture(t, "5", nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Withdraw(context.Background(), f.request("4"))
		}(i)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrInsufficientFunds):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, 1, f.rpc.SentCount(), "only one transfer leaves custody")
	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("1")))
}

func TestWithdraw_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		balance string
		modify  func(f *fixture, r *Request)
		wantErr error
	}{
		{"zero amount", "5", func(_ *fixture, r *Request) { r.Amount = decimal.Zero }, domain.ErrValidation},
		{"bad destination", "5", func(_ *fixture, r *Request) { r.Destination = "0xdeadbeef" }, domain.ErrValidation},
		{"network mismatch", "5", func(_ *fixture, r *Request) { r.Network = domain.NetworkMainnet }, domain.ErrValidation},
		{"dust", "5", func(_ *fixture, r *Request) { r.Amount = decimal.RequireFromString("0.0000000001") }, domain.ErrValidation},
		{"ledger balance", "1", func(_ *fixture, r *Request) { r.Amount = decimal.RequireFromString("2") }, domain.ErrInsufficientFunds},
		{"custody balance", "500", func(f *fixture, r *Request) { r.Amount = decimal.RequireFromString("100") }, domain.ErrInsufficientChainFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.balance, nil)
			req := f.request("1")
			tt.modify(f, &req)

			_, err := f.svc.Withdraw(context.Background(), req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, f.rpc.SentCount(), "nothing submitted")
			assert.True(t, f.balance(t).Equal(decimal.RequireFromString(tt.balance)))
		})
	}
}

func TestWithdraw_ChainFailure(t *testing.T) {
	f := newFixture(t, "5", nil)
	f.rpc.SendStatus = stub.Failed("InsufficientFundsForRent")
	ctx := context.Background()

	_, err := f.svc.Withdraw(ctx, f.request("1"))
	assert.ErrorIs(t, err, domain.ErrChain)
	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("5")))

	failed, err := f.txs.ListByStatus(ctx, domain.TxStatusFailed)
	require.NoError(t, err)
	assert.Len(t, failed, 1)

	pending, err := f.txs.ListByStatus(ctx, domain.TxStatusPendingReconciliation)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestWithdraw_ConfirmationTimeout(t *testing.T) {
	f := newFixture(t, "5", nil)
	f.rpc.SendStatus = nil
	ctx := context.Background()

	_, err := f.svc.Withdraw(ctx, f.request("1"))
	assert.ErrorIs(t, err, domain.ErrChain)
	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("5")))

	pending, err := f.txs.ListByStatus(ctx, domain.TxStatusPendingReconciliation)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "stubsig1", pending[0].TxSignature)
}

func TestWithdraw_AmbiguousSend(t *testing.T) {
	f := newFixture(t, "5", nil)
	f.rpc.SendErr = errors.New("read: connection reset by peer")
	ctx := context.Background()

	_, err := f.svc.Withdraw(ctx, f.request("1"))
	assert.ErrorIs(t, err, domain.ErrChain)
	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("5")))

	pending, err := f.txs.ListByStatus(ctx, domain.TxStatusPendingReconciliation)
	require.NoError(t, err)
	require.Len(t, pending, 1, "the in-flight transfer is audited")
	_, err = solanago.SignatureFromBase58(pending[0].TxSignature)
	assert.NoError(t, err)
	assert.True(t, pending[0].Amount.Equal(decimal.RequireFromString("1")))
}

func TestWithdraw_SendRejected(t *testing.T) {
	f := newFixture(t, "5", nil)
	f.rpc.SendErr = fmt.Errorf("blockhash not found: %w", solana.ErrRPCRejected)
	ctx := context.Background()

	_, err := f.svc.Withdraw(ctx, f.request("1"))
	assert.ErrorIs(t, err, domain.ErrChain)

	all, err := f.txs.ListByWallet(ctx, f.wallet)
	require.NoError(t, err)
	assert.Empty(t, all, "nothing to reconcile")
}

func TestWithdraw_LedgerFailureAfterChain(t *testing.T) {
	f := newFixture(t, "5", func(s storage.LedgerStore) storage.LedgerStore {
		return failingLedger{LedgerStore: s}
	})
	ctx := context.Background()

	_, err := f.svc.Withdraw(ctx, f.request("1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrReconciliationRequired)

	var rec *domain.ReconciliationError
	require.ErrorAs(t, err, &rec)
	require.Len(t, rec.TxSignatures, 1)
	sig := rec.TxSignatures[0]

	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("5")), "debit never committed")

	row, err := f.txs.GetBySignature(ctx, domain.TxKindWithdrawal, sig)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusPendingReconciliation, row.Status)
	assert.Equal(t, rec.ReferenceID, row.ReferenceID)
	assert.True(t, row.Amount.Equal(decimal.RequireFromString("1")))
}
