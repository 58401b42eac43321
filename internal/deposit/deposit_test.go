package deposit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memeetf/internal/confirm"
	"memeetf/internal/domain"
	"memeetf/internal/solana"
	"memeetf/internal/solana/stub"
	"memeetf/internal/storage"
	"memeetf/internal/storage/memory"
)

const depositSig = "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"

type fixture struct {
	rpc     *stub.RPCClient
	ledger  *memory.LedgerStore
	txs     *memory.TransactionStore
	svc     *Service
	wallet  string
	custody string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memory.NewDB()
	f := &fixture{
		rpc:     stub.NewRPCClient(),
		ledger:  memory.NewLedgerStore(db),
		txs:     memory.NewTransactionStore(db),
		wallet:  solanago.NewWallet().PublicKey().String(),
		custody: solanago.NewWallet().PublicKey().String(),
	}
	svc, err := NewService(Options{
		Ledger:         f.ledger,
		Transactions:   f.txs,
		Chain:          f.rpc,
		Confirmer:      confirm.NewVerifier(f.rpc, confirm.WithPollInterval(time.Millisecond), confirm.WithTimeout(50*time.Millisecond)),
		CustodyAddress: f.custody,
		Network:        domain.NetworkDevnet,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

// publish stores a transfer of lamports from signer to the custody wallet.
func (f *fixture) publish(sig, signer string, lamports uint64, txErr interface{}) {
	f.rpc.AddTransaction(&solana.Transaction{
		Slot:      42,
		Signature: sig,
		Meta: &solana.TransactionMeta{
			Err:          txErr,
			Fee:          5000,
			PreBalances:  []uint64{10_000_000_000, 1_000_000},
			PostBalances: []uint64{10_000_000_000 - lamports - 5000, 1_000_000 + lamports},
		},
		Message: &solana.TransactionMessage{
			AccountKeys:           []string{signer, f.custody, solana.SystemProgramID},
			NumRequiredSignatures: 1,
		},
	})
	if txErr != nil {
		f.rpc.SetStatus(sig, stub.Failed("custom program error"))
		return
	}
	f.rpc.SetStatus(sig, stub.Confirmed())
}

func TestConfirm_CreditsNewUser(t *testing.T) {
	f := newFixture(t)
	f.publish(depositSig, f.wallet, 1_500_000_000, nil)

	res, err := f.svc.Confirm(context.Background(), Request{Wallet: f.wallet, Signature: depositSig})
	require.NoError(t, err)

	assert.False(t, res.AlreadyCredited)
	assert.True(t, decimal.RequireFromString("1.5").Equal(res.Balance), "balance %s", res.Balance)
	assert.Equal(t, domain.TxKindDeposit, res.Entry.Kind)
	assert.Equal(t, domain.TxStatusCompleted, res.Entry.Status)
	assert.Equal(t, f.custody, res.Entry.ToAddress)

	u, err := f.ledger.GetUser(context.Background(), f.wallet)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1.5").Equal(u.Balance))
}

func TestConfirm_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.publish(depositSig, f.wallet, 1_000_000_000, nil)
	ctx := context.Background()

	first, err := f.svc.Confirm(ctx, Request{Wallet: f.wallet, Signature: depositSig})
	require.NoError(t, err)
	second, err := f.svc.Confirm(ctx, Request{Wallet: f.wallet, Signature: depositSig})
	require.NoError(t, err)

	assert.True(t, second.AlreadyCredited)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)
	assert.True(t, decimal.NewFromInt(1).Equal(second.Balance))
}

func TestConfirm_ConcurrentCreditsOnce(t *testing.T) {
	f := newFixture(t)
	f.publish(depositSig, f.wallet, 1_000_000_000, nil)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Confirm(context.Background(), Request{Wallet: f.wallet, Signature: depositSig})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	u, err := f.ledger.GetUser(context.Background(), f.wallet)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1).Equal(u.Balance), "balance %s", u.Balance)
}

func TestConfirm_Rejected(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture) Request
	}{
		{
			name: "bad wallet",
			setup: func(f *fixture) Request {
				return Request{Wallet: "not-a-wallet", Signature: depositSig}
			},
		},
		{
			name: "missing signature",
			setup: func(f *fixture) Request {
				return Request{Wallet: f.wallet}
			},
		},
		{
			name: "signed by someone else",
			setup: func(f *fixture) Request {
				f.publish(depositSig, solanago.NewWallet().PublicKey().String(), 1_000_000_000, nil)
				return Request{Wallet: f.wallet, Signature: depositSig}
			},
		},
		{
			name: "custody not credited",
			setup: func(f *fixture) Request {
				f.publish(depositSig, f.wallet, 0, nil)
				return Request{Wallet: f.wallet, Signature: depositSig}
			},
		},
		{
			name: "deposit claimed by another wallet",
			setup: func(f *fixture) Request {
				f.publish(depositSig, f.wallet, 1_000_000_000, nil)
				_, err := f.svc.Confirm(context.Background(), Request{Wallet: f.wallet, Signature: depositSig})
				if err != nil {
					panic(err)
				}
				return Request{Wallet: solanago.NewWallet().PublicKey().String(), Signature: depositSig}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := tt.setup(f)
			_, err := f.svc.Confirm(context.Background(), req)
			assert.True(t, errors.Is(err, domain.ErrValidation), "got %v", err)
		})
	}
}

func TestConfirm_FailedTransaction(t *testing.T) {
	f := newFixture(t)
	f.publish(depositSig, f.wallet, 1_000_000_000, map[string]any{"InstructionError": []any{0, "Custom"}})

	_, err := f.svc.Confirm(context.Background(), Request{Wallet: f.wallet, Signature: depositSig})
	assert.True(t, errors.Is(err, domain.ErrChain), "got %v", err)

	_, err = f.ledger.GetUser(context.Background(), f.wallet)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestConfirm_Unconfirmed(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Confirm(context.Background(), Request{Wallet: f.wallet, Signature: depositSig})
	assert.True(t, errors.Is(err, domain.ErrChain), "got %v", err)
}
