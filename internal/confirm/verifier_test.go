package confirm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memeetf/internal/domain"
	"memeetf/internal/solana"
	"memeetf/internal/solana/stub"
)

func fastVerifier(rpc solana.RPCClient, opts ...Option) *Verifier {
	opts = append([]Option{WithPollInterval(5 * time.Millisecond), WithTimeout(200 * time.Millisecond)}, opts...)
	return NewVerifier(rpc, opts...)
}

func TestVerifier_Status(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetStatus("confirmed", stub.Confirmed())
	rpc.SetStatus("finalized", &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentFinalized})
	rpc.SetStatus("processed", &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentProcessed})
	rpc.SetStatus("failed", stub.Failed("InsufficientFundsForRent"))

	v := fastVerifier(rpc)
	ctx := context.Background()

	tests := []struct {
		sig  string
		want State
	}{
		{"confirmed", StateConfirmed},
		{"finalized", StateFinalized},
		{"processed", StatePending},
		{"failed", StateFailed},
		{"unknown", StatePending},
	}
	for _, tt := range tests {
		t.Run(tt.sig, func(t *testing.T) {
			status, err := v.Status(ctx, tt.sig)
			require.NoError(t, err)
			assert.Equal(t, tt.want, status.State)
		})
	}
}

func TestVerifier_Wait_Confirmed(t *testing.T) {
	rpc := stub.NewRPCClient()
	v := fastVerifier(rpc)

	go func() {
		time.Sleep(20 * time.Millisecond)
		rpc.SetStatus("sig", stub.Confirmed())
	}()

	status, err := v.Wait(context.Background(), "sig")
	require.NoError(t, err)
	assert.True(t, status.Landed())
}

func TestVerifier_Wait_Failed(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetStatus("sig", stub.Failed("custom program error"))

	status, err := fastVerifier(rpc).Wait(context.Background(), "sig")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrChain)
	assert.Equal(t, StateFailed, status.State)
	assert.Contains(t, status.Reason, "custom program error")
}

func TestVerifier_Wait_Timeout(t *testing.T) {
	rpc := stub.NewRPCClient()

	start := time.Now()
	_, err := fastVerifier(rpc).Wait(context.Background(), "never")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrChain)
	assert.Less(t, time.Since(start), 2*time.Second)
}

type fakeSubscriber struct {
	notif *solana.SignatureNotification
	err   error
}

func (f *fakeSubscriber) SubscribeSignature(_ context.Context, sig string) (<-chan solana.SignatureNotification, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan solana.SignatureNotification, 1)
	if f.notif != nil {
		n := *f.notif
		n.Signature = sig
		ch <- n
	}
	close(ch)
	return ch, nil
}

func (f *fakeSubscriber) Close() error { return nil }

func TestVerifier_Wait_Subscription(t *testing.T) {
	rpc := stub.NewRPCClient()
	sub := &fakeSubscriber{notif: &solana.SignatureNotification{Slot: 9}}

	status, err := fastVerifier(rpc, WithSubscriber(sub)).Wait(context.Background(), "sig")
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, status.State)
	assert.Equal(t, int64(9), status.Slot)
}

func TestVerifier_Wait_SubscriptionReportsFailure(t *testing.T) {
	rpc := stub.NewRPCClient()
	sub := &fakeSubscriber{notif: &solana.SignatureNotification{Err: "InstructionError"}}

	status, err := fastVerifier(rpc, WithSubscriber(sub)).Wait(context.Background(), "sig")
	assert.ErrorIs(t, err, domain.ErrChain)
	assert.Equal(t, StateFailed, status.State)
}

func TestVerifier_Wait_SubscriptionFallsBackToPolling(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetStatus("sig", stub.Confirmed())
	sub := &fakeSubscriber{err: errors.New("ws down")}

	status, err := fastVerifier(rpc, WithSubscriber(sub)).Wait(context.Background(), "sig")
	require.NoError(t, err)
	assert.True(t, status.Landed())
}

func TestVerifier_VerifyAccount(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.Accounts["etf"] = &solana.AccountInfo{Owner: "program", Lamports: 1}
	rpc.Accounts["foreign"] = &solana.AccountInfo{Owner: "someone-else"}
	v := fastVerifier(rpc)
	ctx := context.Background()

	info, err := v.VerifyAccount(ctx, "etf", "program")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Lamports)

	_, err = v.VerifyAccount(ctx, "missing", "program")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.ErrorIs(t, err, domain.ErrChain)

	_, err = v.VerifyAccount(ctx, "foreign", "program")
	assert.ErrorIs(t, err, domain.ErrChain)
}
