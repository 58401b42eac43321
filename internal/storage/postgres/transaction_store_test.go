package postgres

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memeetf/internal/domain"
	"memeetf/internal/storage"
)

func TestTransactionStore_ReconciliationFlow(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTransactionStore(pool)
	ctx := context.Background()

	pending := &domain.Transaction{
		ID: uuid.New(), UserWallet: "w1", Kind: domain.TxKindWithdrawal,
		Amount: decimal.RequireFromString("0.5"), Status: domain.TxStatusPendingReconciliation,
		TxSignature: "wd-sig", ToAddress: "dest", Network: domain.NetworkMainnet,
		Metadata: map[string]any{"error": "connection reset"},
	}
	require.NoError(t, store.Insert(ctx, pending))

	list, err := store.ListByStatus(ctx, domain.TxStatusPendingReconciliation)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "wd-sig", list[0].TxSignature)
	assert.Equal(t, "connection reset", list[0].Metadata["error"])

	require.NoError(t, store.Resolve(ctx, pending.ID, domain.TxStatusCompleted, "debited by operator"))
	assert.ErrorIs(t, store.Resolve(ctx, pending.ID, domain.TxStatusFailed, "again"), storage.ErrNotFound)

	got, err := store.GetByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusCompleted, got.Status)
	assert.NotNil(t, got.ResolvedAt)
	assert.Equal(t, "debited by operator", got.ResolutionNote)

	list, err = store.ListByStatus(ctx, domain.TxStatusPendingReconciliation)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTransactionStore_KindSignatureUnique(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTransactionStore(pool)
	ctx := context.Background()

	entry := func(kind domain.TxKind, sig string) *domain.Transaction {
		return &domain.Transaction{
			ID: uuid.New(), UserWallet: "w1", Kind: kind, Amount: decimal.NewFromInt(1),
			Status: domain.TxStatusCompleted, TxSignature: sig, Network: domain.NetworkDevnet,
		}
	}

	require.NoError(t, store.Insert(ctx, entry(domain.TxKindDeposit, "s1")))
	assert.ErrorIs(t, store.Insert(ctx, entry(domain.TxKindDeposit, "s1")), storage.ErrDuplicateKey)
	require.NoError(t, store.Insert(ctx, entry(domain.TxKindWithdrawal, "s1")))

	// NULL signatures never collide
	require.NoError(t, store.Insert(ctx, entry(domain.TxKindRefund, "")))
	require.NoError(t, store.Insert(ctx, entry(domain.TxKindRefund, "")))

	list, err := store.ListByWallet(ctx, "w1")
	require.NoError(t, err)
	assert.Len(t, list, 4)
}
