package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"memeetf/internal/domain"
	"memeetf/internal/storage"
)

func seedETF(t *testing.T, db *DB, creator string) *domain.ETF {
	t.Helper()
	etf := &domain.ETF{
		ID:              uuid.New(),
		Creator:         creator,
		Name:            "Dogs",
		ContractAddress: "pda-" + uuid.NewString(),
		Network:         domain.NetworkDevnet,
		Constituents: []domain.Constituent{
			{Mint: "mintA", Weight: 60},
			{Mint: "mintB", Weight: 40},
		},
	}
	if err := NewETFStore(db).Insert(context.Background(), etf); err != nil {
		t.Fatalf("Insert ETF failed: %v", err)
	}
	return etf
}

func newSettlement(etf *domain.ETF, wallet string, amount string, sigPrefix string) *domain.Settlement {
	id := uuid.New()
	amt := decimal.RequireFromString(amount)
	fees := domain.ComputeFees(amt)
	return &domain.Settlement{
		Investment: &domain.Investment{
			ID: id, UserWallet: wallet, ETFID: etf.ID, Network: domain.NetworkDevnet,
			SOLAmount: amt, SOLAfterFees: fees.AfterFees,
		},
		Swaps: []*domain.SwapRecord{
			{AttemptID: id, Position: 1, RequestedMint: "mintB", OutputMint: "mintB", TxSignature: sigPrefix + "-1", Success: true},
			{AttemptID: id, Position: 0, RequestedMint: "mintA", OutputMint: "mintA", TxSignature: sigPrefix + "-0", Success: true},
		},
		Fee: domain.NewFeeRecord(etf, id, fees),
		Entry: &domain.Transaction{
			ID: uuid.New(), UserWallet: wallet, Kind: domain.TxKindBuy, Amount: amt,
			Fee: fees.Total, Status: domain.TxStatusCompleted, ReferenceID: id, Network: domain.NetworkDevnet,
		},
	}
}

func TestInvestmentStore_Settle(t *testing.T) {
	db := NewDB()
	seedUser(t, db, "w1", "0")
	etf := seedETF(t, db, "creator")
	store := NewInvestmentStore(db)
	ctx := context.Background()

	st := newSettlement(etf, "w1", "1", "a")
	if err := store.Settle(ctx, st); err != nil {
		t.Fatalf("Settle failed: %v", err)
	}

	inv, err := store.GetByID(ctx, st.Investment.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if len(inv.Swaps) != 2 || inv.Swaps[0].Position != 0 {
		t.Errorf("swaps = %+v, want 2 ordered by position", inv.Swaps)
	}

	// Second investment by the same user adds volume but not an investor.
	if err := store.Settle(ctx, newSettlement(etf, "w1", "2", "b")); err != nil {
		t.Fatalf("second Settle failed: %v", err)
	}
	got, _ := NewETFStore(db).GetByID(ctx, etf.ID)
	if !got.TotalVolume.Equal(decimal.RequireFromString("3")) {
		t.Errorf("TotalVolume = %s, want 3", got.TotalVolume)
	}
	if got.InvestorCount != 1 {
		t.Errorf("InvestorCount = %d, want 1", got.InvestorCount)
	}

	fees, _ := NewFeeStore(db).ListByETF(ctx, etf.ID)
	if len(fees) != 2 {
		t.Errorf("fee records = %d, want 2", len(fees))
	}
}

func TestInvestmentStore_Settle_AllOrNothing(t *testing.T) {
	db := NewDB()
	seedUser(t, db, "w1", "0")
	etf := seedETF(t, db, "creator")
	store := NewInvestmentStore(db)
	ctx := context.Background()

	if err := store.Settle(ctx, newSettlement(etf, "w1", "1", "a")); err != nil {
		t.Fatalf("Settle failed: %v", err)
	}

	// Reused swap signature fails the whole settlement.
	dup := newSettlement(etf, "w1", "1", "a")
	if err := store.Settle(ctx, dup); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}
	if _, err := store.GetByID(ctx, dup.Investment.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("investment persisted despite failed settlement: %v", err)
	}
	got, _ := NewETFStore(db).GetByID(ctx, etf.ID)
	if !got.TotalVolume.Equal(decimal.RequireFromString("1")) {
		t.Errorf("TotalVolume = %s, want 1", got.TotalVolume)
	}
}

func TestInvestmentStore_MarkSoldAndRecordSale(t *testing.T) {
	db := NewDB()
	seedUser(t, db, "w1", "0")
	etf := seedETF(t, db, "creator")
	store := NewInvestmentStore(db)
	ctx := context.Background()

	st := newSettlement(etf, "w1", "1", "a")
	if err := store.Settle(ctx, st); err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	id := st.Investment.ID

	sale := &domain.Sale{
		InvestmentID: id,
		UserWallet:   "w1",
		Proceeds:     decimal.RequireFromString("1.2"),
		RealizedPnL:  decimal.RequireFromString("0.21"),
		Fee:          domain.NewFeeRecord(etf, id, domain.ComputeFees(decimal.RequireFromString("1.2"))),
		Entry: &domain.Transaction{
			ID: uuid.New(), UserWallet: "w1", Kind: domain.TxKindSell, Amount: decimal.RequireFromString("1.2"),
			Status: domain.TxStatusCompleted, ReferenceID: id, Network: domain.NetworkDevnet,
		},
	}

	// Sale requires the sold claim first.
	if _, err := store.RecordSale(ctx, sale); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("Expected ErrConflict before MarkSold, got %v", err)
	}

	if err := store.MarkSold(ctx, id); err != nil {
		t.Fatalf("MarkSold failed: %v", err)
	}
	if err := store.MarkSold(ctx, id); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("Expected ErrConflict on second MarkSold, got %v", err)
	}

	balance, err := store.RecordSale(ctx, sale)
	if err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("1.2")) {
		t.Errorf("balance = %s, want 1.2", balance)
	}

	inv, _ := store.GetByID(ctx, id)
	if !inv.Sold || inv.SoldAt == nil || !inv.RealizedPnL.Valid || !inv.RealizedPnL.Decimal.Equal(decimal.RequireFromString("0.21")) {
		t.Errorf("investment after sale = %+v", inv)
	}

	if err := store.MarkSold(ctx, uuid.New()); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
