package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brixmarket/syncengine/internal/chain/mock"
	"github.com/brixmarket/syncengine/internal/domain"
	"github.com/brixmarket/syncengine/internal/store/memory"
)

const testWallet = "0xWalletA"

func seedLedger(t *testing.T, store *memory.Store, amount int64, source domain.LedgerSource) {
	t.Helper()
	err := store.AppendLedger(context.Background(), domain.LedgerEntry{
		WalletAddress: testWallet,
		AssetID:       testAsset,
		Amount:        amount,
		Source:        source,
		BlockTime:     time.Unix(1_700_000_000, 0).UTC(),
	})
	if err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
}

func TestBalanceFromLedger(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewBalanceService(store.Ledger(), nil, nil, testRegistry(), discard())

	seedLedger(t, store, 1000, domain.LedgerPrimaryPurchase)
	seedLedger(t, store, -400, domain.LedgerOrderLock)

	bal, err := svc.Balance(ctx, testWallet, testAsset)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal.Portfolio != 1000 {
		t.Errorf("Portfolio = %d, want 1000", bal.Portfolio)
	}
	if bal.Locked != 400 {
		t.Errorf("Locked = %d, want 400", bal.Locked)
	}
	if bal.Tradeable != 600 {
		t.Errorf("Tradeable = %d, want 600", bal.Tradeable)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewBalanceService(store.Ledger(), nil, nil, testRegistry(), discard())

	seedLedger(t, store, 1000, domain.LedgerPrimaryPurchase)
	seedLedger(t, store, -400, domain.LedgerOrderLock)

	entries, err := svc.History(ctx, testWallet, testAsset, domain.ListOpts{})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Source != domain.LedgerOrderLock {
		t.Errorf("entries[0].Source = %s, want the most recent entry first", entries[0].Source)
	}
}

func TestBalanceNeverSeenWallet(t *testing.T) {
	svc := NewBalanceService(memory.New().Ledger(), nil, nil, testRegistry(), discard())

	bal, err := svc.Balance(context.Background(), "0xNobody", testAsset)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal.Portfolio != 0 || bal.Locked != 0 || bal.Tradeable != 0 {
		t.Errorf("balance = %+v, want all zero", bal)
	}
}

func TestBalanceUnknownAsset(t *testing.T) {
	svc := NewBalanceService(memory.New().Ledger(), nil, nil, testRegistry(), discard())
	_, err := svc.Balance(context.Background(), testWallet, "no-such-asset")
	if !errors.Is(err, domain.ErrUnknownAsset) {
		t.Fatalf("err = %v, want ErrUnknownAsset", err)
	}
}

func TestBalancePrefersChainProvider(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	chain := mock.New()
	chain.SetBalance(testToken, testWallet, 1200)
	svc := NewBalanceService(store.Ledger(), chain, nil, testRegistry(), discard())

	seedLedger(t, store, 1000, domain.LedgerPrimaryPurchase)
	seedLedger(t, store, -400, domain.LedgerOrderLock)

	bal, err := svc.Balance(ctx, testWallet, testAsset)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal.WalletBalance != 1200 {
		t.Errorf("WalletBalance = %d, want on-chain 1200", bal.WalletBalance)
	}
	if bal.Tradeable != 800 {
		t.Errorf("Tradeable = %d, want 800 (onchain minus locked)", bal.Tradeable)
	}
}

func TestCheckDriftRecordsIncident(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	chain := mock.New()
	chain.SetBalance(testToken, testWallet, 900)
	svc := NewBalanceService(store.Ledger(), chain, store.Incidents(), testRegistry(), discard())

	seedLedger(t, store, 1000, domain.LedgerPrimaryPurchase)

	drift, err := svc.CheckDrift(ctx, testWallet, testAsset)
	if err != nil {
		t.Fatalf("CheckDrift: %v", err)
	}
	if drift != -100 {
		t.Errorf("drift = %d, want -100", drift)
	}

	incidents, err := store.Incidents().ListOpen(ctx, domain.ListOpts{})
	if err != nil {
		t.Fatalf("ListOpen: %v", err)
	}
	if len(incidents) != 1 || incidents[0].Kind != domain.IncidentDrift {
		t.Fatalf("incidents = %+v, want one ledger_drift incident", incidents)
	}
}

func TestCheckDriftCleanLedger(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	chain := mock.New()
	chain.SetBalance(testToken, testWallet, 1000)
	svc := NewBalanceService(store.Ledger(), chain, store.Incidents(), testRegistry(), discard())

	seedLedger(t, store, 1000, domain.LedgerPrimaryPurchase)

	drift, err := svc.CheckDrift(ctx, testWallet, testAsset)
	if err != nil {
		t.Fatalf("CheckDrift: %v", err)
	}
	if drift != 0 {
		t.Errorf("drift = %d, want 0", drift)
	}
	incidents, err := store.Incidents().ListOpen(ctx, domain.ListOpts{})
	if err != nil {
		t.Fatalf("ListOpen: %v", err)
	}
	if len(incidents) != 0 {
		t.Errorf("incidents = %d, want none", len(incidents))
	}
}
