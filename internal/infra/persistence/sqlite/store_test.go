package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"metalcore/pkg/domain"
)

func TestSQLiteStorePersistAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreatePureMetalLot(domain.PureMetalLot{
			OrganizationID: "org-1",
			LotNumber:      "LMP-000001",
			MetalType:      domain.MetalGold,
			SourceType:     domain.LotSourcePurchase,
			InitialGrams:   decimal.NewFromInt(500),
			RemainingGrams: decimal.NewFromInt(500),
			Purity:         decimal.RequireFromString("0.999"),
		})
		return e
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	lots := reloaded.ListPureMetalLots()
	if len(lots) != 1 {
		t.Fatalf("expected 1 lot, got %d", len(lots))
	}
	if lots[0].LotNumber != "LMP-000001" {
		t.Fatalf("lot number = %s", lots[0].LotNumber)
	}
	if !lots[0].RemainingGrams.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("remaining = %s, want 500", lots[0].RemainingGrams)
	}
}

func TestSQLiteStoreCreatesStateTable(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	var tableName string
	if err := store.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='state'").Scan(&tableName); err != nil {
		t.Fatalf("lookup state table: %v", err)
	}
	if tableName != "state" {
		t.Fatalf("expected state table, got %s", tableName)
	}
}

func TestSQLiteStoreCountersSurviveReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			_, e := tx.NextSequence("org-1", domain.CounterProductionBatch, 1194)
			return e
		}); err != nil {
			t.Fatalf("sequence: %v", err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	var value int64
	if _, err := reloaded.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var e error
		value, e = tx.NextSequence("org-1", domain.CounterProductionBatch, 1194)
		return e
	}); err != nil {
		t.Fatalf("sequence after reload: %v", err)
	}
	if value != 1197 {
		t.Fatalf("value = %d, want 1197", value)
	}
}
