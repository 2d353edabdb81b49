package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"metalcore/internal/core"
	"metalcore/internal/infra/persistence/memory"
	"metalcore/pkg/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRunCleanLedger(t *testing.T) {
	store := memory.NewStore(core.NewDefaultRulesEngine())
	svc := core.NewService(store)
	ctx := context.Background()

	if _, _, err := svc.CreateLot(ctx, core.CreateLotParams{
		OrganizationID: "org-1",
		MetalType:      domain.MetalGold,
		SourceType:     domain.LotSourcePurchase,
		InitialGrams:   dec("500"),
		Purity:         dec("0.999"),
	}); err != nil {
		t.Fatalf("create lot: %v", err)
	}

	var out bytes.Buffer
	if code := run(store, &out); code != 0 {
		t.Fatalf("expected clean exit, got %d: %s", code, out.String())
	}
	if !strings.Contains(out.String(), "no findings") {
		t.Fatalf("output: %s", out.String())
	}
}

// Corruptions are injected with a rule-free store so the audit passes, not
// the write-time rules, catch them.
func TestRunReportsCorruptedLedger(t *testing.T) {
	store := memory.NewStore(domain.NewRulesEngine())
	ctx := context.Background()

	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		lot, err := tx.CreatePureMetalLot(domain.PureMetalLot{
			OrganizationID: "org-1",
			LotNumber:      "LMP-000001",
			MetalType:      domain.MetalGold,
			SourceType:     domain.LotSourcePurchase,
			InitialGrams:   dec("100"),
			RemainingGrams: dec("250"),
			Status:         domain.LotStatusAvailable,
		})
		if err != nil {
			return err
		}
		// Ledger records a mere 50g against a claimed 250g balance.
		if _, err := tx.CreateLotMovement(domain.LotMovement{
			OrganizationID: "org-1",
			LotID:          lot.ID,
			Type:           domain.MovementEntry,
			Grams:          dec("50"),
		}); err != nil {
			return err
		}

		drained, err := tx.CreatePureMetalLot(domain.PureMetalLot{
			OrganizationID: "org-1",
			LotNumber:      "LMP-000002",
			MetalType:      domain.MetalGold,
			SourceType:     domain.LotSourcePurchase,
			InitialGrams:   dec("100"),
			RemainingGrams: dec("0"),
			Status:         domain.LotStatusAvailable,
		})
		if err != nil {
			return err
		}
		if _, err := tx.CreateLotMovement(domain.LotMovement{
			OrganizationID: "org-1",
			LotID:          drained.ID,
			Type:           domain.MovementEntry,
			Grams:          dec("0.0001"),
		}); err != nil {
			return err
		}

		gold := dec("100")
		basket := dec("0")
		distillate := dec("0")
		output := dec("150")
		if _, err := tx.CreateChemicalReaction(domain.ChemicalReaction{
			OrganizationID:                "org-1",
			ReactionNumber:                "REA-000001",
			MetalType:                     domain.MetalGold,
			Status:                        domain.ReactionStatusCompleted,
			InputGoldGrams:                dec("500"),
			OutputProductGrams:            &output,
			OutputGoldGrams:               &gold,
			OutputBasketLeftoverGrams:     &basket,
			OutputDistillateLeftoverGrams: &distillate,
		}); err != nil {
			return err
		}

		recovered := dec("40")
		residue := dec("1")
		if _, err := tx.CreateRecoveryOrder(domain.RecoveryOrder{
			OrganizationID:           "org-1",
			OrderNumber:              "OR-000001",
			MetalType:                domain.MetalGold,
			Status:                   domain.RecoveryStatusFinalized,
			AnalysisIDs:              []string{"missing-analysis"},
			TotalGrossEstimatedGrams: dec("90"),
			RecoveredPureGrams:       &recovered,
			ResidueGrams:             &residue,
		}); err != nil {
			return err
		}

		_, err = tx.CreateInventoryLot(domain.InventoryLot{
			OrganizationID:    "org-1",
			ProductID:         "prod-1",
			BatchNumber:       "1194",
			Quantity:          dec("10"),
			RemainingQuantity: dec("25"),
		})
		return err
	}); err != nil {
		t.Fatalf("seed corrupted state: %v", err)
	}

	var out bytes.Buffer
	if code := run(store, &out); code != 1 {
		t.Fatalf("expected exit 1, got %d: %s", code, out.String())
	}
	report := out.String()
	for _, want := range []string{
		"balance 250g exceeds custody mass 100g",
		"balance 250g exceeds movement sum 50g",
		"lot LMP-000002: status AVAILABLE does not match balance (want USED)",
		"reaction REA-000001: gold mass not conserved",
		"order OR-000001: linked analysis missing-analysis missing",
		"recovered 40g plus residue 1g does not match gross estimate 90g",
		"inventory lot 1194: remaining 25 exceeds received 10",
	} {
		if !strings.Contains(report, want) {
			t.Fatalf("report missing %q:\n%s", want, report)
		}
	}
}

func TestRunReportsDuplicateNumbers(t *testing.T) {
	store := memory.NewStore(domain.NewRulesEngine())
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		for i := 0; i < 2; i++ {
			if _, err := tx.CreatePureMetalLot(domain.PureMetalLot{
				OrganizationID: "org-1",
				LotNumber:      "LMP-000007",
				MetalType:      domain.MetalGold,
				SourceType:     domain.LotSourcePurchase,
				InitialGrams:   dec("10"),
				RemainingGrams: dec("10"),
				Status:         domain.LotStatusAvailable,
			}); err != nil {
				return err
			}
			if _, err := tx.CreateLotMovement(domain.LotMovement{
				OrganizationID: "org-1",
				LotID:          "ignored-" + string(rune('a'+i)),
				Type:           domain.MovementEntry,
				Grams:          dec("10"),
			}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var out bytes.Buffer
	if code := run(store, &out); code != 1 {
		t.Fatalf("expected exit 1, got %d: %s", code, out.String())
	}
	if !strings.Contains(out.String(), "lot number org-1/LMP-000007 issued 2 times") {
		t.Fatalf("report: %s", out.String())
	}
}
