package massbalance

import (
	"testing"

	"github.com/shopspring/decimal"

	"metalcore/pkg/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDistillateBalancesProductionRun(t *testing.T) {
	// 500g of input gold producing 441g of product at a 0.68 gold fraction.
	input := dec("500")
	goldInProduct := GoldInProduct(dec("441"), dec("0.68"))
	if !goldInProduct.Equal(dec("299.88")) {
		t.Fatalf("gold in product = %s, want 299.88", goldInProduct)
	}
	distillate := DistillateLeftover(input, goldInProduct, decimal.Zero)
	if !distillate.Equal(dec("200.12")) {
		t.Fatalf("distillate = %s, want 200.12", distillate)
	}
	if !Conserved(input, goldInProduct, decimal.Zero, distillate) {
		t.Fatalf("expected mass conservation to hold")
	}
}

func TestDistillateClampsToZero(t *testing.T) {
	got := DistillateLeftover(dec("100"), dec("90"), dec("15"))
	if !got.IsZero() {
		t.Fatalf("distillate = %s, want 0", got)
	}
}

func TestCheckConsistencyRejectsExcessOutputs(t *testing.T) {
	err := CheckConsistency(dec("100"), dec("90"), dec("15"))
	if err == nil {
		t.Fatalf("expected consistency error")
	}
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation kind, got %v", err)
	}
	if err := CheckConsistency(dec("100"), dec("90"), dec("10")); err != nil {
		t.Fatalf("exact balance should pass: %v", err)
	}
	// Differences inside tolerance are accepted.
	if err := CheckConsistency(dec("100"), dec("100.00005"), decimal.Zero); err != nil {
		t.Fatalf("tolerance should absorb rounding dust: %v", err)
	}
}

func TestCostPerGram(t *testing.T) {
	total := TotalCost(dec("500"), dec("350.50"))
	if !total.Equal(dec("175250")) {
		t.Fatalf("total cost = %s, want 175250", total)
	}
	perGram := CostPerGram(total, dec("441"), dec("299.88"))
	if !perGram.Equal(dec("397.39")) {
		t.Fatalf("cost per gram = %s, want 397.39", perGram)
	}
}

func TestCostPerGramZeroGuard(t *testing.T) {
	if got := CostPerGram(dec("1000"), dec("441"), decimal.Zero); !got.IsZero() {
		t.Fatalf("cost per gram = %s, want 0 when no gold in product", got)
	}
	if got := CostPerGram(dec("1000"), decimal.Zero, dec("10")); !got.IsZero() {
		t.Fatalf("cost per gram = %s, want 0 when no output grams", got)
	}
}

func TestStockQuantityUnits(t *testing.T) {
	if got := StockQuantity(dec("441"), domain.StockUnitGrams); !got.Equal(dec("441")) {
		t.Fatalf("grams unit should pass through, got %s", got)
	}
	if got := StockQuantity(dec("441"), domain.StockUnitKilograms); !got.Equal(dec("0.441")) {
		t.Fatalf("kilograms unit should divide by 1000, got %s", got)
	}
}

func TestConservedTolerance(t *testing.T) {
	if Conserved(dec("500"), dec("299.88"), decimal.Zero, dec("200")) {
		t.Fatalf("0.12g drift must fail conservation")
	}
	if !Conserved(dec("500"), dec("299.88"), decimal.Zero, dec("200.12005")) {
		t.Fatalf("drift inside tolerance must pass")
	}
}
