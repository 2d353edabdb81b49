package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLotStatusFor(t *testing.T) {
	initial := decimal.NewFromInt(500)
	cases := []struct {
		name      string
		remaining decimal.Decimal
		want      LotStatus
	}{
		{"full", decimal.NewFromInt(500), LotStatusAvailable},
		{"above initial after reversal cap", decimal.NewFromInt(600), LotStatusAvailable},
		{"partial", decimal.NewFromInt(100), LotStatusPartiallyUsed},
		{"exhausted", decimal.Zero, LotStatusUsed},
		{"dust below tolerance", decimal.RequireFromString("0.00005"), LotStatusUsed},
		{"just above tolerance", decimal.RequireFromString("0.0002"), LotStatusPartiallyUsed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := LotStatusFor(initial, tc.remaining); got != tc.want {
				t.Fatalf("LotStatusFor(%s, %s) = %s, want %s", initial, tc.remaining, got, tc.want)
			}
		})
	}
}

func TestPureMetalLotJSONRoundTrip(t *testing.T) {
	notes := "cesto lote 1201"
	src := "reaction-1"
	lot := PureMetalLot{
		Base: Base{
			ID:        "lot-1",
			CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC),
		},
		OrganizationID: "org-1",
		LotNumber:      "LMP-000123",
		MetalType:      MetalGold,
		SourceType:     LotSourceReactionLeftover,
		SourceID:       &src,
		InitialGrams:   decimal.RequireFromString("299.88"),
		RemainingGrams: decimal.RequireFromString("100.0001"),
		Purity:         decimal.NewFromInt(1),
		Status:         LotStatusPartiallyUsed,
		Notes:          &notes,
	}
	data, err := json.Marshal(lot)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded PureMetalLot
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.LotNumber != lot.LotNumber || decoded.Status != lot.Status {
		t.Fatalf("unexpected round trip: %+v", decoded)
	}
	if !decoded.RemainingGrams.Equal(lot.RemainingGrams) {
		t.Fatalf("remaining grams drifted: %s != %s", decoded.RemainingGrams, lot.RemainingGrams)
	}
	if decoded.SourceID == nil || *decoded.SourceID != src {
		t.Fatalf("source id lost in round trip")
	}
}

func TestReactionJSONOmitsUnsetOutputs(t *testing.T) {
	reaction := ChemicalReaction{
		Base:            Base{ID: "rx-1"},
		OrganizationID:  "org-1",
		ReactionNumber:  "REA-000045",
		MetalType:       MetalGold,
		Status:          ReactionStatusStarted,
		ReactionDate:    time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		OutputProductID: "prod-1",
		SourceLots:      []ReactionLotUsage{{LotID: "lot-1", GramsUsed: decimal.NewFromInt(400)}},
		InputGoldGrams:  decimal.NewFromInt(400),
	}
	data, err := json.Marshal(reaction)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, forbidden := range []string{"output_product_grams", "final_purity", "production_batch_id"} {
		if strings.Contains(string(data), "\""+forbidden+"\"") {
			t.Fatalf("expected %s to be omitted while unset: %s", forbidden, data)
		}
	}
}
