package core

import (
	"context"

	"metalcore/pkg/domain"
)

// LotBalanceRule blocks commits that would leave a pure metal lot with a
// negative remainder, a remainder above its initial mass, or a status that
// does not match its balance.
type LotBalanceRule struct{}

// Name implements domain.Rule.
func (LotBalanceRule) Name() string { return "lot_balance_bounds" }

// Evaluate implements domain.Rule.
func (LotBalanceRule) Evaluate(_ context.Context, _ domain.RuleView, changes []Change) (Result, error) {
	var result Result
	for _, change := range changes {
		if change.Entity != domain.EntityPureMetalLot || change.Action == domain.ActionDelete {
			continue
		}
		lot, ok := change.After.(PureMetalLot)
		if !ok {
			continue
		}
		if lot.RemainingGrams.Neg().GreaterThan(domain.MassTolerance) {
			result.Violations = append(result.Violations, Violation{
				Rule:     "lot_balance_bounds",
				Severity: domain.SeverityBlock,
				Message:  "remaining grams " + lot.RemainingGrams.String() + " below zero",
				Entity:   domain.EntityPureMetalLot,
				EntityID: lot.ID,
			})
		}
		if lot.RemainingGrams.Sub(lot.InitialGrams).GreaterThan(domain.MassTolerance) {
			result.Violations = append(result.Violations, Violation{
				Rule:     "lot_balance_bounds",
				Severity: domain.SeverityBlock,
				Message:  "remaining grams " + lot.RemainingGrams.String() + " above initial " + lot.InitialGrams.String(),
				Entity:   domain.EntityPureMetalLot,
				EntityID: lot.ID,
			})
		}
		if want := domain.LotStatusFor(lot.InitialGrams, lot.RemainingGrams); lot.Status != want {
			result.Violations = append(result.Violations, Violation{
				Rule:     "lot_balance_bounds",
				Severity: domain.SeverityBlock,
				Message:  "status " + string(lot.Status) + " does not match balance, want " + string(want),
				Entity:   domain.EntityPureMetalLot,
				EntityID: lot.ID,
			})
		}
	}
	return result, nil
}
