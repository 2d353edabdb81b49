package core

import (
	"context"

	"metalcore/pkg/domain"
	"metalcore/pkg/massbalance"
)

// MassConservationRule blocks the completion of a chemical reaction whose
// declared outputs do not sum back to the input gold within tolerance.
type MassConservationRule struct{}

// Name implements domain.Rule.
func (MassConservationRule) Name() string { return "mass_conservation" }

// Evaluate implements domain.Rule.
func (MassConservationRule) Evaluate(_ context.Context, _ domain.RuleView, changes []Change) (Result, error) {
	var result Result
	for _, change := range changes {
		if change.Entity != domain.EntityChemicalReaction || change.Action != domain.ActionUpdate {
			continue
		}
		reaction, ok := change.After.(ChemicalReaction)
		if !ok || reaction.Status != domain.ReactionStatusCompleted {
			continue
		}
		// Purity-adjusted completions carry no weighed outputs; nothing to balance.
		if reaction.OutputGoldGrams == nil || reaction.OutputBasketLeftoverGrams == nil || reaction.OutputDistillateLeftoverGrams == nil {
			continue
		}
		if !massbalance.Conserved(reaction.InputGoldGrams, *reaction.OutputGoldGrams,
			*reaction.OutputBasketLeftoverGrams, *reaction.OutputDistillateLeftoverGrams) {
			result.Violations = append(result.Violations, Violation{
				Rule:     "mass_conservation",
				Severity: domain.SeverityBlock,
				Message:  "completed reaction outputs do not balance input gold " + reaction.InputGoldGrams.String() + "g",
				Entity:   domain.EntityChemicalReaction,
				EntityID: reaction.ID,
			})
		}
	}
	return result, nil
}
