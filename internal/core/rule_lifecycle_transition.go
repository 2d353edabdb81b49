package core

import (
	"context"

	"metalcore/pkg/domain"
)

// lifecycleMachine describes the allowed state graph for one workflow entity.
// extract pulls the ID and status out of a change payload.
type lifecycleMachine struct {
	label   string
	initial map[string]struct{}
	allowed map[string]map[string]struct{}
	extract func(payload any) (id string, status string, ok bool)
}

func states(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

var lifecycleMachines = map[domain.EntityType]lifecycleMachine{
	domain.EntityChemicalReaction: {
		label:   "chemical reaction",
		initial: states(string(domain.ReactionStatusStarted)),
		allowed: map[string]map[string]struct{}{
			string(domain.ReactionStatusStarted): states(
				string(domain.ReactionStatusProcessing),
				string(domain.ReactionStatusCompleted),
				string(domain.ReactionStatusCanceled),
			),
			string(domain.ReactionStatusProcessing): states(
				string(domain.ReactionStatusPendingPurityAdjustment),
				string(domain.ReactionStatusCanceled),
			),
			string(domain.ReactionStatusPendingPurityAdjustment): states(
				string(domain.ReactionStatusCompleted),
				string(domain.ReactionStatusCanceled),
			),
		},
		extract: func(payload any) (string, string, bool) {
			r, ok := payload.(ChemicalReaction)
			if !ok {
				return "", "", false
			}
			return r.ID, string(r.Status), true
		},
	},
	domain.EntityRecoveryOrder: {
		label:   "recovery order",
		initial: states(string(domain.RecoveryStatusPending)),
		allowed: map[string]map[string]struct{}{
			string(domain.RecoveryStatusPending): states(
				string(domain.RecoveryStatusInProgress),
				string(domain.RecoveryStatusCanceled),
			),
			string(domain.RecoveryStatusInProgress): states(
				string(domain.RecoveryStatusResultLaunched),
				string(domain.RecoveryStatusCanceled),
			),
			string(domain.RecoveryStatusResultLaunched): states(
				string(domain.RecoveryStatusFinalized),
				string(domain.RecoveryStatusCanceled),
			),
		},
		extract: func(payload any) (string, string, bool) {
			o, ok := payload.(RecoveryOrder)
			if !ok {
				return "", "", false
			}
			return o.ID, string(o.Status), true
		},
	},
	domain.EntityChemicalAnalysis: {
		label: "chemical analysis",
		// Client samples may be registered at reception or straight onto the
		// bench; residue spin-offs enter directly in the approved queue.
		initial: states(
			string(domain.AnalysisStatusReceived),
			string(domain.AnalysisStatusInAnalysis),
			string(domain.AnalysisStatusApprovedForRecovery),
		),
		allowed: map[string]map[string]struct{}{
			string(domain.AnalysisStatusReceived): states(
				string(domain.AnalysisStatusInAnalysis),
				string(domain.AnalysisStatusCanceled),
			),
			string(domain.AnalysisStatusInAnalysis): states(
				string(domain.AnalysisStatusAnalyzed),
				string(domain.AnalysisStatusRefused),
				string(domain.AnalysisStatusCanceled),
			),
			string(domain.AnalysisStatusAnalyzed): states(
				string(domain.AnalysisStatusApprovedForRecovery),
				string(domain.AnalysisStatusRefused),
				string(domain.AnalysisStatusCanceled),
			),
			string(domain.AnalysisStatusApprovedForRecovery): states(
				string(domain.AnalysisStatusInRecovery),
				string(domain.AnalysisStatusRefused),
			),
			string(domain.AnalysisStatusInRecovery): states(
				string(domain.AnalysisStatusRecovered),
				string(domain.AnalysisStatusApprovedForRecovery),
			),
		},
		extract: func(payload any) (string, string, bool) {
			a, ok := payload.(ChemicalAnalysis)
			if !ok {
				return "", "", false
			}
			return a.ID, string(a.Status), true
		},
	},
}

// LifecycleTransitionRule blocks commits that create a workflow entity in a
// non-initial state, move one out of a terminal state, or skip across the
// state graph.
type LifecycleTransitionRule struct{}

// Name implements domain.Rule.
func (LifecycleTransitionRule) Name() string { return "lifecycle_transition" }

// Evaluate implements domain.Rule.
func (LifecycleTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []Change) (Result, error) {
	var result Result
	for _, change := range changes {
		machine, ok := lifecycleMachines[change.Entity]
		if !ok {
			continue
		}
		switch change.Action {
		case domain.ActionCreate:
			id, status, ok := machine.extract(change.After)
			if !ok {
				continue
			}
			if _, valid := machine.initial[status]; !valid {
				result.Violations = append(result.Violations, Violation{
					Rule:     "lifecycle_transition",
					Severity: domain.SeverityBlock,
					Message:  machine.label + " cannot be created in state " + status,
					Entity:   change.Entity,
					EntityID: id,
				})
			}
		case domain.ActionUpdate:
			id, after, okAfter := machine.extract(change.After)
			_, before, okBefore := machine.extract(change.Before)
			if !okAfter || !okBefore || before == after {
				continue
			}
			next, known := machine.allowed[before]
			if !known {
				result.Violations = append(result.Violations, Violation{
					Rule:     "lifecycle_transition",
					Severity: domain.SeverityBlock,
					Message:  machine.label + " cannot leave terminal state " + before,
					Entity:   change.Entity,
					EntityID: id,
				})
				continue
			}
			if _, valid := next[after]; !valid {
				result.Violations = append(result.Violations, Violation{
					Rule:     "lifecycle_transition",
					Severity: domain.SeverityBlock,
					Message:  machine.label + " cannot move from " + before + " to " + after,
					Entity:   change.Entity,
					EntityID: id,
				})
			}
		}
	}
	return result, nil
}
