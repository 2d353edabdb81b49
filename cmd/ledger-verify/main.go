// Command ledger-verify audits a stored ledger offline: lot balance bounds,
// movement reconciliation, reaction mass conservation, recovery order
// outcomes and duplicate document numbers. Exit code 1 signals findings.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"

	"metalcore/internal/core"
	"metalcore/pkg/domain"
	"metalcore/pkg/massbalance"
)

var exitFunc = os.Exit

func main() {
	flag.Parse()
	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine())
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		exitFunc(2)
		return
	}
	exitFunc(run(store, os.Stdout))
}

// run executes every audit pass and reports findings. Returns the process
// exit code.
func run(store domain.PersistentStore, out io.Writer) int {
	findings := audit(store)
	if len(findings) == 0 {
		fmt.Fprintln(out, "ledger-verify: no findings")
		return 0
	}
	for _, finding := range findings {
		fmt.Fprintf(out, "ledger-verify: %s\n", finding)
	}
	fmt.Fprintf(out, "ledger-verify: %d finding(s)\n", len(findings))
	return 1
}

func audit(store domain.PersistentStore) []string {
	var findings []string
	findings = append(findings, auditLots(store)...)
	findings = append(findings, auditMovements(store)...)
	findings = append(findings, auditReactions(store)...)
	findings = append(findings, auditRecoveryOrders(store)...)
	findings = append(findings, auditInventory(store)...)
	findings = append(findings, auditDuplicateNumbers(store)...)
	return findings
}

func auditLots(store domain.PersistentStore) []string {
	var findings []string
	for _, lot := range store.ListPureMetalLots() {
		if lot.RemainingGrams.LessThan(domain.MassTolerance.Neg()) {
			findings = append(findings, fmt.Sprintf("lot %s: negative balance %sg", lot.LotNumber, lot.RemainingGrams))
		}
		if lot.RemainingGrams.Sub(lot.InitialGrams).GreaterThan(domain.MassTolerance) {
			findings = append(findings, fmt.Sprintf("lot %s: balance %sg exceeds custody mass %sg", lot.LotNumber, lot.RemainingGrams, lot.InitialGrams))
		}
		if want := domain.LotStatusFor(lot.InitialGrams, lot.RemainingGrams); lot.Status != want {
			findings = append(findings, fmt.Sprintf("lot %s: status %s does not match balance (want %s)", lot.LotNumber, lot.Status, want))
		}
	}
	return findings
}

// auditMovements reconciles each lot balance against its movement ledger.
// Restores capped at the custody mass record their full grams, so the signed
// sum is allowed to exceed the balance; a ledger showing fewer grams than the
// balance claims is the defect.
func auditMovements(store domain.PersistentStore) []string {
	sums := make(map[string]decimal.Decimal)
	for _, movement := range store.ListLotMovements() {
		delta := movement.Grams
		if movement.Type == domain.MovementExit {
			delta = delta.Neg()
		}
		sums[movement.LotID] = sums[movement.LotID].Add(delta)
	}

	var findings []string
	for _, lot := range store.ListPureMetalLots() {
		sum, ok := sums[lot.ID]
		if !ok {
			findings = append(findings, fmt.Sprintf("lot %s: no movement ledger", lot.LotNumber))
			continue
		}
		if lot.RemainingGrams.Sub(sum).GreaterThan(domain.MassTolerance) {
			findings = append(findings, fmt.Sprintf("lot %s: balance %sg exceeds movement sum %sg", lot.LotNumber, lot.RemainingGrams, sum))
		}
	}
	return findings
}

func auditReactions(store domain.PersistentStore) []string {
	var findings []string
	for _, reaction := range store.ListChemicalReactions() {
		if reaction.Status != domain.ReactionStatusCompleted {
			continue
		}
		if reaction.OutputGoldGrams == nil || reaction.OutputBasketLeftoverGrams == nil || reaction.OutputDistillateLeftoverGrams == nil {
			// Purity-adjusted completions never computed a full balance.
			continue
		}
		if !massbalance.Conserved(reaction.InputGoldGrams, *reaction.OutputGoldGrams, *reaction.OutputBasketLeftoverGrams, *reaction.OutputDistillateLeftoverGrams) {
			findings = append(findings, fmt.Sprintf("reaction %s: gold mass not conserved (input %sg)", reaction.ReactionNumber, reaction.InputGoldGrams))
		}
	}
	return findings
}

func auditRecoveryOrders(store domain.PersistentStore) []string {
	analyses := make(map[string]domain.ChemicalAnalysis)
	for _, analysis := range store.ListChemicalAnalyses() {
		analyses[analysis.ID] = analysis
	}

	var findings []string
	for _, order := range store.ListRecoveryOrders() {
		for _, id := range order.AnalysisIDs {
			if _, ok := analyses[id]; !ok {
				findings = append(findings, fmt.Sprintf("order %s: linked analysis %s missing", order.OrderNumber, id))
			}
		}
		if order.Status != domain.RecoveryStatusFinalized {
			continue
		}
		if order.RecoveredPureGrams == nil || order.ResidueGrams == nil {
			findings = append(findings, fmt.Sprintf("order %s: finalized without outcome figures", order.OrderNumber))
			continue
		}
		total := order.RecoveredPureGrams.Add(*order.ResidueGrams)
		if total.Sub(order.TotalGrossEstimatedGrams).Abs().GreaterThan(domain.MassTolerance) {
			findings = append(findings, fmt.Sprintf("order %s: recovered %sg plus residue %sg does not match gross estimate %sg",
				order.OrderNumber, order.RecoveredPureGrams, order.ResidueGrams, order.TotalGrossEstimatedGrams))
		}
		for _, id := range order.AnalysisIDs {
			if analysis, ok := analyses[id]; ok && analysis.Status != domain.AnalysisStatusRecovered {
				findings = append(findings, fmt.Sprintf("order %s: analysis %s left in %s after finalize", order.OrderNumber, analysis.AnalysisNumber, analysis.Status))
			}
		}
	}
	return findings
}

func auditInventory(store domain.PersistentStore) []string {
	var findings []string
	for _, lot := range store.ListInventoryLots() {
		if lot.RemainingQuantity.IsNegative() {
			findings = append(findings, fmt.Sprintf("inventory lot %s: negative remaining quantity %s", lot.BatchNumber, lot.RemainingQuantity))
		}
		if lot.RemainingQuantity.GreaterThan(lot.Quantity) {
			findings = append(findings, fmt.Sprintf("inventory lot %s: remaining %s exceeds received %s", lot.BatchNumber, lot.RemainingQuantity, lot.Quantity))
		}
	}
	return findings
}

func auditDuplicateNumbers(store domain.PersistentStore) []string {
	var findings []string

	lotNumbers := make(map[string]int)
	for _, lot := range store.ListPureMetalLots() {
		lotNumbers[lot.OrganizationID+"/"+lot.LotNumber]++
	}
	for key, count := range lotNumbers {
		if count > 1 {
			findings = append(findings, fmt.Sprintf("lot number %s issued %d times", key, count))
		}
	}

	batches := make(map[string]int)
	for _, lot := range store.ListInventoryLots() {
		batches[lot.OrganizationID+"/"+lot.BatchNumber]++
	}
	for key, count := range batches {
		if count > 1 {
			findings = append(findings, fmt.Sprintf("batch number %s issued %d times", key, count))
		}
	}
	return findings
}
