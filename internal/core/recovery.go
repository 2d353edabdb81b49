package core

import (
	"context"

	"github.com/shopspring/decimal"

	"metalcore/pkg/domain"
)

// residueThresholdGrams is the minimum residue worth re-entering the recovery
// pipeline as a spin-off analysis. Smaller remainders are written off.
var residueThresholdGrams = decimal.New(1, -2)

// CreateAnalysisParams describes a new chemical analysis entry.
type CreateAnalysisParams struct {
	OrganizationID string
	ClientID       *string
	MetalType      domain.MetalType
	Kind           domain.AnalysisKind // defaults to SAMPLE
	EntryGrams     decimal.Decimal
	Notes          *string

	// Received opens the entry in RECEBIDO, before the lab has picked it
	// up. The default opens directly in EM_ANALISE.
	Received bool
}

// CreateAnalysis registers assayed material entering the lab, issuing the
// analysis number and opening in EM_ANALISE (or RECEBIDO for material logged
// at reception).
func (s *Service) CreateAnalysis(ctx context.Context, params CreateAnalysisParams) (ChemicalAnalysis, Result, error) {
	var created ChemicalAnalysis
	var id string
	res, err := s.run(ctx, "create_analysis", &id, func(tx Transaction) error {
		if params.OrganizationID == "" {
			return domain.WrapValidation("organization id required")
		}
		if !params.EntryGrams.IsPositive() {
			return domain.WrapValidation("entry grams must be positive")
		}
		kind := params.Kind
		if kind == "" {
			kind = domain.AnalysisKindSample
		}
		status := domain.AnalysisStatusInAnalysis
		if params.Received {
			status = domain.AnalysisStatusReceived
		}
		number, err := nextCode(tx, params.OrganizationID, domain.CounterAnalysis, analysisCodeFormat)
		if err != nil {
			return err
		}
		created, err = tx.CreateChemicalAnalysis(ChemicalAnalysis{
			OrganizationID: params.OrganizationID,
			AnalysisNumber: number,
			ClientID:       params.ClientID,
			MetalType:      params.MetalType,
			Kind:           kind,
			Status:         status,
			EntryGrams:     params.EntryGrams,
			Notes:          params.Notes,
		})
		if err != nil {
			return err
		}
		id = created.ID
		return nil
	})
	return created, res, err
}

// StartAnalysis moves a received entry onto the lab bench.
func (s *Service) StartAnalysis(ctx context.Context, analysisID string) (ChemicalAnalysis, Result, error) {
	var updated ChemicalAnalysis
	res, err := s.run(ctx, "start_analysis", &analysisID, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateChemicalAnalysis(analysisID, func(a *ChemicalAnalysis) error {
			if a.Status != domain.AnalysisStatusReceived {
				return domain.WrapInvalidState(domain.EntityChemicalAnalysis, analysisID,
					"cannot start from "+string(a.Status))
			}
			a.Status = domain.AnalysisStatusInAnalysis
			return nil
		})
		return err
	})
	return updated, res, err
}

// CancelAnalysis voids an entry that has not reached the recovery queue.
func (s *Service) CancelAnalysis(ctx context.Context, analysisID string) (ChemicalAnalysis, Result, error) {
	var updated ChemicalAnalysis
	res, err := s.run(ctx, "cancel_analysis", &analysisID, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateChemicalAnalysis(analysisID, func(a *ChemicalAnalysis) error {
			switch a.Status {
			case domain.AnalysisStatusReceived, domain.AnalysisStatusInAnalysis, domain.AnalysisStatusAnalyzed:
			default:
				return domain.WrapInvalidState(domain.EntityChemicalAnalysis, analysisID,
					"cannot cancel from "+string(a.Status))
			}
			a.Status = domain.AnalysisStatusCanceled
			return nil
		})
		return err
	})
	return updated, res, err
}

// RegisterAnalysisResult records the assayed purity and derives the gross
// estimated metal content from the entry mass.
func (s *Service) RegisterAnalysisResult(ctx context.Context, analysisID string, purity decimal.Decimal) (ChemicalAnalysis, Result, error) {
	var updated ChemicalAnalysis
	res, err := s.run(ctx, "register_analysis_result", &analysisID, func(tx Transaction) error {
		if purity.IsNegative() || purity.GreaterThan(decimal.NewFromInt(1)) {
			return domain.WrapValidation("purity must be within [0, 1]")
		}
		var err error
		updated, err = tx.UpdateChemicalAnalysis(analysisID, func(a *ChemicalAnalysis) error {
			if a.Status != domain.AnalysisStatusInAnalysis {
				return domain.WrapInvalidState(domain.EntityChemicalAnalysis, analysisID,
					"cannot register result from "+string(a.Status))
			}
			a.Status = domain.AnalysisStatusAnalyzed
			a.Purity = &purity
			a.GrossEstimatedGrams = a.EntryGrams.Mul(purity).Round(4)
			return nil
		})
		return err
	})
	return updated, res, err
}

// ApproveAnalysisForRecovery releases an analyzed entry to the recovery queue.
func (s *Service) ApproveAnalysisForRecovery(ctx context.Context, analysisID string) (ChemicalAnalysis, Result, error) {
	var updated ChemicalAnalysis
	res, err := s.run(ctx, "approve_analysis_for_recovery", &analysisID, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateChemicalAnalysis(analysisID, func(a *ChemicalAnalysis) error {
			if a.Status != domain.AnalysisStatusAnalyzed {
				return domain.WrapInvalidState(domain.EntityChemicalAnalysis, analysisID,
					"cannot approve from "+string(a.Status))
			}
			a.Status = domain.AnalysisStatusApprovedForRecovery
			return nil
		})
		return err
	})
	return updated, res, err
}

// RefuseAnalysis rejects an entry before it joins a recovery order.
func (s *Service) RefuseAnalysis(ctx context.Context, analysisID string) (ChemicalAnalysis, Result, error) {
	var updated ChemicalAnalysis
	res, err := s.run(ctx, "refuse_analysis", &analysisID, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateChemicalAnalysis(analysisID, func(a *ChemicalAnalysis) error {
			switch a.Status {
			case domain.AnalysisStatusInAnalysis, domain.AnalysisStatusAnalyzed, domain.AnalysisStatusApprovedForRecovery:
			default:
				return domain.WrapInvalidState(domain.EntityChemicalAnalysis, analysisID,
					"cannot refuse from "+string(a.Status))
			}
			a.Status = domain.AnalysisStatusRefused
			return nil
		})
		return err
	})
	return updated, res, err
}

// CreateRecoveryOrder batches approved analyses of one metal into a recovery
// run. Every linked analysis flips to EM_RECUPERACAO so it cannot join a
// second order.
func (s *Service) CreateRecoveryOrder(ctx context.Context, organizationID string, metal domain.MetalType, analysisIDs []string) (RecoveryOrder, Result, error) {
	var created RecoveryOrder
	var id string
	res, err := s.run(ctx, "create_recovery_order", &id, func(tx Transaction) error {
		if organizationID == "" {
			return domain.WrapValidation("organization id required")
		}
		if len(analysisIDs) == 0 {
			return domain.WrapValidation("analysis ids must not be empty")
		}
		seen := make(map[string]struct{}, len(analysisIDs))
		gross := decimal.Zero
		for _, analysisID := range analysisIDs {
			if _, dup := seen[analysisID]; dup {
				return domain.WrapValidation("duplicate analysis " + analysisID)
			}
			seen[analysisID] = struct{}{}
			analysis, ok := tx.FindChemicalAnalysis(analysisID)
			if !ok || analysis.OrganizationID != organizationID {
				return domain.WrapNotFound(domain.EntityChemicalAnalysis, analysisID)
			}
			if analysis.Status != domain.AnalysisStatusApprovedForRecovery {
				return domain.WrapInvalidState(domain.EntityChemicalAnalysis, analysisID,
					"not approved for recovery")
			}
			if analysis.MetalType != metal {
				return domain.WrapValidation("analysis " + analysisID + " is " + string(analysis.MetalType) + ", order is " + string(metal))
			}
			gross = gross.Add(analysis.GrossEstimatedGrams)
		}
		if !gross.IsPositive() {
			return domain.WrapValidation("total gross estimated grams must be positive")
		}

		number, err := nextCode(tx, organizationID, domain.CounterRecoveryOrder, orderCodeFormat)
		if err != nil {
			return err
		}
		created, err = tx.CreateRecoveryOrder(RecoveryOrder{
			OrganizationID:           organizationID,
			OrderNumber:              number,
			MetalType:                metal,
			Status:                   domain.RecoveryStatusPending,
			AnalysisIDs:              analysisIDs,
			TotalGrossEstimatedGrams: gross,
		})
		if err != nil {
			return err
		}
		for _, analysisID := range analysisIDs {
			if _, err := tx.UpdateChemicalAnalysis(analysisID, func(a *ChemicalAnalysis) error {
				a.Status = domain.AnalysisStatusInRecovery
				a.RecoveryOrderID = &created.ID
				return nil
			}); err != nil {
				return err
			}
		}
		id = created.ID
		return nil
	})
	return created, res, err
}

// StartRecoveryOrder moves a pending order onto the floor.
func (s *Service) StartRecoveryOrder(ctx context.Context, orderID string) (RecoveryOrder, Result, error) {
	var updated RecoveryOrder
	res, err := s.run(ctx, "start_recovery_order", &orderID, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateRecoveryOrder(orderID, func(o *RecoveryOrder) error {
			if o.Status != domain.RecoveryStatusPending {
				return domain.WrapInvalidState(domain.EntityRecoveryOrder, orderID,
					"cannot start from "+string(o.Status))
			}
			o.Status = domain.RecoveryStatusInProgress
			now := s.clock.Now()
			o.StartedAt = &now
			return nil
		})
		return err
	})
	return updated, res, err
}

// LaunchRecoveryResult records the processed volume, assayed final purity and
// result unit of an in-progress run. An empty unit defaults to grams.
// Finalization stays a separate step so the result can be reviewed before
// lots and credits are cut.
func (s *Service) LaunchRecoveryResult(ctx context.Context, orderID string, processedGrams, finalPurity decimal.Decimal, resultUnit string) (RecoveryOrder, Result, error) {
	var updated RecoveryOrder
	res, err := s.run(ctx, "launch_recovery_result", &orderID, func(tx Transaction) error {
		if !processedGrams.IsPositive() {
			return domain.WrapValidation("processed volume grams must be positive")
		}
		if !finalPurity.IsPositive() || finalPurity.GreaterThan(decimal.NewFromInt(1)) {
			return domain.WrapValidation("final purity must be within (0, 1]")
		}
		if resultUnit == "" {
			resultUnit = "g"
		}
		if len(resultUnit) > 20 {
			return domain.WrapValidation("result unit must be at most 20 characters")
		}
		var err error
		updated, err = tx.UpdateRecoveryOrder(orderID, func(o *RecoveryOrder) error {
			if o.Status != domain.RecoveryStatusInProgress {
				return domain.WrapInvalidState(domain.EntityRecoveryOrder, orderID,
					"cannot launch result from "+string(o.Status))
			}
			o.Status = domain.RecoveryStatusResultLaunched
			o.ProcessedVolumeGrams = &processedGrams
			o.FinalPurity = &finalPurity
			o.ResultUnit = resultUnit
			now := s.clock.Now()
			o.CompletedAt = &now
			return nil
		})
		return err
	})
	return updated, res, err
}

// FinalizeRecoveryOrder settles a launched result: the recovered pure metal
// re-enters custody as a new lot plus a metal credit, the linked analyses
// close as recovered, and any residue above the threshold spins off as a new
// approved analysis ready for the next run.
func (s *Service) FinalizeRecoveryOrder(ctx context.Context, orderID string) (RecoveryOrder, Result, error) {
	var finalized RecoveryOrder
	res, err := s.run(ctx, "finalize_recovery_order", &orderID, func(tx Transaction) error {
		order, ok := tx.FindRecoveryOrder(orderID)
		if !ok {
			return domain.WrapNotFound(domain.EntityRecoveryOrder, orderID)
		}
		if order.Status != domain.RecoveryStatusResultLaunched {
			return domain.WrapInvalidState(domain.EntityRecoveryOrder, orderID,
				"cannot finalize from "+string(order.Status))
		}
		if order.ProcessedVolumeGrams == nil || order.FinalPurity == nil {
			return domain.WrapValidation("recovery order has no launched result")
		}

		recovered := order.ProcessedVolumeGrams.Mul(*order.FinalPurity).Round(4)
		residue := order.TotalGrossEstimatedGrams.Sub(recovered)

		var residueAnalysisID *string
		if residue.GreaterThan(residueThresholdGrams) {
			number, err := nextCode(tx, order.OrganizationID, domain.CounterAnalysis, analysisCodeFormat)
			if err != nil {
				return err
			}
			notes := "RESIDUO " + order.OrderNumber
			spinOff, err := tx.CreateChemicalAnalysis(ChemicalAnalysis{
				OrganizationID:      order.OrganizationID,
				AnalysisNumber:      number,
				MetalType:           order.MetalType,
				Kind:                domain.AnalysisKindResidue,
				Status:              domain.AnalysisStatusApprovedForRecovery,
				EntryGrams:          residue,
				GrossEstimatedGrams: residue,
				Notes:               &notes,
			})
			if err != nil {
				return err
			}
			residueAnalysisID = &spinOff.ID
		}

		if recovered.IsPositive() {
			notes := "RECUPERACAO " + order.OrderNumber
			if _, err := createLot(tx, CreateLotParams{
				OrganizationID: order.OrganizationID,
				MetalType:      order.MetalType,
				SourceType:     domain.LotSourceRecoveryOrder,
				SourceID:       &order.ID,
				InitialGrams:   recovered,
				Purity:         *order.FinalPurity,
				Notes:          &notes,
			}); err != nil {
				return err
			}
			if _, err := tx.CreateMetalCredit(MetalCredit{
				OrganizationID: order.OrganizationID,
				MetalType:      order.MetalType,
				Grams:          recovered,
				SourceType:     string(domain.LotSourceRecoveryOrder),
				SourceID:       order.ID,
			}); err != nil {
				return err
			}
		}

		for _, analysisID := range order.AnalysisIDs {
			if _, err := tx.UpdateChemicalAnalysis(analysisID, func(a *ChemicalAnalysis) error {
				a.Status = domain.AnalysisStatusRecovered
				return nil
			}); err != nil {
				return err
			}
		}

		var err error
		finalized, err = tx.UpdateRecoveryOrder(orderID, func(o *RecoveryOrder) error {
			o.Status = domain.RecoveryStatusFinalized
			o.RecoveredPureGrams = &recovered
			o.ResidueGrams = &residue
			o.ResidueAnalysisID = residueAnalysisID
			return nil
		})
		return err
	})
	return finalized, res, err
}

// CancelRecoveryOrder aborts a non-finalized order. Linked analyses return to
// the approved queue with their linkage cleared; a second cancel fails.
func (s *Service) CancelRecoveryOrder(ctx context.Context, orderID string) (RecoveryOrder, Result, error) {
	var canceled RecoveryOrder
	res, err := s.run(ctx, "cancel_recovery_order", &orderID, func(tx Transaction) error {
		order, ok := tx.FindRecoveryOrder(orderID)
		if !ok {
			return domain.WrapNotFound(domain.EntityRecoveryOrder, orderID)
		}
		switch order.Status {
		case domain.RecoveryStatusFinalized, domain.RecoveryStatusCanceled:
			return domain.WrapInvalidState(domain.EntityRecoveryOrder, orderID,
				"cannot cancel from "+string(order.Status))
		}
		for _, analysisID := range order.AnalysisIDs {
			if _, err := tx.UpdateChemicalAnalysis(analysisID, func(a *ChemicalAnalysis) error {
				a.Status = domain.AnalysisStatusApprovedForRecovery
				a.RecoveryOrderID = nil
				return nil
			}); err != nil {
				return err
			}
		}
		var err error
		canceled, err = tx.UpdateRecoveryOrder(orderID, func(o *RecoveryOrder) error {
			o.Status = domain.RecoveryStatusCanceled
			return nil
		})
		return err
	})
	return canceled, res, err
}

// GetRecoveryOrder returns a recovery order by ID.
func (s *Service) GetRecoveryOrder(id string) (RecoveryOrder, bool) {
	return s.store.GetRecoveryOrder(id)
}

// ListRecoveryOrders returns all recovery orders ordered by ID.
func (s *Service) ListRecoveryOrders() []RecoveryOrder {
	return s.store.ListRecoveryOrders()
}

// ListAnalyses returns all chemical analyses ordered by ID.
func (s *Service) ListAnalyses() []ChemicalAnalysis {
	return s.store.ListChemicalAnalyses()
}
