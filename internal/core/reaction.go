package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"metalcore/pkg/domain"
	"metalcore/pkg/massbalance"
)

// CreateReactionParams describes a new production run.
type CreateReactionParams struct {
	OrganizationID  string
	MetalType       domain.MetalType
	OutputProductID string
	SourceLots      []ReactionLotUsage
	ReactionDate    time.Time

	// Estimates captured for the production preview; they never feed the
	// completion arithmetic, which uses the product's configured gold value.
	EstimatedGoldFraction *decimal.Decimal
	EstimatedOutputGrams  *decimal.Decimal

	// ManualBatchNumber claims a specific batch number for the output
	// inventory lot. Left nil, the per-organization counter issues one.
	ManualBatchNumber *string
	Notes             *string
}

// CreateReaction consumes the source lots atomically, issues the reaction
// number, resolves the production batch number, and creates the output
// inventory lot placeholder whose cost is patched at completion.
func (s *Service) CreateReaction(ctx context.Context, params CreateReactionParams) (ChemicalReaction, Result, error) {
	var created ChemicalReaction
	var id string
	res, err := s.run(ctx, "create_reaction", &id, func(tx Transaction) error {
		if params.OrganizationID == "" {
			return domain.WrapValidation("organization id required")
		}
		if len(params.SourceLots) == 0 {
			return domain.WrapValidation("source lots must not be empty")
		}
		product, ok := tx.FindProduct(params.OutputProductID)
		if !ok || product.OrganizationID != params.OrganizationID {
			return domain.WrapNotFound(domain.EntityProduct, params.OutputProductID)
		}

		seen := make(map[string]struct{}, len(params.SourceLots))
		input := decimal.Zero
		for _, usage := range params.SourceLots {
			if _, dup := seen[usage.LotID]; dup {
				return domain.WrapValidation("duplicate source lot " + usage.LotID)
			}
			seen[usage.LotID] = struct{}{}
			if !usage.GramsUsed.IsPositive() {
				return domain.WrapValidation("grams to use must be positive for lot " + usage.LotID)
			}
			input = input.Add(usage.GramsUsed)
		}

		number, err := nextCode(tx, params.OrganizationID, domain.CounterReaction, reactionCodeFormat)
		if err != nil {
			return err
		}
		for _, usage := range params.SourceLots {
			if err := consumeForReaction(tx, params.OrganizationID, usage.LotID, usage.GramsUsed, number); err != nil {
				return err
			}
		}

		reactionDate := params.ReactionDate
		if reactionDate.IsZero() {
			reactionDate = s.clock.Now()
		}
		estimatedOutput := params.EstimatedOutputGrams
		if estimatedOutput == nil && params.EstimatedGoldFraction != nil && params.EstimatedGoldFraction.IsPositive() {
			preview := input.Div(*params.EstimatedGoldFraction).Round(4)
			estimatedOutput = &preview
		}

		created, err = tx.CreateChemicalReaction(ChemicalReaction{
			OrganizationID:        params.OrganizationID,
			ReactionNumber:        number,
			MetalType:             params.MetalType,
			Status:                domain.ReactionStatusStarted,
			ReactionDate:          reactionDate,
			OutputProductID:       product.ID,
			SourceLots:            params.SourceLots,
			InputGoldGrams:        input,
			EstimatedGoldFraction: params.EstimatedGoldFraction,
			EstimatedOutputGrams:  estimatedOutput,
			Notes:                 params.Notes,
		})
		if err != nil {
			return err
		}

		batch, err := resolveBatchNumber(tx, params.OrganizationID, params.ManualBatchNumber, s.batchSeed)
		if err != nil {
			return err
		}
		lot, err := tx.CreateInventoryLot(InventoryLot{
			OrganizationID: params.OrganizationID,
			ProductID:      product.ID,
			BatchNumber:    batch,
			SourceType:     domain.InventorySourceReaction,
			SourceID:       created.ID,
			ReceivedAt:     reactionDate,
		})
		if err != nil {
			return err
		}
		created, err = tx.UpdateChemicalReaction(created.ID, func(r *ChemicalReaction) error {
			r.ProductionBatchID = &lot.ID
			return nil
		})
		if err != nil {
			return err
		}
		id = created.ID
		return nil
	})
	return created, res, err
}

// AdvanceReaction moves a reaction one step forward through its intermediate
// states: STARTED to PROCESSING, PROCESSING to PENDING_PURITY_ADJUSTMENT.
func (s *Service) AdvanceReaction(ctx context.Context, reactionID string) (ChemicalReaction, Result, error) {
	var updated ChemicalReaction
	res, err := s.run(ctx, "advance_reaction", &reactionID, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateChemicalReaction(reactionID, func(r *ChemicalReaction) error {
			switch r.Status {
			case domain.ReactionStatusStarted:
				r.Status = domain.ReactionStatusProcessing
			case domain.ReactionStatusProcessing:
				r.Status = domain.ReactionStatusPendingPurityAdjustment
			default:
				return domain.WrapInvalidState(domain.EntityChemicalReaction, reactionID,
					"cannot advance from "+string(r.Status))
			}
			return nil
		})
		return err
	})
	return updated, res, err
}

// CompleteReactionParams carries the actual weighed outputs of a run.
type CompleteReactionParams struct {
	ReactionID          string
	OutputProductGrams  decimal.Decimal
	BasketLeftoverGrams decimal.Decimal
}

// CompleteReaction balances the run using the product's configured gold
// value, derives the distillate leftover, re-enters nonzero leftovers as new
// pure metal lots, costs the output inventory lot from the latest quotation,
// and moves product stock.
func (s *Service) CompleteReaction(ctx context.Context, params CompleteReactionParams) (ChemicalReaction, Result, error) {
	var completed ChemicalReaction
	res, err := s.run(ctx, "complete_reaction", &params.ReactionID, func(tx Transaction) error {
		reaction, ok := tx.FindChemicalReaction(params.ReactionID)
		if !ok {
			return domain.WrapNotFound(domain.EntityChemicalReaction, params.ReactionID)
		}
		if reaction.Status != domain.ReactionStatusStarted {
			return domain.WrapInvalidState(domain.EntityChemicalReaction, reaction.ID,
				"cannot complete from "+string(reaction.Status))
		}
		if !params.OutputProductGrams.IsPositive() {
			return domain.WrapValidation("output product grams must be positive")
		}
		if params.BasketLeftoverGrams.IsNegative() {
			return domain.WrapValidation("basket leftover grams must not be negative")
		}
		product, ok := tx.FindProduct(reaction.OutputProductID)
		if !ok {
			return domain.WrapNotFound(domain.EntityProduct, reaction.OutputProductID)
		}

		goldInProduct := massbalance.GoldInProduct(params.OutputProductGrams, product.GoldValue)
		if err := massbalance.CheckConsistency(reaction.InputGoldGrams, goldInProduct, params.BasketLeftoverGrams); err != nil {
			return err
		}
		distillate := massbalance.DistillateLeftover(reaction.InputGoldGrams, goldInProduct, params.BasketLeftoverGrams)

		quotation, ok := tx.FindLatestQuotation(reaction.OrganizationID, reaction.MetalType)
		if !ok {
			return domain.WrapMissingPriceData(reaction.MetalType, "no quotation for organization "+reaction.OrganizationID)
		}
		totalCost := massbalance.TotalCost(reaction.InputGoldGrams, quotation.BuyPrice)
		costPerGram := massbalance.CostPerGram(totalCost, params.OutputProductGrams, goldInProduct)

		if reaction.ProductionBatchID == nil {
			return domain.WrapValidation("reaction has no output inventory lot")
		}
		outputLot, ok := tx.FindInventoryLot(*reaction.ProductionBatchID)
		if !ok {
			return domain.WrapNotFound(domain.EntityInventoryLot, *reaction.ProductionBatchID)
		}

		if params.BasketLeftoverGrams.IsPositive() {
			notes := "CESTO LOTE " + outputLot.BatchNumber
			if _, err := createLot(tx, CreateLotParams{
				OrganizationID: reaction.OrganizationID,
				MetalType:      reaction.MetalType,
				SourceType:     domain.LotSourceReactionLeftover,
				SourceID:       &reaction.ID,
				InitialGrams:   params.BasketLeftoverGrams,
				Purity:         decimal.NewFromInt(1),
				Notes:          &notes,
			}); err != nil {
				return err
			}
		}
		if distillate.IsPositive() {
			notes := "DESTILADO LOTE " + outputLot.BatchNumber
			if _, err := createLot(tx, CreateLotParams{
				OrganizationID: reaction.OrganizationID,
				MetalType:      reaction.MetalType,
				SourceType:     domain.LotSourceReactionLeftover,
				SourceID:       &reaction.ID,
				InitialGrams:   distillate,
				Purity:         decimal.NewFromInt(1),
				Notes:          &notes,
			}); err != nil {
				return err
			}
		}

		stockQuantity := massbalance.StockQuantity(params.OutputProductGrams, product.StockUnit)
		updatedLot, err := tx.UpdateInventoryLot(outputLot.ID, func(l *InventoryLot) error {
			l.Quantity = stockQuantity
			l.RemainingQuantity = stockQuantity
			l.CostPerUnit = costPerGram
			return nil
		})
		if err != nil {
			return err
		}
		if _, err := tx.CreateStockMovement(StockMovement{
			OrganizationID: reaction.OrganizationID,
			ProductID:      product.ID,
			InventoryLotID: &updatedLot.ID,
			Quantity:       stockQuantity,
			Type:           domain.StockMovementEntryReaction,
			SourceDocument: reaction.ReactionNumber,
		}); err != nil {
			return err
		}
		if _, err := tx.UpdateProduct(product.ID, func(p *Product) error {
			p.Stock = p.Stock.Add(stockQuantity)
			return nil
		}); err != nil {
			return err
		}

		completed, err = tx.UpdateChemicalReaction(reaction.ID, func(r *ChemicalReaction) error {
			r.Status = domain.ReactionStatusCompleted
			r.OutputProductGrams = &params.OutputProductGrams
			r.OutputGoldGrams = &goldInProduct
			r.OutputBasketLeftoverGrams = &params.BasketLeftoverGrams
			r.OutputDistillateLeftoverGrams = &distillate
			return nil
		})
		return err
	})
	return completed, res, err
}

// AdjustReactionPurity closes a reaction parked in PENDING_PURITY_ADJUSTMENT
// by stamping the corrected final purity. The purity-correction computation
// itself is an extension point; only the transition and stamp are handled.
func (s *Service) AdjustReactionPurity(ctx context.Context, reactionID string, finalPurity decimal.Decimal) (ChemicalReaction, Result, error) {
	var updated ChemicalReaction
	res, err := s.run(ctx, "adjust_reaction_purity", &reactionID, func(tx Transaction) error {
		if finalPurity.IsNegative() || finalPurity.GreaterThan(decimal.NewFromInt(1)) {
			return domain.WrapValidation("final purity must be within [0, 1]")
		}
		var err error
		updated, err = tx.UpdateChemicalReaction(reactionID, func(r *ChemicalReaction) error {
			if r.Status != domain.ReactionStatusPendingPurityAdjustment {
				return domain.WrapInvalidState(domain.EntityChemicalReaction, reactionID,
					"cannot adjust purity from "+string(r.Status))
			}
			r.Status = domain.ReactionStatusCompleted
			r.FinalPurity = &finalPurity
			return nil
		})
		return err
	})
	return updated, res, err
}

// AddRawMaterial consumes raw material stock for a reaction and records the
// usage with its cost converted to gold-equivalent grams at the quotation
// effective on or before the reaction date.
func (s *Service) AddRawMaterial(ctx context.Context, reactionID, rawMaterialID string, quantity decimal.Decimal, costOverride *decimal.Decimal) (RawMaterialUsage, Result, error) {
	var usage RawMaterialUsage
	res, err := s.run(ctx, "add_raw_material", &reactionID, func(tx Transaction) error {
		reaction, ok := tx.FindChemicalReaction(reactionID)
		if !ok {
			return domain.WrapNotFound(domain.EntityChemicalReaction, reactionID)
		}
		switch reaction.Status {
		case domain.ReactionStatusStarted, domain.ReactionStatusProcessing:
		default:
			return domain.WrapInvalidState(domain.EntityChemicalReaction, reactionID,
				"cannot add raw material from "+string(reaction.Status))
		}
		if !quantity.IsPositive() {
			return domain.WrapValidation("quantity must be positive")
		}
		material, ok := tx.FindRawMaterial(rawMaterialID)
		if !ok || material.OrganizationID != reaction.OrganizationID {
			return domain.WrapNotFound(domain.EntityRawMaterial, rawMaterialID)
		}
		if quantity.GreaterThan(material.Stock) {
			return domain.WrapInsufficientBalance(domain.EntityRawMaterial, rawMaterialID,
				"needs "+quantity.String()+" "+material.Unit+", has "+material.Stock.String())
		}

		cost := quantity.Mul(material.UnitCost)
		if costOverride != nil {
			cost = *costOverride
		}
		quotation, ok := tx.FindQuotationAsOf(reaction.OrganizationID, reaction.MetalType, reaction.ReactionDate)
		if !ok {
			return domain.WrapMissingPriceData(reaction.MetalType,
				"no quotation on or before "+reaction.ReactionDate.Format("2006-01-02"))
		}
		goldEquivalent := cost.Div(quotation.BuyPrice).Round(4)

		if _, err := tx.UpdateRawMaterial(rawMaterialID, func(m *RawMaterial) error {
			m.Stock = m.Stock.Sub(quantity)
			return nil
		}); err != nil {
			return err
		}
		var err error
		usage, err = tx.CreateRawMaterialUsage(RawMaterialUsage{
			OrganizationID:      reaction.OrganizationID,
			ReactionID:          reaction.ID,
			RawMaterialID:       rawMaterialID,
			Quantity:            quantity,
			Cost:                cost,
			GoldEquivalentGrams: goldEquivalent,
		})
		return err
	})
	return usage, res, err
}

// UpdateReactionLots replaces a reaction's source lot set. Removed lots are
// restored, added lots consumed, and changed usages apply the signed delta,
// all in one transaction.
func (s *Service) UpdateReactionLots(ctx context.Context, reactionID string, newSet []ReactionLotUsage) (ChemicalReaction, Result, error) {
	var updated ChemicalReaction
	res, err := s.run(ctx, "update_reaction_lots", &reactionID, func(tx Transaction) error {
		reaction, ok := tx.FindChemicalReaction(reactionID)
		if !ok {
			return domain.WrapNotFound(domain.EntityChemicalReaction, reactionID)
		}
		switch reaction.Status {
		case domain.ReactionStatusCompleted, domain.ReactionStatusCanceled:
			return domain.WrapInvalidState(domain.EntityChemicalReaction, reactionID,
				"cannot edit lots from "+string(reaction.Status))
		}
		if len(newSet) == 0 {
			return domain.WrapValidation("source lots must not be empty")
		}

		requested := make(map[string]decimal.Decimal, len(newSet))
		input := decimal.Zero
		for _, usage := range newSet {
			if _, dup := requested[usage.LotID]; dup {
				return domain.WrapValidation("duplicate source lot " + usage.LotID)
			}
			if !usage.GramsUsed.IsPositive() {
				return domain.WrapValidation("grams to use must be positive for lot " + usage.LotID)
			}
			requested[usage.LotID] = usage.GramsUsed
			input = input.Add(usage.GramsUsed)
		}
		current := make(map[string]decimal.Decimal, len(reaction.SourceLots))
		for _, usage := range reaction.SourceLots {
			current[usage.LotID] = usage.GramsUsed
		}

		// Removed or shrunk usages restore grams first so grown usages can
		// draw from the freed balance within the same transaction.
		for lotID, had := range current {
			want, keep := requested[lotID]
			if !keep {
				if err := reverseConsumption(tx, reaction.OrganizationID, lotID, had, reaction.ReactionNumber); err != nil {
					return err
				}
				continue
			}
			if want.LessThan(had) {
				if err := reverseConsumption(tx, reaction.OrganizationID, lotID, had.Sub(want), reaction.ReactionNumber); err != nil {
					return err
				}
			}
		}
		for lotID, want := range requested {
			had, existed := current[lotID]
			if !existed {
				if err := consumeForReaction(tx, reaction.OrganizationID, lotID, want, reaction.ReactionNumber); err != nil {
					return err
				}
				continue
			}
			if want.GreaterThan(had) {
				if err := consumeForReaction(tx, reaction.OrganizationID, lotID, want.Sub(had), reaction.ReactionNumber); err != nil {
					return err
				}
			}
		}

		var err error
		updated, err = tx.UpdateChemicalReaction(reactionID, func(r *ChemicalReaction) error {
			r.SourceLots = newSet
			r.InputGoldGrams = input
			return nil
		})
		return err
	})
	return updated, res, err
}

// CancelReaction aborts any non-completed reaction and restores every
// consumed source lot. A second cancel fails InvalidState without touching
// the lots again.
func (s *Service) CancelReaction(ctx context.Context, reactionID string) (ChemicalReaction, Result, error) {
	var canceled ChemicalReaction
	res, err := s.run(ctx, "cancel_reaction", &reactionID, func(tx Transaction) error {
		reaction, ok := tx.FindChemicalReaction(reactionID)
		if !ok {
			return domain.WrapNotFound(domain.EntityChemicalReaction, reactionID)
		}
		switch reaction.Status {
		case domain.ReactionStatusCompleted, domain.ReactionStatusCanceled:
			return domain.WrapInvalidState(domain.EntityChemicalReaction, reactionID,
				"cannot cancel from "+string(reaction.Status))
		}
		for _, usage := range reaction.SourceLots {
			if err := reverseConsumption(tx, reaction.OrganizationID, usage.LotID, usage.GramsUsed, reaction.ReactionNumber); err != nil {
				return err
			}
		}
		var err error
		canceled, err = tx.UpdateChemicalReaction(reactionID, func(r *ChemicalReaction) error {
			r.Status = domain.ReactionStatusCanceled
			return nil
		})
		return err
	})
	return canceled, res, err
}

// GetReaction returns a reaction by ID.
func (s *Service) GetReaction(id string) (ChemicalReaction, bool) {
	return s.store.GetChemicalReaction(id)
}

// ListReactions returns all reactions ordered by ID.
func (s *Service) ListReactions() []ChemicalReaction {
	return s.store.ListChemicalReactions()
}
