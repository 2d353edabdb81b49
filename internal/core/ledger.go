package core

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"metalcore/pkg/domain"
)

// CreateLotParams describes a new pure metal lot entering custody.
type CreateLotParams struct {
	OrganizationID string
	LotNumber      string // issued from the sequence counter when empty
	MetalType      domain.MetalType
	SourceType     domain.LotSourceType
	SourceID       *string
	InitialGrams   decimal.Decimal
	Purity         decimal.Decimal
	Notes          *string
}

// CreateLot registers a lot with its full balance available and appends the
// opening ENTRY movement.
func (s *Service) CreateLot(ctx context.Context, params CreateLotParams) (PureMetalLot, Result, error) {
	var created PureMetalLot
	var id string
	res, err := s.run(ctx, "create_lot", &id, func(tx Transaction) error {
		var err error
		created, err = createLot(tx, params)
		if err != nil {
			return err
		}
		id = created.ID
		return nil
	})
	return created, res, err
}

// createLot is the transaction-scoped factory shared by purchases, reaction
// leftovers and recovery credits.
func createLot(tx Transaction, params CreateLotParams) (PureMetalLot, error) {
	if params.OrganizationID == "" {
		return PureMetalLot{}, domain.WrapValidation("organization id required")
	}
	if !params.InitialGrams.IsPositive() {
		return PureMetalLot{}, domain.WrapValidation("initial grams must be positive")
	}
	if params.Purity.IsNegative() || params.Purity.GreaterThan(decimal.NewFromInt(1)) {
		return PureMetalLot{}, domain.WrapValidation("purity must be within [0, 1]")
	}
	number := params.LotNumber
	if number == "" {
		var err error
		number, err = nextCode(tx, params.OrganizationID, domain.CounterPureMetalLot, lotCodeFormat)
		if err != nil {
			return PureMetalLot{}, err
		}
	}
	lot, err := tx.CreatePureMetalLot(PureMetalLot{
		OrganizationID: params.OrganizationID,
		LotNumber:      number,
		MetalType:      params.MetalType,
		SourceType:     params.SourceType,
		SourceID:       params.SourceID,
		InitialGrams:   params.InitialGrams,
		RemainingGrams: params.InitialGrams,
		Purity:         params.Purity,
		Notes:          params.Notes,
	})
	if err != nil {
		return PureMetalLot{}, err
	}
	_, err = tx.CreateLotMovement(LotMovement{
		OrganizationID: lot.OrganizationID,
		LotID:          lot.ID,
		Type:           domain.MovementEntry,
		Grams:          lot.InitialGrams,
		SourceDocument: lot.LotNumber,
	})
	if err != nil {
		return PureMetalLot{}, err
	}
	return lot, nil
}

// RecordMovement applies one ledger movement to a lot. ENTRY adds grams,
// EXIT subtracts, ADJUSTMENT applies the signed delta as given.
func (s *Service) RecordMovement(ctx context.Context, organizationID, lotID string, movementType domain.MovementType, grams decimal.Decimal, notes *string) (PureMetalLot, Result, error) {
	var updated PureMetalLot
	res, err := s.run(ctx, "record_movement", &lotID, func(tx Transaction) error {
		var err error
		updated, err = recordMovement(tx, organizationID, lotID, movementType, grams, notes)
		return err
	})
	return updated, res, err
}

func recordMovement(tx Transaction, organizationID, lotID string, movementType domain.MovementType, grams decimal.Decimal, notes *string) (PureMetalLot, error) {
	lot, ok := tx.FindPureMetalLot(lotID)
	if !ok || lot.OrganizationID != organizationID {
		return PureMetalLot{}, domain.WrapNotFound(domain.EntityPureMetalLot, lotID)
	}

	var delta decimal.Decimal
	switch movementType {
	case domain.MovementEntry:
		if !grams.IsPositive() {
			return PureMetalLot{}, domain.WrapValidation("entry grams must be positive")
		}
		delta = grams
	case domain.MovementExit:
		if !grams.IsPositive() {
			return PureMetalLot{}, domain.WrapValidation("exit grams must be positive")
		}
		delta = grams.Neg()
	case domain.MovementAdjustment:
		delta = grams
	default:
		return PureMetalLot{}, domain.WrapValidation("unknown movement type " + string(movementType))
	}

	next := lot.RemainingGrams.Add(delta)
	if next.IsNegative() {
		return PureMetalLot{}, domain.WrapInsufficientBalance(domain.EntityPureMetalLot, lotID,
			"movement of "+delta.String()+"g would leave "+next.String()+"g")
	}

	updated, err := tx.UpdatePureMetalLot(lotID, func(l *PureMetalLot) error {
		l.RemainingGrams = next
		// New metal entering an existing lot grows its custody mass so the
		// balance bound (remaining within initial) keeps holding.
		if next.GreaterThan(l.InitialGrams) {
			l.InitialGrams = next
		}
		return nil
	})
	if err != nil {
		return PureMetalLot{}, err
	}
	_, err = tx.CreateLotMovement(LotMovement{
		OrganizationID: lot.OrganizationID,
		LotID:          lotID,
		Type:           movementType,
		Grams:          grams,
		Notes:          notes,
	})
	if err != nil {
		return PureMetalLot{}, err
	}
	return updated, nil
}

// consumeForReaction draws grams from a lot inside the caller's transaction.
// The caller is responsible for invoking it for every lot in the same
// transaction so a failure on any lot rolls back all of them.
func consumeForReaction(tx Transaction, organizationID, lotID string, grams decimal.Decimal, sourceDocument string) error {
	lot, ok := tx.FindPureMetalLot(lotID)
	if !ok || lot.OrganizationID != organizationID {
		return domain.WrapNotFound(domain.EntityPureMetalLot, lotID)
	}
	if !grams.IsPositive() {
		return domain.WrapValidation("grams to consume must be positive")
	}
	if grams.GreaterThan(lot.RemainingGrams) {
		return domain.WrapInsufficientBalance(domain.EntityPureMetalLot, lotID,
			"needs "+grams.String()+"g, has "+lot.RemainingGrams.String()+"g")
	}
	if _, err := tx.UpdatePureMetalLot(lotID, func(l *PureMetalLot) error {
		l.RemainingGrams = l.RemainingGrams.Sub(grams)
		return nil
	}); err != nil {
		return err
	}
	_, err := tx.CreateLotMovement(LotMovement{
		OrganizationID: organizationID,
		LotID:          lotID,
		Type:           domain.MovementExit,
		Grams:          grams,
		SourceDocument: sourceDocument,
	})
	return err
}

// reverseConsumption restores grams to a lot, capped at the initial balance.
// Used when a reaction's lot set is edited or the reaction is canceled.
func reverseConsumption(tx Transaction, organizationID, lotID string, grams decimal.Decimal, sourceDocument string) error {
	lot, ok := tx.FindPureMetalLot(lotID)
	if !ok || lot.OrganizationID != organizationID {
		return domain.WrapNotFound(domain.EntityPureMetalLot, lotID)
	}
	if !grams.IsPositive() {
		return domain.WrapValidation("grams to restore must be positive")
	}
	restored := lot.RemainingGrams.Add(grams)
	if restored.GreaterThan(lot.InitialGrams) {
		restored = lot.InitialGrams
	}
	if _, err := tx.UpdatePureMetalLot(lotID, func(l *PureMetalLot) error {
		l.RemainingGrams = restored
		return nil
	}); err != nil {
		return err
	}
	_, err := tx.CreateLotMovement(LotMovement{
		OrganizationID: organizationID,
		LotID:          lotID,
		Type:           domain.MovementEntry,
		Grams:          grams,
		SourceDocument: sourceDocument,
	})
	return err
}

// GetLot returns a lot by ID.
func (s *Service) GetLot(id string) (PureMetalLot, bool) {
	return s.store.GetPureMetalLot(id)
}

// ListLots returns all lots ordered by ID.
func (s *Service) ListLots() []PureMetalLot {
	return s.store.ListPureMetalLots()
}

// ListLotMovements returns the movement ledger for one lot in chronological
// order, oldest first.
func (s *Service) ListLotMovements(lotID string) []LotMovement {
	all := s.store.ListLotMovements()
	out := make([]LotMovement, 0, len(all))
	for _, m := range all {
		if m.LotID == lotID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
