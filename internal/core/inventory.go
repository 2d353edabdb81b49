package core

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"metalcore/pkg/domain"
)

// resolveBatchNumber returns the batch number for a new inventory lot.
// A manual number is honored after a per-organization uniqueness check;
// otherwise the production counter issues the next value, seeding from the
// configured batch seed on first use.
func resolveBatchNumber(tx Transaction, organizationID string, manual *string, seed int64) (string, error) {
	if manual != nil && *manual != "" {
		for _, lot := range tx.Snapshot().ListInventoryLots() {
			if lot.OrganizationID == organizationID && lot.BatchNumber == *manual {
				return "", domain.WrapDuplicateIdentifier(domain.EntityInventoryLot, *manual)
			}
		}
		return *manual, nil
	}
	n, err := tx.NextSequence(organizationID, domain.CounterProductionBatch, seed)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n, 10), nil
}

// ReceivePurchaseLotParams describes a purchased batch of finished product
// entering stock directly, bypassing the reaction pipeline.
type ReceivePurchaseLotParams struct {
	OrganizationID string
	ProductID      string

	// BatchNumber claims a specific batch number; nil draws from the counter.
	BatchNumber *string
	Quantity    decimal.Decimal
	CostPerUnit decimal.Decimal
	ReceivedAt  time.Time

	// SourceDocument is the purchase document reference kept on the stock movement.
	SourceDocument string
}

// ReceivePurchaseLot creates a costed purchase inventory lot, records the
// ENTRY_PURCHASE stock movement, and raises the product stock level, all in
// one transaction.
func (s *Service) ReceivePurchaseLot(ctx context.Context, params ReceivePurchaseLotParams) (InventoryLot, Result, error) {
	var created InventoryLot
	var id string
	res, err := s.run(ctx, "receive_purchase_lot", &id, func(tx Transaction) error {
		if params.OrganizationID == "" {
			return domain.WrapValidation("organization id required")
		}
		product, ok := tx.FindProduct(params.ProductID)
		if !ok || product.OrganizationID != params.OrganizationID {
			return domain.WrapNotFound(domain.EntityProduct, params.ProductID)
		}
		if !params.Quantity.IsPositive() {
			return domain.WrapValidation("quantity must be positive")
		}
		if params.CostPerUnit.IsNegative() {
			return domain.WrapValidation("cost per unit must not be negative")
		}

		batch, err := resolveBatchNumber(tx, params.OrganizationID, params.BatchNumber, s.batchSeed)
		if err != nil {
			return err
		}
		receivedAt := params.ReceivedAt
		if receivedAt.IsZero() {
			receivedAt = s.clock.Now()
		}
		created, err = tx.CreateInventoryLot(InventoryLot{
			OrganizationID:    params.OrganizationID,
			ProductID:         product.ID,
			BatchNumber:       batch,
			Quantity:          params.Quantity,
			RemainingQuantity: params.Quantity,
			CostPerUnit:       params.CostPerUnit,
			SourceType:        domain.InventorySourcePurchase,
			ReceivedAt:        receivedAt,
		})
		if err != nil {
			return err
		}
		movement, err := tx.CreateStockMovement(StockMovement{
			OrganizationID: params.OrganizationID,
			ProductID:      product.ID,
			InventoryLotID: &created.ID,
			Quantity:       params.Quantity,
			Type:           domain.StockMovementEntryPurchase,
			SourceDocument: params.SourceDocument,
		})
		if err != nil {
			return err
		}
		created, err = tx.UpdateInventoryLot(created.ID, func(l *InventoryLot) error {
			l.SourceID = movement.ID
			return nil
		})
		if err != nil {
			return err
		}
		if _, err := tx.UpdateProduct(product.ID, func(p *Product) error {
			p.Stock = p.Stock.Add(params.Quantity)
			return nil
		}); err != nil {
			return err
		}
		id = created.ID
		return nil
	})
	return created, res, err
}

// ListInventoryLots returns all inventory lots ordered by ID.
func (s *Service) ListInventoryLots() []InventoryLot {
	return s.store.ListInventoryLots()
}
