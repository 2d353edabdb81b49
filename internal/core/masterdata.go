package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"metalcore/pkg/domain"
)

// CreateProductParams describes a finished-good master record.
type CreateProductParams struct {
	OrganizationID string
	Name           string
	GoldValue      decimal.Decimal
	StockUnit      domain.StockUnit // defaults to GRAMS
	InitialStock   decimal.Decimal
}

// CreateProduct registers a product master. GoldValue is the actual gold
// fraction used by completion arithmetic, distinct from any estimate.
func (s *Service) CreateProduct(ctx context.Context, params CreateProductParams) (Product, Result, error) {
	var created Product
	var id string
	res, err := s.run(ctx, "create_product", &id, func(tx Transaction) error {
		if params.OrganizationID == "" {
			return domain.WrapValidation("organization id required")
		}
		if params.Name == "" {
			return domain.WrapValidation("product name required")
		}
		if params.GoldValue.IsNegative() || params.GoldValue.GreaterThan(decimal.NewFromInt(1)) {
			return domain.WrapValidation("gold value must be within [0, 1]")
		}
		if params.InitialStock.IsNegative() {
			return domain.WrapValidation("initial stock must not be negative")
		}
		unit := params.StockUnit
		if unit == "" {
			unit = domain.StockUnitGrams
		}
		var err error
		created, err = tx.CreateProduct(Product{
			OrganizationID: params.OrganizationID,
			Name:           params.Name,
			GoldValue:      params.GoldValue,
			StockUnit:      unit,
			Stock:          params.InitialStock,
		})
		if err != nil {
			return err
		}
		id = created.ID
		return nil
	})
	return created, res, err
}

// UpdateProduct applies a mutation to a product master.
func (s *Service) UpdateProduct(ctx context.Context, productID string, mutator func(*Product) error) (Product, Result, error) {
	var updated Product
	res, err := s.run(ctx, "update_product", &productID, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateProduct(productID, func(p *Product) error {
			if err := mutator(p); err != nil {
				return err
			}
			if p.GoldValue.IsNegative() || p.GoldValue.GreaterThan(decimal.NewFromInt(1)) {
				return domain.WrapValidation("gold value must be within [0, 1]")
			}
			return nil
		})
		return err
	})
	return updated, res, err
}

// DeleteProduct removes a product master. The store rejects the delete while
// inventory lots or stock movements still reference it.
func (s *Service) DeleteProduct(ctx context.Context, productID string) (Result, error) {
	return s.run(ctx, "delete_product", &productID, func(tx Transaction) error {
		return tx.DeleteProduct(productID)
	})
}

// CreateRawMaterialParams describes a consumable master record.
type CreateRawMaterialParams struct {
	OrganizationID string
	Name           string
	Unit           string
	UnitCost       decimal.Decimal
	InitialStock   decimal.Decimal
}

// CreateRawMaterial registers a raw material master.
func (s *Service) CreateRawMaterial(ctx context.Context, params CreateRawMaterialParams) (RawMaterial, Result, error) {
	var created RawMaterial
	var id string
	res, err := s.run(ctx, "create_raw_material", &id, func(tx Transaction) error {
		if params.OrganizationID == "" {
			return domain.WrapValidation("organization id required")
		}
		if params.Name == "" {
			return domain.WrapValidation("raw material name required")
		}
		if params.UnitCost.IsNegative() {
			return domain.WrapValidation("unit cost must not be negative")
		}
		if params.InitialStock.IsNegative() {
			return domain.WrapValidation("initial stock must not be negative")
		}
		var err error
		created, err = tx.CreateRawMaterial(RawMaterial{
			OrganizationID: params.OrganizationID,
			Name:           params.Name,
			Unit:           params.Unit,
			UnitCost:       params.UnitCost,
			Stock:          params.InitialStock,
		})
		if err != nil {
			return err
		}
		id = created.ID
		return nil
	})
	return created, res, err
}

// UpdateRawMaterial applies a mutation to a raw material master.
func (s *Service) UpdateRawMaterial(ctx context.Context, rawMaterialID string, mutator func(*RawMaterial) error) (RawMaterial, Result, error) {
	var updated RawMaterial
	res, err := s.run(ctx, "update_raw_material", &rawMaterialID, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateRawMaterial(rawMaterialID, mutator)
		return err
	})
	return updated, res, err
}

// DeleteRawMaterial removes a raw material master. The store rejects the
// delete while reaction usages still reference it.
func (s *Service) DeleteRawMaterial(ctx context.Context, rawMaterialID string) (Result, error) {
	return s.run(ctx, "delete_raw_material", &rawMaterialID, func(tx Transaction) error {
		return tx.DeleteRawMaterial(rawMaterialID)
	})
}

// CreateQuotationParams describes a dated buy/sell price for one metal.
type CreateQuotationParams struct {
	OrganizationID string
	MetalType      domain.MetalType
	Date           time.Time
	BuyPrice       decimal.Decimal
	SellPrice      decimal.Decimal
}

// CreateQuotation records a metal price quotation.
func (s *Service) CreateQuotation(ctx context.Context, params CreateQuotationParams) (Quotation, Result, error) {
	var created Quotation
	var id string
	res, err := s.run(ctx, "create_quotation", &id, func(tx Transaction) error {
		if params.OrganizationID == "" {
			return domain.WrapValidation("organization id required")
		}
		if !params.BuyPrice.IsPositive() {
			return domain.WrapValidation("buy price must be positive")
		}
		if params.SellPrice.IsNegative() {
			return domain.WrapValidation("sell price must not be negative")
		}
		date := params.Date
		if date.IsZero() {
			date = s.clock.Now()
		}
		var err error
		created, err = tx.CreateQuotation(Quotation{
			OrganizationID: params.OrganizationID,
			MetalType:      params.MetalType,
			Date:           date,
			BuyPrice:       params.BuyPrice,
			SellPrice:      params.SellPrice,
		})
		if err != nil {
			return err
		}
		id = created.ID
		return nil
	})
	return created, res, err
}

// DeleteQuotation removes a quotation.
func (s *Service) DeleteQuotation(ctx context.Context, quotationID string) (Result, error) {
	return s.run(ctx, "delete_quotation", &quotationID, func(tx Transaction) error {
		return tx.DeleteQuotation(quotationID)
	})
}

// GetProduct returns a product by ID through a read view.
func (s *Service) GetProduct(ctx context.Context, id string) (Product, bool) {
	var product Product
	var ok bool
	_ = s.store.View(ctx, func(view TransactionView) error {
		product, ok = view.FindProduct(id)
		return nil
	})
	return product, ok
}

// ListProducts returns all product masters ordered by ID.
func (s *Service) ListProducts(ctx context.Context) []Product {
	var out []Product
	_ = s.store.View(ctx, func(view TransactionView) error {
		out = view.ListProducts()
		return nil
	})
	return out
}

// ListRawMaterials returns all raw material masters ordered by ID.
func (s *Service) ListRawMaterials(ctx context.Context) []RawMaterial {
	var out []RawMaterial
	_ = s.store.View(ctx, func(view TransactionView) error {
		out = view.ListRawMaterials()
		return nil
	})
	return out
}

// ListQuotations returns all quotations ordered by ID.
func (s *Service) ListQuotations(ctx context.Context) []Quotation {
	var out []Quotation
	_ = s.store.View(ctx, func(view TransactionView) error {
		out = view.ListQuotations()
		return nil
	})
	return out
}
