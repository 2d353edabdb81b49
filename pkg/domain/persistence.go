package domain

import (
	"context"
	"time"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Every mutation performed through one
// Transaction value commits or rolls back together.
type Transaction interface {
	Snapshot() TransactionView

	CreatePureMetalLot(PureMetalLot) (PureMetalLot, error)
	UpdatePureMetalLot(id string, mutator func(*PureMetalLot) error) (PureMetalLot, error)
	DeletePureMetalLot(id string) error
	CreateLotMovement(LotMovement) (LotMovement, error)

	CreateChemicalReaction(ChemicalReaction) (ChemicalReaction, error)
	UpdateChemicalReaction(id string, mutator func(*ChemicalReaction) error) (ChemicalReaction, error)
	CreateRawMaterialUsage(RawMaterialUsage) (RawMaterialUsage, error)

	CreateRecoveryOrder(RecoveryOrder) (RecoveryOrder, error)
	UpdateRecoveryOrder(id string, mutator func(*RecoveryOrder) error) (RecoveryOrder, error)

	CreateChemicalAnalysis(ChemicalAnalysis) (ChemicalAnalysis, error)
	UpdateChemicalAnalysis(id string, mutator func(*ChemicalAnalysis) error) (ChemicalAnalysis, error)
	DeleteChemicalAnalysis(id string) error

	CreateInventoryLot(InventoryLot) (InventoryLot, error)
	UpdateInventoryLot(id string, mutator func(*InventoryLot) error) (InventoryLot, error)

	CreateProduct(Product) (Product, error)
	UpdateProduct(id string, mutator func(*Product) error) (Product, error)
	DeleteProduct(id string) error
	CreateRawMaterial(RawMaterial) (RawMaterial, error)
	UpdateRawMaterial(id string, mutator func(*RawMaterial) error) (RawMaterial, error)
	DeleteRawMaterial(id string) error
	CreateQuotation(Quotation) (Quotation, error)
	DeleteQuotation(id string) error

	CreateStockMovement(StockMovement) (StockMovement, error)
	CreateMetalCredit(MetalCredit) (MetalCredit, error)
	CreateMediaAttachment(MediaAttachment) (MediaAttachment, error)
	DeleteMediaAttachment(id string) error

	// NextSequence increments and returns the named counter for the
	// organization, seeding it when first used. The issued value is only
	// visible once the enclosing transaction commits.
	NextSequence(organizationID string, kind CounterKind, seed int64) (int64, error)

	FindPureMetalLot(id string) (PureMetalLot, bool)
	FindChemicalReaction(id string) (ChemicalReaction, bool)
	FindRecoveryOrder(id string) (RecoveryOrder, bool)
	FindChemicalAnalysis(id string) (ChemicalAnalysis, bool)
	FindInventoryLot(id string) (InventoryLot, bool)
	FindProduct(id string) (Product, bool)
	FindRawMaterial(id string) (RawMaterial, bool)
	FindLatestQuotation(organizationID string, metal MetalType) (Quotation, bool)
	FindQuotationAsOf(organizationID string, metal MetalType, date time.Time) (Quotation, bool)
}

// TransactionView provides read-only access to snapshot data for rules and reads.
type TransactionView interface {
	RuleView
	ListRawMaterialUsages() []RawMaterialUsage
	ListProducts() []Product
	ListRawMaterials() []RawMaterial
	ListQuotations() []Quotation
	ListStockMovements() []StockMovement
	ListMetalCredits() []MetalCredit
	ListMediaAttachments() []MediaAttachment
	FindChemicalAnalysis(id string) (ChemicalAnalysis, bool)
	FindInventoryLot(id string) (InventoryLot, bool)
	FindRawMaterial(id string) (RawMaterial, bool)
	FindLatestQuotation(organizationID string, metal MetalType) (Quotation, bool)
	FindQuotationAsOf(organizationID string, metal MetalType, date time.Time) (Quotation, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetPureMetalLot(id string) (PureMetalLot, bool)
	ListPureMetalLots() []PureMetalLot
	GetChemicalReaction(id string) (ChemicalReaction, bool)
	ListChemicalReactions() []ChemicalReaction
	GetRecoveryOrder(id string) (RecoveryOrder, bool)
	ListRecoveryOrders() []RecoveryOrder
	ListChemicalAnalyses() []ChemicalAnalysis
	ListInventoryLots() []InventoryLot
	ListLotMovements() []LotMovement
}
