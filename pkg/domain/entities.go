// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by metalcore.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityPureMetalLot identifies a pure metal lot record.
	EntityPureMetalLot EntityType = "pure_metal_lot"
	// EntityLotMovement identifies a lot movement ledger record.
	EntityLotMovement EntityType = "lot_movement"
	// EntityChemicalReaction identifies a chemical reaction record.
	EntityChemicalReaction EntityType = "chemical_reaction"
	// EntityRecoveryOrder identifies a recovery order record.
	EntityRecoveryOrder EntityType = "recovery_order"
	// EntityChemicalAnalysis identifies a chemical analysis record.
	EntityChemicalAnalysis EntityType = "chemical_analysis"
	// EntityInventoryLot identifies a finished-product inventory lot record.
	EntityInventoryLot EntityType = "inventory_lot"
	// EntityProduct identifies a product master record.
	EntityProduct EntityType = "product"
	// EntityRawMaterial identifies a raw material master record.
	EntityRawMaterial EntityType = "raw_material"
	// EntityRawMaterialUsage identifies a raw material usage record attached to a reaction.
	EntityRawMaterialUsage EntityType = "raw_material_usage"
	// EntityQuotation identifies a metal price quotation record.
	EntityQuotation EntityType = "quotation"
	// EntityStockMovement identifies a product stock movement record.
	EntityStockMovement EntityType = "stock_movement"
	// EntityMetalCredit identifies a metal credit record.
	EntityMetalCredit EntityType = "metal_credit"
	// EntityMediaAttachment identifies a media attachment association record.
	EntityMediaAttachment EntityType = "media_attachment"
	// EntitySequenceCounter identifies a per-organization sequence counter record.
	EntitySequenceCounter EntityType = "sequence_counter"
)

// MetalType identifies the precious metal a quantity refers to.
type MetalType string

// Metals handled by the refinery core.
const (
	MetalGold    MetalType = "AU"
	MetalSilver  MetalType = "AG"
	MetalRhodium MetalType = "RH"
)

// LotStatus describes how much of a pure metal lot remains consumable.
type LotStatus string

// Lot statuses are a pure function of remaining versus initial grams.
const (
	// LotStatusAvailable indicates the full initial mass remains.
	LotStatusAvailable LotStatus = "AVAILABLE"
	// LotStatusPartiallyUsed indicates a positive remainder below the initial mass.
	LotStatusPartiallyUsed LotStatus = "PARTIALLY_USED"
	// LotStatusUsed indicates the lot has been fully consumed.
	LotStatusUsed LotStatus = "USED"
)

// LotSourceType records where a pure metal lot originated.
type LotSourceType string

// Lot origins tracked for traceability.
const (
	LotSourcePurchase         LotSourceType = "PURCHASE"
	LotSourceReactionLeftover LotSourceType = "REACTION_LEFTOVER"
	LotSourceRecoveryOrder    LotSourceType = "RECOVERY_ORDER"
	LotSourceManual           LotSourceType = "MANUAL"
)

// MovementType enumerates lot movement kinds in the append-only ledger.
type MovementType string

// Movement kinds recorded against pure metal lots.
const (
	MovementEntry      MovementType = "ENTRY"
	MovementExit       MovementType = "EXIT"
	MovementAdjustment MovementType = "ADJUSTMENT"
)

// ReactionStatus enumerates chemical reaction workflow states.
type ReactionStatus string

// Reaction lifecycle: STARTED -> PROCESSING -> PENDING_PURITY_ADJUSTMENT -> COMPLETED,
// with CANCELED reachable from any non-terminal state.
const (
	ReactionStatusStarted                 ReactionStatus = "STARTED"
	ReactionStatusProcessing              ReactionStatus = "PROCESSING"
	ReactionStatusPendingPurityAdjustment ReactionStatus = "PENDING_PURITY_ADJUSTMENT"
	ReactionStatusCompleted               ReactionStatus = "COMPLETED"
	ReactionStatusCanceled                ReactionStatus = "CANCELED"
)

// RecoveryOrderStatus enumerates recovery order workflow states.
type RecoveryOrderStatus string

// Recovery order lifecycle, names kept as used on the refinery floor.
const (
	RecoveryStatusPending        RecoveryOrderStatus = "PENDENTE"
	RecoveryStatusInProgress     RecoveryOrderStatus = "EM_ANDAMENTO"
	RecoveryStatusResultLaunched RecoveryOrderStatus = "RESULTADO_LANCADO"
	RecoveryStatusFinalized      RecoveryOrderStatus = "FINALIZADA"
	RecoveryStatusCanceled       RecoveryOrderStatus = "CANCELADA"
)

// AnalysisStatus enumerates chemical analysis workflow states.
type AnalysisStatus string

// Analysis lifecycle states consumed by the recovery pipeline.
const (
	AnalysisStatusReceived            AnalysisStatus = "RECEBIDO"
	AnalysisStatusInAnalysis          AnalysisStatus = "EM_ANALISE"
	AnalysisStatusAnalyzed            AnalysisStatus = "ANALISADO_AGUARDANDO_APROVACAO"
	AnalysisStatusApprovedForRecovery AnalysisStatus = "APROVADO_PARA_RECUPERACAO"
	AnalysisStatusInRecovery          AnalysisStatus = "EM_RECUPERACAO"
	AnalysisStatusRecovered           AnalysisStatus = "FINALIZADO_RECUPERADO"
	AnalysisStatusRefused             AnalysisStatus = "RECUSADO_PELO_CLIENTE"
	AnalysisStatusCanceled            AnalysisStatus = "CANCELADO"
)

// AnalysisKind distinguishes client samples from residues re-entering the pipeline.
type AnalysisKind string

// Analysis kinds.
const (
	AnalysisKindSample  AnalysisKind = "SAMPLE"
	AnalysisKindResidue AnalysisKind = "RESIDUE"
)

// InventorySourceType records how an inventory lot came into existence.
type InventorySourceType string

// Inventory lot origins.
const (
	InventorySourceReaction InventorySourceType = "REACTION"
	InventorySourcePurchase InventorySourceType = "PURCHASE"
)

// StockUnit is the unit a product's stock level is kept in.
type StockUnit string

// Stock units supported by the product master.
const (
	StockUnitGrams     StockUnit = "GRAMS"
	StockUnitKilograms StockUnit = "KILOGRAMS"
)

// StockMovementType enumerates product stock movement kinds.
type StockMovementType string

// Stock movement kinds.
const (
	StockMovementEntryReaction StockMovementType = "ENTRY_REACTION"
	StockMovementEntryPurchase StockMovementType = "ENTRY_PURCHASE"
	StockMovementExit          StockMovementType = "EXIT"
	StockMovementAdjustment    StockMovementType = "ADJUSTMENT"
)

// CounterKind names a per-organization monotonic sequence.
type CounterKind string

// Sequence counters issued inside transactions.
const (
	CounterPureMetalLot    CounterKind = "pure_metal_lot"
	CounterReaction        CounterKind = "chemical_reaction"
	CounterRecoveryOrder   CounterKind = "recovery_order"
	CounterAnalysis        CounterKind = "chemical_analysis"
	CounterProductionBatch CounterKind = "production_batch"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// MassTolerance is the comparison tolerance, in grams, used when checking
// balance bounds and mass conservation.
var MassTolerance = decimal.New(1, -4)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PureMetalLot is a quantity of refined metal held in custody, consumed by
// reactions and replenished by recoveries and leftovers.
type PureMetalLot struct {
	Base
	OrganizationID string          `json:"organization_id"`
	LotNumber      string          `json:"lot_number"`
	MetalType      MetalType       `json:"metal_type"`
	SourceType     LotSourceType   `json:"source_type"`
	SourceID       *string         `json:"source_id,omitempty"`
	InitialGrams   decimal.Decimal `json:"initial_grams"`
	RemainingGrams decimal.Decimal `json:"remaining_grams"`
	Purity         decimal.Decimal `json:"purity"`
	Status         LotStatus       `json:"status"`
	Notes          *string         `json:"notes,omitempty"`
}

// LotMovement is one append-only entry in a lot's movement ledger.
type LotMovement struct {
	Base
	OrganizationID string          `json:"organization_id"`
	LotID          string          `json:"lot_id"`
	Type           MovementType    `json:"type"`
	Grams          decimal.Decimal `json:"grams"`
	SourceDocument string          `json:"source_document,omitempty"`
	Notes          *string         `json:"notes,omitempty"`
}

// ReactionLotUsage records how many grams a reaction drew from one source lot.
type ReactionLotUsage struct {
	LotID     string          `json:"lot_id"`
	GramsUsed decimal.Decimal `json:"grams_used"`
}

// ChemicalReaction transforms pure metal drawn from source lots into a
// finished product plus basket and distillate leftovers.
type ChemicalReaction struct {
	Base
	OrganizationID  string             `json:"organization_id"`
	ReactionNumber  string             `json:"reaction_number"`
	MetalType       MetalType          `json:"metal_type"`
	Status          ReactionStatus     `json:"status"`
	ReactionDate    time.Time          `json:"reaction_date"`
	OutputProductID string             `json:"output_product_id"`
	SourceLots      []ReactionLotUsage `json:"source_lots"`
	InputGoldGrams  decimal.Decimal    `json:"input_gold_grams"`

	// Estimates captured at creation; never fed into completion arithmetic.
	EstimatedGoldFraction *decimal.Decimal `json:"estimated_gold_fraction,omitempty"`
	EstimatedOutputGrams  *decimal.Decimal `json:"estimated_output_grams,omitempty"`

	OutputProductGrams            *decimal.Decimal `json:"output_product_grams,omitempty"`
	OutputGoldGrams               *decimal.Decimal `json:"output_gold_grams,omitempty"`
	OutputBasketLeftoverGrams     *decimal.Decimal `json:"output_basket_leftover_grams,omitempty"`
	OutputDistillateLeftoverGrams *decimal.Decimal `json:"output_distillate_leftover_grams,omitempty"`
	FinalPurity                   *decimal.Decimal `json:"final_purity,omitempty"`
	ProductionBatchID             *string          `json:"production_batch_id,omitempty"`
	Notes                         *string          `json:"notes,omitempty"`
}

// RawMaterialUsage records raw material consumed by a reaction, costed in
// currency and converted to gold-equivalent grams at the effective quotation.
type RawMaterialUsage struct {
	Base
	OrganizationID      string          `json:"organization_id"`
	ReactionID          string          `json:"reaction_id"`
	RawMaterialID       string          `json:"raw_material_id"`
	Quantity            decimal.Decimal `json:"quantity"`
	Cost                decimal.Decimal `json:"cost"`
	GoldEquivalentGrams decimal.Decimal `json:"gold_equivalent_grams"`
}

// RecoveryOrder batches approved chemical analyses through a recovery run.
type RecoveryOrder struct {
	Base
	OrganizationID string              `json:"organization_id"`
	OrderNumber    string              `json:"order_number"`
	MetalType      MetalType           `json:"metal_type"`
	Status         RecoveryOrderStatus `json:"status"`
	AnalysisIDs    []string            `json:"analysis_ids"`
	StartedAt      *time.Time          `json:"started_at,omitempty"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`

	// TotalGrossEstimatedGrams is fixed at creation from the linked analyses.
	TotalGrossEstimatedGrams decimal.Decimal  `json:"total_gross_estimated_grams"`
	ProcessedVolumeGrams     *decimal.Decimal `json:"processed_volume_grams,omitempty"`
	FinalPurity              *decimal.Decimal `json:"final_purity,omitempty"`
	ResultUnit               string           `json:"result_unit,omitempty"`
	RecoveredPureGrams       *decimal.Decimal `json:"recovered_pure_grams,omitempty"`
	ResidueGrams             *decimal.Decimal `json:"residue_grams,omitempty"`
	ResidueAnalysisID        *string          `json:"residue_analysis_id,omitempty"`
}

// ChemicalAnalysis is an assayed entry of metal-bearing material.
type ChemicalAnalysis struct {
	Base
	OrganizationID      string           `json:"organization_id"`
	AnalysisNumber      string           `json:"analysis_number"`
	ClientID            *string          `json:"client_id,omitempty"`
	MetalType           MetalType        `json:"metal_type"`
	Kind                AnalysisKind     `json:"kind"`
	Status              AnalysisStatus   `json:"status"`
	EntryGrams          decimal.Decimal  `json:"entry_grams"`
	Purity              *decimal.Decimal `json:"purity,omitempty"`
	GrossEstimatedGrams decimal.Decimal  `json:"gross_estimated_grams"`
	RecoveryOrderID     *string          `json:"recovery_order_id,omitempty"`
	Notes               *string          `json:"notes,omitempty"`
}

// InventoryLot is a costed batch of finished product entering stock.
type InventoryLot struct {
	Base
	OrganizationID    string              `json:"organization_id"`
	ProductID         string              `json:"product_id"`
	BatchNumber       string              `json:"batch_number"`
	Quantity          decimal.Decimal     `json:"quantity"`
	RemainingQuantity decimal.Decimal     `json:"remaining_quantity"`
	CostPerUnit       decimal.Decimal     `json:"cost_per_unit"`
	SourceType        InventorySourceType `json:"source_type"`
	SourceID          string              `json:"source_id"`
	ReceivedAt        time.Time           `json:"received_at"`
}

// Product is a finished-good master carrying the actual gold fraction used
// for completion arithmetic and the unit its stock level is tracked in.
type Product struct {
	Base
	OrganizationID string          `json:"organization_id"`
	Name           string          `json:"name"`
	GoldValue      decimal.Decimal `json:"gold_value"`
	StockUnit      StockUnit       `json:"stock_unit"`
	Stock          decimal.Decimal `json:"stock"`
}

// RawMaterial is a consumable master with a currency unit cost.
type RawMaterial struct {
	Base
	OrganizationID string          `json:"organization_id"`
	Name           string          `json:"name"`
	Unit           string          `json:"unit"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	Stock          decimal.Decimal `json:"stock"`
}

// Quotation is a dated buy/sell price for one metal within an organization.
type Quotation struct {
	Base
	OrganizationID string          `json:"organization_id"`
	MetalType      MetalType       `json:"metal_type"`
	Date           time.Time       `json:"date"`
	BuyPrice       decimal.Decimal `json:"buy_price"`
	SellPrice      decimal.Decimal `json:"sell_price"`
}

// StockMovement is one append-only entry in a product's stock ledger.
// Quantity is signed: positive for entries, negative for exits.
type StockMovement struct {
	Base
	OrganizationID string            `json:"organization_id"`
	ProductID      string            `json:"product_id"`
	InventoryLotID *string           `json:"inventory_lot_id,omitempty"`
	Quantity       decimal.Decimal   `json:"quantity"`
	Type           StockMovementType `json:"type"`
	SourceDocument string            `json:"source_document,omitempty"`
}

// MetalCredit records pure metal credited to an account as the outcome of a
// recovery or refining run.
type MetalCredit struct {
	Base
	OrganizationID string          `json:"organization_id"`
	ClientID       *string         `json:"client_id,omitempty"`
	MetalType      MetalType       `json:"metal_type"`
	Grams          decimal.Decimal `json:"grams"`
	SourceType     string          `json:"source_type"`
	SourceID       string          `json:"source_id"`
}

// MediaAttachment associates an uploaded object key with a domain entity.
// Object bytes live in the blob store; the core keeps only the association.
type MediaAttachment struct {
	Base
	OrganizationID string     `json:"organization_id"`
	EntityType     EntityType `json:"entity_type"`
	EntityID       string     `json:"entity_id"`
	Key            string     `json:"key"`
	ContentType    string     `json:"content_type,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
}

// SequenceCounter is a per-organization monotonic counter persisted alongside
// the entities it numbers so issued values commit or roll back with them.
type SequenceCounter struct {
	Base
	OrganizationID string      `json:"organization_id"`
	Kind           CounterKind `json:"kind"`
	LastValue      int64       `json:"last_value"`
}

// LotStatusFor derives a lot's status from its remaining and initial grams.
func LotStatusFor(initial, remaining decimal.Decimal) LotStatus {
	switch {
	case remaining.LessThanOrEqual(MassTolerance):
		return LotStatusUsed
	case remaining.GreaterThanOrEqual(initial):
		return LotStatusAvailable
	default:
		return LotStatusPartiallyUsed
	}
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
