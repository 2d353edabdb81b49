package core

import "metalcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	MetalType          = domain.MetalType
	Severity           = domain.Severity
	Base               = domain.Base
	PureMetalLot       = domain.PureMetalLot
	LotMovement        = domain.LotMovement
	ReactionLotUsage   = domain.ReactionLotUsage
	ChemicalReaction   = domain.ChemicalReaction
	RawMaterialUsage   = domain.RawMaterialUsage
	RecoveryOrder      = domain.RecoveryOrder
	ChemicalAnalysis   = domain.ChemicalAnalysis
	InventoryLot       = domain.InventoryLot
	Product            = domain.Product
	RawMaterial        = domain.RawMaterial
	Quotation          = domain.Quotation
	StockMovement      = domain.StockMovement
	MetalCredit        = domain.MetalCredit
	MediaAttachment    = domain.MediaAttachment
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	RulesEngine        = domain.RulesEngine
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

// NewRulesEngine re-exports the domain constructor for callers configuring stores.
var NewRulesEngine = domain.NewRulesEngine

const (
	EntityPureMetalLot     = domain.EntityPureMetalLot
	EntityLotMovement      = domain.EntityLotMovement
	EntityChemicalReaction = domain.EntityChemicalReaction
	EntityRecoveryOrder    = domain.EntityRecoveryOrder
	EntityChemicalAnalysis = domain.EntityChemicalAnalysis
	EntityInventoryLot     = domain.EntityInventoryLot
	EntityProduct          = domain.EntityProduct
	EntityRawMaterial      = domain.EntityRawMaterial
	EntityQuotation        = domain.EntityQuotation
	EntityStockMovement    = domain.EntityStockMovement
	EntityMetalCredit      = domain.EntityMetalCredit
	EntityMediaAttachment  = domain.EntityMediaAttachment
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
