// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"metalcore/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// PureMetalLot aliases domain.PureMetalLot for in-memory persistence operations.
	PureMetalLot = domain.PureMetalLot
	// LotMovement aliases domain.LotMovement.
	LotMovement = domain.LotMovement
	// ChemicalReaction aliases domain.ChemicalReaction.
	ChemicalReaction = domain.ChemicalReaction
	// RawMaterialUsage aliases domain.RawMaterialUsage.
	RawMaterialUsage = domain.RawMaterialUsage
	// RecoveryOrder aliases domain.RecoveryOrder.
	RecoveryOrder = domain.RecoveryOrder
	// ChemicalAnalysis aliases domain.ChemicalAnalysis.
	ChemicalAnalysis = domain.ChemicalAnalysis
	// InventoryLot aliases domain.InventoryLot.
	InventoryLot = domain.InventoryLot
	// Product aliases domain.Product.
	Product = domain.Product
	// RawMaterial aliases domain.RawMaterial.
	RawMaterial = domain.RawMaterial
	// Quotation aliases domain.Quotation.
	Quotation = domain.Quotation
	// StockMovement aliases domain.StockMovement.
	StockMovement = domain.StockMovement
	// MetalCredit aliases domain.MetalCredit.
	MetalCredit = domain.MetalCredit
	// MediaAttachment aliases domain.MediaAttachment.
	MediaAttachment = domain.MediaAttachment
	// SequenceCounter aliases domain.SequenceCounter.
	SequenceCounter = domain.SequenceCounter
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

type memoryState struct {
	lots           map[string]PureMetalLot
	lotMovements   map[string]LotMovement
	reactions      map[string]ChemicalReaction
	materialUsages map[string]RawMaterialUsage
	recoveryOrders map[string]RecoveryOrder
	analyses       map[string]ChemicalAnalysis
	inventoryLots  map[string]InventoryLot
	products       map[string]Product
	rawMaterials   map[string]RawMaterial
	quotations     map[string]Quotation
	stockMovements map[string]StockMovement
	metalCredits   map[string]MetalCredit
	media          map[string]MediaAttachment
	counters       map[string]SequenceCounter
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Lots           map[string]PureMetalLot     `json:"lots"`
	LotMovements   map[string]LotMovement      `json:"lot_movements"`
	Reactions      map[string]ChemicalReaction `json:"reactions"`
	MaterialUsages map[string]RawMaterialUsage `json:"material_usages"`
	RecoveryOrders map[string]RecoveryOrder    `json:"recovery_orders"`
	Analyses       map[string]ChemicalAnalysis `json:"analyses"`
	InventoryLots  map[string]InventoryLot     `json:"inventory_lots"`
	Products       map[string]Product          `json:"products"`
	RawMaterials   map[string]RawMaterial      `json:"raw_materials"`
	Quotations     map[string]Quotation        `json:"quotations"`
	StockMovements map[string]StockMovement    `json:"stock_movements"`
	MetalCredits   map[string]MetalCredit      `json:"metal_credits"`
	Media          map[string]MediaAttachment  `json:"media"`
	Counters       map[string]SequenceCounter  `json:"counters"`
}

func newMemoryState() memoryState {
	return memoryState{
		lots:           make(map[string]PureMetalLot),
		lotMovements:   make(map[string]LotMovement),
		reactions:      make(map[string]ChemicalReaction),
		materialUsages: make(map[string]RawMaterialUsage),
		recoveryOrders: make(map[string]RecoveryOrder),
		analyses:       make(map[string]ChemicalAnalysis),
		inventoryLots:  make(map[string]InventoryLot),
		products:       make(map[string]Product),
		rawMaterials:   make(map[string]RawMaterial),
		quotations:     make(map[string]Quotation),
		stockMovements: make(map[string]StockMovement),
		metalCredits:   make(map[string]MetalCredit),
		media:          make(map[string]MediaAttachment),
		counters:       make(map[string]SequenceCounter),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Lots:           make(map[string]PureMetalLot, len(state.lots)),
		LotMovements:   make(map[string]LotMovement, len(state.lotMovements)),
		Reactions:      make(map[string]ChemicalReaction, len(state.reactions)),
		MaterialUsages: make(map[string]RawMaterialUsage, len(state.materialUsages)),
		RecoveryOrders: make(map[string]RecoveryOrder, len(state.recoveryOrders)),
		Analyses:       make(map[string]ChemicalAnalysis, len(state.analyses)),
		InventoryLots:  make(map[string]InventoryLot, len(state.inventoryLots)),
		Products:       make(map[string]Product, len(state.products)),
		RawMaterials:   make(map[string]RawMaterial, len(state.rawMaterials)),
		Quotations:     make(map[string]Quotation, len(state.quotations)),
		StockMovements: make(map[string]StockMovement, len(state.stockMovements)),
		MetalCredits:   make(map[string]MetalCredit, len(state.metalCredits)),
		Media:          make(map[string]MediaAttachment, len(state.media)),
		Counters:       make(map[string]SequenceCounter, len(state.counters)),
	}
	for k, v := range state.lots {
		s.Lots[k] = cloneLot(v)
	}
	for k, v := range state.lotMovements {
		s.LotMovements[k] = cloneLotMovement(v)
	}
	for k, v := range state.reactions {
		s.Reactions[k] = cloneReaction(v)
	}
	for k, v := range state.materialUsages {
		s.MaterialUsages[k] = v
	}
	for k, v := range state.recoveryOrders {
		s.RecoveryOrders[k] = cloneRecoveryOrder(v)
	}
	for k, v := range state.analyses {
		s.Analyses[k] = cloneAnalysis(v)
	}
	for k, v := range state.inventoryLots {
		s.InventoryLots[k] = v
	}
	for k, v := range state.products {
		s.Products[k] = v
	}
	for k, v := range state.rawMaterials {
		s.RawMaterials[k] = v
	}
	for k, v := range state.quotations {
		s.Quotations[k] = v
	}
	for k, v := range state.stockMovements {
		s.StockMovements[k] = cloneStockMovement(v)
	}
	for k, v := range state.metalCredits {
		s.MetalCredits[k] = cloneMetalCredit(v)
	}
	for k, v := range state.media {
		s.Media[k] = cloneMedia(v)
	}
	for k, v := range state.counters {
		s.Counters[k] = v
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Lots {
		state.lots[k] = cloneLot(v)
	}
	for k, v := range s.LotMovements {
		state.lotMovements[k] = cloneLotMovement(v)
	}
	for k, v := range s.Reactions {
		state.reactions[k] = cloneReaction(v)
	}
	for k, v := range s.MaterialUsages {
		state.materialUsages[k] = v
	}
	for k, v := range s.RecoveryOrders {
		state.recoveryOrders[k] = cloneRecoveryOrder(v)
	}
	for k, v := range s.Analyses {
		state.analyses[k] = cloneAnalysis(v)
	}
	for k, v := range s.InventoryLots {
		state.inventoryLots[k] = v
	}
	for k, v := range s.Products {
		state.products[k] = v
	}
	for k, v := range s.RawMaterials {
		state.rawMaterials[k] = v
	}
	for k, v := range s.Quotations {
		state.quotations[k] = v
	}
	for k, v := range s.StockMovements {
		state.stockMovements[k] = cloneStockMovement(v)
	}
	for k, v := range s.MetalCredits {
		state.metalCredits[k] = cloneMetalCredit(v)
	}
	for k, v := range s.Media {
		state.media[k] = cloneMedia(v)
	}
	for k, v := range s.Counters {
		state.counters[k] = v
	}
	return state
}

// migrateSnapshot restores referential integrity on imported snapshots so a
// partially corrupted dump never hydrates dangling references.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Lots == nil {
		snapshot.Lots = map[string]PureMetalLot{}
	}
	if snapshot.LotMovements == nil {
		snapshot.LotMovements = map[string]LotMovement{}
	}
	if snapshot.Reactions == nil {
		snapshot.Reactions = map[string]ChemicalReaction{}
	}
	if snapshot.MaterialUsages == nil {
		snapshot.MaterialUsages = map[string]RawMaterialUsage{}
	}
	if snapshot.RecoveryOrders == nil {
		snapshot.RecoveryOrders = map[string]RecoveryOrder{}
	}
	if snapshot.Analyses == nil {
		snapshot.Analyses = map[string]ChemicalAnalysis{}
	}
	if snapshot.InventoryLots == nil {
		snapshot.InventoryLots = map[string]InventoryLot{}
	}
	if snapshot.Products == nil {
		snapshot.Products = map[string]Product{}
	}
	if snapshot.RawMaterials == nil {
		snapshot.RawMaterials = map[string]RawMaterial{}
	}
	if snapshot.Quotations == nil {
		snapshot.Quotations = map[string]Quotation{}
	}
	if snapshot.StockMovements == nil {
		snapshot.StockMovements = map[string]StockMovement{}
	}
	if snapshot.MetalCredits == nil {
		snapshot.MetalCredits = map[string]MetalCredit{}
	}
	if snapshot.Media == nil {
		snapshot.Media = map[string]MediaAttachment{}
	}
	if snapshot.Counters == nil {
		snapshot.Counters = map[string]SequenceCounter{}
	}

	lotExists := func(id string) bool {
		_, ok := snapshot.Lots[id]
		return ok
	}
	reactionExists := func(id string) bool {
		_, ok := snapshot.Reactions[id]
		return ok
	}
	orderExists := func(id string) bool {
		_, ok := snapshot.RecoveryOrders[id]
		return ok
	}
	productExists := func(id string) bool {
		_, ok := snapshot.Products[id]
		return ok
	}
	rawMaterialExists := func(id string) bool {
		_, ok := snapshot.RawMaterials[id]
		return ok
	}
	analysisExists := func(id string) bool {
		_, ok := snapshot.Analyses[id]
		return ok
	}

	for id, movement := range snapshot.LotMovements {
		if movement.LotID == "" || !lotExists(movement.LotID) {
			delete(snapshot.LotMovements, id)
		}
	}

	for id, usage := range snapshot.MaterialUsages {
		if !reactionExists(usage.ReactionID) || !rawMaterialExists(usage.RawMaterialID) {
			delete(snapshot.MaterialUsages, id)
		}
	}

	for id, analysis := range snapshot.Analyses {
		if analysis.RecoveryOrderID != nil && !orderExists(*analysis.RecoveryOrderID) {
			analysis.RecoveryOrderID = nil
			snapshot.Analyses[id] = analysis
		}
	}

	for id, order := range snapshot.RecoveryOrders {
		if filtered, changed := filterIDs(order.AnalysisIDs, analysisExists); changed {
			order.AnalysisIDs = filtered
		}
		if order.ResidueAnalysisID != nil && !analysisExists(*order.ResidueAnalysisID) {
			order.ResidueAnalysisID = nil
		}
		snapshot.RecoveryOrders[id] = order
	}

	for id, movement := range snapshot.StockMovements {
		if movement.ProductID == "" || !productExists(movement.ProductID) {
			delete(snapshot.StockMovements, id)
		}
	}

	for id, lot := range snapshot.InventoryLots {
		if lot.ProductID == "" || !productExists(lot.ProductID) {
			delete(snapshot.InventoryLots, id)
		}
	}

	// Lot statuses are derived state; recompute them from the balances so a
	// hand-edited snapshot cannot smuggle an inconsistent status in.
	for id, lot := range snapshot.Lots {
		lot.Status = domain.LotStatusFor(lot.InitialGrams, lot.RemainingGrams)
		snapshot.Lots[id] = lot
	}

	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.lots {
		cloned.lots[k] = cloneLot(v)
	}
	for k, v := range s.lotMovements {
		cloned.lotMovements[k] = cloneLotMovement(v)
	}
	for k, v := range s.reactions {
		cloned.reactions[k] = cloneReaction(v)
	}
	for k, v := range s.materialUsages {
		cloned.materialUsages[k] = v
	}
	for k, v := range s.recoveryOrders {
		cloned.recoveryOrders[k] = cloneRecoveryOrder(v)
	}
	for k, v := range s.analyses {
		cloned.analyses[k] = cloneAnalysis(v)
	}
	for k, v := range s.inventoryLots {
		cloned.inventoryLots[k] = v
	}
	for k, v := range s.products {
		cloned.products[k] = v
	}
	for k, v := range s.rawMaterials {
		cloned.rawMaterials[k] = v
	}
	for k, v := range s.quotations {
		cloned.quotations[k] = v
	}
	for k, v := range s.stockMovements {
		cloned.stockMovements[k] = cloneStockMovement(v)
	}
	for k, v := range s.metalCredits {
		cloned.metalCredits[k] = cloneMetalCredit(v)
	}
	for k, v := range s.media {
		cloned.media[k] = cloneMedia(v)
	}
	for k, v := range s.counters {
		cloned.counters[k] = v
	}
	return cloned
}

func ptrCopy[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneLot(l PureMetalLot) PureMetalLot {
	cp := l
	cp.SourceID = ptrCopy(l.SourceID)
	cp.Notes = ptrCopy(l.Notes)
	return cp
}

func cloneLotMovement(m LotMovement) LotMovement {
	cp := m
	cp.Notes = ptrCopy(m.Notes)
	return cp
}

func cloneReaction(r ChemicalReaction) ChemicalReaction {
	cp := r
	cp.SourceLots = append([]domain.ReactionLotUsage(nil), r.SourceLots...)
	cp.EstimatedGoldFraction = ptrCopy(r.EstimatedGoldFraction)
	cp.EstimatedOutputGrams = ptrCopy(r.EstimatedOutputGrams)
	cp.OutputProductGrams = ptrCopy(r.OutputProductGrams)
	cp.OutputGoldGrams = ptrCopy(r.OutputGoldGrams)
	cp.OutputBasketLeftoverGrams = ptrCopy(r.OutputBasketLeftoverGrams)
	cp.OutputDistillateLeftoverGrams = ptrCopy(r.OutputDistillateLeftoverGrams)
	cp.FinalPurity = ptrCopy(r.FinalPurity)
	cp.ProductionBatchID = ptrCopy(r.ProductionBatchID)
	cp.Notes = ptrCopy(r.Notes)
	return cp
}

func cloneRecoveryOrder(o RecoveryOrder) RecoveryOrder {
	cp := o
	cp.AnalysisIDs = append([]string(nil), o.AnalysisIDs...)
	cp.StartedAt = ptrCopy(o.StartedAt)
	cp.CompletedAt = ptrCopy(o.CompletedAt)
	cp.ProcessedVolumeGrams = ptrCopy(o.ProcessedVolumeGrams)
	cp.FinalPurity = ptrCopy(o.FinalPurity)
	cp.RecoveredPureGrams = ptrCopy(o.RecoveredPureGrams)
	cp.ResidueGrams = ptrCopy(o.ResidueGrams)
	cp.ResidueAnalysisID = ptrCopy(o.ResidueAnalysisID)
	return cp
}

func cloneAnalysis(a ChemicalAnalysis) ChemicalAnalysis {
	cp := a
	cp.ClientID = ptrCopy(a.ClientID)
	cp.Purity = ptrCopy(a.Purity)
	cp.RecoveryOrderID = ptrCopy(a.RecoveryOrderID)
	cp.Notes = ptrCopy(a.Notes)
	return cp
}

func cloneStockMovement(m StockMovement) StockMovement {
	cp := m
	cp.InventoryLotID = ptrCopy(m.InventoryLotID)
	return cp
}

func cloneMetalCredit(c MetalCredit) MetalCredit {
	cp := c
	cp.ClientID = ptrCopy(c.ClientID)
	return cp
}

func cloneMedia(m MediaAttachment) MediaAttachment {
	cp := m
	cp.Notes = ptrCopy(m.Notes)
	return cp
}

func filterIDs(values []string, exists func(string) bool) ([]string, bool) {
	if len(values) == 0 {
		return nil, false
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	changed := false
	for _, v := range values {
		if _, ok := seen[v]; ok {
			changed = true
			continue
		}
		seen[v] = struct{}{}
		if !exists(v) {
			changed = true
			continue
		}
		out = append(out, v)
	}
	if !changed && len(out) == len(values) {
		return values, false
	}
	return out, true
}

func counterKey(organizationID string, kind domain.CounterKind) string {
	return organizationID + "/" + string(kind)
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine for integration points.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the time provider. Intended for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// GetPureMetalLot returns a lot by ID.
func (s *Store) GetPureMetalLot(id string) (PureMetalLot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lot, ok := s.state.lots[id]
	if !ok {
		return PureMetalLot{}, false
	}
	return cloneLot(lot), true
}

// ListPureMetalLots returns all lots.
func (s *Store) ListPureMetalLots() []PureMetalLot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PureMetalLot, 0, len(s.state.lots))
	for _, lot := range s.state.lots {
		out = append(out, cloneLot(lot))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetChemicalReaction returns a reaction by ID.
func (s *Store) GetChemicalReaction(id string) (ChemicalReaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.reactions[id]
	if !ok {
		return ChemicalReaction{}, false
	}
	return cloneReaction(r), true
}

// ListChemicalReactions returns all reactions.
func (s *Store) ListChemicalReactions() []ChemicalReaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ChemicalReaction, 0, len(s.state.reactions))
	for _, r := range s.state.reactions {
		out = append(out, cloneReaction(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetRecoveryOrder returns a recovery order by ID.
func (s *Store) GetRecoveryOrder(id string) (RecoveryOrder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.state.recoveryOrders[id]
	if !ok {
		return RecoveryOrder{}, false
	}
	return cloneRecoveryOrder(o), true
}

// ListRecoveryOrders returns all recovery orders.
func (s *Store) ListRecoveryOrders() []RecoveryOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RecoveryOrder, 0, len(s.state.recoveryOrders))
	for _, o := range s.state.recoveryOrders {
		out = append(out, cloneRecoveryOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListChemicalAnalyses returns all analyses.
func (s *Store) ListChemicalAnalyses() []ChemicalAnalysis {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ChemicalAnalysis, 0, len(s.state.analyses))
	for _, a := range s.state.analyses {
		out = append(out, cloneAnalysis(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListInventoryLots returns all inventory lots.
func (s *Store) ListInventoryLots() []InventoryLot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]InventoryLot, 0, len(s.state.inventoryLots))
	for _, l := range s.state.inventoryLots {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListLotMovements returns all lot movements.
func (s *Store) ListLotMovements() []LotMovement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LotMovement, 0, len(s.state.lotMovements))
	for _, m := range s.state.lotMovements {
		out = append(out, cloneLotMovement(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

func (tx *transaction) newID() string { return tx.store.newID() }
