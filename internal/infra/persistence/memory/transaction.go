package memory

import (
	"fmt"
	"sort"
	"time"

	"metalcore/pkg/domain"
)

// CreatePureMetalLot stores a new lot within the transaction.
func (tx *transaction) CreatePureMetalLot(l PureMetalLot) (PureMetalLot, error) {
	if l.ID == "" {
		l.ID = tx.newID()
	}
	if _, exists := tx.state.lots[l.ID]; exists {
		return PureMetalLot{}, fmt.Errorf("pure metal lot %q already exists", l.ID)
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	l.Status = domain.LotStatusFor(l.InitialGrams, l.RemainingGrams)
	tx.state.lots[l.ID] = cloneLot(l)
	tx.recordChange(Change{Entity: domain.EntityPureMetalLot, Action: domain.ActionCreate, After: cloneLot(l)})
	return cloneLot(l), nil
}

// UpdatePureMetalLot mutates a lot using the provided mutator function. The
// status is recomputed from the resulting balances after every mutation.
func (tx *transaction) UpdatePureMetalLot(id string, mutator func(*PureMetalLot) error) (PureMetalLot, error) {
	current, ok := tx.state.lots[id]
	if !ok {
		return PureMetalLot{}, domain.WrapNotFound(domain.EntityPureMetalLot, id)
	}
	before := cloneLot(current)
	if err := mutator(&current); err != nil {
		return PureMetalLot{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	current.Status = domain.LotStatusFor(current.InitialGrams, current.RemainingGrams)
	tx.state.lots[id] = cloneLot(current)
	tx.recordChange(Change{Entity: domain.EntityPureMetalLot, Action: domain.ActionUpdate, Before: before, After: cloneLot(current)})
	return cloneLot(current), nil
}

// DeletePureMetalLot removes a lot that has no ledger history.
func (tx *transaction) DeletePureMetalLot(id string) error {
	current, ok := tx.state.lots[id]
	if !ok {
		return domain.WrapNotFound(domain.EntityPureMetalLot, id)
	}
	for _, movement := range tx.state.lotMovements {
		if movement.LotID == id {
			return fmt.Errorf("pure metal lot %q still referenced by movement %q", id, movement.ID)
		}
	}
	for _, reaction := range tx.state.reactions {
		for _, usage := range reaction.SourceLots {
			if usage.LotID == id {
				return fmt.Errorf("pure metal lot %q still referenced by reaction %q", id, reaction.ID)
			}
		}
	}
	delete(tx.state.lots, id)
	tx.recordChange(Change{Entity: domain.EntityPureMetalLot, Action: domain.ActionDelete, Before: cloneLot(current)})
	return nil
}

// CreateLotMovement appends an entry to a lot's movement ledger.
func (tx *transaction) CreateLotMovement(m LotMovement) (LotMovement, error) {
	if m.ID == "" {
		m.ID = tx.newID()
	}
	if _, exists := tx.state.lotMovements[m.ID]; exists {
		return LotMovement{}, fmt.Errorf("lot movement %q already exists", m.ID)
	}
	if _, ok := tx.state.lots[m.LotID]; !ok {
		return LotMovement{}, domain.WrapNotFound(domain.EntityPureMetalLot, m.LotID)
	}
	m.CreatedAt = tx.now
	m.UpdatedAt = tx.now
	tx.state.lotMovements[m.ID] = cloneLotMovement(m)
	tx.recordChange(Change{Entity: domain.EntityLotMovement, Action: domain.ActionCreate, After: cloneLotMovement(m)})
	return cloneLotMovement(m), nil
}

// CreateChemicalReaction stores a new reaction.
func (tx *transaction) CreateChemicalReaction(r ChemicalReaction) (ChemicalReaction, error) {
	if r.ID == "" {
		r.ID = tx.newID()
	}
	if _, exists := tx.state.reactions[r.ID]; exists {
		return ChemicalReaction{}, fmt.Errorf("chemical reaction %q already exists", r.ID)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.reactions[r.ID] = cloneReaction(r)
	tx.recordChange(Change{Entity: domain.EntityChemicalReaction, Action: domain.ActionCreate, After: cloneReaction(r)})
	return cloneReaction(r), nil
}

// UpdateChemicalReaction mutates a reaction.
func (tx *transaction) UpdateChemicalReaction(id string, mutator func(*ChemicalReaction) error) (ChemicalReaction, error) {
	current, ok := tx.state.reactions[id]
	if !ok {
		return ChemicalReaction{}, domain.WrapNotFound(domain.EntityChemicalReaction, id)
	}
	before := cloneReaction(current)
	if err := mutator(&current); err != nil {
		return ChemicalReaction{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.reactions[id] = cloneReaction(current)
	tx.recordChange(Change{Entity: domain.EntityChemicalReaction, Action: domain.ActionUpdate, Before: before, After: cloneReaction(current)})
	return cloneReaction(current), nil
}

// CreateRawMaterialUsage records raw material consumed by a reaction.
func (tx *transaction) CreateRawMaterialUsage(u RawMaterialUsage) (RawMaterialUsage, error) {
	if u.ID == "" {
		u.ID = tx.newID()
	}
	if _, exists := tx.state.materialUsages[u.ID]; exists {
		return RawMaterialUsage{}, fmt.Errorf("raw material usage %q already exists", u.ID)
	}
	if _, ok := tx.state.reactions[u.ReactionID]; !ok {
		return RawMaterialUsage{}, domain.WrapNotFound(domain.EntityChemicalReaction, u.ReactionID)
	}
	if _, ok := tx.state.rawMaterials[u.RawMaterialID]; !ok {
		return RawMaterialUsage{}, domain.WrapNotFound(domain.EntityRawMaterial, u.RawMaterialID)
	}
	u.CreatedAt = tx.now
	u.UpdatedAt = tx.now
	tx.state.materialUsages[u.ID] = u
	tx.recordChange(Change{Entity: domain.EntityRawMaterialUsage, Action: domain.ActionCreate, After: u})
	return u, nil
}

// CreateRecoveryOrder stores a new recovery order.
func (tx *transaction) CreateRecoveryOrder(o RecoveryOrder) (RecoveryOrder, error) {
	if o.ID == "" {
		o.ID = tx.newID()
	}
	if _, exists := tx.state.recoveryOrders[o.ID]; exists {
		return RecoveryOrder{}, fmt.Errorf("recovery order %q already exists", o.ID)
	}
	o.CreatedAt = tx.now
	o.UpdatedAt = tx.now
	tx.state.recoveryOrders[o.ID] = cloneRecoveryOrder(o)
	tx.recordChange(Change{Entity: domain.EntityRecoveryOrder, Action: domain.ActionCreate, After: cloneRecoveryOrder(o)})
	return cloneRecoveryOrder(o), nil
}

// UpdateRecoveryOrder mutates a recovery order.
func (tx *transaction) UpdateRecoveryOrder(id string, mutator func(*RecoveryOrder) error) (RecoveryOrder, error) {
	current, ok := tx.state.recoveryOrders[id]
	if !ok {
		return RecoveryOrder{}, domain.WrapNotFound(domain.EntityRecoveryOrder, id)
	}
	before := cloneRecoveryOrder(current)
	if err := mutator(&current); err != nil {
		return RecoveryOrder{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.recoveryOrders[id] = cloneRecoveryOrder(current)
	tx.recordChange(Change{Entity: domain.EntityRecoveryOrder, Action: domain.ActionUpdate, Before: before, After: cloneRecoveryOrder(current)})
	return cloneRecoveryOrder(current), nil
}

// CreateChemicalAnalysis stores a new analysis.
func (tx *transaction) CreateChemicalAnalysis(a ChemicalAnalysis) (ChemicalAnalysis, error) {
	if a.ID == "" {
		a.ID = tx.newID()
	}
	if _, exists := tx.state.analyses[a.ID]; exists {
		return ChemicalAnalysis{}, fmt.Errorf("chemical analysis %q already exists", a.ID)
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.analyses[a.ID] = cloneAnalysis(a)
	tx.recordChange(Change{Entity: domain.EntityChemicalAnalysis, Action: domain.ActionCreate, After: cloneAnalysis(a)})
	return cloneAnalysis(a), nil
}

// UpdateChemicalAnalysis mutates an analysis.
func (tx *transaction) UpdateChemicalAnalysis(id string, mutator func(*ChemicalAnalysis) error) (ChemicalAnalysis, error) {
	current, ok := tx.state.analyses[id]
	if !ok {
		return ChemicalAnalysis{}, domain.WrapNotFound(domain.EntityChemicalAnalysis, id)
	}
	before := cloneAnalysis(current)
	if err := mutator(&current); err != nil {
		return ChemicalAnalysis{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.analyses[id] = cloneAnalysis(current)
	tx.recordChange(Change{Entity: domain.EntityChemicalAnalysis, Action: domain.ActionUpdate, Before: before, After: cloneAnalysis(current)})
	return cloneAnalysis(current), nil
}

// DeleteChemicalAnalysis removes an analysis not linked to a recovery order.
func (tx *transaction) DeleteChemicalAnalysis(id string) error {
	current, ok := tx.state.analyses[id]
	if !ok {
		return domain.WrapNotFound(domain.EntityChemicalAnalysis, id)
	}
	if current.RecoveryOrderID != nil {
		return fmt.Errorf("chemical analysis %q still linked to recovery order %q", id, *current.RecoveryOrderID)
	}
	delete(tx.state.analyses, id)
	tx.recordChange(Change{Entity: domain.EntityChemicalAnalysis, Action: domain.ActionDelete, Before: cloneAnalysis(current)})
	return nil
}

// CreateInventoryLot stores a finished-product inventory lot.
func (tx *transaction) CreateInventoryLot(l InventoryLot) (InventoryLot, error) {
	if l.ID == "" {
		l.ID = tx.newID()
	}
	if _, exists := tx.state.inventoryLots[l.ID]; exists {
		return InventoryLot{}, fmt.Errorf("inventory lot %q already exists", l.ID)
	}
	if _, ok := tx.state.products[l.ProductID]; !ok {
		return InventoryLot{}, domain.WrapNotFound(domain.EntityProduct, l.ProductID)
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	tx.state.inventoryLots[l.ID] = l
	tx.recordChange(Change{Entity: domain.EntityInventoryLot, Action: domain.ActionCreate, After: l})
	return l, nil
}

// UpdateInventoryLot mutates an inventory lot.
func (tx *transaction) UpdateInventoryLot(id string, mutator func(*InventoryLot) error) (InventoryLot, error) {
	current, ok := tx.state.inventoryLots[id]
	if !ok {
		return InventoryLot{}, domain.WrapNotFound(domain.EntityInventoryLot, id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return InventoryLot{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.inventoryLots[id] = current
	tx.recordChange(Change{Entity: domain.EntityInventoryLot, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// CreateProduct stores a product master record.
func (tx *transaction) CreateProduct(p Product) (Product, error) {
	if p.ID == "" {
		p.ID = tx.newID()
	}
	if _, exists := tx.state.products[p.ID]; exists {
		return Product{}, fmt.Errorf("product %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.products[p.ID] = p
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionCreate, After: p})
	return p, nil
}

// UpdateProduct mutates a product.
func (tx *transaction) UpdateProduct(id string, mutator func(*Product) error) (Product, error) {
	current, ok := tx.state.products[id]
	if !ok {
		return Product{}, domain.WrapNotFound(domain.EntityProduct, id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Product{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.products[id] = current
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteProduct removes a product with no inventory or stock history.
func (tx *transaction) DeleteProduct(id string) error {
	current, ok := tx.state.products[id]
	if !ok {
		return domain.WrapNotFound(domain.EntityProduct, id)
	}
	for _, lot := range tx.state.inventoryLots {
		if lot.ProductID == id {
			return fmt.Errorf("product %q still referenced by inventory lot %q", id, lot.ID)
		}
	}
	for _, movement := range tx.state.stockMovements {
		if movement.ProductID == id {
			return fmt.Errorf("product %q still referenced by stock movement %q", id, movement.ID)
		}
	}
	delete(tx.state.products, id)
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateRawMaterial stores a raw material master record.
func (tx *transaction) CreateRawMaterial(m RawMaterial) (RawMaterial, error) {
	if m.ID == "" {
		m.ID = tx.newID()
	}
	if _, exists := tx.state.rawMaterials[m.ID]; exists {
		return RawMaterial{}, fmt.Errorf("raw material %q already exists", m.ID)
	}
	m.CreatedAt = tx.now
	m.UpdatedAt = tx.now
	tx.state.rawMaterials[m.ID] = m
	tx.recordChange(Change{Entity: domain.EntityRawMaterial, Action: domain.ActionCreate, After: m})
	return m, nil
}

// UpdateRawMaterial mutates a raw material.
func (tx *transaction) UpdateRawMaterial(id string, mutator func(*RawMaterial) error) (RawMaterial, error) {
	current, ok := tx.state.rawMaterials[id]
	if !ok {
		return RawMaterial{}, domain.WrapNotFound(domain.EntityRawMaterial, id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return RawMaterial{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.rawMaterials[id] = current
	tx.recordChange(Change{Entity: domain.EntityRawMaterial, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteRawMaterial removes a raw material with no usage history.
func (tx *transaction) DeleteRawMaterial(id string) error {
	current, ok := tx.state.rawMaterials[id]
	if !ok {
		return domain.WrapNotFound(domain.EntityRawMaterial, id)
	}
	for _, usage := range tx.state.materialUsages {
		if usage.RawMaterialID == id {
			return fmt.Errorf("raw material %q still referenced by usage %q", id, usage.ID)
		}
	}
	delete(tx.state.rawMaterials, id)
	tx.recordChange(Change{Entity: domain.EntityRawMaterial, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateQuotation stores a dated metal price.
func (tx *transaction) CreateQuotation(q Quotation) (Quotation, error) {
	if q.ID == "" {
		q.ID = tx.newID()
	}
	if _, exists := tx.state.quotations[q.ID]; exists {
		return Quotation{}, fmt.Errorf("quotation %q already exists", q.ID)
	}
	q.CreatedAt = tx.now
	q.UpdatedAt = tx.now
	tx.state.quotations[q.ID] = q
	tx.recordChange(Change{Entity: domain.EntityQuotation, Action: domain.ActionCreate, After: q})
	return q, nil
}

// DeleteQuotation removes a quotation.
func (tx *transaction) DeleteQuotation(id string) error {
	current, ok := tx.state.quotations[id]
	if !ok {
		return domain.WrapNotFound(domain.EntityQuotation, id)
	}
	delete(tx.state.quotations, id)
	tx.recordChange(Change{Entity: domain.EntityQuotation, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateStockMovement appends an entry to a product's stock ledger.
func (tx *transaction) CreateStockMovement(m StockMovement) (StockMovement, error) {
	if m.ID == "" {
		m.ID = tx.newID()
	}
	if _, exists := tx.state.stockMovements[m.ID]; exists {
		return StockMovement{}, fmt.Errorf("stock movement %q already exists", m.ID)
	}
	if _, ok := tx.state.products[m.ProductID]; !ok {
		return StockMovement{}, domain.WrapNotFound(domain.EntityProduct, m.ProductID)
	}
	m.CreatedAt = tx.now
	m.UpdatedAt = tx.now
	tx.state.stockMovements[m.ID] = cloneStockMovement(m)
	tx.recordChange(Change{Entity: domain.EntityStockMovement, Action: domain.ActionCreate, After: cloneStockMovement(m)})
	return cloneStockMovement(m), nil
}

// CreateMetalCredit records pure metal credited from a recovery.
func (tx *transaction) CreateMetalCredit(c MetalCredit) (MetalCredit, error) {
	if c.ID == "" {
		c.ID = tx.newID()
	}
	if _, exists := tx.state.metalCredits[c.ID]; exists {
		return MetalCredit{}, fmt.Errorf("metal credit %q already exists", c.ID)
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.metalCredits[c.ID] = cloneMetalCredit(c)
	tx.recordChange(Change{Entity: domain.EntityMetalCredit, Action: domain.ActionCreate, After: cloneMetalCredit(c)})
	return cloneMetalCredit(c), nil
}

// CreateMediaAttachment associates an uploaded object key with an entity.
func (tx *transaction) CreateMediaAttachment(m MediaAttachment) (MediaAttachment, error) {
	if m.ID == "" {
		m.ID = tx.newID()
	}
	if _, exists := tx.state.media[m.ID]; exists {
		return MediaAttachment{}, fmt.Errorf("media attachment %q already exists", m.ID)
	}
	m.CreatedAt = tx.now
	m.UpdatedAt = tx.now
	tx.state.media[m.ID] = cloneMedia(m)
	tx.recordChange(Change{Entity: domain.EntityMediaAttachment, Action: domain.ActionCreate, After: cloneMedia(m)})
	return cloneMedia(m), nil
}

// DeleteMediaAttachment removes a media association. Object bytes in the blob
// store are the caller's responsibility.
func (tx *transaction) DeleteMediaAttachment(id string) error {
	current, ok := tx.state.media[id]
	if !ok {
		return domain.WrapNotFound(domain.EntityMediaAttachment, id)
	}
	delete(tx.state.media, id)
	tx.recordChange(Change{Entity: domain.EntityMediaAttachment, Action: domain.ActionDelete, Before: cloneMedia(current)})
	return nil
}

// NextSequence increments and returns the named per-organization counter.
func (tx *transaction) NextSequence(organizationID string, kind domain.CounterKind, seed int64) (int64, error) {
	if organizationID == "" {
		return 0, domain.WrapValidation("organization id required for sequence")
	}
	key := counterKey(organizationID, kind)
	counter, ok := tx.state.counters[key]
	if !ok {
		counter = SequenceCounter{
			OrganizationID: organizationID,
			Kind:           kind,
			LastValue:      seed,
		}
		counter.ID = key
		counter.CreatedAt = tx.now
	} else {
		counter.LastValue++
	}
	counter.UpdatedAt = tx.now
	before, existed := tx.state.counters[key]
	tx.state.counters[key] = counter
	change := Change{Entity: domain.EntitySequenceCounter, Action: domain.ActionUpdate, After: counter}
	if existed {
		change.Before = before
	} else {
		change.Action = domain.ActionCreate
	}
	tx.recordChange(change)
	return counter.LastValue, nil
}

// FindPureMetalLot exposes lot lookup within the transaction scope.
func (tx *transaction) FindPureMetalLot(id string) (PureMetalLot, bool) {
	l, ok := tx.state.lots[id]
	if !ok {
		return PureMetalLot{}, false
	}
	return cloneLot(l), true
}

// FindChemicalReaction exposes reaction lookup within the transaction scope.
func (tx *transaction) FindChemicalReaction(id string) (ChemicalReaction, bool) {
	r, ok := tx.state.reactions[id]
	if !ok {
		return ChemicalReaction{}, false
	}
	return cloneReaction(r), true
}

// FindRecoveryOrder exposes recovery order lookup within the transaction scope.
func (tx *transaction) FindRecoveryOrder(id string) (RecoveryOrder, bool) {
	o, ok := tx.state.recoveryOrders[id]
	if !ok {
		return RecoveryOrder{}, false
	}
	return cloneRecoveryOrder(o), true
}

// FindChemicalAnalysis exposes analysis lookup within the transaction scope.
func (tx *transaction) FindChemicalAnalysis(id string) (ChemicalAnalysis, bool) {
	a, ok := tx.state.analyses[id]
	if !ok {
		return ChemicalAnalysis{}, false
	}
	return cloneAnalysis(a), true
}

// FindInventoryLot exposes inventory lot lookup within the transaction scope.
func (tx *transaction) FindInventoryLot(id string) (InventoryLot, bool) {
	l, ok := tx.state.inventoryLots[id]
	if !ok {
		return InventoryLot{}, false
	}
	return l, true
}

// FindProduct exposes product lookup within the transaction scope.
func (tx *transaction) FindProduct(id string) (Product, bool) {
	p, ok := tx.state.products[id]
	if !ok {
		return Product{}, false
	}
	return p, true
}

// FindRawMaterial exposes raw material lookup within the transaction scope.
func (tx *transaction) FindRawMaterial(id string) (RawMaterial, bool) {
	m, ok := tx.state.rawMaterials[id]
	if !ok {
		return RawMaterial{}, false
	}
	return m, true
}

// FindLatestQuotation returns the most recent quotation for the metal.
func (tx *transaction) FindLatestQuotation(organizationID string, metal domain.MetalType) (Quotation, bool) {
	return latestQuotation(&tx.state, organizationID, metal)
}

// FindQuotationAsOf returns the newest quotation dated on or before date.
func (tx *transaction) FindQuotationAsOf(organizationID string, metal domain.MetalType, date time.Time) (Quotation, bool) {
	return quotationAsOf(&tx.state, organizationID, metal, date)
}

func latestQuotation(state *memoryState, organizationID string, metal domain.MetalType) (Quotation, bool) {
	var best Quotation
	found := false
	for _, q := range state.quotations {
		if q.OrganizationID != organizationID || q.MetalType != metal {
			continue
		}
		if !found || q.Date.After(best.Date) {
			best = q
			found = true
		}
	}
	return best, found
}

func quotationAsOf(state *memoryState, organizationID string, metal domain.MetalType, date time.Time) (Quotation, bool) {
	var best Quotation
	found := false
	for _, q := range state.quotations {
		if q.OrganizationID != organizationID || q.MetalType != metal {
			continue
		}
		if q.Date.After(date) {
			continue
		}
		if !found || q.Date.After(best.Date) {
			best = q
			found = true
		}
	}
	return best, found
}

func sortedMovements(state *memoryState) []LotMovement {
	out := make([]LotMovement, 0, len(state.lotMovements))
	for _, m := range state.lotMovements {
		out = append(out, cloneLotMovement(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
