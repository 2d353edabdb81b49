package memory

import (
	"sort"
	"time"

	"metalcore/pkg/domain"
)

var _ domain.TransactionView = (*transactionView)(nil)

// transactionView exposes read-only access over a state clone. It is handed
// to rules during evaluation and to callers of View and Snapshot.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) *transactionView {
	return &transactionView{state: state}
}

func (v *transactionView) ListPureMetalLots() []PureMetalLot {
	out := make([]PureMetalLot, 0, len(v.state.lots))
	for _, l := range v.state.lots {
		out = append(out, cloneLot(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v *transactionView) ListLotMovements() []LotMovement {
	return sortedMovements(v.state)
}

func (v *transactionView) ListChemicalReactions() []ChemicalReaction {
	out := make([]ChemicalReaction, 0, len(v.state.reactions))
	for _, r := range v.state.reactions {
		out = append(out, cloneReaction(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v *transactionView) ListRecoveryOrders() []RecoveryOrder {
	out := make([]RecoveryOrder, 0, len(v.state.recoveryOrders))
	for _, o := range v.state.recoveryOrders {
		out = append(out, cloneRecoveryOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v *transactionView) ListChemicalAnalyses() []ChemicalAnalysis {
	out := make([]ChemicalAnalysis, 0, len(v.state.analyses))
	for _, a := range v.state.analyses {
		out = append(out, cloneAnalysis(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v *transactionView) ListInventoryLots() []InventoryLot {
	out := make([]InventoryLot, 0, len(v.state.inventoryLots))
	for _, l := range v.state.inventoryLots {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v *transactionView) ListRawMaterialUsages() []RawMaterialUsage {
	out := make([]RawMaterialUsage, 0, len(v.state.materialUsages))
	for _, u := range v.state.materialUsages {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v *transactionView) ListProducts() []Product {
	out := make([]Product, 0, len(v.state.products))
	for _, p := range v.state.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v *transactionView) ListRawMaterials() []RawMaterial {
	out := make([]RawMaterial, 0, len(v.state.rawMaterials))
	for _, m := range v.state.rawMaterials {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v *transactionView) ListQuotations() []Quotation {
	out := make([]Quotation, 0, len(v.state.quotations))
	for _, q := range v.state.quotations {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v *transactionView) ListStockMovements() []StockMovement {
	out := make([]StockMovement, 0, len(v.state.stockMovements))
	for _, m := range v.state.stockMovements {
		out = append(out, cloneStockMovement(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v *transactionView) ListMetalCredits() []MetalCredit {
	out := make([]MetalCredit, 0, len(v.state.metalCredits))
	for _, c := range v.state.metalCredits {
		out = append(out, cloneMetalCredit(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v *transactionView) ListMediaAttachments() []MediaAttachment {
	out := make([]MediaAttachment, 0, len(v.state.media))
	for _, m := range v.state.media {
		out = append(out, cloneMedia(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v *transactionView) FindPureMetalLot(id string) (PureMetalLot, bool) {
	l, ok := v.state.lots[id]
	if !ok {
		return PureMetalLot{}, false
	}
	return cloneLot(l), true
}

func (v *transactionView) FindChemicalReaction(id string) (ChemicalReaction, bool) {
	r, ok := v.state.reactions[id]
	if !ok {
		return ChemicalReaction{}, false
	}
	return cloneReaction(r), true
}

func (v *transactionView) FindRecoveryOrder(id string) (RecoveryOrder, bool) {
	o, ok := v.state.recoveryOrders[id]
	if !ok {
		return RecoveryOrder{}, false
	}
	return cloneRecoveryOrder(o), true
}

func (v *transactionView) FindChemicalAnalysis(id string) (ChemicalAnalysis, bool) {
	a, ok := v.state.analyses[id]
	if !ok {
		return ChemicalAnalysis{}, false
	}
	return cloneAnalysis(a), true
}

func (v *transactionView) FindInventoryLot(id string) (InventoryLot, bool) {
	l, ok := v.state.inventoryLots[id]
	if !ok {
		return InventoryLot{}, false
	}
	return l, true
}

func (v *transactionView) FindProduct(id string) (Product, bool) {
	p, ok := v.state.products[id]
	if !ok {
		return Product{}, false
	}
	return p, true
}

func (v *transactionView) FindRawMaterial(id string) (RawMaterial, bool) {
	m, ok := v.state.rawMaterials[id]
	if !ok {
		return RawMaterial{}, false
	}
	return m, true
}

func (v *transactionView) FindLatestQuotation(organizationID string, metal domain.MetalType) (Quotation, bool) {
	return latestQuotation(v.state, organizationID, metal)
}

func (v *transactionView) FindQuotationAsOf(organizationID string, metal domain.MetalType, date time.Time) (Quotation, bool) {
	return quotationAsOf(v.state, organizationID, metal, date)
}
