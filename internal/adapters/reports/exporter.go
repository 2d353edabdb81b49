// Package reports renders ledger snapshots into downloadable artifacts.
// Exports run asynchronously on a single worker; artifacts land in a blob
// store under reports/<kind>/<id>.<ext>.
package reports

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"metalcore/internal/blob"
	"metalcore/internal/core"
)

// Format selects an artifact encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Kind selects which slice of the ledger a report covers.
type Kind string

const (
	KindLotBalances    Kind = "lot_balances"
	KindReactions      Kind = "reactions"
	KindRecoveryOrders Kind = "recovery_orders"
	KindInventoryLots  Kind = "inventory_lots"
)

// Status describes the lifecycle stage of an export request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Artifact captures one stored report file.
type Artifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record tracks an export request and its resulting artifacts.
type Record struct {
	ID             string     `json:"id"`
	Kind           Kind       `json:"kind"`
	OrganizationID string     `json:"organization_id,omitempty"`
	Formats        []Format   `json:"formats"`
	Status         Status     `json:"status"`
	Error          string     `json:"error,omitempty"`
	Artifacts      []Artifact `json:"artifacts,omitempty"`
	RequestedBy    string     `json:"requested_by,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

func (r *Record) copy() Record {
	snapshot := *r
	snapshot.Formats = append([]Format(nil), r.Formats...)
	snapshot.Artifacts = append([]Artifact(nil), r.Artifacts...)
	return snapshot
}

// Input represents an enqueue request for the worker.
type Input struct {
	Kind           Kind
	OrganizationID string
	Formats        []Format
	RequestedBy    string
	Reason         string
}

// AuditLogger records export audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures who exported what and how it ended.
type AuditEntry struct {
	ID             string    `json:"id"`
	Kind           Kind      `json:"kind"`
	OrganizationID string    `json:"organization_id,omitempty"`
	Actor          string    `json:"actor,omitempty"`
	Status         Status    `json:"status"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Worker renders report exports asynchronously.
type Worker struct {
	svc   *core.Service
	store blob.Store
	audit AuditLogger

	queue chan task
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	id    string
	input Input
}

// NewWorker constructs an export worker over the given service and artifact
// store. The store may be nil, in which case payloads are rendered and
// discarded (status tracking still works; useful in tests).
func NewWorker(svc *core.Service, store blob.Store, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		svc:    svc,
		store:  store,
		audit:  audit,
		queue:  make(chan task, 32),
		jobs:   make(map[string]*Record),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for in-flight work.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			w.process(t)
		}
	}
}

// Enqueue schedules a report export and returns the queued record.
func (w *Worker) Enqueue(ctx context.Context, input Input) (Record, error) {
	if w.svc == nil {
		return Record{}, fmt.Errorf("report service not configured")
	}
	if !knownKind(input.Kind) {
		return Record{}, fmt.Errorf("unknown report kind %q", input.Kind)
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatCSV}
	}
	uniq := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{})
	for _, format := range formats {
		if format != FormatJSON && format != FormatCSV {
			return Record{}, fmt.Errorf("unsupported format %q", format)
		}
		if _, dup := seen[format]; dup {
			continue
		}
		uniq = append(uniq, format)
		seen[format] = struct{}{}
	}

	id := newID()
	now := time.Now().UTC()
	record := Record{
		ID:             id,
		Kind:           input.Kind,
		OrganizationID: input.OrganizationID,
		Formats:        uniq,
		Status:         StatusQueued,
		RequestedBy:    input.RequestedBy,
		Reason:         input.Reason,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	snapshot := record.copy()
	w.mu.Unlock()

	if w.audit != nil {
		w.audit.Record(ctx, AuditEntry{
			ID:             newID(),
			Kind:           input.Kind,
			OrganizationID: input.OrganizationID,
			Actor:          input.RequestedBy,
			Status:         StatusQueued,
			Reason:         input.Reason,
			OccurredAt:     now,
		})
	}

	select {
	case w.queue <- task{id: id, input: input}:
	default:
		return Record{}, fmt.Errorf("export queue full")
	}
	return snapshot, nil
}

// Get returns a snapshot of the export record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(t task) {
	w.updateStatus(t.id, StatusRunning, "")

	table, err := w.buildTable(t.input.Kind, t.input.OrganizationID)
	if err != nil {
		w.fail(t.id, err.Error())
		return
	}

	record, ok := w.Get(t.id)
	if !ok {
		return
	}
	artifacts := make([]Artifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		payload, contentType, err := render(table, format)
		if err != nil {
			w.fail(t.id, fmt.Sprintf("render %s: %v", format, err))
			return
		}
		artifact := Artifact{
			Key:         fmt.Sprintf("reports/%s/%s.%s", t.input.Kind, t.id, format),
			Format:      format,
			ContentType: contentType,
			SizeBytes:   int64(len(payload)),
			CreatedAt:   time.Now().UTC(),
		}
		if w.store != nil {
			if _, err := w.store.Put(w.ctx, artifact.Key, bytes.NewReader(payload), blob.PutOptions{ContentType: contentType}); err != nil {
				w.fail(t.id, fmt.Sprintf("store artifact: %v", err))
				return
			}
		}
		artifacts = append(artifacts, artifact)
	}

	now := time.Now().UTC()
	w.mu.Lock()
	if job, ok := w.jobs[t.id]; ok {
		job.Status = StatusSucceeded
		job.Artifacts = artifacts
		job.UpdatedAt = now
		job.CompletedAt = &now
	}
	w.mu.Unlock()

	if w.audit != nil {
		w.audit.Record(w.ctx, AuditEntry{
			ID:             newID(),
			Kind:           t.input.Kind,
			OrganizationID: t.input.OrganizationID,
			Actor:          t.input.RequestedBy,
			Status:         StatusSucceeded,
			OccurredAt:     now,
		})
	}
}

func (w *Worker) updateStatus(id string, status Status, errMsg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if job, ok := w.jobs[id]; ok {
		job.Status = status
		job.Error = errMsg
		job.UpdatedAt = time.Now().UTC()
	}
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	var input Input
	if job, ok := w.jobs[id]; ok {
		job.Status = StatusFailed
		job.Error = reason
		job.UpdatedAt = now
		job.CompletedAt = &now
		input = Input{Kind: job.Kind, OrganizationID: job.OrganizationID, RequestedBy: job.RequestedBy}
	}
	w.mu.Unlock()

	if w.audit != nil {
		w.audit.Record(w.ctx, AuditEntry{
			ID:             newID(),
			Kind:           input.Kind,
			OrganizationID: input.OrganizationID,
			Actor:          input.RequestedBy,
			Status:         StatusFailed,
			Reason:         reason,
			OccurredAt:     now,
		})
	}
}

// table is an ordered column set with row values already stringified for CSV;
// JSON renders from the same cells keyed by column name.
type table struct {
	columns []string
	rows    [][]string
}

func (w *Worker) buildTable(kind Kind, org string) (table, error) {
	switch kind {
	case KindLotBalances:
		return w.lotBalancesTable(org), nil
	case KindReactions:
		return w.reactionsTable(org), nil
	case KindRecoveryOrders:
		return w.recoveryOrdersTable(org), nil
	case KindInventoryLots:
		return w.inventoryLotsTable(org), nil
	default:
		return table{}, fmt.Errorf("unknown report kind %q", kind)
	}
}

func (w *Worker) lotBalancesTable(org string) table {
	t := table{columns: []string{"lot_number", "metal_type", "source_type", "status", "purity", "initial_grams", "remaining_grams"}}
	for _, lot := range w.svc.ListLots() {
		if org != "" && lot.OrganizationID != org {
			continue
		}
		t.rows = append(t.rows, []string{
			lot.LotNumber,
			string(lot.MetalType),
			string(lot.SourceType),
			string(lot.Status),
			lot.Purity.String(),
			lot.InitialGrams.String(),
			lot.RemainingGrams.String(),
		})
	}
	return t
}

func (w *Worker) reactionsTable(org string) table {
	t := table{columns: []string{"reaction_number", "status", "reaction_date", "input_gold_grams", "output_product_grams", "output_gold_grams", "basket_leftover_grams", "distillate_leftover_grams"}}
	for _, reaction := range w.svc.ListReactions() {
		if org != "" && reaction.OrganizationID != org {
			continue
		}
		t.rows = append(t.rows, []string{
			reaction.ReactionNumber,
			string(reaction.Status),
			reaction.ReactionDate.UTC().Format(time.RFC3339),
			reaction.InputGoldGrams.String(),
			decimalOrEmpty(reaction.OutputProductGrams),
			decimalOrEmpty(reaction.OutputGoldGrams),
			decimalOrEmpty(reaction.OutputBasketLeftoverGrams),
			decimalOrEmpty(reaction.OutputDistillateLeftoverGrams),
		})
	}
	return t
}

func (w *Worker) recoveryOrdersTable(org string) table {
	t := table{columns: []string{"order_number", "status", "metal_type", "gross_estimated_grams", "processed_grams", "final_purity", "result_unit", "recovered_pure_grams", "residue_grams"}}
	for _, order := range w.svc.ListRecoveryOrders() {
		if org != "" && order.OrganizationID != org {
			continue
		}
		t.rows = append(t.rows, []string{
			order.OrderNumber,
			string(order.Status),
			string(order.MetalType),
			order.TotalGrossEstimatedGrams.String(),
			decimalOrEmpty(order.ProcessedVolumeGrams),
			decimalOrEmpty(order.FinalPurity),
			order.ResultUnit,
			decimalOrEmpty(order.RecoveredPureGrams),
			decimalOrEmpty(order.ResidueGrams),
		})
	}
	return t
}

func (w *Worker) inventoryLotsTable(org string) table {
	t := table{columns: []string{"batch_number", "product_id", "source_type", "quantity", "remaining_quantity", "cost_per_unit", "received_at"}}
	for _, lot := range w.svc.ListInventoryLots() {
		if org != "" && lot.OrganizationID != org {
			continue
		}
		t.rows = append(t.rows, []string{
			lot.BatchNumber,
			lot.ProductID,
			string(lot.SourceType),
			lot.Quantity.String(),
			lot.RemainingQuantity.String(),
			lot.CostPerUnit.String(),
			lot.ReceivedAt.UTC().Format(time.RFC3339),
		})
	}
	return t
}

func render(t table, format Format) ([]byte, string, error) {
	switch format {
	case FormatCSV:
		var buf bytes.Buffer
		writer := csv.NewWriter(&buf)
		if err := writer.Write(t.columns); err != nil {
			return nil, "", err
		}
		for _, row := range t.rows {
			if err := writer.Write(row); err != nil {
				return nil, "", err
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "text/csv", nil
	case FormatJSON:
		objects := make([]map[string]string, 0, len(t.rows))
		for _, row := range t.rows {
			obj := make(map[string]string, len(t.columns))
			for i, col := range t.columns {
				obj[col] = row[i]
			}
			objects = append(objects, obj)
		}
		payload, err := json.MarshalIndent(objects, "", "  ")
		if err != nil {
			return nil, "", err
		}
		return payload, "application/json", nil
	default:
		return nil, "", fmt.Errorf("unsupported format %q", format)
	}
}

func knownKind(kind Kind) bool {
	switch kind {
	case KindLotBalances, KindReactions, KindRecoveryOrders, KindInventoryLots:
		return true
	}
	return false
}

func decimalOrEmpty(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return strings.ReplaceAll(time.Now().UTC().Format("20060102150405.000000000"), ".", "")
	}
	return hex.EncodeToString(b[:])
}
