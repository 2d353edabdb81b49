package reports

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"metalcore/internal/blob"
	"metalcore/internal/core"
	"metalcore/pkg/domain"
)

type recordingAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (r *recordingAudit) Record(_ context.Context, entry AuditEntry) {
	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()
}

func (r *recordingAudit) snapshot() []AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AuditEntry(nil), r.entries...)
}

func seedLot(t *testing.T, svc *core.Service, org, grams string) core.PureMetalLot {
	t.Helper()
	lot, _, err := svc.CreateLot(context.Background(), core.CreateLotParams{
		OrganizationID: org,
		MetalType:      domain.MetalGold,
		SourceType:     domain.LotSourcePurchase,
		InitialGrams:   decimal.RequireFromString(grams),
		Purity:         decimal.RequireFromString("0.999"),
	})
	if err != nil {
		t.Fatalf("seed lot: %v", err)
	}
	return lot
}

func waitFor(t *testing.T, w *Worker, id string) Record {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		record, ok := w.Get(id)
		if !ok {
			t.Fatalf("export %s vanished", id)
		}
		if record.Status == StatusSucceeded || record.Status == StatusFailed {
			return record
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("export %s did not finish", id)
	return Record{}
}

func TestEnqueueValidation(t *testing.T) {
	ctx := context.Background()

	w := NewWorker(nil, nil, nil)
	if _, err := w.Enqueue(ctx, Input{Kind: KindLotBalances}); err == nil {
		t.Fatal("expected error when service nil")
	}

	svc := core.NewInMemoryService(nil)
	w = NewWorker(svc, nil, nil)
	if _, err := w.Enqueue(ctx, Input{Kind: "balance_sheet"}); err == nil {
		t.Fatal("expected unknown kind error")
	}
	if _, err := w.Enqueue(ctx, Input{Kind: KindLotBalances, Formats: []Format{"xlsx"}}); err == nil {
		t.Fatal("expected unsupported format error")
	}

	record, err := w.Enqueue(ctx, Input{Kind: KindLotBalances, Formats: []Format{FormatJSON, FormatJSON, FormatCSV}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(record.Formats) != 2 || record.Formats[0] != FormatJSON || record.Formats[1] != FormatCSV {
		t.Fatalf("formats after dedup: %v", record.Formats)
	}
	if record.Status != StatusQueued {
		t.Fatalf("status: %s", record.Status)
	}
}

func TestExportLotBalancesFiltersOrganization(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(nil)
	seedLot(t, svc, "org-1", "500")
	seedLot(t, svc, "org-1", "250")
	seedLot(t, svc, "org-2", "900")

	store := blob.NewMemory()
	audit := &recordingAudit{}
	w := NewWorker(svc, store, audit)
	w.Start()
	defer func() {
		if err := w.Stop(context.Background()); err != nil {
			t.Fatalf("stop: %v", err)
		}
	}()

	record, err := w.Enqueue(ctx, Input{Kind: KindLotBalances, OrganizationID: "org-1", RequestedBy: "auditor"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	done := waitFor(t, w, record.ID)
	if done.Status != StatusSucceeded {
		t.Fatalf("status %s error %q", done.Status, done.Error)
	}
	if len(done.Artifacts) != 2 || done.CompletedAt == nil {
		t.Fatalf("artifacts: %+v", done.Artifacts)
	}

	var jsonKey, csvKey string
	for _, artifact := range done.Artifacts {
		switch artifact.Format {
		case FormatJSON:
			jsonKey = artifact.Key
		case FormatCSV:
			csvKey = artifact.Key
		}
		if artifact.SizeBytes <= 0 {
			t.Fatalf("empty artifact: %+v", artifact)
		}
	}

	_, rc, err := store.Get(ctx, jsonKey)
	if err != nil {
		t.Fatalf("get json artifact: %v", err)
	}
	payload, _ := io.ReadAll(rc)
	_ = rc.Close()
	var rows []map[string]string
	if err := json.Unmarshal(payload, &rows); err != nil {
		t.Fatalf("decode json artifact: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 org-1 rows, got %d", len(rows))
	}
	if rows[0]["lot_number"] != "LMP-000001" || rows[0]["remaining_grams"] != "500" {
		t.Fatalf("row: %+v", rows[0])
	}

	_, rc, err = store.Get(ctx, csvKey)
	if err != nil {
		t.Fatalf("get csv artifact: %v", err)
	}
	csvPayload, _ := io.ReadAll(rc)
	_ = rc.Close()
	lines := strings.Split(strings.TrimSpace(string(csvPayload)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "lot_number,") {
		t.Fatalf("header: %q", lines[0])
	}
	if strings.Contains(string(csvPayload), "900") {
		t.Fatal("org-2 lot leaked into filtered report")
	}

	entries := audit.snapshot()
	if len(entries) != 2 || entries[0].Status != StatusQueued || entries[1].Status != StatusSucceeded {
		t.Fatalf("audit trail: %+v", entries)
	}
	if entries[0].Actor != "auditor" {
		t.Fatalf("actor: %q", entries[0].Actor)
	}
}

func TestExportRecoveryOrdersIncludesOutcomeColumns(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(nil)

	analysis, _, err := svc.CreateAnalysis(ctx, core.CreateAnalysisParams{
		OrganizationID: "org-1",
		MetalType:      domain.MetalGold,
		EntryGrams:     decimal.RequireFromString("120"),
	})
	if err != nil {
		t.Fatalf("create analysis: %v", err)
	}
	if _, _, err := svc.RegisterAnalysisResult(ctx, analysis.ID, decimal.RequireFromString("0.75")); err != nil {
		t.Fatalf("register result: %v", err)
	}
	if _, _, err := svc.ApproveAnalysisForRecovery(ctx, analysis.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	order, _, err := svc.CreateRecoveryOrder(ctx, "org-1", domain.MetalGold, []string{analysis.ID})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	w := NewWorker(svc, blob.NewMemory(), nil)
	w.Start()
	defer func() { _ = w.Stop(context.Background()) }()

	record, err := w.Enqueue(ctx, Input{Kind: KindRecoveryOrders, Formats: []Format{FormatCSV}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	done := waitFor(t, w, record.ID)
	if done.Status != StatusSucceeded {
		t.Fatalf("status %s error %q", done.Status, done.Error)
	}

	_, rc, err := w.store.Get(ctx, done.Artifacts[0].Key)
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	payload, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !strings.Contains(string(payload), order.OrderNumber) || !strings.Contains(string(payload), "90") {
		t.Fatalf("csv missing order data: %s", payload)
	}
}

func TestEnqueueQueueFull(t *testing.T) {
	svc := core.NewInMemoryService(nil)
	w := NewWorker(svc, nil, nil) // never started, queue fills up

	for i := 0; i < cap(w.queue); i++ {
		if _, err := w.Enqueue(context.Background(), Input{Kind: KindReactions}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if _, err := w.Enqueue(context.Background(), Input{Kind: KindReactions}); err == nil {
		t.Fatal("expected queue full error")
	}
}

func TestDuplicateArtifactKeyFailsExport(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(nil)
	store := blob.NewMemory()
	w := NewWorker(svc, store, nil)

	record, err := w.Enqueue(ctx, Input{Kind: KindReactions, Formats: []Format{FormatJSON}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	// Occupy the artifact key before the worker runs; the create-only blob
	// store then rejects the export's write.
	key := "reports/reactions/" + record.ID + ".json"
	if _, err := store.Put(ctx, key, strings.NewReader("occupied"), blob.PutOptions{}); err != nil {
		t.Fatalf("pre-occupy key: %v", err)
	}
	w.Start()
	defer func() { _ = w.Stop(context.Background()) }()

	done := waitFor(t, w, record.ID)
	if done.Status != StatusFailed || !strings.Contains(done.Error, "store artifact") {
		t.Fatalf("expected store failure, got %s %q", done.Status, done.Error)
	}
}
