package core

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"metalcore/pkg/domain"
)

type capturedLog struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu      sync.Mutex
	entries []capturedLog
}

func (l *captureLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, capturedLog{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args) }

type metricObservation struct {
	operation string
	success   bool
}

type captureMetrics struct {
	mu           sync.Mutex
	observations []metricObservation
}

func (m *captureMetrics) Observe(_ context.Context, operation string, success bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observations = append(m.observations, metricObservation{operation: operation, success: success})
}

type captureSpan struct {
	operation string
	err       error
	ended     bool
}

type captureTracer struct {
	mu    sync.Mutex
	spans []*captureSpan
}

func (t *captureTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	span := &captureSpan{operation: operation}
	t.mu.Lock()
	t.spans = append(t.spans, span)
	t.mu.Unlock()
	return ctx, span
}

func (s *captureSpan) End(err error) {
	s.err = err
	s.ended = true
}

type captureAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (a *captureAudit) Record(_ context.Context, entry AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

func TestRunEmitsObservability(t *testing.T) {
	logger := &captureLogger{}
	metrics := &captureMetrics{}
	tracer := &captureTracer{}
	audit := &captureAudit{}
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t,
		WithLogger(logger),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithAuditRecorder(audit),
		WithClock(ClockFunc(func() time.Time { return fixed })),
	)

	lot := seedLot(t, svc, "org-1", "100")
	if _, _, err := svc.CreateLot(context.Background(), CreateLotParams{}); err == nil {
		t.Fatal("expected validation failure")
	}

	if len(metrics.observations) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(metrics.observations))
	}
	if !metrics.observations[0].success || metrics.observations[1].success {
		t.Fatalf("observation outcomes: %+v", metrics.observations)
	}
	if len(tracer.spans) != 2 || !tracer.spans[0].ended || !tracer.spans[1].ended {
		t.Fatalf("spans: %+v", tracer.spans)
	}
	if tracer.spans[1].err == nil {
		t.Fatal("failing span should carry the error")
	}

	var sawDebug, sawError bool
	for _, entry := range logger.entries {
		switch entry.level {
		case "debug":
			sawDebug = true
		case "error":
			sawError = true
		}
	}
	if !sawDebug || !sawError {
		t.Fatalf("logger entries: %+v", logger.entries)
	}

	if len(audit.entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(audit.entries))
	}
	success := audit.entries[0]
	if success.Operation != "create_lot" || success.Entity != domain.EntityPureMetalLot ||
		success.Action != domain.ActionCreate || success.Status != AuditStatusSuccess {
		t.Fatalf("success audit entry: %+v", success)
	}
	if success.EntityID != lot.ID {
		t.Fatalf("audit entity id %q, want %q", success.EntityID, lot.ID)
	}
	if !success.Timestamp.Equal(fixed) {
		t.Fatalf("audit timestamp %v", success.Timestamp)
	}
	failure := audit.entries[1]
	if failure.Status != AuditStatusError || failure.Error == "" {
		t.Fatalf("failure audit entry: %+v", failure)
	}
}

func TestRecordAuditSkipsUnknownOperation(t *testing.T) {
	audit := &captureAudit{}
	svc := newTestService(t, WithAuditRecorder(audit))

	svc.recordAudit(context.Background(), "not_an_operation", "id-1", AuditStatusSuccess, nil, time.Millisecond)
	if len(audit.entries) != 0 {
		t.Fatalf("unknown operation audited: %+v", audit.entries)
	}
	svc.recordAudit(context.Background(), "create_lot", "id-1", AuditStatusSuccess, nil, time.Millisecond)
	if len(audit.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(audit.entries))
	}
}

func TestOperationMetadataIsComplete(t *testing.T) {
	for op, meta := range operationMetadata {
		if meta.entity == "" || meta.action == "" {
			t.Fatalf("operation %s has incomplete metadata", op)
		}
	}
}

func TestSlogLoggerAdapter(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := NewSlogLogger(slog.New(handler))

	logger.Debug("operation completed", "operation", "create_lot")
	logger.Error("operation failed", "operation", "create_lot", "error", "boom")

	out := buf.String()
	if !strings.Contains(out, "operation completed") || !strings.Contains(out, "operation=create_lot") {
		t.Fatalf("debug line missing: %s", out)
	}
	if !strings.Contains(out, "operation failed") || !strings.Contains(out, "error=boom") {
		t.Fatalf("error line missing: %s", out)
	}
}

func TestExpvarMetricsRecorderAggregates(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if rec.Name() == "" {
		t.Fatal("expected generated name")
	}
	rec.Observe(context.Background(), "create_lot", true, 5*time.Millisecond)
	rec.Observe(context.Background(), "create_lot", false, 3*time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Millisecond)

	snap := rec.Snapshot()
	if snap.DurationsMS["create_lot"] < 7.9 {
		t.Fatalf("durations: %v", snap.DurationsMS)
	}
	if snap.Results["create_lot"]["success"] != 1 || snap.Results["create_lot"]["error"] != 1 {
		t.Fatalf("results: %v", snap.Results)
	}
	if _, ok := snap.Results[""]; ok {
		t.Fatal("empty operation should be ignored")
	}
}

func TestJSONTracerEmitsEntries(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)

	_, span := tracer.Start(context.Background(), "complete_reaction")
	span.End(domain.ErrInvalidState)

	entries := tracer.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Operation != "complete_reaction" || entries[0].Status != "error" {
		t.Fatalf("entry: %+v", entries[0])
	}
	if !strings.Contains(buf.String(), `"operation":"complete_reaction"`) {
		t.Fatalf("encoded output: %s", buf.String())
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	rec.Observe(context.Background(), "create_lot", true, 10*time.Millisecond)
	rec.Observe(context.Background(), "create_lot", false, 20*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	if !names["metalcore_service_operation_duration_seconds"] || !names["metalcore_service_operation_results_total"] {
		t.Fatalf("collector families: %v", names)
	}

	// Double registration against the same registry must fail.
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}
