// Package core implements the transactional service facade over the metal
// ledger, reaction and recovery state machines, and inventory numbering.
package core

import (
	"context"
	"fmt"
	"time"

	"metalcore/pkg/domain"
)

// DefaultBatchSeed is the first production batch number issued when the
// per-organization counter has never been used. Carried over from the
// production counter in use when the ledger was migrated.
const DefaultBatchSeed = 1194

// Service exposes the domain operations. Every operation runs inside one
// store transaction; observability hooks wrap the whole transaction.
type Service struct {
	store     PersistentStore
	logger    Logger
	clock     Clock
	audit     AuditRecorder
	metrics   MetricsRecorder
	tracer    Tracer
	batchSeed int64
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:     store,
		logger:    noopLogger{},
		clock:     systemClock{},
		batchSeed: DefaultBatchSeed,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store with the
// given rules engine (nil selects the default invariant set).
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(newMemoryStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// operationMetadata resolves audit entity and action from an operation name.
var operationMetadata = map[string]struct {
	entity domain.EntityType
	action domain.Action
}{
	"create_lot":                    {domain.EntityPureMetalLot, domain.ActionCreate},
	"record_movement":               {domain.EntityLotMovement, domain.ActionCreate},
	"create_reaction":               {domain.EntityChemicalReaction, domain.ActionCreate},
	"advance_reaction":              {domain.EntityChemicalReaction, domain.ActionUpdate},
	"complete_reaction":             {domain.EntityChemicalReaction, domain.ActionUpdate},
	"adjust_reaction_purity":        {domain.EntityChemicalReaction, domain.ActionUpdate},
	"add_raw_material":              {domain.EntityRawMaterialUsage, domain.ActionCreate},
	"update_reaction_lots":          {domain.EntityChemicalReaction, domain.ActionUpdate},
	"cancel_reaction":               {domain.EntityChemicalReaction, domain.ActionUpdate},
	"create_analysis":               {domain.EntityChemicalAnalysis, domain.ActionCreate},
	"start_analysis":                {domain.EntityChemicalAnalysis, domain.ActionUpdate},
	"cancel_analysis":               {domain.EntityChemicalAnalysis, domain.ActionUpdate},
	"register_analysis_result":      {domain.EntityChemicalAnalysis, domain.ActionUpdate},
	"approve_analysis_for_recovery": {domain.EntityChemicalAnalysis, domain.ActionUpdate},
	"refuse_analysis":               {domain.EntityChemicalAnalysis, domain.ActionUpdate},
	"create_recovery_order":         {domain.EntityRecoveryOrder, domain.ActionCreate},
	"start_recovery_order":          {domain.EntityRecoveryOrder, domain.ActionUpdate},
	"launch_recovery_result":        {domain.EntityRecoveryOrder, domain.ActionUpdate},
	"finalize_recovery_order":       {domain.EntityRecoveryOrder, domain.ActionUpdate},
	"cancel_recovery_order":         {domain.EntityRecoveryOrder, domain.ActionUpdate},
	"receive_purchase_lot":          {domain.EntityInventoryLot, domain.ActionCreate},
	"create_product":                {domain.EntityProduct, domain.ActionCreate},
	"update_product":                {domain.EntityProduct, domain.ActionUpdate},
	"delete_product":                {domain.EntityProduct, domain.ActionDelete},
	"create_raw_material":           {domain.EntityRawMaterial, domain.ActionCreate},
	"update_raw_material":           {domain.EntityRawMaterial, domain.ActionUpdate},
	"delete_raw_material":           {domain.EntityRawMaterial, domain.ActionDelete},
	"create_quotation":              {domain.EntityQuotation, domain.ActionCreate},
	"delete_quotation":              {domain.EntityQuotation, domain.ActionDelete},
	"attach_media":                  {domain.EntityMediaAttachment, domain.ActionCreate},
	"detach_media":                  {domain.EntityMediaAttachment, domain.ActionDelete},
}

// run executes fn inside one store transaction with tracing, metrics, audit
// and logging wrapped around the whole unit of work. entityID is a pointer so
// operations can surface the identifier assigned inside the transaction.
func (s *Service) run(ctx context.Context, operation string, entityID *string, fn func(tx Transaction) error) (Result, error) {
	started := time.Now()
	var span TraceSpan
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, operation)
	}

	res, err := s.store.RunInTransaction(ctx, fn)
	duration := time.Since(started)

	if span != nil {
		span.End(err)
	}
	if s.metrics != nil {
		s.metrics.Observe(ctx, operation, err == nil, duration)
	}
	id := ""
	if entityID != nil {
		id = *entityID
	}
	if err != nil {
		s.logger.Error("operation failed", "operation", operation, "entity_id", id, "error", err)
		s.recordAudit(ctx, operation, id, AuditStatusError, err, duration)
		return res, err
	}
	s.logger.Debug("operation completed", "operation", operation, "entity_id", id, "duration", duration)
	s.recordAudit(ctx, operation, id, AuditStatusSuccess, nil, duration)
	return res, nil
}

func (s *Service) recordAudit(ctx context.Context, operation, entityID string, status AuditStatus, opErr error, duration time.Duration) {
	if s.audit == nil {
		return
	}
	meta, ok := operationMetadata[operation]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: operation,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    status,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if opErr != nil {
		entry.Error = opErr.Error()
	}
	s.audit.Record(ctx, entry)
}

// Human-readable sequence code formats, one per numbered aggregate.
const (
	lotCodeFormat      = "LMP-%06d"
	reactionCodeFormat = "REA-%06d"
	orderCodeFormat    = "OR-%06d"
	analysisCodeFormat = "AQ-%06d"
)

func nextCode(tx Transaction, organizationID string, kind domain.CounterKind, format string) (string, error) {
	n, err := tx.NextSequence(organizationID, kind, 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(format, n), nil
}
