package reconciliation

import (
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateType is the aggregate type name carried by reconciliation events
const AggregateType = "Reconciliation"

// Event type names
const (
	EventTypeReconciliationCreated   = "ReconciliationCreated"
	EventTypeReconciliationUpdated   = "ReconciliationUpdated"
	EventTypeReconciliationFinalized = "ReconciliationFinalized"
	EventTypeReconciliationCancelled = "ReconciliationCancelled"
	EventTypeReconciliationMatched   = "ReconciliationAutoMatched"
	EventTypeExceptionResolved       = "ReconciliationExceptionResolved"
)

// HistoryEvent is implemented by events that leave an audit trail
type HistoryEvent interface {
	shared.DomainEvent
	HistoryAction() HistoryAction
	Actor() uuid.UUID
	HistoryDetails() map[string]any
}

// ReconciliationCreatedEvent is raised when a reconciliation is created
type ReconciliationCreatedEvent struct {
	shared.BaseDomainEvent
	ActorID     uuid.UUID `json:"actor_id"`
	RecType     string    `json:"reconciliation_type"`
	Name        string    `json:"name"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// NewReconciliationCreatedEvent creates a ReconciliationCreatedEvent
func NewReconciliationCreatedEvent(r *Reconciliation, actor uuid.UUID) *ReconciliationCreatedEvent {
	return &ReconciliationCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReconciliationCreated, AggregateType, r.ID, r.TenantID),
		ActorID:         actor,
		RecType:         r.Type,
		Name:            r.Name,
		PeriodStart:     r.PeriodStart,
		PeriodEnd:       r.PeriodEnd,
	}
}

func (e *ReconciliationCreatedEvent) HistoryAction() HistoryAction { return HistoryActionCreated }
func (e *ReconciliationCreatedEvent) Actor() uuid.UUID             { return e.ActorID }
func (e *ReconciliationCreatedEvent) HistoryDetails() map[string]any {
	return map[string]any{
		"type":         e.RecType,
		"name":         e.Name,
		"period_start": e.PeriodStart.Format("2006-01-02"),
		"period_end":   e.PeriodEnd.Format("2006-01-02"),
	}
}

// ReconciliationUpdatedEvent is raised when header fields change
type ReconciliationUpdatedEvent struct {
	shared.BaseDomainEvent
	ActorID uuid.UUID      `json:"actor_id"`
	Changes map[string]any `json:"changes"`
}

// NewReconciliationUpdatedEvent creates a ReconciliationUpdatedEvent
func NewReconciliationUpdatedEvent(r *Reconciliation, actor uuid.UUID, changes map[string]any) *ReconciliationUpdatedEvent {
	return &ReconciliationUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReconciliationUpdated, AggregateType, r.ID, r.TenantID),
		ActorID:         actor,
		Changes:         changes,
	}
}

func (e *ReconciliationUpdatedEvent) HistoryAction() HistoryAction   { return HistoryActionUpdated }
func (e *ReconciliationUpdatedEvent) Actor() uuid.UUID               { return e.ActorID }
func (e *ReconciliationUpdatedEvent) HistoryDetails() map[string]any { return map[string]any{"changes": e.Changes} }

// ReconciliationFinalizedEvent is raised when a reconciliation is finalized
type ReconciliationFinalizedEvent struct {
	shared.BaseDomainEvent
	ActorID       uuid.UUID       `json:"actor_id"`
	MatchedItems  int64           `json:"matched_items"`
	TotalItems    int64           `json:"total_items"`
	MatchedAmount decimal.Decimal `json:"matched_amount"`
	FinalizedAt   time.Time       `json:"finalized_at"`
}

// NewReconciliationFinalizedEvent creates a ReconciliationFinalizedEvent
func NewReconciliationFinalizedEvent(r *Reconciliation, actor uuid.UUID) *ReconciliationFinalizedEvent {
	finalizedAt := time.Now().UTC()
	if r.FinalizedAt != nil {
		finalizedAt = *r.FinalizedAt
	}
	return &ReconciliationFinalizedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReconciliationFinalized, AggregateType, r.ID, r.TenantID),
		ActorID:         actor,
		MatchedItems:    r.MatchedItems,
		TotalItems:      r.TotalItems,
		MatchedAmount:   r.MatchedAmount,
		FinalizedAt:     finalizedAt,
	}
}

func (e *ReconciliationFinalizedEvent) HistoryAction() HistoryAction { return HistoryActionFinalized }
func (e *ReconciliationFinalizedEvent) Actor() uuid.UUID             { return e.ActorID }
func (e *ReconciliationFinalizedEvent) HistoryDetails() map[string]any {
	return map[string]any{
		"matched_items":  e.MatchedItems,
		"total_items":    e.TotalItems,
		"matched_amount": e.MatchedAmount.StringFixed(4),
	}
}

// ReconciliationCancelledEvent is raised when a reconciliation is cancelled
type ReconciliationCancelledEvent struct {
	shared.BaseDomainEvent
	ActorID         uuid.UUID `json:"actor_id"`
	ReleasedEntries int64     `json:"released_entries"`
}

// NewReconciliationCancelledEvent creates a ReconciliationCancelledEvent
func NewReconciliationCancelledEvent(r *Reconciliation, actor uuid.UUID, released int64) *ReconciliationCancelledEvent {
	return &ReconciliationCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReconciliationCancelled, AggregateType, r.ID, r.TenantID),
		ActorID:         actor,
		ReleasedEntries: released,
	}
}

func (e *ReconciliationCancelledEvent) HistoryAction() HistoryAction { return HistoryActionCancelled }
func (e *ReconciliationCancelledEvent) Actor() uuid.UUID             { return e.ActorID }
func (e *ReconciliationCancelledEvent) HistoryDetails() map[string]any {
	return map[string]any{"released_entries": e.ReleasedEntries}
}

// ReconciliationAutoMatchedEvent is raised after an auto-match pass
type ReconciliationAutoMatchedEvent struct {
	shared.BaseDomainEvent
	ActorID          uuid.UUID   `json:"actor_id"`
	RuleIDs          []uuid.UUID `json:"rule_ids"`
	MatchedCount     int         `json:"matched_count"`
	SkippedCount     int         `json:"skipped_count"`
	ExceptionsRaised int         `json:"exceptions_raised"`
}

// NewReconciliationAutoMatchedEvent creates a ReconciliationAutoMatchedEvent
func NewReconciliationAutoMatchedEvent(r *Reconciliation, actor uuid.UUID, o AutoMatchOutcome) *ReconciliationAutoMatchedEvent {
	return &ReconciliationAutoMatchedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypeReconciliationMatched, AggregateType, r.ID, r.TenantID),
		ActorID:          actor,
		RuleIDs:          o.RuleIDs,
		MatchedCount:     o.MatchedCount,
		SkippedCount:     o.SkippedCount,
		ExceptionsRaised: o.ExceptionsRaised,
	}
}

func (e *ReconciliationAutoMatchedEvent) HistoryAction() HistoryAction { return HistoryActionAutoMatched }
func (e *ReconciliationAutoMatchedEvent) Actor() uuid.UUID             { return e.ActorID }
func (e *ReconciliationAutoMatchedEvent) HistoryDetails() map[string]any {
	ruleIDs := make([]string, len(e.RuleIDs))
	for i, id := range e.RuleIDs {
		ruleIDs[i] = id.String()
	}
	return map[string]any{
		"rule_ids":          ruleIDs,
		"matched_count":     e.MatchedCount,
		"skipped_count":     e.SkippedCount,
		"exceptions_raised": e.ExceptionsRaised,
	}
}

// ExceptionResolvedEvent is raised when an exception is resolved
type ExceptionResolvedEvent struct {
	shared.BaseDomainEvent
	ActorID            uuid.UUID         `json:"actor_id"`
	ExceptionID        uuid.UUID         `json:"exception_id"`
	Category           ExceptionCategory `json:"category"`
	Resolution         string            `json:"resolution"`
	ResolutionCategory string            `json:"resolution_category"`
}

// NewExceptionResolvedEvent creates an ExceptionResolvedEvent on the owning reconciliation
func NewExceptionResolvedEvent(exc *ReconciliationException, actor uuid.UUID) *ExceptionResolvedEvent {
	return &ExceptionResolvedEvent{
		BaseDomainEvent:    shared.NewBaseDomainEvent(EventTypeExceptionResolved, AggregateType, exc.ReconciliationID, exc.TenantID),
		ActorID:            actor,
		ExceptionID:        exc.ID,
		Category:           exc.Category,
		Resolution:         exc.Resolution,
		ResolutionCategory: exc.ResolutionCategory,
	}
}

func (e *ExceptionResolvedEvent) HistoryAction() HistoryAction { return HistoryActionExceptionResolved }
func (e *ExceptionResolvedEvent) Actor() uuid.UUID             { return e.ActorID }
func (e *ExceptionResolvedEvent) HistoryDetails() map[string]any {
	return map[string]any{
		"exception_id":        e.ExceptionID.String(),
		"category":            string(e.Category),
		"resolution":          e.Resolution,
		"resolution_category": e.ResolutionCategory,
	}
}
