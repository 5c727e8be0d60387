package reconciliation

import (
	"strings"
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Reconciliation is a period-bounded matching session owned by a business.
// Matches, allocations and exceptions reference it; its counters are derived.
type Reconciliation struct {
	shared.TenantAggregateRoot
	Type           string
	Name           string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Status         Status
	TotalItems     int64
	MatchedItems   int64
	UnmatchedItems int64
	TotalAmount    decimal.Decimal
	MatchedAmount  decimal.Decimal
	Notes          string
	FinalizedBy    *uuid.UUID
	FinalizedAt    *time.Time
	CancelledBy    *uuid.UUID
	CancelledAt    *time.Time
}

// NewReconciliation creates a draft reconciliation with zeroed counters
func NewReconciliation(
	tenantID, createdBy uuid.UUID,
	recType, name string,
	periodStart, periodEnd time.Time,
	notes string,
) (*Reconciliation, error) {
	if tenantID == uuid.Nil {
		return nil, invalidInput("Business ID is required")
	}
	r := &Reconciliation{
		TenantAggregateRoot: shared.NewTenantAggregateRootWithCreator(tenantID, createdBy),
		Type:                strings.TrimSpace(recType),
		Name:                strings.TrimSpace(name),
		PeriodStart:         periodStart,
		PeriodEnd:           periodEnd,
		Status:              StatusDraft,
		TotalAmount:         decimal.Zero,
		MatchedAmount:       decimal.Zero,
		Notes:               strings.TrimSpace(notes),
	}
	if err := r.validate(); err != nil {
		return nil, err
	}

	r.AddDomainEvent(NewReconciliationCreatedEvent(r, createdBy))
	return r, nil
}

func (r *Reconciliation) validate() error {
	if r.Type == "" {
		return invalidInput("Reconciliation type is required")
	}
	if len(r.Type) > 50 {
		return invalidInput("Reconciliation type cannot exceed 50 characters")
	}
	if r.Name == "" {
		return invalidInput("Reconciliation name is required")
	}
	if len(r.Name) > 200 {
		return invalidInput("Reconciliation name cannot exceed 200 characters")
	}
	if r.PeriodStart.IsZero() || r.PeriodEnd.IsZero() {
		return invalidInput("Reconciliation period is required")
	}
	return nil
}

// EnsureMutable fails with INVALID_STATE unless the reconciliation is draft or in progress
func (r *Reconciliation) EnsureMutable(op string) error {
	if !r.Status.IsMutable() {
		return NewInvalidStateError(op, r.Status)
	}
	return nil
}

func (r *Reconciliation) transitionTo(op string, to Status) error {
	if !CanTransition(r.Status, to) {
		return NewInvalidStateError(op, r.Status)
	}
	r.Status = to
	return nil
}

// ReconciliationPatch carries optional header changes
type ReconciliationPatch struct {
	Type        *string
	Name        *string
	PeriodStart *time.Time
	PeriodEnd   *time.Time
	Notes       *string
}

// Update applies the patch. Only fields that actually change are recorded.
func (r *Reconciliation) Update(p ReconciliationPatch, actor uuid.UUID) error {
	if err := r.EnsureMutable("update"); err != nil {
		return err
	}

	next := *r
	changes := make(map[string]any)
	if p.Type != nil && strings.TrimSpace(*p.Type) != r.Type {
		next.Type = strings.TrimSpace(*p.Type)
		changes["type"] = next.Type
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) != r.Name {
		next.Name = strings.TrimSpace(*p.Name)
		changes["name"] = next.Name
	}
	if p.PeriodStart != nil && !p.PeriodStart.Equal(r.PeriodStart) {
		next.PeriodStart = *p.PeriodStart
		changes["period_start"] = next.PeriodStart.Format("2006-01-02")
	}
	if p.PeriodEnd != nil && !p.PeriodEnd.Equal(r.PeriodEnd) {
		next.PeriodEnd = *p.PeriodEnd
		changes["period_end"] = next.PeriodEnd.Format("2006-01-02")
	}
	if p.Notes != nil && strings.TrimSpace(*p.Notes) != r.Notes {
		next.Notes = strings.TrimSpace(*p.Notes)
		changes["notes"] = next.Notes
	}
	if len(changes) == 0 {
		return nil
	}
	if err := next.validate(); err != nil {
		return err
	}

	r.Type = next.Type
	r.Name = next.Name
	r.PeriodStart = next.PeriodStart
	r.PeriodEnd = next.PeriodEnd
	r.Notes = next.Notes
	r.Touch()

	r.AddDomainEvent(NewReconciliationUpdatedEvent(r, actor, changes))
	return nil
}

// BeginWork moves a draft into progress. It is a no-op once work has started.
func (r *Reconciliation) BeginWork() error {
	if err := r.EnsureMutable("match"); err != nil {
		return err
	}
	if r.Status == StatusDraft {
		if err := r.transitionTo("start", StatusInProgress); err != nil {
			return err
		}
		r.Touch()
	}
	return nil
}

// Finalize closes the reconciliation. Unresolved exceptions block it and leave
// the status untouched.
func (r *Reconciliation) Finalize(actor uuid.UUID, unresolved int64) error {
	if err := r.EnsureMutable("finalize"); err != nil {
		return err
	}
	if unresolved > 0 {
		return NewUnresolvedExceptionsError(unresolved)
	}
	if err := r.transitionTo("finalize", StatusFinalized); err != nil {
		return err
	}

	now := time.Now().UTC()
	r.FinalizedAt = &now
	if actor != uuid.Nil {
		r.FinalizedBy = &actor
	}
	r.UpdatedAt = now

	r.AddDomainEvent(NewReconciliationFinalizedEvent(r, actor))
	return nil
}

// EnsureCancellable checks the transition without applying it
func (r *Reconciliation) EnsureCancellable() error {
	if !CanTransition(r.Status, StatusCancelled) {
		return NewInvalidStateError("cancel", r.Status)
	}
	return nil
}

// Cancel ends the reconciliation. released is the number of entries put back to pending.
func (r *Reconciliation) Cancel(actor uuid.UUID, released int64) error {
	if err := r.transitionTo("cancel", StatusCancelled); err != nil {
		return err
	}

	now := time.Now().UTC()
	r.CancelledAt = &now
	if actor != uuid.Nil {
		r.CancelledBy = &actor
	}
	r.UpdatedAt = now

	r.AddDomainEvent(NewReconciliationCancelledEvent(r, actor, released))
	return nil
}

// RecordAutoMatch queues the audit event for a finished auto-match pass
func (r *Reconciliation) RecordAutoMatch(actor uuid.UUID, result AutoMatchOutcome) {
	r.AddDomainEvent(NewReconciliationAutoMatchedEvent(r, actor, result))
}

// AutoMatchOutcome is the summary of an auto-match pass
type AutoMatchOutcome struct {
	RuleIDs          []uuid.UUID
	MatchedCount     int
	SkippedCount     int
	ExceptionsRaised int
}

// Statistics holds the raw figures the counters are derived from
type Statistics struct {
	MatchCount    int64
	MatchedAmount decimal.Decimal
	PendingCount  int64
	PendingAmount decimal.Decimal
}

// ApplyStatistics recomputes the counters. matched_items never exceeds total_items.
func (r *Reconciliation) ApplyStatistics(s Statistics) {
	r.MatchedItems = s.MatchCount
	r.MatchedAmount = s.MatchedAmount
	r.UnmatchedItems = s.PendingCount
	r.TotalItems = s.MatchCount + s.PendingCount
	r.TotalAmount = s.MatchedAmount.Add(s.PendingAmount)
	r.Touch()
}

// MatchRate returns matched_items / total_items as a percentage
func (r *Reconciliation) MatchRate() decimal.Decimal {
	if r.TotalItems == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(r.MatchedItems).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(r.TotalItems)).
		Round(2)
}
