package reconciliation

import (
	"context"
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReconciliationFilter narrows reconciliation listings
type ReconciliationFilter struct {
	shared.Filter
	Type   string
	Status *Status
	// From and To select reconciliations whose period overlaps the range
	From *time.Time
	To   *time.Time
}

// ReconciliationRepository persists the reconciliation aggregate
type ReconciliationRepository interface {
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Reconciliation, error)
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter ReconciliationFilter) ([]Reconciliation, error)
	CountForTenant(ctx context.Context, tenantID uuid.UUID, filter ReconciliationFilter) (int64, error)
	CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[Status]int64, error)
	CountByType(ctx context.Context, tenantID uuid.UUID) (map[string]int64, error)
	// Create inserts a new reconciliation
	Create(ctx context.Context, r *Reconciliation) error
	// SaveWithLock updates the row only if its version still matches and bumps the version.
	// A stale version yields CONCURRENT_MODIFICATION.
	SaveWithLock(ctx context.Context, r *Reconciliation) error
}

// ClearingEntryRepository reads clearing entries and moves their status with
// compare-and-swap updates
type ClearingEntryRepository interface {
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*ClearingEntry, error)
	FindByIDsForTenant(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]ClearingEntry, error)
	// FindPendingForTenant returns pending entries ordered by entry date then ID
	FindPendingForTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]ClearingEntry, error)
	// ClaimPending moves pending entries to matched and returns the affected row count
	ClaimPending(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, at time.Time) (int64, error)
	// ClaimForAllocation moves a pending or allocated entry to allocated
	ClaimForAllocation(ctx context.Context, tenantID, id uuid.UUID, at time.Time) (int64, error)
	// Release moves entries claimed by reconciliationID back to pending, skipping
	// those another live reconciliation still matches or allocates
	Release(ctx context.Context, tenantID, reconciliationID uuid.UUID, ids []uuid.UUID) (int64, error)
	// SummarizePending counts pending entries dated within the period and sums their absolute amounts
	SummarizePending(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (int64, decimal.Decimal, error)
}

// RuleRepository persists reconciliation rules
type RuleRepository interface {
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*ReconciliationRule, error)
	// FindAllForTenant returns rules ordered by priority, creation time and ID
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, activeOnly bool) ([]ReconciliationRule, error)
	Create(ctx context.Context, rule *ReconciliationRule) error
	SaveWithLock(ctx context.Context, rule *ReconciliationRule) error
	DeleteForTenant(ctx context.Context, tenantID, id uuid.UUID) error
}

// MatchRepository persists matches with their entry links
type MatchRepository interface {
	Create(ctx context.Context, m *ReconciliationMatch) error
	FindByReconciliation(ctx context.Context, tenantID, reconciliationID uuid.UUID) ([]ReconciliationMatch, error)
	// Summarize returns the number of matches and the sum of their amounts
	Summarize(ctx context.Context, tenantID, reconciliationID uuid.UUID) (int64, decimal.Decimal, error)
	EntryIDsByReconciliation(ctx context.Context, tenantID, reconciliationID uuid.UUID) ([]uuid.UUID, error)
}

// AllocationRepository persists allocations
type AllocationRepository interface {
	Create(ctx context.Context, a *ReconciliationAllocation) error
	FindByReconciliation(ctx context.Context, tenantID, reconciliationID uuid.UUID) ([]ReconciliationAllocation, error)
	// SumForEntry totals all allocations recorded against an entry
	SumForEntry(ctx context.Context, tenantID, entryID uuid.UUID) (decimal.Decimal, error)
	EntryIDsByReconciliation(ctx context.Context, tenantID, reconciliationID uuid.UUID) ([]uuid.UUID, error)
}

// ExceptionRepository persists exceptions
type ExceptionRepository interface {
	// FindByID loads an exception without tenant scoping; callers check ownership
	// through the owning reconciliation.
	FindByID(ctx context.Context, id uuid.UUID) (*ReconciliationException, error)
	// FindByReconciliation returns exceptions newest first
	FindByReconciliation(ctx context.Context, tenantID, reconciliationID uuid.UUID) ([]ReconciliationException, error)
	CountUnresolved(ctx context.Context, tenantID, reconciliationID uuid.UUID) (int64, error)
	CountUnresolvedForTenant(ctx context.Context, tenantID uuid.UUID) (int64, error)
	ExistsUnresolvedByGroupKey(ctx context.Context, tenantID, reconciliationID uuid.UUID, groupKey string) (bool, error)
	Create(ctx context.Context, e *ReconciliationException) error
	Save(ctx context.Context, e *ReconciliationException) error
}

// HistoryRepository appends and reads the audit trail
type HistoryRepository interface {
	Append(ctx context.Context, h *ReconciliationHistory) error
	// FindRecent returns up to limit rows, newest first
	FindRecent(ctx context.Context, tenantID, reconciliationID uuid.UUID, limit int) ([]ReconciliationHistory, error)
}
