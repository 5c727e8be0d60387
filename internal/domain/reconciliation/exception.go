package reconciliation

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReconciliationException records an item that needs human attention.
// Unresolved exceptions block finalization.
type ReconciliationException struct {
	shared.TenantEntity
	ReconciliationID   uuid.UUID
	Category           ExceptionCategory
	Description        string
	GroupKey           string
	EntryIDs           []uuid.UUID
	Amount             decimal.Decimal
	Resolved           bool
	ResolvedBy         *uuid.UUID
	ResolvedAt         *time.Time
	Resolution         string
	ResolutionCategory string
}

// NewReconciliationException creates an unresolved exception
func NewReconciliationException(
	rec *Reconciliation,
	category ExceptionCategory,
	description string,
	entryIDs []uuid.UUID,
	amount decimal.Decimal,
) (*ReconciliationException, error) {
	if !category.IsValid() {
		return nil, shared.NewDomainErrorf(shared.CodeInvalidInput, "Unsupported exception category: %q", string(category))
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, invalidInput("Exception description is required")
	}
	if entryIDs == nil {
		entryIDs = []uuid.UUID{}
	}
	return &ReconciliationException{
		TenantEntity:     shared.NewTenantEntity(rec.TenantID),
		ReconciliationID: rec.ID,
		Category:         category,
		Description:      description,
		EntryIDs:         entryIDs,
		Amount:           amount,
	}, nil
}

// NewToleranceException raises a near miss found by auto-match
func NewToleranceException(rec *Reconciliation, p MatchProposal) *ReconciliationException {
	exc, _ := NewReconciliationException(
		rec,
		ExceptionCategoryToleranceExceeded,
		fmt.Sprintf("Rule %q: %s", p.RuleName, p.Reason),
		p.EntryIDs(),
		p.Difference,
	)
	exc.GroupKey = p.GroupKey()
	return exc
}

// NewOverAllocationException raises an entry whose allocations exceed its amount
func NewOverAllocationException(rec *Reconciliation, entry ClearingEntry, allocated decimal.Decimal) *ReconciliationException {
	excess := allocated.Sub(entry.AbsAmount())
	exc, _ := NewReconciliationException(
		rec,
		ExceptionCategoryOverAllocation,
		fmt.Sprintf("Entry %s allocated %s against amount %s",
			entry.ID, allocated.StringFixed(2), entry.AbsAmount().StringFixed(2)),
		[]uuid.UUID{entry.ID},
		excess,
	)
	exc.GroupKey = "allocation:" + entry.ID.String()
	return exc
}

// Resolve closes the exception. The owning reconciliation must still be mutable.
func (e *ReconciliationException) Resolve(rec *Reconciliation, resolvedBy uuid.UUID, resolution, category string) error {
	if err := rec.EnsureMutable("resolve exceptions of"); err != nil {
		return err
	}
	if e.Resolved {
		return shared.NewDomainError(shared.CodeInvalidState, "Exception is already resolved")
	}
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return invalidInput("Resolution is required")
	}

	now := time.Now().UTC()
	e.Resolved = true
	e.ResolvedAt = &now
	if resolvedBy != uuid.Nil {
		e.ResolvedBy = &resolvedBy
	}
	e.Resolution = resolution
	e.ResolutionCategory = strings.TrimSpace(category)
	e.UpdatedAt = now
	return nil
}
