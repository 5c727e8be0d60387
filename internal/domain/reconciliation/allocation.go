package reconciliation

import (
	"strings"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReconciliationAllocation assigns part of a clearing entry to a target account
type ReconciliationAllocation struct {
	shared.TenantEntity
	ReconciliationID uuid.UUID
	ClearingEntryID  uuid.UUID
	TargetAccountID  uuid.UUID
	Amount           decimal.Decimal
	Notes            string
	CreatedBy        *uuid.UUID
}

// NewReconciliationAllocation creates an allocation for a mutable reconciliation
func NewReconciliationAllocation(
	rec *Reconciliation,
	entryID, targetAccountID uuid.UUID,
	amount decimal.Decimal,
	notes string,
	createdBy uuid.UUID,
) (*ReconciliationAllocation, error) {
	if err := rec.EnsureMutable("allocate"); err != nil {
		return nil, err
	}
	if entryID == uuid.Nil {
		return nil, invalidInput("Clearing entry ID is required")
	}
	if targetAccountID == uuid.Nil {
		return nil, invalidInput("Target account ID is required")
	}
	if !amount.IsPositive() {
		return nil, invalidInput("Allocation amount must be positive")
	}

	a := &ReconciliationAllocation{
		TenantEntity:     shared.NewTenantEntity(rec.TenantID),
		ReconciliationID: rec.ID,
		ClearingEntryID:  entryID,
		TargetAccountID:  targetAccountID,
		Amount:           amount,
		Notes:            strings.TrimSpace(notes),
	}
	if createdBy != uuid.Nil {
		a.CreatedBy = &createdBy
	}
	return a, nil
}

// IsOverAllocated reports whether allocations on an entry exceed its absolute amount
func IsOverAllocated(entry ClearingEntry, allocated decimal.Decimal) bool {
	return allocated.GreaterThan(entry.AbsAmount())
}
