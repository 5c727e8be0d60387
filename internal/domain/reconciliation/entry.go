package reconciliation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ClearingEntry is a signed ledger movement awaiting reconciliation.
// Positive amounts are debits, negative amounts are credits.
type ClearingEntry struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	ReferenceNumber string
	EntryDate       time.Time
	Amount          decimal.Decimal
	Description     string
	Status          EntryStatus
	MatchedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsPending returns true if the entry can still be matched
func (e ClearingEntry) IsPending() bool {
	return e.Status == EntryStatusPending
}

// IsDebit returns true for positive amounts
func (e ClearingEntry) IsDebit() bool {
	return e.Amount.IsPositive()
}

// IsCredit returns true for negative amounts
func (e ClearingEntry) IsCredit() bool {
	return e.Amount.IsNegative()
}

// AbsAmount returns the unsigned amount
func (e ClearingEntry) AbsAmount() decimal.Decimal {
	return e.Amount.Abs()
}

// EntryIDs extracts the IDs of the given entries, preserving order
func EntryIDs(entries []ClearingEntry) []uuid.UUID {
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}
