package reconciliation

import (
	"strings"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MatchEntry links a clearing entry to one side of a match
type MatchEntry struct {
	ClearingEntryID uuid.UUID
	Role            MatchRole
	Amount          decimal.Decimal
}

// ReconciliationMatch pairs source entries with target entries
type ReconciliationMatch struct {
	shared.TenantEntity
	ReconciliationID uuid.UUID
	MatchType        MatchType
	Amount           decimal.Decimal
	Difference       decimal.Decimal
	RuleID           *uuid.UUID
	Notes            string
	CreatedBy        *uuid.UUID
	Entries          []MatchEntry
}

// MatchTotals returns the signed source total, the absolute target total and
// their absolute difference.
func MatchTotals(sources, targets []ClearingEntry) (sourceTotal, targetTotal, difference decimal.Decimal) {
	sourceTotal, targetTotal = decimal.Zero, decimal.Zero
	for _, e := range sources {
		sourceTotal = sourceTotal.Add(e.Amount)
	}
	for _, e := range targets {
		targetTotal = targetTotal.Add(e.AbsAmount())
	}
	return sourceTotal, targetTotal, sourceTotal.Sub(targetTotal).Abs()
}

// ValidateMatchSides requires at least one source and no entry used twice
func ValidateMatchSides(sourceIDs, targetIDs []uuid.UUID) error {
	if len(sourceIDs) == 0 {
		return invalidInput("At least one source entry is required")
	}
	seen := make(map[uuid.UUID]struct{}, len(sourceIDs)+len(targetIDs))
	for _, id := range append(append([]uuid.UUID{}, sourceIDs...), targetIDs...) {
		if id == uuid.Nil {
			return invalidInput("Entry ID cannot be empty")
		}
		if _, dup := seen[id]; dup {
			return shared.NewDomainErrorf(shared.CodeInvalidInput, "Entry %s appears more than once", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// NewReconciliationMatch builds a match for a mutable reconciliation
func NewReconciliationMatch(
	rec *Reconciliation,
	sources, targets []ClearingEntry,
	ruleID *uuid.UUID,
	notes string,
	createdBy uuid.UUID,
) (*ReconciliationMatch, error) {
	if err := rec.EnsureMutable("match"); err != nil {
		return nil, err
	}
	if err := ValidateMatchSides(EntryIDs(sources), EntryIDs(targets)); err != nil {
		return nil, err
	}

	sourceTotal, _, difference := MatchTotals(sources, targets)
	m := &ReconciliationMatch{
		TenantEntity:     shared.NewTenantEntity(rec.TenantID),
		ReconciliationID: rec.ID,
		MatchType:        ClassifyMatchType(len(sources), len(targets)),
		Amount:           sourceTotal,
		Difference:       difference,
		RuleID:           ruleID,
		Notes:            strings.TrimSpace(notes),
		Entries:          make([]MatchEntry, 0, len(sources)+len(targets)),
	}
	if createdBy != uuid.Nil {
		m.CreatedBy = &createdBy
	}
	for _, e := range sources {
		m.Entries = append(m.Entries, MatchEntry{ClearingEntryID: e.ID, Role: MatchRoleSource, Amount: e.Amount})
	}
	for _, e := range targets {
		m.Entries = append(m.Entries, MatchEntry{ClearingEntryID: e.ID, Role: MatchRoleTarget, Amount: e.Amount})
	}
	return m, nil
}

// EntryIDs returns the IDs of all linked entries
func (m *ReconciliationMatch) EntryIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(m.Entries))
	for i, e := range m.Entries {
		ids[i] = e.ClearingEntryID
	}
	return ids
}

// IDsByRole returns the entry IDs on one side of the match
func (m *ReconciliationMatch) IDsByRole(role MatchRole) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(m.Entries))
	for _, e := range m.Entries {
		if e.Role == role {
			ids = append(ids, e.ClearingEntryID)
		}
	}
	return ids
}
