package reconciliation

import (
	"sort"
	"strings"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MatchField is an entry attribute a rule may group by
type MatchField string

const (
	MatchFieldReferenceNumber MatchField = "reference_number"
	MatchFieldAmount          MatchField = "amount"
	MatchFieldDate            MatchField = "date"
)

// IsValid checks if the field is one of the supported match fields
func (f MatchField) IsValid() bool {
	switch f {
	case MatchFieldReferenceNumber, MatchFieldAmount, MatchFieldDate:
		return true
	}
	return false
}

// String returns the string representation of the match field
func (f MatchField) String() string {
	return string(f)
}

// AllMatchFields returns every supported match field
func AllMatchFields() []MatchField {
	return []MatchField{MatchFieldReferenceNumber, MatchFieldAmount, MatchFieldDate}
}

// ParseMatchFields converts raw field names and validates the resulting set
func ParseMatchFields(raw []string) ([]MatchField, error) {
	fields := make([]MatchField, 0, len(raw))
	for _, r := range raw {
		fields = append(fields, MatchField(strings.TrimSpace(r)))
	}
	if err := ValidateMatchFields(fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// ValidateMatchFields requires a non-empty set of distinct known fields
func ValidateMatchFields(fields []MatchField) error {
	if len(fields) == 0 {
		return invalidInput("At least one match field is required")
	}
	seen := make(map[MatchField]struct{}, len(fields))
	for _, f := range fields {
		if !f.IsValid() {
			return shared.NewDomainErrorf(shared.CodeInvalidInput, "Unsupported match field: %q", string(f))
		}
		if _, dup := seen[f]; dup {
			return shared.NewDomainErrorf(shared.CodeInvalidInput, "Duplicate match field: %q", string(f))
		}
		seen[f] = struct{}{}
	}
	return nil
}

// Tolerance relaxes exact matching. Nil members mean no tolerance.
type Tolerance struct {
	Amount   *decimal.Decimal
	DateDays *int
}

// AmountOrZero returns the accepted absolute difference
func (t Tolerance) AmountOrZero() decimal.Decimal {
	if t.Amount == nil {
		return decimal.Zero
	}
	return *t.Amount
}

// DateWindow returns the accepted spread of entry dates in days
func (t Tolerance) DateWindow() int {
	if t.DateDays == nil {
		return 0
	}
	return *t.DateDays
}

// Validate rejects negative tolerances
func (t Tolerance) Validate() error {
	if t.Amount != nil && t.Amount.IsNegative() {
		return invalidInput("Amount tolerance cannot be negative")
	}
	if t.DateDays != nil && *t.DateDays < 0 {
		return invalidInput("Date tolerance cannot be negative")
	}
	return nil
}

// ReconciliationRule is a named, prioritised grouping rule used by auto-match
type ReconciliationRule struct {
	shared.TenantAggregateRoot
	Name        string
	Priority    int
	MatchFields []MatchField
	Tolerance   Tolerance
	Active      bool
}

// NewReconciliationRule creates a validated rule
func NewReconciliationRule(
	tenantID uuid.UUID,
	createdBy uuid.UUID,
	name string,
	priority int,
	fields []MatchField,
	tolerance Tolerance,
	active bool,
) (*ReconciliationRule, error) {
	r := &ReconciliationRule{
		TenantAggregateRoot: shared.NewTenantAggregateRootWithCreator(tenantID, createdBy),
		Name:                strings.TrimSpace(name),
		Priority:            priority,
		MatchFields:         fields,
		Tolerance:           tolerance,
		Active:              active,
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// RulePatch carries optional rule changes
type RulePatch struct {
	Name        *string
	Priority    *int
	MatchFields []MatchField
	Tolerance   *Tolerance
	Active      *bool
}

// Update applies a patch. The repository bumps the version on save.
func (r *ReconciliationRule) Update(p RulePatch) error {
	next := *r
	if p.Name != nil {
		next.Name = strings.TrimSpace(*p.Name)
	}
	if p.Priority != nil {
		next.Priority = *p.Priority
	}
	if p.MatchFields != nil {
		next.MatchFields = p.MatchFields
	}
	if p.Tolerance != nil {
		next.Tolerance = *p.Tolerance
	}
	if p.Active != nil {
		next.Active = *p.Active
	}
	if err := next.validate(); err != nil {
		return err
	}

	r.Name = next.Name
	r.Priority = next.Priority
	r.MatchFields = next.MatchFields
	r.Tolerance = next.Tolerance
	r.Active = next.Active
	r.Touch()
	return nil
}

func (r *ReconciliationRule) validate() error {
	if r.Name == "" {
		return invalidInput("Rule name is required")
	}
	if len(r.Name) > 100 {
		return invalidInput("Rule name cannot exceed 100 characters")
	}
	if r.Priority < 0 {
		return invalidInput("Rule priority cannot be negative")
	}
	if err := ValidateMatchFields(r.MatchFields); err != nil {
		return err
	}
	return r.Tolerance.Validate()
}

// HasField reports whether the rule groups by the given field
func (r *ReconciliationRule) HasField(field MatchField) bool {
	for _, f := range r.MatchFields {
		if f == field {
			return true
		}
	}
	return false
}

// UsesDateWindow is true when dates are compared within a window rather than by key
func (r *ReconciliationRule) UsesDateWindow() bool {
	return r.HasField(MatchFieldDate) && r.Tolerance.DateWindow() > 0
}

// SortRules orders rules by priority ascending, then creation time, then ID
func SortRules(rules []ReconciliationRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].ID.String() < rules[j].ID.String()
	})
}
