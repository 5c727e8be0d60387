package reconciliation

import (
	"strings"

	"github.com/erp/reconciliation/internal/domain/shared"
)

// KeyBuilder derives one component of a grouping key from a clearing entry.
// An empty component means the entry cannot be grouped on that field.
type KeyBuilder interface {
	Name() string
	Description() string
	Field() MatchField
	Key(entry ClearingEntry) string
}

// keyInfo identifies a key builder
type keyInfo struct {
	name        string
	description string
}

func (k keyInfo) Name() string        { return k.name }
func (k keyInfo) Description() string { return k.description }

// ReferenceKey groups by trimmed reference number
type ReferenceKey struct {
	keyInfo
}

// NewReferenceKey creates the reference number key builder
func NewReferenceKey() ReferenceKey {
	return ReferenceKey{
		keyInfo: keyInfo{name: "reference_number_key", description: "Groups entries sharing the same reference number"},
	}
}

// Field returns the match field this builder handles
func (ReferenceKey) Field() MatchField { return MatchFieldReferenceNumber }

// Key returns the reference number
func (ReferenceKey) Key(entry ClearingEntry) string {
	return strings.TrimSpace(entry.ReferenceNumber)
}

// AmountKey groups by absolute amount so debits and credits meet
type AmountKey struct {
	keyInfo
}

// NewAmountKey creates the amount key builder
func NewAmountKey() AmountKey {
	return AmountKey{
		keyInfo: keyInfo{name: "amount_key", description: "Groups entries with the same absolute amount at 4 decimal places"},
	}
}

// Field returns the match field this builder handles
func (AmountKey) Field() MatchField { return MatchFieldAmount }

// Key returns the absolute amount with fixed precision
func (AmountKey) Key(entry ClearingEntry) string {
	return entry.Amount.Abs().StringFixed(4)
}

// DateKey groups by calendar day
type DateKey struct {
	keyInfo
}

// NewDateKey creates the entry date key builder
func NewDateKey() DateKey {
	return DateKey{
		keyInfo: keyInfo{name: "date_key", description: "Groups entries booked on the same calendar day"},
	}
}

// Field returns the match field this builder handles
func (DateKey) Field() MatchField { return MatchFieldDate }

// Key returns the entry date as YYYY-MM-DD
func (DateKey) Key(entry ClearingEntry) string {
	if entry.EntryDate.IsZero() {
		return ""
	}
	return entry.EntryDate.Format("2006-01-02")
}

// KeyBuilderFor returns the builder for a match field
func KeyBuilderFor(field MatchField) (KeyBuilder, error) {
	switch field {
	case MatchFieldReferenceNumber:
		return NewReferenceKey(), nil
	case MatchFieldAmount:
		return NewAmountKey(), nil
	case MatchFieldDate:
		return NewDateKey(), nil
	}
	return nil, shared.NewDomainErrorf(shared.CodeInvalidInput, "Unsupported match field: %q", string(field))
}

// CompositeKey joins the key components of a rule's match fields
type CompositeKey struct {
	builders []KeyBuilder
}

// NewCompositeKey builds the key for a rule. When the rule compares dates by
// window the date is left out of the key and the matcher clusters by date instead.
func NewCompositeKey(rule *ReconciliationRule) (CompositeKey, error) {
	builders := make([]KeyBuilder, 0, len(rule.MatchFields))
	for _, f := range rule.MatchFields {
		if f == MatchFieldDate && rule.UsesDateWindow() {
			continue
		}
		b, err := KeyBuilderFor(f)
		if err != nil {
			return CompositeKey{}, err
		}
		builders = append(builders, b)
	}
	return CompositeKey{builders: builders}, nil
}

const keySeparator = "|"

// Build returns the grouping key and false if any component is empty
func (c CompositeKey) Build(entry ClearingEntry) (string, bool) {
	parts := make([]string, 0, len(c.builders))
	for _, b := range c.builders {
		k := b.Key(entry)
		if k == "" {
			return "", false
		}
		parts = append(parts, string(b.Field())+"="+k)
	}
	return strings.Join(parts, keySeparator), true
}
