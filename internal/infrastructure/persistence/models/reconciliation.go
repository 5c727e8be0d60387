package models

import (
	"encoding/json"
	"time"

	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// logger for model conversion errors (silent failures are logged for debugging)
var modelLogger = zap.L().Named("reconciliation.models")

// ReconciliationModel is the persistence model for the Reconciliation aggregate root.
type ReconciliationModel struct {
	TenantAggregateModel
	Type           string                `gorm:"type:varchar(50);not null;index"`
	Name           string                `gorm:"type:varchar(200);not null"`
	PeriodStart    time.Time             `gorm:"type:date;not null"`
	PeriodEnd      time.Time             `gorm:"type:date;not null"`
	Status         reconciliation.Status `gorm:"type:varchar(20);not null;default:'draft';index"`
	TotalItems     int64                 `gorm:"not null;default:0"`
	MatchedItems   int64                 `gorm:"not null;default:0"`
	UnmatchedItems int64                 `gorm:"not null;default:0"`
	TotalAmount    decimal.Decimal       `gorm:"type:decimal(18,4);not null;default:0"`
	MatchedAmount  decimal.Decimal       `gorm:"type:decimal(18,4);not null;default:0"`
	Notes          string                `gorm:"type:text"`
	FinalizedBy    *uuid.UUID            `gorm:"type:uuid"`
	FinalizedAt    *time.Time
	CancelledBy    *uuid.UUID `gorm:"type:uuid"`
	CancelledAt    *time.Time
}

// TableName returns the table name for GORM
func (ReconciliationModel) TableName() string {
	return "reconciliations"
}

// ToDomain converts the persistence model to a domain Reconciliation
func (m *ReconciliationModel) ToDomain() *reconciliation.Reconciliation {
	r := &reconciliation.Reconciliation{
		Type:           m.Type,
		Name:           m.Name,
		PeriodStart:    m.PeriodStart,
		PeriodEnd:      m.PeriodEnd,
		Status:         m.Status,
		TotalItems:     m.TotalItems,
		MatchedItems:   m.MatchedItems,
		UnmatchedItems: m.UnmatchedItems,
		TotalAmount:    m.TotalAmount,
		MatchedAmount:  m.MatchedAmount,
		Notes:          m.Notes,
		FinalizedBy:    m.FinalizedBy,
		FinalizedAt:    m.FinalizedAt,
		CancelledBy:    m.CancelledBy,
		CancelledAt:    m.CancelledAt,
	}
	m.PopulateTenantAggregateRoot(&r.TenantAggregateRoot)
	return r
}

// FromDomain populates the persistence model from a domain Reconciliation
func (m *ReconciliationModel) FromDomain(r *reconciliation.Reconciliation) {
	m.FromDomainTenantAggregateRoot(r.TenantAggregateRoot)
	m.Type = r.Type
	m.Name = r.Name
	m.PeriodStart = r.PeriodStart
	m.PeriodEnd = r.PeriodEnd
	m.Status = r.Status
	m.TotalItems = r.TotalItems
	m.MatchedItems = r.MatchedItems
	m.UnmatchedItems = r.UnmatchedItems
	m.TotalAmount = r.TotalAmount
	m.MatchedAmount = r.MatchedAmount
	m.Notes = r.Notes
	m.FinalizedBy = r.FinalizedBy
	m.FinalizedAt = r.FinalizedAt
	m.CancelledBy = r.CancelledBy
	m.CancelledAt = r.CancelledAt
}

// ReconciliationModelFromDomain creates a persistence model from a domain Reconciliation
func ReconciliationModelFromDomain(r *reconciliation.Reconciliation) *ReconciliationModel {
	m := &ReconciliationModel{}
	m.FromDomain(r)
	return m
}

// ClearingEntryModel maps ledger clearing entries. The table is written by the
// ledger; reconciliation only moves status and matched_at.
type ClearingEntryModel struct {
	TenantModel
	ReferenceNumber string                     `gorm:"type:varchar(100);index"`
	EntryDate       time.Time                  `gorm:"type:date;not null;index"`
	Amount          decimal.Decimal            `gorm:"type:decimal(18,4);not null"`
	Description     string                     `gorm:"type:text"`
	Status          reconciliation.EntryStatus `gorm:"type:varchar(20);not null;default:'pending';index"`
	MatchedAt       *time.Time
}

// TableName returns the table name for GORM
func (ClearingEntryModel) TableName() string {
	return "clearing_entries"
}

// ToDomain converts the persistence model to a domain ClearingEntry
func (m *ClearingEntryModel) ToDomain() reconciliation.ClearingEntry {
	return reconciliation.ClearingEntry{
		ID:              m.ID,
		TenantID:        m.TenantID,
		ReferenceNumber: m.ReferenceNumber,
		EntryDate:       m.EntryDate,
		Amount:          m.Amount,
		Description:     m.Description,
		Status:          m.Status,
		MatchedAt:       m.MatchedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// ClearingEntryModelFromDomain creates a persistence model from a domain ClearingEntry
func ClearingEntryModelFromDomain(e reconciliation.ClearingEntry) *ClearingEntryModel {
	return &ClearingEntryModel{
		TenantModel: TenantModel{
			BaseModel: BaseModel{ID: e.ID, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt},
			TenantID:  e.TenantID,
		},
		ReferenceNumber: e.ReferenceNumber,
		EntryDate:       e.EntryDate,
		Amount:          e.Amount,
		Description:     e.Description,
		Status:          e.Status,
		MatchedAt:       e.MatchedAt,
	}
}

// ReconciliationRuleModel is the persistence model for matching rules
type ReconciliationRuleModel struct {
	TenantAggregateModel
	Name              string              `gorm:"type:varchar(100);not null"`
	Priority          int                 `gorm:"not null;default:0;index"`
	MatchFieldsJSON   string              `gorm:"column:match_fields;type:jsonb;not null;default:'[]'"`
	ToleranceAmount   decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	ToleranceDateDays *int
	Active            bool `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (ReconciliationRuleModel) TableName() string {
	return "reconciliation_rules"
}

// ToDomain converts the persistence model to a domain ReconciliationRule
func (m *ReconciliationRuleModel) ToDomain() *reconciliation.ReconciliationRule {
	r := &reconciliation.ReconciliationRule{
		Name:        m.Name,
		Priority:    m.Priority,
		MatchFields: make([]reconciliation.MatchField, 0),
		Active:      m.Active,
	}
	m.PopulateTenantAggregateRoot(&r.TenantAggregateRoot)

	if m.MatchFieldsJSON != "" && m.MatchFieldsJSON != "[]" {
		var fields []reconciliation.MatchField
		if err := json.Unmarshal([]byte(m.MatchFieldsJSON), &fields); err != nil {
			modelLogger.Warn("failed to parse match_fields JSON",
				zap.String("rule_id", m.ID.String()),
				zap.String("raw_json", m.MatchFieldsJSON),
				zap.Error(err))
		} else {
			r.MatchFields = fields
		}
	}
	if m.ToleranceAmount.Valid {
		amount := m.ToleranceAmount.Decimal
		r.Tolerance.Amount = &amount
	}
	if m.ToleranceDateDays != nil {
		days := *m.ToleranceDateDays
		r.Tolerance.DateDays = &days
	}
	return r
}

// FromDomain populates the persistence model from a domain ReconciliationRule
func (m *ReconciliationRuleModel) FromDomain(r *reconciliation.ReconciliationRule) {
	m.FromDomainTenantAggregateRoot(r.TenantAggregateRoot)
	m.Name = r.Name
	m.Priority = r.Priority
	m.Active = r.Active
	m.MatchFieldsJSON = marshalJSON(r.MatchFields, "[]")
	m.ToleranceAmount = decimal.NullDecimal{}
	if r.Tolerance.Amount != nil {
		m.ToleranceAmount = decimal.NewNullDecimal(*r.Tolerance.Amount)
	}
	m.ToleranceDateDays = r.Tolerance.DateDays
}

// ReconciliationRuleModelFromDomain creates a persistence model from a domain rule
func ReconciliationRuleModelFromDomain(r *reconciliation.ReconciliationRule) *ReconciliationRuleModel {
	m := &ReconciliationRuleModel{}
	m.FromDomain(r)
	return m
}

// ReconciliationMatchModel is the persistence model for matches. Matches are
// immutable once written.
type ReconciliationMatchModel struct {
	TenantModel
	ReconciliationID uuid.UUID                       `gorm:"type:uuid;not null;index"`
	MatchType        reconciliation.MatchType        `gorm:"type:varchar(20);not null"`
	Amount           decimal.Decimal                 `gorm:"type:decimal(18,4);not null"`
	Difference       decimal.Decimal                 `gorm:"type:decimal(18,4);not null;default:0"`
	RuleID           *uuid.UUID                      `gorm:"type:uuid;index"`
	Notes            string                          `gorm:"type:text"`
	CreatedBy        *uuid.UUID                      `gorm:"type:uuid"`
	Entries          []ReconciliationMatchEntryModel `gorm:"foreignKey:MatchID;references:ID"`
}

// TableName returns the table name for GORM
func (ReconciliationMatchModel) TableName() string {
	return "reconciliation_matches"
}

// ReconciliationMatchEntryModel links a clearing entry to a match side
type ReconciliationMatchEntryModel struct {
	ID              uuid.UUID                `gorm:"type:uuid;primary_key"`
	TenantID        uuid.UUID                `gorm:"type:uuid;not null;index"`
	MatchID         uuid.UUID                `gorm:"type:uuid;not null;index"`
	ClearingEntryID uuid.UUID                `gorm:"type:uuid;not null;index"`
	Role            reconciliation.MatchRole `gorm:"type:varchar(10);not null"`
	Amount          decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	CreatedAt       time.Time                `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReconciliationMatchEntryModel) TableName() string {
	return "reconciliation_match_entries"
}

// ToDomain converts the persistence model to a domain ReconciliationMatch
func (m *ReconciliationMatchModel) ToDomain() *reconciliation.ReconciliationMatch {
	match := &reconciliation.ReconciliationMatch{
		TenantEntity:     m.ToTenantEntity(),
		ReconciliationID: m.ReconciliationID,
		MatchType:        m.MatchType,
		Amount:           m.Amount,
		Difference:       m.Difference,
		RuleID:           m.RuleID,
		Notes:            m.Notes,
		CreatedBy:        m.CreatedBy,
		Entries:          make([]reconciliation.MatchEntry, len(m.Entries)),
	}
	for i, e := range m.Entries {
		match.Entries[i] = reconciliation.MatchEntry{
			ClearingEntryID: e.ClearingEntryID,
			Role:            e.Role,
			Amount:          e.Amount,
		}
	}
	return match
}

// ReconciliationMatchModelFromDomain creates a persistence model, including the
// entry links, from a domain match
func ReconciliationMatchModelFromDomain(match *reconciliation.ReconciliationMatch) *ReconciliationMatchModel {
	m := &ReconciliationMatchModel{
		ReconciliationID: match.ReconciliationID,
		MatchType:        match.MatchType,
		Amount:           match.Amount,
		Difference:       match.Difference,
		RuleID:           match.RuleID,
		Notes:            match.Notes,
		CreatedBy:        match.CreatedBy,
		Entries:          make([]ReconciliationMatchEntryModel, len(match.Entries)),
	}
	m.FromDomainTenantEntity(match.TenantEntity)
	for i, e := range match.Entries {
		m.Entries[i] = ReconciliationMatchEntryModel{
			ID:              uuid.New(),
			TenantID:        match.TenantID,
			MatchID:         match.ID,
			ClearingEntryID: e.ClearingEntryID,
			Role:            e.Role,
			Amount:          e.Amount,
			CreatedAt:       match.CreatedAt,
		}
	}
	return m
}

// ReconciliationAllocationModel is the persistence model for allocations
type ReconciliationAllocationModel struct {
	TenantModel
	ReconciliationID uuid.UUID       `gorm:"type:uuid;not null;index"`
	ClearingEntryID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	TargetAccountID  uuid.UUID       `gorm:"type:uuid;not null"`
	Amount           decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Notes            string          `gorm:"type:text"`
	CreatedBy        *uuid.UUID      `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (ReconciliationAllocationModel) TableName() string {
	return "reconciliation_allocations"
}

// ToDomain converts the persistence model to a domain ReconciliationAllocation
func (m *ReconciliationAllocationModel) ToDomain() *reconciliation.ReconciliationAllocation {
	return &reconciliation.ReconciliationAllocation{
		TenantEntity:     m.ToTenantEntity(),
		ReconciliationID: m.ReconciliationID,
		ClearingEntryID:  m.ClearingEntryID,
		TargetAccountID:  m.TargetAccountID,
		Amount:           m.Amount,
		Notes:            m.Notes,
		CreatedBy:        m.CreatedBy,
	}
}

// ReconciliationAllocationModelFromDomain creates a persistence model from a domain allocation
func ReconciliationAllocationModelFromDomain(a *reconciliation.ReconciliationAllocation) *ReconciliationAllocationModel {
	m := &ReconciliationAllocationModel{
		ReconciliationID: a.ReconciliationID,
		ClearingEntryID:  a.ClearingEntryID,
		TargetAccountID:  a.TargetAccountID,
		Amount:           a.Amount,
		Notes:            a.Notes,
		CreatedBy:        a.CreatedBy,
	}
	m.FromDomainTenantEntity(a.TenantEntity)
	return m
}

// ReconciliationExceptionModel is the persistence model for exceptions
type ReconciliationExceptionModel struct {
	TenantModel
	ReconciliationID   uuid.UUID                        `gorm:"type:uuid;not null;index"`
	Category           reconciliation.ExceptionCategory `gorm:"type:varchar(30);not null"`
	Description        string                           `gorm:"type:text;not null"`
	GroupKey           string                           `gorm:"type:varchar(300);index"`
	EntryIDsJSON       string                           `gorm:"column:entry_ids;type:jsonb;not null;default:'[]'"`
	Amount             decimal.Decimal                  `gorm:"type:decimal(18,4);not null;default:0"`
	Resolved           bool                             `gorm:"not null;default:false;index"`
	ResolvedBy         *uuid.UUID                       `gorm:"type:uuid"`
	ResolvedAt         *time.Time
	Resolution         string `gorm:"type:text"`
	ResolutionCategory string `gorm:"type:varchar(50)"`
}

// TableName returns the table name for GORM
func (ReconciliationExceptionModel) TableName() string {
	return "reconciliation_exceptions"
}

// ToDomain converts the persistence model to a domain ReconciliationException
func (m *ReconciliationExceptionModel) ToDomain() *reconciliation.ReconciliationException {
	e := &reconciliation.ReconciliationException{
		TenantEntity:       m.ToTenantEntity(),
		ReconciliationID:   m.ReconciliationID,
		Category:           m.Category,
		Description:        m.Description,
		GroupKey:           m.GroupKey,
		EntryIDs:           make([]uuid.UUID, 0),
		Amount:             m.Amount,
		Resolved:           m.Resolved,
		ResolvedBy:         m.ResolvedBy,
		ResolvedAt:         m.ResolvedAt,
		Resolution:         m.Resolution,
		ResolutionCategory: m.ResolutionCategory,
	}
	if m.EntryIDsJSON != "" && m.EntryIDsJSON != "[]" {
		var ids []uuid.UUID
		if err := json.Unmarshal([]byte(m.EntryIDsJSON), &ids); err != nil {
			modelLogger.Warn("failed to parse entry_ids JSON",
				zap.String("exception_id", m.ID.String()),
				zap.String("raw_json", m.EntryIDsJSON),
				zap.Error(err))
		} else {
			e.EntryIDs = ids
		}
	}
	return e
}

// ReconciliationExceptionModelFromDomain creates a persistence model from a domain exception
func ReconciliationExceptionModelFromDomain(e *reconciliation.ReconciliationException) *ReconciliationExceptionModel {
	m := &ReconciliationExceptionModel{
		ReconciliationID:   e.ReconciliationID,
		Category:           e.Category,
		Description:        e.Description,
		GroupKey:           e.GroupKey,
		EntryIDsJSON:       marshalJSON(e.EntryIDs, "[]"),
		Amount:             e.Amount,
		Resolved:           e.Resolved,
		ResolvedBy:         e.ResolvedBy,
		ResolvedAt:         e.ResolvedAt,
		Resolution:         e.Resolution,
		ResolutionCategory: e.ResolutionCategory,
	}
	m.FromDomainTenantEntity(e.TenantEntity)
	return m
}

// ReconciliationHistoryModel is the append-only audit trail
type ReconciliationHistoryModel struct {
	ID               uuid.UUID                    `gorm:"type:uuid;primary_key"`
	TenantID         uuid.UUID                    `gorm:"type:uuid;not null;index"`
	ReconciliationID uuid.UUID                    `gorm:"type:uuid;not null;index"`
	Action           reconciliation.HistoryAction `gorm:"type:varchar(30);not null"`
	ActorID          *uuid.UUID                   `gorm:"type:uuid"`
	DetailsJSON      string                       `gorm:"column:details;type:jsonb;not null;default:'{}'"`
	CreatedAt        time.Time                    `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (ReconciliationHistoryModel) TableName() string {
	return "reconciliation_history"
}

// ToDomain converts the persistence model to a domain ReconciliationHistory
func (m *ReconciliationHistoryModel) ToDomain() *reconciliation.ReconciliationHistory {
	h := &reconciliation.ReconciliationHistory{
		ID:               m.ID,
		TenantID:         m.TenantID,
		ReconciliationID: m.ReconciliationID,
		Action:           m.Action,
		ActorID:          m.ActorID,
		Details:          map[string]any{},
		CreatedAt:        m.CreatedAt,
	}
	if m.DetailsJSON != "" && m.DetailsJSON != "{}" {
		var details map[string]any
		if err := json.Unmarshal([]byte(m.DetailsJSON), &details); err != nil {
			modelLogger.Warn("failed to parse history details JSON",
				zap.String("history_id", m.ID.String()),
				zap.Error(err))
		} else {
			h.Details = details
		}
	}
	return h
}

// ReconciliationHistoryModelFromDomain creates a persistence model from a domain history row
func ReconciliationHistoryModelFromDomain(h *reconciliation.ReconciliationHistory) *ReconciliationHistoryModel {
	return &ReconciliationHistoryModel{
		ID:               h.ID,
		TenantID:         h.TenantID,
		ReconciliationID: h.ReconciliationID,
		Action:           h.Action,
		ActorID:          h.ActorID,
		DetailsJSON:      marshalJSON(h.Details, "{}"),
		CreatedAt:        h.CreatedAt,
	}
}

// AllReconciliationModels lists the models owned by this service, in creation order
func AllReconciliationModels() []any {
	return []any{
		&ClearingEntryModel{},
		&ReconciliationModel{},
		&ReconciliationRuleModel{},
		&ReconciliationMatchModel{},
		&ReconciliationMatchEntryModel{},
		&ReconciliationAllocationModel{},
		&ReconciliationExceptionModel{},
		&ReconciliationHistoryModel{},
	}
}

func marshalJSON(v any, fallback string) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return fallback
	}
	return string(b)
}
