package reconciliation

import (
	"time"

	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ==================== Requests ====================

// CreateReconciliationRequest creates a draft reconciliation
type CreateReconciliationRequest struct {
	Type        string
	Name        string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Notes       string
}

// UpdateReconciliationRequest patches header fields
type UpdateReconciliationRequest struct {
	Type        *string
	Name        *string
	PeriodStart *time.Time
	PeriodEnd   *time.Time
	Notes       *string
}

// ReconciliationListFilter filters reconciliation listings
type ReconciliationListFilter struct {
	Type     string
	Status   string
	From     *time.Time
	To       *time.Time
	Search   string
	Page     int
	PageSize int
}

// CreateMatchRequest matches source entries against target entries
type CreateMatchRequest struct {
	ReconciliationID uuid.UUID
	SourceEntryIDs   []uuid.UUID
	TargetEntryIDs   []uuid.UUID
	Notes            string
}

// AutoMatchRequest runs the matching rules over pending entries
type AutoMatchRequest struct {
	ReconciliationID uuid.UUID
	RuleID           *uuid.UUID
}

// CreateAllocationRequest allocates part of an entry to a target account
type CreateAllocationRequest struct {
	ReconciliationID uuid.UUID
	ClearingEntryID  uuid.UUID
	TargetAccountID  uuid.UUID
	Amount           decimal.Decimal
	Notes            string
}

// RaiseExceptionRequest records a manual exception
type RaiseExceptionRequest struct {
	Description string
	EntryIDs    []uuid.UUID
	Amount      *decimal.Decimal
}

// ResolveExceptionRequest resolves an exception
type ResolveExceptionRequest struct {
	Resolution string
	Category   string
}

// ToleranceInput is the optional tolerance of a rule
type ToleranceInput struct {
	Amount   *decimal.Decimal
	DateDays *int
}

// CreateRuleRequest creates a matching rule
type CreateRuleRequest struct {
	Name        string
	Priority    int
	MatchFields []string
	Tolerance   ToleranceInput
	Active      *bool
}

// UpdateRuleRequest patches a matching rule
type UpdateRuleRequest struct {
	Name        *string
	Priority    *int
	MatchFields []string
	Tolerance   *ToleranceInput
	Active      *bool
}

// ==================== Responses ====================

// ReconciliationResponse is a reconciliation header
type ReconciliationResponse struct {
	ID             uuid.UUID       `json:"id"`
	TenantID       uuid.UUID       `json:"tenant_id"`
	Type           string          `json:"type"`
	Name           string          `json:"name"`
	PeriodStart    string          `json:"period_start"`
	PeriodEnd      string          `json:"period_end"`
	Status         string          `json:"status"`
	TotalItems     int64           `json:"total_items"`
	MatchedItems   int64           `json:"matched_items"`
	UnmatchedItems int64           `json:"unmatched_items"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	MatchedAmount  decimal.Decimal `json:"matched_amount"`
	MatchRate      decimal.Decimal `json:"match_rate"`
	Notes          string          `json:"notes,omitempty"`
	CreatedBy      *uuid.UUID      `json:"created_by,omitempty"`
	FinalizedBy    *uuid.UUID      `json:"finalized_by,omitempty"`
	FinalizedAt    *time.Time      `json:"finalized_at,omitempty"`
	CancelledBy    *uuid.UUID      `json:"cancelled_by,omitempty"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Version        int             `json:"version"`
}

// MatchEntryResponse is one side of a match
type MatchEntryResponse struct {
	ClearingEntryID uuid.UUID       `json:"clearing_entry_id"`
	Role            string          `json:"role"`
	Amount          decimal.Decimal `json:"amount"`
}

// MatchResponse is a match with its entries
type MatchResponse struct {
	ID               uuid.UUID            `json:"id"`
	ReconciliationID uuid.UUID            `json:"reconciliation_id"`
	MatchType        string               `json:"match_type"`
	Amount           decimal.Decimal      `json:"amount"`
	Difference       decimal.Decimal      `json:"difference"`
	RuleID           *uuid.UUID           `json:"rule_id,omitempty"`
	Notes            string               `json:"notes,omitempty"`
	CreatedBy        *uuid.UUID           `json:"created_by,omitempty"`
	Entries          []MatchEntryResponse `json:"entries"`
	CreatedAt        time.Time            `json:"created_at"`
}

// AllocationResponse is an allocation
type AllocationResponse struct {
	ID               uuid.UUID       `json:"id"`
	ReconciliationID uuid.UUID       `json:"reconciliation_id"`
	ClearingEntryID  uuid.UUID       `json:"clearing_entry_id"`
	TargetAccountID  uuid.UUID       `json:"target_account_id"`
	Amount           decimal.Decimal `json:"amount"`
	Notes            string          `json:"notes,omitempty"`
	CreatedBy        *uuid.UUID      `json:"created_by,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	// ExceptionRaised is set when the allocation pushed the entry past its amount
	ExceptionRaised bool `json:"exception_raised"`
}

// ExceptionResponse is an exception
type ExceptionResponse struct {
	ID                 uuid.UUID       `json:"id"`
	ReconciliationID   uuid.UUID       `json:"reconciliation_id"`
	Category           string          `json:"category"`
	Description        string          `json:"description"`
	GroupKey           string          `json:"group_key,omitempty"`
	EntryIDs           []uuid.UUID     `json:"entry_ids"`
	Amount             decimal.Decimal `json:"amount"`
	Resolved           bool            `json:"resolved"`
	ResolvedBy         *uuid.UUID      `json:"resolved_by,omitempty"`
	ResolvedAt         *time.Time      `json:"resolved_at,omitempty"`
	Resolution         string          `json:"resolution,omitempty"`
	ResolutionCategory string          `json:"resolution_category,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// HistoryResponse is an audit trail row
type HistoryResponse struct {
	ID        uuid.UUID      `json:"id"`
	Action    string         `json:"action"`
	ActorID   *uuid.UUID     `json:"actor_id,omitempty"`
	Details   map[string]any `json:"details"`
	CreatedAt time.Time      `json:"created_at"`
}

// ReconciliationDetailResponse is a reconciliation with everything it owns
type ReconciliationDetailResponse struct {
	ReconciliationResponse
	Matches     []MatchResponse      `json:"matches"`
	Allocations []AllocationResponse `json:"allocations"`
	Exceptions  []ExceptionResponse  `json:"exceptions"`
	History     []HistoryResponse    `json:"history"`
}

// AutoMatchResponse summarises an auto-match pass
type AutoMatchResponse struct {
	MatchedCount     int `json:"matched_count"`
	SkippedCount     int `json:"skipped_count"`
	ExceptionsRaised int `json:"exceptions_raised"`
}

// StatisticsResponse aggregates reconciliations of a business
type StatisticsResponse struct {
	Total          int64            `json:"total"`
	ByStatus       map[string]int64 `json:"by_status"`
	ByType         map[string]int64 `json:"by_type"`
	OpenExceptions int64            `json:"open_exceptions"`
}

// ToleranceResponse is a rule tolerance
type ToleranceResponse struct {
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	DateDays *int             `json:"date_days,omitempty"`
}

// RuleResponse is a matching rule
type RuleResponse struct {
	ID          uuid.UUID         `json:"id"`
	Name        string            `json:"name"`
	Priority    int               `json:"priority"`
	MatchFields []string          `json:"match_fields"`
	Tolerance   ToleranceResponse `json:"tolerance"`
	Active      bool              `json:"active"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Version     int               `json:"version"`
}

// ExportFile is a rendered export
type ExportFile struct {
	FileName    string
	ContentType string
	Content     []byte
}

// ==================== Mapping ====================

const dateLayout = "2006-01-02"

// ToReconciliationResponse maps the aggregate to its response
func ToReconciliationResponse(r *reconciliation.Reconciliation) ReconciliationResponse {
	return ReconciliationResponse{
		ID:             r.ID,
		TenantID:       r.TenantID,
		Type:           r.Type,
		Name:           r.Name,
		PeriodStart:    r.PeriodStart.Format(dateLayout),
		PeriodEnd:      r.PeriodEnd.Format(dateLayout),
		Status:         string(r.Status),
		TotalItems:     r.TotalItems,
		MatchedItems:   r.MatchedItems,
		UnmatchedItems: r.UnmatchedItems,
		TotalAmount:    r.TotalAmount,
		MatchedAmount:  r.MatchedAmount,
		MatchRate:      r.MatchRate(),
		Notes:          r.Notes,
		CreatedBy:      r.CreatedBy,
		FinalizedBy:    r.FinalizedBy,
		FinalizedAt:    r.FinalizedAt,
		CancelledBy:    r.CancelledBy,
		CancelledAt:    r.CancelledAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		Version:        r.Version,
	}
}

// ToMatchResponse maps a match to its response
func ToMatchResponse(m *reconciliation.ReconciliationMatch) MatchResponse {
	entries := make([]MatchEntryResponse, len(m.Entries))
	for i, e := range m.Entries {
		entries[i] = MatchEntryResponse{
			ClearingEntryID: e.ClearingEntryID,
			Role:            string(e.Role),
			Amount:          e.Amount,
		}
	}
	return MatchResponse{
		ID:               m.ID,
		ReconciliationID: m.ReconciliationID,
		MatchType:        string(m.MatchType),
		Amount:           m.Amount,
		Difference:       m.Difference,
		RuleID:           m.RuleID,
		Notes:            m.Notes,
		CreatedBy:        m.CreatedBy,
		Entries:          entries,
		CreatedAt:        m.CreatedAt,
	}
}

// ToAllocationResponse maps an allocation to its response
func ToAllocationResponse(a *reconciliation.ReconciliationAllocation) AllocationResponse {
	return AllocationResponse{
		ID:               a.ID,
		ReconciliationID: a.ReconciliationID,
		ClearingEntryID:  a.ClearingEntryID,
		TargetAccountID:  a.TargetAccountID,
		Amount:           a.Amount,
		Notes:            a.Notes,
		CreatedBy:        a.CreatedBy,
		CreatedAt:        a.CreatedAt,
	}
}

// ToExceptionResponse maps an exception to its response
func ToExceptionResponse(e *reconciliation.ReconciliationException) ExceptionResponse {
	entryIDs := e.EntryIDs
	if entryIDs == nil {
		entryIDs = []uuid.UUID{}
	}
	return ExceptionResponse{
		ID:                 e.ID,
		ReconciliationID:   e.ReconciliationID,
		Category:           string(e.Category),
		Description:        e.Description,
		GroupKey:           e.GroupKey,
		EntryIDs:           entryIDs,
		Amount:             e.Amount,
		Resolved:           e.Resolved,
		ResolvedBy:         e.ResolvedBy,
		ResolvedAt:         e.ResolvedAt,
		Resolution:         e.Resolution,
		ResolutionCategory: e.ResolutionCategory,
		CreatedAt:          e.CreatedAt,
	}
}

// ToHistoryResponse maps a history row to its response
func ToHistoryResponse(h *reconciliation.ReconciliationHistory) HistoryResponse {
	return HistoryResponse{
		ID:        h.ID,
		Action:    string(h.Action),
		ActorID:   h.ActorID,
		Details:   h.Details,
		CreatedAt: h.CreatedAt,
	}
}

// ToRuleResponse maps a rule to its response
func ToRuleResponse(r *reconciliation.ReconciliationRule) RuleResponse {
	fields := make([]string, len(r.MatchFields))
	for i, f := range r.MatchFields {
		fields[i] = string(f)
	}
	return RuleResponse{
		ID:          r.ID,
		Name:        r.Name,
		Priority:    r.Priority,
		MatchFields: fields,
		Tolerance: ToleranceResponse{
			Amount:   r.Tolerance.Amount,
			DateDays: r.Tolerance.DateDays,
		},
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Version:   r.Version,
	}
}
