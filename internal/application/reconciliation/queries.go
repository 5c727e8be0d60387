package reconciliation

import (
	"context"
	"fmt"
	"strings"

	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/infrastructure/telemetry"
	"github.com/google/uuid"
)

// List returns a page of reconciliations, newest first
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, filter ReconciliationListFilter) (*shared.Paginated[ReconciliationResponse], error) {
	domainFilter := reconciliation.ReconciliationFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			OrderBy:  "created_at",
			OrderDir: "desc",
			Search:   strings.TrimSpace(filter.Search),
		}.Normalize(),
		Type: strings.TrimSpace(filter.Type),
		From: filter.From,
		To:   filter.To,
	}
	if filter.Status != "" {
		status := reconciliation.Status(filter.Status)
		if !status.IsValid() {
			return nil, shared.NewDomainErrorf(shared.CodeInvalidInput, "Unknown status: %q", filter.Status)
		}
		domainFilter.Status = &status
	}

	recs, err := s.repos.Reconciliations.FindAllForTenant(ctx, tenantID, domainFilter)
	if err != nil {
		return nil, err
	}
	total, err := s.repos.Reconciliations.CountForTenant(ctx, tenantID, domainFilter)
	if err != nil {
		return nil, err
	}

	items := make([]ReconciliationResponse, len(recs))
	for i := range recs {
		items[i] = ToReconciliationResponse(&recs[i])
	}
	page := shared.NewPaginated(items, total, domainFilter.Page, domainFilter.PageSize)
	return &page, nil
}

// Get returns a reconciliation with its matches, allocations, exceptions and recent history
func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (*ReconciliationDetailResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "get")
	defer span.End()

	rec, err := s.repos.Reconciliations.FindByIDForTenant(ctx, tenantID, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	matches, err := s.repos.Matches.FindByReconciliation(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	allocations, err := s.repos.Allocations.FindByReconciliation(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	exceptions, err := s.repos.Exceptions.FindByReconciliation(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	history, err := s.repos.History.FindRecent(ctx, tenantID, id, RecentHistoryLimit)
	if err != nil {
		return nil, err
	}

	detail := &ReconciliationDetailResponse{
		ReconciliationResponse: ToReconciliationResponse(rec),
		Matches:                make([]MatchResponse, len(matches)),
		Allocations:            make([]AllocationResponse, len(allocations)),
		Exceptions:             make([]ExceptionResponse, len(exceptions)),
		History:                make([]HistoryResponse, len(history)),
	}
	for i := range matches {
		detail.Matches[i] = ToMatchResponse(&matches[i])
	}
	for i := range allocations {
		detail.Allocations[i] = ToAllocationResponse(&allocations[i])
	}
	for i := range exceptions {
		detail.Exceptions[i] = ToExceptionResponse(&exceptions[i])
	}
	for i := range history {
		detail.History[i] = ToHistoryResponse(&history[i])
	}
	return detail, nil
}

// GetStatistics summarises the reconciliations of a business
func (s *Service) GetStatistics(ctx context.Context, tenantID uuid.UUID) (*StatisticsResponse, error) {
	byStatus, err := s.repos.Reconciliations.CountByStatus(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	byType, err := s.repos.Reconciliations.CountByType(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	open, err := s.repos.Exceptions.CountUnresolvedForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	resp := &StatisticsResponse{
		ByStatus:       make(map[string]int64, len(reconciliation.AllStatuses())),
		ByType:         byType,
		OpenExceptions: open,
	}
	for _, status := range reconciliation.AllStatuses() {
		n := byStatus[status]
		resp.ByStatus[string(status)] = n
		resp.Total += n
	}
	if resp.ByType == nil {
		resp.ByType = map[string]int64{}
	}
	return resp, nil
}

// Export renders the reconciliation detail as a workbook
func (s *Service) Export(ctx context.Context, tenantID, id uuid.UUID) (*ExportFile, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "export")
	defer span.End()

	if s.renderer == nil {
		return nil, fmt.Errorf("export is not configured")
	}
	detail, err := s.Get(ctx, tenantID, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	content, err := s.renderer.Render(detail)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to render reconciliation export: %w", err)
	}
	return &ExportFile{
		FileName:    ExportFileName(detail) + s.renderer.Extension(),
		ContentType: s.renderer.ContentType(),
		Content:     content,
	}, nil
}

// ExportFileName derives a stable file name for a reconciliation export
func ExportFileName(detail *ReconciliationDetailResponse) string {
	return fmt.Sprintf("reconciliation-%s-%s", detail.PeriodStart, detail.ID.String()[:8])
}
