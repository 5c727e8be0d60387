package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormReconciliationRepository implements ReconciliationRepository using GORM
type GormReconciliationRepository struct {
	db *gorm.DB
}

// NewGormReconciliationRepository creates a new GormReconciliationRepository
func NewGormReconciliationRepository(db *gorm.DB) *GormReconciliationRepository {
	return &GormReconciliationRepository{db: db}
}

// reconciliationSortColumns whitelists the columns a listing may sort on
var reconciliationSortColumns = map[string]bool{
	"created_at":     true,
	"updated_at":     true,
	"name":           true,
	"type":           true,
	"status":         true,
	"period_start":   true,
	"period_end":     true,
	"total_amount":   true,
	"matched_amount": true,
}

// reconciliationOrder builds an ORDER BY clause, falling back to
// created_at DESC for anything not whitelisted.
func reconciliationOrder(orderBy, orderDir string) string {
	column := strings.TrimSpace(orderBy)
	if !reconciliationSortColumns[column] {
		column = "created_at"
	}
	if strings.EqualFold(strings.TrimSpace(orderDir), "asc") {
		return column + " ASC"
	}
	return column + " DESC"
}

// FindByIDForTenant finds a reconciliation by ID for a specific tenant
func (r *GormReconciliationRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*reconciliation.Reconciliation, error) {
	var model models.ReconciliationModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reconciliation.ErrReconciliationNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllForTenant finds reconciliations for a tenant with filtering and paging
func (r *GormReconciliationRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter reconciliation.ReconciliationFilter) ([]reconciliation.Reconciliation, error) {
	var recModels []models.ReconciliationModel
	query := r.db.WithContext(ctx).Model(&models.ReconciliationModel{}).
		Where("tenant_id = ?", tenantID)
	query = r.applyFilter(query, filter)

	query = query.Order(reconciliationOrder(filter.OrderBy, filter.OrderDir)).Order("id DESC")
	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}

	if err := query.Find(&recModels).Error; err != nil {
		return nil, err
	}
	recs := make([]reconciliation.Reconciliation, len(recModels))
	for i := range recModels {
		recs[i] = *recModels[i].ToDomain()
	}
	return recs, nil
}

// CountForTenant counts reconciliations matching the filter, ignoring paging
func (r *GormReconciliationRepository) CountForTenant(ctx context.Context, tenantID uuid.UUID, filter reconciliation.ReconciliationFilter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.ReconciliationModel{}).
		Where("tenant_id = ?", tenantID)
	if err := r.applyFilter(query, filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountByStatus returns the number of reconciliations per status
func (r *GormReconciliationRepository) CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[reconciliation.Status]int64, error) {
	var rows []struct {
		Status reconciliation.Status
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&models.ReconciliationModel{}).
		Select("status, COUNT(*) AS count").
		Where("tenant_id = ?", tenantID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[reconciliation.Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// CountByType returns the number of reconciliations per type
func (r *GormReconciliationRepository) CountByType(ctx context.Context, tenantID uuid.UUID) (map[string]int64, error) {
	var rows []struct {
		Type  string
		Count int64
	}
	if err := r.db.WithContext(ctx).Model(&models.ReconciliationModel{}).
		Select("type, COUNT(*) AS count").
		Where("tenant_id = ?", tenantID).
		Group("type").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Type] = row.Count
	}
	return counts, nil
}

// Create inserts a new reconciliation
func (r *GormReconciliationRepository) Create(ctx context.Context, rec *reconciliation.Reconciliation) error {
	return r.db.WithContext(ctx).Create(models.ReconciliationModelFromDomain(rec)).Error
}

// SaveWithLock saves with optimistic locking (version check)
func (r *GormReconciliationRepository) SaveWithLock(ctx context.Context, rec *reconciliation.Reconciliation) error {
	var current models.ReconciliationModel
	if err := r.db.WithContext(ctx).
		Select("version").
		Where("tenant_id = ? AND id = ?", rec.TenantID, rec.ID).
		Take(&current).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return reconciliation.ErrReconciliationNotFound
		}
		return err
	}
	if current.Version != rec.Version {
		return reconciliation.ErrReconciliationModified
	}

	nextVersion := rec.Version + 1
	updatedAt := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.ReconciliationModel{}).
		Where("id = ? AND version = ?", rec.ID, current.Version).
		Updates(map[string]any{
			"type":            rec.Type,
			"name":            rec.Name,
			"period_start":    rec.PeriodStart,
			"period_end":      rec.PeriodEnd,
			"status":          rec.Status,
			"total_items":     rec.TotalItems,
			"matched_items":   rec.MatchedItems,
			"unmatched_items": rec.UnmatchedItems,
			"total_amount":    rec.TotalAmount,
			"matched_amount":  rec.MatchedAmount,
			"notes":           rec.Notes,
			"finalized_by":    rec.FinalizedBy,
			"finalized_at":    rec.FinalizedAt,
			"cancelled_by":    rec.CancelledBy,
			"cancelled_at":    rec.CancelledAt,
			"version":         nextVersion,
			"updated_at":      updatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return reconciliation.ErrReconciliationModified
	}

	rec.Version = nextVersion
	rec.UpdatedAt = updatedAt
	return nil
}

// applyFilter applies filter options without paging
func (r *GormReconciliationRepository) applyFilter(query *gorm.DB, filter reconciliation.ReconciliationFilter) *gorm.DB {
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(notes) LIKE ?", pattern, pattern)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	// From/To select periods overlapping the range
	if filter.From != nil {
		query = query.Where("period_end >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("period_start <= ?", *filter.To)
	}
	return query
}

// Ensure GormReconciliationRepository implements ReconciliationRepository
var _ reconciliation.ReconciliationRepository = (*GormReconciliationRepository)(nil)
