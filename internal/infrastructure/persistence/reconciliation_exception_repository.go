package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormReconciliationExceptionRepository implements ExceptionRepository using GORM
type GormReconciliationExceptionRepository struct {
	db *gorm.DB
}

// NewGormReconciliationExceptionRepository creates a new GormReconciliationExceptionRepository
func NewGormReconciliationExceptionRepository(db *gorm.DB) *GormReconciliationExceptionRepository {
	return &GormReconciliationExceptionRepository{db: db}
}

// FindByID finds an exception by ID without tenant scoping
func (r *GormReconciliationExceptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*reconciliation.ReconciliationException, error) {
	var model models.ReconciliationExceptionModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reconciliation.ErrExceptionNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByReconciliation returns exceptions newest first
func (r *GormReconciliationExceptionRepository) FindByReconciliation(ctx context.Context, tenantID, reconciliationID uuid.UUID) ([]reconciliation.ReconciliationException, error) {
	var excModels []models.ReconciliationExceptionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND reconciliation_id = ?", tenantID, reconciliationID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&excModels).Error; err != nil {
		return nil, err
	}
	exceptions := make([]reconciliation.ReconciliationException, len(excModels))
	for i := range excModels {
		exceptions[i] = *excModels[i].ToDomain()
	}
	return exceptions, nil
}

// CountUnresolved counts open exceptions of one reconciliation
func (r *GormReconciliationExceptionRepository) CountUnresolved(ctx context.Context, tenantID, reconciliationID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ReconciliationExceptionModel{}).
		Where("tenant_id = ? AND reconciliation_id = ? AND resolved = ?", tenantID, reconciliationID, false).
		Count(&count).Error
	return count, err
}

// CountUnresolvedForTenant counts open exceptions across all reconciliations of a tenant
func (r *GormReconciliationExceptionRepository) CountUnresolvedForTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ReconciliationExceptionModel{}).
		Where("tenant_id = ? AND resolved = ?", tenantID, false).
		Count(&count).Error
	return count, err
}

// ExistsUnresolvedByGroupKey reports whether an open exception already covers the group
func (r *GormReconciliationExceptionRepository) ExistsUnresolvedByGroupKey(ctx context.Context, tenantID, reconciliationID uuid.UUID, groupKey string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ReconciliationExceptionModel{}).
		Where("tenant_id = ? AND reconciliation_id = ? AND group_key = ? AND resolved = ?",
			tenantID, reconciliationID, groupKey, false).
		Limit(1).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts a new exception
func (r *GormReconciliationExceptionRepository) Create(ctx context.Context, e *reconciliation.ReconciliationException) error {
	return r.db.WithContext(ctx).Create(models.ReconciliationExceptionModelFromDomain(e)).Error
}

// Save writes the resolution fields of an exception
func (r *GormReconciliationExceptionRepository) Save(ctx context.Context, e *reconciliation.ReconciliationException) error {
	updatedAt := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.ReconciliationExceptionModel{}).
		Where("tenant_id = ? AND id = ?", e.TenantID, e.ID).
		Updates(map[string]any{
			"resolved":            e.Resolved,
			"resolved_by":         e.ResolvedBy,
			"resolved_at":         e.ResolvedAt,
			"resolution":          e.Resolution,
			"resolution_category": e.ResolutionCategory,
			"updated_at":          updatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return reconciliation.ErrExceptionNotFound
	}
	e.UpdatedAt = updatedAt
	return nil
}

// Ensure GormReconciliationExceptionRepository implements ExceptionRepository
var _ reconciliation.ExceptionRepository = (*GormReconciliationExceptionRepository)(nil)
