package persistence

import (
	"context"

	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormReconciliationAllocationRepository implements AllocationRepository using GORM
type GormReconciliationAllocationRepository struct {
	db *gorm.DB
}

// NewGormReconciliationAllocationRepository creates a new GormReconciliationAllocationRepository
func NewGormReconciliationAllocationRepository(db *gorm.DB) *GormReconciliationAllocationRepository {
	return &GormReconciliationAllocationRepository{db: db}
}

// Create inserts a new allocation
func (r *GormReconciliationAllocationRepository) Create(ctx context.Context, a *reconciliation.ReconciliationAllocation) error {
	return r.db.WithContext(ctx).Create(models.ReconciliationAllocationModelFromDomain(a)).Error
}

// FindByReconciliation returns allocations in creation order
func (r *GormReconciliationAllocationRepository) FindByReconciliation(ctx context.Context, tenantID, reconciliationID uuid.UUID) ([]reconciliation.ReconciliationAllocation, error) {
	var allocModels []models.ReconciliationAllocationModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND reconciliation_id = ?", tenantID, reconciliationID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&allocModels).Error; err != nil {
		return nil, err
	}
	allocations := make([]reconciliation.ReconciliationAllocation, len(allocModels))
	for i := range allocModels {
		allocations[i] = *allocModels[i].ToDomain()
	}
	return allocations, nil
}

// SumForEntry totals all allocations recorded against an entry, across reconciliations
func (r *GormReconciliationAllocationRepository) SumForEntry(ctx context.Context, tenantID, entryID uuid.UUID) (decimal.Decimal, error) {
	var agg struct {
		Total decimal.NullDecimal
	}
	if err := r.db.WithContext(ctx).Model(&models.ReconciliationAllocationModel{}).
		Select("SUM(amount) AS total").
		Where("tenant_id = ? AND clearing_entry_id = ?", tenantID, entryID).
		Scan(&agg).Error; err != nil {
		return decimal.Zero, err
	}
	if !agg.Total.Valid {
		return decimal.Zero, nil
	}
	return agg.Total.Decimal, nil
}

// EntryIDsByReconciliation returns the distinct entries allocated under the reconciliation
func (r *GormReconciliationAllocationRepository) EntryIDsByReconciliation(ctx context.Context, tenantID, reconciliationID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&models.ReconciliationAllocationModel{}).
		Where("tenant_id = ? AND reconciliation_id = ?", tenantID, reconciliationID).
		Distinct().
		Pluck("clearing_entry_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Ensure GormReconciliationAllocationRepository implements AllocationRepository
var _ reconciliation.AllocationRepository = (*GormReconciliationAllocationRepository)(nil)
