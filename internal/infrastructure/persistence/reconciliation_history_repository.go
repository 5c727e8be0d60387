package persistence

import (
	"context"

	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormReconciliationHistoryRepository implements HistoryRepository using GORM.
// Rows are only ever inserted.
type GormReconciliationHistoryRepository struct {
	db *gorm.DB
}

// NewGormReconciliationHistoryRepository creates a new GormReconciliationHistoryRepository
func NewGormReconciliationHistoryRepository(db *gorm.DB) *GormReconciliationHistoryRepository {
	return &GormReconciliationHistoryRepository{db: db}
}

// Append inserts a history row
func (r *GormReconciliationHistoryRepository) Append(ctx context.Context, h *reconciliation.ReconciliationHistory) error {
	return r.db.WithContext(ctx).Create(models.ReconciliationHistoryModelFromDomain(h)).Error
}

// FindRecent returns up to limit rows, newest first
func (r *GormReconciliationHistoryRepository) FindRecent(ctx context.Context, tenantID, reconciliationID uuid.UUID, limit int) ([]reconciliation.ReconciliationHistory, error) {
	var historyModels []models.ReconciliationHistoryModel
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND reconciliation_id = ?", tenantID, reconciliationID).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&historyModels).Error; err != nil {
		return nil, err
	}
	rows := make([]reconciliation.ReconciliationHistory, len(historyModels))
	for i := range historyModels {
		rows[i] = *historyModels[i].ToDomain()
	}
	return rows, nil
}

// Ensure GormReconciliationHistoryRepository implements HistoryRepository
var _ reconciliation.HistoryRepository = (*GormReconciliationHistoryRepository)(nil)
