package persistence

import (
	"context"

	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormReconciliationMatchRepository implements MatchRepository using GORM
type GormReconciliationMatchRepository struct {
	db *gorm.DB
}

// NewGormReconciliationMatchRepository creates a new GormReconciliationMatchRepository
func NewGormReconciliationMatchRepository(db *gorm.DB) *GormReconciliationMatchRepository {
	return &GormReconciliationMatchRepository{db: db}
}

// Create inserts a match together with its entry links
func (r *GormReconciliationMatchRepository) Create(ctx context.Context, match *reconciliation.ReconciliationMatch) error {
	return r.db.WithContext(ctx).Create(models.ReconciliationMatchModelFromDomain(match)).Error
}

// FindByReconciliation returns matches in creation order with their entries
func (r *GormReconciliationMatchRepository) FindByReconciliation(ctx context.Context, tenantID, reconciliationID uuid.UUID) ([]reconciliation.ReconciliationMatch, error) {
	var matchModels []models.ReconciliationMatchModel
	if err := r.db.WithContext(ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB {
			return db.Order("role ASC").Order("created_at ASC")
		}).
		Where("tenant_id = ? AND reconciliation_id = ?", tenantID, reconciliationID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&matchModels).Error; err != nil {
		return nil, err
	}
	matches := make([]reconciliation.ReconciliationMatch, len(matchModels))
	for i := range matchModels {
		matches[i] = *matchModels[i].ToDomain()
	}
	return matches, nil
}

// Summarize returns the number of matches and the sum of their amounts
func (r *GormReconciliationMatchRepository) Summarize(ctx context.Context, tenantID, reconciliationID uuid.UUID) (int64, decimal.Decimal, error) {
	var agg struct {
		Count int64
		Total decimal.NullDecimal
	}
	if err := r.db.WithContext(ctx).Model(&models.ReconciliationMatchModel{}).
		Select("COUNT(*) AS count, SUM(amount) AS total").
		Where("tenant_id = ? AND reconciliation_id = ?", tenantID, reconciliationID).
		Scan(&agg).Error; err != nil {
		return 0, decimal.Zero, err
	}
	if !agg.Total.Valid {
		return agg.Count, decimal.Zero, nil
	}
	return agg.Count, agg.Total.Decimal, nil
}

// EntryIDsByReconciliation returns the distinct clearing entries linked to the reconciliation's matches
func (r *GormReconciliationMatchRepository) EntryIDsByReconciliation(ctx context.Context, tenantID, reconciliationID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Table("reconciliation_match_entries AS me").
		Joins("JOIN reconciliation_matches AS m ON m.id = me.match_id").
		Where("m.tenant_id = ? AND m.reconciliation_id = ?", tenantID, reconciliationID).
		Distinct().
		Pluck("me.clearing_entry_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Ensure GormReconciliationMatchRepository implements MatchRepository
var _ reconciliation.MatchRepository = (*GormReconciliationMatchRepository)(nil)
