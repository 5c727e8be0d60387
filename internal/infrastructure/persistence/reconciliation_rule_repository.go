package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormReconciliationRuleRepository implements RuleRepository using GORM
type GormReconciliationRuleRepository struct {
	db *gorm.DB
}

// NewGormReconciliationRuleRepository creates a new GormReconciliationRuleRepository
func NewGormReconciliationRuleRepository(db *gorm.DB) *GormReconciliationRuleRepository {
	return &GormReconciliationRuleRepository{db: db}
}

// FindByIDForTenant finds a rule by ID for a specific tenant
func (r *GormReconciliationRuleRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*reconciliation.ReconciliationRule, error) {
	var model models.ReconciliationRuleModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reconciliation.ErrRuleNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllForTenant returns rules ordered by priority, creation time and ID
func (r *GormReconciliationRuleRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, activeOnly bool) ([]reconciliation.ReconciliationRule, error) {
	var ruleModels []models.ReconciliationRuleModel
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	if err := query.
		Order("priority ASC").
		Order("created_at ASC").
		Order("id ASC").
		Find(&ruleModels).Error; err != nil {
		return nil, err
	}
	rules := make([]reconciliation.ReconciliationRule, len(ruleModels))
	for i := range ruleModels {
		rules[i] = *ruleModels[i].ToDomain()
	}
	return rules, nil
}

// Create inserts a new rule
func (r *GormReconciliationRuleRepository) Create(ctx context.Context, rule *reconciliation.ReconciliationRule) error {
	return r.db.WithContext(ctx).Create(models.ReconciliationRuleModelFromDomain(rule)).Error
}

// SaveWithLock saves with optimistic locking (version check)
func (r *GormReconciliationRuleRepository) SaveWithLock(ctx context.Context, rule *reconciliation.ReconciliationRule) error {
	model := models.ReconciliationRuleModelFromDomain(rule)
	nextVersion := rule.Version + 1
	updatedAt := time.Now().UTC()

	result := r.db.WithContext(ctx).
		Model(&models.ReconciliationRuleModel{}).
		Where("tenant_id = ? AND id = ? AND version = ?", rule.TenantID, rule.ID, rule.Version).
		Updates(map[string]any{
			"name":                model.Name,
			"priority":            model.Priority,
			"match_fields":        model.MatchFieldsJSON,
			"tolerance_amount":    model.ToleranceAmount,
			"tolerance_date_days": model.ToleranceDateDays,
			"active":              model.Active,
			"version":             nextVersion,
			"updated_at":          updatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError(shared.CodeConcurrentModification, "The rule has been modified by another request")
	}

	rule.Version = nextVersion
	rule.UpdatedAt = updatedAt
	return nil
}

// DeleteForTenant deletes a rule within a tenant
func (r *GormReconciliationRuleRepository) DeleteForTenant(ctx context.Context, tenantID, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.ReconciliationRuleModel{}, "tenant_id = ? AND id = ?", tenantID, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return reconciliation.ErrRuleNotFound
	}
	return nil
}

// Ensure GormReconciliationRuleRepository implements RuleRepository
var _ reconciliation.RuleRepository = (*GormReconciliationRuleRepository)(nil)
