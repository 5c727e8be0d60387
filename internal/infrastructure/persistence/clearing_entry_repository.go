package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormClearingEntryRepository implements ClearingEntryRepository using GORM.
// Status moves are conditional updates; the affected row count tells the
// caller whether it won the entry.
type GormClearingEntryRepository struct {
	db *gorm.DB
}

// NewGormClearingEntryRepository creates a new GormClearingEntryRepository
func NewGormClearingEntryRepository(db *gorm.DB) *GormClearingEntryRepository {
	return &GormClearingEntryRepository{db: db}
}

// FindByIDForTenant finds a clearing entry by ID for a specific tenant
func (r *GormClearingEntryRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*reconciliation.ClearingEntry, error) {
	var model models.ClearingEntryModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reconciliation.ErrEntryNotFound
		}
		return nil, err
	}
	entry := model.ToDomain()
	return &entry, nil
}

// FindByIDsForTenant loads the entries that exist among ids. Missing IDs are
// simply absent from the result.
func (r *GormClearingEntryRepository) FindByIDsForTenant(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]reconciliation.ClearingEntry, error) {
	if len(ids) == 0 {
		return []reconciliation.ClearingEntry{}, nil
	}
	var entryModels []models.ClearingEntryModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&entryModels).Error; err != nil {
		return nil, err
	}
	return toClearingEntries(entryModels), nil
}

// FindPendingForTenant returns up to limit pending entries ordered by entry date then ID
func (r *GormClearingEntryRepository) FindPendingForTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]reconciliation.ClearingEntry, error) {
	var entryModels []models.ClearingEntryModel
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, reconciliation.EntryStatusPending).
		Order("entry_date ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&entryModels).Error; err != nil {
		return nil, err
	}
	return toClearingEntries(entryModels), nil
}

// ClaimPending moves pending entries to matched
func (r *GormClearingEntryRepository) ClaimPending(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.ClearingEntryModel{}).
		Where("tenant_id = ? AND id IN ? AND status = ?", tenantID, ids, reconciliation.EntryStatusPending).
		Updates(map[string]any{
			"status":     reconciliation.EntryStatusMatched,
			"matched_at": at,
			"updated_at": at,
		})
	return result.RowsAffected, result.Error
}

// ClaimForAllocation moves a pending or already allocated entry to allocated
func (r *GormClearingEntryRepository) ClaimForAllocation(ctx context.Context, tenantID, id uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ClearingEntryModel{}).
		Where("tenant_id = ? AND id = ? AND status IN ?", tenantID, id,
			[]reconciliation.EntryStatus{reconciliation.EntryStatusPending, reconciliation.EntryStatusAllocated}).
		Updates(map[string]any{
			"status":     reconciliation.EntryStatusAllocated,
			"updated_at": at,
		})
	return result.RowsAffected, result.Error
}

// Release moves the entries claimed by reconciliationID back to pending.
// Entries still held by a match or allocation of another reconciliation that
// is not cancelled keep their status.
func (r *GormClearingEntryRepository) Release(ctx context.Context, tenantID, reconciliationID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	allocatedElsewhere := r.db.Table("reconciliation_allocations AS ra").
		Select("ra.clearing_entry_id").
		Joins("JOIN reconciliations AS rh ON rh.id = ra.reconciliation_id").
		Where("ra.tenant_id = ? AND ra.reconciliation_id <> ? AND rh.status <> ?",
			tenantID, reconciliationID, reconciliation.StatusCancelled)
	matchedElsewhere := r.db.Table("reconciliation_match_entries AS rme").
		Select("rme.clearing_entry_id").
		Joins("JOIN reconciliation_matches AS rm ON rm.id = rme.match_id").
		Joins("JOIN reconciliations AS rh ON rh.id = rm.reconciliation_id").
		Where("rme.tenant_id = ? AND rm.reconciliation_id <> ? AND rh.status <> ?",
			tenantID, reconciliationID, reconciliation.StatusCancelled)

	result := r.db.WithContext(ctx).
		Model(&models.ClearingEntryModel{}).
		Where("tenant_id = ? AND id IN ? AND status IN ?", tenantID, ids,
			[]reconciliation.EntryStatus{reconciliation.EntryStatusMatched, reconciliation.EntryStatusAllocated}).
		Where("id NOT IN (?)", allocatedElsewhere).
		Where("id NOT IN (?)", matchedElsewhere).
		Updates(map[string]any{
			"status":     reconciliation.EntryStatusPending,
			"matched_at": nil,
			"updated_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

// SummarizePending counts pending entries dated within [from, to] and sums their absolute amounts
func (r *GormClearingEntryRepository) SummarizePending(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (int64, decimal.Decimal, error) {
	var agg struct {
		Count int64
		Total decimal.NullDecimal
	}
	if err := r.db.WithContext(ctx).Model(&models.ClearingEntryModel{}).
		Select("COUNT(*) AS count, SUM(ABS(amount)) AS total").
		Where("tenant_id = ? AND status = ? AND entry_date >= ? AND entry_date < ?",
			tenantID, reconciliation.EntryStatusPending, from, to.AddDate(0, 0, 1)).
		Scan(&agg).Error; err != nil {
		return 0, decimal.Zero, err
	}
	if !agg.Total.Valid {
		return agg.Count, decimal.Zero, nil
	}
	return agg.Count, agg.Total.Decimal, nil
}

func toClearingEntries(entryModels []models.ClearingEntryModel) []reconciliation.ClearingEntry {
	entries := make([]reconciliation.ClearingEntry, len(entryModels))
	for i := range entryModels {
		entries[i] = entryModels[i].ToDomain()
	}
	return entries
}

// Ensure GormClearingEntryRepository implements ClearingEntryRepository
var _ reconciliation.ClearingEntryRepository = (*GormClearingEntryRepository)(nil)
