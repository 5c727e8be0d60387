package telemetry

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormBacklogProvider implements BacklogProvider with grouped counts over
// clearing_entries and reconciliation_exceptions.
type GormBacklogProvider struct {
	db *gorm.DB
}

// NewGormBacklogProvider creates a new GormBacklogProvider.
func NewGormBacklogProvider(db *gorm.DB) *GormBacklogProvider {
	return &GormBacklogProvider{db: db}
}

// PendingEntriesByTenant counts unmatched clearing entries per tenant.
func (p *GormBacklogProvider) PendingEntriesByTenant(ctx context.Context) (map[uuid.UUID]int64, error) {
	return p.countByTenant(ctx, "clearing_entries", "status = ?", "pending")
}

// OpenExceptionsByTenant counts unresolved exceptions per tenant.
func (p *GormBacklogProvider) OpenExceptionsByTenant(ctx context.Context) (map[uuid.UUID]int64, error) {
	return p.countByTenant(ctx, "reconciliation_exceptions", "resolved = ?", false)
}

func (p *GormBacklogProvider) countByTenant(ctx context.Context, table, where string, arg any) (map[uuid.UUID]int64, error) {
	type row struct {
		TenantID uuid.UUID `gorm:"column:tenant_id"`
		Count    int64     `gorm:"column:count"`
	}

	var rows []row
	if err := p.db.WithContext(ctx).
		Table(table).
		Select("tenant_id, COUNT(*) AS count").
		Where(where, arg).
		Group("tenant_id").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[uuid.UUID]int64, len(rows))
	for _, r := range rows {
		counts[r.TenantID] = r.Count
	}
	return counts, nil
}

var _ BacklogProvider = (*GormBacklogProvider)(nil)
