package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity holds the identity and timestamps every record has
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBaseEntity assigns a fresh ID and stamps both timestamps with now
func NewBaseEntity() BaseEntity {
	now := time.Now().UTC()
	return BaseEntity{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}

// Touch bumps UpdatedAt to now
func (e *BaseEntity) Touch() {
	e.UpdatedAt = time.Now().UTC()
}

// TenantEntity is a child record of a tenant-scoped aggregate. Matches,
// allocations and exceptions carry the tenant so every query filters on it
// without joining back to the reconciliation.
type TenantEntity struct {
	BaseEntity
	TenantID uuid.UUID
}

// NewTenantEntity creates a tenant-scoped child record
func NewTenantEntity(tenantID uuid.UUID) TenantEntity {
	return TenantEntity{BaseEntity: NewBaseEntity(), TenantID: tenantID}
}
