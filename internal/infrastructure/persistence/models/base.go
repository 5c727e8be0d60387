package models

import (
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
)

// BaseModel holds the key and timestamps of every table
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// ToDomain converts the columns to a domain BaseEntity
func (m *BaseModel) ToDomain() shared.BaseEntity {
	return shared.BaseEntity{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
}

func baseModelFrom(e shared.BaseEntity) BaseModel {
	return BaseModel{ID: e.ID, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt}
}

// TenantModel is a child row scoped to a business
type TenantModel struct {
	BaseModel
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
}

// FromDomainTenantEntity copies a domain TenantEntity into the row
func (m *TenantModel) FromDomainTenantEntity(e shared.TenantEntity) {
	m.BaseModel = baseModelFrom(e.BaseEntity)
	m.TenantID = e.TenantID
}

// ToTenantEntity converts the row to a domain TenantEntity
func (m *TenantModel) ToTenantEntity() shared.TenantEntity {
	return shared.TenantEntity{BaseEntity: m.BaseModel.ToDomain(), TenantID: m.TenantID}
}

// TenantAggregateModel is the row of a tenant-scoped aggregate. Version
// backs optimistic locking on save.
type TenantAggregateModel struct {
	BaseModel
	Version   int        `gorm:"not null;default:1"`
	TenantID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	CreatedBy *uuid.UUID `gorm:"type:uuid;index"`
}

// FromDomainTenantAggregateRoot copies the aggregate envelope into the row
func (m *TenantAggregateModel) FromDomainTenantAggregateRoot(t shared.TenantAggregateRoot) {
	m.BaseModel = baseModelFrom(t.BaseEntity)
	m.Version = t.Version
	m.TenantID = t.TenantID
	m.CreatedBy = t.CreatedBy
}

// PopulateTenantAggregateRoot copies the row back into a domain aggregate
func (m *TenantAggregateModel) PopulateTenantAggregateRoot(t *shared.TenantAggregateRoot) {
	t.BaseEntity = m.BaseModel.ToDomain()
	t.Version = m.Version
	t.TenantID = m.TenantID
	t.CreatedBy = m.CreatedBy
}
