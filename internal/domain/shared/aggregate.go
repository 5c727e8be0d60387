package shared

import "github.com/google/uuid"

// BaseAggregateRoot carries the optimistic-lock version and the events
// raised since the aggregate was loaded.
type BaseAggregateRoot struct {
	BaseEntity
	Version      int
	domainEvents []DomainEvent
}

// AddDomainEvent queues an event for publication after commit
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
}

// GetDomainEvents returns the queued events without clearing them
func (a *BaseAggregateRoot) GetDomainEvents() []DomainEvent {
	return a.domainEvents
}

// ClearDomainEvents drops the queued events
func (a *BaseAggregateRoot) ClearDomainEvents() {
	a.domainEvents = nil
}

// PullDomainEvents returns the queued events and clears them
func (a *BaseAggregateRoot) PullDomainEvents() []DomainEvent {
	events := a.domainEvents
	a.domainEvents = nil
	return events
}

// TenantAggregateRoot is an aggregate owned by one business
type TenantAggregateRoot struct {
	BaseAggregateRoot
	TenantID  uuid.UUID
	CreatedBy *uuid.UUID
}

// NewTenantAggregateRootWithCreator starts a new aggregate at version 1.
// A nil creator is left unset.
func NewTenantAggregateRootWithCreator(tenantID, createdBy uuid.UUID) TenantAggregateRoot {
	root := TenantAggregateRoot{
		BaseAggregateRoot: BaseAggregateRoot{BaseEntity: NewBaseEntity(), Version: 1},
		TenantID:          tenantID,
	}
	if createdBy != uuid.Nil {
		root.CreatedBy = &createdBy
	}
	return root
}
