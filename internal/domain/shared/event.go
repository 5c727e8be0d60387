package shared

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact raised by an aggregate and published after commit
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
	AggregateType() string
	TenantID() uuid.UUID
}

// BaseDomainEvent is embedded by concrete events for the envelope fields
type BaseDomainEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Aggregate struct {
		ID   uuid.UUID `json:"id"`
		Type string    `json:"type"`
	} `json:"aggregate"`
	Tenant uuid.UUID `json:"tenant_id"`
}

// NewBaseDomainEvent stamps a new event for the given aggregate
func NewBaseDomainEvent(eventType, aggType string, aggID, tenantID uuid.UUID) BaseDomainEvent {
	e := BaseDomainEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Tenant:    tenantID,
	}
	e.Aggregate.ID = aggID
	e.Aggregate.Type = aggType
	return e
}

func (e *BaseDomainEvent) EventID() uuid.UUID     { return e.ID }
func (e *BaseDomainEvent) EventType() string      { return e.Type }
func (e *BaseDomainEvent) OccurredAt() time.Time  { return e.Timestamp }
func (e *BaseDomainEvent) AggregateID() uuid.UUID { return e.Aggregate.ID }
func (e *BaseDomainEvent) AggregateType() string  { return e.Aggregate.Type }
func (e *BaseDomainEvent) TenantID() uuid.UUID    { return e.Tenant }
