package shared

import "context"

// EventHandler consumes published domain events
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes lists the events the handler wants; empty means all
	EventTypes() []string
}

// EventPublisher publishes domain events
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventBus is a publisher whose handlers are registered at startup
type EventBus interface {
	EventPublisher
	Subscribe(handler EventHandler, eventTypes ...string)
	SubscribeAsync(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
