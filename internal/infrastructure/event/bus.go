// Package event provides the in-process domain event bus.
package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// ErrBusStopped is returned when publishing after Stop
var ErrBusStopped = errors.New("event bus is stopped")

// InMemoryEventBus dispatches domain events to subscribed handlers.
// Synchronous handlers run on the publisher's goroutine; asynchronous ones
// run in the background and are drained by Stop.
type InMemoryEventBus struct {
	registry *HandlerRegistry
	logger   *zap.Logger
	stopped  atomic.Bool
	wg       sync.WaitGroup
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(log *zap.Logger) *InMemoryEventBus {
	if log == nil {
		log = zap.NewNop()
	}
	return &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		logger:   log.Named("event_bus"),
	}
}

// Publish delivers events to every matching handler. Handler failures are
// logged and never returned, so a failing subscriber cannot undo a committed
// state change.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if b.stopped.Load() {
		return ErrBusStopped
	}
	for _, evt := range events {
		for _, sub := range b.registry.lookup(evt.EventType()) {
			if !sub.async {
				b.dispatch(ctx, sub.handler, evt)
				continue
			}
			b.wg.Add(1)
			go func(h shared.EventHandler, e shared.DomainEvent) {
				defer b.wg.Done()
				b.dispatch(context.WithoutCancel(ctx), h, e)
			}(sub.handler, evt)
		}
	}
	return nil
}

// Subscribe registers a synchronous handler. With no explicit types the
// handler's own EventTypes are used; an empty list receives every event.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	b.subscribe(subscription{handler: handler}, eventTypes)
}

// SubscribeAsync registers a handler that runs off the publisher's goroutine
func (b *InMemoryEventBus) SubscribeAsync(handler shared.EventHandler, eventTypes ...string) {
	b.subscribe(subscription{handler: handler, async: true}, eventTypes)
}

func (b *InMemoryEventBus) subscribe(sub subscription, eventTypes []string) {
	if len(eventTypes) == 0 {
		eventTypes = sub.handler.EventTypes()
	}
	b.registry.register(sub, eventTypes...)
	b.logger.Debug("handler subscribed",
		zap.Strings("event_types", eventTypes),
		zap.Bool("async", sub.async),
	)
}

// Unsubscribe removes a handler
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
}

// Start marks the bus as accepting events
func (b *InMemoryEventBus) Start(context.Context) error {
	b.stopped.Store(false)
	b.logger.Info("event bus started")
	return nil
}

// Stop rejects new events and waits for in-flight asynchronous handlers
// until ctx is done.
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.stopped.Store(true)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("event bus stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event bus stop: %w", ctx.Err())
	}
}

func (b *InMemoryEventBus) dispatch(ctx context.Context, handler shared.EventHandler, evt shared.DomainEvent) {
	log := logger.WithLogger(ctx, b.logger).With(
		zap.String("event_type", evt.EventType()),
		zap.String("event_id", evt.EventID().String()),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("handler panicked", zap.Any("panic", r))
		}
	}()

	if err := handler.Handle(ctx, evt); err != nil {
		log.Error("handler failed to process event", zap.Error(err))
	}
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
