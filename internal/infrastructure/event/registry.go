package event

import (
	"sync"

	"github.com/erp/reconciliation/internal/domain/shared"
)

type subscription struct {
	handler shared.EventHandler
	async   bool
}

// HandlerRegistry maps event types to subscribed handlers
type HandlerRegistry struct {
	mu       sync.RWMutex
	byType   map[string][]subscription
	wildcard []subscription
}

// NewHandlerRegistry creates an empty registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{byType: make(map[string][]subscription)}
}

func (r *HandlerRegistry) register(sub subscription, eventTypes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(eventTypes) == 0 {
		r.wildcard = append(r.wildcard, sub)
		return
	}
	for _, eventType := range eventTypes {
		r.byType[eventType] = append(r.byType[eventType], sub)
	}
}

// Unregister removes handler from every event type
func (r *HandlerRegistry) Unregister(handler shared.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.wildcard = without(r.wildcard, handler)
	for eventType, subs := range r.byType {
		if remaining := without(subs, handler); len(remaining) > 0 {
			r.byType[eventType] = remaining
		} else {
			delete(r.byType, eventType)
		}
	}
}

// lookup returns type-specific subscriptions followed by wildcard ones
func (r *HandlerRegistry) lookup(eventType string) []subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	typed := r.byType[eventType]
	out := make([]subscription, 0, len(typed)+len(r.wildcard))
	out = append(out, typed...)
	return append(out, r.wildcard...)
}

// Count returns the number of handlers that would receive eventType
func (r *HandlerRegistry) Count(eventType string) int {
	return len(r.lookup(eventType))
}

func without(subs []subscription, target shared.EventHandler) []subscription {
	out := make([]subscription, 0, len(subs))
	for _, s := range subs {
		if s.handler != target {
			out = append(out, s)
		}
	}
	return out
}
