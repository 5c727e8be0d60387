package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type testEvent struct {
	shared.BaseDomainEvent
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "Reconciliation", uuid.New(), uuid.New())}
}

type testHandler struct {
	eventTypes []string
	err        error
	panicMsg   string
	block      chan struct{}

	mu      sync.Mutex
	handled []shared.DomainEvent
}

func (h *testHandler) Handle(ctx context.Context, evt shared.DomainEvent) error {
	if h.block != nil {
		<-h.block
	}
	if h.panicMsg != "" {
		panic(h.panicMsg)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, evt)
	return h.err
}

func (h *testHandler) EventTypes() []string { return h.eventTypes }

func (h *testHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func TestInMemoryEventBus_PublishToTypedHandler(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	matched := &testHandler{eventTypes: []string{"MatchCreated"}}
	other := &testHandler{eventTypes: []string{"ReconciliationFinalized"}}
	bus.Subscribe(matched)
	bus.Subscribe(other)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("MatchCreated")))

	assert.Equal(t, 1, matched.count())
	assert.Equal(t, 0, other.count())
}

func TestInMemoryEventBus_WildcardHandler(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	all := &testHandler{}
	bus.Subscribe(all)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("A"), newTestEvent("B")))
	assert.Equal(t, 2, all.count())
}

func TestInMemoryEventBus_ExplicitTypesOverrideHandler(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := &testHandler{eventTypes: []string{"A"}}
	bus.Subscribe(h, "B")

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("A"), newTestEvent("B")))
	assert.Equal(t, 1, h.count())
}

func TestInMemoryEventBus_HandlerErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	bus := NewInMemoryEventBus(zap.New(core))
	failing := &testHandler{eventTypes: []string{"A"}, err: errors.New("history write failed")}
	next := &testHandler{eventTypes: []string{"A"}}
	bus.Subscribe(failing)
	bus.Subscribe(next)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("A")))

	assert.Equal(t, 1, next.count())
	entries := logs.FilterMessage("handler failed to process event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "A", entries[0].ContextMap()["event_type"])
}

func TestInMemoryEventBus_HandlerPanicRecovered(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	bus := NewInMemoryEventBus(zap.New(core))
	bus.Subscribe(&testHandler{eventTypes: []string{"A"}, panicMsg: "boom"})

	assert.NotPanics(t, func() {
		require.NoError(t, bus.Publish(context.Background(), newTestEvent("A")))
	})
	assert.Equal(t, 1, logs.FilterMessage("handler panicked").Len())
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := &testHandler{eventTypes: []string{"A", "B"}}
	bus.Subscribe(h)
	bus.Unsubscribe(h)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("A"), newTestEvent("B")))
	assert.Equal(t, 0, h.count())
	assert.Zero(t, bus.registry.Count("A"))
}

func TestInMemoryEventBus_AsyncDrainedByStop(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	require.NoError(t, bus.Start(context.Background()))

	release := make(chan struct{})
	h := &testHandler{eventTypes: []string{"ReconciliationFinalized"}, block: release}
	bus.SubscribeAsync(h)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.Publish(ctx, newTestEvent("ReconciliationFinalized")))
	cancel()
	assert.Equal(t, 0, h.count())

	close(release)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, bus.Stop(stopCtx))
	assert.Equal(t, 1, h.count())
}

func TestInMemoryEventBus_StopTimesOut(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	release := make(chan struct{})
	defer close(release)
	bus.SubscribeAsync(&testHandler{block: release})
	require.NoError(t, bus.Publish(context.Background(), newTestEvent("A")))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Stop(ctx), context.DeadlineExceeded)
}

func TestInMemoryEventBus_PublishAfterStop(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	require.NoError(t, bus.Stop(context.Background()))
	assert.ErrorIs(t, bus.Publish(context.Background(), newTestEvent("A")), ErrBusStopped)

	require.NoError(t, bus.Start(context.Background()))
	assert.NoError(t, bus.Publish(context.Background(), newTestEvent("A")))
}

func TestHandlerRegistry_Lookup(t *testing.T) {
	r := NewHandlerRegistry()
	typed := &testHandler{}
	wild := &testHandler{}
	r.register(subscription{handler: typed}, "A")
	r.register(subscription{handler: wild})

	subs := r.lookup("A")
	require.Len(t, subs, 2)
	assert.Same(t, typed, subs[0].handler)
	assert.Same(t, wild, subs[1].handler)
	assert.Equal(t, 1, r.Count("B"))

	r.Unregister(wild)
	assert.Equal(t, 1, r.Count("A"))
	assert.Zero(t, r.Count("B"))
}
