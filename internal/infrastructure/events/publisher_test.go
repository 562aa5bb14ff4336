package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supesu/trading-core/pkg/domain"
	"github.com/supesu/trading-core/pkg/logger"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []domain.DomainEvent
	err    error
	gate   chan struct{} // when set, Handle blocks until the gate closes
}

func (h *recordingHandler) Handle(ctx context.Context, event domain.DomainEvent) error {
	if h.gate != nil {
		<-h.gate
	}
	h.mu.Lock()
	h.events = append(h.events, event)
	h.mu.Unlock()
	return h.err
}

func (h *recordingHandler) received() []domain.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.DomainEvent(nil), h.events...)
}

func waitForEvents(t *testing.T, h *recordingHandler, count int) []domain.DomainEvent {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(h.received()) >= count
	}, time.Second, 5*time.Millisecond)
	return h.received()
}

func TestMemoryEventPublisher_PublishStrategyExecuted(t *testing.T) {
	ctx := context.Background()
	pub := NewMemoryEventPublisher(logger.New("error", "test"))

	handler := &recordingHandler{}
	require.NoError(t, pub.Subscribe(ctx, domain.EventTypeStrategyExecuted, handler))

	result := &domain.TransactionResult{Signature: "sig-1", Success: true, Strategy: "broadcast"}
	require.NoError(t, pub.PublishStrategyExecuted(ctx, "broadcast", result))

	received := waitForEvents(t, handler, 1)

	event, ok := received[0].(*domain.StrategyExecutedEvent)
	require.True(t, ok)
	assert.Equal(t, "broadcast", event.Strategy)
	assert.Equal(t, "sig-1", event.Result.Signature)
	assert.Equal(t, "broadcast", event.AggregateID())
}

func TestMemoryEventPublisher_HandlerErrorDoesNotStopDelivery(t *testing.T) {
	ctx := context.Background()
	pub := NewMemoryEventPublisher(logger.New("error", "test"))

	failing := &recordingHandler{err: errors.New("handler down")}
	healthy := &recordingHandler{}
	require.NoError(t, pub.Subscribe(ctx, domain.EventTypeCacheEvicted, failing))
	require.NoError(t, pub.Subscribe(ctx, domain.EventTypeCacheEvicted, healthy))

	require.NoError(t, pub.PublishCacheEvicted(ctx, "pool:p1", "memory"))

	waitForEvents(t, failing, 1)
	waitForEvents(t, healthy, 1)
}

func TestMemoryEventPublisher_PublishDoesNotWaitForHandlers(t *testing.T) {
	ctx := context.Background()
	pub := NewMemoryEventPublisher(logger.New("error", "test"))

	stuck := &recordingHandler{gate: make(chan struct{})}
	healthy := &recordingHandler{}
	require.NoError(t, pub.Subscribe(ctx, domain.EventTypeCacheEvicted, stuck))
	require.NoError(t, pub.Subscribe(ctx, domain.EventTypeCacheEvicted, healthy))

	started := time.Now()
	require.NoError(t, pub.PublishCacheEvicted(ctx, "pool:p1", "memory"))
	assert.Less(t, time.Since(started), 100*time.Millisecond,
		"publishing must return without waiting on handlers")

	// The healthy handler is served while the stuck one stays blocked.
	waitForEvents(t, healthy, 1)
	assert.Empty(t, stuck.received())

	close(stuck.gate)
	waitForEvents(t, stuck, 1)
}

func TestMemoryEventPublisher_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	ctx := context.Background()
	pub := NewMemoryEventPublisher(logger.New("error", "test"))

	require.NoError(t, pub.Subscribe(ctx, domain.EventTypeCacheEvicted, panicHandler{}))
	healthy := &recordingHandler{}
	require.NoError(t, pub.Subscribe(ctx, domain.EventTypeCacheEvicted, healthy))

	require.NoError(t, pub.PublishCacheEvicted(ctx, "pool:p1", "memory"))
	waitForEvents(t, healthy, 1)
}

type panicHandler struct{}

func (panicHandler) Handle(ctx context.Context, event domain.DomainEvent) error {
	panic("handler bug")
}

func TestMemoryEventPublisher_EventTypeRouting(t *testing.T) {
	ctx := context.Background()
	pub := NewMemoryEventPublisher(logger.New("error", "test"))

	timeoutHandler := &recordingHandler{}
	require.NoError(t, pub.Subscribe(ctx, domain.EventTypeConfirmationTimeout, timeoutHandler))

	// Events of other types must not reach this handler.
	require.NoError(t, pub.PublishCacheEvicted(ctx, "k", "memory"))
	require.NoError(t, pub.PublishPoolValidationFailed(ctx, "pool-1", []domain.ValidationResult{
		domain.Fail(domain.CheckBurned, "lp supply not burned"),
	}))
	require.NoError(t, pub.PublishConfirmationTimeout(ctx, "sig-9", 30*time.Second))

	received := waitForEvents(t, timeoutHandler, 1)

	event, ok := received[0].(*domain.ConfirmationTimeoutEvent)
	require.True(t, ok)
	assert.Equal(t, "sig-9", event.Signature)
	assert.Equal(t, 30*time.Second, event.Elapsed)
}
