package events

import (
	"context"
	"sync"
	"time"

	"github.com/supesu/trading-core/pkg/domain"
	"github.com/supesu/trading-core/pkg/logger"
)

// MemoryEventPublisher is an in-memory implementation of
// domain.EventPublisher. Handlers run concurrently on their own goroutines;
// a failing or panicking handler is logged and never interrupts delivery to
// the remaining handlers or the trade path that published the event.
type MemoryEventPublisher struct {
	handlers map[string][]domain.EventHandler
	logger   logger.Logger
	mu       sync.RWMutex
}

// NewMemoryEventPublisher creates a new in-memory event publisher
func NewMemoryEventPublisher(log logger.Logger) *MemoryEventPublisher {
	return &MemoryEventPublisher{
		handlers: make(map[string][]domain.EventHandler),
		logger:   log,
	}
}

// PublishStrategyExecuted publishes a strategy execution event
func (p *MemoryEventPublisher) PublishStrategyExecuted(ctx context.Context, strategy string, result *domain.TransactionResult) error {
	return p.publish(ctx, &domain.StrategyExecutedEvent{
		Strategy:   strategy,
		Result:     result,
		ExecutedAt: time.Now(),
	})
}

// PublishPoolValidationFailed publishes a pool validation failure event
func (p *MemoryEventPublisher) PublishPoolValidationFailed(ctx context.Context, poolAddress string, results []domain.ValidationResult) error {
	return p.publish(ctx, &domain.PoolValidationFailedEvent{
		PoolAddress: poolAddress,
		Results:     results,
		FailedAt:    time.Now(),
	})
}

// PublishCacheEvicted publishes a cache eviction event
func (p *MemoryEventPublisher) PublishCacheEvicted(ctx context.Context, key string, tier string) error {
	return p.publish(ctx, &domain.CacheEvictedEvent{
		Key:       key,
		Tier:      tier,
		EvictedAt: time.Now(),
	})
}

// PublishConfirmationTimeout publishes a confirmation timeout event
func (p *MemoryEventPublisher) PublishConfirmationTimeout(ctx context.Context, signature string, elapsed time.Duration) error {
	return p.publish(ctx, &domain.ConfirmationTimeoutEvent{
		Signature: signature,
		Elapsed:   elapsed,
		TimedOut:  time.Now(),
	})
}

// PublishTradeCompleted publishes a terminal trade outcome event
func (p *MemoryEventPublisher) PublishTradeCompleted(ctx context.Context, result *domain.TransactionResult) error {
	return p.publish(ctx, &domain.TradeCompletedEvent{
		Result:      result,
		CompletedAt: time.Now(),
	})
}

// Subscribe subscribes a handler to an event type
func (p *MemoryEventPublisher) Subscribe(ctx context.Context, eventType string, handler domain.EventHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.handlers[eventType] = append(p.handlers[eventType], handler)

	p.logger.WithFields(map[string]interface{}{
		"event_type":    eventType,
		"handler_count": len(p.handlers[eventType]),
	}).Debug("Event handler subscribed")

	return nil
}

// publish delivers an event to every handler registered for its type. Each
// handler runs on its own goroutine and the publisher returns without
// waiting, so a slow or stuck handler never holds up the trade path.
func (p *MemoryEventPublisher) publish(ctx context.Context, event domain.DomainEvent) error {
	p.mu.RLock()
	handlers := make([]domain.EventHandler, len(p.handlers[event.EventType()]))
	copy(handlers, p.handlers[event.EventType()])
	p.mu.RUnlock()

	for _, handler := range handlers {
		go func(h domain.EventHandler) {
			defer func() {
				if r := recover(); r != nil {
					p.logger.WithFields(map[string]interface{}{
						"event_type":   event.EventType(),
						"aggregate_id": event.AggregateID(),
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()

			if err := h.Handle(ctx, event); err != nil {
				p.logger.WithError(err).WithFields(map[string]interface{}{
					"event_type":   event.EventType(),
					"aggregate_id": event.AggregateID(),
				}).Error("Event handler failed")
			}
		}(handler)
	}

	return nil
}
