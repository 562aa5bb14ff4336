package domain

import (
	"context"
	"time"
)

// Structured event types emitted by the core for the external
// observability/alerting collaborator.
const (
	EventTypeStrategyExecuted     = "strategy_executed"
	EventTypePoolValidationFailed = "pool_validation_failed"
	EventTypeCacheEvicted         = "cache_evicted"
	EventTypeConfirmationTimeout  = "confirmation_timeout"
	EventTypeTradeCompleted       = "trade_completed"
)

// DomainEvent represents a domain event
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
	AggregateID() string
}

// EventHandler defines the interface for handling domain events
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
}

// EventPublisher defines the interface for publishing domain events.
// Publishing is best-effort: it must never block or fail the trade path.
type EventPublisher interface {
	PublishStrategyExecuted(ctx context.Context, strategy string, result *TransactionResult) error
	PublishPoolValidationFailed(ctx context.Context, poolAddress string, results []ValidationResult) error
	PublishCacheEvicted(ctx context.Context, key string, tier string) error
	PublishConfirmationTimeout(ctx context.Context, signature string, elapsed time.Duration) error
	PublishTradeCompleted(ctx context.Context, result *TransactionResult) error

	// Subscribe registers a handler for an event type
	Subscribe(ctx context.Context, eventType string, handler EventHandler) error
}

// StrategyExecutedEvent records one backend execution attempt
type StrategyExecutedEvent struct {
	Strategy   string
	Result     *TransactionResult
	ExecutedAt time.Time
}

// EventType returns the event type
func (e *StrategyExecutedEvent) EventType() string { return EventTypeStrategyExecuted }

// OccurredAt returns when the event occurred
func (e *StrategyExecutedEvent) OccurredAt() time.Time { return e.ExecutedAt }

// AggregateID returns the aggregate ID
func (e *StrategyExecutedEvent) AggregateID() string { return e.Strategy }

// PoolValidationFailedEvent records a pool failing one or more safety checks
type PoolValidationFailedEvent struct {
	PoolAddress string
	Results     []ValidationResult
	FailedAt    time.Time
}

// EventType returns the event type
func (e *PoolValidationFailedEvent) EventType() string { return EventTypePoolValidationFailed }

// OccurredAt returns when the event occurred
func (e *PoolValidationFailedEvent) OccurredAt() time.Time { return e.FailedAt }

// AggregateID returns the aggregate ID
func (e *PoolValidationFailedEvent) AggregateID() string { return e.PoolAddress }

// CacheEvictedEvent records a TTL eviction from a cache tier
type CacheEvictedEvent struct {
	Key       string
	Tier      string
	EvictedAt time.Time
}

// EventType returns the event type
func (e *CacheEvictedEvent) EventType() string { return EventTypeCacheEvicted }

// OccurredAt returns when the event occurred
func (e *CacheEvictedEvent) OccurredAt() time.Time { return e.EvictedAt }

// AggregateID returns the aggregate ID
func (e *CacheEvictedEvent) AggregateID() string { return e.Key }

// ConfirmationTimeoutEvent records a confirmation poll giving up
type ConfirmationTimeoutEvent struct {
	Signature string
	Elapsed   time.Duration
	TimedOut  time.Time
}

// EventType returns the event type
func (e *ConfirmationTimeoutEvent) EventType() string { return EventTypeConfirmationTimeout }

// OccurredAt returns when the event occurred
func (e *ConfirmationTimeoutEvent) OccurredAt() time.Time { return e.TimedOut }

// AggregateID returns the aggregate ID
func (e *ConfirmationTimeoutEvent) AggregateID() string { return e.Signature }

// TradeCompletedEvent records the terminal outcome of a trade attempt
type TradeCompletedEvent struct {
	Result      *TransactionResult
	CompletedAt time.Time
}

// EventType returns the event type
func (e *TradeCompletedEvent) EventType() string { return EventTypeTradeCompleted }

// OccurredAt returns when the event occurred
func (e *TradeCompletedEvent) OccurredAt() time.Time { return e.CompletedAt }

// AggregateID returns the aggregate ID
func (e *TradeCompletedEvent) AggregateID() string {
	if e.Result == nil {
		return ""
	}
	return e.Result.Signature
}
