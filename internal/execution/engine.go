package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/supesu/trading-core/pkg/config"
	"github.com/supesu/trading-core/pkg/domain"
	"github.com/supesu/trading-core/pkg/logger"
	"github.com/supesu/trading-core/pkg/metrics"
)

// Engine runs a trade through the enabled backends until one produces a
// confirmed result. Backends are tried highest priority first; a full pass
// over all of them counts as one rotation, and rotations are retried with
// exponential backoff up to the configured limit.
type Engine struct {
	cfg           config.ExecutionConfig
	registry      *Registry
	tracker       *MetricsTracker
	events        domain.EventPublisher
	engineMetrics *metrics.EngineMetrics
	logger        logger.Logger
}

// NewEngine creates an execution engine over the given registry
func NewEngine(
	cfg config.ExecutionConfig,
	registry *Registry,
	tracker *MetricsTracker,
	events domain.EventPublisher,
	em *metrics.EngineMetrics,
	log logger.Logger,
) *Engine {
	return &Engine{
		cfg:           cfg,
		registry:      registry,
		tracker:       tracker,
		events:        events,
		engineMetrics: em,
		logger:        log,
	}
}

// Execute runs the trade to a terminal result. It never returns a raw
// error: every failure mode is folded into a TransactionResult carrying its
// taxonomy kind.
func (e *Engine) Execute(ctx context.Context, trade *TradeContext) *domain.TransactionResult {
	var lastErr error

	retryDelay := e.cfg.RetryBaseDelay
	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		// The backend set is pinned per rotation. Enablement changes made
		// while a rotation is in flight apply from the next one.
		strategies := e.registry.Snapshot()
		if len(strategies) == 0 {
			return e.failure(trade, "", domain.ErrKindExhausted, "no execution strategies are enabled")
		}

		result, err := e.rotate(ctx, trade, strategies)
		if result != nil {
			return result
		}
		lastErr = err

		if domain.KindOf(err) == domain.ErrKindBuild {
			return e.failure(trade, "", domain.ErrKindBuild, err.Error())
		}
		if ctx.Err() != nil {
			break
		}

		if attempt < e.cfg.MaxRetries {
			e.logger.WithError(err).WithFields(map[string]interface{}{
				"pool":    trade.Intent.PoolAddress,
				"attempt": attempt,
			}).Warn("All strategies failed, retrying rotation")

			select {
			case <-ctx.Done():
				attempt = e.cfg.MaxRetries
			case <-time.After(retryDelay):
				retryDelay *= 2
				if retryDelay > e.cfg.RetryMaxDelay {
					retryDelay = e.cfg.RetryMaxDelay
				}
			}
		}
	}

	msg := "all execution strategies exhausted"
	if lastErr != nil {
		msg = fmt.Sprintf("%s: %v", msg, lastErr)
	}
	return e.failure(trade, "", domain.ErrKindExhausted, msg)
}

// rotate runs one pass over the pinned backend set. It returns a non-nil
// result on success and the last attempt's error otherwise.
func (e *Engine) rotate(ctx context.Context, trade *TradeContext, strategies []Strategy) (*domain.TransactionResult, error) {
	var lastErr error

	for _, strategy := range strategies {
		// New attempts stop at the deadline; an attempt already in flight
		// is allowed to finish.
		if ctx.Err() != nil {
			return nil, domain.NewTradeError(domain.ErrKindSubmission, "trade deadline reached", ctx.Err())
		}

		if !strategy.Validate(ctx, trade) {
			e.logger.WithFields(map[string]interface{}{
				"strategy": strategy.Name(),
				"pool":     trade.Intent.PoolAddress,
			}).Debug("Strategy declined the trade")
			continue
		}

		result, err := e.attempt(ctx, trade, strategy)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !domain.IsRotationEligible(err) {
			return nil, err
		}

		if e.engineMetrics != nil {
			e.engineMetrics.StrategyRotationsTotal.Inc()
		}
		e.logger.WithError(err).WithField("strategy", strategy.Name()).
			Warn("Strategy failed, rotating to next backend")
	}

	if lastErr == nil {
		lastErr = domain.NewTradeError(domain.ErrKindExhausted, "no strategy accepted the trade", nil)
	}
	return nil, lastErr
}

// attempt executes one backend and records its outcome regardless of result
func (e *Engine) attempt(ctx context.Context, trade *TradeContext, strategy Strategy) (*domain.TransactionResult, error) {
	started := time.Now()
	// Detach the attempt from the trade deadline so an in-flight submission
	// runs to its own terminal state.
	result, err := strategy.Execute(context.WithoutCancel(ctx), trade)
	elapsed := time.Since(started)

	success := err == nil && result != nil && result.Success
	var fee uint64
	if result != nil {
		fee = result.FeeLamports
	}
	e.tracker.Record(strategy.Name(), success, elapsed, fee)

	if err != nil {
		failed := &domain.TransactionResult{
			Success:     false,
			Error:       err.Error(),
			ErrorKind:   domain.KindOf(err),
			Strategy:    strategy.Name(),
			CompletedAt: time.Now(),
		}
		e.publishExecuted(ctx, strategy.Name(), failed)
		return nil, err
	}

	result.Strategy = strategy.Name()
	e.publishExecuted(ctx, strategy.Name(), result)

	if !result.Success {
		return nil, domain.NewTradeError(result.ErrorKind, result.Error, nil)
	}
	return result, nil
}

func (e *Engine) publishExecuted(ctx context.Context, strategy string, result *domain.TransactionResult) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishStrategyExecuted(ctx, strategy, result); err != nil {
		e.logger.WithError(err).Warn("Failed to publish strategy execution event")
	}
}

func (e *Engine) failure(trade *TradeContext, strategy string, kind domain.ErrorKind, msg string) *domain.TransactionResult {
	return &domain.TransactionResult{
		Success:     false,
		Error:       msg,
		ErrorKind:   kind,
		Strategy:    strategy,
		CompletedAt: time.Now(),
	}
}
