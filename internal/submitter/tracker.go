package submitter

import (
	"context"
	"fmt"
	"time"

	"github.com/supesu/trading-core/internal/infrastructure/cache"
	"github.com/supesu/trading-core/pkg/domain"
	"github.com/supesu/trading-core/pkg/logger"
	"github.com/supesu/trading-core/pkg/metrics"
)

// StatusReader is the chain read the tracker polls. Statuses are always
// read fresh; confirmation state never comes from a cache.
type StatusReader interface {
	GetSignatureStatus(ctx context.Context, signature string) (*domain.SignatureStatus, error)
}

// ConfirmationTracker polls submitted signatures until they reach a
// terminal state. Terminal on-chain outcomes are cached so re-awaiting the
// same signature is idempotent and does not hit the chain again.
type ConfirmationTracker struct {
	chain         StatusReader
	cache         *cache.StateCache
	events        domain.EventPublisher
	engineMetrics *metrics.EngineMetrics
	logger        logger.Logger

	timeout      time.Duration
	pollInterval time.Duration
	resultTTL    time.Duration
}

// NewConfirmationTracker creates a tracker with the given confirmation window
func NewConfirmationTracker(
	chain StatusReader,
	stateCache *cache.StateCache,
	events domain.EventPublisher,
	em *metrics.EngineMetrics,
	timeout, pollInterval, resultTTL time.Duration,
	log logger.Logger,
) *ConfirmationTracker {
	return &ConfirmationTracker{
		chain:         chain,
		cache:         stateCache,
		events:        events,
		engineMetrics: em,
		logger:        log,
		timeout:       timeout,
		pollInterval:  pollInterval,
		resultTTL:     resultTTL,
	}
}

// Await blocks until the signature confirms, fails on chain, or the
// confirmation window lapses. A window lapse is a confirmation timeout
// error; the transaction may still land later.
func (t *ConfirmationTracker) Await(ctx context.Context, signature string) (*domain.TransactionResult, error) {
	if signature == "" {
		return nil, domain.NewTradeError(domain.ErrKindSubmission, "cannot await an empty signature", nil)
	}

	if cached, ok := t.lookupTerminal(ctx, signature); ok {
		if cached.Success {
			return cached, nil
		}
		return nil, domain.NewTradeError(cached.ErrorKind, cached.Error, nil)
	}

	started := time.Now()
	deadline := time.NewTimer(t.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, domain.NewTradeError(domain.ErrKindConfirmationTimeout,
				"confirmation wait canceled", ctx.Err())

		case <-deadline.C:
			elapsed := time.Since(started)
			t.onTimeout(ctx, signature, elapsed)
			return nil, domain.NewTradeError(domain.ErrKindConfirmationTimeout,
				fmt.Sprintf("no terminal status for %s within %s", signature, t.timeout), nil)

		case <-ticker.C:
			status, err := t.chain.GetSignatureStatus(ctx, signature)
			if err != nil {
				t.logger.WithError(err).WithField("signature", signature).Debug("Signature status poll failed")
				continue
			}

			if status.Err != "" {
				result := t.terminal(signature, status, false, time.Since(started))
				result.Error = status.Err
				result.ErrorKind = domain.ErrKindOnChain
				t.store(ctx, result)
				return nil, domain.NewTradeError(domain.ErrKindOnChain, status.Err, nil)
			}

			if status.Confirmed || status.Finalized {
				elapsed := time.Since(started)
				if t.engineMetrics != nil {
					t.engineMetrics.ConfirmationLatency.Observe(elapsed.Seconds())
				}
				result := t.terminal(signature, status, true, elapsed)
				t.store(ctx, result)
				return result, nil
			}
		}
	}
}

// lookupTerminal returns a previously recorded terminal outcome for the
// signature, if one is cached
func (t *ConfirmationTracker) lookupTerminal(ctx context.Context, signature string) (*domain.TransactionResult, bool) {
	entry, ok := t.cache.Get(ctx, cache.SignatureKey(signature))
	if !ok {
		return nil, false
	}
	result, ok := entry.Value.(*domain.TransactionResult)
	if !ok {
		return nil, false
	}
	t.logger.WithField("signature", signature).Debug("Serving confirmation from cached terminal outcome")
	return result, true
}

func (t *ConfirmationTracker) terminal(signature string, status *domain.SignatureStatus, success bool, elapsed time.Duration) *domain.TransactionResult {
	return &domain.TransactionResult{
		Signature:    signature,
		Success:      success,
		Slot:         status.Slot,
		Confirmation: elapsed,
		CompletedAt:  time.Now(),
	}
}

func (t *ConfirmationTracker) store(ctx context.Context, result *domain.TransactionResult) {
	t.cache.Set(ctx, cache.SignatureKey(result.Signature), result, t.resultTTL, nil)
}

func (t *ConfirmationTracker) onTimeout(ctx context.Context, signature string, elapsed time.Duration) {
	if t.engineMetrics != nil {
		t.engineMetrics.ConfirmationTimeoutsTotal.Inc()
	}
	t.logger.WithFields(map[string]interface{}{
		"signature": signature,
		"elapsed":   elapsed.String(),
	}).Warn("Confirmation window lapsed without a terminal status")

	if t.events != nil {
		if err := t.events.PublishConfirmationTimeout(ctx, signature, elapsed); err != nil {
			t.logger.WithError(err).Warn("Failed to publish confirmation timeout event")
		}
	}
}
