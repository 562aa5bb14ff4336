package execution

import (
	"context"
	"sync"
	"time"

	"github.com/supesu/trading-core/internal/infrastructure/cache"
	"github.com/supesu/trading-core/pkg/domain"
	"github.com/supesu/trading-core/pkg/logger"
	"github.com/supesu/trading-core/pkg/metrics"
)

// MetricsTracker maintains rolling per-backend performance numbers. Records
// are folded in as streaming updates and flushed to the state cache on a
// timer so peers and restarts can see a recent view.
type MetricsTracker struct {
	cache         *cache.StateCache
	engineMetrics *metrics.EngineMetrics
	logger        logger.Logger
	flushInterval time.Duration

	mu         sync.Mutex
	byStrategy map[string]*domain.StrategyMetrics

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewMetricsTracker creates a tracker that flushes at the given interval
func NewMetricsTracker(stateCache *cache.StateCache, em *metrics.EngineMetrics, flushInterval time.Duration, log logger.Logger) *MetricsTracker {
	return &MetricsTracker{
		cache:         stateCache,
		engineMetrics: em,
		logger:        log,
		flushInterval: flushInterval,
		byStrategy:    make(map[string]*domain.StrategyMetrics),
		done:          make(chan struct{}),
	}
}

// Record folds one execution attempt into the backend's rolling metrics
func (t *MetricsTracker) Record(strategy string, success bool, latency time.Duration, feeLamports uint64) {
	t.mu.Lock()
	m, ok := t.byStrategy[strategy]
	if !ok {
		m = &domain.StrategyMetrics{Strategy: strategy}
		t.byStrategy[strategy] = m
	}
	m.RecordAttempt(success, latency, feeLamports)
	rate := m.SuccessRate
	t.mu.Unlock()

	if t.engineMetrics != nil {
		outcome := "failure"
		if success {
			outcome = "success"
		}
		t.engineMetrics.StrategyExecutionsTotal.WithLabelValues(strategy, outcome).Inc()
		t.engineMetrics.StrategyExecutionDuration.WithLabelValues(strategy).Observe(latency.Seconds())
		t.engineMetrics.StrategySuccessRate.WithLabelValues(strategy).Set(rate)
	}
}

// Get returns a copy of the backend's rolling metrics
func (t *MetricsTracker) Get(strategy string) (domain.StrategyMetrics, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.byStrategy[strategy]
	if !ok {
		return domain.StrategyMetrics{}, false
	}
	return *m, true
}

// StartFlusher begins the periodic flush loop
func (t *MetricsTracker) StartFlusher(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	go func() {
		defer close(t.done)

		ticker := time.NewTicker(t.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				t.Flush(context.Background())
				return
			case <-ticker.C:
				t.Flush(loopCtx)
			}
		}
	}()
}

// Stop flushes one final time and stops the loop
func (t *MetricsTracker) Stop() {
	t.stopOnce.Do(func() {
		if t.cancel == nil {
			return
		}
		t.cancel()
		<-t.done
	})
}

// Flush writes every backend's rolling metrics to the state cache. Entry
// metadata, which carries enablement state, is preserved.
func (t *MetricsTracker) Flush(ctx context.Context) {
	t.mu.Lock()
	snapshots := make([]domain.StrategyMetrics, 0, len(t.byStrategy))
	for _, m := range t.byStrategy {
		snapshots = append(snapshots, *m)
	}
	t.mu.Unlock()

	for i := range snapshots {
		snapshot := snapshots[i]
		key := cache.StrategyKey(snapshot.Strategy)

		var metadata map[string]string
		if existing, ok := t.cache.Get(ctx, key); ok {
			metadata = existing.Metadata
		}
		t.cache.Set(ctx, key, &snapshot, 0, metadata)
	}
}
