// Package cache implements the dual-tier state cache that backs pool
// validation, market distribution and execution bookkeeping.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/supesu/trading-core/pkg/domain"
	"github.com/supesu/trading-core/pkg/logger"
	"github.com/supesu/trading-core/pkg/metrics"
)

// StateCache is the dual-tier store of pool and market snapshots. The
// in-process tier is authoritative for the life of the process; the shared
// tier is best-effort and its failures are logged, never propagated.
type StateCache struct {
	memory  *MemoryStore
	shared  *RedisStore // nil when the shared tier is not configured
	logger  logger.Logger
	events  domain.EventPublisher
	metrics *metrics.EngineMetrics

	sweepInterval time.Duration
	sweepCancel   context.CancelFunc
	sweepDone     chan struct{}
	startOnce     sync.Once
	stopOnce      sync.Once
}

// Options configures optional collaborators of the cache
type Options struct {
	Shared        *RedisStore
	Events        domain.EventPublisher
	Metrics       *metrics.EngineMetrics
	SweepInterval time.Duration
}

// New creates a state cache. Shared tier, event publisher and metrics are
// all optional.
func New(log logger.Logger, opts Options) *StateCache {
	interval := opts.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}

	return &StateCache{
		memory:        NewMemoryStore(),
		shared:        opts.Shared,
		logger:        log,
		events:        opts.Events,
		metrics:       opts.Metrics,
		sweepInterval: interval,
		sweepDone:     make(chan struct{}),
	}
}

// Get returns the entry for key, or false on a miss. The in-process tier is
// checked first; on a miss the shared tier is consulted and, when it has a
// live entry, the in-process tier is back-filled before returning.
func (c *StateCache) Get(ctx context.Context, key string) (*Entry, bool) {
	if entry, ok := c.memory.Get(key); ok {
		c.countHit("memory")
		return entry, true
	}
	c.countMiss("memory")

	if c.shared == nil {
		return nil, false
	}

	entry, ok, err := c.shared.Get(ctx, key)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Shared cache tier read failed")
		return nil, false
	}
	if !ok || entry.Expired(time.Now()) {
		c.countMiss("shared")
		return nil, false
	}
	c.countHit("shared")

	// Back-fill the in-process tier so subsequent reads stay local.
	c.memory.Set(entry)
	c.gaugeEntries()

	return entry, true
}

// Set stores a value with the given TTL in both tiers
func (c *StateCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration, metadata map[string]string) {
	entry := &Entry{
		Key:         key,
		Value:       value,
		LastUpdated: time.Now(),
		Metadata:    metadata,
		TTL:         ttl,
	}

	c.memory.Set(entry)
	c.gaugeEntries()

	if c.shared != nil {
		if err := c.shared.Set(ctx, entry); err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("Shared cache tier write failed")
		}
	}
}

// Update merges a partial metadata patch into an existing entry. A missing
// key is logged and ignored; Update never creates a partial entry.
func (c *StateCache) Update(ctx context.Context, key string, patch Patch) error {
	merged, ok := c.memory.Update(key, patch)
	if !ok {
		c.logger.WithField("key", key).Warn("Cache update for missing key ignored")
		return domain.ErrNotFound
	}

	if c.shared != nil {
		if err := c.shared.Set(ctx, merged); err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("Shared cache tier update failed")
		}
	}
	return nil
}

// Delete removes the key from both tiers
func (c *StateCache) Delete(ctx context.Context, key string) {
	c.memory.Delete(key)
	c.gaugeEntries()

	if c.shared != nil {
		if err := c.shared.Delete(ctx, key); err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("Shared cache tier delete failed")
		}
	}
}

// GetAll returns copies of every live entry in the in-process tier
func (c *StateCache) GetAll(ctx context.Context) map[string]*Entry {
	return c.memory.GetAll()
}

// StartSweeper starts the background TTL sweep. The sweep owns its own
// lifecycle: it stops when StopSweeper is called or ctx is cancelled.
func (c *StateCache) StartSweeper(ctx context.Context) {
	c.startOnce.Do(func() {
		sweepCtx, cancel := context.WithCancel(ctx)
		c.sweepCancel = cancel

		go func() {
			defer close(c.sweepDone)

			ticker := time.NewTicker(c.sweepInterval)
			defer ticker.Stop()

			for {
				select {
				case <-sweepCtx.Done():
					return
				case <-ticker.C:
					c.sweep(sweepCtx)
				}
			}
		}()

		c.logger.WithField("interval", c.sweepInterval.String()).Info("Cache sweeper started")
	})
}

// StopSweeper stops the background sweep and waits for it to exit
func (c *StateCache) StopSweeper() {
	c.stopOnce.Do(func() {
		if c.sweepCancel == nil {
			close(c.sweepDone)
			return
		}
		c.sweepCancel()
		<-c.sweepDone
		c.logger.Info("Cache sweeper stopped")
	})
}

// sweep purges expired entries from both tiers. Shared-tier deletions are
// issued asynchronously so a slow or dead Redis never blocks the purge.
func (c *StateCache) sweep(ctx context.Context) {
	evicted := c.memory.SweepExpired(time.Now())
	if len(evicted) == 0 {
		return
	}

	c.gaugeEntries()
	c.logger.WithField("count", len(evicted)).Debug("Cache sweep evicted expired entries")

	for _, key := range evicted {
		if c.metrics != nil {
			c.metrics.CacheEvictionsTotal.WithLabelValues("memory").Inc()
		}
		if c.events != nil {
			_ = c.events.PublishCacheEvicted(ctx, key, "memory")
		}
	}

	if c.shared != nil {
		keys := evicted
		go func() {
			for _, key := range keys {
				if err := c.shared.Delete(context.Background(), key); err != nil {
					c.logger.WithError(err).WithField("key", key).Debug("Shared cache tier sweep delete failed")
				}
			}
		}()
	}
}

func (c *StateCache) countHit(tier string) {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(tier).Inc()
	}
}

func (c *StateCache) countMiss(tier string) {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues(tier).Inc()
	}
}

func (c *StateCache) gaugeEntries() {
	if c.metrics != nil {
		c.metrics.CacheEntriesGauge.Set(float64(c.memory.Len()))
	}
}
