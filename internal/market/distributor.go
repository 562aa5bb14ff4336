package market

import (
	"context"
	"sync"
	"time"

	"github.com/supesu/trading-core/internal/infrastructure/cache"
	"github.com/supesu/trading-core/pkg/config"
	"github.com/supesu/trading-core/pkg/domain"
	"github.com/supesu/trading-core/pkg/logger"
	"github.com/supesu/trading-core/pkg/metrics"
)

// Snapshotter derives a market snapshot for a pool address
type Snapshotter interface {
	Snapshot(ctx context.Context, poolAddress string) (*domain.MarketSnapshot, error)
	Forget(poolAddress string)
}

// Stream is an optional push transport that signals when a pool account
// changed on chain, so the feed refreshes ahead of its timer
type Stream interface {
	Subscribe(address string, fn func(address string)) error
	Unsubscribe(address string)
}

// SnapshotCallback receives market snapshots for a subscribed pool. The
// snapshot is owned by the callback; feeds never mutate a delivered value.
type SnapshotCallback func(*domain.MarketSnapshot)

// Subscription is a handle to an active market feed subscription
type Subscription struct {
	PoolAddress string
	id          uint64
	distributor *Distributor
}

// Unsubscribe detaches this subscription from its feed. The feed itself is
// torn down when its last subscriber detaches.
func (s *Subscription) Unsubscribe() {
	s.distributor.unsubscribe(s.PoolAddress, s.id)
}

// feed is one refresh loop serving every subscriber of a single pool
type feed struct {
	address     string
	subscribers map[uint64]SnapshotCallback
	refresh     chan struct{}
	cancel      context.CancelFunc
	done        chan struct{}
	last        *domain.MarketSnapshot
}

// Distributor owns per-pool market feeds. Each pool gets at most one feed
// regardless of subscriber count; subscribers share its snapshots.
type Distributor struct {
	cfg     config.MarketConfig
	source  Snapshotter
	stream  Stream
	cache   *cache.StateCache
	ttl     time.Duration
	metrics *metrics.EngineMetrics
	logger  logger.Logger

	mu     sync.Mutex
	feeds  map[string]*feed
	nextID uint64
	closed bool

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// NewDistributor creates a market distributor. stream may be nil, leaving
// feeds on their refresh timers alone.
func NewDistributor(
	cfg config.MarketConfig,
	source Snapshotter,
	stream Stream,
	stateCache *cache.StateCache,
	snapshotTTL time.Duration,
	m *metrics.EngineMetrics,
	log logger.Logger,
) *Distributor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Distributor{
		cfg:        cfg,
		source:     source,
		stream:     stream,
		cache:      stateCache,
		ttl:        snapshotTTL,
		metrics:    m,
		logger:     log,
		feeds:      make(map[string]*feed),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// Subscribe attaches a callback to the pool's feed, creating the feed on
// first use. The callback receives every snapshot the feed produces from
// now on.
func (d *Distributor) Subscribe(poolAddress string, fn SnapshotCallback) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return &Subscription{PoolAddress: poolAddress, distributor: d}
	}

	f, ok := d.feeds[poolAddress]
	if !ok {
		f = d.startFeedLocked(poolAddress)
	}

	d.nextID++
	id := d.nextID
	f.subscribers[id] = fn
	if d.metrics != nil {
		d.metrics.MarketSubscriptionsGauge.Inc()
	}

	return &Subscription{PoolAddress: poolAddress, id: id, distributor: d}
}

// SubscriberCount returns the number of active subscriptions for a pool
func (d *Distributor) SubscriberCount(poolAddress string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if f, ok := d.feeds[poolAddress]; ok {
		return len(f.subscribers)
	}
	return 0
}

// Latest returns the most recent snapshot a pool's feed produced, if any
func (d *Distributor) Latest(poolAddress string) (*domain.MarketSnapshot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, ok := d.feeds[poolAddress]
	if !ok || f.last == nil {
		return nil, false
	}
	snap := *f.last
	return &snap, true
}

// Close tears down every feed and rejects further subscriptions
func (d *Distributor) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	feeds := make([]*feed, 0, len(d.feeds))
	for _, f := range d.feeds {
		feeds = append(feeds, f)
	}
	d.feeds = make(map[string]*feed)
	d.mu.Unlock()

	d.baseCancel()
	for _, f := range feeds {
		d.teardownFeed(f)
	}
}

func (d *Distributor) unsubscribe(poolAddress string, id uint64) {
	d.mu.Lock()
	f, ok := d.feeds[poolAddress]
	if !ok {
		d.mu.Unlock()
		return
	}
	if _, present := f.subscribers[id]; !present {
		d.mu.Unlock()
		return
	}
	delete(f.subscribers, id)
	if d.metrics != nil {
		d.metrics.MarketSubscriptionsGauge.Dec()
	}

	lastGone := len(f.subscribers) == 0
	if lastGone {
		delete(d.feeds, poolAddress)
	}
	d.mu.Unlock()

	if lastGone {
		d.teardownFeed(f)
	}
}

// startFeedLocked creates and launches the feed for a pool. Caller holds d.mu.
func (d *Distributor) startFeedLocked(poolAddress string) *feed {
	ctx, cancel := context.WithCancel(d.baseCtx)
	f := &feed{
		address:     poolAddress,
		subscribers: make(map[uint64]SnapshotCallback),
		refresh:     make(chan struct{}, 1),
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	d.feeds[poolAddress] = f

	if d.stream != nil {
		if err := d.stream.Subscribe(poolAddress, func(string) { d.Trigger(poolAddress) }); err != nil {
			d.logger.WithError(err).WithField("pool", poolAddress).
				Warn("Stream subscribe failed, feed will rely on its refresh timer")
		}
	}

	go d.run(ctx, f)
	d.logger.WithField("pool", poolAddress).Info("Market feed started")
	return f
}

func (d *Distributor) teardownFeed(f *feed) {
	f.cancel()
	<-f.done

	// Subscribe starts feeds while holding d.mu, so the replacement check
	// and the stream unsubscribe stay atomic with respect to it.
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.feeds[f.address] != nil {
		// The address was resubscribed while this feed drained; the new
		// feed owns the stream subscription now.
		return
	}

	if d.stream != nil {
		d.stream.Unsubscribe(f.address)
	}
	d.source.Forget(f.address)
	d.logger.WithField("pool", f.address).Info("Market feed stopped")
}

// Trigger requests an immediate refresh of a pool's feed. A trigger while a
// refresh is already queued is collapsed into it.
func (d *Distributor) Trigger(poolAddress string) {
	d.mu.Lock()
	f, ok := d.feeds[poolAddress]
	d.mu.Unlock()
	if !ok {
		return
	}

	select {
	case f.refresh <- struct{}{}:
	default:
	}
}

func (d *Distributor) run(ctx context.Context, f *feed) {
	defer close(f.done)

	ticker := time.NewTicker(d.cfg.RefreshInterval)
	defer ticker.Stop()

	d.refreshOnce(ctx, f)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.refreshOnce(ctx, f)
		case <-f.refresh:
			d.refreshOnce(ctx, f)
		}
	}
}

func (d *Distributor) refreshOnce(ctx context.Context, f *feed) {
	if d.metrics != nil {
		d.metrics.MarketRefreshTotal.Inc()
	}

	snapshot, err := d.source.Snapshot(ctx, f.address)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if d.metrics != nil {
			d.metrics.MarketRefreshErrors.Inc()
		}
		d.logger.WithError(err).WithField("pool", f.address).Warn("Market refresh failed")
		d.markStale(ctx, f)
		return
	}

	d.mu.Lock()
	f.last = snapshot
	callbacks := make([]SnapshotCallback, 0, len(f.subscribers))
	for _, fn := range f.subscribers {
		callbacks = append(callbacks, fn)
	}
	d.mu.Unlock()

	d.cache.Set(ctx, cache.MarketKey(f.address), snapshot, d.ttl, nil)

	for _, fn := range callbacks {
		d.deliver(f.address, fn, snapshot)
	}
}

// markStale keeps the last known snapshot flowing but flags it so consumers
// know the feed could not refresh it
func (d *Distributor) markStale(ctx context.Context, f *feed) {
	d.mu.Lock()
	if f.last == nil || f.last.Stale {
		d.mu.Unlock()
		return
	}
	stale := *f.last
	stale.Stale = true
	f.last = &stale
	callbacks := make([]SnapshotCallback, 0, len(f.subscribers))
	for _, fn := range f.subscribers {
		callbacks = append(callbacks, fn)
	}
	d.mu.Unlock()

	d.cache.Set(ctx, cache.MarketKey(f.address), &stale, d.ttl, nil)

	for _, fn := range callbacks {
		d.deliver(f.address, fn, &stale)
	}
}

// deliver invokes one callback with panic isolation, so a misbehaving
// subscriber cannot take down the feed or its peers
func (d *Distributor) deliver(address string, fn SnapshotCallback, snapshot *domain.MarketSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithFields(map[string]interface{}{
				"pool":  address,
				"panic": r,
			}).Error("Market snapshot callback panicked")
		}
	}()

	copied := *snapshot
	fn(&copied)
}
