package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EngineMetrics holds all trading-core Prometheus metrics
type EngineMetrics struct {
	// Execution strategy metrics
	StrategyExecutionsTotal   *prometheus.CounterVec
	StrategyExecutionDuration *prometheus.HistogramVec
	StrategySuccessRate       *prometheus.GaugeVec
	StrategyRotationsTotal    prometheus.Counter
	TradesTotal               *prometheus.CounterVec

	// Pool validation metrics
	ValidationChecksTotal *prometheus.CounterVec
	ValidationDuration    prometheus.Histogram
	PoolsRejectedTotal    prometheus.Counter

	// State cache metrics
	CacheHitsTotal      *prometheus.CounterVec
	CacheMissesTotal    *prometheus.CounterVec
	CacheEvictionsTotal *prometheus.CounterVec
	CacheEntriesGauge   prometheus.Gauge

	// Confirmation metrics
	ConfirmationLatency       prometheus.Histogram
	ConfirmationTimeoutsTotal prometheus.Counter

	// Market distributor metrics
	MarketSubscriptionsGauge prometheus.Gauge
	MarketRefreshTotal       prometheus.Counter
	MarketRefreshErrors      prometheus.Counter
	StreamConnectionStatus   prometheus.Gauge
}

// NewEngineMetrics creates and registers all trading-core metrics
func NewEngineMetrics() *EngineMetrics {
	return &EngineMetrics{
		StrategyExecutionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_strategy_executions_total",
			Help: "Total execution attempts per strategy and outcome",
		}, []string{"strategy", "outcome"}),

		StrategyExecutionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trading_strategy_execution_duration_seconds",
			Help:    "Time taken by each strategy execution attempt",
			Buckets: prometheus.DefBuckets,
		}, []string{"strategy"}),

		StrategySuccessRate: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trading_strategy_success_rate",
			Help: "Rolling success rate per strategy",
		}, []string{"strategy"}),

		StrategyRotationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trading_strategy_rotations_total",
			Help: "Number of times execution rotated to a lower-priority strategy",
		}),

		TradesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_trades_total",
			Help: "Terminal trade outcomes",
		}, []string{"outcome"}),

		ValidationChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_pool_validation_checks_total",
			Help: "Pool validation check results",
		}, []string{"check", "result"}),

		ValidationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "trading_pool_validation_duration_seconds",
			Help:    "Time taken to run the full validation pipeline",
			Buckets: prometheus.DefBuckets,
		}),

		PoolsRejectedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trading_pools_rejected_total",
			Help: "Pools that failed one or more validation checks",
		}),

		CacheHitsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_cache_hits_total",
			Help: "State cache hits per tier",
		}, []string{"tier"}),

		CacheMissesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_cache_misses_total",
			Help: "State cache misses per tier",
		}, []string{"tier"}),

		CacheEvictionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_cache_evictions_total",
			Help: "State cache TTL evictions per tier",
		}, []string{"tier"}),

		CacheEntriesGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "trading_cache_entries",
			Help: "Entries currently held in the in-process cache tier",
		}),

		ConfirmationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "trading_confirmation_latency_seconds",
			Help:    "Time from submission to observed confirmation",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60},
		}),

		ConfirmationTimeoutsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trading_confirmation_timeouts_total",
			Help: "Confirmation polls that gave up before a terminal status",
		}),

		MarketSubscriptionsGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "trading_market_subscriptions",
			Help: "Active market feed subscriptions",
		}),

		MarketRefreshTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trading_market_refresh_total",
			Help: "Market snapshot refresh ticks executed",
		}),

		MarketRefreshErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trading_market_refresh_errors_total",
			Help: "Market snapshot refreshes that failed",
		}),

		StreamConnectionStatus: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "trading_stream_connection_status",
			Help: "Market stream connection status (1 connected, 0 down)",
		}),
	}
}
