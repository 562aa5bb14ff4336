package container

import (
	"context"
	"fmt"

	solanaadapter "github.com/supesu/trading-core/internal/adapters/solana"
	"github.com/supesu/trading-core/internal/execution"
	"github.com/supesu/trading-core/internal/infrastructure/cache"
	"github.com/supesu/trading-core/internal/infrastructure/events"
	"github.com/supesu/trading-core/internal/market"
	"github.com/supesu/trading-core/internal/submitter"
	"github.com/supesu/trading-core/internal/usecase"
	"github.com/supesu/trading-core/pkg/config"
	"github.com/supesu/trading-core/pkg/domain"
	"github.com/supesu/trading-core/pkg/logger"
	"github.com/supesu/trading-core/pkg/metrics"
)

// Container holds all application dependencies
type Container struct {
	// Configuration and infrastructure
	Config *config.Config
	Logger logger.Logger

	// Observability
	EngineMetrics *metrics.EngineMetrics
	MetricsServer *metrics.Server

	// Event publisher
	EventPublisher domain.EventPublisher

	// State (data layer)
	RedisStore *cache.RedisStore
	StateCache *cache.StateCache

	// Chain adapters
	ChainClient   *solanaadapter.Client
	Metadata      *solanaadapter.MetadataResolver
	Snapshotter   *solanaadapter.MarketSnapshotter
	StreamManager *solanaadapter.StreamManager
	Signer        *solanaadapter.LocalSigner
	SwapBuilder   *solanaadapter.SwapInstructionBuilder

	// Market feeds
	Distributor *market.Distributor

	// Transaction pipeline
	TxBuilder      *submitter.TransactionBuilder
	Confirmations  *submitter.ConfirmationTracker
	Registry       *execution.Registry
	MetricsTracker *execution.MetricsTracker
	Engine         *execution.Engine

	// Use cases (application layer)
	ValidatePoolUC *usecase.ValidatePoolUseCase
	ExecuteTradeUC *usecase.ExecuteTradeUseCase

	runCtx    context.Context
	runCancel context.CancelFunc
}

// NewContainer wires the full dependency graph. It returns an error only
// for misconfiguration that cannot be worked around; a missing Redis tier
// degrades to memory-only caching instead of failing startup.
func NewContainer(ctx context.Context, cfg *config.Config, log logger.Logger) (*Container, error) {
	c := &Container{
		Config: cfg,
		Logger: log,
	}

	c.setupObservability()
	c.setupState(ctx)
	c.setupChainAdapters()
	if err := c.setupSigner(); err != nil {
		return nil, err
	}
	c.setupPipeline(ctx)
	c.setupUseCases()

	return c, nil
}

// setupObservability initializes metrics and the event publisher
func (c *Container) setupObservability() {
	c.EngineMetrics = metrics.NewEngineMetrics()
	if c.Config.Metrics.Enabled {
		c.MetricsServer = metrics.NewServer(fmt.Sprintf(":%d", c.Config.Metrics.Port), c.Logger)
	}

	c.EventPublisher = events.NewMemoryEventPublisher(c.Logger)
}

// setupState initializes the shared Redis tier when enabled and the
// two-tier state cache on top of it
func (c *Container) setupState(ctx context.Context) {
	if c.Config.Redis.Enabled {
		store, err := cache.NewRedisStore(ctx, c.Config.Redis)
		if err != nil {
			c.Logger.WithError(err).Warn("Redis unreachable, continuing with memory-only cache")
		} else {
			c.RedisStore = store
		}
	}

	c.StateCache = cache.New(c.Logger, cache.Options{
		Shared:        c.RedisStore,
		Events:        c.EventPublisher,
		Metrics:       c.EngineMetrics,
		SweepInterval: c.Config.Cache.SweepInterval,
	})
}

// setupChainAdapters initializes the RPC client and everything reading
// through it
func (c *Container) setupChainAdapters() {
	c.ChainClient = solanaadapter.NewClient(c.Config.Solana, c.Logger)
	c.Metadata = solanaadapter.NewMetadataResolver(c.ChainClient, c.Logger)
	c.Snapshotter = solanaadapter.NewMarketSnapshotter(c.ChainClient, c.Logger)
	c.SwapBuilder = solanaadapter.NewSwapInstructionBuilder(c.ChainClient, c.Logger)

	if c.Config.Solana.WSEndpoint != "" {
		c.StreamManager = solanaadapter.NewStreamManager(c.Config.Solana, c.Config.Market.ReconnectDelay, c.EngineMetrics, c.Logger)
	}

	var stream market.Stream
	if c.StreamManager != nil {
		stream = c.StreamManager
	}
	c.Distributor = market.NewDistributor(
		c.Config.Market,
		c.Snapshotter,
		stream,
		c.StateCache,
		c.Config.Cache.MarketTTL,
		c.EngineMetrics,
		c.Logger,
	)
}

// setupSigner loads every configured wallet keyfile. A trade referencing a
// wallet that failed to load fails at build time, so bad keyfiles abort
// startup instead.
func (c *Container) setupSigner() error {
	c.Signer = solanaadapter.NewLocalSigner(c.Logger)
	for reference, path := range c.Config.Execution.WalletKeyfiles {
		if err := c.Signer.LoadKeyfile(reference, path); err != nil {
			return fmt.Errorf("load wallet %q: %w", reference, err)
		}
	}
	return nil
}

// setupPipeline initializes the transaction builder, confirmation tracker
// and the strategy engine with its configured backends
func (c *Container) setupPipeline(ctx context.Context) {
	c.TxBuilder = submitter.NewTransactionBuilder(c.Config.Execution, c.ChainClient, c.Logger)
	c.TxBuilder.LoadLookupTables(ctx)

	c.Confirmations = submitter.NewConfirmationTracker(
		c.ChainClient,
		c.StateCache,
		c.EventPublisher,
		c.EngineMetrics,
		c.Config.Execution.ConfirmationTimeout,
		c.Config.Execution.ConfirmationPollInterval,
		c.Config.Cache.SignatureTTL,
		c.Logger,
	)

	c.Registry = execution.NewRegistry(c.StateCache, c.Logger)
	strategies := c.Config.Execution.Strategies
	if strategies.Broadcast.Enabled {
		c.register(execution.NewBroadcastStrategy(strategies.Broadcast, c.ChainClient, c.Confirmations, c.Logger))
	}
	if strategies.Relay.Enabled {
		c.register(execution.NewRelayStrategy(strategies.Relay, c.Confirmations, c.Logger))
	}
	if strategies.Bundle.Enabled {
		c.register(execution.NewBundleStrategy(strategies.Bundle, c.Confirmations, c.Logger))
	}
	c.Registry.RestoreEnablement(ctx)

	c.MetricsTracker = execution.NewMetricsTracker(
		c.StateCache,
		c.EngineMetrics,
		c.Config.Execution.MetricsFlushInterval,
		c.Logger,
	)

	c.Engine = execution.NewEngine(
		c.Config.Execution,
		c.Registry,
		c.MetricsTracker,
		c.EventPublisher,
		c.EngineMetrics,
		c.Logger,
	)
}

func (c *Container) register(s execution.Strategy) {
	if err := c.Registry.Register(s); err != nil {
		c.Logger.WithError(err).WithField("strategy", s.Name()).Error("Strategy registration failed")
	}
}

// setupUseCases initializes use case implementations
func (c *Container) setupUseCases() {
	c.ValidatePoolUC = usecase.NewValidatePoolUseCase(
		c.Config.Validation,
		c.ChainClient,
		c.Metadata,
		c.StateCache,
		c.EventPublisher,
		c.EngineMetrics,
		c.Config.Cache.PoolTTL,
		c.Logger,
	)

	c.ExecuteTradeUC = usecase.NewExecuteTradeUseCase(
		c.ValidatePoolUC,
		c.SwapBuilder,
		c.TxBuilder,
		c.Signer,
		c.Engine,
		c.StateCache,
		c.EventPublisher,
		c.EngineMetrics,
		c.Logger,
	)
}

// Start launches the background pieces: cache sweeper, metrics flusher,
// metrics server and the account change stream
func (c *Container) Start(ctx context.Context) {
	c.runCtx, c.runCancel = context.WithCancel(ctx)

	c.StateCache.StartSweeper(c.runCtx)
	c.MetricsTracker.StartFlusher(c.runCtx)

	if c.MetricsServer != nil {
		c.MetricsServer.Start()
	}

	if c.StreamManager != nil {
		if err := c.StreamManager.Start(c.runCtx); err != nil {
			c.Logger.WithError(err).Warn("Account stream unavailable, market feeds run on timers only")
		}
	}

	c.Logger.Info("Trading core started")
}

// Shutdown performs cleanup of container resources
func (c *Container) Shutdown(ctx context.Context) {
	c.Logger.Info("Shutting down container")

	if c.runCancel != nil {
		c.runCancel()
	}

	c.Distributor.Close()
	if c.StreamManager != nil {
		c.StreamManager.Stop()
	}

	c.MetricsTracker.Stop()

	if c.MetricsServer != nil {
		if err := c.MetricsServer.Stop(ctx); err != nil {
			c.Logger.WithError(err).Warn("Metrics server shutdown returned an error")
		}
	}

	if c.RedisStore != nil {
		if err := c.RedisStore.Close(); err != nil {
			c.Logger.WithError(err).Warn("Redis close returned an error")
		}
	}

	c.Logger.Info("Container shutdown complete")
}
