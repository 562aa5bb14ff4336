package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/supesu/trading-core/internal/infrastructure/cache"
	"github.com/supesu/trading-core/pkg/config"
	"github.com/supesu/trading-core/pkg/domain"
	"github.com/supesu/trading-core/pkg/logger"
	"github.com/supesu/trading-core/pkg/metrics"
)

// ValidatePoolUseCase runs the configured safety checks against a pool.
// Every requested check runs even after a failure so the result reports all
// violations at once. Concurrent validations of the same pool are collapsed
// into one run.
type ValidatePoolUseCase struct {
	cfg           config.ValidationConfig
	chain         domain.ChainReader
	metadata      domain.MetadataResolver
	cache         *cache.StateCache
	events        domain.EventPublisher
	engineMetrics *metrics.EngineMetrics
	logger        logger.Logger

	poolTTL time.Duration
	group   singleflight.Group
}

// NewValidatePoolUseCase creates the pool validation use case
func NewValidatePoolUseCase(
	cfg config.ValidationConfig,
	chain domain.ChainReader,
	metadata domain.MetadataResolver,
	stateCache *cache.StateCache,
	events domain.EventPublisher,
	em *metrics.EngineMetrics,
	poolTTL time.Duration,
	log logger.Logger,
) *ValidatePoolUseCase {
	return &ValidatePoolUseCase{
		cfg:           cfg,
		chain:         chain,
		metadata:      metadata,
		cache:         stateCache,
		events:        events,
		engineMetrics: em,
		logger:        log,
		poolTTL:       poolTTL,
	}
}

// ValidatePoolResult is the outcome of running the full validation pipeline
type ValidatePoolResult struct {
	Snapshot *domain.PoolSnapshot
	Results  []domain.ValidationResult
	Passed   bool
}

// Execute validates the pool and returns the per-check results. It errors
// only when the pool account itself cannot be read or decoded; check
// failures are reported in the result, not as errors.
func (uc *ValidatePoolUseCase) Execute(ctx context.Context, poolAddress string) (*ValidatePoolResult, error) {
	v, err, _ := uc.group.Do(poolAddress, func() (interface{}, error) {
		return uc.validate(ctx, poolAddress)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ValidatePoolResult), nil
}

func (uc *ValidatePoolUseCase) validate(ctx context.Context, poolAddress string) (*ValidatePoolResult, error) {
	started := time.Now()

	snapshot, err := uc.poolSnapshot(ctx, poolAddress)
	if err != nil {
		return nil, err
	}

	var results []domain.ValidationResult
	if uc.cfg.CheckBurned {
		results = append(results, uc.checkBurned(ctx, snapshot))
	}
	if uc.cfg.CheckMutable || uc.cfg.CheckSocials {
		results = append(results, uc.checkMetadata(ctx, snapshot)...)
	}
	if uc.cfg.CheckRenounced || uc.cfg.CheckFreezable {
		results = append(results, uc.checkMintAuthorities(ctx, snapshot)...)
	}
	results = append(results, uc.checkLiquidity(ctx, snapshot))
	results = append(results, uc.checkMetrics(ctx, snapshot))

	passed := domain.AllPassed(results)
	uc.observe(results, passed, time.Since(started))

	if !passed {
		uc.logger.WithFields(map[string]interface{}{
			"pool":    poolAddress,
			"reasons": domain.FailureReasons(results),
		}).Warn("Pool failed validation")

		if uc.events != nil {
			if err := uc.events.PublishPoolValidationFailed(ctx, poolAddress, results); err != nil {
				uc.logger.WithError(err).Warn("Failed to publish pool validation event")
			}
		}
	}

	return &ValidatePoolResult{Snapshot: snapshot, Results: results, Passed: passed}, nil
}

// poolSnapshot returns the pool state, from cache when fresh
func (uc *ValidatePoolUseCase) poolSnapshot(ctx context.Context, poolAddress string) (*domain.PoolSnapshot, error) {
	if entry, ok := uc.cache.Get(ctx, cache.PoolKey(poolAddress)); ok {
		if snapshot, ok := entry.Value.(*domain.PoolSnapshot); ok {
			return snapshot, nil
		}
	}

	snapshot, err := uc.chain.GetPoolSnapshot(ctx, poolAddress)
	if err != nil {
		return nil, err
	}

	uc.cache.Set(ctx, cache.PoolKey(poolAddress), snapshot, uc.poolTTL, nil)
	return snapshot, nil
}

// checkBurned verifies the LP mint supply was burned to zero. A node that
// cannot serve the supply read passes the check rather than blocking the
// trade.
func (uc *ValidatePoolUseCase) checkBurned(ctx context.Context, snapshot *domain.PoolSnapshot) domain.ValidationResult {
	supply, err := uc.chain.GetTokenSupply(ctx, snapshot.LpMint)
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedRead) {
			return domain.Pass(domain.CheckBurned)
		}
		return domain.Fail(domain.CheckBurned, fmt.Sprintf("LP supply read failed: %v", err))
	}

	if supply > 0 {
		return domain.Fail(domain.CheckBurned,
			fmt.Sprintf("LP supply %d has not been burned", supply))
	}
	return domain.Pass(domain.CheckBurned)
}

// checkMetadata runs the mutable and socials checks off a single metadata read
func (uc *ValidatePoolUseCase) checkMetadata(ctx context.Context, snapshot *domain.PoolSnapshot) []domain.ValidationResult {
	var results []domain.ValidationResult

	meta, err := uc.metadata.GetTokenMetadata(ctx, snapshot.BaseMint)
	if err != nil {
		msg := fmt.Sprintf("token metadata unavailable: %v", err)
		if uc.cfg.CheckMutable {
			results = append(results, domain.Fail(domain.CheckMutable, msg))
		}
		if uc.cfg.CheckSocials {
			results = append(results, domain.Fail(domain.CheckSocials, msg))
		}
		return results
	}

	if uc.cfg.CheckMutable {
		if meta.Mutable {
			results = append(results, domain.Fail(domain.CheckMutable, "token metadata is mutable"))
		} else {
			results = append(results, domain.Pass(domain.CheckMutable))
		}
	}

	if uc.cfg.CheckSocials {
		// An unreachable or empty socials document is a failure, not a skip:
		// the check exists to prove a human stands behind the token.
		socials, err := uc.metadata.FetchTokenSocials(ctx, meta.URI)
		switch {
		case err != nil:
			results = append(results, domain.Fail(domain.CheckSocials,
				fmt.Sprintf("socials fetch failed: %v", err)))
		case !socials.HasAny():
			results = append(results, domain.Fail(domain.CheckSocials, "token has no social links"))
		default:
			results = append(results, domain.Pass(domain.CheckSocials))
		}
	}

	return results
}

// checkMintAuthorities runs the renounced and freezable checks off a single
// mint account read
func (uc *ValidatePoolUseCase) checkMintAuthorities(ctx context.Context, snapshot *domain.PoolSnapshot) []domain.ValidationResult {
	var results []domain.ValidationResult

	info, err := uc.chain.GetMintInfo(ctx, snapshot.BaseMint)
	if err != nil {
		msg := fmt.Sprintf("mint account read failed: %v", err)
		if uc.cfg.CheckRenounced {
			results = append(results, domain.Fail(domain.CheckRenounced, msg))
		}
		if uc.cfg.CheckFreezable {
			results = append(results, domain.Fail(domain.CheckFreezable, msg))
		}
		return results
	}

	if uc.cfg.CheckRenounced {
		if info.HasMintAuthority {
			results = append(results, domain.Fail(domain.CheckRenounced, "mint authority is not renounced"))
		} else {
			results = append(results, domain.Pass(domain.CheckRenounced))
		}
	}

	if uc.cfg.CheckFreezable {
		if info.HasFreezeAuthority {
			results = append(results, domain.Fail(domain.CheckFreezable, "token accounts can be frozen"))
		} else {
			results = append(results, domain.Pass(domain.CheckFreezable))
		}
	}

	return results
}

// checkLiquidity bounds the pool's quote-side depth
func (uc *ValidatePoolUseCase) checkLiquidity(ctx context.Context, snapshot *domain.PoolSnapshot) domain.ValidationResult {
	liquidity, err := uc.chain.GetTokenAccountBalance(ctx, snapshot.QuoteVault)
	if err != nil {
		return domain.Fail(domain.CheckLiquidity, fmt.Sprintf("quote vault read failed: %v", err))
	}

	if liquidity < uc.cfg.MinLiquidity {
		return domain.Fail(domain.CheckLiquidity,
			fmt.Sprintf("Insufficient liquidity: %d below minimum %d", liquidity, uc.cfg.MinLiquidity))
	}
	if uc.cfg.MaxLiquidity > 0 && liquidity > uc.cfg.MaxLiquidity {
		return domain.Fail(domain.CheckLiquidity,
			fmt.Sprintf("liquidity %d above maximum %d", liquidity, uc.cfg.MaxLiquidity))
	}
	return domain.Pass(domain.CheckLiquidity)
}

// checkMetrics validates derived pool metrics against configured thresholds
// and caches them for later reads
func (uc *ValidatePoolUseCase) checkMetrics(ctx context.Context, snapshot *domain.PoolSnapshot) domain.ValidationResult {
	poolMetrics := &domain.PoolMetrics{
		PoolAddress: snapshot.Address,
		ComputedAt:  time.Now(),
	}

	if uc.cfg.MinHolders > 0 {
		holders, err := uc.chain.GetHolderCount(ctx, snapshot.BaseMint)
		if err != nil {
			return domain.Fail(domain.CheckMetrics, fmt.Sprintf("holder count read failed: %v", err))
		}
		poolMetrics.HolderCount = holders
		if holders < uc.cfg.MinHolders {
			return domain.Fail(domain.CheckMetrics,
				fmt.Sprintf("%d holders below minimum %d", holders, uc.cfg.MinHolders))
		}
	}

	if uc.cfg.MinVolume24h > 0 || uc.cfg.MaxPriceImpact > 0 {
		entry, ok := uc.cache.Get(ctx, cache.MarketKey(snapshot.Address))
		if ok {
			if market, valid := entry.Value.(*domain.MarketSnapshot); valid {
				poolMetrics.Volume24h = market.Volume24h
				if uc.cfg.MinVolume24h > 0 && market.Volume24h < uc.cfg.MinVolume24h {
					return domain.Fail(domain.CheckMetrics,
						fmt.Sprintf("24h volume %d below minimum %d", market.Volume24h, uc.cfg.MinVolume24h))
				}

				// Validation has no trade size, so price impact is measured
				// as the gap between the pool's two price sources. Per-trade
				// slippage is bounded separately by the intent's tolerance.
				poolMetrics.PriceImpactPct = market.Divergence() * 100
				if uc.cfg.MaxPriceImpact > 0 && poolMetrics.PriceImpactPct > uc.cfg.MaxPriceImpact {
					return domain.Fail(domain.CheckMetrics,
						fmt.Sprintf("price impact %.2f%% above maximum %.2f%%", poolMetrics.PriceImpactPct, uc.cfg.MaxPriceImpact))
				}
			}
		}
	}

	uc.cache.Set(ctx, cache.MetricsKey(snapshot.Address), poolMetrics, uc.poolTTL, nil)
	return domain.Pass(domain.CheckMetrics)
}

func (uc *ValidatePoolUseCase) observe(results []domain.ValidationResult, passed bool, elapsed time.Duration) {
	if uc.engineMetrics == nil {
		return
	}

	for _, r := range results {
		outcome := "fail"
		if r.Passed {
			outcome = "pass"
		}
		uc.engineMetrics.ValidationChecksTotal.WithLabelValues(string(r.Check), outcome).Inc()
	}
	uc.engineMetrics.ValidationDuration.Observe(elapsed.Seconds())
	if !passed {
		uc.engineMetrics.PoolsRejectedTotal.Inc()
	}
}
