package solana

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/supesu/trading-core/pkg/domain"
	"github.com/supesu/trading-core/pkg/logger"
)

// volatilityWindow bounds how many recent price observations feed the
// rolling volatility estimate per pool.
const volatilityWindow = 60

// MarketSnapshotter derives market state for pool addresses from on-chain
// reads. It keeps a short rolling price history per pool so successive
// snapshots carry a volatility estimate.
type MarketSnapshotter struct {
	client *Client
	logger logger.Logger

	mu      sync.Mutex
	history map[string][]float64
}

// NewMarketSnapshotter creates a snapshotter backed by the given chain client
func NewMarketSnapshotter(client *Client, log logger.Logger) *MarketSnapshotter {
	return &MarketSnapshotter{
		client:  client,
		logger:  log,
		history: make(map[string][]float64),
	}
}

// Snapshot reads the pool account and its vaults and derives a market
// snapshot. PoolPrice comes from the vault reserve ratio; SpotPrice comes
// from the pool's cumulative swap flow. The two sources are labeled and
// never reconciled here.
func (s *MarketSnapshotter) Snapshot(ctx context.Context, poolAddress string) (*domain.MarketSnapshot, error) {
	data, err := s.client.GetAccountData(ctx, poolAddress)
	if err != nil {
		return nil, err
	}

	state, err := decodeAmmState(data)
	if err != nil {
		return nil, err
	}

	baseReserve, err := s.client.GetTokenAccountBalance(ctx, state.BaseVault.String())
	if err != nil {
		return nil, fmt.Errorf("failed to read base vault balance: %w", err)
	}

	quoteReserve, err := s.client.GetTokenAccountBalance(ctx, state.QuoteVault.String())
	if err != nil {
		return nil, fmt.Errorf("failed to read quote vault balance: %w", err)
	}

	// Reserves still owed out as protocol PnL are not tradable depth.
	baseAvailable := saturatingSub(baseReserve, state.BaseNeedTakePnl)
	quoteAvailable := saturatingSub(quoteReserve, state.QuoteNeedTakePnl)

	poolPrice := reservePrice(baseAvailable, quoteAvailable, int(state.BaseDecimal), int(state.QuoteDecimal))
	spotPrice := state.flowPrice()

	snapshot := &domain.MarketSnapshot{
		MarketAddress: poolAddress,
		PoolPrice:     poolPrice,
		SpotPrice:     spotPrice,
		Volume24h:     uint128ToUint64(state.SwapQuoteInAmount),
		BaseReserve:   baseAvailable,
		QuoteReserve:  quoteAvailable,
		Volatility:    s.observePrice(poolAddress, poolPrice),
		Stale:         false,
		UpdatedAt:     time.Now(),
	}

	// A constant-product pool quotes both sides around the reserve price;
	// the swap fee is the effective spread.
	if poolPrice > 0 && state.SwapFeeDenominator > 0 {
		fee := float64(state.SwapFeeNumerator) / float64(state.SwapFeeDenominator)
		snapshot.BestBid = poolPrice * (1 - fee)
		snapshot.BestAsk = poolPrice * (1 + fee)
	}

	return snapshot, nil
}

// observePrice appends a price observation to the pool's rolling window and
// returns the window's relative standard deviation
func (s *MarketSnapshotter) observePrice(poolAddress string, price float64) float64 {
	if price <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	window := append(s.history[poolAddress], price)
	if len(window) > volatilityWindow {
		window = window[len(window)-volatilityWindow:]
	}
	s.history[poolAddress] = window

	if len(window) < 2 {
		return 0
	}

	var sum float64
	for _, p := range window {
		sum += p
	}
	mean := sum / float64(len(window))

	var variance float64
	for _, p := range window {
		variance += (p - mean) * (p - mean)
	}
	variance /= float64(len(window) - 1)

	return math.Sqrt(variance) / mean
}

// Forget drops the rolling price history for a pool. Called when the last
// subscriber of a feed goes away.
func (s *MarketSnapshotter) Forget(poolAddress string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.history, poolAddress)
}

func reservePrice(baseReserve, quoteReserve uint64, baseDecimals, quoteDecimals int) float64 {
	if baseReserve == 0 {
		return 0
	}
	raw := float64(quoteReserve) / float64(baseReserve)
	return raw * pow10(baseDecimals) / pow10(quoteDecimals)
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}

func uint128ToUint64(v bin.Uint128) uint64 {
	big := v.BigInt()
	if !big.IsUint64() {
		return math.MaxUint64
	}
	return big.Uint64()
}
