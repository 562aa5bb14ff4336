package domain

import (
	"time"
)

// PoolSnapshot is the decoded on-chain state of a liquidity pool. A snapshot
// is immutable once decoded; refreshes replace the whole value, they never
// mutate individual fields of a snapshot already handed out.
type PoolSnapshot struct {
	Address       string
	BaseMint      string
	QuoteMint     string
	BaseVault     string
	QuoteVault    string
	LpMint        string
	Authority     string
	OpenOrders    string
	TargetOrders  string
	MarketAddress string
	BaseDecimals  uint8
	QuoteDecimals uint8
	LpReserve     uint64
	OpenTime      time.Time
	Layout        PoolLayout
	DecodedAt     time.Time
}

// PoolLayout identifies the account layout a snapshot was decoded from.
// Unknown layouts fail closed at decode time, they never reach this type.
type PoolLayout string

const (
	// PoolLayoutAmmV4 is the standard constant-product AMM account layout.
	PoolLayoutAmmV4 PoolLayout = "amm_v4"
)

// IsValid validates the pool snapshot according to business rules
func (p *PoolSnapshot) IsValid() bool {
	if p.Address == "" {
		return false
	}
	if p.BaseMint == "" || p.QuoteMint == "" {
		return false
	}
	if p.BaseVault == "" || p.QuoteVault == "" {
		return false
	}
	return p.LpMint != ""
}

// Age returns how long ago the snapshot was decoded
func (p *PoolSnapshot) Age() time.Duration {
	return time.Since(p.DecodedAt)
}

// IsOpen reports whether trading on the pool has started
func (p *PoolSnapshot) IsOpen(now time.Time) bool {
	return !p.OpenTime.After(now)
}

// PoolMetrics holds derived per-pool quality numbers, recomputed on a fixed
// interval and cached with the same TTL discipline as market snapshots.
type PoolMetrics struct {
	PoolAddress      string
	Liquidity        uint64 // quote-asset base units
	Volume24h        uint64
	PriceImpactPct   float64
	HolderCount      int
	TransactionCount uint64
	ComputedAt       time.Time
}

// MarketSnapshot is the derived market state for a pool address. PoolPrice
// and SpotPrice come from distinct sources (vault reserves vs cumulative
// swap flow) and are kept clearly separated; see Divergence.
type MarketSnapshot struct {
	MarketAddress string
	PoolPrice     float64 // quote per base, from vault reserve ratio
	SpotPrice     float64 // quote per base, from cumulative swap flow
	BestBid       float64
	BestAsk       float64
	Volume24h     uint64
	BaseReserve   uint64
	QuoteReserve  uint64
	Volatility    float64
	Stale         bool
	UpdatedAt     time.Time
}

// IsValid validates the market snapshot according to business rules
func (m *MarketSnapshot) IsValid() bool {
	if m.MarketAddress == "" {
		return false
	}
	return m.PoolPrice > 0 || m.SpotPrice > 0
}

// Age returns how long ago the snapshot was derived
func (m *MarketSnapshot) Age() time.Duration {
	return time.Since(m.UpdatedAt)
}

// Divergence returns the relative gap between the reserve-derived pool price
// and the flow-derived spot price. The two are measured on different bases;
// a large divergence is flagged to callers instead of silently reconciled.
func (m *MarketSnapshot) Divergence() float64 {
	if m.PoolPrice <= 0 || m.SpotPrice <= 0 {
		return 0
	}
	diff := m.PoolPrice - m.SpotPrice
	if diff < 0 {
		diff = -diff
	}
	return diff / m.PoolPrice
}

// Mid returns the midpoint of best bid and ask, falling back to the pool
// price when quotes are absent
func (m *MarketSnapshot) Mid() float64 {
	if m.BestBid > 0 && m.BestAsk > 0 {
		return (m.BestBid + m.BestAsk) / 2
	}
	return m.PoolPrice
}
