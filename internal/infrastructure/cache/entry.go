package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/supesu/trading-core/pkg/domain"
)

// Key prefixes shared by both tiers.
const (
	PoolKeyPrefix      = "pool:"
	MarketKeyPrefix    = "market:"
	MetricsKeyPrefix   = "pool_metrics:"
	SignatureKeyPrefix = "sig:"
	StrategyKeyPrefix  = "strategy:"
)

// PoolKey returns the cache key for a pool snapshot
func PoolKey(address string) string { return PoolKeyPrefix + address }

// MarketKey returns the cache key for a market snapshot
func MarketKey(address string) string { return MarketKeyPrefix + address }

// MetricsKey returns the cache key for derived pool metrics
func MetricsKey(address string) string { return MetricsKeyPrefix + address }

// SignatureKey returns the cache key for a confirmed transaction outcome
func SignatureKey(signature string) string { return SignatureKeyPrefix + signature }

// StrategyKey returns the cache key for persisted strategy state
func StrategyKey(name string) string { return StrategyKeyPrefix + name }

// Entry wraps a cached value with freshness bookkeeping. Entries are
// replaced wholesale on every write; readers never observe a partially
// updated entry.
type Entry struct {
	Key         string
	Value       interface{}
	LastUpdated time.Time
	LastTraded  time.Time
	Metadata    map[string]string
	TTL         time.Duration
}

// Expired reports whether the entry is older than its TTL at the given
// time. A non-positive TTL means the entry never expires.
func (e *Entry) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.Sub(e.LastUpdated) > e.TTL
}

// clone returns a copy with its own metadata map so callers cannot mutate
// the cached entry in place
func (e *Entry) clone() *Entry {
	c := *e
	if e.Metadata != nil {
		c.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Patch carries a partial metadata update for an existing entry
type Patch struct {
	LastTraded *time.Time
	Metadata   map[string]string
}

// Value kinds used to round-trip typed entries through the shared tier.
const (
	kindPoolSnapshot    = "pool_snapshot"
	kindMarketSnapshot  = "market_snapshot"
	kindPoolMetrics     = "pool_metrics"
	kindStrategyMetrics = "strategy_metrics"
	kindTxResult        = "tx_result"
)

// storedEntry is the JSON envelope persisted to the shared tier
type storedEntry struct {
	Kind        string            `json:"kind"`
	Data        json.RawMessage   `json:"data"`
	LastUpdated time.Time         `json:"last_updated"`
	LastTraded  time.Time         `json:"last_traded,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	TTLSeconds  int64             `json:"ttl_seconds"`
}

// kindOf maps a cached value to its serialization tag. Values outside the
// known set stay in the in-process tier only.
func kindOf(value interface{}) (string, bool) {
	switch value.(type) {
	case *domain.PoolSnapshot:
		return kindPoolSnapshot, true
	case *domain.MarketSnapshot:
		return kindMarketSnapshot, true
	case *domain.PoolMetrics:
		return kindPoolMetrics, true
	case *domain.StrategyMetrics:
		return kindStrategyMetrics, true
	case *domain.TransactionResult:
		return kindTxResult, true
	default:
		return "", false
	}
}

// decodeValue decodes a stored payload back into its typed value
func decodeValue(kind string, data []byte) (interface{}, error) {
	switch kind {
	case kindPoolSnapshot:
		v := &domain.PoolSnapshot{}
		return v, json.Unmarshal(data, v)
	case kindMarketSnapshot:
		v := &domain.MarketSnapshot{}
		return v, json.Unmarshal(data, v)
	case kindPoolMetrics:
		v := &domain.PoolMetrics{}
		return v, json.Unmarshal(data, v)
	case kindStrategyMetrics:
		v := &domain.StrategyMetrics{}
		return v, json.Unmarshal(data, v)
	case kindTxResult:
		v := &domain.TransactionResult{}
		return v, json.Unmarshal(data, v)
	default:
		return nil, fmt.Errorf("unknown cache entry kind %q", kind)
	}
}
