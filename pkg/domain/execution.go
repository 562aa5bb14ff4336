package domain

import (
	"time"
)

// TradeSide indicates the direction of a trade intent
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// TradeIntent is what the external decision layer hands to this core: what
// to trade, how much and with which risk tolerance. This core does not
// generate intents.
type TradeIntent struct {
	PoolAddress     string
	Side            TradeSide
	AmountIn        uint64 // base units of the input asset
	SlippageBps     uint16
	MaxPriorityFee  uint64 // lamports, 0 means use configured default
	AllowRelay      bool
	AllowBundle     bool
	WalletReference string // opaque key reference resolved by the signer capability
	ReceivedAt      time.Time
}

// IsValid validates the trade intent according to business rules
func (t *TradeIntent) IsValid() bool {
	if t.PoolAddress == "" {
		return false
	}
	if t.Side != TradeSideBuy && t.Side != TradeSideSell {
		return false
	}
	return t.AmountIn > 0
}

// TransactionResult is the terminal outcome of one submission attempt. Once
// returned it is immutable.
type TransactionResult struct {
	Signature    string
	Success      bool
	Error        string
	ErrorKind    ErrorKind
	Strategy     string
	FeeLamports  uint64
	Confirmation time.Duration
	Slot         uint64
	CompletedAt  time.Time
}

// SignatureStatus is a fresh chain read of a submitted transaction's state
type SignatureStatus struct {
	Confirmed bool
	Finalized bool
	Slot      uint64
	Err       string
}

// StrategyMetrics tracks rolling per-backend performance. All fields are
// maintained with streaming updates; full history is never replayed.
type StrategyMetrics struct {
	Strategy        string
	SuccessRate     float64
	AvgLatencyMs    float64
	AvgFeeLamports  float64
	TotalExecutions uint64
	LastExecutedAt  time.Time
}

// RecordAttempt folds one execution outcome into the rolling averages using
// the incremental mean formula:
//
//	newRate = (oldRate*oldCount + outcome) / (oldCount + 1)
//
// The final value depends only on the multiset of recorded outcomes, not on
// the order they arrive in.
func (m *StrategyMetrics) RecordAttempt(success bool, latency time.Duration, feeLamports uint64) {
	oldCount := float64(m.TotalExecutions)
	newCount := oldCount + 1

	outcome := 0.0
	if success {
		outcome = 1.0
	}
	m.SuccessRate = (m.SuccessRate*oldCount + outcome) / newCount
	m.AvgLatencyMs = (m.AvgLatencyMs*oldCount + float64(latency.Milliseconds())) / newCount
	m.AvgFeeLamports = (m.AvgFeeLamports*oldCount + float64(feeLamports)) / newCount
	m.TotalExecutions++
	m.LastExecutedAt = time.Now()
}
