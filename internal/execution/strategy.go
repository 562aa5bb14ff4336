package execution

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/supesu/trading-core/pkg/domain"
)

// TradeContext carries one trade attempt through the strategy chain: the
// originating intent plus the transaction built for it. Strategies may
// re-sign or wrap the transaction but never change the intent.
type TradeContext struct {
	Intent      *domain.TradeIntent
	Transaction *solana.Transaction
}

// Strategy is one execution backend. Backends are tried in descending
// Priority order; the first to produce a confirmed result wins.
type Strategy interface {
	// Name returns the unique name of this backend
	Name() string

	// Priority returns the rotation rank; higher runs first
	Priority() int

	// Validate reports whether this backend can serve the given trade.
	// A false return skips the backend without counting an attempt.
	Validate(ctx context.Context, trade *TradeContext) bool

	// Execute submits the trade through this backend and waits for its
	// terminal outcome. Errors are classified trade errors.
	Execute(ctx context.Context, trade *TradeContext) (*domain.TransactionResult, error)
}
