package execution

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/supesu/trading-core/pkg/config"
	"github.com/supesu/trading-core/pkg/domain"
	"github.com/supesu/trading-core/pkg/logger"
)

// Broadcaster sends a signed transaction straight to the RPC node
type Broadcaster interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction, skipPreflight bool) (string, error)
}

// Confirmer waits for a submitted signature to reach a terminal state
type Confirmer interface {
	Await(ctx context.Context, signature string) (*domain.TransactionResult, error)
}

// BroadcastStrategy is the plain RPC backend: send the transaction to the
// configured node and poll for confirmation. It serves every trade.
type BroadcastStrategy struct {
	cfg       config.BroadcastStrategyConfig
	rpc       Broadcaster
	confirmer Confirmer
	logger    logger.Logger
}

// NewBroadcastStrategy creates the direct RPC broadcast backend
func NewBroadcastStrategy(cfg config.BroadcastStrategyConfig, rpc Broadcaster, confirmer Confirmer, log logger.Logger) *BroadcastStrategy {
	return &BroadcastStrategy{cfg: cfg, rpc: rpc, confirmer: confirmer, logger: log}
}

// Name implements Strategy.Name
func (s *BroadcastStrategy) Name() string { return "broadcast" }

// Priority implements Strategy.Priority
func (s *BroadcastStrategy) Priority() int { return s.cfg.Priority }

// Validate implements Strategy.Validate
func (s *BroadcastStrategy) Validate(ctx context.Context, trade *TradeContext) bool {
	return trade.Transaction != nil
}

// Execute implements Strategy.Execute
func (s *BroadcastStrategy) Execute(ctx context.Context, trade *TradeContext) (*domain.TransactionResult, error) {
	signature, err := s.rpc.SendTransaction(ctx, trade.Transaction, s.cfg.SkipPreflight)
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrKindSubmission, "broadcast submission failed", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"signature": signature,
		"pool":      trade.Intent.PoolAddress,
	}).Info("Transaction broadcast to RPC node")

	return s.confirmer.Await(ctx, signature)
}
