package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/supesu/trading-core/internal/execution"
	"github.com/supesu/trading-core/internal/infrastructure/cache"
	"github.com/supesu/trading-core/internal/submitter"
	"github.com/supesu/trading-core/pkg/domain"
	"github.com/supesu/trading-core/pkg/logger"
	"github.com/supesu/trading-core/pkg/metrics"
)

// InstructionSource produces the swap instructions for a trade against a
// validated pool
type InstructionSource interface {
	SwapInstructions(ctx context.Context, snapshot *domain.PoolSnapshot, intent *domain.TradeIntent, wallet solana.PublicKey) ([]solana.Instruction, error)
}

// WalletSigner resolves wallet references to public keys and signs built
// transactions. Key material stays behind this interface.
type WalletSigner interface {
	submitter.Signer
	PublicKey(walletReference string) (solana.PublicKey, error)
}

// ExecuteTradeUseCase drives one trade intent end to end: validate the
// pool, build and sign the transaction, then run it through the strategy
// engine. It always produces a terminal TransactionResult; failures are
// classified, never surfaced as raw errors.
type ExecuteTradeUseCase struct {
	validator     *ValidatePoolUseCase
	instructions  InstructionSource
	builder       *submitter.TransactionBuilder
	signer        WalletSigner
	engine        *execution.Engine
	cache         *cache.StateCache
	events        domain.EventPublisher
	engineMetrics *metrics.EngineMetrics
	logger        logger.Logger
}

// NewExecuteTradeUseCase creates the trade orchestration use case
func NewExecuteTradeUseCase(
	validator *ValidatePoolUseCase,
	instructions InstructionSource,
	builder *submitter.TransactionBuilder,
	signer WalletSigner,
	engine *execution.Engine,
	stateCache *cache.StateCache,
	events domain.EventPublisher,
	em *metrics.EngineMetrics,
	log logger.Logger,
) *ExecuteTradeUseCase {
	return &ExecuteTradeUseCase{
		validator:     validator,
		instructions:  instructions,
		builder:       builder,
		signer:        signer,
		engine:        engine,
		cache:         stateCache,
		events:        events,
		engineMetrics: em,
		logger:        log,
	}
}

// Execute runs the intent to a terminal result
func (uc *ExecuteTradeUseCase) Execute(ctx context.Context, intent *domain.TradeIntent) *domain.TransactionResult {
	if !intent.IsValid() {
		return uc.finish(ctx, intent, failedResult(domain.ErrKindValidation, "trade intent is incomplete", ""))
	}

	uc.logger.WithFields(map[string]interface{}{
		"pool":   intent.PoolAddress,
		"side":   string(intent.Side),
		"amount": intent.AmountIn,
	}).Info("Starting trade execution")

	validation, err := uc.validator.Execute(ctx, intent.PoolAddress)
	if err != nil {
		return uc.finish(ctx, intent, failedResult(domain.KindOf(err), err.Error(), ""))
	}
	if !validation.Passed {
		reasons := strings.Join(domain.FailureReasons(validation.Results), "; ")
		return uc.finish(ctx, intent, failedResult(domain.ErrKindValidation, reasons, ""))
	}

	wallet, err := uc.signer.PublicKey(intent.WalletReference)
	if err != nil {
		return uc.finish(ctx, intent, failedResult(domain.ErrKindBuild, err.Error(), ""))
	}

	swapInstructions, err := uc.instructions.SwapInstructions(ctx, validation.Snapshot, intent, wallet)
	if err != nil {
		return uc.finish(ctx, intent, failedResult(domain.KindOf(err), err.Error(), ""))
	}

	tx, err := uc.builder.Build(ctx, intent, swapInstructions, wallet)
	if err != nil {
		return uc.finish(ctx, intent, failedResult(domain.KindOf(err), err.Error(), ""))
	}

	if err := uc.signer.Sign(ctx, tx, intent.WalletReference); err != nil {
		return uc.finish(ctx, intent, failedResult(domain.ErrKindBuild, err.Error(), ""))
	}

	result := uc.engine.Execute(ctx, &execution.TradeContext{Intent: intent, Transaction: tx})
	return uc.finish(ctx, intent, result)
}

// finish records the terminal outcome: trade metrics, the completion event
// and the pool's last-traded timestamp
func (uc *ExecuteTradeUseCase) finish(ctx context.Context, intent *domain.TradeIntent, result *domain.TransactionResult) *domain.TransactionResult {
	if uc.engineMetrics != nil {
		outcome := "failure"
		if result.Success {
			outcome = "success"
		}
		uc.engineMetrics.TradesTotal.WithLabelValues(outcome).Inc()
	}

	if result.Success {
		now := time.Now()
		if err := uc.cache.Update(ctx, cache.PoolKey(intent.PoolAddress), cache.Patch{LastTraded: &now}); err != nil {
			uc.logger.WithError(err).WithField("pool", intent.PoolAddress).
				Debug("Pool entry not cached, skipping last-traded update")
		}
		uc.logger.WithFields(map[string]interface{}{
			"pool":      intent.PoolAddress,
			"signature": result.Signature,
			"strategy":  result.Strategy,
		}).Info("Trade completed")
	} else {
		uc.logger.WithFields(map[string]interface{}{
			"pool":   intent.PoolAddress,
			"kind":   string(result.ErrorKind),
			"reason": result.Error,
		}).Warn("Trade failed")
	}

	if uc.events != nil {
		if err := uc.events.PublishTradeCompleted(ctx, result); err != nil {
			uc.logger.WithError(err).Warn("Failed to publish trade completion event")
		}
	}
	return result
}

func failedResult(kind domain.ErrorKind, msg, strategy string) *domain.TransactionResult {
	return &domain.TransactionResult{
		Success:     false,
		Error:       msg,
		ErrorKind:   kind,
		Strategy:    strategy,
		CompletedAt: time.Now(),
	}
}
