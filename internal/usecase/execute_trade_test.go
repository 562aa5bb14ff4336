package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supesu/trading-core/internal/execution"
	"github.com/supesu/trading-core/internal/infrastructure/cache"
	"github.com/supesu/trading-core/internal/submitter"
	"github.com/supesu/trading-core/pkg/config"
	"github.com/supesu/trading-core/pkg/domain"
	"github.com/supesu/trading-core/pkg/logger"
)

type fakeInstructionSource struct {
	err   error
	calls int
}

func (f *fakeInstructionSource) SwapInstructions(ctx context.Context, snapshot *domain.PoolSnapshot, intent *domain.TradeIntent, wallet solana.PublicKey) ([]solana.Instruction, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	ix := system.NewTransferInstruction(intent.AmountIn, wallet, solana.NewWallet().PublicKey()).Build()
	return []solana.Instruction{ix}, nil
}

type fakeWalletSigner struct {
	wallet  *solana.Wallet
	signErr error
	keyErr  error
}

func (f *fakeWalletSigner) PublicKey(walletReference string) (solana.PublicKey, error) {
	if f.keyErr != nil {
		return solana.PublicKey{}, f.keyErr
	}
	return f.wallet.PublicKey(), nil
}

func (f *fakeWalletSigner) Sign(ctx context.Context, tx *solana.Transaction, walletReference string) error {
	if f.signErr != nil {
		return f.signErr
	}
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(f.wallet.PublicKey()) {
			return &f.wallet.PrivateKey
		}
		return nil
	})
	return err
}

type fakeBuilderChain struct{}

func (fakeBuilderChain) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	return solana.HashFromBytes(make([]byte, 32)), nil
}

func (fakeBuilderChain) GetLookupTableAddresses(ctx context.Context, table string) ([]solana.PublicKey, error) {
	return nil, nil
}

// winningStrategy confirms every transaction it is handed.
type winningStrategy struct {
	calls int
	fail  error
}

func (s *winningStrategy) Name() string  { return "broadcast" }
func (s *winningStrategy) Priority() int { return 100 }

func (s *winningStrategy) Validate(ctx context.Context, trade *execution.TradeContext) bool {
	return trade.Transaction != nil
}

func (s *winningStrategy) Execute(ctx context.Context, trade *execution.TradeContext) (*domain.TransactionResult, error) {
	s.calls++
	if s.fail != nil {
		return nil, s.fail
	}
	return &domain.TransactionResult{
		Signature:   trade.Transaction.Signatures[0].String(),
		Success:     true,
		CompletedAt: time.Now(),
	}, nil
}

type tradeFixture struct {
	useCase      *ExecuteTradeUseCase
	chain        *fakeChainReader
	instructions *fakeInstructionSource
	signer       *fakeWalletSigner
	strategy     *winningStrategy
	cache        *cache.StateCache
}

func newTradeFixture(t *testing.T) *tradeFixture {
	t.Helper()
	log := logger.New("error", "test")
	stateCache := cache.New(log, cache.Options{SweepInterval: time.Hour})

	chain := healthyChainReader()
	validator := NewValidatePoolUseCase(allChecksConfig(), chain, trustedResolver(), stateCache, nil, nil, time.Hour, log)

	strategy := &winningStrategy{}
	registry := execution.NewRegistry(stateCache, log)
	require.NoError(t, registry.Register(strategy))

	execCfg := config.ExecutionConfig{
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
	}
	tracker := execution.NewMetricsTracker(stateCache, nil, time.Hour, log)
	engine := execution.NewEngine(execCfg, registry, tracker, nil, nil, log)

	builder := submitter.NewTransactionBuilder(execCfg, fakeBuilderChain{}, log)
	instructions := &fakeInstructionSource{}
	signer := &fakeWalletSigner{wallet: solana.NewWallet()}

	uc := NewExecuteTradeUseCase(validator, instructions, builder, signer, engine, stateCache, nil, nil, log)
	return &tradeFixture{
		useCase:      uc,
		chain:        chain,
		instructions: instructions,
		signer:       signer,
		strategy:     strategy,
		cache:        stateCache,
	}
}

func buyIntent() *domain.TradeIntent {
	return &domain.TradeIntent{
		PoolAddress: "pool-1",
		Side:        domain.TradeSideBuy,
		AmountIn:    1_000_000,
		SlippageBps: 100,
		ReceivedAt:  time.Now(),
	}
}

func TestExecuteTradeSucceeds(t *testing.T) {
	f := newTradeFixture(t)

	result := f.useCase.Execute(context.Background(), buyIntent())

	require.True(t, result.Success, "unexpected failure: %s", result.Error)
	assert.Equal(t, "broadcast", result.Strategy)
	assert.NotEmpty(t, result.Signature)
	assert.Equal(t, 1, f.strategy.calls)

	// A completed trade stamps the cached pool entry.
	entry, ok := f.cache.Get(context.Background(), cache.PoolKey("pool-1"))
	require.True(t, ok)
	assert.False(t, entry.LastTraded.IsZero())
}

func TestExecuteTradeRejectsIncompleteIntent(t *testing.T) {
	f := newTradeFixture(t)

	result := f.useCase.Execute(context.Background(), &domain.TradeIntent{PoolAddress: "pool-1"})

	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrKindValidation, result.ErrorKind)
	assert.Zero(t, f.instructions.calls, "no instructions built for a rejected intent")
}

func TestExecuteTradeStopsOnFailedValidation(t *testing.T) {
	f := newTradeFixture(t)
	f.chain.balances["quote-vault"] = 1

	result := f.useCase.Execute(context.Background(), buyIntent())

	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrKindValidation, result.ErrorKind)
	assert.Contains(t, result.Error, "Insufficient liquidity")
	assert.Zero(t, f.strategy.calls)
}

func TestExecuteTradeClassifiesInstructionFailure(t *testing.T) {
	f := newTradeFixture(t)
	f.instructions.err = domain.NewTradeError(domain.ErrKindBuild, "market account unreadable", nil)

	result := f.useCase.Execute(context.Background(), buyIntent())

	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrKindBuild, result.ErrorKind)
	assert.Zero(t, f.strategy.calls)
}

func TestExecuteTradeClassifiesSigningFailure(t *testing.T) {
	f := newTradeFixture(t)
	f.signer.signErr = errors.New("keyfile missing")

	result := f.useCase.Execute(context.Background(), buyIntent())

	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrKindBuild, result.ErrorKind)
	assert.Zero(t, f.strategy.calls)
}

func TestExecuteTradeSurfacesStrategyFailure(t *testing.T) {
	f := newTradeFixture(t)
	f.strategy.fail = domain.NewTradeError(domain.ErrKindSubmission, "rpc node rejected transaction", nil)

	result := f.useCase.Execute(context.Background(), buyIntent())

	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrKindExhausted, result.ErrorKind)
	assert.Equal(t, 2, f.strategy.calls, "one attempt per rotation across both retries")
}
