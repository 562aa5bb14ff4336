package submitter

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supesu/trading-core/pkg/config"
	"github.com/supesu/trading-core/pkg/domain"
	"github.com/supesu/trading-core/pkg/logger"
)

type fakeChainSource struct {
	blockhashErr error
	tables       map[string][]solana.PublicKey
}

func (f *fakeChainSource) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	if f.blockhashErr != nil {
		return solana.Hash{}, f.blockhashErr
	}
	return solana.HashFromBytes(make([]byte, 32)), nil
}

func (f *fakeChainSource) GetLookupTableAddresses(ctx context.Context, table string) ([]solana.PublicKey, error) {
	addresses, ok := f.tables[table]
	if !ok {
		return nil, errors.New("table not found")
	}
	return addresses, nil
}

func testBuilder(chain ChainSource, cfg config.ExecutionConfig) *TransactionBuilder {
	return NewTransactionBuilder(cfg, chain, logger.New("error", "test"))
}

func transferInstruction(from, to solana.PublicKey) solana.Instruction {
	return system.NewTransferInstruction(1_000, from, to).Build()
}

func TestBuildPrependsComputeBudget(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	dest := solana.NewWallet().PublicKey()

	builder := testBuilder(&fakeChainSource{}, config.ExecutionConfig{
		ComputeUnitLimit: 200_000,
		ComputeUnitPrice: 10_000,
	})

	intent := &domain.TradeIntent{PoolAddress: "pool-1", Side: domain.TradeSideBuy, AmountIn: 1}
	tx, err := builder.Build(context.Background(), intent,
		[]solana.Instruction{transferInstruction(payer, dest)}, payer)
	require.NoError(t, err)

	require.Len(t, tx.Message.Instructions, 3, "compute limit, compute price, then the trade instruction")
	assert.Equal(t, payer, tx.Message.AccountKeys[0], "payer must be the first account")
}

func TestBuildUsesIntentPriorityFee(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	dest := solana.NewWallet().PublicKey()

	builder := testBuilder(&fakeChainSource{}, config.ExecutionConfig{ComputeUnitPrice: 10_000})

	intent := &domain.TradeIntent{PoolAddress: "pool-1", Side: domain.TradeSideBuy, AmountIn: 1, MaxPriorityFee: 50_000}
	tx, err := builder.Build(context.Background(), intent,
		[]solana.Instruction{transferInstruction(payer, dest)}, payer)
	require.NoError(t, err)
	require.Len(t, tx.Message.Instructions, 2)
}

func TestBuildAppendsBundleTip(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	tipAccount := solana.NewWallet().PublicKey()

	builder := testBuilder(&fakeChainSource{}, config.ExecutionConfig{
		Strategies: config.StrategiesConfig{
			Bundle: config.BundleStrategyConfig{
				Enabled:     true,
				TipAccount:  tipAccount.String(),
				TipLamports: 1_000_000,
			},
		},
	})

	intent := &domain.TradeIntent{PoolAddress: "pool-1", Side: domain.TradeSideBuy, AmountIn: 1, AllowBundle: true}
	tx, err := builder.Build(context.Background(), intent,
		[]solana.Instruction{transferInstruction(payer, solana.NewWallet().PublicKey())}, payer)
	require.NoError(t, err)
	require.Len(t, tx.Message.Instructions, 2, "trade instruction plus the tip transfer")

	// The tip account must be referenced by the final instruction.
	tip := tx.Message.Instructions[1]
	var touchesTip bool
	for _, idx := range tip.Accounts {
		if tx.Message.AccountKeys[idx].Equals(tipAccount) {
			touchesTip = true
		}
	}
	assert.True(t, touchesTip)

	// The same intent without bundle consent carries no tip.
	intent.AllowBundle = false
	tx, err = builder.Build(context.Background(), intent,
		[]solana.Instruction{transferInstruction(payer, solana.NewWallet().PublicKey())}, payer)
	require.NoError(t, err)
	assert.Len(t, tx.Message.Instructions, 1)
}

func TestBuildRejectsEmptyInstructions(t *testing.T) {
	builder := testBuilder(&fakeChainSource{}, config.ExecutionConfig{})

	intent := &domain.TradeIntent{PoolAddress: "pool-1", Side: domain.TradeSideBuy, AmountIn: 1}
	_, err := builder.Build(context.Background(), intent, nil, solana.NewWallet().PublicKey())
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindBuild, domain.KindOf(err))
}

func TestBuildBlockhashFailureIsBuildError(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	builder := testBuilder(&fakeChainSource{blockhashErr: errors.New("node down")}, config.ExecutionConfig{})

	intent := &domain.TradeIntent{PoolAddress: "pool-1", Side: domain.TradeSideBuy, AmountIn: 1}
	_, err := builder.Build(context.Background(), intent,
		[]solana.Instruction{transferInstruction(payer, solana.NewWallet().PublicKey())}, payer)
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindBuild, domain.KindOf(err))
}

func TestLoadLookupTablesSkipsFailures(t *testing.T) {
	goodTable := solana.NewWallet().PublicKey()
	covered := solana.NewWallet().PublicKey()

	chain := &fakeChainSource{tables: map[string][]solana.PublicKey{
		goodTable.String(): {covered},
	}}
	builder := testBuilder(chain, config.ExecutionConfig{
		LookupTableAddresses: []string{goodTable.String(), "not-a-key", solana.NewWallet().PublicKey().String()},
	})

	builder.LoadLookupTables(context.Background())
	assert.Len(t, builder.tables, 1)
}

func TestRelevantTablesIntersectsAccounts(t *testing.T) {
	covered := solana.NewWallet().PublicKey()
	tableKey := solana.NewWallet().PublicKey()
	otherTable := solana.NewWallet().PublicKey()

	builder := testBuilder(&fakeChainSource{}, config.ExecutionConfig{})
	builder.tables[tableKey] = solana.PublicKeySlice{covered}
	builder.tables[otherTable] = solana.PublicKeySlice{solana.NewWallet().PublicKey()}

	ins := transferInstruction(covered, solana.NewWallet().PublicKey())
	relevant := builder.relevantTables([]solana.Instruction{ins})

	require.Len(t, relevant, 1, "only tables covering referenced accounts are attached")
	_, ok := relevant[tableKey]
	assert.True(t, ok)
}
