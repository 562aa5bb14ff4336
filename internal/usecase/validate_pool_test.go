package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supesu/trading-core/internal/infrastructure/cache"
	"github.com/supesu/trading-core/pkg/config"
	"github.com/supesu/trading-core/pkg/domain"
	"github.com/supesu/trading-core/pkg/logger"
)

type fakeChainReader struct {
	mu        sync.Mutex
	poolReads int
	readDelay time.Duration

	snapshot    *domain.PoolSnapshot
	snapshotErr error
	supply      uint64
	supplyErr   error
	mint        *domain.MintInfo
	mintErr     error
	balances    map[string]uint64
	balanceErr  error
	holders     int
	holdersErr  error
}

func (f *fakeChainReader) GetAccountData(ctx context.Context, address string) ([]byte, error) {
	return nil, errors.New("not used in this test")
}

func (f *fakeChainReader) GetPoolSnapshot(ctx context.Context, poolAddress string) (*domain.PoolSnapshot, error) {
	f.mu.Lock()
	f.poolReads++
	f.mu.Unlock()

	if f.readDelay > 0 {
		time.Sleep(f.readDelay)
	}
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	return f.snapshot, nil
}

func (f *fakeChainReader) GetMintInfo(ctx context.Context, mint string) (*domain.MintInfo, error) {
	if f.mintErr != nil {
		return nil, f.mintErr
	}
	return f.mint, nil
}

func (f *fakeChainReader) GetTokenSupply(ctx context.Context, mint string) (uint64, error) {
	if f.supplyErr != nil {
		return 0, f.supplyErr
	}
	return f.supply, nil
}

func (f *fakeChainReader) GetTokenAccountBalance(ctx context.Context, account string) (uint64, error) {
	if f.balanceErr != nil {
		return 0, f.balanceErr
	}
	return f.balances[account], nil
}

func (f *fakeChainReader) GetHolderCount(ctx context.Context, mint string) (int, error) {
	if f.holdersErr != nil {
		return 0, f.holdersErr
	}
	return f.holders, nil
}

func (f *fakeChainReader) GetSignatureStatus(ctx context.Context, signature string) (*domain.SignatureStatus, error) {
	return &domain.SignatureStatus{}, nil
}

func (f *fakeChainReader) poolReadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.poolReads
}

type fakeMetadataResolver struct {
	metadata    *domain.TokenMetadata
	metadataErr error
	socials     *domain.TokenSocials
	socialsErr  error
}

func (f *fakeMetadataResolver) GetTokenMetadata(ctx context.Context, mint string) (*domain.TokenMetadata, error) {
	if f.metadataErr != nil {
		return nil, f.metadataErr
	}
	return f.metadata, nil
}

func (f *fakeMetadataResolver) FetchTokenSocials(ctx context.Context, uri string) (*domain.TokenSocials, error) {
	if f.socialsErr != nil {
		return nil, f.socialsErr
	}
	return f.socials, nil
}

func healthyPoolSnapshot() *domain.PoolSnapshot {
	return &domain.PoolSnapshot{
		Address:    "pool-1",
		BaseMint:   "base-mint",
		QuoteMint:  "quote-mint",
		BaseVault:  "base-vault",
		QuoteVault: "quote-vault",
		LpMint:     "lp-mint",
		LpReserve:  1_000_000,
		Layout:     domain.PoolLayoutAmmV4,
		DecodedAt:  time.Now(),
	}
}

func healthyChainReader() *fakeChainReader {
	return &fakeChainReader{
		snapshot: healthyPoolSnapshot(),
		supply:   0, // all LP tokens burned
		mint:     &domain.MintInfo{Supply: 1_000_000_000, Decimals: 9},
		balances: map[string]uint64{"quote-vault": 5_000_000_000},
		holders:  250,
	}
}

func allChecksConfig() config.ValidationConfig {
	return config.ValidationConfig{
		MinLiquidity:   1_000_000_000,
		MinHolders:     10,
		CheckBurned:    true,
		CheckMutable:   true,
		CheckSocials:   true,
		CheckRenounced: true,
		CheckFreezable: true,
	}
}

func newValidator(t *testing.T, cfg config.ValidationConfig, chain domain.ChainReader, resolver domain.MetadataResolver) (*ValidatePoolUseCase, *cache.StateCache) {
	t.Helper()
	log := logger.New("error", "test")
	stateCache := cache.New(log, cache.Options{SweepInterval: time.Hour})
	uc := NewValidatePoolUseCase(cfg, chain, resolver, stateCache, nil, nil, time.Hour, log)
	return uc, stateCache
}

func trustedResolver() *fakeMetadataResolver {
	return &fakeMetadataResolver{
		metadata: &domain.TokenMetadata{Name: "Token", URI: "https://example.com/meta.json", Mutable: false},
		socials:  &domain.TokenSocials{Twitter: "https://twitter.com/token"},
	}
}

func TestValidateHealthyPoolPasses(t *testing.T) {
	uc, stateCache := newValidator(t, allChecksConfig(), healthyChainReader(), trustedResolver())

	result, err := uc.Execute(context.Background(), "pool-1")
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.True(t, domain.AllPassed(result.Results))

	// The decoded snapshot is cached for later trades.
	entry, ok := stateCache.Get(context.Background(), cache.PoolKey("pool-1"))
	require.True(t, ok)
	assert.Equal(t, result.Snapshot, entry.Value)
}

func TestValidateBurnCheckFailsWhenSupplyPositive(t *testing.T) {
	chain := healthyChainReader()
	chain.supply = 10_000

	uc, _ := newValidator(t, allChecksConfig(), chain, trustedResolver())

	result, err := uc.Execute(context.Background(), "pool-1")
	require.NoError(t, err)
	assert.False(t, result.Passed, "any remaining LP supply means the pool can be drained")

	for _, r := range result.Results {
		if r.Check == domain.CheckBurned {
			assert.False(t, r.Passed)
			assert.Contains(t, r.Message, "has not been burned")
			return
		}
	}
	t.Fatal("burned check result missing")
}

func TestValidateBurnCheckIgnoresLpReserve(t *testing.T) {
	chain := healthyChainReader()
	chain.supply = 5_000_000
	chain.snapshot.LpReserve = 0

	uc, _ := newValidator(t, allChecksConfig(), chain, trustedResolver())

	result, err := uc.Execute(context.Background(), "pool-1")
	require.NoError(t, err)
	assert.False(t, result.Passed, "a zero LP reserve must not excuse an unburned supply")
}

func TestValidateBurnCheckPassesOnUnsupportedRead(t *testing.T) {
	chain := healthyChainReader()
	chain.supplyErr = domain.ErrUnsupportedRead

	uc, _ := newValidator(t, allChecksConfig(), chain, trustedResolver())

	result, err := uc.Execute(context.Background(), "pool-1")
	require.NoError(t, err)
	assert.True(t, result.Passed, "a node that cannot serve the supply read must not block the trade")
}

func TestValidateInsufficientLiquidity(t *testing.T) {
	chain := healthyChainReader()
	chain.balances["quote-vault"] = 500

	uc, _ := newValidator(t, allChecksConfig(), chain, trustedResolver())

	result, err := uc.Execute(context.Background(), "pool-1")
	require.NoError(t, err)
	assert.False(t, result.Passed)

	reasons := strings.Join(domain.FailureReasons(result.Results), "; ")
	assert.Contains(t, reasons, "Insufficient liquidity")
}

func TestValidateSocialsFetchFailureFails(t *testing.T) {
	resolver := trustedResolver()
	resolver.socialsErr = errors.New("metadata host unreachable")

	uc, _ := newValidator(t, allChecksConfig(), healthyChainReader(), resolver)

	result, err := uc.Execute(context.Background(), "pool-1")
	require.NoError(t, err)
	assert.False(t, result.Passed)

	for _, r := range result.Results {
		if r.Check == domain.CheckSocials {
			assert.False(t, r.Passed)
			return
		}
	}
	t.Fatal("socials check result missing")
}

func TestValidateReportsAllViolations(t *testing.T) {
	chain := healthyChainReader()
	chain.supply = 900_000 // LP supply still circulating
	chain.mint = &domain.MintInfo{HasMintAuthority: true, HasFreezeAuthority: true}
	chain.balances["quote-vault"] = 1

	resolver := trustedResolver()
	resolver.metadata.Mutable = true
	resolver.socials = &domain.TokenSocials{}

	uc, _ := newValidator(t, allChecksConfig(), chain, resolver)

	result, err := uc.Execute(context.Background(), "pool-1")
	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.GreaterOrEqual(t, len(domain.FailureReasons(result.Results)), 5,
		"checks keep running after a failure so every violation is reported")
}

func TestValidateUnsupportedLayoutPropagates(t *testing.T) {
	chain := &fakeChainReader{
		snapshotErr: domain.NewTradeError(domain.ErrKindUnsupportedLayout, "account is 100 bytes", nil),
	}
	uc, _ := newValidator(t, allChecksConfig(), chain, trustedResolver())

	_, err := uc.Execute(context.Background(), "pool-1")
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindUnsupportedLayout, domain.KindOf(err))
}

func TestValidateConcurrentRequestsCollapse(t *testing.T) {
	chain := healthyChainReader()
	chain.readDelay = 50 * time.Millisecond

	uc, _ := newValidator(t, allChecksConfig(), chain, trustedResolver())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := uc.Execute(context.Background(), "pool-1")
			assert.NoError(t, err)
			assert.True(t, result.Passed)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, chain.poolReadCount(), "concurrent validations of one pool share a single run")
}

func TestValidateUsesCachedSnapshot(t *testing.T) {
	chain := healthyChainReader()
	uc, stateCache := newValidator(t, allChecksConfig(), chain, trustedResolver())

	stateCache.Set(context.Background(), cache.PoolKey("pool-1"), healthyPoolSnapshot(), time.Hour, nil)

	_, err := uc.Execute(context.Background(), "pool-1")
	require.NoError(t, err)
	assert.Zero(t, chain.poolReadCount())
}
