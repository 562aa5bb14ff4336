package solana

import (
	"context"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/supesu/trading-core/pkg/domain"
	"github.com/supesu/trading-core/pkg/logger"
)

var (
	raydiumAmmProgram   = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	raydiumAmmAuthority = solana.MustPublicKeyFromBase58("5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1")
)

// swapBaseInDiscriminator is the AMM program's swap-exact-in instruction tag.
const swapBaseInDiscriminator = 9

// ammSwapFeeBps is the pool swap fee folded into the expected-out estimate.
const ammSwapFeeBps = 25

// serumMarketState is the order book market account layout, up to the
// accounts the swap instruction needs
type serumMarketState struct {
	Padding5            [5]byte
	AccountFlags        uint64
	OwnAddress          solana.PublicKey
	VaultSignerNonce    uint64
	BaseMint            solana.PublicKey
	QuoteMint           solana.PublicKey
	BaseVault           solana.PublicKey
	BaseDepositsTotal   uint64
	BaseFeesAccrued     uint64
	QuoteVault          solana.PublicKey
	QuoteDepositsTotal  uint64
	QuoteFeesAccrued    uint64
	QuoteDustThreshold  uint64
	RequestQueue        solana.PublicKey
	EventQueue          solana.PublicKey
	Bids                solana.PublicKey
	Asks                solana.PublicKey
	BaseLotSize         uint64
	QuoteLotSize        uint64
	FeeRateBps          uint64
	ReferrerRebates     uint64
	Padding7            [7]byte
}

// SwapInstructionBuilder assembles AMM swap instructions for validated
// pools. The order book accounts backing a pool are read once and reused.
type SwapInstructionBuilder struct {
	client *Client
	logger logger.Logger
}

// NewSwapInstructionBuilder creates a swap instruction builder
func NewSwapInstructionBuilder(client *Client, log logger.Logger) *SwapInstructionBuilder {
	return &SwapInstructionBuilder{client: client, logger: log}
}

// SwapInstructions builds the swap-exact-in instruction for the intent. The
// minimum amount out is derived from current vault reserves and the
// intent's slippage tolerance; assembly failures are build errors.
func (b *SwapInstructionBuilder) SwapInstructions(
	ctx context.Context,
	snapshot *domain.PoolSnapshot,
	intent *domain.TradeIntent,
	wallet solana.PublicKey,
) ([]solana.Instruction, error) {
	pool, err := solana.PublicKeyFromBase58(snapshot.Address)
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrKindBuild, "invalid pool address", err)
	}
	baseMint, err := solana.PublicKeyFromBase58(snapshot.BaseMint)
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrKindBuild, "invalid base mint", err)
	}
	quoteMint, err := solana.PublicKeyFromBase58(snapshot.QuoteMint)
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrKindBuild, "invalid quote mint", err)
	}
	baseVault := solana.MustPublicKeyFromBase58(snapshot.BaseVault)
	quoteVault := solana.MustPublicKeyFromBase58(snapshot.QuoteVault)

	market, err := b.readMarket(ctx, snapshot.MarketAddress)
	if err != nil {
		return nil, err
	}
	marketProgram := market.program
	vaultSigner, err := serumVaultSigner(market.state.OwnAddress, marketProgram, market.state.VaultSignerNonce)
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrKindBuild, "market vault signer derivation failed", err)
	}

	baseATA, _, err := solana.FindAssociatedTokenAddress(wallet, baseMint)
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrKindBuild, "base token account derivation failed", err)
	}
	quoteATA, _, err := solana.FindAssociatedTokenAddress(wallet, quoteMint)
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrKindBuild, "quote token account derivation failed", err)
	}

	source, dest := quoteATA, baseATA
	inVault, outVault := quoteVault, baseVault
	if intent.Side == domain.TradeSideSell {
		source, dest = baseATA, quoteATA
		inVault, outVault = baseVault, quoteVault
	}

	minOut, err := b.minimumAmountOut(ctx, inVault, outVault, intent)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 17)
	data[0] = swapBaseInDiscriminator
	binary.LittleEndian.PutUint64(data[1:], intent.AmountIn)
	binary.LittleEndian.PutUint64(data[9:], minOut)

	openOrders, err := solana.PublicKeyFromBase58(snapshot.OpenOrders)
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrKindBuild, "invalid pool open orders account", err)
	}
	targetOrders, err := solana.PublicKeyFromBase58(snapshot.TargetOrders)
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrKindBuild, "invalid pool target orders account", err)
	}

	accounts := solana.AccountMetaSlice{
		solana.Meta(solana.TokenProgramID),
		solana.Meta(pool).WRITE(),
		solana.Meta(raydiumAmmAuthority),
		solana.Meta(openOrders).WRITE(),
		solana.Meta(targetOrders).WRITE(),
		solana.Meta(baseVault).WRITE(),
		solana.Meta(quoteVault).WRITE(),
		solana.Meta(marketProgram),
		solana.Meta(market.state.OwnAddress).WRITE(),
		solana.Meta(market.state.Bids).WRITE(),
		solana.Meta(market.state.Asks).WRITE(),
		solana.Meta(market.state.EventQueue).WRITE(),
		solana.Meta(market.state.BaseVault).WRITE(),
		solana.Meta(market.state.QuoteVault).WRITE(),
		solana.Meta(vaultSigner),
		solana.Meta(source).WRITE(),
		solana.Meta(dest).WRITE(),
		solana.Meta(wallet).SIGNER(),
	}

	return []solana.Instruction{solana.NewInstruction(raydiumAmmProgram, accounts, data)}, nil
}

type marketAccounts struct {
	state   *serumMarketState
	program solana.PublicKey
}

// readMarket reads and decodes the pool's order book market account
func (b *SwapInstructionBuilder) readMarket(ctx context.Context, marketAddress string) (*marketAccounts, error) {
	data, err := b.client.GetAccountData(ctx, marketAddress)
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrKindBuild, "market account read failed", err)
	}

	var state serumMarketState
	if err := bin.NewBinDecoder(data).Decode(&state); err != nil {
		return nil, domain.NewTradeError(domain.ErrKindUnsupportedLayout, "market account decode failed", err)
	}

	owner, err := b.client.GetAccountOwner(ctx, marketAddress)
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrKindBuild, "market account owner read failed", err)
	}

	return &marketAccounts{state: &state, program: owner}, nil
}

// minimumAmountOut estimates the constant-product output for the input
// amount and applies the intent's slippage tolerance
func (b *SwapInstructionBuilder) minimumAmountOut(ctx context.Context, inVault, outVault solana.PublicKey, intent *domain.TradeIntent) (uint64, error) {
	inReserve, err := b.client.GetTokenAccountBalance(ctx, inVault.String())
	if err != nil {
		return 0, domain.NewTradeError(domain.ErrKindBuild, "input vault read failed", err)
	}
	outReserve, err := b.client.GetTokenAccountBalance(ctx, outVault.String())
	if err != nil {
		return 0, domain.NewTradeError(domain.ErrKindBuild, "output vault read failed", err)
	}
	if inReserve == 0 || outReserve == 0 {
		return 0, domain.NewTradeError(domain.ErrKindBuild, "pool has no tradable reserves", nil)
	}

	amountInAfterFee := float64(intent.AmountIn) * (1 - float64(ammSwapFeeBps)/10_000)
	expectedOut := float64(outReserve) * amountInAfterFee / (float64(inReserve) + amountInAfterFee)
	minOut := expectedOut * (1 - float64(intent.SlippageBps)/10_000)
	if minOut < 0 {
		minOut = 0
	}

	b.logger.WithFields(map[string]interface{}{
		"amount_in":    intent.AmountIn,
		"expected_out": uint64(expectedOut),
		"min_out":      uint64(minOut),
	}).Debug("Computed swap output bounds")

	return uint64(minOut), nil
}

// serumVaultSigner derives the market's vault owner from its nonce
func serumVaultSigner(market, program solana.PublicKey, nonce uint64) (solana.PublicKey, error) {
	nonceBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(nonceBytes, nonce)
	addr, err := solana.CreateProgramAddress([][]byte{market.Bytes(), nonceBytes}, program)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("vault signer for market %s: %w", market, err)
	}
	return addr, nil
}
