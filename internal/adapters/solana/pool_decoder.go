package solana

import (
	"fmt"
	"math/big"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/supesu/trading-core/pkg/domain"
)

// Known account layout sizes. The layout a buffer is decoded with is chosen
// by its exact size; anything else fails closed with an unsupported-layout
// error instead of silently misreading fields.
const (
	ammStateV4Size       = 752
	mintAccountSize      = 82
	lookupTableHeaderLen = 56
)

// ammStateV4 mirrors the constant-product AMM pool account layout
type ammStateV4 struct {
	Status                 uint64
	Nonce                  uint64
	MaxOrder               uint64
	Depth                  uint64
	BaseDecimal            uint64
	QuoteDecimal           uint64
	State                  uint64
	ResetFlag              uint64
	MinSize                uint64
	VolMaxCutRatio         uint64
	AmountWaveRatio        uint64
	BaseLotSize            uint64
	QuoteLotSize           uint64
	MinPriceMultiplier     uint64
	MaxPriceMultiplier     uint64
	SystemDecimalValue     uint64
	MinSeparateNumerator   uint64
	MinSeparateDenominator uint64
	TradeFeeNumerator      uint64
	TradeFeeDenominator    uint64
	PnlNumerator           uint64
	PnlDenominator         uint64
	SwapFeeNumerator       uint64
	SwapFeeDenominator     uint64
	BaseNeedTakePnl        uint64
	QuoteNeedTakePnl       uint64
	QuoteTotalPnl          uint64
	BaseTotalPnl           uint64
	PoolOpenTime           uint64
	PunishPcAmount         uint64
	PunishCoinAmount       uint64
	OrderbookToInitTime    uint64
	SwapBaseInAmount       bin.Uint128
	SwapQuoteOutAmount     bin.Uint128
	SwapBase2QuoteFee      uint64
	SwapQuoteInAmount      bin.Uint128
	SwapBaseOutAmount      bin.Uint128
	SwapQuote2BaseFee      uint64
	BaseVault              solana.PublicKey
	QuoteVault             solana.PublicKey
	BaseMint               solana.PublicKey
	QuoteMint              solana.PublicKey
	LpMint                 solana.PublicKey
	OpenOrders             solana.PublicKey
	MarketID               solana.PublicKey
	MarketProgramID        solana.PublicKey
	TargetOrders           solana.PublicKey
	WithdrawQueue          solana.PublicKey
	LpVault                solana.PublicKey
	Owner                  solana.PublicKey
	LpReserve              uint64
	Padding                [3]uint64
}

// decodeAmmState decodes raw pool account bytes, failing closed on any
// layout it does not recognize
func decodeAmmState(data []byte) (*ammStateV4, error) {
	if len(data) != ammStateV4Size {
		return nil, domain.NewTradeError(domain.ErrKindUnsupportedLayout,
			fmt.Sprintf("pool account is %d bytes, no known layout matches", len(data)), nil)
	}

	var state ammStateV4
	if err := bin.NewBinDecoder(data).Decode(&state); err != nil {
		return nil, domain.NewTradeError(domain.ErrKindUnsupportedLayout, "pool account decode failed", err)
	}
	return &state, nil
}

// toSnapshot maps the raw layout onto the domain snapshot
func (s *ammStateV4) toSnapshot(address string) *domain.PoolSnapshot {
	return &domain.PoolSnapshot{
		Address:       address,
		BaseMint:      s.BaseMint.String(),
		QuoteMint:     s.QuoteMint.String(),
		BaseVault:     s.BaseVault.String(),
		QuoteVault:    s.QuoteVault.String(),
		LpMint:        s.LpMint.String(),
		Authority:     s.Owner.String(),
		OpenOrders:    s.OpenOrders.String(),
		TargetOrders:  s.TargetOrders.String(),
		MarketAddress: s.MarketID.String(),
		BaseDecimals:  uint8(s.BaseDecimal),
		QuoteDecimals: uint8(s.QuoteDecimal),
		LpReserve:     s.LpReserve,
		OpenTime:      time.Unix(int64(s.PoolOpenTime), 0),
		Layout:        domain.PoolLayoutAmmV4,
		DecodedAt:     time.Now(),
	}
}

// flowPrice derives a spot price from the pool's cumulative swap flow: total
// quote paid in over total base paid out. This base differs from the vault
// reserve ratio on purpose; the two are surfaced as separate price sources.
func (s *ammStateV4) flowPrice() float64 {
	quoteIn := uint128ToFloat(s.SwapQuoteInAmount)
	baseOut := uint128ToFloat(s.SwapBaseOutAmount)
	if baseOut == 0 {
		return 0
	}

	decimalAdjust := pow10(int(s.BaseDecimal)) / pow10(int(s.QuoteDecimal))
	return quoteIn / baseOut * decimalAdjust
}

func uint128ToFloat(v bin.Uint128) float64 {
	f, _ := new(big.Float).SetInt(v.BigInt()).Float64()
	return f
}

func pow10(n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= 10
	}
	return result
}

// decodeMintInfo decodes a token mint account
func decodeMintInfo(data []byte) (*domain.MintInfo, error) {
	if len(data) != mintAccountSize {
		return nil, domain.NewTradeError(domain.ErrKindUnsupportedLayout,
			fmt.Sprintf("mint account is %d bytes, expected %d", len(data), mintAccountSize), nil)
	}

	var mint token.Mint
	if err := bin.NewBinDecoder(data).Decode(&mint); err != nil {
		return nil, domain.NewTradeError(domain.ErrKindUnsupportedLayout, "mint account decode failed", err)
	}

	return &domain.MintInfo{
		Supply:             mint.Supply,
		Decimals:           mint.Decimals,
		HasMintAuthority:   mint.MintAuthority != nil,
		HasFreezeAuthority: mint.FreezeAuthority != nil,
	}, nil
}

// decodeLookupTableAddresses extracts the stored address list from an
// address lookup table account
func decodeLookupTableAddresses(data []byte) ([]solana.PublicKey, error) {
	if len(data) < lookupTableHeaderLen || (len(data)-lookupTableHeaderLen)%solana.PublicKeyLength != 0 {
		return nil, domain.NewTradeError(domain.ErrKindUnsupportedLayout,
			fmt.Sprintf("lookup table account is %d bytes", len(data)), nil)
	}

	body := data[lookupTableHeaderLen:]
	addresses := make([]solana.PublicKey, 0, len(body)/solana.PublicKeyLength)
	for i := 0; i+solana.PublicKeyLength <= len(body); i += solana.PublicKeyLength {
		addresses = append(addresses, solana.PublicKeyFromBytes(body[i:i+solana.PublicKeyLength]))
	}
	return addresses, nil
}
