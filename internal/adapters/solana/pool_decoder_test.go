package solana

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supesu/trading-core/pkg/domain"
)

// Field offsets inside the pool account layout used by the tests below.
const (
	offBaseDecimal      = 4 * 8
	offQuoteDecimal     = 5 * 8
	offSwapFeeNumerator = 22 * 8
	offSwapFeeDenom     = 23 * 8
	offPoolOpenTime     = 28 * 8
	offSwapQuoteInLo    = 296
	offSwapBaseOutLo    = 312
	offBaseVault        = 336
	offQuoteVault       = 368
	offBaseMint         = 400
	offQuoteMint        = 432
	offLpMint           = 464
	offMarketID         = 528
	offOwner            = 688
	offLpReserve        = 720
)

func buildPoolAccount(t *testing.T) ([]byte, map[string]solana.PublicKey) {
	t.Helper()

	data := make([]byte, ammStateV4Size)
	binary.LittleEndian.PutUint64(data[offBaseDecimal:], 9)
	binary.LittleEndian.PutUint64(data[offQuoteDecimal:], 6)
	binary.LittleEndian.PutUint64(data[offSwapFeeNumerator:], 25)
	binary.LittleEndian.PutUint64(data[offSwapFeeDenom:], 10000)
	binary.LittleEndian.PutUint64(data[offPoolOpenTime:], 1_700_000_000)
	binary.LittleEndian.PutUint64(data[offSwapQuoteInLo:], 500_000)
	binary.LittleEndian.PutUint64(data[offSwapBaseOutLo:], 2_000_000)
	binary.LittleEndian.PutUint64(data[offLpReserve:], 42_000_000)

	keys := map[string]solana.PublicKey{}
	for name, off := range map[string]int{
		"baseVault":  offBaseVault,
		"quoteVault": offQuoteVault,
		"baseMint":   offBaseMint,
		"quoteMint":  offQuoteMint,
		"lpMint":     offLpMint,
		"marketID":   offMarketID,
		"owner":      offOwner,
	} {
		key := solana.NewWallet().PublicKey()
		copy(data[off:off+32], key.Bytes())
		keys[name] = key
	}
	return data, keys
}

func TestDecodeAmmState(t *testing.T) {
	data, keys := buildPoolAccount(t)

	state, err := decodeAmmState(data)
	require.NoError(t, err)

	assert.Equal(t, uint64(9), state.BaseDecimal)
	assert.Equal(t, uint64(6), state.QuoteDecimal)
	assert.Equal(t, uint64(1_700_000_000), state.PoolOpenTime)
	assert.Equal(t, uint64(42_000_000), state.LpReserve)
	assert.Equal(t, keys["baseMint"], state.BaseMint)
	assert.Equal(t, keys["quoteVault"], state.QuoteVault)
	assert.Equal(t, keys["owner"], state.Owner)
}

func TestDecodeAmmStateRejectsUnknownSize(t *testing.T) {
	for _, size := range []int{0, 100, ammStateV4Size - 1, ammStateV4Size + 1} {
		_, err := decodeAmmState(make([]byte, size))
		require.Error(t, err)
		assert.Equal(t, domain.ErrKindUnsupportedLayout, domain.KindOf(err))
	}
}

func TestAmmStateToSnapshot(t *testing.T) {
	data, keys := buildPoolAccount(t)
	state, err := decodeAmmState(data)
	require.NoError(t, err)

	poolAddr := solana.NewWallet().PublicKey().String()
	snap := state.toSnapshot(poolAddr)

	assert.Equal(t, poolAddr, snap.Address)
	assert.Equal(t, keys["baseMint"].String(), snap.BaseMint)
	assert.Equal(t, keys["quoteMint"].String(), snap.QuoteMint)
	assert.Equal(t, keys["baseVault"].String(), snap.BaseVault)
	assert.Equal(t, keys["lpMint"].String(), snap.LpMint)
	assert.Equal(t, keys["marketID"].String(), snap.MarketAddress)
	assert.Equal(t, uint8(9), snap.BaseDecimals)
	assert.Equal(t, uint8(6), snap.QuoteDecimals)
	assert.Equal(t, domain.PoolLayoutAmmV4, snap.Layout)
	assert.Equal(t, int64(1_700_000_000), snap.OpenTime.Unix())
	assert.True(t, snap.IsValid())
}

func TestFlowPrice(t *testing.T) {
	data, _ := buildPoolAccount(t)
	state, err := decodeAmmState(data)
	require.NoError(t, err)

	// 500k quote in over 2M base out, decimal adjust 10^9 / 10^6.
	assert.InDelta(t, 250.0, state.flowPrice(), 0.0001)
}

func TestFlowPriceZeroBaseOut(t *testing.T) {
	state := &ammStateV4{}
	assert.Zero(t, state.flowPrice())
}

func TestDecodeMintInfo(t *testing.T) {
	data := make([]byte, mintAccountSize)
	// COption mint authority present.
	binary.LittleEndian.PutUint32(data[0:], 1)
	copy(data[4:36], solana.NewWallet().PublicKey().Bytes())
	binary.LittleEndian.PutUint64(data[36:], 1_000_000_000)
	data[44] = 6 // decimals
	data[45] = 1 // initialized
	// COption freeze authority absent.
	binary.LittleEndian.PutUint32(data[46:], 0)

	info, err := decodeMintInfo(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000), info.Supply)
	assert.Equal(t, uint8(6), info.Decimals)
	assert.True(t, info.HasMintAuthority)
	assert.False(t, info.HasFreezeAuthority)
}

func TestDecodeMintInfoRejectsUnknownSize(t *testing.T) {
	_, err := decodeMintInfo(make([]byte, 10))
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindUnsupportedLayout, domain.KindOf(err))
}

func TestDecodeLookupTableAddresses(t *testing.T) {
	first := solana.NewWallet().PublicKey()
	second := solana.NewWallet().PublicKey()

	data := make([]byte, lookupTableHeaderLen, lookupTableHeaderLen+64)
	data = append(data, first.Bytes()...)
	data = append(data, second.Bytes()...)

	addresses, err := decodeLookupTableAddresses(data)
	require.NoError(t, err)
	require.Len(t, addresses, 2)
	assert.Equal(t, first, addresses[0])
	assert.Equal(t, second, addresses[1])
}

func TestDecodeLookupTableAddressesRejectsTruncated(t *testing.T) {
	_, err := decodeLookupTableAddresses(make([]byte, lookupTableHeaderLen+5))
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindUnsupportedLayout, domain.KindOf(err))
}
