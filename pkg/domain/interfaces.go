package domain

import (
	"context"
)

// MintInfo is the decoded state of a token mint account
type MintInfo struct {
	Supply             uint64
	Decimals           uint8
	HasMintAuthority   bool
	HasFreezeAuthority bool
}

// TokenMetadata is the decoded on-chain metadata account of a token
type TokenMetadata struct {
	Name    string
	Symbol  string
	URI     string
	Mutable bool
}

// TokenSocials holds the social extension fields fetched from a token's
// external metadata URI
type TokenSocials struct {
	Website  string
	Twitter  string
	Telegram string
	Discord  string
}

// HasAny reports whether at least one social field is populated
func (s *TokenSocials) HasAny() bool {
	return s.Website != "" || s.Twitter != "" || s.Telegram != "" || s.Discord != ""
}

// ChainReader is the external chain-read capability. Implementations apply
// the configured commitment level and a per-call timeout.
type ChainReader interface {
	// GetAccountData returns the raw bytes of an account, or
	// ErrAccountNotFound when the address holds no account.
	GetAccountData(ctx context.Context, address string) ([]byte, error)

	// GetPoolSnapshot reads and decodes a pool account. Unknown layouts
	// return an ErrKindUnsupportedLayout trade error.
	GetPoolSnapshot(ctx context.Context, poolAddress string) (*PoolSnapshot, error)

	// GetMintInfo reads and decodes a token mint account
	GetMintInfo(ctx context.Context, mint string) (*MintInfo, error)

	// GetTokenSupply returns the total supply of a mint in base units.
	// ErrUnsupportedRead is returned when the node cannot serve the call.
	GetTokenSupply(ctx context.Context, mint string) (uint64, error)

	// GetTokenAccountBalance returns a token account's balance in base units
	GetTokenAccountBalance(ctx context.Context, account string) (uint64, error)

	// GetHolderCount returns the number of distinct non-empty holders a
	// mint has, bounded by what the node exposes.
	GetHolderCount(ctx context.Context, mint string) (int, error)

	// GetSignatureStatus returns a fresh confirmation status for a
	// submitted transaction. Never served from a cache.
	GetSignatureStatus(ctx context.Context, signature string) (*SignatureStatus, error)
}

// MetadataResolver resolves token metadata and its external social fields
type MetadataResolver interface {
	// GetTokenMetadata reads and decodes the metadata account for a mint
	GetTokenMetadata(ctx context.Context, mint string) (*TokenMetadata, error)

	// FetchTokenSocials fetches the social extension fields from the
	// metadata's external URI
	FetchTokenSocials(ctx context.Context, uri string) (*TokenSocials, error)
}
