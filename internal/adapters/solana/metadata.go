package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/supesu/trading-core/pkg/domain"
	"github.com/supesu/trading-core/pkg/logger"
)

const (
	socialsFetchTimeout = 10 * time.Second
	socialsMaxBodySize  = 1 << 20
)

// tokenMetadataAccount is the borsh layout of the metadata program's
// metadata account, up to the fields we read
type tokenMetadataAccount struct {
	Key                  uint8
	UpdateAuthority      solana.PublicKey
	Mint                 solana.PublicKey
	Name                 string
	Symbol               string
	URI                  string
	SellerFeeBasisPoints uint16
	Creators             *[]metadataCreator `bin:"optional"`
	PrimarySaleHappened  bool
	IsMutable            bool
}

type metadataCreator struct {
	Address  solana.PublicKey
	Verified bool
	Share    uint8
}

// MetadataResolver reads the on-chain metadata account of a mint and fetches
// the off-chain JSON it points to. Implements domain.MetadataResolver.
type MetadataResolver struct {
	chain      domain.ChainReader
	httpClient *http.Client
	logger     logger.Logger
}

// NewMetadataResolver creates a metadata resolver backed by the given chain reader
func NewMetadataResolver(chain domain.ChainReader, log logger.Logger) *MetadataResolver {
	return &MetadataResolver{
		chain:      chain,
		httpClient: &http.Client{Timeout: socialsFetchTimeout},
		logger:     log,
	}
}

// GetTokenMetadata derives the metadata address for a mint and decodes the
// account found there
func (r *MetadataResolver) GetTokenMetadata(ctx context.Context, mint string) (*domain.TokenMetadata, error) {
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return nil, fmt.Errorf("invalid mint address %q: %w", mint, err)
	}

	metadataAddr, _, err := solana.FindTokenMetadataAddress(mintKey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive metadata address: %w", err)
	}

	data, err := r.chain.GetAccountData(ctx, metadataAddr.String())
	if err != nil {
		return nil, err
	}

	var account tokenMetadataAccount
	if err := bin.NewBorshDecoder(data).Decode(&account); err != nil {
		return nil, domain.NewTradeError(domain.ErrKindUnsupportedLayout, "metadata account decode failed", err)
	}

	// Borsh string fields in metadata accounts are padded out with NULs.
	return &domain.TokenMetadata{
		Name:    strings.TrimRight(account.Name, "\x00"),
		Symbol:  strings.TrimRight(account.Symbol, "\x00"),
		URI:     strings.TrimRight(account.URI, "\x00"),
		Mutable: account.IsMutable,
	}, nil
}

// offChainMetadata covers the common shapes of off-chain token JSON: social
// links appear either at the top level or under extensions.
type offChainMetadata struct {
	Website    string `json:"website"`
	Twitter    string `json:"twitter"`
	Telegram   string `json:"telegram"`
	Discord    string `json:"discord"`
	Extensions struct {
		Website  string `json:"website"`
		Twitter  string `json:"twitter"`
		Telegram string `json:"telegram"`
		Discord  string `json:"discord"`
	} `json:"extensions"`
}

// FetchTokenSocials fetches and parses a token's off-chain metadata JSON
func (r *MetadataResolver) FetchTokenSocials(ctx context.Context, uri string) (*domain.TokenSocials, error) {
	if uri == "" {
		return &domain.TokenSocials{}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid metadata URI %q: %w", uri, err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch token metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, socialsMaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read token metadata: %w", err)
	}

	var meta offChainMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse token metadata: %w", err)
	}

	socials := &domain.TokenSocials{
		Website:  firstNonEmpty(meta.Website, meta.Extensions.Website),
		Twitter:  firstNonEmpty(meta.Twitter, meta.Extensions.Twitter),
		Telegram: firstNonEmpty(meta.Telegram, meta.Extensions.Telegram),
		Discord:  firstNonEmpty(meta.Discord, meta.Extensions.Discord),
	}
	return socials, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
