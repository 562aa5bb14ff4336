package solana

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/supesu/trading-core/pkg/config"
	"github.com/supesu/trading-core/pkg/domain"
	"github.com/supesu/trading-core/pkg/logger"
)

// Client wraps the Solana RPC client behind the core's chain-read and
// broadcast capabilities. Every call applies the configured commitment
// level and per-call timeout.
type Client struct {
	rpcClient  *rpc.Client
	commitment rpc.CommitmentType
	timeout    time.Duration
	logger     logger.Logger
}

// NewClient creates a chain client from configuration
func NewClient(cfg config.SolanaConfig, log logger.Logger) *Client {
	commitment := rpc.CommitmentConfirmed
	switch cfg.Commitment {
	case "processed":
		commitment = rpc.CommitmentProcessed
	case "finalized":
		commitment = rpc.CommitmentFinalized
	}

	log.WithFields(map[string]interface{}{
		"rpc_url":    cfg.RPC,
		"commitment": string(commitment),
	}).Info("RPC client initialized")

	return &Client{
		rpcClient:  rpc.New(cfg.RPC),
		commitment: commitment,
		timeout:    cfg.RequestTimeout,
		logger:     log,
	}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// GetAccountData returns the raw bytes of an account
func (c *Client) GetAccountData(ctx context.Context, address string) ([]byte, error) {
	pub, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid account address %s: %w", address, err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := c.rpcClient.GetAccountInfoWithOpts(ctx, pub, &rpc.GetAccountInfoOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account %s: %w", address, err)
	}
	if res == nil || res.Value == nil {
		return nil, domain.ErrAccountNotFound
	}

	return res.Value.Data.GetBinary(), nil
}

// GetAccountOwner returns the program that owns an account
func (c *Client) GetAccountOwner(ctx context.Context, address string) (solana.PublicKey, error) {
	pub, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid account address %s: %w", address, err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := c.rpcClient.GetAccountInfoWithOpts(ctx, pub, &rpc.GetAccountInfoOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return solana.PublicKey{}, domain.ErrAccountNotFound
		}
		return solana.PublicKey{}, fmt.Errorf("get account %s: %w", address, err)
	}
	if res == nil || res.Value == nil {
		return solana.PublicKey{}, domain.ErrAccountNotFound
	}

	return res.Value.Owner, nil
}

// GetPoolSnapshot reads and decodes a pool account
func (c *Client) GetPoolSnapshot(ctx context.Context, poolAddress string) (*domain.PoolSnapshot, error) {
	data, err := c.GetAccountData(ctx, poolAddress)
	if err != nil {
		return nil, err
	}

	state, err := decodeAmmState(data)
	if err != nil {
		return nil, err
	}
	return state.toSnapshot(poolAddress), nil
}

// GetMintInfo reads and decodes a token mint account
func (c *Client) GetMintInfo(ctx context.Context, mint string) (*domain.MintInfo, error) {
	data, err := c.GetAccountData(ctx, mint)
	if err != nil {
		return nil, err
	}
	return decodeMintInfo(data)
}

// GetTokenSupply returns the total supply of a mint in base units
func (c *Client) GetTokenSupply(ctx context.Context, mint string) (uint64, error) {
	pub, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("invalid mint address %s: %w", mint, err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := c.rpcClient.GetTokenSupply(ctx, pub, c.commitment)
	if err != nil {
		if isUnsupportedMethod(err) {
			return 0, domain.ErrUnsupportedRead
		}
		return 0, fmt.Errorf("get token supply %s: %w", mint, err)
	}
	if res == nil || res.Value == nil {
		return 0, fmt.Errorf("get token supply %s: empty response", mint)
	}

	amount, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse token supply %q: %w", res.Value.Amount, err)
	}
	return amount, nil
}

// GetTokenAccountBalance returns a token account's balance in base units
func (c *Client) GetTokenAccountBalance(ctx context.Context, account string) (uint64, error) {
	pub, err := solana.PublicKeyFromBase58(account)
	if err != nil {
		return 0, fmt.Errorf("invalid token account %s: %w", account, err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := c.rpcClient.GetTokenAccountBalance(ctx, pub, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("get token balance %s: %w", account, err)
	}
	if res == nil || res.Value == nil {
		return 0, fmt.Errorf("get token balance %s: empty response", account)
	}

	amount, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse token balance %q: %w", res.Value.Amount, err)
	}
	return amount, nil
}

// GetHolderCount returns the number of non-empty holders among the largest
// token accounts the node exposes
func (c *Client) GetHolderCount(ctx context.Context, mint string) (int, error) {
	pub, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("invalid mint address %s: %w", mint, err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := c.rpcClient.GetTokenLargestAccounts(ctx, pub, c.commitment)
	if err != nil {
		if isUnsupportedMethod(err) {
			return 0, domain.ErrUnsupportedRead
		}
		return 0, fmt.Errorf("get largest accounts %s: %w", mint, err)
	}

	count := 0
	for _, holder := range res.Value {
		if holder.Amount != "0" && holder.Amount != "" {
			count++
		}
	}
	return count, nil
}

// GetSignatureStatus returns a fresh confirmation status; it never consults
// any cache
func (c *Client) GetSignatureStatus(ctx context.Context, signature string) (*domain.SignatureStatus, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature %s: %w", signature, err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := c.rpcClient.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, fmt.Errorf("get signature status %s: %w", signature, err)
	}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		// Not yet observed by the node.
		return &domain.SignatureStatus{}, nil
	}

	st := res.Value[0]
	status := &domain.SignatureStatus{
		Confirmed: st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
			st.ConfirmationStatus == rpc.ConfirmationStatusFinalized,
		Finalized: st.ConfirmationStatus == rpc.ConfirmationStatusFinalized,
		Slot:      uint64(st.Slot),
	}
	if st.Err != nil {
		status.Err = fmt.Sprintf("%v", st.Err)
	}
	return status, nil
}

// GetLatestBlockhash returns a recent blockhash for transaction assembly
func (c *Client) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := c.rpcClient.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	return res.Value.Blockhash, nil
}

// SendTransaction broadcasts a signed transaction and returns its signature
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction, skipPreflight bool) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	sig, err := c.rpcClient.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       skipPreflight,
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	return sig.String(), nil
}

// GetLookupTableAddresses reads and decodes an address lookup table account
func (c *Client) GetLookupTableAddresses(ctx context.Context, table string) ([]solana.PublicKey, error) {
	data, err := c.GetAccountData(ctx, table)
	if err != nil {
		return nil, err
	}
	return decodeLookupTableAddresses(data)
}

// isUnsupportedMethod reports whether the node rejected the call as
// unsupported rather than failing it
func isUnsupportedMethod(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Method not found") ||
		strings.Contains(msg, "not supported") ||
		strings.Contains(msg, "-32601")
}
