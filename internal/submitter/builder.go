package submitter

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/supesu/trading-core/pkg/config"
	"github.com/supesu/trading-core/pkg/domain"
	"github.com/supesu/trading-core/pkg/logger"
)

// ChainSource provides the chain reads a transaction build needs
type ChainSource interface {
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	GetLookupTableAddresses(ctx context.Context, table string) ([]solana.PublicKey, error)
}

// Signer signs a built transaction with the wallet a trade intent references.
// Key material never passes through this package.
type Signer interface {
	Sign(ctx context.Context, tx *solana.Transaction, walletReference string) error
}

// TransactionBuilder assembles submittable transactions: compute budget
// instructions first, then the trade instructions, compressed through any
// configured address lookup tables that cover the accounts involved.
type TransactionBuilder struct {
	cfg    config.ExecutionConfig
	chain  ChainSource
	logger logger.Logger

	tables map[solana.PublicKey]solana.PublicKeySlice
}

// NewTransactionBuilder creates a builder; lookup tables are resolved
// separately via LoadLookupTables
func NewTransactionBuilder(cfg config.ExecutionConfig, chain ChainSource, log logger.Logger) *TransactionBuilder {
	return &TransactionBuilder{
		cfg:    cfg,
		chain:  chain,
		logger: log,
		tables: make(map[solana.PublicKey]solana.PublicKeySlice),
	}
}

// LoadLookupTables resolves the configured lookup table accounts. A table
// that cannot be resolved is skipped with a warning; builds then fall back
// to uncompressed account lists.
func (b *TransactionBuilder) LoadLookupTables(ctx context.Context) {
	for _, addr := range b.cfg.LookupTableAddresses {
		key, err := solana.PublicKeyFromBase58(addr)
		if err != nil {
			b.logger.WithError(err).WithField("table", addr).Warn("Ignoring invalid lookup table address")
			continue
		}

		addresses, err := b.chain.GetLookupTableAddresses(ctx, addr)
		if err != nil {
			b.logger.WithError(err).WithField("table", addr).Warn("Failed to load lookup table")
			continue
		}

		b.tables[key] = addresses
		b.logger.WithFields(map[string]interface{}{
			"table":     addr,
			"addresses": len(addresses),
		}).Info("Address lookup table loaded")
	}
}

// Build assembles an unsigned transaction for the intent from the given
// trade instructions. Assembly failures are build errors and abort the
// trade without backend rotation.
func (b *TransactionBuilder) Build(
	ctx context.Context,
	intent *domain.TradeIntent,
	instructions []solana.Instruction,
	payer solana.PublicKey,
) (*solana.Transaction, error) {
	if len(instructions) == 0 {
		return nil, domain.NewTradeError(domain.ErrKindBuild, "no instructions to build", nil)
	}

	computePrice := b.cfg.ComputeUnitPrice
	if intent.MaxPriorityFee > 0 {
		computePrice = intent.MaxPriorityFee
	}

	all := make([]solana.Instruction, 0, len(instructions)+2)
	if b.cfg.ComputeUnitLimit > 0 {
		limit, err := computebudget.NewSetComputeUnitLimitInstruction(b.cfg.ComputeUnitLimit).ValidateAndBuild()
		if err != nil {
			return nil, domain.NewTradeError(domain.ErrKindBuild, "compute unit limit instruction failed", err)
		}
		all = append(all, limit)
	}
	if computePrice > 0 {
		price, err := computebudget.NewSetComputeUnitPriceInstruction(computePrice).ValidateAndBuild()
		if err != nil {
			return nil, domain.NewTradeError(domain.ErrKindBuild, "compute unit price instruction failed", err)
		}
		all = append(all, price)
	}
	all = append(all, instructions...)

	if tip, err := b.bundleTip(intent, payer); err != nil {
		return nil, err
	} else if tip != nil {
		all = append(all, tip)
	}

	blockhash, err := b.chain.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrKindBuild, "failed to fetch recent blockhash", err)
	}

	opts := []solana.TransactionOption{solana.TransactionPayer(payer)}
	if tables := b.relevantTables(all); len(tables) > 0 {
		opts = append(opts, solana.TransactionAddressTables(tables))
	}

	tx, err := solana.NewTransaction(all, blockhash, opts...)
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrKindBuild,
			fmt.Sprintf("transaction assembly for pool %s failed", intent.PoolAddress), err)
	}
	return tx, nil
}

// bundleTip returns a transfer paying the block builder's tip account when
// the intent may go through the bundle auction. The tip rides inside the
// trade transaction so the bundle stays a single transaction.
func (b *TransactionBuilder) bundleTip(intent *domain.TradeIntent, payer solana.PublicKey) (solana.Instruction, error) {
	bundle := b.cfg.Strategies.Bundle
	if !intent.AllowBundle || !bundle.Enabled || bundle.TipAccount == "" || bundle.TipLamports == 0 {
		return nil, nil
	}

	tipAccount, err := solana.PublicKeyFromBase58(bundle.TipAccount)
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrKindBuild,
			fmt.Sprintf("bundle tip account %q is not a valid address", bundle.TipAccount), err)
	}
	return system.NewTransferInstruction(bundle.TipLamports, payer, tipAccount).Build(), nil
}

// relevantTables returns the loaded tables that cover at least one account
// referenced by the instructions. Attaching only those keeps transactions
// legacy-encoded when no table would help.
func (b *TransactionBuilder) relevantTables(instructions []solana.Instruction) map[solana.PublicKey]solana.PublicKeySlice {
	if len(b.tables) == 0 {
		return nil
	}

	referenced := make(map[solana.PublicKey]struct{})
	for _, ins := range instructions {
		for _, acc := range ins.Accounts() {
			referenced[acc.PublicKey] = struct{}{}
		}
	}

	relevant := make(map[solana.PublicKey]solana.PublicKeySlice)
	for table, addresses := range b.tables {
		for _, addr := range addresses {
			if _, ok := referenced[addr]; ok {
				relevant[table] = addresses
				break
			}
		}
	}
	return relevant
}
