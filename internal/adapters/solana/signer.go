package solana

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/supesu/trading-core/pkg/domain"
	"github.com/supesu/trading-core/pkg/logger"
)

// DefaultWalletReference is used when a trade intent leaves the wallet
// reference empty.
const DefaultWalletReference = "default"

// LocalSigner holds wallet keypairs loaded from keygen files and signs
// built transactions with them. References are opaque names; key material
// never leaves this type.
type LocalSigner struct {
	logger logger.Logger

	mu      sync.RWMutex
	wallets map[string]solana.PrivateKey
}

// NewLocalSigner creates an empty signer
func NewLocalSigner(log logger.Logger) *LocalSigner {
	return &LocalSigner{
		logger:  log,
		wallets: make(map[string]solana.PrivateKey),
	}
}

// LoadKeyfile loads a wallet from a keygen file under the given reference
func (s *LocalSigner) LoadKeyfile(reference, path string) error {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return domain.NewTradeError(domain.ErrKindConfiguration,
			fmt.Sprintf("wallet keyfile %s could not be loaded", path), err)
	}
	s.Register(reference, key)
	return nil
}

// Register adds a wallet under the given reference, replacing any existing one
func (s *LocalSigner) Register(reference string, key solana.PrivateKey) {
	if reference == "" {
		reference = DefaultWalletReference
	}

	s.mu.Lock()
	s.wallets[reference] = key
	s.mu.Unlock()

	s.logger.WithFields(map[string]interface{}{
		"wallet": reference,
		"pubkey": key.PublicKey().String(),
	}).Info("Wallet registered")
}

// PublicKey resolves a wallet reference to its public key
func (s *LocalSigner) PublicKey(walletReference string) (solana.PublicKey, error) {
	key, err := s.lookup(walletReference)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return key.PublicKey(), nil
}

// Sign signs the transaction with the referenced wallet
func (s *LocalSigner) Sign(ctx context.Context, tx *solana.Transaction, walletReference string) error {
	key, err := s.lookup(walletReference)
	if err != nil {
		return err
	}

	_, err = tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		if pub.Equals(key.PublicKey()) {
			return &key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	return nil
}

func (s *LocalSigner) lookup(reference string) (solana.PrivateKey, error) {
	if reference == "" {
		reference = DefaultWalletReference
	}

	s.mu.RLock()
	key, ok := s.wallets[reference]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no wallet registered under reference %q", reference)
	}
	return key, nil
}
