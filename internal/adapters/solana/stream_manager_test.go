package solana

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/supesu/trading-core/internal/adapters"
	"github.com/supesu/trading-core/pkg/config"
	"github.com/supesu/trading-core/pkg/logger"
)

func TestStreamManagerUsesConfiguredReconnectDelay(t *testing.T) {
	cfg := config.SolanaConfig{WSEndpoint: "wss://example.com", Commitment: "confirmed"}
	sm := NewStreamManager(cfg, 5*time.Second, nil, logger.New("error", "test"))

	got := sm.base.Config()
	assert.Equal(t, 5*time.Second, got.BaseRetryDelay)
	assert.GreaterOrEqual(t, got.MaxRetryDelay, got.BaseRetryDelay)
}

func TestStreamManagerRaisesMaxDelayToReconnectDelay(t *testing.T) {
	cfg := config.SolanaConfig{WSEndpoint: "wss://example.com", Commitment: "confirmed"}
	sm := NewStreamManager(cfg, 2*time.Minute, nil, logger.New("error", "test"))

	got := sm.base.Config()
	assert.Equal(t, 2*time.Minute, got.BaseRetryDelay)
	assert.Equal(t, 2*time.Minute, got.MaxRetryDelay)
}

func TestStreamManagerZeroDelayKeepsDefaults(t *testing.T) {
	cfg := config.SolanaConfig{WSEndpoint: "wss://example.com", Commitment: "confirmed"}
	sm := NewStreamManager(cfg, 0, nil, logger.New("error", "test"))

	assert.Equal(t, adapters.DefaultConnectionConfig(), sm.base.Config())
}
