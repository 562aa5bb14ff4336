package execution

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/supesu/trading-core/pkg/config"
	"github.com/supesu/trading-core/pkg/domain"
	"github.com/supesu/trading-core/pkg/logger"
)

const relayRequestTimeout = 15 * time.Second

type relaySubmitRequest struct {
	Transaction string `json:"transaction"`
	Encoding    string `json:"encoding"`
	TipLamports uint64 `json:"tip_lamports,omitempty"`
}

type relaySubmitResponse struct {
	Signature string `json:"signature"`
	Error     string `json:"error,omitempty"`
}

// RelayStrategy submits through an accelerated third-party relay. It only
// serves trades whose intent opted into relay usage.
type RelayStrategy struct {
	cfg        config.RelayStrategyConfig
	httpClient *http.Client
	confirmer  Confirmer
	logger     logger.Logger
}

// NewRelayStrategy creates the relay backend
func NewRelayStrategy(cfg config.RelayStrategyConfig, confirmer Confirmer, log logger.Logger) *RelayStrategy {
	return &RelayStrategy{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: relayRequestTimeout},
		confirmer:  confirmer,
		logger:     log,
	}
}

// Name implements Strategy.Name
func (s *RelayStrategy) Name() string { return "relay" }

// Priority implements Strategy.Priority
func (s *RelayStrategy) Priority() int { return s.cfg.Priority }

// Validate implements Strategy.Validate
func (s *RelayStrategy) Validate(ctx context.Context, trade *TradeContext) bool {
	return trade.Transaction != nil && trade.Intent.AllowRelay && s.cfg.Endpoint != ""
}

// Execute implements Strategy.Execute
func (s *RelayStrategy) Execute(ctx context.Context, trade *TradeContext) (*domain.TransactionResult, error) {
	raw, err := trade.Transaction.MarshalBinary()
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrKindBuild, "transaction could not be serialized", err)
	}

	body, err := json.Marshal(relaySubmitRequest{
		Transaction: base64.StdEncoding.EncodeToString(raw),
		Encoding:    "base64",
		TipLamports: s.cfg.TipLamports,
	})
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrKindSubmission, "relay request could not be encoded", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrKindSubmission, "relay request could not be created", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrKindSubmission, "relay endpoint unreachable", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrKindSubmission, "relay response could not be read", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewTradeError(domain.ErrKindSubmission,
			fmt.Sprintf("relay returned status %d: %s", resp.StatusCode, payload), nil)
	}

	var submitResp relaySubmitResponse
	if err := json.Unmarshal(payload, &submitResp); err != nil {
		return nil, domain.NewTradeError(domain.ErrKindSubmission, "relay response could not be parsed", err)
	}
	if submitResp.Error != "" {
		return nil, domain.NewTradeError(domain.ErrKindSubmission, "relay rejected the transaction: "+submitResp.Error, nil)
	}

	signature := submitResp.Signature
	if signature == "" && len(trade.Transaction.Signatures) > 0 {
		signature = trade.Transaction.Signatures[0].String()
	}

	s.logger.WithFields(map[string]interface{}{
		"signature": signature,
		"pool":      trade.Intent.PoolAddress,
	}).Info("Transaction submitted through relay")

	return s.confirmer.Await(ctx, signature)
}
