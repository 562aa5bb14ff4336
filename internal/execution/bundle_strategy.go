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

const bundleRequestTimeout = 15 * time.Second

type bundleSubmitRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type bundleSubmitResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// BundleStrategy submits through a block-builder bundle auction. The bundle
// carries the single trade transaction; the tip is expected to be part of
// that transaction, paid to the configured tip account.
type BundleStrategy struct {
	cfg        config.BundleStrategyConfig
	httpClient *http.Client
	confirmer  Confirmer
	logger     logger.Logger
}

// NewBundleStrategy creates the bundle auction backend
func NewBundleStrategy(cfg config.BundleStrategyConfig, confirmer Confirmer, log logger.Logger) *BundleStrategy {
	return &BundleStrategy{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: bundleRequestTimeout},
		confirmer:  confirmer,
		logger:     log,
	}
}

// Name implements Strategy.Name
func (s *BundleStrategy) Name() string { return "bundle" }

// Priority implements Strategy.Priority
func (s *BundleStrategy) Priority() int { return s.cfg.Priority }

// Validate implements Strategy.Validate
func (s *BundleStrategy) Validate(ctx context.Context, trade *TradeContext) bool {
	if trade.Transaction == nil || !trade.Intent.AllowBundle || s.cfg.Endpoint == "" {
		return false
	}
	// Bundles without a tip never win the auction.
	if s.cfg.TipAccount == "" || s.cfg.TipLamports == 0 {
		return false
	}
	// Confirmation is tracked by the transaction's own signature.
	return len(trade.Transaction.Signatures) > 0
}

// Execute implements Strategy.Execute
func (s *BundleStrategy) Execute(ctx context.Context, trade *TradeContext) (*domain.TransactionResult, error) {
	raw, err := trade.Transaction.MarshalBinary()
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrKindBuild, "transaction could not be serialized", err)
	}

	body, err := json.Marshal(bundleSubmitRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "sendBundle",
		Params: []any{
			[]string{base64.StdEncoding.EncodeToString(raw)},
			map[string]string{"encoding": "base64"},
		},
	})
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrKindSubmission, "bundle request could not be encoded", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrKindSubmission, "bundle request could not be created", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrKindSubmission, "bundle endpoint unreachable", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrKindSubmission, "bundle response could not be read", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewTradeError(domain.ErrKindSubmission,
			fmt.Sprintf("bundle endpoint returned status %d: %s", resp.StatusCode, payload), nil)
	}

	var submitResp bundleSubmitResponse
	if err := json.Unmarshal(payload, &submitResp); err != nil {
		return nil, domain.NewTradeError(domain.ErrKindSubmission, "bundle response could not be parsed", err)
	}
	if submitResp.Error != nil {
		return nil, domain.NewTradeError(domain.ErrKindSubmission,
			"bundle auction rejected the submission: "+submitResp.Error.Message, nil)
	}

	signature := trade.Transaction.Signatures[0].String()
	s.logger.WithFields(map[string]interface{}{
		"bundle_id": submitResp.Result,
		"signature": signature,
		"pool":      trade.Intent.PoolAddress,
	}).Info("Transaction submitted through bundle auction")

	return s.confirmer.Await(ctx, signature)
}
