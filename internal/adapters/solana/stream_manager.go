package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/supesu/trading-core/internal/adapters"
	"github.com/supesu/trading-core/pkg/config"
	"github.com/supesu/trading-core/pkg/logger"
	"github.com/supesu/trading-core/pkg/metrics"
)

const (
	streamDialTimeout  = 10 * time.Second
	streamWriteTimeout = 5 * time.Second
)

// AccountChangeFunc is called when a subscribed account changes on chain
type AccountChangeFunc func(address string)

type streamRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type streamMessage struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Method string          `json:"method"`
	Params struct {
		Subscription uint64 `json:"subscription"`
	} `json:"params"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// StreamManager keeps a websocket session to the node's pubsub endpoint and
// maintains account-change subscriptions across reconnects. Address-level
// subscribe and unsubscribe is safe to call concurrently.
type StreamManager struct {
	endpoint   string
	commitment string
	logger     logger.Logger
	metrics    *metrics.EngineMetrics
	base       *adapters.BaseConnectionManager

	connMu sync.Mutex
	conn   *websocket.Conn

	mu        sync.Mutex
	nextReqID uint64
	pending   map[uint64]string            // request id -> address awaiting subscription ack
	bySubID   map[uint64]string            // server subscription id -> address
	callbacks map[string]AccountChangeFunc // address -> change callback

	readerDone chan struct{}
}

// NewStreamManager creates a stream manager for the configured pubsub
// endpoint. reconnectDelay overrides the base retry delay of the connection
// manager; zero keeps the default.
func NewStreamManager(cfg config.SolanaConfig, reconnectDelay time.Duration, m *metrics.EngineMetrics, log logger.Logger) *StreamManager {
	sm := &StreamManager{
		endpoint:   cfg.WSEndpoint,
		commitment: cfg.Commitment,
		logger:     log,
		metrics:    m,
		pending:    make(map[uint64]string),
		bySubID:    make(map[uint64]string),
		callbacks:  make(map[string]AccountChangeFunc),
	}

	connCfg := adapters.DefaultConnectionConfig()
	if reconnectDelay > 0 {
		connCfg.BaseRetryDelay = reconnectDelay
		if connCfg.MaxRetryDelay < reconnectDelay {
			connCfg.MaxRetryDelay = reconnectDelay
		}
	}
	sm.base = adapters.NewBaseConnectionManager(log, connCfg, adapters.ConnectionHooks{
		Connect:       sm.dial,
		Disconnect:    sm.closeConn,
		HealthCheck:   sm.ping,
		OnReconnected: sm.resubscribeAll,
	})
	return sm
}

// Start dials the endpoint and begins the auto-reconnect loops
func (s *StreamManager) Start(ctx context.Context) error {
	if err := s.base.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to stream endpoint: %w", err)
	}
	s.base.StartAutoReconnect(ctx)
	return nil
}

// Stop tears down the session and stops reconnecting
func (s *StreamManager) Stop() {
	s.base.StopAutoReconnect()
	if err := s.base.Disconnect(); err != nil {
		s.logger.WithError(err).Warn("Stream disconnect returned an error")
	}
}

// Subscribe registers for change notifications on an account. The callback
// runs on the read loop goroutine and must not block.
func (s *StreamManager) Subscribe(address string, fn func(address string)) error {
	s.mu.Lock()
	s.callbacks[address] = fn
	s.mu.Unlock()

	return s.sendSubscribe(address)
}

// Unsubscribe drops change notifications for an account
func (s *StreamManager) Unsubscribe(address string) {
	s.mu.Lock()
	delete(s.callbacks, address)
	var subID uint64
	var found bool
	for id, addr := range s.bySubID {
		if addr == address {
			subID, found = id, true
			delete(s.bySubID, id)
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return
	}

	req := streamRequest{
		JSONRPC: "2.0",
		ID:      s.nextID(),
		Method:  "accountUnsubscribe",
		Params:  []any{subID},
	}
	if err := s.write(req); err != nil {
		s.logger.WithError(err).WithField("address", address).Warn("Failed to send unsubscribe")
	}
}

func (s *StreamManager) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, streamDialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, s.endpoint, nil)
	if err != nil {
		s.metrics.StreamConnectionStatus.Set(0)
		return err
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	s.metrics.StreamConnectionStatus.Set(1)

	s.readerDone = make(chan struct{})
	go s.readLoop(conn, s.readerDone)
	return nil
}

func (s *StreamManager) closeConn() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	s.metrics.StreamConnectionStatus.Set(0)
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *StreamManager) ping(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("stream connection is not open")
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(streamWriteTimeout)
	}
	return s.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

// resubscribeAll replays every live subscription over the fresh connection
func (s *StreamManager) resubscribeAll() {
	s.mu.Lock()
	addresses := make([]string, 0, len(s.callbacks))
	for addr := range s.callbacks {
		addresses = append(addresses, addr)
	}
	s.pending = make(map[uint64]string)
	s.bySubID = make(map[uint64]string)
	s.mu.Unlock()

	for _, addr := range addresses {
		if err := s.sendSubscribe(addr); err != nil {
			s.logger.WithError(err).WithField("address", addr).Error("Failed to restore subscription")
		}
	}
}

func (s *StreamManager) sendSubscribe(address string) error {
	reqID := s.nextID()

	s.mu.Lock()
	s.pending[reqID] = address
	s.mu.Unlock()

	req := streamRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "accountSubscribe",
		Params: []any{
			address,
			map[string]string{"encoding": "base64", "commitment": s.commitment},
		},
	}
	return s.write(req)
}

func (s *StreamManager) write(req streamRequest) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("stream connection is not open")
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(req)
}

func (s *StreamManager) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			s.logger.WithError(err).Warn("Stream read failed, triggering reconnection")
			s.metrics.StreamConnectionStatus.Set(0)
			s.base.TriggerReconnection()
			return
		}

		var msg streamMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logger.WithError(err).Debug("Dropping unparseable stream frame")
			continue
		}
		s.handleMessage(&msg)
	}
}

func (s *StreamManager) handleMessage(msg *streamMessage) {
	switch {
	case msg.Method == "accountNotification":
		s.mu.Lock()
		addr := s.bySubID[msg.Params.Subscription]
		fn := s.callbacks[addr]
		s.mu.Unlock()

		if fn != nil {
			fn(addr)
		}

	case msg.ID != 0:
		s.mu.Lock()
		addr, ok := s.pending[msg.ID]
		delete(s.pending, msg.ID)
		s.mu.Unlock()

		if !ok {
			return
		}
		if msg.Error != nil {
			s.logger.WithFields(map[string]interface{}{
				"address": addr,
				"code":    msg.Error.Code,
			}).Error("Subscription request rejected: " + msg.Error.Message)
			return
		}

		var subID uint64
		if err := json.Unmarshal(msg.Result, &subID); err != nil {
			// Unsubscribe acks carry a boolean result; ignore them.
			return
		}
		s.mu.Lock()
		s.bySubID[subID] = addr
		s.mu.Unlock()
	}
}

func (s *StreamManager) nextID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextReqID++
	return s.nextReqID
}
