package adapters

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/supesu/trading-core/pkg/logger"
)

// ConnectionState represents the state of a managed connection
type ConnectionState int

const (
	// StateDisconnected indicates the connection is not established
	StateDisconnected ConnectionState = iota
	// StateConnecting indicates the connection is being established
	StateConnecting
	// StateConnected indicates the connection is established and healthy
	StateConnected
	// StateReconnecting indicates the connection is being re-established
	StateReconnecting
	// StateFailed indicates the connection has failed and won't retry
	StateFailed
)

// ConnectionManager manages a long-lived connection with auto-reconnection
type ConnectionManager interface {
	// Connect establishes the connection
	Connect(ctx context.Context) error

	// Disconnect closes the connection
	Disconnect() error

	// GetState returns the current connection state
	GetState() ConnectionState

	// IsHealthy checks if the connection is healthy
	IsHealthy(ctx context.Context) error

	// StartAutoReconnect starts the auto-reconnection loop
	StartAutoReconnect(ctx context.Context)

	// StopAutoReconnect stops the auto-reconnection loop
	StopAutoReconnect()
}

// ConnectionHooks are the callbacks a concrete connection supplies to the
// base manager. OnReconnected runs after a successful reconnect so the
// owner can restore subscriptions.
type ConnectionHooks struct {
	Connect       func(ctx context.Context) error
	Disconnect    func() error
	HealthCheck   func(ctx context.Context) error
	OnReconnected func()
}

// BaseConnectionManager provides reconnection and health checking for
// stream transports
type BaseConnectionManager struct {
	logger logger.Logger
	hooks  ConnectionHooks

	maxRetries          int
	baseRetryDelay      time.Duration
	maxRetryDelay       time.Duration
	healthCheckInterval time.Duration

	mu    sync.RWMutex
	state ConnectionState

	cancel        context.CancelFunc
	reconnectChan chan struct{}
}

// ConnectionConfig holds tuning for a connection manager
type ConnectionConfig struct {
	MaxRetries          int
	BaseRetryDelay      time.Duration
	MaxRetryDelay       time.Duration
	HealthCheckInterval time.Duration
}

// DefaultConnectionConfig returns the default connection tuning
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		MaxRetries:          10,
		BaseRetryDelay:      1 * time.Second,
		MaxRetryDelay:       30 * time.Second,
		HealthCheckInterval: 30 * time.Second,
	}
}

// NewBaseConnectionManager creates a connection manager around the given hooks
func NewBaseConnectionManager(log logger.Logger, cfg ConnectionConfig, hooks ConnectionHooks) *BaseConnectionManager {
	return &BaseConnectionManager{
		logger:              log,
		hooks:               hooks,
		state:               StateDisconnected,
		maxRetries:          cfg.MaxRetries,
		baseRetryDelay:      cfg.BaseRetryDelay,
		maxRetryDelay:       cfg.MaxRetryDelay,
		healthCheckInterval: cfg.HealthCheckInterval,
		reconnectChan:       make(chan struct{}, 1),
	}
}

// Config returns the tuning the manager was built with
func (m *BaseConnectionManager) Config() ConnectionConfig {
	return ConnectionConfig{
		MaxRetries:          m.maxRetries,
		BaseRetryDelay:      m.baseRetryDelay,
		MaxRetryDelay:       m.maxRetryDelay,
		HealthCheckInterval: m.healthCheckInterval,
	}
}

// Connect implements ConnectionManager.Connect
func (m *BaseConnectionManager) Connect(ctx context.Context) error {
	m.setState(StateConnecting)

	if err := m.hooks.Connect(ctx); err != nil {
		m.setState(StateDisconnected)
		return err
	}

	m.setState(StateConnected)
	return nil
}

// Disconnect implements ConnectionManager.Disconnect
func (m *BaseConnectionManager) Disconnect() error {
	m.setState(StateDisconnected)

	if m.hooks.Disconnect != nil {
		return m.hooks.Disconnect()
	}
	return nil
}

// GetState implements ConnectionManager.GetState
func (m *BaseConnectionManager) GetState() ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsHealthy implements ConnectionManager.IsHealthy
func (m *BaseConnectionManager) IsHealthy(ctx context.Context) error {
	if m.GetState() != StateConnected {
		return fmt.Errorf("connection is not in connected state")
	}

	if m.hooks.HealthCheck != nil {
		return m.hooks.HealthCheck(ctx)
	}
	return nil
}

// StartAutoReconnect implements ConnectionManager.StartAutoReconnect
func (m *BaseConnectionManager) StartAutoReconnect(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	go m.autoReconnectLoop(loopCtx)
	go m.healthCheckLoop(loopCtx)
}

// StopAutoReconnect implements ConnectionManager.StopAutoReconnect
func (m *BaseConnectionManager) StopAutoReconnect() {
	if m.cancel != nil {
		m.cancel()
	}
}

// TriggerReconnection queues a reconnection attempt. Duplicate triggers
// while one is pending are collapsed.
func (m *BaseConnectionManager) TriggerReconnection() {
	select {
	case m.reconnectChan <- struct{}{}:
	default:
	}
}

func (m *BaseConnectionManager) autoReconnectLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.reconnectChan:
			if err := m.performReconnection(ctx); err != nil {
				m.logger.WithError(err).Error("Auto-reconnection failed")
			}
		}
	}
}

func (m *BaseConnectionManager) healthCheckLoop(ctx context.Context) {
	ticker := time.NewTicker(m.healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.GetState() != StateConnected {
				continue
			}
			if err := m.IsHealthy(ctx); err != nil {
				m.logger.WithError(err).Warn("Connection health check failed, triggering reconnection")
				m.TriggerReconnection()
			}
		}
	}
}

func (m *BaseConnectionManager) performReconnection(ctx context.Context) error {
	if state := m.GetState(); state == StateReconnecting || state == StateConnecting {
		return nil
	}

	m.setState(StateReconnecting)

	retryDelay := m.baseRetryDelay
	for attempt := 1; attempt <= m.maxRetries; attempt++ {
		m.logger.WithField("attempt", attempt).Info("Attempting to reconnect...")

		err := m.hooks.Connect(ctx)
		if err == nil {
			m.setState(StateConnected)
			m.logger.Info("Successfully reconnected")
			if m.hooks.OnReconnected != nil {
				m.hooks.OnReconnected()
			}
			return nil
		}

		m.logger.WithError(err).WithField("attempt", attempt).Warn("Reconnection attempt failed")

		if attempt == m.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
			retryDelay *= 2
			if retryDelay > m.maxRetryDelay {
				retryDelay = m.maxRetryDelay
			}
		}
	}

	m.setState(StateFailed)
	return fmt.Errorf("failed to reconnect after %d attempts", m.maxRetries)
}

func (m *BaseConnectionManager) setState(state ConnectionState) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}
