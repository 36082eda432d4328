// Package agentconn is the agent's side of the link to a relay: a state
// machine (Disconnected → Connecting → Connected → Reconnecting) driving
// three cooperating goroutines (outbound sender, inbound receiver,
// heartbeat), grounded directly on WSAgent.Run/connectAndServeWS/
// processRelayMessages from the relay package this project grew out of.
// The reconnect backoff differs from WSAgent's original: it slept a fixed
// ReconnectInterval between attempts, where this package grows the delay
// exponentially up to a cap, per this project's own reconnection policy.
package agentconn

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/nodewire/remotefs/pkg/metrics"
	"github.com/nodewire/remotefs/pkg/wire"
)

// State is the connection manager's lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Config configures a Manager.
type Config struct {
	RelayURL          string
	NodeID            string
	NodeType          string
	PublicKey         []byte
	Capabilities      []string
	HeartbeatInterval time.Duration
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	DialTimeout       time.Duration

	// TLSConfig, when non-nil, dials the relay over TLS (built by
	// relaytls.ClientTLSConfig, typically). A nil value dials plaintext.
	TLSConfig *tls.Config
}

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultBaseBackoff       = 1 * time.Second
	DefaultMaxBackoff        = 300 * time.Second
	DefaultDialTimeout       = 10 * time.Second
)

func (c *Config) applyDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = DefaultBaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
}

// Handler processes one inbound request message and returns the response
// to send back. It is supplied by whatever owns the agent process
// (typically wraps an agentdispatch.Dispatcher).
type Handler func(ctx context.Context, req wire.Message) wire.Message

// Manager owns one outbound-only link to a relay, reconnecting with
// exponential backoff whenever it drops.
type Manager struct {
	cfg     Config
	handler Handler
	logger  *slog.Logger
	metrics *metrics.Registry

	mu    sync.RWMutex
	state State

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds a Manager. logger nil falls back to slog.Default(); metricsReg
// nil disables reconnection-count instrumentation.
func New(cfg Config, handler Handler, logger *slog.Logger, metricsReg *metrics.Registry) *Manager {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		metrics: metricsReg,
		state:   StateDisconnected,
		stopCh:  make(chan struct{}),
	}
}

// State returns the manager's current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Stop requests the run loop exit after its current connection attempt.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Run connects, serves, and reconnects with exponential backoff until ctx
// is done or Stop is called. The backoff formula is
// min(base * 2^(attempt-1), max), reset to the first attempt on every
// successful connection.
func (m *Manager) Run(ctx context.Context) error {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			m.setState(StateDisconnected)
			return ctx.Err()
		case <-m.stopCh:
			m.setState(StateDisconnected)
			return nil
		default:
		}

		if attempt == 0 {
			m.setState(StateConnecting)
		} else {
			m.setState(StateReconnecting)
		}

		err := m.connectAndServe(ctx)
		if err == nil {
			attempt = 0
			continue
		}

		if m.State() == StateConnected {
			attempt = 0 // the link had come up, so backoff starts over
		}
		attempt++
		m.logger.Error("relay connection lost, reconnecting", "error", err, "attempt", attempt)
		if m.metrics != nil {
			m.metrics.ReconnectionCount.Inc()
		}

		delay := backoffDelay(m.cfg.BaseBackoff, m.cfg.MaxBackoff, attempt)
		select {
		case <-ctx.Done():
			m.setState(StateDisconnected)
			return ctx.Err()
		case <-m.stopCh:
			m.setState(StateDisconnected)
			return nil
		case <-time.After(delay):
		}
	}
}

// backoffDelay implements min(base*2^(attempt-1), max).
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	scaled := float64(base) * math.Pow(2, float64(attempt-1))
	if scaled > float64(max) {
		return max
	}
	return time.Duration(scaled)
}

func (m *Manager) connectAndServe(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	var dialOpts *websocket.DialOptions
	if m.cfg.TLSConfig != nil {
		dialOpts = &websocket.DialOptions{
			HTTPClient: &http.Client{Transport: &http.Transport{TLSClientConfig: m.cfg.TLSConfig}},
		}
	}
	conn, _, err := websocket.Dial(dialCtx, m.cfg.RelayURL, dialOpts)
	cancel()
	if err != nil {
		return fmt.Errorf("agentconn: dial relay: %w", err)
	}
	defer conn.CloseNow()

	authReq := wire.Message{
		Kind:      wire.KindAuthRequest,
		RequestID: wire.NewRequestID(),
		Payload: wire.AuthRequestPayload{
			NodeID:       m.cfg.NodeID,
			NodeType:     m.cfg.NodeType,
			PublicKey:    m.cfg.PublicKey,
			Capabilities: m.cfg.Capabilities,
		},
	}
	if err := wsjson.Write(ctx, conn, authReq); err != nil {
		return fmt.Errorf("agentconn: send auth request: %w", err)
	}

	var authResp wire.Message
	if err := wsjson.Read(ctx, conn, &authResp); err != nil {
		return fmt.Errorf("agentconn: read auth response: %w", err)
	}

	m.setState(StateConnected)
	m.logger.Info("connected to relay", "node_id", m.cfg.NodeID)
	defer m.logger.Info("disconnected from relay", "node_id", m.cfg.NodeID)

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.receiveLoop(ctx, conn)
	}()

	heartbeat := time.NewTicker(m.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.stopCh:
			return nil
		case err := <-errCh:
			return err
		case <-heartbeat.C:
			ping := wire.Message{Kind: wire.KindPing, Payload: wire.PingPayload{TimestampUnixMilli: time.Now().UnixMilli()}}
			if err := wsjson.Write(ctx, conn, ping); err != nil {
				return fmt.Errorf("agentconn: send heartbeat: %w", err)
			}
		}
	}
}

// receiveLoop reads inbound requests, dispatches each to its own goroutine
// so a slow operation never blocks the heartbeat or the next inbound read,
// and writes each response back on conn.
func (m *Manager) receiveLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var msg wire.Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return fmt.Errorf("agentconn: read: %w", err)
		}

		switch msg.Kind {
		case wire.KindPing:
			pong := wire.Message{Kind: wire.KindPong, Payload: wire.PongPayload{TimestampUnixMilli: time.Now().UnixMilli()}}
			if err := wsjson.Write(ctx, conn, pong); err != nil {
				return fmt.Errorf("agentconn: write pong: %w", err)
			}
		case wire.KindConnectionClose:
			return fmt.Errorf("agentconn: relay closed connection")
		default:
			go m.handleRequest(ctx, conn, msg)
		}
	}
}

func (m *Manager) handleRequest(ctx context.Context, conn *websocket.Conn, req wire.Message) {
	resp := m.handler(ctx, req)
	if err := wsjson.Write(ctx, conn, resp); err != nil {
		m.logger.Error("agentconn: write response failed", "request_id", requestIDString(req.RequestID), "error", err)
	}
}

func requestIDString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
