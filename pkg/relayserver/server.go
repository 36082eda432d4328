// Package relayserver wires the relay's session manager, authenticator,
// and router into the relay's actual network surface: one WebSocket
// endpoint nodes connect to, plus health and stats HTTP endpoints.
// buildMux/handleHealth/handleConnect are grounded directly on WSServer's
// buildMux/handleHealth/handleAgentConnect; the authentication and
// routing logic those methods used to do inline now delegates to
// relayauth.Authenticator and relayrouter.Router instead.
package relayserver

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/nodewire/remotefs/pkg/metrics"
	"github.com/nodewire/remotefs/pkg/relayauth"
	"github.com/nodewire/remotefs/pkg/relayrouter"
	"github.com/nodewire/remotefs/pkg/relaysession"
	"github.com/nodewire/remotefs/pkg/wire"
)

// Config configures a Server's network surface and housekeeping intervals.
type Config struct {
	ListenAddr      string
	MaxMessageSize  int
	SessionTTL      time.Duration
	RequestTTL      time.Duration
	CleanupInterval time.Duration
	AuthPolicy      relayauth.Policy

	// TLSConfig, when non-nil, switches Run to ListenAndServeTLS with this
	// configuration (built by relaytls.ServerTLSConfig, typically). A nil
	// value serves plaintext, the same default posture WSServer shipped
	// with before mTLS was layered on top of it.
	TLSConfig *tls.Config
}

func (c *Config) applyDefaults() {
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = wire.DefaultMaxMessageSize
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 30 * time.Second
	}
}

// link is one live connection into the relay, indexed by the session it
// was issued on authentication.
type link struct {
	sessionID string
	nodeID    string
	nodeType  relayauth.NodeType
	conn      *websocket.Conn
}

// Server is the relay's network-facing half: it accepts connections,
// authenticates them, and routes messages between clients and agents via
// the session manager and router it owns.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Registry

	sessions *relaysession.Manager
	auth     *relayauth.Authenticator
	router   *relayrouter.Router

	mu    sync.RWMutex
	links map[string]*link // sessionID -> link

	httpSrv *http.Server
}

// New builds a Server. A nil metricsReg/logger falls back to a fresh
// registry / slog.Default().
func New(cfg Config, logger *slog.Logger, metricsReg *metrics.Registry) *Server {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if metricsReg == nil {
		metricsReg = metrics.New()
	}
	return &Server{
		cfg:      cfg,
		logger:   logger,
		metrics:  metricsReg,
		sessions: relaysession.New(cfg.SessionTTL),
		auth:     relayauth.New(cfg.AuthPolicy, logger),
		router:   relayrouter.New(cfg.RequestTTL),
		links:    make(map[string]*link),
	}
}

func (s *Server) buildMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleConnect)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	return mux
}

// Run starts the HTTP server and the background sweeps, and blocks until
// ctx is canceled or ListenAndServe fails.
func (s *Server) Run(ctx context.Context) error {
	mux := s.buildMux()
	s.httpSrv = &http.Server{
		Addr:      s.cfg.ListenAddr,
		Handler:   mux,
		TLSConfig: s.cfg.TLSConfig,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go s.auth.RunCleanup(ctx, s.cfg.CleanupInterval)
	go s.runExpirySweep(ctx)
	go s.runRequestSweep(ctx)

	s.logger.Info("relay server starting", "addr", s.cfg.ListenAddr, "tls", s.cfg.TLSConfig != nil)
	var err error
	if s.cfg.TLSConfig != nil {
		err = s.httpSrv.ListenAndServeTLS("", "")
	} else {
		err = s.httpSrv.ListenAndServe()
	}
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the HTTP server and closes every live link.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	for _, l := range s.links {
		l.conn.Close(websocket.StatusGoingAway, "relay shutting down")
	}
	s.links = make(map[string]*link)
	s.mu.Unlock()

	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) runExpirySweep(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, nodeID := range s.sessions.CleanupExpired() {
				s.logger.Info("session expired", "node_id", nodeID)
			}
		}
	}
}

func (s *Server) runRequestSweep(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.router.Sweep(); n > 0 {
				s.logger.Debug("swept expired pending requests", "count", n)
			}
		}
	}
}

// handleConnect upgrades the connection, reads the AuthRequest the link
// must open with, and on success enters the link's read loop.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Error("websocket accept failed", "error", err)
		return
	}

	ctx := r.Context()
	var authMsg wire.Message
	if err := wsjson.Read(ctx, conn, &authMsg); err != nil {
		s.logger.Error("failed to read auth request", "error", err)
		conn.Close(websocket.StatusProtocolError, "auth required")
		return
	}
	if authMsg.Kind != wire.KindAuthRequest {
		conn.Close(websocket.StatusProtocolError, "expected auth_request")
		return
	}
	authReq, ok := authMsg.Payload.(wire.AuthRequestPayload)
	if !ok {
		conn.Close(websocket.StatusProtocolError, "malformed auth_request")
		return
	}

	node, err := s.auth.Authenticate(authReq)
	if err != nil {
		s.logger.Warn("authentication rejected", "error", err, "node_id", authReq.NodeID)
		wsjson.Write(ctx, conn, wire.Message{
			Kind: wire.KindAuthResponse,
			Payload: wire.AuthResponsePayload{
				ResponseEnvelope: wire.ResponseEnvelope{Success: false, Error: err.Error()},
			},
		})
		conn.Close(websocket.StatusPolicyViolation, "authentication failed")
		return
	}

	sessionID := uuid.New().String()
	s.sessions.Add(sessionID, node.NodeID, node.NodeType, node.Capabilities)
	s.metrics.ActiveSessions.WithLabelValues(string(node.NodeType)).Inc()

	l := &link{sessionID: sessionID, nodeID: node.NodeID, nodeType: node.NodeType, conn: conn}
	s.mu.Lock()
	s.links[sessionID] = l
	s.mu.Unlock()

	wsjson.Write(ctx, conn, wire.Message{
		Kind: wire.KindAuthResponse,
		Payload: wire.AuthResponsePayload{
			ResponseEnvelope: wire.ResponseEnvelope{Success: true},
			SessionToken:     node.Token,
			RelayInfo: wire.RelayInfo{
				RelayID:        sessionID,
				MaxMessageSize: uint32(s.cfg.MaxMessageSize),
			},
		},
	})

	s.logger.Info("node connected", "node_id", node.NodeID, "node_type", node.NodeType, "session_id", sessionID)
	s.processLink(ctx, l)

	s.mu.Lock()
	delete(s.links, sessionID)
	s.mu.Unlock()
	s.sessions.Remove(sessionID)
	s.metrics.ActiveSessions.WithLabelValues(string(node.NodeType)).Dec()
	s.logger.Info("node disconnected", "node_id", node.NodeID, "session_id", sessionID)
}

// processLink reads every message l sends and routes it: requests go to
// an agent (tracked so the eventual response finds its way back), and
// responses go to whoever the router recorded as the originator.
func (s *Server) processLink(ctx context.Context, l *link) {
	for {
		var msg wire.Message
		if err := wsjson.Read(ctx, l.conn, &msg); err != nil {
			return
		}
		_ = s.sessions.UpdateActivity(l.sessionID)
		s.route(ctx, l, msg)
	}
}

func (s *Server) route(ctx context.Context, from *link, msg wire.Message) {
	switch msg.Kind {
	case wire.KindPing:
		ping, _ := msg.Payload.(wire.PingPayload)
		wsjson.Write(ctx, from.conn, wire.Message{Kind: wire.KindPong, Payload: wire.PongPayload{
			TimestampUnixMilli:         time.Now().UnixMilli(),
			OriginalTimestampUnixMilli: ping.TimestampUnixMilli,
		}})
		return
	case wire.KindConnectionClose:
		return
	}

	if wire.IsResponse(msg) {
		s.routeResponse(ctx, msg)
		return
	}
	s.routeRequest(ctx, from, msg)
}

func (s *Server) routeRequest(ctx context.Context, from *link, msg wire.Message) {
	agents := s.sessions.ByType(relayauth.NodeTypeAgent)
	sort.Slice(agents, func(i, j int) bool { return agents[i].NodeID < agents[j].NodeID })
	agentSession, err := s.router.SelectAgent(agents)
	if err != nil {
		s.metrics.FailedRoutes.Inc()
		s.logger.Warn("no agent available for request", "kind", msg.Kind)
		s.replyRoutingError(ctx, from, msg, err)
		return
	}

	s.mu.RLock()
	target, ok := s.links[agentSession.SessionID]
	s.mu.RUnlock()
	if !ok {
		s.metrics.FailedRoutes.Inc()
		s.replyRoutingError(ctx, from, msg, fmt.Errorf("relayserver: selected agent has no live link"))
		return
	}

	if msg.HasRequestID() {
		s.router.TrackRequest(msg.RequestID, from.sessionID, target.sessionID, msg.Kind)
	}
	if err := wsjson.Write(ctx, target.conn, msg); err != nil {
		s.metrics.FailedRoutes.Inc()
		s.router.Forget(msg.RequestID)
		s.replyRoutingError(ctx, from, msg, err)
		return
	}
	s.metrics.RoutedMessages.WithLabelValues(string(msg.Kind)).Inc()
}

func (s *Server) routeResponse(ctx context.Context, msg wire.Message) {
	requestID, hasID := wire.RequestIDOf(msg)
	if !hasID {
		return
	}
	originatorSessionID, err := s.router.ResolveResponse(requestID)
	if err != nil {
		s.metrics.FailedRoutes.Inc()
		s.logger.Warn("dropping response with no tracked originator", "request_id", requestID, "error", err)
		return
	}

	s.mu.RLock()
	origin, ok := s.links[originatorSessionID]
	s.mu.RUnlock()
	if !ok {
		s.metrics.FailedRoutes.Inc()
		return
	}
	if err := wsjson.Write(ctx, origin.conn, msg); err != nil {
		s.metrics.FailedRoutes.Inc()
		return
	}
	s.metrics.RoutedMessages.WithLabelValues(string(msg.Kind)).Inc()
}

func (s *Server) replyRoutingError(ctx context.Context, to *link, original wire.Message, cause error) {
	if !original.HasRequestID() {
		return
	}
	wsjson.Write(ctx, to.conn, wire.Message{
		Kind:      wire.KindError,
		RequestID: original.RequestID,
		Payload:   wire.ErrorPayload{Message: cause.Error()},
	})
}

// handleHealth answers the literal "OK", deliberately not a JSON body, so
// a liveness probe needs no parsing.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "OK")
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if err := s.metrics.WriteStatsPlainText(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
