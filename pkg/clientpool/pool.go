// Package clientpool is the client's connection pool: one Connection per
// known agent (reached through the relay), a pluggable selection policy,
// and retry-with-failover across connections. The pending-request
// correlation (a per-connection map from request id to a one-shot result
// channel) is grounded on relay.Tunnel's CommandCh/ResultCh pair and
// Server.SendCommand's select-based wait, generalized from "the relay's
// one tunnel per node" to "the client's map of requests in flight per
// connection".
package clientpool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/nodewire/remotefs/pkg/resilience"
	"github.com/nodewire/remotefs/pkg/rferrors"
	"github.com/nodewire/remotefs/pkg/wire"
)

// Connection is one client-side link to a single agent, addressed through
// the relay by node id. Each connection carries its own circuit breaker so
// a persistently failing agent stops being selected well before its
// RetryPolicy budget would otherwise be exhausted on it.
type Connection struct {
	NodeID string
	Weight int

	conn    *websocket.Conn
	logger  func(format string, args ...any)
	breaker *resilience.CircuitBreaker

	mu      sync.Mutex
	pending map[uuid.UUID]*pendingCall
}

type pendingCall struct {
	resultCh chan wire.Message
	deadline time.Time
}

// newConnection wraps an already-authenticated websocket connection.
func newConnection(nodeID string, weight int, wsConn *websocket.Conn) *Connection {
	if weight <= 0 {
		weight = 1
	}
	return &Connection{
		NodeID:  nodeID,
		Weight:  weight,
		conn:    wsConn,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: nodeID}),
		pending: make(map[uuid.UUID]*pendingCall),
	}
}

// Send writes req on the connection and blocks until its paired response
// arrives, ctx is done, or deadline passes. The round trip runs through
// the connection's circuit breaker, so a connection already tripped open
// fails fast without attempting the write.
func (c *Connection) Send(ctx context.Context, req wire.Message, timeout time.Duration) (wire.Message, error) {
	if c.breaker.State() == resilience.CircuitOpen {
		return wire.Message{}, rferrors.New(rferrors.ClassServiceUnavailable, fmt.Sprintf("connection %s: circuit breaker open", c.NodeID))
	}
	var resp wire.Message
	err := c.breaker.Execute(func() error {
		var sendErr error
		resp, sendErr = c.send(ctx, req, timeout)
		return sendErr
	})
	return resp, err
}

func (c *Connection) send(ctx context.Context, req wire.Message, timeout time.Duration) (wire.Message, error) {
	if req.RequestID == uuid.Nil {
		req.RequestID = wire.NewRequestID()
	}
	call := &pendingCall{resultCh: make(chan wire.Message, 1), deadline: time.Now().Add(timeout)}

	c.mu.Lock()
	c.pending[req.RequestID] = call
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.RequestID)
		c.mu.Unlock()
	}()

	if err := wsjson.Write(ctx, c.conn, req); err != nil {
		return wire.Message{}, rferrors.Wrap(rferrors.ClassConnection, "send request", err)
	}

	select {
	case resp := <-call.resultCh:
		return resp, nil
	case <-ctx.Done():
		return wire.Message{}, rferrors.Wrap(rferrors.ClassTimeout, "waiting for response", ctx.Err())
	case <-time.After(timeout):
		return wire.Message{}, rferrors.New(rferrors.ClassTimeout, fmt.Sprintf("no response for request %s within %s", req.RequestID, timeout))
	}
}

// BreakerState reports the connection's circuit breaker state, for
// selection policies or metrics that want to avoid or report on a
// tripped connection.
func (c *Connection) BreakerState() resilience.CircuitState {
	return c.breaker.State()
}

// deliver routes an inbound response to whichever Send call is waiting on
// its request id. It is called from the connection's single receive loop.
func (c *Connection) deliver(resp wire.Message) {
	c.mu.Lock()
	call, ok := c.pending[resp.RequestID]
	c.mu.Unlock()
	if !ok {
		return // response for a request this connection no longer tracks (timed out, or unsolicited)
	}
	select {
	case call.resultCh <- resp:
	default:
	}
}

// Close closes the underlying transport.
func (c *Connection) Close() error {
	return c.conn.CloseNow()
}

// Pool holds every Connection the client currently has and picks among
// them per request using a SelectionPolicy.
type Pool struct {
	policy SelectionPolicy
	retry  RetryPolicy

	mu    sync.RWMutex
	conns map[string]*Connection
}

// New builds an empty Pool. policy defaults to RoundRobin if nil.
func New(policy SelectionPolicy, retry RetryPolicy) *Pool {
	if policy == nil {
		policy = &RoundRobin{}
	}
	return &Pool{policy: policy, retry: retry, conns: make(map[string]*Connection)}
}

// Add registers conn under the pool's selection policy.
func (p *Pool) Add(conn *Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[conn.NodeID] = conn
}

// Remove drops and closes the connection for nodeID, if present.
func (p *Pool) Remove(nodeID string) {
	p.mu.Lock()
	conn, ok := p.conns[nodeID]
	if ok {
		delete(p.conns, nodeID)
	}
	p.mu.Unlock()
	if ok {
		conn.Close()
	}
}

// snapshot returns a stable-ordered copy of the live connections for the
// selection policy to choose among.
func (p *Pool) snapshot() []*Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Connection, 0, len(p.conns))
	for _, c := range p.conns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// Send picks a connection via the pool's policy, sends req, and retries
// across different connections per RetryPolicy on a retryable failure.
func (p *Pool) Send(ctx context.Context, req wire.Message, timeout time.Duration) (wire.Message, error) {
	conns := p.snapshot()
	if len(conns) == 0 {
		return wire.Message{}, rferrors.New(rferrors.ClassServiceUnavailable, "no connections in pool")
	}

	attempts := p.retry.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	tried := make(map[string]bool, len(conns))

	var lastErr error
	for i := 0; i < attempts; i++ {
		candidates := excludeTried(conns, tried)
		if len(candidates) == 0 {
			candidates = conns // every connection already tried once; allow reuse rather than give up early
		}
		conn, err := p.policy.Select(candidates)
		if err != nil {
			return wire.Message{}, err
		}
		tried[conn.NodeID] = true

		resp, err := conn.Send(ctx, req, timeout)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !rferrors.IsRetryable(err) {
			return wire.Message{}, err
		}

		if i < attempts-1 {
			if delay := p.retry.delayFor(i); delay > 0 {
				select {
				case <-ctx.Done():
					return wire.Message{}, ctx.Err()
				case <-time.After(delay):
				}
			}
		}
	}
	return wire.Message{}, fmt.Errorf("clientpool: exhausted %d attempts: %w", attempts, lastErr)
}

func excludeTried(conns []*Connection, tried map[string]bool) []*Connection {
	out := make([]*Connection, 0, len(conns))
	for _, c := range conns {
		if !tried[c.NodeID] {
			out = append(out, c)
		}
	}
	return out
}
