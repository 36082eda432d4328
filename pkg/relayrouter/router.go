// Package relayrouter resolves where an inbound message goes next: a
// pending request to the agent that will service it, or a response back to
// the client that sent the request. It tracks every in-flight request in a
// TTL-bounded table, the same expiring-map shape relayauth uses for its
// tokens, and picks agents round-robin when a request names a class rather than a
// specific node.
package relayrouter

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nodewire/remotefs/pkg/relaysession"
	"github.com/nodewire/remotefs/pkg/wire"
)

// ErrUnknownOriginator is returned when a response arrives for a request
// the router has no record of — because it already timed out, or because
// it never saw the request. Per this project's resolution of the routing
// ambiguity the original design left open, there is no fallback delivery
// to "the first live client"; the response is dropped and this error is
// surfaced to the caller for logging.
var ErrUnknownOriginator = fmt.Errorf("relayrouter: no tracked request for this response")

// ErrNoAgentAvailable is returned when a request needs an agent and none
// are connected.
var ErrNoAgentAvailable = fmt.Errorf("relayrouter: no agent connected")

type pendingRequest struct {
	originatorSessionID string
	targetSessionID      string
	messageKind          wire.Kind
	enqueuedAt           time.Time
}

// Router tracks in-flight requests and picks agents for requests that name
// no specific target.
type Router struct {
	ttl time.Duration

	mu      sync.Mutex
	pending map[uuid.UUID]*pendingRequest
	rrIndex int
}

// DefaultRequestTTL bounds how long a request may sit unanswered before the
// router stops tracking it and treats a late response as unknown.
const DefaultRequestTTL = 30 * time.Second

// New builds a Router. ttl <= 0 falls back to DefaultRequestTTL.
func New(ttl time.Duration) *Router {
	if ttl <= 0 {
		ttl = DefaultRequestTTL
	}
	return &Router{ttl: ttl, pending: make(map[uuid.UUID]*pendingRequest)}
}

// SelectAgent picks the next agent round-robin from the currently connected
// set. agents must be a stable-ordered snapshot (e.g. from
// relaysession.Manager.ByType, sorted by the caller if determinism across
// calls matters). Returns ErrNoAgentAvailable if agents is empty.
func (r *Router) SelectAgent(agents []relaysession.Session) (relaysession.Session, error) {
	if len(agents) == 0 {
		return relaysession.Session{}, ErrNoAgentAvailable
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.rrIndex % len(agents)
	r.rrIndex++
	return agents[idx], nil
}

// TrackRequest records that requestID originated from originatorSessionID
// and was routed to targetSessionID, so the eventual response can be routed
// back without the target needing to know who asked.
func (r *Router) TrackRequest(requestID uuid.UUID, originatorSessionID, targetSessionID string, kind wire.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[requestID] = &pendingRequest{
		originatorSessionID: originatorSessionID,
		targetSessionID:      targetSessionID,
		messageKind:          kind,
		enqueuedAt:           time.Now(),
	}
}

// ResolveResponse looks up which session originated requestID so a response
// can be routed home, then stops tracking it (responses are one-shot).
func (r *Router) ResolveResponse(requestID uuid.UUID) (originatorSessionID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[requestID]
	if !ok {
		return "", ErrUnknownOriginator
	}
	delete(r.pending, requestID)
	if time.Since(p.enqueuedAt) > r.ttl {
		return "", ErrUnknownOriginator
	}
	return p.originatorSessionID, nil
}

// Forget stops tracking requestID without resolving it, for when the
// originating link itself disconnects before a response arrives.
func (r *Router) Forget(requestID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, requestID)
}

// PendingCount reports how many requests are currently tracked. Exposed for
// metrics and tests.
func (r *Router) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Sweep evicts tracked requests older than the router's TTL and returns how
// many were evicted. The relay server calls it on a ticker.
func (r *Router) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-r.ttl)
	n := 0
	for id, p := range r.pending {
		if p.enqueuedAt.Before(cutoff) {
			delete(r.pending, id)
			n++
		}
	}
	return n
}
