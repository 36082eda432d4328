// Package relaysession implements the relay's dual-indexed session table:
// one session per node, looked up equally often by session id (routing
// replies) and by node id (routing fresh requests, enforcing the
// one-session-per-node rule). The map shape and RWMutex-guarded mutation
// style follow WSServer.tunnels in the relay package this module grew out
// of.
package relaysession

import (
	"fmt"
	"sync"
	"time"

	"github.com/nodewire/remotefs/pkg/relayauth"
)

// Session is one authenticated, live link to the relay.
type Session struct {
	SessionID    string
	NodeID       string
	NodeType     relayauth.NodeType
	Capabilities []string
	ConnectedAt  time.Time
	LastActivity time.Time
}

// Manager holds the live session table. Zero value is not usable; use New.
type Manager struct {
	ttl time.Duration

	mu         sync.RWMutex
	bySession  map[string]*Session
	byNode     map[string]*Session
}

// DefaultTTL is the inactivity window after which a session is considered
// expired and removed by CleanupExpired.
const DefaultTTL = 2 * time.Minute

// New builds a Manager. ttl <= 0 falls back to DefaultTTL.
func New(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		ttl:       ttl,
		bySession: make(map[string]*Session),
		byNode:    make(map[string]*Session),
	}
}

// Add registers a new session for node, replacing any prior session that
// node already held (spec's "one session per node_id" rule: a reconnect
// evicts the stale entry rather than coexisting with it).
func (m *Manager) Add(sessionID, nodeID string, nodeType relayauth.NodeType, capabilities []string) *Session {
	now := time.Now()
	s := &Session{
		SessionID:    sessionID,
		NodeID:       nodeID,
		NodeType:     nodeType,
		Capabilities: capabilities,
		ConnectedAt:  now,
		LastActivity: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if prior, ok := m.byNode[nodeID]; ok {
		delete(m.bySession, prior.SessionID)
	}
	m.bySession[sessionID] = s
	m.byNode[nodeID] = s
	return s
}

// Remove evicts a session by session id from both indexes.
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.bySession[sessionID]
	if !ok {
		return
	}
	delete(m.bySession, sessionID)
	if m.byNode[s.NodeID] == s {
		delete(m.byNode, s.NodeID)
	}
}

// DisconnectNode evicts whatever session node_id currently holds, if any.
func (m *Manager) DisconnectNode(nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byNode[nodeID]
	if !ok {
		return
	}
	delete(m.byNode, nodeID)
	delete(m.bySession, s.SessionID)
}

// BySessionID returns the session for sessionID, if live.
func (m *Manager) BySessionID(sessionID string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.bySession[sessionID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// ByNodeID returns the session node_id currently holds, if any.
func (m *Manager) ByNodeID(nodeID string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byNode[nodeID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// ByType returns a snapshot of every live session of the given type.
func (m *Manager) ByType(nodeType relayauth.NodeType) []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Session, 0, len(m.byNode))
	for _, s := range m.byNode {
		if s.NodeType == nodeType {
			out = append(out, *s)
		}
	}
	return out
}

// UpdateActivity bumps sessionID's LastActivity to now. It returns an error
// if the session no longer exists (e.g. evicted by a concurrent reconnect).
func (m *Manager) UpdateActivity(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.bySession[sessionID]
	if !ok {
		return fmt.Errorf("relaysession: unknown session %q", sessionID)
	}
	s.LastActivity = time.Now()
	return nil
}

// CleanupExpired evicts every session whose LastActivity is older than the
// manager's TTL and returns the node ids it evicted.
func (m *Manager) CleanupExpired() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-m.ttl)
	var evicted []string
	for sessionID, s := range m.bySession {
		if s.LastActivity.Before(cutoff) {
			delete(m.bySession, sessionID)
			if m.byNode[s.NodeID] == s {
				delete(m.byNode, s.NodeID)
			}
			evicted = append(evicted, s.NodeID)
		}
	}
	return evicted
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bySession)
}
