// Package relayauth implements the relay's authentication surface: it
// validates the AuthRequest every link opens with, mints session tokens,
// and expires them on a TTL sweep. The evaluation shape (RWMutex-guarded
// map, periodic Cleanup goroutine) is the same TTL-bounded lookup table
// shape relayrouter uses for its own request-tracking sweep.
package relayauth

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nodewire/remotefs/pkg/wire"
)

// NodeType enumerates the two kinds of peer that may authenticate to a
// relay. Anything else is rejected outright.
type NodeType string

const (
	NodeTypeClient NodeType = "client"
	NodeTypeAgent  NodeType = "agent"
)

// nodeIDPattern is the enforced node_id charset: alphanumerics, dashes,
// and underscores, 1-64 characters.
var nodeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// capabilityPattern is the enforced charset for a single capability
// string: alphanumerics, dots, dashes, and underscores, 1-64 characters.
var capabilityPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

const (
	publicKeyLength = 32
	maxCapabilities = 20
)

// AuthenticatedNode is what Authenticate returns on success: everything
// the session manager and router need to admit the node.
type AuthenticatedNode struct {
	NodeID       string
	NodeType     NodeType
	Capabilities []string
	Token        string
	IssuedAt     time.Time
}

// Policy configures which node ids and capabilities an Authenticator will
// admit. A nil AllowedNodeIDs accepts any node id that passes the other
// checks; a non-nil one is an explicit allow-list.
type Policy struct {
	AllowedNodeIDs     map[string]bool
	RequiredCapability string // "" disables the check
	TokenTTL           time.Duration
}

// DefaultTokenTTL matches the relay session manager's default expiry.
const DefaultTokenTTL = 2 * time.Minute

type tokenEntry struct {
	node      AuthenticatedNode
	expiresAt time.Time
}

// Authenticator validates AuthRequest payloads and tracks the tokens it
// mints so Validate can look them up in O(1) without re-deriving them.
type Authenticator struct {
	policy Policy
	logger *slog.Logger

	mu     sync.RWMutex
	tokens map[string]*tokenEntry
}

// New builds an Authenticator. A zero-value policy.TokenTTL falls back to
// DefaultTokenTTL.
func New(policy Policy, logger *slog.Logger) *Authenticator {
	if policy.TokenTTL <= 0 {
		policy.TokenTTL = DefaultTokenTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		policy: policy,
		logger: logger,
		tokens: make(map[string]*tokenEntry),
	}
}

// Authenticate validates req's node_id, node_type, public_key, and
// capability fields and, on success, mints and records a session token
// shaped "<uuid>_<node_id>". A node_id that does not start with its node
// type's prefix ("client-" or "agent-") is logged at Warn, not rejected.
func (a *Authenticator) Authenticate(req wire.AuthRequestPayload) (AuthenticatedNode, error) {
	if strings.TrimSpace(req.NodeID) == "" {
		return AuthenticatedNode{}, fmt.Errorf("relayauth: empty node_id")
	}
	if !nodeIDPattern.MatchString(req.NodeID) {
		return AuthenticatedNode{}, fmt.Errorf("relayauth: node_id %q must be 1-64 chars matching [A-Za-z0-9_-]", req.NodeID)
	}
	nodeType := NodeType(req.NodeType)
	if nodeType != NodeTypeClient && nodeType != NodeTypeAgent {
		return AuthenticatedNode{}, fmt.Errorf("relayauth: unknown node_type %q", req.NodeType)
	}
	if len(req.PublicKey) != publicKeyLength {
		return AuthenticatedNode{}, fmt.Errorf("relayauth: public_key must be exactly %d bytes, got %d", publicKeyLength, len(req.PublicKey))
	}
	if len(req.Capabilities) > maxCapabilities {
		return AuthenticatedNode{}, fmt.Errorf("relayauth: at most %d capabilities allowed, got %d", maxCapabilities, len(req.Capabilities))
	}
	for _, capability := range req.Capabilities {
		if !capabilityPattern.MatchString(capability) {
			return AuthenticatedNode{}, fmt.Errorf("relayauth: capability %q must be 1-64 chars matching [A-Za-z0-9._-]", capability)
		}
	}
	if a.policy.AllowedNodeIDs != nil && !a.policy.AllowedNodeIDs[req.NodeID] {
		return AuthenticatedNode{}, fmt.Errorf("relayauth: node_id %q not on allow list", req.NodeID)
	}
	if a.policy.RequiredCapability != "" && !containsString(req.Capabilities, a.policy.RequiredCapability) {
		return AuthenticatedNode{}, fmt.Errorf("relayauth: node_id %q lacks required capability %q", req.NodeID, a.policy.RequiredCapability)
	}
	if !strings.HasPrefix(req.NodeID, string(nodeType)+"-") {
		a.logger.Warn("relayauth: node_id lacks its node type's prefix", "node_id", req.NodeID, "node_type", req.NodeType)
	}

	now := time.Now()
	node := AuthenticatedNode{
		NodeID:       req.NodeID,
		NodeType:     nodeType,
		Capabilities: req.Capabilities,
		Token:        mintToken(req.NodeID),
		IssuedAt:     now,
	}

	a.mu.Lock()
	a.tokens[node.Token] = &tokenEntry{node: node, expiresAt: now.Add(a.policy.TokenTTL)}
	a.mu.Unlock()

	return node, nil
}

// Validate looks up token and returns the node it was minted for. It
// returns an error if the token is unknown or expired.
func (a *Authenticator) Validate(token string) (AuthenticatedNode, error) {
	a.mu.RLock()
	entry, ok := a.tokens[token]
	a.mu.RUnlock()
	if !ok {
		return AuthenticatedNode{}, fmt.Errorf("relayauth: unknown session token")
	}
	if time.Now().After(entry.expiresAt) {
		a.mu.Lock()
		delete(a.tokens, token)
		a.mu.Unlock()
		return AuthenticatedNode{}, fmt.Errorf("relayauth: session token expired")
	}
	return entry.node, nil
}

// Revoke removes token immediately, for explicit logout / disconnect.
func (a *Authenticator) Revoke(token string) {
	a.mu.Lock()
	delete(a.tokens, token)
	a.mu.Unlock()
}

// Cleanup removes every expired token. Exposed for tests; RunCleanup calls
// it on a ticker in production.
func (a *Authenticator) Cleanup() {
	now := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	for token, entry := range a.tokens {
		if now.After(entry.expiresAt) {
			delete(a.tokens, token)
		}
	}
}

// RunCleanup sweeps expired tokens every interval until ctx is done.
func (a *Authenticator) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Cleanup()
		}
	}
}

func mintToken(nodeID string) string {
	return uuid.New().String() + "_" + nodeID
}

func containsString(ss []string, target string) bool {
	for _, s := range ss {
		if s == target {
			return true
		}
	}
	return false
}
