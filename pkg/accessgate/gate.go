// Package accessgate is the agent's single authorization checkpoint: every
// filesystem operation the dispatcher is about to perform passes through
// Gate.Check first. The evaluation order and counters are grounded on
// rbac.Enforcer's Check, generalized from role/permission matching to
// path/operation matching, and fused with the relay package's
// validateFilePath deny-list style (generalized from a fixed prefix list
// over shell commands to a configurable prefix list over paths).
package accessgate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// OperationKind names the class of filesystem operation being gated, so a
// single Check can apply the read-only and extension-filter rules that
// only make sense for some operation classes.
type OperationKind int

const (
	OpRead OperationKind = iota
	OpWrite
	OpCreate
	OpDelete
	OpList
	OpMetadata
)

// AccessPolicy is immutable once built: every Gate.Check call reads it
// without locking. Construct a new Gate to change policy.
type AccessPolicy struct {
	// AllowedRoots restricts operations to paths lexically under one of
	// these absolute directories. Empty means no restriction.
	AllowedRoots []string

	// DeniedPrefixes blocks any absolute path under one of these, checked
	// before AllowedRoots, so a denied prefix wins over an allowed root.
	// Mirrors the relay package's blocked system-path list, generalized to
	// be policy-configurable rather than hardcoded.
	DeniedPrefixes []string

	// ReadOnly rejects every mutating operation kind (write/create/delete)
	// regardless of path.
	ReadOnly bool

	// ReadOnlyPaths rejects mutating operations under any of these
	// prefixes specifically, leaving the rest of the tree writable.
	ReadOnlyPaths []string

	// AllowedExtensions, when non-empty, restricts OpWrite/OpCreate to
	// paths whose extension (including the leading dot) appears here.
	AllowedExtensions []string

	// DeniedExtensions blocks OpWrite/OpCreate for any path whose
	// extension appears here, checked before AllowedExtensions.
	DeniedExtensions []string

	// MaxFileSize caps the byte count CheckSize will admit. 0 means no cap.
	MaxFileSize uint64

	// FollowSymlinks controls whether a path that resolves through a
	// symlink is rejected outright (false, the default posture for a
	// relay-exposed filesystem) or permitted.
	FollowSymlinks bool
}

// Counters tracks gate decisions for observability. All fields are updated
// atomically so Gate.Check needs no lock around them.
type Counters struct {
	Allowed         atomic.Int64
	Denied          atomic.Int64
	PathViolations  atomic.Int64
	SizeViolations  atomic.Int64
}

// Gate evaluates operations against a fixed AccessPolicy.
type Gate struct {
	policy   AccessPolicy
	counters Counters
}

// New builds a Gate over policy. policy is copied defensively is not
// necessary since AccessPolicy holds only slices/bools; callers should not
// mutate a policy's slices after passing it in.
func New(policy AccessPolicy) *Gate {
	return &Gate{policy: policy}
}

// Counters returns the gate's live counters for metrics scraping.
func (g *Gate) Counters() *Counters { return &g.counters }

// Check runs the full evaluation order:
//  1. normalize path (lexical clean, reject empty/NUL/over-length)
//  2. symlink check (reject if the policy forbids following symlinks and
//     any path component is a symlink)
//  3. deny list
//  4. allow list (if configured)
//  5. read-only check
//  6. extension filter
//
// It returns nil when the operation is permitted.
func (g *Gate) Check(kind OperationKind, path string) error {
	clean, err := g.normalize(path)
	if err != nil {
		g.counters.Denied.Add(1)
		g.counters.PathViolations.Add(1)
		return err
	}

	if !g.policy.FollowSymlinks {
		if err := g.rejectSymlinks(clean); err != nil {
			g.counters.Denied.Add(1)
			g.counters.PathViolations.Add(1)
			return err
		}
	}

	for _, prefix := range g.policy.DeniedPrefixes {
		if hasPathPrefix(clean, prefix) {
			g.counters.Denied.Add(1)
			g.counters.PathViolations.Add(1)
			return fmt.Errorf("accessgate: path %q is under denied prefix %q", clean, prefix)
		}
	}

	if len(g.policy.AllowedRoots) > 0 {
		allowed := false
		for _, root := range g.policy.AllowedRoots {
			if hasPathPrefix(clean, root) {
				allowed = true
				break
			}
		}
		if !allowed {
			g.counters.Denied.Add(1)
			g.counters.PathViolations.Add(1)
			return fmt.Errorf("accessgate: path %q is outside every allowed root", clean)
		}
	}

	if isMutating(kind) {
		if g.policy.ReadOnly {
			g.counters.Denied.Add(1)
			return fmt.Errorf("accessgate: filesystem is read-only")
		}
		for _, prefix := range g.policy.ReadOnlyPaths {
			if hasPathPrefix(clean, prefix) {
				g.counters.Denied.Add(1)
				return fmt.Errorf("accessgate: path %q is under read-only prefix %q", clean, prefix)
			}
		}
	}

	if (kind == OpWrite || kind == OpCreate) && len(g.policy.DeniedExtensions) > 0 {
		ext := filepath.Ext(clean)
		if containsString(g.policy.DeniedExtensions, ext) {
			g.counters.Denied.Add(1)
			return fmt.Errorf("accessgate: extension %q is denied", ext)
		}
	}

	if len(g.policy.AllowedExtensions) > 0 && (kind == OpWrite || kind == OpCreate) {
		ext := filepath.Ext(clean)
		if !containsString(g.policy.AllowedExtensions, ext) {
			g.counters.Denied.Add(1)
			return fmt.Errorf("accessgate: extension %q is not permitted", ext)
		}
	}

	g.counters.Allowed.Add(1)
	return nil
}

// CheckSize enforces the policy's MaxFileSize cap. Called by the dispatcher
// before buffering a write payload or creating a file of a declared size.
func (g *Gate) CheckSize(n uint64) error {
	if g.policy.MaxFileSize == 0 || n <= g.policy.MaxFileSize {
		return nil
	}
	g.counters.Denied.Add(1)
	g.counters.SizeViolations.Add(1)
	return fmt.Errorf("accessgate: size %d exceeds limit %d", n, g.policy.MaxFileSize)
}

// normalize lexically cleans path and rejects the inputs validateFilePath's
// spirit always rejected: empty, NUL bytes, ".." components surviving the
// clean (meaning the path tried to climb above its root), and paths beyond
// a sane length.
func (g *Gate) normalize(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("accessgate: empty path")
	}
	if len(path) > 4096 {
		return "", fmt.Errorf("accessgate: path exceeds maximum length")
	}
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("accessgate: path contains a NUL byte")
	}
	clean := filepath.Clean(path)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("accessgate: path traversal not allowed")
	}
	if !filepath.IsAbs(clean) {
		return "", fmt.Errorf("accessgate: path must be absolute")
	}
	return clean, nil
}

// rejectSymlinks walks path and every one of its ancestors, rejecting if
// any of them, including the leaf itself, is a symlink. It tolerates
// components that don't exist yet (for create/write of a new file) by
// skipping any component os.Lstat cannot stat and going on to its parent.
func (g *Gate) rejectSymlinks(path string) error {
	current := path
	for {
		info, err := os.Lstat(current)
		if err == nil && info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("accessgate: path traverses a symlink at %q", current)
		}
		parent := filepath.Dir(current)
		if parent == current {
			return nil
		}
		current = parent
	}
}

func isMutating(kind OperationKind) bool {
	switch kind {
	case OpWrite, OpCreate, OpDelete:
		return true
	default:
		return false
	}
}

func hasPathPrefix(path, prefix string) bool {
	prefix = filepath.Clean(prefix)
	return path == prefix || strings.HasPrefix(path, prefix+string(filepath.Separator))
}

func containsString(ss []string, target string) bool {
	for _, s := range ss {
		if s == target {
			return true
		}
	}
	return false
}
