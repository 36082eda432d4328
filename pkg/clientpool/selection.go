package clientpool

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
)

// SelectionPolicy picks one connection from candidates for the next
// outbound request. Implementations must be safe for concurrent use.
// Generalized from fleet.TargetSelector's weighting-adjacent fields,
// which resolved a node set to execute a command on all of; a client
// pool instead needs to pick exactly one target per request, so each
// policy here narrows that resolution to a single pick.
type SelectionPolicy interface {
	Select(candidates []*Connection) (*Connection, error)
}

var errNoCandidates = fmt.Errorf("clientpool: no candidate connections")

// RoundRobin cycles through candidates in the order given.
type RoundRobin struct {
	counter atomic.Uint64
}

func (r *RoundRobin) Select(candidates []*Connection) (*Connection, error) {
	if len(candidates) == 0 {
		return nil, errNoCandidates
	}
	idx := r.counter.Add(1) - 1
	return candidates[idx%uint64(len(candidates))], nil
}

// WeightedRoundRobin picks candidates proportionally to Connection.Weight.
type WeightedRoundRobin struct {
	mu      sync.Mutex
	cursors map[string]int
	counter int
}

func (w *WeightedRoundRobin) Select(candidates []*Connection) (*Connection, error) {
	if len(candidates) == 0 {
		return nil, errNoCandidates
	}
	total := 0
	for _, c := range candidates {
		total += c.Weight
	}
	if total <= 0 {
		return candidates[0], nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.counter++
	target := w.counter % total

	running := 0
	for _, c := range candidates {
		running += c.Weight
		if target < running {
			return c, nil
		}
	}
	return candidates[len(candidates)-1], nil
}

// LeastConnections picks whichever candidate currently has the fewest
// pending (in-flight) requests.
type LeastConnections struct{}

func (LeastConnections) Select(candidates []*Connection) (*Connection, error) {
	if len(candidates) == 0 {
		return nil, errNoCandidates
	}
	best := candidates[0]
	bestCount := best.pendingCount()
	for _, c := range candidates[1:] {
		if n := c.pendingCount(); n < bestCount {
			best, bestCount = c, n
		}
	}
	return best, nil
}

func (c *Connection) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Random picks a uniformly random candidate.
type Random struct{}

func (Random) Select(candidates []*Connection) (*Connection, error) {
	if len(candidates) == 0 {
		return nil, errNoCandidates
	}
	return candidates[rand.Intn(len(candidates))], nil
}
