// Package agentdispatch turns an inbound wire.Message into an access-gate
// check, an fsops call, and a paired response message. The active-operation
// bookkeeping (a map of request id to cancel func, guarded so Cancel and
// completion can race safely) follows fleet.Executor's inflight map,
// narrowed from "cancel a running node command" to "track what this agent
// is currently doing", since there is no cross-link cancellation primitive
// beyond per-request context cancellation.
package agentdispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nodewire/remotefs/pkg/accessaudit"
	"github.com/nodewire/remotefs/pkg/accessgate"
	"github.com/nodewire/remotefs/pkg/fsops"
	"github.com/nodewire/remotefs/pkg/metrics"
	"github.com/nodewire/remotefs/pkg/resilience"
	"github.com/nodewire/remotefs/pkg/wire"
)

// DefaultMaxConcurrentOperations bounds how many filesystem operations a
// Dispatcher runs at once when New is given maxConcurrent <= 0.
const DefaultMaxConcurrentOperations = 64

// activeOperation is bookkeeping for one in-flight request, enough for
// liveness reporting and a cancellation hook.
type activeOperation struct {
	kind      wire.Kind
	path      string
	startedAt time.Time
	cancel    context.CancelFunc
}

// Dispatcher evaluates every filesystem operation request against a Gate
// before performing it, and records the outcome to an audit Logger.
type Dispatcher struct {
	gate     *accessgate.Gate
	audit    accessaudit.Logger
	metrics  *metrics.Registry
	logger   *slog.Logger
	bulkhead *resilience.Bulkhead

	mu     sync.Mutex
	active map[uuid.UUID]*activeOperation
}

// New builds a Dispatcher bounding itself to maxConcurrent simultaneous
// operations (<= 0 falls back to DefaultMaxConcurrentOperations). audit
// and metricsReg may be nil; logger nil falls back to slog.Default().
func New(gate *accessgate.Gate, audit accessaudit.Logger, metricsReg *metrics.Registry, logger *slog.Logger, maxConcurrent int) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentOperations
	}
	return &Dispatcher{
		gate:     gate,
		audit:    audit,
		metrics:  metricsReg,
		logger:   logger,
		bulkhead: resilience.NewBulkhead("agentdispatch", maxConcurrent),
		active:   make(map[uuid.UUID]*activeOperation),
	}
}

// ActiveCount reports how many operations are currently in flight.
func (d *Dispatcher) ActiveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}

// Cancel requests cancellation of an in-flight operation by request id. It
// is a no-op if the operation already completed.
func (d *Dispatcher) Cancel(requestID uuid.UUID) {
	d.mu.Lock()
	op, ok := d.active[requestID]
	d.mu.Unlock()
	if ok {
		op.cancel()
	}
}

// Dispatch executes req and returns the paired response message. It never
// returns a transport-level error: every failure (denied, not found,
// whatever fsops reports) is encoded as a ResponseEnvelope inside the
// returned Message, because a denied operation is not a protocol failure.
func (d *Dispatcher) Dispatch(ctx context.Context, req wire.Message) wire.Message {
	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	path := pathOf(req)
	d.track(req.RequestID, req.Kind, path, cancel)
	defer d.untrack(req.RequestID)

	start := time.Now()
	opName := string(req.Kind)

	if d.metrics != nil {
		d.metrics.OperationsTotal.WithLabelValues(opName).Inc()
	}

	var resp wire.Message
	bulkErr := d.bulkhead.TryExecute(func() error {
		resp = d.dispatchGated(opCtx, req, path)
		return nil
	})
	if bulkErr != nil {
		resp = wire.Message{
			Kind:      wire.KindError,
			RequestID: req.RequestID,
			Payload:   wire.ErrorPayload{Message: "agentdispatch: too many concurrent operations"},
		}
	}

	if d.metrics != nil {
		d.metrics.OperationDuration.WithLabelValues(opName).Observe(float64(time.Since(start).Milliseconds()))
		if responseSucceeded(resp) {
			d.metrics.OperationsSuccessful.WithLabelValues(opName).Inc()
		} else {
			d.metrics.OperationsFailed.WithLabelValues(opName).Inc()
		}
	}
	return resp
}

func (d *Dispatcher) track(id uuid.UUID, kind wire.Kind, path string, cancel context.CancelFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active[id] = &activeOperation{kind: kind, path: path, startedAt: time.Now(), cancel: cancel}
}

func (d *Dispatcher) untrack(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.active, id)
}

func (d *Dispatcher) auditLog(kind wire.Kind, path string, allowed bool, reason string) {
	if d.audit == nil {
		return
	}
	decision := accessaudit.DecisionAllow
	if !allowed {
		decision = accessaudit.DecisionDeny
	}
	d.audit.LogDecision(accessaudit.Entry{
		Timestamp: time.Now(),
		Operation: string(kind),
		Path:      path,
		Decision:  decision,
		Reason:    reason,
	})
}

func responseSucceeded(m wire.Message) bool {
	switch p := m.Payload.(type) {
	case wire.ReadFileResponsePayload:
		return p.Success
	case wire.WriteFileResponsePayload:
		return p.Success
	case wire.CreateFileResponsePayload:
		return p.Success
	case wire.DeleteFileResponsePayload:
		return p.Success
	case wire.TruncateFileResponsePayload:
		return p.Success
	case wire.ListDirectoryResponsePayload:
		return p.Success
	case wire.CreateDirectoryResponsePayload:
		return p.Success
	case wire.RemoveDirectoryResponsePayload:
		return p.Success
	case wire.GetMetadataResponsePayload:
		return p.Success
	case wire.SetMetadataResponsePayload:
		return p.Success
	case wire.RenameResponsePayload:
		return p.Success
	case wire.CreateSymlinkResponsePayload:
		return p.Success
	case wire.PathExistsResponsePayload:
		return p.Success
	case wire.GetSpaceInfoResponsePayload:
		return p.Success
	default:
		return false
	}
}

func pathOf(m wire.Message) string {
	switch p := m.Payload.(type) {
	case wire.ReadFilePayload:
		return p.Path
	case wire.WriteFilePayload:
		return p.Path
	case wire.CreateFilePayload:
		return p.Path
	case wire.DeleteFilePayload:
		return p.Path
	case wire.TruncateFilePayload:
		return p.Path
	case wire.ListDirectoryPayload:
		return p.Path
	case wire.CreateDirectoryPayload:
		return p.Path
	case wire.RemoveDirectoryPayload:
		return p.Path
	case wire.GetMetadataPayload:
		return p.Path
	case wire.SetMetadataPayload:
		return p.Path
	case wire.RenamePayload:
		return p.Src
	case wire.CreateSymlinkPayload:
		return p.Path
	case wire.PathExistsPayload:
		return p.Path
	case wire.GetSpaceInfoPayload:
		return p.Path
	default:
		return ""
	}
}
