// Package metrics wires every counter the relay, agent, and client pool
// accumulate into a single Prometheus registry. The vector/histogram shape
// and naming convention follow dittofs's pkg/metrics/prometheus package
// (promauto.With(reg).New*Vec), narrowed to one package rather than
// per-subsystem files since this project's metric surface is far smaller.
package metrics

import (
	"fmt"
	"net/http"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles every metric this project emits, built against a single
// prometheus.Registerer so /stats can walk it deterministically.
type Registry struct {
	reg *prometheus.Registry

	RoutedMessages  *prometheus.CounterVec // labels: kind
	FailedRoutes    prometheus.Counter
	ActiveSessions  *prometheus.GaugeVec // labels: node_type
	AllowedRequests prometheus.Counter
	DeniedRequests  prometheus.Counter
	PathViolations  prometheus.Counter
	SizeViolations  prometheus.Counter

	OperationsTotal      *prometheus.CounterVec // labels: operation
	OperationsSuccessful *prometheus.CounterVec
	OperationsFailed     *prometheus.CounterVec
	OperationDuration    *prometheus.HistogramVec
	BytesRead            prometheus.Counter
	BytesWritten         prometheus.Counter

	ReconnectionCount prometheus.Counter
	PendingRequests   prometheus.Gauge
}

// New builds a Registry with all metrics registered against a fresh
// prometheus.Registry (not the global DefaultRegisterer, so multiple
// Registry instances can coexist in tests without collector collisions).
func New() *Registry {
	reg := prometheus.NewRegistry()
	return &Registry{
		reg: reg,
		RoutedMessages: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "remotefs_relay_routed_messages_total",
			Help: "Messages the relay successfully routed, by kind.",
		}, []string{"kind"}),
		FailedRoutes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "remotefs_relay_failed_routes_total",
			Help: "Messages the relay could not route (unknown originator, no agent available).",
		}),
		ActiveSessions: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "remotefs_relay_active_sessions",
			Help: "Currently connected sessions, by node type.",
		}, []string{"node_type"}),
		AllowedRequests: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "remotefs_agent_access_allowed_total",
			Help: "Operations the access gate permitted.",
		}),
		DeniedRequests: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "remotefs_agent_access_denied_total",
			Help: "Operations the access gate rejected.",
		}),
		PathViolations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "remotefs_agent_access_path_violations_total",
			Help: "Rejections caused by path policy (outside root, denied prefix, traversal, symlink).",
		}),
		SizeViolations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "remotefs_agent_access_size_violations_total",
			Help: "Rejections caused by the maximum file size cap.",
		}),
		OperationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "remotefs_agent_operations_total",
			Help: "Filesystem operations dispatched, by operation kind.",
		}, []string{"operation"}),
		OperationsSuccessful: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "remotefs_agent_operations_successful_total",
			Help: "Filesystem operations that completed without error, by operation kind.",
		}, []string{"operation"}),
		OperationsFailed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "remotefs_agent_operations_failed_total",
			Help: "Filesystem operations that returned an error, by operation kind.",
		}, []string{"operation"}),
		OperationDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "remotefs_agent_operation_duration_milliseconds",
			Help:    "Filesystem operation latency in milliseconds, by operation kind.",
			Buckets: []float64{0.5, 1, 5, 10, 50, 100, 500, 1000, 5000},
		}, []string{"operation"}),
		BytesRead: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "remotefs_agent_bytes_read_total",
			Help: "Bytes served by ReadFile across all operations.",
		}),
		BytesWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "remotefs_agent_bytes_written_total",
			Help: "Bytes accepted by WriteFile across all operations.",
		}),
		ReconnectionCount: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "remotefs_agent_reconnections_total",
			Help: "Times the agent's connection manager went back to reconnecting after a failed or dropped link.",
		}),
		PendingRequests: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "remotefs_relay_pending_requests",
			Help: "Requests the relay router is currently tracking awaiting a response.",
		}),
	}
}

// Registerer exposes the underlying registry for tests that need to
// register additional ad-hoc collectors.
func (r *Registry) Registerer() prometheus.Registerer { return r.reg }

// WriteStatsPlainText renders every counter as a plain-text "name value"
// dump, one per line. This is deliberately not promhttp.Handler()'s
// exposition format: the relay's /stats endpoint is documented as a plain
// counter dump, not a scrape target, so it stays simple enough to read by
// eye over curl.
func (r *Registry) WriteStatsPlainText(w http.ResponseWriter) error {
	families, err := r.reg.Gather()
	if err != nil {
		return fmt.Errorf("metrics: gather: %w", err)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			if len(m.GetLabel()) > 0 {
				for _, l := range m.GetLabel() {
					name += fmt.Sprintf("{%s=%q}", l.GetName(), l.GetValue())
				}
			}
			value := metricValue(m)
			if _, err := fmt.Fprintf(w, "%s %v\n", name, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func metricValue(m *dto.Metric) float64 {
	switch {
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetHistogram() != nil:
		return m.GetHistogram().GetSampleSum()
	default:
		return 0
	}
}
