package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestWriteStatsPlainTextIncludesIncrementedCounters(t *testing.T) {
	r := New()
	r.AllowedRequests.Add(3)
	r.RoutedMessages.WithLabelValues("read_file").Inc()

	rec := httptest.NewRecorder()
	if err := r.WriteStatsPlainText(rec); err != nil {
		t.Fatalf("WriteStatsPlainText: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "remotefs_agent_access_allowed_total 3") {
		t.Fatalf("body missing allowed counter: %s", body)
	}
	if !strings.Contains(body, `remotefs_relay_routed_messages_total{kind="read_file"} 1`) {
		t.Fatalf("body missing labeled counter: %s", body)
	}
}

func TestRegistryIsolated(t *testing.T) {
	a := New()
	b := New()
	a.FailedRoutes.Inc()

	var m dto.Metric
	if err := b.FailedRoutes.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if m.GetCounter().GetValue() != 0 {
		t.Fatalf("second registry's counter should be unaffected by the first, got %v", m.GetCounter().GetValue())
	}
}
