package accessaudit

import (
	"testing"
	"time"
)

func TestRingLoggerQueryFilters(t *testing.T) {
	l := NewRingLogger(10)
	l.LogDecision(Entry{Timestamp: time.Now(), NodeID: "agent-1", Operation: "read_file", Path: "/a", Decision: DecisionAllow})
	l.LogDecision(Entry{Timestamp: time.Now(), NodeID: "agent-2", Operation: "write_file", Path: "/b", Decision: DecisionDeny, Reason: "outside root"})

	allowed := l.Query(QueryOptions{Decision: DecisionAllow})
	if len(allowed) != 1 || allowed[0].NodeID != "agent-1" {
		t.Fatalf("Query(allow) = %+v", allowed)
	}

	byNode := l.Query(QueryOptions{NodeID: "agent-2"})
	if len(byNode) != 1 || byNode[0].Reason != "outside root" {
		t.Fatalf("Query(node) = %+v", byNode)
	}
}

func TestRingLoggerDropsOldestWhenFull(t *testing.T) {
	l := NewRingLogger(10)
	for i := 0; i < 15; i++ {
		l.LogDecision(Entry{Timestamp: time.Now(), NodeID: "agent-1", Decision: DecisionAllow})
	}
	if l.Len() > 10 {
		t.Fatalf("Len() = %d, want <= 10", l.Len())
	}
}

func TestSQLiteLoggerRoundTrip(t *testing.T) {
	l, err := NewSQLiteLogger(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteLogger: %v", err)
	}
	defer l.Close()

	now := time.Now().UTC().Truncate(time.Second)
	if err := l.LogDecisionErr(Entry{
		Timestamp: now, NodeID: "agent-1", Operation: "read_file", Path: "/a", Decision: DecisionAllow,
	}); err != nil {
		t.Fatalf("LogDecisionErr: %v", err)
	}

	entries, err := l.Query(QueryOptions{NodeID: "agent-1"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "/a" {
		t.Fatalf("Query = %+v", entries)
	}
}
