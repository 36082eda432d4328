package relayrouter

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nodewire/remotefs/pkg/relaysession"
	"github.com/nodewire/remotefs/pkg/wire"
)

func TestSelectAgentRoundRobin(t *testing.T) {
	r := New(time.Minute)
	agents := []relaysession.Session{
		{SessionID: "s1", NodeID: "agent-1"},
		{SessionID: "s2", NodeID: "agent-2"},
		{SessionID: "s3", NodeID: "agent-3"},
	}
	var picks []string
	for i := 0; i < 6; i++ {
		s, err := r.SelectAgent(agents)
		if err != nil {
			t.Fatalf("SelectAgent: %v", err)
		}
		picks = append(picks, s.NodeID)
	}
	want := []string{"agent-1", "agent-2", "agent-3", "agent-1", "agent-2", "agent-3"}
	for i := range want {
		if picks[i] != want[i] {
			t.Fatalf("picks = %v, want %v", picks, want)
		}
	}
}

func TestSelectAgentNoneAvailable(t *testing.T) {
	r := New(time.Minute)
	if _, err := r.SelectAgent(nil); err != ErrNoAgentAvailable {
		t.Fatalf("err = %v, want ErrNoAgentAvailable", err)
	}
}

func TestTrackAndResolveRequest(t *testing.T) {
	r := New(time.Minute)
	id := uuid.New()
	r.TrackRequest(id, "client-session", "agent-session", wire.KindReadFile)

	origin, err := r.ResolveResponse(id)
	if err != nil {
		t.Fatalf("ResolveResponse: %v", err)
	}
	if origin != "client-session" {
		t.Fatalf("origin = %q, want client-session", origin)
	}
	if r.PendingCount() != 0 {
		t.Fatalf("request should be untracked after resolution")
	}
}

func TestResolveResponseUnknownRequestHardErrors(t *testing.T) {
	r := New(time.Minute)
	if _, err := r.ResolveResponse(uuid.New()); err != ErrUnknownOriginator {
		t.Fatalf("err = %v, want ErrUnknownOriginator (no first-live-client fallback)", err)
	}
}

func TestResolveResponseExpiredRequestIsUnknown(t *testing.T) {
	r := New(time.Millisecond)
	id := uuid.New()
	r.TrackRequest(id, "client-session", "agent-session", wire.KindReadFile)
	time.Sleep(5 * time.Millisecond)
	if _, err := r.ResolveResponse(id); err != ErrUnknownOriginator {
		t.Fatalf("err = %v, want ErrUnknownOriginator", err)
	}
}

func TestForget(t *testing.T) {
	r := New(time.Minute)
	id := uuid.New()
	r.TrackRequest(id, "client-session", "agent-session", wire.KindReadFile)
	r.Forget(id)
	if _, err := r.ResolveResponse(id); err != ErrUnknownOriginator {
		t.Fatalf("forgotten request should resolve as unknown, got %v", err)
	}
}

func TestSweepEvictsExpiredOnly(t *testing.T) {
	r := New(time.Millisecond)
	r.TrackRequest(uuid.New(), "c1", "a1", wire.KindReadFile)
	time.Sleep(5 * time.Millisecond)
	r.TrackRequest(uuid.New(), "c2", "a1", wire.KindReadFile)

	n := r.Sweep()
	if n != 1 {
		t.Fatalf("Sweep evicted %d, want 1", n)
	}
	if r.PendingCount() != 1 {
		t.Fatalf("PendingCount = %d, want 1", r.PendingCount())
	}
}
