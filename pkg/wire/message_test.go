package wire

import (
	"testing"

	"github.com/google/uuid"
)

func TestMessageHasRequestID(t *testing.T) {
	m := Message{Kind: KindReadFile}
	if m.HasRequestID() {
		t.Fatalf("zero-value RequestID should report absent")
	}
	m.RequestID = NewRequestID()
	if !m.HasRequestID() {
		t.Fatalf("fresh RequestID should report present")
	}
}

func TestRequestIDOf(t *testing.T) {
	id := NewRequestID()
	m := Message{Kind: KindReadFileResponse, RequestID: id}
	got, ok := RequestIDOf(m)
	if !ok || got != id {
		t.Fatalf("RequestIDOf = %v, %v; want %v, true", got, ok, id)
	}

	m2 := Message{Kind: KindPing}
	if _, ok := RequestIDOf(m2); ok {
		t.Fatalf("ping should carry no request id")
	}
}

func TestIsResponse(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{KindReadFile, false},
		{KindReadFileResponse, true},
		{KindAuthRequest, false},
		{KindAuthResponse, true},
		{KindPing, false},
		{KindPong, false},
	}
	for _, c := range cases {
		if got := IsResponse(Message{Kind: c.kind}); got != c.want {
			t.Errorf("IsResponse(%s) = %v, want %v", c.kind, got, c.want)
		}
	}
}

func TestNewRequestIDUnique(t *testing.T) {
	a, b := NewRequestID(), NewRequestID()
	if a == b {
		t.Fatalf("two consecutive request ids collided: %s", a)
	}
	if a == uuid.Nil {
		t.Fatalf("NewRequestID produced the nil uuid")
	}
}

func TestResponseEnvelopeErr(t *testing.T) {
	ok := ResponseEnvelope{Success: true}
	if err := ok.Err(); err != nil {
		t.Fatalf("successful envelope returned error: %v", err)
	}

	failed := ResponseEnvelope{Success: false, Error: "path not found"}
	if err := failed.Err(); err == nil || err.Error() != "path not found" {
		t.Fatalf("Err() = %v, want \"path not found\"", err)
	}

	blank := ResponseEnvelope{Success: false}
	if err := blank.Err(); err == nil {
		t.Fatalf("failed envelope with no message should still produce an error")
	}
}
