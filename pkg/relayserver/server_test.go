package relayserver

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/nodewire/remotefs/pkg/relayauth"
	"github.com/nodewire/remotefs/pkg/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func dialAndAuth(t *testing.T, wsURL, nodeID, nodeType string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	authReq := wire.Message{
		Kind: wire.KindAuthRequest,
		Payload: wire.AuthRequestPayload{
			NodeID:    nodeID,
			NodeType:  nodeType,
			PublicKey: []byte(strings.Repeat("k", 32)),
		},
	}
	if err := wsjson.Write(ctx, conn, authReq); err != nil {
		t.Fatalf("write auth request: %v", err)
	}
	var authResp wire.Message
	if err := wsjson.Read(ctx, conn, &authResp); err != nil {
		t.Fatalf("read auth response: %v", err)
	}
	resp, ok := authResp.Payload.(wire.AuthResponsePayload)
	if !ok || !resp.Success {
		t.Fatalf("auth rejected: %+v", authResp.Payload)
	}
	return conn
}

func TestServerHandshakeRegistersSession(t *testing.T) {
	srv := New(Config{}, testLogger(), nil)
	ts := httptest.NewServer(srv.buildMux())
	defer ts.Close()

	wsURL := "ws" + ts.URL[4:] + "/ws"
	conn := dialAndAuth(t, wsURL, "agent-1", "agent")
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	time.Sleep(20 * time.Millisecond)
	if srv.sessions.Count() != 1 {
		t.Fatalf("sessions.Count() = %d, want 1", srv.sessions.Count())
	}
}

func TestServerRejectsUnknownNodeType(t *testing.T) {
	srv := New(Config{}, testLogger(), nil)
	ts := httptest.NewServer(srv.buildMux())
	defer ts.Close()

	wsURL := "ws" + ts.URL[4:] + "/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	wsjson.Write(ctx, conn, wire.Message{
		Kind: wire.KindAuthRequest,
		Payload: wire.AuthRequestPayload{
			NodeID:    "bad-node",
			NodeType:  "robot",
			PublicKey: []byte("k"),
		},
	})
	var resp wire.Message
	if err := wsjson.Read(ctx, conn, &resp); err != nil {
		t.Fatalf("read auth response: %v", err)
	}
	payload := resp.Payload.(wire.AuthResponsePayload)
	if payload.Success {
		t.Fatal("expected authentication to be rejected for unknown node type")
	}
}

func TestServerRoutesRequestToAgentAndResponseBack(t *testing.T) {
	srv := New(Config{}, testLogger(), nil)
	ts := httptest.NewServer(srv.buildMux())
	defer ts.Close()
	wsURL := "ws" + ts.URL[4:] + "/ws"

	agentConn := dialAndAuth(t, wsURL, "agent-1", "agent")
	defer agentConn.Close(websocket.StatusNormalClosure, "test done")
	clientConn := dialAndAuth(t, wsURL, "client-1", "client")
	defer clientConn.Close(websocket.StatusNormalClosure, "test done")

	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reqID := wire.NewRequestID()
	readReq := wire.Message{
		Kind:      wire.KindReadFile,
		RequestID: reqID,
		Payload:   wire.ReadFilePayload{Path: "/tmp/a.txt"},
	}
	if err := wsjson.Write(ctx, clientConn, readReq); err != nil {
		t.Fatalf("client write: %v", err)
	}

	var forwarded wire.Message
	if err := wsjson.Read(ctx, agentConn, &forwarded); err != nil {
		t.Fatalf("agent read: %v", err)
	}
	if forwarded.Kind != wire.KindReadFile || forwarded.RequestID != reqID {
		t.Fatalf("agent received unexpected message: %+v", forwarded)
	}

	resp := wire.Message{
		Kind:      wire.KindReadFileResponse,
		RequestID: reqID,
		Payload: wire.ReadFileResponsePayload{
			ResponseEnvelope: wire.ResponseEnvelope{Success: true},
			Data:             []byte("hello"),
		},
	}
	if err := wsjson.Write(ctx, agentConn, resp); err != nil {
		t.Fatalf("agent write response: %v", err)
	}

	var backToClient wire.Message
	if err := wsjson.Read(ctx, clientConn, &backToClient); err != nil {
		t.Fatalf("client read response: %v", err)
	}
	payload, ok := backToClient.Payload.(wire.ReadFileResponsePayload)
	if !ok || !payload.Success || string(payload.Data) != "hello" {
		t.Fatalf("unexpected response payload: %+v", backToClient.Payload)
	}
}

func TestServerRespondsWithRoutingErrorWhenNoAgentAvailable(t *testing.T) {
	srv := New(Config{}, testLogger(), nil)
	ts := httptest.NewServer(srv.buildMux())
	defer ts.Close()
	wsURL := "ws" + ts.URL[4:] + "/ws"

	clientConn := dialAndAuth(t, wsURL, "client-1", "client")
	defer clientConn.Close(websocket.StatusNormalClosure, "test done")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reqID := wire.NewRequestID()
	if err := wsjson.Write(ctx, clientConn, wire.Message{
		Kind:      wire.KindReadFile,
		RequestID: reqID,
		Payload:   wire.ReadFilePayload{Path: "/tmp/a.txt"},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var resp wire.Message
	if err := wsjson.Read(ctx, clientConn, &resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Kind != wire.KindError {
		t.Fatalf("Kind = %v, want KindError", resp.Kind)
	}
}

func TestServerHealthEndpoint(t *testing.T) {
	srv := New(Config{}, testLogger(), nil)
	ts := httptest.NewServer(srv.buildMux())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "OK" {
		t.Fatalf("health body = %q, want %q", body, "OK")
	}
}

func TestServerStatsEndpointIsPlainText(t *testing.T) {
	srv := New(Config{}, testLogger(), nil)
	ts := httptest.NewServer(srv.buildMux())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/stats")
	if err != nil {
		t.Fatalf("stats request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestServerAllowListRejectsUnknownNode(t *testing.T) {
	srv := New(Config{AuthPolicy: relayauth.Policy{AllowedNodeIDs: map[string]bool{"agent-1": true}}}, testLogger(), nil)
	ts := httptest.NewServer(srv.buildMux())
	defer ts.Close()
	wsURL := "ws" + ts.URL[4:] + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	wsjson.Write(ctx, conn, wire.Message{
		Kind: wire.KindAuthRequest,
		Payload: wire.AuthRequestPayload{
			NodeID:    "intruder",
			NodeType:  "agent",
			PublicKey: make([]byte, 32),
		},
	})
	var resp wire.Message
	wsjson.Read(ctx, conn, &resp)
	payload := resp.Payload.(wire.AuthResponsePayload)
	if payload.Success {
		t.Fatal("expected node_id not on allow list to be rejected")
	}
}
