package clientpool

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/nodewire/remotefs/pkg/rferrors"
	"github.com/nodewire/remotefs/pkg/wire"
)

// Dial authenticates to relayURL as a client node and returns a Connection
// ready to add to a Pool. The caller is responsible for running
// conn.ReceiveLoop in its own goroutine so responses get delivered.
// tlsConfig is optional; when nil the connection dials plaintext.
func Dial(ctx context.Context, relayURL, nodeID string, publicKey []byte, capabilities []string, weight int, tlsConfig *tls.Config) (*Connection, error) {
	var dialOpts *websocket.DialOptions
	if tlsConfig != nil {
		dialOpts = &websocket.DialOptions{
			HTTPClient: &http.Client{Transport: &http.Transport{TLSClientConfig: tlsConfig}},
		}
	}
	wsConn, _, err := websocket.Dial(ctx, relayURL, dialOpts)
	if err != nil {
		return nil, rferrors.Wrap(rferrors.ClassConnection, "dial relay", err)
	}

	authReq := wire.Message{
		Kind:      wire.KindAuthRequest,
		RequestID: wire.NewRequestID(),
		Payload: wire.AuthRequestPayload{
			NodeID:       nodeID,
			NodeType:     "client",
			PublicKey:    publicKey,
			Capabilities: capabilities,
		},
	}
	if err := wsjson.Write(ctx, wsConn, authReq); err != nil {
		wsConn.CloseNow()
		return nil, rferrors.Wrap(rferrors.ClassConnection, "send auth request", err)
	}
	var authResp wire.Message
	if err := wsjson.Read(ctx, wsConn, &authResp); err != nil {
		wsConn.CloseNow()
		return nil, rferrors.Wrap(rferrors.ClassConnection, "read auth response", err)
	}
	resp, ok := authResp.Payload.(wire.AuthResponsePayload)
	if !ok || !resp.Success {
		wsConn.CloseNow()
		return nil, rferrors.New(rferrors.ClassAuthentication, "relay rejected client authentication")
	}

	return newConnection(nodeID, weight, wsConn), nil
}

// ReceiveLoop reads response messages off the connection and delivers each
// to the Send call awaiting its request id, until ctx is done or the
// underlying transport errors. It must run in its own goroutine for every
// live Connection.
func (c *Connection) ReceiveLoop(ctx context.Context, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		var msg wire.Message
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			return fmt.Errorf("clientpool: receive loop for %s: %w", c.NodeID, err)
		}
		if msg.Kind == wire.KindConnectionClose {
			return fmt.Errorf("clientpool: relay closed connection for %s", c.NodeID)
		}
		c.deliver(msg)
	}
}
