package wire

import (
	"bytes"

	"github.com/google/uuid"
	xdr "github.com/rasky/go-xdr/xdr2"
)

// XDRCodec is the compact binary encoding, used over binary frames for bulk
// data transfer (file contents in particular). The wire shape is an outer
// envelope (kind, request id, opaque payload) wrapping an inner XDR encoding
// of the kind-specific payload struct, so the envelope can be parsed without
// knowing the payload's shape in advance.
type XDRCodec struct {
	maxMessageSize int
}

// NewXDRCodec builds an XDRCodec enforcing maxMessageSize bytes per frame.
// A maxMessageSize <= 0 falls back to DefaultMaxMessageSize.
func NewXDRCodec(maxMessageSize int) *XDRCodec {
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	return &XDRCodec{maxMessageSize: maxMessageSize}
}

func (c *XDRCodec) MaxMessageSize() int { return c.maxMessageSize }

type xdrEnvelope struct {
	Kind      string
	RequestID [16]byte
	Payload   []byte
}

func (c *XDRCodec) Encode(msg Message) ([]byte, error) {
	var payloadBuf bytes.Buffer
	if _, err := xdr.Marshal(&payloadBuf, msg.Payload); err != nil {
		return nil, &ErrInvalidMessage{Reason: "marshal payload: " + err.Error()}
	}

	env := xdrEnvelope{
		Kind:      string(msg.Kind),
		RequestID: msg.RequestID,
		Payload:   payloadBuf.Bytes(),
	}
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, &env); err != nil {
		return nil, &ErrInvalidMessage{Reason: "marshal envelope: " + err.Error()}
	}
	if buf.Len() > c.maxMessageSize {
		return nil, &ErrMessageTooLarge{Size: buf.Len(), Max: c.maxMessageSize}
	}
	return buf.Bytes(), nil
}

func (c *XDRCodec) Decode(b []byte) (Message, error) {
	if len(b) > c.maxMessageSize {
		return Message{}, &ErrMessageTooLarge{Size: len(b), Max: c.maxMessageSize}
	}
	var env xdrEnvelope
	if _, err := xdr.Unmarshal(bytes.NewReader(b), &env); err != nil {
		return Message{}, &ErrInvalidMessage{Reason: "unmarshal envelope: " + err.Error()}
	}
	kind := Kind(env.Kind)
	payload, err := payloadFor(kind)
	if err != nil {
		return Message{}, err
	}
	if len(env.Payload) > 0 {
		if _, err := xdr.Unmarshal(bytes.NewReader(env.Payload), payload); err != nil {
			return Message{}, &ErrInvalidMessage{Reason: "unmarshal payload: " + err.Error()}
		}
	}
	return Message{
		Kind:      kind,
		RequestID: uuid.UUID(env.RequestID),
		Payload:   derefPayload(payload),
	}, nil
}
