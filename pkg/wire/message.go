// Package wire defines the message taxonomy that crosses every link in the
// relay fabric (client↔relay and agent↔relay) and the two codecs that frame
// it on the wire.
//
// Every message is a Kind plus a typed Payload. Request-bearing kinds carry
// a RequestID; responses echo the RequestID of the request they answer;
// control kinds (auth, ping/pong, channel establishment, close, error) carry
// no RequestID unless they reference one (Error does, when it failed a
// specific request).
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Kind discriminates the message taxonomy. Using a string rather than an
// int keeps wire dumps human-readable in the textual codec.
type Kind string

const (
	KindAuthRequest        Kind = "auth_request"
	KindAuthResponse       Kind = "auth_response"
	KindEstablishChannel   Kind = "establish_channel"
	KindChannelEstablished Kind = "channel_established"
	KindReadFile           Kind = "read_file"
	KindReadFileResponse   Kind = "read_file_response"
	KindWriteFile          Kind = "write_file"
	KindWriteFileResponse  Kind = "write_file_response"
	KindCreateFile         Kind = "create_file"
	KindCreateFileResponse Kind = "create_file_response"
	KindDeleteFile         Kind = "delete_file"
	KindDeleteFileResponse Kind = "delete_file_response"
	KindTruncateFile       Kind = "truncate_file"
	KindTruncateResponse   Kind = "truncate_file_response"
	KindListDirectory      Kind = "list_directory"
	KindListDirResponse    Kind = "list_directory_response"
	KindCreateDirectory    Kind = "create_directory"
	KindCreateDirResponse  Kind = "create_directory_response"
	KindRemoveDirectory    Kind = "remove_directory"
	KindRemoveDirResponse  Kind = "remove_directory_response"
	KindGetMetadata        Kind = "get_metadata"
	KindGetMetadataResp    Kind = "get_metadata_response"
	KindSetMetadata        Kind = "set_metadata"
	KindSetMetadataResp    Kind = "set_metadata_response"
	KindRename             Kind = "rename"
	KindRenameResponse     Kind = "rename_response"
	KindCreateSymlink      Kind = "create_symlink"
	KindSymlinkResponse    Kind = "create_symlink_response"
	KindPathExists         Kind = "path_exists"
	KindPathExistsResp     Kind = "path_exists_response"
	KindGetSpaceInfo       Kind = "get_space_info"
	KindSpaceInfoResponse  Kind = "get_space_info_response"
	KindPing               Kind = "ping"
	KindPong               Kind = "pong"
	KindConnectionClose    Kind = "connection_close"
	KindError              Kind = "error"
)

// Request kinds carry a fresh, unique RequestID when created by the
// initiator. responseKinds lists the variants that echo the RequestID of
// the request they pair with. Control kinds carry neither, except Error which may
// reference one.
var responseKinds = map[Kind]bool{
	KindAuthResponse:       true,
	KindChannelEstablished: true,
	KindReadFileResponse:   true,
	KindWriteFileResponse:  true,
	KindCreateFileResponse: true,
	KindDeleteFileResponse: true,
	KindTruncateResponse:   true,
	KindListDirResponse:    true,
	KindCreateDirResponse:  true,
	KindRemoveDirResponse:  true,
	KindGetMetadataResp:    true,
	KindSetMetadataResp:    true,
	KindRenameResponse:     true,
	KindSymlinkResponse:    true,
	KindPathExistsResp:     true,
	KindSpaceInfoResponse:  true,
}

// Message is the by-value envelope that crosses task boundaries. It is
// never aliased: every hop (dispatcher → outbound queue → transport →
// inbound queue → router) copies it.
type Message struct {
	Kind      Kind
	RequestID uuid.UUID // zero value (uuid.Nil) means "absent"
	Payload   any
}

// HasRequestID reports whether m carries a meaningful RequestID.
func (m Message) HasRequestID() bool {
	return m.RequestID != uuid.Nil
}

// RequestIDOf returns the request id carried by m, for every request and
// response variant, and for Error messages that reference one. ok is false
// when the variant carries no id.
func RequestIDOf(m Message) (uuid.UUID, bool) {
	if m.HasRequestID() {
		return m.RequestID, true
	}
	return uuid.Nil, false
}

// IsResponse reports whether m's Kind is one of the response variants.
func IsResponse(m Message) bool {
	return responseKinds[m.Kind]
}

// NewRequestID mints a fresh, globally-unique 128-bit request id.
func NewRequestID() uuid.UUID {
	return uuid.New()
}

// MarshalJSON renders m as a {kind, request_id, payload} envelope so
// anything that calls encoding/json directly on a Message — notably
// wsjson.Write, which this codebase's connection managers use on the raw
// Message type — produces the same wire shape JSONCodec does.
func (m Message) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, &ErrInvalidMessage{Reason: "marshal payload: " + err.Error()}
	}
	return json.Marshal(jsonEnvelope{Kind: m.Kind, RequestID: m.RequestID, Payload: payload})
}

// UnmarshalJSON is MarshalJSON's inverse: it resolves the concrete payload
// type from the envelope's kind before decoding, the same lookup JSONCodec
// uses, so wsjson.Read produces a Message whose Payload is the correctly
// typed struct rather than a generic map.
func (m *Message) UnmarshalJSON(b []byte) error {
	var env jsonEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return &ErrInvalidMessage{Reason: "unmarshal envelope: " + err.Error()}
	}
	payload, err := payloadFor(env.Kind)
	if err != nil {
		return err
	}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, payload); err != nil {
			return &ErrInvalidMessage{Reason: "unmarshal payload: " + err.Error()}
		}
	}
	m.Kind = env.Kind
	m.RequestID = env.RequestID
	m.Payload = derefPayload(payload)
	return nil
}

// ResponseEnvelope is embedded by every response payload: a uniform
// success/error shell so the taxonomy needs no per-variant error type.
type ResponseEnvelope struct {
	Success bool   `json:"success" xdr:"success"`
	Error   string `json:"error,omitempty" xdr:"error"`
}

// Err returns the envelope's error as a Go error, or nil on success.
func (r ResponseEnvelope) Err() error {
	if r.Success {
		return nil
	}
	if r.Error == "" {
		return fmt.Errorf("request failed")
	}
	return fmt.Errorf("%s", r.Error)
}
