package wire

import "fmt"

// DefaultMaxMessageSize bounds a single encoded frame. Callers may override
// per link via WithMaxMessageSize; the relay advertises its own limit in
// RelayInfo.MaxMessageSize at auth time.
const DefaultMaxMessageSize = 16 * 1024 * 1024

// Codec frames a Message to and from bytes. The two implementations,
// JSONCodec and XDRCodec, are interchangeable: a link picks one at auth
// time per its frame type and never switches mid-session.
type Codec interface {
	// Encode serializes msg. It returns an error if msg.Payload cannot be
	// serialized or the encoded frame exceeds MaxMessageSize; it does not
	// check msg.Kind or whether the payload's type matches it.
	Encode(msg Message) ([]byte, error)

	// Decode parses b into a Message. It returns an error before touching
	// payload bytes if len(b) exceeds the codec's configured max size.
	Decode(b []byte) (Message, error)

	// MaxMessageSize returns the configured limit enforced by Decode.
	MaxMessageSize() int
}

// FrameType identifies which transport frame carried a message, which in
// turn selects the codec: textual frames are JSON, binary frames are XDR.
type FrameType int

const (
	FrameTypeText FrameType = iota
	FrameTypeBinary
)

// EncodingOf returns the codec implementation that owns ft. It is the single
// place link setup consults when fixing a connection's codec at auth time.
func EncodingOf(ft FrameType, maxMessageSize int) (Codec, error) {
	switch ft {
	case FrameTypeText:
		return NewJSONCodec(maxMessageSize), nil
	case FrameTypeBinary:
		return NewXDRCodec(maxMessageSize), nil
	default:
		return nil, fmt.Errorf("wire: unknown frame type %d", ft)
	}
}

// ErrMessageTooLarge is returned by Decode when a frame exceeds the codec's
// configured MaxMessageSize. It is link-fatal: the caller should close the
// connection rather than attempt recovery.
type ErrMessageTooLarge struct {
	Size, Max int
}

func (e *ErrMessageTooLarge) Error() string {
	return fmt.Sprintf("wire: message of %d bytes exceeds max %d", e.Size, e.Max)
}

// ErrInvalidMessage wraps any decode failure that isn't a size violation:
// malformed framing, unknown kind, or a payload that doesn't unmarshal into
// the shape Kind expects. Also link-fatal.
type ErrInvalidMessage struct {
	Reason string
}

func (e *ErrInvalidMessage) Error() string {
	return fmt.Sprintf("wire: invalid message: %s", e.Reason)
}

// payloadFor returns a pointer to a fresh zero value of the Go type that
// Kind's payload takes, so a codec can unmarshal directly into it. Control
// kinds with no payload (Ping carries one, Close carries one; none are
// payload-less in this taxonomy) still route through here uniformly.
func payloadFor(k Kind) (any, error) {
	switch k {
	case KindAuthRequest:
		return &AuthRequestPayload{}, nil
	case KindAuthResponse:
		return &AuthResponsePayload{}, nil
	case KindEstablishChannel:
		return &EstablishChannelPayload{}, nil
	case KindChannelEstablished:
		return &ChannelEstablishedPayload{}, nil
	case KindReadFile:
		return &ReadFilePayload{}, nil
	case KindReadFileResponse:
		return &ReadFileResponsePayload{}, nil
	case KindWriteFile:
		return &WriteFilePayload{}, nil
	case KindWriteFileResponse:
		return &WriteFileResponsePayload{}, nil
	case KindCreateFile:
		return &CreateFilePayload{}, nil
	case KindCreateFileResponse:
		return &CreateFileResponsePayload{}, nil
	case KindDeleteFile:
		return &DeleteFilePayload{}, nil
	case KindDeleteFileResponse:
		return &DeleteFileResponsePayload{}, nil
	case KindTruncateFile:
		return &TruncateFilePayload{}, nil
	case KindTruncateResponse:
		return &TruncateFileResponsePayload{}, nil
	case KindListDirectory:
		return &ListDirectoryPayload{}, nil
	case KindListDirResponse:
		return &ListDirectoryResponsePayload{}, nil
	case KindCreateDirectory:
		return &CreateDirectoryPayload{}, nil
	case KindCreateDirResponse:
		return &CreateDirectoryResponsePayload{}, nil
	case KindRemoveDirectory:
		return &RemoveDirectoryPayload{}, nil
	case KindRemoveDirResponse:
		return &RemoveDirectoryResponsePayload{}, nil
	case KindGetMetadata:
		return &GetMetadataPayload{}, nil
	case KindGetMetadataResp:
		return &GetMetadataResponsePayload{}, nil
	case KindSetMetadata:
		return &SetMetadataPayload{}, nil
	case KindSetMetadataResp:
		return &SetMetadataResponsePayload{}, nil
	case KindRename:
		return &RenamePayload{}, nil
	case KindRenameResponse:
		return &RenameResponsePayload{}, nil
	case KindCreateSymlink:
		return &CreateSymlinkPayload{}, nil
	case KindSymlinkResponse:
		return &CreateSymlinkResponsePayload{}, nil
	case KindPathExists:
		return &PathExistsPayload{}, nil
	case KindPathExistsResp:
		return &PathExistsResponsePayload{}, nil
	case KindGetSpaceInfo:
		return &GetSpaceInfoPayload{}, nil
	case KindSpaceInfoResponse:
		return &GetSpaceInfoResponsePayload{}, nil
	case KindPing:
		return &PingPayload{}, nil
	case KindPong:
		return &PongPayload{}, nil
	case KindConnectionClose:
		return &ConnectionClosePayload{}, nil
	case KindError:
		return &ErrorPayload{}, nil
	default:
		return nil, &ErrInvalidMessage{Reason: fmt.Sprintf("unknown kind %q", k)}
	}
}
