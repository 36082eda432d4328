package wire

import "time"

// FileMetadata carries size, three timestamps, permission bits, uid/gid,
// the three type booleans, and a symlink target. Timestamps
// are unix milliseconds rather than time.Time so the XDR codec's
// reflection-based marshaling (which only understands primitive field
// types) can encode them without a custom codec path.
type FileMetadata struct {
	Size             uint64 `json:"size" xdr:"size"`
	ModifiedAtMillis int64  `json:"modified_at_ms" xdr:"modified_at_ms"`
	AccessedAtMillis int64  `json:"accessed_at_ms" xdr:"accessed_at_ms"`
	CreatedAtMillis  int64  `json:"created_at_ms" xdr:"created_at_ms"`
	Mode             uint32 `json:"mode" xdr:"mode"`
	UID              uint32 `json:"uid" xdr:"uid"`
	GID              uint32 `json:"gid" xdr:"gid"`
	IsDir            bool   `json:"is_dir" xdr:"is_dir"`
	IsFile           bool   `json:"is_file" xdr:"is_file"`
	IsSymlink        bool   `json:"is_symlink" xdr:"is_symlink"`
	LinkTarget       string `json:"link_target,omitempty" xdr:"link_target"`
}

// ModifiedAt returns ModifiedAtMillis as a time.Time in local time.
func (m FileMetadata) ModifiedAt() time.Time { return time.UnixMilli(m.ModifiedAtMillis) }

// AccessedAt returns AccessedAtMillis as a time.Time in local time.
func (m FileMetadata) AccessedAt() time.Time { return time.UnixMilli(m.AccessedAtMillis) }

// CreatedAt returns CreatedAtMillis as a time.Time in local time.
func (m FileMetadata) CreatedAt() time.Time { return time.UnixMilli(m.CreatedAtMillis) }

// DirEntry is a name + FileMetadata pair.
type DirEntry struct {
	Name     string       `json:"name" xdr:"name"`
	Metadata FileMetadata `json:"metadata" xdr:"metadata"`
}

// AuthRequestPayload is the first message on every link.
type AuthRequestPayload struct {
	NodeID       string   `json:"node_id" xdr:"node_id"`
	NodeType     string   `json:"node_type" xdr:"node_type"` // "client" | "agent"
	PublicKey    []byte   `json:"public_key" xdr:"public_key"`
	Capabilities []string `json:"capabilities" xdr:"capabilities"`
}

// RelayInfo is carried in a successful AuthResponse.
type RelayInfo struct {
	RelayID           string   `json:"relay_id" xdr:"relay_id"`
	Capabilities      []string `json:"capabilities" xdr:"capabilities"`
	MaxMessageSize    uint32   `json:"max_message_size" xdr:"max_message_size"`
	HeartbeatInterval int64    `json:"heartbeat_interval_ms" xdr:"heartbeat_interval_ms"`
}

// AuthResponsePayload answers AuthRequestPayload.
type AuthResponsePayload struct {
	ResponseEnvelope
	SessionToken string    `json:"session_token,omitempty" xdr:"session_token"`
	RelayInfo    RelayInfo `json:"relay_info" xdr:"relay_info"`
}

// EstablishChannelPayload asks the relay to route to an explicit peer.
type EstablishChannelPayload struct {
	TargetNodeID string `json:"target_node" xdr:"target_node"`
}

// ChannelEstablishedPayload confirms a channel to the original initiator.
type ChannelEstablishedPayload struct {
	ResponseEnvelope
	PeerNodeID string `json:"peer_node_id" xdr:"peer_node_id"`
}

// ReadFilePayload requests bytes from an agent-owned file.
type ReadFilePayload struct {
	Path   string `json:"path" xdr:"path"`
	Offset uint64 `json:"offset" xdr:"offset"`
	Length uint64 `json:"length,omitempty" xdr:"length"` // 0 = full remainder
}

// ReadFileResponsePayload carries the bytes actually read.
type ReadFileResponsePayload struct {
	ResponseEnvelope
	Data      []byte `json:"data,omitempty" xdr:"data"`
	BytesRead uint64 `json:"bytes_read" xdr:"bytes_read"`
}

// WriteFilePayload requests a write, optionally at an offset, optionally
// creating the file and its parents.
type WriteFilePayload struct {
	Path   string `json:"path" xdr:"path"`
	Data   []byte `json:"data" xdr:"data"`
	Offset uint64 `json:"offset,omitempty" xdr:"offset"`
	Create bool   `json:"create,omitempty" xdr:"create"`
	Sync   bool   `json:"sync,omitempty" xdr:"sync"`
}

// WriteFileResponsePayload confirms bytes written.
type WriteFileResponsePayload struct {
	ResponseEnvelope
	BytesWritten uint64 `json:"bytes_written" xdr:"bytes_written"`
}

// CreateFilePayload creates an empty file.
type CreateFilePayload struct {
	Path string `json:"path" xdr:"path"`
	Mode uint32 `json:"mode,omitempty" xdr:"mode"`
}

// CreateFileResponsePayload answers CreateFilePayload.
type CreateFileResponsePayload struct {
	ResponseEnvelope
}

// DeleteFilePayload removes a regular file.
type DeleteFilePayload struct {
	Path string `json:"path" xdr:"path"`
}

// DeleteFileResponsePayload answers DeleteFilePayload.
type DeleteFileResponsePayload struct {
	ResponseEnvelope
}

// TruncateFilePayload truncates or extends a file to Size bytes.
type TruncateFilePayload struct {
	Path string `json:"path" xdr:"path"`
	Size uint64 `json:"size" xdr:"size"`
}

// TruncateFileResponsePayload answers TruncateFilePayload.
type TruncateFileResponsePayload struct {
	ResponseEnvelope
}

// ListDirectoryPayload lists a directory's immediate children.
type ListDirectoryPayload struct {
	Path string `json:"path" xdr:"path"`
}

// ListDirectoryResponsePayload carries one DirEntry per child.
type ListDirectoryResponsePayload struct {
	ResponseEnvelope
	Entries []DirEntry `json:"entries,omitempty" xdr:"entries"`
}

// CreateDirectoryPayload creates a directory, optionally recursively.
type CreateDirectoryPayload struct {
	Path      string `json:"path" xdr:"path"`
	Recursive bool   `json:"recursive,omitempty" xdr:"recursive"`
	Mode      uint32 `json:"mode,omitempty" xdr:"mode"`
}

// CreateDirectoryResponsePayload answers CreateDirectoryPayload.
type CreateDirectoryResponsePayload struct {
	ResponseEnvelope
}

// RemoveDirectoryPayload removes a directory, optionally recursively.
type RemoveDirectoryPayload struct {
	Path      string `json:"path" xdr:"path"`
	Recursive bool   `json:"recursive,omitempty" xdr:"recursive"`
}

// RemoveDirectoryResponsePayload answers RemoveDirectoryPayload.
type RemoveDirectoryResponsePayload struct {
	ResponseEnvelope
}

// GetMetadataPayload stats a path.
type GetMetadataPayload struct {
	Path           string `json:"path" xdr:"path"`
	FollowSymlinks bool   `json:"follow_symlinks,omitempty" xdr:"follow_symlinks"`
}

// GetMetadataResponsePayload carries the resulting metadata.
type GetMetadataResponsePayload struct {
	ResponseEnvelope
	Metadata FileMetadata `json:"metadata" xdr:"metadata"`
}

// SetMetadataPayload updates mutable attributes of a path.
type SetMetadataPayload struct {
	Path string  `json:"path" xdr:"path"`
	Mode *uint32 `json:"mode,omitempty" xdr:"mode"`
	UID  *uint32 `json:"uid,omitempty" xdr:"uid"`
	GID  *uint32 `json:"gid,omitempty" xdr:"gid"`
}

// SetMetadataResponsePayload answers SetMetadataPayload.
type SetMetadataResponsePayload struct {
	ResponseEnvelope
}

// RenamePayload renames/moves Src to Dst.
type RenamePayload struct {
	Src string `json:"src" xdr:"src"`
	Dst string `json:"dst" xdr:"dst"`
}

// RenameResponsePayload answers RenamePayload.
type RenameResponsePayload struct {
	ResponseEnvelope
}

// CreateSymlinkPayload creates a symlink at Path pointing at Target.
type CreateSymlinkPayload struct {
	Path   string `json:"path" xdr:"path"`
	Target string `json:"target" xdr:"target"`
}

// CreateSymlinkResponsePayload answers CreateSymlinkPayload.
type CreateSymlinkResponsePayload struct {
	ResponseEnvelope
}

// PathExistsPayload asks whether a path exists.
type PathExistsPayload struct {
	Path string `json:"path" xdr:"path"`
}

// PathExistsResponsePayload answers PathExistsPayload.
type PathExistsResponsePayload struct {
	ResponseEnvelope
	Exists bool `json:"exists" xdr:"exists"`
}

// GetSpaceInfoPayload asks for filesystem capacity at Path.
type GetSpaceInfoPayload struct {
	Path string `json:"path" xdr:"path"`
}

// GetSpaceInfoResponsePayload carries capacity figures, in bytes.
type GetSpaceInfoResponsePayload struct {
	ResponseEnvelope
	TotalBytes uint64 `json:"total_bytes" xdr:"total_bytes"`
	FreeBytes  uint64 `json:"free_bytes" xdr:"free_bytes"`
	UsedBytes  uint64 `json:"used_bytes" xdr:"used_bytes"`
}

// PingPayload is sent by either party to keep a link alive.
type PingPayload struct {
	TimestampUnixMilli int64 `json:"timestamp" xdr:"timestamp"`
}

// PongPayload must be returned for every Ping received.
type PongPayload struct {
	TimestampUnixMilli         int64 `json:"timestamp" xdr:"timestamp"`
	OriginalTimestampUnixMilli int64 `json:"original_timestamp" xdr:"original_timestamp"`
}

// ConnectionClosePayload announces an intentional close.
type ConnectionClosePayload struct {
	Reason string `json:"reason,omitempty" xdr:"reason"`
}

// ErrorPayload carries a protocol- or routing-level error. RequestID on the
// enclosing Message, when present, ties it to the request that failed.
type ErrorPayload struct {
	Message string `json:"message" xdr:"message"`
}
