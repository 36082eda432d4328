package agentdispatch

import (
	"context"
	"time"

	"github.com/nodewire/remotefs/pkg/accessgate"
	"github.com/nodewire/remotefs/pkg/fsops"
	"github.com/nodewire/remotefs/pkg/wire"
)

// dispatchGated runs req's access-gate check and, if permitted, the
// matching fsops call, recording both to the audit log. One switch arm per
// operation kind keeps each contract (gate kind, fsops call, response
// shape) visible in one place rather than split across a generic
// reflection-driven dispatch.
func (d *Dispatcher) dispatchGated(ctx context.Context, req wire.Message, path string) wire.Message {
	switch p := req.Payload.(type) {
	case wire.ReadFilePayload:
		if err := d.gate.Check(accessgate.OpRead, p.Path); err != nil {
			d.auditLog(req.Kind, path, false, err.Error())
			return envelope(req, wire.KindReadFileResponse, wire.ReadFileResponsePayload{ResponseEnvelope: fail(err)})
		}
		d.auditLog(req.Kind, path, true, "")
		data, err := fsops.ReadFile(p.Path, p.Offset, p.Length)
		if err != nil {
			return envelope(req, wire.KindReadFileResponse, wire.ReadFileResponsePayload{ResponseEnvelope: fail(err)})
		}
		if d.metrics != nil {
			d.metrics.BytesRead.Add(float64(len(data)))
		}
		return envelope(req, wire.KindReadFileResponse, wire.ReadFileResponsePayload{
			ResponseEnvelope: ok(), Data: data, BytesRead: uint64(len(data)),
		})

	case wire.WriteFilePayload:
		if err := d.gate.Check(accessgate.OpWrite, p.Path); err != nil {
			d.auditLog(req.Kind, path, false, err.Error())
			return envelope(req, wire.KindWriteFileResponse, wire.WriteFileResponsePayload{ResponseEnvelope: fail(err)})
		}
		if err := d.gate.CheckSize(p.Offset + uint64(len(p.Data))); err != nil {
			d.auditLog(req.Kind, path, false, err.Error())
			return envelope(req, wire.KindWriteFileResponse, wire.WriteFileResponsePayload{ResponseEnvelope: fail(err)})
		}
		d.auditLog(req.Kind, path, true, "")
		n, err := fsops.WriteFile(p.Path, p.Data, p.Offset, p.Create, p.Sync)
		if err != nil {
			return envelope(req, wire.KindWriteFileResponse, wire.WriteFileResponsePayload{ResponseEnvelope: fail(err)})
		}
		if d.metrics != nil {
			d.metrics.BytesWritten.Add(float64(n))
		}
		return envelope(req, wire.KindWriteFileResponse, wire.WriteFileResponsePayload{ResponseEnvelope: ok(), BytesWritten: uint64(n)})

	case wire.CreateFilePayload:
		if err := d.gate.Check(accessgate.OpCreate, p.Path); err != nil {
			d.auditLog(req.Kind, path, false, err.Error())
			return envelope(req, wire.KindCreateFileResponse, wire.CreateFileResponsePayload{ResponseEnvelope: fail(err)})
		}
		d.auditLog(req.Kind, path, true, "")
		err := fsops.CreateFile(p.Path, p.Mode)
		return envelope(req, wire.KindCreateFileResponse, wire.CreateFileResponsePayload{ResponseEnvelope: resultOf(err)})

	case wire.DeleteFilePayload:
		if err := d.gate.Check(accessgate.OpDelete, p.Path); err != nil {
			d.auditLog(req.Kind, path, false, err.Error())
			return envelope(req, wire.KindDeleteFileResponse, wire.DeleteFileResponsePayload{ResponseEnvelope: fail(err)})
		}
		d.auditLog(req.Kind, path, true, "")
		err := fsops.DeleteFile(p.Path)
		return envelope(req, wire.KindDeleteFileResponse, wire.DeleteFileResponsePayload{ResponseEnvelope: resultOf(err)})

	case wire.TruncateFilePayload:
		if err := d.gate.Check(accessgate.OpWrite, p.Path); err != nil {
			d.auditLog(req.Kind, path, false, err.Error())
			return envelope(req, wire.KindTruncateResponse, wire.TruncateFileResponsePayload{ResponseEnvelope: fail(err)})
		}
		if err := d.gate.CheckSize(p.Size); err != nil {
			d.auditLog(req.Kind, path, false, err.Error())
			return envelope(req, wire.KindTruncateResponse, wire.TruncateFileResponsePayload{ResponseEnvelope: fail(err)})
		}
		d.auditLog(req.Kind, path, true, "")
		err := fsops.TruncateFile(p.Path, p.Size)
		return envelope(req, wire.KindTruncateResponse, wire.TruncateFileResponsePayload{ResponseEnvelope: resultOf(err)})

	case wire.ListDirectoryPayload:
		if err := d.gate.Check(accessgate.OpList, p.Path); err != nil {
			d.auditLog(req.Kind, path, false, err.Error())
			return envelope(req, wire.KindListDirResponse, wire.ListDirectoryResponsePayload{ResponseEnvelope: fail(err)})
		}
		d.auditLog(req.Kind, path, true, "")
		entries, err := fsops.ListDirectory(p.Path)
		if err != nil {
			return envelope(req, wire.KindListDirResponse, wire.ListDirectoryResponsePayload{ResponseEnvelope: fail(err)})
		}
		return envelope(req, wire.KindListDirResponse, wire.ListDirectoryResponsePayload{ResponseEnvelope: ok(), Entries: entries})

	case wire.CreateDirectoryPayload:
		if err := d.gate.Check(accessgate.OpCreate, p.Path); err != nil {
			d.auditLog(req.Kind, path, false, err.Error())
			return envelope(req, wire.KindCreateDirResponse, wire.CreateDirectoryResponsePayload{ResponseEnvelope: fail(err)})
		}
		d.auditLog(req.Kind, path, true, "")
		err := fsops.CreateDirectory(p.Path, p.Recursive, p.Mode)
		return envelope(req, wire.KindCreateDirResponse, wire.CreateDirectoryResponsePayload{ResponseEnvelope: resultOf(err)})

	case wire.RemoveDirectoryPayload:
		if err := d.gate.Check(accessgate.OpDelete, p.Path); err != nil {
			d.auditLog(req.Kind, path, false, err.Error())
			return envelope(req, wire.KindRemoveDirResponse, wire.RemoveDirectoryResponsePayload{ResponseEnvelope: fail(err)})
		}
		d.auditLog(req.Kind, path, true, "")
		err := fsops.RemoveDirectory(p.Path, p.Recursive)
		return envelope(req, wire.KindRemoveDirResponse, wire.RemoveDirectoryResponsePayload{ResponseEnvelope: resultOf(err)})

	case wire.GetMetadataPayload:
		if err := d.gate.Check(accessgate.OpMetadata, p.Path); err != nil {
			d.auditLog(req.Kind, path, false, err.Error())
			return envelope(req, wire.KindGetMetadataResp, wire.GetMetadataResponsePayload{ResponseEnvelope: fail(err)})
		}
		d.auditLog(req.Kind, path, true, "")
		meta, err := fsops.GetMetadata(p.Path, p.FollowSymlinks)
		if err != nil {
			return envelope(req, wire.KindGetMetadataResp, wire.GetMetadataResponsePayload{ResponseEnvelope: fail(err)})
		}
		return envelope(req, wire.KindGetMetadataResp, wire.GetMetadataResponsePayload{ResponseEnvelope: ok(), Metadata: meta})

	case wire.SetMetadataPayload:
		if err := d.gate.Check(accessgate.OpMetadata, p.Path); err != nil {
			d.auditLog(req.Kind, path, false, err.Error())
			return envelope(req, wire.KindSetMetadataResp, wire.SetMetadataResponsePayload{ResponseEnvelope: fail(err)})
		}
		d.auditLog(req.Kind, path, true, "")
		err := fsops.SetMetadata(p.Path, p.Mode, p.UID, p.GID)
		return envelope(req, wire.KindSetMetadataResp, wire.SetMetadataResponsePayload{ResponseEnvelope: resultOf(err)})

	case wire.RenamePayload:
		if err := d.gate.Check(accessgate.OpWrite, p.Src); err != nil {
			d.auditLog(req.Kind, path, false, err.Error())
			return envelope(req, wire.KindRenameResponse, wire.RenameResponsePayload{ResponseEnvelope: fail(err)})
		}
		if err := d.gate.Check(accessgate.OpWrite, p.Dst); err != nil {
			d.auditLog(req.Kind, path, false, err.Error())
			return envelope(req, wire.KindRenameResponse, wire.RenameResponsePayload{ResponseEnvelope: fail(err)})
		}
		d.auditLog(req.Kind, path, true, "")
		err := fsops.Rename(p.Src, p.Dst)
		return envelope(req, wire.KindRenameResponse, wire.RenameResponsePayload{ResponseEnvelope: resultOf(err)})

	case wire.CreateSymlinkPayload:
		if err := d.gate.Check(accessgate.OpCreate, p.Path); err != nil {
			d.auditLog(req.Kind, path, false, err.Error())
			return envelope(req, wire.KindSymlinkResponse, wire.CreateSymlinkResponsePayload{ResponseEnvelope: fail(err)})
		}
		d.auditLog(req.Kind, path, true, "")
		err := fsops.CreateSymlink(p.Path, p.Target)
		return envelope(req, wire.KindSymlinkResponse, wire.CreateSymlinkResponsePayload{ResponseEnvelope: resultOf(err)})

	case wire.PathExistsPayload:
		if err := d.gate.Check(accessgate.OpRead, p.Path); err != nil {
			d.auditLog(req.Kind, path, false, err.Error())
			return envelope(req, wire.KindPathExistsResp, wire.PathExistsResponsePayload{ResponseEnvelope: fail(err)})
		}
		d.auditLog(req.Kind, path, true, "")
		exists, err := fsops.PathExists(p.Path)
		if err != nil {
			return envelope(req, wire.KindPathExistsResp, wire.PathExistsResponsePayload{ResponseEnvelope: fail(err)})
		}
		return envelope(req, wire.KindPathExistsResp, wire.PathExistsResponsePayload{ResponseEnvelope: ok(), Exists: exists})

	case wire.GetSpaceInfoPayload:
		if err := d.gate.Check(accessgate.OpRead, p.Path); err != nil {
			d.auditLog(req.Kind, path, false, err.Error())
			return envelope(req, wire.KindSpaceInfoResponse, wire.GetSpaceInfoResponsePayload{ResponseEnvelope: fail(err)})
		}
		d.auditLog(req.Kind, path, true, "")
		info, err := fsops.GetSpaceInfo(p.Path)
		if err != nil {
			return envelope(req, wire.KindSpaceInfoResponse, wire.GetSpaceInfoResponsePayload{ResponseEnvelope: fail(err)})
		}
		return envelope(req, wire.KindSpaceInfoResponse, wire.GetSpaceInfoResponsePayload{
			ResponseEnvelope: ok(), TotalBytes: info.TotalBytes, FreeBytes: info.FreeBytes, UsedBytes: info.UsedBytes,
		})

	case wire.PingPayload:
		return envelope(req, wire.KindPong, wire.PongPayload{
			TimestampUnixMilli:         time.Now().UnixMilli(),
			OriginalTimestampUnixMilli: p.TimestampUnixMilli,
		})

	default:
		return envelope(req, wire.KindError, wire.ErrorPayload{Message: "agentdispatch: unsupported request kind"})
	}
}

func envelope(req wire.Message, kind wire.Kind, payload any) wire.Message {
	return wire.Message{Kind: kind, RequestID: req.RequestID, Payload: payload}
}

func ok() wire.ResponseEnvelope                   { return wire.ResponseEnvelope{Success: true} }
func fail(err error) wire.ResponseEnvelope        { return wire.ResponseEnvelope{Success: false, Error: err.Error()} }
func resultOf(err error) wire.ResponseEnvelope {
	if err != nil {
		return fail(err)
	}
	return ok()
}
