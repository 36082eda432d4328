// Package fsops performs the actual filesystem operations the agent
// dispatcher exposes. It knows nothing about the wire protocol or access
// control — those are the dispatcher's and accessgate's jobs — it only
// translates a validated operation into os/io calls and wire-shaped
// results. Grounded on the relay package's readFileContent/writeFileContent
// (direct os.ReadFile/os.WriteFile, no shell involved), generalized to the
// full read/write/list/metadata/rename/symlink operation set.
package fsops

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/nodewire/remotefs/pkg/wire"
)

// ReadFile reads length bytes starting at offset. length == 0 reads the
// remainder of the file from offset.
func ReadFile(path string, offset, length uint64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if offset > 0 {
		if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
			return nil, err
		}
	}
	if length == 0 {
		return io.ReadAll(f)
	}
	buf := make([]byte, length)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

// WriteFile writes data at offset, optionally creating the file (and its
// parent directories) first. When create is set and offset is absent
// (zero), any existing file at path is truncated first, so a full-file
// rewrite never leaves stale trailing bytes past the new data's end; a
// nonzero offset always means a partial write and never truncates. sync,
// when set, calls File.Sync before returning.
func WriteFile(path string, data []byte, offset uint64, create, sync bool) (int, error) {
	flags := os.O_WRONLY
	if create {
		flags |= os.O_CREATE
		if offset == 0 {
			flags |= os.O_TRUNC
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return 0, err
		}
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
		return 0, err
	}
	n, err := f.Write(data)
	if err != nil {
		return n, err
	}
	if sync {
		if err := f.Sync(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// CreateFile creates an empty file with the given mode, failing if it
// already exists.
func CreateFile(path string, mode uint32) error {
	if mode == 0 {
		mode = 0o644
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, os.FileMode(mode))
	if err != nil {
		return err
	}
	return f.Close()
}

// DeleteFile removes a regular file. It refuses to remove a directory.
func DeleteFile(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("fsops: %q is a directory, use RemoveDirectory", path)
	}
	return os.Remove(path)
}

// TruncateFile truncates or extends path to exactly size bytes.
func TruncateFile(path string, size uint64) error {
	return os.Truncate(path, int64(size))
}

// ListDirectory returns one DirEntry per immediate child of path, sorted by
// name for a deterministic response.
func ListDirectory(path string) ([]wire.DirEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	out := make([]wire.DirEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue // vanished between readdir and stat; skip rather than fail the whole listing
		}
		out = append(out, wire.DirEntry{Name: e.Name(), Metadata: toFileMetadata(info, filepath.Join(path, e.Name()))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateDirectory creates path, optionally creating missing parents.
func CreateDirectory(path string, recursive bool, mode uint32) error {
	if mode == 0 {
		mode = 0o755
	}
	if recursive {
		return os.MkdirAll(path, os.FileMode(mode))
	}
	return os.Mkdir(path, os.FileMode(mode))
}

// RemoveDirectory removes path. recursive removes a non-empty tree;
// non-recursive fails if path is not empty, matching os.Remove's behavior.
func RemoveDirectory(path string, recursive bool) error {
	if recursive {
		return os.RemoveAll(path)
	}
	return os.Remove(path)
}

// GetMetadata stats path, following the final symlink only if
// followSymlinks is set.
func GetMetadata(path string, followSymlinks bool) (wire.FileMetadata, error) {
	var info os.FileInfo
	var err error
	if followSymlinks {
		info, err = os.Stat(path)
	} else {
		info, err = os.Lstat(path)
	}
	if err != nil {
		return wire.FileMetadata{}, err
	}
	return toFileMetadata(info, path), nil
}

// SetMetadata applies whichever of mode/uid/gid are non-nil to path.
func SetMetadata(path string, mode, uid, gid *uint32) error {
	if mode != nil {
		if err := os.Chmod(path, os.FileMode(*mode)); err != nil {
			return err
		}
	}
	if uid != nil || gid != nil {
		u, g := -1, -1
		if uid != nil {
			u = int(*uid)
		}
		if gid != nil {
			g = int(*gid)
		}
		if err := os.Chown(path, u, g); err != nil {
			return err
		}
	}
	return nil
}

// Rename moves src to dst, which must reside in an already-existing parent
// directory.
func Rename(src, dst string) error {
	return os.Rename(src, dst)
}

// CreateSymlink creates a symlink at path pointing at target.
func CreateSymlink(path, target string) error {
	return os.Symlink(target, path)
}

// PathExists reports whether path exists, using Lstat so a broken symlink
// still counts as existing.
func PathExists(path string) (bool, error) {
	if _, err := os.Lstat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SpaceInfo is the filesystem capacity figures GetSpaceInfo reports.
type SpaceInfo struct {
	TotalBytes uint64
	FreeBytes  uint64
	UsedBytes  uint64
}

// GetSpaceInfo reports capacity for the filesystem containing path.
func GetSpaceInfo(path string) (SpaceInfo, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return SpaceInfo{}, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bfree * uint64(stat.Bsize)
	return SpaceInfo{TotalBytes: total, FreeBytes: free, UsedBytes: total - free}, nil
}

// toFileMetadata maps an os.FileInfo onto the wire struct. It reads the
// symlink target when info describes one; a readlink failure is tolerated
// by leaving LinkTarget empty rather than failing the whole stat.
func toFileMetadata(info os.FileInfo, path string) wire.FileMetadata {
	mode := info.Mode()
	m := wire.FileMetadata{
		Size:             uint64(info.Size()),
		ModifiedAtMillis: info.ModTime().UnixMilli(),
		Mode:             uint32(mode.Perm()),
		IsDir:            mode.IsDir(),
		IsFile:           mode.IsRegular(),
		IsSymlink:        mode&os.ModeSymlink != 0,
	}
	if sysStat, ok := info.Sys().(*syscall.Stat_t); ok {
		m.UID = sysStat.Uid
		m.GID = sysStat.Gid
		m.AccessedAtMillis = time.Unix(sysStat.Atim.Sec, sysStat.Atim.Nsec).UnixMilli()
		m.CreatedAtMillis = time.Unix(sysStat.Ctim.Sec, sysStat.Ctim.Nsec).UnixMilli()
	}
	if m.IsSymlink {
		if target, err := os.Readlink(path); err == nil {
			m.LinkTarget = target
		}
	}
	return m
}
