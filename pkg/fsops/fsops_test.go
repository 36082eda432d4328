package fsops

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAndReadFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")

	n, err := WriteFile(path, []byte("hello world"), 0, true, false)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if n != len("hello world") {
		t.Fatalf("wrote %d bytes, want %d", n, len("hello world"))
	}

	got, err := ReadFile(path, 0, 0)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("ReadFile = %q", got)
	}

	partial, err := ReadFile(path, 6, 5)
	if err != nil {
		t.Fatalf("ReadFile partial: %v", err)
	}
	if string(partial) != "world" {
		t.Fatalf("partial read = %q, want world", partial)
	}
}

func TestWriteFileTruncatesExistingFileOnZeroOffsetCreate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")

	if _, err := WriteFile(path, []byte("this is the original longer content"), 0, true, false); err != nil {
		t.Fatalf("initial WriteFile: %v", err)
	}
	if _, err := WriteFile(path, []byte("short"), 0, true, false); err != nil {
		t.Fatalf("overwrite WriteFile: %v", err)
	}

	got, err := ReadFile(path, 0, 0)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "short" {
		t.Fatalf("ReadFile after overwrite = %q, want %q (stale trailing bytes not truncated)", got, "short")
	}
}

func TestWriteFileWithOffsetDoesNotTruncate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")

	if _, err := WriteFile(path, []byte("0123456789"), 0, true, false); err != nil {
		t.Fatalf("initial WriteFile: %v", err)
	}
	if _, err := WriteFile(path, []byte("AB"), 2, true, false); err != nil {
		t.Fatalf("offset WriteFile: %v", err)
	}

	got, err := ReadFile(path, 0, 0)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "01AB456789" {
		t.Fatalf("ReadFile after offset write = %q, want %q", got, "01AB456789")
	}
}

func TestCreateFileFailsIfExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := CreateFile(path, 0); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := CreateFile(path, 0); err == nil {
		t.Fatalf("expected error creating file that already exists")
	}
}

func TestDeleteFileRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := DeleteFile(dir); err == nil {
		t.Fatalf("expected error deleting a directory via DeleteFile")
	}
}

func TestTruncateFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if _, err := WriteFile(path, []byte("0123456789"), 0, true, false); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := TruncateFile(path, 4); err != nil {
		t.Fatalf("TruncateFile: %v", err)
	}
	got, err := ReadFile(path, 0, 0)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "0123" {
		t.Fatalf("ReadFile after truncate = %q, want 0123", got)
	}
}

func TestListDirectorySortedByName(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"c.txt", "a.txt", "b.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}
	entries, err := ListDirectory(dir)
	if err != nil {
		t.Fatalf("ListDirectory: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	want := []string{"a.txt", "b.txt", "c.txt"}
	for i, e := range entries {
		if e.Name != want[i] {
			t.Fatalf("entries[%d].Name = %q, want %q", i, e.Name, want[i])
		}
		if !e.Metadata.IsFile {
			t.Fatalf("entries[%d] should be a file", i)
		}
	}
}

func TestCreateAndRemoveDirectory(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b", "c")
	if err := CreateDirectory(nested, true, 0); err != nil {
		t.Fatalf("CreateDirectory: %v", err)
	}
	exists, err := PathExists(nested)
	if err != nil || !exists {
		t.Fatalf("PathExists = %v, %v, want true, nil", exists, err)
	}
	if err := RemoveDirectory(filepath.Join(dir, "a"), true); err != nil {
		t.Fatalf("RemoveDirectory: %v", err)
	}
	exists, _ = PathExists(nested)
	if exists {
		t.Fatalf("nested dir should be gone after recursive remove")
	}
}

func TestGetMetadataReportsSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if _, err := WriteFile(path, []byte("12345"), 0, true, false); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	meta, err := GetMetadata(path, true)
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if meta.Size != 5 || !meta.IsFile {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestSetMetadataMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := CreateFile(path, 0o644); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	mode := uint32(0o600)
	if err := SetMetadata(path, &mode, nil, nil); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	meta, err := GetMetadata(path, true)
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if meta.Mode != 0o600 {
		t.Fatalf("Mode = %o, want 600", meta.Mode)
	}
}

func TestRename(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	dst := filepath.Join(dir, "b.txt")
	if err := CreateFile(src, 0); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := Rename(src, dst); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if exists, _ := PathExists(dst); !exists {
		t.Fatalf("dst should exist after rename")
	}
	if exists, _ := PathExists(src); exists {
		t.Fatalf("src should not exist after rename")
	}
}

func TestCreateSymlinkReportedAsSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	if err := CreateFile(target, 0); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	link := filepath.Join(dir, "link.txt")
	if err := CreateSymlink(link, target); err != nil {
		t.Fatalf("CreateSymlink: %v", err)
	}
	meta, err := GetMetadata(link, false)
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if !meta.IsSymlink || meta.LinkTarget != target {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestPathExistsFalseForMissing(t *testing.T) {
	dir := t.TempDir()
	exists, err := PathExists(filepath.Join(dir, "nope"))
	if err != nil {
		t.Fatalf("PathExists: %v", err)
	}
	if exists {
		t.Fatalf("expected false for missing path")
	}
}

func TestGetSpaceInfo(t *testing.T) {
	dir := t.TempDir()
	info, err := GetSpaceInfo(dir)
	if err != nil {
		t.Fatalf("GetSpaceInfo: %v", err)
	}
	if info.TotalBytes == 0 {
		t.Fatalf("TotalBytes = 0, want > 0")
	}
	if info.UsedBytes+info.FreeBytes != info.TotalBytes {
		t.Fatalf("used+free != total: %+v", info)
	}
}
