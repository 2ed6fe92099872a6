package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestOSFileSystem_WriteReadRename(t *testing.T) {
	fsys := OSFileSystem{}
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")

	if err := fsys.WriteFile(a, []byte("hello"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if !fsys.Exists(a) {
		t.Fatal("file should exist after write")
	}
	if err := fsys.Rename(a, b); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if fsys.Exists(a) {
		t.Error("source should not exist after rename")
	}
	data, err := fsys.ReadFile(b)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("ReadFile = %q, want %q", data, "hello")
	}
	if err := fsys.Remove(b); err != nil {
		t.Errorf("Remove failed: %v", err)
	}
}

func TestOSFileSystem_WriteFileTruncates(t *testing.T) {
	fsys := OSFileSystem{}
	path := filepath.Join(t.TempDir(), "f")
	if err := fsys.WriteFile(path, []byte("long contents"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := fsys.WriteFile(path, []byte("short"), 0644); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "short" {
		t.Errorf("got %q, want %q", data, "short")
	}
}

func TestWriteFileAtomic_OS(t *testing.T) {
	fsys := OSFileSystem{}
	path := filepath.Join(t.TempDir(), "nested", "dir", "pose.csv")

	if err := WriteFileAtomic(fsys, path, []byte("v1"), 0644); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	if err := WriteFileAtomic(fsys, path, []byte("v2"), 0644); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "v2" {
		t.Errorf("got %q, want v2", data)
	}
	if fsys.Exists(path + TempSuffix) {
		t.Error("staging file left behind")
	}
}

func TestWriteFileAtomic_RenameFailureKeepsOriginal(t *testing.T) {
	m := NewMemoryFileSystem()
	if err := m.WriteFile("/data/pose.csv", []byte("original"), 0644); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("power loss")
	m.SetFault(OpRename, boom)
	err := WriteFileAtomic(m, "/data/pose.csv", []byte("replacement"), 0644)
	if !errors.Is(err, boom) {
		t.Fatalf("WriteFileAtomic error = %v, want wrapped %v", err, boom)
	}

	data, err := m.ReadFile("/data/pose.csv")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "original" {
		t.Errorf("file = %q, want original contents", data)
	}
	if m.Exists("/data/pose.csv" + TempSuffix) {
		t.Error("staging file should be cleaned up")
	}
}

func TestWriteFileAtomic_WriteFailure(t *testing.T) {
	m := NewMemoryFileSystem()
	_ = m.WriteFile("f", []byte("keep"), 0644)
	m.SetFault(OpWrite, errors.New("disk full"))

	if err := WriteFileAtomic(m, "f", []byte("new"), 0644); err == nil {
		t.Fatal("expected error")
	}
	m.SetFault(OpWrite, nil)

	data, _ := m.ReadFile("f")
	if string(data) != "keep" {
		t.Errorf("file = %q, want keep", data)
	}
}

func TestMemoryFileSystem_DataIsolation(t *testing.T) {
	m := NewMemoryFileSystem()
	src := []byte("abc")
	_ = m.WriteFile("x", src, 0644)
	src[0] = 'z'

	got, _ := m.ReadFile("x")
	if string(got) != "abc" {
		t.Errorf("stored data mutated via caller slice: %q", got)
	}
	got[1] = 'z'
	again, _ := m.ReadFile("x")
	if string(again) != "abc" {
		t.Errorf("stored data mutated via returned slice: %q", again)
	}
}

func TestMemoryFileSystem_RenameMissing(t *testing.T) {
	m := NewMemoryFileSystem()
	err := m.Rename("nope", "dest")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Rename missing = %v, want ErrNotExist", err)
	}
}

func TestMemoryFileSystem_RemoveAndMkdir(t *testing.T) {
	m := NewMemoryFileSystem()
	if err := m.MkdirAll("/a/b/c", 0755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"/a", "/a/b", "/a/b/c"} {
		if !m.Exists(p) {
			t.Errorf("%s should exist", p)
		}
	}
	if err := m.Remove("/missing"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Remove missing = %v", err)
	}
	_ = m.WriteFile("/a/b/c/./f", []byte("1"), 0644)
	if !m.Exists("/a/b/c/f") {
		t.Error("path should be cleaned")
	}
	if err := m.Remove("/a/b/c/f"); err != nil {
		t.Errorf("Remove = %v", err)
	}
}
