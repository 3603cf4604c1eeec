package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
)

func TestOSFileSystem_RoundTrip(t *testing.T) {
	t.Parallel()

	var fsys FileSystem = OSFileSystem{}
	dir := t.TempDir()

	sub := filepath.Join(dir, "results", "abc")
	if err := fsys.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	src := filepath.Join(sub, "aligned.fasta.treefile")
	if err := fsys.WriteFile(src, []byte("(A,B);"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	dst := filepath.Join(sub, "tree.nwk")
	if err := fsys.Rename(src, dst); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if fsys.Exists(src) {
		t.Error("source still exists after rename")
	}

	data, err := fsys.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "(A,B);" {
		t.Errorf("data = %q", data)
	}

	w, err := fsys.Create(filepath.Join(sub, "tree.json"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := w.Write([]byte("{}")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	info, err := fsys.Stat(filepath.Join(sub, "tree.json"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 2 {
		t.Errorf("size = %d, want 2", info.Size())
	}

	if err := fsys.Remove(dst); err != nil {
		t.Errorf("Remove: %v", err)
	}
}

func TestMemoryFileSystem_WriteRead(t *testing.T) {
	t.Parallel()

	m := NewMemoryFileSystem()
	if err := m.WriteFile("results/a/tree.nwk", []byte("(A,B);"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := m.ReadFile("results/a/./tree.nwk")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "(A,B);" {
		t.Errorf("data = %q", data)
	}

	// returned slice must be a copy
	data[0] = 'X'
	again, _ := m.ReadFile("results/a/tree.nwk")
	if string(again) != "(A,B);" {
		t.Error("ReadFile exposed internal buffer")
	}
}

func TestMemoryFileSystem_Create(t *testing.T) {
	t.Parallel()

	m := NewMemoryFileSystem()
	w, err := m.Create("upload.fasta")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	w.Write([]byte(">a\n"))
	w.Write([]byte("ACGT\n"))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := m.ReadFile("upload.fasta")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != ">a\nACGT\n" {
		t.Errorf("data = %q", data)
	}
}

func TestMemoryFileSystem_Rename(t *testing.T) {
	t.Parallel()

	m := NewMemoryFileSystem()
	m.WriteFile("a.treefile", []byte("x"), 0644)

	if err := m.Rename("a.treefile", "tree.nwk"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if m.Exists("a.treefile") {
		t.Error("old path still exists")
	}
	if !m.Exists("tree.nwk") {
		t.Error("new path missing")
	}

	err := m.Rename("missing", "other")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Rename(missing) err = %v, want ErrNotExist", err)
	}
}

func TestMemoryFileSystem_StatAndDirs(t *testing.T) {
	t.Parallel()

	m := NewMemoryFileSystem()
	if err := m.MkdirAll("results/abc", 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	for _, dir := range []string{"results", "results/abc"} {
		info, err := m.Stat(dir)
		if err != nil {
			t.Fatalf("Stat(%s): %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("Stat(%s).IsDir() = false", dir)
		}
	}

	if _, err := m.Stat("results/abc/none"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Stat(missing) err = %v, want ErrNotExist", err)
	}
}

func TestMemoryFileSystem_Remove(t *testing.T) {
	t.Parallel()

	m := NewMemoryFileSystem()
	m.MkdirAll("dir", 0755)
	m.WriteFile("dir/f", []byte("x"), 0644)

	if err := m.Remove("dir"); err == nil {
		t.Error("Remove(non-empty dir) should fail")
	}
	if err := m.Remove("dir/f"); err != nil {
		t.Fatalf("Remove(file): %v", err)
	}
	if err := m.Remove("dir"); err != nil {
		t.Fatalf("Remove(empty dir): %v", err)
	}
	if err := m.Remove("dir"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Remove(missing) err = %v", err)
	}
	if len(m.Files()) != 0 {
		t.Errorf("Files() = %v, want empty", m.Files())
	}
}
