package vfs

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func writeFile(t *testing.T, fsys FS, name string, chunks ...string) {
	t.Helper()
	f, err := fsys.Create(name)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for _, c := range chunks {
		if err := f.Append([]byte(c)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := f.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestOSFS_CreateAppend(t *testing.T) {
	fsys := Default()
	path := filepath.Join(t.TempDir(), "test.txt")

	f, err := fsys.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := f.Append([]byte("hello ")); err != nil {
		t.Fatal(err)
	}
	if err := f.Append([]byte("world")); err != nil {
		t.Fatal(err)
	}
	if f.Size() != 11 {
		t.Errorf("Size() = %d, want 11", f.Size())
	}

	// Appends are buffered until Flush.
	if err := f.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello world" {
		t.Errorf("content after Flush = %q", data)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOSFS_OpenRandomAccess(t *testing.T) {
	fsys := Default()
	path := filepath.Join(t.TempDir(), "test.txt")
	writeFile(t, fsys, path, "hello world")

	f, err := fsys.OpenRandomAccess(path)
	if err != nil {
		t.Fatalf("OpenRandomAccess failed: %v", err)
	}
	defer f.Close()

	if f.Size() != 11 {
		t.Errorf("Size() = %d, want 11", f.Size())
	}
	buf := make([]byte, 5)
	if _, err := f.ReadAt(buf, 6); err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if string(buf) != "world" {
		t.Errorf("ReadAt = %q, want %q", buf, "world")
	}
}

func TestOSFS_RemoveExists(t *testing.T) {
	fsys := Default()
	path := filepath.Join(t.TempDir(), "test.txt")
	writeFile(t, fsys, path, "x")

	if !fsys.Exists(path) {
		t.Fatal("file should exist")
	}
	if err := fsys.Remove(path); err != nil {
		t.Fatal(err)
	}
	if fsys.Exists(path) {
		t.Error("file should not exist after Remove")
	}
	if _, err := fsys.OpenRandomAccess(path); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("OpenRandomAccess of removed file: %v", err)
	}
}

func TestMemFS(t *testing.T) {
	fsys := NewMemFS()
	writeFile(t, fsys, "dir/table.sst", "abc", "def")

	if !fsys.Exists("dir/./table.sst") {
		t.Error("cleaned name should exist")
	}

	f, err := fsys.OpenRandomAccess("dir/table.sst")
	if err != nil {
		t.Fatal(err)
	}
	if f.Size() != 6 {
		t.Errorf("Size() = %d, want 6", f.Size())
	}
	buf := make([]byte, 4)
	n, err := f.ReadAt(buf, 4)
	if n != 2 || err != io.EOF || string(buf[:n]) != "ef" {
		t.Errorf("short ReadAt = %d, %v, %q", n, err, buf[:n])
	}

	seq, err := fsys.Open("dir/table.sst")
	if err != nil {
		t.Fatal(err)
	}
	all, err := io.ReadAll(seq)
	if err != nil || string(all) != "abcdef" {
		t.Errorf("sequential read = %q, %v", all, err)
	}

	if err := fsys.Remove("dir/table.sst"); err != nil {
		t.Fatal(err)
	}
	if _, err := fsys.Open("dir/table.sst"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Open after Remove: %v", err)
	}
	if err := fsys.Remove("dir/table.sst"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("second Remove: %v", err)
	}
}

func TestMemFS_AppendAfterClose(t *testing.T) {
	f, err := NewMemFS().Create("x")
	if err != nil {
		t.Fatal(err)
	}
	_ = f.Close()
	if err := f.Append([]byte("late")); !errors.Is(err, fs.ErrClosed) {
		t.Errorf("Append after Close = %v, want fs.ErrClosed", err)
	}
}

func TestMemFile_ConcurrentReadAt(t *testing.T) {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i)
	}
	f := NewMemFile(data)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]byte, 16)
			for i := range 100 {
				off := int64((g*100 + i) % 4000)
				if _, err := f.ReadAt(buf, off); err != nil {
					t.Errorf("ReadAt(%d): %v", off, err)
					return
				}
				if buf[0] != byte(off) {
					t.Errorf("ReadAt(%d) = %d", off, buf[0])
					return
				}
			}
		}()
	}
	wg.Wait()
}
