package table

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/aalhour/blocktable/internal/encoding"
	"github.com/aalhour/blocktable/internal/logging"
	"github.com/aalhour/blocktable/internal/vfs"
)

type kv struct {
	key, value string
}

// exactPolicy stores the keys themselves as the filter, so it never
// reports a false positive. Lookups that it rejects must not touch the
// data blocks.
type exactPolicy struct{}

func (exactPolicy) Name() string { return "test.ExactFilter" }

func (exactPolicy) AppendFilter(dst []byte, keys [][]byte) []byte {
	for _, k := range keys {
		dst = encoding.AppendVarint32(dst, uint32(len(k)))
		dst = append(dst, k...)
	}
	return dst
}

func (exactPolicy) KeyMayMatch(key, filter []byte) bool {
	for len(filter) > 0 {
		n, m, err := encoding.DecodeVarint32(filter)
		if err != nil || m+int(n) > len(filter) {
			return true
		}
		if bytes.Equal(filter[m:m+int(n)], key) {
			return true
		}
		filter = filter[m+int(n):]
	}
	return false
}

func testOptions() *Options {
	opts := DefaultOptions()
	opts.Logger = logging.Discard
	return opts
}

func sequentialKVs(n int) []kv {
	kvs := make([]kv, n)
	for i := range kvs {
		kvs[i] = kv{fmt.Sprintf("key%06d", i), fmt.Sprintf("value%06d", i)}
	}
	return kvs
}

// writeTable writes kvs to name on fs and returns the file size.
func writeTable(t testing.TB, fs vfs.FS, name string, opts *Options, kvs []kv) int64 {
	t.Helper()
	f, err := fs.Create(name)
	if err != nil {
		t.Fatalf("Create(%s): %v", name, err)
	}
	w := NewWriter(f, opts)
	for _, e := range kvs {
		if err := w.Add([]byte(e.key), []byte(e.value)); err != nil {
			t.Fatalf("Add(%q): %v", e.key, err)
		}
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if uint64(f.Size()) != w.FileSize() {
		t.Fatalf("file size %d, writer reports %d", f.Size(), w.FileSize())
	}
	return f.Size()
}

// buildTable returns the encoded table for kvs.
func buildTable(t testing.TB, opts *Options, kvs []kv) []byte {
	t.Helper()
	fs := vfs.NewMemFS()
	writeTable(t, fs, "t.sst", opts, kvs)
	f, err := fs.OpenRandomAccess("t.sst")
	if err != nil {
		t.Fatal(err)
	}
	data := make([]byte, f.Size())
	if _, err := f.ReadAt(data, 0); err != nil {
		t.Fatal(err)
	}
	return data
}

// openTable opens an in-memory table.
func openTable(t testing.TB, data []byte, opts *Options) *Table {
	t.Helper()
	tbl, err := Open(vfs.NewMemFile(data), int64(len(data)), opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { tbl.Close() })
	return tbl
}
