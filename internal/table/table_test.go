package table

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/aalhour/blocktable/internal/block"
	"github.com/aalhour/blocktable/internal/cache"
	"github.com/aalhour/blocktable/internal/comparator"
	"github.com/aalhour/blocktable/internal/encoding"
	"github.com/aalhour/blocktable/internal/filter"
	"github.com/aalhour/blocktable/internal/logging"
	"github.com/aalhour/blocktable/internal/status"
	"github.com/aalhour/blocktable/internal/vfs"
)

func TestGetEndToEnd(t *testing.T) {
	opts := testOptions()
	opts.FilterPolicy = filter.NewBloomPolicy(10)
	data := buildTable(t, opts, []kv{{"a", "1"}, {"m", "2"}, {"z", "3"}})
	tbl := openTable(t, data, opts)

	if !tbl.HasFilter() {
		t.Fatal("HasFilter() = false")
	}

	for _, tt := range []kv{{"a", "1"}, {"m", "2"}, {"z", "3"}} {
		got, err := tbl.Get([]byte(tt.key))
		if err != nil {
			t.Errorf("Get(%q) error: %v", tt.key, err)
			continue
		}
		if string(got) != tt.value {
			t.Errorf("Get(%q) = %q, want %q", tt.key, got, tt.value)
		}
	}

	for _, key := range []string{"", "b", "n", "zz"} {
		_, err := tbl.Get([]byte(key))
		if !errors.Is(err, status.ErrNotFound) {
			t.Errorf("Get(%q) error = %v, want NotFound", key, err)
		}
		if status.KindOf(err) != status.NotFound {
			t.Errorf("KindOf(Get(%q)) = %v", key, status.KindOf(err))
		}
	}
}

func TestGetReturnsCopy(t *testing.T) {
	opts := testOptions()
	tbl := openTable(t, buildTable(t, opts, []kv{{"k", "value"}}), opts)

	v1, _ := tbl.Get([]byte("k"))
	v1[0] = 'X'
	v2, _ := tbl.Get([]byte("k"))
	if string(v2) != "value" {
		t.Errorf("Get after mutating a previous result = %q", v2)
	}
}

func TestGetWithoutFilter(t *testing.T) {
	opts := testOptions()
	tbl := openTable(t, buildTable(t, opts, sequentialKVs(100)), opts)
	if tbl.HasFilter() {
		t.Error("HasFilter() = true without a policy")
	}
	if v, err := tbl.Get([]byte("key000042")); err != nil || string(v) != "value000042" {
		t.Errorf("Get = %q, %v", v, err)
	}
	if _, err := tbl.Get([]byte("key000042x")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v", err)
	}
	if !tbl.KeyMayMatch([]byte("anything")) {
		t.Error("KeyMayMatch without a filter should be true")
	}
}

func TestGetMultipleBlocks(t *testing.T) {
	opts := testOptions()
	opts.BlockSize = 256
	opts.BlockRestartInterval = 4
	opts.FilterPolicy = filter.NewBloomPolicy(10)
	kvs := sequentialKVs(5000)
	tbl := openTable(t, buildTable(t, opts, kvs), opts)

	props, err := tbl.Properties()
	if err != nil {
		t.Fatalf("Properties: %v", err)
	}
	if props.NumEntries != 5000 {
		t.Errorf("NumEntries = %d, want 5000", props.NumEntries)
	}
	if props.NumDataBlocks < 100 {
		t.Errorf("NumDataBlocks = %d, expected many small blocks", props.NumDataBlocks)
	}

	for _, e := range kvs {
		got, err := tbl.Get([]byte(e.key))
		if err != nil {
			t.Fatalf("Get(%q): %v", e.key, err)
		}
		if string(got) != e.value {
			t.Fatalf("Get(%q) = %q, want %q", e.key, got, e.value)
		}
		// Between every pair of adjacent keys.
		if _, err := tbl.Get([]byte(e.key + "\x00")); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get(%q+\\x00) error = %v", e.key, err)
		}
	}
}

// TestFilterShortCircuit checks that a key the filter rules out is
// answered without reading any data block.
func TestFilterShortCircuit(t *testing.T) {
	opts := testOptions()
	opts.BlockSize = 128
	opts.FilterPolicy = exactPolicy{}

	mem := vfs.NewMemFS()
	size := writeTable(t, mem, "t.sst", opts, sequentialKVs(500))
	fs := vfs.NewFaultInjectionFS(mem)
	f, err := fs.OpenRandomAccess("t.sst")
	if err != nil {
		t.Fatal(err)
	}
	tbl, err := Open(f, size, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer tbl.Close()
	if !tbl.HasFilter() {
		t.Fatal("filter not loaded")
	}

	fs.ResetCounts()
	for i := range 500 {
		key := fmt.Sprintf("key%06d!", i)
		if _, err := tbl.Get([]byte(key)); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get(%q) error = %v", key, err)
		}
	}
	if n := fs.ReadCount("t.sst"); n != 0 {
		t.Errorf("filtered lookups issued %d reads, want 0", n)
	}

	if _, err := tbl.Get([]byte("key000007")); err != nil {
		t.Fatalf("Get(present): %v", err)
	}
	if n := fs.ReadCount("t.sst"); n != 1 {
		t.Errorf("present lookup issued %d reads, want 1", n)
	}
}

func TestFilterPolicyMismatch(t *testing.T) {
	opts := testOptions()
	opts.FilterPolicy = filter.NewBloomPolicy(10)
	data := buildTable(t, opts, sequentialKVs(10))

	ropts := testOptions()
	ropts.FilterPolicy = exactPolicy{}
	tbl := openTable(t, data, ropts)
	if tbl.HasFilter() {
		t.Error("filter written by another policy was loaded")
	}
	if _, err := tbl.Get([]byte("key000003")); err != nil {
		t.Errorf("Get: %v", err)
	}
}

func TestOpenTooShort(t *testing.T) {
	for _, n := range []int{0, 1, block.EncodedLength - 1} {
		tbl, err := Open(vfs.NewMemFile(make([]byte, n)), int64(n), testOptions())
		if tbl != nil {
			t.Errorf("Open(%d bytes) returned a table", n)
		}
		if !errors.Is(err, ErrTooShort) {
			t.Errorf("Open(%d bytes) error = %v, want ErrTooShort", n, err)
		}
		if status.KindOf(err) != status.Corruption {
			t.Errorf("Open(%d bytes) kind = %v, want Corruption", n, status.KindOf(err))
		}
	}
}

func TestOpenCorruption(t *testing.T) {
	good := buildTable(t, testOptions(), sequentialKVs(20))

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"bad magic", func(d []byte) []byte {
			d[len(d)-1] ^= 0xff
			return d
		}},
		{"zero footer", func(d []byte) []byte {
			footer := d[len(d)-block.EncodedLength:]
			clear(footer[:block.EncodedLength-block.MagicNumberLength])
			return d
		}},
		{"index beyond file", func(d []byte) []byte {
			f := block.Footer{IndexHandle: block.Handle{Offset: 0, Size: 1 << 20}}
			return f.EncodeTo(d[:len(d)-block.EncodedLength])
		}},
		{"index without restarts", func(d []byte) []byte {
			footer, err := block.DecodeFooter(d[len(d)-block.EncodedLength:])
			if err != nil {
				panic(err)
			}
			end := footer.IndexHandle.Offset + footer.IndexHandle.Size
			copy(d[end-4:end], []byte{0, 0, 0, 0})
			return d
		}},
		{"truncated", func(d []byte) []byte {
			return d[len(d)/2:]
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(bytes.Clone(good))
			tbl, err := Open(vfs.NewMemFile(data), int64(len(data)), testOptions())
			if tbl != nil {
				t.Error("Open returned a table")
			}
			if status.KindOf(err) != status.Corruption {
				t.Errorf("error = %v (kind %v), want Corruption", err, status.KindOf(err))
			}
		})
	}
}

func TestOpenSizeLargerThanFile(t *testing.T) {
	data := buildTable(t, testOptions(), sequentialKVs(5))
	_, err := Open(vfs.NewMemFile(data), int64(len(data))+10, testOptions())
	if status.KindOf(err) != status.Corruption {
		t.Errorf("error = %v, want Corruption", err)
	}
}

func TestCorruptDataBlock(t *testing.T) {
	opts := testOptions()
	data := buildTable(t, opts, []kv{{"a", "1"}, {"b", "2"}})
	tbl := openTable(t, data, opts)

	it := tbl.NewIndexIterator()
	it.SeekToFirst()
	h, _, err := block.DecodeHandle(it.Value())
	it.Release()
	if err != nil {
		t.Fatal(err)
	}

	bad := bytes.Clone(data)
	end := h.Offset + h.Size
	copy(bad[end-4:end], []byte{0, 0, 0, 0})
	tbl = openTable(t, bad, opts)

	_, err = tbl.Get([]byte("a"))
	if status.KindOf(err) != status.Corruption {
		t.Errorf("Get error = %v, want Corruption", err)
	}
	if errors.Is(err, status.ErrNotFound) {
		t.Error("corruption reported as NotFound")
	}
}

func TestCorruptFilterIgnored(t *testing.T) {
	opts := testOptions()
	opts.FilterPolicy = filter.NewBloomPolicy(10)
	data := buildTable(t, opts, sequentialKVs(50))

	// Point offsets_start past the end of the filter block.
	tbl := openTable(t, data, opts)
	fh := filterHandle(t, tbl, data)
	bad := bytes.Clone(data)
	end := fh.Offset + fh.Size
	copy(bad[end-5:end-1], encoding.AppendFixed32(nil, 0xffffff))

	var logs bytes.Buffer
	opts.Logger = logging.NewLogger(&logs, logging.LevelWarn)
	tbl = openTable(t, bad, opts)
	if tbl.HasFilter() {
		t.Error("corrupt filter was loaded")
	}
	if !strings.Contains(logs.String(), "WARN [table] filter block") {
		t.Errorf("missing warning, log = %q", logs.String())
	}
	if v, err := tbl.Get([]byte("key000010")); err != nil || string(v) != "value000010" {
		t.Errorf("Get = %q, %v", v, err)
	}
}

// filterHandle finds the filter block of an open table via its metaindex.
func filterHandle(t *testing.T, tbl *Table, data []byte) block.Handle {
	t.Helper()
	mh := tbl.Footer().MetaindexHandle
	meta, err := block.NewBlock(data[mh.Offset : mh.Offset+mh.Size])
	if err != nil {
		t.Fatal(err)
	}
	it := meta.NewIterator(nil)
	defer it.Release()
	key := "filter." + tbl.opts.FilterPolicy.Name()
	it.Seek([]byte(key))
	if !it.Valid() || string(it.Key()) != key {
		t.Fatalf("metaindex has no %q", key)
	}
	h, _, err := block.DecodeHandle(it.Value())
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func TestIOErrorPropagation(t *testing.T) {
	opts := testOptions()
	mem := vfs.NewMemFS()
	size := writeTable(t, mem, "t.sst", opts, sequentialKVs(100))
	fs := vfs.NewFaultInjectionFS(mem)

	t.Run("open", func(t *testing.T) {
		f, err := fs.OpenRandomAccess("t.sst")
		if err != nil {
			t.Fatal(err)
		}
		fs.InjectReadError("t.sst")
		defer fs.ClearErrors()
		_, err = Open(f, size, opts)
		if status.KindOf(err) != status.IOError {
			t.Errorf("Open error = %v, want IOError", err)
		}
		if !errors.Is(err, vfs.ErrInjectedReadError) {
			t.Errorf("Open error %v does not wrap the cause", err)
		}
	})

	t.Run("get", func(t *testing.T) {
		f, err := fs.OpenRandomAccess("t.sst")
		if err != nil {
			t.Fatal(err)
		}
		tbl, err := Open(f, size, opts)
		if err != nil {
			t.Fatal(err)
		}
		fs.InjectReadError("t.sst")
		defer fs.ClearErrors()

		_, err = tbl.Get([]byte("key000050"))
		if status.KindOf(err) != status.IOError {
			t.Errorf("Get error = %v, want IOError", err)
		}
		if errors.Is(err, status.ErrNotFound) {
			t.Error("IOError reported as NotFound")
		}

		it := tbl.NewIterator()
		defer it.Release()
		it.SeekToFirst()
		if it.Valid() {
			t.Error("iterator valid despite read error")
		}
		if status.KindOf(it.Error()) != status.IOError {
			t.Errorf("iterator error = %v, want IOError", it.Error())
		}
	})
}

func TestBlockCache(t *testing.T) {
	opts := testOptions()
	opts.BlockSize = 256
	lru := cache.NewLRUCache(1 << 20)
	opts.BlockCache = lru

	mem := vfs.NewMemFS()
	size := writeTable(t, mem, "t.sst", opts, sequentialKVs(1000))
	fs := vfs.NewFaultInjectionFS(mem)
	f, _ := fs.OpenRandomAccess("t.sst")
	tbl, err := Open(f, size, opts)
	if err != nil {
		t.Fatal(err)
	}

	fs.ResetCounts()
	for range 3 {
		if _, err := tbl.Get([]byte("key000500")); err != nil {
			t.Fatal(err)
		}
	}
	if n := fs.ReadCount("t.sst"); n != 1 {
		t.Errorf("three Gets of one block issued %d reads, want 1", n)
	}
	if lru.GetHitCount() != 2 {
		t.Errorf("cache hits = %d, want 2", lru.GetHitCount())
	}

	it := tbl.NewIterator()
	it.Seek([]byte("key000500"))
	if !it.Valid() {
		t.Fatal("iterator not valid")
	}
	if lru.GetPinnedUsage() == 0 {
		t.Error("iterator does not pin its block")
	}
	it.Release()
	it.Release()
	if lru.GetPinnedUsage() != 0 {
		t.Errorf("pinned usage after Release = %d", lru.GetPinnedUsage())
	}

	// A second table sharing the cache gets its own key space.
	other := openTable(t, buildTable(t, opts, []kv{{"key000500", "other"}}), opts)
	if v, err := other.Get([]byte("key000500")); err != nil || string(v) != "other" {
		t.Errorf("shared cache Get = %q, %v", v, err)
	}
}

func TestConcurrentGet(t *testing.T) {
	opts := testOptions()
	opts.BlockSize = 512
	opts.FilterPolicy = filter.NewBloomPolicy(10)
	opts.BlockCache = cache.NewShardedLRUCache(64<<10, 8)
	kvs := sequentialKVs(2000)
	tbl := openTable(t, buildTable(t, opts, kvs), opts)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := g; i < len(kvs); i += 3 {
				got, err := tbl.Get([]byte(kvs[i].key))
				if err != nil || string(got) != kvs[i].value {
					errs <- fmt.Errorf("Get(%q) = %q, %v", kvs[i].key, got, err)
					return
				}
				if _, err := tbl.Get([]byte(kvs[i].key + "~")); !errors.Is(err, ErrNotFound) {
					errs <- fmt.Errorf("Get(%q~) error = %v", kvs[i].key, err)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

// reverseComparator orders keys in descending bytewise order.
type reverseComparator struct{}

func (reverseComparator) Compare(a, b []byte) int                  { return bytes.Compare(b, a) }
func (reverseComparator) Name() string                             { return "test.ReverseComparator" }
func (reverseComparator) FindShortestSeparator(a, _ []byte) []byte { return a }
func (reverseComparator) FindShortSuccessor(a []byte) []byte       { return a }

func TestCustomComparator(t *testing.T) {
	opts := testOptions()
	opts.Comparator = reverseComparator{}
	opts.BlockSize = 64
	kvs := []kv{{"z", "26"}, {"q", "17"}, {"m", "13"}, {"d", "4"}, {"a", "1"}}
	tbl := openTable(t, buildTable(t, opts, kvs), opts)

	for _, e := range kvs {
		if v, err := tbl.Get([]byte(e.key)); err != nil || string(v) != e.value {
			t.Errorf("Get(%q) = %q, %v", e.key, v, err)
		}
	}
	if _, err := tbl.Get([]byte("b")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(b) error = %v", err)
	}

	props, err := tbl.Properties()
	if err != nil {
		t.Fatal(err)
	}
	if props.ComparatorName != "test.ReverseComparator" {
		t.Errorf("ComparatorName = %q", props.ComparatorName)
	}
}

func TestEmptyTable(t *testing.T) {
	opts := testOptions()
	opts.FilterPolicy = filter.NewBloomPolicy(10)
	data := buildTable(t, opts, nil)
	tbl := openTable(t, data, opts)

	if _, err := tbl.Get([]byte("a")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get on empty table error = %v", err)
	}
	it := tbl.NewIterator()
	defer it.Release()
	it.SeekToFirst()
	if it.Valid() {
		t.Error("iterator over empty table is valid")
	}
	if it.Error() != nil {
		t.Errorf("iterator error = %v", it.Error())
	}
}

func TestApproximateOffsetOf(t *testing.T) {
	opts := testOptions()
	opts.BlockSize = 256
	kvs := sequentialKVs(1000)
	tbl := openTable(t, buildTable(t, opts, kvs), opts)

	var prev uint64
	for i := 0; i < len(kvs); i += 50 {
		off := tbl.ApproximateOffsetOf([]byte(kvs[i].key))
		if off < prev {
			t.Errorf("offset of %q = %d, less than previous %d", kvs[i].key, off, prev)
		}
		prev = off
	}
	if got := tbl.ApproximateOffsetOf([]byte("a")); got != 0 {
		t.Errorf("offset before first key = %d, want 0", got)
	}
	end := tbl.ApproximateOffsetOf([]byte("zzz"))
	if end != tbl.Footer().MetaindexHandle.Offset {
		t.Errorf("offset past last key = %d, want metaindex offset %d", end, tbl.Footer().MetaindexHandle.Offset)
	}
	if end < prev {
		t.Errorf("offset past last key %d < %d", end, prev)
	}
}

func TestNoProperties(t *testing.T) {
	// Hand-assembled table: one data block, empty metaindex, index.
	data := block.NewBuilder(1, nil)
	data.Add([]byte("k"), []byte("v"))
	var file []byte
	dataHandle := block.Handle{Offset: 0}
	file = append(file, data.Finish()...)
	dataHandle.Size = uint64(len(file))

	metaHandle := block.Handle{Offset: uint64(len(file))}
	file = append(file, block.NewBuilder(1, nil).Finish()...)
	metaHandle.Size = uint64(len(file)) - metaHandle.Offset

	index := block.NewBuilder(1, nil)
	index.Add([]byte("k"), dataHandle.EncodeTo(nil))
	indexHandle := block.Handle{Offset: uint64(len(file))}
	file = append(file, index.Finish()...)
	indexHandle.Size = uint64(len(file)) - indexHandle.Offset

	footer := block.Footer{IndexHandle: indexHandle, MetaindexHandle: metaHandle}
	file = footer.EncodeTo(file)

	opts := testOptions()
	opts.FilterPolicy = filter.NewBloomPolicy(10)
	tbl := openTable(t, file, opts)
	if tbl.HasFilter() {
		t.Error("HasFilter() = true with an empty metaindex")
	}
	if v, err := tbl.Get([]byte("k")); err != nil || string(v) != "v" {
		t.Errorf("Get = %q, %v", v, err)
	}
	if _, err := tbl.Properties(); !errors.Is(err, ErrNoProperties) {
		t.Errorf("Properties error = %v, want ErrNoProperties", err)
	}
}

func TestFilterMetaKey(t *testing.T) {
	got := string(filterMetaKey(filter.NewBloomPolicy(10)))
	if got != "filter.blocktable.BuiltinBloomFilter" {
		t.Errorf("filterMetaKey = %q", got)
	}
	if comparator.Default().Name() != "leveldb.BytewiseComparator" {
		t.Errorf("default comparator = %q", comparator.Default().Name())
	}
}

func BenchmarkGet(b *testing.B) {
	for _, withCache := range []bool{false, true} {
		b.Run(fmt.Sprintf("cache=%v", withCache), func(b *testing.B) {
			opts := testOptions()
			opts.FilterPolicy = filter.NewBloomPolicy(10)
			if withCache {
				opts.BlockCache = cache.NewShardedLRUCache(8<<20, 16)
			}
			kvs := sequentialKVs(10000)
			tbl := openTable(b, buildTable(b, opts, kvs), opts)

			b.ResetTimer()
			for i := 0; b.Loop(); i++ {
				if _, err := tbl.Get([]byte(kvs[i%len(kvs)].key)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
