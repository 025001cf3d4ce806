// Package table reads and writes block tables.
//
// File layout:
//
//	[data block 1]
//	...
//	[data block N]
//	[filter block]       (optional)
//	[properties block]
//	[metaindex block]
//	[index block]
//	[footer]             (48 bytes, at end of file)
//
// The index block maps a separator key for every data block to that
// block's handle. Every separator is >= the last key of its block and <
// the first key of the next one. The metaindex block maps
// "filter.<policy name>" to the filter block and PropertiesBlockName to
// the properties block.
package table

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aalhour/blocktable/internal/block"
	"github.com/aalhour/blocktable/internal/cache"
	"github.com/aalhour/blocktable/internal/comparator"
	"github.com/aalhour/blocktable/internal/filter"
	"github.com/aalhour/blocktable/internal/logging"
	"github.com/aalhour/blocktable/internal/status"
	"github.com/aalhour/blocktable/internal/vfs"
)

var (
	// ErrNotFound is returned by Get for a key absent from the table.
	ErrNotFound = status.NotFoundf("table: key not found")

	// ErrTooShort is returned by Open for a file smaller than a footer.
	ErrTooShort = status.Corruptionf("table: file is too short to be a table")

	// ErrNoProperties is returned by Properties for a table written
	// without a properties block.
	ErrNoProperties = status.NotFoundf("table: no properties block")
)

// Table is an open, immutable table file.
//
// Get and NewIterator may be called concurrently. The table does not own
// its file: Close leaves it open.
type Table struct {
	file   vfs.RandomAccessFile
	size   int64
	opts   Options
	logger logging.Logger

	footer          *block.Footer
	indexBlock      *block.Block
	filter          *filter.BlockReader
	metaindexHandle block.Handle

	cache   cache.Cache
	cacheID uint64

	propsOnce sync.Once
	props     *Properties
	propsErr  error
}

// Open opens the table stored in the first size bytes of file.
//
// A file shorter than a footer, a bad footer or a bad index block is
// reported as Corruption; a failing read as IOError. Problems with the
// metaindex or filter block are logged and the table is opened without a
// filter.
func Open(file vfs.RandomAccessFile, size int64, opts *Options) (*Table, error) {
	if size < block.EncodedLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooShort, size)
	}

	o := opts.sanitized()
	t := &Table{
		file:   file,
		size:   size,
		opts:   o,
		logger: o.Logger,
		cache:  o.BlockCache,
	}

	footerData := make([]byte, block.EncodedLength)
	if err := t.readAt(footerData, size-block.EncodedLength); err != nil {
		return nil, err
	}
	footer, err := block.DecodeFooter(footerData)
	if err != nil {
		return nil, err
	}
	t.footer = footer
	t.metaindexHandle = footer.MetaindexHandle

	indexData, err := t.readBlock(footer.IndexHandle)
	if err != nil {
		return nil, fmt.Errorf("read index block: %w", err)
	}
	t.indexBlock, err = block.NewBlock(indexData)
	if err != nil {
		return nil, fmt.Errorf("index block: %w", err)
	}

	if t.cache != nil {
		t.cacheID = t.cache.NewID()
	}

	t.readMeta()
	t.logger.Debugf(logging.NSTable+"opened table: %d bytes, index %s, filter %v",
		size, footer.IndexHandle, t.filter != nil)
	return t, nil
}

// readMeta loads the filter block named by the metaindex. Failures are
// logged and leave the table without a filter.
func (t *Table) readMeta() {
	if t.opts.FilterPolicy == nil {
		return
	}

	data, err := t.readBlock(t.footer.MetaindexHandle)
	if err != nil {
		t.logger.Warnf(logging.NSTable+"read metaindex block: %v", err)
		return
	}
	meta, err := block.NewBlock(data)
	if err != nil {
		t.logger.Warnf(logging.NSTable+"metaindex block: %v", err)
		return
	}

	key := filterMetaKey(t.opts.FilterPolicy)
	it := meta.NewIterator(comparator.Default())
	defer it.Release()
	it.Seek(key)
	if it.Valid() && bytes.Equal(it.Key(), key) {
		t.readFilter(it.Value())
	} else if err := it.Error(); err != nil {
		t.logger.Warnf(logging.NSTable+"metaindex block: %v", err)
	}
}

// readFilter loads the filter block whose encoded handle is filterHandle.
func (t *Table) readFilter(filterHandle []byte) {
	h, _, err := block.DecodeHandle(filterHandle)
	if err != nil {
		t.logger.Warnf(logging.NSTable+"filter handle: %v", err)
		return
	}
	data, err := t.readBlock(h)
	if err != nil {
		t.logger.Warnf(logging.NSTable+"read filter block: %v", err)
		return
	}
	r, err := filter.NewBlockReader(t.opts.FilterPolicy, data)
	if err != nil {
		t.logger.Warnf(logging.NSTable+"filter block: %v", err)
		return
	}
	t.filter = r
}

// readAt fills buf from offset off. Short reads are Corruption, read
// failures IOError.
func (t *Table) readAt(buf []byte, off int64) error {
	n, err := t.file.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return status.Corruptionf("table: truncated read: %d of %d bytes at offset %d", n, len(buf), off)
	}
	return status.WrapIO(fmt.Sprintf("read %d bytes at offset %d", len(buf), off), err)
}

// readBlock reads the raw contents of the block at h.
func (t *Table) readBlock(h block.Handle) ([]byte, error) {
	end := h.Offset + h.Size
	if end < h.Offset || end > uint64(t.size) {
		return nil, fmt.Errorf("%w: %s beyond file size %d", block.ErrBadBlockHandle, h, t.size)
	}
	buf := make([]byte, h.Size)
	if err := t.readAt(buf, int64(h.Offset)); err != nil {
		return nil, err
	}
	return buf, nil
}

// blockReader returns an iterator over the data block whose encoded handle
// is indexValue. The block comes from the block cache when one is
// configured; the iterator's cleanup releases the cache handle.
func (t *Table) blockReader(indexValue []byte) (*block.Iterator, error) {
	h, _, err := block.DecodeHandle(indexValue)
	if err != nil {
		return nil, err
	}

	var (
		key    = cache.Key{CacheID: t.cacheID, BlockOffset: h.Offset}
		handle *cache.Handle
		data   []byte
	)
	if t.cache != nil {
		handle = t.cache.Lookup(key)
	}
	if handle != nil {
		data = handle.Value()
	} else {
		data, err = t.readBlock(h)
		if err != nil {
			return nil, err
		}
	}

	blk, err := block.NewBlock(data)
	if err != nil {
		if handle != nil {
			t.cache.Release(handle)
		}
		return nil, err
	}
	if handle == nil && t.cache != nil {
		handle = t.cache.Insert(key, data, uint64(len(data)))
	}

	it := blk.NewIterator(t.opts.Comparator)
	if handle != nil {
		c := t.cache
		it.RegisterCleanup(func() { c.Release(handle) })
	}
	return it, nil
}

// Get returns a copy of the value stored under key.
//
// A missing key yields an error wrapping status.ErrNotFound. If the
// filter rules the key out, no data block is read. Errors decoding the
// index or the data block take precedence over NotFound.
func (t *Table) Get(key []byte) ([]byte, error) {
	iiter := t.indexBlock.NewIterator(t.opts.Comparator)
	defer iiter.Release()

	iiter.Seek(key)
	if !iiter.Valid() {
		if err := iiter.Error(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	handleValue := iiter.Value()
	if t.filter != nil {
		h, _, err := block.DecodeHandle(handleValue)
		if err != nil {
			return nil, err
		}
		if !t.filter.KeyMayMatch(h.Offset, key) {
			return nil, ErrNotFound
		}
	}

	biter, err := t.blockReader(handleValue)
	if err != nil {
		return nil, err
	}
	defer biter.Release()

	biter.Seek(key)
	if !biter.Valid() {
		if err := biter.Error(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	if t.opts.Comparator.Compare(biter.Key(), key) != 0 {
		return nil, ErrNotFound
	}
	return bytes.Clone(biter.Value()), nil
}

// KeyMayMatch reports whether the filter admits key. It returns true when
// the table has no filter.
func (t *Table) KeyMayMatch(key []byte) bool {
	if t.filter == nil {
		return true
	}
	iiter := t.indexBlock.NewIterator(t.opts.Comparator)
	defer iiter.Release()
	iiter.Seek(key)
	if !iiter.Valid() {
		return iiter.Error() != nil
	}
	h, _, err := block.DecodeHandle(iiter.Value())
	if err != nil {
		return true
	}
	return t.filter.KeyMayMatch(h.Offset, key)
}

// NewIndexIterator returns an iterator over the index block. Values are
// encoded block handles. The caller must Release it.
func (t *Table) NewIndexIterator() *block.Iterator {
	return t.indexBlock.NewIterator(t.opts.Comparator)
}

// ApproximateOffsetOf returns the approximate file offset at which the
// data for key begins. Keys past the last one map to the start of the
// metaindex block, which is close to the end of the data.
func (t *Table) ApproximateOffsetOf(key []byte) uint64 {
	iiter := t.indexBlock.NewIterator(t.opts.Comparator)
	defer iiter.Release()
	iiter.Seek(key)
	if iiter.Valid() {
		if h, _, err := block.DecodeHandle(iiter.Value()); err == nil {
			return h.Offset
		}
	}
	return t.metaindexHandle.Offset
}

// Properties returns the table properties, reading the properties block
// on first use.
func (t *Table) Properties() (*Properties, error) {
	t.propsOnce.Do(func() {
		t.props, t.propsErr = t.readProperties()
	})
	return t.props, t.propsErr
}

func (t *Table) readProperties() (*Properties, error) {
	data, err := t.readBlock(t.footer.MetaindexHandle)
	if err != nil {
		return nil, fmt.Errorf("read metaindex block: %w", err)
	}
	meta, err := block.NewBlock(data)
	if err != nil {
		return nil, err
	}
	it := meta.NewIterator(comparator.Default())
	defer it.Release()

	key := []byte(PropertiesBlockName)
	it.Seek(key)
	if !it.Valid() || !bytes.Equal(it.Key(), key) {
		if err := it.Error(); err != nil {
			return nil, err
		}
		return nil, ErrNoProperties
	}
	h, _, err := block.DecodeHandle(it.Value())
	if err != nil {
		return nil, err
	}
	propsData, err := t.readBlock(h)
	if err != nil {
		return nil, fmt.Errorf("read properties block: %w", err)
	}
	return ParsePropertiesBlock(propsData)
}

// Footer returns the decoded footer.
func (t *Table) Footer() *block.Footer {
	return t.footer
}

// Comparator returns the comparator the table was opened with.
func (t *Table) Comparator() comparator.Comparator {
	return t.opts.Comparator
}

// HasFilter reports whether a filter block was loaded.
func (t *Table) HasFilter() bool {
	return t.filter != nil
}

// Size returns the table size passed to Open.
func (t *Table) Size() int64 {
	return t.size
}

// Close drops the index block and filter. The file is left open. Close
// must not be called while iterators are in use.
func (t *Table) Close() error {
	t.indexBlock = nil
	t.filter = nil
	return nil
}
