package table

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"github.com/aalhour/blocktable/internal/block"
	"github.com/aalhour/blocktable/internal/comparator"
	"github.com/aalhour/blocktable/internal/filter"
	"github.com/aalhour/blocktable/internal/logging"
	"github.com/aalhour/blocktable/internal/status"
	"github.com/aalhour/blocktable/internal/vfs"
)

// ErrWriterClosed is returned by a Writer after Finish or Abandon.
var ErrWriterClosed = errors.New("table: writer already finished or abandoned")

// Writer builds a table by appending sorted entries to a file.
//
// After a file error every method returns that error. The file is flushed
// and synced by Finish but never closed.
type Writer struct {
	file   vfs.WritableFile
	opts   Options
	cmp    comparator.Comparator
	logger logging.Logger

	dataBlock   *block.Builder
	indexBlock  *block.Builder
	filterBlock *filter.BlockBuilder // nil without a filter policy

	// The index entry for a flushed block is emitted when the next key
	// arrives, so the separator can be shortened against it.
	pendingIndexEntry bool
	pendingHandle     block.Handle
	lastKey           []byte

	offset uint64
	props  Properties

	closed bool
	err    error
}

// NewWriter returns a Writer appending to f.
func NewWriter(f vfs.WritableFile, opts *Options) *Writer {
	o := opts.sanitized()
	w := &Writer{
		file:       f,
		opts:       o,
		cmp:        o.Comparator,
		logger:     o.Logger,
		dataBlock:  block.NewBuilder(o.BlockRestartInterval, o.Comparator),
		indexBlock: block.NewBuilder(1, o.Comparator),
	}
	w.props.ComparatorName = o.Comparator.Name()
	if o.FilterPolicy != nil {
		w.filterBlock = filter.NewBlockBuilder(o.FilterPolicy)
		w.filterBlock.StartBlock(0)
		w.props.FilterPolicyName = o.FilterPolicy.Name()
	}
	return w
}

// Add appends an entry. key must sort after every key added before it.
func (w *Writer) Add(key, value []byte) error {
	if w.closed {
		return ErrWriterClosed
	}
	if w.err != nil {
		return w.err
	}
	if w.props.NumEntries > 0 && w.cmp.Compare(key, w.lastKey) <= 0 {
		return fmt.Errorf("%w: %q after %q", block.ErrKeyOrder, key, w.lastKey)
	}

	if w.pendingIndexEntry {
		sep := w.cmp.FindShortestSeparator(w.lastKey, key)
		if err := w.indexBlock.Add(sep, w.pendingHandle.EncodeTo(nil)); err != nil {
			w.err = err
			return err
		}
		w.pendingIndexEntry = false
	}

	if w.filterBlock != nil {
		w.filterBlock.AddKey(key)
	}

	w.lastKey = append(w.lastKey[:0], key...)
	w.props.NumEntries++
	w.props.RawKeySize += uint64(len(key))
	w.props.RawValueSize += uint64(len(value))
	if err := w.dataBlock.Add(key, value); err != nil {
		w.err = err
		return err
	}

	if w.dataBlock.CurrentSizeEstimate() >= w.opts.BlockSize {
		return w.Flush()
	}
	return nil
}

// Flush writes the pending data block, if any, and flushes the file.
// Add calls it once the block reaches the target size.
func (w *Writer) Flush() error {
	if w.closed {
		return ErrWriterClosed
	}
	if w.err != nil {
		return w.err
	}
	if w.dataBlock.Empty() {
		return nil
	}

	handle, err := w.writeRawBlock(w.dataBlock.Finish())
	if err != nil {
		return err
	}
	w.dataBlock.Reset()
	w.pendingHandle = handle
	w.pendingIndexEntry = true
	w.props.NumDataBlocks++
	w.props.DataSize += handle.Size

	if err := w.file.Flush(); err != nil {
		w.err = status.WrapIO("flush table file", err)
		return w.err
	}
	if w.filterBlock != nil {
		w.filterBlock.StartBlock(w.offset)
	}
	return nil
}

// writeRawBlock appends contents and returns its handle.
func (w *Writer) writeRawBlock(contents []byte) (block.Handle, error) {
	h := block.Handle{Offset: w.offset, Size: uint64(len(contents))}
	if err := w.file.Append(contents); err != nil {
		w.err = status.WrapIO(fmt.Sprintf("append block at offset %d", w.offset), err)
		return block.Handle{}, w.err
	}
	w.offset += h.Size
	return h, nil
}

// Finish writes the remaining data, the filter, properties, metaindex and
// index blocks and the footer, then syncs the file.
func (w *Writer) Finish() error {
	if err := w.Flush(); err != nil {
		return err
	}
	w.closed = true

	meta := block.NewBuilder(1, comparator.Default())
	var metaEntries [][2][]byte

	if w.filterBlock != nil {
		h, err := w.writeRawBlock(w.filterBlock.Finish())
		if err != nil {
			return err
		}
		w.props.FilterSize = h.Size
		metaEntries = append(metaEntries, [2][]byte{filterMetaKey(w.opts.FilterPolicy), h.EncodeTo(nil)})
	}

	if w.pendingIndexEntry {
		succ := w.cmp.FindShortSuccessor(w.lastKey)
		if err := w.indexBlock.Add(succ, w.pendingHandle.EncodeTo(nil)); err != nil {
			w.err = err
			return err
		}
		w.pendingIndexEntry = false
	}
	indexContents := w.indexBlock.Finish()
	w.props.IndexSize = uint64(len(indexContents))

	propsHandle, err := w.writeRawBlock(w.props.encode())
	if err != nil {
		return err
	}
	metaEntries = append(metaEntries, [2][]byte{[]byte(PropertiesBlockName), propsHandle.EncodeTo(nil)})

	slices.SortFunc(metaEntries, func(a, b [2][]byte) int { return bytes.Compare(a[0], b[0]) })
	for _, e := range metaEntries {
		if err := meta.Add(e[0], e[1]); err != nil {
			w.err = err
			return err
		}
	}
	metaindexHandle, err := w.writeRawBlock(meta.Finish())
	if err != nil {
		return err
	}
	indexHandle, err := w.writeRawBlock(indexContents)
	if err != nil {
		return err
	}

	footer := block.Footer{IndexHandle: indexHandle, MetaindexHandle: metaindexHandle}
	if err := w.file.Append(footer.EncodeTo(nil)); err != nil {
		w.err = status.WrapIO("append footer", err)
		return w.err
	}
	w.offset += block.EncodedLength

	if err := w.file.Sync(); err != nil {
		w.err = status.WrapIO("sync table file", err)
		return w.err
	}

	w.logger.Infof(logging.NSBuild+"finished table: %d entries, %d data blocks, %d bytes",
		w.props.NumEntries, w.props.NumDataBlocks, w.offset)
	return nil
}

// Abandon stops the writer without completing the table. The bytes
// already appended are left in the file.
func (w *Writer) Abandon() {
	w.closed = true
}

// NumEntries returns the number of entries added.
func (w *Writer) NumEntries() uint64 {
	return w.props.NumEntries
}

// FileSize returns the number of bytes written so far. After Finish it
// is the size of the complete table.
func (w *Writer) FileSize() uint64 {
	return w.offset
}

// Err returns the sticky error, if any.
func (w *Writer) Err() error {
	return w.err
}
