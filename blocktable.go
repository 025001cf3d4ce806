package blocktable

import (
	"errors"
	"fmt"

	"github.com/aalhour/blocktable/internal/cache"
	"github.com/aalhour/blocktable/internal/status"
	"github.com/aalhour/blocktable/internal/table"
	"github.com/aalhour/blocktable/internal/vfs"
)

var (
	// ErrNotFound is wrapped by errors for keys absent from a table.
	ErrNotFound = status.ErrNotFound

	// ErrCorruption is wrapped by errors for malformed table data.
	ErrCorruption = status.ErrCorruption

	// ErrIO is wrapped by errors from the underlying file layer.
	ErrIO = status.ErrIO
)

// IsNotFound reports whether err marks a missing key.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsCorruption reports whether err marks malformed table data.
func IsCorruption(err error) bool { return errors.Is(err, ErrCorruption) }

// IsIOError reports whether err comes from the file layer.
func IsIOError(err error) bool { return errors.Is(err, ErrIO) }

// Iterator walks a table in key order. See Table.NewIterator.
type Iterator = table.Iterator

// Properties describes a table's contents.
type Properties = table.Properties

// Table is an open table file.
type Table struct {
	*table.Table
	file vfs.RandomAccessFile
}

// Open opens the table at path.
func Open(path string, opts *Options) (*Table, error) {
	opts = orDefault(opts)
	f, err := opts.fs().OpenRandomAccess(path)
	if err != nil {
		return nil, status.WrapIO("open "+path, err)
	}

	var c cache.Cache
	switch {
	case opts.BlockCache != nil:
		c = opts.BlockCache
	case opts.BlockCacheSize > 0:
		c = NewLRUCache(opts.BlockCacheSize)
	}

	t, err := table.Open(f, f.Size(), opts.tableOptions(c))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Table{Table: t, file: f}, nil
}

// Close releases the table and closes its file.
func (t *Table) Close() error {
	if err := t.Table.Close(); err != nil {
		_ = t.file.Close()
		return err
	}
	return t.file.Close()
}

// Writer writes a new table file.
type Writer struct {
	*table.Writer
	file vfs.WritableFile
	done bool
}

// Create creates the table file at path, truncating any existing file.
// Keys must be added in ascending order.
func Create(path string, opts *Options) (*Writer, error) {
	opts = orDefault(opts)
	f, err := opts.fs().Create(path)
	if err != nil {
		return nil, status.WrapIO("create "+path, err)
	}
	return &Writer{Writer: table.NewWriter(f, opts.tableOptions(nil)), file: f}, nil
}

// Finish completes the table and closes the file.
func (w *Writer) Finish() error {
	if w.done {
		return table.ErrWriterClosed
	}
	w.done = true
	if err := w.Writer.Finish(); err != nil {
		_ = w.file.Close()
		return err
	}
	return status.WrapIO("close table file", w.file.Close())
}

// Abandon discards the table and closes the file. The partial file is
// left on disk.
func (w *Writer) Abandon() error {
	if w.done {
		return nil
	}
	w.done = true
	w.Writer.Abandon()
	return w.file.Close()
}
