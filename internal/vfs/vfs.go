// Package vfs provides the file layer tables are read from and written to.
//
// Tables need only positioned reads on the read side, so a single opened
// RandomAccessFile can serve any number of concurrent lookups. The write
// side is append-only.
//
// Three implementations are provided: the OS filesystem, an in-memory
// filesystem for tests and tools, and a fault-injecting wrapper.
package vfs

import (
	"bufio"
	"io"
	"os"
)

// FS is the filesystem interface.
type FS interface {
	// Create creates a new writable file.
	// If the file already exists, it is truncated.
	Create(name string) (WritableFile, error)

	// Open opens an existing file for sequential reading.
	Open(name string) (SequentialFile, error)

	// OpenRandomAccess opens an existing file for positioned reads.
	OpenRandomAccess(name string) (RandomAccessFile, error)

	// Remove deletes a file.
	Remove(name string) error

	// Exists reports whether the file exists.
	Exists(name string) bool
}

// WritableFile is an append-only file.
type WritableFile interface {
	// Append appends data to the file. Data may be buffered until Flush.
	Append(data []byte) error

	// Flush hands buffered data to the operating system.
	Flush() error

	// Sync flushes and then commits the file contents to stable storage.
	Sync() error

	// Close flushes and closes the file.
	Close() error

	// Size returns the number of bytes appended so far.
	Size() int64
}

// SequentialFile is a file read from start to end.
type SequentialFile interface {
	io.Reader
	io.Closer
}

// RandomAccessFile is a file that can be read at any offset.
// ReadAt must be safe for concurrent use.
type RandomAccessFile interface {
	io.ReaderAt
	io.Closer

	// Size returns the file size.
	Size() int64
}

// writeBufferSize is the buffer in front of OS writable files.
const writeBufferSize = 64 << 10

// osFS implements FS using the OS filesystem.
type osFS struct{}

// Default returns the OS filesystem.
func Default() FS {
	return osFS{}
}

func (osFS) Create(name string) (WritableFile, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	return &osWritableFile{f: f, w: bufio.NewWriterSize(f, writeBufferSize)}, nil
}

func (osFS) Open(name string) (SequentialFile, error) {
	return os.Open(name)
}

func (osFS) OpenRandomAccess(name string) (RandomAccessFile, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &osRandomAccessFile{f: f, size: info.Size()}, nil
}

func (osFS) Remove(name string) error {
	return os.Remove(name)
}

func (osFS) Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// osWritableFile buffers appends in front of an os.File.
type osWritableFile struct {
	f    *os.File
	w    *bufio.Writer
	size int64
}

func (wf *osWritableFile) Append(data []byte) error {
	n, err := wf.w.Write(data)
	wf.size += int64(n)
	return err
}

func (wf *osWritableFile) Flush() error {
	return wf.w.Flush()
}

func (wf *osWritableFile) Sync() error {
	if err := wf.w.Flush(); err != nil {
		return err
	}
	return wf.f.Sync()
}

func (wf *osWritableFile) Close() error {
	flushErr := wf.w.Flush()
	closeErr := wf.f.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

func (wf *osWritableFile) Size() int64 {
	return wf.size
}

// osRandomAccessFile wraps os.File, whose ReadAt uses pread.
type osRandomAccessFile struct {
	f    *os.File
	size int64
}

func (rf *osRandomAccessFile) ReadAt(p []byte, off int64) (int, error) {
	return rf.f.ReadAt(p, off)
}

func (rf *osRandomAccessFile) Close() error {
	return rf.f.Close()
}

func (rf *osRandomAccessFile) Size() int64 {
	return rf.size
}
