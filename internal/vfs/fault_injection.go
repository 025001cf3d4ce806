package vfs

import (
	"errors"
	"path/filepath"
	"sync"
)

var (
	// ErrInjectedReadError is returned when a read error is injected.
	ErrInjectedReadError = errors.New("vfs: injected read error")

	// ErrInjectedWriteError is returned when a write error is injected.
	ErrInjectedWriteError = errors.New("vfs: injected write error")

	// ErrInjectedSyncError is returned when a sync error is injected.
	ErrInjectedSyncError = errors.New("vfs: injected sync error")
)

// FaultInjectionFS wraps an FS, injects errors on demand and counts the
// positioned reads issued against each file.
//
// Error injection is checked on every call, so an error injected after a
// file is opened affects later reads of that file.
type FaultInjectionFS struct {
	base FS

	mu               sync.RWMutex
	injectReadError  bool
	injectWriteError bool
	injectSyncError  bool
	readErrorPath    string
	writeErrorPath   string
	reads            map[string]int
}

// NewFaultInjectionFS creates a fault-injecting wrapper around base.
func NewFaultInjectionFS(base FS) *FaultInjectionFS {
	return &FaultInjectionFS{
		base:  base,
		reads: make(map[string]int),
	}
}

// InjectReadError makes reads of path fail. An empty path matches every
// file.
func (fs *FaultInjectionFS) InjectReadError(path string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.injectReadError = true
	fs.readErrorPath = clean(path)
}

// InjectWriteError makes creating and appending to path fail. An empty
// path matches every file.
func (fs *FaultInjectionFS) InjectWriteError(path string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.injectWriteError = true
	fs.writeErrorPath = clean(path)
}

// InjectSyncError makes every Sync fail.
func (fs *FaultInjectionFS) InjectSyncError() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.injectSyncError = true
}

// ClearErrors clears all error injection.
func (fs *FaultInjectionFS) ClearErrors() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.injectReadError = false
	fs.injectWriteError = false
	fs.injectSyncError = false
	fs.readErrorPath = ""
	fs.writeErrorPath = ""
}

// ReadCount returns the number of ReadAt calls made against name.
func (fs *FaultInjectionFS) ReadCount(name string) int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.reads[clean(name)]
}

// ResetCounts zeroes all read counters.
func (fs *FaultInjectionFS) ResetCounts() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	clear(fs.reads)
}

func clean(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Clean(path)
}

func (fs *FaultInjectionFS) readFails(path string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.injectReadError && (fs.readErrorPath == "" || fs.readErrorPath == path)
}

func (fs *FaultInjectionFS) writeFails(path string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.injectWriteError && (fs.writeErrorPath == "" || fs.writeErrorPath == path)
}

func (fs *FaultInjectionFS) syncFails() bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.injectSyncError
}

// Create creates a new writable file with fault injection.
func (fs *FaultInjectionFS) Create(name string) (WritableFile, error) {
	path := clean(name)
	if fs.writeFails(path) {
		return nil, ErrInjectedWriteError
	}
	base, err := fs.base.Create(name)
	if err != nil {
		return nil, err
	}
	return &faultWritableFile{base: base, fs: fs, path: path}, nil
}

// Open opens an existing file for sequential reading.
func (fs *FaultInjectionFS) Open(name string) (SequentialFile, error) {
	if fs.readFails(clean(name)) {
		return nil, ErrInjectedReadError
	}
	return fs.base.Open(name)
}

// OpenRandomAccess opens an existing file for positioned reads with
// fault injection and read counting.
func (fs *FaultInjectionFS) OpenRandomAccess(name string) (RandomAccessFile, error) {
	path := clean(name)
	if fs.readFails(path) {
		return nil, ErrInjectedReadError
	}
	base, err := fs.base.OpenRandomAccess(name)
	if err != nil {
		return nil, err
	}
	return &faultRandomAccessFile{base: base, fs: fs, path: path}, nil
}

// Remove deletes a file.
func (fs *FaultInjectionFS) Remove(name string) error {
	return fs.base.Remove(name)
}

// Exists reports whether the file exists.
func (fs *FaultInjectionFS) Exists(name string) bool {
	return fs.base.Exists(name)
}

type faultRandomAccessFile struct {
	base RandomAccessFile
	fs   *FaultInjectionFS
	path string
}

func (f *faultRandomAccessFile) ReadAt(p []byte, off int64) (int, error) {
	f.fs.mu.Lock()
	f.fs.reads[f.path]++
	f.fs.mu.Unlock()

	if f.fs.readFails(f.path) {
		return 0, ErrInjectedReadError
	}
	return f.base.ReadAt(p, off)
}

func (f *faultRandomAccessFile) Close() error {
	return f.base.Close()
}

func (f *faultRandomAccessFile) Size() int64 {
	return f.base.Size()
}

type faultWritableFile struct {
	base WritableFile
	fs   *FaultInjectionFS
	path string
}

func (f *faultWritableFile) Append(data []byte) error {
	if f.fs.writeFails(f.path) {
		return ErrInjectedWriteError
	}
	return f.base.Append(data)
}

func (f *faultWritableFile) Flush() error {
	if f.fs.writeFails(f.path) {
		return ErrInjectedWriteError
	}
	return f.base.Flush()
}

func (f *faultWritableFile) Sync() error {
	if f.fs.syncFails() {
		return ErrInjectedSyncError
	}
	return f.base.Sync()
}

func (f *faultWritableFile) Close() error {
	return f.base.Close()
}

func (f *faultWritableFile) Size() int64 {
	return f.base.Size()
}
