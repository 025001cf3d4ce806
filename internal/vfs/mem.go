package vfs

import (
	"bytes"
	"io"
	"io/fs"
	"path/filepath"
	"sync"
)

// MemFS is an in-memory FS. It is safe for concurrent use.
type MemFS struct {
	mu    sync.RWMutex
	files map[string]*memNode
}

type memNode struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemFS returns an empty in-memory filesystem.
func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string]*memNode)}
}

func (m *MemFS) lookup(name string) (*memNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.files[filepath.Clean(name)]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return n, nil
}

// Create creates or truncates name.
func (m *MemFS) Create(name string) (WritableFile, error) {
	n := &memNode{}
	m.mu.Lock()
	m.files[filepath.Clean(name)] = n
	m.mu.Unlock()
	return &memWritableFile{node: n}, nil
}

// Open opens name for sequential reading of its current contents.
func (m *MemFS) Open(name string) (SequentialFile, error) {
	n, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(n.snapshot())), nil
}

// OpenRandomAccess opens name for positioned reads of its current contents.
func (m *MemFS) OpenRandomAccess(name string) (RandomAccessFile, error) {
	n, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	return NewMemFile(n.snapshot()), nil
}

// Remove deletes name.
func (m *MemFS) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := filepath.Clean(name)
	if _, ok := m.files[key]; !ok {
		return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
	}
	delete(m.files, key)
	return nil
}

// Exists reports whether name exists.
func (m *MemFS) Exists(name string) bool {
	_, err := m.lookup(name)
	return err == nil
}

func (n *memNode) snapshot() []byte {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.data[:len(n.data):len(n.data)]
}

type memWritableFile struct {
	node   *memNode
	closed bool
}

func (f *memWritableFile) Append(data []byte) error {
	if f.closed {
		return fs.ErrClosed
	}
	f.node.mu.Lock()
	f.node.data = append(f.node.data, data...)
	f.node.mu.Unlock()
	return nil
}

func (f *memWritableFile) Flush() error { return nil }
func (f *memWritableFile) Sync() error  { return nil }

func (f *memWritableFile) Close() error {
	f.closed = true
	return nil
}

func (f *memWritableFile) Size() int64 {
	f.node.mu.RLock()
	defer f.node.mu.RUnlock()
	return int64(len(f.node.data))
}

// MemFile is a read-only RandomAccessFile over a byte slice.
type MemFile struct {
	data []byte
}

// NewMemFile returns a RandomAccessFile reading from data. data is not
// copied and must not be modified.
func NewMemFile(data []byte) *MemFile {
	return &MemFile{data: data}
}

// ReadAt implements io.ReaderAt.
func (f *MemFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fs.ErrInvalid
	}
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Close implements io.Closer.
func (f *MemFile) Close() error { return nil }

// Size returns the length of the file.
func (f *MemFile) Size() int64 { return int64(len(f.data)) }
