// Package kvfile reads and writes key/value dump files.
//
// Each record is one line: the hex-encoded key, a tab, the hex-encoded
// value and a newline. The stream may be compressed with any codec from
// the compression package; Create and Open pick it from the file name.
package kvfile

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/aalhour/blocktable/internal/compression"
	"github.com/aalhour/blocktable/internal/vfs"
)

// maxLineSize bounds a single record line when reading.
const maxLineSize = 64 << 20

// ErrMalformedLine is returned for a line that is not a valid record.
var ErrMalformedLine = errors.New("kvfile: malformed line")

// Writer writes records to a dump file.
type Writer struct {
	codec io.WriteCloser
	buf   *bufio.Writer
	file  vfs.WritableFile // nil when wrapping a caller's io.Writer
	count int
	err   error
}

// NewWriter returns a Writer that encodes records into w using codec t.
// Close flushes the codec but leaves w open.
func NewWriter(w io.Writer, t compression.Type) (*Writer, error) {
	codec, err := compression.NewWriter(w, t)
	if err != nil {
		return nil, err
	}
	return &Writer{codec: codec, buf: bufio.NewWriter(codec)}, nil
}

// Create creates name on fs and returns a Writer for it. Close syncs and
// closes the file.
func Create(fs vfs.FS, name string) (*Writer, error) {
	f, err := fs.Create(name)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(appendWriter{f}, compression.TypeForPath(name))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.file = f
	return w, nil
}

// Add writes one record.
func (w *Writer) Add(key, value []byte) error {
	if w.err != nil {
		return w.err
	}
	line := make([]byte, 0, hex.EncodedLen(len(key))+hex.EncodedLen(len(value))+2)
	line = hex.AppendEncode(line, key)
	line = append(line, '\t')
	line = hex.AppendEncode(line, value)
	line = append(line, '\n')
	if _, err := w.buf.Write(line); err != nil {
		w.err = err
		return err
	}
	w.count++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	return w.count
}

// Close flushes buffered records and finishes the compressed stream.
func (w *Writer) Close() error {
	err := w.err
	if err == nil {
		err = w.buf.Flush()
	}
	if cerr := w.codec.Close(); err == nil {
		err = cerr
	}
	if w.file != nil {
		if err == nil {
			err = w.file.Sync()
		}
		if cerr := w.file.Close(); err == nil {
			err = cerr
		}
	}
	if w.err == nil {
		w.err = errors.New("kvfile: writer closed")
	}
	return err
}

// appendWriter adapts a vfs.WritableFile to io.Writer.
type appendWriter struct {
	f vfs.WritableFile
}

func (a appendWriter) Write(p []byte) (int, error) {
	if err := a.f.Append(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Reader iterates over the records of a dump file.
type Reader struct {
	codec   io.ReadCloser
	scanner *bufio.Scanner
	file    io.Closer
	line    int
	key     []byte
	value   []byte
	err     error
}

// NewReader returns a Reader decoding records from r with codec t.
func NewReader(r io.Reader, t compression.Type) (*Reader, error) {
	codec, err := compression.NewReader(r, t)
	if err != nil {
		return nil, err
	}
	s := bufio.NewScanner(codec)
	s.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	return &Reader{codec: codec, scanner: s}, nil
}

// Open opens name on fs for reading. Close also closes the file.
func Open(fs vfs.FS, name string) (*Reader, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f, compression.TypeForPath(name))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

// Next advances to the next record. Empty lines are skipped. It returns
// false at the end of input or on error; check Err.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	for r.scanner.Scan() {
		r.line++
		text := r.scanner.Bytes()
		if len(text) > 0 && text[len(text)-1] == '\r' {
			text = text[:len(text)-1]
		}
		if len(text) == 0 {
			continue
		}
		r.err = r.parse(text)
		return r.err == nil
	}
	r.err = r.scanner.Err()
	return false
}

func (r *Reader) parse(text []byte) error {
	tab := -1
	for i, c := range text {
		if c == '\t' {
			tab = i
			break
		}
	}
	if tab < 0 {
		return fmt.Errorf("%w %d: missing tab", ErrMalformedLine, r.line)
	}
	key, err := hex.AppendDecode(r.key[:0], text[:tab])
	if err != nil {
		return fmt.Errorf("%w %d: key: %v", ErrMalformedLine, r.line, err)
	}
	value, err := hex.AppendDecode(r.value[:0], text[tab+1:])
	if err != nil {
		return fmt.Errorf("%w %d: value: %v", ErrMalformedLine, r.line, err)
	}
	r.key, r.value = key, value
	return nil
}

// Key returns the current key. The slice is reused by Next.
func (r *Reader) Key() []byte { return r.key }

// Value returns the current value. The slice is reused by Next.
func (r *Reader) Value() []byte { return r.value }

// Err returns the first error encountered.
func (r *Reader) Err() error { return r.err }

// Close releases the codec and closes the file opened by Open.
func (r *Reader) Close() error {
	err := r.codec.Close()
	if r.file != nil {
		if cerr := r.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
