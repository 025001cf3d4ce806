// Package compression provides the stream codecs used for key/value dump
// files. Table blocks themselves are never compressed.
//
// A dump file's codec is chosen from its extension: ".sz" is the snappy
// framing format, ".zst" is Zstandard and ".lz4" is the LZ4 frame format.
// Anything else is read and written as is.
package compression

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type represents a compression algorithm.
type Type uint8

const (
	// NoCompression indicates no compression.
	NoCompression Type = 0x0

	// SnappyCompression uses the snappy framing format.
	SnappyCompression Type = 0x1

	// LZ4Compression uses the LZ4 frame format.
	LZ4Compression Type = 0x4

	// ZstdCompression uses Zstandard.
	ZstdCompression Type = 0x7
)

// ErrUnsupported is returned for a Type with no codec.
var ErrUnsupported = errors.New("compression: unsupported type")

// String returns the human-readable name of the compression type.
func (t Type) String() string {
	switch t {
	case NoCompression:
		return "NoCompression"
	case SnappyCompression:
		return "Snappy"
	case LZ4Compression:
		return "LZ4"
	case ZstdCompression:
		return "ZSTD"
	default:
		return fmt.Sprintf("Unknown(%d)", t)
	}
}

// IsSupported returns true if the compression type is supported.
func (t Type) IsSupported() bool {
	switch t {
	case NoCompression, SnappyCompression, LZ4Compression, ZstdCompression:
		return true
	default:
		return false
	}
}

// Extension returns the file extension for t, including the dot, or ""
// for NoCompression.
func (t Type) Extension() string {
	switch t {
	case SnappyCompression:
		return ".sz"
	case LZ4Compression:
		return ".lz4"
	case ZstdCompression:
		return ".zst"
	default:
		return ""
	}
}

// TypeForPath picks the codec for a dump file from its extension.
func TypeForPath(path string) Type {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sz", ".snappy":
		return SnappyCompression
	case ".lz4":
		return LZ4Compression
	case ".zst", ".zstd":
		return ZstdCompression
	default:
		return NoCompression
	}
}

// ParseType parses a codec name as accepted on the command line.
func ParseType(name string) (Type, error) {
	switch strings.ToLower(name) {
	case "", "none", "no":
		return NoCompression, nil
	case "snappy":
		return SnappyCompression, nil
	case "lz4":
		return LZ4Compression, nil
	case "zstd":
		return ZstdCompression, nil
	default:
		return NoCompression, fmt.Errorf("%w: %q", ErrUnsupported, name)
	}
}

// NewWriter wraps w so that data written is compressed with t. Closing the
// returned writer flushes the codec but does not close w.
func NewWriter(w io.Writer, t Type) (io.WriteCloser, error) {
	switch t {
	case NoCompression:
		return nopWriteCloser{w}, nil

	case SnappyCompression:
		return snappy.NewBufferedWriter(w), nil

	case LZ4Compression:
		zw := lz4.NewWriter(w)
		if err := zw.Apply(lz4.CompressionLevelOption(lz4.Fast)); err != nil {
			return nil, fmt.Errorf("lz4 apply level: %w", err)
		}
		return zw, nil

	case ZstdCompression:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		return zw, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, t)
	}
}

// NewReader wraps r so that reads return data decompressed with t.
// Closing the returned reader releases codec resources but does not
// close r.
func NewReader(r io.Reader, t Type) (io.ReadCloser, error) {
	switch t {
	case NoCompression:
		return io.NopCloser(r), nil

	case SnappyCompression:
		return io.NopCloser(snappy.NewReader(r)), nil

	case LZ4Compression:
		return io.NopCloser(lz4.NewReader(r)), nil

	case ZstdCompression:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		return zstdReadCloser{zr}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, t)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// zstd.Decoder.Close has no error result.
type zstdReadCloser struct {
	*zstd.Decoder
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}
