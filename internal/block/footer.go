// footer.go implements the fixed-size trailer at the end of a table file.
//
// Layout (48 bytes):
//
//	index_handle:     varint64 offset, varint64 size
//	metaindex_handle: varint64 offset, varint64 size
//	padding:          zeros up to byte 40
//	magic:            fixed64 0xdb4775248b80fb57
package block

import (
	"fmt"

	"github.com/aalhour/blocktable/internal/encoding"
)

// MagicNumber identifies a table file. It occupies the last 8 bytes.
const MagicNumber uint64 = 0xdb4775248b80fb57

const (
	// MagicNumberLength is the length of the magic number in bytes.
	MagicNumberLength = 8

	// EncodedLength is the exact size of an encoded footer.
	EncodedLength = 2*MaxEncodedLength + MagicNumberLength
)

// Footer locates the index and metaindex blocks of a table.
type Footer struct {
	IndexHandle     Handle
	MetaindexHandle Handle
}

// EncodeTo appends exactly EncodedLength bytes to dst.
func (f *Footer) EncodeTo(dst []byte) []byte {
	start := len(dst)
	dst = f.IndexHandle.EncodeTo(dst)
	dst = f.MetaindexHandle.EncodeTo(dst)
	for len(dst)-start < EncodedLength-MagicNumberLength {
		dst = append(dst, 0)
	}
	return encoding.AppendFixed64(dst, MagicNumber)
}

// DecodeFooter decodes a footer. data must be exactly EncodedLength bytes.
func DecodeFooter(data []byte) (*Footer, error) {
	if len(data) != EncodedLength {
		return nil, fmt.Errorf("%w: length %d, want %d", ErrBadFooter, len(data), EncodedLength)
	}

	if magic := encoding.DecodeFixed64(data[EncodedLength-MagicNumberLength:]); magic != MagicNumber {
		return nil, fmt.Errorf("%w: bad magic number %#x", ErrBadFooter, magic)
	}

	handles := data[:EncodedLength-MagicNumberLength]
	index, rest, err := DecodeHandle(handles)
	if err != nil {
		return nil, fmt.Errorf("index handle: %w", err)
	}
	meta, _, err := DecodeHandle(rest)
	if err != nil {
		return nil, fmt.Errorf("metaindex handle: %w", err)
	}
	return &Footer{IndexHandle: index, MetaindexHandle: meta}, nil
}
