// Package block implements the on-disk block format of a table file.
//
// A block holds a run of sorted entries with prefix-compressed keys,
// followed by a restart array:
//
//	entries:      [entry 1] ... [entry N]
//	restarts:     uint32[num_restarts]  offsets of restart entries
//	num_restarts: uint32
//
// Each entry has the format:
//
//	shared_bytes:   varint32 (prefix shared with the previous key)
//	unshared_bytes: varint32
//	value_length:   varint32
//	key_delta:      char[unshared_bytes]
//	value:          char[value_length]
//
// Entries at a restart point store their full key (shared_bytes == 0).
// All fixed-width integers are little-endian.
package block

import (
	"fmt"

	"github.com/aalhour/blocktable/internal/encoding"
	"github.com/aalhour/blocktable/internal/status"
)

var (
	// ErrBadBlockHandle is returned when a block handle is corrupted.
	ErrBadBlockHandle = status.Corruptionf("bad block handle")

	// ErrBadFooter is returned when a table footer is corrupted.
	ErrBadFooter = status.Corruptionf("bad table footer")

	// ErrBadBlock is returned when a block is corrupted.
	ErrBadBlock = status.Corruptionf("corrupted block")
)

// Handle is a pointer to the extent of a file that stores a block.
type Handle struct {
	Offset uint64
	Size   uint64
}

// MaxEncodedLength is the maximum encoding length of a Handle.
// Two varint64s, each up to 10 bytes.
const MaxEncodedLength = 2 * encoding.MaxVarint64Length

// EncodeTo appends the encoding of h to dst.
func (h Handle) EncodeTo(dst []byte) []byte {
	dst = encoding.AppendVarint64(dst, h.Offset)
	return encoding.AppendVarint64(dst, h.Size)
}

// EncodedLength returns the encoded length of this handle.
func (h Handle) EncodedLength() int {
	return encoding.VarintLength(h.Offset) + encoding.VarintLength(h.Size)
}

// String implements fmt.Stringer.
func (h Handle) String() string {
	return fmt.Sprintf("offset=%d size=%d", h.Offset, h.Size)
}

// DecodeHandle decodes a block handle from the start of data and returns
// the remaining bytes.
func DecodeHandle(data []byte) (Handle, []byte, error) {
	offset, n, err := encoding.DecodeVarint64(data)
	if err != nil {
		return Handle{}, nil, fmt.Errorf("%w: offset: %v", ErrBadBlockHandle, err)
	}
	data = data[n:]

	size, n, err := encoding.DecodeVarint64(data)
	if err != nil {
		return Handle{}, nil, fmt.Errorf("%w: size: %v", ErrBadBlockHandle, err)
	}
	return Handle{Offset: offset, Size: size}, data[n:], nil
}
