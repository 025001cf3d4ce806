// Package encoding provides the integer codecs used by the table format.
//
// Fixed-width integers are little-endian. Variable-length integers use
// 7 bits per byte with the high bit set on every byte except the last.
package encoding

import (
	"encoding/binary"
	"errors"
)

const (
	// MaxVarint32Length is the maximum number of bytes a varint32 can occupy.
	MaxVarint32Length = 5

	// MaxVarint64Length is the maximum number of bytes a varint64 can occupy.
	MaxVarint64Length = 10
)

var (
	// ErrVarintOverflow is returned when a varint does not fit its target width.
	ErrVarintOverflow = errors.New("encoding: varint overflow")

	// ErrVarintTermination is returned when the input ends inside a varint.
	ErrVarintTermination = errors.New("encoding: varint not terminated")
)

// -----------------------------------------------------------------------------
// Fixed-width encoding
// -----------------------------------------------------------------------------

// DecodeFixed32 decodes a uint32 from the first 4 bytes of src.
// REQUIRES: len(src) >= 4.
func DecodeFixed32(src []byte) uint32 {
	return binary.LittleEndian.Uint32(src)
}

// DecodeFixed64 decodes a uint64 from the first 8 bytes of src.
// REQUIRES: len(src) >= 8.
func DecodeFixed64(src []byte) uint64 {
	return binary.LittleEndian.Uint64(src)
}

// AppendFixed32 appends a little-endian uint32 to dst.
func AppendFixed32(dst []byte, value uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, value)
}

// AppendFixed64 appends a little-endian uint64 to dst.
func AppendFixed64(dst []byte, value uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, value)
}

// -----------------------------------------------------------------------------
// Variable-length encoding
// -----------------------------------------------------------------------------

// EncodeVarint64 writes value into dst and returns the number of bytes used.
// REQUIRES: len(dst) >= VarintLength(value).
func EncodeVarint64(dst []byte, value uint64) int {
	const B = 128
	i := 0
	for value >= B {
		dst[i] = byte(value&(B-1)) | B
		value >>= 7
		i++
	}
	dst[i] = byte(value)
	return i + 1
}

// AppendVarint32 appends value as a varint to dst.
func AppendVarint32(dst []byte, value uint32) []byte {
	return AppendVarint64(dst, uint64(value))
}

// AppendVarint64 appends value as a varint to dst.
func AppendVarint64(dst []byte, value uint64) []byte {
	var buf [MaxVarint64Length]byte
	n := EncodeVarint64(buf[:], value)
	return append(dst, buf[:n]...)
}

// DecodeVarint32 decodes a varint32 from the start of src and returns the
// value and the number of bytes consumed.
func DecodeVarint32(src []byte) (uint32, int, error) {
	v, n, err := decodeVarint(src, MaxVarint32Length)
	if err != nil {
		return 0, 0, err
	}
	if v > 0xFFFFFFFF {
		return 0, 0, ErrVarintOverflow
	}
	return uint32(v), n, nil
}

// DecodeVarint64 decodes a varint64 from the start of src and returns the
// value and the number of bytes consumed.
func DecodeVarint64(src []byte) (uint64, int, error) {
	return decodeVarint(src, MaxVarint64Length)
}

func decodeVarint(src []byte, maxLen int) (uint64, int, error) {
	var result uint64
	for i := range maxLen {
		if i >= len(src) {
			return 0, 0, ErrVarintTermination
		}
		b := src[i]
		if i == MaxVarint64Length-1 && b > 1 {
			return 0, 0, ErrVarintOverflow
		}
		result |= uint64(b&0x7f) << (7 * uint(i))
		if b < 0x80 {
			return result, i + 1, nil
		}
	}
	return 0, 0, ErrVarintOverflow
}

// VarintLength returns the number of bytes needed to encode v as a varint.
func VarintLength(v uint64) int {
	length := 1
	for v >= 128 {
		v >>= 7
		length++
	}
	return length
}
