// Package filter implements the table filter block and its Bloom policy.
//
// The Bloom filter is cache-local: all probes for a key fall within a
// single 64-byte cache line. Keys are hashed with XXH3.
//
// Bloom filter layout:
//
//	data[0:len-5]  = filter bits (whole cache lines)
//	data[len-5]    = 0xFF marker
//	data[len-4]    = 0 (cache-local sub-implementation)
//	data[len-3]    = num_probes
//	data[len-2]    = 0 (cache line size indicator: 0 = 64 bytes)
//	data[len-1]    = 0 (reserved)
package filter

import (
	"github.com/zeebo/xxh3"
)

const (
	// CacheLineSize is the size of a CPU cache line in bytes.
	CacheLineSize = 64

	// CacheLineBits is the number of bits in a cache line.
	CacheLineBits = CacheLineSize * 8

	// MetadataLen is the number of metadata bytes at the end of a filter.
	MetadataLen = 5

	// BloomMarker is the first metadata byte.
	BloomMarker = byte(0xFF)

	// LocalBloomMarker identifies the cache-local sub-implementation.
	LocalBloomMarker = byte(0x00)
)

// Policy creates and queries the filter stored for one bucket of data
// blocks. Implementations must be safe for concurrent use.
type Policy interface {
	// Name is stored in the metaindex block. A table can only use a
	// filter whose policy name matches.
	Name() string

	// AppendFilter appends a filter covering keys to dst.
	AppendFilter(dst []byte, keys [][]byte) []byte

	// KeyMayMatch reports whether key may have been among the keys the
	// filter was built from. It must never return false for such a key.
	KeyMayMatch(key, filter []byte) bool
}

type bloomPolicy struct {
	bitsPerKey int
	numProbes  int
}

// NewBloomPolicy returns a Bloom filter policy. bitsPerKey controls
// accuracy; 10 gives roughly a 1% false positive rate.
func NewBloomPolicy(bitsPerKey int) Policy {
	if bitsPerKey < 1 {
		bitsPerKey = 1
	}
	return bloomPolicy{
		bitsPerKey: bitsPerKey,
		numProbes:  chooseNumProbes(bitsPerKey * 1000),
	}
}

func (bloomPolicy) Name() string {
	return "blocktable.BuiltinBloomFilter"
}

// BitsPerKey returns the bits per key the policy was created with.
func (p bloomPolicy) BitsPerKey() int {
	return p.bitsPerKey
}

func (p bloomPolicy) AppendFilter(dst []byte, keys [][]byte) []byte {
	if len(keys) == 0 {
		// Zero probes: matches nothing.
		return append(dst, BloomMarker, LocalBloomMarker, 0, 0, 0)
	}

	space := calculateSpace(len(keys), p.bitsPerKey)
	filterLen := space - MetadataLen
	start := len(dst)
	dst = append(dst, make([]byte, space)...)
	data := dst[start:]

	for _, key := range keys {
		addHash(xxh3.Hash(key), uint32(filterLen), p.numProbes, data)
	}

	data[filterLen+0] = BloomMarker
	data[filterLen+1] = LocalBloomMarker
	data[filterLen+2] = byte(p.numProbes)
	return dst
}

func (bloomPolicy) KeyMayMatch(key, filter []byte) bool {
	if len(filter) < MetadataLen {
		// Empty bucket.
		return len(filter) != 0
	}
	filterLen := len(filter) - MetadataLen
	if filter[filterLen] != BloomMarker || filter[filterLen+1] != LocalBloomMarker ||
		filterLen%CacheLineSize != 0 {
		// Unknown layout: potential match.
		return true
	}
	numProbes := int(filter[filterLen+2])
	if numProbes == 0 || filterLen == 0 {
		return false
	}
	return hashMayMatch(xxh3.Hash(key), uint32(filterLen), numProbes, filter)
}

// calculateSpace returns the filter size including metadata.
func calculateSpace(numEntries, bitsPerKey int) int {
	totalBits := numEntries * bitsPerKey
	numCacheLines := max((totalBits+CacheLineBits-1)/CacheLineBits, 1)
	return numCacheLines*CacheLineSize + MetadataLen
}

// chooseNumProbes picks the probe count for a cache-local Bloom filter.
// millibitsPerKey is bits_per_key * 1000.
func chooseNumProbes(millibitsPerKey int) int {
	switch {
	case millibitsPerKey <= 2080:
		return 1
	case millibitsPerKey <= 3580:
		return 2
	case millibitsPerKey <= 5100:
		return 3
	case millibitsPerKey <= 6640:
		return 4
	case millibitsPerKey <= 8300:
		return 5
	case millibitsPerKey <= 10070:
		return 6
	case millibitsPerKey <= 11720:
		return 7
	case millibitsPerKey <= 14001:
		return 8
	case millibitsPerKey <= 16050:
		return 9
	case millibitsPerKey <= 18300:
		return 10
	case millibitsPerKey <= 22001:
		return 11
	case millibitsPerKey <= 25501:
		return 12
	case millibitsPerKey > 50000:
		return 24
	default:
		return (millibitsPerKey-1)/2000 - 1
	}
}

// fastRange32 maps h uniformly onto [0, n).
func fastRange32(h, n uint32) uint32 {
	return uint32((uint64(h) * uint64(n)) >> 32)
}

// cacheLine selects the cache line for hash with its low 32 bits.
func cacheLine(hash uint64, lenBytes uint32, data []byte) []byte {
	off := fastRange32(uint32(hash), lenBytes/CacheLineSize) * CacheLineSize
	return data[off : off+CacheLineSize]
}

// addHash sets numProbes bits chosen by the high 32 bits of hash.
func addHash(hash uint64, lenBytes uint32, numProbes int, data []byte) {
	line := cacheLine(hash, lenBytes, data)
	h := uint32(hash >> 32)
	for range numProbes {
		// 9-bit address within a 512-bit cache line
		bitpos := h >> (32 - 9)
		line[bitpos>>3] |= 1 << (bitpos & 7)
		h *= 0x9e3779b9
	}
}

func hashMayMatch(hash uint64, lenBytes uint32, numProbes int, data []byte) bool {
	line := cacheLine(hash, lenBytes, data)
	h := uint32(hash >> 32)
	for range numProbes {
		bitpos := h >> (32 - 9)
		if line[bitpos>>3]&(1<<(bitpos&7)) == 0 {
			return false
		}
		h *= 0x9e3779b9
	}
	return true
}
