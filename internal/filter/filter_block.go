// filter_block.go implements the filter block of a table file.
//
// Data blocks are grouped into buckets by file offset, one bucket per
// 2KiB (1 << BaseLg). Each bucket has one filter covering the keys of
// every data block that starts inside it.
//
// Layout:
//
//	filter_0 ... filter_{n-1}
//	offsets:       uint32[n]  start of each filter
//	offsets_start: uint32     start of the offsets array
//	base_lg:       byte
package filter

import (
	"fmt"

	"github.com/aalhour/blocktable/internal/encoding"
	"github.com/aalhour/blocktable/internal/status"
)

// BaseLg is the log2 of the bucket size used by BlockBuilder.
const BaseLg = 11

// ErrBadFilterBlock is returned for a malformed filter block.
var ErrBadFilterBlock = status.Corruptionf("bad filter block")

// BlockBuilder accumulates keys per data block and produces a filter
// block. Calls must follow the pattern
// (StartBlock AddKey*)* Finish.
type BlockBuilder struct {
	policy  Policy
	keys    []byte // flattened keys of the pending bucket
	starts  []int  // start of each key in keys
	result  []byte
	offsets []uint32
	scratch [][]byte
}

// NewBlockBuilder returns a builder that creates filters with policy.
func NewBlockBuilder(policy Policy) *BlockBuilder {
	return &BlockBuilder{policy: policy}
}

// StartBlock announces that the next keys belong to the data block at
// blockOffset. Offsets must not decrease.
func (b *BlockBuilder) StartBlock(blockOffset uint64) {
	index := blockOffset >> BaseLg
	for index > uint64(len(b.offsets)) {
		b.generateFilter()
	}
}

// AddKey adds key to the filter of the current bucket. The key is copied.
func (b *BlockBuilder) AddKey(key []byte) {
	b.starts = append(b.starts, len(b.keys))
	b.keys = append(b.keys, key...)
}

// Finish returns the encoded filter block.
func (b *BlockBuilder) Finish() []byte {
	if len(b.starts) > 0 {
		b.generateFilter()
	}
	offsetsStart := uint32(len(b.result))
	for _, off := range b.offsets {
		b.result = encoding.AppendFixed32(b.result, off)
	}
	b.result = encoding.AppendFixed32(b.result, offsetsStart)
	b.result = append(b.result, BaseLg)
	return b.result
}

func (b *BlockBuilder) generateFilter() {
	b.offsets = append(b.offsets, uint32(len(b.result)))
	if len(b.starts) == 0 {
		// Empty bucket: its filter is zero bytes long.
		return
	}

	b.scratch = b.scratch[:0]
	for i, start := range b.starts {
		end := len(b.keys)
		if i+1 < len(b.starts) {
			end = b.starts[i+1]
		}
		b.scratch = append(b.scratch, b.keys[start:end])
	}
	b.result = b.policy.AppendFilter(b.result, b.scratch)

	b.keys = b.keys[:0]
	b.starts = b.starts[:0]
}

// BlockReader answers KeyMayMatch queries against a filter block.
// It is immutable and safe for concurrent use.
type BlockReader struct {
	policy       Policy
	data         []byte
	offsetsStart uint32
	num          uint64
	baseLg       uint
}

// NewBlockReader parses a filter block. data is referenced, not copied.
func NewBlockReader(policy Policy, data []byte) (*BlockReader, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("%w: %d bytes too short", ErrBadFilterBlock, len(data))
	}
	offsetsStart := encoding.DecodeFixed32(data[len(data)-5:])
	if uint64(offsetsStart) > uint64(len(data)-5) {
		return nil, fmt.Errorf("%w: offsets start %d beyond %d bytes", ErrBadFilterBlock, offsetsStart, len(data))
	}
	return &BlockReader{
		policy:       policy,
		data:         data,
		offsetsStart: offsetsStart,
		num:          uint64(len(data)-5-int(offsetsStart)) / 4,
		baseLg:       uint(data[len(data)-1]),
	}, nil
}

// KeyMayMatch reports whether key may be in the data block that starts
// at blockOffset. It never returns false for a key that was added for
// that block. Malformed buckets are treated as potential matches; empty
// buckets match nothing.
func (r *BlockReader) KeyMayMatch(blockOffset uint64, key []byte) bool {
	if r.baseLg >= 64 {
		return true
	}
	index := blockOffset >> r.baseLg
	if index >= r.num {
		return true
	}
	// The entry after offsets[index] is either the next filter's start or
	// offsets_start itself, which ends the last filter.
	pos := uint64(r.offsetsStart) + index*4
	start := encoding.DecodeFixed32(r.data[pos:])
	limit := encoding.DecodeFixed32(r.data[pos+4:])
	switch {
	case start == limit:
		return false
	case start < limit && limit <= r.offsetsStart:
		return r.policy.KeyMayMatch(key, r.data[start:limit])
	default:
		return true
	}
}

// NumFilters returns the number of buckets in the block.
func (r *BlockReader) NumFilters() int {
	return int(r.num)
}

// PolicyName returns the name of the policy the reader queries with.
func (r *BlockReader) PolicyName() string {
	return r.policy.Name()
}
