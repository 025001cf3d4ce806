// builder.go implements block building with prefix compression.
package block

import (
	"errors"

	"github.com/aalhour/blocktable/internal/comparator"
	"github.com/aalhour/blocktable/internal/encoding"
)

var (
	// ErrKeyOrder is returned by Add when a key does not sort strictly
	// after the previous key.
	ErrKeyOrder = errors.New("block: keys added out of order")

	// ErrFinished is returned by Add after Finish.
	ErrFinished = errors.New("block: add after finish")
)

// Builder generates blocks where keys are prefix-compressed.
//
// When we store a key, we drop the prefix shared with the previous key.
// Once every restartInterval keys we store the entire key instead; we
// call this a "restart point". Readers binary search the restart points.
//
// A Builder is not safe for concurrent use.
type Builder struct {
	cmp             comparator.Comparator
	buffer          []byte   // serialized entries
	restarts        []uint32 // offsets of restart entries
	counter         int      // entries since last restart
	restartInterval int
	lastKey         []byte
	finished        bool
}

// NewBuilder creates a block builder. A restart point is created every
// restartInterval entries; values below 1 are treated as 1 (no prefix
// compression). A nil comparator selects bytewise ordering.
func NewBuilder(restartInterval int, cmp comparator.Comparator) *Builder {
	if restartInterval < 1 {
		restartInterval = 1
	}
	return &Builder{
		cmp:             comparator.OrDefault(cmp),
		buffer:          make([]byte, 0, 4096),
		restarts:        []uint32{0},
		restartInterval: restartInterval,
	}
}

// Reset clears all state so the builder can produce another block.
func (b *Builder) Reset() {
	b.buffer = b.buffer[:0]
	b.restarts = b.restarts[:1]
	b.restarts[0] = 0
	b.counter = 0
	b.lastKey = b.lastKey[:0]
	b.finished = false
}

// Add appends an entry. key must sort strictly after the previously
// added key.
func (b *Builder) Add(key, value []byte) error {
	if b.finished {
		return ErrFinished
	}
	if !b.Empty() && b.cmp.Compare(key, b.lastKey) <= 0 {
		return ErrKeyOrder
	}

	shared := 0
	if b.counter < b.restartInterval {
		shared = sharedPrefixLength(b.lastKey, key)
	} else {
		b.restarts = append(b.restarts, uint32(len(b.buffer)))
		b.counter = 0
	}
	unshared := len(key) - shared

	b.buffer = encoding.AppendVarint32(b.buffer, uint32(shared))
	b.buffer = encoding.AppendVarint32(b.buffer, uint32(unshared))
	b.buffer = encoding.AppendVarint32(b.buffer, uint32(len(value)))
	b.buffer = append(b.buffer, key[shared:]...)
	b.buffer = append(b.buffer, value...)

	b.lastKey = append(b.lastKey[:0], key...)
	b.counter++
	return nil
}

// CurrentSizeEstimate returns the size of the block Finish would produce.
func (b *Builder) CurrentSizeEstimate() int {
	return len(b.buffer) + len(b.restarts)*4 + 4
}

// Empty reports whether no entries have been added.
func (b *Builder) Empty() bool {
	return len(b.buffer) == 0
}

// LastKey returns the most recently added key. The slice is reused by the
// next Add.
func (b *Builder) LastKey() []byte {
	return b.lastKey
}

// Finish appends the restart array and returns the block contents.
// The returned slice is valid until Reset is called.
func (b *Builder) Finish() []byte {
	if b.finished {
		return b.buffer
	}
	for _, restart := range b.restarts {
		b.buffer = encoding.AppendFixed32(b.buffer, restart)
	}
	b.buffer = encoding.AppendFixed32(b.buffer, uint32(len(b.restarts)))
	b.finished = true
	return b.buffer
}

func sharedPrefixLength(a, b []byte) int {
	n := min(len(a), len(b))
	for i := range n {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
