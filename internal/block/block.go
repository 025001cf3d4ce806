package block

import (
	"fmt"

	"github.com/aalhour/blocktable/internal/comparator"
	"github.com/aalhour/blocktable/internal/encoding"
)

// Block is a parsed block. It references, and does not copy, its data.
type Block struct {
	data        []byte
	restarts    int // offset of the restart array within data
	numRestarts int
}

// NewBlock parses the restart array at the end of data.
func NewBlock(data []byte) (*Block, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: size %d too small", ErrBadBlock, len(data))
	}

	numRestarts := int(encoding.DecodeFixed32(data[len(data)-4:]))
	if numRestarts == 0 {
		return nil, fmt.Errorf("%w: no restart points", ErrBadBlock)
	}
	if maxRestarts := (len(data) - 4) / 4; numRestarts > maxRestarts {
		return nil, fmt.Errorf("%w: %d restart points in %d bytes", ErrBadBlock, numRestarts, len(data))
	}

	b := &Block{
		data:        data,
		restarts:    len(data) - (numRestarts+1)*4,
		numRestarts: numRestarts,
	}
	for i := range numRestarts {
		if off := b.restartPoint(i); off > b.restarts {
			return nil, fmt.Errorf("%w: restart %d at offset %d past entries end %d", ErrBadBlock, i, off, b.restarts)
		}
	}
	return b, nil
}

// Size returns the size of the block data.
func (b *Block) Size() int {
	return len(b.data)
}

// NumRestarts returns the number of restart points.
func (b *Block) NumRestarts() int {
	return b.numRestarts
}

func (b *Block) restartPoint(i int) int {
	return int(encoding.DecodeFixed32(b.data[b.restarts+i*4:]))
}

// Iterator walks the entries of a block in key order.
//
// An Iterator is not safe for concurrent use. Release must be called once
// the caller is done with it; keys and values returned earlier must not be
// used afterwards.
type Iterator struct {
	block      *Block
	cmp        comparator.Comparator
	data       []byte // entry region of the block
	current    int    // offset of the current entry
	nextOffset int    // offset just past the current entry
	key        []byte // current key, fully assembled
	value      []byte // slice into data
	valid      bool
	err        error
	cleanups   []func()
	released   bool
}

// NewIterator returns an iterator over b ordered by cmp. A nil comparator
// selects bytewise ordering.
func (b *Block) NewIterator(cmp comparator.Comparator) *Iterator {
	return &Iterator{
		block: b,
		cmp:   comparator.OrDefault(cmp),
		data:  b.data[:b.restarts],
	}
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator) Valid() bool {
	return it.valid && it.err == nil
}

// Key returns the current key. Only valid if Valid() returns true.
func (it *Iterator) Key() []byte {
	return it.key
}

// Value returns the current value. Only valid if Valid() returns true.
func (it *Iterator) Value() []byte {
	return it.value
}

// Error returns the corruption encountered while decoding, if any.
func (it *Iterator) Error() error {
	return it.err
}

// SeekToFirst positions the iterator at the first entry.
func (it *Iterator) SeekToFirst() {
	if it.released {
		return
	}
	it.seekToRestartPoint(0)
	it.Next()
}

// Next advances to the next entry.
func (it *Iterator) Next() {
	if it.err != nil || it.released || it.nextOffset >= len(it.data) {
		it.valid = false
		return
	}
	it.current = it.nextOffset
	it.parseCurrentEntry()
}

// Seek positions the iterator at the first entry with key >= target.
// The restart points are binary searched by their first key, then the
// chosen restart interval is scanned forward.
func (it *Iterator) Seek(target []byte) {
	if it.released {
		return
	}
	left, right := 0, it.block.numRestarts-1
	for left < right {
		mid := (left + right + 1) / 2
		it.seekToRestartPoint(mid)
		it.Next()
		if it.err != nil {
			return
		}
		if !it.valid || it.cmp.Compare(it.key, target) > 0 {
			right = mid - 1
		} else {
			left = mid
		}
	}

	it.seekToRestartPoint(left)
	for {
		it.Next()
		if !it.Valid() || it.cmp.Compare(it.key, target) >= 0 {
			return
		}
	}
}

// RegisterCleanup arranges for fn to run when the iterator is released.
// Cleanups run in registration order.
func (it *Iterator) RegisterCleanup(fn func()) {
	it.cleanups = append(it.cleanups, fn)
}

// Release invalidates the iterator and runs its cleanups. Calling Release
// more than once has no further effect.
func (it *Iterator) Release() {
	if it.released {
		return
	}
	it.released = true
	it.valid = false
	it.key = nil
	it.value = nil
	it.data = nil
	it.block = nil
	cleanups := it.cleanups
	it.cleanups = nil
	for _, fn := range cleanups {
		fn()
	}
}

func (it *Iterator) seekToRestartPoint(index int) {
	it.key = it.key[:0]
	it.value = nil
	it.valid = false
	off := it.block.restartPoint(index)
	it.current = off
	it.nextOffset = off
}

func (it *Iterator) corrupt(format string, args ...any) {
	it.err = fmt.Errorf("%w: entry at offset %d: %s", ErrBadBlock, it.current, fmt.Sprintf(format, args...))
	it.valid = false
}

// parseCurrentEntry decodes the entry at it.current.
func (it *Iterator) parseCurrentEntry() {
	p := it.data[it.current:]

	shared, n, err := encoding.DecodeVarint32(p)
	if err != nil {
		it.corrupt("shared length: %v", err)
		return
	}
	p = p[n:]
	unshared, n, err := encoding.DecodeVarint32(p)
	if err != nil {
		it.corrupt("unshared length: %v", err)
		return
	}
	p = p[n:]
	valueLen, n, err := encoding.DecodeVarint32(p)
	if err != nil {
		it.corrupt("value length: %v", err)
		return
	}
	p = p[n:]

	if int(shared) > len(it.key) {
		it.corrupt("shared %d exceeds previous key length %d", shared, len(it.key))
		return
	}
	if uint64(unshared)+uint64(valueLen) > uint64(len(p)) {
		it.corrupt("key and value lengths %d+%d exceed remaining %d bytes", unshared, valueLen, len(p))
		return
	}

	it.key = append(it.key[:shared], p[:unshared]...)
	p = p[unshared:]
	it.value = p[:valueLen:valueLen]
	it.nextOffset = len(it.data) - len(p) + int(valueLen)
	it.valid = true
}
