package table

import (
	"bytes"

	"github.com/aalhour/blocktable/internal/block"
)

// Iterator walks every entry of a table in key order. It positions an
// index iterator on a data block and a block iterator within it.
//
// An Iterator is not safe for concurrent use and must be Released.
type Iterator struct {
	table      *Table
	index      *block.Iterator
	data       *block.Iterator
	dataHandle []byte // index value of the block data iterates over
	err        error
	released   bool
}

// NewIterator returns an iterator over the table. It is initially
// invalid; call SeekToFirst or Seek.
func (t *Table) NewIterator() *Iterator {
	return &Iterator{
		table: t,
		index: t.indexBlock.NewIterator(t.opts.Comparator),
	}
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator) Valid() bool {
	return it.err == nil && it.data != nil && it.data.Valid()
}

// Key returns the current key. Only valid if Valid() returns true.
func (it *Iterator) Key() []byte {
	if it.data == nil {
		return nil
	}
	return it.data.Key()
}

// Value returns the current value. Only valid if Valid() returns true.
func (it *Iterator) Value() []byte {
	if it.data == nil {
		return nil
	}
	return it.data.Value()
}

// Error returns the first error encountered.
func (it *Iterator) Error() error {
	if it.err != nil {
		return it.err
	}
	if it.index != nil {
		if err := it.index.Error(); err != nil {
			return err
		}
	}
	if it.data != nil {
		return it.data.Error()
	}
	return nil
}

// SeekToFirst positions the iterator at the first entry.
func (it *Iterator) SeekToFirst() {
	if it.released {
		return
	}
	it.err = nil
	it.index.SeekToFirst()
	it.initDataBlock()
	if it.data != nil {
		it.data.SeekToFirst()
	}
	it.skipEmptyDataBlocks()
}

// Seek positions the iterator at the first entry with key >= target.
func (it *Iterator) Seek(target []byte) {
	if it.released {
		return
	}
	it.err = nil
	it.index.Seek(target)
	it.initDataBlock()
	if it.data != nil {
		it.data.Seek(target)
	}
	it.skipEmptyDataBlocks()
}

// Next advances to the next entry.
func (it *Iterator) Next() {
	if !it.Valid() {
		return
	}
	it.data.Next()
	it.skipEmptyDataBlocks()
}

// Release releases the iterator and any cached block it pins. Calling
// Release more than once has no further effect.
func (it *Iterator) Release() {
	if it.released {
		return
	}
	it.released = true
	it.setDataIterator(nil)
	it.index.Release()
	it.dataHandle = nil
}

// skipEmptyDataBlocks moves forward past exhausted data blocks.
func (it *Iterator) skipEmptyDataBlocks() {
	for it.data == nil || !it.data.Valid() {
		if it.err != nil || it.Error() != nil {
			return
		}
		if !it.index.Valid() {
			it.setDataIterator(nil)
			return
		}
		it.index.Next()
		it.initDataBlock()
		if it.data != nil {
			it.data.SeekToFirst()
		}
	}
}

// initDataBlock points the data iterator at the block the index iterator
// is positioned on.
func (it *Iterator) initDataBlock() {
	if !it.index.Valid() {
		it.setDataIterator(nil)
		return
	}
	handle := it.index.Value()
	if it.data != nil && bytes.Equal(handle, it.dataHandle) {
		return
	}
	data, err := it.table.blockReader(handle)
	if err != nil {
		it.err = err
		it.setDataIterator(nil)
		return
	}
	it.dataHandle = append(it.dataHandle[:0], handle...)
	it.setDataIterator(data)
}

func (it *Iterator) setDataIterator(data *block.Iterator) {
	if it.data != nil {
		it.data.Release()
	}
	it.data = data
}
