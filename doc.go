/*
Package blocktable reads and writes sorted, immutable key/value table files.

A table is a sequence of data blocks holding key/value entries in key order,
followed by an optional filter block, a properties block, a metaindex block,
an index block and a fixed 48-byte footer. Keys inside a data block are
prefix compressed, with a full key stored at every restart point so that a
lookup can binary search the block.

# Usage

	w, err := blocktable.Create("/tmp/users.sst", nil)
	...
	w.Add([]byte("alice"), []byte("1"))
	w.Add([]byte("bob"), []byte("2"))
	err = w.Finish()

	t, err := blocktable.Open("/tmp/users.sst", nil)
	...
	defer t.Close()
	v, err := t.Get([]byte("alice"))
	if blocktable.IsNotFound(err) {
		...
	}

# Errors

Errors from Open, Get, iterators and the Writer's file operations wrap one
of ErrNotFound, ErrCorruption or ErrIO. Adding keys out of order is
reported separately and does not spoil the Writer. A lookup that fails with ErrIO says nothing about
whether the key exists.

# Concurrency

An open Table is immutable: Get and NewIterator may be called from many
goroutines at once. Iterators and Writers are not safe for concurrent use.
*/
package blocktable
