// Package comparator defines the key ordering used by blocks and tables.
//
// A Comparator must be a pure total order over byte strings: reentrant,
// free of side effects and safe for concurrent use. Tables record no
// comparator name, so a table must be read with the comparator it was
// written with.
package comparator

import "bytes"

// Comparator defines a total ordering over keys.
type Comparator interface {
	// Compare returns a value < 0 if a < b, 0 if a == b, > 0 if a > b.
	Compare(a, b []byte) int

	// Name returns the name of the comparator.
	Name() string

	// FindShortestSeparator returns a key k with a <= k < b, as short as
	// possible. Index blocks store k instead of a. If no shorter key
	// exists, a is returned unchanged.
	FindShortestSeparator(a, b []byte) []byte

	// FindShortSuccessor returns a short key >= a. It bounds the last
	// data block of a table.
	FindShortSuccessor(a []byte) []byte
}

// Bytewise orders keys lexicographically by unsigned byte value.
type Bytewise struct{}

// Compare compares two keys lexicographically.
func (Bytewise) Compare(a, b []byte) int {
	return bytes.Compare(a, b)
}

// Name returns the comparator name.
func (Bytewise) Name() string {
	return "leveldb.BytewiseComparator"
}

// FindShortestSeparator finds a short key between a and b.
func (Bytewise) FindShortestSeparator(a, b []byte) []byte {
	n := min(len(a), len(b))
	diff := 0
	for diff < n && a[diff] == b[diff] {
		diff++
	}
	if diff >= n {
		// One is a prefix of the other.
		return a
	}

	c := a[diff]
	if c < 0xff && c+1 < b[diff] {
		sep := make([]byte, diff+1)
		copy(sep, a[:diff+1])
		sep[diff]++
		return sep
	}
	return a
}

// FindShortSuccessor increments the first byte of a that is not 0xff and
// drops the rest.
func (Bytewise) FindShortSuccessor(a []byte) []byte {
	for i, c := range a {
		if c != 0xff {
			succ := make([]byte, i+1)
			copy(succ, a[:i+1])
			succ[i]++
			return succ
		}
	}
	return a
}

// Default returns the bytewise comparator.
func Default() Comparator {
	return Bytewise{}
}

// OrDefault returns c, or the bytewise comparator if c is nil.
func OrDefault(c Comparator) Comparator {
	if c == nil {
		return Bytewise{}
	}
	return c
}
