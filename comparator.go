package blocktable

import (
	"github.com/aalhour/blocktable/internal/comparator"
	"github.com/aalhour/blocktable/internal/filter"
)

// Comparator defines a total ordering over keys. A table must be read with
// the comparator it was written with.
type Comparator = comparator.Comparator

// BytewiseComparator orders keys lexicographically by byte value.
type BytewiseComparator = comparator.Bytewise

// FilterPolicy builds and queries the per-block key filters.
type FilterPolicy = filter.Policy

// NewBloomFilterPolicy returns the built-in Bloom filter policy. 10 bits per
// key gives roughly a 1% false positive rate.
func NewBloomFilterPolicy(bitsPerKey int) FilterPolicy {
	return filter.NewBloomPolicy(bitsPerKey)
}

// bloomBitsPerKey reports the bits per key of a built-in Bloom policy.
func bloomBitsPerKey(p FilterPolicy) (int, bool) {
	bp, ok := p.(interface{ BitsPerKey() int })
	if !ok || p.Name() != filter.NewBloomPolicy(1).Name() {
		return 0, false
	}
	return bp.BitsPerKey(), true
}
