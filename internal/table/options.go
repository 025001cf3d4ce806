package table

import (
	"github.com/aalhour/blocktable/internal/cache"
	"github.com/aalhour/blocktable/internal/comparator"
	"github.com/aalhour/blocktable/internal/filter"
	"github.com/aalhour/blocktable/internal/logging"
)

const (
	// DefaultBlockSize is the target uncompressed size of a data block.
	DefaultBlockSize = 4096

	// DefaultBlockRestartInterval is the number of keys between restart
	// points in a data block.
	DefaultBlockRestartInterval = 16
)

// Options controls how tables are written and read.
//
// The zero value is usable: it selects bytewise ordering, no filter, no
// block cache, and a WARN-level stderr logger.
type Options struct {
	// Comparator orders keys. A table must be read with the comparator it
	// was written with.
	Comparator comparator.Comparator

	// FilterPolicy builds and queries the per-block filters. When nil no
	// filter block is written and a filter present in the file is ignored.
	FilterPolicy filter.Policy

	// BlockSize is the target size of a data block (writer only).
	BlockSize int

	// BlockRestartInterval is the number of keys between restart points
	// (writer only).
	BlockRestartInterval int

	// BlockCache caches data blocks read by Get and iterators. May be
	// shared between tables.
	BlockCache cache.Cache

	// Logger receives open, filter and build events.
	Logger logging.Logger
}

// DefaultOptions returns the default options.
func DefaultOptions() *Options {
	return &Options{
		Comparator:           comparator.Default(),
		BlockSize:            DefaultBlockSize,
		BlockRestartInterval: DefaultBlockRestartInterval,
	}
}

// sanitized returns a copy of o with every unset field defaulted.
func (o *Options) sanitized() Options {
	var s Options
	if o != nil {
		s = *o
	}
	s.Comparator = comparator.OrDefault(s.Comparator)
	if s.BlockSize <= 0 {
		s.BlockSize = DefaultBlockSize
	}
	if s.BlockRestartInterval <= 0 {
		s.BlockRestartInterval = DefaultBlockRestartInterval
	}
	s.Logger = logging.OrDefault(s.Logger)
	return s
}

// filterMetaKey is the metaindex key under which the filter block built
// with policy is recorded.
func filterMetaKey(policy filter.Policy) []byte {
	return []byte("filter." + policy.Name())
}
