package blocktable

import (
	"github.com/aalhour/blocktable/internal/cache"
	"github.com/aalhour/blocktable/internal/comparator"
	"github.com/aalhour/blocktable/internal/logging"
	"github.com/aalhour/blocktable/internal/table"
	"github.com/aalhour/blocktable/internal/vfs"
)

// Logger is the leveled logging interface used throughout the package.
type Logger = logging.Logger

// Cache caches decoded data blocks. One cache may be shared by any number
// of open tables.
type Cache = cache.Cache

// NewLRUCache returns a sharded LRU block cache holding up to capacity
// bytes of block data.
func NewLRUCache(capacity uint64) Cache {
	return cache.NewShardedLRUCache(capacity, 0)
}

// Options configures how tables are written and opened.
type Options struct {
	// Comparator orders keys. Default: BytewiseComparator.
	Comparator Comparator

	// FilterPolicy builds per-block filters so lookups of absent keys can
	// skip data blocks. nil disables filters. Default: Bloom, 10 bits per
	// key.
	FilterPolicy FilterPolicy

	// BlockSize is the target size of a data block. Default: 4096.
	BlockSize int

	// BlockRestartInterval is the number of keys between restart points.
	// Default: 16.
	BlockRestartInterval int

	// BlockCacheSize sizes the block cache created by Open when BlockCache
	// is nil. 0 disables caching. Default: 8 MiB.
	BlockCacheSize uint64

	// BlockCache, if set, is used instead of creating one.
	BlockCache Cache

	// FS is the filesystem tables are created on and opened from.
	// Default: the OS filesystem.
	FS vfs.FS

	// Logger receives warnings about unreadable filter blocks and
	// build summaries. Default: WARN-level stderr logger.
	Logger Logger
}

// DefaultOptions returns the default options.
func DefaultOptions() *Options {
	return &Options{
		Comparator:           comparator.Default(),
		FilterPolicy:         NewBloomFilterPolicy(10),
		BlockSize:            table.DefaultBlockSize,
		BlockRestartInterval: table.DefaultBlockRestartInterval,
		BlockCacheSize:       8 << 20,
		FS:                   vfs.Default(),
		Logger:               logging.NewDefaultLogger(logging.LevelWarn),
	}
}

// orDefault returns opts, or DefaultOptions if opts is nil.
func orDefault(opts *Options) *Options {
	if opts == nil {
		return DefaultOptions()
	}
	return opts
}

func (o *Options) fs() vfs.FS {
	if o.FS == nil {
		return vfs.Default()
	}
	return o.FS
}

// tableOptions converts o for the table package. cache is the block cache
// to read through, or nil.
func (o *Options) tableOptions(c cache.Cache) *table.Options {
	return &table.Options{
		Comparator:           o.Comparator,
		FilterPolicy:         o.FilterPolicy,
		BlockSize:            o.BlockSize,
		BlockRestartInterval: o.BlockRestartInterval,
		BlockCache:           c,
		Logger:               o.Logger,
	}
}
