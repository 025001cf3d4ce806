// Package cache provides the block cache shared by open tables.
//
// Entries are reference counted: a Handle returned by Insert or Lookup
// pins its entry until Release. Pinned entries are never evicted, and an
// erased or replaced entry stays readable through outstanding handles.
package cache

import (
	"container/list"
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Cache is the interface tables use to cache block contents.
type Cache interface {
	// Insert adds value under key and returns a handle pinning it. An
	// existing entry for key is replaced.
	Insert(key Key, value []byte, charge uint64) *Handle

	// Lookup returns a handle for key, or nil if it is absent.
	Lookup(key Key) *Handle

	// Release unpins a handle obtained from Insert or Lookup.
	Release(handle *Handle)

	// Erase removes key from the cache.
	Erase(key Key)

	// NewID returns a fresh identifier for partitioning the key space.
	// Each open table takes one.
	NewID() uint64

	// GetCapacity returns the maximum capacity of the cache.
	GetCapacity() uint64

	// GetUsage returns the total charge of the cached entries.
	GetUsage() uint64
}

// Key identifies a cached block.
type Key struct {
	CacheID     uint64
	BlockOffset uint64
}

// Handle is a pinned reference to a cached value.
type Handle struct {
	key     Key
	value   []byte
	charge  uint64
	refs    int32
	inCache bool
	elem    *list.Element
}

// Value returns the cached data.
func (h *Handle) Value() []byte {
	return h.value
}

// Charge returns the charge of this entry.
func (h *Handle) Charge() uint64 {
	return h.charge
}

// =============================================================================
// LRU Cache Implementation
// =============================================================================

// LRUCache is a thread-safe LRU cache with a fixed capacity.
type LRUCache struct {
	mu       sync.Mutex
	capacity uint64
	usage    uint64
	table    map[Key]*Handle
	lru      *list.List // unpinned entries, most recent at front

	nextID atomic.Uint64
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewLRUCache creates an LRU cache with the given capacity in bytes.
func NewLRUCache(capacity uint64) *LRUCache {
	return &LRUCache{
		capacity: capacity,
		table:    make(map[Key]*Handle),
		lru:      list.New(),
	}
}

// Insert adds value under key.
func (c *LRUCache) Insert(key Key, value []byte, charge uint64) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.table[key]; ok {
		c.detach(old)
	}

	h := &Handle{key: key, value: value, charge: charge, refs: 2, inCache: true}
	c.table[key] = h
	c.usage += charge
	c.evict()
	return h
}

// Lookup returns a pinned handle for key, or nil.
func (c *LRUCache) Lookup(key Key) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.table[key]
	if !ok {
		c.misses.Add(1)
		return nil
	}
	c.hits.Add(1)
	c.ref(h)
	return h
}

// Release unpins handle. A nil handle is ignored.
func (c *LRUCache) Release(handle *Handle) {
	if handle == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unref(handle)
	c.evict()
}

// Erase removes key from the cache.
func (c *LRUCache) Erase(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.table[key]; ok {
		c.detach(h)
	}
}

// NewID returns a fresh cache identifier.
func (c *LRUCache) NewID() uint64 {
	return c.nextID.Add(1)
}

// SetCapacity sets the capacity, evicting unpinned entries if needed.
func (c *LRUCache) SetCapacity(capacity uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacity = capacity
	c.evict()
}

// GetCapacity returns the maximum capacity.
func (c *LRUCache) GetCapacity() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// GetUsage returns the current usage.
func (c *LRUCache) GetUsage() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// GetPinnedUsage returns the charge of entries held by a handle.
func (c *LRUCache) GetPinnedUsage() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var pinned uint64
	for _, h := range c.table {
		if h.refs > 1 {
			pinned += h.charge
		}
	}
	return pinned
}

// GetOccupancyCount returns the number of entries.
func (c *LRUCache) GetOccupancyCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(len(c.table))
}

// GetHitCount returns the number of lookups that found an entry.
func (c *LRUCache) GetHitCount() uint64 {
	return c.hits.Load()
}

// GetMissCount returns the number of lookups that found nothing.
func (c *LRUCache) GetMissCount() uint64 {
	return c.misses.Load()
}

// The cache itself holds one reference to every entry in the table;
// entries with no other reference sit on the LRU list.
// All helpers below must be called with mu held.

func (c *LRUCache) ref(h *Handle) {
	if h.refs == 1 && h.inCache && h.elem != nil {
		c.lru.Remove(h.elem)
		h.elem = nil
	}
	h.refs++
}

func (c *LRUCache) unref(h *Handle) {
	h.refs--
	if h.refs == 1 && h.inCache {
		h.elem = c.lru.PushFront(h)
	}
}

// detach removes h from the table and drops the cache's reference.
func (c *LRUCache) detach(h *Handle) {
	delete(c.table, h.key)
	if h.elem != nil {
		c.lru.Remove(h.elem)
		h.elem = nil
	}
	h.inCache = false
	c.usage -= h.charge
	h.refs--
}

// evict drops least recently used unpinned entries until usage fits.
func (c *LRUCache) evict() {
	for c.usage > c.capacity {
		back := c.lru.Back()
		if back == nil {
			return
		}
		c.detach(back.Value.(*Handle))
	}
}

// =============================================================================
// Sharded LRU Cache
// =============================================================================

// ShardedLRUCache spreads keys over independent LRU shards to reduce lock
// contention. Shards are chosen by hashing the key with xxHash.
type ShardedLRUCache struct {
	shards    []*LRUCache
	numShards uint64
	nextID    atomic.Uint64
}

// NewShardedLRUCache creates a sharded LRU cache. numShards is rounded up
// to a power of 2; values <= 0 select 16.
func NewShardedLRUCache(capacity uint64, numShards int) *ShardedLRUCache {
	if numShards <= 0 {
		numShards = 16
	}
	numShards = nextPowerOf2(numShards)

	shardCapacity := max(capacity/uint64(numShards), 1)
	c := &ShardedLRUCache{
		shards:    make([]*LRUCache, numShards),
		numShards: uint64(numShards),
	}
	for i := range numShards {
		c.shards[i] = NewLRUCache(shardCapacity)
	}
	return c
}

func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (c *ShardedLRUCache) shard(key Key) *LRUCache {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], key.CacheID)
	binary.LittleEndian.PutUint64(buf[8:], key.BlockOffset)
	return c.shards[xxhash.Sum64(buf[:])&(c.numShards-1)]
}

// Insert adds value under key.
func (c *ShardedLRUCache) Insert(key Key, value []byte, charge uint64) *Handle {
	return c.shard(key).Insert(key, value, charge)
}

// Lookup returns a pinned handle for key, or nil.
func (c *ShardedLRUCache) Lookup(key Key) *Handle {
	return c.shard(key).Lookup(key)
}

// Release unpins handle.
func (c *ShardedLRUCache) Release(handle *Handle) {
	if handle == nil {
		return
	}
	c.shard(handle.key).Release(handle)
}

// Erase removes key from the cache.
func (c *ShardedLRUCache) Erase(key Key) {
	c.shard(key).Erase(key)
}

// NewID returns a fresh cache identifier.
func (c *ShardedLRUCache) NewID() uint64 {
	return c.nextID.Add(1)
}

// GetCapacity returns the total capacity.
func (c *ShardedLRUCache) GetCapacity() uint64 {
	var total uint64
	for _, s := range c.shards {
		total += s.GetCapacity()
	}
	return total
}

// GetUsage returns the total usage.
func (c *ShardedLRUCache) GetUsage() uint64 {
	var total uint64
	for _, s := range c.shards {
		total += s.GetUsage()
	}
	return total
}

// GetOccupancyCount returns the number of entries.
func (c *ShardedLRUCache) GetOccupancyCount() uint64 {
	var total uint64
	for _, s := range c.shards {
		total += s.GetOccupancyCount()
	}
	return total
}

// GetHitCount returns the total number of cache hits.
func (c *ShardedLRUCache) GetHitCount() uint64 {
	var total uint64
	for _, s := range c.shards {
		total += s.GetHitCount()
	}
	return total
}

// GetMissCount returns the total number of cache misses.
func (c *ShardedLRUCache) GetMissCount() uint64 {
	var total uint64
	for _, s := range c.shards {
		total += s.GetMissCount()
	}
	return total
}

// GetHitRate returns the overall hit rate in [0, 1].
func (c *ShardedLRUCache) GetHitRate() float64 {
	hits := c.GetHitCount()
	total := hits + c.GetMissCount()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
