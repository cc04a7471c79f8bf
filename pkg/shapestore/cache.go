package shapestore

import (
	"container/list"
	"sync"
)

// FeatureCache holds assembled features by id with optional LRU eviction.
//
// Entries are tagged with the generation of the snapshot that built them.
// A lookup with a different generation misses, so a feature inserted late
// by a query still running against a retired snapshot is never served
// after a rebuild. Concurrent inserts for the same id are allowed; the
// last one wins.
//
// Example:
//
//	cache := shapestore.NewFeatureCache(10000) // 0 means unbounded
//
//	if f, ok := cache.Get("PORTS_12", gen); ok {
//	    return f
//	}
//	f := build()
//	cache.Add("PORTS_12", gen, f)
type FeatureCache struct {
	maxEntries int
	entries    map[string]*cacheEntry
	lru        *list.List // most recent at front
	hits       uint64
	misses     uint64
	mu         sync.Mutex
}

type cacheEntry struct {
	id         string
	generation uint64
	feature    *Feature
	element    *list.Element
}

// NewFeatureCache creates a cache holding at most maxEntries features.
// Zero means unbounded.
func NewFeatureCache(maxEntries int) *FeatureCache {
	return &FeatureCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*cacheEntry),
		lru:        list.New(),
	}
}

// Get returns the feature cached under id for generation gen.
func (c *FeatureCache) Get(id string, gen uint64) (*Feature, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok || entry.generation != gen {
		c.misses++
		return nil, false
	}
	c.hits++
	c.lru.MoveToFront(entry.element)
	return entry.feature, true
}

// Add caches f under id for generation gen, evicting the least recently
// used entries when the cache is bounded and full.
func (c *FeatureCache) Add(id string, gen uint64, f *Feature) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[id]; ok {
		entry.generation = gen
		entry.feature = f
		c.lru.MoveToFront(entry.element)
		return
	}

	if c.maxEntries > 0 {
		for c.lru.Len() >= c.maxEntries {
			c.evictLRU()
		}
	}

	entry := &cacheEntry{id: id, generation: gen, feature: f}
	entry.element = c.lru.PushFront(entry)
	c.entries[id] = entry
}

// evictLRU must be called with c.mu held.
func (c *FeatureCache) evictLRU() {
	elem := c.lru.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*cacheEntry)
	c.lru.Remove(elem)
	delete(c.entries, entry.id)
}

// Clear removes every entry. Hit and miss counters are kept.
func (c *FeatureCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.lru.Init()
}

// Stats returns cache statistics.
func (c *FeatureCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		Entries:    len(c.entries),
		MaxEntries: c.maxEntries,
		Hits:       c.hits,
		Misses:     c.misses,
	}
}

// CacheStats holds cache counters.
type CacheStats struct {
	Entries    int    // features currently cached
	MaxEntries int    // bound, 0 if unbounded
	Hits       uint64 // lookups served from the cache
	Misses     uint64 // lookups that had to build the feature
}
