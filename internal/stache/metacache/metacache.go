// Package metacache holds derived record metadata for the life of the
// process.
//
// Entries are keyed by a record's cache key and never expire; a later Put
// for the same key replaces the previous value entirely. Values are copied
// on the way in and on the way out so callers cannot alias stored maps.
package metacache

import (
	"sync"
)

// Cache is a concurrency-safe key to attribute-map store.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]map[string]any
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]map[string]any)}
}

// Put stores attrs under key, replacing any previous value.
func (c *Cache) Put(key string, attrs map[string]any) {
	copied := cloneMap(attrs)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = copied
}

// Get returns the attributes stored under key.
func (c *Cache) Get(key string) (map[string]any, bool) {
	c.mu.RLock()
	attrs, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	return cloneMap(attrs), true
}

// Forget removes key.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
