// Package cache holds the table descriptors a process has
// provisioned. Lookups never touch the network. Entries stay valid
// until they are replaced, uncached or the whole cache is
// invalidated.
package cache

import (
	"sync"

	"github.com/jrife/cfstore/store"
)

// SchemaCache maps table names to their last known descriptor.
// It is safe for concurrent use.
type SchemaCache struct {
	mu     sync.RWMutex
	tables map[string]store.TableDescriptor
}

// New returns an empty cache
func New() *SchemaCache {
	return &SchemaCache{tables: make(map[string]store.TableDescriptor)}
}

// Lookup returns the cached descriptor of a table
func (cache *SchemaCache) Lookup(table string) (store.TableDescriptor, bool) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()

	desc, ok := cache.tables[table]

	if !ok {
		return store.TableDescriptor{}, false
	}

	return desc.Clone(), true
}

// Cache stores a copy of desc, replacing any previous entry for
// the same table
func (cache *SchemaCache) Cache(desc store.TableDescriptor) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	cache.tables[desc.Name] = desc.Clone()
}

// Uncache removes a table and returns the descriptor it had
func (cache *SchemaCache) Uncache(table string) (store.TableDescriptor, bool) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	desc, ok := cache.tables[table]
	delete(cache.tables, table)

	return desc, ok
}

// Invalidate removes every entry
func (cache *SchemaCache) Invalidate() {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	cache.tables = make(map[string]store.TableDescriptor)
}

// Len returns the number of cached tables
func (cache *SchemaCache) Len() int {
	cache.mu.RLock()
	defer cache.mu.RUnlock()

	return len(cache.tables)
}
