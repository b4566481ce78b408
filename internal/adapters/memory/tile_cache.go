// Package memory holds process-scoped in-memory adapters.
package memory

import (
	"sort"
	"sync"

	"github.com/opentraffic/analyst/internal/core/domain"
)

// TileCache implements ports.TileCache. Entries live for the process
// lifetime, are never evicted and never change after insertion.
type TileCache struct {
	mu    sync.RWMutex
	tiles map[string]*domain.FeatureCollection
}

// NewTileCache creates an empty TileCache.
func NewTileCache() *TileCache {
	return &TileCache{tiles: make(map[string]*domain.FeatureCollection)}
}

// Get returns a deep copy of the cached tile.
func (c *TileCache) Get(suffix string) (*domain.FeatureCollection, bool) {
	c.mu.RLock()
	fc, ok := c.tiles[suffix]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return fc.Clone(), true
}

// Put stores fc under suffix. The first snapshot stored for a suffix wins.
func (c *TileCache) Put(suffix string, fc *domain.FeatureCollection) {
	if fc == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tiles[suffix]; ok {
		return
	}
	c.tiles[suffix] = fc
}

// Keys returns the cached suffixes in sorted order.
func (c *TileCache) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.tiles))
	for k := range c.tiles {
		keys = append(keys, k)
	}
	c.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Len returns the number of cached tiles.
func (c *TileCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tiles)
}
