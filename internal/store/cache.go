package store

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/promptforge/promptstore/internal/metrics"
)

// recordCache is a bounded id-to-record cache. It is purely an
// optimization: a disabled cache behaves like one that never hits, and
// results are identical either way. Hit/miss counts feed the storage
// statistics and prometheus.
type recordCache[V any] struct {
	name   string
	lru    *lru.Cache[string, V]
	hits   atomic.Int64
	misses atomic.Int64
}

// newRecordCache returns a cache of the given capacity, or an always-miss
// cache when enabled is false.
func newRecordCache[V any](name string, capacity int, enabled bool) (*recordCache[V], error) {
	c := &recordCache[V]{name: name}
	if !enabled {
		return c, nil
	}
	inner, err := lru.New[string, V](capacity)
	if err != nil {
		return nil, err
	}
	c.lru = inner
	return c, nil
}

// get promotes the entry to most-recently-used on a hit
func (c *recordCache[V]) get(key string) (V, bool) {
	var zero V
	if c.lru == nil {
		return zero, false
	}
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
		metrics.CacheHitsTotal.WithLabelValues(c.name).Inc()
	} else {
		c.misses.Add(1)
		metrics.CacheMissesTotal.WithLabelValues(c.name).Inc()
	}
	return v, ok
}

// set inserts or overwrites, evicting the least-recently-used entry when
// over capacity
func (c *recordCache[V]) set(key string, value V) {
	if c.lru == nil {
		return
	}
	c.lru.Add(key, value)
}

func (c *recordCache[V]) delete(key string) {
	if c.lru == nil {
		return
	}
	c.lru.Remove(key)
}

func (c *recordCache[V]) clear() {
	if c.lru == nil {
		return
	}
	c.lru.Purge()
}

func (c *recordCache[V]) len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}

// hitRate is hits / (hits + misses), 0 when the cache has seen no reads
func (c *recordCache[V]) hitRate() float64 {
	hits := c.hits.Load()
	total := hits + c.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
