package mapkit

import (
	"strconv"
	"sync"
	"time"

	"github.com/ammario/tlru"
	"golang.org/x/sync/singleflight"
)

// CacheKind is the explicit namespace tag of a cache partition. Every key
// composes a kind with up to two qualifiers, so partitions can never
// collide on qualifier strings alone.
type CacheKind uint8

const (
	// CacheSetting caches settings rows by key.
	CacheSetting CacheKind = iota + 1
	// CacheMapContent caches version content by version ID.
	CacheMapContent
	// CacheCatalogList caches catalog listings by (domain, selector).
	CacheCatalogList
	// CacheCatalogContent caches published content by (domain, label).
	CacheCatalogContent
	// CacheMetadata is reserved for the external metadata pipeline, which
	// uses Add for fetch debouncing.
	CacheMetadata
)

// CacheKey is a structured, by-value comparable cache key.
type CacheKey struct {
	Kind CacheKind
	A    string
	B    string
}

// String renders the key for singleflight grouping.
func (k CacheKey) String() string {
	return strconv.Itoa(int(k.Kind)) + ":" + k.A + ":" + k.B
}

// Cache is a namespaced key-value cache with get-or-compute, explicit
// deletion, and add-if-absent. Concurrent computes for the same key are
// collapsed, so Get never observes a partially constructed value; racing
// writers on distinct computes resolve last-write-wins.
type Cache struct {
	ttl time.Duration
	lru *tlru.Cache[CacheKey, any]
	sf  singleflight.Group
	mu  sync.Mutex // serializes Add's check-then-set
}

// NewCache creates a cache holding up to maxEntries values for ttl each.
func NewCache(ttl time.Duration, maxEntries int) *Cache {
	return &Cache{
		ttl: ttl,
		lru: tlru.New[CacheKey](tlru.ConstantCost[any], maxEntries),
	}
}

// Get returns the cached value for key, or invokes compute, stores the
// result under key, and returns it. Errors from compute are returned
// without caching anything.
func (c *Cache) Get(key CacheKey, compute func() (any, error)) (any, error) {
	if v, _, ok := c.lru.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.sf.Do(key.String(), func() (any, error) {
		// A racing flight may have populated the entry already.
		if v, _, ok := c.lru.Get(key); ok {
			return v, nil
		}
		v, err := compute()
		if err != nil {
			return nil, err
		}
		c.lru.Set(key, v, c.ttl)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Delete removes the entry for key if present. Absence is not an error.
func (c *Cache) Delete(key CacheKey) {
	c.lru.Delete(key)
}

// Add stores value under key only if the key is absent, and reports
// whether it was newly inserted.
func (c *Cache) Add(key CacheKey, value any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, _, ok := c.lru.Get(key); ok {
		return false
	}
	c.lru.Set(key, value, c.ttl)
	return true
}
