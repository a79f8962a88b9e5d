package cache

import (
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"go.registries.dev/core/metrics"
	"go.registries.dev/core/storage"
)

// LRU is a Cache which evicts the least-recently accessed entry once
// MaxSize is reached, and evicts entries left unread for longer than
// ExpireAfterAccess. Idle entries are evicted lazily, as they're read or
// as Size is computed.
type LRU struct {
	cache  *lru.Cache
	policy ExpiryPolicy

	hits, misses, evictions int64 // Accessed atomically.
}

// NewLRU returns an LRU Cache of the ExpiryPolicy.
func NewLRU(policy ExpiryPolicy) (*LRU, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	var cache, err = lru.New(policy.MaxSize)
	if err != nil {
		return nil, err // Only errors on size <= 0.
	}
	return &LRU{cache: cache, policy: policy}, nil
}

type cachedStorable struct {
	key      storage.StorableKey
	value    storage.Storable
	accessed int64 // UnixNano of last access. Accessed atomically.
}

func (e *cachedStorable) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, atomic.LoadInt64(&e.accessed)))
}

// Get implements Cache.
func (c *LRU) Get(key storage.StorableKey) storage.Storable {
	var v, ok = c.cache.Get(key.String())
	if !ok {
		c.miss()
		return nil
	}
	var e, now = v.(*cachedStorable), timeNow()

	if c.expired(e, now) {
		c.cache.Remove(key.String())
		c.evict(1)
		c.miss()
		return nil
	}
	atomic.StoreInt64(&e.accessed, now.UnixNano())

	atomic.AddInt64(&c.hits, 1)
	metrics.RegistryCacheHitsTotal.Inc()
	return e.value
}

// Peek implements Cache. An expired entry is left for Get to evict.
func (c *LRU) Peek(key storage.StorableKey) storage.Storable {
	var v, ok = c.cache.Peek(key.String())
	if !ok {
		return nil
	}
	var e = v.(*cachedStorable)
	if c.expired(e, timeNow()) {
		return nil
	}
	return e.value
}

// GetAll implements Cache.
func (c *LRU) GetAll(keys []storage.StorableKey) []Entry {
	var out []Entry
	for _, key := range keys {
		if v := c.Get(key); v != nil {
			out = append(out, Entry{Key: key, Value: v})
		}
	}
	return out
}

// Put implements Cache.
func (c *LRU) Put(key storage.StorableKey, value storage.Storable) {
	var e = &cachedStorable{key: key, value: value, accessed: timeNow().UnixNano()}
	if evicted := c.cache.Add(key.String(), e); evicted {
		c.evict(1)
	}
}

// PutAll implements Cache.
func (c *LRU) PutAll(entries []Entry) {
	for _, e := range entries {
		c.Put(e.Key, e.Value)
	}
}

// Remove implements Cache.
func (c *LRU) Remove(key storage.StorableKey) { c.cache.Remove(key.String()) }

// RemoveAll implements Cache.
func (c *LRU) RemoveAll(keys []storage.StorableKey) {
	for _, key := range keys {
		c.Remove(key)
	}
}

// Clear implements Cache.
func (c *LRU) Clear() { c.cache.Purge() }

// Size implements Cache. It first evicts entries which have expired.
func (c *LRU) Size() int {
	if c.policy.ExpireAfterAccess != 0 {
		var now = timeNow()

		for _, k := range c.cache.Keys() {
			if v, ok := c.cache.Peek(k); ok && c.expired(v.(*cachedStorable), now) {
				c.cache.Remove(k)
				c.evict(1)
			}
		}
	}
	return c.cache.Len()
}

// Stats implements Cache.
func (c *LRU) Stats() Stats {
	return Stats{
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Evictions: atomic.LoadInt64(&c.evictions),
	}
}

// ExpiryPolicy implements Cache.
func (c *LRU) ExpiryPolicy() ExpiryPolicy { return c.policy }

func (c *LRU) expired(e *cachedStorable, now time.Time) bool {
	return c.policy.ExpireAfterAccess != 0 && e.idleSince(now) > c.policy.ExpireAfterAccess
}

func (c *LRU) miss() {
	atomic.AddInt64(&c.misses, 1)
	metrics.RegistryCacheMissesTotal.Inc()
}

func (c *LRU) evict(n int64) {
	atomic.AddInt64(&c.evictions, n)
	metrics.RegistryCacheEvictionsTotal.Add(float64(n))
}

var timeNow = time.Now
