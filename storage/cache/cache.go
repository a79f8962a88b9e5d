// Package cache provides a bounded, access-expiring cache of Storables,
// suitable for placing in front of a StorageManager.
package cache

import (
	"fmt"
	"time"

	"go.registries.dev/core/storage"
)

// Cache is a key => value map of StorableKeys to Storables. It's a
// non-authoritative view: entries may be evicted at any time. Implementations
// are safe for concurrent use.
type Cache interface {
	// Get returns the cached Storable of the key, or nil.
	Get(storage.StorableKey) storage.Storable
	// Peek returns the cached Storable of the key, or nil, without counting
	// a hit or miss or refreshing the entry's access time.
	Peek(storage.StorableKey) storage.Storable
	// GetAll returns Entries of the keys which are cached.
	GetAll([]storage.StorableKey) []Entry
	// Put the Storable under the key.
	Put(storage.StorableKey, storage.Storable)
	// PutAll puts each of the Entries.
	PutAll([]Entry)
	// Remove the key.
	Remove(storage.StorableKey)
	// RemoveAll removes each of the keys.
	RemoveAll([]storage.StorableKey)
	// Clear removes all entries.
	Clear()
	// Size is the number of live entries.
	Size() int
	// Stats returns point-in-time cache statistics.
	Stats() Stats
	// ExpiryPolicy returns the policy under which entries are evicted.
	ExpiryPolicy() ExpiryPolicy
}

// Entry is a cached key and its value.
type Entry struct {
	Key   storage.StorableKey
	Value storage.Storable
}

// ExpiryPolicy bounds a Cache. Either bound independently triggers eviction.
type ExpiryPolicy struct {
	// MaxSize is the maximum number of entries.
	MaxSize int
	// ExpireAfterAccess is the maximum duration an entry may remain unread
	// before it's evicted. Zero disables idle expiry.
	ExpireAfterAccess time.Duration
}

// Validate returns an InvalidArgument error if the ExpiryPolicy is malformed.
func (p ExpiryPolicy) Validate() error {
	if p.MaxSize <= 0 {
		return storage.NewInvalidArgumentError("maxSize", "expected > 0, not %d", p.MaxSize)
	} else if p.ExpireAfterAccess < 0 {
		return storage.NewInvalidArgumentError("expireAfterAccess", "expected >= 0, not %s", p.ExpireAfterAccess)
	}
	return nil
}

func (p ExpiryPolicy) String() string {
	return fmt.Sprintf("maxSize=%d expireAfterAccess=%s", p.MaxSize, p.ExpireAfterAccess)
}

// Stats are point-in-time statistics of a Cache.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate is the ratio of hits to lookups, or 1.0 if there were none.
func (s Stats) HitRate() float64 {
	if n := s.Hits + s.Misses; n != 0 {
		return float64(s.Hits) / float64(n)
	}
	return 1.0
}
