// Package cachedstore composes a cache.Cache with a storage.StorageManager,
// writing through to the cache on mutation and reading through it on Get.
package cachedstore

import (
	"context"
	"reflect"
	"time"

	log "github.com/sirupsen/logrus"
	"go.registries.dev/core/metrics"
	"go.registries.dev/core/storage"
	"go.registries.dev/core/storage/cache"
)

// Manager is a storage.StorageManager which keeps a Cache as a
// non-authoritative view of its delegate StorageManager. Writes go to the
// delegate first, and then to the Cache if the Storable is Cacheable.
// Updates and upserts may leave nil columns unchanged, so their keys are
// evicted and the stored value read back rather than caching the argument. Only
// point lookups by key are served from the Cache: Find, Search and List
// always go to the delegate.
//
// Writers which bypass the Manager aren't observed, and cached values may
// be stale with respect to them.
type Manager struct {
	cache    cache.Cache
	delegate storage.StorageManager
}

var (
	_ storage.StorageManager     = (*Manager)(nil)
	_ storage.TransactionManager = (*Manager)(nil)
	_ storage.LockManager        = (*Manager)(nil)
)

// NewManager returns a Manager of the Cache and delegate StorageManager.
func NewManager(c cache.Cache, delegate storage.StorageManager) *Manager {
	return &Manager{cache: c, delegate: delegate}
}

// Cache of the Manager.
func (m *Manager) Cache() cache.Cache { return m.cache }

// Add implements storage.StorageManager. The delegate sets a generated
// "id" on the Storable. If it didn't, the Storable isn't cached, as it
// differs from the stored row.
func (m *Manager) Add(ctx context.Context, s storage.Storable) error {
	if err := m.delegate.Add(ctx, s); err != nil {
		return err
	}
	if !s.Cacheable() {
		return nil
	} else if hasUnassignedID(s) {
		log.WithField("key", storage.KeyOf(s)).Warn("not caching added storable without an assigned id")
		return nil
	}
	m.cache.Put(storage.KeyOf(s), s)
	return nil
}

// AddOrUpdate implements storage.StorageManager.
func (m *Manager) AddOrUpdate(ctx context.Context, s storage.Storable) error {
	if err := m.delegate.AddOrUpdate(ctx, s); err != nil {
		return err
	}
	m.refresh(ctx, s)
	return nil
}

// Update implements storage.StorageManager. Update of an absent key caches
// nothing.
func (m *Manager) Update(ctx context.Context, s storage.Storable) error {
	if err := m.delegate.Update(ctx, s); err != nil {
		return err
	}
	m.refresh(ctx, s)
	return nil
}

// Remove implements storage.StorageManager. The key is evicted from the
// Cache whether or not the delegate held it. A cached value which differs
// from the removed one is logged, as the Cache was inconsistent.
func (m *Manager) Remove(ctx context.Context, key storage.StorableKey) (storage.Storable, error) {
	var old, err = m.delegate.Remove(ctx, key)
	if err != nil {
		return nil, err
	}

	if old != nil && old.Cacheable() {
		if cached := m.cache.Peek(key); cached != nil && !reflect.DeepEqual(cached, old) {
			log.WithFields(log.Fields{
				"key":     key,
				"cached":  cached,
				"removed": old,
			}).Warn("cached value differs from removed value")
			metrics.RegistryCacheInconsistentTotal.Inc()
		}
	}
	m.cache.Remove(key)
	return old, nil
}

// Get implements storage.StorageManager. A cache miss is read from the
// delegate, and cached if Cacheable. A cached Storable which isn't
// Cacheable is evicted and never returned, and the delegate is read instead.
func (m *Manager) Get(ctx context.Context, key storage.StorableKey) (storage.Storable, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if cached := m.cache.Get(key); cached != nil {
		if cached.Cacheable() {
			return cached, nil
		}
		log.WithField("key", key).Warn("evicting cached entry which is not cacheable")
		m.cache.Remove(key)
	}

	var out, err = m.delegate.Get(ctx, key)
	if err != nil || out == nil {
		return nil, err
	}
	m.putIfCacheable(out)
	return out, nil
}

// Find implements storage.StorageManager.
func (m *Manager) Find(ctx context.Context, namespace string, params []storage.QueryParam, orderBy ...storage.OrderByField) ([]storage.Storable, error) {
	return m.delegate.Find(ctx, namespace, params, orderBy...)
}

// Search implements storage.StorageManager.
func (m *Manager) Search(ctx context.Context, q storage.SearchQuery) ([]storage.Storable, error) {
	return m.delegate.Search(ctx, q)
}

// List implements storage.StorageManager.
func (m *Manager) List(ctx context.Context, namespace string) ([]storage.Storable, error) {
	return m.delegate.List(ctx, namespace)
}

// NextID implements storage.StorageManager.
func (m *Manager) NextID(ctx context.Context, namespace string) (int64, error) {
	return m.delegate.NextID(ctx, namespace)
}

// Cleanup implements storage.StorageManager. It clears the Cache and then
// cleans up the delegate.
func (m *Manager) Cleanup(ctx context.Context) error {
	m.cache.Clear()
	return m.delegate.Cleanup(ctx)
}

// BeginTransaction implements storage.TransactionManager by delegation.
func (m *Manager) BeginTransaction(ctx context.Context, level storage.Isolation) (context.Context, error) {
	var tm, err = m.transactions()
	if err != nil {
		return nil, err
	}
	return tm.BeginTransaction(ctx, level)
}

// CommitTransaction implements storage.TransactionManager by delegation.
func (m *Manager) CommitTransaction(ctx context.Context) error {
	var tm, err = m.transactions()
	if err != nil {
		return err
	}
	return tm.CommitTransaction(ctx)
}

// RollbackTransaction implements storage.TransactionManager by delegation.
// Values cached during the transaction are not reverted.
func (m *Manager) RollbackTransaction(ctx context.Context) error {
	var tm, err = m.transactions()
	if err != nil {
		return err
	}
	return tm.RollbackTransaction(ctx)
}

// ReadLock implements storage.LockManager by delegation.
func (m *Manager) ReadLock(ctx context.Context, key storage.StorableKey, timeout time.Duration) (bool, error) {
	var lm, err = m.locks()
	if err != nil {
		return false, err
	}
	return lm.ReadLock(ctx, key, timeout)
}

// WriteLock implements storage.LockManager by delegation.
func (m *Manager) WriteLock(ctx context.Context, key storage.StorableKey, timeout time.Duration) (bool, error) {
	var lm, err = m.locks()
	if err != nil {
		return false, err
	}
	return lm.WriteLock(ctx, key, timeout)
}

func (m *Manager) putIfCacheable(s storage.Storable) {
	if s.Cacheable() {
		m.cache.Put(storage.KeyOf(s), s)
	}
}

// refresh evicts the key of the written Storable, and caches the value the
// delegate now holds for it. A failed read leaves the key evicted.
func (m *Manager) refresh(ctx context.Context, s storage.Storable) {
	var key = storage.KeyOf(s)
	m.cache.Remove(key)

	if !s.Cacheable() {
		return
	}
	var out, err = m.delegate.Get(ctx, key)
	if err != nil {
		log.WithFields(log.Fields{"key": key, "err": err}).Warn("failed to read back written storable")
		return
	} else if out != nil {
		m.putIfCacheable(out)
	}
}

func hasUnassignedID(s storage.Storable) bool {
	var _, ok = s.Schema().Field("id")
	return ok && s.ToMap()["id"] == nil
}

func (m *Manager) transactions() (storage.TransactionManager, error) {
	if tm, ok := m.delegate.(storage.TransactionManager); ok {
		return tm, nil
	}
	return nil, storage.NewStorageError(storage.ErrUnsupported, "%T is not a TransactionManager", m.delegate)
}

func (m *Manager) locks() (storage.LockManager, error) {
	if lm, ok := m.delegate.(storage.LockManager); ok {
		return lm, nil
	}
	return nil, storage.NewStorageError(storage.ErrUnsupported, "%T is not a LockManager", m.delegate)
}
