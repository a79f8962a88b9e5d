// Package memory is an in-memory implementation of storage.StorageManager,
// storage.TransactionManager and storage.LockManager, for testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.registries.dev/core/storage"
)

// Manager holds rows of each namespace in memory. Stored and returned
// Storables are copies, materialized through the Registry.
//
// Transactions are serialized: BeginTransaction blocks until any other
// transaction completes, and RollbackTransaction restores the contents
// which existed when the transaction began. Writes made outside of a
// transaction while one is in progress are lost if it rolls back.
type Manager struct {
	registry *storage.Registry
	// LockPollInterval is the interval between attempts of ReadLock and
	// WriteLock to find the key.
	LockPollInterval time.Duration

	txnMu sync.Mutex // Held for the duration of a transaction.
	mu    sync.RWMutex
	rows  map[string]map[string]map[string]interface{} // Namespace => key => row.
	ids   map[string]int64                             // Namespace => last assigned ID.
}

var (
	_ storage.StorageManager     = (*Manager)(nil)
	_ storage.TransactionManager = (*Manager)(nil)
	_ storage.LockManager        = (*Manager)(nil)
)

// NewManager returns an empty Manager of the Registry.
func NewManager(registry *storage.Registry) *Manager {
	return &Manager{
		registry:         registry,
		LockPollInterval: 10 * time.Millisecond,
		rows:             make(map[string]map[string]map[string]interface{}),
		ids:              make(map[string]int64),
	}
}

// Add implements storage.StorageManager. A Storable having a nil "id"
// column is assigned the namespace's next ID, as an auto-increment column
// would be, and the ID is set on the Storable.
func (m *Manager) Add(_ context.Context, s storage.Storable) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var row, key, err = m.prepare(s)
	if err != nil {
		return err
	} else if _, ok := m.rows[key.Namespace][key.String()]; ok {
		return storage.NewAlreadyExistsError(key, nil)
	}
	m.put(key, row)

	if s.ToMap()["id"] == nil && row["id"] != nil {
		// Reflect the assigned ID into the caller's Storable.
		return s.FromMap(row)
	}
	return nil
}

// Remove implements storage.StorageManager.
func (m *Manager) Remove(_ context.Context, key storage.StorableKey) (storage.Storable, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var row, ok = m.rows[key.Namespace][key.String()]
	if !ok {
		return nil, nil
	}
	delete(m.rows[key.Namespace], key.String())
	return m.registry.Materialize(key.Namespace, row)
}

// AddOrUpdate implements storage.StorageManager.
func (m *Manager) AddOrUpdate(_ context.Context, s storage.Storable) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var row, key, err = m.prepare(s)
	if err != nil {
		return err
	}
	m.put(key, row)
	return nil
}

// Update implements storage.StorageManager. Updating an absent key is a no-op.
func (m *Manager) Update(_ context.Context, s storage.Storable) error {
	var key = storage.KeyOf(s)
	if err := key.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var cur, ok = m.rows[key.Namespace][key.String()]
	if !ok {
		log.WithField("key", key).Debug("update matched no rows")
		return nil
	}
	// Columns having a nil value are left unchanged.
	var row = make(map[string]interface{}, len(cur))
	for k, v := range cur {
		row[k] = v
	}
	for k, v := range s.ToMap() {
		if v != nil {
			row[k] = v
		}
	}
	m.put(key, row)
	return nil
}

// Get implements storage.StorageManager.
func (m *Manager) Get(_ context.Context, key storage.StorableKey) (storage.Storable, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var row, ok = m.rows[key.Namespace][key.String()]
	if !ok {
		return nil, nil
	}
	return m.registry.Materialize(key.Namespace, row)
}

// Find implements storage.StorageManager. QueryParams are resolved against
// the Schema of the namespace's registered Storable.
func (m *Manager) Find(ctx context.Context, namespace string, params []storage.QueryParam, orderBy ...storage.OrderByField) ([]storage.Storable, error) {
	var proto, err = m.registry.New(namespace)
	if err != nil {
		return nil, err
	}
	var preds []storage.Predicate

	for _, qp := range params {
		var field, ok = proto.Schema().Field(qp.Name)
		if !ok {
			log.WithFields(log.Fields{"param": qp.Name, "namespace": namespace}).
				Warn("query parameter does not exist for namespace; ignored")
			continue
		}
		v, err := field.Type.Parse(qp.Value)
		if err != nil {
			return nil, errors.WithMessagef(err, "query parameter %s of %s", qp.Name, namespace)
		}
		preds = append(preds, storage.Eq(qp.Name, v))
	}

	var q = storage.SearchFrom(namespace).OrderBy(orderBy...)
	if len(preds) != 0 {
		q = q.Where(preds...)
	}
	return m.Search(ctx, q)
}

// Search implements storage.StorageManager. Lock modes are ignored.
// Results are ordered by the query's ordering, and then by PrimaryKey.
func (m *Manager) Search(_ context.Context, q storage.SearchQuery) ([]storage.Storable, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	var matched []map[string]interface{}
	for _, row := range m.rows[q.Namespace] {
		if q.Filter.Matches(row) {
			matched = append(matched, row)
		}
	}
	m.mu.RUnlock()

	var out = make([]storage.Storable, 0, len(matched))
	for _, row := range matched {
		var s, err = m.registry.Materialize(q.Namespace, row)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		var ri, rj = out[i].ToMap(), out[j].ToMap()
		for _, o := range q.Order {
			if c := storage.CompareValues(ri[o.Name], rj[o.Name]); c != 0 {
				return (c < 0) != o.Descending
			}
		}
		return comparePrimaryKeys(out[i].PrimaryKey(), out[j].PrimaryKey()) < 0
	})
	return out, nil
}

// List implements storage.StorageManager.
func (m *Manager) List(ctx context.Context, namespace string) ([]storage.Storable, error) {
	return m.Search(ctx, storage.SearchFrom(namespace))
}

// NextID implements storage.StorageManager.
func (m *Manager) NextID(_ context.Context, namespace string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ids[namespace] + 1, nil
}

// Cleanup implements storage.StorageManager.
func (m *Manager) Cleanup(context.Context) error { return nil }

// ReadLock implements storage.LockManager. As transactions are serialized,
// a lock is obtained as soon as the key exists.
func (m *Manager) ReadLock(ctx context.Context, key storage.StorableKey, timeout time.Duration) (bool, error) {
	return m.pollExists(ctx, key, timeout)
}

// WriteLock implements storage.LockManager.
func (m *Manager) WriteLock(ctx context.Context, key storage.StorableKey, timeout time.Duration) (bool, error) {
	return m.pollExists(ctx, key, timeout)
}

func (m *Manager) pollExists(ctx context.Context, key storage.StorableKey, timeout time.Duration) (bool, error) {
	if timeout < 0 {
		return false, storage.NewInvalidArgumentError("timeout", "lock wait time can't be negative (%s)", timeout)
	} else if err := key.Validate(); err != nil {
		return false, err
	}
	var deadline = time.Now().Add(timeout)

	for {
		m.mu.RLock()
		var _, ok = m.rows[key.Namespace][key.String()]
		m.mu.RUnlock()

		if ok {
			return true, nil
		} else if !time.Now().Before(deadline) {
			return false, nil
		}
		select {
		case <-time.After(m.LockPollInterval):
		case <-ctx.Done():
			return false, storage.NewStorageError(ctx.Err(), "waiting for lock of %s", key)
		}
	}
}

type txnKey struct{}

// snapshot of Manager contents, taken when a transaction begins.
type snapshot struct {
	rows map[string]map[string]map[string]interface{}
	ids  map[string]int64
}

// BeginTransaction implements storage.TransactionManager. The Isolation
// level is ignored: transactions are always serialized.
func (m *Manager) BeginTransaction(ctx context.Context, level storage.Isolation) (context.Context, error) {
	if ctx.Value(txnKey{}) != nil {
		return nil, storage.NewInvalidArgumentError("context", "a transaction is already in progress")
	}
	m.txnMu.Lock()

	m.mu.RLock()
	var snap = &snapshot{rows: make(map[string]map[string]map[string]interface{}), ids: make(map[string]int64)}
	for ns, rows := range m.rows {
		snap.rows[ns] = make(map[string]map[string]interface{}, len(rows))
		for k, r := range rows {
			snap.rows[ns][k] = r // Rows are replaced, never mutated.
		}
	}
	for ns, id := range m.ids {
		snap.ids[ns] = id
	}
	m.mu.RUnlock()

	log.WithField("level", level).Debug("began transaction")
	return context.WithValue(ctx, txnKey{}, snap), nil
}

// CommitTransaction implements storage.TransactionManager.
func (m *Manager) CommitTransaction(ctx context.Context) error {
	if _, ok := ctx.Value(txnKey{}).(*snapshot); !ok {
		return storage.NewInvalidArgumentError("context", "no transaction is in progress")
	}
	m.txnMu.Unlock()
	return nil
}

// RollbackTransaction implements storage.TransactionManager.
func (m *Manager) RollbackTransaction(ctx context.Context) error {
	var snap, ok = ctx.Value(txnKey{}).(*snapshot)
	if !ok {
		return storage.NewInvalidArgumentError("context", "no transaction is in progress")
	}
	m.mu.Lock()
	m.rows, m.ids = snap.rows, snap.ids
	m.mu.Unlock()

	m.txnMu.Unlock()
	return nil
}

// prepare returns the row and StorableKey of the Storable, assigning its
// ID if required. m.mu must be held.
func (m *Manager) prepare(s storage.Storable) (map[string]interface{}, storage.StorableKey, error) {
	var row = s.ToMap()
	var ns = s.Namespace()

	if f, ok := s.Schema().Field("id"); ok && row["id"] == nil {
		if f.Type != storage.Long && f.Type != storage.Integer {
			return nil, storage.StorableKey{}, storage.NewInvalidArgumentError("id", "cannot assign id of type %s", f.Type)
		}
		row["id"] = m.ids[ns] + 1
	}
	// Materialize to obtain the key, which may include an assigned ID.
	var out, err = m.registry.Materialize(ns, row)
	if err != nil {
		return nil, storage.StorableKey{}, err
	}
	var key = storage.KeyOf(out)
	if err = key.Validate(); err != nil {
		return nil, storage.StorableKey{}, err
	}
	return out.ToMap(), key, nil
}

// put the row under the key. m.mu must be held.
func (m *Manager) put(key storage.StorableKey, row map[string]interface{}) {
	if m.rows[key.Namespace] == nil {
		m.rows[key.Namespace] = make(map[string]map[string]interface{})
	}
	m.rows[key.Namespace][key.String()] = row

	if id := storage.AsInt64(row["id"]); id > m.ids[key.Namespace] {
		m.ids[key.Namespace] = id
	}
}

func comparePrimaryKeys(a, b storage.PrimaryKey) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := storage.CompareValues(a[i].Value, b[i].Value); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}
