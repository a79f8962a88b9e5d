package sqlstore

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.registries.dev/core/metrics"
	"go.registries.dev/core/storage"
)

// DefaultLockPollInterval is the default interval between attempts to
// obtain a row lock.
const DefaultLockPollInterval = 500 * time.Millisecond

// Manager is a database-backed storage.StorageManager, which also implements
// storage.TransactionManager and storage.LockManager. Unique constraints of
// tables are relied upon to arbitrate concurrent inserts.
type Manager struct {
	exec *Executor
	// LockPollInterval is the interval between attempts of ReadLock and
	// WriteLock to obtain a lock.
	LockPollInterval time.Duration
}

var (
	_ storage.StorageManager     = (*Manager)(nil)
	_ storage.TransactionManager = (*Manager)(nil)
	_ storage.LockManager        = (*Manager)(nil)
)

// NewManager returns a Manager of the Executor.
func NewManager(exec *Executor) *Manager {
	return &Manager{exec: exec, LockPollInterval: DefaultLockPollInterval}
}

// Executor of the Manager.
func (m *Manager) Executor() *Executor { return m.exec }

// Add implements storage.StorageManager. A database-generated "id" is set
// on the Storable.
func (m *Manager) Add(ctx context.Context, s storage.Storable) (err error) {
	defer observe("add", timeNow(), &err)
	log.WithField("storable", s).Debug("adding storable")

	return m.exec.Insert(ctx, s)
}

// Remove implements storage.StorageManager. The current value is read
// before it's deleted, and is returned (or nil, if the key was absent).
func (m *Manager) Remove(ctx context.Context, key storage.StorableKey) (_ storage.Storable, err error) {
	defer observe("remove", timeNow(), &err)

	if err = key.Validate(); err != nil {
		return nil, err
	}
	old, err := m.get(ctx, key)
	if err != nil {
		return nil, err
	}
	log.WithField("key", key).Debug("removing storable")

	if err = m.exec.Delete(ctx, key); err != nil {
		return nil, err
	}
	return old, nil
}

// AddOrUpdate implements storage.StorageManager.
func (m *Manager) AddOrUpdate(ctx context.Context, s storage.Storable) (err error) {
	defer observe("addOrUpdate", timeNow(), &err)
	log.WithField("storable", s).Debug("adding or updating storable")

	return m.exec.InsertOrUpdate(ctx, s)
}

// Update implements storage.StorageManager. Updating an absent key affects
// no rows, and is not an error.
func (m *Manager) Update(ctx context.Context, s storage.Storable) (err error) {
	defer observe("update", timeNow(), &err)

	n, err := m.exec.Update(ctx, s)
	if err == nil && n == 0 {
		log.WithField("key", storage.KeyOf(s)).Debug("update matched no rows")
	}
	return err
}

// Get implements storage.StorageManager.
func (m *Manager) Get(ctx context.Context, key storage.StorableKey) (_ storage.Storable, err error) {
	defer observe("get", timeNow(), &err)

	if err = key.Validate(); err != nil {
		return nil, err
	}
	return m.get(ctx, key)
}

func (m *Manager) get(ctx context.Context, key storage.StorableKey) (storage.Storable, error) {
	var entries, err = m.exec.Select(ctx, key.Namespace, key.PrimaryKey)
	if err != nil {
		return nil, err
	} else if len(entries) == 0 {
		return nil, nil
	} else if len(entries) > 1 {
		log.WithFields(log.Fields{"key": key, "count": len(entries)}).
			Warn("more than one entry found for storable key")
	}
	return entries[0], nil
}

// Find implements storage.StorageManager. QueryParams are resolved against
// the columns of the namespace: params naming no column are dropped, and
// a value which doesn't parse as its column's Type is an InvalidArgument.
// If no params remain, the entire namespace is listed.
func (m *Manager) Find(ctx context.Context, namespace string, params []storage.QueryParam, orderBy ...storage.OrderByField) (_ []storage.Storable, err error) {
	defer observe("find", timeNow(), &err)

	if len(params) == 0 {
		return m.exec.Select(ctx, namespace, nil, orderBy...)
	}
	pk, err := m.resolve(ctx, namespace, params)
	if err != nil {
		return nil, err
	} else if len(pk) == 0 {
		log.WithFields(log.Fields{"namespace": namespace, "params": params}).
			Warn("no query parameter matched a column; listing namespace")
	}
	return m.exec.Select(ctx, namespace, pk, orderBy...)
}

// resolve QueryParams into a PrimaryKey over columns of the namespace.
func (m *Manager) resolve(ctx context.Context, namespace string, params []storage.QueryParam) (storage.PrimaryKey, error) {
	var cols, err = m.exec.Columns(ctx, namespace)
	if err != nil {
		return nil, err
	}
	var fields = make(map[storage.Field]interface{}, len(params))

	for _, qp := range params {
		var typ, ok = cols.Type(qp.Name)
		if !ok {
			log.WithFields(log.Fields{"param": qp.Name, "namespace": namespace}).
				Warn("query parameter does not exist for namespace; ignored")
			continue
		}
		v, err := typ.Parse(qp.Value)
		if err != nil {
			return nil, errors.WithMessagef(err, "query parameter %s of %s", qp.Name, namespace)
		}
		fields[storage.Field{Name: qp.Name, Type: typ}] = v
	}
	return storage.NewPrimaryKey(fields), nil
}

// Search implements storage.StorageManager.
func (m *Manager) Search(ctx context.Context, q storage.SearchQuery) (_ []storage.Storable, err error) {
	defer observe("search", timeNow(), &err)
	return m.exec.Search(ctx, q)
}

// List implements storage.StorageManager.
func (m *Manager) List(ctx context.Context, namespace string) (_ []storage.Storable, err error) {
	defer observe("list", timeNow(), &err)
	return m.exec.Select(ctx, namespace, nil)
}

// NextID implements storage.StorageManager. It's meaningful only for tables
// having an auto-increment "id" column.
func (m *Manager) NextID(ctx context.Context, namespace string) (_ int64, err error) {
	defer observe("nextId", timeNow(), &err)
	return m.exec.NextID(ctx, namespace)
}

// Cleanup implements storage.StorageManager.
func (m *Manager) Cleanup(context.Context) error {
	m.exec.Cleanup()
	return nil
}

// ReadLock implements storage.LockManager.
func (m *Manager) ReadLock(ctx context.Context, key storage.StorableKey, timeout time.Duration) (bool, error) {
	log.WithField("key", key).Debug("obtaining read lock")
	return m.pollLock(ctx, key, storage.LockShared, timeout, m.exec.SelectForShare)
}

// WriteLock implements storage.LockManager.
func (m *Manager) WriteLock(ctx context.Context, key storage.StorableKey, timeout time.Duration) (bool, error) {
	log.WithField("key", key).Debug("obtaining write lock")
	return m.pollLock(ctx, key, storage.LockExclusive, timeout, m.exec.SelectForUpdate)
}

// pollLock repeatedly issues a locking read of the key until it returns a
// row, or until |timeout| elapses. The database's own lock-wait applies to
// each read; polling bounds the overall wait without configuring it.
func (m *Manager) pollLock(
	ctx context.Context,
	key storage.StorableKey,
	mode storage.LockMode,
	timeout time.Duration,
	read func(context.Context, storage.StorableKey) ([]storage.Storable, error),
) (bool, error) {
	if timeout < 0 {
		return false, storage.NewInvalidArgumentError("timeout", "lock wait time can't be negative (%s)", timeout)
	} else if err := key.Validate(); err != nil {
		return false, err
	}
	var start = timeNow()
	var obtained bool

	defer func() {
		metrics.RegistryStorageLockWaitSeconds.
			WithLabelValues(mode.String(), strconv.FormatBool(obtained)).
			Observe(timeNow().Sub(start).Seconds())
	}()

	for {
		var rows, err = read(ctx, key)
		if err != nil {
			return false, err
		} else if len(rows) != 0 {
			obtained = true
			return true, nil
		} else if timeNow().Sub(start) >= timeout {
			return false, nil
		}

		select {
		case <-time.After(m.LockPollInterval):
		case <-ctx.Done():
			return false, storage.NewStorageError(ctx.Err(), "waiting for %s lock of %s", mode, key)
		}
	}
}

// BeginTransaction implements storage.TransactionManager.
func (m *Manager) BeginTransaction(ctx context.Context, level storage.Isolation) (context.Context, error) {
	return m.exec.BeginTransaction(ctx, level)
}

// CommitTransaction implements storage.TransactionManager.
func (m *Manager) CommitTransaction(ctx context.Context) error {
	return m.exec.CommitTransaction(ctx)
}

// RollbackTransaction implements storage.TransactionManager.
func (m *Manager) RollbackTransaction(ctx context.Context) error {
	return m.exec.RollbackTransaction(ctx)
}

func observe(op string, start time.Time, err *error) {
	var status = metrics.Ok
	if *err != nil {
		status = metrics.Fail
	}
	metrics.RegistryStorageOpsTotal.WithLabelValues(op, status).Inc()
	metrics.RegistryStorageOpDurationSeconds.WithLabelValues(op).Observe(timeNow().Sub(start).Seconds())
}
