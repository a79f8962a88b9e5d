package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// StorageManager persists, retrieves, and searches Storables.
//
// Get and Remove return a nil Storable (and nil error) if the key is absent.
// Find resolves QueryParams against the columns of the namespace: params not
// naming a column are logged and dropped, and if no param survives, Find
// lists the entire namespace.
type StorageManager interface {
	// Add inserts the Storable, failing with an AlreadyExists error if a
	// unique constraint is violated.
	Add(context.Context, Storable) error
	// Remove the Storable of the key, returning the removed value.
	Remove(context.Context, StorableKey) (Storable, error)
	// AddOrUpdate upserts the Storable.
	AddOrUpdate(context.Context, Storable) error
	// Update the Storable. Updating an absent key does not create a row.
	Update(context.Context, Storable) error
	// Get the Storable of the key.
	Get(context.Context, StorableKey) (Storable, error)
	// Find Storables of the namespace matching QueryParams.
	Find(ctx context.Context, namespace string, params []QueryParam, orderBy ...OrderByField) ([]Storable, error)
	// Search for Storables matching the SearchQuery.
	Search(context.Context, SearchQuery) ([]Storable, error)
	// List all Storables of the namespace.
	List(ctx context.Context, namespace string) ([]Storable, error)
	// NextID returns the next auto-increment value of the namespace.
	NextID(ctx context.Context, namespace string) (int64, error)
	// Cleanup releases resources held by the manager.
	Cleanup(context.Context) error
}

// LockManager acquires row locks by polling. Locks are held by the
// transaction of the Context, and are released when it completes.
type LockManager interface {
	// ReadLock polls for a shared lock of the key, for up to |timeout|.
	// It returns false if the lock was not obtained. A negative timeout
	// is an InvalidArgument error.
	ReadLock(ctx context.Context, key StorableKey, timeout time.Duration) (bool, error)
	// WriteLock polls for an exclusive lock of the key, for up to |timeout|.
	WriteLock(ctx context.Context, key StorableKey, timeout time.Duration) (bool, error)
}

// TransactionManager begins and completes transactions, which are carried
// by the returned Context.
type TransactionManager interface {
	// BeginTransaction begins a transaction of the isolation level, returning
	// a Context which is bound to it. It's an error to begin a transaction
	// with a Context already bound to one.
	BeginTransaction(ctx context.Context, level Isolation) (context.Context, error)
	// CommitTransaction commits the transaction bound to the Context.
	CommitTransaction(context.Context) error
	// RollbackTransaction rolls back the transaction bound to the Context.
	// On return, the underlying connection is usable by subsequent work.
	RollbackTransaction(context.Context) error
}

// Isolation is a transaction isolation level.
type Isolation int

const (
	ReadUncommitted Isolation = iota + 1
	ReadCommitted
	RepeatableRead
	Serializable
)

func (i Isolation) String() string {
	switch i {
	case ReadUncommitted:
		return "READ UNCOMMITTED"
	case ReadCommitted:
		return "READ COMMITTED"
	case RepeatableRead:
		return "REPEATABLE READ"
	case Serializable:
		return "SERIALIZABLE"
	default:
		return fmt.Sprintf("Isolation(%d)", int(i))
	}
}

// SQLLevel maps the Isolation to its database/sql counterpart.
func (i Isolation) SQLLevel() (sql.IsolationLevel, error) {
	switch i {
	case ReadUncommitted:
		return sql.LevelReadUncommitted, nil
	case ReadCommitted:
		return sql.LevelReadCommitted, nil
	case RepeatableRead:
		return sql.LevelRepeatableRead, nil
	case Serializable:
		return sql.LevelSerializable, nil
	default:
		return 0, NewInvalidArgumentError("isolation", "unknown isolation level %d", int(i))
	}
}

// RunInTransaction runs |fn| within a transaction of the isolation level.
// The transaction commits if |fn| returns nil, and otherwise rolls back.
// A failed rollback is logged, and |fn|'s error is returned.
func RunInTransaction(ctx context.Context, tm TransactionManager, level Isolation, fn func(context.Context) error) error {
	var txnCtx, err = tm.BeginTransaction(ctx, level)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			if rbErr := tm.RollbackTransaction(txnCtx); rbErr != nil {
				log.WithField("err", rbErr).Error("failed to roll back transaction after panic")
			}
			panic(r)
		}
	}()

	if err = fn(txnCtx); err != nil {
		if rbErr := tm.RollbackTransaction(txnCtx); rbErr != nil {
			log.WithFields(log.Fields{"err": rbErr, "cause": err}).Error("failed to roll back transaction")
		}
		return err
	}
	return tm.CommitTransaction(txnCtx)
}
