package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.registries.dev/core/storage"
)

// txn is a transaction in progress, bound to a dedicated connection.
type txn struct {
	id      uuid.UUID
	level   storage.Isolation
	conn    *sql.Conn
	tx      *sql.Tx
	started time.Time
}

type txnKey struct{}

func txnFrom(ctx context.Context) *txn {
	var t, _ = ctx.Value(txnKey{}).(*txn)
	return t
}

// queryer is implemented by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (e *Executor) queryer(ctx context.Context) queryer {
	if t := txnFrom(ctx); t != nil {
		return t.tx
	}
	return e.db
}

// BeginTransaction begins a transaction on a dedicated connection, and
// returns a Context bound to it.
func (e *Executor) BeginTransaction(ctx context.Context, level storage.Isolation) (context.Context, error) {
	if t := txnFrom(ctx); t != nil {
		return nil, storage.NewInvalidArgumentError("context", "transaction %s is already in progress", t.id)
	}
	var sqlLevel, err = level.SQLLevel()
	if err != nil {
		return nil, err
	}
	var opts = new(sql.TxOptions)
	if e.dialect.SupportsIsolation() {
		opts.Isolation = sqlLevel
	}

	var t = &txn{id: uuid.New(), level: level, started: timeNow()}
	if t.conn, err = e.db.Conn(ctx); err != nil {
		return nil, storage.NewStorageError(err, "acquiring connection")
	}
	if t.tx, err = t.conn.BeginTx(ctx, opts); err != nil {
		_ = t.conn.Close()
		return nil, storage.NewStorageError(err, "beginning %s transaction", level)
	}

	log.WithFields(log.Fields{"txn": t.id, "level": level}).Debug("began transaction")
	return context.WithValue(ctx, txnKey{}, t), nil
}

// CommitTransaction commits the transaction of the Context.
func (e *Executor) CommitTransaction(ctx context.Context) error {
	var t = txnFrom(ctx)
	if t == nil {
		return storage.NewInvalidArgumentError("context", "no transaction is in progress")
	}
	defer t.conn.Close()

	if err := t.tx.Commit(); err != nil {
		return storage.NewStorageError(err, "committing transaction %s", t.id)
	}
	log.WithFields(log.Fields{"txn": t.id, "elapsed": timeNow().Sub(t.started)}).Debug("committed transaction")
	return nil
}

// RollbackTransaction rolls back the transaction of the Context. If the
// rollback itself fails, the connection is discarded from the pool rather
// than returned with unknown transaction state.
func (e *Executor) RollbackTransaction(ctx context.Context) error {
	var t = txnFrom(ctx)
	if t == nil {
		return storage.NewInvalidArgumentError("context", "no transaction is in progress")
	}
	defer t.conn.Close()

	var err = t.tx.Rollback()
	if err == sql.ErrTxDone {
		err = nil // Already rolled back, eg by Context cancellation.
	}
	if err != nil {
		log.WithFields(log.Fields{"txn": t.id, "err": err}).
			Warn("rollback failed; discarding connection")

		_ = t.conn.Raw(func(interface{}) error { return driver.ErrBadConn })
		return storage.NewStorageError(err, "rolling back transaction %s", t.id)
	}
	log.WithField("txn", t.id).Debug("rolled back transaction")
	return nil
}
