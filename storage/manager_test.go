package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunInTransactionCommitAndRollback(t *testing.T) {
	var tm = &recordingTxnManager{}

	require.NoError(t, RunInTransaction(context.Background(), tm, ReadCommitted,
		func(ctx context.Context) error {
			assert.Equal(t, "txn", ctx.Value(txnKey{}))
			return nil
		}))
	assert.Equal(t, []string{"begin READ COMMITTED", "commit"}, tm.calls)

	tm.calls = nil
	var fnErr = errors.New("whoops")
	assert.Equal(t, fnErr, RunInTransaction(context.Background(), tm, ReadCommitted,
		func(context.Context) error { return fnErr }))
	assert.Equal(t, []string{"begin READ COMMITTED", "rollback"}, tm.calls)

	// A failed rollback doesn't mask the function's error.
	tm.calls, tm.rollbackErr = nil, errors.New("rollback failed")
	assert.Equal(t, fnErr, RunInTransaction(context.Background(), tm, ReadCommitted,
		func(context.Context) error { return fnErr }))

	// Panics roll back, and are re-raised.
	tm.calls, tm.rollbackErr = nil, nil
	assert.Panics(t, func() {
		_ = RunInTransaction(context.Background(), tm, Serializable,
			func(context.Context) error { panic("boom") })
	})
	assert.Equal(t, []string{"begin SERIALIZABLE", "rollback"}, tm.calls)
}

func TestIsolationLevels(t *testing.T) {
	var lvl, err = ReadCommitted.SQLLevel()
	assert.NoError(t, err)
	assert.Equal(t, sql.LevelReadCommitted, lvl)

	_, err = Isolation(0).SQLLevel()
	assert.True(t, IsInvalidArgument(err))
}

type txnKey struct{}

type recordingTxnManager struct {
	calls       []string
	rollbackErr error
}

func (m *recordingTxnManager) BeginTransaction(ctx context.Context, level Isolation) (context.Context, error) {
	m.calls = append(m.calls, "begin "+level.String())
	return context.WithValue(ctx, txnKey{}, "txn"), nil
}

func (m *recordingTxnManager) CommitTransaction(context.Context) error {
	m.calls = append(m.calls, "commit")
	return nil
}

func (m *recordingTxnManager) RollbackTransaction(context.Context) error {
	m.calls = append(m.calls, "rollback")
	return m.rollbackErr
}
