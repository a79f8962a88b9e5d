package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.registries.dev/core/storage"
)

func TestManagerCRUD(t *testing.T) {
	var ctx, m = context.Background(), newTestManager(t)

	var foo = &topic{ID: 1, Name: "foo", Partitions: 3, Enabled: true}
	require.NoError(t, m.Add(ctx, foo))

	var out, err = m.Get(ctx, topicKey(1))
	require.NoError(t, err)
	assert.Equal(t, foo, out)

	// A second Add of the key is a conflict.
	err = m.Add(ctx, &topic{ID: 1, Name: "other"})
	assert.True(t, storage.IsAlreadyExists(err))

	// Get of an absent key is not an error.
	out, err = m.Get(ctx, topicKey(2))
	require.NoError(t, err)
	assert.Nil(t, out)

	foo.Partitions = 6
	require.NoError(t, m.Update(ctx, foo))
	out, _ = m.Get(ctx, topicKey(1))
	assert.Equal(t, int32(6), out.(*topic).Partitions)

	// Update of an absent key affects nothing.
	require.NoError(t, m.Update(ctx, &topic{ID: 9, Name: "nine"}))
	out, _ = m.Get(ctx, topicKey(9))
	assert.Nil(t, out)

	var bar = &topic{ID: 2, Name: "bar", Partitions: 1}
	require.NoError(t, m.AddOrUpdate(ctx, bar))
	bar.Enabled = true
	require.NoError(t, m.AddOrUpdate(ctx, bar))

	list, err := m.List(ctx, "topic")
	require.NoError(t, err)
	assert.Equal(t, []storage.Storable{foo, bar}, list)

	// Remove returns the value which was removed.
	out, err = m.Remove(ctx, topicKey(2))
	require.NoError(t, err)
	assert.Equal(t, bar, out)

	out, err = m.Remove(ctx, topicKey(2))
	require.NoError(t, err)
	assert.Nil(t, out)

	_, err = m.Remove(ctx, storage.StorableKey{Namespace: "topic"})
	assert.True(t, storage.IsInvalidArgument(err))
}

func TestManagerFind(t *testing.T) {
	var ctx, m = context.Background(), newTestManager(t)
	for i := 1; i <= 3; i++ {
		require.NoError(t, m.Add(ctx, &topic{ID: int64(i), Name: fmt.Sprintf("t%d", i), Partitions: int32(i % 2)}))
	}

	var out, err = m.Find(ctx, "topic", []storage.QueryParam{{Name: "name", Value: "t2"}})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, topicIDs(out))

	out, err = m.Find(ctx, "topic", []storage.QueryParam{{Name: "partitions", Value: "1"}}, storage.Desc("id"))
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1}, topicIDs(out))

	// Params naming no column are dropped. With none left, the namespace is listed.
	out, err = m.Find(ctx, "topic", []storage.QueryParam{{Name: "bogus", Value: "1"}})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, topicIDs(out))

	out, err = m.Find(ctx, "topic", nil, storage.Desc("id"))
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2, 1}, topicIDs(out))

	// A value not parsing as its column type is an InvalidArgument.
	_, err = m.Find(ctx, "topic", []storage.QueryParam{{Name: "partitions", Value: "many"}})
	assert.True(t, storage.IsInvalidArgument(err))

	out, err = m.Search(ctx, storage.SearchFrom("topic").
		Where(storage.Or(storage.Gt("id", 2), storage.Like("name", "1"))).
		OrderBy(storage.Asc("id")))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, topicIDs(out))

	cols, err := m.Executor().Columns(ctx, "topic")
	require.NoError(t, err)
	var typ, ok = cols.Type("partitions")
	assert.True(t, ok)
	assert.Equal(t, storage.Integer, typ)
	assert.Equal(t, []string{"id", "name", "partitions", "enabled"}, cols.Names())
}

func TestManagerAddAssignsGeneratedID(t *testing.T) {
	var ctx, m = context.Background(), newTestManager(t)

	var foo, bar = &topic{Name: "foo", Partitions: 2}, &topic{Name: "bar"}
	require.NoError(t, m.Add(ctx, foo))
	require.NoError(t, m.Add(ctx, bar))
	assert.Equal(t, int64(1), foo.ID)
	assert.Equal(t, int64(2), bar.ID)

	var out, err = m.Get(ctx, topicKey(1))
	require.NoError(t, err)
	assert.Equal(t, foo, out)

	// A failed insert leaves the Storable unchanged.
	var dup = &topic{Name: "foo"}
	assert.True(t, storage.IsAlreadyExists(m.Add(ctx, dup)))
	assert.Equal(t, int64(0), dup.ID)

	// Within a transaction, the ID is read from the transaction's connection.
	require.NoError(t, storage.RunInTransaction(ctx, m, storage.Serializable,
		func(txCtx context.Context) error {
			var baz = &topic{Name: "baz"}
			require.NoError(t, m.Add(txCtx, baz))
			assert.Equal(t, int64(3), baz.ID)
			return nil
		}))
}

func TestManagerNextID(t *testing.T) {
	var ctx, m = context.Background(), newTestManager(t)

	var id, err = m.NextID(ctx, "topic")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	require.NoError(t, m.Add(ctx, &topic{ID: 7, Name: "seven"}))
	id, err = m.NextID(ctx, "topic")
	require.NoError(t, err)
	assert.Equal(t, int64(8), id)

	count, err := m.Executor().Aggregate(ctx, "topic", "id", "count")
	require.NoError(t, err)
	assert.Equal(t, int64(1), storage.AsInt64(count))
}

func TestManagerTransactions(t *testing.T) {
	var ctx, m = context.Background(), newTestManager(t)

	txCtx, err := m.BeginTransaction(ctx, storage.ReadCommitted)
	require.NoError(t, err)
	require.NoError(t, m.Add(txCtx, &topic{ID: 1, Name: "foo"}))

	out, err := m.Get(txCtx, topicKey(1))
	require.NoError(t, err)
	assert.NotNil(t, out)

	// Transactions don't nest.
	_, err = m.BeginTransaction(txCtx, storage.ReadCommitted)
	assert.True(t, storage.IsInvalidArgument(err))

	require.NoError(t, m.RollbackTransaction(txCtx))
	out, err = m.Get(ctx, topicKey(1))
	require.NoError(t, err)
	assert.Nil(t, out)

	require.NoError(t, storage.RunInTransaction(ctx, m, storage.Serializable,
		func(txCtx context.Context) error { return m.Add(txCtx, &topic{ID: 2, Name: "bar"}) }))
	out, _ = m.Get(ctx, topicKey(2))
	assert.NotNil(t, out)

	var fnErr = errors.New("whoops")
	assert.Equal(t, fnErr, storage.RunInTransaction(ctx, m, storage.Serializable,
		func(txCtx context.Context) error {
			require.NoError(t, m.Add(txCtx, &topic{ID: 3, Name: "baz"}))
			return fnErr
		}))
	out, _ = m.Get(ctx, topicKey(3))
	assert.Nil(t, out)

	// Commit and rollback require a transaction.
	assert.True(t, storage.IsInvalidArgument(m.CommitTransaction(ctx)))
	assert.True(t, storage.IsInvalidArgument(m.RollbackTransaction(ctx)))
}

func TestManagerLocks(t *testing.T) {
	var ctx, m = context.Background(), newTestManager(t)
	require.NoError(t, m.Add(ctx, &topic{ID: 1, Name: "foo"}))

	var ok, err = m.WriteLock(ctx, topicKey(1), -time.Second)
	assert.False(t, ok)
	assert.True(t, storage.IsInvalidArgument(err))

	ok, err = m.ReadLock(ctx, storage.StorableKey{Namespace: "topic"}, time.Second)
	assert.False(t, ok)
	assert.True(t, storage.IsInvalidArgument(err))

	// SQLite has no row-locking reads, and fails without waiting.
	var start = time.Now()
	ok, err = m.WriteLock(ctx, topicKey(1), time.Minute)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, storage.ErrUnsupported))
	assert.True(t, time.Since(start) < time.Second)
}

func TestPollLockObtainsAndTimesOut(t *testing.T) {
	var m = &Manager{LockPollInterval: time.Millisecond}
	var ctx = context.Background()

	// A read which finds the row on its third attempt.
	var attempts int
	var read = func(context.Context, storage.StorableKey) ([]storage.Storable, error) {
		if attempts++; attempts == 3 {
			return []storage.Storable{&topic{ID: 1}}, nil
		}
		return nil, nil
	}
	var ok, err = m.pollLock(ctx, topicKey(1), storage.LockExclusive, time.Minute, read)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, attempts)

	// A zero timeout makes exactly one attempt.
	attempts = -10
	ok, err = m.pollLock(ctx, topicKey(1), storage.LockShared, 0, read)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, -9, attempts)

	// Context cancellation aborts the wait.
	cancelCtx, cancel := context.WithCancel(ctx)
	cancel()
	attempts = -10
	ok, err = m.pollLock(cancelCtx, topicKey(1), storage.LockShared, time.Minute, read)
	assert.False(t, ok)
	assert.True(t, storage.IsStorageFailure(err))
}

func TestPollLockTimeoutIsBoundedByPollInterval(t *testing.T) {
	var m = &Manager{LockPollInterval: time.Millisecond}
	var attempts int
	var read = func(context.Context, storage.StorableKey) ([]storage.Storable, error) {
		attempts++
		return nil, nil
	}

	var start = time.Now()
	var ok, err = m.pollLock(context.Background(), topicKey(1), storage.LockExclusive, 5*time.Millisecond, read)
	var elapsed = time.Since(start)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, attempts > 1)
	// The wait lasts at least the timeout, and overruns it by no more than
	// about one poll interval (with slack for the scheduler).
	assert.True(t, elapsed >= 5*time.Millisecond, "elapsed %s", elapsed)
	assert.True(t, elapsed < 50*time.Millisecond, "elapsed %s", elapsed)
}

func newTestManager(t *testing.T) *Manager {
	var db, err = sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db")+"?_busy_timeout=5000")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE "topic" (
		"id" INTEGER PRIMARY KEY,
		"name" TEXT NOT NULL UNIQUE,
		"partitions" INTEGER,
		"enabled" BOOLEAN
	)`)
	require.NoError(t, err)

	var registry = storage.NewRegistry()
	registry.Register(func() storage.Storable { return new(topic) })

	return NewManager(NewExecutor(db, SQLite{}, registry))
}

type topic struct {
	ID         int64
	Name       string
	Partitions int32
	Enabled    bool
}

var topicSchema = storage.Schema{
	{Name: "id", Type: storage.Long},
	{Name: "name", Type: storage.String},
	{Name: "partitions", Type: storage.Integer},
	{Name: "enabled", Type: storage.Boolean},
}

func topicKey(id int64) storage.StorableKey {
	return storage.NewStorableKey("topic", storage.PrimaryKeyOf("id", storage.Long, id))
}

func topicIDs(s []storage.Storable) (out []int64) {
	for _, t := range s {
		out = append(out, t.(*topic).ID)
	}
	return
}

func (t *topic) Namespace() string      { return "topic" }
func (t *topic) Schema() storage.Schema { return topicSchema }
func (t *topic) Cacheable() bool        { return true }
func (t *topic) PrimaryKey() storage.PrimaryKey {
	return storage.PrimaryKeyOf("id", storage.Long, t.ID)
}

func (t *topic) ToMap() map[string]interface{} {
	var id interface{}
	if t.ID != 0 {
		id = t.ID
	}
	return map[string]interface{}{
		"id":         id,
		"name":       t.Name,
		"partitions": t.Partitions,
		"enabled":    t.Enabled,
	}
}

func (t *topic) FromMap(row map[string]interface{}) error {
	*t = topic{
		ID:         storage.AsInt64(row["id"]),
		Name:       storage.AsString(row["name"]),
		Partitions: int32(storage.AsInt64(row["partitions"])),
		Enabled:    storage.AsBool(row["enabled"]),
	}
	return nil
}
