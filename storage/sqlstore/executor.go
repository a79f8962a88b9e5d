package sqlstore

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.registries.dev/core/storage"
)

// idColumn is the auto-increment column of a namespace, if it has one.
const idColumn = "id"

// Executor builds and runs dialect-correct SQL against a *sql.DB. Statements
// run within the transaction of the Context, if there is one.
type Executor struct {
	db       *sql.DB
	dialect  QueryDialect
	registry *storage.Registry

	columnsMu sync.Mutex
	columns   map[string]Columns // Columns of each introspected table.
}

// NewExecutor returns an Executor of the *DB and QueryDialect. The Registry
// is used to materialize selected rows into Storables.
func NewExecutor(db *sql.DB, dialect QueryDialect, registry *storage.Registry) *Executor {
	return &Executor{
		db:       db,
		dialect:  dialect,
		registry: registry,
		columns:  make(map[string]Columns),
	}
}

// Dialect of the Executor.
func (e *Executor) Dialect() QueryDialect { return e.dialect }

// Insert the Storable. A unique constraint violation is returned as an
// AlreadyExists error. If the Storable has an integer "id" column with a nil
// value, the database assigns it, and the assigned id is set on the Storable.
func (e *Executor) Insert(ctx context.Context, s storage.Storable) error {
	var row = s.ToMap()
	var stmt = InsertSQL(e.dialect, s.Namespace(), s.Schema().Names(), row)
	var generated = generatesID(s, row)

	var id int64
	var err error
	if generated {
		id, err = e.insertReturningID(ctx, stmt)
	} else {
		_, err = e.exec(ctx, stmt)
	}
	if err != nil {
		if e.dialect.IsUniqueViolation(err) {
			return storage.NewAlreadyExistsError(storage.KeyOf(s), err)
		}
		return storage.NewStorageError(err, "inserting %s", storage.KeyOf(s))
	}

	if generated {
		row[idColumn] = id
		if err = s.FromMap(row); err != nil {
			return storage.NewStorageError(err, "setting generated id %d of %s", id, storage.KeyOf(s))
		}
		log.WithFields(log.Fields{"key": storage.KeyOf(s), "id": id}).Debug("assigned generated id")
	}
	return nil
}

func (e *Executor) insertReturningID(ctx context.Context, stmt Statement) (int64, error) {
	var id int64

	if clause := e.dialect.ReturningClause(idColumn); clause != "" {
		stmt.SQL += " " + clause
		log.WithFields(log.Fields{"sql": stmt.SQL, "args": stmt.Args}).Debug("exec")

		var err = e.queryer(ctx).QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(&id)
		return id, err
	}
	var res, err = e.exec(ctx, stmt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// generatesID returns whether an insert of the row leaves the Storable's
// integer "id" column to the database.
func generatesID(s storage.Storable, row map[string]interface{}) bool {
	var f, ok = s.Schema().Field(idColumn)
	return ok && row[idColumn] == nil && (f.Type == storage.Long || f.Type == storage.Integer)
}

// InsertOrUpdate upserts the Storable.
func (e *Executor) InsertOrUpdate(ctx context.Context, s storage.Storable) error {
	var stmt = UpsertSQL(e.dialect, s.Namespace(), s.Schema().Names(), s.ToMap(), s.PrimaryKey())

	if _, err := e.exec(ctx, stmt); err != nil {
		return storage.NewStorageError(err, "upserting %s", storage.KeyOf(s))
	}
	return nil
}

// Update the Storable, returning the number of affected rows.
func (e *Executor) Update(ctx context.Context, s storage.Storable) (int64, error) {
	var stmt = UpdateSQL(e.dialect, s.Namespace(), s.Schema().Names(), s.ToMap(), s.PrimaryKey())
	if stmt.SQL == "" {
		return 0, nil
	}
	var res, err = e.exec(ctx, stmt)
	if err != nil {
		return 0, storage.NewStorageError(err, "updating %s", storage.KeyOf(s))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storage.NewStorageError(err, "reading rows affected by update of %s", storage.KeyOf(s))
	}
	return n, nil
}

// Delete rows of the key.
func (e *Executor) Delete(ctx context.Context, key storage.StorableKey) error {
	if _, err := e.exec(ctx, DeleteSQL(e.dialect, key.Namespace, key.PrimaryKey)); err != nil {
		return storage.NewStorageError(err, "deleting %s", key)
	}
	return nil
}

// Select Storables of the namespace matching the PrimaryKey, or all
// Storables if the PrimaryKey is empty.
func (e *Executor) Select(ctx context.Context, namespace string, pk storage.PrimaryKey, orderBy ...storage.OrderByField) ([]storage.Storable, error) {
	var stmt, err = SelectSQL(e.dialect, namespace, pk, orderBy, storage.NoLock)
	if err != nil {
		return nil, err
	}
	return e.query(ctx, namespace, stmt)
}

// SelectForShare selects rows of the key while taking a shared row lock.
// If the dialect cannot lock rows, it fails without issuing a query.
func (e *Executor) SelectForShare(ctx context.Context, key storage.StorableKey) ([]storage.Storable, error) {
	return e.selectLocked(ctx, key, storage.LockShared)
}

// SelectForUpdate selects rows of the key while taking an exclusive row lock.
func (e *Executor) SelectForUpdate(ctx context.Context, key storage.StorableKey) ([]storage.Storable, error) {
	return e.selectLocked(ctx, key, storage.LockExclusive)
}

func (e *Executor) selectLocked(ctx context.Context, key storage.StorableKey, mode storage.LockMode) ([]storage.Storable, error) {
	var stmt, err = SelectSQL(e.dialect, key.Namespace, key.PrimaryKey, nil, mode)
	if err != nil {
		return nil, storage.NewStorageError(err, "selecting %s %s", key, mode)
	}
	return e.query(ctx, key.Namespace, stmt)
}

// Search runs the SearchQuery.
func (e *Executor) Search(ctx context.Context, q storage.SearchQuery) ([]storage.Storable, error) {
	var stmt, err = SearchSQL(e.dialect, q)
	if err != nil {
		return nil, storage.NewStorageError(err, "building %s", q)
	}
	return e.query(ctx, q.Namespace, stmt)
}

// Aggregate returns the result of an aggregate function over a column of
// the table. The result is nil if the table is empty.
func (e *Executor) Aggregate(ctx context.Context, namespace, column, fn string) (interface{}, error) {
	var stmt, err = AggregateSQL(e.dialect, namespace, column, fn)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err = e.queryer(ctx).QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(&out); err != nil {
		return nil, storage.NewStorageError(err, "querying %s(%s) of %s", fn, column, namespace)
	}
	return out, nil
}

// NextID returns the next auto-increment "id" of the namespace.
func (e *Executor) NextID(ctx context.Context, namespace string) (int64, error) {
	var query, args = e.dialect.NextIDQuery(namespace)
	if query == "" {
		var max, err = e.Aggregate(ctx, namespace, idColumn, "MAX")
		if err != nil {
			return 0, err
		}
		return storage.AsInt64(max) + 1, nil
	}

	var id sql.NullInt64
	if err := e.queryer(ctx).QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, storage.NewStorageError(err, "querying next id of %s", namespace)
	} else if !id.Valid {
		return 1, nil
	}
	return id.Int64, nil
}

// Columns returns the Columns of the table, introspecting it on first use.
func (e *Executor) Columns(ctx context.Context, namespace string) (Columns, error) {
	e.columnsMu.Lock()
	var cols, ok = e.columns[namespace]
	e.columnsMu.Unlock()

	if ok {
		return cols, nil
	}

	var stmt = ColumnsSQL(e.dialect, namespace)
	var rows, err = e.queryer(ctx).QueryContext(ctx, stmt.SQL)
	if err != nil {
		return Columns{}, storage.NewStorageError(err, "introspecting columns of %s", namespace)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return Columns{}, storage.NewStorageError(err, "reading column types of %s", namespace)
	}
	cols = newColumns(types)

	e.columnsMu.Lock()
	e.columns[namespace] = cols
	e.columnsMu.Unlock()

	log.WithFields(log.Fields{"namespace": namespace, "columns": cols}).Debug("introspected columns")
	return cols, nil
}

// Cleanup drops introspected column metadata.
func (e *Executor) Cleanup() {
	e.columnsMu.Lock()
	e.columns = make(map[string]Columns)
	e.columnsMu.Unlock()
}

func (e *Executor) exec(ctx context.Context, stmt Statement) (sql.Result, error) {
	log.WithFields(log.Fields{"sql": stmt.SQL, "args": stmt.Args}).Debug("exec")
	return e.queryer(ctx).ExecContext(ctx, stmt.SQL, stmt.Args...)
}

func (e *Executor) query(ctx context.Context, namespace string, stmt Statement) ([]storage.Storable, error) {
	log.WithFields(log.Fields{"sql": stmt.SQL, "args": stmt.Args}).Debug("query")

	var rows, err = e.queryer(ctx).QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, storage.NewStorageError(err, "querying %s", namespace)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, storage.NewStorageError(err, "reading columns of %s", namespace)
	}
	var out []storage.Storable
	var values = make([]interface{}, len(names))
	var ptrs = make([]interface{}, len(names))

	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err = rows.Scan(ptrs...); err != nil {
			return nil, storage.NewStorageError(err, "scanning row of %s", namespace)
		}
		var row = make(map[string]interface{}, len(names))
		for i, n := range names {
			row[n] = values[i]
		}
		s, err := e.registry.Materialize(namespace, row)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err = rows.Err(); err != nil {
		return nil, storage.NewStorageError(err, "iterating rows of %s", namespace)
	}
	return out, nil
}

// Columns are the names and declared Types of a table's columns.
type Columns struct {
	names []string
	types map[string]storage.Type
}

func newColumns(types []*sql.ColumnType) Columns {
	var c = Columns{types: make(map[string]storage.Type, len(types))}
	for _, ct := range types {
		c.names = append(c.names, ct.Name())
		c.types[ct.Name()] = storage.TypeOfColumn(ct.DatabaseTypeName())
	}
	return c
}

// Type returns the Type of the named column, and whether it exists.
func (c Columns) Type(name string) (storage.Type, bool) {
	var t, ok = c.types[name]
	return t, ok
}

// Names returns column names, in table order.
func (c Columns) Names() []string { return append([]string(nil), c.names...) }

func (c Columns) String() string {
	var parts = make([]string, 0, len(c.names))
	for _, n := range c.names {
		parts = append(parts, storage.Field{Name: n, Type: c.types[n]}.String())
	}
	sort.Strings(parts)
	return "[" + strings.Join(parts, " ") + "]"
}

var timeNow = time.Now
