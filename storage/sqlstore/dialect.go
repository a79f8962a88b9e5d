package sqlstore

import (
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"go.registries.dev/core/storage"
)

// QueryDialect supplies the syntax which differs between SQL engines.
// The statement builders of this package are shared, and consult a
// QueryDialect for identifier quoting, placeholders, upserts, and locking.
type QueryDialect interface {
	// Name of the dialect, as used in configuration.
	Name() string
	// DriverName is the database/sql driver name of the dialect.
	DriverName() string
	// QuoteIdentifier quotes a column name.
	QuoteIdentifier(string) string
	// QuoteTable quotes a table name.
	QuoteTable(string) string
	// Placeholder returns the bind parameter of the 1-indexed argument.
	Placeholder(n int) string
	// UpsertClause is appended to an INSERT to update |updateCols| if a row
	// conflicting on |keyCols| already exists.
	UpsertClause(keyCols, updateCols []string) string
	// LockClause is appended to a SELECT to lock selected rows in the mode.
	// It returns an ErrUnsupported error if the dialect has no such locking read.
	LockClause(storage.LockMode) (string, error)
	// ReturningClause is appended to an INSERT to return the generated value
	// of the column. An empty clause means the value is read from the
	// sql.Result's LastInsertId instead.
	ReturningClause(col string) string
	// NextIDQuery returns a query of the next auto-increment value of the
	// table, and its arguments. An empty query means the dialect has no
	// native form, and MAX(id) + 1 is used instead.
	NextIDQuery(table string) (string, []interface{})
	// IsUniqueViolation returns whether the error is a unique constraint violation.
	IsUniqueViolation(error) bool
	// SupportsIsolation returns whether transactions may request an isolation level.
	SupportsIsolation() bool
}

// DialectFor returns the QueryDialect of the name.
func DialectFor(name string) (QueryDialect, error) {
	switch strings.ToLower(name) {
	case "mysql":
		return MySQL{}, nil
	case "postgres", "postgresql":
		return Postgres{}, nil
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	default:
		return nil, storage.NewInvalidArgumentError("dialect", "unknown dialect %q", name)
	}
}

// MySQL is the QueryDialect of MySQL and MariaDB.
type MySQL struct{}

func (MySQL) Name() string       { return "mysql" }
func (MySQL) DriverName() string { return "mysql" }

func (MySQL) QuoteIdentifier(s string) string { return "`" + strings.Replace(s, "`", "``", -1) + "`" }

// QuoteTable returns the table name unquoted. Table names are fixed
// namespaces of registered Storables rather than caller input.
func (MySQL) QuoteTable(s string) string { return s }

func (MySQL) Placeholder(int) string { return "?" }

func (d MySQL) UpsertClause(keyCols, updateCols []string) string {
	if len(updateCols) == 0 {
		updateCols = keyCols
	}
	var sets = make([]string, len(updateCols))
	for i, c := range updateCols {
		sets[i] = d.QuoteIdentifier(c) + " = VALUES(" + d.QuoteIdentifier(c) + ")"
	}
	return "ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

func (MySQL) LockClause(mode storage.LockMode) (string, error) {
	switch mode {
	case storage.NoLock:
		return "", nil
	case storage.LockShared:
		return "LOCK IN SHARE MODE", nil
	case storage.LockExclusive:
		return "FOR UPDATE", nil
	}
	return "", errors.WithMessagef(storage.ErrUnsupported, "mysql lock mode %d", mode)
}

func (MySQL) ReturningClause(string) string { return "" }

func (MySQL) NextIDQuery(table string) (string, []interface{}) {
	return "SELECT AUTO_INCREMENT FROM INFORMATION_SCHEMA.TABLES " +
		"WHERE TABLE_NAME = ? AND TABLE_SCHEMA = DATABASE()", []interface{}{table}
}

func (MySQL) IsUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062 // ER_DUP_ENTRY.
}

func (MySQL) SupportsIsolation() bool { return true }

// Postgres is the QueryDialect of PostgreSQL.
type Postgres struct{}

func (Postgres) Name() string       { return "postgres" }
func (Postgres) DriverName() string { return "postgres" }

func (Postgres) QuoteIdentifier(s string) string { return pq.QuoteIdentifier(s) }
func (Postgres) QuoteTable(s string) string      { return pq.QuoteIdentifier(s) }
func (Postgres) Placeholder(n int) string        { return "$" + strconv.Itoa(n) }

func (d Postgres) UpsertClause(keyCols, updateCols []string) string {
	return onConflictClause(d.QuoteIdentifier, keyCols, updateCols)
}

func (Postgres) LockClause(mode storage.LockMode) (string, error) {
	switch mode {
	case storage.NoLock:
		return "", nil
	case storage.LockShared:
		return "FOR SHARE", nil
	case storage.LockExclusive:
		return "FOR UPDATE", nil
	}
	return "", errors.WithMessagef(storage.ErrUnsupported, "postgres lock mode %d", mode)
}

// ReturningClause is required of Postgres, as lib/pq doesn't implement LastInsertId.
func (d Postgres) ReturningClause(col string) string { return "RETURNING " + d.QuoteIdentifier(col) }

func (Postgres) NextIDQuery(table string) (string, []interface{}) {
	return "SELECT nextval(pg_get_serial_sequence($1, 'id'))", []interface{}{table}
}

func (Postgres) IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505" // unique_violation.
}

func (Postgres) SupportsIsolation() bool { return true }

// SQLite is the QueryDialect of SQLite. SQLite serializes writers at the
// database level and has no row-locking reads: LockClause fails for any
// mode other than NoLock.
type SQLite struct{}

func (SQLite) Name() string       { return "sqlite" }
func (SQLite) DriverName() string { return "sqlite3" }

func (SQLite) QuoteIdentifier(s string) string { return `"` + strings.Replace(s, `"`, `""`, -1) + `"` }
func (d SQLite) QuoteTable(s string) string    { return d.QuoteIdentifier(s) }
func (SQLite) Placeholder(int) string          { return "?" }

func (d SQLite) UpsertClause(keyCols, updateCols []string) string {
	return onConflictClause(d.QuoteIdentifier, keyCols, updateCols)
}

func (SQLite) LockClause(mode storage.LockMode) (string, error) {
	if mode == storage.NoLock {
		return "", nil
	}
	return "", errors.WithMessagef(storage.ErrUnsupported, "sqlite does not support SELECT %s", mode)
}

func (SQLite) ReturningClause(string) string { return "" }

func (SQLite) NextIDQuery(string) (string, []interface{}) { return "", nil }

func (SQLite) IsUniqueViolation(err error) bool {
	var liteErr sqlite3.Error
	return errors.As(err, &liteErr) &&
		(liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

func (SQLite) SupportsIsolation() bool { return false }

func onConflictClause(quote func(string) string, keyCols, updateCols []string) string {
	var keys = make([]string, len(keyCols))
	for i, c := range keyCols {
		keys[i] = quote(c)
	}
	var clause = "ON CONFLICT (" + strings.Join(keys, ", ") + ") DO "

	if len(updateCols) == 0 {
		return clause + "NOTHING"
	}
	var sets = make([]string, len(updateCols))
	for i, c := range updateCols {
		sets[i] = quote(c) + " = EXCLUDED." + quote(c)
	}
	return clause + "UPDATE SET " + strings.Join(sets, ", ")
}
