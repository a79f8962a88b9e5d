package sqlstore

import (
	"strings"

	"go.registries.dev/core/storage"
)

// Statement is a parameterized SQL statement and its bound arguments.
type Statement struct {
	SQL  string
	Args []interface{}
}

// builder accumulates SQL text and arguments, numbering placeholders
// through the QueryDialect.
type builder struct {
	d    QueryDialect
	sb   strings.Builder
	args []interface{}
}

func newBuilder(d QueryDialect) *builder { return &builder{d: d} }

func (b *builder) write(parts ...string) *builder {
	for _, p := range parts {
		b.sb.WriteString(p)
	}
	return b
}

func (b *builder) arg(v interface{}) string {
	b.args = append(b.args, v)
	return b.d.Placeholder(len(b.args))
}

func (b *builder) statement() Statement {
	return Statement{SQL: b.sb.String(), Args: b.args}
}

// where writes a WHERE clause of equality matches over the PrimaryKey.
func (b *builder) where(pk storage.PrimaryKey) {
	if len(pk) == 0 {
		return
	}
	var clauses = make([]string, len(pk))
	for i, fv := range pk {
		clauses[i] = b.d.QuoteIdentifier(fv.Field.Name) + " = " + b.arg(fv.Value)
	}
	b.write(" WHERE ", strings.Join(clauses, " AND "))
}

func (b *builder) orderBy(fields []storage.OrderByField) {
	if len(fields) == 0 {
		return
	}
	var parts = make([]string, len(fields))
	for i, f := range fields {
		if f.Descending {
			parts[i] = b.d.QuoteIdentifier(f.Name) + " DESC"
		} else {
			parts[i] = b.d.QuoteIdentifier(f.Name) + " ASC"
		}
	}
	b.write(" ORDER BY ", strings.Join(parts, ", "))
}

func (b *builder) lock(mode storage.LockMode) error {
	var clause, err = b.d.LockClause(mode)
	if err != nil {
		return err
	} else if clause != "" {
		b.write(" ", clause)
	}
	return nil
}

func (b *builder) predicate(p storage.Predicate) {
	var join = func(ps []storage.Predicate, sep string) {
		b.write("(")
		for i, c := range ps {
			if i != 0 {
				b.write(sep)
			}
			b.predicate(c)
		}
		b.write(")")
	}
	switch {
	case len(p.And) != 0:
		join(p.And, " AND ")
	case len(p.Or) != 0:
		join(p.Or, " OR ")
	case p.Op == storage.OpLike:
		b.write(b.d.QuoteIdentifier(p.Field), " LIKE ", b.arg("%"+storage.AsString(p.Value)+"%"))
	default:
		b.write(b.d.QuoteIdentifier(p.Field), " ", string(p.Op), " ", b.arg(p.Value))
	}
}

// SelectSQL returns a SELECT of rows of the table matching the PrimaryKey
// (or all rows, if empty), with optional ordering and row lock.
func SelectSQL(d QueryDialect, table string, pk storage.PrimaryKey, orderBy []storage.OrderByField, mode storage.LockMode) (Statement, error) {
	var b = newBuilder(d).write("SELECT * FROM ", d.QuoteTable(table))
	b.where(pk)
	b.orderBy(orderBy)

	if err := b.lock(mode); err != nil {
		return Statement{}, err
	}
	return b.statement(), nil
}

// SearchSQL returns a SELECT of the SearchQuery.
func SearchSQL(d QueryDialect, q storage.SearchQuery) (Statement, error) {
	if err := q.Validate(); err != nil {
		return Statement{}, err
	}
	var b = newBuilder(d).write("SELECT * FROM ", d.QuoteTable(q.Namespace))
	if !q.Filter.IsZero() {
		b.write(" WHERE ")
		b.predicate(q.Filter)
	}
	b.orderBy(q.Order)

	if err := b.lock(q.Lock); err != nil {
		return Statement{}, err
	}
	return b.statement(), nil
}

// InsertSQL returns an INSERT of the row's columns, in |columns| order.
// Columns having a nil value are omitted, so that table defaults apply.
func InsertSQL(d QueryDialect, table string, columns []string, row map[string]interface{}) Statement {
	var b = newBuilder(d)
	var names, values = insertColumns(b, columns, row)

	b.write("INSERT INTO ", d.QuoteTable(table),
		" (", strings.Join(names, ", "), ") VALUES (", strings.Join(values, ", "), ")")
	return b.statement()
}

// UpsertSQL returns an INSERT which instead updates a row conflicting on
// the PrimaryKey.
func UpsertSQL(d QueryDialect, table string, columns []string, row map[string]interface{}, pk storage.PrimaryKey) Statement {
	var b = newBuilder(d)
	var names, values = insertColumns(b, columns, row)

	var updates []string
	for _, c := range columns {
		if _, isKey := pk.Value(c); !isKey && row[c] != nil {
			updates = append(updates, c)
		}
	}
	b.write("INSERT INTO ", d.QuoteTable(table),
		" (", strings.Join(names, ", "), ") VALUES (", strings.Join(values, ", "), ") ",
		d.UpsertClause(pk.Names(), updates))
	return b.statement()
}

// UpdateSQL returns an UPDATE setting every non-key column of the row, for
// the row matching the PrimaryKey. As with InsertSQL, columns having a nil
// value are left unchanged. If no column remains to be set, the returned
// Statement is empty.
func UpdateSQL(d QueryDialect, table string, columns []string, row map[string]interface{}, pk storage.PrimaryKey) Statement {
	var b = newBuilder(d)

	var sets []string
	for _, c := range columns {
		if _, isKey := pk.Value(c); !isKey && row[c] != nil {
			sets = append(sets, d.QuoteIdentifier(c)+" = "+b.arg(row[c]))
		}
	}
	if len(sets) == 0 {
		return Statement{}
	}
	b.write("UPDATE ", d.QuoteTable(table), " SET ", strings.Join(sets, ", "))
	b.where(pk)
	return b.statement()
}

// DeleteSQL returns a DELETE of rows matching the PrimaryKey.
func DeleteSQL(d QueryDialect, table string, pk storage.PrimaryKey) Statement {
	var b = newBuilder(d).write("DELETE FROM ", d.QuoteTable(table))
	b.where(pk)
	return b.statement()
}

// AggregateSQL returns a SELECT of an aggregate function over a column,
// such as MAX or COUNT.
func AggregateSQL(d QueryDialect, table, column, fn string) (Statement, error) {
	switch fn = strings.ToUpper(fn); fn {
	case "MAX", "MIN", "COUNT", "SUM", "AVG":
	default:
		return Statement{}, storage.NewInvalidArgumentError("aggregate", "unsupported function %q", fn)
	}
	var b = newBuilder(d).write("SELECT ", fn, "(", d.QuoteIdentifier(column), ") FROM ", d.QuoteTable(table))
	return b.statement(), nil
}

// ColumnsSQL returns a SELECT which yields no rows, but describes every
// column of the table.
func ColumnsSQL(d QueryDialect, table string) Statement {
	return Statement{SQL: "SELECT * FROM " + d.QuoteTable(table) + " WHERE 1 = 0"}
}

func insertColumns(b *builder, columns []string, row map[string]interface{}) (names, values []string) {
	for _, c := range columns {
		if v := row[c]; v != nil {
			names = append(names, b.d.QuoteIdentifier(c))
			values = append(values, b.arg(v))
		}
	}
	return
}
