package storage

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// QueryParam is an untyped filter criterion, typically taken from a web
// request. QueryParams are resolved against the column metadata of a table
// before they're used in a query.
type QueryParam struct {
	Name  string
	Value string
}

func (qp QueryParam) String() string { return qp.Name + "=" + qp.Value }

// QueryParamsFromValues returns QueryParams of the url.Values, ordered by name.
// A name having multiple values contributes its first.
func QueryParamsFromValues(values url.Values) []QueryParam {
	var out = make([]QueryParam, 0, len(values))
	for name, v := range values {
		if len(v) != 0 {
			out = append(out, QueryParam{Name: name, Value: v[0]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// OrderByField orders query results by a field. It never affects identity.
type OrderByField struct {
	Name       string
	Descending bool
}

// Asc orders ascending by the named field.
func Asc(name string) OrderByField { return OrderByField{Name: name} }

// Desc orders descending by the named field.
func Desc(name string) OrderByField { return OrderByField{Name: name, Descending: true} }

func (o OrderByField) String() string {
	if o.Descending {
		return o.Name + " DESC"
	}
	return o.Name + " ASC"
}

// LockMode is the row-locking mode of a read.
type LockMode int

const (
	// NoLock is an ordinary, unlocked read.
	NoLock LockMode = iota
	// LockShared reads with a shared row lock (SELECT ... FOR SHARE).
	LockShared
	// LockExclusive reads with an exclusive row lock (SELECT ... FOR UPDATE).
	LockExclusive
)

func (m LockMode) String() string {
	switch m {
	case LockShared:
		return "FOR SHARE"
	case LockExclusive:
		return "FOR UPDATE"
	default:
		return "NONE"
	}
}

// Operator of a comparison Predicate.
type Operator string

const (
	OpEq    Operator = "="
	OpNotEq Operator = "<>"
	OpGt    Operator = ">"
	OpLt    Operator = "<"
	OpLike  Operator = "LIKE"
)

// Predicate is a node of a SearchQuery filter: either a comparison of a
// field with a value, or a conjunction / disjunction of child Predicates.
type Predicate struct {
	Field   string
	Op      Operator
	Value   interface{}
	And, Or []Predicate
}

// Eq matches rows whose field equals the value.
func Eq(field string, value interface{}) Predicate {
	return Predicate{Field: field, Op: OpEq, Value: value}
}

// NotEq matches rows whose field differs from the value.
func NotEq(field string, value interface{}) Predicate {
	return Predicate{Field: field, Op: OpNotEq, Value: value}
}

// Gt matches rows whose field is greater than the value.
func Gt(field string, value interface{}) Predicate {
	return Predicate{Field: field, Op: OpGt, Value: value}
}

// Lt matches rows whose field is less than the value.
func Lt(field string, value interface{}) Predicate {
	return Predicate{Field: field, Op: OpLt, Value: value}
}

// Like matches rows whose field contains the substring.
func Like(field, substring string) Predicate {
	return Predicate{Field: field, Op: OpLike, Value: substring}
}

// And matches rows matching all Predicates.
func And(preds ...Predicate) Predicate { return Predicate{And: preds} }

// Or matches rows matching any Predicate.
func Or(preds ...Predicate) Predicate { return Predicate{Or: preds} }

// IsZero returns whether the Predicate is empty, and matches everything.
func (p Predicate) IsZero() bool {
	return p.Field == "" && len(p.And) == 0 && len(p.Or) == 0
}

// Validate the Predicate tree.
func (p Predicate) Validate() error {
	var n int
	if p.Field != "" {
		n++
	}
	if len(p.And) != 0 {
		n++
	}
	if len(p.Or) != 0 {
		n++
	}
	if n > 1 {
		return NewInvalidArgumentError("predicate", "expected exactly one of comparison, And, or Or")
	}
	switch p.Op {
	case "", OpEq, OpNotEq, OpGt, OpLt, OpLike:
	default:
		return NewInvalidArgumentError("predicate", "unknown operator %q", p.Op)
	}
	if p.Field != "" && p.Op == "" {
		return NewInvalidArgumentError("predicate", "expected an operator for field %s", p.Field)
	}
	for _, c := range append(append([]Predicate(nil), p.And...), p.Or...) {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Matches evaluates the Predicate against a row map.
func (p Predicate) Matches(row map[string]interface{}) bool {
	switch {
	case len(p.And) != 0:
		for _, c := range p.And {
			if !c.Matches(row) {
				return false
			}
		}
		return true
	case len(p.Or) != 0:
		for _, c := range p.Or {
			if c.Matches(row) {
				return true
			}
		}
		return false
	case p.Field == "":
		return true
	}

	var v = row[p.Field]
	switch p.Op {
	case OpEq:
		return ValuesEqual(v, p.Value)
	case OpNotEq:
		return !ValuesEqual(v, p.Value)
	case OpGt:
		return v != nil && CompareValues(v, p.Value) > 0
	case OpLt:
		return v != nil && CompareValues(v, p.Value) < 0
	case OpLike:
		return strings.Contains(AsString(v), AsString(p.Value))
	}
	return false
}

func (p Predicate) String() string {
	var join = func(ps []Predicate, sep string) string {
		var parts = make([]string, len(ps))
		for i, c := range ps {
			parts[i] = c.String()
		}
		return "(" + strings.Join(parts, sep) + ")"
	}
	switch {
	case len(p.And) != 0:
		return join(p.And, " AND ")
	case len(p.Or) != 0:
		return join(p.Or, " OR ")
	case p.Field == "":
		return "TRUE"
	}
	return fmt.Sprintf("%s %s %v", p.Field, p.Op, p.Value)
}

// SearchQuery is a general filter and sort query over a namespace. Unlike
// Find, its predicates are typed by the caller and bypass QueryParam resolution.
type SearchQuery struct {
	Namespace string
	Filter    Predicate
	Order     []OrderByField
	Lock      LockMode
}

// SearchFrom begins a SearchQuery over the namespace.
func SearchFrom(namespace string) SearchQuery {
	return SearchQuery{Namespace: namespace}
}

// Where sets the filter Predicate. Multiple Predicates are joined with And.
func (q SearchQuery) Where(preds ...Predicate) SearchQuery {
	if len(preds) == 1 {
		q.Filter = preds[0]
	} else {
		q.Filter = And(preds...)
	}
	return q
}

// OrderBy appends result orderings.
func (q SearchQuery) OrderBy(fields ...OrderByField) SearchQuery {
	q.Order = append(append([]OrderByField(nil), q.Order...), fields...)
	return q
}

// ForUpdate reads with an exclusive row lock.
func (q SearchQuery) ForUpdate() SearchQuery { q.Lock = LockExclusive; return q }

// ForShare reads with a shared row lock.
func (q SearchQuery) ForShare() SearchQuery { q.Lock = LockShared; return q }

// Validate the SearchQuery.
func (q SearchQuery) Validate() error {
	if q.Namespace == "" {
		return NewInvalidArgumentError("namespace", "expected non-empty namespace")
	}
	for _, o := range q.Order {
		if o.Name == "" {
			return NewInvalidArgumentError("orderBy", "expected non-empty field name")
		}
	}
	return q.Filter.Validate()
}

func (q SearchQuery) String() string {
	return fmt.Sprintf("search(%s where %s order %v lock %s)", q.Namespace, q.Filter, q.Order, q.Lock)
}
