package storage

import (
	"sort"
	"strconv"
	"sync"
)

// Storable is a record which may be persisted by a StorageManager.
type Storable interface {
	// Namespace is the table (or collection) of the Storable.
	Namespace() string
	// Schema returns the Fields of the Storable, which are also the columns
	// of its table.
	Schema() Schema
	// PrimaryKey of the Storable, which is its identity within the Namespace.
	PrimaryKey() PrimaryKey
	// ToMap returns a map of column names to values. A nil value is omitted
	// from inserts, letting the database apply a column default.
	ToMap() map[string]interface{}
	// FromMap populates the Storable from a map of column names to values,
	// as read from a database row.
	FromMap(map[string]interface{}) error
	// Cacheable returns whether a Storable of this type may be held by a Cache.
	Cacheable() bool
}

// KeyOf returns the StorableKey of the Storable.
func KeyOf(s Storable) StorableKey {
	return StorableKey{Namespace: s.Namespace(), PrimaryKey: s.PrimaryKey()}
}

// Registry maps namespaces to factories of their Storable types. Managers
// use a Registry to materialize rows read from a namespace.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]func() Storable
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]func() Storable)}
}

// Register factories of Storable types. Each factory is invoked once to
// determine its namespace. Registering a namespace twice replaces the
// earlier factory.
func (r *Registry) Register(factories ...func() Storable) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, fn := range factories {
		r.factories[fn().Namespace()] = fn
	}
}

// New returns a new, zero-valued Storable of the namespace.
func (r *Registry) New(namespace string) (Storable, error) {
	r.mu.RLock()
	var fn, ok = r.factories[namespace]
	r.mu.RUnlock()

	if !ok {
		return nil, NewInvalidArgumentError("namespace", "no Storable is registered for namespace %q", namespace)
	}
	return fn(), nil
}

// Materialize a Storable of the namespace from a row map.
func (r *Registry) Materialize(namespace string, row map[string]interface{}) (Storable, error) {
	var s, err = r.New(namespace)
	if err != nil {
		return nil, err
	}
	if err = s.FromMap(row); err != nil {
		return nil, NewStorageError(err, "materializing %s row", namespace)
	}
	return s, nil
}

// Namespaces returns the sorted registered namespaces.
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out = make([]string, 0, len(r.factories))
	for ns := range r.factories {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// AsInt64 coerces a column value read from a driver into an int64.
// Drivers differ in representation: MySQL yields []byte for most columns,
// while SQLite and PostgreSQL yield int64.
func AsInt64(v interface{}) int64 {
	if i, ok := asInt64(v); ok {
		return i
	}
	switch vv := v.(type) {
	case bool:
		if vv {
			return 1
		}
	case []byte:
		var i, _ = strconv.ParseInt(string(vv), 10, 64)
		return i
	case string:
		var i, _ = strconv.ParseInt(vv, 10, 64)
		return i
	case float32:
		return int64(vv)
	case float64:
		return int64(vv)
	}
	return 0
}

// AsBool coerces a column value into a bool.
func AsBool(v interface{}) bool {
	switch vv := v.(type) {
	case bool:
		return vv
	case []byte:
		var b, err = strconv.ParseBool(string(vv))
		return err == nil && b
	case string:
		var b, err = strconv.ParseBool(vv)
		return err == nil && b
	}
	return AsInt64(v) != 0
}

// AsString coerces a column value into a string.
func AsString(v interface{}) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return vv
	case []byte:
		return string(vv)
	case bool:
		return strconv.FormatBool(vv)
	}
	if i, ok := asInt64(v); ok {
		return strconv.FormatInt(i, 10)
	} else if f, ok := asFloat64(v); ok {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return ""
}

// AsFloat64 coerces a column value into a float64.
func AsFloat64(v interface{}) float64 {
	if f, ok := asFloat64(v); ok {
		return f
	} else if i, ok := asInt64(v); ok {
		return float64(i)
	}
	var f, _ = strconv.ParseFloat(AsString(v), 64)
	return f
}

func asInt64(v interface{}) (int64, bool) {
	switch vv := v.(type) {
	case int:
		return int64(vv), true
	case int8:
		return int64(vv), true
	case int16:
		return int64(vv), true
	case int32:
		return int64(vv), true
	case int64:
		return vv, true
	case uint8:
		return int64(vv), true
	case uint16:
		return int64(vv), true
	case uint32:
		return int64(vv), true
	case uint64:
		return int64(vv), true
	}
	return 0, false
}

func asFloat64(v interface{}) (float64, bool) {
	switch vv := v.(type) {
	case float32:
		return float64(vv), true
	case float64:
		return vv, true
	}
	return 0, false
}
