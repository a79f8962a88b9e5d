package storage

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// FieldValue pairs a Field with its value.
type FieldValue struct {
	Field Field
	Value interface{}
}

// PrimaryKey is an ordered mapping of typed Fields to values which identifies
// a row within a namespace. A PrimaryKey may also name a non-unique subset of
// columns, in which case it selects every matching row.
type PrimaryKey []FieldValue

// NewPrimaryKey builds a PrimaryKey from a map of Fields to values. Fields
// are ordered by name, so that equal maps produce equal keys.
func NewPrimaryKey(m map[Field]interface{}) PrimaryKey {
	var pk = make(PrimaryKey, 0, len(m))
	for f, v := range m {
		pk = append(pk, FieldValue{Field: f, Value: v})
	}
	sort.Slice(pk, func(i, j int) bool { return pk[i].Field.Name < pk[j].Field.Name })
	return pk
}

// PrimaryKeyOf builds a single-field PrimaryKey.
func PrimaryKeyOf(name string, typ Type, value interface{}) PrimaryKey {
	return PrimaryKey{{Field: Field{Name: name, Type: typ}, Value: value}}
}

// Names returns the field names of the PrimaryKey, in order.
func (pk PrimaryKey) Names() []string {
	var out = make([]string, len(pk))
	for i, fv := range pk {
		out[i] = fv.Field.Name
	}
	return out
}

// Values returns the values of the PrimaryKey, in order.
func (pk PrimaryKey) Values() []interface{} {
	var out = make([]interface{}, len(pk))
	for i, fv := range pk {
		out[i] = fv.Value
	}
	return out
}

// Value returns the value of the named field, and whether it's present.
func (pk PrimaryKey) Value(name string) (interface{}, bool) {
	for _, fv := range pk {
		if fv.Field.Name == name {
			return fv.Value, true
		}
	}
	return nil, false
}

func (pk PrimaryKey) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, fv := range pk {
		if i != 0 {
			b.WriteByte(',')
		}
		b.WriteString(fv.Field.Name)
		b.WriteByte('=')
		b.WriteString(canonicalValue(fv.Value))
	}
	b.WriteByte('}')
	return b.String()
}

// StorableKey identifies a Storable: its namespace and PrimaryKey.
// StorableKeys are compared and hashed by their String form.
type StorableKey struct {
	Namespace  string
	PrimaryKey PrimaryKey
}

// NewStorableKey returns a StorableKey of the namespace and PrimaryKey.
func NewStorableKey(namespace string, pk PrimaryKey) StorableKey {
	return StorableKey{Namespace: namespace, PrimaryKey: pk}
}

// String returns the canonical form of the StorableKey. Numeric values of
// differing width (eg int32(1) and int64(1)) render identically.
func (k StorableKey) String() string {
	return k.Namespace + k.PrimaryKey.String()
}

// Equal returns whether the StorableKeys are the same logical key.
func (k StorableKey) Equal(other StorableKey) bool {
	return k.String() == other.String()
}

// Validate returns an error if the StorableKey is not usable for a lookup.
func (k StorableKey) Validate() error {
	if k.Namespace == "" {
		return NewInvalidArgumentError("namespace", "expected non-empty namespace")
	}
	if len(k.PrimaryKey) == 0 {
		return NewInvalidArgumentError("primaryKey", "expected non-empty primary key for %s", k.Namespace)
	}
	return nil
}

func canonicalValue(v interface{}) string {
	switch vv := v.(type) {
	case nil:
		return "<nil>"
	case []byte:
		return fmt.Sprintf("%q", vv)
	case string:
		return fmt.Sprintf("%q", vv)
	default:
		if i, ok := asInt64(v); ok {
			return fmt.Sprint(i)
		} else if f, ok := asFloat64(v); ok {
			return fmt.Sprint(f)
		}
		return fmt.Sprint(v)
	}
}

// ValuesEqual compares two field values, treating numeric values of
// differing width, booleans and their integer forms, and string / []byte
// representations, as equal.
func ValuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ab, ok := a.(bool); ok {
		return ab == AsBool(b)
	} else if bb, ok := b.(bool); ok {
		return bb == AsBool(a)
	}
	if ai, ok := asInt64(a); ok {
		bi, ok := asInt64(b)
		return ok && ai == bi
	}
	if af, ok := asFloat64(a); ok {
		bf, ok := asFloat64(b)
		return ok && af == bf
	}
	if ab, ok := a.([]byte); ok {
		if bb, ok := b.([]byte); ok {
			return bytes.Equal(ab, bb)
		} else if bs, ok := b.(string); ok {
			return string(ab) == bs
		}
		return false
	}
	if as, ok := a.(string); ok {
		if bb, ok := b.([]byte); ok {
			return as == string(bb)
		}
	}
	return a == b
}

// CompareValues orders two field values, returning -1, 0 or +1. Values of
// unlike kinds are compared by their canonical string forms.
func CompareValues(a, b interface{}) int {
	if ai, ok := asInt64(a); ok {
		if bi, ok := asInt64(b); ok {
			return cmp3(ai < bi, ai > bi)
		}
	}
	if af, ok := asFloat64(a); ok {
		if bf, ok := asFloat64(b); ok {
			return cmp3(af < bf, af > bf)
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return cmp3(!ab && bb, ab && !bb)
		}
	}
	var as, bs = AsString(a), AsString(b)
	return cmp3(as < bs, as > bs)
}

func cmp3(lt, gt bool) int {
	if lt {
		return -1
	} else if gt {
		return 1
	}
	return 0
}
