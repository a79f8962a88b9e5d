package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is the declared type of a Storable field or table column.
type Type int

const (
	Boolean Type = iota + 1
	Byte
	Short
	Integer
	Long
	Float
	Double
	String
	Binary
)

var typeNames = map[Type]string{
	Boolean: "BOOLEAN",
	Byte:    "BYTE",
	Short:   "SHORT",
	Integer: "INTEGER",
	Long:    "LONG",
	Float:   "FLOAT",
	Double:  "DOUBLE",
	String:  "STRING",
	Binary:  "BINARY",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Parse the string representation of a value of this Type, as supplied by
// a QueryParam. The returned value has the canonical Go type of the Type:
// bool, int8, int16, int32, int64, float32, float64, string or []byte.
func (t Type) Parse(s string) (interface{}, error) {
	var v interface{}
	var err error

	switch t {
	case Boolean:
		v, err = strconv.ParseBool(s)
	case Byte:
		var i int64
		i, err = strconv.ParseInt(s, 10, 8)
		v = int8(i)
	case Short:
		var i int64
		i, err = strconv.ParseInt(s, 10, 16)
		v = int16(i)
	case Integer:
		var i int64
		i, err = strconv.ParseInt(s, 10, 32)
		v = int32(i)
	case Long:
		v, err = strconv.ParseInt(s, 10, 64)
	case Float:
		var f float64
		f, err = strconv.ParseFloat(s, 32)
		v = float32(f)
	case Double:
		v, err = strconv.ParseFloat(s, 64)
	case String:
		v = s
	case Binary:
		v = []byte(s)
	default:
		return nil, NewInvalidArgumentError("type", "unknown type %s", t)
	}
	if err != nil {
		return nil, NewInvalidArgumentError("value", "%q is not a valid %s", s, t)
	}
	return v, nil
}

// TypeOfColumn maps a database column type name, as reported by a driver's
// sql.ColumnType.DatabaseTypeName, to a Type. Length and precision suffixes
// (eg "VARCHAR(255)") are ignored. Unrecognized names map to String.
func TypeOfColumn(dbTypeName string) Type {
	var name = strings.ToUpper(strings.TrimSpace(dbTypeName))
	if ix := strings.IndexByte(name, '('); ix != -1 {
		name = strings.TrimSpace(name[:ix])
	}
	name = strings.TrimPrefix(name, "UNSIGNED ")
	name = strings.TrimSuffix(name, " UNSIGNED")

	switch name {
	case "BOOL", "BOOLEAN", "BIT":
		return Boolean
	case "TINYINT":
		return Byte
	case "SMALLINT", "INT2":
		return Short
	case "INT", "INTEGER", "INT4", "MEDIUMINT", "SERIAL":
		return Integer
	case "BIGINT", "INT8", "BIGSERIAL":
		return Long
	case "REAL", "FLOAT", "FLOAT4":
		return Float
	case "DOUBLE", "DOUBLE PRECISION", "FLOAT8", "NUMERIC", "DECIMAL":
		return Double
	case "BLOB", "BYTEA", "BINARY", "VARBINARY", "LONGBLOB", "MEDIUMBLOB", "TINYBLOB":
		return Binary
	default:
		return String
	}
}

// Field is a named and typed attribute of a Storable.
type Field struct {
	Name string
	Type Type
}

func (f Field) String() string { return f.Name + ":" + f.Type.String() }

// Schema is the ordered set of Fields of a Storable.
type Schema []Field

// Field returns the named Field of the Schema, and whether it was found.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Names returns the names of Schema Fields, in order.
func (s Schema) Names() []string {
	var out = make([]string, len(s))
	for i, f := range s {
		out[i] = f.Name
	}
	return out
}
