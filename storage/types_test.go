package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeParseCases(t *testing.T) {
	var cases = []struct {
		typ    Type
		in     string
		expect interface{}
	}{
		{Boolean, "true", true},
		{Byte, "-12", int8(-12)},
		{Short, "1234", int16(1234)},
		{Integer, "123456", int32(123456)},
		{Long, "9007199254740993", int64(9007199254740993)},
		{Float, "1.5", float32(1.5)},
		{Double, "2.25", float64(2.25)},
		{String, "hello", "hello"},
		{Binary, "raw", []byte("raw")},
	}
	for _, tc := range cases {
		var v, err = tc.typ.Parse(tc.in)
		require.NoError(t, err, tc.typ.String())
		assert.Equal(t, tc.expect, v)
	}
}

func TestTypeParseMismatchIsInvalidArgument(t *testing.T) {
	for _, tc := range []struct {
		typ Type
		in  string
	}{
		{Long, "abc"},
		{Byte, "300"},
		{Boolean, "maybe"},
		{Double, "1.2.3"},
		{Type(99), "1"},
	} {
		var _, err = tc.typ.Parse(tc.in)
		assert.True(t, IsInvalidArgument(err), "%s %q: %v", tc.typ, tc.in, err)
	}
}

func TestTypeOfColumn(t *testing.T) {
	for name, expect := range map[string]Type{
		"BIGINT":        Long,
		"int8":          Long,
		"INTEGER":       Integer,
		"INT4":          Integer,
		"UNSIGNED INT":  Integer,
		"SMALLINT":      Short,
		"TINYINT":       Byte,
		"BOOLEAN":       Boolean,
		"BOOL":          Boolean,
		"VARCHAR(255)":  String,
		"TEXT":          String,
		"DECIMAL(10,2)": Double,
		"FLOAT8":        Double,
		"REAL":          Float,
		"BYTEA":         Binary,
		"BLOB":          Binary,
		"":              String,
	} {
		assert.Equal(t, expect, TypeOfColumn(name), name)
	}
}

func TestSchemaLookup(t *testing.T) {
	var s = Schema{{"id", Long}, {"name", String}}

	var f, ok = s.Field("name")
	assert.True(t, ok)
	assert.Equal(t, Field{"name", String}, f)

	_, ok = s.Field("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"id", "name"}, s.Names())
}
