package catalog

import (
	"fmt"
	"strings"

	"go.registries.dev/core/storage/sqlstore"
)

// dialectText is DDL text which differs by dialect.
type dialectText struct{ mysql, postgres, sqlite string }

func (t dialectText) of(d sqlstore.QueryDialect) string {
	switch d.Name() {
	case "mysql":
		return t.mysql
	case "postgres":
		return t.postgres
	default:
		return t.sqlite
	}
}

type column struct {
	name string
	typ  dialectText
}

type table struct {
	name    string
	columns []column
	// Table constraints, each a format string over quoted columns
	// id, name, schemaMetadataId and version (in that order).
	constraints []dialectText
}

var (
	autoIDKey = column{ColID, dialectText{"BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY", "BIGSERIAL PRIMARY KEY", "INTEGER PRIMARY KEY AUTOINCREMENT"}}
	nameText  = dialectText{"VARCHAR(255) NOT NULL", "VARCHAR(255) NOT NULL", "TEXT NOT NULL"}
	textType  = dialectText{"TEXT", "TEXT", "TEXT"}
	longType  = dialectText{"BIGINT", "BIGINT", "INTEGER"}
	boolType  = dialectText{"BOOLEAN NOT NULL DEFAULT FALSE", "BOOLEAN NOT NULL DEFAULT FALSE", "BOOLEAN NOT NULL DEFAULT 0"}
	smallType = dialectText{"TINYINT NOT NULL DEFAULT 0", "SMALLINT NOT NULL DEFAULT 0", "INTEGER NOT NULL DEFAULT 0"}
)

var tables = []table{
	{
		// SchemaMetadata is keyed on name, and also has a unique auto-increment
		// id. SQLite auto-increments only an INTEGER PRIMARY KEY, so there the
		// roles are swapped.
		name: SchemaMetadataNamespace,
		columns: []column{
			{ColID, dialectText{"BIGINT NOT NULL AUTO_INCREMENT", "BIGSERIAL", "INTEGER PRIMARY KEY AUTOINCREMENT"}},
			{ColType, nameText},
			{ColSchemaGroup, textType},
			{ColName, nameText},
			{ColDescription, textType},
			{ColCompatibility, textType},
			{ColValidationLevel, textType},
			{ColEvolve, boolType},
			{ColTimestamp, longType},
		},
		constraints: []dialectText{
			{"PRIMARY KEY (%[2]s)", "PRIMARY KEY (%[2]s)", "UNIQUE (%[2]s)"},
			{"UNIQUE (%[1]s)", "UNIQUE (%[1]s)", ""},
		},
	},
	{
		name: SchemaVersionNamespace,
		columns: []column{
			autoIDKey,
			{ColSchemaMetadataID, longType},
			{ColName, nameText},
			{ColDescription, textType},
			{ColVersion, dialectText{"INT NOT NULL", "INTEGER NOT NULL", "INTEGER NOT NULL"}},
			{ColSchemaText, textType},
			{ColFingerprint, textType},
			{ColTimestamp, longType},
			{ColState, smallType},
		},
		constraints: []dialectText{
			{"UNIQUE (%[3]s, %[4]s)", "UNIQUE (%[3]s, %[4]s)", "UNIQUE (%[3]s, %[4]s)"},
		},
	},
	{
		name: EventNamespace,
		columns: []column{
			autoIDKey,
			{ColType, smallType},
			{ColProcessedID, longType},
			{ColProcessed, boolType},
			{ColFailed, boolType},
		},
	},
}

// DDL returns CREATE TABLE statements of the catalog's tables under the
// dialect. Statements are idempotent, and may be run against an existing
// database.
func DDL(d sqlstore.QueryDialect) []string {
	var out []string
	for _, t := range tables {
		out = append(out, t.create(d))
	}
	return out
}

func (t table) create(d sqlstore.QueryDialect) string {
	var defs []string
	for _, c := range t.columns {
		defs = append(defs, d.QuoteIdentifier(c.name)+" "+c.typ.of(d))
	}
	for _, c := range t.constraints {
		if f := c.of(d); f != "" {
			defs = append(defs, fmt.Sprintf(f,
				d.QuoteIdentifier(ColID),
				d.QuoteIdentifier(ColName),
				d.QuoteIdentifier(ColSchemaMetadataID),
				d.QuoteIdentifier(ColVersion),
			))
		}
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		d.QuoteTable(t.name), strings.Join(defs, ",\n  "))
}
