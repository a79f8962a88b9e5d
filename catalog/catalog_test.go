package catalog

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.registries.dev/core/storage"
	"go.registries.dev/core/storage/sqlstore"
)

func TestRegistryMaterializesCatalog(t *testing.T) {
	var r = NewRegistry()
	assert.Equal(t, []string{EventNamespace, SchemaMetadataNamespace, SchemaVersionNamespace}, r.Namespaces())

	var s, err = r.Materialize(EventNamespace, map[string]interface{}{
		ColID: int64(7), ColType: int64(3), ColProcessedID: int64(10), ColProcessed: int64(0), ColFailed: true,
	})
	require.NoError(t, err)
	assert.Equal(t, &Event{ID: 7, Type: VersionCreated, ProcessedID: 10, Failed: true}, s)
	assert.Equal(t, "failed", s.(*Event).State())
	assert.False(t, s.Cacheable())

	_, err = r.Materialize(SchemaVersionNamespace, map[string]interface{}{ColName: "x"})
	assert.Error(t, err)
}

func TestStorableKeys(t *testing.T) {
	var meta = &SchemaMetadata{ID: 3, Name: "orders"}
	assert.Equal(t, `schema_metadata_info{name="orders"}`, storage.KeyOf(meta).String())
	assert.Equal(t, int64(3), meta.ToMap()[ColID])
	assert.True(t, meta.Cacheable())

	assert.True(t, SchemaVersionKey(5).Equal(storage.KeyOf(&SchemaVersion{ID: 5})))
	assert.True(t, EventKey(2).Equal(storage.KeyOf(&Event{ID: 2})))

	// New rows leave ID assignment to the database.
	assert.Nil(t, (&SchemaMetadata{Name: "x"}).ToMap()[ColID])
	assert.Nil(t, NewEvent(MetadataCreated, 1).ToMap()[ColID])
	assert.Equal(t, "metadata-updated", MetadataUpdated.String())
	assert.Equal(t, "EventType(9)", EventType(9).String())
}

func TestPendingEventsQuery(t *testing.T) {
	var stmt, err = sqlstore.SearchSQL(sqlstore.MySQL{}, PendingEvents())
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM catalog_events WHERE (`processed` = ? AND `failed` = ?) ORDER BY `id` ASC FOR UPDATE", stmt.SQL)
	assert.Equal(t, []interface{}{false, false}, stmt.Args)
}

func TestDDL(t *testing.T) {
	var mysql = strings.Join(DDL(sqlstore.MySQL{}), ";\n")
	assert.Contains(t, mysql, "CREATE TABLE IF NOT EXISTS catalog_events (")
	assert.Contains(t, mysql, "`id` BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY")
	assert.Contains(t, mysql, "PRIMARY KEY (`name`)")
	assert.Contains(t, mysql, "UNIQUE (`id`)")

	var pg = strings.Join(DDL(sqlstore.Postgres{}), ";\n")
	assert.Contains(t, pg, `CREATE TABLE IF NOT EXISTS "schema_version_info" (`)
	assert.Contains(t, pg, `UNIQUE ("schemaMetadataId", "version")`)
	assert.Contains(t, pg, `"processed" BOOLEAN NOT NULL DEFAULT FALSE`)

	var lite = strings.Join(DDL(sqlstore.SQLite{}), ";\n")
	assert.Contains(t, lite, `UNIQUE ("name")`)
	assert.NotContains(t, lite, `UNIQUE ("id")`)
}

func TestCatalogOnSQLite(t *testing.T) {
	var ctx = context.Background()
	var db, err = sql.Open("sqlite3", filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer db.Close()

	for _, stmt := range DDL(sqlstore.SQLite{}) {
		_, err = db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	var m = sqlstore.NewManager(sqlstore.NewExecutor(db, sqlstore.SQLite{}, NewRegistry()))

	var meta = &SchemaMetadata{Type: "avro", SchemaGroup: "kafka", Name: "orders", Evolve: true, Timestamp: 1234}
	require.NoError(t, m.Add(ctx, meta))
	assert.Equal(t, int64(1), meta.ID)
	assert.True(t, storage.IsAlreadyExists(m.Add(ctx, &SchemaMetadata{Type: "avro", Name: "orders"})))

	// Metadata is keyed on name, and found by its assigned ID.
	out, err := m.Find(ctx, SchemaMetadataNamespace, []storage.QueryParam{{Name: ColID, Value: "1"}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, meta, out[0])

	var version = &SchemaVersion{ID: 1, SchemaMetadataID: 1, Name: "orders", Version: 1, SchemaText: "{}"}
	require.NoError(t, m.Add(ctx, version))
	assert.True(t, storage.IsAlreadyExists(m.Add(ctx, &SchemaVersion{ID: 2, SchemaMetadataID: 1, Version: 1})))

	for _, ev := range []*Event{NewEvent(MetadataCreated, 1), NewEvent(VersionCreated, 1)} {
		require.NoError(t, m.Add(ctx, ev))
	}
	var ev = &Event{ID: 1, Type: MetadataCreated, ProcessedID: 1, Processed: true}
	require.NoError(t, m.Update(ctx, ev))

	pending, err := m.Search(ctx, storage.SearchFrom(EventNamespace).
		Where(storage.Eq(ColProcessed, false), storage.Eq(ColFailed, false)).
		OrderBy(storage.Asc(ColID)))
	require.NoError(t, err)
	assert.Equal(t, []storage.Storable{&Event{ID: 2, Type: VersionCreated, ProcessedID: 1}}, pending)

	// SQLite cannot lock selected rows.
	_, err = m.Search(ctx, PendingEvents())
	assert.True(t, errors.Is(err, storage.ErrUnsupported))
}
