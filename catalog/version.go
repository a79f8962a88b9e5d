package catalog

import (
	"fmt"

	"go.registries.dev/core/storage"
)

// SchemaVersionNamespace is the table of SchemaVersions.
const SchemaVersionNamespace = "schema_version_info"

// Columns of SchemaVersion which aren't shared with SchemaMetadata.
const (
	ColSchemaMetadataID = "schemaMetadataId"
	ColVersion          = "version"
	ColSchemaText       = "schemaText"
	ColFingerprint      = "fingerprint"
	ColState            = "state"
)

// SchemaVersion is a registered version of a schema's text.
type SchemaVersion struct {
	ID               int64
	SchemaMetadataID int64
	Name             string
	Description      string
	Version          int32
	SchemaText       string
	Fingerprint      string
	Timestamp        int64
	State            int8
}

var schemaVersionSchema = storage.Schema{
	{Name: ColID, Type: storage.Long},
	{Name: ColSchemaMetadataID, Type: storage.Long},
	{Name: ColName, Type: storage.String},
	{Name: ColDescription, Type: storage.String},
	{Name: ColVersion, Type: storage.Integer},
	{Name: ColSchemaText, Type: storage.String},
	{Name: ColFingerprint, Type: storage.String},
	{Name: ColTimestamp, Type: storage.Long},
	{Name: ColState, Type: storage.Byte},
}

// SchemaVersionKey returns the StorableKey of the SchemaVersion ID.
func SchemaVersionKey(id int64) storage.StorableKey {
	return storage.NewStorableKey(SchemaVersionNamespace, storage.PrimaryKeyOf(ColID, storage.Long, id))
}

func (v *SchemaVersion) Namespace() string      { return SchemaVersionNamespace }
func (v *SchemaVersion) Schema() storage.Schema { return schemaVersionSchema }
func (v *SchemaVersion) Cacheable() bool        { return true }

func (v *SchemaVersion) PrimaryKey() storage.PrimaryKey {
	return storage.PrimaryKeyOf(ColID, storage.Long, v.ID)
}

func (v *SchemaVersion) ToMap() map[string]interface{} {
	return map[string]interface{}{
		ColID:               v.ID,
		ColSchemaMetadataID: v.SchemaMetadataID,
		ColName:             v.Name,
		ColDescription:      v.Description,
		ColVersion:          v.Version,
		ColSchemaText:       v.SchemaText,
		ColFingerprint:      v.Fingerprint,
		ColTimestamp:        v.Timestamp,
		ColState:            v.State,
	}
}

func (v *SchemaVersion) FromMap(row map[string]interface{}) error {
	if row[ColID] == nil {
		return fmt.Errorf("row is missing column %q", ColID)
	}
	*v = SchemaVersion{
		ID:               storage.AsInt64(row[ColID]),
		SchemaMetadataID: storage.AsInt64(row[ColSchemaMetadataID]),
		Name:             storage.AsString(row[ColName]),
		Description:      storage.AsString(row[ColDescription]),
		Version:          int32(storage.AsInt64(row[ColVersion])),
		SchemaText:       storage.AsString(row[ColSchemaText]),
		Fingerprint:      storage.AsString(row[ColFingerprint]),
		Timestamp:        storage.AsInt64(row[ColTimestamp]),
		State:            int8(storage.AsInt64(row[ColState])),
	}
	return nil
}

func (v *SchemaVersion) String() string {
	return fmt.Sprintf("SchemaVersion{id=%d metadata=%d name=%q version=%d}", v.ID, v.SchemaMetadataID, v.Name, v.Version)
}
