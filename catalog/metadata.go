package catalog

import (
	"fmt"

	"go.registries.dev/core/storage"
)

// SchemaMetadataNamespace is the table of SchemaMetadata.
const SchemaMetadataNamespace = "schema_metadata_info"

// Columns of SchemaMetadata.
const (
	ColID              = "id"
	ColType            = "type"
	ColSchemaGroup     = "schemaGroup"
	ColName            = "name"
	ColDescription     = "description"
	ColCompatibility   = "compatibility"
	ColValidationLevel = "validationLevel"
	ColEvolve          = "evolve"
	ColTimestamp       = "timestamp"
)

// SchemaMetadata describes a named schema, independent of its versions.
// It's identified by Name, and also carries a unique auto-increment ID.
type SchemaMetadata struct {
	ID              int64
	Type            string
	SchemaGroup     string
	Name            string
	Description     string
	Compatibility   string
	ValidationLevel string
	Evolve          bool
	Timestamp       int64
}

var schemaMetadataSchema = storage.Schema{
	{Name: ColID, Type: storage.Long},
	{Name: ColType, Type: storage.String},
	{Name: ColSchemaGroup, Type: storage.String},
	{Name: ColName, Type: storage.String},
	{Name: ColDescription, Type: storage.String},
	{Name: ColCompatibility, Type: storage.String},
	{Name: ColValidationLevel, Type: storage.String},
	{Name: ColEvolve, Type: storage.Boolean},
	{Name: ColTimestamp, Type: storage.Long},
}

func (m *SchemaMetadata) Namespace() string      { return SchemaMetadataNamespace }
func (m *SchemaMetadata) Schema() storage.Schema { return schemaMetadataSchema }
func (m *SchemaMetadata) Cacheable() bool        { return true }

func (m *SchemaMetadata) PrimaryKey() storage.PrimaryKey {
	return storage.PrimaryKeyOf(ColName, storage.String, m.Name)
}

func (m *SchemaMetadata) ToMap() map[string]interface{} {
	var id interface{}
	if m.ID != 0 {
		id = m.ID
	}
	return map[string]interface{}{
		ColID:              id,
		ColType:            m.Type,
		ColSchemaGroup:     m.SchemaGroup,
		ColName:            m.Name,
		ColDescription:     m.Description,
		ColCompatibility:   m.Compatibility,
		ColValidationLevel: m.ValidationLevel,
		ColEvolve:          m.Evolve,
		ColTimestamp:       m.Timestamp,
	}
}

func (m *SchemaMetadata) FromMap(row map[string]interface{}) error {
	if row[ColName] == nil {
		return fmt.Errorf("row is missing column %q", ColName)
	}
	*m = SchemaMetadata{
		ID:              storage.AsInt64(row[ColID]),
		Type:            storage.AsString(row[ColType]),
		SchemaGroup:     storage.AsString(row[ColSchemaGroup]),
		Name:            storage.AsString(row[ColName]),
		Description:     storage.AsString(row[ColDescription]),
		Compatibility:   storage.AsString(row[ColCompatibility]),
		ValidationLevel: storage.AsString(row[ColValidationLevel]),
		Evolve:          storage.AsBool(row[ColEvolve]),
		Timestamp:       storage.AsInt64(row[ColTimestamp]),
	}
	return nil
}

func (m *SchemaMetadata) String() string {
	return fmt.Sprintf("SchemaMetadata{id=%d name=%q group=%q type=%q}", m.ID, m.Name, m.SchemaGroup, m.Type)
}
