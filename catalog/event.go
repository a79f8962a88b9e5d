package catalog

import (
	"fmt"

	"go.registries.dev/core/storage"
)

// EventNamespace is the outbox table of Events.
const EventNamespace = "catalog_events"

// Columns of Event.
const (
	ColProcessedID = "processedId"
	ColProcessed   = "processed"
	ColFailed      = "failed"
)

// EventType is the kind of catalog mutation an Event records.
type EventType int8

const (
	// MetadataCreated records creation of a SchemaMetadata.
	MetadataCreated EventType = 1
	// MetadataUpdated records an update of a SchemaMetadata.
	MetadataUpdated EventType = 2
	// VersionCreated records creation of a SchemaVersion.
	VersionCreated EventType = 3
)

func (t EventType) String() string {
	switch t {
	case MetadataCreated:
		return "metadata-created"
	case MetadataUpdated:
		return "metadata-updated"
	case VersionCreated:
		return "version-created"
	default:
		return fmt.Sprintf("EventType(%d)", int8(t))
	}
}

// Event is an outbox row, written in the same transaction as the catalog
// mutation it records. Its ProcessedID references the mutated SchemaMetadata
// (for metadata events) or SchemaVersion (for version events).
//
// An Event is pending while neither Processed nor Failed is set, and
// transitions to exactly one of them. Neither is ever reverted.
type Event struct {
	ID          int64
	Type        EventType
	ProcessedID int64
	Processed   bool
	Failed      bool
}

var eventSchema = storage.Schema{
	{Name: ColID, Type: storage.Long},
	{Name: ColType, Type: storage.Byte},
	{Name: ColProcessedID, Type: storage.Long},
	{Name: ColProcessed, Type: storage.Boolean},
	{Name: ColFailed, Type: storage.Boolean},
}

// NewEvent returns a pending Event of the type, referencing |processedID|.
// Its ID is assigned by the database on insert.
func NewEvent(typ EventType, processedID int64) *Event {
	return &Event{Type: typ, ProcessedID: processedID}
}

// EventKey returns the StorableKey of the Event ID.
func EventKey(id int64) storage.StorableKey {
	return storage.NewStorableKey(EventNamespace, storage.PrimaryKeyOf(ColID, storage.Long, id))
}

// PendingEvents returns a SearchQuery of pending Events in ascending ID
// order, which locks selected rows.
func PendingEvents() storage.SearchQuery {
	return storage.SearchFrom(EventNamespace).
		Where(storage.Eq(ColProcessed, false), storage.Eq(ColFailed, false)).
		OrderBy(storage.Asc(ColID)).
		ForUpdate()
}

// Pending returns whether the Event is yet to be dispatched.
func (e *Event) Pending() bool { return !e.Processed && !e.Failed }

// State is a short description of the Event's state.
func (e *Event) State() string {
	switch {
	case e.Processed:
		return "processed"
	case e.Failed:
		return "failed"
	default:
		return "pending"
	}
}

func (e *Event) Namespace() string      { return EventNamespace }
func (e *Event) Schema() storage.Schema { return eventSchema }

// Cacheable is false: Event state changes with every dispatch.
func (e *Event) Cacheable() bool { return false }

func (e *Event) PrimaryKey() storage.PrimaryKey {
	return storage.PrimaryKeyOf(ColID, storage.Long, e.ID)
}

func (e *Event) ToMap() map[string]interface{} {
	var id interface{}
	if e.ID != 0 {
		id = e.ID
	}
	return map[string]interface{}{
		ColID:          id,
		ColType:        int8(e.Type),
		ColProcessedID: e.ProcessedID,
		ColProcessed:   e.Processed,
		ColFailed:      e.Failed,
	}
}

func (e *Event) FromMap(row map[string]interface{}) error {
	if row[ColID] == nil {
		return fmt.Errorf("row is missing column %q", ColID)
	}
	*e = Event{
		ID:          storage.AsInt64(row[ColID]),
		Type:        EventType(storage.AsInt64(row[ColType])),
		ProcessedID: storage.AsInt64(row[ColProcessedID]),
		Processed:   storage.AsBool(row[ColProcessed]),
		Failed:      storage.AsBool(row[ColFailed]),
	}
	return nil
}

func (e *Event) String() string {
	return fmt.Sprintf("Event{id=%d type=%s processedId=%d state=%s}", e.ID, e.Type, e.ProcessedID, e.State())
}
