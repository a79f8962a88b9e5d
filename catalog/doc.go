// Package catalog defines the Storables of the schema registry which the
// storage core persists: schema metadata, schema versions, and the outbox
// events written alongside them for replay into an external metadata graph.
package catalog
