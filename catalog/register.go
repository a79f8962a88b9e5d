package catalog

import "go.registries.dev/core/storage"

// Register the catalog's Storables with the Registry.
func Register(r *storage.Registry) {
	r.Register(
		func() storage.Storable { return new(SchemaMetadata) },
		func() storage.Storable { return new(SchemaVersion) },
		func() storage.Storable { return new(Event) },
	)
}

// NewRegistry returns a Registry having the catalog's Storables.
func NewRegistry() *storage.Registry {
	var r = storage.NewRegistry()
	Register(r)
	return r
}
