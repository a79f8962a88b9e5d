package outbox

import (
	"context"

	log "github.com/sirupsen/logrus"
	"go.registries.dev/core/catalog"
)

// Sink is an external metadata graph into which catalog mutations are
// replayed.
type Sink interface {
	// CreateMeta creates an entity of the SchemaMetadata, returning its
	// external ID. An empty ID means the entity was not created, and it
	// won't be linked to a topic.
	CreateMeta(context.Context, *catalog.SchemaMetadata) (externalID string, _ error)
	// UpdateMeta updates the entity of the SchemaMetadata.
	UpdateMeta(context.Context, *catalog.SchemaMetadata) error
	// AddVersion adds the SchemaVersion to the entity of the named schema.
	AddVersion(ctx context.Context, schemaName string, version *catalog.SchemaVersion) error
	// ConnectToExternalTopic links the created entity with a topic of the
	// same name.
	ConnectToExternalTopic(ctx context.Context, externalID string, meta *catalog.SchemaMetadata) error
	// TopicModelReady returns whether the Sink's topic model is initialized,
	// and ConnectToExternalTopic may be called.
	TopicModelReady(context.Context) bool
}

// LogSink is a Sink which only logs the mutations it receives.
type LogSink struct{}

var _ Sink = LogSink{}

func (LogSink) CreateMeta(_ context.Context, meta *catalog.SchemaMetadata) (string, error) {
	log.WithField("meta", meta).Info("create schema metadata")
	return "", nil
}

func (LogSink) UpdateMeta(_ context.Context, meta *catalog.SchemaMetadata) error {
	log.WithField("meta", meta).Info("update schema metadata")
	return nil
}

func (LogSink) AddVersion(_ context.Context, name string, version *catalog.SchemaVersion) error {
	log.WithFields(log.Fields{"name": name, "version": version}).Info("add schema version")
	return nil
}

func (LogSink) ConnectToExternalTopic(_ context.Context, externalID string, meta *catalog.SchemaMetadata) error {
	log.WithFields(log.Fields{"externalID": externalID, "meta": meta}).Info("connect schema with topic")
	return nil
}

func (LogSink) TopicModelReady(context.Context) bool { return false }
