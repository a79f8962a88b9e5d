// Package outbox replays catalog mutation Events, written to an outbox table
// within the transactions which made them, into an external Sink.
package outbox

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.registries.dev/core/catalog"
	"go.registries.dev/core/metrics"
	"go.registries.dev/core/storage"
)

// Config of a Processor.
type Config struct {
	// WarmUp is the delay before the first cycle.
	WarmUp time.Duration
	// Interval is the wait between cycles.
	Interval time.Duration
	// LinkTopics enables linking of created metadata entities with topics.
	LinkTopics bool
}

// Validate returns an InvalidArgument error if the Config is malformed.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return storage.NewInvalidArgumentError("interval", "expected > 0, not %s", c.Interval)
	} else if c.WarmUp < 0 {
		return storage.NewInvalidArgumentError("warmUp", "expected >= 0, not %s", c.WarmUp)
	}
	return nil
}

// ErrAlreadyStarted is returned by Serve of a Processor which was already
// started.
var ErrAlreadyStarted = errors.New("outbox processor already started")

// Store is the storage required by a Processor. Events must be selected
// with row locks held until the cycle's transaction completes.
type Store interface {
	storage.StorageManager
	storage.TransactionManager
}

// Processor dispatches pending Events to a Sink. Each cycle selects all
// pending Events in ID order under an exclusive row lock, within a single
// READ COMMITTED transaction. Each Event is marked processed or failed as
// soon as it's dispatched, and a failed Event is never retried.
//
// Only one Processor should run against a database unless the dialect
// provides row-locking reads.
type Processor struct {
	ID string

	cfg   Config
	store Store
	sink  Sink

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewProcessor returns a Processor of the Store and Sink.
func NewProcessor(cfg Config, store Store, sink Sink) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var p = &Processor{
		ID:     petname.Generate(2, "-"),
		cfg:    cfg,
		store:  store,
		sink:   sink,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	log.WithFields(log.Fields{
		"id":         p.ID,
		"interval":   cfg.Interval,
		"linkTopics": cfg.LinkTopics,
	}).Info("built outbox processor")

	return p, nil
}

// Start serving the Processor in a goroutine. Start of a Processor which
// was already started does nothing.
func (p *Processor) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		log.WithField("id", p.ID).Warn("outbox processor was already started")
		return
	}
	go p.serve(ctx)
}

// Stop the Processor and wait for Serve to return. An in-progress cycle
// completes first, but a warm-up or idle wait is interrupted. A Processor
// stopped before it's started will never serve.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	if p.started.Load() {
		<-p.doneCh
	}
}

// Serve cycles until the Context is cancelled or Stop is called. Errors of
// a cycle are logged, and don't stop the Processor. Serve may be called
// once, and returns ErrAlreadyStarted if the Processor was already started.
func (p *Processor) Serve(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	p.serve(ctx)
	return nil
}

func (p *Processor) serve(ctx context.Context) {
	defer close(p.doneCh)

	select {
	case <-p.stopCh:
		return
	default:
	}
	log.WithField("id", p.ID).Debug("starting outbox processor")

	if !p.wait(ctx, p.cfg.WarmUp) {
		return
	}
	for {
		if n, err := p.ProcessEvents(ctx); err != nil {
			log.WithFields(log.Fields{"id": p.ID, "err": err}).Error("failed to process outbox events")
			metrics.RegistryOutboxCycleErrorsTotal.Inc()
		} else if n != 0 {
			log.WithFields(log.Fields{"id": p.ID, "events": n}).Info("processed outbox events")
		}
		if !p.wait(ctx, p.cfg.Interval) {
			log.WithField("id", p.ID).Debug("stopped outbox processor")
			return
		}
	}
}

// wait for the duration, returning false if the Processor was stopped.
func (p *Processor) wait(ctx context.Context, d time.Duration) bool {
	var timer = time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-p.stopCh:
	case <-ctx.Done():
	}
	return false
}

// ProcessEvents runs a single cycle, returning the number of pending Events
// which were dispatched (successfully or not).
func (p *Processor) ProcessEvents(ctx context.Context) (n int, err error) {
	err = storage.RunInTransaction(ctx, p.store, storage.ReadCommitted, func(ctx context.Context) error {
		var events, err = p.store.Search(ctx, catalog.PendingEvents())
		if err != nil {
			return errors.WithMessage(err, "selecting pending events")
		}
		if n = len(events); n != 0 {
			metrics.RegistryOutboxBatchesTotal.Inc()
		}
		for _, s := range events {
			var ev = s.(*catalog.Event)
			if !ev.Pending() {
				continue // Not expected of the query, but sticky regardless.
			}
			p.processEvent(ctx, ev)
		}
		return nil
	})
	return n, err
}

// processEvent dispatches the Event and marks it as processed, or as failed
// if either the dispatch or the marking fails.
func (p *Processor) processEvent(ctx context.Context, ev *catalog.Event) {
	log.WithField("event", ev).Debug("processing outbox event")

	var err = p.dispatch(ctx, ev)
	if err == nil {
		ev.Processed = true
		if err = p.store.Update(ctx, ev); err != nil {
			ev.Processed = false
			err = errors.WithMessage(err, "marking event as processed")
		}
	}
	if err == nil {
		metrics.RegistryOutboxEventsTotal.WithLabelValues(ev.Type.String(), metrics.Ok).Inc()
		return
	}

	log.WithFields(log.Fields{"event": ev, "err": err}).
		Error("could not process outbox event; marking it as failed")
	metrics.RegistryOutboxEventsTotal.WithLabelValues(ev.Type.String(), metrics.Fail).Inc()

	ev.Failed = true
	if err = p.store.Update(ctx, ev); err != nil {
		log.WithFields(log.Fields{"event": ev, "err": err}).
			Error("failed to mark outbox event as failed")
	}
}

func (p *Processor) dispatch(ctx context.Context, ev *catalog.Event) error {
	switch ev.Type {
	case catalog.MetadataCreated:
		var meta, err = p.metadataByID(ctx, ev.ProcessedID)
		if err != nil {
			return err
		}
		id, err := p.sink.CreateMeta(ctx, meta)
		if err != nil {
			return errors.WithMessagef(err, "creating %s", meta)
		}
		if id != "" && p.cfg.LinkTopics && p.sink.TopicModelReady(ctx) {
			log.WithFields(log.Fields{"externalID": id, "name": meta.Name}).Debug("connecting schema with topic")
			return errors.WithMessagef(p.sink.ConnectToExternalTopic(ctx, id, meta), "connecting %s with topic", meta)
		}
		return nil

	case catalog.MetadataUpdated:
		var meta, err = p.metadataByID(ctx, ev.ProcessedID)
		if err != nil {
			return err
		}
		return errors.WithMessagef(p.sink.UpdateMeta(ctx, meta), "updating %s", meta)

	case catalog.VersionCreated:
		var s, err = p.store.Get(ctx, catalog.SchemaVersionKey(ev.ProcessedID))
		if err != nil {
			return err
		} else if s == nil {
			return storage.NewNotFoundError("schema version", ev.ProcessedID)
		}
		var version = s.(*catalog.SchemaVersion)

		meta, err := p.metadataByID(ctx, version.SchemaMetadataID)
		if err != nil {
			return errors.WithMessagef(err, "schema version %d", version.ID)
		}
		return errors.WithMessagef(p.sink.AddVersion(ctx, meta.Name, version), "adding %s", version)

	default:
		return storage.NewInvalidArgumentError("type", "unsupported event type %s", ev.Type)
	}
}

// metadataByID finds the SchemaMetadata having the ID, which isn't its key.
func (p *Processor) metadataByID(ctx context.Context, id int64) (*catalog.SchemaMetadata, error) {
	var out, err = p.store.Find(ctx, catalog.SchemaMetadataNamespace,
		[]storage.QueryParam{{Name: catalog.ColID, Value: strconv.FormatInt(id, 10)}})
	if err != nil {
		return nil, err
	} else if len(out) == 0 {
		return nil, storage.NewNotFoundError("schema metadata", id)
	} else if len(out) > 1 {
		log.WithField("id", id).Warn("no unique schema metadata of id")
	}
	return out[0].(*catalog.SchemaMetadata), nil
}
