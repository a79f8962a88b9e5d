package outbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.registries.dev/core/catalog"
	"go.registries.dev/core/storage"
	"go.registries.dev/core/storage/memory"
)

func TestProcessEventsDispatchesInOrder(t *testing.T) {
	var ctx, store, sink = context.Background(), newTestStore(t), new(recordingSink)
	sink.externalID, sink.ready = "guid-1", true

	addEvents(t, store,
		catalog.NewEvent(catalog.MetadataCreated, 1),
		catalog.NewEvent(catalog.MetadataUpdated, 1),
		catalog.NewEvent(catalog.VersionCreated, 10),
	)
	var p, err = NewProcessor(Config{Interval: time.Second, LinkTopics: true}, store, sink)
	require.NoError(t, err)

	n, err := p.ProcessEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, []string{
		"create orders",
		"connect guid-1 orders",
		"update orders",
		"version orders 2",
	}, sink.calls)
	assert.Equal(t, map[int64]string{1: "processed", 2: "processed", 3: "processed"}, eventStates(t, store))

	// Terminal events are never selected again.
	sink.calls = nil
	n, err = p.ProcessEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, sink.calls)
}

func TestProcessEventsContinuesPastFailures(t *testing.T) {
	var ctx, store, sink = context.Background(), newTestStore(t), new(recordingSink)
	addEvents(t, store,
		catalog.NewEvent(catalog.MetadataUpdated, 1),
		catalog.NewEvent(catalog.MetadataUpdated, 404), // No such metadata.
		catalog.NewEvent(catalog.MetadataUpdated, 1),
	)
	var p, err = NewProcessor(Config{Interval: time.Second}, store, sink)
	require.NoError(t, err)

	n, err := p.ProcessEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, map[int64]string{1: "processed", 2: "failed", 3: "processed"}, eventStates(t, store))

	// A failed event is sticky, and isn't retried.
	n, err = p.ProcessEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, []string{"update orders", "update orders"}, sink.calls)
}

func TestDispatchFailures(t *testing.T) {
	var ctx, store, sink = context.Background(), newTestStore(t), new(recordingSink)
	sink.failOn = "update"
	addEvents(t, store,
		catalog.NewEvent(catalog.MetadataCreated, 1),
		catalog.NewEvent(catalog.MetadataUpdated, 1),
		catalog.NewEvent(catalog.VersionCreated, 999),
		&catalog.Event{Type: catalog.EventType(42), ProcessedID: 1},
	)
	var p, err = NewProcessor(Config{Interval: time.Second, LinkTopics: true}, store, sink)
	require.NoError(t, err)

	_, err = p.ProcessEvents(ctx)
	require.NoError(t, err)

	// Topic linking requires an external ID and a ready topic model.
	assert.Equal(t, []string{"create orders"}, sink.calls)
	assert.Equal(t, map[int64]string{
		1: "processed",
		2: "failed", // Sink failure.
		3: "failed", // Missing version.
		4: "failed", // Unknown type.
	}, eventStates(t, store))
}

func TestConfigValidation(t *testing.T) {
	var store = newTestStore(t)

	var _, err = NewProcessor(Config{}, store, LogSink{})
	assert.True(t, storage.IsInvalidArgument(err))
	_, err = NewProcessor(Config{Interval: time.Second, WarmUp: -time.Second}, store, LogSink{})
	assert.True(t, storage.IsInvalidArgument(err))
}

func TestServeUntilStopped(t *testing.T) {
	var store, sink = newTestStore(t), new(recordingSink)
	addEvents(t, store, catalog.NewEvent(catalog.MetadataUpdated, 1))

	var p, err = NewProcessor(Config{Interval: time.Millisecond}, store, sink)
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)

	p.Start(context.Background())
	require.Eventually(t, func() bool {
		return eventStates(t, store)[1] == "processed"
	}, 5*time.Second, time.Millisecond)

	// Later events are picked up by subsequent cycles.
	addEvents(t, store, catalog.NewEvent(catalog.MetadataUpdated, 1))
	require.Eventually(t, func() bool {
		return eventStates(t, store)[2] == "processed"
	}, 5*time.Second, time.Millisecond)

	p.Stop()
	p.Stop() // Idempotent.
}

func TestServeStopsDuringWarmUp(t *testing.T) {
	var ctx, cancel = context.WithCancel(context.Background())
	var p, err = NewProcessor(Config{WarmUp: time.Hour, Interval: time.Hour}, newTestStore(t), LogSink{})
	require.NoError(t, err)

	var doneCh = make(chan error)
	go func() { doneCh <- p.Serve(ctx) }()

	cancel()
	select {
	case err = <-doneCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve didn't return")
	}
}

func TestStopOfUnstartedProcessor(t *testing.T) {
	var store, sink = newTestStore(t), new(recordingSink)
	addEvents(t, store, catalog.NewEvent(catalog.MetadataUpdated, 1))

	var p, err = NewProcessor(Config{Interval: time.Millisecond}, store, sink)
	require.NoError(t, err)

	var stoppedCh = make(chan struct{})
	go func() { p.Stop(); close(stoppedCh) }()

	select {
	case <-stoppedCh:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop didn't return")
	}

	// A stopped Processor returns from Serve without running a cycle.
	assert.NoError(t, p.Serve(context.Background()))
	assert.Equal(t, "pending", eventStates(t, store)[1])
	assert.Empty(t, sink.calls)
}

func TestProcessorServesOnce(t *testing.T) {
	var p, err = NewProcessor(Config{Interval: time.Hour}, newTestStore(t), LogSink{})
	require.NoError(t, err)

	p.Start(context.Background())
	p.Start(context.Background()) // Ignored.
	assert.Equal(t, ErrAlreadyStarted, p.Serve(context.Background()))

	p.Stop()
	assert.Equal(t, ErrAlreadyStarted, p.Serve(context.Background()))
}

func TestServeSurvivesCycleErrors(t *testing.T) {
	var store = &failingStore{Store: newTestStore(t)}
	var p, err = NewProcessor(Config{Interval: time.Millisecond}, store, LogSink{})
	require.NoError(t, err)

	p.Start(context.Background())
	require.Eventually(t, func() bool { return store.searches() >= 3 }, 5*time.Second, time.Millisecond)
	p.Stop()
}

func newTestStore(t *testing.T) Store {
	var ctx, store = context.Background(), memory.NewManager(catalog.NewRegistry())

	require.NoError(t, store.Add(ctx, &catalog.SchemaMetadata{ID: 1, Name: "orders", Type: "avro"}))
	require.NoError(t, store.Add(ctx, &catalog.SchemaVersion{ID: 10, SchemaMetadataID: 1, Name: "orders", Version: 2}))
	return store
}

func addEvents(t *testing.T, store Store, events ...*catalog.Event) {
	for _, ev := range events {
		require.NoError(t, store.Add(context.Background(), ev))
	}
}

func eventStates(t *testing.T, store Store) map[int64]string {
	var out = make(map[int64]string)
	var events, err = store.List(context.Background(), catalog.EventNamespace)
	require.NoError(t, err)

	for _, s := range events {
		out[s.(*catalog.Event).ID] = s.(*catalog.Event).State()
	}
	return out
}

type recordingSink struct {
	externalID string
	ready      bool
	failOn     string
	calls      []string
}

func (s *recordingSink) record(call string, args ...interface{}) error {
	var msg = call
	for _, a := range args {
		msg += " " + toString(a)
	}
	if call == s.failOn {
		return errors.New("sink unavailable")
	}
	s.calls = append(s.calls, msg)
	return nil
}

func (s *recordingSink) CreateMeta(_ context.Context, meta *catalog.SchemaMetadata) (string, error) {
	return s.externalID, s.record("create", meta.Name)
}

func (s *recordingSink) UpdateMeta(_ context.Context, meta *catalog.SchemaMetadata) error {
	return s.record("update", meta.Name)
}

func (s *recordingSink) AddVersion(_ context.Context, name string, v *catalog.SchemaVersion) error {
	return s.record("version", name, v.Version)
}

func (s *recordingSink) ConnectToExternalTopic(_ context.Context, id string, meta *catalog.SchemaMetadata) error {
	return s.record("connect", id, meta.Name)
}

func (s *recordingSink) TopicModelReady(context.Context) bool { return s.ready }

// failingStore fails every Search.
type failingStore struct {
	Store
	mu sync.Mutex
	n  int
}

func (s *failingStore) Search(context.Context, storage.SearchQuery) ([]storage.Storable, error) {
	s.mu.Lock()
	s.n++
	s.mu.Unlock()
	return nil, errors.New("database unavailable")
}

func (s *failingStore) searches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func toString(v interface{}) string { return storage.AsString(v) }
