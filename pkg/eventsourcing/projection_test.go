package eventsourcing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmcts/cpp-context-notification/pkg/domain"
	"github.com/hmcts/cpp-context-notification/pkg/eventsourcing"
	"github.com/hmcts/cpp-context-notification/pkg/messaging"
	"github.com/hmcts/cpp-context-notification/pkg/store/sqlite"
)

type countingProjection struct {
	handled []string
	resets  int
}

func (p *countingProjection) Name() string { return "counting" }

func (p *countingProjection) Handle(ctx context.Context, event *domain.EventEnvelope) error {
	p.handled = append(p.handled, event.ID)
	return nil
}

func (p *countingProjection) Reset(ctx context.Context) error {
	p.handled = nil
	p.resets++
	return nil
}

func storedEvent(id, aggregateID string, version int64) *domain.Event {
	return &domain.Event{
		ID:            id,
		AggregateID:   aggregateID,
		AggregateType: "subscription",
		EventType:     "notification.subscribed",
		Version:       version,
		Timestamp:     domain.Now(),
		Data:          []byte(`{}`),
	}
}

func TestProjectionManager(t *testing.T) {
	ctx := context.Background()

	eventStore, err := sqlite.NewEventStore(sqlite.WithMemoryDatabase())
	require.NoError(t, err)
	t.Cleanup(func() { eventStore.Close() })

	checkpoints := sqlite.NewCheckpointStore(eventStore.DB())
	bus := messaging.NewInMemoryEventBus()
	t.Cleanup(func() { bus.Close() })

	projection := &countingProjection{}
	manager := eventsourcing.NewProjectionManager(checkpoints, eventStore, bus)
	manager.Register(projection)

	require.NoError(t, manager.Start(ctx, projection.Name()))

	require.NoError(t, bus.Publish([]*domain.Event{storedEvent("e1", "sub-1", 1)}))
	require.NoError(t, bus.Publish([]*domain.Event{storedEvent("e2", "sub-2", 1)}))
	assert.Equal(t, []string{"e1", "e2"}, projection.handled)

	checkpoint, err := checkpoints.Load(projection.Name())
	require.NoError(t, err)
	assert.Equal(t, "e2", checkpoint.LastEventID)

	require.NoError(t, manager.Stop(projection.Name()))

	t.Run("rebuild replays the whole log from the store", func(t *testing.T) {
		require.NoError(t, eventStore.AppendEvents("sub-1", 0,
			[]*domain.Event{storedEvent("e1", "sub-1", 1)}))
		require.NoError(t, eventStore.AppendEvents("sub-2", 0,
			[]*domain.Event{storedEvent("e2", "sub-2", 1)}))

		require.NoError(t, manager.Rebuild(ctx, projection.Name()))

		assert.Equal(t, 1, projection.resets)
		assert.Equal(t, []string{"e1", "e2"}, projection.handled)

		checkpoint, err := checkpoints.Load(projection.Name())
		require.NoError(t, err)
		assert.Equal(t, "e2", checkpoint.LastEventID)
	})
}

func TestProjectionManagerUnknownProjection(t *testing.T) {
	eventStore, err := sqlite.NewEventStore(sqlite.WithMemoryDatabase())
	require.NoError(t, err)
	t.Cleanup(func() { eventStore.Close() })

	manager := eventsourcing.NewProjectionManager(
		sqlite.NewCheckpointStore(eventStore.DB()),
		eventStore,
		messaging.NewInMemoryEventBus(),
	)

	require.Error(t, manager.Start(context.Background(), "missing"))
	require.Error(t, manager.Stop("missing"))
	require.Error(t, manager.Rebuild(context.Background(), "missing"))
}
