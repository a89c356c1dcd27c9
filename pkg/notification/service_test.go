package notification_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmcts/cpp-context-notification/pkg/domain"
	"github.com/hmcts/cpp-context-notification/pkg/eventsourcing"
	"github.com/hmcts/cpp-context-notification/pkg/filter"
	"github.com/hmcts/cpp-context-notification/pkg/messaging"
	"github.com/hmcts/cpp-context-notification/pkg/middleware"
	"github.com/hmcts/cpp-context-notification/pkg/notification"
	"github.com/hmcts/cpp-context-notification/pkg/store/sqlite"
	"github.com/hmcts/cpp-context-notification/pkg/subscription"
	"github.com/hmcts/cpp-context-notification/pkg/view"
)

var (
	subID   = "7f4d2f9a-9f3e-4a0b-b7c4-111111111111"
	userOne = "a1b2c3d4-0000-4000-8000-222222222222"
	userTwo = "a1b2c3d4-0000-4000-8000-333333333333"
)

type fixture struct {
	service  *notification.Service
	ingestor *notification.Ingestor
	events   *sqlite.EventStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	eventStore, err := sqlite.NewEventStore(sqlite.WithMemoryDatabase())
	require.NoError(t, err)
	t.Cleanup(func() { eventStore.Close() })

	subscriptions, err := view.NewSubscriptionStore(eventStore.DB())
	require.NoError(t, err)
	cache, err := view.NewEventCacheStore(eventStore.DB())
	require.NoError(t, err)

	projection := view.NewSubscriptionProjection(subscriptions)
	bus := messaging.NewInMemoryEventBus()
	t.Cleanup(func() { bus.Close() })

	_, err = bus.Subscribe(
		messaging.EventFilter{AggregateTypes: []string{subscription.AggregateType}},
		func(envelope *domain.EventEnvelope) error {
			return projection.Handle(context.Background(), envelope)
		},
	)
	require.NoError(t, err)

	commandBus := eventsourcing.NewCommandBusWithEventBus(bus)
	commandBus.Use(middleware.MetadataValidationMiddleware())
	commandBus.Use(middleware.ValidationMiddleware(notification.NewCommandValidator()))
	notification.NewCommandHandlers(eventStore).Register(commandBus)

	return &fixture{
		service:  notification.NewService(commandBus, subscriptions, cache),
		ingestor: notification.NewIngestor(cache, nil),
		events:   eventStore,
	}
}

func TestSubscribeUnsubscribeFindEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	base := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, f.service.Subscribe(ctx, subID, userOne,
		filter.FieldEquals(filter.FieldUserID, userOne)))

	for _, event := range []notification.PublicEvent{
		{ID: "e1", Name: "public.event", UserID: userOne, Created: base},
		{ID: "e2", Name: "public.event", UserID: userTwo, Created: base.Add(time.Minute)},
		{ID: "e3", Name: "public.event", UserID: userOne, Created: base.Add(2 * time.Minute)},
	} {
		require.NoError(t, f.ingestor.Ingest(ctx, event))
	}

	sub, err := f.service.GetSubscription(ctx, subID)
	require.NoError(t, err)
	assert.Equal(t, userOne, sub.OwnerID)

	events, err := f.service.FindEvents(ctx, subID, "")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e3", events[0].ID)
	assert.Equal(t, "e1", events[1].ID)

	require.NoError(t, f.service.Unsubscribe(ctx, subID))

	_, err = f.service.GetSubscription(ctx, subID)
	require.ErrorIs(t, err, view.ErrSubscriptionNotFound)

	events, err = f.service.FindEvents(ctx, subID, "")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSubscribeResolvesCurrentUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.service.Subscribe(ctx, subID, userOne, filter.CurrentUser()))

	sub, err := f.service.GetSubscription(ctx, subID)
	require.NoError(t, err)
	assert.Equal(t, filter.FieldEquals(filter.FieldUserID, userOne), sub.Filter)
}

func TestSubscribeReplacesFilterWhenActive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.service.Subscribe(ctx, subID, userOne,
		filter.FieldEquals(filter.FieldUserID, userOne)))
	require.NoError(t, f.service.Subscribe(ctx, subID, userOne,
		filter.FieldEquals(filter.FieldStreamID, "stream-1")))

	history, err := f.events.LoadEvents(subID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, subscription.EventTypeSubscribed, history[0].EventType)
	assert.Equal(t, subscription.EventTypeFilterUpdated, history[1].EventType)

	sub, err := f.service.GetSubscription(ctx, subID)
	require.NoError(t, err)
	assert.Equal(t, filter.FieldEquals(filter.FieldStreamID, "stream-1"), sub.Filter)
}

func TestSubscribeRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("missing filter", func(t *testing.T) {
		err := f.service.Subscribe(ctx, subID, userOne, filter.Filter{})
		require.ErrorIs(t, err, domain.ErrInvalidCommand)
	})

	t.Run("malformed filter", func(t *testing.T) {
		err := f.service.Subscribe(ctx, subID, userOne, filter.And())
		require.ErrorIs(t, err, domain.ErrInvalidCommand)
	})

	t.Run("non-uuid subscription id", func(t *testing.T) {
		err := f.service.Subscribe(ctx, "not-a-uuid", userOne,
			filter.FieldEquals(filter.FieldUserID, userOne))
		require.Error(t, err)
	})

	t.Run("current user without caller id", func(t *testing.T) {
		err := f.service.Subscribe(ctx, subID, "", filter.CurrentUser())
		require.ErrorIs(t, err, domain.ErrInvalidCommand)
	})
}

func TestUnsubscribeUnknownIsSilent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.service.Unsubscribe(context.Background(), subID))
}

func TestFindEventsMatchesCompoundFilter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	base := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, f.service.Subscribe(ctx, subID, userOne, filter.And(
		filter.FieldEquals(filter.FieldName_, "public.listing.hearing-changes-saved"),
		filter.Or(
			filter.FieldEquals(filter.FieldUserID, userOne),
			filter.FieldEquals(filter.FieldStreamID, "stream-1"),
		),
	)))

	for _, event := range []notification.PublicEvent{
		// Right name and stream, different user: matches.
		{ID: "by-stream", Name: "public.listing.hearing-changes-saved", UserID: userTwo, StreamID: "stream-1", Created: base},
		// Right name, neither user nor stream: no match.
		{ID: "neither", Name: "public.listing.hearing-changes-saved", UserID: userTwo, StreamID: "stream-2", Created: base.Add(time.Minute)},
		// Right user, wrong name: no match.
		{ID: "wrong-name", Name: "public.other", UserID: userOne, StreamID: "stream-1", Created: base.Add(2 * time.Minute)},
	} {
		require.NoError(t, f.ingestor.Ingest(ctx, event))
	}

	events, err := f.service.FindEvents(ctx, subID, "")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "by-stream", events[0].ID)
}

func TestFindExpiredSubscriptionIDs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.service.Subscribe(ctx, subID, userOne,
		filter.FieldEquals(filter.FieldUserID, userOne)))

	ids, err := f.service.FindExpiredSubscriptionIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
