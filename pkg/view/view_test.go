package view_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/hmcts/cpp-context-notification/pkg/domain"
	"github.com/hmcts/cpp-context-notification/pkg/filter"
	"github.com/hmcts/cpp-context-notification/pkg/subscription"
	"github.com/hmcts/cpp-context-notification/pkg/view"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { db.Close() })

	return db
}

func subscriptionEvent(t *testing.T, eventType string, version int64, payload any) *domain.EventEnvelope {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	return &domain.EventEnvelope{
		Event: domain.Event{
			ID:            "event-" + eventType,
			AggregateID:   "sub-1",
			AggregateType: subscription.AggregateType,
			EventType:     eventType,
			Version:       version,
			Timestamp:     time.Now().UTC(),
			Data:          data,
		},
		Position: version,
	}
}

func TestSubscriptionProjection(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ownerFilter := filter.FieldEquals(filter.FieldUserID, "owner-1")

	newProjection := func(t *testing.T) (*view.SubscriptionProjection, *view.SubscriptionStore) {
		store, err := view.NewSubscriptionStore(openDB(t))
		require.NoError(t, err)
		return view.NewSubscriptionProjection(store), store
	}

	subscribed := func(t *testing.T) *domain.EventEnvelope {
		return subscriptionEvent(t, subscription.EventTypeSubscribed, 1, subscription.Subscribed{
			SubscriptionID: "sub-1",
			OwnerID:        "owner-1",
			Filter:         ownerFilter,
			Created:        created,
		})
	}

	t.Run("subscribed inserts a row", func(t *testing.T) {
		projection, store := newProjection(t)
		require.NoError(t, projection.Handle(ctx, subscribed(t)))

		sub, err := store.Get(ctx, "sub-1")
		require.NoError(t, err)
		assert.Equal(t, "owner-1", sub.OwnerID)
		assert.Equal(t, ownerFilter, sub.Filter)
		assert.Equal(t, created, sub.Created)
		assert.Equal(t, created, sub.Modified)
	})

	t.Run("filter-updated replaces the filter and advances modified", func(t *testing.T) {
		projection, store := newProjection(t)
		require.NoError(t, projection.Handle(ctx, subscribed(t)))

		newFilter := filter.FieldEquals(filter.FieldStreamID, "stream-1")
		modified := created.Add(time.Hour)
		require.NoError(t, projection.Handle(ctx, subscriptionEvent(t,
			subscription.EventTypeFilterUpdated, 2, subscription.FilterUpdated{
				SubscriptionID: "sub-1",
				Filter:         newFilter,
				Modified:       modified,
			})))

		sub, err := store.Get(ctx, "sub-1")
		require.NoError(t, err)
		assert.Equal(t, newFilter, sub.Filter)
		assert.Equal(t, modified, sub.Modified)
		assert.Equal(t, created, sub.Created)
	})

	t.Run("unsubscribed deletes the row", func(t *testing.T) {
		projection, store := newProjection(t)
		require.NoError(t, projection.Handle(ctx, subscribed(t)))

		require.NoError(t, projection.Handle(ctx, subscriptionEvent(t,
			subscription.EventTypeUnsubscribed, 2, subscription.Unsubscribed{
				SubscriptionID: "sub-1",
			})))

		_, err := store.Get(ctx, "sub-1")
		require.ErrorIs(t, err, view.ErrSubscriptionNotFound)
	})

	t.Run("ignores other aggregate types", func(t *testing.T) {
		projection, _ := newProjection(t)
		require.NoError(t, projection.Handle(ctx, &domain.EventEnvelope{
			Event: domain.Event{AggregateType: "payment", EventType: "payment.settled"},
		}))
	})
}

func TestFindExpiredIDs(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	expiry := 8 * time.Hour

	store, err := view.NewSubscriptionStore(openDB(t))
	require.NoError(t, err)

	save := func(id string, modified time.Time) {
		require.NoError(t, store.Save(ctx, view.Subscription{
			ID:       id,
			OwnerID:  "owner-1",
			Filter:   filter.FieldEquals(filter.FieldUserID, "owner-1"),
			Created:  modified,
			Modified: modified,
		}))
	}

	// Exactly at the boundary is not expired; one second past is.
	save("at-boundary", now.Add(-expiry))
	save("just-past", now.Add(-expiry).Add(-time.Second))
	save("long-past", now.Add(-48*time.Hour))
	save("fresh", now.Add(-time.Minute))

	ids, err := store.FindExpiredIDs(ctx, now, expiry)
	require.NoError(t, err)
	assert.Equal(t, []string{"long-past", "just-past"}, ids)
}

func TestEventCacheStore(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	newStore := func(t *testing.T) *view.EventCacheStore {
		store, err := view.NewEventCacheStore(openDB(t))
		require.NoError(t, err)
		return store
	}

	cached := func(id, userID, correlationID string, created time.Time) view.CachedEvent {
		return view.CachedEvent{
			ID:                  id,
			UserID:              userID,
			ClientCorrelationID: correlationID,
			StreamID:            "stream-1",
			EventJSON:           `{"event":"` + id + `"}`,
			Created:             created,
			Name:                "public.listing.hearing-changes-saved",
		}
	}

	t.Run("query returns matches newest first", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Save(ctx, cached("e1", "user-1", "", base)))
		require.NoError(t, store.Save(ctx, cached("e2", "user-1", "", base.Add(time.Minute))))
		require.NoError(t, store.Save(ctx, cached("e3", "user-2", "", base.Add(2*time.Minute))))

		predicate, err := filter.Compile(filter.FieldEquals(filter.FieldUserID, "user-1"))
		require.NoError(t, err)

		events, err := store.QueryByFilter(ctx, predicate, "")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "e2", events[0].ID)
		assert.Equal(t, "e1", events[1].ID)
	})

	t.Run("correlation id narrows the predicate", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Save(ctx, cached("e1", "user-1", "corr-1", base)))
		require.NoError(t, store.Save(ctx, cached("e2", "user-1", "corr-2", base.Add(time.Minute))))

		predicate, err := filter.Compile(filter.FieldEquals(filter.FieldUserID, "user-1"))
		require.NoError(t, err)

		events, err := store.QueryByFilter(ctx, predicate, "corr-1")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "e1", events[0].ID)
	})

	t.Run("compound predicates match the cache columns", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Save(ctx, cached("e1", "user-1", "", base)))
		require.NoError(t, store.Save(ctx, cached("e2", "user-2", "", base.Add(time.Minute))))

		predicate, err := filter.Compile(filter.Or(
			filter.FieldEquals(filter.FieldUserID, "user-1"),
			filter.FieldEquals(filter.FieldUserID, "user-2"),
		))
		require.NoError(t, err)

		events, err := store.QueryByFilter(ctx, predicate, "")
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("duplicate ids are ignored", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Save(ctx, cached("e1", "user-1", "", base)))
		require.NoError(t, store.Save(ctx, cached("e1", "user-1", "", base.Add(time.Hour))))

		predicate, err := filter.Compile(filter.FieldEquals(filter.FieldUserID, "user-1"))
		require.NoError(t, err)

		events, err := store.QueryByFilter(ctx, predicate, "")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, base, events[0].Created)
	})

	t.Run("delete removes only rows older than the cutoff", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Save(ctx, cached("old-1", "user-1", "", base.Add(-2*time.Hour))))
		require.NoError(t, store.Save(ctx, cached("old-2", "user-1", "", base.Add(-90*time.Minute))))
		require.NoError(t, store.Save(ctx, cached("fresh", "user-1", "", base)))

		deleted, err := store.DeleteCreatedBefore(ctx, base.Add(-time.Hour), 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)

		predicate, err := filter.Compile(filter.FieldEquals(filter.FieldUserID, "user-1"))
		require.NoError(t, err)
		events, err := store.QueryByFilter(ctx, predicate, "")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "fresh", events[0].ID)
	})
}
