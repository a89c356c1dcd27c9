package nats_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmcts/cpp-context-notification/pkg/domain"
	"github.com/hmcts/cpp-context-notification/pkg/messaging"
	natsbus "github.com/hmcts/cpp-context-notification/pkg/nats"
)

func newBus(t *testing.T) *natsbus.EventBus {
	t.Helper()

	server, err := natsbus.StartEmbeddedServer(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(server.Shutdown)

	cfg := natsbus.DefaultConfig()
	cfg.URL = server.URL()
	bus, err := natsbus.NewEventBus(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { bus.Close() })

	return bus
}

func subscriptionEvent(id string) *domain.Event {
	return &domain.Event{
		ID:            id,
		AggregateID:   "sub-1",
		AggregateType: "subscription",
		EventType:     "notification.subscribed",
		Version:       1,
		Timestamp:     domain.Now(),
		Data:          []byte(`{"subscriptionId":"sub-1"}`),
		Metadata:      domain.EventMetadata{PrincipalID: "user-1"},
	}
}

func TestPublishAndSubscribe(t *testing.T) {
	bus := newBus(t)

	received := make(chan *domain.EventEnvelope, 1)
	sub, err := bus.Subscribe(
		messaging.EventFilter{AggregateTypes: []string{"subscription"}},
		func(envelope *domain.EventEnvelope) error {
			received <- envelope
			return nil
		},
	)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, bus.Publish([]*domain.Event{subscriptionEvent("event-1")}))

	select {
	case envelope := <-received:
		assert.Equal(t, "event-1", envelope.ID)
		assert.Equal(t, "sub-1", envelope.AggregateID)
		assert.Equal(t, "user-1", envelope.Metadata.PrincipalID)
		assert.JSONEq(t, `{"subscriptionId":"sub-1"}`, string(envelope.Data))
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestDuplicatePublishIsDeduplicated(t *testing.T) {
	bus := newBus(t)

	received := make(chan *domain.EventEnvelope, 10)
	sub, err := bus.Subscribe(messaging.EventFilter{}, func(envelope *domain.EventEnvelope) error {
		received <- envelope
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	event := subscriptionEvent("event-dup")
	require.NoError(t, bus.Publish([]*domain.Event{event}))
	require.NoError(t, bus.Publish([]*domain.Event{event}))

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case envelope := <-received:
		t.Fatalf("duplicate event delivered: %s", envelope.ID)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestFilterSkipsNonMatchingEvents(t *testing.T) {
	bus := newBus(t)

	received := make(chan *domain.EventEnvelope, 10)
	sub, err := bus.Subscribe(
		messaging.EventFilter{EventTypes: []string{"notification.unsubscribed"}},
		func(envelope *domain.EventEnvelope) error {
			received <- envelope
			return nil
		},
	)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, bus.Publish([]*domain.Event{subscriptionEvent("event-filtered")}))

	select {
	case envelope := <-received:
		t.Fatalf("filtered event delivered: %s", envelope.ID)
	case <-time.After(500 * time.Millisecond):
	}
}
