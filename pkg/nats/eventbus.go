package nats

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/hmcts/cpp-context-notification/pkg/domain"
	"github.com/hmcts/cpp-context-notification/pkg/messaging"
)

// EventBus is a NATS JetStream implementation of messaging.EventBus with
// durable, at-least-once delivery.
type EventBus struct {
	nc         *nats.Conn
	js         nats.JetStreamContext
	streamName string
	mu         sync.RWMutex
	subs       map[int]*nats.Subscription
	nextSubID  int
}

// Config holds configuration for the NATS event bus.
type Config struct {
	// URL is the NATS server URL.
	URL string

	// StreamName is the JetStream stream name for events.
	StreamName string

	// StreamSubjects are the subjects the stream captures.
	StreamSubjects []string

	// MaxAge is how long to retain events in the stream.
	MaxAge time.Duration

	// MaxBytes is the maximum bytes the stream can store.
	MaxBytes int64
}

// DefaultConfig returns sensible defaults for the notification event stream.
func DefaultConfig() Config {
	return Config{
		URL:            nats.DefaultURL,
		StreamName:     "NOTIFICATION",
		StreamSubjects: []string{"notification.events.>"},
		MaxAge:         7 * 24 * time.Hour,
		MaxBytes:       1024 * 1024 * 1024, // 1 GB
	}
}

// wireEvent is the JSON representation of an event on the wire.
type wireEvent struct {
	ID            string               `json:"id"`
	AggregateID   string               `json:"aggregateId"`
	AggregateType string               `json:"aggregateType"`
	EventType     string               `json:"eventType"`
	Version       int64                `json:"version"`
	Timestamp     time.Time            `json:"timestamp"`
	Data          json.RawMessage      `json:"data,omitempty"`
	Metadata      domain.EventMetadata `json:"metadata"`
}

// NewEventBus connects to NATS and ensures the event stream exists.
func NewEventBus(config Config) (*EventBus, error) {
	nc, err := nats.Connect(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	bus := &EventBus{
		nc:         nc,
		js:         js,
		streamName: config.StreamName,
		subs:       make(map[int]*nats.Subscription),
	}

	if err := bus.ensureStream(config); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	return bus, nil
}

func (b *EventBus) ensureStream(config Config) error {
	streamConfig := &nats.StreamConfig{
		Name:      config.StreamName,
		Subjects:  config.StreamSubjects,
		Retention: nats.LimitsPolicy,
		MaxAge:    config.MaxAge,
		MaxBytes:  config.MaxBytes,
		Storage:   nats.FileStorage,
		Replicas:  1,
	}

	stream, err := b.js.StreamInfo(config.StreamName)
	if err != nil {
		if _, err := b.js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		return nil
	}

	if stream.Config.MaxAge != config.MaxAge || stream.Config.MaxBytes != config.MaxBytes {
		if _, err := b.js.UpdateStream(streamConfig); err != nil {
			return fmt.Errorf("failed to update stream: %w", err)
		}
	}

	return nil
}

// Publish publishes events to JetStream, using the event ID as the message
// ID for server-side deduplication.
func (b *EventBus) Publish(events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, event := range events {
		payload, err := json.Marshal(wireEvent{
			ID:            event.ID,
			AggregateID:   event.AggregateID,
			AggregateType: event.AggregateType,
			EventType:     event.EventType,
			Version:       event.Version,
			Timestamp:     event.Timestamp,
			Data:          json.RawMessage(event.Data),
			Metadata:      event.Metadata,
		})
		if err != nil {
			return fmt.Errorf("failed to serialize event %s: %w", event.ID, err)
		}

		subject := fmt.Sprintf("notification.events.%s.%s", event.AggregateType, event.EventType)
		if _, err := b.js.Publish(subject, payload, nats.MsgId(event.ID)); err != nil {
			return fmt.Errorf("failed to publish event %s: %w", event.ID, err)
		}
	}

	return nil
}

// Subscribe subscribes to events matching the filter. Events are acked only
// after the handler succeeds, so failures are redelivered.
func (b *EventBus) Subscribe(filter messaging.EventFilter, handler messaging.EventHandler) (messaging.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, err := b.js.Subscribe("notification.events.>", func(msg *nats.Msg) {
		var wire wireEvent
		if err := json.Unmarshal(msg.Data, &wire); err != nil {
			// Poison message, drop it.
			msg.Term()
			return
		}

		event := domain.Event{
			ID:            wire.ID,
			AggregateID:   wire.AggregateID,
			AggregateType: wire.AggregateType,
			EventType:     wire.EventType,
			Version:       wire.Version,
			Timestamp:     wire.Timestamp,
			Data:          []byte(wire.Data),
			Metadata:      wire.Metadata,
		}

		if !filter.Matches(&event) {
			msg.Ack()
			return
		}

		envelope := &domain.EventEnvelope{Event: event}
		if meta, err := msg.Metadata(); err == nil {
			envelope.Position = int64(meta.Sequence.Stream)
		}

		if err := handler(envelope); err != nil {
			msg.Nak()
			return
		}
		msg.Ack()
	}, nats.ManualAck(), nats.DeliverAll())
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	b.nextSubID++
	id := b.nextSubID
	b.subs[id] = sub

	return &busSubscription{bus: b, id: id, sub: sub}, nil
}

// Close drains all subscriptions and closes the connection.
func (b *EventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs {
		sub.Unsubscribe()
		delete(b.subs, id)
	}
	b.nc.Close()
	return nil
}

type busSubscription struct {
	bus *EventBus
	id  int
	sub *nats.Subscription
}

func (s *busSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	delete(s.bus.subs, s.id)
	return s.sub.Unsubscribe()
}
