package messaging

import "github.com/hmcts/cpp-context-notification/pkg/domain"

// EventBus defines the interface for publishing and subscribing to events.
type EventBus interface {
	// Publish publishes events to all subscribers.
	Publish(events []*domain.Event) error

	// Subscribe subscribes to events matching the filter. The handler is
	// called for each event.
	Subscribe(filter EventFilter, handler EventHandler) (Subscription, error)

	// Close closes the event bus and releases resources.
	Close() error
}

// EventFilter defines criteria for filtering events.
type EventFilter struct {
	// AggregateTypes filters by aggregate type (empty = all types).
	AggregateTypes []string

	// EventTypes filters by event type (empty = all types).
	EventTypes []string
}

// Matches reports whether an event satisfies the filter.
func (f EventFilter) Matches(event *domain.Event) bool {
	if len(f.AggregateTypes) > 0 && !contains(f.AggregateTypes, event.AggregateType) {
		return false
	}
	if len(f.EventTypes) > 0 && !contains(f.EventTypes, event.EventType) {
		return false
	}
	return true
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

// EventHandler processes an event. Returning an error nacks the event; the
// retry behaviour depends on the bus implementation.
type EventHandler func(event *domain.EventEnvelope) error

// Subscription represents an active event subscription.
type Subscription interface {
	// Unsubscribe stops receiving events and cleans up resources.
	Unsubscribe() error
}
