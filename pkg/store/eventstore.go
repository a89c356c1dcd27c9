package store

import (
	"github.com/hmcts/cpp-context-notification/pkg/domain"
)

// EventStore defines the interface for persisting and retrieving events.
// Implementations must guarantee per-stream append ordering and durability
// before acknowledging.
type EventStore interface {
	// AppendEvents appends events to an aggregate's stream atomically.
	// Returns domain.ErrConcurrencyConflict if expectedVersion doesn't
	// match the current version of the stream.
	AppendEvents(aggregateID string, expectedVersion int64, events []*domain.Event) error

	// LoadEvents loads all events for an aggregate with version greater
	// than afterVersion, in version order.
	LoadEvents(aggregateID string, afterVersion int64) ([]*domain.Event, error)

	// LoadAllEvents loads events across all aggregates for projection
	// building, in global append order.
	LoadAllEvents(fromPosition int64, limit int) ([]*domain.EventEnvelope, error)

	// GetAggregateVersion returns the current version of an aggregate.
	// Returns 0 if the aggregate doesn't exist.
	GetAggregateVersion(aggregateID string) (int64, error)

	// Close closes the event store and releases resources.
	Close() error
}
