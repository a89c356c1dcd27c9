package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Event is an immutable fact recorded against a subscription stream.
type Event struct {
	// ID is the unique identifier for this event (deterministic when
	// produced from a command context).
	ID string

	// AggregateID is the identifier of the aggregate this event belongs to.
	AggregateID string

	// AggregateType is the type name of the aggregate (e.g. "subscription").
	AggregateType string

	// EventType is the fully qualified event name
	// (e.g. "notification.subscribed").
	EventType string

	// Version is the version of the aggregate after applying this event.
	Version int64

	// Timestamp is when the event was created.
	Timestamp time.Time

	// Data is the JSON-serialized event payload.
	Data []byte

	// Metadata carries contextual information.
	Metadata EventMetadata
}

// EventMetadata contains contextual information about an event.
type EventMetadata struct {
	// CausationID is the ID of the command that caused this event.
	CausationID string

	// CorrelationID traces related events across aggregates. For events
	// ingested from the public topic this is the client correlation id.
	CorrelationID string

	// PrincipalID identifies the user or service that triggered the event.
	PrincipalID string

	// Custom allows for application-specific metadata.
	Custom map[string]string
}

// EventEnvelope pairs a stored event with its position in the global log.
type EventEnvelope struct {
	Event
	Position int64
}

// Now returns the current UTC time truncated to millisecond precision,
// matching the resolution persisted by the view and cache stores.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// DeterministicEventID derives an event ID from the command that produced
// it, so a retried command yields byte-identical events.
func DeterministicEventID(commandID, aggregateID string, sequence int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s:%s:%d", commandID, aggregateID, sequence)
	return hex.EncodeToString(h.Sum(nil))[:32]
}
