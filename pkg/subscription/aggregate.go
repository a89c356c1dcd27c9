// Package subscription implements the event-sourced subscription aggregate
// as a pure reducer: an immutable State snapshot rebuilt by folding the
// event stream, plus command functions that map state and input to zero or
// one emitted events.
package subscription

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hmcts/cpp-context-notification/pkg/domain"
	"github.com/hmcts/cpp-context-notification/pkg/filter"
	"github.com/hmcts/cpp-context-notification/pkg/idgen"
)

// State is an immutable snapshot of a subscription aggregate.
// The zero value is the absent state.
type State struct {
	ID        string
	OwnerID   string
	Version   int64
	exists    bool
	cancelled bool
}

// Exists reports whether the subscription has been created and not
// cancelled.
func (s State) Exists() bool {
	return s.exists
}

// Cancelled reports whether the subscription has been cancelled.
// Cancellation is terminal.
func (s State) Cancelled() bool {
	return s.cancelled
}

// Replay folds a stream of events into a State snapshot.
func Replay(events []*domain.Event) (State, error) {
	state := State{}
	for _, event := range events {
		next, err := state.Apply(event)
		if err != nil {
			return State{}, err
		}
		state = next
	}
	return state, nil
}

// Apply is the single state-transition function. Subscribed marks the
// aggregate active, Unsubscribed marks it cancelled, and FilterUpdated only
// advances the version: the filter content is consumed by the view
// projector, not by the aggregate's control state.
func (s State) Apply(event *domain.Event) (State, error) {
	switch event.EventType {
	case EventTypeSubscribed:
		var payload Subscribed
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return State{}, fmt.Errorf("failed to unmarshal subscribed event: %w", err)
		}
		s.ID = payload.SubscriptionID
		s.OwnerID = payload.OwnerID
		s.exists = true

	case EventTypeUnsubscribed:
		s.exists = false
		s.cancelled = true

	case EventTypeFilterUpdated:
		// Informational for the aggregate; only the version advances.

	default:
		return State{}, fmt.Errorf("unknown event type %q", event.EventType)
	}

	s.Version = event.Version
	return s, nil
}

// Create emits a Subscribed event when the subscription does not yet
// exist. From any other state it is a silent no-op: duplicate delivery of
// a subscribe command must not corrupt state and must not fail.
func (s State) Create(now time.Time, f filter.Filter, ownerID, subscriptionID string, metadata domain.EventMetadata) ([]*domain.Event, error) {
	if s.exists || s.cancelled {
		return nil, nil
	}

	return s.emit(EventTypeSubscribed, subscriptionID, now, metadata, Subscribed{
		SubscriptionID: subscriptionID,
		OwnerID:        ownerID,
		Filter:         f,
		Created:        now,
	})
}

// UpdateFilter emits a FilterUpdated event when the subscription is
// active. No-op from absent or cancelled.
func (s State) UpdateFilter(f filter.Filter, now time.Time, metadata domain.EventMetadata) ([]*domain.Event, error) {
	if !s.exists || s.cancelled {
		return nil, nil
	}

	return s.emit(EventTypeFilterUpdated, s.ID, now, metadata, FilterUpdated{
		SubscriptionID: s.ID,
		Filter:         f,
		Modified:       now,
	})
}

// Cancel emits an Unsubscribed event when the subscription is active.
// No-op from absent or already-cancelled.
func (s State) Cancel(now time.Time, metadata domain.EventMetadata) ([]*domain.Event, error) {
	if !s.exists || s.cancelled {
		return nil, nil
	}

	return s.emit(EventTypeUnsubscribed, s.ID, now, metadata, Unsubscribed{
		SubscriptionID: s.ID,
	})
}

// emit envelopes a payload as the aggregate's next event. Event IDs are
// deterministic when a causing command is known, so retried commands
// produce identical events.
func (s State) emit(eventType, aggregateID string, now time.Time, metadata domain.EventMetadata, payload any) ([]*domain.Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	var eventID string
	if metadata.CausationID != "" {
		eventID = domain.DeterministicEventID(metadata.CausationID, aggregateID, 0)
	} else {
		eventID = idgen.MustGenerateSortableID()
	}

	return []*domain.Event{{
		ID:            eventID,
		AggregateID:   aggregateID,
		AggregateType: AggregateType,
		EventType:     eventType,
		Version:       s.Version + 1,
		Timestamp:     now,
		Data:          data,
		Metadata:      metadata,
	}}, nil
}
