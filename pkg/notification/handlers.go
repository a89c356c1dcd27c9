package notification

import (
	"context"
	"fmt"

	"github.com/hmcts/cpp-context-notification/pkg/domain"
	"github.com/hmcts/cpp-context-notification/pkg/eventsourcing"
	"github.com/hmcts/cpp-context-notification/pkg/store"
	"github.com/hmcts/cpp-context-notification/pkg/subscription"
)

// CommandHandlers executes notification commands against the subscription
// aggregate. Each handler replays the aggregate's stream, asks the pure
// command function for events, and appends them with optimistic concurrency
// against the replayed version.
type CommandHandlers struct {
	events store.EventStore
}

// NewCommandHandlers creates handlers over the given event store.
func NewCommandHandlers(events store.EventStore) *CommandHandlers {
	return &CommandHandlers{events: events}
}

// Register registers all notification command handlers on the bus.
func (h *CommandHandlers) Register(bus eventsourcing.CommandBus) {
	bus.Register(CommandTypeSubscribe, domain.CommandHandlerFunc(h.handleSubscribe))
	bus.Register(CommandTypeUnsubscribe, domain.CommandHandlerFunc(h.handleUnsubscribe))
}

// handleSubscribe dispatches on current aggregate state: create when the
// subscription is absent, replace the filter when it is active. A retried
// subscribe is therefore an upsert, never a duplicate-creation failure.
func (h *CommandHandlers) handleSubscribe(ctx context.Context, cmd *domain.CommandEnvelope) ([]*domain.Event, error) {
	payload, ok := cmd.Command.(SubscribeCommand)
	if !ok {
		return nil, fmt.Errorf("%w: expected SubscribeCommand, got %T", domain.ErrInvalidCommand, cmd.Command)
	}

	state, err := h.replay(payload.SubscriptionID)
	if err != nil {
		return nil, err
	}

	now := domain.Now()
	metadata := eventMetadataFrom(cmd.Metadata)

	var events []*domain.Event
	if state.Exists() {
		events, err = state.UpdateFilter(payload.Filter, now, metadata)
	} else {
		events, err = state.Create(now, payload.Filter, payload.UserID, payload.SubscriptionID, metadata)
	}
	if err != nil {
		return nil, err
	}

	return h.append(payload.SubscriptionID, state.Version, events)
}

func (h *CommandHandlers) handleUnsubscribe(ctx context.Context, cmd *domain.CommandEnvelope) ([]*domain.Event, error) {
	payload, ok := cmd.Command.(UnsubscribeCommand)
	if !ok {
		return nil, fmt.Errorf("%w: expected UnsubscribeCommand, got %T", domain.ErrInvalidCommand, cmd.Command)
	}

	state, err := h.replay(payload.SubscriptionID)
	if err != nil {
		return nil, err
	}

	events, err := state.Cancel(domain.Now(), eventMetadataFrom(cmd.Metadata))
	if err != nil {
		return nil, err
	}

	return h.append(payload.SubscriptionID, state.Version, events)
}

func (h *CommandHandlers) replay(subscriptionID string) (subscription.State, error) {
	history, err := h.events.LoadEvents(subscriptionID, 0)
	if err != nil {
		return subscription.State{}, fmt.Errorf("failed to load subscription stream: %w", err)
	}
	return subscription.Replay(history)
}

func (h *CommandHandlers) append(subscriptionID string, expectedVersion int64, events []*domain.Event) ([]*domain.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if err := h.events.AppendEvents(subscriptionID, expectedVersion, events); err != nil {
		return nil, err
	}
	return events, nil
}

func eventMetadataFrom(m domain.CommandMetadata) domain.EventMetadata {
	return domain.EventMetadata{
		CausationID:   m.CommandID,
		CorrelationID: m.CorrelationID,
		PrincipalID:   m.PrincipalID,
	}
}
