package view

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hmcts/cpp-context-notification/pkg/domain"
	"github.com/hmcts/cpp-context-notification/pkg/subscription"
)

// SubscriptionProjection folds subscription lifecycle events into the
// subscription view table. Cancelled subscriptions are removed outright,
// so the view only ever holds active subscriptions.
type SubscriptionProjection struct {
	store *SubscriptionStore
}

// NewSubscriptionProjection creates the projection over the given store.
func NewSubscriptionProjection(store *SubscriptionStore) *SubscriptionProjection {
	return &SubscriptionProjection{store: store}
}

// Name implements store.Projection.
func (p *SubscriptionProjection) Name() string {
	return "subscription_view"
}

// Handle implements store.Projection. Events of other aggregate types are
// ignored so the projection can share a bus with unrelated streams.
func (p *SubscriptionProjection) Handle(ctx context.Context, envelope *domain.EventEnvelope) error {
	if envelope.AggregateType != subscription.AggregateType {
		return nil
	}

	switch envelope.EventType {
	case subscription.EventTypeSubscribed:
		var payload subscription.Subscribed
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return fmt.Errorf("failed to unmarshal subscribed event: %w", err)
		}
		return p.store.Save(ctx, Subscription{
			ID:       payload.SubscriptionID,
			OwnerID:  payload.OwnerID,
			Filter:   payload.Filter,
			Created:  payload.Created,
			Modified: payload.Created,
		})

	case subscription.EventTypeFilterUpdated:
		var payload subscription.FilterUpdated
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return fmt.Errorf("failed to unmarshal filter-updated event: %w", err)
		}
		return p.store.UpdateFilter(ctx, payload.SubscriptionID, payload.Filter, payload.Modified)

	case subscription.EventTypeUnsubscribed:
		var payload subscription.Unsubscribed
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return fmt.Errorf("failed to unmarshal unsubscribed event: %w", err)
		}
		return p.store.Delete(ctx, payload.SubscriptionID)

	default:
		return fmt.Errorf("unknown subscription event type %q", envelope.EventType)
	}
}

// Reset implements store.Projection.
func (p *SubscriptionProjection) Reset(ctx context.Context) error {
	return p.store.Reset(ctx)
}
