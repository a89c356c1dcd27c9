package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hmcts/cpp-context-notification/pkg/domain"
	"github.com/hmcts/cpp-context-notification/pkg/eventsourcing"
	"github.com/hmcts/cpp-context-notification/pkg/filter"
	"github.com/hmcts/cpp-context-notification/pkg/view"
)

// DefaultExpiryDuration is how long a subscription may go unmodified before
// the sweeper cancels it.
const DefaultExpiryDuration = 8 * time.Hour

// SubscriptionDetails is the caller-facing projection of a subscription.
type SubscriptionDetails struct {
	OwnerID string
	Filter  filter.Filter
}

// Service is the facade callers use: commands are validated, resolved and
// dispatched through the command bus; queries go straight to the read side.
type Service struct {
	commandBus    eventsourcing.CommandBus
	subscriptions *view.SubscriptionStore
	cache         *view.EventCacheStore
	expiry        time.Duration
	logger        *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithExpiryDuration overrides the subscription expiry duration.
func WithExpiryDuration(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.expiry = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates the notification service facade.
func NewService(
	commandBus eventsourcing.CommandBus,
	subscriptions *view.SubscriptionStore,
	cache *view.EventCacheStore,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		commandBus:    commandBus,
		subscriptions: subscriptions,
		cache:         cache,
		expiry:        DefaultExpiryDuration,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe creates a subscription for userID, or replaces the filter of an
// existing one. The current-user shorthand in the filter is resolved to the
// caller's id here; an unresolved shorthand never reaches the log.
func (s *Service) Subscribe(ctx context.Context, subscriptionID, userID string, f filter.Filter) error {
	if f.IsZero() {
		return fmt.Errorf("%w: filter is required", domain.ErrInvalidCommand)
	}
	if err := f.Validate(); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidCommand, err.Error())
	}

	resolved, err := filter.ResolveCurrentUser(f, userID)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidCommand, err.Error())
	}

	return s.commandBus.Send(ctx, newEnvelope(CommandTypeSubscribe, SubscribeCommand{
		SubscriptionID: subscriptionID,
		UserID:         userID,
		Filter:         resolved,
	}, userID))
}

// Unsubscribe cancels a subscription. Unknown and already-cancelled ids
// succeed without effect.
func (s *Service) Unsubscribe(ctx context.Context, subscriptionID string) error {
	return s.commandBus.Send(ctx, newEnvelope(CommandTypeUnsubscribe, UnsubscribeCommand{
		SubscriptionID: subscriptionID,
	}, ""))
}

// GetSubscription returns the owner and current filter of a subscription,
// or view.ErrSubscriptionNotFound.
func (s *Service) GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionDetails, error) {
	sub, err := s.subscriptions.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	return &SubscriptionDetails{OwnerID: sub.OwnerID, Filter: sub.Filter}, nil
}

// FindEvents returns the cached events matching a subscription's filter,
// newest first, optionally narrowed to a client correlation id. Unknown
// subscriptions and subscriptions without a filter yield an empty result:
// returning unfiltered events would leak data across owners.
func (s *Service) FindEvents(ctx context.Context, subscriptionID, clientCorrelationID string) ([]view.CachedEvent, error) {
	sub, err := s.subscriptions.Get(ctx, subscriptionID)
	if errors.Is(err, view.ErrSubscriptionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if sub.Filter.IsZero() {
		s.logger.Warn("subscription has no filter, returning no events", "subscription_id", subscriptionID)
		return nil, nil
	}

	predicate, err := filter.Compile(sub.Filter)
	if err != nil {
		return nil, fmt.Errorf("failed to compile subscription filter: %w", err)
	}

	return s.cache.QueryByFilter(ctx, predicate, clientCorrelationID)
}

// FindExpiredSubscriptionIDs returns the ids of subscriptions whose last
// modification is strictly older than the expiry duration.
func (s *Service) FindExpiredSubscriptionIDs(ctx context.Context) ([]string, error) {
	return s.subscriptions.FindExpiredIDs(ctx, domain.Now(), s.expiry)
}
