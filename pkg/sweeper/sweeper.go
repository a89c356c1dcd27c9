// Package sweeper contains the periodic housekeeping services: the expiry
// sweeper that cancels stale subscriptions and the cleaner that trims the
// event cache.
package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hmcts/cpp-context-notification/pkg/observability"
)

// SubscriptionService is the slice of the notification service the sweeper
// drives: list expired ids, then cancel each through the ordinary
// unsubscribe path.
type SubscriptionService interface {
	FindExpiredSubscriptionIDs(ctx context.Context) ([]string, error)
	Unsubscribe(ctx context.Context, subscriptionID string) error
}

// SubscriptionSweeper periodically cancels subscriptions that have gone
// unmodified past the expiry duration. It implements runner.Service.
type SubscriptionSweeper struct {
	service      SubscriptionService
	logger       *slog.Logger
	metrics      *observability.Metrics
	initialDelay time.Duration
	interval     time.Duration

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// SweeperOption configures a SubscriptionSweeper.
type SweeperOption func(*SubscriptionSweeper)

// WithInitialDelay sets the delay before the first sweep.
func WithInitialDelay(d time.Duration) SweeperOption {
	return func(s *SubscriptionSweeper) {
		s.initialDelay = d
	}
}

// WithInterval sets the period between sweeps.
func WithInterval(d time.Duration) SweeperOption {
	return func(s *SubscriptionSweeper) {
		s.interval = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SweeperOption {
	return func(s *SubscriptionSweeper) {
		s.logger = logger
	}
}

// WithMetrics attaches metric instruments.
func WithMetrics(metrics *observability.Metrics) SweeperOption {
	return func(s *SubscriptionSweeper) {
		s.metrics = metrics
	}
}

// NewSubscriptionSweeper creates a sweeper over the given service.
func NewSubscriptionSweeper(service SubscriptionService, opts ...SweeperOption) *SubscriptionSweeper {
	s := &SubscriptionSweeper{
		service:      service,
		logger:       slog.Default(),
		initialDelay: 10 * time.Minute,
		interval:     10 * time.Minute,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements runner.Service.
func (s *SubscriptionSweeper) Name() string {
	return "subscription-sweeper"
}

// Start launches the sweep loop. The loop runs until Stop is called.
func (s *SubscriptionSweeper) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go s.loop(loopCtx)

	s.logger.Info("subscription sweeper started",
		"initial_delay", s.initialDelay,
		"interval", s.interval,
	)
	return nil
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish.
func (s *SubscriptionSweeper) Stop(ctx context.Context) error {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SubscriptionSweeper) loop(ctx context.Context) {
	defer close(s.done)

	timer := time.NewTimer(s.initialDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	for {
		s.SweepOnce(ctx)

		timer.Reset(s.interval)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

// SweepOnce runs a single sweep: list expired subscriptions and cancel
// each. A failed unsubscribe is logged and does not block the rest of the
// sweep; each id is an independent unit of work.
func (s *SubscriptionSweeper) SweepOnce(ctx context.Context) {
	if s.metrics != nil {
		s.metrics.SweepsTotal.Add(ctx, 1)
	}

	ids, err := s.service.FindExpiredSubscriptionIDs(ctx)
	if err != nil {
		s.logger.Error("failed to list expired subscriptions", "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	s.logger.Info("expiring subscriptions", "count", len(ids))

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if err := s.service.Unsubscribe(ctx, id); err != nil {
			s.logger.Error("failed to unsubscribe expired subscription",
				"subscription_id", id,
				"error", err,
			)
			if s.metrics != nil {
				s.metrics.SweepUnsubscribeErrors.Add(ctx, 1)
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.SubscriptionsExpired.Add(ctx, 1)
		}
	}
}
