package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hmcts/cpp-context-notification/pkg/domain"
	"github.com/hmcts/cpp-context-notification/pkg/observability"
)

// EventCache is the slice of the cache store the cleaner uses.
type EventCache interface {
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// EventCacheCleaner periodically removes cached events older than the
// configured time-to-live. It implements runner.Service.
type EventCacheCleaner struct {
	cache     EventCache
	logger    *slog.Logger
	metrics   *observability.Metrics
	ttl       time.Duration
	interval  time.Duration
	batchSize int

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// CleanerOption configures an EventCacheCleaner.
type CleanerOption func(*EventCacheCleaner)

// WithTimeToLive sets how long cached events are retained.
func WithTimeToLive(d time.Duration) CleanerOption {
	return func(c *EventCacheCleaner) {
		c.ttl = d
	}
}

// WithCleanInterval sets the period between cleaning runs.
func WithCleanInterval(d time.Duration) CleanerOption {
	return func(c *EventCacheCleaner) {
		c.interval = d
	}
}

// WithBatchSize sets the delete batch size.
func WithBatchSize(n int) CleanerOption {
	return func(c *EventCacheCleaner) {
		c.batchSize = n
	}
}

// WithCleanerLogger sets the logger.
func WithCleanerLogger(logger *slog.Logger) CleanerOption {
	return func(c *EventCacheCleaner) {
		c.logger = logger
	}
}

// WithCleanerMetrics attaches metric instruments.
func WithCleanerMetrics(metrics *observability.Metrics) CleanerOption {
	return func(c *EventCacheCleaner) {
		c.metrics = metrics
	}
}

// NewEventCacheCleaner creates a cleaner over the given cache.
func NewEventCacheCleaner(cache EventCache, opts ...CleanerOption) *EventCacheCleaner {
	c := &EventCacheCleaner{
		cache:     cache,
		logger:    slog.Default(),
		ttl:       time.Hour,
		interval:  10 * time.Minute,
		batchSize: 1000,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements runner.Service.
func (c *EventCacheCleaner) Name() string {
	return "event-cache-cleaner"
}

// Start launches the cleaning loop.
func (c *EventCacheCleaner) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	go c.loop(loopCtx)

	c.logger.Info("event cache cleaner started", "ttl", c.ttl, "interval", c.interval)
	return nil
}

// Stop halts the cleaning loop.
func (c *EventCacheCleaner) Stop(ctx context.Context) error {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
	})

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *EventCacheCleaner) loop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CleanOnce(ctx)
		}
	}
}

// CleanOnce removes all cached events older than the time-to-live.
func (c *EventCacheCleaner) CleanOnce(ctx context.Context) {
	cutoff := domain.Now().Add(-c.ttl)

	deleted, err := c.cache.DeleteCreatedBefore(ctx, cutoff, c.batchSize)
	if err != nil {
		c.logger.Error("failed to clean event cache", "error", err)
		return
	}
	if deleted > 0 {
		c.logger.Info("cleaned event cache", "deleted", deleted)
		if c.metrics != nil {
			c.metrics.CacheEntriesDeleted.Add(ctx, deleted)
		}
	}
}
