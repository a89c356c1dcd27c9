package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the metric instruments for the notification service.
type Metrics struct {
	// Command metrics
	CommandDuration metric.Float64Histogram
	CommandTotal    metric.Int64Counter
	CommandErrors   metric.Int64Counter

	// Event metrics
	EventsAppended metric.Int64Counter
	EventsIngested metric.Int64Counter

	// Sweeper metrics
	SweepsTotal            metric.Int64Counter
	SubscriptionsExpired   metric.Int64Counter
	SweepUnsubscribeErrors metric.Int64Counter
	CacheEntriesDeleted    metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.CommandDuration, err = meter.Float64Histogram(
		"notification.command.duration",
		metric.WithDescription("Command execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.duration: %w", err)
	}

	m.CommandTotal, err = meter.Int64Counter(
		"notification.command.total",
		metric.WithDescription("Total commands executed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.total: %w", err)
	}

	m.CommandErrors, err = meter.Int64Counter(
		"notification.command.errors",
		metric.WithDescription("Total command errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.errors: %w", err)
	}

	m.EventsAppended, err = meter.Int64Counter(
		"notification.events.appended",
		metric.WithDescription("Total subscription events appended to the event store"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating events.appended: %w", err)
	}

	m.EventsIngested, err = meter.Int64Counter(
		"notification.events.ingested",
		metric.WithDescription("Total public events stored in the event cache"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating events.ingested: %w", err)
	}

	m.SweepsTotal, err = meter.Int64Counter(
		"notification.sweeper.sweeps",
		metric.WithDescription("Total expiry sweeps executed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sweeper.sweeps: %w", err)
	}

	m.SubscriptionsExpired, err = meter.Int64Counter(
		"notification.sweeper.expired",
		metric.WithDescription("Total subscriptions cancelled by the expiry sweeper"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sweeper.expired: %w", err)
	}

	m.SweepUnsubscribeErrors, err = meter.Int64Counter(
		"notification.sweeper.errors",
		metric.WithDescription("Total unsubscribe failures during expiry sweeps"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sweeper.errors: %w", err)
	}

	m.CacheEntriesDeleted, err = meter.Int64Counter(
		"notification.cache.deleted",
		metric.WithDescription("Total event cache entries removed by the cleaner"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating cache.deleted: %w", err)
	}

	return m, nil
}
