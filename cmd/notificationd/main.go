// notificationd runs the subscription service: the command side appending
// to the event store, the projection feeding the subscription view, the
// ingestor feeding the event cache, and the periodic expiry sweeper and
// cache cleaner.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/hmcts/cpp-context-notification/pkg/domain"
	"github.com/hmcts/cpp-context-notification/pkg/eventsourcing"
	"github.com/hmcts/cpp-context-notification/pkg/messaging"
	"github.com/hmcts/cpp-context-notification/pkg/middleware"
	natsbus "github.com/hmcts/cpp-context-notification/pkg/nats"
	"github.com/hmcts/cpp-context-notification/pkg/notification"
	"github.com/hmcts/cpp-context-notification/pkg/observability"
	"github.com/hmcts/cpp-context-notification/pkg/runner"
	"github.com/hmcts/cpp-context-notification/pkg/store/sqlite"
	"github.com/hmcts/cpp-context-notification/pkg/subscription"
	"github.com/hmcts/cpp-context-notification/pkg/sweeper"
	"github.com/hmcts/cpp-context-notification/pkg/view"
)

func main() {
	cfg := LoadConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("notificationd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx := context.Background()

	meterProvider := sdkmetric.NewMeterProvider()
	defer meterProvider.Shutdown(ctx)
	otel.SetMeterProvider(meterProvider)

	metrics, err := observability.NewMetrics(meterProvider.Meter("notificationd"))
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	eventStore, err := sqlite.NewEventStore(sqlite.WithDSN(cfg.DatabaseDSN))
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	defer eventStore.Close()

	eventBus, shutdownBus, err := newEventBus(cfg, logger)
	if err != nil {
		return err
	}
	defer shutdownBus()

	subscriptions, err := view.NewSubscriptionStore(eventStore.DB())
	if err != nil {
		return fmt.Errorf("failed to create subscription view: %w", err)
	}
	cache, err := view.NewEventCacheStore(eventStore.DB())
	if err != nil {
		return fmt.Errorf("failed to create event cache: %w", err)
	}

	projection := view.NewSubscriptionProjection(subscriptions)
	projections := eventsourcing.NewProjectionManager(
		sqlite.NewCheckpointStore(eventStore.DB()),
		eventStore,
		eventBus,
	)
	projections.Register(projection)
	if err := projections.Start(ctx, projection.Name()); err != nil {
		return fmt.Errorf("failed to start projection: %w", err)
	}
	defer projections.StopAll()

	commandBus := eventsourcing.NewCommandBusWithEventBus(eventBus)
	commandBus.Use(middleware.LoggingMiddleware(logger))
	commandBus.Use(middleware.RecoveryMiddleware(logger))
	commandBus.Use(middleware.MetadataValidationMiddleware())
	commandBus.Use(middleware.ValidationMiddleware(notification.NewCommandValidator()))
	commandBus.Use(observability.MetricsMiddleware(metrics))
	notification.NewCommandHandlers(eventStore).Register(commandBus)

	service := notification.NewService(commandBus, subscriptions, cache,
		notification.WithExpiryDuration(cfg.ExpiryDuration),
		notification.WithLogger(logger),
	)

	// Public events from other contexts share the stream with our own
	// subscription events; only the former are cached for matching.
	ingestor := notification.NewIngestor(cache, logger)
	ingest := ingestor.EventHandler(ctx)
	if _, err := eventBus.Subscribe(messaging.EventFilter{}, func(envelope *domain.EventEnvelope) error {
		if envelope.AggregateType == subscription.AggregateType {
			return nil
		}
		if err := ingest(envelope); err != nil {
			return err
		}
		metrics.EventsIngested.Add(ctx, 1)
		return nil
	}); err != nil {
		return fmt.Errorf("failed to subscribe ingestor: %w", err)
	}

	services := []runner.Service{
		sweeper.NewSubscriptionSweeper(service,
			sweeper.WithInitialDelay(cfg.SweeperInitialDelay),
			sweeper.WithInterval(cfg.SweeperInterval),
			sweeper.WithLogger(logger),
			sweeper.WithMetrics(metrics),
		),
		sweeper.NewEventCacheCleaner(cache,
			sweeper.WithTimeToLive(cfg.CacheTTL),
			sweeper.WithCleanInterval(cfg.CacheCleanInterval),
			sweeper.WithCleanerLogger(logger),
			sweeper.WithCleanerMetrics(metrics),
		),
	}

	return runner.New(services, runner.WithLogger(logger)).Run(ctx)
}

// newEventBus builds the configured event bus. The returned shutdown
// function also stops the embedded NATS server when one was started.
func newEventBus(cfg Config, logger *slog.Logger) (messaging.EventBus, func(), error) {
	if cfg.EventBus == "memory" {
		bus := messaging.NewInMemoryEventBus()
		return bus, func() { bus.Close() }, nil
	}

	url := cfg.NATSURL
	var embedded *natsbus.EmbeddedServer
	if cfg.NATSEmbedded {
		server, err := natsbus.StartEmbeddedServer(cfg.NATSStoreDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to start embedded NATS server: %w", err)
		}
		embedded = server
		url = server.URL()
		logger.Info("embedded NATS server started", "url", url)
	}

	busCfg := natsbus.DefaultConfig()
	busCfg.URL = url
	bus, err := natsbus.NewEventBus(busCfg)
	if err != nil {
		if embedded != nil {
			embedded.Shutdown()
		}
		return nil, nil, fmt.Errorf("failed to connect event bus: %w", err)
	}

	return bus, func() {
		bus.Close()
		if embedded != nil {
			embedded.Shutdown()
		}
	}, nil
}
