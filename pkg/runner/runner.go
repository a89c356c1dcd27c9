package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Runner manages the lifecycle of multiple services: sequential startup,
// reverse-order graceful shutdown, and error aggregation.
type Runner struct {
	services        []Service
	logger          *slog.Logger
	shutdownTimeout time.Duration
	startupTimeout  time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger for the runner.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithShutdownTimeout sets the timeout for graceful shutdown.
// Default is 30 seconds.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		r.shutdownTimeout = timeout
	}
}

// WithStartupTimeout sets the timeout for service startup.
// Default is 1 minute.
func WithStartupTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		r.startupTimeout = timeout
	}
}

// New creates a new Runner with the given services and options.
func New(services []Service, opts ...Option) *Runner {
	r := &Runner{
		services:        services,
		logger:          slog.Default(),
		shutdownTimeout: 30 * time.Second,
		startupTimeout:  1 * time.Minute,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run starts all services and blocks until the context is cancelled or a
// shutdown signal arrives, then stops services in reverse order.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		WaitForShutdownSignal()
		r.logger.Info("shutdown signal received")
		cancel()
	}()

	r.logger.Info("starting services", slog.Int("count", len(r.services)))
	started := []Service{}

	for _, service := range r.services {
		r.logger.Info("starting service", slog.String("service", service.Name()))

		startCtx, startCancel := context.WithTimeout(ctx, r.startupTimeout)
		err := service.Start(startCtx)
		startCancel()

		if err != nil {
			r.logger.Error("failed to start service",
				slog.String("service", service.Name()),
				slog.String("error", err.Error()),
			)
			r.stopServices(started)
			return fmt.Errorf("start service %s: %w", service.Name(), err)
		}

		started = append(started, service)
	}

	r.logger.Info("all services started")

	<-ctx.Done()

	r.logger.Info("shutting down services",
		slog.Duration("timeout", r.shutdownTimeout))
	return r.stopServices(started)
}

// stopServices stops services in reverse start order, continuing past
// individual failures and returning the first error encountered.
func (r *Runner) stopServices(services []Service) error {
	stopCtx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer cancel()

	var firstErr error
	for i := len(services) - 1; i >= 0; i-- {
		service := services[i]
		r.logger.Info("stopping service", slog.String("service", service.Name()))

		if err := service.Stop(stopCtx); err != nil {
			r.logger.Error("failed to stop service",
				slog.String("service", service.Name()),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("stop service %s: %w", service.Name(), err)
			}
		}
	}

	return firstErr
}
