package runner

import "context"

// Service represents a long-running component that can be started and
// stopped. Services are managed by the Runner and should implement graceful
// startup and shutdown semantics.
type Service interface {
	// Name returns a unique identifier for this service, used for logging
	// and error messages.
	Name() string

	// Start initializes and starts the service. Must respect context
	// cancellation.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the service. Should complete within the
	// context timeout.
	Stop(ctx context.Context) error
}
