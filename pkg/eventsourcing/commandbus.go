package eventsourcing

import (
	"context"
	"fmt"
	"sync"

	"github.com/hmcts/cpp-context-notification/pkg/domain"
	"github.com/hmcts/cpp-context-notification/pkg/messaging"
)

// CommandBus routes commands to their handlers.
type CommandBus interface {
	// Send sends a command to its handler.
	Send(ctx context.Context, cmd *domain.CommandEnvelope) error

	// Register registers a handler for a command type.
	Register(commandType string, handler domain.CommandHandler)

	// Use adds middleware to the command processing pipeline.
	Use(middleware domain.CommandMiddleware)
}

// DefaultCommandBus is an in-memory implementation of CommandBus. When an
// event bus is configured, events returned by handlers are published after
// the handler succeeds.
type DefaultCommandBus struct {
	handlers   map[string]domain.CommandHandler
	middleware []domain.CommandMiddleware
	eventBus   messaging.EventBus
	mu         sync.RWMutex
}

// NewCommandBus creates a new command bus.
func NewCommandBus() *DefaultCommandBus {
	return &DefaultCommandBus{
		handlers: make(map[string]domain.CommandHandler),
	}
}

// NewCommandBusWithEventBus creates a command bus that publishes produced
// events to the given event bus.
func NewCommandBusWithEventBus(eventBus messaging.EventBus) *DefaultCommandBus {
	return &DefaultCommandBus{
		handlers: make(map[string]domain.CommandHandler),
		eventBus: eventBus,
	}
}

// Register registers a handler for a specific command type. Registering the
// same type twice is a programming error.
func (b *DefaultCommandBus) Register(commandType string, handler domain.CommandHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.handlers[commandType]; exists {
		panic(fmt.Sprintf("handler already registered for command type: %s", commandType))
	}
	b.handlers[commandType] = handler
}

// Use adds middleware to the pipeline. Middleware runs in registration
// order (first added = outermost).
func (b *DefaultCommandBus) Use(middleware domain.CommandMiddleware) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.middleware = append(b.middleware, middleware)
}

// Send routes a command through the middleware chain to its handler.
func (b *DefaultCommandBus) Send(ctx context.Context, cmd *domain.CommandEnvelope) error {
	if cmd == nil {
		return domain.ErrInvalidCommand
	}

	commandType := cmd.CommandType()
	if commandType == "" {
		return fmt.Errorf("%w: command_type not specified in metadata", domain.ErrInvalidCommand)
	}

	b.mu.RLock()
	handler, exists := b.handlers[commandType]
	middleware := b.middleware
	b.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrCommandNotFound, commandType)
	}

	final := handler
	for i := len(middleware) - 1; i >= 0; i-- {
		final = middleware[i](final)
	}

	events, err := final.Handle(ctx, cmd)
	if err != nil {
		return fmt.Errorf("command handler failed: %w", err)
	}

	if b.eventBus != nil && len(events) > 0 {
		if err := b.eventBus.Publish(events); err != nil {
			return fmt.Errorf("failed to publish events: %w", err)
		}
	}

	return nil
}
