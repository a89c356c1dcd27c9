package domain

import (
	"context"
	"time"
)

// CommandMetadata contains contextual information about a command.
type CommandMetadata struct {
	// CommandID is the unique identifier for this command (for idempotency
	// and deterministic event IDs).
	CommandID string

	// CorrelationID traces related commands and events.
	CorrelationID string

	// PrincipalID is the identifier of the principal executing this command.
	PrincipalID string

	// Timestamp is when the command was created.
	Timestamp time.Time

	// Custom allows for application-specific metadata. The command bus
	// routes on Custom["command_type"].
	Custom map[string]string
}

// CommandEnvelope wraps a command payload with its metadata.
type CommandEnvelope struct {
	Command  any
	Metadata CommandMetadata
}

// CommandType returns the routing key for this envelope.
func (e *CommandEnvelope) CommandType() string {
	return e.Metadata.Custom["command_type"]
}

// CommandHandler processes a command and returns the events produced.
type CommandHandler interface {
	Handle(ctx context.Context, cmd *CommandEnvelope) ([]*Event, error)
}

// CommandHandlerFunc is a function adapter for CommandHandler.
type CommandHandlerFunc func(ctx context.Context, cmd *CommandEnvelope) ([]*Event, error)

// Handle implements CommandHandler.
func (f CommandHandlerFunc) Handle(ctx context.Context, cmd *CommandEnvelope) ([]*Event, error) {
	return f(ctx, cmd)
}

// CommandMiddleware wraps command handlers with cross-cutting concerns.
type CommandMiddleware func(CommandHandler) CommandHandler
