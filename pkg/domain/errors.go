package domain

import "errors"

var (
	// ErrAggregateNotFound is returned when an aggregate has no events.
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrConcurrencyConflict is returned when an append races with another
	// writer on the same stream.
	ErrConcurrencyConflict = errors.New("concurrency conflict: aggregate version mismatch")

	// ErrInvalidCommand is returned when a command fails validation at the
	// command boundary, before any state mutation.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrCommandNotFound is returned when no handler is registered for a
	// command type.
	ErrCommandNotFound = errors.New("command handler not found")
)
