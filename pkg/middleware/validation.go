package middleware

import (
	"context"
	"fmt"

	"github.com/hmcts/cpp-context-notification/pkg/domain"
)

// Validator validates a command payload before it reaches a handler.
type Validator interface {
	// Validate returns an error if the command is invalid.
	Validate(cmd any) error
}

// ValidationMiddleware rejects invalid commands at the bus boundary, before
// any aggregate is touched.
func ValidationMiddleware(validator Validator) domain.CommandMiddleware {
	return func(next domain.CommandHandler) domain.CommandHandler {
		return domain.CommandHandlerFunc(func(ctx context.Context, cmd *domain.CommandEnvelope) ([]*domain.Event, error) {
			if err := validator.Validate(cmd.Command); err != nil {
				return nil, fmt.Errorf("%w: %s", domain.ErrInvalidCommand, err.Error())
			}
			return next.Handle(ctx, cmd)
		})
	}
}

// MetadataValidationMiddleware validates command metadata.
func MetadataValidationMiddleware() domain.CommandMiddleware {
	return func(next domain.CommandHandler) domain.CommandHandler {
		return domain.CommandHandlerFunc(func(ctx context.Context, cmd *domain.CommandEnvelope) ([]*domain.Event, error) {
			if cmd.Metadata.CommandID == "" {
				return nil, fmt.Errorf("%w: command_id is required", domain.ErrInvalidCommand)
			}
			if cmd.CommandType() == "" {
				return nil, fmt.Errorf("%w: command_type is required", domain.ErrInvalidCommand)
			}
			return next.Handle(ctx, cmd)
		})
	}
}
