package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/hmcts/cpp-context-notification/pkg/domain"
)

// RecoveryMiddleware recovers from panics in command handlers.
func RecoveryMiddleware(logger *slog.Logger) domain.CommandMiddleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next domain.CommandHandler) domain.CommandHandler {
		return domain.CommandHandlerFunc(func(ctx context.Context, cmd *domain.CommandEnvelope) (events []*domain.Event, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "Command handler panicked",
						slog.String("command_id", cmd.Metadata.CommandID),
						slog.String("command_type", cmd.CommandType()),
						slog.Any("panic", r),
						slog.String("stack_trace", string(debug.Stack())),
					)

					err = fmt.Errorf("command handler panicked: %v", r)
					events = nil
				}
			}()

			return next.Handle(ctx, cmd)
		})
	}
}
