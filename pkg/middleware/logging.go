package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/hmcts/cpp-context-notification/pkg/domain"
)

// LoggingMiddleware logs command execution with timing information.
func LoggingMiddleware(logger *slog.Logger) domain.CommandMiddleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next domain.CommandHandler) domain.CommandHandler {
		return domain.CommandHandlerFunc(func(ctx context.Context, cmd *domain.CommandEnvelope) ([]*domain.Event, error) {
			start := time.Now()

			logger.InfoContext(ctx, "Executing command",
				slog.String("command_type", cmd.CommandType()),
				slog.String("command_id", cmd.Metadata.CommandID),
				slog.String("principal_id", cmd.Metadata.PrincipalID),
				slog.String("correlation_id", cmd.Metadata.CorrelationID),
			)

			events, err := next.Handle(ctx, cmd)
			duration := time.Since(start)

			if err != nil {
				logger.ErrorContext(ctx, "Command execution failed",
					slog.String("command_type", cmd.CommandType()),
					slog.String("command_id", cmd.Metadata.CommandID),
					slog.Int64("duration_ms", duration.Milliseconds()),
					slog.String("error", err.Error()),
				)
				return nil, err
			}

			logger.InfoContext(ctx, "Command executed successfully",
				slog.String("command_type", cmd.CommandType()),
				slog.String("command_id", cmd.Metadata.CommandID),
				slog.Int("events_count", len(events)),
				slog.Int64("duration_ms", duration.Milliseconds()),
			)

			return events, nil
		})
	}
}
