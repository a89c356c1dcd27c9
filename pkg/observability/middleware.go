package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hmcts/cpp-context-notification/pkg/domain"
)

// MetricsMiddleware records command throughput, latency and failures.
func MetricsMiddleware(m *Metrics) domain.CommandMiddleware {
	return func(next domain.CommandHandler) domain.CommandHandler {
		return domain.CommandHandlerFunc(func(ctx context.Context, cmd *domain.CommandEnvelope) ([]*domain.Event, error) {
			start := time.Now()
			attrs := metric.WithAttributes(
				attribute.String("command_type", cmd.CommandType()),
			)

			events, err := next.Handle(ctx, cmd)

			m.CommandTotal.Add(ctx, 1, attrs)
			m.CommandDuration.Record(ctx, time.Since(start).Seconds(), attrs)
			if err != nil {
				m.CommandErrors.Add(ctx, 1, attrs)
				return nil, err
			}
			if len(events) > 0 {
				m.EventsAppended.Add(ctx, int64(len(events)), attrs)
			}

			return events, nil
		})
	}
}
