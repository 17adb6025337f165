package services

import (
	"context"
	"log/slog"

	"expensync/internal/amqp"
	"expensync/internal/metrics"
)

// Publisher delivers events to the broker. A nil Publisher disables events.
type Publisher interface {
	Publish(ctx context.Context, e amqp.Event) error
}

// events publishes best effort: failures are logged and counted, never
// returned to the caller.
type events struct {
	pub     Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func (ev events) emit(ctx context.Context, e amqp.Event) {
	if ev.pub == nil {
		ev.logger.DebugContext(ctx, "AMQP not configured, skipping event", "event_type", e.Type)
		return
	}
	err := ev.pub.Publish(ctx, e)
	ev.metrics.EventPublished(string(e.Type), err)
	if err != nil {
		ev.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", e.Type,
			"user_id", e.UserID,
			"expense_id", e.ExpenseID,
			"error", err)
	}
}
