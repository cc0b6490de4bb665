package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrEshboboyev/newsletter/message"
)

// Logging returns middleware that logs delivery start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, d *message.Delivery, next Handler) error {
		logger.Info("delivery started",
			slog.String("message", d.Envelope.Name),
			slog.String("message_id", d.Envelope.ID.String()),
			slog.String("consumer", d.Consumer),
			slog.Int("attempt", d.Attempt),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("delivery failed",
				slog.String("message", d.Envelope.Name),
				slog.String("message_id", d.Envelope.ID.String()),
				slog.String("consumer", d.Consumer),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("delivery completed",
				slog.String("message", d.Envelope.Name),
				slog.String("message_id", d.Envelope.ID.String()),
				slog.String("consumer", d.Consumer),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
