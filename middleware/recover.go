package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/MrEshboboyev/newsletter/message"
)

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to errors and logged with a stack trace, so one
// misbehaving consumer cannot take down the workers processing other
// subscribers.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, d *message.Delivery, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("consumer panicked",
					slog.String("message", d.Envelope.Name),
					slog.String("consumer", d.Consumer),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic in consumer %s: %v", d.Consumer, r)
			}
		}()
		return next(ctx)
	}
}
