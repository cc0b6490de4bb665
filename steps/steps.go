// Package steps holds the stateless step handlers. Each handler consumes
// exactly one command, performs one unit of work, and publishes exactly one
// of the command's success or fault events. On failure the fault event goes
// out first, then the error is returned so the bus retry policy governs
// redelivery of the command; the fault event itself is a one-shot
// notification and is never retried.
//
// Handlers never touch saga state. They are idempotent only in the
// side-effect sense (a duplicate email is tolerated); exactly-once state
// progression is the saga engine's job.
package steps

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/MrEshboboyev/newsletter/message"
)

// Step names used in logs and metrics.
const (
	StepWelcomeEmail            = "welcome_email"
	StepFollowUpEmail           = "follow_up_email"
	StepProfileCompletion       = "profile_completion"
	StepPreferencesSelection    = "preferences_selection"
	StepWelcomePackage          = "welcome_package"
	StepEngagementSchedule      = "engagement_email_schedule"
	StepProfileCompensation     = "profile_compensation"
	StepPreferencesCompensation = "preferences_compensation"
)

// Mail kinds passed to the Sender.
const (
	KindWelcome        = "welcome"
	KindFollowUp       = "follow-up"
	KindWelcomePackage = "welcome-package"
)

// Publisher delivers success and fault events. Satisfied by *bus.Bus.
type Publisher interface {
	Publish(ctx context.Context, env *message.Envelope) error
}

// WorkFunc performs a handler's unit of work for steps that are not email
// sends (profile updates, preference storage, scheduling, compensation).
// The default simulates a short processing delay and always succeeds; tests
// swap in failures.
type WorkFunc func(ctx context.Context) error

// DefaultWork sleeps a short random interval, respecting ctx.
func DefaultWork(ctx context.Context) error {
	d := 100*time.Millisecond + rand.N(200*time.Millisecond)
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// decode unmarshals an envelope payload into cmd. A false return means the
// payload is poison and the delivery should be dropped, not retried.
func decode(env *message.Envelope, cmd any, logger *slog.Logger) bool {
	if err := json.Unmarshal(env.Payload, cmd); err != nil {
		logger.Warn("dropping undecodable command",
			slog.String("message", env.Name),
			slog.String("message_id", env.ID.String()),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// publishFault sends a fault event, logging delivery failure without
// masking the step's own error.
func publishFault(ctx context.Context, pub Publisher, evt message.Message, logger *slog.Logger) {
	if err := pub.Publish(ctx, message.MustWrap(evt)); err != nil {
		logger.Error("fault event publish failed",
			slog.String("message", evt.MessageName()),
			slog.String("correlation_id", evt.Correlation().String()),
			slog.String("error", err.Error()),
		)
	}
}
