package steps

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEshboboyev/newsletter/message"
	"github.com/MrEshboboyev/newsletter/metrics"
	"github.com/MrEshboboyev/newsletter/onboarding"
)

// CompensateProfileHandler consumes CompensateProfileCompletion and rolls
// back the profile data recorded by the profile completion step.
//
// Compensation is best-effort and publishes no event of its own: the saga
// consumes the same command to record that compensation was issued, and a
// failed compensation is retried by the bus but never compensated in turn.
type CompensateProfileHandler struct {
	work   WorkFunc
	rec    metrics.Recorder
	logger *slog.Logger
}

// NewCompensateProfileHandler creates the profile compensation handler.
// A nil work falls back to DefaultWork.
func NewCompensateProfileHandler(work WorkFunc, rec metrics.Recorder, logger *slog.Logger) *CompensateProfileHandler {
	if work == nil {
		work = DefaultWork
	}
	return &CompensateProfileHandler{work: work, rec: rec, logger: logger}
}

// Handle implements the bus consumer contract.
func (h *CompensateProfileHandler) Handle(ctx context.Context, env *message.Envelope) error {
	var cmd onboarding.CompensateProfileCompletion
	if !decode(env, &cmd, h.logger) {
		return nil
	}

	start := time.Now()
	if err := h.work(ctx); err != nil {
		h.rec.StepFailed(StepProfileCompensation, err.Error())
		h.logger.Error("profile compensation failed",
			slog.String("email", cmd.Email),
			slog.String("subscriber_id", cmd.SubscriberID.String()),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("steps: compensate profile for %s: %w", cmd.Email, err)
	}

	h.rec.StepSucceeded(StepProfileCompensation, time.Since(start))
	h.logger.Info("profile completion compensated",
		slog.String("email", cmd.Email),
		slog.String("subscriber_id", cmd.SubscriberID.String()),
	)
	return nil
}

// CompensatePreferencesHandler consumes CompensatePreferencesSelection and
// rolls back the stored topic choices.
type CompensatePreferencesHandler struct {
	work   WorkFunc
	rec    metrics.Recorder
	logger *slog.Logger
}

// NewCompensatePreferencesHandler creates the preferences compensation
// handler. A nil work falls back to DefaultWork.
func NewCompensatePreferencesHandler(work WorkFunc, rec metrics.Recorder, logger *slog.Logger) *CompensatePreferencesHandler {
	if work == nil {
		work = DefaultWork
	}
	return &CompensatePreferencesHandler{work: work, rec: rec, logger: logger}
}

// Handle implements the bus consumer contract.
func (h *CompensatePreferencesHandler) Handle(ctx context.Context, env *message.Envelope) error {
	var cmd onboarding.CompensatePreferencesSelection
	if !decode(env, &cmd, h.logger) {
		return nil
	}

	start := time.Now()
	if err := h.work(ctx); err != nil {
		h.rec.StepFailed(StepPreferencesCompensation, err.Error())
		h.logger.Error("preferences compensation failed",
			slog.String("email", cmd.Email),
			slog.String("subscriber_id", cmd.SubscriberID.String()),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("steps: compensate preferences for %s: %w", cmd.Email, err)
	}

	h.rec.StepSucceeded(StepPreferencesCompensation, time.Since(start))
	h.logger.Info("preference selection compensated",
		slog.String("email", cmd.Email),
		slog.String("subscriber_id", cmd.SubscriberID.String()),
	)
	return nil
}
