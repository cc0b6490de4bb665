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

// ProfileHandler consumes CompleteProfile: it records the subscriber's
// profile data and reports ProfileCompleted or ProfileCompletionFaulted.
type ProfileHandler struct {
	work   WorkFunc
	pub    Publisher
	rec    metrics.Recorder
	logger *slog.Logger
}

// NewProfileHandler creates the profile completion step handler.
// A nil work falls back to DefaultWork.
func NewProfileHandler(work WorkFunc, pub Publisher, rec metrics.Recorder, logger *slog.Logger) *ProfileHandler {
	if work == nil {
		work = DefaultWork
	}
	return &ProfileHandler{work: work, pub: pub, rec: rec, logger: logger}
}

// Handle implements the bus consumer contract.
func (h *ProfileHandler) Handle(ctx context.Context, env *message.Envelope) error {
	var cmd onboarding.CompleteProfile
	if !decode(env, &cmd, h.logger) {
		return nil
	}

	start := time.Now()
	if err := h.work(ctx); err != nil {
		h.rec.StepFailed(StepProfileCompletion, err.Error())
		h.logger.Error("profile completion failed",
			slog.String("email", cmd.Email),
			slog.String("subscriber_id", cmd.SubscriberID.String()),
			slog.String("error", err.Error()),
		)
		publishFault(ctx, h.pub, onboarding.ProfileCompletionFaulted{
			SubscriberID: cmd.SubscriberID,
			Email:        cmd.Email,
			Reason:       err.Error(),
		}, h.logger)
		return fmt.Errorf("steps: complete profile for %s: %w", cmd.Email, err)
	}

	h.rec.StepSucceeded(StepProfileCompletion, time.Since(start))
	h.logger.Info("profile completed",
		slog.String("email", cmd.Email),
		slog.String("subscriber_id", cmd.SubscriberID.String()),
	)
	return h.pub.Publish(ctx, message.MustWrap(onboarding.ProfileCompleted{
		SubscriberID: cmd.SubscriberID,
		Email:        cmd.Email,
		FirstName:    cmd.FirstName,
		LastName:     cmd.LastName,
	}))
}

// PreferencesHandler consumes SelectPreferences: it stores the subscriber's
// topic choices and reports PreferencesSelected or
// PreferencesSelectionFaulted.
type PreferencesHandler struct {
	work   WorkFunc
	pub    Publisher
	rec    metrics.Recorder
	logger *slog.Logger
}

// NewPreferencesHandler creates the preference selection step handler.
// A nil work falls back to DefaultWork.
func NewPreferencesHandler(work WorkFunc, pub Publisher, rec metrics.Recorder, logger *slog.Logger) *PreferencesHandler {
	if work == nil {
		work = DefaultWork
	}
	return &PreferencesHandler{work: work, pub: pub, rec: rec, logger: logger}
}

// Handle implements the bus consumer contract.
func (h *PreferencesHandler) Handle(ctx context.Context, env *message.Envelope) error {
	var cmd onboarding.SelectPreferences
	if !decode(env, &cmd, h.logger) {
		return nil
	}

	start := time.Now()
	if err := h.work(ctx); err != nil {
		h.rec.StepFailed(StepPreferencesSelection, err.Error())
		h.logger.Error("preference selection failed",
			slog.String("email", cmd.Email),
			slog.String("subscriber_id", cmd.SubscriberID.String()),
			slog.String("error", err.Error()),
		)
		publishFault(ctx, h.pub, onboarding.PreferencesSelectionFaulted{
			SubscriberID: cmd.SubscriberID,
			Email:        cmd.Email,
			Reason:       err.Error(),
		}, h.logger)
		return fmt.Errorf("steps: select preferences for %s: %w", cmd.Email, err)
	}

	h.rec.StepSucceeded(StepPreferencesSelection, time.Since(start))
	h.logger.Info("preferences selected",
		slog.String("email", cmd.Email),
		slog.String("subscriber_id", cmd.SubscriberID.String()),
		slog.Int("topics", len(cmd.Topics)),
	)
	return h.pub.Publish(ctx, message.MustWrap(onboarding.PreferencesSelected{
		SubscriberID: cmd.SubscriberID,
		Email:        cmd.Email,
		Topics:       cmd.Topics,
	}))
}
