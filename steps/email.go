package steps

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEshboboyev/newsletter/mail"
	"github.com/MrEshboboyev/newsletter/message"
	"github.com/MrEshboboyev/newsletter/metrics"
	"github.com/MrEshboboyev/newsletter/onboarding"
)

// WelcomeEmailHandler consumes SendWelcomeEmail.
type WelcomeEmailHandler struct {
	sender mail.Sender
	pub    Publisher
	rec    metrics.Recorder
	logger *slog.Logger
}

// NewWelcomeEmailHandler creates the welcome email step handler.
func NewWelcomeEmailHandler(sender mail.Sender, pub Publisher, rec metrics.Recorder, logger *slog.Logger) *WelcomeEmailHandler {
	return &WelcomeEmailHandler{sender: sender, pub: pub, rec: rec, logger: logger}
}

// Handle sends the welcome email and publishes WelcomeEmailSent, or
// publishes SendWelcomeEmailFaulted and returns the error for retry.
func (h *WelcomeEmailHandler) Handle(ctx context.Context, env *message.Envelope) error {
	var cmd onboarding.SendWelcomeEmail
	if !decode(env, &cmd, h.logger) {
		return nil
	}

	start := time.Now()
	if err := h.sender.Send(ctx, KindWelcome, cmd.Email); err != nil {
		h.rec.StepFailed(StepWelcomeEmail, err.Error())
		h.logger.Error("welcome email failed",
			slog.String("email", cmd.Email),
			slog.String("subscriber_id", cmd.SubscriberID.String()),
			slog.String("error", err.Error()),
		)
		publishFault(ctx, h.pub, onboarding.SendWelcomeEmailFaulted{
			SubscriberID: cmd.SubscriberID,
			Email:        cmd.Email,
			Reason:       err.Error(),
		}, h.logger)
		return fmt.Errorf("steps: welcome email to %s: %w", cmd.Email, err)
	}

	h.rec.StepSucceeded(StepWelcomeEmail, time.Since(start))
	h.logger.Info("welcome email sent",
		slog.String("email", cmd.Email),
		slog.String("subscriber_id", cmd.SubscriberID.String()),
	)
	return h.pub.Publish(ctx, message.MustWrap(onboarding.WelcomeEmailSent{
		SubscriberID: cmd.SubscriberID,
		Email:        cmd.Email,
	}))
}

// FollowUpEmailHandler consumes SendFollowUpEmail.
type FollowUpEmailHandler struct {
	sender mail.Sender
	pub    Publisher
	rec    metrics.Recorder
	logger *slog.Logger
}

// NewFollowUpEmailHandler creates the follow-up email step handler.
func NewFollowUpEmailHandler(sender mail.Sender, pub Publisher, rec metrics.Recorder, logger *slog.Logger) *FollowUpEmailHandler {
	return &FollowUpEmailHandler{sender: sender, pub: pub, rec: rec, logger: logger}
}

// Handle sends the follow-up email and publishes FollowUpEmailSent, or
// publishes SendFollowUpEmailFaulted and returns the error for retry.
func (h *FollowUpEmailHandler) Handle(ctx context.Context, env *message.Envelope) error {
	var cmd onboarding.SendFollowUpEmail
	if !decode(env, &cmd, h.logger) {
		return nil
	}

	start := time.Now()
	if err := h.sender.Send(ctx, KindFollowUp, cmd.Email); err != nil {
		h.rec.StepFailed(StepFollowUpEmail, err.Error())
		h.logger.Error("follow-up email failed",
			slog.String("email", cmd.Email),
			slog.String("subscriber_id", cmd.SubscriberID.String()),
			slog.String("error", err.Error()),
		)
		publishFault(ctx, h.pub, onboarding.SendFollowUpEmailFaulted{
			SubscriberID: cmd.SubscriberID,
			Email:        cmd.Email,
			Reason:       err.Error(),
		}, h.logger)
		return fmt.Errorf("steps: follow-up email to %s: %w", cmd.Email, err)
	}

	h.rec.StepSucceeded(StepFollowUpEmail, time.Since(start))
	h.logger.Info("follow-up email sent",
		slog.String("email", cmd.Email),
		slog.String("subscriber_id", cmd.SubscriberID.String()),
	)
	return h.pub.Publish(ctx, message.MustWrap(onboarding.FollowUpEmailSent{
		SubscriberID: cmd.SubscriberID,
		Email:        cmd.Email,
	}))
}
