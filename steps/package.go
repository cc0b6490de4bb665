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

// WelcomePackageHandler consumes SendWelcomePackage: it mails the
// personalized welcome package and reports WelcomePackageSent or
// WelcomePackageSendFaulted.
type WelcomePackageHandler struct {
	sender mail.Sender
	pub    Publisher
	rec    metrics.Recorder
	logger *slog.Logger
}

// NewWelcomePackageHandler creates the welcome package step handler.
func NewWelcomePackageHandler(sender mail.Sender, pub Publisher, rec metrics.Recorder, logger *slog.Logger) *WelcomePackageHandler {
	return &WelcomePackageHandler{sender: sender, pub: pub, rec: rec, logger: logger}
}

// Handle implements the bus consumer contract.
func (h *WelcomePackageHandler) Handle(ctx context.Context, env *message.Envelope) error {
	var cmd onboarding.SendWelcomePackage
	if !decode(env, &cmd, h.logger) {
		return nil
	}

	start := time.Now()
	if err := h.sender.Send(ctx, KindWelcomePackage, cmd.Email); err != nil {
		h.rec.StepFailed(StepWelcomePackage, err.Error())
		h.logger.Error("welcome package failed",
			slog.String("email", cmd.Email),
			slog.String("subscriber_id", cmd.SubscriberID.String()),
			slog.String("error", err.Error()),
		)
		publishFault(ctx, h.pub, onboarding.WelcomePackageSendFaulted{
			SubscriberID: cmd.SubscriberID,
			Email:        cmd.Email,
			Reason:       err.Error(),
		}, h.logger)
		return fmt.Errorf("steps: welcome package to %s: %w", cmd.Email, err)
	}

	h.rec.StepSucceeded(StepWelcomePackage, time.Since(start))
	h.logger.Info("welcome package sent",
		slog.String("email", cmd.Email),
		slog.String("subscriber_id", cmd.SubscriberID.String()),
		slog.String("first_name", cmd.FirstName),
		slog.Int("topics", len(cmd.Topics)),
	)
	return h.pub.Publish(ctx, message.MustWrap(onboarding.WelcomePackageSent{
		SubscriberID: cmd.SubscriberID,
		Email:        cmd.Email,
	}))
}

// EngagementScheduleHandler consumes ScheduleEngagementEmail: it books the
// future engagement email and reports EngagementEmailScheduled or
// EngagementEmailScheduleFaulted.
type EngagementScheduleHandler struct {
	work   WorkFunc
	pub    Publisher
	rec    metrics.Recorder
	logger *slog.Logger
}

// NewEngagementScheduleHandler creates the engagement scheduling step
// handler. A nil work falls back to DefaultWork.
func NewEngagementScheduleHandler(work WorkFunc, pub Publisher, rec metrics.Recorder, logger *slog.Logger) *EngagementScheduleHandler {
	if work == nil {
		work = DefaultWork
	}
	return &EngagementScheduleHandler{work: work, pub: pub, rec: rec, logger: logger}
}

// Handle implements the bus consumer contract.
func (h *EngagementScheduleHandler) Handle(ctx context.Context, env *message.Envelope) error {
	var cmd onboarding.ScheduleEngagementEmail
	if !decode(env, &cmd, h.logger) {
		return nil
	}

	start := time.Now()
	if err := h.work(ctx); err != nil {
		h.rec.StepFailed(StepEngagementSchedule, err.Error())
		h.logger.Error("engagement email scheduling failed",
			slog.String("email", cmd.Email),
			slog.String("subscriber_id", cmd.SubscriberID.String()),
			slog.String("error", err.Error()),
		)
		publishFault(ctx, h.pub, onboarding.EngagementEmailScheduleFaulted{
			SubscriberID: cmd.SubscriberID,
			Email:        cmd.Email,
			Reason:       err.Error(),
		}, h.logger)
		return fmt.Errorf("steps: schedule engagement email for %s: %w", cmd.Email, err)
	}

	h.rec.StepSucceeded(StepEngagementSchedule, time.Since(start))
	h.logger.Info("engagement email scheduled",
		slog.String("email", cmd.Email),
		slog.String("subscriber_id", cmd.SubscriberID.String()),
		slog.Time("scheduled_at", cmd.ScheduledAt),
	)
	return h.pub.Publish(ctx, message.MustWrap(onboarding.EngagementEmailScheduled{
		SubscriberID: cmd.SubscriberID,
		Email:        cmd.Email,
		ScheduledAt:  cmd.ScheduledAt,
	}))
}
