package steps_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/MrEshboboyev/newsletter/id"
	"github.com/MrEshboboyev/newsletter/mail"
	"github.com/MrEshboboyev/newsletter/message"
	"github.com/MrEshboboyev/newsletter/metrics"
	"github.com/MrEshboboyev/newsletter/onboarding"
	"github.com/MrEshboboyev/newsletter/steps"
)

type capturePublisher struct {
	mu   sync.Mutex
	envs []*message.Envelope
}

func (p *capturePublisher) Publish(_ context.Context, env *message.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, env)
	return nil
}

func (p *capturePublisher) only(t *testing.T) *message.Envelope {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.envs) != 1 {
		t.Fatalf("published %d envelopes, want 1", len(p.envs))
	}
	return p.envs[0]
}

type fakeSender struct {
	err   error
	kinds []string
}

func (s *fakeSender) Send(_ context.Context, kind, _ string) error {
	s.kinds = append(s.kinds, kind)
	return s.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func failingWork(err error) steps.WorkFunc {
	return func(context.Context) error { return err }
}

func succeedingWork() steps.WorkFunc {
	return func(context.Context) error { return nil }
}

func TestWelcomeEmailHandlerSuccess(t *testing.T) {
	sender := &fakeSender{}
	pub := &capturePublisher{}
	rec := metrics.NewInMemory()
	h := steps.NewWelcomeEmailHandler(sender, pub, rec, discard())

	subID := id.NewSubscriberID()
	env := message.MustWrap(onboarding.SendWelcomeEmail{SubscriberID: subID, Email: "a@example.com"})
	if err := h.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	out := pub.only(t)
	if out.Name != onboarding.NameWelcomeEmailSent {
		t.Fatalf("published %s, want %s", out.Name, onboarding.NameWelcomeEmailSent)
	}
	if out.CorrelationID.String() != subID.String() {
		t.Fatalf("correlation = %s, want %s", out.CorrelationID, subID)
	}
	if len(sender.kinds) != 1 || sender.kinds[0] != steps.KindWelcome {
		t.Fatalf("sender kinds = %v", sender.kinds)
	}
	ok, failed := rec.StepCounts()
	if ok[steps.StepWelcomeEmail] != 1 || failed[steps.StepWelcomeEmail] != 0 {
		t.Fatalf("step counts ok=%v failed=%v", ok, failed)
	}
}

func TestWelcomeEmailHandlerFaultPublishesThenErrors(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp unavailable")}
	pub := &capturePublisher{}
	rec := metrics.NewInMemory()
	h := steps.NewWelcomeEmailHandler(sender, pub, rec, discard())

	subID := id.NewSubscriberID()
	env := message.MustWrap(onboarding.SendWelcomeEmail{SubscriberID: subID, Email: "a@example.com"})
	err := h.Handle(context.Background(), env)
	if err == nil {
		t.Fatal("Handle = nil, want error for transport retry")
	}

	out := pub.only(t)
	if out.Name != onboarding.NameSendWelcomeEmailFaulted {
		t.Fatalf("published %s, want %s", out.Name, onboarding.NameSendWelcomeEmailFaulted)
	}
	var fault onboarding.SendWelcomeEmailFaulted
	if err := json.Unmarshal(out.Payload, &fault); err != nil {
		t.Fatalf("unmarshal fault: %v", err)
	}
	if fault.Reason != "smtp unavailable" {
		t.Fatalf("reason = %q", fault.Reason)
	}
	_, failed := rec.StepCounts()
	if failed[steps.StepWelcomeEmail] != 1 {
		t.Fatalf("failed counts = %v", failed)
	}
}

func TestFollowUpEmailHandlerRecoversAfterTransientFailures(t *testing.T) {
	// FailFirstN(1) mimics a provider that rejects the first attempt.
	sender := mail.NewSimSender(discard(),
		mail.WithLatency(0, 0),
		mail.WithFailurePolicy(&mail.FailFirstN{N: 1}),
	)
	pub := &capturePublisher{}
	h := steps.NewFollowUpEmailHandler(sender, pub, metrics.NewNoop(), discard())

	subID := id.NewSubscriberID()
	env := message.MustWrap(onboarding.SendFollowUpEmail{SubscriberID: subID, Email: "a@example.com"})

	if err := h.Handle(context.Background(), env); err == nil {
		t.Fatal("first attempt should fail")
	}
	if err := h.Handle(context.Background(), env); err != nil {
		t.Fatalf("second attempt: %v", err)
	}

	var sent, faulted int
	pub.mu.Lock()
	for _, e := range pub.envs {
		switch e.Name {
		case onboarding.NameFollowUpEmailSent:
			sent++
		case onboarding.NameSendFollowUpEmailFaulted:
			faulted++
		}
	}
	pub.mu.Unlock()
	if sent != 1 || faulted != 1 {
		t.Fatalf("sent=%d faulted=%d, want 1 and 1", sent, faulted)
	}
}

func TestProfileHandlerSuccessCarriesProfileData(t *testing.T) {
	pub := &capturePublisher{}
	h := steps.NewProfileHandler(succeedingWork(), pub, metrics.NewNoop(), discard())

	subID := id.NewSubscriberID()
	env := message.MustWrap(onboarding.CompleteProfile{
		SubscriberID: subID,
		Email:        "ada@example.com",
		FirstName:    "Ada",
		LastName:     "Lovelace",
	})
	if err := h.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	out := pub.only(t)
	var evt onboarding.ProfileCompleted
	if err := json.Unmarshal(out.Payload, &evt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if evt.FirstName != "Ada" || evt.LastName != "Lovelace" {
		t.Fatalf("profile data = %+v", evt)
	}
}

func TestPreferencesHandlerFault(t *testing.T) {
	pub := &capturePublisher{}
	h := steps.NewPreferencesHandler(failingWork(errors.New("storage down")), pub, metrics.NewNoop(), discard())

	subID := id.NewSubscriberID()
	env := message.MustWrap(onboarding.SelectPreferences{
		SubscriberID: subID,
		Email:        "ada@example.com",
		Topics:       []string{"go"},
	})
	if err := h.Handle(context.Background(), env); err == nil {
		t.Fatal("Handle = nil, want error")
	}

	out := pub.only(t)
	if out.Name != onboarding.NamePreferencesSelectionFaulted {
		t.Fatalf("published %s, want %s", out.Name, onboarding.NamePreferencesSelectionFaulted)
	}
}

func TestEngagementScheduleHandlerEchoesScheduledAt(t *testing.T) {
	pub := &capturePublisher{}
	h := steps.NewEngagementScheduleHandler(succeedingWork(), pub, metrics.NewNoop(), discard())

	subID := id.NewSubscriberID()
	scheduledAt := time.Now().UTC().Add(7 * 24 * time.Hour).Truncate(time.Second)
	env := message.MustWrap(onboarding.ScheduleEngagementEmail{
		SubscriberID: subID,
		Email:        "ada@example.com",
		ScheduledAt:  scheduledAt,
	})
	if err := h.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	out := pub.only(t)
	var evt onboarding.EngagementEmailScheduled
	if err := json.Unmarshal(out.Payload, &evt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !evt.ScheduledAt.Equal(scheduledAt) {
		t.Fatalf("ScheduledAt = %v, want %v", evt.ScheduledAt, scheduledAt)
	}
}

func TestCompensationHandlersPublishNothing(t *testing.T) {
	rec := metrics.NewInMemory()
	profile := steps.NewCompensateProfileHandler(succeedingWork(), rec, discard())
	prefs := steps.NewCompensatePreferencesHandler(succeedingWork(), rec, discard())

	subID := id.NewSubscriberID()
	if err := profile.Handle(context.Background(), message.MustWrap(onboarding.CompensateProfileCompletion{
		SubscriberID: subID, Email: "a@example.com",
	})); err != nil {
		t.Fatalf("profile compensation: %v", err)
	}
	if err := prefs.Handle(context.Background(), message.MustWrap(onboarding.CompensatePreferencesSelection{
		SubscriberID: subID, Email: "a@example.com",
	})); err != nil {
		t.Fatalf("preferences compensation: %v", err)
	}

	ok, _ := rec.StepCounts()
	if ok[steps.StepProfileCompensation] != 1 || ok[steps.StepPreferencesCompensation] != 1 {
		t.Fatalf("step counts = %v", ok)
	}
}

func TestCompensationHandlerFailureIsRetriable(t *testing.T) {
	h := steps.NewCompensateProfileHandler(failingWork(errors.New("rollback failed")), metrics.NewNoop(), discard())

	env := message.MustWrap(onboarding.CompensateProfileCompletion{
		SubscriberID: id.NewSubscriberID(),
		Email:        "a@example.com",
	})
	if err := h.Handle(context.Background(), env); err == nil {
		t.Fatal("Handle = nil, want error so the bus retries")
	}
}
