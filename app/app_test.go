package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/MrEshboboyev/newsletter"
	"github.com/MrEshboboyev/newsletter/app"
	"github.com/MrEshboboyev/newsletter/dlq"
	"github.com/MrEshboboyev/newsletter/id"
	"github.com/MrEshboboyev/newsletter/mail"
	"github.com/MrEshboboyev/newsletter/metrics"
	"github.com/MrEshboboyev/newsletter/onboarding"
	"github.com/MrEshboboyev/newsletter/saga"
	"github.com/MrEshboboyev/newsletter/steps"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() newsletter.Config {
	cfg := newsletter.DefaultConfig()
	cfg.Consumers = 4
	cfg.ImmediateRetries = 2
	cfg.IntervalRetries = 1
	cfg.RetryInterval = 10 * time.Millisecond
	cfg.ShutdownTimeout = 2 * time.Second
	cfg.EngagementEmailDelay = time.Hour
	return cfg
}

func newApp(t *testing.T, opts ...app.Option) *app.App {
	t.Helper()
	base := []app.Option{
		app.WithConfig(testConfig()),
		app.WithLogger(discard()),
		app.WithSender(mail.NewSimSender(discard(), mail.WithLatency(0, 0))),
	}
	a, err := app.New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start app: %v", err)
	}
	t.Cleanup(func() {
		if err := a.Stop(context.Background()); err != nil {
			t.Errorf("stop app: %v", err)
		}
	})
	return a
}

func waitForBasicState(t *testing.T, a *app.App, subID id.SubscriberID, want saga.State) *saga.Record[onboarding.BasicInstance] {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := a.BasicInstance(context.Background(), subID)
		if err == nil && rec.State == want {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	rec, err := a.BasicInstance(context.Background(), subID)
	t.Fatalf("basic instance never reached %q (rec=%+v, err=%v)", want, rec, err)
	return nil
}

func waitForAdvancedState(t *testing.T, a *app.App, subID id.SubscriberID, want saga.State) *saga.Record[onboarding.AdvancedInstance] {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := a.AdvancedInstance(context.Background(), subID)
		if err == nil && rec.State == want {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	rec, err := a.AdvancedInstance(context.Background(), subID)
	t.Fatalf("advanced instance never reached %q (rec=%+v, err=%v)", want, rec, err)
	return nil
}

func TestBasicOnboardingCompletesEndToEnd(t *testing.T) {
	a := newApp(t)

	subID, err := a.Subscribe(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	rec := waitForBasicState(t, a, subID, onboarding.StateOnboarding)
	if !rec.Data.WelcomeEmailSent || !rec.Data.FollowUpEmailSent || !rec.Data.OnboardingCompleted {
		t.Fatalf("instance = %+v, steps not all recorded", rec.Data)
	}
	if rec.CompletedAt == nil {
		t.Fatal("CompletedAt not set on completed instance")
	}

	sub, err := a.Subscribers().GetSubscriber(context.Background(), subID)
	if err != nil {
		t.Fatalf("registry lookup: %v", err)
	}
	if sub.Email != "ada@example.com" {
		t.Fatalf("email = %q", sub.Email)
	}
}

func TestBasicOnboardingSurvivesTransientMailFailures(t *testing.T) {
	sender := mail.NewSimSender(discard(),
		mail.WithLatency(0, 0),
		mail.WithFailurePolicy(&mail.FailFirstN{
			PerKind: map[string]int{
				steps.KindWelcome:  2,
				steps.KindFollowUp: 1,
			},
		}),
	)
	a := newApp(t, app.WithSender(sender))

	subID, err := a.Subscribe(context.Background(), "flaky@example.com")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	rec := waitForBasicState(t, a, subID, onboarding.StateOnboarding)
	if !rec.Data.OnboardingCompleted {
		t.Fatalf("instance = %+v, onboarding incomplete", rec.Data)
	}
}

func TestAdvancedOnboardingCompletesEndToEnd(t *testing.T) {
	rec := metrics.NewInMemory()
	a := newApp(t, app.WithRecorder(rec))
	ctx := context.Background()

	subID, err := a.Subscribe(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	waitForAdvancedState(t, a, subID, onboarding.StateAwaitingProfileCompletion)

	if err := a.CompleteProfile(ctx, subID, "Ada", "Lovelace"); err != nil {
		t.Fatalf("complete profile: %v", err)
	}
	waitForAdvancedState(t, a, subID, onboarding.StateAwaitingPreferencesSelection)

	if err := a.SelectPreferences(ctx, subID, []string{"go", "distributed-systems"}); err != nil {
		t.Fatalf("select preferences: %v", err)
	}

	inst := waitForAdvancedState(t, a, subID, onboarding.StateOnboardingCompleted)
	if inst.Data.FirstName != "Ada" || inst.Data.LastName != "Lovelace" {
		t.Fatalf("profile = %q %q", inst.Data.FirstName, inst.Data.LastName)
	}
	if len(inst.Data.Topics) != 2 {
		t.Fatalf("topics = %v", inst.Data.Topics)
	}
	if inst.Data.WelcomePackageSentAt == nil || inst.Data.EngagementEmailScheduledAt == nil {
		t.Fatalf("instance = %+v, later steps not recorded", inst.Data)
	}
	if inst.CompletedAt == nil {
		t.Fatal("CompletedAt not set")
	}

	transitions := rec.TransitionCounts()
	key := onboarding.AdvancedName + ":" + string(onboarding.StateSchedulingEngagementEmail) + "->" + string(onboarding.StateOnboardingCompleted)
	if transitions[key] != 1 {
		t.Fatalf("transitions = %v, want one %q", transitions, key)
	}
	if len(rec.Completions()) == 0 {
		t.Fatal("no completion duration recorded")
	}
}

func TestAdvancedCompensationEndToEnd(t *testing.T) {
	// The welcome package never sends, so the saga compensates the
	// preferences selection and parks in Faulted.
	sender := mail.NewSimSender(discard(),
		mail.WithLatency(0, 0),
		mail.WithFailurePolicy(&mail.FailFirstN{
			PerKind: map[string]int{steps.KindWelcomePackage: 1 << 20},
		}),
	)
	a := newApp(t, app.WithSender(sender))
	ctx := context.Background()

	subID, err := a.Subscribe(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	waitForAdvancedState(t, a, subID, onboarding.StateAwaitingProfileCompletion)
	if err := a.CompleteProfile(ctx, subID, "Ada", "Lovelace"); err != nil {
		t.Fatalf("complete profile: %v", err)
	}
	waitForAdvancedState(t, a, subID, onboarding.StateAwaitingPreferencesSelection)
	if err := a.SelectPreferences(ctx, subID, []string{"go"}); err != nil {
		t.Fatalf("select preferences: %v", err)
	}

	inst := waitForAdvancedState(t, a, subID, onboarding.StateFaulted)
	if !inst.Data.WelcomePackageSendFaulted {
		t.Fatalf("instance = %+v, fault not recorded", inst.Data)
	}
	if !inst.Data.PreferencesCompensated || inst.Data.PreferencesCompensatedAt == nil {
		t.Fatalf("instance = %+v, preferences not compensated", inst.Data)
	}
	if inst.Data.ProfileCompensated {
		t.Fatal("profile compensated, compensation overshot one step")
	}

	// The exhausted SendWelcomePackage command lands in the DLQ.
	deadline := time.Now().Add(5 * time.Second)
	for {
		n, _ := a.DLQ().DLQStore().CountDLQ(ctx)
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("exhausted command never reached the DLQ")
		}
		time.Sleep(10 * time.Millisecond)
	}
	entries, err := a.DLQ().DLQStore().ListDLQ(ctx, dlq.ListOpts{Consumer: steps.StepWelcomePackage})
	if err != nil || len(entries) == 0 {
		t.Fatalf("ListDLQ = %v, %v", entries, err)
	}
	if entries[0].Name != onboarding.NameSendWelcomePackage {
		t.Fatalf("dlq entry name = %q", entries[0].Name)
	}
}

func TestBothWorkflowsRunForOneSubscription(t *testing.T) {
	a := newApp(t)
	ctx := context.Background()

	subID, err := a.Subscribe(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	waitForBasicState(t, a, subID, onboarding.StateOnboarding)
	waitForAdvancedState(t, a, subID, onboarding.StateAwaitingProfileCompletion)
}

func TestSubscribeAfterStopFails(t *testing.T) {
	a, err := app.New(
		app.WithConfig(testConfig()),
		app.WithLogger(discard()),
	)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if _, err := a.Subscribe(context.Background(), "late@example.com"); !errors.Is(err, newsletter.ErrBusClosed) {
		t.Fatalf("subscribe after stop = %v, want ErrBusClosed", err)
	}
}
