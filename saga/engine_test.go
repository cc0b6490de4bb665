package saga_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/MrEshboboyev/newsletter/id"
	"github.com/MrEshboboyev/newsletter/message"
	"github.com/MrEshboboyev/newsletter/metrics"
	"github.com/MrEshboboyev/newsletter/onboarding"
	"github.com/MrEshboboyev/newsletter/saga"
	"github.com/MrEshboboyev/newsletter/store/memory"
)

// capturePublisher records published envelopes and can fail the first
// several publishes to exercise the stuck-outbox path.
type capturePublisher struct {
	mu       sync.Mutex
	envs     []*message.Envelope
	failNext int
}

func (p *capturePublisher) Publish(_ context.Context, env *message.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext > 0 {
		p.failNext--
		return errors.New("publish unavailable")
	}
	p.envs = append(p.envs, env)
	return nil
}

func (p *capturePublisher) named(name string) []*message.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*message.Envelope
	for _, env := range p.envs {
		if env.Name == name {
			out = append(out, env)
		}
	}
	return out
}

func newTestEngine(t *testing.T) (*saga.Engine[onboarding.BasicInstance], *memory.SagaStore[onboarding.BasicInstance], *capturePublisher, *metrics.InMemory) {
	t.Helper()

	reg := message.NewRegistry()
	onboarding.RegisterMessages(reg)

	store := memory.NewSagaStore[onboarding.BasicInstance]()
	pub := &capturePublisher{}
	rec := metrics.NewInMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	eng := saga.NewEngine(onboarding.BasicDefinition(), store, reg, pub, rec, logger)
	return eng, store, pub, rec
}

func handle(t *testing.T, eng *saga.Engine[onboarding.BasicInstance], msg message.Message) {
	t.Helper()
	if err := eng.Handle(context.Background(), message.MustWrap(msg)); err != nil {
		t.Fatalf("Handle(%s) = %v", msg.MessageName(), err)
	}
}

func snapshot(t *testing.T, store *memory.SagaStore[onboarding.BasicInstance], subID id.SubscriberID) string {
	t.Helper()
	rec, err := store.Get(context.Background(), subID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	return string(raw)
}

func TestEngineCreatesInstanceOnInitialEvent(t *testing.T) {
	eng, store, pub, _ := newTestEngine(t)
	subID := id.NewSubscriberID()

	handle(t, eng, onboarding.SubscriberCreated{SubscriberID: subID, Email: "a@example.com"})

	rec, err := store.Get(context.Background(), subID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.State != onboarding.StateWelcoming {
		t.Fatalf("state = %s, want %s", rec.State, onboarding.StateWelcoming)
	}
	if rec.Data.Email != "a@example.com" {
		t.Fatalf("email = %q", rec.Data.Email)
	}
	if len(rec.Outbox) != 0 {
		t.Fatalf("outbox not cleared after flush: %d entries", len(rec.Outbox))
	}
	if got := pub.named(onboarding.NameSendWelcomeEmail); len(got) != 1 {
		t.Fatalf("SendWelcomeEmail published %d times, want 1", len(got))
	}
}

func TestEngineIdempotentCreation(t *testing.T) {
	eng, store, pub, _ := newTestEngine(t)
	subID := id.NewSubscriberID()

	env := message.MustWrap(onboarding.SubscriberCreated{SubscriberID: subID, Email: "a@example.com"})
	for range 2 {
		if err := eng.Handle(context.Background(), env); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}

	if store.Count() != 1 {
		t.Fatalf("instances = %d, want 1", store.Count())
	}
	if got := pub.named(onboarding.NameSendWelcomeEmail); len(got) != 1 {
		t.Fatalf("SendWelcomeEmail published %d times, want 1", len(got))
	}
}

func TestEngineDropsUnknownCorrelation(t *testing.T) {
	eng, store, pub, _ := newTestEngine(t)

	handle(t, eng, onboarding.WelcomeEmailSent{SubscriberID: id.NewSubscriberID(), Email: "a@example.com"})

	if store.Count() != 0 {
		t.Fatalf("instances = %d, want 0", store.Count())
	}
	if len(pub.named(onboarding.NameSendFollowUpEmail)) != 0 {
		t.Fatal("unexpected publish for dropped event")
	}
}

func TestEngineIgnoresUnexpectedEventForState(t *testing.T) {
	eng, store, _, _ := newTestEngine(t)
	subID := id.NewSubscriberID()

	handle(t, eng, onboarding.SubscriberCreated{SubscriberID: subID, Email: "a@example.com"})
	before := snapshot(t, store, subID)

	// FollowUpEmailSent is not expected while Welcoming.
	handle(t, eng, onboarding.FollowUpEmailSent{SubscriberID: subID, Email: "a@example.com"})

	if after := snapshot(t, store, subID); after != before {
		t.Fatalf("record changed on unexpected event:\nbefore %s\nafter  %s", before, after)
	}
}

func TestEngineHappyPathCompletes(t *testing.T) {
	eng, store, pub, rec := newTestEngine(t)
	subID := id.NewSubscriberID()

	handle(t, eng, onboarding.SubscriberCreated{SubscriberID: subID, Email: "a@example.com"})
	handle(t, eng, onboarding.WelcomeEmailSent{SubscriberID: subID, Email: "a@example.com"})
	handle(t, eng, onboarding.FollowUpEmailSent{SubscriberID: subID, Email: "a@example.com"})

	r, err := store.Get(context.Background(), subID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.State != onboarding.StateOnboarding {
		t.Fatalf("state = %s, want %s", r.State, onboarding.StateOnboarding)
	}
	if r.CompletedAt == nil {
		t.Fatal("CompletedAt not set")
	}
	if !r.Data.WelcomeEmailSent || !r.Data.FollowUpEmailSent || !r.Data.OnboardingCompleted {
		t.Fatalf("step flags not all set: %+v", r.Data)
	}

	for _, name := range []string{
		onboarding.NameSendWelcomeEmail,
		onboarding.NameSendFollowUpEmail,
		onboarding.NameOnboardingCompleted,
	} {
		if got := pub.named(name); len(got) != 1 {
			t.Fatalf("%s published %d times, want 1", name, len(got))
		}
	}

	transitions := rec.TransitionCounts()
	for _, key := range []string{
		onboarding.BasicName + ":Initial->Welcoming",
		onboarding.BasicName + ":Welcoming->FollowingUp",
		onboarding.BasicName + ":FollowingUp->Onboarding",
	} {
		if transitions[key] != 1 {
			t.Fatalf("transition %s count = %d, want 1", key, transitions[key])
		}
	}
	if got := len(rec.Completions()); got != 1 {
		t.Fatalf("completions = %d, want 1", got)
	}
}

func TestEngineFaultTransition(t *testing.T) {
	eng, store, _, rec := newTestEngine(t)
	subID := id.NewSubscriberID()

	handle(t, eng, onboarding.SubscriberCreated{SubscriberID: subID, Email: "a@example.com"})
	handle(t, eng, onboarding.SendWelcomeEmailFaulted{
		SubscriberID: subID,
		Email:        "a@example.com",
		Reason:       "smtp unavailable",
	})

	r, err := store.Get(context.Background(), subID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.State != onboarding.StateFaulted {
		t.Fatalf("state = %s, want %s", r.State, onboarding.StateFaulted)
	}
	if !r.Data.WelcomeEmailFaulted || r.Data.WelcomeEmailFaultReason != "smtp unavailable" {
		t.Fatalf("fault not recorded: %+v", r.Data)
	}
	if r.CompletedAt != nil {
		t.Fatal("CompletedAt set on fault path")
	}

	faults := rec.FaultCounts()
	if faults[onboarding.BasicName+":Welcoming"] != 1 {
		t.Fatalf("fault counts = %v", faults)
	}
}

func TestEngineTerminalAbsorption(t *testing.T) {
	eng, store, _, _ := newTestEngine(t)
	subID := id.NewSubscriberID()

	handle(t, eng, onboarding.SubscriberCreated{SubscriberID: subID, Email: "a@example.com"})
	handle(t, eng, onboarding.SendWelcomeEmailFaulted{SubscriberID: subID, Email: "a@example.com", Reason: "down"})
	before := snapshot(t, store, subID)

	// A late success and a duplicate fault must both be absorbed.
	handle(t, eng, onboarding.WelcomeEmailSent{SubscriberID: subID, Email: "a@example.com"})
	handle(t, eng, onboarding.SendWelcomeEmailFaulted{SubscriberID: subID, Email: "a@example.com", Reason: "down"})

	if after := snapshot(t, store, subID); after != before {
		t.Fatalf("terminal record changed:\nbefore %s\nafter  %s", before, after)
	}
}

func TestEngineRedeliveredSuccessIsNoOp(t *testing.T) {
	eng, store, pub, _ := newTestEngine(t)
	subID := id.NewSubscriberID()

	handle(t, eng, onboarding.SubscriberCreated{SubscriberID: subID, Email: "a@example.com"})
	env := message.MustWrap(onboarding.WelcomeEmailSent{SubscriberID: subID, Email: "a@example.com"})
	if err := eng.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	before := snapshot(t, store, subID)

	if err := eng.Handle(context.Background(), env); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	if after := snapshot(t, store, subID); after != before {
		t.Fatalf("record changed on redelivery:\nbefore %s\nafter  %s", before, after)
	}
	if got := pub.named(onboarding.NameSendFollowUpEmail); len(got) != 1 {
		t.Fatalf("SendFollowUpEmail published %d times, want 1", len(got))
	}
}

func TestEngineFlushRetriesStagedOutbox(t *testing.T) {
	eng, store, pub, _ := newTestEngine(t)
	subID := id.NewSubscriberID()

	// First publish fails: the transition persists with its outbox staged.
	pub.failNext = 1
	handle(t, eng, onboarding.SubscriberCreated{SubscriberID: subID, Email: "a@example.com"})

	r, err := store.Get(context.Background(), subID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(r.Outbox) != 1 {
		t.Fatalf("outbox = %d entries, want 1 staged", len(r.Outbox))
	}
	if len(pub.named(onboarding.NameSendWelcomeEmail)) != 0 {
		t.Fatal("command published despite failure")
	}

	// Any later delivery for the instance re-flushes, even a duplicate
	// trigger the state no longer expects.
	handle(t, eng, onboarding.SubscriberCreated{SubscriberID: subID, Email: "a@example.com"})

	r, err = store.Get(context.Background(), subID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(r.Outbox) != 0 {
		t.Fatalf("outbox not cleared: %d entries", len(r.Outbox))
	}
	if got := pub.named(onboarding.NameSendWelcomeEmail); len(got) != 1 {
		t.Fatalf("SendWelcomeEmail published %d times, want 1", len(got))
	}
}

func TestEngineConcurrentSameInstance(t *testing.T) {
	eng, store, pub, _ := newTestEngine(t)
	subID := id.NewSubscriberID()
	env := message.MustWrap(onboarding.SubscriberCreated{SubscriberID: subID, Email: "a@example.com"})

	var g errgroup.Group
	for range 16 {
		g.Go(func() error {
			return eng.Handle(context.Background(), env)
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent Handle: %v", err)
	}

	if store.Count() != 1 {
		t.Fatalf("instances = %d, want 1", store.Count())
	}
	r, err := store.Get(context.Background(), subID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.State != onboarding.StateWelcoming {
		t.Fatalf("state = %s, want %s", r.State, onboarding.StateWelcoming)
	}
	// Delivery is at-least-once: racing flushes may duplicate the command
	// but must publish it at least once.
	if got := pub.named(onboarding.NameSendWelcomeEmail); len(got) == 0 {
		t.Fatal("SendWelcomeEmail never published")
	}
}

func TestEngineUndecodablePayloadDropped(t *testing.T) {
	eng, store, _, _ := newTestEngine(t)

	env := &message.Envelope{
		ID:            id.NewMessageID(),
		Name:          onboarding.NameSubscriberCreated,
		CorrelationID: id.NewSubscriberID(),
		Payload:       []byte(`{`),
	}
	if err := eng.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle = %v, want nil for poison payload", err)
	}
	if store.Count() != 0 {
		t.Fatalf("instances = %d, want 0", store.Count())
	}
}

func TestEngineUnknownMessageNameDropped(t *testing.T) {
	eng, store, _, _ := newTestEngine(t)

	env := &message.Envelope{
		ID:            id.NewMessageID(),
		Name:          "NoSuchMessage",
		CorrelationID: id.NewSubscriberID(),
		Payload:       []byte(`{}`),
	}
	if err := eng.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle = %v, want nil for unknown name", err)
	}
	if store.Count() != 0 {
		t.Fatalf("instances = %d, want 0", store.Count())
	}
}
