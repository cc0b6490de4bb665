package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEshboboyev/newsletter"
	"github.com/MrEshboboyev/newsletter/dlq"
	"github.com/MrEshboboyev/newsletter/id"
	"github.com/MrEshboboyev/newsletter/onboarding"
	"github.com/MrEshboboyev/newsletter/saga"
	"github.com/MrEshboboyev/newsletter/subscriber"
)

func newRecord(subID id.SubscriberID) *saga.Record[onboarding.BasicInstance] {
	now := time.Now().UTC()
	return &saga.Record[onboarding.BasicInstance]{
		CorrelationID: subID,
		State:         onboarding.StateWelcoming,
		Data:          &onboarding.BasicInstance{Email: "a@example.com"},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestSagaStoreGetMissing(t *testing.T) {
	s := NewSagaStore[onboarding.BasicInstance]()
	_, err := s.Get(context.Background(), id.NewSubscriberID())
	if !errors.Is(err, newsletter.ErrInstanceNotFound) {
		t.Fatalf("err = %v, want ErrInstanceNotFound", err)
	}
}

func TestSagaStoreCreateIfAbsent(t *testing.T) {
	s := NewSagaStore[onboarding.BasicInstance]()
	subID := id.NewSubscriberID()
	rec := newRecord(subID)

	created, err := s.CreateIfAbsent(context.Background(), rec)
	if err != nil || !created {
		t.Fatalf("CreateIfAbsent = %v, %v", created, err)
	}
	if rec.Version != 1 {
		t.Fatalf("version = %d, want 1", rec.Version)
	}

	dup := newRecord(subID)
	created, err = s.CreateIfAbsent(context.Background(), dup)
	if err != nil {
		t.Fatalf("duplicate CreateIfAbsent: %v", err)
	}
	if created {
		t.Fatal("duplicate create reported success")
	}
	if s.Count() != 1 {
		t.Fatalf("count = %d, want 1", s.Count())
	}
}

func TestSagaStoreCompareAndUpdate(t *testing.T) {
	s := NewSagaStore[onboarding.BasicInstance]()
	subID := id.NewSubscriberID()
	rec := newRecord(subID)
	if _, err := s.CreateIfAbsent(context.Background(), rec); err != nil {
		t.Fatalf("CreateIfAbsent: %v", err)
	}

	rec.State = onboarding.StateFollowingUp
	ok, err := s.CompareAndUpdate(context.Background(), rec)
	if err != nil || !ok {
		t.Fatalf("CompareAndUpdate = %v, %v", ok, err)
	}
	if rec.Version != 2 {
		t.Fatalf("version = %d, want 2", rec.Version)
	}

	// A stale writer must lose.
	stale := newRecord(subID)
	stale.Version = 1
	stale.State = onboarding.StateFaulted
	ok, err = s.CompareAndUpdate(context.Background(), stale)
	if err != nil {
		t.Fatalf("stale CompareAndUpdate: %v", err)
	}
	if ok {
		t.Fatal("stale write succeeded")
	}

	got, err := s.Get(context.Background(), subID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != onboarding.StateFollowingUp {
		t.Fatalf("state = %s, want %s", got.State, onboarding.StateFollowingUp)
	}
}

func TestSagaStoreCompareAndUpdateMissing(t *testing.T) {
	s := NewSagaStore[onboarding.BasicInstance]()
	rec := newRecord(id.NewSubscriberID())
	rec.Version = 1
	_, err := s.CompareAndUpdate(context.Background(), rec)
	if !errors.Is(err, newsletter.ErrInstanceNotFound) {
		t.Fatalf("err = %v, want ErrInstanceNotFound", err)
	}
}

func TestSagaStoreIsolatesCallers(t *testing.T) {
	s := NewSagaStore[onboarding.BasicInstance]()
	subID := id.NewSubscriberID()
	rec := newRecord(subID)
	if _, err := s.CreateIfAbsent(context.Background(), rec); err != nil {
		t.Fatalf("CreateIfAbsent: %v", err)
	}

	got, err := s.Get(context.Background(), subID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.Data.Email = "mutated@example.com"
	got.State = onboarding.StateFaulted

	again, err := s.Get(context.Background(), subID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again.Data.Email != "a@example.com" || again.State != onboarding.StateWelcoming {
		t.Fatal("caller mutation leaked into store")
	}
}

func TestDLQPushListReplay(t *testing.T) {
	s := New()
	ctx := context.Background()

	first := &dlq.Entry{
		ID:       id.NewDLQID(),
		Consumer: "welcome-email",
		FailedAt: time.Now().UTC().Add(-time.Hour),
	}
	second := &dlq.Entry{
		ID:       id.NewDLQID(),
		Consumer: "follow-up-email",
		FailedAt: time.Now().UTC(),
	}
	for _, e := range []*dlq.Entry{second, first} {
		if err := s.PushDLQ(ctx, e); err != nil {
			t.Fatalf("PushDLQ: %v", err)
		}
	}

	all, err := s.ListDLQ(ctx, dlq.ListOpts{})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(all) != 2 || all[0].ID.String() != first.ID.String() {
		t.Fatalf("list order wrong: %+v", all)
	}

	filtered, err := s.ListDLQ(ctx, dlq.ListOpts{Consumer: "welcome-email"})
	if err != nil {
		t.Fatalf("ListDLQ filtered: %v", err)
	}
	if len(filtered) != 1 {
		t.Fatalf("filtered = %d entries, want 1", len(filtered))
	}

	if err := s.ReplayDLQ(ctx, first.ID); err != nil {
		t.Fatalf("ReplayDLQ: %v", err)
	}
	got, err := s.GetDLQ(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetDLQ: %v", err)
	}
	if got.ReplayedAt == nil {
		t.Fatal("ReplayedAt not set")
	}

	if err := s.ReplayDLQ(ctx, id.NewDLQID()); !errors.Is(err, newsletter.ErrDLQNotFound) {
		t.Fatalf("replay missing = %v, want ErrDLQNotFound", err)
	}
}

func TestDLQPurge(t *testing.T) {
	s := New()
	ctx := context.Background()
	cutoff := time.Now().UTC()

	old := &dlq.Entry{ID: id.NewDLQID(), FailedAt: cutoff.Add(-time.Hour)}
	fresh := &dlq.Entry{ID: id.NewDLQID(), FailedAt: cutoff.Add(time.Hour)}
	for _, e := range []*dlq.Entry{old, fresh} {
		if err := s.PushDLQ(ctx, e); err != nil {
			t.Fatalf("PushDLQ: %v", err)
		}
	}

	removed, err := s.PurgeDLQ(ctx, cutoff)
	if err != nil {
		t.Fatalf("PurgeDLQ: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	count, err := s.CountDLQ(ctx)
	if err != nil {
		t.Fatalf("CountDLQ: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestSubscriberRegistry(t *testing.T) {
	s := New()
	ctx := context.Background()

	sub := &subscriber.Subscriber{
		ID:        id.NewSubscriberID(),
		Email:     "a@example.com",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateSubscriber(ctx, sub); err != nil {
		t.Fatalf("CreateSubscriber: %v", err)
	}
	if err := s.CreateSubscriber(ctx, sub); !errors.Is(err, newsletter.ErrSubscriberExists) {
		t.Fatalf("duplicate id = %v, want ErrSubscriberExists", err)
	}

	sameEmail := &subscriber.Subscriber{
		ID:        id.NewSubscriberID(),
		Email:     "a@example.com",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateSubscriber(ctx, sameEmail); !errors.Is(err, newsletter.ErrSubscriberExists) {
		t.Fatalf("duplicate email = %v, want ErrSubscriberExists", err)
	}

	got, err := s.GetSubscriberByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("GetSubscriberByEmail: %v", err)
	}
	if got.ID.String() != sub.ID.String() {
		t.Fatalf("id = %s, want %s", got.ID, sub.ID)
	}

	if _, err := s.GetSubscriber(ctx, id.NewSubscriberID()); !errors.Is(err, newsletter.ErrSubscriberNotFound) {
		t.Fatalf("missing = %v, want ErrSubscriberNotFound", err)
	}

	count, err := s.CountSubscribers(ctx)
	if err != nil {
		t.Fatalf("CountSubscribers: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}
