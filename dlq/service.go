package dlq

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEshboboyev/newsletter/id"
	"github.com/MrEshboboyev/newsletter/message"
)

// Publisher re-delivers a replayed envelope. Satisfied by *bus.Bus.
type Publisher interface {
	Publish(ctx context.Context, env *message.Envelope) error
}

// Service provides high-level DLQ operations over a Store.
type Service struct {
	store Store
}

// NewService creates a DLQ service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Push builds a DLQ Entry from a failed delivery and persists it.
// The error string is captured from the final consumer error.
func (s *Service) Push(ctx context.Context, consumer string, env *message.Envelope, attempts int, deliveryErr error) error {
	now := time.Now().UTC()
	entry := &Entry{
		ID:            id.NewDLQID(),
		MessageID:     env.ID,
		Name:          env.Name,
		Consumer:      consumer,
		CorrelationID: env.CorrelationID,
		Payload:       env.Payload,
		Error:         deliveryErr.Error(),
		Attempts:      attempts,
		FailedAt:      now,
		CreatedAt:     now,
	}
	return s.store.PushDLQ(ctx, entry)
}

// Replay marks an entry as replayed and re-publishes its message through
// the given publisher. The replayed envelope keeps the original message id
// so downstream idempotency applies.
func (s *Service) Replay(ctx context.Context, entryID id.DLQID, pub Publisher) error {
	entry, err := s.store.GetDLQ(ctx, entryID)
	if err != nil {
		return err
	}

	env := &message.Envelope{
		ID:            entry.MessageID,
		Name:          entry.Name,
		CorrelationID: entry.CorrelationID,
		Payload:       entry.Payload,
		CreatedAt:     entry.CreatedAt,
	}

	if err := pub.Publish(ctx, env); err != nil {
		return fmt.Errorf("dlq: replay %s: %w", entryID, err)
	}

	return s.store.ReplayDLQ(ctx, entryID)
}

// DLQStore returns the underlying DLQ store for direct access
// to List, Get, Purge, and Count operations.
func (s *Service) DLQStore() Store {
	return s.store
}
