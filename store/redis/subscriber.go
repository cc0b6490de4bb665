package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/MrEshboboyev/newsletter"
	"github.com/MrEshboboyev/newsletter/id"
	"github.com/MrEshboboyev/newsletter/subscriber"
)

// CreateSubscriber persists a new subscriber. Email uniqueness is claimed
// with HSETNX on the email index before the entity is written, so a racing
// duplicate loses at the index and never writes an entity.
func (s *Store) CreateSubscriber(ctx context.Context, sub *subscriber.Subscriber) error {
	sID := sub.ID.String()

	claimed, err := s.client.HSetNX(ctx, subscriberEmailsKey, sub.Email, sID).Result()
	if err != nil {
		return fmt.Errorf("redis: create subscriber claim email: %w", err)
	}
	if !claimed {
		return newsletter.ErrSubscriberExists
	}

	exists, err := s.client.Exists(ctx, subscriberKey(sID)).Result()
	if err != nil {
		return fmt.Errorf("redis: create subscriber exists: %w", err)
	}
	if exists > 0 {
		return newsletter.ErrSubscriberExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, subscriberKey(sID), subscriberToMap(sub))
	pipe.SAdd(ctx, subscriberIDsKey, sID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: create subscriber: %w", err)
	}
	return nil
}

// GetSubscriber retrieves a subscriber by id.
func (s *Store) GetSubscriber(ctx context.Context, subID id.SubscriberID) (*subscriber.Subscriber, error) {
	vals, err := s.client.HGetAll(ctx, subscriberKey(subID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get subscriber: %w", err)
	}
	if len(vals) == 0 {
		return nil, newsletter.ErrSubscriberNotFound
	}
	return mapToSubscriber(vals)
}

// GetSubscriberByEmail retrieves a subscriber by email via the email index.
func (s *Store) GetSubscriberByEmail(ctx context.Context, email string) (*subscriber.Subscriber, error) {
	sID, err := s.client.HGet(ctx, subscriberEmailsKey, email).Result()
	if err != nil || sID == "" {
		return nil, newsletter.ErrSubscriberNotFound
	}
	subID, err := id.ParseSubscriberID(sID)
	if err != nil {
		return nil, fmt.Errorf("redis: get subscriber by email: %w", err)
	}
	return s.GetSubscriber(ctx, subID)
}

// ListSubscribers returns all subscribers ordered by creation time.
func (s *Store) ListSubscribers(ctx context.Context) ([]*subscriber.Subscriber, error) {
	ids, err := s.client.SMembers(ctx, subscriberIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list subscribers: %w", err)
	}

	subs := make([]*subscriber.Subscriber, 0, len(ids))
	for _, sID := range ids {
		vals, getErr := s.client.HGetAll(ctx, subscriberKey(sID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		sub, convErr := mapToSubscriber(vals)
		if convErr != nil {
			continue
		}
		subs = append(subs, sub)
	}

	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
	return subs, nil
}

// CountSubscribers returns the number of registered subscribers.
func (s *Store) CountSubscribers(ctx context.Context) (int64, error) {
	count, err := s.client.SCard(ctx, subscriberIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: count subscribers: %w", err)
	}
	return count, nil
}

// ── helpers ──

func subscriberToMap(sub *subscriber.Subscriber) map[string]interface{} {
	return map[string]interface{}{
		"id":         sub.ID.String(),
		"email":      sub.Email,
		"created_at": sub.CreatedAt.Format(time.RFC3339Nano),
	}
}

func mapToSubscriber(m map[string]string) (*subscriber.Subscriber, error) {
	subID, err := id.ParseSubscriberID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("redis: parse subscriber id: %w", err)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	return &subscriber.Subscriber{
		ID:        subID,
		Email:     m["email"],
		CreatedAt: createdAt,
	}, nil
}
