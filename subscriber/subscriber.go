// Package subscriber holds the subscriber registry contract and the intake
// consumer that turns subscription requests into onboarding triggers.
package subscriber

import (
	"context"
	"time"

	"github.com/MrEshboboyev/newsletter/id"
)

// Subscriber is one registered newsletter subscriber.
type Subscriber struct {
	ID        id.SubscriberID `json:"id"`
	Email     string          `json:"email"`
	CreatedAt time.Time       `json:"created_at"`
}

// Registry defines the persistence contract for subscriber records.
type Registry interface {
	// CreateSubscriber persists a new subscriber.
	// Returns newsletter.ErrSubscriberExists if the id or email is taken.
	CreateSubscriber(ctx context.Context, sub *Subscriber) error

	// GetSubscriber retrieves a subscriber by id.
	// Returns newsletter.ErrSubscriberNotFound if none exists.
	GetSubscriber(ctx context.Context, subID id.SubscriberID) (*Subscriber, error)

	// GetSubscriberByEmail retrieves a subscriber by email.
	// Returns newsletter.ErrSubscriberNotFound if none exists.
	GetSubscriberByEmail(ctx context.Context, email string) (*Subscriber, error)

	// ListSubscribers returns all subscribers ordered by creation time.
	ListSubscribers(ctx context.Context) ([]*Subscriber, error)

	// CountSubscribers returns the number of registered subscribers.
	CountSubscribers(ctx context.Context) (int64, error)
}
