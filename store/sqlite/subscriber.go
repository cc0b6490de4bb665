package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MrEshboboyev/newsletter"
	"github.com/MrEshboboyev/newsletter/id"
	"github.com/MrEshboboyev/newsletter/subscriber"
)

var _ subscriber.Registry = (*Store)(nil)

// CreateSubscriber persists a new subscriber.
func (s *Store) CreateSubscriber(ctx context.Context, sub *subscriber.Subscriber) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers (id, email, created_at) VALUES (?, ?, ?)`,
		sub.ID.String(), sub.Email, toMillis(sub.CreatedAt),
	)
	if isDuplicateKey(err) {
		return newsletter.ErrSubscriberExists
	}
	if err != nil {
		return fmt.Errorf("sqlite: create subscriber: %w", err)
	}
	return nil
}

// GetSubscriber retrieves a subscriber by id.
func (s *Store) GetSubscriber(ctx context.Context, subID id.SubscriberID) (*subscriber.Subscriber, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, created_at FROM subscribers WHERE id = ?`,
		subID.String(),
	)
	sub, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newsletter.ErrSubscriberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get subscriber: %w", err)
	}
	return sub, nil
}

// GetSubscriberByEmail retrieves a subscriber by email.
func (s *Store) GetSubscriberByEmail(ctx context.Context, email string) (*subscriber.Subscriber, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, created_at FROM subscribers WHERE email = ?`,
		email,
	)
	sub, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newsletter.ErrSubscriberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get subscriber by email: %w", err)
	}
	return sub, nil
}

// ListSubscribers returns all subscribers ordered by creation time.
func (s *Store) ListSubscribers(ctx context.Context) ([]*subscriber.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email, created_at FROM subscribers ORDER BY created_at ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list subscribers: %w", err)
	}
	defer rows.Close()

	var subs []*subscriber.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: list subscribers: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// CountSubscribers returns the number of registered subscribers.
func (s *Store) CountSubscribers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscribers`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count subscribers: %w", err)
	}
	return count, nil
}

func scanSubscriber(row rowScanner) (*subscriber.Subscriber, error) {
	var (
		rawID     string
		email     string
		createdAt int64
	)
	if err := row.Scan(&rawID, &email, &createdAt); err != nil {
		return nil, err
	}

	subID, err := id.ParseSubscriberID(rawID)
	if err != nil {
		return nil, err
	}

	return &subscriber.Subscriber{
		ID:        subID,
		Email:     email,
		CreatedAt: fromMillis(createdAt),
	}, nil
}
