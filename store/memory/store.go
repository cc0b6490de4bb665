// Package memory provides fully in-memory store implementations: a
// per-workflow saga store, the dead letter queue, and the subscriber
// registry. Safe for concurrent access. Intended for unit testing and
// development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrEshboboyev/newsletter"
	"github.com/MrEshboboyev/newsletter/dlq"
	"github.com/MrEshboboyev/newsletter/id"
	"github.com/MrEshboboyev/newsletter/subscriber"
)

var (
	_ dlq.Store           = (*Store)(nil)
	_ subscriber.Registry = (*Store)(nil)
)

// Store holds the dead letter queue and the subscriber registry.
// Saga records live in the separate, per-workflow SagaStore.
type Store struct {
	mu sync.RWMutex

	dlqs map[string]*dlq.Entry
	subs map[string]*subscriber.Subscriber
	// emails indexes subscriber ids by address for uniqueness and lookup.
	emails map[string]string
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		dlqs:   make(map[string]*dlq.Entry),
		subs:   make(map[string]*subscriber.Subscriber),
		emails: make(map[string]string),
	}
}

// ──────────────────────────────────────────────────
// DLQ Store
// ──────────────────────────────────────────────────

// PushDLQ adds a failed delivery entry.
func (m *Store) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	m.dlqs[entry.ID.String()] = &cp
	return nil
}

// ListDLQ returns entries matching opts, oldest failure first.
func (m *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]*dlq.Entry, 0, len(m.dlqs))
	for _, e := range m.dlqs {
		if opts.Consumer != "" && e.Consumer != opts.Consumer {
			continue
		}
		cp := *e
		entries = append(entries, &cp)
	}

	sort.Slice(entries, func(i, k int) bool {
		return entries[i].FailedAt.Before(entries[k].FailedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(entries) {
			return nil, nil
		}
		entries = entries[opts.Offset:]
	}
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// GetDLQ retrieves an entry by ID.
func (m *Store) GetDLQ(_ context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return nil, newsletter.ErrDLQNotFound
	}
	cp := *e
	return &cp, nil
}

// ReplayDLQ marks an entry as replayed.
func (m *Store) ReplayDLQ(_ context.Context, entryID id.DLQID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return newsletter.ErrDLQNotFound
	}
	now := time.Now().UTC()
	e.ReplayedAt = &now
	return nil
}

// PurgeDLQ removes entries that failed before the given time.
func (m *Store) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for key, e := range m.dlqs {
		if e.FailedAt.Before(before) {
			delete(m.dlqs, key)
			removed++
		}
	}
	return removed, nil
}

// CountDLQ returns the number of entries.
func (m *Store) CountDLQ(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.dlqs)), nil
}

// ──────────────────────────────────────────────────
// Subscriber Registry
// ──────────────────────────────────────────────────

// CreateSubscriber persists a new subscriber.
func (m *Store) CreateSubscriber(_ context.Context, sub *subscriber.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sub.ID.String()
	if _, exists := m.subs[key]; exists {
		return newsletter.ErrSubscriberExists
	}
	if _, exists := m.emails[sub.Email]; exists {
		return newsletter.ErrSubscriberExists
	}
	cp := *sub
	m.subs[key] = &cp
	m.emails[sub.Email] = key
	return nil
}

// GetSubscriber retrieves a subscriber by id.
func (m *Store) GetSubscriber(_ context.Context, subID id.SubscriberID) (*subscriber.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.subs[subID.String()]
	if !ok {
		return nil, newsletter.ErrSubscriberNotFound
	}
	cp := *sub
	return &cp, nil
}

// GetSubscriberByEmail retrieves a subscriber by address.
func (m *Store) GetSubscriberByEmail(_ context.Context, email string) (*subscriber.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, ok := m.emails[email]
	if !ok {
		return nil, newsletter.ErrSubscriberNotFound
	}
	cp := *m.subs[key]
	return &cp, nil
}

// ListSubscribers returns all subscribers ordered by creation time.
func (m *Store) ListSubscribers(_ context.Context) ([]*subscriber.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subs := make([]*subscriber.Subscriber, 0, len(m.subs))
	for _, sub := range m.subs {
		cp := *sub
		subs = append(subs, &cp)
	}
	sort.Slice(subs, func(i, k int) bool {
		return subs[i].CreatedAt.Before(subs[k].CreatedAt)
	})
	return subs, nil
}

// CountSubscribers returns the number of registered subscribers.
func (m *Store) CountSubscribers(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.subs)), nil
}
