package memory

import (
	"context"
	"sync"

	"github.com/MrEshboboyev/newsletter"
	"github.com/MrEshboboyev/newsletter/id"
	"github.com/MrEshboboyev/newsletter/saga"
)

// SagaStore is an in-memory saga.Store for one workflow type. Safe for
// concurrent access. Intended for unit testing and development.
type SagaStore[T any] struct {
	mu   sync.RWMutex
	recs map[string]*saga.Record[T]
}

var _ saga.Store[struct{}] = (*SagaStore[struct{}])(nil)

// NewSagaStore returns a new empty SagaStore.
func NewSagaStore[T any]() *SagaStore[T] {
	return &SagaStore[T]{recs: make(map[string]*saga.Record[T])}
}

// Get retrieves the record for a correlation id.
func (s *SagaStore[T]) Get(_ context.Context, correlationID id.SubscriberID) (*saga.Record[T], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.recs[correlationID.String()]
	if !ok {
		return nil, newsletter.ErrInstanceNotFound
	}
	return copyRecord(rec), nil
}

// CreateIfAbsent persists a new record unless one already exists.
func (s *SagaStore[T]) CreateIfAbsent(_ context.Context, rec *saga.Record[T]) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.CorrelationID.String()
	if _, exists := s.recs[key]; exists {
		return false, nil
	}
	cp := copyRecord(rec)
	cp.Version = 1
	s.recs[key] = cp
	rec.Version = 1
	return true, nil
}

// CompareAndUpdate persists rec iff the stored version matches rec.Version.
func (s *SagaStore[T]) CompareAndUpdate(_ context.Context, rec *saga.Record[T]) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.CorrelationID.String()
	cur, ok := s.recs[key]
	if !ok {
		return false, newsletter.ErrInstanceNotFound
	}
	if cur.Version != rec.Version {
		return false, nil
	}
	cp := copyRecord(rec)
	cp.Version = rec.Version + 1
	s.recs[key] = cp
	rec.Version = cp.Version
	return true, nil
}

// Count returns the number of stored instances.
func (s *SagaStore[T]) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recs)
}

// copyRecord isolates stored records from caller mutation. Instance data is
// copied by value; transitions replace slice fields rather than mutating
// them in place, so a value copy is sufficient.
func copyRecord[T any](rec *saga.Record[T]) *saga.Record[T] {
	cp := rec.Clone()
	if rec.Data != nil {
		data := *rec.Data
		cp.Data = &data
	}
	return cp
}
