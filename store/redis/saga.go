package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrEshboboyev/newsletter"
	"github.com/MrEshboboyev/newsletter/id"
	"github.com/MrEshboboyev/newsletter/saga"
)

// SagaStore persists one workflow's instances as JSON string values, one key
// per instance. Optimistic concurrency rides on WATCH: the update transaction
// aborts when another writer touches the key, and a stored version that no
// longer matches the caller's fails the compare without writing.
type SagaStore[T any] struct {
	store    *Store
	workflow string
}

var _ saga.Store[struct{}] = (*SagaStore[struct{}])(nil)

// NewSagaStore creates the saga store for the named workflow.
func NewSagaStore[T any](store *Store, workflow string) *SagaStore[T] {
	return &SagaStore[T]{store: store, workflow: workflow}
}

// errVersionConflict aborts a Watch transaction when the stored version does
// not match the caller's. Internal to CompareAndUpdate.
var errVersionConflict = errors.New("version conflict")

// Get retrieves the record for a correlation id.
func (s *SagaStore[T]) Get(ctx context.Context, correlationID id.SubscriberID) (*saga.Record[T], error) {
	raw, err := s.store.client.Get(ctx, sagaKey(s.workflow, correlationID.String())).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, newsletter.ErrInstanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get saga %s/%s: %w", s.workflow, correlationID, err)
	}

	rec := &saga.Record[T]{}
	if err := json.Unmarshal([]byte(raw), rec); err != nil {
		return nil, fmt.Errorf("redis: decode saga %s/%s: %w", s.workflow, correlationID, err)
	}
	return rec, nil
}

// CreateIfAbsent persists a new record unless one already exists.
func (s *SagaStore[T]) CreateIfAbsent(ctx context.Context, rec *saga.Record[T]) (bool, error) {
	stored := rec.Clone()
	stored.Version = 1
	raw, err := json.Marshal(stored)
	if err != nil {
		return false, fmt.Errorf("redis: encode saga %s/%s: %w", s.workflow, rec.CorrelationID, err)
	}

	created, err := s.store.client.SetNX(ctx, sagaKey(s.workflow, rec.CorrelationID.String()), raw, 0).Result()
	if err != nil {
		return false, fmt.Errorf("redis: create saga %s/%s: %w", s.workflow, rec.CorrelationID, err)
	}
	if !created {
		return false, nil
	}
	rec.Version = 1
	return true, nil
}

// CompareAndUpdate persists rec iff the stored version matches rec.Version.
func (s *SagaStore[T]) CompareAndUpdate(ctx context.Context, rec *saga.Record[T]) (bool, error) {
	key := sagaKey(s.workflow, rec.CorrelationID.String())

	stored := rec.Clone()
	stored.Version = rec.Version + 1
	raw, err := json.Marshal(stored)
	if err != nil {
		return false, fmt.Errorf("redis: encode saga %s/%s: %w", s.workflow, rec.CorrelationID, err)
	}

	err = s.store.client.Watch(ctx, func(tx *goredis.Tx) error {
		cur, getErr := tx.Get(ctx, key).Result()
		if errors.Is(getErr, goredis.Nil) {
			return newsletter.ErrInstanceNotFound
		}
		if getErr != nil {
			return getErr
		}

		// Only the version field matters for the compare.
		var head struct {
			Version int64 `json:"version"`
		}
		if decErr := json.Unmarshal([]byte(cur), &head); decErr != nil {
			return decErr
		}
		if head.Version != rec.Version {
			return errVersionConflict
		}

		_, execErr := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			return nil
		})
		return execErr
	}, key)

	switch {
	case errors.Is(err, errVersionConflict), errors.Is(err, goredis.TxFailedErr):
		return false, nil
	case errors.Is(err, newsletter.ErrInstanceNotFound):
		return false, err
	case err != nil:
		return false, fmt.Errorf("redis: update saga %s/%s: %w", s.workflow, rec.CorrelationID, err)
	}

	rec.Version++
	return true, nil
}
