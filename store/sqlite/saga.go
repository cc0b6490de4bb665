package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrEshboboyev/newsletter"
	"github.com/MrEshboboyev/newsletter/id"
	"github.com/MrEshboboyev/newsletter/saga"
)

// SagaStore persists one workflow's instances in the shared saga_instances
// table, discriminated by workflow name. Optimistic concurrency rides on
// the version column: updates are guarded by WHERE version = ? and a zero
// RowsAffected means the writer lost the race.
type SagaStore[T any] struct {
	store    *Store
	workflow string
}

var _ saga.Store[struct{}] = (*SagaStore[struct{}])(nil)

// NewSagaStore creates the saga store for the named workflow.
func NewSagaStore[T any](store *Store, workflow string) *SagaStore[T] {
	return &SagaStore[T]{store: store, workflow: workflow}
}

// Get retrieves the record for a correlation id.
func (s *SagaStore[T]) Get(ctx context.Context, correlationID id.SubscriberID) (*saga.Record[T], error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT state, version, data, outbox, created_at, updated_at, completed_at
		FROM saga_instances
		WHERE workflow = ? AND correlation_id = ?`,
		s.workflow, correlationID.String(),
	)

	var (
		state       string
		version     int64
		data        []byte
		outbox      sql.NullString
		createdAt   int64
		updatedAt   int64
		completedAt sql.NullInt64
	)
	err := row.Scan(&state, &version, &data, &outbox, &createdAt, &updatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newsletter.ErrInstanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get saga %s/%s: %w", s.workflow, correlationID, err)
	}

	rec := &saga.Record[T]{
		CorrelationID: correlationID,
		State:         saga.State(state),
		Version:       version,
		Data:          new(T),
		CreatedAt:     fromMillis(createdAt),
		UpdatedAt:     fromMillis(updatedAt),
		CompletedAt:   fromNullMillis(completedAt),
	}
	if err := json.Unmarshal(data, rec.Data); err != nil {
		return nil, fmt.Errorf("sqlite: decode saga data %s/%s: %w", s.workflow, correlationID, err)
	}
	if outbox.Valid && outbox.String != "" {
		if err := json.Unmarshal([]byte(outbox.String), &rec.Outbox); err != nil {
			return nil, fmt.Errorf("sqlite: decode saga outbox %s/%s: %w", s.workflow, correlationID, err)
		}
	}
	return rec, nil
}

// CreateIfAbsent persists a new record unless one already exists.
func (s *SagaStore[T]) CreateIfAbsent(ctx context.Context, rec *saga.Record[T]) (bool, error) {
	data, outbox, err := encodeRecord(rec)
	if err != nil {
		return false, err
	}

	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO saga_instances
			(workflow, correlation_id, state, version, data, outbox, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?)
		ON CONFLICT (workflow, correlation_id) DO NOTHING`,
		s.workflow, rec.CorrelationID.String(), string(rec.State),
		data, outbox, toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt),
		toNullMillis(rec.CompletedAt),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: create saga %s/%s: %w", s.workflow, rec.CorrelationID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: create saga %s/%s: %w", s.workflow, rec.CorrelationID, err)
	}
	if affected == 0 {
		return false, nil
	}
	rec.Version = 1
	return true, nil
}

// CompareAndUpdate persists rec iff the stored version matches rec.Version.
func (s *SagaStore[T]) CompareAndUpdate(ctx context.Context, rec *saga.Record[T]) (bool, error) {
	data, outbox, err := encodeRecord(rec)
	if err != nil {
		return false, err
	}

	res, err := s.store.db.ExecContext(ctx, `
		UPDATE saga_instances
		SET state = ?, version = version + 1, data = ?, outbox = ?,
			updated_at = ?, completed_at = ?
		WHERE workflow = ? AND correlation_id = ? AND version = ?`,
		string(rec.State), data, outbox,
		toMillis(rec.UpdatedAt), toNullMillis(rec.CompletedAt),
		s.workflow, rec.CorrelationID.String(), rec.Version,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: update saga %s/%s: %w", s.workflow, rec.CorrelationID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: update saga %s/%s: %w", s.workflow, rec.CorrelationID, err)
	}
	if affected == 0 {
		return false, nil
	}
	rec.Version++
	return true, nil
}

// CountByState returns the number of instances per state for monitoring.
func (s *SagaStore[T]) CountByState(ctx context.Context) (map[saga.State]int64, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT state, COUNT(*)
		FROM saga_instances
		WHERE workflow = ?
		GROUP BY state`,
		s.workflow,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: count saga %s: %w", s.workflow, err)
	}
	defer rows.Close()

	counts := make(map[saga.State]int64)
	for rows.Next() {
		var (
			state string
			n     int64
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("sqlite: count saga %s: %w", s.workflow, err)
		}
		counts[saga.State(state)] = n
	}
	return counts, rows.Err()
}

func encodeRecord[T any](rec *saga.Record[T]) (data string, outbox sql.NullString, err error) {
	raw, err := json.Marshal(rec.Data)
	if err != nil {
		return "", sql.NullString{}, fmt.Errorf("sqlite: encode saga data: %w", err)
	}
	if len(rec.Outbox) > 0 {
		rawOutbox, err := json.Marshal(rec.Outbox)
		if err != nil {
			return "", sql.NullString{}, fmt.Errorf("sqlite: encode saga outbox: %w", err)
		}
		outbox = sql.NullString{String: string(rawOutbox), Valid: true}
	}
	return string(raw), outbox, nil
}
