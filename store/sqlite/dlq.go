package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEshboboyev/newsletter"
	"github.com/MrEshboboyev/newsletter/dlq"
	"github.com/MrEshboboyev/newsletter/id"
)

var _ dlq.Store = (*Store)(nil)

// PushDLQ adds a failed delivery entry to the dead letter queue.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dlq_entries
			(id, message_id, name, consumer, correlation_id, payload, error,
			 attempts, failed_at, replayed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(), entry.MessageID.String(), entry.Name, entry.Consumer,
		entry.CorrelationID.String(), string(entry.Payload), entry.Error,
		entry.Attempts, toMillis(entry.FailedAt), toNullMillis(entry.ReplayedAt),
		toMillis(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns DLQ entries matching the given options, oldest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	var (
		where []string
		args  []any
	)
	if opts.Consumer != "" {
		where = append(where, "consumer = ?")
		args = append(args, opts.Consumer)
	}

	query := `
		SELECT id, message_id, name, consumer, correlation_id, payload, error,
			attempts, failed_at, replayed_at, created_at
		FROM dlq_entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY failed_at ASC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list dlq: %w", err)
	}
	defer rows.Close()

	var entries []*dlq.Entry
	for rows.Next() {
		entry, err := scanDLQEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: list dlq: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetDLQ retrieves a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, message_id, name, consumer, correlation_id, payload, error,
			attempts, failed_at, replayed_at, created_at
		FROM dlq_entries
		WHERE id = ?`,
		entryID.String(),
	)
	entry, err := scanDLQEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newsletter.ErrDLQNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get dlq: %w", err)
	}
	return entry, nil
}

// ReplayDLQ marks a DLQ entry as replayed.
func (s *Store) ReplayDLQ(ctx context.Context, entryID id.DLQID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dlq_entries SET replayed_at = ? WHERE id = ?`,
		toMillis(time.Now().UTC()), entryID.String(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: replay dlq: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: replay dlq: %w", err)
	}
	if affected == 0 {
		return newsletter.ErrDLQNotFound
	}
	return nil
}

// PurgeDLQ removes entries that failed before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM dlq_entries WHERE failed_at < ?`,
		toMillis(before),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: purge dlq: %w", err)
	}
	return res.RowsAffected()
}

// CountDLQ returns the total number of entries.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dlq_entries`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count dlq: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDLQEntry(row rowScanner) (*dlq.Entry, error) {
	var (
		entryID       string
		messageID     string
		name          string
		consumer      string
		correlationID string
		payload       sql.NullString
		errMsg        string
		attempts      int
		failedAt      int64
		replayedAt    sql.NullInt64
		createdAt     int64
	)
	if err := row.Scan(&entryID, &messageID, &name, &consumer, &correlationID,
		&payload, &errMsg, &attempts, &failedAt, &replayedAt, &createdAt); err != nil {
		return nil, err
	}

	eid, err := id.ParseDLQID(entryID)
	if err != nil {
		return nil, err
	}
	mid, err := id.ParseMessageID(messageID)
	if err != nil {
		return nil, err
	}
	cid, err := id.ParseSubscriberID(correlationID)
	if err != nil {
		return nil, err
	}

	entry := &dlq.Entry{
		ID:            eid,
		MessageID:     mid,
		Name:          name,
		Consumer:      consumer,
		CorrelationID: cid,
		Error:         errMsg,
		Attempts:      attempts,
		FailedAt:      fromMillis(failedAt),
		ReplayedAt:    fromNullMillis(replayedAt),
		CreatedAt:     fromMillis(createdAt),
	}
	if payload.Valid {
		entry.Payload = []byte(payload.String)
	}
	return entry, nil
}
