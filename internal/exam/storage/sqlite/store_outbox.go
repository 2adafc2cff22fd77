package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/examroom/internal/exam/storage"
)

// EnqueueOutboxEvent stores one pending completion notification row.
func (s *Store) EnqueueOutboxEvent(ctx context.Context, event storage.OutboxEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(event.ID) == "" {
		return fmt.Errorf("outbox event id is required")
	}
	if strings.TrimSpace(event.Topic) == "" {
		return fmt.Errorf("outbox topic is required")
	}

	status := event.Status
	if status == "" {
		status = storage.OutboxStatusPending
	}
	payload := event.PayloadJSON
	if payload == "" {
		payload = "{}"
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO exam_completion_outbox (
	id, topic, exam_id, payload_json, status, attempt_count, next_attempt_at,
	lease_owner, lease_expires_at, last_error, processed_at, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		event.ID,
		event.Topic,
		event.ExamID,
		payload,
		status,
		event.AttemptCount,
		toMillis(event.NextAttemptAt),
		event.LeaseOwner,
		toNullMillis(event.LeaseExpires),
		event.LastError,
		toNullMillis(event.ProcessedAt),
		toMillis(event.CreatedAt),
		toMillis(event.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("enqueue outbox event: %w", err)
	}
	return nil
}

// LeaseOutboxEvents claims up to limit due pending events for one worker.
// A row is due when its next attempt time has passed and no live lease is
// held by another worker.
func (s *Store) LeaseOutboxEvents(ctx context.Context, consumer string, limit int, now time.Time, leaseTTL time.Duration) ([]storage.OutboxEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(consumer) == "" {
		return nil, fmt.Errorf("consumer is required")
	}
	if limit <= 0 {
		return nil, nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	nowMillis := toMillis(now)
	rows, err := tx.QueryContext(ctx, `
SELECT id
FROM exam_completion_outbox
WHERE status = ?
	AND next_attempt_at <= ?
	AND (lease_expires_at IS NULL OR lease_expires_at <= ? OR lease_owner = ?)
ORDER BY next_attempt_at ASC, created_at ASC
LIMIT ?
`, storage.OutboxStatusPending, nowMillis, nowMillis, consumer, limit)
	if err != nil {
		return nil, fmt.Errorf("select due outbox events: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan outbox id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate outbox ids: %w", err)
	}
	_ = rows.Close()

	if len(ids) == 0 {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		return nil, nil
	}

	leaseExpires := toMillis(now.Add(leaseTTL))
	events := make([]storage.OutboxEvent, 0, len(ids))
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `
UPDATE exam_completion_outbox
SET lease_owner = ?, lease_expires_at = ?, attempt_count = attempt_count + 1, updated_at = ?
WHERE id = ?
`, consumer, leaseExpires, nowMillis, id); err != nil {
			return nil, fmt.Errorf("lease outbox event: %w", err)
		}

		event, err := scanOutboxEvent(tx.QueryRowContext(ctx, `
SELECT id, topic, exam_id, payload_json, status, attempt_count, next_attempt_at,
	lease_owner, lease_expires_at, last_error, processed_at, created_at, updated_at
FROM exam_completion_outbox
WHERE id = ?
`, id).Scan)
		if err != nil {
			return nil, fmt.Errorf("load leased outbox event: %w", err)
		}
		events = append(events, event)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return events, nil
}

// MarkOutboxDelivered finalizes a delivered event.
func (s *Store) MarkOutboxDelivered(ctx context.Context, id string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("outbox event id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE exam_completion_outbox
SET status = ?, lease_owner = '', lease_expires_at = NULL, last_error = '',
	processed_at = ?, updated_at = ?
WHERE id = ?
`, storage.OutboxStatusDelivered, toMillis(now), toMillis(now), id)
	if err != nil {
		return fmt.Errorf("mark outbox delivered: %w", err)
	}
	return requireRowAffected(result)
}

// MarkOutboxFailed records a delivery failure and schedules a retry.
func (s *Store) MarkOutboxFailed(ctx context.Context, id string, failure string, nextAttemptAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("outbox event id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE exam_completion_outbox
SET lease_owner = '', lease_expires_at = NULL, last_error = ?,
	next_attempt_at = ?, updated_at = ?
WHERE id = ?
`, failure, toMillis(nextAttemptAt), toMillis(nextAttemptAt), id)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return requireRowAffected(result)
}

func requireRowAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanOutboxEvent(scan func(dest ...any) error) (storage.OutboxEvent, error) {
	var event storage.OutboxEvent
	var nextAttemptAt, createdAt, updatedAt int64
	var leaseExpires, processedAt sql.NullInt64

	err := scan(
		&event.ID,
		&event.Topic,
		&event.ExamID,
		&event.PayloadJSON,
		&event.Status,
		&event.AttemptCount,
		&nextAttemptAt,
		&event.LeaseOwner,
		&leaseExpires,
		&event.LastError,
		&processedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.OutboxEvent{}, storage.ErrNotFound
		}
		return storage.OutboxEvent{}, err
	}

	event.NextAttemptAt = fromMillis(nextAttemptAt)
	event.LeaseExpires = fromNullMillis(leaseExpires)
	event.ProcessedAt = fromNullMillis(processedAt)
	event.CreatedAt = fromMillis(createdAt)
	event.UpdatedAt = fromMillis(updatedAt)
	return event, nil
}
