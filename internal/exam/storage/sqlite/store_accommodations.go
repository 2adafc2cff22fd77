package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/examroom/internal/exam/domain"
	"github.com/louisbranch/examroom/internal/exam/storage"
)

// CreateAccommodation inserts the immutable accommodation identity row.
func (s *Store) CreateAccommodation(ctx context.Context, acc domain.Accommodation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(acc.ID) == "" {
		return fmt.Errorf("accommodation id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO exam_accommodations (
	id, exam_id, segment_key, accommodation_type, accommodation_code,
	accommodation_value, allow_combine, allow_change, default_accommodation, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		acc.ID,
		acc.ExamID,
		acc.SegmentKey,
		acc.Type,
		acc.Code,
		acc.Value,
		boolToInt(acc.AllowCombine),
		boolToInt(acc.AllowChange),
		boolToInt(acc.DefaultAccommodation),
		toMillis(acc.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create accommodation: %w", err)
	}
	return nil
}

// AppendAccommodationEvent appends one full accommodation snapshot.
func (s *Store) AppendAccommodationEvent(ctx context.Context, state domain.AccommodationState) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(state.AccommodationID) == "" {
		return 0, fmt.Errorf("accommodation id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT 1 FROM exam_accommodations WHERE id = ?", state.AccommodationID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("check accommodation identity: %w", err)
	}

	seq, err := nextSeq(tx, "exam_accommodation_events", "accommodation_id = ?", state.AccommodationID)
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO exam_accommodation_events (accommodation_id, seq, denied_at, selectable, deleted_at, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`,
		state.AccommodationID,
		int64(seq),
		toNullMillis(state.DeniedAt),
		boolToInt(state.Selectable),
		toNullMillis(state.DeletedAt),
		toMillis(state.CreatedAt),
	); err != nil {
		return 0, fmt.Errorf("append accommodation event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return seq, nil
}

// LatestAccommodations projects all current non-deleted accommodations for an
// exam.
func (s *Store) LatestAccommodations(ctx context.Context, examID string) ([]storage.AccommodationView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(examID) == "" {
		return nil, fmt.Errorf("exam id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	a.id, a.exam_id, a.segment_key, a.accommodation_type, a.accommodation_code,
	a.accommodation_value, a.allow_combine, a.allow_change, a.default_accommodation, a.created_at,
	e.seq, e.denied_at, e.selectable, e.deleted_at, e.created_at
FROM exam_accommodations a
JOIN exam_accommodation_events e ON e.accommodation_id = a.id
JOIN (
	SELECT accommodation_id, MAX(seq) AS max_seq
	FROM exam_accommodation_events
	GROUP BY accommodation_id
) latest ON latest.accommodation_id = e.accommodation_id AND latest.max_seq = e.seq
WHERE a.exam_id = ? AND e.deleted_at IS NULL
ORDER BY a.segment_key ASC, a.accommodation_type ASC, a.accommodation_code ASC
`, examID)
	if err != nil {
		return nil, fmt.Errorf("latest accommodations: %w", err)
	}
	defer rows.Close()

	var views []storage.AccommodationView
	for rows.Next() {
		var view storage.AccommodationView
		var identityCreatedAt, eventCreatedAt int64
		var allowCombine, allowChange, defaultAcc, selectable int
		var seq int64
		var deniedAt, deletedAt sql.NullInt64
		if err := rows.Scan(
			&view.Accommodation.ID,
			&view.Accommodation.ExamID,
			&view.Accommodation.SegmentKey,
			&view.Accommodation.Type,
			&view.Accommodation.Code,
			&view.Accommodation.Value,
			&allowCombine,
			&allowChange,
			&defaultAcc,
			&identityCreatedAt,
			&seq,
			&deniedAt,
			&selectable,
			&deletedAt,
			&eventCreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan accommodation: %w", err)
		}
		view.Accommodation.AllowCombine = allowCombine == 1
		view.Accommodation.AllowChange = allowChange == 1
		view.Accommodation.DefaultAccommodation = defaultAcc == 1
		view.Accommodation.CreatedAt = fromMillis(identityCreatedAt)
		view.State.AccommodationID = view.Accommodation.ID
		view.State.Seq = uint64(seq)
		view.State.DeniedAt = fromNullMillis(deniedAt)
		view.State.Selectable = selectable == 1
		view.State.DeletedAt = fromNullMillis(deletedAt)
		view.State.CreatedAt = fromMillis(eventCreatedAt)
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accommodations: %w", err)
	}
	return views, nil
}
