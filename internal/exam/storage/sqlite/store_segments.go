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

const segmentViewColumns = `
	s.exam_id, s.position, s.segment_key, s.segment_id, s.form_key, s.form_id,
	s.algorithm, s.created_at,
	e.seq, e.satisfied, e.permeable, e.restore_condition, e.exited_at,
	e.item_pool, e.pool_count, e.off_grade_items, e.deleted_at, e.created_at`

// CreateSegment inserts the immutable segment identity row.
func (s *Store) CreateSegment(ctx context.Context, segment domain.Segment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(segment.ExamID) == "" {
		return fmt.Errorf("exam id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO exam_segments (exam_id, position, segment_key, segment_id, form_key, form_id, algorithm, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		segment.ExamID,
		segment.Position,
		segment.SegmentKey,
		segment.SegmentID,
		segment.FormKey,
		segment.FormID,
		segment.Algorithm,
		toMillis(segment.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create segment: %w", err)
	}
	return nil
}

// GetSegment retrieves a segment identity by its (examID, position) pair.
func (s *Store) GetSegment(ctx context.Context, examID string, position int) (domain.Segment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Segment{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Segment{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(examID) == "" {
		return domain.Segment{}, fmt.Errorf("exam id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT exam_id, position, segment_key, segment_id, form_key, form_id, algorithm, created_at
FROM exam_segments
WHERE exam_id = ? AND position = ?
`, examID, position)

	var segment domain.Segment
	var createdAt int64
	err := row.Scan(
		&segment.ExamID,
		&segment.Position,
		&segment.SegmentKey,
		&segment.SegmentID,
		&segment.FormKey,
		&segment.FormID,
		&segment.Algorithm,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Segment{}, storage.ErrNotFound
		}
		return domain.Segment{}, fmt.Errorf("get segment: %w", err)
	}
	segment.CreatedAt = fromMillis(createdAt)
	return segment, nil
}

// AppendSegmentEvent appends one full segment snapshot.
func (s *Store) AppendSegmentEvent(ctx context.Context, state domain.SegmentState) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(state.ExamID) == "" {
		return 0, fmt.Errorf("exam id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx,
		"SELECT 1 FROM exam_segments WHERE exam_id = ? AND position = ?",
		state.ExamID, state.Position,
	).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("check segment identity: %w", err)
	}

	seq, err := nextSeq(tx, "exam_segment_events", "exam_id = ? AND position = ?", state.ExamID, state.Position)
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO exam_segment_events (
	exam_id, position, seq, satisfied, permeable, restore_condition,
	exited_at, item_pool, pool_count, off_grade_items, deleted_at, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		state.ExamID,
		state.Position,
		int64(seq),
		boolToInt(state.Satisfied),
		boolToInt(state.Permeable),
		state.RestoreCondition,
		toNullMillis(state.ExitedAt),
		domain.EncodeItemPool(state.ItemPool),
		state.PoolCount,
		state.OffGradeItems,
		toNullMillis(state.DeletedAt),
		toMillis(state.CreatedAt),
	); err != nil {
		return 0, fmt.Errorf("append segment event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return seq, nil
}

// LatestSegment projects the current state of one segment.
func (s *Store) LatestSegment(ctx context.Context, examID string, position int) (storage.SegmentView, error) {
	if err := ctx.Err(); err != nil {
		return storage.SegmentView{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.SegmentView{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(examID) == "" {
		return storage.SegmentView{}, fmt.Errorf("exam id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, fmt.Sprintf(`
SELECT %s
FROM exam_segments s
JOIN exam_segment_events e ON e.exam_id = s.exam_id AND e.position = s.position
JOIN (
	SELECT exam_id, position, MAX(seq) AS max_seq
	FROM exam_segment_events
	GROUP BY exam_id, position
) latest ON latest.exam_id = e.exam_id AND latest.position = e.position AND latest.max_seq = e.seq
WHERE s.exam_id = ? AND s.position = ? AND e.deleted_at IS NULL
`, segmentViewColumns), examID, position)

	view, err := scanSegmentView(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.SegmentView{}, storage.ErrNotFound
		}
		return storage.SegmentView{}, fmt.Errorf("latest segment: %w", err)
	}
	return view, nil
}

// LatestSegments projects all current non-deleted segments for an exam,
// ordered by position.
func (s *Store) LatestSegments(ctx context.Context, examID string) ([]storage.SegmentView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(examID) == "" {
		return nil, fmt.Errorf("exam id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, fmt.Sprintf(`
SELECT %s
FROM exam_segments s
JOIN exam_segment_events e ON e.exam_id = s.exam_id AND e.position = s.position
JOIN (
	SELECT exam_id, position, MAX(seq) AS max_seq
	FROM exam_segment_events
	GROUP BY exam_id, position
) latest ON latest.exam_id = e.exam_id AND latest.position = e.position AND latest.max_seq = e.seq
WHERE s.exam_id = ? AND e.deleted_at IS NULL
ORDER BY s.position ASC
`, segmentViewColumns), examID)
	if err != nil {
		return nil, fmt.Errorf("latest segments: %w", err)
	}
	defer rows.Close()

	var views []storage.SegmentView
	for rows.Next() {
		view, err := scanSegmentView(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segments: %w", err)
	}
	return views, nil
}

// CountUnsatisfiedSegments counts current non-deleted segments whose latest
// event is unsatisfied.
func (s *Store) CountUnsatisfiedSegments(ctx context.Context, examID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(examID) == "" {
		return 0, fmt.Errorf("exam id is required")
	}

	var count int
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM exam_segment_events e
JOIN (
	SELECT exam_id, position, MAX(seq) AS max_seq
	FROM exam_segment_events
	GROUP BY exam_id, position
) latest ON latest.exam_id = e.exam_id AND latest.position = e.position AND latest.max_seq = e.seq
WHERE e.exam_id = ? AND e.deleted_at IS NULL AND e.satisfied = 0
`, examID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unsatisfied segments: %w", err)
	}
	return count, nil
}

func scanSegmentView(scan func(dest ...any) error) (storage.SegmentView, error) {
	var view storage.SegmentView
	var identityCreatedAt, eventCreatedAt int64
	var seq int64
	var satisfied, permeable int
	var exitedAt, deletedAt sql.NullInt64
	var itemPool string

	err := scan(
		&view.Segment.ExamID,
		&view.Segment.Position,
		&view.Segment.SegmentKey,
		&view.Segment.SegmentID,
		&view.Segment.FormKey,
		&view.Segment.FormID,
		&view.Segment.Algorithm,
		&identityCreatedAt,
		&seq,
		&satisfied,
		&permeable,
		&view.State.RestoreCondition,
		&exitedAt,
		&itemPool,
		&view.State.PoolCount,
		&view.State.OffGradeItems,
		&deletedAt,
		&eventCreatedAt,
	)
	if err != nil {
		return storage.SegmentView{}, err
	}

	view.Segment.CreatedAt = fromMillis(identityCreatedAt)
	view.State.ExamID = view.Segment.ExamID
	view.State.Position = view.Segment.Position
	view.State.Seq = uint64(seq)
	view.State.Satisfied = satisfied == 1
	view.State.Permeable = permeable == 1
	view.State.ExitedAt = fromNullMillis(exitedAt)
	view.State.ItemPool = domain.DecodeItemPool(itemPool)
	view.State.DeletedAt = fromNullMillis(deletedAt)
	view.State.CreatedAt = fromMillis(eventCreatedAt)
	return view, nil
}
