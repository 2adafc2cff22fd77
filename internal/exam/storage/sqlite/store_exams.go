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

// examEventColumns is the projection column list shared by exam state queries.
const examEventColumns = `
	e.exam_id, e.seq, e.status, e.stage, e.status_changed_at, e.status_reason,
	e.attempts, e.restarts, e.abnormal_starts, e.segment_position, e.language,
	e.max_items, e.started_at, e.completed_at, e.scored_at, e.expired_at,
	e.deleted_at, e.created_at`

// CreateExam inserts the immutable exam identity row.
func (s *Store) CreateExam(ctx context.Context, exam domain.Exam) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(exam.ID) == "" {
		return fmt.Errorf("exam id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO exams (id, client_name, student_id, assessment_id, assessment_key, subject_code, session_id, browser_key, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		exam.ID,
		exam.ClientName,
		exam.StudentID,
		exam.AssessmentID,
		exam.AssessmentKey,
		exam.SubjectCode,
		exam.SessionID,
		exam.BrowserKey,
		toMillis(exam.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create exam: %w", err)
	}
	return nil
}

// GetExam retrieves an exam identity by id.
func (s *Store) GetExam(ctx context.Context, examID string) (domain.Exam, error) {
	if err := ctx.Err(); err != nil {
		return domain.Exam{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Exam{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(examID) == "" {
		return domain.Exam{}, fmt.Errorf("exam id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, client_name, student_id, assessment_id, assessment_key, subject_code, session_id, browser_key, created_at
FROM exams
WHERE id = ?
`, examID)

	var exam domain.Exam
	var createdAt int64
	err := row.Scan(
		&exam.ID,
		&exam.ClientName,
		&exam.StudentID,
		&exam.AssessmentID,
		&exam.AssessmentKey,
		&exam.SubjectCode,
		&exam.SessionID,
		&exam.BrowserKey,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Exam{}, storage.ErrNotFound
		}
		return domain.Exam{}, fmt.Errorf("get exam: %w", err)
	}
	exam.CreatedAt = fromMillis(createdAt)
	return exam, nil
}

// AppendExamEvent appends one full snapshot and returns its sequence number.
func (s *Store) AppendExamEvent(ctx context.Context, state domain.ExamState) (uint64, error) {
	return s.appendExamEvent(ctx, state, nil)
}

// AppendExamEventExpecting appends only when the latest stored sequence number
// equals expectedSeq.
func (s *Store) AppendExamEventExpecting(ctx context.Context, state domain.ExamState, expectedSeq uint64) (uint64, error) {
	return s.appendExamEvent(ctx, state, &expectedSeq)
}

func (s *Store) appendExamEvent(ctx context.Context, state domain.ExamState, expectedSeq *uint64) (uint64, error) {
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
	if err := tx.QueryRowContext(ctx, "SELECT 1 FROM exams WHERE id = ?", state.ExamID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("check exam identity: %w", err)
	}

	seq, err := nextSeq(tx, "exam_events", "exam_id = ?", state.ExamID)
	if err != nil {
		return 0, err
	}
	if expectedSeq != nil && seq != *expectedSeq+1 {
		return 0, storage.ErrConflict
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO exam_events (
	exam_id, seq, status, stage, status_changed_at, status_reason,
	attempts, restarts, abnormal_starts, segment_position, language, max_items,
	started_at, completed_at, scored_at, expired_at, deleted_at, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		state.ExamID,
		int64(seq),
		string(state.Status),
		string(state.Stage),
		toMillis(state.StatusChangedAt),
		state.StatusReason,
		state.Attempts,
		state.Restarts,
		state.AbnormalStarts,
		state.SegmentPosition,
		state.Language,
		state.MaxItems,
		toNullMillis(state.StartedAt),
		toNullMillis(state.CompletedAt),
		toNullMillis(state.ScoredAt),
		toNullMillis(state.ExpiredAt),
		toNullMillis(state.DeletedAt),
		toMillis(state.CreatedAt),
	); err != nil {
		return 0, fmt.Errorf("append exam event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return seq, nil
}

// LatestExamState projects the current exam state.
func (s *Store) LatestExamState(ctx context.Context, examID string) (domain.ExamState, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExamState{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.ExamState{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(examID) == "" {
		return domain.ExamState{}, fmt.Errorf("exam id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, fmt.Sprintf(`
SELECT %s
FROM exam_events e
JOIN (
	SELECT exam_id, MAX(seq) AS max_seq
	FROM exam_events
	GROUP BY exam_id
) latest ON latest.exam_id = e.exam_id AND latest.max_seq = e.seq
WHERE e.exam_id = ? AND e.deleted_at IS NULL
`, examEventColumns), examID)

	state, err := scanExamState(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ExamState{}, storage.ErrNotFound
		}
		return domain.ExamState{}, fmt.Errorf("latest exam state: %w", err)
	}
	return state, nil
}

// LatestExamStates is the batched projection; missing or deleted exams are
// absent from the result.
func (s *Store) LatestExamStates(ctx context.Context, examIDs []string) (map[string]domain.ExamState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	states := make(map[string]domain.ExamState, len(examIDs))
	if len(examIDs) == 0 {
		return states, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(examIDs)), ",")
	args := make([]any, 0, len(examIDs))
	for _, id := range examIDs {
		args = append(args, id)
	}

	rows, err := s.sqlDB.QueryContext(ctx, fmt.Sprintf(`
SELECT %s
FROM exam_events e
JOIN (
	SELECT exam_id, MAX(seq) AS max_seq
	FROM exam_events
	GROUP BY exam_id
) latest ON latest.exam_id = e.exam_id AND latest.max_seq = e.seq
WHERE e.exam_id IN (%s) AND e.deleted_at IS NULL
`, examEventColumns, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("latest exam states: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		state, err := scanExamState(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan exam state: %w", err)
		}
		states[state.ExamID] = state
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exam states: %w", err)
	}
	return states, nil
}

func scanExamState(scan func(dest ...any) error) (domain.ExamState, error) {
	var state domain.ExamState
	var seq int64
	var status, stage string
	var statusChangedAt, createdAt int64
	var startedAt, completedAt, scoredAt, expiredAt, deletedAt sql.NullInt64

	err := scan(
		&state.ExamID,
		&seq,
		&status,
		&stage,
		&statusChangedAt,
		&state.StatusReason,
		&state.Attempts,
		&state.Restarts,
		&state.AbnormalStarts,
		&state.SegmentPosition,
		&state.Language,
		&state.MaxItems,
		&startedAt,
		&completedAt,
		&scoredAt,
		&expiredAt,
		&deletedAt,
		&createdAt,
	)
	if err != nil {
		return domain.ExamState{}, err
	}

	state.Seq = uint64(seq)
	state.Status = domain.Status(status)
	state.Stage = domain.Stage(stage)
	state.StatusChangedAt = fromMillis(statusChangedAt)
	state.StartedAt = fromNullMillis(startedAt)
	state.CompletedAt = fromNullMillis(completedAt)
	state.ScoredAt = fromNullMillis(scoredAt)
	state.ExpiredAt = fromNullMillis(expiredAt)
	state.DeletedAt = fromNullMillis(deletedAt)
	state.CreatedAt = fromMillis(createdAt)
	return state, nil
}
