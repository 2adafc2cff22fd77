package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/examroom/internal/exam/storage"
)

const (
	defaultHistoryPageSize = 50
	maxHistoryPageSize     = 200
)

// ListExamHistory pages through the raw exam event journal. Unlike the state
// projections, soft-deleted events are visible here; audit tooling needs the
// whole stream.
func (s *Store) ListExamHistory(ctx context.Context, req storage.ListExamHistoryRequest) (storage.ListExamHistoryResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.ListExamHistoryResult{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ListExamHistoryResult{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(req.ExamID) == "" {
		return storage.ListExamHistoryResult{}, fmt.Errorf("exam id is required")
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultHistoryPageSize
	}
	if pageSize > maxHistoryPageSize {
		pageSize = maxHistoryPageSize
	}

	where := []string{"e.exam_id = ?"}
	args := []any{req.ExamID}
	if req.FilterClause != "" {
		where = append(where, "("+req.FilterClause+")")
		args = append(args, req.FilterParams...)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM exam_events e WHERE %s", strings.Join(where, " AND "))
	var total int
	if err := s.sqlDB.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return storage.ListExamHistoryResult{}, fmt.Errorf("count exam history: %w", err)
	}

	order := "ASC"
	if req.Descending {
		order = "DESC"
	}
	pageWhere := where
	pageArgs := args
	if req.CursorSeq > 0 {
		cursorOp := ">"
		if req.Descending {
			cursorOp = "<"
		}
		pageWhere = append(pageWhere, fmt.Sprintf("e.seq %s ?", cursorOp))
		pageArgs = append(pageArgs, int64(req.CursorSeq))
	}

	query := fmt.Sprintf(`
SELECT %s
FROM exam_events e
WHERE %s
ORDER BY e.seq %s
LIMIT ?
`, examEventColumns, strings.Join(pageWhere, " AND "), order)
	pageArgs = append(pageArgs, pageSize+1)

	rows, err := s.sqlDB.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return storage.ListExamHistoryResult{}, fmt.Errorf("list exam history: %w", err)
	}
	defer rows.Close()

	var records []storage.ExamHistoryRecord
	for rows.Next() {
		state, err := scanExamState(rows.Scan)
		if err != nil {
			return storage.ListExamHistoryResult{}, fmt.Errorf("scan exam history event: %w", err)
		}
		records = append(records, storage.ExamHistoryRecord{State: state})
	}
	if err := rows.Err(); err != nil {
		return storage.ListExamHistoryResult{}, fmt.Errorf("iterate exam history: %w", err)
	}

	hasNext := false
	if len(records) > pageSize {
		hasNext = true
		records = records[:pageSize]
	}

	return storage.ListExamHistoryResult{
		Records:     records,
		HasNextPage: hasNext,
		TotalCount:  total,
	}, nil
}
