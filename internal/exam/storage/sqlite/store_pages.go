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

// CreatePage inserts the immutable page identity row.
func (s *Store) CreatePage(ctx context.Context, page domain.Page) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(page.ID) == "" {
		return fmt.Errorf("page id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO exam_pages (id, exam_id, position, segment_key, segment_position, item_group_key, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		page.ID,
		page.ExamID,
		page.Position,
		page.SegmentKey,
		page.SegmentPosition,
		page.ItemGroupKey,
		toMillis(page.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create page: %w", err)
	}
	return nil
}

// CreateItems inserts item identity rows in one transaction. Items carry no
// event stream; their mutable response facts live outside this module.
func (s *Store) CreateItems(ctx context.Context, items []domain.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if len(items) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, item := range items {
		if strings.TrimSpace(item.ID) == "" {
			return fmt.Errorf("item id is required")
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO exam_items (
	id, page_id, exam_id, position, item_key, bank_key, group_key,
	file_path, stimulus_path, is_field_test, is_required, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
			item.ID,
			item.PageID,
			item.ExamID,
			item.Position,
			item.ItemKey,
			item.BankKey,
			item.GroupKey,
			item.FilePath,
			item.StimulusPath,
			boolToInt(item.FieldTest),
			boolToInt(item.Required),
			toMillis(item.CreatedAt),
		); err != nil {
			return fmt.Errorf("create item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// AppendPageEvent appends one full page snapshot.
func (s *Store) AppendPageEvent(ctx context.Context, state domain.PageState) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(state.PageID) == "" {
		return 0, fmt.Errorf("page id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT 1 FROM exam_pages WHERE id = ?", state.PageID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("check page identity: %w", err)
	}

	seq, err := nextSeq(tx, "exam_page_events", "page_id = ?", state.PageID)
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO exam_page_events (page_id, seq, started_at, visits, deleted_at, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`,
		state.PageID,
		int64(seq),
		toNullMillis(state.StartedAt),
		state.Visits,
		toNullMillis(state.DeletedAt),
		toMillis(state.CreatedAt),
	); err != nil {
		return 0, fmt.Errorf("append page event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return seq, nil
}

// LatestPages projects all current page states for an exam ordered by
// position. Deleted pages are included; callers that only want live pages
// filter on the snapshot.
func (s *Store) LatestPages(ctx context.Context, examID string) ([]storage.PageView, error) {
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
	p.id, p.exam_id, p.position, p.segment_key, p.segment_position, p.item_group_key, p.created_at,
	e.seq, e.started_at, e.visits, e.deleted_at, e.created_at
FROM exam_pages p
JOIN exam_page_events e ON e.page_id = p.id
JOIN (
	SELECT page_id, MAX(seq) AS max_seq
	FROM exam_page_events
	GROUP BY page_id
) latest ON latest.page_id = e.page_id AND latest.max_seq = e.seq
WHERE p.exam_id = ?
ORDER BY p.position ASC
`, examID)
	if err != nil {
		return nil, fmt.Errorf("latest pages: %w", err)
	}
	defer rows.Close()

	var views []storage.PageView
	for rows.Next() {
		var view storage.PageView
		var identityCreatedAt, eventCreatedAt int64
		var seq int64
		var startedAt, deletedAt sql.NullInt64
		if err := rows.Scan(
			&view.Page.ID,
			&view.Page.ExamID,
			&view.Page.Position,
			&view.Page.SegmentKey,
			&view.Page.SegmentPosition,
			&view.Page.ItemGroupKey,
			&identityCreatedAt,
			&seq,
			&startedAt,
			&view.State.Visits,
			&deletedAt,
			&eventCreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		view.Page.CreatedAt = fromMillis(identityCreatedAt)
		view.State.PageID = view.Page.ID
		view.State.Seq = uint64(seq)
		view.State.StartedAt = fromNullMillis(startedAt)
		view.State.DeletedAt = fromNullMillis(deletedAt)
		view.State.CreatedAt = fromMillis(eventCreatedAt)
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return views, nil
}

// ListItems returns all item identities for an exam ordered by position.
func (s *Store) ListItems(ctx context.Context, examID string) ([]domain.Item, error) {
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
SELECT id, page_id, exam_id, position, item_key, bank_key, group_key,
	file_path, stimulus_path, is_field_test, is_required, created_at
FROM exam_items
WHERE exam_id = ?
ORDER BY position ASC
`, examID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var item domain.Item
		var fieldTest, required int
		var createdAt int64
		if err := rows.Scan(
			&item.ID,
			&item.PageID,
			&item.ExamID,
			&item.Position,
			&item.ItemKey,
			&item.BankKey,
			&item.GroupKey,
			&item.FilePath,
			&item.StimulusPath,
			&fieldTest,
			&required,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item.FieldTest = fieldTest == 1
		item.Required = required == 1
		item.CreatedAt = fromMillis(createdAt)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}
