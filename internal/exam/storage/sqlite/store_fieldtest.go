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

// CreateFieldTestGroup inserts the immutable field-test group assignment row.
func (s *Store) CreateFieldTestGroup(ctx context.Context, group domain.FieldTestItemGroup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(group.ID) == "" {
		return fmt.Errorf("field test group id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO field_test_item_groups (
	id, exam_id, segment_key, segment_id, group_key, group_id, block_id,
	item_count, session_id, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		group.ID,
		group.ExamID,
		group.SegmentKey,
		group.SegmentID,
		group.GroupKey,
		group.GroupID,
		group.BlockID,
		group.ItemCount,
		group.SessionID,
		toMillis(group.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create field test group: %w", err)
	}
	return nil
}

// AppendFieldTestGroupEvent appends one full administration snapshot.
func (s *Store) AppendFieldTestGroupEvent(ctx context.Context, state domain.FieldTestItemGroupState) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(state.GroupRowID) == "" {
		return 0, fmt.Errorf("field test group id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT 1 FROM field_test_item_groups WHERE id = ?", state.GroupRowID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("check field test group identity: %w", err)
	}

	seq, err := nextSeq(tx, "field_test_item_group_events", "group_row_id = ?", state.GroupRowID)
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO field_test_item_group_events (group_row_id, seq, position_administered, administered_at, deleted_at, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`,
		state.GroupRowID,
		int64(seq),
		toNullInt(state.PositionAdministered),
		toNullMillis(state.AdministeredAt),
		toNullMillis(state.DeletedAt),
		toMillis(state.CreatedAt),
	); err != nil {
		return 0, fmt.Errorf("append field test group event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return seq, nil
}

// LatestFieldTestGroups projects current group administration states for an
// exam. With includeDeleted, soft-deleted administration records are kept;
// the legacy usage report counts those groups too.
func (s *Store) LatestFieldTestGroups(ctx context.Context, examID string, includeDeleted bool) ([]storage.FieldTestGroupView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(examID) == "" {
		return nil, fmt.Errorf("exam id is required")
	}

	deletedClause := "AND e.deleted_at IS NULL"
	if includeDeleted {
		deletedClause = ""
	}

	rows, err := s.sqlDB.QueryContext(ctx, fmt.Sprintf(`
SELECT
	g.id, g.exam_id, g.segment_key, g.segment_id, g.group_key, g.group_id,
	g.block_id, g.item_count, g.session_id, g.created_at,
	e.seq, e.position_administered, e.administered_at, e.deleted_at, e.created_at
FROM field_test_item_groups g
JOIN field_test_item_group_events e ON e.group_row_id = g.id
JOIN (
	SELECT group_row_id, MAX(seq) AS max_seq
	FROM field_test_item_group_events
	GROUP BY group_row_id
) latest ON latest.group_row_id = e.group_row_id AND latest.max_seq = e.seq
WHERE g.exam_id = ? %s
ORDER BY g.segment_key ASC, g.group_key ASC
`, deletedClause), examID)
	if err != nil {
		return nil, fmt.Errorf("latest field test groups: %w", err)
	}
	defer rows.Close()

	var views []storage.FieldTestGroupView
	for rows.Next() {
		var view storage.FieldTestGroupView
		var identityCreatedAt, eventCreatedAt int64
		var seq int64
		var positionAdministered, administeredAt, deletedAt sql.NullInt64
		if err := rows.Scan(
			&view.Group.ID,
			&view.Group.ExamID,
			&view.Group.SegmentKey,
			&view.Group.SegmentID,
			&view.Group.GroupKey,
			&view.Group.GroupID,
			&view.Group.BlockID,
			&view.Group.ItemCount,
			&view.Group.SessionID,
			&identityCreatedAt,
			&seq,
			&positionAdministered,
			&administeredAt,
			&deletedAt,
			&eventCreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan field test group: %w", err)
		}
		view.Group.CreatedAt = fromMillis(identityCreatedAt)
		view.State.GroupRowID = view.Group.ID
		view.State.Seq = uint64(seq)
		view.State.PositionAdministered = fromNullInt(positionAdministered)
		view.State.AdministeredAt = fromNullMillis(administeredAt)
		view.State.DeletedAt = fromNullMillis(deletedAt)
		view.State.CreatedAt = fromMillis(eventCreatedAt)
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate field test groups: %w", err)
	}
	return views, nil
}
