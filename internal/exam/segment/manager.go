// Package segment manages the lifecycle of exam segments: satisfaction,
// exit, and the permeability window that lets an examinee re-enter a
// previously visited segment.
package segment

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/louisbranch/examroom/internal/exam/storage"
	apperrors "github.com/louisbranch/examroom/internal/platform/errors"
)

// Manager coordinates segment state changes for one exam store.
type Manager struct {
	store storage.SegmentStore
	now   func() time.Time
}

// NewManager builds a segment manager on the provided store.
func NewManager(store storage.SegmentStore) *Manager {
	return &Manager{store: store, now: time.Now}
}

// ExitSegment closes a segment the examinee is done with. The segment must be
// satisfied first; exiting an unsatisfied segment is a caller error, not a
// silent no-op.
func (m *Manager) ExitSegment(ctx context.Context, examID string, position int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if position < 1 {
		return apperrors.WithMetadata(
			apperrors.CodeSegmentBadPosition,
			"segment position must be positive",
			map[string]string{"position": strconv.Itoa(position)},
		)
	}

	view, err := m.loadSegment(ctx, examID, position)
	if err != nil {
		return err
	}
	if !view.State.Satisfied {
		return apperrors.WithMetadata(
			apperrors.CodeSegmentNotSatisfied,
			"segment has unsatisfied item groups",
			segmentMetadata(examID, position),
		)
	}
	if view.State.ExitedAt != nil {
		return apperrors.WithMetadata(
			apperrors.CodeSegmentAlreadyExited,
			"segment was already exited",
			segmentMetadata(examID, position),
		)
	}

	now := m.now()
	next := view.State.NextSnapshot(now)
	next.ExitedAt = &now
	next.Permeable = false
	next.RestoreCondition = ""
	if _, err := m.store.AppendSegmentEvent(ctx, next); err != nil {
		return err
	}
	return nil
}

// CheckIfSegmentsCompleted reports whether every current non-deleted segment
// of the exam is satisfied.
func (m *Manager) CheckIfSegmentsCompleted(ctx context.Context, examID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	count, err := m.store.CountUnsatisfiedSegments(ctx, examID)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// MarkSatisfied records that a segment's item groups are fully administered.
// Marking an already satisfied segment appends nothing.
func (m *Manager) MarkSatisfied(ctx context.Context, examID string, position int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	view, err := m.loadSegment(ctx, examID, position)
	if err != nil {
		return err
	}
	if view.State.Satisfied {
		return nil
	}

	next := view.State.NextSnapshot(m.now())
	next.Satisfied = true
	if _, err := m.store.AppendSegmentEvent(ctx, next); err != nil {
		return err
	}
	return nil
}

// RestorePermeability reopens a previously visited segment under the given
// restore condition, used when a paused exam resumes.
func (m *Manager) RestorePermeability(ctx context.Context, examID string, position int, condition string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if condition == "" {
		return apperrors.New(apperrors.CodeSegmentEmptyKey, "restore condition is required")
	}
	view, err := m.loadSegment(ctx, examID, position)
	if err != nil {
		return err
	}

	next := view.State.NextSnapshot(m.now())
	next.Permeable = true
	next.RestoreCondition = condition
	if _, err := m.store.AppendSegmentEvent(ctx, next); err != nil {
		return err
	}
	return nil
}

func (m *Manager) loadSegment(ctx context.Context, examID string, position int) (storage.SegmentView, error) {
	view, err := m.store.LatestSegment(ctx, examID, position)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.SegmentView{}, apperrors.WithMetadata(
				apperrors.CodeSegmentNotFound,
				"segment does not exist",
				segmentMetadata(examID, position),
			)
		}
		return storage.SegmentView{}, err
	}
	return view, nil
}

func segmentMetadata(examID string, position int) map[string]string {
	return map[string]string{
		"exam_id":  examID,
		"position": strconv.Itoa(position),
	}
}
