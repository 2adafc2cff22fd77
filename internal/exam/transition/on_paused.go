package transition

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/louisbranch/examroom/internal/exam/domain"
	"github.com/louisbranch/examroom/internal/exam/storage"
	apperrors "github.com/louisbranch/examroom/internal/platform/errors"
)

// PausedListener revokes segment permeability when an exam pauses.
//
// Only the "segment" and "paused" restore conditions are revoked; any other
// condition was set by a flow that manages its own restoration and must
// survive the pause untouched.
type PausedListener struct {
	segments storage.SegmentStore
	now      func() time.Time
}

// NewPausedListener builds the pause listener on the provided segment store.
func NewPausedListener(segments storage.SegmentStore) *PausedListener {
	return &PausedListener{segments: segments, now: time.Now}
}

// Name implements Listener.
func (l *PausedListener) Name() string { return "paused" }

// OnStatusChange implements Listener.
func (l *PausedListener) OnStatusChange(ctx context.Context, oldState, newState domain.ExamState) error {
	if newState.Status != domain.StatusPaused {
		return nil
	}
	if newState.SegmentPosition < 1 {
		// The exam paused before entering any segment.
		return nil
	}

	view, err := l.segments.LatestSegment(ctx, newState.ExamID, newState.SegmentPosition)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.WithMetadata(
				apperrors.CodeExamEntityCorrupt,
				"current segment is missing for an in-use exam",
				map[string]string{
					"exam_id":  newState.ExamID,
					"position": strconv.Itoa(newState.SegmentPosition),
				},
			)
		}
		return err
	}

	if !view.State.Permeable {
		return nil
	}
	switch view.State.RestoreCondition {
	case domain.RestoreConditionSegment, domain.RestoreConditionPaused:
	default:
		return nil
	}

	next := view.State.NextSnapshot(l.now())
	next.Permeable = false
	next.RestoreCondition = ""
	if _, err := l.segments.AppendSegmentEvent(ctx, next); err != nil {
		return err
	}
	return nil
}
