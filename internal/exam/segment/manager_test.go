package segment

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/examroom/internal/exam/domain"
	"github.com/louisbranch/examroom/internal/exam/storage/sqlite"
	apperrors "github.com/louisbranch/examroom/internal/platform/errors"
)

func newTestManager(t *testing.T) (*Manager, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "exam.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewManager(store), store
}

func seedSegments(t *testing.T, store *sqlite.Store, count int) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	if err := store.CreateExam(ctx, domain.Exam{
		ID:         "exam-1",
		ClientName: "SBAC_PT",
		StudentID:  "student-9999",
		CreatedAt:  now,
	}); err != nil {
		t.Fatalf("create exam: %v", err)
	}
	for pos := 1; pos <= count; pos++ {
		if err := store.CreateSegment(ctx, domain.Segment{
			ExamID:    "exam-1",
			Position:  pos,
			CreatedAt: now,
		}); err != nil {
			t.Fatalf("create segment %d: %v", pos, err)
		}
		if _, err := store.AppendSegmentEvent(ctx, domain.SegmentState{
			ExamID:    "exam-1",
			Position:  pos,
			CreatedAt: now,
		}); err != nil {
			t.Fatalf("append segment event %d: %v", pos, err)
		}
	}
}

func TestExitSegmentRequiresSatisfaction(t *testing.T) {
	manager, store := newTestManager(t)
	seedSegments(t, store, 1)
	ctx := context.Background()

	err := manager.ExitSegment(ctx, "exam-1", 1)
	if !errors.Is(err, apperrors.New(apperrors.CodeSegmentNotSatisfied, "")) {
		t.Fatalf("error = %v, want CodeSegmentNotSatisfied", err)
	}

	if err := manager.MarkSatisfied(ctx, "exam-1", 1); err != nil {
		t.Fatalf("mark satisfied: %v", err)
	}
	if err := manager.ExitSegment(ctx, "exam-1", 1); err != nil {
		t.Fatalf("exit satisfied segment: %v", err)
	}

	view, err := store.LatestSegment(ctx, "exam-1", 1)
	if err != nil {
		t.Fatalf("latest segment: %v", err)
	}
	if view.State.ExitedAt == nil {
		t.Fatal("exited_at not stamped")
	}
	if view.State.Permeable {
		t.Fatal("permeability survived exit")
	}
}

func TestExitSegmentTwice(t *testing.T) {
	manager, store := newTestManager(t)
	seedSegments(t, store, 1)
	ctx := context.Background()

	if err := manager.MarkSatisfied(ctx, "exam-1", 1); err != nil {
		t.Fatalf("mark satisfied: %v", err)
	}
	if err := manager.ExitSegment(ctx, "exam-1", 1); err != nil {
		t.Fatalf("first exit: %v", err)
	}
	err := manager.ExitSegment(ctx, "exam-1", 1)
	if !errors.Is(err, apperrors.New(apperrors.CodeSegmentAlreadyExited, "")) {
		t.Fatalf("error = %v, want CodeSegmentAlreadyExited", err)
	}
}

func TestExitSegmentValidation(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	err := manager.ExitSegment(ctx, "exam-1", 0)
	if !errors.Is(err, apperrors.New(apperrors.CodeSegmentBadPosition, "")) {
		t.Fatalf("error = %v, want CodeSegmentBadPosition", err)
	}

	err = manager.ExitSegment(ctx, "exam-1", 7)
	if !errors.Is(err, apperrors.New(apperrors.CodeSegmentNotFound, "")) {
		t.Fatalf("error = %v, want CodeSegmentNotFound", err)
	}
}

func TestCheckIfSegmentsCompleted(t *testing.T) {
	manager, store := newTestManager(t)
	seedSegments(t, store, 2)
	ctx := context.Background()

	done, err := manager.CheckIfSegmentsCompleted(ctx, "exam-1")
	if err != nil {
		t.Fatalf("check completed: %v", err)
	}
	if done {
		t.Fatal("reported complete with unsatisfied segments")
	}

	if err := manager.MarkSatisfied(ctx, "exam-1", 1); err != nil {
		t.Fatalf("mark satisfied 1: %v", err)
	}
	done, err = manager.CheckIfSegmentsCompleted(ctx, "exam-1")
	if err != nil {
		t.Fatalf("check completed: %v", err)
	}
	if done {
		t.Fatal("reported complete with one segment left")
	}

	if err := manager.MarkSatisfied(ctx, "exam-1", 2); err != nil {
		t.Fatalf("mark satisfied 2: %v", err)
	}
	done, err = manager.CheckIfSegmentsCompleted(ctx, "exam-1")
	if err != nil {
		t.Fatalf("check completed: %v", err)
	}
	if !done {
		t.Fatal("all segments satisfied but reported incomplete")
	}
}

func TestMarkSatisfiedIsIdempotent(t *testing.T) {
	manager, store := newTestManager(t)
	seedSegments(t, store, 1)
	ctx := context.Background()

	if err := manager.MarkSatisfied(ctx, "exam-1", 1); err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if err := manager.MarkSatisfied(ctx, "exam-1", 1); err != nil {
		t.Fatalf("second mark: %v", err)
	}

	view, err := store.LatestSegment(ctx, "exam-1", 1)
	if err != nil {
		t.Fatalf("latest segment: %v", err)
	}
	if view.State.Seq != 2 {
		t.Fatalf("seq = %d, want 2 (no duplicate satisfaction event)", view.State.Seq)
	}
}

func TestRestorePermeability(t *testing.T) {
	manager, store := newTestManager(t)
	seedSegments(t, store, 1)
	ctx := context.Background()

	if err := manager.RestorePermeability(ctx, "exam-1", 1, domain.RestoreConditionPaused); err != nil {
		t.Fatalf("restore: %v", err)
	}

	view, err := store.LatestSegment(ctx, "exam-1", 1)
	if err != nil {
		t.Fatalf("latest segment: %v", err)
	}
	if !view.State.Permeable || view.State.RestoreCondition != domain.RestoreConditionPaused {
		t.Fatalf("permeability not restored: %+v", view.State)
	}

	if err := manager.RestorePermeability(ctx, "exam-1", 1, ""); !errors.Is(err, apperrors.New(apperrors.CodeSegmentEmptyKey, "")) {
		t.Fatalf("error = %v, want CodeSegmentEmptyKey", err)
	}
}
