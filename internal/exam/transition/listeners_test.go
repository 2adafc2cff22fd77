package transition

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/examroom/internal/exam/accommodation"
	"github.com/louisbranch/examroom/internal/exam/domain"
	"github.com/louisbranch/examroom/internal/exam/fieldtest"
	"github.com/louisbranch/examroom/internal/exam/storage/sqlite"
	apperrors "github.com/louisbranch/examroom/internal/platform/errors"
)

func newListenerStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "exam.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedExamWithSegment(t *testing.T, store *sqlite.Store, permeable bool, condition string) {
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
	if err := store.CreateSegment(ctx, domain.Segment{
		ExamID:     "exam-1",
		Position:   1,
		SegmentKey: "(SBAC_PT)SBAC-SEG1",
		CreatedAt:  now,
	}); err != nil {
		t.Fatalf("create segment: %v", err)
	}
	if _, err := store.AppendSegmentEvent(ctx, domain.SegmentState{
		ExamID:           "exam-1",
		Position:         1,
		Permeable:        permeable,
		RestoreCondition: condition,
		CreatedAt:        now,
	}); err != nil {
		t.Fatalf("append segment event: %v", err)
	}
}

func pauseChange() (domain.ExamState, domain.ExamState) {
	oldState := domain.ExamState{ExamID: "exam-1", Status: domain.StatusStarted, SegmentPosition: 1}
	newState := domain.ExamState{ExamID: "exam-1", Status: domain.StatusPaused, SegmentPosition: 1}
	return oldState, newState
}

func TestPausedListenerRevokesPermeability(t *testing.T) {
	for _, condition := range []string{domain.RestoreConditionSegment, domain.RestoreConditionPaused} {
		t.Run(condition, func(t *testing.T) {
			store := newListenerStore(t)
			seedExamWithSegment(t, store, true, condition)

			listener := NewPausedListener(store)
			oldState, newState := pauseChange()
			if err := listener.OnStatusChange(context.Background(), oldState, newState); err != nil {
				t.Fatalf("on status change: %v", err)
			}

			view, err := store.LatestSegment(context.Background(), "exam-1", 1)
			if err != nil {
				t.Fatalf("latest segment: %v", err)
			}
			if view.State.Seq != 2 {
				t.Fatalf("seq = %d, want a second event", view.State.Seq)
			}
			if view.State.Permeable || view.State.RestoreCondition != "" {
				t.Fatalf("permeability not revoked: %+v", view.State)
			}
		})
	}
}

func TestPausedListenerLeavesOtherConditions(t *testing.T) {
	store := newListenerStore(t)
	seedExamWithSegment(t, store, true, "unit-test")

	listener := NewPausedListener(store)
	oldState, newState := pauseChange()
	if err := listener.OnStatusChange(context.Background(), oldState, newState); err != nil {
		t.Fatalf("on status change: %v", err)
	}

	view, err := store.LatestSegment(context.Background(), "exam-1", 1)
	if err != nil {
		t.Fatalf("latest segment: %v", err)
	}
	if view.State.Seq != 1 {
		t.Fatalf("seq = %d, want no new event", view.State.Seq)
	}
	if !view.State.Permeable || view.State.RestoreCondition != "unit-test" {
		t.Fatalf("condition modified: %+v", view.State)
	}
}

func TestPausedListenerIgnoresOtherStatuses(t *testing.T) {
	store := newListenerStore(t)
	seedExamWithSegment(t, store, true, domain.RestoreConditionSegment)

	listener := NewPausedListener(store)
	err := listener.OnStatusChange(context.Background(),
		domain.ExamState{ExamID: "exam-1", Status: domain.StatusStarted, SegmentPosition: 1},
		domain.ExamState{ExamID: "exam-1", Status: domain.StatusCompleted, SegmentPosition: 1},
	)
	if err != nil {
		t.Fatalf("on status change: %v", err)
	}

	view, err := store.LatestSegment(context.Background(), "exam-1", 1)
	if err != nil {
		t.Fatalf("latest segment: %v", err)
	}
	if view.State.Seq != 1 {
		t.Fatalf("seq = %d, want no new event", view.State.Seq)
	}
}

func TestPausedListenerMissingSegmentIsCorruption(t *testing.T) {
	store := newListenerStore(t)
	if err := store.CreateExam(context.Background(), domain.Exam{
		ID:         "exam-1",
		ClientName: "SBAC_PT",
		StudentID:  "student-9999",
		CreatedAt:  time.Now(),
	}); err != nil {
		t.Fatalf("create exam: %v", err)
	}

	listener := NewPausedListener(store)
	oldState, newState := pauseChange()
	err := listener.OnStatusChange(context.Background(), oldState, newState)
	if !errors.Is(err, apperrors.New(apperrors.CodeExamEntityCorrupt, "")) {
		t.Fatalf("error = %v, want CodeExamEntityCorrupt", err)
	}
}

func TestDeniedListenerDeniesAccommodations(t *testing.T) {
	store := newListenerStore(t)
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
	workflow := accommodation.NewWorkflow(store)
	if err := workflow.Grant(ctx, domain.Accommodation{
		ID:     "acc-1",
		ExamID: "exam-1",
		Type:   "Language",
		Code:   "ENU",
	}); err != nil {
		t.Fatalf("grant: %v", err)
	}

	listener := NewDeniedListener(workflow)
	err := listener.OnStatusChange(ctx,
		domain.ExamState{ExamID: "exam-1", Status: domain.StatusPending},
		domain.ExamState{ExamID: "exam-1", Status: domain.StatusDenied},
	)
	if err != nil {
		t.Fatalf("on status change: %v", err)
	}

	approved, err := workflow.FindApprovedAccommodations(ctx, "exam-1")
	if err != nil {
		t.Fatalf("find approved: %v", err)
	}
	if len(approved) != 0 {
		t.Fatalf("approved = %d, want 0 after denial", len(approved))
	}
}

func TestCompletedListenerRecordsUsage(t *testing.T) {
	store := newListenerStore(t)
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
	if err := store.CreatePage(ctx, domain.Page{
		ID:           "page-1",
		ExamID:       "exam-1",
		Position:     3,
		SegmentKey:   "(SBAC_PT)SBAC-SEG1",
		ItemGroupKey: "group-7",
		CreatedAt:    now,
	}); err != nil {
		t.Fatalf("create page: %v", err)
	}
	if _, err := store.AppendPageEvent(ctx, domain.PageState{PageID: "page-1", CreatedAt: now}); err != nil {
		t.Fatalf("append page event: %v", err)
	}
	if err := store.CreateItems(ctx, []domain.Item{
		{ID: "item-1", PageID: "page-1", ExamID: "exam-1", Position: 3, ItemKey: "187-1234", GroupKey: "group-7", FieldTest: true, CreatedAt: now},
	}); err != nil {
		t.Fatalf("create items: %v", err)
	}
	if err := store.CreateFieldTestGroup(ctx, domain.FieldTestItemGroup{
		ID:         "ftg-1",
		ExamID:     "exam-1",
		SegmentKey: "(SBAC_PT)SBAC-SEG1",
		GroupKey:   "group-7",
		CreatedAt:  now,
	}); err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := store.AppendFieldTestGroupEvent(ctx, domain.FieldTestItemGroupState{
		GroupRowID: "ftg-1",
		CreatedAt:  now,
	}); err != nil {
		t.Fatalf("append group event: %v", err)
	}

	listener := NewCompletedListener(fieldtest.NewTracker(store))
	err := listener.OnStatusChange(ctx,
		domain.ExamState{ExamID: "exam-1", Status: domain.StatusStarted},
		domain.ExamState{ExamID: "exam-1", Status: domain.StatusCompleted},
	)
	if err != nil {
		t.Fatalf("on status change: %v", err)
	}

	groups, err := store.LatestFieldTestGroups(ctx, "exam-1", true)
	if err != nil {
		t.Fatalf("latest groups: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
	if groups[0].State.PositionAdministered == nil || *groups[0].State.PositionAdministered != 3 {
		t.Fatalf("position administered = %v, want 3", groups[0].State.PositionAdministered)
	}
	if groups[0].State.AdministeredAt == nil {
		t.Fatal("administered_at not stamped")
	}
}

type failingNotifier struct {
	calls int
}

func (n *failingNotifier) SendExamCompletion(context.Context, string) error {
	n.calls++
	return errors.New("broker unavailable")
}

func TestExpiredListenerIsBestEffort(t *testing.T) {
	notifier := &failingNotifier{}
	listener := NewExpiredListener(notifier)

	err := listener.OnStatusChange(context.Background(),
		domain.ExamState{ExamID: "exam-1", Status: domain.StatusPaused},
		domain.ExamState{ExamID: "exam-1", Status: domain.StatusExpired},
	)
	if err != nil {
		t.Fatalf("notification failure must not fail the transition: %v", err)
	}
	if notifier.calls != 1 {
		t.Fatalf("notifier calls = %d, want 1", notifier.calls)
	}
}
