package history

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

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "exam.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

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
	for i, status := range []domain.Status{
		domain.StatusPending,
		domain.StatusStarted,
		domain.StatusPaused,
		domain.StatusStarted,
		domain.StatusCompleted,
	} {
		stage, err := domain.StageFor(status)
		if err != nil {
			t.Fatalf("stage for %s: %v", status, err)
		}
		if _, err := store.AppendExamEvent(ctx, domain.ExamState{
			ExamID:          "exam-1",
			Status:          status,
			Stage:           stage,
			StatusChangedAt: now.Add(time.Duration(i) * time.Minute),
			CreatedAt:       now.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("append %s: %v", status, err)
		}
	}
	return NewService(store)
}

func TestListEvents(t *testing.T) {
	svc := newTestService(t)

	result, err := svc.ListEvents(context.Background(), Query{ExamID: "exam-1"})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if result.TotalCount != 5 || len(result.Records) != 5 {
		t.Fatalf("total=%d records=%d, want 5/5", result.TotalCount, len(result.Records))
	}
}

func TestListEventsFiltered(t *testing.T) {
	svc := newTestService(t)

	result, err := svc.ListEvents(context.Background(), Query{
		ExamID: "exam-1",
		Filter: `status = "started"`,
	})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if result.TotalCount != 2 {
		t.Fatalf("total = %d, want 2", result.TotalCount)
	}
	for _, record := range result.Records {
		if record.State.Status != domain.StatusStarted {
			t.Fatalf("record status = %s, want started", record.State.Status)
		}
	}
}

func TestListEventsStageFilter(t *testing.T) {
	svc := newTestService(t)

	result, err := svc.ListEvents(context.Background(), Query{
		ExamID: "exam-1",
		Filter: `stage = "inuse" OR stage = "closed"`,
	})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if result.TotalCount != 3 {
		t.Fatalf("total = %d, want 3 (two started, one completed)", result.TotalCount)
	}
}

func TestListEventsInvalidFilter(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.ListEvents(context.Background(), Query{
		ExamID: "exam-1",
		Filter: `student = "student-9999"`,
	})
	if !errors.Is(err, apperrors.New(apperrors.CodeHistoryFilterInvalid, "")) {
		t.Fatalf("error = %v, want CodeHistoryFilterInvalid", err)
	}
}

func TestListEventsRequiresExamID(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.ListEvents(context.Background(), Query{})
	if !errors.Is(err, apperrors.New(apperrors.CodeExamEmptyID, "")) {
		t.Fatalf("error = %v, want CodeExamEmptyID", err)
	}
}
