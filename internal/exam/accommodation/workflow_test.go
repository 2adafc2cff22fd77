package accommodation

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

func newTestWorkflow(t *testing.T) (*Workflow, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "exam.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewWorkflow(store), store
}

func seedExamWithAccommodations(t *testing.T, workflow *Workflow, store *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	if err := store.CreateExam(ctx, domain.Exam{
		ID:         "exam-1",
		ClientName: "SBAC_PT",
		StudentID:  "student-9999",
		SessionID:  "session-1",
		CreatedAt:  time.Now(),
	}); err != nil {
		t.Fatalf("create exam: %v", err)
	}
	seeds := []domain.Accommodation{
		{ID: "acc-1", ExamID: "exam-1", Type: "Language", Code: "ENU", AllowChange: true},
		{ID: "acc-2", ExamID: "exam-1", Type: "TTS", Code: "TDS_TTS_Item", SegmentKey: "(SBAC_PT)SBAC-SEG1"},
	}
	for _, seed := range seeds {
		if err := workflow.Grant(ctx, seed); err != nil {
			t.Fatalf("grant %s: %v", seed.ID, err)
		}
	}
}

func TestGrantValidation(t *testing.T) {
	workflow, _ := newTestWorkflow(t)
	ctx := context.Background()

	err := workflow.Grant(ctx, domain.Accommodation{ID: "acc-1", ExamID: "exam-1", Code: "ENU"})
	if !errors.Is(err, apperrors.New(apperrors.CodeAccommodationEmptyType, "")) {
		t.Fatalf("error = %v, want CodeAccommodationEmptyType", err)
	}
	err = workflow.Grant(ctx, domain.Accommodation{ID: "acc-1", ExamID: "exam-1", Type: "Language"})
	if !errors.Is(err, apperrors.New(apperrors.CodeAccommodationEmptyCode, "")) {
		t.Fatalf("error = %v, want CodeAccommodationEmptyCode", err)
	}
}

func TestDenyAccommodations(t *testing.T) {
	workflow, store := newTestWorkflow(t)
	seedExamWithAccommodations(t, workflow, store)
	ctx := context.Background()

	if err := workflow.DenyAccommodations(ctx, "exam-1"); err != nil {
		t.Fatalf("deny: %v", err)
	}

	all, err := workflow.FindAllAccommodations(ctx, "exam-1")
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("all = %d, want 2", len(all))
	}
	for _, view := range all {
		if !view.State.Denied() || view.State.Selectable {
			t.Fatalf("accommodation %s not denied: %+v", view.Accommodation.ID, view.State)
		}
	}

	approved, err := workflow.FindApprovedAccommodations(ctx, "exam-1")
	if err != nil {
		t.Fatalf("find approved: %v", err)
	}
	if len(approved) != 0 {
		t.Fatalf("approved = %d, want 0", len(approved))
	}
}

func TestDenyIsIdempotent(t *testing.T) {
	workflow, store := newTestWorkflow(t)
	seedExamWithAccommodations(t, workflow, store)
	ctx := context.Background()

	if err := workflow.DenyAccommodations(ctx, "exam-1"); err != nil {
		t.Fatalf("first deny: %v", err)
	}
	if err := workflow.DenyAccommodations(ctx, "exam-1"); err != nil {
		t.Fatalf("second deny: %v", err)
	}

	all, err := workflow.FindAllAccommodations(ctx, "exam-1")
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	for _, view := range all {
		if view.State.Seq != 2 {
			t.Fatalf("accommodation %s seq = %d, want 2 (no duplicate denial)", view.Accommodation.ID, view.State.Seq)
		}
	}
}

func TestApproveAccommodations(t *testing.T) {
	workflow, store := newTestWorkflow(t)
	seedExamWithAccommodations(t, workflow, store)
	ctx := context.Background()

	if err := workflow.DenyAccommodations(ctx, "exam-1"); err != nil {
		t.Fatalf("deny: %v", err)
	}

	validation, err := workflow.ApproveAccommodations(ctx, "exam-1", Approver{SessionID: "session-1"})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if validation != nil {
		t.Fatalf("validation = %+v, want nil", validation)
	}

	approved, err := workflow.FindApprovedAccommodations(ctx, "exam-1")
	if err != nil {
		t.Fatalf("find approved: %v", err)
	}
	if len(approved) != 2 {
		t.Fatalf("approved = %d, want 2", len(approved))
	}
	for _, view := range approved {
		if !view.State.Selectable {
			t.Fatalf("accommodation %s not selectable after approval", view.Accommodation.ID)
		}
	}
}

func TestApproveSessionMismatchIsValidationValue(t *testing.T) {
	workflow, store := newTestWorkflow(t)
	seedExamWithAccommodations(t, workflow, store)
	ctx := context.Background()

	validation, err := workflow.ApproveAccommodations(ctx, "exam-1", Approver{SessionID: "other-session"})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if validation == nil {
		t.Fatal("validation = nil, want session mismatch value")
	}
	if validation.Code != ValidationSessionMismatch {
		t.Fatalf("validation code = %q, want %q", validation.Code, ValidationSessionMismatch)
	}
}

func TestApproveMissingExam(t *testing.T) {
	workflow, _ := newTestWorkflow(t)

	_, err := workflow.ApproveAccommodations(context.Background(), "no-such-exam", Approver{SessionID: "session-1"})
	if !errors.Is(err, apperrors.New(apperrors.CodeExamNotFound, "")) {
		t.Fatalf("error = %v, want CodeExamNotFound", err)
	}
}
