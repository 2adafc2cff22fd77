// Package accommodation implements the approval workflow for exam
// accommodations: proctor approval, denial on status change, and the
// approved/all projections.
package accommodation

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/examroom/internal/exam/domain"
	"github.com/louisbranch/examroom/internal/exam/storage"
	apperrors "github.com/louisbranch/examroom/internal/platform/errors"
)

// workflowStore is the slice of persistence the workflow needs.
type workflowStore interface {
	storage.ExamStore
	storage.AccommodationStore
}

// Approver identifies the proctor session approving accommodations.
type Approver struct {
	SessionID string
}

// ValidationError is a business-rule rejection returned as a value. It is not
// a Go error: the request was well-formed, the rule simply said no.
type ValidationError struct {
	Code    string
	Message string
}

// Validation codes.
const (
	ValidationSessionMismatch = "session_mismatch"
)

// Workflow coordinates accommodation state changes for one exam store.
type Workflow struct {
	store workflowStore
	now   func() time.Time
}

// NewWorkflow builds an accommodation workflow on the provided store.
func NewWorkflow(store workflowStore) *Workflow {
	return &Workflow{store: store, now: time.Now}
}

// DenyAccommodations stamps a denial on every currently un-denied,
// non-deleted accommodation of the exam.
func (w *Workflow) DenyAccommodations(ctx context.Context, examID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	views, err := w.store.LatestAccommodations(ctx, examID)
	if err != nil {
		return err
	}

	now := w.now()
	for _, view := range views {
		if view.State.Denied() {
			continue
		}
		next := view.State.NextSnapshot(now)
		next.DeniedAt = &now
		next.Selectable = false
		if _, err := w.store.AppendAccommodationEvent(ctx, next); err != nil {
			return err
		}
	}
	return nil
}

// ApproveAccommodations clears denials on every accommodation of the exam.
//
// The approver's session must match the exam's current session; a mismatch is
// a business outcome reported as a validation value, not an error.
func (w *Workflow) ApproveAccommodations(ctx context.Context, examID string, approver Approver) (*ValidationError, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	exam, err := w.store.GetExam(ctx, examID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.WithMetadata(
				apperrors.CodeExamNotFound,
				"exam does not exist",
				map[string]string{"exam_id": examID},
			)
		}
		return nil, err
	}
	if approver.SessionID != exam.SessionID {
		return &ValidationError{
			Code:    ValidationSessionMismatch,
			Message: "approver session does not match the exam session",
		}, nil
	}

	views, err := w.store.LatestAccommodations(ctx, examID)
	if err != nil {
		return nil, err
	}

	now := w.now()
	for _, view := range views {
		if !view.State.Denied() && view.State.Selectable {
			continue
		}
		next := view.State.NextSnapshot(now)
		next.DeniedAt = nil
		next.Selectable = true
		if _, err := w.store.AppendAccommodationEvent(ctx, next); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// FindApprovedAccommodations projects the exam's current accommodations whose
// latest event carries no denial.
func (w *Workflow) FindApprovedAccommodations(ctx context.Context, examID string) ([]storage.AccommodationView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	views, err := w.store.LatestAccommodations(ctx, examID)
	if err != nil {
		return nil, err
	}
	approved := make([]storage.AccommodationView, 0, len(views))
	for _, view := range views {
		if view.State.Denied() {
			continue
		}
		approved = append(approved, view)
	}
	return approved, nil
}

// FindAllAccommodations projects every current non-deleted accommodation,
// denied or not.
func (w *Workflow) FindAllAccommodations(ctx context.Context, examID string) ([]storage.AccommodationView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return w.store.LatestAccommodations(ctx, examID)
}

// Grant materializes a new accommodation identity with its first selectable
// event.
func (w *Workflow) Grant(ctx context.Context, acc domain.Accommodation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if acc.Type == "" {
		return apperrors.New(apperrors.CodeAccommodationEmptyType, "accommodation type is required")
	}
	if acc.Code == "" {
		return apperrors.New(apperrors.CodeAccommodationEmptyCode, "accommodation code is required")
	}

	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = w.now()
	}
	if err := w.store.CreateAccommodation(ctx, acc); err != nil {
		return err
	}
	_, err := w.store.AppendAccommodationEvent(ctx, domain.AccommodationState{
		AccommodationID: acc.ID,
		Selectable:      true,
		CreatedAt:       acc.CreatedAt,
	})
	return err
}
