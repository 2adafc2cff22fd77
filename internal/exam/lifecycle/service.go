// Package lifecycle drives the exam status state machine: opening exams and
// moving them through the fixed status code table.
package lifecycle

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/louisbranch/examroom/internal/exam/domain"
	"github.com/louisbranch/examroom/internal/exam/storage"
	apperrors "github.com/louisbranch/examroom/internal/platform/errors"
)

// Dispatcher fans a committed status change out to its side effects.
type Dispatcher interface {
	Dispatch(ctx context.Context, oldState, newState domain.ExamState) error
}

// Service owns exam status transitions.
type Service struct {
	store      storage.ExamStore
	dispatcher Dispatcher
	now        func() time.Time
}

// NewService builds the lifecycle service. A nil dispatcher disables listener
// side effects; tests use that to exercise transitions in isolation.
func NewService(store storage.ExamStore, dispatcher Dispatcher) *Service {
	return &Service{store: store, dispatcher: dispatcher, now: time.Now}
}

// OpenRequest describes an exam opening.
type OpenRequest struct {
	Exam     domain.Exam
	Language string
	MaxItems int
}

// OpenExam materializes a new exam: the identity row plus the first pending
// event. Re-opening an identity that already has events bumps the attempt
// counter instead of failing; a paused exam restarts with its restart counter
// bumped.
func (s *Service) OpenExam(ctx context.Context, req OpenRequest) (domain.ExamState, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExamState{}, err
	}
	if err := validateExamIdentity(req.Exam); err != nil {
		return domain.ExamState{}, err
	}

	now := s.now()
	next := domain.ExamState{
		ExamID:          req.Exam.ID,
		Status:          domain.StatusPending,
		Stage:           domain.StageOpen,
		StatusChangedAt: now,
		Attempts:        1,
		Language:        req.Language,
		MaxItems:        req.MaxItems,
		CreatedAt:       now,
	}

	_, err := s.store.GetExam(ctx, req.Exam.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		exam := req.Exam
		if exam.CreatedAt.IsZero() {
			exam.CreatedAt = now
		}
		if err := s.store.CreateExam(ctx, exam); err != nil {
			return domain.ExamState{}, err
		}
	case err != nil:
		return domain.ExamState{}, err
	default:
		// Identity exists: this is a re-open. Carry forward the counters.
		prev, err := s.store.LatestExamState(ctx, req.Exam.ID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return domain.ExamState{}, err
		}
		if err == nil {
			next = prev.NextSnapshot(now)
			next.Status = domain.StatusPending
			next.Stage = domain.StageOpen
			next.StatusChangedAt = now
			next.StatusReason = ""
			next.Attempts = prev.Attempts + 1
			if prev.Status == domain.StatusPaused {
				next.Restarts = prev.Restarts + 1
			}
		}
	}

	seq, err := s.store.AppendExamEvent(ctx, next)
	if err != nil {
		return domain.ExamState{}, err
	}
	next.Seq = seq
	return next, nil
}

// ChangeStatus resolves a status code, copies the latest snapshot forward
// with the new status facts stamped in, appends the event, and fires the
// transition listeners.
func (s *Service) ChangeStatus(ctx context.Context, examID, statusValue, reason string) (domain.ExamState, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExamState{}, err
	}
	if strings.TrimSpace(examID) == "" {
		return domain.ExamState{}, apperrors.New(apperrors.CodeExamEmptyID, "exam id is required")
	}

	status, err := domain.ParseStatus(statusValue)
	if err != nil {
		return domain.ExamState{}, err
	}
	stage, err := domain.StageFor(status)
	if err != nil {
		return domain.ExamState{}, err
	}

	prev, err := s.store.LatestExamState(ctx, examID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.ExamState{}, apperrors.WithMetadata(
				apperrors.CodeExamNotFound,
				"exam does not exist",
				map[string]string{"exam_id": examID},
			)
		}
		return domain.ExamState{}, err
	}

	now := s.now()
	next := prev.NextSnapshot(now)
	next.Status = status
	next.Stage = stage
	next.StatusChangedAt = now
	next.StatusReason = reason
	stampStatusTimes(&next, prev, status, now)

	seq, err := s.store.AppendExamEvent(ctx, next)
	if err != nil {
		return domain.ExamState{}, err
	}
	next.Seq = seq

	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, prev, next); err != nil {
			return domain.ExamState{}, err
		}
	}
	return next, nil
}

// stampStatusTimes records the entering-status timestamp and the counters
// tied to specific statuses.
func stampStatusTimes(next *domain.ExamState, prev domain.ExamState, status domain.Status, now time.Time) {
	switch status {
	case domain.StatusStarted:
		if next.StartedAt == nil {
			next.StartedAt = &now
		} else if prev.Status == domain.StatusPaused {
			next.Restarts = prev.Restarts + 1
		}
	case domain.StatusCompleted:
		next.CompletedAt = &now
	case domain.StatusScored:
		next.ScoredAt = &now
	case domain.StatusExpired:
		next.ExpiredAt = &now
	}
}

func validateExamIdentity(exam domain.Exam) error {
	if strings.TrimSpace(exam.ID) == "" {
		return apperrors.New(apperrors.CodeExamEmptyID, "exam id is required")
	}
	if strings.TrimSpace(exam.ClientName) == "" {
		return apperrors.New(apperrors.CodeExamEmptyClient, "exam client name is required")
	}
	if strings.TrimSpace(exam.StudentID) == "" {
		return apperrors.New(apperrors.CodeExamEmptyStudent, "exam student id is required")
	}
	return nil
}
