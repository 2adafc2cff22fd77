package transition

import (
	"context"

	"github.com/louisbranch/examroom/internal/exam/accommodation"
	"github.com/louisbranch/examroom/internal/exam/domain"
)

// DeniedListener stamps a denial on the exam's accommodations when a proctor
// denies the exam.
type DeniedListener struct {
	workflow *accommodation.Workflow
}

// NewDeniedListener builds the denial listener on an accommodation workflow.
func NewDeniedListener(workflow *accommodation.Workflow) *DeniedListener {
	return &DeniedListener{workflow: workflow}
}

// Name implements Listener.
func (l *DeniedListener) Name() string { return "denied" }

// OnStatusChange implements Listener.
func (l *DeniedListener) OnStatusChange(ctx context.Context, oldState, newState domain.ExamState) error {
	if newState.Status != domain.StatusDenied {
		return nil
	}
	return l.workflow.DenyAccommodations(ctx, newState.ExamID)
}
