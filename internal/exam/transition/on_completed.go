package transition

import (
	"context"

	"github.com/louisbranch/examroom/internal/exam/domain"
	"github.com/louisbranch/examroom/internal/exam/fieldtest"
)

// CompletedListener records field-test usage when an exam completes. The
// downstream reporting feed reads administered positions from the group event
// stream after the fact.
type CompletedListener struct {
	tracker *fieldtest.Tracker
}

// NewCompletedListener builds the completion listener on a usage tracker.
func NewCompletedListener(tracker *fieldtest.Tracker) *CompletedListener {
	return &CompletedListener{tracker: tracker}
}

// Name implements Listener.
func (l *CompletedListener) Name() string { return "completed" }

// OnStatusChange implements Listener. An exam with no administered field-test
// groups records nothing.
func (l *CompletedListener) OnStatusChange(ctx context.Context, oldState, newState domain.ExamState) error {
	if newState.Status != domain.StatusCompleted {
		return nil
	}
	return l.tracker.RecordUsage(ctx, newState.ExamID)
}
