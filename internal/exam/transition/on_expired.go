package transition

import (
	"context"
	"log"

	"github.com/louisbranch/examroom/internal/exam/domain"
)

// CompletionNotifier hands a finished exam to the downstream notification
// boundary.
type CompletionNotifier interface {
	SendExamCompletion(ctx context.Context, examID string) error
}

// ExpiredListener notifies the downstream system about expired exams.
//
// Delivery is best effort: the expiration itself must stand even when the
// notification boundary is down, so failures are logged and absorbed.
type ExpiredListener struct {
	notifier CompletionNotifier
}

// NewExpiredListener builds the expiration listener on a notifier.
func NewExpiredListener(notifier CompletionNotifier) *ExpiredListener {
	return &ExpiredListener{notifier: notifier}
}

// Name implements Listener.
func (l *ExpiredListener) Name() string { return "expired" }

// OnStatusChange implements Listener.
func (l *ExpiredListener) OnStatusChange(ctx context.Context, oldState, newState domain.ExamState) error {
	if newState.Status != domain.StatusExpired {
		return nil
	}
	if err := l.notifier.SendExamCompletion(ctx, newState.ExamID); err != nil {
		log.Printf("expired listener: completion notification for exam %s failed: %v", newState.ExamID, err)
	}
	return nil
}
