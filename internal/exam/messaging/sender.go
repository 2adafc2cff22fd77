// Package messaging is the completion-notification boundary: a durable
// outbox written by the domain and drained by a lease-based delivery worker.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/examroom/internal/exam/storage"
	apperrors "github.com/louisbranch/examroom/internal/platform/errors"
	"github.com/louisbranch/examroom/internal/platform/id"
)

// TopicExamCompleted is the topic for finished-exam notifications. Completed
// and expired exams both publish here; the downstream scoring feed treats
// expiration as a completion variant.
const TopicExamCompleted = "exam.completed"

// completionPayload is the wire shape of a completion notification.
type completionPayload struct {
	ExamID   string `json:"examId"`
	QueuedAt string `json:"queuedAt"`
}

// Sender enqueues completion notifications into the outbox.
type Sender struct {
	store storage.OutboxStore
	now   func() time.Time
}

// NewSender builds a sender on the provided outbox store.
func NewSender(store storage.OutboxStore) *Sender {
	return &Sender{store: store, now: time.Now}
}

// SendExamCompletion stores one pending notification for the exam. Durability
// ends here; delivery happens asynchronously in the worker.
func (s *Sender) SendExamCompletion(ctx context.Context, examID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(examID) == "" {
		return apperrors.New(apperrors.CodeExamEmptyID, "exam id is required")
	}

	now := s.now()
	payload, err := json.Marshal(completionPayload{
		ExamID:   examID,
		QueuedAt: now.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal completion payload: %w", err)
	}

	eventID, err := id.NewID()
	if err != nil {
		return fmt.Errorf("generate outbox event id: %w", err)
	}

	return s.store.EnqueueOutboxEvent(ctx, storage.OutboxEvent{
		ID:            eventID,
		Topic:         TopicExamCompleted,
		ExamID:        examID,
		PayloadJSON:   string(payload),
		Status:        storage.OutboxStatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}
