package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/examroom/internal/exam/domain"
	"github.com/louisbranch/examroom/internal/exam/storage"
	"github.com/louisbranch/examroom/internal/exam/storage/sqlite"
	apperrors "github.com/louisbranch/examroom/internal/platform/errors"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "exam.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.CreateExam(context.Background(), domain.Exam{
		ID:         "exam-1",
		ClientName: "SBAC_PT",
		StudentID:  "student-9999",
		CreatedAt:  time.Now(),
	}); err != nil {
		t.Fatalf("create exam: %v", err)
	}
	return store
}

func TestSendExamCompletion(t *testing.T) {
	store := newTestStore(t)
	sender := NewSender(store)
	ctx := context.Background()

	if err := sender.SendExamCompletion(ctx, "exam-1"); err != nil {
		t.Fatalf("send: %v", err)
	}

	leased, err := store.LeaseOutboxEvents(ctx, "test-consumer", 10, time.Now(), time.Minute)
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if len(leased) != 1 {
		t.Fatalf("leased = %d, want 1", len(leased))
	}
	event := leased[0]
	if event.Topic != TopicExamCompleted || event.ExamID != "exam-1" {
		t.Fatalf("unexpected event: %+v", event)
	}

	var payload completionPayload
	if err := json.Unmarshal([]byte(event.PayloadJSON), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.ExamID != "exam-1" || payload.QueuedAt == "" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestSendExamCompletionValidation(t *testing.T) {
	sender := NewSender(newTestStore(t))

	err := sender.SendExamCompletion(context.Background(), "  ")
	if !errors.Is(err, apperrors.New(apperrors.CodeExamEmptyID, "")) {
		t.Fatalf("error = %v, want CodeExamEmptyID", err)
	}
}

type fakeDeliverer struct {
	delivered []string
	failures  int
}

func (d *fakeDeliverer) Deliver(_ context.Context, event storage.OutboxEvent) error {
	if d.failures > 0 {
		d.failures--
		return errors.New("downstream unavailable")
	}
	d.delivered = append(d.delivered, event.ID)
	return nil
}

func TestWorkerDeliversBatch(t *testing.T) {
	store := newTestStore(t)
	sender := NewSender(store)
	ctx := context.Background()

	if err := sender.SendExamCompletion(ctx, "exam-1"); err != nil {
		t.Fatalf("send: %v", err)
	}

	deliverer := &fakeDeliverer{}
	worker := NewWorker(store, deliverer, WorkerConfig{Consumer: "test-consumer"})
	if err := worker.ProcessBatch(ctx); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(deliverer.delivered) != 1 {
		t.Fatalf("delivered = %d, want 1", len(deliverer.delivered))
	}

	// Delivered events do not come back.
	if err := worker.ProcessBatch(ctx); err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if len(deliverer.delivered) != 1 {
		t.Fatalf("delivered = %d after second batch, want 1", len(deliverer.delivered))
	}
}

func TestWorkerRetriesAfterFailure(t *testing.T) {
	store := newTestStore(t)
	sender := NewSender(store)
	ctx := context.Background()

	if err := sender.SendExamCompletion(ctx, "exam-1"); err != nil {
		t.Fatalf("send: %v", err)
	}

	deliverer := &fakeDeliverer{failures: 1}
	worker := NewWorker(store, deliverer, WorkerConfig{
		Consumer:     "test-consumer",
		RetryBackoff: 10 * time.Millisecond,
	})
	if err := worker.ProcessBatch(ctx); err != nil {
		t.Fatalf("failing batch: %v", err)
	}
	if len(deliverer.delivered) != 0 {
		t.Fatalf("delivered = %d, want 0 on failure", len(deliverer.delivered))
	}

	// Move past the retry window and the lease.
	worker.now = func() time.Time { return time.Now().Add(time.Minute) }
	if err := worker.ProcessBatch(ctx); err != nil {
		t.Fatalf("retry batch: %v", err)
	}
	if len(deliverer.delivered) != 1 {
		t.Fatalf("delivered = %d after retry, want 1", len(deliverer.delivered))
	}
}

func TestRetryDelay(t *testing.T) {
	base := 5 * time.Second
	max := time.Minute

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 5 * time.Second},
		{attempt: 1, want: 5 * time.Second},
		{attempt: 2, want: 10 * time.Second},
		{attempt: 3, want: 20 * time.Second},
		{attempt: 4, want: 40 * time.Second},
		{attempt: 5, want: time.Minute},
		{attempt: 20, want: time.Minute},
	}
	for _, tt := range tests {
		if got := retryDelay(base, max, tt.attempt); got != tt.want {
			t.Fatalf("retryDelay(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
