package messaging

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/louisbranch/examroom/internal/exam/storage"
)

// Deliverer hands one leased outbox event to the downstream system.
type Deliverer interface {
	Deliver(ctx context.Context, event storage.OutboxEvent) error
}

// WorkerConfig controls the delivery loop.
type WorkerConfig struct {
	Consumer      string
	PollInterval  time.Duration
	LeaseTTL      time.Duration
	BatchSize     int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
}

const (
	defaultConsumer      = "examd-outbox"
	defaultPollInterval  = 2 * time.Second
	defaultLeaseTTL      = 30 * time.Second
	defaultBatchSize     = 50
	defaultRetryBackoff  = 5 * time.Second
	defaultRetryMaxDelay = 5 * time.Minute
)

func (c WorkerConfig) normalized() WorkerConfig {
	if strings.TrimSpace(c.Consumer) == "" {
		c.Consumer = defaultConsumer
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaultLeaseTTL
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	return c
}

// Worker drains the completion outbox.
type Worker struct {
	store     storage.OutboxStore
	deliverer Deliverer
	cfg       WorkerConfig
	now       func() time.Time
}

// NewWorker builds a delivery worker.
func NewWorker(store storage.OutboxStore, deliverer Deliverer, cfg WorkerConfig) *Worker {
	return &Worker{
		store:     store,
		deliverer: deliverer,
		cfg:       cfg.normalized(),
		now:       time.Now,
	}
}

// Run polls the outbox until the context is cancelled. Cancellation is the
// only way out; delivery errors are absorbed into retry scheduling.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.ProcessBatch(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("outbox worker: process batch: %v", err)
			}
		}
	}
}

// ProcessBatch leases one batch of due events and attempts delivery for each.
func (w *Worker) ProcessBatch(ctx context.Context) error {
	now := w.now()
	events, err := w.store.LeaseOutboxEvents(ctx, w.cfg.Consumer, w.cfg.BatchSize, now, w.cfg.LeaseTTL)
	if err != nil {
		return err
	}

	for _, event := range events {
		if err := w.deliverer.Deliver(ctx, event); err != nil {
			delay := retryDelay(w.cfg.RetryBackoff, w.cfg.RetryMaxDelay, event.AttemptCount)
			if markErr := w.store.MarkOutboxFailed(ctx, event.ID, err.Error(), w.now().Add(delay)); markErr != nil {
				return markErr
			}
			log.Printf("outbox worker: deliver event %s (attempt %d): %v", event.ID, event.AttemptCount, err)
			continue
		}
		if err := w.store.MarkOutboxDelivered(ctx, event.ID, w.now()); err != nil {
			return err
		}
	}
	return nil
}

// retryDelay doubles the base delay per attempt up to the configured cap.
func retryDelay(base, max time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
