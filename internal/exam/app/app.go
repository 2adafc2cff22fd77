// Package app assembles the exam domain services over one store and runs the
// examd runtime.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/examroom/internal/exam/accommodation"
	"github.com/louisbranch/examroom/internal/exam/fieldtest"
	"github.com/louisbranch/examroom/internal/exam/history"
	"github.com/louisbranch/examroom/internal/exam/lifecycle"
	"github.com/louisbranch/examroom/internal/exam/messaging"
	"github.com/louisbranch/examroom/internal/exam/segment"
	"github.com/louisbranch/examroom/internal/exam/storage"
	"github.com/louisbranch/examroom/internal/exam/storage/sqlite"
	"github.com/louisbranch/examroom/internal/exam/transition"
)

// App is the wired set of exam domain services sharing one store.
type App struct {
	Lifecycle      *lifecycle.Service
	Segments       *segment.Manager
	FieldTest      *fieldtest.Tracker
	Accommodations *accommodation.Workflow
	History        *history.Service
	Completions    *messaging.Sender
}

// New wires the domain services and the transition listener registry over the
// provided store. Listener order is fixed: paused, completed, denied, expired.
func New(store storage.Store) *App {
	tracker := fieldtest.NewTracker(store)
	workflow := accommodation.NewWorkflow(store)
	sender := messaging.NewSender(store)

	dispatcher := transition.NewDispatcher(
		transition.NewPausedListener(store),
		transition.NewCompletedListener(tracker),
		transition.NewDeniedListener(workflow),
		transition.NewExpiredListener(sender),
	)

	return &App{
		Lifecycle:      lifecycle.NewService(store, dispatcher),
		Segments:       segment.NewManager(store),
		FieldTest:      tracker,
		Accommodations: workflow,
		History:        history.NewService(store),
		Completions:    sender,
	}
}

// RuntimeConfig controls examd startup and the outbox delivery loop.
type RuntimeConfig struct {
	DBPath            string
	CompletionWebhook string
	Consumer          string
	OutboxInterval    time.Duration
	OutboxBatch       int
	LeaseTTL          time.Duration
	RetryBackoff      time.Duration
	RetryMaxDelay     time.Duration
}

const defaultDBPath = "data/examroom.db"

// Run opens the store, wires the services, and drains the completion outbox
// until the context is cancelled.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultDBPath
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open exam sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close exam sqlite store: %v", closeErr)
		}
	}()

	var deliverer messaging.Deliverer = messaging.LogDeliverer{}
	if strings.TrimSpace(cfg.CompletionWebhook) != "" {
		deliverer = messaging.NewWebhookDeliverer(cfg.CompletionWebhook)
	}

	worker := messaging.NewWorker(store, deliverer, messaging.WorkerConfig{
		Consumer:      cfg.Consumer,
		PollInterval:  cfg.OutboxInterval,
		LeaseTTL:      cfg.LeaseTTL,
		BatchSize:     cfg.OutboxBatch,
		RetryBackoff:  cfg.RetryBackoff,
		RetryMaxDelay: cfg.RetryMaxDelay,
	})

	log.Printf("examd running with store at %s", cfg.DBPath)
	return worker.Run(ctx)
}
