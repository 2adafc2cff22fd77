// Package examd parses examd command flags and launches the exam runtime.
package examd

import (
	"context"
	"flag"
	"time"

	"github.com/louisbranch/examroom/internal/exam/app"
	entrypoint "github.com/louisbranch/examroom/internal/platform/cmd"
)

// Config holds examd command configuration.
type Config struct {
	DBPath            string        `env:"EXAMROOM_DB_PATH" envDefault:"data/examroom.db"`
	CompletionWebhook string        `env:"EXAMROOM_COMPLETION_WEBHOOK"`
	Consumer          string        `env:"EXAMROOM_OUTBOX_CONSUMER" envDefault:"examd-outbox"`
	OutboxInterval    time.Duration `env:"EXAMROOM_OUTBOX_INTERVAL" envDefault:"2s"`
	OutboxBatch       int           `env:"EXAMROOM_OUTBOX_BATCH" envDefault:"50"`
	LeaseTTL          time.Duration `env:"EXAMROOM_OUTBOX_LEASE_TTL" envDefault:"30s"`
	RetryBackoff      time.Duration `env:"EXAMROOM_OUTBOX_RETRY_BACKOFF" envDefault:"5s"`
	RetryMaxDelay     time.Duration `env:"EXAMROOM_OUTBOX_RETRY_MAX_DELAY" envDefault:"5m"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The exam SQLite database path")
	fs.StringVar(&cfg.CompletionWebhook, "completion-webhook", cfg.CompletionWebhook, "Completion notification webhook URL")
	fs.StringVar(&cfg.Consumer, "consumer", cfg.Consumer, "Completion outbox consumer name")
	fs.DurationVar(&cfg.OutboxInterval, "outbox-interval", cfg.OutboxInterval, "Completion outbox poll interval")
	fs.IntVar(&cfg.OutboxBatch, "outbox-batch", cfg.OutboxBatch, "Completion outbox lease batch size")
	fs.DurationVar(&cfg.LeaseTTL, "outbox-lease-ttl", cfg.LeaseTTL, "Completion outbox lease duration")
	fs.DurationVar(&cfg.RetryBackoff, "outbox-retry-backoff", cfg.RetryBackoff, "Base retry backoff delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "outbox-retry-max-delay", cfg.RetryMaxDelay, "Maximum retry delay")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the examd runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceExamd, func(ctx context.Context) error {
		return app.Run(ctx, app.RuntimeConfig{
			DBPath:            cfg.DBPath,
			CompletionWebhook: cfg.CompletionWebhook,
			Consumer:          cfg.Consumer,
			OutboxInterval:    cfg.OutboxInterval,
			OutboxBatch:       cfg.OutboxBatch,
			LeaseTTL:          cfg.LeaseTTL,
			RetryBackoff:      cfg.RetryBackoff,
			RetryMaxDelay:     cfg.RetryMaxDelay,
		})
	})
}
