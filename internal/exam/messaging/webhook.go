package messaging

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/examroom/internal/exam/storage"
)

// topicHeader carries the outbox topic so one endpoint can route multiple
// notification kinds.
const topicHeader = "X-Examroom-Topic"

const defaultWebhookTimeout = 10 * time.Second

// WebhookDeliverer posts outbox payloads to a downstream HTTP endpoint.
type WebhookDeliverer struct {
	client *http.Client
	url    string
}

// NewWebhookDeliverer builds a deliverer targeting the given endpoint.
func NewWebhookDeliverer(url string) *WebhookDeliverer {
	return &WebhookDeliverer{
		client: &http.Client{Timeout: defaultWebhookTimeout},
		url:    url,
	}
}

// Deliver implements Deliverer.
func (d *WebhookDeliverer) Deliver(ctx context.Context, event storage.OutboxEvent) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, strings.NewReader(event.PayloadJSON))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(topicHeader, event.Topic)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}

// LogDeliverer writes notifications to the process log. It is the fallback
// when no webhook endpoint is configured, keeping the outbox draining in
// development environments.
type LogDeliverer struct{}

// Deliver implements Deliverer.
func (LogDeliverer) Deliver(_ context.Context, event storage.OutboxEvent) error {
	log.Printf("outbox deliver (log): topic=%s exam=%s payload=%s", event.Topic, event.ExamID, event.PayloadJSON)
	return nil
}
