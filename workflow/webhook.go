package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
)

// WebhookEvent is fanned out to subscribers on an execution's terminal
// states (completed, failed, timed_out, cancelled).
type WebhookEvent struct {
	Type        string `json:"type"`
	ExecutionID string `json:"execution_id"`
	DefinitionID string `json:"definition_id"`
	Status      Status `json:"status"`
}

// WebhookDispatcher fans out terminal-state events to registered
// subscriber URLs, best-effort: delivery failures are logged, never
// raised.
type WebhookDispatcher struct {
	logger zerolog.Logger
	http   *http.Client

	mu          sync.RWMutex
	subscribers map[string][]string // subscription key -> URLs
}

func NewWebhookDispatcher(logger zerolog.Logger, httpClient *http.Client) *WebhookDispatcher {
	return &WebhookDispatcher{
		logger:      logger.With().Str("component", "workflow_webhooks").Logger(),
		http:        httpClient,
		subscribers: make(map[string][]string),
	}
}

// Subscribe registers url to receive events tagged with key.
func (d *WebhookDispatcher) Subscribe(key, url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[key] = append(d.subscribers[key], url)
}

// Dispatch delivers event to every subscriber of key, in the
// background, never blocking the caller's execution state transition.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, key string, event WebhookEvent) {
	d.mu.RLock()
	urls := append([]string(nil), d.subscribers[key]...)
	d.mu.RUnlock()

	if len(urls) == 0 {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to marshal webhook event")
		return
	}

	for _, url := range urls {
		go d.deliver(ctx, url, body)
	}
}

func (d *WebhookDispatcher) deliver(ctx context.Context, url string, body []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		d.logger.Warn().Err(err).Str("url", url).Msg("failed to build webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		d.logger.Warn().Err(err).Str("url", url).Msg("webhook delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		d.logger.Warn().Int("status", resp.StatusCode).Str("url", url).Msg("webhook subscriber returned non-2xx")
	}
}
