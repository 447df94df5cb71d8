package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/axiagw/gateway/provider"
)

// TriggerRequest is POSTed to the external workflow service for every
// execution.
type TriggerRequest struct {
	ExecutionID string                 `json:"execution_id"`
	CallbackURL string                 `json:"callback_url"`
	Definition  string                 `json:"definition_id"`
	Type        Type                   `json:"type"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

// TriggerResponse is the external service's immediate reply. Async
// indicates a 202 was returned and the orchestrator must wait on the
// callback channel instead of trusting Result here.
type TriggerResponse struct {
	Async  bool
	Result map[string]interface{}
}

// Client talks to the external workflow service.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{baseURL: baseURL, http: httpClient}
}

func (c *Client) Name() string { return "workflow_service" }

// Trigger POSTs an execution request. A 2xx response with a body is
// treated as a synchronous result; a 202 signals the caller to await
// the async callback instead.
func (c *Client) Trigger(ctx context.Context, req TriggerRequest) (*TriggerResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal trigger request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/trigger", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build trigger request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dispatch trigger request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		return &TriggerResponse{Async: true}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("workflow service returned status %d", resp.StatusCode)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode trigger response: %w", err)
	}
	return &TriggerResponse{Result: result}, nil
}

// HealthCheck satisfies provider.Checker.
func (c *Client) HealthCheck(ctx context.Context) provider.HealthStatus {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return provider.HealthStatus{Healthy: false, LastCheck: start, Error: err.Error()}
	}

	resp, err := c.http.Do(req)
	latency := time.Since(start)
	if err != nil {
		return provider.HealthStatus{Healthy: false, Latency: latency, LastCheck: start, Error: err.Error()}
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode >= 200 && resp.StatusCode < 300
	status := provider.HealthStatus{Healthy: healthy, Latency: latency, LastCheck: start}
	if !healthy {
		status.Error = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return status
}
