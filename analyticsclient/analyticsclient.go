// Package analyticsclient talks to the external analytics dataset
// service: an OAuth2 client-credentials-protected HTTP API that
// executes a query language and returns tabular results as JSON or
// CSV. The gateway performs no analytics computation itself — this
// package is a thin, authenticated transport.
package analyticsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/axiagw/gateway/provider"
	"golang.org/x/oauth2/clientcredentials"
)

// Format is the tabular encoding the caller wants the query result in.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Config configures the client's OAuth2 client-credentials flow and
// the dataset service's base URL.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// Client is the authenticated dataset-service client.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client whose underlying http.Client automatically
// acquires and refreshes bearer tokens via the client-credentials
// grant; callers never handle tokens directly.
func NewClient(ctx context.Context, cfg Config) *Client {
	oauthCfg := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    oauthCfg.Client(ctx),
	}
}

// Name identifies this backend for pooling and health-check purposes.
func (c *Client) Name() string { return "analytics_dataset" }

// QueryRequest is the body the dataset service's query endpoints accept.
type QueryRequest struct {
	Query  string `json:"query"`
	Format Format `json:"format"`
}

// QueryResult is a decoded JSON-format query response. CSV-format
// responses are returned as raw bytes by QueryRaw instead, since the
// gateway does not parse or reshape tabular data.
type QueryResult struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
	RowCount int            `json:"row_count"`
}

// Query executes a query in JSON format and decodes the tabular result.
func (c *Client) Query(ctx context.Context, query string) (*QueryResult, error) {
	raw, err := c.QueryRaw(ctx, query, FormatJSON)
	if err != nil {
		return nil, err
	}
	var out QueryResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode query result: %w", err)
	}
	return &out, nil
}

// QueryRaw executes a query and returns the response body verbatim,
// letting the caller pass CSV straight through to its own client.
func (c *Client) QueryRaw(ctx context.Context, query string, format Format) ([]byte, error) {
	if format == "" {
		format = FormatJSON
	}
	body, err := json.Marshal(QueryRequest{Query: query, Format: format})
	if err != nil {
		return nil, fmt.Errorf("marshal query request: %w", err)
	}
	return c.post(ctx, "/api/powerbi/axia/query", body)
}

// QueryNatural submits a natural-language question for the dataset
// service to translate into its query language and execute.
func (c *Client) QueryNatural(ctx context.Context, question string) (*QueryResult, error) {
	body, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return nil, fmt.Errorf("marshal natural query request: %w", err)
	}
	raw, err := c.post(ctx, "/api/powerbi/axia/query/natural", body)
	if err != nil {
		return nil, err
	}
	var out QueryResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode natural query result: %w", err)
	}
	return &out, nil
}

// RefreshResult reports the outcome of a dataset refresh trigger.
type RefreshResult struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// Refresh triggers a dataset refresh on the external service.
func (c *Client) Refresh(ctx context.Context) (*RefreshResult, error) {
	raw, err := c.post(ctx, "/api/powerbi/axia/refresh", nil)
	if err != nil {
		return nil, err
	}
	var out RefreshResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode refresh result: %w", err)
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build dataset request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dispatch dataset request: %w", err)
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("read dataset response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("dataset service returned status %d: %s", resp.StatusCode, buf.String())
	}
	return buf.Bytes(), nil
}

// HealthCheck satisfies provider.Checker so the dataset service can be
// monitored by the same health poller as the LLM backend.
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
