package router

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/axiagw/gateway/analyticsclient"
	"github.com/axiagw/gateway/audit"
	"github.com/axiagw/gateway/auth"
	"github.com/axiagw/gateway/cache"
	"github.com/axiagw/gateway/config"
	"github.com/axiagw/gateway/modelrouter"
	"github.com/axiagw/gateway/policy"
	"github.com/axiagw/gateway/provider"
	"github.com/axiagw/gateway/stream"
	"github.com/axiagw/gateway/workflow"
)

func testSetup() http.Handler {
	cfg := &config.Config{
		Addr:             ":0",
		Env:              "test",
		RateLimitEnabled: false,
		CORSOrigins:      []string{"http://localhost:3000"},
		AllowedHosts:     []string{"*"},
		MaxBodyBytes:     1 << 20,
		DefaultTimeout:   5 * time.Second,
	}
	log := zerolog.New(io.Discard).With().Timestamp().Logger()

	httpClient := &http.Client{Timeout: time.Second}
	llmClient := provider.NewClient("http://127.0.0.1:0", httpClient)
	analyticsClient := analyticsclient.NewClient(context.Background(), analyticsclient.Config{BaseURL: "http://127.0.0.1:0"})
	workflowClient := workflow.NewClient("http://127.0.0.1:0", httpClient)
	healthPoller := provider.NewHealthPoller([]provider.Checker{llmClient, analyticsClient, workflowClient}, log, time.Minute)

	cacheEngine := cache.NewEngine(log, nil, time.Hour, 1024)
	auditEngine := audit.NewEngine(log, nil, audit.Config{})
	authService := auth.NewService(log, auth.NewStaticUserLookup(nil), &audit.AuthAdapter{Engine: auditEngine}, auth.Config{
		SecretKey:      "test-secret",
		PasswordMinLen: 12,
	})
	modelRouter := modelrouter.NewRouter(log, llmClient, cacheEngine, modelrouter.DefaultRegistry())
	streamHub := stream.NewHub(log, 100)
	webhooks := workflow.NewWebhookDispatcher(log, httpClient)
	orchestrator := workflow.NewOrchestrator(log, workflowClient, webhooks)
	policyClient := policy.NewOPAClient(policy.OPAConfig{Enabled: false})

	return New(cfg, log, Dependencies{
		AuthService:     authService,
		AuditEngine:     auditEngine,
		CacheEngine:     cacheEngine,
		ModelRouter:     modelRouter,
		PolicyClient:    policyClient,
		AnalyticsClient: analyticsClient,
		StreamHub:       streamHub,
		Orchestrator:    orchestrator,
		HealthPoller:    healthPoller,
		WorkflowSignKey: []byte("test-signing-key"),
	})
}

func TestHealthEndpoints(t *testing.T) {
	r := testSetup()

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"identity", "/", http.StatusOK},
		{"healthz", "/healthz", http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			rw := httptest.NewRecorder()
			r.ServeHTTP(rw, req)
			if rw.Result().StatusCode != tc.status {
				t.Fatalf("expected %d for %s, got %d", tc.status, tc.path, rw.Result().StatusCode)
			}
		})
	}
}

func TestUnauthenticatedProtectedRouteReturns401(t *testing.T) {
	r := testSetup()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/variants", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthenticated /api/v1/variants, got %d", rw.Result().StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	r := testSetup()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatal("expected CORS Allow-Origin header on preflight response")
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := testSetup()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	headers := []string{
		"X-Content-Type-Options",
		"X-Frame-Options",
		"Strict-Transport-Security",
	}
	for _, h := range headers {
		if rw.Header().Get(h) == "" {
			t.Fatalf("expected security header %s to be set", h)
		}
	}
}

func TestOpenAPIDocServed(t *testing.T) {
	r := testSetup()

	req := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Result().StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for /openapi.json, got %d", rw.Result().StatusCode)
	}
}
