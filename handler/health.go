package handler

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/axiagw/gateway/provider"
)

// HealthHandler serves the service identity banner and liveness
// endpoints, plus the backend health-poller snapshot.
type HealthHandler struct {
	poller    *provider.HealthPoller
	startedAt time.Time
	logger    zerolog.Logger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(poller *provider.HealthPoller, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		poller:    poller,
		startedAt: time.Now(),
		logger:    logger.With().Str("component", "health_handler").Logger(),
	}
}

// Identity handles GET / — an unauthenticated banner identifying the
// service, useful for smoke-testing a deployment.
func (h *HealthHandler) Identity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "ai-gateway",
		"status":  "running",
		"uptime":  time.Since(h.startedAt).String(),
	})
}

// Liveness handles GET /healthz and GET /api/v1/health — always 200 as
// long as the process can serve HTTP; it does not probe backends.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"alive": true})
}

// BackendHealth handles GET /api/v1/providers/health — the poller's
// last-known status for every backend it checks (LLM backend,
// analytics dataset service, workflow service).
func (h *HealthHandler) BackendHealth(w http.ResponseWriter, r *http.Request) {
	statuses := h.poller.Statuses()
	allHealthy := true
	for _, healthy := range statuses {
		if !healthy {
			allHealthy = false
			break
		}
	}

	status := http.StatusOK
	if !allHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"healthy":  allHealthy,
		"backends": statuses,
	})
}
