package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/axiagw/gateway/modelrouter"
)

// VariantHandler serves read-only introspection over the fixed model
// variant registry. The registry never mutates at runtime, so unlike
// a provider-config CRUD surface this exposes no write operations.
type VariantHandler struct {
	logger zerolog.Logger
	router *modelrouter.Router
}

// NewVariantHandler creates a new variant introspection handler.
func NewVariantHandler(logger zerolog.Logger, router *modelrouter.Router) *VariantHandler {
	return &VariantHandler{
		logger: logger.With().Str("component", "variant_handler").Logger(),
		router: router,
	}
}

// VariantInfo is a single variant's publicly visible configuration.
type VariantInfo struct {
	Name             string  `json:"name"`
	Deployment       string  `json:"deployment"`
	MaxCompletionTok int     `json:"max_completion_tokens"`
	TargetP50Ms      int64   `json:"target_p50_ms"`
	CostWeight       float64 `json:"cost_weight"`
	UseCase          string  `json:"use_case"`
}

// ListVariants handles GET /api/v1/variants — lists the fixed variant set.
func (h *VariantHandler) ListVariants(w http.ResponseWriter, r *http.Request) {
	registry := h.router.Variants()
	variants := make([]VariantInfo, 0, len(registry))
	for name, spec := range registry {
		variants = append(variants, VariantInfo{
			Name:             string(name),
			Deployment:       spec.Deployment,
			MaxCompletionTok: spec.MaxCompletionTok,
			TargetP50Ms:      spec.TargetP50.Milliseconds(),
			CostWeight:       spec.CostWeight,
			UseCase:          spec.UseCase,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"object": "list",
		"data":   variants,
		"total":  len(variants),
	})
}

// GetVariant handles GET /api/v1/variants/{name}.
func (h *VariantHandler) GetVariant(w http.ResponseWriter, r *http.Request) {
	name := modelrouter.Variant(chi.URLParam(r, "name"))
	spec, ok := h.router.Variants()[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": map[string]string{
				"type":    "not_found",
				"message": "variant '" + string(name) + "' not found",
			},
		})
		return
	}

	writeJSON(w, http.StatusOK, VariantInfo{
		Name:             string(name),
		Deployment:       spec.Deployment,
		MaxCompletionTok: spec.MaxCompletionTok,
		TargetP50Ms:      spec.TargetP50.Milliseconds(),
		CostWeight:       spec.CostWeight,
		UseCase:          spec.UseCase,
	})
}

// BackendHealth handles GET /api/v1/variants/health — every variant
// dispatches through the same backend, so this is a single check.
func (h *VariantHandler) BackendHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.router.BackendHealth(ctx)
	httpStatus := http.StatusOK
	if !status.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]interface{}{
		"healthy":    status.Healthy,
		"latency_ms": status.Latency.Milliseconds(),
		"last_check": status.LastCheck.Format(time.RFC3339),
		"error":      status.Error,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"type":    errType,
			"message": message,
		},
	})
}
