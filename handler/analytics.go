package handler

import (
	"encoding/json"
	"net/http"

	"github.com/axiagw/gateway/analyticsclient"
	"github.com/axiagw/gateway/apierr"
	"github.com/rs/zerolog"
)

// AnalyticsHandler serves the analytics dataset surface: direct query
// execution, natural-language query translation, and refresh triggers.
type AnalyticsHandler struct {
	client *analyticsclient.Client
	logger zerolog.Logger
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(client *analyticsclient.Client, logger zerolog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		client: client,
		logger: logger.With().Str("component", "analytics_handler").Logger(),
	}
}

// queryRequestBody is the documented POST /api/powerbi/axia/query body.
type queryRequestBody struct {
	Query  string               `json:"query"`
	Format analyticsclient.Format `json:"format"`
}

// Query handles POST /api/powerbi/axia/query · /api/v1/powerbi/query.
func (h *AnalyticsHandler) Query(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFromContext(r)

	var body queryRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.Write(w, reqID, apierr.BadRequest("failed to parse request body: "+err.Error()))
		return
	}
	if body.Query == "" {
		apierr.Write(w, reqID, apierr.Validation("query is required"))
		return
	}
	if body.Format == "" {
		body.Format = analyticsclient.FormatJSON
	}

	h.logger.Info().Str("request_id", reqID).Str("format", string(body.Format)).Msg("analytics query")

	if body.Format == analyticsclient.FormatCSV {
		raw, err := h.client.QueryRaw(r.Context(), body.Query, analyticsclient.FormatCSV)
		if err != nil {
			apierr.Write(w, reqID, apierr.Dependency("analytics query failed", err))
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write(raw)
		return
	}

	result, err := h.client.Query(r.Context(), body.Query)
	if err != nil {
		apierr.Write(w, reqID, apierr.Dependency("analytics query failed", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

// naturalQueryBody is the body for POST /api/powerbi/axia/query/natural.
type naturalQueryBody struct {
	Question string `json:"question"`
}

// QueryNatural handles POST /api/powerbi/axia/query/natural.
func (h *AnalyticsHandler) QueryNatural(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFromContext(r)

	var body naturalQueryBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.Write(w, reqID, apierr.BadRequest("failed to parse request body: "+err.Error()))
		return
	}
	if body.Question == "" {
		apierr.Write(w, reqID, apierr.Validation("question is required"))
		return
	}

	result, err := h.client.QueryNatural(r.Context(), body.Question)
	if err != nil {
		apierr.Write(w, reqID, apierr.Dependency("natural language query failed", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

// Refresh handles POST /api/powerbi/axia/refresh.
func (h *AnalyticsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFromContext(r)

	result, err := h.client.Refresh(r.Context())
	if err != nil {
		apierr.Write(w, reqID, apierr.Dependency("dataset refresh failed", err))
		return
	}

	h.logger.Info().Str("request_id", reqID).Str("status", result.Status).Msg("dataset refresh triggered")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}
