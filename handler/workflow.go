package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/axiagw/gateway/workflow"
)

// WorkflowHandler serves workflow definition registration, manual
// triggers, execution lookups, and the signed async-callback sink
// wrapping the C7 orchestrator.
type WorkflowHandler struct {
	orchestrator *workflow.Orchestrator
	signingKey   []byte
	logger       zerolog.Logger
}

// NewWorkflowHandler creates a new workflow handler. signingKey
// verifies inbound callbacks from the external workflow service.
func NewWorkflowHandler(orchestrator *workflow.Orchestrator, signingKey []byte, logger zerolog.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		orchestrator: orchestrator,
		signingKey:   signingKey,
		logger:       logger.With().Str("component", "workflow_handler").Logger(),
	}
}

type definitionRequestBody struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	Type            workflow.Type          `json:"type"`
	Trigger         workflow.Trigger       `json:"trigger"`
	Schedule        string                 `json:"schedule"`
	SubscriptionKey string                 `json:"subscription_key"`
	Config          map[string]interface{} `json:"config"`
	RetryOnFailure  bool                   `json:"retry_on_failure"`
	MaxRetries      int                    `json:"max_retries"`
	TimeoutSeconds  int                    `json:"timeout_seconds"`
	Enabled         bool                   `json:"enabled"`
}

// RegisterDefinition handles POST /api/v1/workflows.
func (h *WorkflowHandler) RegisterDefinition(w http.ResponseWriter, r *http.Request) {
	var body definitionRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	def := workflow.Definition{
		ID:              body.ID,
		Name:            body.Name,
		Type:            body.Type,
		Trigger:         body.Trigger,
		Schedule:        body.Schedule,
		SubscriptionKey: body.SubscriptionKey,
		Config:          body.Config,
		RetryOnFailure:  body.RetryOnFailure,
		MaxRetries:      body.MaxRetries,
		Timeout:         time.Duration(body.TimeoutSeconds) * time.Second,
		Enabled:         body.Enabled,
	}

	if err := h.orchestrator.RegisterDefinition(def); err != nil {
		writeError(w, http.StatusBadRequest, "register_failed", err.Error())
		return
	}

	h.logger.Info().Str("id", def.ID).Str("trigger", string(def.Trigger)).Msg("workflow definition registered")
	writeJSON(w, http.StatusCreated, def)
}

type triggerRequestBody struct {
	Payload map[string]interface{} `json:"payload"`
}

// Trigger handles POST /api/v1/workflows/{id}/trigger.
func (h *WorkflowHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body triggerRequestBody
	_ = json.NewDecoder(r.Body).Decode(&body)

	exec, err := h.orchestrator.TriggerManual(r.Context(), id, body.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "trigger_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, exec)
}

// GetExecution handles GET /api/v1/workflows/executions/{id}.
func (h *WorkflowHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	exec, ok := h.orchestrator.GetExecution(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

type callbackRequestBody struct {
	Result map[string]interface{} `json:"result"`
	Error  string                 `json:"error"`
}

// Callback handles POST /api/v1/workflows/callback/{executionId} — the
// external workflow service's asynchronous completion notification.
func (h *WorkflowHandler) Callback(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "executionId")

	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read_failed", err.Error())
		return
	}

	timestamp := r.Header.Get("X-Workflow-Timestamp")
	signature := r.Header.Get("X-Workflow-Signature")
	if err := workflow.VerifyCallbackSignature(h.signingKey, body, timestamp, signature, time.Now()); err != nil {
		h.logger.Warn().Err(err).Str("execution_id", executionID).Msg("callback signature rejected")
		writeError(w, http.StatusUnauthorized, "invalid_signature", err.Error())
		return
	}

	var cb callbackRequestBody
	if err := json.Unmarshal(body, &cb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	if !h.orchestrator.DeliverCallback(executionID, cb.Result, cb.Error) {
		writeError(w, http.StatusGone, "no_waiting_execution", "execution is not awaiting a callback")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
