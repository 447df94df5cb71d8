package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/axiagw/gateway/analyzer"
	"github.com/axiagw/gateway/apierr"
	"github.com/axiagw/gateway/middleware"
	"github.com/axiagw/gateway/modelrouter"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// ChatHandler serves the single-turn chat endpoint and its SSE
// streaming variant, dispatching every turn through the model router.
type ChatHandler struct {
	logger zerolog.Logger
	router *modelrouter.Router

	// convLocks serializes turns within the same conversation so two
	// concurrent submissions against one conversation id can't race.
	convLocks *middleware.KeyedMutex
	// dedup collapses identical concurrent chat submissions (e.g. a
	// client double-submit) into a single backend dispatch.
	dedup *middleware.Deduplicator
	// dispatchCount counts turns that actually reached the backend,
	// as opposed to cache hits or deduplicated replays.
	dispatchCount *middleware.AtomicCounter
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(logger zerolog.Logger, router *modelrouter.Router) *ChatHandler {
	return &ChatHandler{
		logger:        logger.With().Str("component", "chat_handler").Logger(),
		router:        router,
		convLocks:     middleware.NewKeyedMutex(),
		dedup:         middleware.NewDeduplicator(),
		dispatchCount: &middleware.AtomicCounter{},
	}
}

// chatRequestBody is the documented POST /api/chat · /api/v1/chat body.
type chatRequestBody struct {
	Content        string                 `json:"content"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	Context        map[string]interface{} `json:"context,omitempty"`
	HighAccuracy   bool                   `json:"high_accuracy,omitempty"`
	RealTime       bool                   `json:"real_time,omitempty"`
	Stream         bool                   `json:"stream,omitempty"`
}

// Chat handles POST /api/chat · /api/v1/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFromContext(r)

	var body chatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.Write(w, reqID, apierr.BadRequest("failed to parse request body: "+err.Error()))
		return
	}
	if body.Content == "" {
		apierr.Write(w, reqID, apierr.Validation("content is required"))
		return
	}

	in := modelrouter.ChatInput{
		Content:        body.Content,
		ConversationID: body.ConversationID,
		Context:        body.Context,
		HighAccuracy:   body.HighAccuracy,
		RealTime:       body.RealTime,
		Stream:         body.Stream,
	}

	if body.Stream {
		h.streamChat(w, r, in)
		return
	}

	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		userID = "anonymous"
	}

	if body.ConversationID != "" {
		unlock := h.convLocks.Lock(userID + "|" + body.ConversationID)
		defer unlock()
	}

	start := time.Now()
	out, err := h.dispatchDeduplicated(r, userID, body)
	if err != nil {
		apierr.Write(w, reqID, apierr.Internal("failed to replay deduplicated response", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Model-Variant", string(out.Variant))
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"content":         out.Content,
		"variant":         out.Variant,
		"cache_hit":       out.CacheHit,
		"outcome":         out.Outcome,
		"request_id":      out.RequestID,
		"conversation_id": body.ConversationID,
	})

	h.logger.Info().Str("request_id", reqID).Str("variant", string(out.Variant)).
		Bool("cache_hit", out.CacheHit).Str("outcome", string(out.Outcome)).
		Dur("latency", time.Since(start)).Msg("chat dispatch complete")
}

// dispatchDeduplicated dispatches a chat turn through the router,
// collapsing identical concurrent submissions (same caller, same
// conversation, same content) into a single backend call.
func (h *ChatHandler) dispatchDeduplicated(r *http.Request, userID string, body chatRequestBody) (modelrouter.ChatOutput, error) {
	in := modelrouter.ChatInput{
		Content:        body.Content,
		ConversationID: body.ConversationID,
		Context:        body.Context,
		HighAccuracy:   body.HighAccuracy,
		RealTime:       body.RealTime,
	}

	fp := middleware.Fingerprint(userID, body.ConversationID, body.Content)
	wait, isNew := h.dedup.TryStart(fp)
	if !isNew {
		resp, _, err := wait()
		if err != nil {
			return modelrouter.ChatOutput{}, err
		}
		var out modelrouter.ChatOutput
		if err := json.Unmarshal(resp, &out); err != nil {
			return modelrouter.ChatOutput{}, err
		}
		return out, nil
	}

	out := h.router.Dispatch(r.Context(), in)
	if !out.CacheHit {
		h.dispatchCount.Inc()
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		h.dedup.Complete(fp, nil, http.StatusOK, err)
		return out, nil
	}
	h.dedup.Complete(fp, encoded, http.StatusOK, nil)
	return out, nil
}

// streamChat serves the SSE variant of Chat, writing each chunk as it
// arrives from the backend and flushing immediately.
func (h *ChatHandler) streamChat(w http.ResponseWriter, r *http.Request, in modelrouter.ChatInput) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		apierr.Write(w, requestIDFromContext(r), apierr.Internal("streaming not supported by this server", nil))
		return
	}

	stream, variant, err := h.router.DispatchStream(r.Context(), in)
	if err != nil {
		apierr.Write(w, requestIDFromContext(r), apierr.Dependency("upstream streaming error", err))
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Model-Variant", string(variant))
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		chunk, err := stream.Next()
		if err != nil {
			if err != io.EOF {
				h.logger.Warn().Err(err).Msg("stream read error")
			}
			break
		}
		if _, writeErr := w.Write(chunk); writeErr != nil {
			h.logger.Debug().Err(writeErr).Msg("client disconnected during stream")
			break
		}
		flusher.Flush()
	}
}

// CostEstimate handles POST /api/v1/cost/estimate: a rough token count
// for the submitted content plus the router's running cost-accounting
// snapshot, without dispatching anything to the backend.
func (h *ChatHandler) CostEstimate(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFromContext(r)

	var body chatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.Write(w, reqID, apierr.BadRequest("failed to parse request body: "+err.Error()))
		return
	}

	estimatedTokens := analyzer.CountTokens(body.Content)

	baseline, actual, savingsPct := h.router.CostSnapshot()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"estimated_prompt_tokens": estimatedTokens,
		"baseline_weight":         baseline,
		"actual_weight":           actual,
		"cumulative_savings_pct":  savingsPct,
		"fallback_count":          h.router.FallbackCount(),
		"lifetime_dispatch_count": h.dispatchCount.Get(),
	})
}

func requestIDFromContext(r *http.Request) string {
	return chimw.GetReqID(r.Context())
}
