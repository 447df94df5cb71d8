package modelrouter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/axiagw/gateway/analyzer"
	"github.com/axiagw/gateway/cache"
	"github.com/axiagw/gateway/provider"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	cacheNamespace  = "chat"
	cacheTTL        = time.Hour
	dispatchTimeout = 30 * time.Second
	fallbackMessage = "The assistant is temporarily unavailable. Please try again shortly."
)

// ChatInput is a single chat turn to route and dispatch.
type ChatInput struct {
	Content        string
	ConversationID string
	History        []provider.ChatMessage
	Context        map[string]interface{}
	HighAccuracy   bool
	RealTime       bool
	Override       Variant
	Stream         bool
}

// ChatOutput is the result of a (possibly cached) dispatch.
type ChatOutput struct {
	Content   string
	Variant   Variant
	CacheHit  bool
	Outcome   Outcome
	RequestID string
}

// Router is the model router (C5): it classifies, selects a variant,
// consults the cache, and dispatches to the LLM backend, never
// raising to its caller.
type Router struct {
	logger   zerolog.Logger
	client   *provider.Client
	cache    *cache.Engine
	registry Registry
	cost     CostAccounting
	records  *RingBuffer
	fallback int64
}

func NewRouter(logger zerolog.Logger, client *provider.Client, cacheEngine *cache.Engine, registry Registry) *Router {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Router{
		logger:   logger.With().Str("component", "model_router").Logger(),
		client:   client,
		cache:    cacheEngine,
		registry: registry,
		records:  NewRingBuffer(10000),
	}
}

// Dispatch classifies the input, selects a variant, and serves it from
// cache or the backend. Streaming requests never consult or populate
// the cache.
func (r *Router) Dispatch(ctx context.Context, in ChatInput) ChatOutput {
	requestID := uuid.NewString()
	promptTokens := analyzer.CountTokens(in.Content)
	classification := analyzer.Classify(in.Content)
	analysis := analyzer.Analyze(in.Content)

	selCtx := SelectionContext{
		PromptTokens:   promptTokens,
		Classification: classification,
		Indicators:     analysis.ComplexityIndicators,
		HighAccuracy:   in.HighAccuracy,
		Override:       in.Override,
		RealTime:       in.RealTime,
	}
	variant := Select(selCtx)

	key := cacheKey(in.Content, in.Context)

	if !in.Stream {
		if cached, ok := r.cache.Get(ctx, cacheNamespace, key); ok {
			r.cost.Record(r.weight(VariantFull), 0)
			return ChatOutput{Content: string(cached), Variant: variant, CacheHit: true, Outcome: OutcomeOK, RequestID: requestID}
		}
	}

	spec := r.registry[variant]
	req := r.buildRequest(spec, in)

	start := time.Now()
	dispatchCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	resp, err := r.client.ChatCompletion(dispatchCtx, req)
	completed := time.Now()

	if err != nil || len(resp.Choices) == 0 {
		atomic.AddInt64(&r.fallback, 1)
		r.records.Add(Record{RequestID: requestID, Variant: variant, PromptTokens: promptTokens, StartedAt: start, CompletedAt: completed, Outcome: OutcomeError})
		r.logger.Warn().Err(err).Str("request_id", requestID).Str("variant", string(variant)).Msg("dispatch failed, returning fallback")
		r.cost.Record(r.weight(VariantFull), r.weight(variant))
		return ChatOutput{Content: fallbackMessage, Variant: variant, Outcome: OutcomeFallback, RequestID: requestID}
	}

	content := resp.Choices[0].Message.Content
	text, _ := content.(string)

	r.records.Add(Record{
		RequestID:    requestID,
		Variant:      variant,
		PromptTokens: promptTokens,
		StartedAt:    start,
		CompletedAt:  completed,
		Outcome:      OutcomeOK,
		ResponseHash: hashString(text),
	})
	r.cost.Record(r.weight(VariantFull), r.weight(variant))

	if !in.Stream {
		r.cache.Set(ctx, cacheNamespace, key, []byte(text), cache.SetOptions{TTL: cacheTTL})
	}

	return ChatOutput{Content: text, Variant: variant, Outcome: OutcomeOK, RequestID: requestID}
}

// DispatchStream selects a variant and returns a live SSE stream from
// the backend; the cache is never consulted for streaming calls.
func (r *Router) DispatchStream(ctx context.Context, in ChatInput) (provider.Stream, Variant, error) {
	in.Stream = true
	promptTokens := analyzer.CountTokens(in.Content)
	classification := analyzer.Classify(in.Content)
	analysis := analyzer.Analyze(in.Content)

	variant := Select(SelectionContext{
		PromptTokens:   promptTokens,
		Classification: classification,
		Indicators:     analysis.ComplexityIndicators,
		HighAccuracy:   in.HighAccuracy,
		Override:       in.Override,
		RealTime:       in.RealTime,
	})

	spec := r.registry[variant]
	req := r.buildRequest(spec, in)
	stream, err := r.client.ChatCompletionStream(ctx, req)
	if err != nil {
		atomic.AddInt64(&r.fallback, 1)
		return nil, variant, err
	}
	r.cost.Record(r.weight(VariantFull), r.weight(variant))
	return stream, variant, nil
}

func (r *Router) buildRequest(spec VariantSpec, in ChatInput) *provider.ChatRequest {
	messages := make([]provider.ChatMessage, 0, len(in.History)+2)
	if spec.SystemPrompt != "" {
		messages = append(messages, provider.ChatMessage{Role: "system", Content: spec.SystemPrompt})
	}
	messages = append(messages, in.History...)
	messages = append(messages, provider.ChatMessage{Role: "user", Content: in.Content})

	maxTokens := spec.MaxCompletionTok
	temp := spec.Temperature
	topP := spec.TopP
	return &provider.ChatRequest{
		Model:       spec.Deployment,
		Messages:    messages,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
		TopP:        &topP,
		Stream:      in.Stream,
	}
}

func (r *Router) weight(v Variant) float64 {
	return r.registry[v].CostWeight
}

// FallbackCount returns the running count of requests that fell back
// to the deterministic message.
func (r *Router) FallbackCount() int64 {
	return atomic.LoadInt64(&r.fallback)
}

// CostSnapshot exposes the accumulated cost-accounting totals.
func (r *Router) CostSnapshot() (baseline, actual, savingsPct float64) {
	return r.cost.Snapshot()
}

// Records returns a snapshot of the LLM request ring buffer.
func (r *Router) Records() []Record {
	return r.records.Snapshot()
}

// Variants returns the fixed, startup-configured variant registry.
// The set never mutates, so callers may cache this freely.
func (r *Router) Variants() Registry {
	return r.registry
}

// BackendHealth checks the single LLM backend every variant dispatches
// through.
func (r *Router) BackendHealth(ctx context.Context) provider.HealthStatus {
	return r.client.HealthCheck(ctx)
}

func cacheKey(query string, stableContext map[string]interface{}) string {
	ctxJSON, _ := json.Marshal(stableContext)
	sum := sha256.Sum256([]byte(query + "|" + string(ctxJSON)))
	return hex.EncodeToString(sum[:])
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
