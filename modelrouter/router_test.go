package modelrouter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/axiagw/gateway/cache"
	"github.com/axiagw/gateway/provider"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, handler http.HandlerFunc) (*Router, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	client := provider.NewClient(srv.URL, srv.Client())
	cacheEngine := cache.NewEngine(zerolog.New(io.Discard), nil, time.Hour, 1024)
	router := NewRouter(zerolog.New(io.Discard), client, cacheEngine, DefaultRegistry())
	return router, srv
}

func chatResponder(reply string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(provider.ChatResponse{
			ID:      "resp-1",
			Choices: []provider.Choice{{Message: provider.ChatMessage{Role: "assistant", Content: reply}}},
			Usage:   provider.Usage{PromptTokens: 5, CompletionTokens: 5, TotalTokens: 10},
		})
	}
}

func TestDispatchCacheMissThenHit(t *testing.T) {
	calls := 0
	router, srv := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		chatResponder("hello there")(w, r)
	})
	defer srv.Close()

	in := ChatInput{Content: "what is our revenue this month", Context: map[string]interface{}{"tenant": "acme"}}

	first := router.Dispatch(context.Background(), in)
	require.False(t, first.CacheHit)
	require.Equal(t, OutcomeOK, first.Outcome)
	require.Equal(t, "hello there", first.Content)

	second := router.Dispatch(context.Background(), in)
	require.True(t, second.CacheHit)
	require.Equal(t, "hello there", second.Content)
	require.Equal(t, 1, calls)

	baseline, actual, savings := router.CostSnapshot()
	require.Greater(t, baseline, 0.0)
	require.Less(t, actual, baseline)
	require.GreaterOrEqual(t, savings, 0.55)
}

func TestDispatchHighAccuracyEscalatesToChatTier(t *testing.T) {
	var seenModel string
	router, srv := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		var req provider.ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		seenModel = req.Model
		chatResponder("ok")(w, r)
	})
	defer srv.Close()

	phrase := "Please compare the trend and give a breakdown aggregate by join filter rank top bottom region performance values. "
	longMedium := strings.Repeat(phrase, 60)

	out := router.Dispatch(context.Background(), ChatInput{Content: longMedium, HighAccuracy: true})
	require.Equal(t, VariantChat, out.Variant)
	require.Equal(t, "chat-v1", seenModel)
}

func TestDispatchNeverRaisesOnBackendFailure(t *testing.T) {
	router, srv := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer srv.Close()

	out := router.Dispatch(context.Background(), ChatInput{Content: "hello"})
	require.Equal(t, OutcomeFallback, out.Outcome)
	require.Equal(t, fallbackMessage, out.Content)
	require.EqualValues(t, 1, router.FallbackCount())

	records := router.Records()
	require.Len(t, records, 1)
	require.Equal(t, OutcomeError, records[0].Outcome)
}

func TestDispatchRealTimeDowngradesTier(t *testing.T) {
	var seenModel string
	router, srv := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		var req provider.ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		seenModel = req.Model
		chatResponder("ok")(w, r)
	})
	defer srv.Close()

	out := router.Dispatch(context.Background(), ChatInput{Content: "hi", RealTime: true})
	require.Equal(t, VariantNano, out.Variant)
	require.Equal(t, "nano-v1", seenModel)
}

func TestDispatchStreamBypassesCache(t *testing.T) {
	router, srv := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"delta\":\"hi\"}\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	})
	defer srv.Close()

	stream, variant, err := router.DispatchStream(context.Background(), ChatInput{Content: "stream this"})
	require.NoError(t, err)
	require.NotNil(t, stream)
	require.NotEmpty(t, variant)

	chunk, err := stream.Next()
	require.NoError(t, err)
	require.Contains(t, string(chunk), "delta")

	_, err = stream.Next()
	require.ErrorIs(t, err, io.EOF)

	entries := router.cache.Stats()
	require.Equal(t, int64(0), entries.Hits)
}

func TestCacheKeyStableAcrossEqualContexts(t *testing.T) {
	a := cacheKey("q", map[string]interface{}{"x": 1, "y": 2})
	b := cacheKey("q", map[string]interface{}{"x": 1, "y": 2})
	require.Equal(t, a, b)

	c := cacheKey("q", map[string]interface{}{"x": 1, "y": 3})
	require.NotEqual(t, a, c)
}
