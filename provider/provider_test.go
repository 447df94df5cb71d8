package provider

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChatCompletionDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"resp-1","model":"chat","choices":[{"index":0,"message":{"role":"assistant","content":"hi"}}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())
	resp, err := client.ChatCompletion(context.Background(), &ChatRequest{Model: "chat"})
	require.NoError(t, err)
	require.Equal(t, "resp-1", resp.ID)
	require.Equal(t, 7, resp.Usage.TotalTokens)
}

func TestChatCompletionNon2xxErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())
	_, err := client.ChatCompletion(context.Background(), &ChatRequest{Model: "chat"})
	require.Error(t, err)
}

func TestHealthCheckReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())
	status := client.HealthCheck(context.Background())
	require.True(t, status.Healthy)
}

type closingBuffer struct {
	*bytes.Buffer
}

func (closingBuffer) Close() error { return nil }

func TestHTTPStreamReadsUntilDone(t *testing.T) {
	raw := "data: {\"chunk\":1}\n\n" +
		"data: {\"chunk\":2}\n\n" +
		"data: [DONE]\n\n"
	resp := &http.Response{Body: closingBuffer{bytes.NewBufferString(raw)}}
	stream := NewHTTPStream(resp)

	first, err := stream.Next()
	require.NoError(t, err)
	require.Equal(t, `{"chunk":1}`, string(first))

	second, err := stream.Next()
	require.NoError(t, err)
	require.Equal(t, `{"chunk":2}`, string(second))

	_, err = stream.Next()
	require.ErrorIs(t, err, io.EOF)
}
