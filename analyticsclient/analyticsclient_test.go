package analyticsclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, tokenURL string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/api/powerbi/axia/query", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		var req QueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(QueryResult{
			Columns:  []string{"region", "revenue"},
			Rows:     [][]interface{}{{"west", 1000.0}},
			RowCount: 1,
		})
	})
	mux.HandleFunc("/api/powerbi/axia/query/natural", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(QueryResult{Columns: []string{"answer"}, RowCount: 0})
	})
	mux.HandleFunc("/api/powerbi/axia/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "started"})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return httptest.NewServer(mux)
}

func TestQueryDecodesTabularResult(t *testing.T) {
	srv := newTestServer(t, "")
	defer srv.Close()

	client := NewClient(context.Background(), Config{
		BaseURL:      srv.URL,
		ClientID:     "gateway",
		ClientSecret: "secret",
		TokenURL:     srv.URL + "/oauth/token",
	})

	result, err := client.Query(context.Background(), "SELECT revenue FROM sales")
	require.NoError(t, err)
	require.Equal(t, 1, result.RowCount)
	require.Equal(t, []string{"region", "revenue"}, result.Columns)
}

func TestQueryRawSupportsCSVFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "oauth") {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "t", "expires_in": 3600})
			return
		}
		var req QueryRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		require.Equal(t, FormatCSV, req.Format)
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("region,revenue\nwest,1000\n"))
	}))
	defer srv.Close()

	client := NewClient(context.Background(), Config{
		BaseURL: srv.URL, ClientID: "g", ClientSecret: "s", TokenURL: srv.URL + "/oauth/token",
	})

	raw, err := client.QueryRaw(context.Background(), "SELECT revenue FROM sales", FormatCSV)
	require.NoError(t, err)
	require.Contains(t, string(raw), "region,revenue")
}

func TestQueryNatural(t *testing.T) {
	srv := newTestServer(t, "")
	defer srv.Close()

	client := NewClient(context.Background(), Config{
		BaseURL: srv.URL, ClientID: "g", ClientSecret: "s", TokenURL: srv.URL + "/oauth/token",
	})

	result, err := client.QueryNatural(context.Background(), "what was our revenue last quarter")
	require.NoError(t, err)
	require.Equal(t, []string{"answer"}, result.Columns)
}

func TestRefresh(t *testing.T) {
	srv := newTestServer(t, "")
	defer srv.Close()

	client := NewClient(context.Background(), Config{
		BaseURL: srv.URL, ClientID: "g", ClientSecret: "s", TokenURL: srv.URL + "/oauth/token",
	})

	result, err := client.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "started", result.Status)
}

func TestHealthCheckReportsHealthy(t *testing.T) {
	srv := newTestServer(t, "")
	defer srv.Close()

	client := NewClient(context.Background(), Config{
		BaseURL: srv.URL, ClientID: "g", ClientSecret: "s", TokenURL: srv.URL + "/oauth/token",
	})

	status := client.HealthCheck(context.Background())
	require.True(t, status.Healthy)
}

func TestNonSuccessStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "oauth") {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "t", "expires_in": 3600})
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("dataset unavailable"))
	}))
	defer srv.Close()

	client := NewClient(context.Background(), Config{
		BaseURL: srv.URL, ClientID: "g", ClientSecret: "s", TokenURL: srv.URL + "/oauth/token",
	})

	_, err := client.Query(context.Background(), "SELECT 1")
	require.Error(t, err)
}
